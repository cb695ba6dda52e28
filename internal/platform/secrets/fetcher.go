// Package secrets resolves secret:// references against Google Secret
// Manager. The API keeps its payment provider credentials and webhook HMAC
// keys there; local development reads them from a .secrets.local file
// instead of the remote service.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/montebazar/api/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// cacheKey identifies one resolved value: a canonical reference at a
// concrete version. The same secret pinned to different versions caches
// independently.
type cacheKey struct {
	canonical string
	version   string
}

// Fetcher resolves secret:// references with in-process caching and a local
// fallback file for environments without Secret Manager access.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool

	logger *zap.Logger

	env            string
	defaultProject string
	projectMap     map[string]string
	versionPins    map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[cacheKey]string
	fallbackErr  error

	mu    sync.RWMutex
	cache map[cacheKey]string

	resolveDuration metric.Float64Histogram
	cacheHits       metric.Int64Counter
}

type fetcherConfig struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	client       secretManagerClient
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) {
		cfg.logger = logger
	}
}

// WithEnvironment selects the environment key used to resolve per-environment project IDs.
func WithEnvironment(env string) Option {
	return func(cfg *fetcherConfig) {
		cfg.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject configures the fallback project ID used when no environment-specific mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) {
		cfg.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies environment-specific project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.projectMap = copyStringMap(m)
	}
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) {
		cfg.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a preconfigured Secret Manager client (primarily for tests).
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) {
		cfg.client = client
	}
}

// WithClientOptions forwards Cloud client options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) {
		cfg.clientOpts = append(cfg.clientOpts, opts...)
	}
}

// WithVersionPins sets explicit version overrides keyed by canonical secret
// reference, optionally prefixed "env:" to scope a pin to one environment.
func WithVersionPins(pins map[string]string) Option {
	return func(cfg *fetcherConfig) {
		cfg.versionPins = copyStringMap(pins)
	}
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not fatal:
// the fetcher degrades to the fallback file, which is how local development
// runs without cloud credentials.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{
		logger:       zap.NewNop(),
		env:          defaultEnvironment,
		fallbackPath: defaultFallbackPath,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.env == "" {
		cfg.env = defaultEnvironment
	}

	meter := otel.GetMeterProvider().Meter(meterName)
	resolveDuration, err := meter.Float64Histogram(
		"secrets.resolve.duration",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret resolution"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register duration metric", zap.Error(err))
		resolveDuration = nil
	}
	cacheHits, err := meter.Int64Counter(
		"secrets.resolve.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
		cacheHits = nil
	}

	f := &Fetcher{
		logger:          cfg.logger,
		env:             cfg.env,
		defaultProject:  cfg.defaultProj,
		projectMap:      copyStringMap(cfg.projectMap),
		versionPins:     copyStringMap(cfg.versionPins),
		fallbackPath:    cfg.fallbackPath,
		cache:           make(map[cacheKey]string),
		resolveDuration: resolveDuration,
		cacheHits:       cacheHits,
	}

	if cfg.client != nil {
		f.client = cfg.client
	} else {
		client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
		if err != nil {
			cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases the Secret Manager client when the fetcher owns it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve retrieves the secret value for the supplied reference. Remote
// results are cached for the process lifetime; unreachable Secret Manager
// degrades to the fallback file, but a missing secret does not.
func (f *Fetcher) Resolve(ctx context.Context, ref string) (string, error) {
	start := time.Now()
	parsed, err := parseReference(ref)
	if err != nil {
		return "", err
	}

	key := cacheKey{canonical: parsed.Canonical, version: f.pinnedVersion(parsed)}

	if value, ok := f.cached(key); ok {
		f.recordCacheHit(ctx, key)
		f.recordDuration(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	projectID := f.resolveProject(parsed)
	remoteAvailable := projectID != "" && f.client != nil

	if remoteAvailable {
		value, fetchErr := f.accessVersion(ctx, projectID, parsed.Secret, key.version)
		if fetchErr == nil {
			f.store(key, value)
			f.recordDuration(ctx, time.Since(start), "remote", nil)
			return value, nil
		}
		if !shouldFallBack(fetchErr) {
			f.recordDuration(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", parsed.Canonical, fetchErr)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", parsed.Canonical), zap.Error(fetchErr))
	}

	value, ok := f.fallbackValue(key)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", parsed.Canonical)
		f.recordDuration(ctx, time.Since(start), "error", err)
		return "", err
	}

	f.store(key, value)
	f.recordDuration(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

func (f *Fetcher) cached(key cacheKey) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	value, ok := f.cache[key]
	return value, ok
}

func (f *Fetcher) store(key cacheKey, value string) {
	f.mu.Lock()
	f.cache[key] = value
	f.mu.Unlock()
}

func (f *Fetcher) accessVersion(ctx context.Context, projectID, secretName, version string) (string, error) {
	resourceName := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, secretName, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resourceName})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resourceName)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) resolveProject(ref parsedReference) string {
	if ref.ProjectOverride != "" {
		return ref.ProjectOverride
	}
	if id, ok := f.projectMap[f.env]; ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return f.defaultProject
}

func (f *Fetcher) pinnedVersion(ref parsedReference) string {
	if ref.Version != "" {
		return ref.Version
	}
	if pin, ok := f.versionPins[f.env+":"+ref.Canonical]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	if pin, ok := f.versionPins[ref.Canonical]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	return "latest"
}

func (f *Fetcher) fallbackValue(key cacheKey) (string, bool) {
	f.loadFallbackFile()
	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}
	if value, ok := f.fallbackVals[key]; ok {
		return value, true
	}
	value, ok := f.fallbackVals[cacheKey{canonical: key.canonical, version: "latest"}]
	return value, ok
}

// loadFallbackFile reads the .secrets.local file once. Lines are
// "secret://name=value"; blank lines and #-comments are skipped, and a
// missing file simply leaves the fallback empty.
func (f *Fetcher) loadFallbackFile() {
	f.fallbackOnce.Do(func() {
		f.fallbackVals = map[cacheKey]string{}

		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			return
		}
		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		file, err := os.Open(absPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
			}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			rawKey, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			parsed, err := parseReference(strings.TrimSpace(rawKey))
			if err != nil {
				continue
			}
			version := parsed.Version
			if version == "" {
				version = "latest"
			}
			f.fallbackVals[cacheKey{canonical: parsed.Canonical, version: version}] = strings.TrimSpace(value)
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
		}
	})
}

func (f *Fetcher) recordDuration(ctx context.Context, d time.Duration, source string, err error) {
	if f.resolveDuration == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.resolveDuration.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) recordCacheHit(ctx context.Context, key cacheKey) {
	if f.cacheHits == nil {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", key.canonical)))
}

type parsedReference struct {
	Canonical       string
	Secret          string
	Version         string
	ProjectOverride string
}

// parseReference accepts secret://name plus optional ?version= and
// ?project= query overrides. The canonical form strips the query so pins
// and fallback entries match regardless of how the reference was written.
func parseReference(ref string) (parsedReference, error) {
	if strings.TrimSpace(ref) == "" {
		return parsedReference{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(ref)
	if err != nil {
		return parsedReference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return parsedReference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	secret := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if secret == "" {
		return parsedReference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	values := u.Query()
	return parsedReference{
		Canonical:       canonical.String(),
		Secret:          secret,
		Version:         strings.TrimSpace(values.Get("version")),
		ProjectOverride: strings.TrimSpace(values.Get("project")),
	}, nil
}

func copyStringMap(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	dst := make(map[string]string, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}

func shouldFallBack(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
