package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

// ErrSettingsUnavailable indicates the settings document could not be loaded
// and no cached copy exists yet.
var ErrSettingsUnavailable = errors.New("settings service: unavailable")

var (
	errSettingsRepositoryRequired = errors.New("settings service: repository is required")
	errSettingsClockRequired      = errors.New("settings service: clock is required")
)

const defaultSettingsCacheTTL = time.Minute

// SettingsServiceDeps wires the settings store and cache policy.
type SettingsServiceDeps struct {
	Repository repositories.SettingsRepository
	Clock      func() time.Time
	CacheTTL   time.Duration
	Logger     func(context.Context, string, map[string]any)
}

type settingsService struct {
	repo   repositories.SettingsRepository
	now    func() time.Time
	ttl    time.Duration
	logger func(context.Context, string, map[string]any)

	mu        sync.RWMutex
	cached    domain.StoreSettings
	hasCached bool
	expiresAt time.Time
}

// NewSettingsService constructs the cached storefront settings read model.
func NewSettingsService(deps SettingsServiceDeps) (SettingsService, error) {
	if deps.Repository == nil {
		return nil, errSettingsRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errSettingsClockRequired
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultSettingsCacheTTL
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &settingsService{
		repo:   deps.Repository,
		now:    func() time.Time { return deps.Clock().UTC() },
		ttl:    ttl,
		logger: logger,
	}, nil
}

// Get returns the settings, serving the cached copy within the TTL. When the
// store fails but a stale copy exists, the stale copy is served instead of an
// error so pricing keeps working through brief outages.
func (s *settingsService) Get(ctx context.Context) (StoreSettings, error) {
	if s == nil || s.repo == nil {
		return StoreSettings{}, ErrSettingsUnavailable
	}

	now := s.now()
	s.mu.RLock()
	if s.hasCached && now.Before(s.expiresAt) {
		cached := s.cached
		s.mu.RUnlock()
		return cached, nil
	}
	s.mu.RUnlock()

	settings, err := s.repo.Get(ctx)
	if err != nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.hasCached {
			s.logger(ctx, "settings.stale_served", map[string]any{"error": err.Error()})
			return s.cached, nil
		}
		return StoreSettings{}, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}

	s.storeCache(settings, now)
	return settings, nil
}

// Refresh bypasses the cache and reloads the settings document.
func (s *settingsService) Refresh(ctx context.Context) (StoreSettings, error) {
	if s == nil || s.repo == nil {
		return StoreSettings{}, ErrSettingsUnavailable
	}

	settings, err := s.repo.Get(ctx)
	if err != nil {
		return StoreSettings{}, fmt.Errorf("%w: %v", ErrSettingsUnavailable, err)
	}
	s.storeCache(settings, s.now())
	return settings, nil
}

func (s *settingsService) storeCache(settings StoreSettings, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = settings
	s.hasCached = true
	s.expiresAt = now.Add(s.ttl)
}
