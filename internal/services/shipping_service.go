package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

// ErrShippingUnknownDepartment indicates the destination is not a supported department.
var ErrShippingUnknownDepartment = errors.New("shipping service: unknown department")

// ErrShippingUnavailable indicates no cost could be resolved, not even a fallback.
var ErrShippingUnavailable = errors.New("shipping service: unavailable")

var errShippingClockRequired = errors.New("shipping service: clock is required")

const defaultShippingCacheTTL = 5 * time.Minute

// ShippingServiceDeps wires the rate store and cache policy for the resolver.
type ShippingServiceDeps struct {
	Rates           repositories.ShippingRateRepository
	Clock           func() time.Time
	CacheTTL        time.Duration
	Currency        string
	StaticFallbacks map[domain.Department]int64
	Logger          func(context.Context, string, map[string]any)
}

type shippingCacheEntry struct {
	quote      ShippingQuote
	expiresAt  time.Time
	generation uint64
}

type shippingService struct {
	rates     repositories.ShippingRateRepository
	now       func() time.Time
	ttl       time.Duration
	currency  string
	fallbacks map[domain.Department]int64
	logger    func(context.Context, string, map[string]any)

	mu          sync.RWMutex
	cache       map[domain.Department]shippingCacheEntry
	generations map[domain.Department]uint64
}

// NewShippingService constructs the per-department shipping cost resolver.
func NewShippingService(deps ShippingServiceDeps) (ShippingService, error) {
	if deps.Clock == nil {
		return nil, errShippingClockRequired
	}

	ttl := deps.CacheTTL
	if ttl <= 0 {
		ttl = defaultShippingCacheTTL
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = domain.CurrencyUYU
	}

	fallbacks := deps.StaticFallbacks
	if fallbacks == nil {
		fallbacks = defaultShippingFallbacks()
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &shippingService{
		rates:       deps.Rates,
		now:         func() time.Time { return deps.Clock().UTC() },
		ttl:         ttl,
		currency:    currency,
		fallbacks:   fallbacks,
		logger:      logger,
		cache:       make(map[domain.Department]shippingCacheEntry),
		generations: make(map[domain.Department]uint64),
	}, nil
}

// Quote resolves the shipping cost for a department. Resolved costs are cached
// for the configured TTL; when the rate store fails the static fallback table
// answers instead, without poisoning the cache.
func (s *shippingService) Quote(ctx context.Context, department Department) (ShippingQuote, error) {
	if s == nil {
		return ShippingQuote{}, ErrShippingUnavailable
	}

	dept, ok := domain.ParseDepartment(string(department))
	if !ok {
		return ShippingQuote{}, fmt.Errorf("%w: %q", ErrShippingUnknownDepartment, string(department))
	}

	now := s.now()
	if quote, ok := s.cached(dept, now); ok {
		return quote, nil
	}

	generation := s.currentGeneration(dept)
	quote, err := s.fetch(ctx, dept, now)
	if err == nil {
		s.store(dept, quote, generation, now)
		return quote, nil
	}

	fallback, ok := s.fallbacks[dept]
	if !ok {
		return ShippingQuote{}, fmt.Errorf("%w: %v", ErrShippingUnavailable, err)
	}

	s.logger(ctx, "shipping.fallback", map[string]any{
		"department": string(dept),
		"error":      err.Error(),
	})
	return ShippingQuote{
		Department: dept,
		Amount:     fallback,
		Currency:   s.currency,
		Source:     domain.ShippingQuoteSourceFallback,
		FetchedAt:  now,
	}, nil
}

// Prefetch refreshes the cached quote for a department. A refresh started
// before a later Invalidate or Prefetch for the same department is superseded
// and its result is discarded.
func (s *shippingService) Prefetch(ctx context.Context, department Department) {
	if s == nil {
		return
	}
	dept, ok := domain.ParseDepartment(string(department))
	if !ok {
		return
	}

	generation := s.bumpGeneration(dept)

	now := s.now()
	quote, err := s.fetch(ctx, dept, now)
	if err != nil {
		s.logger(ctx, "shipping.prefetch_failed", map[string]any{
			"department": string(dept),
			"error":      err.Error(),
		})
		return
	}
	s.store(dept, quote, generation, now)
}

// Invalidate drops the cached quote for a department and supersedes any
// refresh already in flight.
func (s *shippingService) Invalidate(department Department) {
	if s == nil {
		return
	}
	dept, ok := domain.ParseDepartment(string(department))
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[dept]++
	delete(s.cache, dept)
}

func (s *shippingService) fetch(ctx context.Context, dept domain.Department, now time.Time) (ShippingQuote, error) {
	if s.rates == nil {
		return ShippingQuote{}, errors.New("rate store is not configured")
	}
	rate, err := s.rates.GetRate(ctx, dept)
	if err != nil {
		return ShippingQuote{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(rate.Currency))
	if currency == "" {
		currency = s.currency
	}
	return ShippingQuote{
		Department: dept,
		Amount:     rate.Amount,
		Currency:   currency,
		Source:     domain.ShippingQuoteSourceRemote,
		FetchedAt:  now,
	}, nil
}

func (s *shippingService) cached(dept domain.Department, now time.Time) (ShippingQuote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.cache[dept]
	if !ok || now.After(entry.expiresAt) {
		return ShippingQuote{}, false
	}
	if entry.generation != s.generations[dept] {
		return ShippingQuote{}, false
	}
	return entry.quote, true
}

func (s *shippingService) store(dept domain.Department, quote ShippingQuote, generation uint64, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generations[dept] {
		// A newer Invalidate or Prefetch superseded this result.
		return
	}
	s.cache[dept] = shippingCacheEntry{
		quote:      quote,
		expiresAt:  now.Add(s.ttl),
		generation: generation,
	}
}

func (s *shippingService) currentGeneration(dept domain.Department) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generations[dept]
}

func (s *shippingService) bumpGeneration(dept domain.Department) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generations[dept]++
	return s.generations[dept]
}

// defaultShippingFallbacks is the static cost table used when the rate store
// cannot answer. Amounts are UYU minor units.
func defaultShippingFallbacks() map[domain.Department]int64 {
	fallbacks := make(map[domain.Department]int64, len(domain.Departments()))
	for _, dept := range domain.Departments() {
		fallbacks[dept] = 25000
	}
	fallbacks[domain.DepartmentMontevideo] = 15000
	fallbacks[domain.DepartmentCanelones] = 19000
	return fallbacks
}
