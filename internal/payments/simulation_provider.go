package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/montebazar/api/internal/domain"
)

// SimulationProviderConfig configures the in-process payment simulator.
type SimulationProviderConfig struct {
	// BaseURL is where the simulated hosted checkout page lives, typically the
	// storefront itself in development environments.
	BaseURL     string
	Clock       func() time.Time
	IDGenerator func() string
}

// SimulationProvider implements Provider without talking to any external
// service. It exists for development and automated flows where a real payment
// would be noise.
type SimulationProvider struct {
	baseURL string
	clock   func() time.Time
	newID   func() string
}

// NewSimulationProvider constructs the simulator.
func NewSimulationProvider(cfg SimulationProviderConfig) (*SimulationProvider, error) {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, errors.New("simulation: base url is required")
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	newID := cfg.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	return &SimulationProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		clock:   clock,
		newID:   newID,
	}, nil
}

// Name implements Provider.
func (p *SimulationProvider) Name() domain.PaymentProvider {
	return domain.PaymentProviderSimulation
}

// CreateCheckoutSession fabricates a session pointing at the simulated checkout page.
func (p *SimulationProvider) CreateCheckoutSession(_ context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if p == nil {
		return CheckoutSession{}, errors.New("simulation: provider not initialised")
	}
	if strings.TrimSpace(req.OrderID) == "" {
		return CheckoutSession{}, errors.New("simulation: order id is required")
	}

	sessionID := "sim_" + p.newID()
	redirect := fmt.Sprintf("%s/checkout/simulation?session=%s&order=%s",
		p.baseURL, url.QueryEscape(sessionID), url.QueryEscape(req.OrderID))

	return CheckoutSession{
		ID:          sessionID,
		Provider:    domain.PaymentProviderSimulation,
		RedirectURL: redirect,
		InitURL:     redirect,
		ExpiresAt:   p.clock().Add(30 * time.Minute),
		Raw: map[string]any{
			"amount":   req.Amount,
			"currency": req.Currency,
		},
	}, nil
}

// TranslateEventStatus maps simulator statuses onto the shared set.
func (p *SimulationProvider) TranslateEventStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "approved":
		return StatusApproved
	case "rejected":
		return StatusRejected
	case "cancelled":
		return StatusCancelled
	default:
		return StatusPending
	}
}
