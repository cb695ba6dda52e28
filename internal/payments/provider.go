package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action or provider confirmation.
	StatusPending Status = "pending"
	// StatusApproved indicates the provider reports the payment as approved.
	StatusApproved Status = "approved"
	// StatusRejected indicates the provider rejected the payment.
	StatusRejected Status = "rejected"
	// StatusCancelled indicates the shopper abandoned or cancelled the flow.
	StatusCancelled Status = "cancelled"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// CheckoutLineItem describes a single line item to include in a hosted checkout.
type CheckoutLineItem struct {
	ProductID string
	Title     string
	Quantity  int
	UnitPrice int64
	Currency  string
}

// CheckoutSessionRequest captures the payload required to create a hosted payment session.
type CheckoutSessionRequest struct {
	OrderID       string
	Amount        int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	PendingURL    string
	FailureURL    string
	Items         []CheckoutLineItem
	Metadata      map[string]string
}

// CheckoutSession represents the provider session returned to the client.
// RedirectURL is the URL the shopper must be sent to; in non-production
// environments providers substitute their sandbox URL when one exists.
type CheckoutSession struct {
	ID          string
	Provider    domain.PaymentProvider
	RedirectURL string
	InitURL     string
	SandboxURL  string
	ExpiresAt   time.Time
	Raw         map[string]any
}

// Provider defines the contract payment adapters implement.
type Provider interface {
	Name() domain.PaymentProvider
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// TranslateEventStatus maps a provider-specific webhook status string to the
	// normalised Status set. Unknown values map to StatusPending.
	TranslateEventStatus(raw string) Status
}

// Manager routes checkout session creation to the registered provider adapters.
// Registration is keyed by the closed PaymentProvider enum; identifiers outside
// the enum are rejected rather than matched loosely.
type Manager struct {
	providers       map[domain.PaymentProvider]Provider
	defaultProvider domain.PaymentProvider
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider sets the provider used when the caller expresses no preference.
func WithDefaultProvider(provider domain.PaymentProvider) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers []Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}

	registry := make(map[domain.PaymentProvider]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("payments: nil provider registration")
		}
		name, ok := domain.ParsePaymentProvider(string(p.Name()))
		if !ok {
			return nil, fmt.Errorf("payments: provider %q is not part of the supported set", p.Name())
		}
		if _, exists := registry[name]; exists {
			return nil, fmt.Errorf("payments: duplicate provider registration for %s", name)
		}
		registry[name] = p
	}

	m := &Manager{providers: registry}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

// Resolve returns the adapter registered for the given provider identifier.
func (m *Manager) Resolve(provider domain.PaymentProvider) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}

	if provider == "" {
		provider = m.defaultProvider
	}
	if provider == "" && len(m.providers) == 1 {
		for _, p := range m.providers {
			return p, nil
		}
	}

	p, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, provider)
	}
	return p, nil
}

// CreateCheckoutSession delegates to the resolved provider.
func (m *Manager) CreateCheckoutSession(ctx context.Context, provider domain.PaymentProvider, req CheckoutSessionRequest) (CheckoutSession, error) {
	p, err := m.Resolve(provider)
	if err != nil {
		return CheckoutSession{}, err
	}
	session, err := p.CreateCheckoutSession(ctx, req)
	if err != nil {
		return CheckoutSession{}, err
	}
	session.Provider = p.Name()
	return session, nil
}

// TranslateEventStatus delegates webhook status normalisation to the provider.
func (m *Manager) TranslateEventStatus(provider domain.PaymentProvider, raw string) (Status, error) {
	p, err := m.Resolve(provider)
	if err != nil {
		return StatusPending, err
	}
	return p.TranslateEventStatus(raw), nil
}
