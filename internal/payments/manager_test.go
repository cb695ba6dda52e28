package payments

import (
	"context"
	"errors"
	"testing"

	domain "github.com/montebazar/api/internal/domain"
)

type fakeProvider struct {
	name       domain.PaymentProvider
	createFunc func(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	translate  func(raw string) Status
}

func (f *fakeProvider) Name() domain.PaymentProvider {
	return f.name
}

func (f *fakeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error) {
	if f.createFunc != nil {
		return f.createFunc(ctx, req)
	}
	return CheckoutSession{ID: "session-1", RedirectURL: "https://pay.example/r"}, nil
}

func (f *fakeProvider) TranslateEventStatus(raw string) Status {
	if f.translate != nil {
		return f.translate(raw)
	}
	return StatusPending
}

func TestNewManagerRejectsUnknownProviderName(t *testing.T) {
	_, err := NewManager([]Provider{&fakeProvider{name: "STRIPE"}})
	if err == nil {
		t.Fatalf("expected registration of an unknown provider to fail")
	}
}

func TestNewManagerRejectsDuplicates(t *testing.T) {
	_, err := NewManager([]Provider{
		&fakeProvider{name: domain.PaymentProviderSimulation},
		&fakeProvider{name: domain.PaymentProviderSimulation},
	})
	if err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestManagerResolveIsExact(t *testing.T) {
	manager, err := NewManager([]Provider{
		&fakeProvider{name: domain.PaymentProviderMercadoPago},
		&fakeProvider{name: domain.PaymentProviderDLocalGo},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing manager: %v", err)
	}

	if _, err := manager.Resolve(domain.PaymentProviderMercadoPago); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Lowercase identifiers never match.
	_, err = manager.Resolve(domain.PaymentProvider("mercadopago"))
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider for lowercase identifier, got %v", err)
	}

	_, err = manager.Resolve(domain.PaymentProvider("PAYPAL"))
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerResolveDefault(t *testing.T) {
	manager, err := NewManager([]Provider{
		&fakeProvider{name: domain.PaymentProviderMercadoPago},
		&fakeProvider{name: domain.PaymentProviderSimulation},
	}, WithDefaultProvider(domain.PaymentProviderSimulation))
	if err != nil {
		t.Fatalf("unexpected error constructing manager: %v", err)
	}

	p, err := manager.Resolve("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != domain.PaymentProviderSimulation {
		t.Fatalf("expected default provider, got %q", p.Name())
	}
}

func TestManagerCreateCheckoutSessionStampsProvider(t *testing.T) {
	manager, err := NewManager([]Provider{
		&fakeProvider{name: domain.PaymentProviderDLocalGo},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing manager: %v", err)
	}

	session, err := manager.CreateCheckoutSession(context.Background(), domain.PaymentProviderDLocalGo, CheckoutSessionRequest{
		OrderID:  "ord_1",
		Amount:   150000,
		Currency: "UYU",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.Provider != domain.PaymentProviderDLocalGo {
		t.Fatalf("expected provider stamped on session, got %q", session.Provider)
	}
}

func TestManagerTranslateEventStatus(t *testing.T) {
	manager, err := NewManager([]Provider{
		&fakeProvider{name: domain.PaymentProviderMercadoPago, translate: func(raw string) Status {
			if raw != "approved" {
				t.Fatalf("unexpected raw status %q", raw)
			}
			return StatusApproved
		}},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing manager: %v", err)
	}

	status, err := manager.TranslateEventStatus(domain.PaymentProviderMercadoPago, "approved")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != StatusApproved {
		t.Fatalf("expected approved, got %q", status)
	}
}
