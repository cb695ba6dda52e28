package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/montebazar/api/internal/platform/firestore"
	"github.com/montebazar/api/internal/repositories"
)

// Registry bundles every Firestore-backed repository behind the shared provider.
type Registry struct {
	provider *pfirestore.Provider

	carts           *CartRepository
	checkoutDrafts  *CheckoutDraftRepository
	addresses       *AddressRepository
	orders          *OrderRepository
	coupons         *CouponRepository
	couponUsage     *CouponUsageRepository
	shippingRates   *ShippingRateRepository
	settings        *SettingsRepository
	paymentSessions *PaymentSessionRepository
	health          repositories.HealthRepository
}

// NewRegistry constructs all repositories on top of one Firestore provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("registry requires firestore provider")
	}

	registry := &Registry{provider: provider}

	var err error
	if registry.carts, err = NewCartRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: cart repository: %w", err)
	}
	if registry.checkoutDrafts, err = NewCheckoutDraftRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: checkout draft repository: %w", err)
	}
	if registry.addresses, err = NewAddressRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: address repository: %w", err)
	}
	if registry.orders, err = NewOrderRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: order repository: %w", err)
	}
	if registry.coupons, err = NewCouponRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: coupon repository: %w", err)
	}
	if registry.couponUsage, err = NewCouponUsageRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: coupon usage repository: %w", err)
	}
	if registry.shippingRates, err = NewShippingRateRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: shipping rate repository: %w", err)
	}
	if registry.settings, err = NewSettingsRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: settings repository: %w", err)
	}
	if registry.paymentSessions, err = NewPaymentSessionRepository(provider); err != nil {
		return nil, fmt.Errorf("registry: payment session repository: %w", err)
	}

	registry.health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Check: firestorePing(provider)},
	})
	if err != nil {
		return nil, fmt.Errorf("registry: health repository: %w", err)
	}

	return registry, nil
}

// Close releases the shared Firestore provider.
func (r *Registry) Close(ctx context.Context) error {
	if r == nil || r.provider == nil {
		return nil
	}
	return r.provider.Close(ctx)
}

// RunInTx groups repository operations in a Firestore transaction.
func (r *Registry) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if r == nil || r.provider == nil {
		return errors.New("registry not initialised")
	}
	if fn == nil {
		return errors.New("registry: transaction function is nil")
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, _ *firestore.Transaction) error {
		return fn(ctx)
	})
}

func (r *Registry) Carts() repositories.CartRepository                     { return r.carts }
func (r *Registry) CheckoutDrafts() repositories.CheckoutDraftRepository   { return r.checkoutDrafts }
func (r *Registry) Addresses() repositories.AddressRepository              { return r.addresses }
func (r *Registry) Orders() repositories.OrderRepository                   { return r.orders }
func (r *Registry) Coupons() repositories.CouponRepository                 { return r.coupons }
func (r *Registry) CouponUsage() repositories.CouponUsageRepository        { return r.couponUsage }
func (r *Registry) ShippingRates() repositories.ShippingRateRepository     { return r.shippingRates }
func (r *Registry) Settings() repositories.SettingsRepository              { return r.settings }
func (r *Registry) PaymentSessions() repositories.PaymentSessionRepository { return r.paymentSessions }
func (r *Registry) Health() repositories.HealthRepository                  { return r.health }

func firestorePing(provider *pfirestore.Provider) func(context.Context) error {
	return func(ctx context.Context) error {
		client, err := provider.Client(ctx)
		if err != nil {
			return err
		}
		iter := client.Collection(settingsCollection).Limit(1).Documents(ctx)
		defer iter.Stop()
		if _, err := iter.GetAll(); err != nil {
			return err
		}
		return nil
	}
}

var _ repositories.Registry = (*Registry)(nil)
