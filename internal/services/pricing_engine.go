package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

// ErrPricingInvalidInput indicates the pricing command failed validation.
var ErrPricingInvalidInput = errors.New("pricing engine: invalid input")

// ErrPricingUnavailable indicates a pricing dependency could not be reached.
var ErrPricingUnavailable = errors.New("pricing engine: unavailable")

var errPricingClockRequired = errors.New("pricing engine: clock is required")

// PricingEngineDeps wires the collaborators needed to price a cart.
type PricingEngineDeps struct {
	Shipping        ShippingService
	Settings        SettingsService
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
}

type cartPricingEngine struct {
	shipping ShippingService
	settings SettingsService
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartPricingEngine constructs the CartPricer used by cart and checkout flows.
func NewCartPricingEngine(deps PricingEngineDeps) (CartPricer, error) {
	if deps.Clock == nil {
		return nil, errPricingClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if currency == "" {
		currency = domain.CurrencyUYU
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartPricingEngine{
		shipping: deps.Shipping,
		settings: deps.Settings,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: currency,
		logger:   logger,
	}, nil
}

// ComputeTotals prices the supplied lines deterministically: the same command
// always yields the same totals, and repeated calls never mutate inputs.
func (e *cartPricingEngine) ComputeTotals(ctx context.Context, cmd PriceCartCommand) (CartTotals, error) {
	if e == nil {
		return CartTotals{}, ErrPricingUnavailable
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = e.currency
	}

	subtotal, err := e.subtotal(cmd.Items, currency)
	if err != nil {
		return CartTotals{}, err
	}

	totals := CartTotals{
		Currency: currency,
		Subtotal: subtotal,
	}

	if cmd.Coupon != nil {
		totals.Discount = couponDiscount(*cmd.Coupon, subtotal)
		code := cmd.Coupon.Code
		totals.CouponCode = &code
	}

	shipping, freeApplied, err := e.shippingComponent(ctx, cmd.Department, subtotal)
	if err != nil {
		return CartTotals{}, err
	}
	totals.Shipping = shipping
	totals.FreeShippingApplied = freeApplied

	totals.Total = domain.ClampNonNegative(subtotal - totals.Discount + totals.Shipping)
	return totals, nil
}

func (e *cartPricingEngine) subtotal(items []CartItem, currency string) (int64, error) {
	var subtotal int64
	for _, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return 0, fmt.Errorf("%w: item product id is required", ErrPricingInvalidInput)
		}
		if item.Quantity <= 0 {
			return 0, fmt.Errorf("%w: item %s quantity must be positive", ErrPricingInvalidInput, item.ProductID)
		}
		if item.UnitPrice < 0 {
			return 0, fmt.Errorf("%w: item %s has a negative unit price", ErrPricingInvalidInput, item.ProductID)
		}
		if item.Currency != "" && !strings.EqualFold(item.Currency, currency) {
			return 0, fmt.Errorf("%w: item %s currency %s does not match cart currency %s",
				ErrPricingInvalidInput, item.ProductID, item.Currency, currency)
		}
		subtotal += domain.MultiplyAmount(item.UnitPrice, item.Quantity)
	}
	return subtotal, nil
}

// shippingComponent resolves shipping for the destination department. Free
// shipping applies when the subtotal reaches the configured threshold; without
// a destination the component stays at zero until checkout supplies one.
func (e *cartPricingEngine) shippingComponent(ctx context.Context, department *Department, subtotal int64) (int64, bool, error) {
	if department == nil {
		return 0, false, nil
	}

	settings, ok := e.loadSettings(ctx)
	if ok && settings.FreeShippingThreshold > 0 && subtotal >= settings.FreeShippingThreshold {
		return 0, true, nil
	}

	if e.shipping == nil {
		if ok {
			return settings.DefaultShippingCost, false, nil
		}
		return 0, false, ErrPricingUnavailable
	}

	quote, err := e.shipping.Quote(ctx, *department)
	if err != nil {
		if errors.Is(err, ErrShippingUnknownDepartment) {
			return 0, false, fmt.Errorf("%w: unknown department %q", ErrPricingInvalidInput, string(*department))
		}
		if ok {
			e.logger(ctx, "pricing.shipping_fallback", map[string]any{
				"department": string(*department),
				"error":      err.Error(),
			})
			return settings.DefaultShippingCost, false, nil
		}
		return 0, false, fmt.Errorf("%w: shipping quote: %v", ErrPricingUnavailable, err)
	}
	return quote.Amount, false, nil
}

func (e *cartPricingEngine) loadSettings(ctx context.Context) (StoreSettings, bool) {
	if e.settings == nil {
		return StoreSettings{}, false
	}
	settings, err := e.settings.Get(ctx)
	if err != nil {
		e.logger(ctx, "pricing.settings_unavailable", map[string]any{"error": err.Error()})
		return StoreSettings{}, false
	}
	return settings, true
}

// couponDiscount converts a coupon snapshot into a discount amount. Percentage
// values are basis points (1000 = 10%). The discount never exceeds the subtotal.
func couponDiscount(coupon AppliedCoupon, subtotal int64) int64 {
	var discount int64
	switch coupon.Type {
	case domain.CouponTypePercentage:
		discount = domain.PercentageOf(subtotal, coupon.Value)
	case domain.CouponTypeFixed:
		discount = domain.ClampNonNegative(coupon.Value)
	default:
		return 0
	}
	return domain.MinAmount(discount, subtotal)
}
