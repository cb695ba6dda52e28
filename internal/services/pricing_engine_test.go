package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

func deptPtr(d domain.Department) *domain.Department {
	return &d
}

func testSettings() StoreSettings {
	return StoreSettings{
		Currency:              domain.CurrencyUYU,
		FreeShippingThreshold: 500000,
		DefaultShippingCost:   20000,
		CheckoutEnabled:       true,
	}
}

func TestPricingEngineComputesSubtotal(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Settings: &stubSettingsService{getFunc: func(ctx context.Context) (StoreSettings, error) {
			return testSettings(), nil
		}},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	totals, err := engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items: []CartItem{
			{ProductID: "prod-1", UnitPrice: 150000, Quantity: 2},
			{ProductID: "prod-2", UnitPrice: 9900, Quantity: 3},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if totals.Subtotal != 329700 {
		t.Fatalf("expected subtotal 329700, got %d", totals.Subtotal)
	}
	if totals.Discount != 0 {
		t.Fatalf("expected no discount, got %d", totals.Discount)
	}
	if totals.Shipping != 0 {
		t.Fatalf("expected no shipping without a department, got %d", totals.Shipping)
	}
	if totals.Total != 329700 {
		t.Fatalf("expected total 329700, got %d", totals.Total)
	}
	if totals.Currency != domain.CurrencyUYU {
		t.Fatalf("expected default currency UYU, got %q", totals.Currency)
	}
}

func TestPricingEngineIsDeterministic(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Shipping: &stubShippingService{quoteFunc: func(ctx context.Context, dept Department) (ShippingQuote, error) {
			return ShippingQuote{Department: dept, Amount: 18000, Currency: domain.CurrencyUYU}, nil
		}},
		Settings: &stubSettingsService{getFunc: func(ctx context.Context) (StoreSettings, error) {
			return testSettings(), nil
		}},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	cmd := PriceCartCommand{
		Items: []CartItem{
			{ProductID: "prod-1", UnitPrice: 120000, Quantity: 1},
		},
		Coupon: &AppliedCoupon{
			Code:  "DESC10",
			Type:  domain.CouponTypePercentage,
			Value: 1000,
		},
		Department: deptPtr(domain.DepartmentSalto),
	}

	first, err := engine.ComputeTotals(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := engine.ComputeTotals(context.Background(), cmd)
	if err != nil {
		t.Fatalf("unexpected error on second run: %v", err)
	}

	if first.Discount != 12000 {
		t.Fatalf("expected 10%% discount 12000, got %d", first.Discount)
	}
	if first.Shipping != 18000 {
		t.Fatalf("expected shipping 18000, got %d", first.Shipping)
	}
	if first.Total != 126000 {
		t.Fatalf("expected total 126000, got %d", first.Total)
	}
	if first.Total != second.Total || first.Subtotal != second.Subtotal || first.Discount != second.Discount || first.Shipping != second.Shipping {
		t.Fatalf("expected identical totals, got %+v then %+v", first, second)
	}
}

func TestPricingEngineFreeShippingThreshold(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	quoteCalls := 0
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Shipping: &stubShippingService{quoteFunc: func(ctx context.Context, dept Department) (ShippingQuote, error) {
			quoteCalls++
			return ShippingQuote{Department: dept, Amount: 25000, Currency: domain.CurrencyUYU}, nil
		}},
		Settings: &stubSettingsService{getFunc: func(ctx context.Context) (StoreSettings, error) {
			return testSettings(), nil
		}},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	// Subtotal exactly at the threshold qualifies.
	totals, err := engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items:      []CartItem{{ProductID: "prod-1", UnitPrice: 250000, Quantity: 2}},
		Department: deptPtr(domain.DepartmentRivera),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Shipping != 0 {
		t.Fatalf("expected free shipping, got %d", totals.Shipping)
	}
	if !totals.FreeShippingApplied {
		t.Fatalf("expected free shipping flag set")
	}
	if quoteCalls != 0 {
		t.Fatalf("expected no quote lookup when shipping is free, got %d", quoteCalls)
	}

	// One unit below the threshold pays shipping.
	totals, err = engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items:      []CartItem{{ProductID: "prod-1", UnitPrice: 499999, Quantity: 1}},
		Department: deptPtr(domain.DepartmentRivera),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Shipping != 25000 {
		t.Fatalf("expected shipping 25000, got %d", totals.Shipping)
	}
	if totals.FreeShippingApplied {
		t.Fatalf("expected free shipping flag unset")
	}
}

func TestPricingEngineFreeShippingIgnoresDiscount(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Shipping: &stubShippingService{quoteFunc: func(ctx context.Context, dept Department) (ShippingQuote, error) {
			return ShippingQuote{Department: dept, Amount: 25000, Currency: domain.CurrencyUYU}, nil
		}},
		Settings: &stubSettingsService{getFunc: func(ctx context.Context) (StoreSettings, error) {
			return testSettings(), nil
		}},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	// Pre-discount subtotal reaches the threshold even though the discounted
	// amount would fall below it.
	totals, err := engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items: []CartItem{{ProductID: "prod-1", UnitPrice: 500000, Quantity: 1}},
		Coupon: &AppliedCoupon{
			Code:  "DESC20",
			Type:  domain.CouponTypePercentage,
			Value: 2000,
		},
		Department: deptPtr(domain.DepartmentColonia),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Shipping != 0 || !totals.FreeShippingApplied {
		t.Fatalf("expected free shipping on pre-discount subtotal, got shipping %d", totals.Shipping)
	}
	if totals.Total != 400000 {
		t.Fatalf("expected total 400000, got %d", totals.Total)
	}
}

func TestPricingEngineTotalNeverNegative(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	totals, err := engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items: []CartItem{{ProductID: "prod-1", UnitPrice: 5000, Quantity: 1}},
		Coupon: &AppliedCoupon{
			Code:  "MENOS100",
			Type:  domain.CouponTypeFixed,
			Value: 1000000,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Total != 0 {
		t.Fatalf("expected total clamped to zero, got %d", totals.Total)
	}
	if totals.Discount != 5000 {
		t.Fatalf("expected discount capped at subtotal 5000, got %d", totals.Discount)
	}
}

func TestPricingEngineRejectsInvalidLines(t *testing.T) {
	engine, err := NewCartPricingEngine(PricingEngineDeps{Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	cases := []struct {
		name  string
		items []CartItem
	}{
		{"missing product id", []CartItem{{ProductID: " ", UnitPrice: 100, Quantity: 1}}},
		{"zero quantity", []CartItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: 0}}},
		{"negative price", []CartItem{{ProductID: "prod-1", UnitPrice: -1, Quantity: 1}}},
		{"currency mismatch", []CartItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: 1, Currency: "USD"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := engine.ComputeTotals(context.Background(), PriceCartCommand{Items: tc.items})
			if !errors.Is(err, ErrPricingInvalidInput) {
				t.Fatalf("expected ErrPricingInvalidInput, got %v", err)
			}
		})
	}
}

func TestPricingEngineUnknownDepartment(t *testing.T) {
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Shipping: &stubShippingService{quoteFunc: func(ctx context.Context, dept Department) (ShippingQuote, error) {
			return ShippingQuote{}, ErrShippingUnknownDepartment
		}},
		Clock: time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	_, err = engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items:      []CartItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: 1}},
		Department: deptPtr(domain.Department("Buenos Aires")),
	})
	if !errors.Is(err, ErrPricingInvalidInput) {
		t.Fatalf("expected ErrPricingInvalidInput for unknown department, got %v", err)
	}
}

func TestPricingEngineShippingFallsBackToDefaultCost(t *testing.T) {
	now := time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC)
	engine, err := NewCartPricingEngine(PricingEngineDeps{
		Shipping: &stubShippingService{quoteFunc: func(ctx context.Context, dept Department) (ShippingQuote, error) {
			return ShippingQuote{}, errors.New("rate store down")
		}},
		Settings: &stubSettingsService{getFunc: func(ctx context.Context) (StoreSettings, error) {
			return testSettings(), nil
		}},
		Clock: func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing pricing engine: %v", err)
	}

	totals, err := engine.ComputeTotals(context.Background(), PriceCartCommand{
		Items:      []CartItem{{ProductID: "prod-1", UnitPrice: 100000, Quantity: 1}},
		Department: deptPtr(domain.DepartmentDurazno),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Shipping != 20000 {
		t.Fatalf("expected default shipping cost 20000, got %d", totals.Shipping)
	}
}

type stubShippingService struct {
	quoteFunc      func(ctx context.Context, department Department) (ShippingQuote, error)
	prefetchFunc   func(ctx context.Context, department Department)
	invalidateFunc func(department Department)
}

func (s *stubShippingService) Quote(ctx context.Context, department Department) (ShippingQuote, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, department)
	}
	return ShippingQuote{}, errors.New("not implemented")
}

func (s *stubShippingService) Prefetch(ctx context.Context, department Department) {
	if s.prefetchFunc != nil {
		s.prefetchFunc(ctx, department)
	}
}

func (s *stubShippingService) Invalidate(department Department) {
	if s.invalidateFunc != nil {
		s.invalidateFunc(department)
	}
}

type stubSettingsService struct {
	getFunc func(ctx context.Context) (StoreSettings, error)
}

func (s *stubSettingsService) Get(ctx context.Context) (StoreSettings, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx)
	}
	return StoreSettings{}, errors.New("not implemented")
}

func (s *stubSettingsService) Refresh(ctx context.Context) (StoreSettings, error) {
	return s.Get(ctx)
}
