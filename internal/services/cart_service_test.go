package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

func strPtr(v string) *string {
	return &v
}

func TestCartServiceGetOrCreateCartReturnsExisting(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if userID != "user-123" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return domain.Cart{
				ID:       "crt_existing",
				UserID:   "user-123",
				Currency: "UYU",
				Items: []domain.CartItem{
					{ProductID: "prod-1", Name: "Yerba 1kg", UnitPrice: 50000, Quantity: 2},
				},
				UpdatedAt: now.Add(-time.Hour),
			}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetOrCreateCart(context.Background(), " user-123 ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.ID != "crt_existing" {
		t.Fatalf("expected existing cart, got %q", cart.ID)
	}
}

func TestCartServiceGetOrCreateCartLazyCreates(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var upserted domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{}, &repositoryErrorStub{notFound: true}
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			upserted = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository:  repo,
		Clock:       func() time.Time { return now },
		IDGenerator: func() string { return "NEW" },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.GetOrCreateCart(context.Background(), "guest-5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if upserted.ID != "crt_NEW" {
		t.Fatalf("expected generated cart id crt_NEW, got %q", upserted.ID)
	}
	if cart.UserID != "guest-5" {
		t.Fatalf("expected cart owner guest-5, got %q", cart.UserID)
	}
	if cart.Currency != domain.CurrencyUYU {
		t.Fatalf("expected default currency UYU, got %q", cart.Currency)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty items")
	}
}

func TestCartServiceGetOrCreateCartInvalidUser(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Repository: &stubCartRepository{},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.GetOrCreateCart(context.Background(), "  ")
	if !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}

func TestCartServiceAddOrUpdateItemReplacesQuantity(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Items: []domain.CartItem{
					{ProductID: "prod-1", Name: "Yerba 1kg", UnitPrice: 50000, Quantity: 1},
					{ProductID: "prod-2", Name: "Mate", UnitPrice: 80000, Quantity: 1},
				},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		Name:      "Yerba 1kg",
		UnitPrice: 50000,
		Quantity:  4,
		Stock:     10,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(cart.Items))
	}
	if saved.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity replaced to 4, got %d", saved.Items[0].Quantity)
	}
	if !saved.UpdatedAt.Equal(now) {
		t.Fatalf("expected updated at set to clock, got %v", saved.UpdatedAt)
	}
}

func TestCartServiceAddOrUpdateItemRejectsBadQuantity(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Repository: &stubCartRepository{},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	for _, qty := range []int{0, -1, 100} {
		_, err := service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
			UserID:    "user-1",
			ProductID: "prod-1",
			UnitPrice: 100,
			Quantity:  qty,
			Stock:     200,
		})
		if !errors.Is(err, ErrCartInvalidInput) {
			t.Fatalf("expected ErrCartInvalidInput for quantity %d, got %v", qty, err)
		}
	}
}

func TestCartServiceAddItemRejectsQuantityAboveStock(t *testing.T) {
	service, err := NewCartService(CartServiceDeps{
		Repository: &stubCartRepository{},
		Clock:      time.Now,
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		UnitPrice: 100,
		Quantity:  3,
		Stock:     2,
	})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected ErrCartInsufficientStock, got %v", err)
	}

	// An out-of-stock product cannot be added at all.
	_, err = service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID:    "user-1",
		ProductID: "prod-1",
		UnitPrice: 100,
		Quantity:  1,
		Stock:     0,
	})
	if !errors.Is(err, ErrCartInsufficientStock) {
		t.Fatalf("expected ErrCartInsufficientStock for zero stock, got %v", err)
	}
}

func TestCartServiceRemoveItemIgnoresStock(t *testing.T) {
	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Items: []domain.CartItem{
					{ID: "itm_1", ProductID: "prod-1", UnitPrice: 100, Quantity: 5, Stock: 0},
				},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	// The stored line exceeds its stock, yet removal always succeeds.
	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 0 || len(saved.Items) != 0 {
		t.Fatalf("expected line removed, got %d items", len(cart.Items))
	}
}

func TestCartServiceAddItemKeepsVariantLinesSeparate(t *testing.T) {
	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			if saved.ID != "" {
				return saved, nil
			}
			return domain.Cart{ID: "crt_1", UserID: userID, Currency: "UYU"}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	red := "var-red"
	blue := "var-blue"
	if _, err := service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID: "user-1", ProductID: "prod-1", VariantID: &red, UnitPrice: 100, Quantity: 1, Stock: 5,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cart, err := service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID: "user-1", ProductID: "prod-1", VariantID: &blue, UnitPrice: 100, Quantity: 2, Stock: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 2 {
		t.Fatalf("expected two variant lines, got %d", len(cart.Items))
	}
	if cart.Items[0].ID == "" || cart.Items[0].ID == cart.Items[1].ID {
		t.Fatalf("expected distinct line ids, got %q and %q", cart.Items[0].ID, cart.Items[1].ID)
	}

	// Same variant replaces the line and keeps its id.
	replaced, err := service.AddOrUpdateItem(context.Background(), UpsertCartItemCommand{
		UserID: "user-1", ProductID: "prod-1", VariantID: &red, UnitPrice: 100, Quantity: 4, Stock: 5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(replaced.Items) != 2 {
		t.Fatalf("expected two lines after replace, got %d", len(replaced.Items))
	}
	if replaced.Items[0].ID != cart.Items[0].ID || replaced.Items[0].Quantity != 4 {
		t.Fatalf("expected red line replaced in place, got %#v", replaced.Items[0])
	}
}

func TestCartServiceRemoveItemAbsentIsNoOp(t *testing.T) {
	upserts := 0
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Items:    []domain.CartItem{{ProductID: "prod-1", UnitPrice: 100, Quantity: 1}},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			upserts++
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.RemoveItem(context.Background(), RemoveCartItemCommand{UserID: "user-1", ProductID: "prod-9"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected untouched cart, got %d items", len(cart.Items))
	}
	if upserts != 0 {
		t.Fatalf("expected no write for absent line, got %d", upserts)
	}
}

func TestCartServiceApplyCouponReplacesPrevious(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Items:    []domain.CartItem{{ProductID: "prod-1", UnitPrice: 100000, Quantity: 1}},
				Coupon: &domain.AppliedCoupon{
					Code:  "VIEJO",
					Type:  domain.CouponTypePercentage,
					Value: 500,
				},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}
	coupons := &stubCouponService{
		validateFunc: func(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
			if cmd.Subtotal != 100000 {
				t.Fatalf("expected subtotal 100000, got %d", cmd.Subtotal)
			}
			coupon := domain.Coupon{Code: "DESC10", Type: domain.CouponTypePercentage, Value: 1000}
			return CouponValidationResult{Valid: true, Coupon: &coupon, Discount: 10000}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{
		Repository: repo,
		Coupons:    coupons,
		Clock:      func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.ApplyCoupon(context.Background(), ApplyCouponCommand{UserID: "user-1", Code: "DESC10"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Coupon == nil || cart.Coupon.Code != "DESC10" {
		t.Fatalf("expected new coupon applied, got %+v", cart.Coupon)
	}
	if saved.Coupon.Code != "DESC10" {
		t.Fatalf("expected old coupon replaced in the same write, got %q", saved.Coupon.Code)
	}
}

func TestCartServiceApplyCouponRejection(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{ID: "crt_1", UserID: userID, Currency: "UYU"}, nil
		},
	}
	coupons := &stubCouponService{
		validateFunc: func(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
			return CouponValidationResult{
				Valid:   false,
				Reason:  domain.CouponRejectionExpired,
				Message: "el cupón está vencido",
			}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Coupons: coupons, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	_, err = service.ApplyCoupon(context.Background(), ApplyCouponCommand{UserID: "user-1", Code: "VIEJO"})
	if !errors.Is(err, ErrCartCouponRejected) {
		t.Fatalf("expected ErrCartCouponRejected, got %v", err)
	}
	var rejection *CouponRejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected CouponRejectionError, got %T", err)
	}
	if rejection.Reason != domain.CouponRejectionExpired {
		t.Fatalf("expected EXPIRED, got %q", rejection.Reason)
	}
}

func TestCartServiceRemoveCoupon(t *testing.T) {
	var saved domain.Cart
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Coupon:   &domain.AppliedCoupon{Code: "DESC10"},
			}, nil
		},
		upsertFunc: func(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
			saved = cart
			return cart, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	cart, err := service.RemoveCoupon(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cart.Coupon != nil || saved.Coupon != nil {
		t.Fatalf("expected coupon removed")
	}
}

func TestCartServiceTotalsDelegatesToPricer(t *testing.T) {
	repo := &stubCartRepository{
		getFunc: func(ctx context.Context, userID string) (domain.Cart, error) {
			return domain.Cart{
				ID:       "crt_1",
				UserID:   userID,
				Currency: "UYU",
				Items:    []domain.CartItem{{ProductID: "prod-1", UnitPrice: 100000, Quantity: 2}},
				Coupon:   &domain.AppliedCoupon{Code: "DESC10", Type: domain.CouponTypePercentage, Value: 1000},
			}, nil
		},
	}
	pricer := &stubCartPricer{
		computeFunc: func(ctx context.Context, cmd PriceCartCommand) (CartTotals, error) {
			if len(cmd.Items) != 1 || cmd.Coupon == nil {
				t.Fatalf("expected cart lines and coupon forwarded")
			}
			if cmd.Department == nil || *cmd.Department != domain.DepartmentSalto {
				t.Fatalf("expected department forwarded")
			}
			return CartTotals{Currency: "UYU", Subtotal: 200000, Discount: 20000, Shipping: 18000, Total: 198000}, nil
		},
	}

	service, err := NewCartService(CartServiceDeps{Repository: repo, Pricer: pricer, Clock: time.Now})
	if err != nil {
		t.Fatalf("unexpected error constructing cart service: %v", err)
	}

	totals, err := service.Totals(context.Background(), CartTotalsCommand{
		UserID:     "user-1",
		Department: deptPtr(domain.DepartmentSalto),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if totals.Total != 198000 {
		t.Fatalf("expected total 198000, got %d", totals.Total)
	}
}

type stubCartRepository struct {
	getFunc    func(ctx context.Context, userID string) (domain.Cart, error)
	upsertFunc func(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	deleteFunc func(ctx context.Context, userID string) error
}

func (s *stubCartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return domain.Cart{}, errors.New("not implemented")
}

func (s *stubCartRepository) UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error) {
	if s.upsertFunc != nil {
		return s.upsertFunc(ctx, cart)
	}
	return cart, nil
}

func (s *stubCartRepository) DeleteCart(ctx context.Context, userID string) error {
	if s.deleteFunc != nil {
		return s.deleteFunc(ctx, userID)
	}
	return nil
}

type stubCartPricer struct {
	computeFunc func(ctx context.Context, cmd PriceCartCommand) (CartTotals, error)
}

func (s *stubCartPricer) ComputeTotals(ctx context.Context, cmd PriceCartCommand) (CartTotals, error) {
	if s.computeFunc != nil {
		return s.computeFunc(ctx, cmd)
	}
	return CartTotals{}, nil
}

type stubCouponService struct {
	validateFunc func(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error)
	redeemFunc   func(ctx context.Context, cmd RedeemCouponCommand) error
}

func (s *stubCouponService) Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error) {
	if s.validateFunc != nil {
		return s.validateFunc(ctx, cmd)
	}
	return CouponValidationResult{}, errors.New("not implemented")
}

func (s *stubCouponService) Redeem(ctx context.Context, cmd RedeemCouponCommand) error {
	if s.redeemFunc != nil {
		return s.redeemFunc(ctx, cmd)
	}
	return nil
}

type repositoryErrorStub struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *repositoryErrorStub) Error() string {
	return "repository error"
}

func (e *repositoryErrorStub) IsNotFound() bool {
	return e.notFound
}

func (e *repositoryErrorStub) IsConflict() bool {
	return e.conflict
}

func (e *repositoryErrorStub) IsUnavailable() bool {
	return e.unavailable
}
