package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

const maxCartItemQuantity = 99

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to missing dependencies or backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartInsufficientStock indicates the requested quantity exceeds the
// product's available stock.
var ErrCartInsufficientStock = errors.New("cart service: insufficient stock")

// ErrCartCouponRejected indicates the coupon failed validation; the wrapped
// CouponRejectionError carries the typed reason.
var ErrCartCouponRejected = errors.New("cart service: coupon rejected")

// CouponRejectionError surfaces the typed rejection when applying a coupon fails.
type CouponRejectionError struct {
	Reason  domain.CouponRejectionReason
	Message string
}

// Error implements the error interface.
func (e *CouponRejectionError) Error() string {
	return fmt.Sprintf("%v: %s", ErrCartCouponRejected, e.Reason)
}

// Unwrap lets callers match ErrCartCouponRejected with errors.Is.
func (e *CouponRejectionError) Unwrap() error {
	return ErrCartCouponRejected
}

// CartServiceDeps wires the repository, pricing, and coupon dependencies for cart operations.
type CartServiceDeps struct {
	Repository      repositories.CartRepository
	Pricer          CartPricer
	Coupons         CouponService
	Clock           func() time.Time
	DefaultCurrency string
	Logger          func(context.Context, string, map[string]any)
	IDGenerator     func() string
}

type cartService struct {
	repo     repositories.CartRepository
	pricer   CartPricer
	coupons  CouponService
	newID    func() string
	now      func() time.Time
	currency string
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	defaultCurrency := strings.ToUpper(strings.TrimSpace(deps.DefaultCurrency))
	if defaultCurrency == "" {
		defaultCurrency = domain.CurrencyUYU
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &cartService{
		repo:     deps.Repository,
		pricer:   deps.Pricer,
		coupons:  deps.Coupons,
		newID:    idGen,
		now:      func() time.Time { return deps.Clock().UTC() },
		currency: defaultCurrency,
		logger:   logger,
	}, nil
}

// GetOrCreateCart loads the active cart for the user, creating a new cart when absent.
func (s *cartService) GetOrCreateCart(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	cart, err := s.repo.GetCart(ctx, uid)
	if err != nil {
		if !isRepoNotFound(err) {
			return Cart{}, s.translateRepoError(err)
		}
		saved, err := s.repo.UpsertCart(ctx, s.newCart(uid))
		if err != nil {
			return Cart{}, s.translateRepoError(err)
		}
		cart = saved
	}
	return cart, nil
}

// AddOrUpdateItem inserts the product line or replaces its quantity when the
// product/variant pair is already present. The quantity must stay within the
// line's available stock; removal has no such constraint.
func (s *cartService) AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity <= 0 || cmd.Quantity > maxCartItemQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxCartItemQuantity)
	}
	if cmd.Stock < 0 {
		return Cart{}, fmt.Errorf("%w: stock must not be negative", ErrCartInvalidInput)
	}
	if cmd.Quantity > cmd.Stock {
		return Cart{}, fmt.Errorf("%w: quantity %d exceeds available stock %d", ErrCartInsufficientStock, cmd.Quantity, cmd.Stock)
	}
	if cmd.UnitPrice < 0 {
		return Cart{}, fmt.Errorf("%w: unit price must not be negative", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = cart.Currency
	}
	if !strings.EqualFold(currency, cart.Currency) {
		return Cart{}, fmt.Errorf("%w: currency %s does not match cart currency %s", ErrCartInvalidInput, currency, cart.Currency)
	}

	line := domain.CartItem{
		ProductID:      productID,
		VariantID:      cmd.VariantID,
		Name:           strings.TrimSpace(cmd.Name),
		Slug:           strings.TrimSpace(cmd.Slug),
		UnitPrice:      cmd.UnitPrice,
		CompareAtPrice: cmd.CompareAtPrice,
		Currency:       currency,
		Quantity:       cmd.Quantity,
		Stock:          cmd.Stock,
		ImageURL:       cmd.ImageURL,
	}

	replaced := false
	for i, item := range cart.Items {
		if item.ProductID == productID && sameVariant(item.VariantID, cmd.VariantID) {
			line.ID = item.ID
			cart.Items[i] = line
			replaced = true
			break
		}
	}
	if !replaced {
		line.ID = "itm_" + s.newID()
		cart.Items = append(cart.Items, line)
	}

	return s.save(ctx, cart)
}

// RemoveItem drops the product line from the cart. Removing an absent line is a no-op.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return Cart{}, fmt.Errorf("%w: product id is required", ErrCartInvalidInput)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	filtered := cart.Items[:0]
	removed := false
	for _, item := range cart.Items {
		if item.ProductID == productID {
			removed = true
			continue
		}
		filtered = append(filtered, item)
	}
	if !removed {
		return cart, nil
	}
	cart.Items = filtered

	return s.save(ctx, cart)
}

// ApplyCoupon validates the code and attaches the snapshot to the cart. A
// previously applied coupon is replaced in the same write, never left behind
// alongside the new one. Rejections surface as CouponRejectionError.
func (s *cartService) ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}
	if s.coupons == nil {
		return Cart{}, fmt.Errorf("%w: coupon validation is not configured", ErrCartUnavailable)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return Cart{}, err
	}

	subtotal := cartSubtotal(cart)
	result, err := s.coupons.Validate(ctx, ValidateCouponCommand{
		UserID:   cart.UserID,
		Code:     cmd.Code,
		Subtotal: subtotal,
		Currency: cart.Currency,
	})
	if err != nil {
		if errors.Is(err, ErrCouponInvalidInput) {
			return Cart{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		}
		return Cart{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	if !result.Valid {
		return Cart{}, &CouponRejectionError{Reason: result.Reason, Message: result.Message}
	}

	cart.Coupon = &domain.AppliedCoupon{
		Code:      result.Coupon.Code,
		Type:      result.Coupon.Type,
		Value:     result.Coupon.Value,
		AppliedAt: s.now(),
	}

	saved, err := s.save(ctx, cart)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.coupon_applied", map[string]any{
		"userId": cart.UserID,
		"code":   result.Coupon.Code,
	})
	return saved, nil
}

// RemoveCoupon detaches the applied coupon, if any.
func (s *cartService) RemoveCoupon(ctx context.Context, userID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	cart, err := s.GetOrCreateCart(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	if cart.Coupon == nil {
		return cart, nil
	}
	cart.Coupon = nil

	return s.save(ctx, cart)
}

// ClearCart removes every item and the coupon.
func (s *cartService) ClearCart(ctx context.Context, userID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	uid := strings.TrimSpace(userID)
	if uid == "" {
		return fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}

	if err := s.repo.DeleteCart(ctx, uid); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	return nil
}

// Totals prices the user's current cart, optionally against a department.
func (s *cartService) Totals(ctx context.Context, cmd CartTotalsCommand) (CartTotals, error) {
	if s == nil || s.repo == nil {
		return CartTotals{}, ErrCartUnavailable
	}
	if s.pricer == nil {
		return CartTotals{}, fmt.Errorf("%w: pricing is not configured", ErrCartUnavailable)
	}

	cart, err := s.GetOrCreateCart(ctx, cmd.UserID)
	if err != nil {
		return CartTotals{}, err
	}

	totals, err := s.pricer.ComputeTotals(ctx, PriceCartCommand{
		Currency:   cart.Currency,
		Items:      cart.Items,
		Coupon:     cart.Coupon,
		Department: cmd.Department,
	})
	if err != nil {
		if errors.Is(err, ErrPricingInvalidInput) {
			return CartTotals{}, fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
		}
		return CartTotals{}, fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
	return totals, nil
}

func (s *cartService) newCart(userID string) Cart {
	now := s.now()
	return Cart{
		ID:        "crt_" + s.newID(),
		UserID:    userID,
		Currency:  s.currency,
		Items:     []domain.CartItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (s *cartService) save(ctx context.Context, cart Cart) (Cart, error) {
	cart.UpdatedAt = s.now()
	saved, err := s.repo.UpsertCart(ctx, cart)
	if err != nil {
		return Cart{}, s.translateRepoError(err)
	}
	return saved, nil
}

func (s *cartService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrCartNotFound, err)
	case isRepoConflict(err):
		return fmt.Errorf("%w: %v", ErrCartConflict, err)
	default:
		return fmt.Errorf("%w: %v", ErrCartUnavailable, err)
	}
}

func cartSubtotal(cart Cart) int64 {
	var subtotal int64
	for _, item := range cart.Items {
		subtotal += domain.MultiplyAmount(item.UnitPrice, item.Quantity)
	}
	return subtotal
}

func sameVariant(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
