package services

import (
	"context"
	"errors"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/repositories"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Pagination         = domain.Pagination
	SortOrder          = domain.SortOrder
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	CartTotals         = domain.CartTotals
	Coupon             = domain.Coupon
	AppliedCoupon      = domain.AppliedCoupon
	Department         = domain.Department
	ShippingQuote      = domain.ShippingQuote
	ShippingRate       = domain.ShippingRate
	Address            = domain.Address
	CheckoutDraft      = domain.CheckoutDraft
	CheckoutStep       = domain.CheckoutStep
	CheckoutStatus     = domain.CheckoutStatus
	PersonalData       = domain.PersonalData
	ShippingDetails    = domain.ShippingDetails
	PaymentSelection   = domain.PaymentSelection
	PaymentProvider    = domain.PaymentProvider
	Order              = domain.Order
	OrderItem          = domain.OrderItem
	OrderTotals        = domain.OrderTotals
	OrderStatus        = domain.OrderStatus
	PaymentSession     = domain.PaymentSession
	StoreSettings      = domain.StoreSettings
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages mutable cart state, item quantities, and the applied coupon.
type CartService interface {
	GetOrCreateCart(ctx context.Context, userID string) (Cart, error)
	AddOrUpdateItem(ctx context.Context, cmd UpsertCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (Cart, error)
	RemoveCoupon(ctx context.Context, userID string) (Cart, error)
	ClearCart(ctx context.Context, userID string) error
	Totals(ctx context.Context, cmd CartTotalsCommand) (CartTotals, error)
}

// CartPricer computes the full pricing breakdown for a set of cart lines.
type CartPricer interface {
	ComputeTotals(ctx context.Context, cmd PriceCartCommand) (CartTotals, error)
}

// ShippingService resolves per-department shipping costs with caching and fallbacks.
type ShippingService interface {
	Quote(ctx context.Context, department Department) (ShippingQuote, error)
	// Prefetch refreshes the cached quote for a department. Stale in-flight
	// refreshes never overwrite a newer one.
	Prefetch(ctx context.Context, department Department)
	Invalidate(department Department)
}

// CouponService validates discount codes against catalog state and usage history.
type CouponService interface {
	Validate(ctx context.Context, cmd ValidateCouponCommand) (CouponValidationResult, error)
	Redeem(ctx context.Context, cmd RedeemCouponCommand) error
}

// CheckoutService drives the three-step checkout flow and its submission lifecycle.
type CheckoutService interface {
	GetOrCreateDraft(ctx context.Context, userID string) (CheckoutDraft, error)
	SubmitPersonalData(ctx context.Context, cmd SubmitPersonalDataCommand) (CheckoutDraft, error)
	SubmitShippingAddress(ctx context.Context, cmd SubmitShippingAddressCommand) (CheckoutDraft, error)
	SubmitPaymentMethod(ctx context.Context, cmd SubmitPaymentMethodCommand) (CheckoutDraft, error)
	Back(ctx context.Context, userID string) (CheckoutDraft, error)
	Submit(ctx context.Context, cmd SubmitCheckoutCommand) (CheckoutResult, error)
	// SubscribeDepartmentChanges registers a listener invoked whenever a draft
	// commits a shipping address with a different department.
	SubscribeDepartmentChanges(listener DepartmentChangeListener)
}

// DepartmentChangeListener observes committed department changes on checkout drafts.
type DepartmentChangeListener func(ctx context.Context, previous *Department, current Department)

// OrderService owns order placement orchestration and order reads.
type OrderService interface {
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error)
	RecordPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (Order, error)
}

// SettingsService exposes the cached storefront settings read model.
type SettingsService interface {
	Get(ctx context.Context) (StoreSettings, error)
	Refresh(ctx context.Context) (StoreSettings, error)
}

// UserProfile carries the stored account details used to prefill a fresh
// checkout draft for a returning shopper.
type UserProfile struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// ProfileLoader resolves the stored profile for an authenticated user. A zero
// profile with a nil error means the account has no usable details.
type ProfileLoader func(ctx context.Context, userID string) (UserProfile, error)

// SystemService aggregates operational health and runtime metadata.
type SystemService interface {
	Health(ctx context.Context) (SystemHealthReport, error)
}

// Command and result DTOs ---------------------------------------------------

// UpsertCartItemCommand adds a product line or replaces its quantity.
type UpsertCartItemCommand struct {
	UserID         string
	ProductID      string
	VariantID      *string
	Name           string
	Slug           string
	UnitPrice      int64
	CompareAtPrice *int64
	Currency       string
	Quantity       int
	Stock          int
	ImageURL       *string
}

// RemoveCartItemCommand drops a product line from the cart.
type RemoveCartItemCommand struct {
	UserID    string
	ProductID string
}

// ApplyCouponCommand validates and attaches a coupon to the cart, replacing any
// previously applied code in the same operation.
type ApplyCouponCommand struct {
	UserID string
	Code   string
}

// CartTotalsCommand prices the user's current cart, optionally against a department.
type CartTotalsCommand struct {
	UserID     string
	Department *Department
}

// PriceCartCommand carries the inputs for a totals computation.
type PriceCartCommand struct {
	Currency   string
	Items      []CartItem
	Coupon     *AppliedCoupon
	Department *Department
}

// ValidateCouponCommand checks a code against the coupon catalog for a user and subtotal.
type ValidateCouponCommand struct {
	UserID   string
	Code     string
	Subtotal int64
	Currency string
}

// CouponValidationResult reports the typed outcome of a coupon validation.
type CouponValidationResult struct {
	Valid    bool
	Reason   domain.CouponRejectionReason
	Message  string
	Coupon   *Coupon
	Discount int64
}

// RedeemCouponCommand consumes one use of a coupon for a user after order placement.
type RedeemCouponCommand struct {
	UserID string
	Code   string
}

// SubmitPersonalDataCommand commits the first checkout step.
type SubmitPersonalDataCommand struct {
	UserID   string
	Personal PersonalData
}

// SubmitShippingAddressCommand commits the second checkout step.
type SubmitShippingAddressCommand struct {
	UserID   string
	Shipping ShippingDetails
}

// SubmitPaymentMethodCommand commits the third checkout step.
type SubmitPaymentMethodCommand struct {
	UserID   string
	Provider string
}

// SubmitCheckoutCommand triggers order placement for a completed draft.
type SubmitCheckoutCommand struct {
	UserID string
}

// CheckoutResult reports the outcome of a checkout submission.
type CheckoutResult struct {
	Draft       CheckoutDraft
	Order       *Order
	RedirectURL string
}

// PlaceOrderCommand carries everything the orchestrator needs to place an order.
type PlaceOrderCommand struct {
	UserID   string
	Personal PersonalData
	Shipping ShippingDetails
	Provider PaymentProvider
}

// PlaceOrderResult returns the created order together with the hosted payment redirect.
type PlaceOrderResult struct {
	Order       Order
	Address     Address
	Session     PaymentSession
	RedirectURL string
}

// OrderReadOptions guards order reads with ownership checks.
type OrderReadOptions struct {
	UserID       string
	IncludeItems bool
}

// OrderListFilter narrows and pages order history queries.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination Pagination
}

// PaymentEventCommand applies a provider webhook notification to an order.
type PaymentEventCommand struct {
	Provider  PaymentProvider
	SessionID string
	OrderID   string
	Status    string
	EventID   string
	Raw       map[string]any
}

// OrderEventPublisher emits order lifecycle events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEventMessage) (string, error)
}

// OrderEventMessage is the payload published when an order changes state.
type OrderEventMessage struct {
	EventID    string         `json:"eventId"`
	OrderID    string         `json:"orderId"`
	UserID     string         `json:"userId"`
	Status     string         `json:"status"`
	Provider   string         `json:"provider,omitempty"`
	TotalMinor int64          `json:"totalMinor"`
	Currency   string         `json:"currency"`
	OccurredAt time.Time      `json:"occurredAt"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Repository error categorisation shared by every service.

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}

func isRepoUnavailable(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsUnavailable()
	}
	return false
}
