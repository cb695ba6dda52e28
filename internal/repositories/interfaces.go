package repositories

import (
	"context"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Carts() CartRepository
	CheckoutDrafts() CheckoutDraftRepository
	Addresses() AddressRepository
	Orders() OrderRepository
	Coupons() CouponRepository
	CouponUsage() CouponUsageRepository
	ShippingRates() ShippingRateRepository
	Settings() SettingsRepository
	PaymentSessions() PaymentSessionRepository
	Health() HealthRepository
	UnitOfWork
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork allows grouping repository operations in a transactional boundary when supported.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CartRepository owns cart persistence keyed by user.
type CartRepository interface {
	UpsertCart(ctx context.Context, cart domain.Cart) (domain.Cart, error)
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
	DeleteCart(ctx context.Context, userID string) error
}

// CheckoutDraftRepository stores the single in-progress checkout per user.
type CheckoutDraftRepository interface {
	Upsert(ctx context.Context, draft domain.CheckoutDraft) (domain.CheckoutDraft, error)
	Get(ctx context.Context, userID string) (domain.CheckoutDraft, error)
	Delete(ctx context.Context, userID string) error
}

// AddressRepository stores shipping addresses per user.
type AddressRepository interface {
	Insert(ctx context.Context, addr domain.Address) (domain.Address, error)
	Get(ctx context.Context, userID string, addressID string) (domain.Address, error)
	List(ctx context.Context, userID string) ([]domain.Address, error)
}

// OrderRepository persists order headers and provides query helpers.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	Update(ctx context.Context, order domain.Order) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
}

// CouponRepository reads coupon definitions and maintains redemption counters.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	IncrementUsage(ctx context.Context, code string, now time.Time) (domain.Coupon, error)
}

// CouponUsageRepository records per-user redemptions to enforce single use.
type CouponUsageRepository interface {
	HasUsed(ctx context.Context, code string, userID string) (bool, error)
	RecordUse(ctx context.Context, code string, userID string, now time.Time) error
}

// ShippingRateRepository reads the per-department shipping cost table.
type ShippingRateRepository interface {
	GetRate(ctx context.Context, department domain.Department) (domain.ShippingRate, error)
	ListRates(ctx context.Context) ([]domain.ShippingRate, error)
}

// SettingsRepository reads the storefront settings document.
type SettingsRepository interface {
	Get(ctx context.Context) (domain.StoreSettings, error)
}

// PaymentSessionRepository persists hosted payment session records per order.
type PaymentSessionRepository interface {
	Insert(ctx context.Context, session domain.PaymentSession) error
	UpdateStatus(ctx context.Context, sessionID string, status string, now time.Time) error
	FindByID(ctx context.Context, sessionID string) (domain.PaymentSession, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// OrderListFilter narrows and pages order queries.
type OrderListFilter struct {
	UserID     string
	Status     []string
	DateRange  domain.RangeQuery[time.Time]
	Pagination domain.Pagination
}
