package domain

import (
	"strings"
	"time"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// SortOrder indicates ascending or descending ordering for list queries.
type SortOrder string

const (
	// SortAsc sorts results in ascending order.
	SortAsc SortOrder = "asc"
	// SortDesc sorts results in descending order.
	SortDesc SortOrder = "desc"
)

// RangeQuery represents inclusive range filters for numeric or timestamp fields.
type RangeQuery[T comparable] struct {
	From *T
	To   *T
}

// CursorPage packages list results with an encoded next token.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// Health status values reported per dependency check.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// SystemHealthCheck captures the probe result for a single dependency.
type SystemHealthCheck struct {
	Status    string
	Detail    string
	Error     string
	Latency   time.Duration
	CheckedAt time.Time
}

// SystemHealthReport aggregates dependency status for health endpoints.
type SystemHealthReport struct {
	Status      string
	Checks      map[string]SystemHealthCheck
	Version     string
	CommitSHA   string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}

// Department enumerates the Uruguayan territorial departments a shipment can target.
type Department string

const (
	DepartmentArtigas      Department = "Artigas"
	DepartmentCanelones    Department = "Canelones"
	DepartmentCerroLargo   Department = "Cerro Largo"
	DepartmentColonia      Department = "Colonia"
	DepartmentDurazno      Department = "Durazno"
	DepartmentFlores       Department = "Flores"
	DepartmentFlorida      Department = "Florida"
	DepartmentLavalleja    Department = "Lavalleja"
	DepartmentMaldonado    Department = "Maldonado"
	DepartmentMontevideo   Department = "Montevideo"
	DepartmentPaysandu     Department = "Paysandú"
	DepartmentRioNegro     Department = "Río Negro"
	DepartmentRivera       Department = "Rivera"
	DepartmentRocha        Department = "Rocha"
	DepartmentSalto        Department = "Salto"
	DepartmentSanJose      Department = "San José"
	DepartmentSoriano      Department = "Soriano"
	DepartmentTacuarembo   Department = "Tacuarembó"
	DepartmentTreintaYTres Department = "Treinta y Tres"
)

// Departments lists every supported department in display order.
func Departments() []Department {
	return []Department{
		DepartmentArtigas,
		DepartmentCanelones,
		DepartmentCerroLargo,
		DepartmentColonia,
		DepartmentDurazno,
		DepartmentFlores,
		DepartmentFlorida,
		DepartmentLavalleja,
		DepartmentMaldonado,
		DepartmentMontevideo,
		DepartmentPaysandu,
		DepartmentRioNegro,
		DepartmentRivera,
		DepartmentRocha,
		DepartmentSalto,
		DepartmentSanJose,
		DepartmentSoriano,
		DepartmentTacuarembo,
		DepartmentTreintaYTres,
	}
}

// ParseDepartment resolves user-provided input to a known department, matching
// case-insensitively after trimming. The boolean reports whether the input was valid.
func ParseDepartment(input string) (Department, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	for _, dept := range Departments() {
		if strings.EqualFold(string(dept), trimmed) {
			return dept, true
		}
	}
	return "", false
}

// PaymentProvider identifies one of the supported payment integrations. The set is
// closed: values outside the enum are rejected at parse time rather than passed through.
type PaymentProvider string

const (
	// PaymentProviderMercadoPago routes checkout through Mercado Pago preferences.
	PaymentProviderMercadoPago PaymentProvider = "MERCADOPAGO"
	// PaymentProviderDLocalGo routes checkout through the dLocal Go hosted flow.
	PaymentProviderDLocalGo PaymentProvider = "DLOCAL_GO"
	// PaymentProviderSimulation completes checkout against the in-process simulator.
	PaymentProviderSimulation PaymentProvider = "SIMULATION"
)

// PaymentProviders lists the closed set of supported providers.
func PaymentProviders() []PaymentProvider {
	return []PaymentProvider{
		PaymentProviderMercadoPago,
		PaymentProviderDLocalGo,
		PaymentProviderSimulation,
	}
}

// ParsePaymentProvider validates the exact provider identifier. Matching is
// case-sensitive so stored values never drift from the enum.
func ParsePaymentProvider(input string) (PaymentProvider, bool) {
	switch PaymentProvider(input) {
	case PaymentProviderMercadoPago, PaymentProviderDLocalGo, PaymentProviderSimulation:
		return PaymentProvider(input), true
	default:
		return "", false
	}
}

// CartItem represents a single product line inside a shopping cart. Quantity
// must stay within 1..Stock; removing the line is allowed regardless of stock.
type CartItem struct {
	ID             string
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

// CouponType distinguishes percentage discounts from fixed-amount discounts.
type CouponType string

const (
	// CouponTypePercentage discounts the subtotal by a percentage expressed in basis points.
	CouponTypePercentage CouponType = "percentage"
	// CouponTypeFixed discounts the subtotal by a fixed amount in minor units.
	CouponTypeFixed CouponType = "fixed"
)

// Coupon is the catalog record backing a discount code.
type Coupon struct {
	Code            string
	Type            CouponType
	Value           int64
	Currency        string
	MinimumSubtotal int64
	UsageLimit      int
	UsageCount      int
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AppliedCoupon captures the coupon snapshot stored on a cart once validation succeeds.
type AppliedCoupon struct {
	Code      string
	Type      CouponType
	Value     int64
	AppliedAt time.Time
}

// CouponRejectionReason enumerates the typed outcomes of a failed coupon validation.
type CouponRejectionReason string

const (
	CouponRejectionNotFound          CouponRejectionReason = "NOT_FOUND"
	CouponRejectionExpired           CouponRejectionReason = "EXPIRED"
	CouponRejectionMinimumNotMet     CouponRejectionReason = "MINIMUM_NOT_MET"
	CouponRejectionUsageLimitReached CouponRejectionReason = "USAGE_LIMIT_REACHED"
	CouponRejectionAlreadyUsed       CouponRejectionReason = "ALREADY_USED"
	CouponRejectionGenericError      CouponRejectionReason = "GENERIC_ERROR"
)

// Cart aggregates the items and applied coupon for a single shopper.
type Cart struct {
	ID        string
	UserID    string
	Currency  string
	Items     []CartItem
	Coupon    *AppliedCoupon
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Address stores a delivery destination. Department drives shipping cost resolution.
type Address struct {
	ID         string
	UserID     string
	Recipient  string
	Line1      string
	Line2      *string
	City       string
	Department Department
	PostalCode *string
	Phone      string
	Notes      *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// CheckoutStep identifies one of the three data-entry steps of the checkout flow.
type CheckoutStep string

const (
	// CheckoutStepPersonalData collects the buyer's contact details.
	CheckoutStepPersonalData CheckoutStep = "personal_data"
	// CheckoutStepShippingAddress collects the delivery address.
	CheckoutStepShippingAddress CheckoutStep = "shipping_address"
	// CheckoutStepPaymentMethod collects the payment provider selection.
	CheckoutStepPaymentMethod CheckoutStep = "payment_method"
)

// CheckoutStatus tracks the lifecycle of a checkout draft around submission.
type CheckoutStatus string

const (
	// CheckoutStatusEditing means the shopper is still filling in steps.
	CheckoutStatusEditing CheckoutStatus = "editing"
	// CheckoutStatusSubmitting means an order submission is in flight.
	CheckoutStatusSubmitting CheckoutStatus = "submitting"
	// CheckoutStatusCompleted means the order and payment session were created.
	CheckoutStatusCompleted CheckoutStatus = "completed"
	// CheckoutStatusFailed means the last submission attempt errored out.
	CheckoutStatusFailed CheckoutStatus = "failed"
)

// PersonalData holds the buyer contact details captured in the first checkout step.
type PersonalData struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// ShippingDetails holds the delivery destination captured in the second
// checkout step. The recipient name is derived from the personal data step
// when the order's address is created.
type ShippingDetails struct {
	Line1      string
	Line2      *string
	City       string
	Department Department
	PostalCode *string
	Notes      *string
}

// PaymentSelection holds the provider choice captured in the third checkout step.
type PaymentSelection struct {
	Provider PaymentProvider
}

// CheckoutDraft is the persisted state of an in-progress checkout for one shopper.
type CheckoutDraft struct {
	ID             string
	UserID         string
	Step           CheckoutStep
	Status         CheckoutStatus
	Personal       PersonalData
	Shipping       ShippingDetails
	Payment        PaymentSelection
	FieldErrors    map[string]string
	OrderID        *string
	FailureMessage *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// OrderStatus tracks an order's progress through payment.
type OrderStatus string

const (
	// OrderStatusPendingPayment means the order exists and awaits provider confirmation.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid means the provider confirmed the payment.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed means the provider reported a failed or rejected payment.
	OrderStatusFailed OrderStatus = "failed"
	// OrderStatusCancelled means the shopper or an operator cancelled the order.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderItem is the immutable snapshot of a cart line at order creation time.
type OrderItem struct {
	ProductID string
	Name      string
	UnitPrice int64
	Currency  string
	Quantity  int
}

// OrderTotals is the frozen pricing breakdown stored on an order.
type OrderTotals struct {
	Currency string
	Subtotal int64
	Discount int64
	Shipping int64
	Total    int64
}

// Order is the durable record produced by a successful checkout submission.
type Order struct {
	ID               string
	UserID           string
	Status           OrderStatus
	Items            []OrderItem
	Totals           OrderTotals
	CouponCode       *string
	AddressID        string
	Provider         PaymentProvider
	PaymentSessionID *string
	RedirectURL      *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// PaymentSession records the hosted payment flow created for an order.
type PaymentSession struct {
	ID          string
	OrderID     string
	Provider    PaymentProvider
	RedirectURL string
	Status      string
	CreatedAt   time.Time
}

// StoreSettings is the read model of storefront configuration consumed by pricing.
type StoreSettings struct {
	Currency              string
	FreeShippingThreshold int64
	DefaultShippingCost   int64
	CheckoutEnabled       bool
	DefaultProvider       PaymentProvider
	// EnabledProviders lists the payment methods shoppers may currently
	// select. An empty list leaves every known provider enabled.
	EnabledProviders []PaymentProvider
	UpdatedAt        time.Time
}

// ProviderEnabled reports whether the payment method is currently selectable.
func (s StoreSettings) ProviderEnabled(provider PaymentProvider) bool {
	if len(s.EnabledProviders) == 0 {
		return true
	}
	for _, enabled := range s.EnabledProviders {
		if enabled == provider {
			return true
		}
	}
	return false
}
