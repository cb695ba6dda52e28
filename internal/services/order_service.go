package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/payments"
	"github.com/montebazar/api/internal/repositories"
)

var (
	errOrderRepositoryRequired = errors.New("order service: order repository is required")
	errOrderAddressesRequired  = errors.New("order service: address repository is required")
	errOrderGatewayRequired    = errors.New("order service: payment gateway is required")
	errOrderCartsRequired      = errors.New("order service: cart service is required")
	errOrderPricerRequired     = errors.New("order service: pricer is required")
	errOrderClockRequired      = errors.New("order service: clock is required")
)

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderUnavailable indicates a persistence dependency could not be reached.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// ErrOrderNotFound indicates the requested order does not exist or belongs to another user.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderEmptyCart indicates order placement was attempted with no cart lines.
var ErrOrderEmptyCart = errors.New("order service: cart is empty")

// ErrOrderAddress indicates the delivery address could not be created.
var ErrOrderAddress = errors.New("order service: address creation failed")

// ErrOrderPaymentSession indicates the hosted payment session could not be created.
// The order already exists at this point and stays pending; nothing is rolled back.
var ErrOrderPaymentSession = errors.New("order service: payment session failed")

// PaymentGateway is the slice of payments.Manager the order orchestrator needs.
type PaymentGateway interface {
	CreateCheckoutSession(ctx context.Context, provider domain.PaymentProvider, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error)
	TranslateEventStatus(provider domain.PaymentProvider, raw string) (payments.Status, error)
}

// CheckoutReturnURLs are the storefront pages the provider redirects back to.
type CheckoutReturnURLs struct {
	Success string
	Pending string
	Failure string
}

// OrderServiceDeps wires persistence, pricing, and payment dependencies.
type OrderServiceDeps struct {
	Orders      repositories.OrderRepository
	Addresses   repositories.AddressRepository
	Sessions    repositories.PaymentSessionRepository
	Carts       CartService
	Pricer      CartPricer
	Gateway     PaymentGateway
	Publisher   OrderEventPublisher
	ReturnURLs  CheckoutReturnURLs
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type orderService struct {
	orders     repositories.OrderRepository
	addresses  repositories.AddressRepository
	sessions   repositories.PaymentSessionRepository
	carts      CartService
	pricer     CartPricer
	gateway    PaymentGateway
	publisher  OrderEventPublisher
	returnURLs CheckoutReturnURLs
	now        func() time.Time
	newID      func() string
	logger     func(context.Context, string, map[string]any)
}

// NewOrderService constructs the OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errOrderRepositoryRequired
	}
	if deps.Addresses == nil {
		return nil, errOrderAddressesRequired
	}
	if deps.Gateway == nil {
		return nil, errOrderGatewayRequired
	}
	if deps.Carts == nil {
		return nil, errOrderCartsRequired
	}
	if deps.Pricer == nil {
		return nil, errOrderPricerRequired
	}
	if deps.Clock == nil {
		return nil, errOrderClockRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}

	return &orderService{
		orders:     deps.Orders,
		addresses:  deps.Addresses,
		sessions:   deps.Sessions,
		carts:      deps.Carts,
		pricer:     deps.Pricer,
		gateway:    deps.Gateway,
		publisher:  deps.Publisher,
		returnURLs: deps.ReturnURLs,
		now:        func() time.Time { return deps.Clock().UTC() },
		newID:      idGen,
		logger:     logger,
	}, nil
}

// PlaceOrder runs the placement sequence: create the delivery address, then
// the order, then the hosted payment session. The steps run strictly in that
// order and are not atomic: a failure stops the sequence and leaves earlier
// records in place. Every attempt creates fresh records, so retrying after a
// failure produces a second address and a second order.
func (s *orderService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (PlaceOrderResult, error) {
	if s == nil || s.orders == nil {
		return PlaceOrderResult{}, ErrOrderUnavailable
	}

	uid := strings.TrimSpace(cmd.UserID)
	if uid == "" {
		return PlaceOrderResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	provider, ok := domain.ParsePaymentProvider(string(cmd.Provider))
	if !ok {
		return PlaceOrderResult{}, fmt.Errorf("%w: unsupported payment provider %q", ErrOrderInvalidInput, string(cmd.Provider))
	}
	dept, ok := domain.ParseDepartment(string(cmd.Shipping.Department))
	if !ok {
		return PlaceOrderResult{}, fmt.Errorf("%w: unknown department %q", ErrOrderInvalidInput, string(cmd.Shipping.Department))
	}

	cart, err := s.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: load cart: %v", ErrOrderUnavailable, err)
	}
	if len(cart.Items) == 0 {
		return PlaceOrderResult{}, ErrOrderEmptyCart
	}

	totals, err := s.pricer.ComputeTotals(ctx, PriceCartCommand{
		Currency:   cart.Currency,
		Items:      cart.Items,
		Coupon:     cart.Coupon,
		Department: &dept,
	})
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: price cart: %v", ErrOrderUnavailable, err)
	}

	now := s.now()
	address := domain.Address{
		ID:         "adr_" + s.newID(),
		UserID:     uid,
		Recipient:  strings.TrimSpace(cmd.Personal.FirstName + " " + cmd.Personal.LastName),
		Line1:      cmd.Shipping.Line1,
		Line2:      cmd.Shipping.Line2,
		City:       cmd.Shipping.City,
		Department: dept,
		PostalCode: cmd.Shipping.PostalCode,
		Phone:      cmd.Personal.Phone,
		Notes:      cmd.Shipping.Notes,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	address, err = s.addresses.Insert(ctx, address)
	if err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrOrderAddress, err)
	}

	order := domain.Order{
		ID:     "ord_" + s.newID(),
		UserID: uid,
		Status: domain.OrderStatusPendingPayment,
		Items:  orderItemsFromCart(cart),
		Totals: domain.OrderTotals{
			Currency: totals.Currency,
			Subtotal: totals.Subtotal,
			Discount: totals.Discount,
			Shipping: totals.Shipping,
			Total:    totals.Total,
		},
		CouponCode: totals.CouponCode,
		AddressID:  address.ID,
		Provider:   provider,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return PlaceOrderResult{}, fmt.Errorf("%w: insert order: %v", ErrOrderUnavailable, err)
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, provider, payments.CheckoutSessionRequest{
		OrderID:       order.ID,
		Amount:        order.Totals.Total,
		Currency:      order.Totals.Currency,
		CustomerEmail: cmd.Personal.Email,
		SuccessURL:    s.returnURLs.Success,
		PendingURL:    s.returnURLs.Pending,
		FailureURL:    s.returnURLs.Failure,
		Items:         checkoutItemsFromOrder(order),
		Metadata:      map[string]string{"orderId": order.ID},
	})
	if err != nil {
		s.logger(ctx, "order.payment_session_failed", map[string]any{
			"orderId":  order.ID,
			"provider": string(provider),
			"error":    err.Error(),
		})
		return PlaceOrderResult{}, fmt.Errorf("%w: %v", ErrOrderPaymentSession, err)
	}

	record := domain.PaymentSession{
		ID:          session.ID,
		OrderID:     order.ID,
		Provider:    provider,
		RedirectURL: session.RedirectURL,
		Status:      string(payments.StatusPending),
		CreatedAt:   now,
	}
	if s.sessions != nil {
		if err := s.sessions.Insert(ctx, record); err != nil {
			s.logger(ctx, "order.session_record_failed", map[string]any{
				"orderId":   order.ID,
				"sessionId": session.ID,
				"error":     err.Error(),
			})
		}
	}

	sessionID := session.ID
	redirect := session.RedirectURL
	order.PaymentSessionID = &sessionID
	order.RedirectURL = &redirect
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		s.logger(ctx, "order.session_link_failed", map[string]any{
			"orderId": order.ID,
			"error":   err.Error(),
		})
	}

	s.publishEvent(ctx, order, "order.placed")
	s.logger(ctx, "order.placed", map[string]any{
		"orderId":  order.ID,
		"userId":   uid,
		"provider": string(provider),
		"total":    order.Totals.Total,
	})
	return PlaceOrderResult{
		Order:       order,
		Address:     address,
		Session:     record,
		RedirectURL: session.RedirectURL,
	}, nil
}

// ListOrders pages the caller's order history, newest first.
func (s *orderService) ListOrders(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	if s == nil || s.orders == nil {
		return domain.CursorPage[Order]{}, ErrOrderUnavailable
	}
	if strings.TrimSpace(filter.UserID) == "" {
		return domain.CursorPage[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	page, err := s.orders.List(ctx, repositories.OrderListFilter{
		UserID:     filter.UserID,
		Status:     filter.Status,
		DateRange:  filter.DateRange,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.CursorPage[Order]{}, s.translateRepoError(err)
	}
	return page, nil
}

// GetOrder loads an order, enforcing ownership when a user id is supplied.
func (s *orderService) GetOrder(ctx context.Context, orderID string, opts OrderReadOptions) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}

	order, err := s.orders.FindByID(ctx, id)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if uid := strings.TrimSpace(opts.UserID); uid != "" && order.UserID != uid {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, id)
	}
	if !opts.IncludeItems {
		order.Items = nil
	}
	return order, nil
}

// RecordPaymentEvent applies a provider notification to the referenced order.
// Events for orders already in the target state are ignored.
func (s *orderService) RecordPaymentEvent(ctx context.Context, cmd PaymentEventCommand) (Order, error) {
	if s == nil || s.orders == nil {
		return Order{}, ErrOrderUnavailable
	}

	provider, ok := domain.ParsePaymentProvider(string(cmd.Provider))
	if !ok {
		return Order{}, fmt.Errorf("%w: unsupported payment provider %q", ErrOrderInvalidInput, string(cmd.Provider))
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" && s.sessions != nil && strings.TrimSpace(cmd.SessionID) != "" {
		session, err := s.sessions.FindByID(ctx, strings.TrimSpace(cmd.SessionID))
		if err != nil {
			return Order{}, s.translateRepoError(err)
		}
		orderID = session.OrderID
	}
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order reference is required", ErrOrderInvalidInput)
	}

	status, err := s.gateway.TranslateEventStatus(provider, cmd.Status)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}

	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.translateRepoError(err)
	}
	if order.Provider != provider {
		return Order{}, fmt.Errorf("%w: provider mismatch for order %s", ErrOrderInvalidInput, orderID)
	}

	next := orderStatusForPayment(status)
	if next == "" || order.Status == next {
		return order, nil
	}

	order.Status = next
	order.UpdatedAt = s.now()
	if err := s.orders.Update(ctx, order); err != nil {
		return Order{}, s.translateRepoError(err)
	}

	if s.sessions != nil && strings.TrimSpace(cmd.SessionID) != "" {
		if err := s.sessions.UpdateStatus(ctx, strings.TrimSpace(cmd.SessionID), string(status), s.now()); err != nil {
			s.logger(ctx, "order.session_status_failed", map[string]any{
				"sessionId": cmd.SessionID,
				"error":     err.Error(),
			})
		}
	}

	s.publishEvent(ctx, order, "order.payment_"+string(status))
	s.logger(ctx, "order.payment_event", map[string]any{
		"orderId":  order.ID,
		"provider": string(provider),
		"status":   string(status),
	})
	return order, nil
}

func (s *orderService) publishEvent(ctx context.Context, order Order, event string) {
	if s.publisher == nil {
		return
	}
	_, err := s.publisher.PublishOrderEvent(ctx, OrderEventMessage{
		EventID:    "evt_" + s.newID(),
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Provider:   string(order.Provider),
		TotalMinor: order.Totals.Total,
		Currency:   order.Totals.Currency,
		OccurredAt: s.now(),
		Metadata:   map[string]any{"event": event},
	})
	if err != nil {
		s.logger(ctx, "order.event_publish_failed", map[string]any{
			"orderId": order.ID,
			"event":   event,
			"error":   err.Error(),
		})
	}
}

func (s *orderService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
	default:
		return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
	}
}

func orderItemsFromCart(cart Cart) []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
			Quantity:  item.Quantity,
		})
	}
	return items
}

func checkoutItemsFromOrder(order Order) []payments.CheckoutLineItem {
	items := make([]payments.CheckoutLineItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, payments.CheckoutLineItem{
			ProductID: item.ProductID,
			Title:     item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Currency:  item.Currency,
		})
	}
	return items
}

func orderStatusForPayment(status payments.Status) domain.OrderStatus {
	switch status {
	case payments.StatusApproved:
		return domain.OrderStatusPaid
	case payments.StatusRejected:
		return domain.OrderStatusFailed
	case payments.StatusCancelled:
		return domain.OrderStatusCancelled
	default:
		return ""
	}
}
