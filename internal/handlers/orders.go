package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/auth"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/platform/pagination"
	"github.com/montebazar/api/internal/services"
)

const (
	defaultOrderPageSize = 20
	maxOrderPageSize     = 100
)

var validOrderStatuses = map[domain.OrderStatus]struct{}{
	domain.OrderStatusPendingPayment: {},
	domain.OrderStatusPaid:           {},
	domain.OrderStatusFailed:         {},
	domain.OrderStatusCancelled:      {},
}

// OrderHandlers exposes the authenticated order history endpoints.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs handlers serving the current user's orders.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes wires the /orders endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderID}", h.getOrder)
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	params, err := pagination.FromRequest(r, pagination.Options{
		DefaultPageSize: defaultOrderPageSize,
		MaxPageSize:     maxOrderPageSize,
	})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	filter := services.OrderListFilter{
		UserID: uid,
		Pagination: services.Pagination{
			PageSize:  params.PageSize,
			PageToken: params.PageToken,
		},
	}

	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		status := domain.OrderStatus(strings.TrimSpace(raw))
		if status == "" {
			continue
		}
		if _, known := validOrderStatuses[status]; !known {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", fmt.Sprintf("unknown order status %q", raw), http.StatusBadRequest))
			return
		}
		filter.Status = append(filter.Status, string(status))
	}

	dateRange, err := parseOrderDateRange(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	filter.DateRange = dateRange

	page, err := h.orders.ListOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, orderListResponse{
		Orders:        items,
		NextPageToken: page.NextPageToken,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	orderID := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if orderID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID, services.OrderReadOptions{
		UserID:       uid,
		IncludeItems: true,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "order operation failed", http.StatusInternalServerError))
	}
}

func parseOrderDateRange(r *http.Request) (domain.RangeQuery[time.Time], error) {
	var rng domain.RangeQuery[time.Time]
	if raw := strings.TrimSpace(r.URL.Query().Get("createdFrom")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rng, fmt.Errorf("invalid createdFrom timestamp %q", raw)
		}
		rng.From = &from
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("createdTo")); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return rng, fmt.Errorf("invalid createdTo timestamp %q", raw)
		}
		rng.To = &to
	}
	if rng.From != nil && rng.To != nil && rng.To.Before(*rng.From) {
		return rng, errors.New("createdTo must not precede createdFrom")
	}
	return rng, nil
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:     strings.TrimSpace(order.ID),
		Status: string(order.Status),
		Totals: orderTotalsPayload{
			Currency: order.Totals.Currency,
			Subtotal: order.Totals.Subtotal,
			Discount: order.Totals.Discount,
			Shipping: order.Totals.Shipping,
			Total:    order.Totals.Total,
		},
		CouponCode:  cloneStringPointer(order.CouponCode),
		AddressID:   order.AddressID,
		Provider:    string(order.Provider),
		RedirectURL: cloneStringPointer(order.RedirectURL),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
	if len(order.Items) > 0 {
		payload.Items = make([]orderItemPayload, 0, len(order.Items))
		for _, item := range order.Items {
			payload.Items = append(payload.Items, orderItemPayload{
				ProductID: item.ProductID,
				Name:      item.Name,
				UnitPrice: item.UnitPrice,
				Currency:  item.Currency,
				Quantity:  item.Quantity,
				LineTotal: domain.MultiplyAmount(item.UnitPrice, item.Quantity),
			})
		}
	}
	return payload
}

type orderListResponse struct {
	Orders        []orderPayload `json:"orders"`
	NextPageToken string         `json:"next_page_token,omitempty"`
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type orderPayload struct {
	ID          string             `json:"id"`
	Status      string             `json:"status"`
	Items       []orderItemPayload `json:"items,omitempty"`
	Totals      orderTotalsPayload `json:"totals"`
	CouponCode  *string            `json:"coupon_code,omitempty"`
	AddressID   string             `json:"address_id"`
	Provider    string             `json:"provider"`
	RedirectURL *string            `json:"redirect_url,omitempty"`
	CreatedAt   string             `json:"created_at,omitempty"`
	UpdatedAt   string             `json:"updated_at,omitempty"`
}

type orderItemPayload struct {
	ProductID string `json:"product_id"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Currency  string `json:"currency"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

type orderTotalsPayload struct {
	Currency string `json:"currency"`
	Subtotal int64  `json:"subtotal"`
	Discount int64  `json:"discount"`
	Shipping int64  `json:"shipping"`
	Total    int64  `json:"total"`
}
