package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

const (
	maxWebhookBodySize   = 256 * 1024
	webhookBurstDefault  = 60
	webhookBurstInterval = time.Minute
)

// WebhookHandlers ingests payment provider notifications. Signature
// verification runs in the webhook middleware chain before these handlers.
type WebhookHandlers struct {
	orders  services.OrderService
	limiter rateLimiter
}

// WebhookOption customises webhook handler behaviour.
type WebhookOption func(*WebhookHandlers)

// WithWebhookBurst overrides the per-provider events accepted per minute.
func WithWebhookBurst(perMinute int) WebhookOption {
	return func(h *WebhookHandlers) {
		if perMinute > 0 {
			h.limiter = newSimpleRateLimiter(perMinute, webhookBurstInterval, time.Now)
		}
	}
}

// NewWebhookHandlers constructs handlers for provider callbacks.
func NewWebhookHandlers(orders services.OrderService, opts ...WebhookOption) *WebhookHandlers {
	handlers := &WebhookHandlers{
		orders:  orders,
		limiter: newSimpleRateLimiter(webhookBurstDefault, webhookBurstInterval, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Routes wires the /webhooks endpoints onto the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/payments/{provider}", h.paymentEvent)
}

func (h *WebhookHandlers) paymentEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	// Provider identifiers are matched exactly; "mercadopago" is not a route.
	rawProvider := chi.URLParam(r, "provider")
	provider, valid := domain.ParsePaymentProvider(rawProvider)
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_provider", fmt.Sprintf("unknown payment provider %q", rawProvider), http.StatusNotFound))
		return
	}

	if h.limiter != nil && !h.limiter.Allow(string(provider)) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many events; retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var event paymentEventRequest
	if err := json.Unmarshal(body, &event); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	var raw map[string]any
	_ = json.Unmarshal(body, &raw)

	order, err := h.orders.RecordPaymentEvent(ctx, services.PaymentEventCommand{
		Provider:  provider,
		SessionID: strings.TrimSpace(event.SessionID),
		OrderID:   strings.TrimSpace(event.orderReference()),
		Status:    event.Status,
		EventID:   strings.TrimSpace(event.EventID),
		Raw:       raw,
	})
	if err != nil {
		h.writeWebhookError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentEventResponse{
		Received:    true,
		OrderID:     order.ID,
		OrderStatus: string(order.Status),
	})
}

func (h *WebhookHandlers) writeWebhookError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "referenced order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "payment event processing failed", http.StatusInternalServerError))
	}
}

// paymentEventRequest tolerates the field names the supported providers use
// for the same concepts.
type paymentEventRequest struct {
	EventID           string `json:"event_id"`
	SessionID         string `json:"session_id"`
	OrderID           string `json:"order_id"`
	ExternalReference string `json:"external_reference"`
	Status            string `json:"status"`
}

func (e paymentEventRequest) orderReference() string {
	if strings.TrimSpace(e.OrderID) != "" {
		return e.OrderID
	}
	return e.ExternalReference
}

type paymentEventResponse struct {
	Received    bool   `json:"received"`
	OrderID     string `json:"order_id,omitempty"`
	OrderStatus string `json:"order_status,omitempty"`
}
