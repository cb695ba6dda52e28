package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/services"
)

func TestWebhookHandlersPaymentEvent(t *testing.T) {
	var captured services.PaymentEventCommand
	service := &stubOrderHandlerService{
		recordFunc: func(ctx context.Context, cmd services.PaymentEventCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusPaid}, nil
		},
	}

	router := newWebhookRouter(service)
	body := `{"event_id":"evt-1","session_id":"pref-123","external_reference":"ord_01J2K","status":"approved","extra":"kept"}`
	rr := serveWebhook(router, "/webhooks/payments/MERCADOPAGO", body)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Provider != domain.PaymentProviderMercadoPago {
		t.Fatalf("expected provider MERCADOPAGO, got %q", captured.Provider)
	}
	if captured.OrderID != "ord_01J2K" || captured.SessionID != "pref-123" || captured.EventID != "evt-1" {
		t.Fatalf("unexpected command %#v", captured)
	}
	if captured.Raw["extra"] != "kept" {
		t.Fatalf("expected raw payload retained, got %#v", captured.Raw)
	}

	var resp paymentEventResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Received || resp.OrderStatus != "paid" {
		t.Fatalf("unexpected ack payload: %#v", resp)
	}
}

func TestWebhookHandlersProviderIsCaseSensitive(t *testing.T) {
	router := newWebhookRouter(&stubOrderHandlerService{})
	rr := serveWebhook(router, "/webhooks/payments/mercadopago", `{"status":"approved"}`)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404 for lowercase provider, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "unknown_provider" {
		t.Fatalf("expected unknown_provider, got %q", code)
	}
}

func TestWebhookHandlersOrderIDFallsBackToExplicitField(t *testing.T) {
	var captured services.PaymentEventCommand
	service := &stubOrderHandlerService{
		recordFunc: func(ctx context.Context, cmd services.PaymentEventCommand) (services.Order, error) {
			captured = cmd
			return services.Order{ID: cmd.OrderID, Status: domain.OrderStatusFailed}, nil
		},
	}

	router := newWebhookRouter(service)
	rr := serveWebhook(router, "/webhooks/payments/DLOCAL_GO", `{"order_id":"ord_01J2K","status":"REJECTED"}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.OrderID != "ord_01J2K" || captured.Provider != domain.PaymentProviderDLocalGo {
		t.Fatalf("unexpected command %#v", captured)
	}
}

func TestWebhookHandlersUnknownOrder(t *testing.T) {
	service := &stubOrderHandlerService{
		recordFunc: func(ctx context.Context, cmd services.PaymentEventCommand) (services.Order, error) {
			return services.Order{}, services.ErrOrderNotFound
		},
	}

	router := newWebhookRouter(service)
	rr := serveWebhook(router, "/webhooks/payments/SIMULATION", `{"order_id":"ord_missing","status":"approved"}`)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestWebhookHandlersRejectsEmptyBody(t *testing.T) {
	router := newWebhookRouter(&stubOrderHandlerService{})
	rr := serveWebhook(router, "/webhooks/payments/MERCADOPAGO", "")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestWebhookHandlersBurstLimit(t *testing.T) {
	service := &stubOrderHandlerService{
		recordFunc: func(ctx context.Context, cmd services.PaymentEventCommand) (services.Order, error) {
			return services.Order{ID: "order-1"}, nil
		},
	}

	handler := NewWebhookHandlers(service, WithWebhookBurst(2))
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)

	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = serveWebhook(router, "/webhooks/payments/MERCADOPAGO", `{"status":"approved","order_id":"order-1"}`)
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("expected status 429 after burst limit, got %d", last.Code)
	}
	if code := decodeErrorCode(t, last); code != "rate_limited" {
		t.Fatalf("expected rate_limited, got %q", code)
	}
}

func newWebhookRouter(service services.OrderService) chi.Router {
	handler := NewWebhookHandlers(service)
	router := chi.NewRouter()
	router.Route("/webhooks", handler.Routes)
	return router
}

func serveWebhook(router chi.Router, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}
