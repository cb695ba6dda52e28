package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/services"
)

func TestInternalHandlersRefreshSettings(t *testing.T) {
	refreshed := false
	settings := &stubSettingsHandlerService{
		refreshFunc: func(ctx context.Context) (services.StoreSettings, error) {
			refreshed = true
			return services.StoreSettings{
				Currency:              "UYU",
				FreeShippingThreshold: 200000,
				DefaultShippingCost:   25000,
				CheckoutEnabled:       true,
				DefaultProvider:       domain.PaymentProviderDLocalGo,
			}, nil
		},
	}

	handler := NewInternalHandlers(settings)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/settings/refresh", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !refreshed {
		t.Fatalf("expected Refresh to be invoked")
	}

	var resp settingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Settings.FreeShippingThreshold != 200000 {
		t.Fatalf("unexpected settings payload: %#v", resp.Settings)
	}
}

func TestInternalHandlersRefreshUnavailable(t *testing.T) {
	settings := &stubSettingsHandlerService{
		refreshFunc: func(ctx context.Context) (services.StoreSettings, error) {
			return services.StoreSettings{}, services.ErrSettingsUnavailable
		},
	}

	handler := NewInternalHandlers(settings)
	router := chi.NewRouter()
	router.Route("/internal", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/internal/settings/refresh", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
