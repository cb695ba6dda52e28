package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/services"
)

func TestPublicHandlersGetSettings(t *testing.T) {
	updated := time.Date(2026, 1, 15, 8, 0, 0, 0, time.UTC)
	settings := &stubSettingsHandlerService{
		getFunc: func(ctx context.Context) (services.StoreSettings, error) {
			return services.StoreSettings{
				Currency:              "UYU",
				FreeShippingThreshold: 150000,
				DefaultShippingCost:   25000,
				CheckoutEnabled:       true,
				DefaultProvider:       domain.PaymentProviderMercadoPago,
				UpdatedAt:             updated,
			}, nil
		},
	}

	router := newPublicRouter(settings, nil)
	rr := servePublic(router, "/public/settings")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp settingsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Settings.Currency != "UYU" || resp.Settings.FreeShippingThreshold != 150000 {
		t.Fatalf("unexpected settings payload: %#v", resp.Settings)
	}
	if resp.Settings.DefaultProvider != "MERCADOPAGO" {
		t.Fatalf("expected default provider MERCADOPAGO, got %q", resp.Settings.DefaultProvider)
	}
}

func TestPublicHandlersListDepartments(t *testing.T) {
	router := newPublicRouter(nil, nil)
	rr := servePublic(router, "/public/departments")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var resp departmentsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Departments) != 19 {
		t.Fatalf("expected 19 departments, got %d", len(resp.Departments))
	}
	if resp.Departments[0] != "Artigas" {
		t.Fatalf("expected Artigas first, got %q", resp.Departments[0])
	}
}

func TestPublicHandlersShippingCostForDepartment(t *testing.T) {
	shipping := &stubShippingHandlerService{
		quoteFunc: func(ctx context.Context, department services.Department) (services.ShippingQuote, error) {
			if department != domain.DepartmentCanelones {
				t.Fatalf("unexpected department %q", department)
			}
			return services.ShippingQuote{
				Department: department,
				Amount:     19000,
				Currency:   "UYU",
				Source:     domain.ShippingQuoteSourceRemote,
			}, nil
		},
	}

	router := newPublicRouter(nil, shipping)
	rr := servePublic(router, "/public/shipping-costs?department=canelones")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp shippingCostResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cost.Amount != 19000 || resp.Cost.Department != "Canelones" {
		t.Fatalf("unexpected cost payload: %#v", resp.Cost)
	}
	if resp.Cost.Formatted != "$U 190,00" {
		t.Fatalf("unexpected formatted amount %q", resp.Cost.Formatted)
	}
}

func TestPublicHandlersShippingCostUnknownDepartment(t *testing.T) {
	router := newPublicRouter(nil, &stubShippingHandlerService{})
	rr := servePublic(router, "/public/shipping-costs?department=Cordoba")

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "unknown_department" {
		t.Fatalf("expected unknown_department, got %q", code)
	}
}

func TestPublicHandlersShippingCostList(t *testing.T) {
	shipping := &stubShippingHandlerService{
		quoteFunc: func(ctx context.Context, department services.Department) (services.ShippingQuote, error) {
			amount := int64(25000)
			switch department {
			case domain.DepartmentMontevideo:
				amount = 15000
			case domain.DepartmentCanelones:
				amount = 19000
			}
			return services.ShippingQuote{
				Department: department,
				Amount:     amount,
				Currency:   "UYU",
				Source:     domain.ShippingQuoteSourceFallback,
			}, nil
		},
	}

	router := newPublicRouter(nil, shipping)
	rr := servePublic(router, "/public/shipping-costs")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var resp shippingCostListResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Costs) != 19 {
		t.Fatalf("expected 19 costs, got %d", len(resp.Costs))
	}
	byDept := map[string]int64{}
	for _, cost := range resp.Costs {
		byDept[cost.Department] = cost.Amount
	}
	if byDept["Montevideo"] != 15000 || byDept["Canelones"] != 19000 || byDept["Rivera"] != 25000 {
		t.Fatalf("unexpected amounts %#v", byDept)
	}
}

func TestPublicHandlersSettingsUnavailable(t *testing.T) {
	settings := &stubSettingsHandlerService{
		getFunc: func(ctx context.Context) (services.StoreSettings, error) {
			return services.StoreSettings{}, services.ErrSettingsUnavailable
		},
	}

	router := newPublicRouter(settings, nil)
	rr := servePublic(router, "/public/settings")

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func newPublicRouter(settings services.SettingsService, shipping services.ShippingService) chi.Router {
	handler := NewPublicHandlers(settings, shipping)
	router := chi.NewRouter()
	router.Route("/public", handler.Routes)
	return router
}

func servePublic(router chi.Router, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

type stubSettingsHandlerService struct {
	getFunc     func(ctx context.Context) (services.StoreSettings, error)
	refreshFunc func(ctx context.Context) (services.StoreSettings, error)
}

func (s *stubSettingsHandlerService) Get(ctx context.Context) (services.StoreSettings, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx)
	}
	return services.StoreSettings{}, errors.New("not implemented")
}

func (s *stubSettingsHandlerService) Refresh(ctx context.Context) (services.StoreSettings, error) {
	if s.refreshFunc != nil {
		return s.refreshFunc(ctx)
	}
	return services.StoreSettings{}, errors.New("not implemented")
}

type stubShippingHandlerService struct {
	quoteFunc      func(ctx context.Context, department services.Department) (services.ShippingQuote, error)
	prefetchFunc   func(ctx context.Context, department services.Department)
	invalidateFunc func(department services.Department)
}

func (s *stubShippingHandlerService) Quote(ctx context.Context, department services.Department) (services.ShippingQuote, error) {
	if s.quoteFunc != nil {
		return s.quoteFunc(ctx, department)
	}
	return services.ShippingQuote{}, errors.New("not implemented")
}

func (s *stubShippingHandlerService) Prefetch(ctx context.Context, department services.Department) {
	if s.prefetchFunc != nil {
		s.prefetchFunc(ctx, department)
	}
}

func (s *stubShippingHandlerService) Invalidate(department services.Department) {
	if s.invalidateFunc != nil {
		s.invalidateFunc(department)
	}
}
