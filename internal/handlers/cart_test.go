package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/auth"
	"github.com/montebazar/api/internal/services"
)

func TestCartHandlersGetCartSuccess(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	image := "https://cdn.montebazar.uy/p/mate-imperial.jpg"

	service := &stubCartHandlerService{
		getOrCreateFunc: func(ctx context.Context, userID string) (services.Cart, error) {
			if userID != "user-7" {
				t.Fatalf("unexpected user id %q", userID)
			}
			return services.Cart{
				ID:       "crt_01HYA",
				UserID:   "user-7",
				Currency: "uyu",
				Items: []services.CartItem{
					{
						ProductID: "prod-1",
						Name:      "Mate Imperial",
						UnitPrice: 129900,
						Currency:  "UYU",
						Quantity:  2,
						ImageURL:  &image,
					},
				},
				Coupon: &services.AppliedCoupon{
					Code:      "BIENVENIDA10",
					Type:      domain.CouponTypePercentage,
					Value:     1000,
					AppliedAt: now,
				},
				UpdatedAt: now.Add(2 * time.Minute),
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)

	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if cacheControl := rr.Header().Get("Cache-Control"); !strings.Contains(cacheControl, "no-store") {
		t.Fatalf("expected Cache-Control no-store, got %q", cacheControl)
	}
	if etag := rr.Header().Get("ETag"); etag == "" {
		t.Fatalf("expected ETag header")
	}

	var resp cartResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Cart.ID != "crt_01HYA" {
		t.Fatalf("expected cart id crt_01HYA, got %q", resp.Cart.ID)
	}
	if resp.Cart.Currency != "UYU" {
		t.Fatalf("expected currency UYU, got %q", resp.Cart.Currency)
	}
	if resp.Cart.ItemsCount != 1 || len(resp.Cart.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", resp.Cart.ItemsCount)
	}
	if resp.Cart.Items[0].LineTotal != 259800 {
		t.Fatalf("expected line total 259800, got %d", resp.Cart.Items[0].LineTotal)
	}
	if resp.Cart.Coupon == nil || resp.Cart.Coupon.Code != "BIENVENIDA10" {
		t.Fatalf("expected applied coupon, got %#v", resp.Cart.Coupon)
	}
}

func TestCartHandlersRequiresIdentity(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartHandlerService{})

	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "unauthenticated" {
		t.Fatalf("expected unauthenticated, got %q", code)
	}
}

func TestCartHandlersPutItemForwardsCommand(t *testing.T) {
	var captured services.UpsertCartItemCommand
	service := &stubCartHandlerService{
		addOrUpdateFunc: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			captured = cmd
			return services.Cart{ID: "crt_01HYA", UserID: cmd.UserID, Currency: "UYU"}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := `{"name":"Termo Lumilagro","unit_price":84900,"currency":"UYU","quantity":1,"stock":5,"image_url":"https://cdn.montebazar.uy/p/termo.jpg"}`
	req := httptest.NewRequest(http.MethodPut, "/cart/items/prod-9", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.UserID != "user-7" || captured.ProductID != "prod-9" {
		t.Fatalf("unexpected command identity: %#v", captured)
	}
	if captured.Name != "Termo Lumilagro" || captured.UnitPrice != 84900 || captured.Quantity != 1 {
		t.Fatalf("unexpected command payload: %#v", captured)
	}
	if captured.Stock != 5 {
		t.Fatalf("expected stock forwarded, got %d", captured.Stock)
	}
	if captured.ImageURL == nil || *captured.ImageURL != "https://cdn.montebazar.uy/p/termo.jpg" {
		t.Fatalf("expected image url to be forwarded, got %#v", captured.ImageURL)
	}
}

func TestCartHandlersPutItemInsufficientStock(t *testing.T) {
	service := &stubCartHandlerService{
		addOrUpdateFunc: func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
			return services.Cart{}, fmt.Errorf("%w: quantity 3 exceeds available stock 2", services.ErrCartInsufficientStock)
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	body := `{"name":"Termo Lumilagro","unit_price":84900,"currency":"UYU","quantity":3,"stock":2}`
	req := httptest.NewRequest(http.MethodPut, "/cart/items/prod-9", strings.NewReader(body))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Fatalf("expected status 409, got %d: %s", rr.Code, rr.Body.String())
	}
	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error payload: %v", err)
	}
	if envelope["error"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock code, got %v", envelope["error"])
	}
}

func TestCartHandlersPutItemRejectsInvalidJSON(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartHandlerService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPut, "/cart/items/prod-9", strings.NewReader("{"))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCartHandlersApplyCouponRejectionDetails(t *testing.T) {
	service := &stubCartHandlerService{
		applyCouponFunc: func(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error) {
			return services.Cart{}, &services.CouponRejectionError{
				Reason:  domain.CouponRejectionMinimumNotMet,
				Message: "El cupón requiere una compra mínima de $U 1.500,00",
			}
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodPost, "/cart/coupon", strings.NewReader(`{"code":"VERANO24"}`))
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d: %s", rr.Code, rr.Body.String())
	}

	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	if envelope["error"] != "coupon_rejected" {
		t.Fatalf("expected coupon_rejected, got %#v", envelope["error"])
	}
	if envelope["reason"] != "MINIMUM_NOT_MET" {
		t.Fatalf("expected MINIMUM_NOT_MET reason, got %#v", envelope["reason"])
	}
}

func TestCartHandlersTotalsParsesDepartment(t *testing.T) {
	var captured services.CartTotalsCommand
	coupon := "VERANO24"
	service := &stubCartHandlerService{
		totalsFunc: func(ctx context.Context, cmd services.CartTotalsCommand) (services.CartTotals, error) {
			captured = cmd
			return services.CartTotals{
				Currency:            "UYU",
				Subtotal:            259800,
				Discount:            25980,
				Shipping:            0,
				Total:               233820,
				FreeShippingApplied: true,
				CouponCode:          &coupon,
			}, nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart/totals?department=treinta%20y%20tres", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Department == nil || *captured.Department != domain.DepartmentTreintaYTres {
		t.Fatalf("expected department Treinta y Tres, got %#v", captured.Department)
	}

	var resp totalsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Totals.Total != 233820 || !resp.Totals.FreeShippingApplied {
		t.Fatalf("unexpected totals payload: %#v", resp.Totals)
	}
	if resp.Totals.FormattedTotal != "$U 2.338,20" {
		t.Fatalf("unexpected formatted total %q", resp.Totals.FormattedTotal)
	}
}

func TestCartHandlersTotalsRejectsUnknownDepartment(t *testing.T) {
	handler := NewCartHandlers(nil, &stubCartHandlerService{})
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodGet, "/cart/totals?department=Buenos%20Aires", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "unknown_department" {
		t.Fatalf("expected unknown_department, got %q", code)
	}
}

func TestCartHandlersMapServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "invalid input", err: services.ErrCartInvalidInput, wantStatus: http.StatusBadRequest, wantCode: "invalid_request"},
		{name: "not found", err: services.ErrCartNotFound, wantStatus: http.StatusNotFound, wantCode: "cart_not_found"},
		{name: "conflict", err: services.ErrCartConflict, wantStatus: http.StatusConflict, wantCode: "cart_conflict"},
		{name: "unavailable", err: services.ErrCartUnavailable, wantStatus: http.StatusServiceUnavailable, wantCode: "cart_service_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			service := &stubCartHandlerService{
				getOrCreateFunc: func(ctx context.Context, userID string) (services.Cart, error) {
					return services.Cart{}, tc.err
				},
			}
			handler := NewCartHandlers(nil, service)
			router := chi.NewRouter()
			router.Route("/cart", handler.Routes)

			req := httptest.NewRequest(http.MethodGet, "/cart", nil)
			req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.wantStatus {
				t.Fatalf("expected status %d, got %d", tc.wantStatus, rr.Code)
			}
			if code := decodeErrorCode(t, rr); code != tc.wantCode {
				t.Fatalf("expected code %q, got %q", tc.wantCode, code)
			}
		})
	}
}

func TestCartHandlersClearCart(t *testing.T) {
	cleared := false
	service := &stubCartHandlerService{
		clearFunc: func(ctx context.Context, userID string) error {
			cleared = true
			return nil
		},
	}

	handler := NewCartHandlers(nil, service)
	router := chi.NewRouter()
	router.Route("/cart", handler.Routes)

	req := httptest.NewRequest(http.MethodDelete, "/cart", nil)
	req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: "user-7"}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if !cleared {
		t.Fatalf("expected ClearCart to be invoked")
	}
}

func decodeErrorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("failed to decode error envelope: %v", err)
	}
	code, _ := envelope["error"].(string)
	return code
}

type stubCartHandlerService struct {
	getOrCreateFunc  func(ctx context.Context, userID string) (services.Cart, error)
	addOrUpdateFunc  func(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error)
	removeFunc       func(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error)
	applyCouponFunc  func(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error)
	removeCouponFunc func(ctx context.Context, userID string) (services.Cart, error)
	clearFunc        func(ctx context.Context, userID string) error
	totalsFunc       func(ctx context.Context, cmd services.CartTotalsCommand) (services.CartTotals, error)
}

func (s *stubCartHandlerService) GetOrCreateCart(ctx context.Context, userID string) (services.Cart, error) {
	if s.getOrCreateFunc != nil {
		return s.getOrCreateFunc(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartHandlerService) AddOrUpdateItem(ctx context.Context, cmd services.UpsertCartItemCommand) (services.Cart, error) {
	if s.addOrUpdateFunc != nil {
		return s.addOrUpdateFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartHandlerService) RemoveItem(ctx context.Context, cmd services.RemoveCartItemCommand) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartHandlerService) ApplyCoupon(ctx context.Context, cmd services.ApplyCouponCommand) (services.Cart, error) {
	if s.applyCouponFunc != nil {
		return s.applyCouponFunc(ctx, cmd)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartHandlerService) RemoveCoupon(ctx context.Context, userID string) (services.Cart, error) {
	if s.removeCouponFunc != nil {
		return s.removeCouponFunc(ctx, userID)
	}
	return services.Cart{}, errors.New("not implemented")
}

func (s *stubCartHandlerService) ClearCart(ctx context.Context, userID string) error {
	if s.clearFunc != nil {
		return s.clearFunc(ctx, userID)
	}
	return errors.New("not implemented")
}

func (s *stubCartHandlerService) Totals(ctx context.Context, cmd services.CartTotalsCommand) (services.CartTotals, error) {
	if s.totalsFunc != nil {
		return s.totalsFunc(ctx, cmd)
	}
	return services.CartTotals{}, errors.New("not implemented")
}
