package handlers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/auth"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

const maxCartBodySize = 16 * 1024

var (
	errBodyTooLarge = errors.New("request body too large")
	errEmptyBody    = errors.New("request body is required")
)

// CartHandlers exposes authenticated cart endpoints for the current user.
type CartHandlers struct {
	authn *auth.Authenticator
	carts services.CartService
}

// NewCartHandlers constructs handlers enforcing Firebase authentication before invoking the cart service.
func NewCartHandlers(authn *auth.Authenticator, carts services.CartService) *CartHandlers {
	return &CartHandlers{
		authn: authn,
		carts: carts,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Put("/items/{productID}", h.putItem)
	r.Delete("/items/{productID}", h.deleteItem)
	r.Post("/coupon", h.applyCoupon)
	r.Delete("/coupon", h.removeCoupon)
	r.Get("/totals", h.getTotals)
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.GetOrCreateCart(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if err := h.carts.ClearCart(ctx, uid); err != nil {
		h.writeCartError(ctx, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandlers) putItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req cartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddOrUpdateItem(ctx, services.UpsertCartItemCommand{
		UserID:         uid,
		ProductID:      chi.URLParam(r, "productID"),
		VariantID:      cloneStringPointer(req.VariantID),
		Name:           req.Name,
		Slug:           req.Slug,
		UnitPrice:      req.UnitPrice,
		CompareAtPrice: cloneInt64Pointer(req.CompareAtPrice),
		Currency:       req.Currency,
		Quantity:       req.Quantity,
		Stock:          req.Stock,
		ImageURL:       cloneStringPointer(req.ImageURL),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) deleteItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		UserID:    uid,
		ProductID: chi.URLParam(r, "productID"),
	})
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) applyCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxCartBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req applyCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.ApplyCoupon(ctx, services.ApplyCouponCommand{UserID: uid, Code: req.Code})
	if err != nil {
		var rejection *services.CouponRejectionError
		if errors.As(err, &rejection) {
			httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", rejection.Message, http.StatusUnprocessableEntity).
				WithDetails(map[string]any{"reason": string(rejection.Reason)}))
			return
		}
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) removeCoupon(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cart, err := h.carts.RemoveCoupon(ctx, uid)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	setCartResponseHeaders(w, cart)
	writeJSONResponse(w, http.StatusOK, cartResponse{Cart: buildCartPayload(cart)})
}

func (h *CartHandlers) getTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	cmd := services.CartTotalsCommand{UserID: uid}
	if raw := strings.TrimSpace(r.URL.Query().Get("department")); raw != "" {
		dept, valid := domain.ParseDepartment(raw)
		if !valid {
			httpx.WriteError(ctx, w, httpx.NewError("unknown_department", fmt.Sprintf("unknown department %q", raw), http.StatusBadRequest))
			return
		}
		cmd.Department = &dept
	}

	totals, err := h.carts.Totals(ctx, cmd)
	if err != nil {
		h.writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, totalsResponse{Totals: buildTotalsPayload(totals)})
}

func (h *CartHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CartHandlers) writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart has been modified; refresh and retry", http.StatusConflict))
	case errors.Is(err, services.ErrCartCouponRejected):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_rejected", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, services.ErrPricingInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_cart_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartUnavailable), errors.Is(err, services.ErrPricingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "cart operation failed", http.StatusInternalServerError))
	}
}

func setCartResponseHeaders(w http.ResponseWriter, cart services.Cart) {
	w.Header().Set("Cache-Control", "no-store, no-cache, max-age=0, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	if !cart.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", cart.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	if etag := buildCartETag(cart); etag != "" {
		w.Header().Set("ETag", etag)
	}
}

func buildCartETag(cart services.Cart) string {
	if strings.TrimSpace(cart.ID) == "" || cart.UpdatedAt.IsZero() {
		return ""
	}
	input := fmt.Sprintf("%s:%d", strings.TrimSpace(cart.ID), cart.UpdatedAt.UTC().UnixNano())
	sum := sha256.Sum256([]byte(input))
	return fmt.Sprintf(`W/"%s"`, hex.EncodeToString(sum[:8]))
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:         strings.TrimSpace(cart.ID),
		UserID:     strings.TrimSpace(cart.UserID),
		Currency:   strings.ToUpper(strings.TrimSpace(cart.Currency)),
		ItemsCount: len(cart.Items),
		Items:      buildCartItems(cart.Items),
	}
	if cart.Coupon != nil {
		payload.Coupon = &cartCouponPayload{
			Code:      cart.Coupon.Code,
			Type:      string(cart.Coupon.Type),
			Value:     cart.Coupon.Value,
			AppliedAt: formatTime(cart.Coupon.AppliedAt),
		}
	}
	if !cart.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(cart.UpdatedAt)
	}
	return payload
}

func buildCartItems(items []services.CartItem) []cartItemPayload {
	if len(items) == 0 {
		return []cartItemPayload{}
	}
	payload := make([]cartItemPayload, 0, len(items))
	for _, item := range items {
		payload = append(payload, cartItemPayload{
			ID:             item.ID,
			ProductID:      strings.TrimSpace(item.ProductID),
			VariantID:      cloneStringPointer(item.VariantID),
			Name:           item.Name,
			Slug:           item.Slug,
			UnitPrice:      item.UnitPrice,
			CompareAtPrice: cloneInt64Pointer(item.CompareAtPrice),
			Currency:       strings.ToUpper(strings.TrimSpace(item.Currency)),
			Quantity:       item.Quantity,
			Stock:          item.Stock,
			ImageURL:       cloneStringPointer(item.ImageURL),
			LineTotal:      domain.MultiplyAmount(item.UnitPrice, item.Quantity),
		})
	}
	return payload
}

func buildTotalsPayload(totals services.CartTotals) totalsPayload {
	return totalsPayload{
		Currency:            totals.Currency,
		Subtotal:            totals.Subtotal,
		Discount:            totals.Discount,
		Shipping:            totals.Shipping,
		Total:               totals.Total,
		FreeShippingApplied: totals.FreeShippingApplied,
		CouponCode:          cloneStringPointer(totals.CouponCode),
		FormattedTotal:      domain.FormatAmount(totals.Currency, totals.Total),
	}
}

type cartResponse struct {
	Cart cartPayload `json:"cart"`
}

type cartPayload struct {
	ID         string             `json:"id"`
	UserID     string             `json:"user_id"`
	Currency   string             `json:"currency"`
	ItemsCount int                `json:"items_count"`
	Items      []cartItemPayload  `json:"items"`
	Coupon     *cartCouponPayload `json:"coupon,omitempty"`
	UpdatedAt  string             `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID             string  `json:"id"`
	ProductID      string  `json:"product_id"`
	VariantID      *string `json:"variant_id,omitempty"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug,omitempty"`
	UnitPrice      int64   `json:"unit_price"`
	CompareAtPrice *int64  `json:"compare_at_price,omitempty"`
	Currency       string  `json:"currency"`
	Quantity       int     `json:"quantity"`
	Stock          int     `json:"stock"`
	ImageURL       *string `json:"image_url,omitempty"`
	LineTotal      int64   `json:"line_total"`
}

type cartCouponPayload struct {
	Code      string `json:"code"`
	Type      string `json:"type"`
	Value     int64  `json:"value"`
	AppliedAt string `json:"applied_at,omitempty"`
}

type totalsResponse struct {
	Totals totalsPayload `json:"totals"`
}

type totalsPayload struct {
	Currency            string  `json:"currency"`
	Subtotal            int64   `json:"subtotal"`
	Discount            int64   `json:"discount"`
	Shipping            int64   `json:"shipping"`
	Total               int64   `json:"total"`
	FreeShippingApplied bool    `json:"free_shipping_applied"`
	CouponCode          *string `json:"coupon_code,omitempty"`
	FormattedTotal      string  `json:"formatted_total"`
}

type cartItemRequest struct {
	VariantID      *string `json:"variant_id"`
	Name           string  `json:"name"`
	Slug           string  `json:"slug"`
	UnitPrice      int64   `json:"unit_price"`
	CompareAtPrice *int64  `json:"compare_at_price"`
	Currency       string  `json:"currency"`
	Quantity       int     `json:"quantity"`
	Stock          int     `json:"stock"`
	ImageURL       *string `json:"image_url"`
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// Shared helpers for the handlers package.

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCartBodySize
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func cloneStringPointer(value *string) *string {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}

func cloneInt64Pointer(value *int64) *int64 {
	if value == nil {
		return nil
	}
	copied := *value
	return &copied
}
