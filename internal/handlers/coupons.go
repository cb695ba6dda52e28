package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/montebazar/api/internal/platform/auth"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

const (
	maxCouponBodySize      = 4 * 1024
	couponValidateLimit    = 10
	couponValidateInterval = time.Minute
)

// CouponHandlers exposes coupon validation for authenticated shoppers. Lookups
// are rate limited per user to slow down code guessing.
type CouponHandlers struct {
	authn   *auth.Authenticator
	coupons services.CouponService
	limiter rateLimiter
}

// CouponOption customises coupon handler behaviour.
type CouponOption func(*CouponHandlers)

// WithCouponValidateLimit overrides the per-user validations allowed per minute.
func WithCouponValidateLimit(perMinute int) CouponOption {
	return func(h *CouponHandlers) {
		if perMinute > 0 {
			h.limiter = newSimpleRateLimiter(perMinute, couponValidateInterval, time.Now)
		}
	}
}

// NewCouponHandlers constructs coupon handlers with a per-user validation limit.
func NewCouponHandlers(authn *auth.Authenticator, coupons services.CouponService, opts ...CouponOption) *CouponHandlers {
	handlers := &CouponHandlers{
		authn:   authn,
		coupons: coupons,
		limiter: newSimpleRateLimiter(couponValidateLimit, couponValidateInterval, time.Now),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(handlers)
		}
	}
	return handlers
}

// Routes wires the /coupons endpoints onto the provided router.
func (h *CouponHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/validate", h.validate)
}

func (h *CouponHandlers) validate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(uid) {
		httpx.WriteError(ctx, w, httpx.NewError("rate_limited", "too many coupon validations; retry later", http.StatusTooManyRequests))
		return
	}

	body, err := readLimitedBody(r, maxCouponBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req validateCouponRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.coupons.Validate(ctx, services.ValidateCouponCommand{
		UserID:   uid,
		Code:     req.Code,
		Subtotal: req.Subtotal,
		Currency: req.Currency,
	})
	if err != nil {
		h.writeCouponError(ctx, w, err)
		return
	}

	payload := validateCouponResponse{
		Valid:    result.Valid,
		Discount: result.Discount,
	}
	if !result.Valid {
		payload.Reason = string(result.Reason)
		payload.Message = result.Message
	}
	if result.Coupon != nil {
		payload.Coupon = &couponPayload{
			Code:            result.Coupon.Code,
			Type:            string(result.Coupon.Type),
			Value:           result.Coupon.Value,
			MinimumSubtotal: result.Coupon.MinimumSubtotal,
		}
		if result.Coupon.ExpiresAt != nil {
			payload.Coupon.ExpiresAt = formatTime(*result.Coupon.ExpiresAt)
		}
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CouponHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.coupons == nil {
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

func (h *CouponHandlers) writeCouponError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCouponInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCouponUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("coupon_service_unavailable", "coupon service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("coupon_error", "coupon validation failed", http.StatusInternalServerError))
	}
}

type validateCouponRequest struct {
	Code     string `json:"code"`
	Subtotal int64  `json:"subtotal"`
	Currency string `json:"currency"`
}

type validateCouponResponse struct {
	Valid    bool           `json:"valid"`
	Reason   string         `json:"reason,omitempty"`
	Message  string         `json:"message,omitempty"`
	Discount int64          `json:"discount"`
	Coupon   *couponPayload `json:"coupon,omitempty"`
}

type couponPayload struct {
	Code            string `json:"code"`
	Type            string `json:"type"`
	Value           int64  `json:"value"`
	MinimumSubtotal int64  `json:"minimum_subtotal"`
	ExpiresAt       string `json:"expires_at,omitempty"`
}
