package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/montebazar/api/internal/platform/auth"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

const maxCheckoutBodySize = 32 * 1024

// CheckoutHandlers exposes the three-step checkout flow for the current user.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs handlers driving the checkout draft lifecycle.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getDraft)
	r.Put("/personal-data", h.putPersonalData)
	r.Put("/shipping-address", h.putShippingAddress)
	r.Put("/payment-method", h.putPaymentMethod)
	r.Post("/back", h.back)
	r.Post("/submit", h.submit)
}

func (h *CheckoutHandlers) getDraft(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	draft, err := h.checkout.GetOrCreateDraft(ctx, uid)
	if err != nil {
		h.writeCheckoutError(ctx, w, err, nil)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutDraftResponse{Draft: buildDraftPayload(draft)})
}

func (h *CheckoutHandlers) putPersonalData(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req personalDataRequest
	if !decodeCheckoutBody(ctx, w, r, &req) {
		return
	}

	draft, err := h.checkout.SubmitPersonalData(ctx, services.SubmitPersonalDataCommand{
		UserID: uid,
		Personal: services.PersonalData{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Email:     req.Email,
			Phone:     req.Phone,
		},
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err, &draft)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutDraftResponse{Draft: buildDraftPayload(draft)})
}

func (h *CheckoutHandlers) putShippingAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req shippingAddressRequest
	if !decodeCheckoutBody(ctx, w, r, &req) {
		return
	}

	draft, err := h.checkout.SubmitShippingAddress(ctx, services.SubmitShippingAddressCommand{
		UserID: uid,
		Shipping: services.ShippingDetails{
			Line1:      req.Line1,
			Line2:      cloneStringPointer(req.Line2),
			City:       req.City,
			Department: services.Department(strings.TrimSpace(req.Department)),
			PostalCode: cloneStringPointer(req.PostalCode),
			Notes:      cloneStringPointer(req.Notes),
		},
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err, &draft)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutDraftResponse{Draft: buildDraftPayload(draft)})
}

func (h *CheckoutHandlers) putPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	var req paymentMethodRequest
	if !decodeCheckoutBody(ctx, w, r, &req) {
		return
	}

	draft, err := h.checkout.SubmitPaymentMethod(ctx, services.SubmitPaymentMethodCommand{
		UserID:   uid,
		Provider: req.Provider,
	})
	if err != nil {
		h.writeCheckoutError(ctx, w, err, &draft)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutDraftResponse{Draft: buildDraftPayload(draft)})
}

func (h *CheckoutHandlers) back(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	draft, err := h.checkout.Back(ctx, uid)
	if err != nil {
		h.writeCheckoutError(ctx, w, err, nil)
		return
	}

	writeJSONResponse(w, http.StatusOK, checkoutDraftResponse{Draft: buildDraftPayload(draft)})
}

func (h *CheckoutHandlers) submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid, ok := h.requireUser(ctx, w)
	if !ok {
		return
	}

	result, err := h.checkout.Submit(ctx, services.SubmitCheckoutCommand{UserID: uid})
	if err != nil {
		h.writeCheckoutError(ctx, w, err, &result.Draft)
		return
	}

	payload := checkoutResultResponse{
		Draft:       buildDraftPayload(result.Draft),
		RedirectURL: result.RedirectURL,
	}
	if result.Order != nil {
		payload.OrderID = result.Order.ID
	}
	writeJSONResponse(w, http.StatusOK, payload)
}

func (h *CheckoutHandlers) requireUser(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return "", false
	}
	return identity.UID, true
}

// writeCheckoutError maps service failures onto the error envelope. Validation
// failures carry the field-keyed errors from the returned draft so clients can
// annotate the form without re-fetching.
func (h *CheckoutHandlers) writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error, draft *services.CheckoutDraft) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCheckoutValidation):
		apiErr := httpx.NewError("checkout_validation_failed", "checkout step validation failed", http.StatusUnprocessableEntity)
		if draft != nil && len(draft.FieldErrors) > 0 {
			fields := make(map[string]any, len(draft.FieldErrors))
			for field, message := range draft.FieldErrors {
				fields[field] = message
			}
			apiErr = apiErr.WithDetails(map[string]any{"field_errors": fields})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrCheckoutSubmitInProgress):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_submit_in_progress", "a submission is already in progress", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutIncomplete):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_incomplete", "checkout steps are not complete", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "cart has no items to order", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutUnavailable), errors.Is(err, services.ErrOrderUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_service_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "checkout operation failed", http.StatusInternalServerError))
	}
}

func decodeCheckoutBody(ctx context.Context, w http.ResponseWriter, r *http.Request, target any) bool {
	body, err := readLimitedBody(r, maxCheckoutBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return false
	}
	if err := json.Unmarshal(body, target); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return false
	}
	return true
}

func buildDraftPayload(draft services.CheckoutDraft) checkoutDraftPayload {
	payload := checkoutDraftPayload{
		ID:     strings.TrimSpace(draft.ID),
		Step:   string(draft.Step),
		Status: string(draft.Status),
		PersonalData: personalDataPayload{
			FirstName: draft.Personal.FirstName,
			LastName:  draft.Personal.LastName,
			Email:     draft.Personal.Email,
			Phone:     draft.Personal.Phone,
		},
		OrderID:        cloneStringPointer(draft.OrderID),
		FailureMessage: cloneStringPointer(draft.FailureMessage),
	}
	if draft.Shipping.Department != "" || strings.TrimSpace(draft.Shipping.Line1) != "" {
		payload.ShippingAddress = &shippingAddressPayload{
			Line1:      draft.Shipping.Line1,
			Line2:      cloneStringPointer(draft.Shipping.Line2),
			City:       draft.Shipping.City,
			Department: string(draft.Shipping.Department),
			PostalCode: cloneStringPointer(draft.Shipping.PostalCode),
			Notes:      cloneStringPointer(draft.Shipping.Notes),
		}
	}
	if draft.Payment.Provider != "" {
		provider := string(draft.Payment.Provider)
		payload.PaymentProvider = &provider
	}
	if len(draft.FieldErrors) > 0 {
		payload.FieldErrors = make(map[string]string, len(draft.FieldErrors))
		for field, message := range draft.FieldErrors {
			payload.FieldErrors[field] = message
		}
	}
	if !draft.UpdatedAt.IsZero() {
		payload.UpdatedAt = formatTime(draft.UpdatedAt)
	}
	return payload
}

type checkoutDraftResponse struct {
	Draft checkoutDraftPayload `json:"draft"`
}

type checkoutResultResponse struct {
	Draft       checkoutDraftPayload `json:"draft"`
	OrderID     string               `json:"order_id,omitempty"`
	RedirectURL string               `json:"redirect_url,omitempty"`
}

type checkoutDraftPayload struct {
	ID              string                  `json:"id"`
	Step            string                  `json:"step"`
	Status          string                  `json:"status"`
	PersonalData    personalDataPayload     `json:"personal_data"`
	ShippingAddress *shippingAddressPayload `json:"shipping_address,omitempty"`
	PaymentProvider *string                 `json:"payment_provider,omitempty"`
	FieldErrors     map[string]string       `json:"field_errors,omitempty"`
	OrderID         *string                 `json:"order_id,omitempty"`
	FailureMessage  *string                 `json:"failure_message,omitempty"`
	UpdatedAt       string                  `json:"updated_at,omitempty"`
}

type personalDataPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type shippingAddressPayload struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	Department string  `json:"department"`
	PostalCode *string `json:"postal_code,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

type personalDataRequest struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type shippingAddressRequest struct {
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2"`
	City       string  `json:"city"`
	Department string  `json:"department"`
	PostalCode *string `json:"postal_code"`
	Notes      *string `json:"notes"`
}

type paymentMethodRequest struct {
	Provider string `json:"provider"`
}
