package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

// PublicHandlers serves unauthenticated storefront lookups: settings and
// per-department shipping costs.
type PublicHandlers struct {
	settings services.SettingsService
	shipping services.ShippingService
}

// NewPublicHandlers constructs handlers for the public storefront surface.
func NewPublicHandlers(settings services.SettingsService, shipping services.ShippingService) *PublicHandlers {
	return &PublicHandlers{
		settings: settings,
		shipping: shipping,
	}
}

// Routes wires the /public endpoints onto the provided router.
func (h *PublicHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/settings", h.getSettings)
	r.Get("/departments", h.listDepartments)
	r.Get("/shipping-costs", h.getShippingCost)
}

func (h *PublicHandlers) getSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings are unavailable", http.StatusServiceUnavailable))
		return
	}

	settings, err := h.settings.Get(ctx)
	if err != nil {
		h.writePublicError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, settingsResponse{Settings: buildSettingsPayload(settings)})
}

func (h *PublicHandlers) listDepartments(w http.ResponseWriter, r *http.Request) {
	departments := domain.Departments()
	names := make([]string, 0, len(departments))
	for _, dept := range departments {
		names = append(names, string(dept))
	}
	writeJSONResponse(w, http.StatusOK, departmentsResponse{Departments: names})
}

func (h *PublicHandlers) getShippingCost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.shipping == nil {
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping costs are unavailable", http.StatusServiceUnavailable))
		return
	}

	raw := strings.TrimSpace(r.URL.Query().Get("department"))
	if raw == "" {
		h.listShippingCosts(ctx, w)
		return
	}

	dept, valid := domain.ParseDepartment(raw)
	if !valid {
		httpx.WriteError(ctx, w, httpx.NewError("unknown_department", fmt.Sprintf("unknown department %q", raw), http.StatusBadRequest))
		return
	}

	quote, err := h.shipping.Quote(ctx, dept)
	if err != nil {
		h.writePublicError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, shippingCostResponse{Cost: buildShippingCostPayload(quote)})
}

// listShippingCosts quotes every department. Cached entries make this cheap
// after the first pass.
func (h *PublicHandlers) listShippingCosts(ctx context.Context, w http.ResponseWriter) {
	departments := domain.Departments()
	costs := make([]shippingCostPayload, 0, len(departments))
	for _, dept := range departments {
		quote, err := h.shipping.Quote(ctx, dept)
		if err != nil {
			h.writePublicError(ctx, w, err)
			return
		}
		costs = append(costs, buildShippingCostPayload(quote))
	}
	writeJSONResponse(w, http.StatusOK, shippingCostListResponse{Costs: costs})
}

func (h *PublicHandlers) writePublicError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrShippingUnknownDepartment):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_department", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrShippingUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("shipping_unavailable", "shipping costs are unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrSettingsUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings are unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "request failed", http.StatusInternalServerError))
	}
}

func buildSettingsPayload(settings services.StoreSettings) settingsPayload {
	enabled := make([]string, 0, len(settings.EnabledProviders))
	for _, provider := range settings.EnabledProviders {
		enabled = append(enabled, string(provider))
	}
	return settingsPayload{
		Currency:              settings.Currency,
		FreeShippingThreshold: settings.FreeShippingThreshold,
		DefaultShippingCost:   settings.DefaultShippingCost,
		CheckoutEnabled:       settings.CheckoutEnabled,
		DefaultProvider:       string(settings.DefaultProvider),
		EnabledProviders:      enabled,
		UpdatedAt:             formatTime(settings.UpdatedAt),
	}
}

func buildShippingCostPayload(quote services.ShippingQuote) shippingCostPayload {
	return shippingCostPayload{
		Department: string(quote.Department),
		Amount:     quote.Amount,
		Currency:   quote.Currency,
		Source:     string(quote.Source),
		Formatted:  domain.FormatAmount(quote.Currency, quote.Amount),
	}
}

type settingsResponse struct {
	Settings settingsPayload `json:"settings"`
}

type settingsPayload struct {
	Currency              string   `json:"currency"`
	FreeShippingThreshold int64    `json:"free_shipping_threshold"`
	DefaultShippingCost   int64    `json:"default_shipping_cost"`
	CheckoutEnabled       bool     `json:"checkout_enabled"`
	DefaultProvider       string   `json:"default_provider"`
	EnabledProviders      []string `json:"enabled_providers"`
	UpdatedAt             string   `json:"updated_at,omitempty"`
}

type departmentsResponse struct {
	Departments []string `json:"departments"`
}

type shippingCostResponse struct {
	Cost shippingCostPayload `json:"cost"`
}

type shippingCostListResponse struct {
	Costs []shippingCostPayload `json:"costs"`
}

type shippingCostPayload struct {
	Department string `json:"department"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Source     string `json:"source"`
	Formatted  string `json:"formatted"`
}
