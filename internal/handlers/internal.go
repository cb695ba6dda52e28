package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

// InternalHandlers serves operator-only endpoints. Access control runs in the
// internal middleware chain configured on the router.
type InternalHandlers struct {
	settings services.SettingsService
}

// NewInternalHandlers constructs handlers for the internal surface.
func NewInternalHandlers(settings services.SettingsService) *InternalHandlers {
	return &InternalHandlers{settings: settings}
}

// Routes wires the /internal endpoints onto the provided router.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/settings/refresh", h.refreshSettings)
}

func (h *InternalHandlers) refreshSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.settings == nil {
		httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings are unavailable", http.StatusServiceUnavailable))
		return
	}

	settings, err := h.settings.Refresh(ctx)
	if err != nil {
		if errors.Is(err, services.ErrSettingsUnavailable) {
			httpx.WriteError(ctx, w, httpx.NewError("settings_unavailable", "settings are unavailable", http.StatusServiceUnavailable))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "settings refresh failed", http.StatusInternalServerError))
		return
	}

	writeJSONResponse(w, http.StatusOK, settingsResponse{Settings: buildSettingsPayload(settings)})
}
