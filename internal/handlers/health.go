package handlers

import (
	"net/http"
	"time"

	"github.com/montebazar/api/internal/platform/httpx"
	"github.com/montebazar/api/internal/services"
)

// HealthHandlers serves liveness and readiness probes.
type HealthHandlers struct {
	system services.SystemService
	clock  func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithSystemService wires the system service used for readiness checks.
func WithSystemService(system services.SystemService) HealthOption {
	return func(h *HealthHandlers) {
		h.system = system
	}
}

// WithHealthClock overrides the clock, primarily for tests.
func WithHealthClock(clock func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewHealthHandlers constructs health handlers. Without a system service the
// readiness probe degrades to a plain liveness response.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().Format(time.RFC3339),
	})
}

// Readyz reports dependency readiness using the aggregated system health report.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.system == nil {
		writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
		return
	}

	report, err := h.system.Health(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("health_unavailable", "health checks failed", http.StatusServiceUnavailable))
		return
	}

	checks := make(map[string]any, len(report.Checks))
	for name, check := range report.Checks {
		entry := map[string]any{
			"status":     check.Status,
			"latency_ms": check.Latency.Milliseconds(),
		}
		if check.Detail != "" {
			entry["detail"] = check.Detail
		}
		if check.Error != "" {
			entry["error"] = check.Error
		}
		checks[name] = entry
	}

	payload := map[string]any{
		"status":      report.Status,
		"checks":      checks,
		"version":     report.Version,
		"commit":      report.CommitSHA,
		"environment": report.Environment,
		"uptime":      report.Uptime.String(),
		"timestamp":   report.GeneratedAt.UTC().Format(time.RFC3339),
	}

	status := http.StatusOK
	if report.Status == "error" {
		status = http.StatusServiceUnavailable
	}
	writeJSONResponse(w, status, payload)
}

func (h *HealthHandlers) now() time.Time {
	if h == nil || h.clock == nil {
		return time.Now().UTC()
	}
	return h.clock().UTC()
}
