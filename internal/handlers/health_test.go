package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/montebazar/api/internal/domain"
	"github.com/montebazar/api/internal/services"
)

func TestHealthzReportsOK(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)
	handler := NewHealthHandlers(WithHealthClock(func() time.Time { return fixed }))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	handler.Healthz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("expected ok status, got %#v", payload["status"])
	}
	if payload["timestamp"] != "2026-04-01T12:30:00Z" {
		t.Fatalf("unexpected timestamp %#v", payload["timestamp"])
	}
}

func TestReadyzWithoutSystemService(t *testing.T) {
	handler := NewHealthHandlers()

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestReadyzAggregatesChecks(t *testing.T) {
	generated := time.Date(2026, 4, 1, 12, 30, 0, 0, time.UTC)
	system := &stubSystemHandlerService{
		healthFunc: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusOK,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK, Latency: 12 * time.Millisecond},
				},
				Version:     "1.4.0",
				Environment: "production",
				GeneratedAt: generated,
			}, nil
		},
	}

	handler := NewHealthHandlers(WithSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var payload map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["status"] != "ok" || payload["version"] != "1.4.0" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	checks, _ := payload["checks"].(map[string]any)
	firestore, _ := checks["firestore"].(map[string]any)
	if firestore["status"] != "ok" {
		t.Fatalf("expected firestore ok, got %#v", firestore)
	}
}

func TestReadyzDegradedDependenciesReturn503(t *testing.T) {
	system := &stubSystemHandlerService{
		healthFunc: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
				},
			}, nil
		},
	}

	handler := NewHealthHandlers(WithSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}

func TestReadyzHealthProbeFailure(t *testing.T) {
	system := &stubSystemHandlerService{
		healthFunc: func(ctx context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("probe failed")
		},
	}

	handler := NewHealthHandlers(WithSystemService(system))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rr := httptest.NewRecorder()
	handler.Readyz(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
	if code := decodeErrorCode(t, rr); code != "health_unavailable" {
		t.Fatalf("expected health_unavailable, got %q", code)
	}
}

type stubSystemHandlerService struct {
	healthFunc func(ctx context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemHandlerService) Health(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthFunc != nil {
		return s.healthFunc(ctx)
	}
	return services.SystemHealthReport{}, errors.New("not implemented")
}
