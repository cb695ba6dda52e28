package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/montebazar/api/internal/domain"
)

func TestSystemServiceHealthFillsMetadata(t *testing.T) {
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := started.Add(3 * time.Hour)

	repo := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}

	service, err := NewSystemService(SystemServiceDeps{
		HealthRepository: repo,
		Clock:            func() time.Time { return now },
		Build: BuildInfo{
			Version:     "1.4.0",
			CommitSHA:   "abc1234",
			Environment: "production",
			StartedAt:   started,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	report, err := service.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != domain.HealthStatusOK {
		t.Fatalf("expected ok status, got %q", report.Status)
	}
	if report.Version != "1.4.0" || report.CommitSHA != "abc1234" {
		t.Fatalf("expected build metadata filled, got %+v", report)
	}
	if report.Uptime != 3*time.Hour {
		t.Fatalf("expected uptime 3h, got %v", report.Uptime)
	}
	if !report.GeneratedAt.Equal(now) {
		t.Fatalf("expected generated at %v, got %v", now, report.GeneratedAt)
	}
}

func TestSystemServiceHealthDerivesWorstStatus(t *testing.T) {
	repo := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
					"pubsub":    {Status: domain.HealthStatusError, Error: "publish timeout"},
				},
			}, nil
		},
	}

	service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	report, err := service.Health(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != domain.HealthStatusError {
		t.Fatalf("expected error status, got %q", report.Status)
	}
}

func TestSystemServiceHealthPropagatesCollectFailure(t *testing.T) {
	repo := &stubHealthRepository{
		collectFunc: func(ctx context.Context) (domain.SystemHealthReport, error) {
			return domain.SystemHealthReport{}, errors.New("collect failed")
		},
	}

	service, err := NewSystemService(SystemServiceDeps{HealthRepository: repo})
	if err != nil {
		t.Fatalf("unexpected error constructing system service: %v", err)
	}

	if _, err := service.Health(context.Background()); err == nil {
		t.Fatalf("expected error")
	}
}

type stubHealthRepository struct {
	collectFunc func(ctx context.Context) (domain.SystemHealthReport, error)
}

func (s *stubHealthRepository) Collect(ctx context.Context) (domain.SystemHealthReport, error) {
	if s.collectFunc != nil {
		return s.collectFunc(ctx)
	}
	return domain.SystemHealthReport{}, errors.New("not implemented")
}
