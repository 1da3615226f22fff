package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

type stubHealthRepository struct {
	report domain.SystemHealthReport
	err    error
}

func (s *stubHealthRepository) Collect(context.Context) (domain.SystemHealthReport, error) {
	return s.report, s.err
}

func TestHealthHandlersHealthz(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := start
	handlers := NewHealthHandlers(
		WithBuildVersion("1.2.3"),
		WithHealthClock(func() time.Time { return now }),
	)
	now = start.Add(30 * time.Second)

	rr := httptest.NewRecorder()
	handlers.Healthz(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if body["status"] != domain.HealthStatusOK || body["version"] != "1.2.3" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["uptime"] != "30s" {
		t.Fatalf("expected uptime 30s, got %v", body["uptime"])
	}
	if body["timestamp"] != "2024-01-01T00:00:30Z" {
		t.Fatalf("unexpected timestamp %v", body["timestamp"])
	}
}

func TestHealthHandlersReadyzWithoutProbes(t *testing.T) {
	rr := httptest.NewRecorder()
	NewHealthHandlers().Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
}

func TestHealthHandlersReadyzReportsChecks(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		status string
		code   int
	}{
		{name: "ok", status: domain.HealthStatusOK, code: http.StatusOK},
		{name: "degraded stays ready", status: domain.HealthStatusDegraded, code: http.StatusOK},
		{name: "error", status: domain.HealthStatusError, code: http.StatusServiceUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo := &stubHealthRepository{report: domain.SystemHealthReport{
				Status:      tc.status,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"events":     {Status: domain.HealthStatusOK, Latency: 3 * time.Millisecond},
					"cart_store": {Status: tc.status, Detail: "check detail", Latency: 7 * time.Millisecond},
				},
			}}
			rr := httptest.NewRecorder()
			NewHealthHandlers(WithReadiness(repo)).Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if rr.Code != tc.code {
				t.Fatalf("expected %d, got %d", tc.code, rr.Code)
			}
			var body struct {
				Status string                  `json:"status"`
				Checks []readinessCheckPayload `json:"checks"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Status != tc.status {
				t.Fatalf("expected status %s, got %s", tc.status, body.Status)
			}
			if len(body.Checks) != 2 || body.Checks[0].Name != "cart_store" || body.Checks[0].LatencyMS != 7 {
				t.Fatalf("expected checks sorted by name, got %+v", body.Checks)
			}
		})
	}
}

func TestHealthHandlersReadyzCollectFailure(t *testing.T) {
	repo := &stubHealthRepository{err: errors.New("collector offline")}
	rr := httptest.NewRecorder()
	NewHealthHandlers(WithReadiness(repo)).Readyz(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &body)
	if body["error"] != "readiness_failed" {
		t.Fatalf("unexpected body %v", body)
	}
}
