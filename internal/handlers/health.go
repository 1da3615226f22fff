package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"go.uber.org/zap"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/httpx"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/requestctx"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
)

// HealthHandlers serves liveness and readiness checks.
type HealthHandlers struct {
	readiness repositories.HealthRepository
	version   string
	started   time.Time
	now       func() time.Time
}

// HealthOption customises the health handlers.
type HealthOption func(*HealthHandlers)

// WithReadiness sets the dependency checks evaluated by /readyz.
func WithReadiness(repo repositories.HealthRepository) HealthOption {
	return func(h *HealthHandlers) { h.readiness = repo }
}

// WithBuildVersion sets the version reported by the health endpoints.
func WithBuildVersion(version string) HealthOption {
	return func(h *HealthHandlers) {
		if version != "" {
			h.version = version
		}
	}
}

// WithHealthClock overrides the clock used for uptime and timestamps.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthHandlers) {
		if now != nil {
			h.now = now
		}
	}
}

// NewHealthHandlers constructs health handlers. Without readiness checks /readyz always reports ok.
func NewHealthHandlers(opts ...HealthOption) *HealthHandlers {
	h := &HealthHandlers{version: "dev", now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	h.started = h.now()
	return h
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status":    domain.HealthStatusOK,
		"version":   h.version,
		"uptime":    now.Sub(h.started).Round(time.Second).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}

type readinessCheckPayload struct {
	Name      string `json:"name"`
	Status    string `json:"status"`
	Detail    string `json:"detail,omitempty"`
	LatencyMS int64  `json:"latencyMs"`
}

// Readyz runs the dependency checks and answers 503 unless every critical dependency is reachable.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.readiness == nil {
		httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": domain.HealthStatusOK, "version": h.version})
		return
	}

	report, err := h.readiness.Collect(ctx)
	if err != nil {
		requestctx.Logger(ctx).Error("readiness collection failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("readiness_failed", "unable to evaluate readiness", http.StatusServiceUnavailable))
		return
	}

	checks := make([]readinessCheckPayload, 0, len(report.Checks))
	for name, check := range report.Checks {
		checks = append(checks, readinessCheckPayload{
			Name:      name,
			Status:    check.Status,
			Detail:    check.Detail,
			LatencyMS: check.Latency.Milliseconds(),
		})
	}
	sort.Slice(checks, func(i, j int) bool { return checks[i].Name < checks[j].Name })

	status := http.StatusOK
	if report.Status == domain.HealthStatusError {
		status = http.StatusServiceUnavailable
		logReadinessFailure(ctx, report)
	}
	httpx.WriteJSON(w, status, map[string]any{
		"status":      report.Status,
		"version":     h.version,
		"checks":      checks,
		"generatedAt": report.GeneratedAt.UTC().Format(time.RFC3339),
	})
}

func logReadinessFailure(ctx context.Context, report domain.SystemHealthReport) {
	fields := make([]zap.Field, 0, len(report.Checks))
	for name, check := range report.Checks {
		if check.Status != domain.HealthStatusOK {
			fields = append(fields, zap.String(name, check.Detail))
		}
	}
	requestctx.Logger(ctx).Warn("readiness check failed", fields...)
}
