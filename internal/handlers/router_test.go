package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/domain"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	router := NewRouter()

	t.Run("service info", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		var info ServiceInfo
		if err := json.Unmarshal(rr.Body.Bytes(), &info); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if info.Name != "Cart API" || info.Version != "1.0.0" {
			t.Fatalf("unexpected service info %+v", info)
		}
	})

	t.Run("healthz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("unmounted cart group", func(t *testing.T) {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if body["error"] != errorNotFoundCode {
			t.Fatalf("expected route_not_found, got %v", body["error"])
		}
		if body["request_id"] == nil {
			t.Fatalf("expected request id stamped on error body")
		}
	})
}

func TestNewRouter_CustomOptions(t *testing.T) {
	var sawMiddleware bool
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sawMiddleware = true
			next.ServeHTTP(w, r)
		})
	}
	var groupHits int
	groupMW := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			groupHits++
			next.ServeHTTP(w, r)
		})
	}
	repo := &stubHealthRepository{report: domain.SystemHealthReport{Status: domain.HealthStatusError}}

	router := NewRouter(
		WithMiddlewares(marker),
		WithServiceInfo(ServiceInfo{Version: "2.0.0"}),
		WithHealthHandlers(NewHealthHandlers(WithReadiness(repo))),
		WithTaxRateRoutes(NewTaxRateHandlers().Routes),
		WithCartRoutes(NewCartHandlers(&stubCartService{}).Routes, groupMW),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if !sawMiddleware {
		t.Fatalf("expected global middleware to run")
	}
	var info ServiceInfo
	_ = json.Unmarshal(rr.Body.Bytes(), &info)
	if info.Name != "Cart API" || info.Version != "2.0.0" {
		t.Fatalf("unexpected service info %+v", info)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected readiness failure, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tax-rates", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected tax rates to be mounted, got %d", rr.Code)
	}
	if groupHits != 0 {
		t.Fatalf("cart middleware should not run for other groups")
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/cart", nil))
	if rr.Code != http.StatusOK || groupHits != 1 {
		t.Fatalf("expected cart group middleware, status=%d hits=%d", rr.Code, groupHits)
	}

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPatch, "/cart", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}
