package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/requestctx"
)

func TestRequestLoggerMiddlewareLogsCompletion(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	var customerSeen string
	r := chi.NewRouter()
	r.Use(InjectLoggerMiddleware(logger), RequestLoggerMiddleware())
	r.With(CustomerContextMiddleware("customerId")).Get("/cart/{customerId}", func(w http.ResponseWriter, r *http.Request) {
		customerSeen = requestctx.CustomerID(r.Context())
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("{}"))
	})

	req := httptest.NewRequest(http.MethodGet, "/cart/cust-42", nil)
	req.RemoteAddr = "203.0.113.9:5555"
	r.ServeHTTP(httptest.NewRecorder(), req)

	if customerSeen != "cust-42" {
		t.Fatalf("expected customer id on context, got %q", customerSeen)
	}
	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 404, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("unexpected status field %v", fields["status"])
	}
	if fields["route"] != "/cart/{customerId}" {
		t.Fatalf("unexpected route field %v", fields["route"])
	}
	if fields["customer_id"] != "cust-42" || fields["remote_ip"] != "203.0.113.9" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if fields["bytes"] != int64(2) {
		t.Fatalf("expected 2 bytes written, got %v", fields["bytes"])
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/cart", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged on the fallback logger")
	}
}

func TestRecoveryMiddlewareRepanicsAbortHandler(t *testing.T) {
	handler := RecoveryMiddleware(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler {
			t.Fatalf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
}

func TestEventLoggerLevels(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)
	log := EventLogger(zap.New(fallbackCore))

	log(context.Background(), "cart.tax.line", map[string]any{"line": 1})
	log(context.Background(), "cart.event.publish_failed", map[string]any{"error": "timeout"})
	log(requestctx.WithLogger(context.Background(), zap.New(requestCore)), "cart.assembled", map[string]any{"b": 2, "a": 1})

	all := fallbackLogs.All()
	if len(all) != 2 {
		t.Fatalf("expected two fallback entries, got %d", len(all))
	}
	if all[0].Level != zapcore.DebugLevel || all[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels %s %s", all[0].Level, all[1].Level)
	}

	scoped := requestLogs.All()
	if len(scoped) != 1 || scoped[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected request logger to receive info entry, got %+v", scoped)
	}
	if keys := scoped[0].Context; len(keys) != 2 || keys[0].Key != "a" || keys[1].Key != "b" {
		t.Fatalf("expected sorted fields, got %+v", keys)
	}
}

func TestSanitizeHelpers(t *testing.T) {
	if got := SanitizeRoute(""); got != "/" {
		t.Fatalf("expected /, got %q", got)
	}
	if got := SanitizeCustomerID("cust\n-1\t"); got != "cust-1" {
		t.Fatalf("expected control characters stripped, got %q", got)
	}
	if got := SanitizeMethod("DELETEDELETE"); got != "DELETEDELE" {
		t.Fatalf("expected method truncated, got %q", got)
	}
}
