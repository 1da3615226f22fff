package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Store.Backend != StoreBackendRedis {
		t.Errorf("expected redis backend, got %s", cfg.Store.Backend)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.KeyPrefix != "cart:" {
		t.Errorf("unexpected redis defaults: %+v", cfg.Redis)
	}
	if cfg.Cart.DefaultCurrency != "INR" {
		t.Errorf("expected INR default currency, got %s", cfg.Cart.DefaultCurrency)
	}
	if cfg.RateLimits.WritesPerMinute != 120 || cfg.RateLimits.WriteBurst != 20 {
		t.Errorf("unexpected rate limits: %+v", cfg.RateLimits)
	}
	if cfg.Events.Topic != "" {
		t.Errorf("expected events disabled by default, got topic %q", cfg.Events.Topic)
	}
	if cfg.Idempotency.TTL != 24*time.Hour || cfg.Idempotency.KeyRequired {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"CART_SERVER_PORT":              "9090",
		"CART_SERVER_WRITE_TIMEOUT":     "25s",
		"CART_STORE_BACKEND":            "Firestore",
		"CART_FIRESTORE_PROJECT_ID":     "kc-prod",
		"CART_FIRESTORE_COLLECTION":     "customer_carts",
		"CART_REDIS_PASSWORD":           "sm://redis-password",
		"CART_REDIS_DB":                 "2",
		"CART_EVENTS_TOPIC":             "cart-events",
		"CART_DEFAULT_CURRENCY":         "usd",
		"CART_RATELIMIT_WRITES_PER_MIN": "0",
		"LOG_LEVEL":                     "debug",
		"CART_IDEMPOTENCY_TTL":          "0",
		"CART_IDEMPOTENCY_KEY_REQUIRED": "true",
	}

	var resolved []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		resolved = append(resolved, ref)
		return "hunter2", nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.WriteTimeout != 25*time.Second {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Store.Backend != StoreBackendFirestore {
		t.Errorf("expected firestore backend, got %s", cfg.Store.Backend)
	}
	if cfg.Firestore.Collection != "customer_carts" {
		t.Errorf("unexpected collection %s", cfg.Firestore.Collection)
	}
	if cfg.Events.ProjectID != "kc-prod" || cfg.Events.Topic != "cart-events" {
		t.Errorf("expected events project to default to firestore project, got %+v", cfg.Events)
	}
	if cfg.Observability.TraceProjectID != "kc-prod" {
		t.Errorf("expected trace project kc-prod, got %s", cfg.Observability.TraceProjectID)
	}
	if cfg.Redis.Password != "hunter2" || cfg.Redis.DB != 2 {
		t.Errorf("unexpected redis config: %+v", cfg.Redis)
	}
	if len(resolved) != 1 || resolved[0] != "secret://redis-password" {
		t.Errorf("expected normalised secret reference, got %v", resolved)
	}
	if cfg.Cart.DefaultCurrency != "USD" {
		t.Errorf("expected USD, got %s", cfg.Cart.DefaultCurrency)
	}
	if cfg.RateLimits.WritesPerMinute != 0 {
		t.Errorf("expected rate limiting disabled, got %d", cfg.RateLimits.WritesPerMinute)
	}
	if cfg.Idempotency.TTL != 0 || !cfg.Idempotency.KeyRequired {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Observability.LogLevel)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{"CART_REDIS_PASSWORD": "secret://redis"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadValidationErrors(t *testing.T) {
	env := map[string]string{
		"CART_STORE_BACKEND":    "cassandra",
		"CART_DEFAULT_CURRENCY": "RUPEES",
		"CART_IDEMPOTENCY_TTL":  "-1h",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Store.Backend": true, "Cart.DefaultCurrency": true, "Idempotency.TTL": true}
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, field := range fields {
		if !want[field] {
			t.Fatalf("unexpected field %s", field)
		}
	}
}

func TestLoadFirestoreRequiresProject(t *testing.T) {
	env := map[string]string{"CART_STORE_BACKEND": "firestore"}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if fields := validation.Fields(); len(fields) != 1 || fields[0] != "Firestore.ProjectID" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestLoadReadsDotEnvWithPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# local overrides\nCART_SERVER_PORT=7070\nexport CART_REDIS_ADDR=\"redis.local:6380\"\nCART_DEFAULT_CURRENCY=EUR\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"CART_DEFAULT_CURRENCY": "JPY"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from .env, got %s", cfg.Server.Port)
	}
	if cfg.Redis.Addr != "redis.local:6380" {
		t.Errorf("expected redis addr from .env, got %s", cfg.Redis.Addr)
	}
	if cfg.Cart.DefaultCurrency != "JPY" {
		t.Errorf("expected explicit map to win over .env, got %s", cfg.Cart.DefaultCurrency)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "absent.env")), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
