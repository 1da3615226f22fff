package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/text/currency"
)

const (
	defaultEnvFile         = ".env"
	defaultPort            = "8080"
	defaultReadTimeout     = 15 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultIdleTimeout     = 120 * time.Second
	defaultShutdownTimeout = 15 * time.Second
	defaultEnvironment     = "local"
	defaultStoreBackend    = StoreBackendRedis
	defaultRedisAddr       = "localhost:6379"
	defaultRedisKeyPrefix  = "cart:"
	defaultRedisDial       = 5 * time.Second
	defaultRedisIO         = 3 * time.Second
	defaultCollection      = "carts"
	defaultCurrency        = "INR"
	defaultWritesPerMinute = 120
	defaultWriteBurst      = 20
	defaultIdempotencyTTL  = 24 * time.Hour
	defaultCleanupInterval = 15 * time.Minute
)

// Store backends understood by Load.
const (
	StoreBackendRedis     = "redis"
	StoreBackendFirestore = "firestore"
	StoreBackendMemory    = "memory"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment   string
	Server        ServerConfig
	Store         StoreConfig
	Redis         RedisConfig
	Firestore     FirestoreConfig
	Events        EventsConfig
	Cart          CartConfig
	RateLimits    RateLimitConfig
	Idempotency   IdempotencyConfig
	Observability ObservabilityConfig
	Secrets       SecretsConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// StoreConfig selects the cart store implementation.
type StoreConfig struct {
	Backend string
}

// RedisConfig configures the Redis cart store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FirestoreConfig stores database parameters for the Firestore cart store.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
	Collection   string
}

// EventsConfig configures cart event publishing. An empty Topic disables publishing.
type EventsConfig struct {
	ProjectID string
	Topic     string
}

// CartConfig holds cart computation defaults.
type CartConfig struct {
	DefaultCurrency string
}

// RateLimitConfig controls throttling of cart writes per client.
type RateLimitConfig struct {
	WritesPerMinute int
	WriteBurst      int
}

// IdempotencyConfig controls replay of retried cart writes. A zero TTL disables the guard.
type IdempotencyConfig struct {
	TTL             time.Duration
	KeyRequired     bool
	CleanupInterval time.Duration
}

// ObservabilityConfig configures logging and trace correlation.
type ObservabilityConfig struct {
	LogLevel       string
	TraceProjectID string
}

// SecretsConfig configures Secret Manager lookups for secret:// references.
type SecretsConfig struct {
	ProjectID string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for sm:// and secret:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the effective key/value map after applying the same precedence as Load
// (.env < process environment < explicit map). Callers use it to build dependencies Load relies on.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(dotEnv))
	for key, value := range dotEnv {
		values[key] = value
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load assembles the configuration from defaults, .env overrides, environment variables and optional
// Secret Manager lookups, then validates it.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	values, err := EnvironmentValues(opts...)
	if err != nil {
		return Config{}, err
	}
	lookup := func(key string) (string, bool) {
		value, ok := values[key]
		return strings.TrimSpace(value), ok
	}

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "CART_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "CART_SERVER_PORT", stringWithDefault(lookup, "PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "CART_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "CART_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "CART_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "CART_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Store: StoreConfig{
			Backend: strings.ToLower(stringWithDefault(lookup, "CART_STORE_BACKEND", defaultStoreBackend)),
		},
		Redis: RedisConfig{
			Addr:         stringWithDefault(lookup, "CART_REDIS_ADDR", defaultRedisAddr),
			Password:     stringWithDefault(lookup, "CART_REDIS_PASSWORD", ""),
			DB:           intWithDefault(lookup, "CART_REDIS_DB", 0),
			KeyPrefix:    stringWithDefault(lookup, "CART_REDIS_KEY_PREFIX", defaultRedisKeyPrefix),
			DialTimeout:  durationWithDefault(lookup, "CART_REDIS_DIAL_TIMEOUT", defaultRedisDial),
			ReadTimeout:  durationWithDefault(lookup, "CART_REDIS_READ_TIMEOUT", defaultRedisIO),
			WriteTimeout: durationWithDefault(lookup, "CART_REDIS_WRITE_TIMEOUT", defaultRedisIO),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "CART_FIRESTORE_PROJECT_ID", stringWithDefault(lookup, "GOOGLE_CLOUD_PROJECT", "")),
			EmulatorHost: stringWithDefault(lookup, "CART_FIRESTORE_EMULATOR_HOST", ""),
			Collection:   stringWithDefault(lookup, "CART_FIRESTORE_COLLECTION", defaultCollection),
		},
		Events: EventsConfig{
			ProjectID: stringWithDefault(lookup, "CART_EVENTS_PROJECT_ID", ""),
			Topic:     stringWithDefault(lookup, "CART_EVENTS_TOPIC", ""),
		},
		Cart: CartConfig{
			DefaultCurrency: strings.ToUpper(stringWithDefault(lookup, "CART_DEFAULT_CURRENCY", defaultCurrency)),
		},
		RateLimits: RateLimitConfig{
			WritesPerMinute: intWithDefault(lookup, "CART_RATELIMIT_WRITES_PER_MIN", defaultWritesPerMinute),
			WriteBurst:      intWithDefault(lookup, "CART_RATELIMIT_WRITE_BURST", defaultWriteBurst),
		},
		Idempotency: IdempotencyConfig{
			TTL:             durationWithDefault(lookup, "CART_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			KeyRequired:     boolWithDefault(lookup, "CART_IDEMPOTENCY_KEY_REQUIRED", false),
			CleanupInterval: durationWithDefault(lookup, "CART_IDEMPOTENCY_CLEANUP_INTERVAL", defaultCleanupInterval),
		},
		Observability: ObservabilityConfig{
			LogLevel:       stringWithDefault(lookup, "LOG_LEVEL", "info"),
			TraceProjectID: stringWithDefault(lookup, "CART_TRACE_PROJECT_ID", ""),
		},
		Secrets: SecretsConfig{
			ProjectID: stringWithDefault(lookup, "CART_SECRETS_PROJECT_ID", ""),
		},
	}

	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Observability.TraceProjectID == "" {
		cfg.Observability.TraceProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	password, err := resolveSecret(ctx, cfg.Redis.Password, options.secret)
	if err != nil {
		return Config{}, err
	}
	cfg.Redis.Password = password

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsSecretReference reports whether the value points at Secret Manager rather than holding a literal.
func IsSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !IsSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Store.Backend {
	case StoreBackendRedis:
		if cfg.Redis.Addr == "" {
			invalid = append(invalid, "Redis.Addr")
		}
		if cfg.Redis.DB < 0 {
			invalid = append(invalid, "Redis.DB")
		}
	case StoreBackendFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
		if cfg.Firestore.Collection == "" {
			invalid = append(invalid, "Firestore.Collection")
		}
	case StoreBackendMemory:
	default:
		invalid = append(invalid, "Store.Backend")
	}
	if cfg.Events.Topic != "" && cfg.Events.ProjectID == "" {
		invalid = append(invalid, "Events.ProjectID")
	}
	if _, err := currency.ParseISO(cfg.Cart.DefaultCurrency); err != nil {
		invalid = append(invalid, "Cart.DefaultCurrency")
	}
	if cfg.RateLimits.WritesPerMinute < 0 {
		invalid = append(invalid, "RateLimits.WritesPerMinute")
	}
	if cfg.RateLimits.WritesPerMinute > 0 && cfg.RateLimits.WriteBurst <= 0 {
		invalid = append(invalid, "RateLimits.WriteBurst")
	}

	if cfg.Idempotency.TTL < 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}
