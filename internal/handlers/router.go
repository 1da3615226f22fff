package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/httpx"
)

// RouteRegistrar registers a set of routes against the provided router.
type RouteRegistrar func(r chi.Router)

type routerConfig struct {
	middlewares []func(http.Handler) http.Handler
	timeout     time.Duration
	health      *HealthHandlers
	info        ServiceInfo

	cart           RouteRegistrar
	cartMiddleware []func(http.Handler) http.Handler
	taxRates       RouteRegistrar
}

// ServiceInfo is returned by GET /.
type ServiceInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Option customises the router configuration before construction.
type Option func(*routerConfig)

const (
	defaultTimeout    = 30 * time.Second
	errorNotFoundCode = "route_not_found"
)

// NewRouter constructs the chi router. Request ids and real client addresses are resolved first,
// followed by caller supplied middleware; the request timeout is applied last.
func NewRouter(opts ...Option) chi.Router {
	cfg := routerConfig{
		middlewares: []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
		},
		timeout: defaultTimeout,
		info:    ServiceInfo{Name: "Cart API", Version: "1.0.0"},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.health == nil {
		cfg.health = NewHealthHandlers(WithBuildVersion(cfg.info.Version))
	}

	r := chi.NewRouter()
	for _, mw := range cfg.middlewares {
		if mw != nil {
			r.Use(mw)
		}
	}
	if cfg.timeout > 0 {
		r.Use(middleware.Timeout(cfg.timeout))
	}

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError(errorNotFoundCode, fmt.Sprintf("no route for %s", req.URL.Path), http.StatusNotFound))
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		httpx.WriteError(req.Context(), w, httpx.NewError("method_not_allowed", fmt.Sprintf("method %s not allowed on %s", req.Method, req.URL.Path), http.StatusMethodNotAllowed))
	})

	info := cfg.info
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, info)
	})
	r.Get("/healthz", cfg.health.Healthz)
	r.Get("/readyz", cfg.health.Readyz)

	mount := func(path string, registrar RouteRegistrar, groupMW []func(http.Handler) http.Handler) {
		if registrar == nil {
			return
		}
		r.Route(path, func(group chi.Router) {
			for _, mw := range groupMW {
				if mw != nil {
					group.Use(mw)
				}
			}
			registrar(group)
		})
	}
	mount("/tax-rates", cfg.taxRates, nil)
	mount("/cart", cfg.cart, cfg.cartMiddleware)

	return r
}

// WithMiddlewares appends global middleware after request id and real ip resolution.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// WithTimeout overrides the per-request timeout. Zero disables it.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *routerConfig) {
		cfg.timeout = timeout
	}
}

// WithHealthHandlers overrides the handlers used for /healthz and /readyz.
func WithHealthHandlers(h *HealthHandlers) Option {
	return func(cfg *routerConfig) {
		cfg.health = h
	}
}

// WithServiceInfo overrides the banner served at GET /.
func WithServiceInfo(info ServiceInfo) Option {
	return func(cfg *routerConfig) {
		if info.Name != "" {
			cfg.info.Name = info.Name
		}
		if info.Version != "" {
			cfg.info.Version = info.Version
		}
	}
}

// WithCartRoutes configures the registrar responsible for /cart endpoints.
func WithCartRoutes(reg RouteRegistrar, mw ...func(http.Handler) http.Handler) Option {
	return func(cfg *routerConfig) {
		cfg.cart = reg
		cfg.cartMiddleware = append(cfg.cartMiddleware, mw...)
	}
}

// WithTaxRateRoutes configures the registrar responsible for /tax-rates.
func WithTaxRateRoutes(reg RouteRegistrar) Option {
	return func(cfg *routerConfig) {
		cfg.taxRates = reg
	}
}
