package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/handlers"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/config"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/events"
	pfirestore "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/firestore"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/idempotency"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/observability"
	predis "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/redis"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/platform/secrets"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories"
	firestoreRepo "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories/firestore"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories/memory"
	redisRepo "github.com/RaghuChandrasekaran/kubecon-india-2025/internal/repositories/redis"
	"github.com/RaghuChandrasekaran/kubecon-india-2025/internal/services"
)

func main() {
	ctx := context.Background()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("cart")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := secrets.NewFetcher(ctx,
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithProject(secretProjectFromEnv(envValues)),
	)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(fetcher))
	if err != nil {
		var validation *config.ValidationError
		if errors.As(err, &validation) {
			logger.Fatal("invalid configuration", zap.Strings("fields", validation.Fields()), zap.Error(err))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := openCartStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise cart store", zap.String("backend", cfg.Store.Backend), zap.Error(err))
	}
	defer store.close()
	cartRepo := store.repo

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	if _, ok := store.idempotency.(*idempotency.FirestoreStore); ok && cfg.Idempotency.TTL > 0 && cfg.Idempotency.CleanupInterval > 0 {
		cleanupWG.Add(1)
		go func() {
			defer cleanupWG.Done()
			runIdempotencyCleanup(cleanupCtx, store.idempotency, cfg.Idempotency.CleanupInterval, logger.Named("idempotency"))
		}()
	}

	checks := []repositories.DependencyCheck{
		{Name: repositories.CartStoreCheckName, Check: cartRepo.Ping},
	}

	var publisher services.CartEventPublisher
	if cfg.Events.Topic != "" {
		topic, closeTopic, err := events.OpenTopic(ctx, cfg.Events.ProjectID, cfg.Events.Topic)
		if err != nil {
			logger.Fatal("failed to open cart event topic", zap.String("topic", cfg.Events.Topic), zap.Error(err))
		}
		defer func() {
			if err := closeTopic(); err != nil {
				logger.Warn("pubsub close error", zap.Error(err))
			}
		}()
		pub, err := events.NewPubSubCartPublisher(topic)
		if err != nil {
			logger.Fatal("failed to initialise cart event publisher", zap.Error(err))
		}
		publisher = pub
		checks = append(checks, repositories.DependencyCheck{Name: "events", Check: topicCheck(topic)})
	}

	cartService, err := services.NewCartService(services.CartServiceDeps{
		Repository: cartRepo,
		Assembler: services.NewCartAssembler(services.CartAssemblerDeps{
			DefaultCurrency: cfg.Cart.DefaultCurrency,
		}),
		Events: publisher,
		Logger: observability.EventLogger(logger.Named("service")),
	})
	if err != nil {
		logger.Fatal("failed to initialise cart service", zap.Error(err))
	}

	readiness, err := repositories.NewDependencyHealthRepository(checks)
	if err != nil {
		logger.Fatal("failed to initialise readiness checks", zap.Error(err))
	}
	version := strings.TrimSpace(envValues["CART_BUILD_VERSION"])
	healthHandlers := handlers.NewHealthHandlers(
		handlers.WithReadiness(readiness),
		handlers.WithBuildVersion(version),
	)

	middlewares := []func(http.Handler) http.Handler{
		observability.InjectLoggerMiddleware(logger.Named("http")),
		observability.TraceMiddleware(cfg.Observability.TraceProjectID),
		observability.RequestLoggerMiddleware(),
		observability.RecoveryMiddleware(logger.Named("http")),
	}

	var cartMiddlewares []func(http.Handler) http.Handler
	if limiter := handlers.NewWriteRateLimiter(cfg.RateLimits.WritesPerMinute, cfg.RateLimits.WriteBurst, nil); limiter != nil {
		cartMiddlewares = append(cartMiddlewares, limiter.Middleware)
	}
	if cfg.Idempotency.TTL > 0 {
		idemOpts := []idempotency.MiddlewareOption{idempotency.WithTTL(cfg.Idempotency.TTL)}
		if cfg.Idempotency.KeyRequired {
			idemOpts = append(idemOpts, idempotency.WithKeyRequired())
		}
		cartMiddlewares = append(cartMiddlewares, idempotency.Middleware(store.idempotency, idemOpts...))
	}

	router := handlers.NewRouter(
		handlers.WithMiddlewares(middlewares...),
		handlers.WithHealthHandlers(healthHandlers),
		handlers.WithServiceInfo(handlers.ServiceInfo{Version: version}),
		handlers.WithTaxRateRoutes(handlers.NewTaxRateHandlers().Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(cartService).Routes, cartMiddlewares...),
	)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr), zap.String("store", cfg.Store.Backend))
	go func() {
		serverLogger.Info("cart api listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

type cartStore struct {
	repo        repositories.CartRepository
	idempotency idempotency.Store
	close       func()
}

// openCartStore builds the configured cart repository and the idempotency store kept next to it.
func openCartStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (cartStore, error) {
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		client, err := predis.NewClient(cfg.Redis)
		if err != nil {
			return cartStore{}, err
		}
		closeFn := func() {
			if err := client.Close(); err != nil {
				logger.Warn("redis close error", zap.Error(err))
			}
		}
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		if err := predis.Ping(pingCtx, client); err != nil {
			logger.Warn("redis not reachable at startup", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		repo, err := redisRepo.NewCartRepository(client, cfg.Redis.KeyPrefix)
		if err != nil {
			closeFn()
			return cartStore{}, err
		}
		idem, err := idempotency.NewRedisStore(client, "")
		if err != nil {
			closeFn()
			return cartStore{}, err
		}
		return cartStore{repo: repo, idempotency: idem, close: closeFn}, nil
	case config.StoreBackendFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		if _, err := provider.Client(ctx); err != nil {
			return cartStore{}, err
		}
		closeFn := func() {
			if err := provider.Close(); err != nil {
				logger.Warn("firestore close error", zap.Error(err))
			}
		}
		repo, err := firestoreRepo.NewCartRepository(provider, cfg.Firestore.Collection)
		if err != nil {
			closeFn()
			return cartStore{}, err
		}
		idem, err := idempotency.NewFirestoreStore(provider)
		if err != nil {
			closeFn()
			return cartStore{}, err
		}
		return cartStore{repo: repo, idempotency: idem, close: closeFn}, nil
	case config.StoreBackendMemory:
		logger.Warn("using in-memory cart store; carts are lost on restart")
		return cartStore{repo: memory.NewCartRepository(), idempotency: idempotency.NewMemoryStore(), close: func() {}}, nil
	default:
		return cartStore{}, fmt.Errorf("unsupported cart store backend %q", cfg.Store.Backend)
	}
}

func runIdempotencyCleanup(ctx context.Context, store idempotency.Store, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), 500)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

func topicCheck(topic *pubsub.Topic) func(context.Context) error {
	return func(ctx context.Context) error {
		ok, err := topic.Exists(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("topic %s does not exist", topic.ID())
		}
		return nil
	}
}

func secretProjectFromEnv(env map[string]string) string {
	for _, key := range []string{"CART_SECRETS_PROJECT_ID", "CART_FIRESTORE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT"} {
		if value := strings.TrimSpace(env[key]); value != "" {
			return value
		}
	}
	return ""
}
