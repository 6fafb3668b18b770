package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/discounts/internal/catalog"
	"github.com/utafrali/discounts/internal/config"
	"github.com/utafrali/discounts/internal/engine"
	"github.com/utafrali/discounts/internal/event"
	handler "github.com/utafrali/discounts/internal/handler/http"
	"github.com/utafrali/discounts/internal/repository/postgres"
	"github.com/utafrali/discounts/internal/service"
	"github.com/utafrali/discounts/migrations"
	"github.com/utafrali/discounts/pkg/database"
	"github.com/utafrali/discounts/pkg/health"
	"github.com/utafrali/discounts/pkg/httpclient"
	pkgkafka "github.com/utafrali/discounts/pkg/kafka"
	"github.com/utafrali/discounts/pkg/tracing"
)

// App wires together all dependencies and runs the discount service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	tracerShutdown func(context.Context) error
	httpServer     *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Initialize PostgreSQL connection pool.
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        25,
		MinConns:        5,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: 30 * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Redis backs the catalog membership cache. The catalog client degrades
	// to uncached lookups when the cache is unavailable, so a Redis outage
	// at startup is logged rather than fatal.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		logger.Warn("redis unavailable, catalog cache disabled",
			slog.String("addr", cfg.Redis().Addr()),
			slog.String("error", err.Error()),
		)
		redisClient = nil
	} else {
		logger.Info("connected to Redis", slog.String("addr", cfg.Redis().Addr()))
	}

	// Initialize Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// OpenTelemetry tracing (no-op unless OTEL_ENABLED is set).
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Collaborator service clients, each behind its own circuit breaker.
	baseHTTP := httpclient.New(httpclient.DefaultConfig())
	catalogHTTP := httpclient.NewCircuitBreakerClient(baseHTTP, httpclient.DefaultCircuitBreakerConfig("catalog"), logger)
	orderHTTP := httpclient.NewCircuitBreakerClient(baseHTTP, httpclient.DefaultCircuitBreakerConfig("order"), logger)

	catalogClient := catalog.NewClient(catalogHTTP, cfg.CatalogServiceURL, redisClient, logger)
	orderHistory := catalog.NewOrderHistoryClient(orderHTTP, cfg.OrderServiceURL)

	// Build the dependency graph.
	campaignRepo := postgres.NewCampaignRepository(pool)
	usageRepo := postgres.NewUsageRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	matcher := engine.NewMatcher(orderHistory, logger)
	resolver := engine.NewResolver(catalogClient, logger)
	registry := engine.NewRegistry(resolver, logger)
	evaluator := engine.NewEvaluator(campaignRepo, usageRepo, matcher, resolver, logger)

	campaignService := service.NewCampaignService(campaignRepo, eventProducer, logger)
	discountService := service.NewDiscountService(evaluator, registry, usageRepo, eventProducer, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	// HTTP router.
	router := handler.NewRouter(campaignService, discountService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		tracerShutdown: tracerShutdown,
		httpServer:     httpServer,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	// Graceful HTTP server shutdown with a 10-second deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	// Close Kafka producer.
	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
		}
	}

	if err := a.tracerShutdown(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	// Close PostgreSQL pool.
	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return nil
}
