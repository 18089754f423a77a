package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/AkshayPatil96/e-com-backend-sub002/internal/core/port"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/config"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/database"
	kafkainfra "github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/kafka"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/logger"
	redisinfra "github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/redis"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/infra/telemetry"
	memoryrepo "github.com/AkshayPatil96/e-com-backend-sub002/internal/repository/memory"
	postgresrepo "github.com/AkshayPatil96/e-com-backend-sub002/internal/repository/postgres"
	redisrepo "github.com/AkshayPatil96/e-com-backend-sub002/internal/repository/redis"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/transport/http/middleware"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/transport/http/routes"
	"github.com/AkshayPatil96/e-com-backend-sub002/internal/usecase"
)

// Services is the in-process version API.
type Services struct {
	Versions  *usecase.VersionService
	Analytics *usecase.AnalyticsService
	Retention *usecase.RetentionService
	Export    *usecase.ExportService
}

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	tracer    *telemetry.TracerProvider
	producer  *kafkainfra.Producer
	consumers *kafkainfra.ConsumerGroup
	analytics *kafkainfra.AnalyticsConsumer
	services  Services
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &Application{cfg: cfg, logger: log}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.App.Env, log)
		if err != nil {
			log.Warn("failed to init tracer provider, spans are dropped", zap.Error(err))
		} else {
			a.tracer = tp
		}
	}

	versionMetrics, err := telemetry.NewVersionMetrics(telemetry.VersionMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init version metrics: %w", err)
	}
	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	var (
		repo  port.VersionRepository
		store port.VersionStore
	)
	switch cfg.Versioning.StoreDriver {
	case config.StoreDriverMemory:
		mem := memoryrepo.NewStore()
		repo, store = mem, mem
		log.Warn("using in-memory version store; data is lost on restart")
	default:
		pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		a.pool = pool
		pg := postgresrepo.NewStore(pool)
		repo, store = pg.Versions(), pg
	}

	var (
		pointers port.VersionPointerCache
		deduper  port.ViewDeduper
	)
	if cfg.Redis.Enabled {
		client, err := redisinfra.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Warn("redis unavailable, pointer cache and view dedupe disabled", zap.Error(err))
		} else {
			a.redis = client
			pointers = redisrepo.NewVersionPointerCache(client.Client(), cfg.Redis.PointerPrefix)
			deduper = redisrepo.NewViewDeduper(client.Client(), cfg.Redis.ViewPrefix)
		}
	}

	var events port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			events = kafkainfra.NewStubPublisher(log)
		} else {
			a.producer = producer
			events = kafkainfra.NewEventPublisher(producer, cfg.App, log)
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		events = kafkainfra.NewStubPublisher(log)
	}

	retry := usecase.RetryPolicy{
		MaxRetries: cfg.Versioning.MaxRetries,
		Backoff:    cfg.Versioning.RetryBackoff,
	}

	versions := usecase.NewVersionService(repo, store.InTx, pointers, events, usecase.VersionOptions{
		Retry:         retry,
		CacheTTL:      cfg.Redis.PointerTTL,
		AuditKeepLast: cfg.Versioning.AuditKeepLast,
	}).WithLogger(log).WithMetrics(versionMetrics)
	if a.tracer != nil {
		versions.WithTracer(a.tracer.Tracer(usecase.TracerName))
	}

	analytics := usecase.NewAnalyticsService(repo, store.InTx, deduper, usecase.AnalyticsOptions{
		Retry:      retry,
		ViewWindow: cfg.Analytics.ViewDedupeWindow,
		FanOut:     cfg.Analytics.SummaryFanOut,
	}).WithLogger(log).WithMetrics(versionMetrics)

	a.services = Services{
		Versions:  versions,
		Analytics: analytics,
		Retention: usecase.NewRetentionService(repo, versions).WithLogger(log),
		Export:    usecase.NewExportService(repo),
	}

	if a.producer != nil && cfg.Kafka.ConsumerGroup != "" {
		group, err := kafkainfra.NewConsumerGroup(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to join analytics consumer group", zap.Error(err))
		} else {
			a.consumers = group
			a.analytics = kafkainfra.NewAnalyticsConsumer(analytics, log)
		}
	}

	deps := routes.Dependencies{
		Config:  cfg,
		Logger:  log,
		Metrics: httpMetrics,
	}
	if a.pool != nil {
		deps.Database = a.pool
	}
	if a.redis != nil {
		deps.Cache = a.redis
	}
	a.engine = routes.Register(deps)

	return a, nil
}

// Services returns the version API for in-process callers.
func (a *Application) Services() Services {
	return a.services
}

func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting product version service",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
		zap.String("store", a.cfg.Versioning.StoreDriver),
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("run server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	})

	if a.consumers != nil {
		g.Go(func() error {
			return a.consumers.Run(gctx, a.analytics, kafkainfra.AnalyticsTopic)
		})
	}

	if a.cfg.Retention.Enabled {
		g.Go(func() error {
			a.runRetention(gctx)
			return nil
		})
	}

	return g.Wait()
}

func (a *Application) runRetention(ctx context.Context) {
	policy := usecase.RetentionPolicy{
		OlderThanDays:    a.cfg.Retention.OlderThanDays,
		KeepMinimum:      a.cfg.Retention.KeepMinimum,
		ExcludePublished: a.cfg.Retention.ExcludePublished,
		ExcludeActive:    a.cfg.Retention.ExcludeActive,
	}

	ticker := time.NewTicker(a.cfg.Retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.services.Retention.CleanupOldVersions(ctx, policy); err != nil && ctx.Err() == nil {
				a.logger.Error("retention cleanup failed", zap.Error(err))
			}
		}
	}
}

func (a *Application) close() {
	if a.consumers != nil {
		if err := a.consumers.Close(); err != nil {
			a.logger.Warn("close consumer group", zap.Error(err))
		}
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Warn("close producer", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.Background()); err != nil {
			a.logger.Warn("shutdown tracer", zap.Error(err))
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.logger.Sync()
}
