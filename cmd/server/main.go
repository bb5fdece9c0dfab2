package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	numberingapp "github.com/ledgerflow/numbering/internal/application/numbering"
	"github.com/ledgerflow/numbering/internal/domain/shared"
	"github.com/ledgerflow/numbering/internal/infrastructure/cache"
	"github.com/ledgerflow/numbering/internal/infrastructure/config"
	"github.com/ledgerflow/numbering/internal/infrastructure/counter"
	"github.com/ledgerflow/numbering/internal/infrastructure/logger"
	"github.com/ledgerflow/numbering/internal/infrastructure/persistence"
	"github.com/ledgerflow/numbering/internal/infrastructure/resilience"
	"github.com/ledgerflow/numbering/internal/infrastructure/telemetry"
	"github.com/ledgerflow/numbering/internal/interfaces/http/handler"
	"github.com/ledgerflow/numbering/internal/interfaces/http/middleware"
	"github.com/ledgerflow/numbering/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting numbering service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.App.Name,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:           cfg.Profiler.Enabled,
		ServerAddress:     cfg.Profiler.ServerAddress,
		ApplicationName:   cfg.App.Name,
		ProfileCPU:        true,
		ProfileInuseSpace: true,
		ProfileGoroutines: true,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		if err := tracerProvider.EnableSpanProfiles(); err != nil {
			log.Warn("Failed to enable span profiles", zap.Error(err))
		}
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	db, err := persistence.NewDatabaseWithCustomLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	redisCounter, err := counter.NewRedisCounter(counter.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		// the fallback authority is optional at startup: the allocator keeps
		// serving through the primary and degrades further if needed
		log.Warn("Redis unavailable at startup, fallback counter will rely on reconnects", zap.Error(err))
		redisCounter = counter.NewRedisCounterFromConfig(counter.Config{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	defer func() {
		if err := redisCounter.Close(); err != nil {
			log.Error("Error closing Redis client", zap.Error(err))
		}
	}()

	clock := resilience.SystemClock()

	reservationRepo := persistence.NewGormReservationRepository(db.DB)
	sequenceAuthority := persistence.NewGormSequenceAuthority(db.DB, cfg.Allocator.Series)

	primaryBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "sequence_authority",
		FailureThreshold: cfg.Breaker.SequenceAuthority.FailureThreshold,
		OpenTimeout:      cfg.Breaker.SequenceAuthority.OpenTimeout,
	}, clock, log)
	fallbackBreaker := resilience.NewBreaker(resilience.BreakerConfig{
		Name:             "fallback_counter",
		FailureThreshold: cfg.Breaker.FallbackCounter.FailureThreshold,
		OpenTimeout:      cfg.Breaker.FallbackCounter.OpenTimeout,
	}, clock, log)

	allocator := numberingapp.NewAllocatorService(
		sequenceAuthority,
		redisCounter,
		reservationRepo,
		primaryBreaker,
		fallbackBreaker,
		clock,
		log,
		numberingapp.AllocatorConfig{
			Series:               cfg.Allocator.Series,
			ReservationValidity:  cfg.Allocator.ReservationValidity,
			CollisionMaxAttempts: cfg.Allocator.CollisionMaxAttempts,
			RetryMaxAttempts:     cfg.Allocator.RetryMaxAttempts,
			RetryBaseDelay:       cfg.Allocator.RetryBaseDelay,
			EmergencyEnabled:     cfg.Allocator.EmergencyEnabled,
		},
	)

	sweeper := numberingapp.NewSweeper(reservationRepo, numberingapp.SweeperConfig{
		Interval: cfg.Sweeper.Interval,
	}, clock, log)
	if cfg.Sweeper.Enabled {
		if err := sweeper.Start(); err != nil {
			log.Fatal("Failed to start reservation sweeper", zap.Error(err))
		}
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(middleware.RequestID())
	engine.Use(middleware.Tenant())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	numberingHandler := handler.NewNumberingHandler(allocator, cfg.Allocator.MaxBatchSize)
	if cfg.Idempotency.Enabled {
		var idemStore shared.IdempotencyStore
		idemStore, err = cache.NewRedisIdempotencyStore(cache.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Warn("Redis idempotency store unavailable, using in-memory store", zap.Error(err))
			idemStore = cache.NewInMemoryIdempotencyStore()
		}
		defer func() {
			if err := idemStore.Close(); err != nil {
				log.Error("Error closing idempotency store", zap.Error(err))
			}
		}()
		numberingHandler.WithIdempotency(idemStore, cfg.Idempotency.TTL)
	}
	systemHandler := handler.NewSystemHandler(db, redisCounter, allocator)

	router.NewRouter(engine).
		Register(numberingHandler).
		Register(systemHandler).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}
	if err := sweeper.Stop(ctx); err != nil {
		log.Error("Sweeper shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}
