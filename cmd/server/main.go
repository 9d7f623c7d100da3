package main

import (
	"context"
	"log"
	"time"

	goRedis "github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	apiHandler "github.com/fastygo/studyplanner/api/handler"
	"github.com/fastygo/studyplanner/internal/config"
	"github.com/fastygo/studyplanner/internal/infrastructure/buffer"
	"github.com/fastygo/studyplanner/internal/infrastructure/monitor"
	pgInfra "github.com/fastygo/studyplanner/internal/infrastructure/postgres"
	redisInfra "github.com/fastygo/studyplanner/internal/infrastructure/redis"
	"github.com/fastygo/studyplanner/internal/middleware"
	"github.com/fastygo/studyplanner/internal/notify"
	"github.com/fastygo/studyplanner/internal/router"
	"github.com/fastygo/studyplanner/internal/services"
	"github.com/fastygo/studyplanner/internal/services/lifecycle"
	"github.com/fastygo/studyplanner/pkg/httpcontext"
	"github.com/fastygo/studyplanner/pkg/logger"
	"github.com/fastygo/studyplanner/repository"
	"github.com/fastygo/studyplanner/repository/postgres"
	redisRepo "github.com/fastygo/studyplanner/repository/redis"
	"github.com/fastygo/studyplanner/usecase/planner"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	zapLogger, err := logger.New(logger.Config{
		Level:    cfg.Logger.Level,
		Encoding: cfg.Logger.Encoding,
	})
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer zapLogger.Sync()

	manager := lifecycle.New(cfg.Context.ShutdownTimeout, zapLogger)
	appCtx, cancel := manager.Listen(context.Background())
	defer cancel()

	if cfg.Migrations.Enabled {
		if err := pgInfra.Migrate(cfg.Database.URL, cfg.Migrations.Path, zapLogger); err != nil {
			zapLogger.Fatal("migrations failed", zap.Error(err))
		}
	}

	pool, err := pgInfra.Open(appCtx, cfg.Database, cfg.AppName, zapLogger)
	if err != nil {
		zapLogger.Fatal("postgres connection failed", zap.Error(err))
	}
	manager.Register("postgres", func(ctx context.Context) error {
		pgInfra.Close(pool, zapLogger)
		return nil
	})

	var activityRepo repository.ActivityRepository = postgres.NewActivityRepository(pool)
	var sessionRepo repository.SessionRepository = postgres.NewSessionRepository(pool)

	var redisClient *goRedis.Client
	if client, err := redisInfra.NewClient(appCtx, cfg.Redis, zapLogger); err != nil {
		zapLogger.Warn("redis unavailable, serving without cache", zap.Error(err))
	} else {
		redisClient = client
		activityRepo = redisRepo.NewActivityRepository(activityRepo, redisClient, cfg.Redis.CacheTTL, zapLogger)
		sessionRepo = redisRepo.NewSessionRepository(sessionRepo, redisClient, cfg.Redis.CacheTTL, zapLogger)
		manager.Register("redis", func(ctx context.Context) error {
			return redisClient.Close()
		})
	}

	bufferStore, err := buffer.Open(cfg.Buffer.Path, "pending_writes")
	if err != nil {
		zapLogger.Fatal("failed to open buffer store", zap.Error(err))
	}
	bufferStore.WithLimit(cfg.Buffer.MaxItems)
	manager.Register("buffer", func(ctx context.Context) error {
		return bufferStore.Close()
	})

	mon := monitor.New(bufferStore, cfg.Buffer.MonitorInterval, zapLogger).
		Require("postgres", pool.Ping, 3*time.Second)
	if redisClient != nil {
		mon.Observe("redis", func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }, 2*time.Second)
	}

	bufferProcessor := services.NewBufferProcessor(
		bufferStore,
		mon,
		activityRepo,
		sessionRepo,
		zapLogger,
		services.ProcessorConfig{
			Interval:   cfg.Buffer.SyncInterval,
			BatchSize:  50,
			MaxRetries: cfg.Buffer.MaxRetry,
			Retention:  cfg.Buffer.Retention,
		},
	)
	mon.OnReconnect(bufferProcessor.DrainAsync)
	mon.Start()
	manager.Register("monitor", func(ctx context.Context) error {
		mon.Stop()
		return nil
	})
	bufferProcessor.Start()
	manager.Register("buffer_processor", func(ctx context.Context) error {
		bufferProcessor.Stop(ctx)
		return nil
	})

	bridge := services.NewBufferBridge(bufferProcessor, zapLogger)

	var publisher notify.Publisher = notify.Nop{}
	if cfg.Kafka.Enabled() {
		publisher = notify.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, zapLogger)
		zapLogger.Info("publishing planner changes", zap.Strings("brokers", cfg.Kafka.Brokers), zap.String("topic", cfg.Kafka.Topic))
	}
	manager.Register("publisher", func(ctx context.Context) error {
		return publisher.Close()
	})

	planners := planner.NewManager(bridge.Activities(), bridge.Sessions(), planner.ManagerConfig{
		IdleTTL:       cfg.Planner.IdleTTL,
		SweepInterval: cfg.Planner.SweepInterval,
		Options: planner.Options{
			UndoWindow:   cfg.Planner.UndoWindow,
			WriteTimeout: cfg.Planner.WriteTimeout,
			Location:     cfg.Planner.Location(),
			Publisher:    publisher,
			Logger:       zapLogger,
		},
	})
	planners.Start()
	// commits every pending undo entry before the stores close
	manager.Register("planners", planners.Shutdown)

	ctxAdapter := httpcontext.NewAdapter(cfg.Context.RequestTimeout)
	handlers := router.Handlers{
		Planner: apiHandler.NewPlannerHandler(planners, cfg.Planner.Location(), ctxAdapter, zapLogger),
		Health:  apiHandler.NewHealthHandler(mon, ctxAdapter, zapLogger),
	}

	authMiddleware := middleware.JWTAuth(cfg.JWT.Secret, cfg.JWT.Issuer, zapLogger)
	r := router.New(handlers, authMiddleware, router.Options{
		EnableMetrics: cfg.HTTP.EnableMetrics,
		EnablePprof:   cfg.HTTP.EnablePprof,
	})

	server := &fasthttp.Server{
		Handler:      r.Handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
		Concurrency:  cfg.HTTP.MaxConn,
		Name:         cfg.AppName,
	}

	go func() {
		zapLogger.Info("server started", zap.String("address", cfg.Address()))
		if err := server.ListenAndServe(cfg.Address()); err != nil {
			zapLogger.Error("server stopped", zap.Error(err))
			cancel()
		}
	}()

	manager.Register("http_server", func(ctx context.Context) error {
		return server.ShutdownWithContext(ctx)
	})

	<-appCtx.Done()

	if err := manager.Shutdown(context.Background()); err != nil {
		zapLogger.Error("graceful shutdown error", zap.Error(err))
	}
}
