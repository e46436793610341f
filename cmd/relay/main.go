package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orbnet/internal/core/domain"
	"orbnet/internal/core/ports"
	"orbnet/internal/core/services"
	httphandlers "orbnet/internal/handlers/http"
	"orbnet/internal/infrastructure/distributed"
	"orbnet/internal/infrastructure/janitor"
	"orbnet/internal/infrastructure/middleware"
	"orbnet/internal/infrastructure/monitoring"
	"orbnet/internal/infrastructure/presence"
	"orbnet/internal/infrastructure/reliability"
	repositories "orbnet/internal/infrastructure/repositories"
	snapshotinfra "orbnet/internal/infrastructure/snapshot"
	"orbnet/pkg/circuitbreaker"
	"orbnet/pkg/config"
	pkgdistributed "orbnet/pkg/distributed"
	"orbnet/pkg/logger"
	"orbnet/pkg/retry"
	"orbnet/pkg/snapshot"
	"orbnet/pkg/tracing"
	"orbnet/pkg/utils"
)

func main() {
	startTime := time.Now()

	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/orbnet/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracerProvider.Shutdown(shutdownCtx)
	}()

	// Stores
	storeFactory, err := repositories.NewStoreFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create store factory", "error", err)
	}
	defer storeFactory.Close()

	sessionStore := storeFactory.CreateSessionStore()
	rosterStore := storeFactory.CreateRosterStore()

	// The signal stream is the negotiation's critical path, so it gets
	// the retry/breaker treatment.
	signalStore := reliability.NewSignalStoreWrapper(
		storeFactory.CreateSignalStore(),
		retry.DefaultConfig(),
		circuitbreaker.DefaultConfig(),
		log,
	)

	// Metrics: the in-memory aggregates feed ops queries, the
	// Prometheus collector feeds /metrics. Traffic tees into both.
	metricsService := services.NewMetricsService()
	batchedMetrics := services.NewBatchedMetricsService(metricsService, 256, time.Second)
	defer batchedMetrics.Stop()

	var metrics ports.MetricsRecorder = batchedMetrics
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewTee(batchedMetrics, monitoring.NewPrometheusCollector())
	}

	// Services
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTL)
	livestreamService := services.NewCachedLivestreamService(
		services.NewLivestreamService(sessionStore, metrics),
		5*time.Second,
		2*time.Second,
	)
	defer livestreamService.Stop()

	// Snapshot restore before the hub opens: recreate sessions that
	// were live when the previous process died.
	var snapshotScheduler *snapshotinfra.Scheduler
	if cfg.Snapshot.Enabled {
		storage, err := snapshot.NewFileStorage(cfg.Snapshot.Directory)
		if err != nil {
			log.Fatalw("failed to create snapshot storage", "error", err)
		}
		snapshotService := snapshot.NewService(storage, "1")

		restorer := snapshotinfra.NewRestoreService(snapshotService, sessionStore, log)
		if restored, err := restorer.RestoreLatest(context.Background()); err != nil {
			log.Warnw("snapshot restore failed", "error", err)
		} else if restored > 0 {
			log.Infow("restored sessions from snapshot", "count", restored)
		}

		snapshotScheduler = snapshotinfra.NewScheduler(snapshotService, sessionStore, snapshotinfra.Config{
			Interval:      cfg.Snapshot.Interval,
			RetentionDays: cfg.Snapshot.RetentionDays,
		}, log)
	}

	// Presence hub, with cross-node fan-out when Redis is available.
	hub := presence.NewHub(rosterStore, metrics, log, presence.Options{
		PingInterval:   cfg.Presence.PingInterval,
		PongTimeout:    cfg.Presence.PongTimeout,
		WriteTimeout:   cfg.Presence.WriteTimeout,
		SendBuffer:     cfg.Presence.SendBuffer,
		MaxMessageSize: cfg.Presence.MaxMessageSize,
		AllowedOrigins: cfg.Auth.AllowedOrigins,
	})
	defer hub.Close()

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	instanceID := utils.GenerateInstanceID()

	var eventBus *distributed.EventBus
	if redisClient := storeFactory.RedisClient(); redisClient != nil {
		eventBus = distributed.NewEventBus(redisClient, instanceID, log)
		hub.SetFanout(eventBus)

		go func() {
			if err := eventBus.Subscribe(rootCtx, hub.Rebroadcast); err != nil && rootCtx.Err() == nil {
				log.Errorw("event bus subscription ended", "error", err)
			}
		}()
		defer eventBus.Close()

		log.Infow("cross-node presence fan-out enabled", "instance_id", instanceID)
	}

	// Janitor
	if cfg.Janitor.Enabled {
		var guard janitor.Guard
		if redisClient := storeFactory.RedisClient(); redisClient != nil {
			guard = pkgdistributed.NewLock(redisClient, "orbnet:janitor:lock", cfg.Janitor.Interval)
		}

		sweeper := janitor.NewSweeper(sessionStore, signalStore, rosterStore, guard, janitor.Config{
			Interval:  cfg.Janitor.Interval,
			Retention: cfg.Janitor.Retention,
		}, log)
		sweeper.Start(rootCtx)
		defer sweeper.Stop()
	}

	if snapshotScheduler != nil {
		go snapshotScheduler.Start(rootCtx)
		defer snapshotScheduler.Stop()
	}

	// Health checks
	healthChecker := monitoring.NewHealthChecker()
	if redisClient := storeFactory.RedisClient(); redisClient != nil {
		healthChecker.AddRedisCheck(redisClient, 30*time.Second, 2*time.Second)
	}
	healthChecker.AddSessionStoreCheck(sessionStore, 30*time.Second, 2*time.Second)

	// HTTP surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.ErrorHandlerMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	authHandler := httphandlers.NewAuthHandler(authService, cfg.Auth.AccessTokenTTL)
	authHandler.SetupRoutes(router)

	api := router.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(authService))
	httphandlers.NewSessionHandler(livestreamService).SetupRoutes(api)
	httphandlers.NewSignalHandler(signalStore, sessionStore, metrics).SetupRoutes(api)

	ws := router.Group("/ws")
	ws.Use(middleware.WebSocketAuthMiddleware(authService))
	ws.GET("/rooms/:id", func(c *gin.Context) {
		participant, ok := middleware.Participant(c)
		if !ok {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		hub.HandleWebSocket(c.Writer, c.Request, domain.RoomID(c.Param("id")), *participant)
	})

	router.GET("/health", func(c *gin.Context) {
		status := healthChecker.CheckAll(c.Request.Context())
		code := http.StatusOK
		if status.Status != "healthy" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status.Status,
			"checks":    status.Checks,
			"timestamp": status.Timestamp,
			"uptime":    time.Since(startTime).String(),
		})
	})

	router.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := storeFactory.HealthCheck(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "not_ready",
				"timestamp": time.Now(),
				"error":     err.Error(),
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "ready",
			"timestamp": time.Now(),
		})
	})

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting relay server", "address", cfg.Server.Address, "instance_id", instanceID)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	} else {
		log.Info("server shutdown gracefully")
	}

	log.Info("relay server stopped")
}
