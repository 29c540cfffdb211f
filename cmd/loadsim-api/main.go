package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/course-registration-loadsim/api/swagger"
	"github.com/noah-isme/course-registration-loadsim/internal/handler"
	internalmiddleware "github.com/noah-isme/course-registration-loadsim/internal/middleware"
	"github.com/noah-isme/course-registration-loadsim/internal/models"
	"github.com/noah-isme/course-registration-loadsim/internal/repository"
	"github.com/noah-isme/course-registration-loadsim/internal/service"
	"github.com/noah-isme/course-registration-loadsim/pkg/cache"
	"github.com/noah-isme/course-registration-loadsim/pkg/config"
	"github.com/noah-isme/course-registration-loadsim/pkg/database"
	"github.com/noah-isme/course-registration-loadsim/pkg/events"
	"github.com/noah-isme/course-registration-loadsim/pkg/jobs"
	"github.com/noah-isme/course-registration-loadsim/pkg/logger"
	corsmiddleware "github.com/noah-isme/course-registration-loadsim/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/course-registration-loadsim/pkg/middleware/requestid"
	"github.com/noah-isme/course-registration-loadsim/pkg/storage"
)

// @title Course Registration Load Simulator API
// @version 1.0.0
// @description Control plane for queuing load runs and retrieving their reports
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.ReadinessCheck{}
	deps := service.RunServiceDeps{
		Catalog:   repository.NewCatalogRepository(),
		Resources: service.NewResourceSampler(logr),
		Logger:    logr,
	}

	var redisClient *redis.Client
	if strings.EqualFold(cfg.Simulation.LedgerBackend, config.LedgerRedis) {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect redis", "error", err)
		}
		defer redisClient.Close()
		deps.Redis = redisClient
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	var db *sqlx.DB
	if cfg.Persistence.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect postgres", "error", err)
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Sugar().Fatalw("failed to apply schema", "error", err)
		}
		deps.Runs = repository.NewRunRepository(db)
		deps.Attempts = repository.NewAttemptRepository(db, cfg.Persistence.BatchSize)
		checks["postgres"] = db.PingContext
	}

	if cfg.Events.Enabled {
		publisher, err := events.Dial(cfg.Events.URL, cfg.Events.Queue, logr)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect amqp", "error", err)
		}
		defer publisher.Close()
		deps.Events = publisher
	}

	artifactStore, err := storage.NewLocalStorage(cfg.Artifacts.OutputDir)
	if err != nil {
		logr.Sugar().Fatalw("failed to open artifact dir", "error", err)
	}
	signer := storage.NewSignedURLSigner(cfg.Artifacts.SignedURLSecret, cfg.Artifacts.SignedURLTTL)
	deps.Exporter = service.NewExportService(artifactStore, signer, service.ExportConfig{APIPrefix: cfg.APIPrefix}, logr, nil, nil, nil)

	metricsSvc := service.NewMetricsService()
	deps.Metrics = metricsSvc
	tokens := service.NewTokenService(cfg.JWT)

	runSvc, queue := newRunService(cfg, deps, logr)
	queue.Start(ctx)
	defer queue.Stop()
	checks["run_queue"] = queue.Ready
	runSvc.StartCleanup(ctx)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(internalmiddleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc, checks)
	runHandler := handler.NewRunHandler(runSvc, logr)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/metrics/live", metricsHandler.Live)
	api.GET("/artifacts/:token", runHandler.DownloadArtifact)

	runs := api.Group("/runs")
	runs.GET("", runHandler.ListRuns)
	runs.GET("/:id", runHandler.GetRun)
	runs.GET("/:id/slo", runHandler.GetRunSLO)
	runs.GET("/:id/artifacts", runHandler.ListArtifacts)
	runs.POST("", internalmiddleware.JWT(tokens), internalmiddleware.RequireRole(models.RoleOperator), runHandler.CreateRun)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
	}
}

// newRunService wires the run queue and its worker around the service. The
// queue and the service reference each other, so the handler closes over the
// worker after both exist.
func newRunService(cfg *config.Config, deps service.RunServiceDeps, logr *zap.Logger) (*service.RunService, *jobs.Queue) {
	var worker *service.RunWorker
	queue := jobs.NewQueue("load-runs", func(ctx context.Context, job jobs.Job) error {
		return worker.Handle(ctx, job)
	}, jobs.QueueConfig{
		Workers:    cfg.Runs.WorkerConcurrency,
		BufferSize: cfg.Runs.BufferSize,
		MaxRetries: cfg.Runs.WorkerRetries,
		Logger:     logr,
	})
	deps.Queue = queue
	svc := service.NewRunService(cfg, deps)
	worker = service.NewRunWorker(svc, logr)
	return svc, queue
}
