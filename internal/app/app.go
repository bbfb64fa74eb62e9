package app

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/http"
	"github.com/yungbote/playhub-backend/internal/observability"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Router   *gin.Engine
	Cfg      Config
	Clients  Clients
	Repos    repos.Set
	Services Services
	SSEHub   *realtime.SSEHub
	Metrics  *observability.Metrics

	otelShutdown func(context.Context) error
}

func New(ctx context.Context) (*App, error) {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading configuration...")
	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	metrics := observability.Init(log)
	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: cfg.ServiceName,
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", ""),
	})

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	theDB := clients.DB()

	var ssehub *realtime.SSEHub
	if cfg.ServesAPI() {
		ssehub = realtime.NewSSEHub(log)
	}

	reposet := wireRepos(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, ssehub, metrics)
	if err != nil {
		clients.Close(log)
		log.Sync()
		return nil, err
	}

	if _, err := serviceset.Categories.EnsureDefault(ctx, cfg.DefaultCategoryName); err != nil {
		clients.Close(log)
		log.Sync()
		return nil, fmt.Errorf("ensure default category: %w", err)
	}

	a := &App{
		Log:          log,
		DB:           theDB,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		SSEHub:       ssehub,
		Metrics:      metrics,
		otelShutdown: otelShutdown,
	}
	if cfg.ServesAPI() {
		handlerset := wireHandlers(log, theDB, cfg, serviceset, clients.Storage, ssehub)
		middleware := wireMiddleware(log, serviceset)
		a.Router = wireRouter(log, cfg, handlerset, middleware, metrics)
	}
	return a, nil
}

// Start launches the background loops for the configured run mode. They all
// stop when ctx ends.
func (a *App) Start(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	log := a.Log

	if err := a.Services.Cache.StartInvalidationListener(ctx); err != nil {
		log.Warn("cache invalidation listener not started; peers may serve stale local entries", "error", err)
	}

	if a.SSEHub != nil && a.Clients.Bus != nil {
		if err := a.Clients.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
			log.Warn("realtime forwarder not started", "error", err)
		}
	}

	a.Metrics.StartServer(ctx, log, a.Cfg.MetricsAddr)
	a.Metrics.StartDBCollector(ctx, log, a.DB)
	a.Metrics.StartRedisCollector(ctx, log, a.Clients.Redis)
	a.Metrics.StartJobQueueCollector(ctx, log, a.DB, a.Repos.JobRuns)

	if !a.Cfg.RunsWorkers() {
		return nil
	}
	if a.Services.TemporalWorker != nil {
		if err := a.Services.TemporalWorker.Start(ctx); err != nil {
			return fmt.Errorf("start temporal worker: %w", err)
		}
	}
	if a.Services.JobWorker != nil {
		a.Services.JobWorker.Start(ctx)
	}
	if a.Services.Scheduler != nil {
		a.Services.Scheduler.Start(ctx)
	}
	return nil
}

// Run serves HTTP until ctx ends. Worker-only processes just wait.
func (a *App) Run(ctx context.Context) error {
	if a == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Router == nil {
		a.Log.Info("Running without HTTP API", "run_mode", a.Cfg.RunMode)
		<-ctx.Done()
		return nil
	}
	addr := ":" + a.Cfg.Port
	a.Log.Info("Server listening", "addr", addr, "run_mode", a.Cfg.RunMode)
	return (&http.Server{Engine: a.Router}).Serve(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.otelShutdown(shutdownCtx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
		cancel()
	}
	a.Clients.Close(a.Log)
	a.Log.Sync()
}
