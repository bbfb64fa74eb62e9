package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/cache"
	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/jobs/pipeline/game_publish"
	"github.com/yungbote/playhub-backend/internal/jobs/pipeline/like_count_refresh"
	"github.com/yungbote/playhub-backend/internal/jobs/pipeline/like_sync"
	jobruntime "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/jobs/scheduler"
	"github.com/yungbote/playhub-backend/internal/jobs/worker"
	"github.com/yungbote/playhub-backend/internal/observability"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/realtime"
	"github.com/yungbote/playhub-backend/internal/services"
	"github.com/yungbote/playhub-backend/internal/temporalx/temporalworker"
)

type Services struct {
	// Core
	Cache       *cache.Cache
	Invalidator services.CacheInvalidator
	Emitter     services.SSEEmitter
	Events      services.GameEventPublisher
	Auth        services.AuthService

	// Catalogue
	Categories services.CategoryService
	Allocator  services.PositionAllocator
	Games      services.GameService
	Intake     services.GameIntakeService
	Likes      services.LikeService
	Uploads    services.UploadService

	// Jobs + notifications
	JobNotifier services.JobNotifier
	JobService  services.JobService

	// Job infra
	JobRegistry    *jobruntime.Registry
	JobExecutor    *jobruntime.Executor
	JobWorker      *worker.Worker
	TemporalWorker *temporalworker.Runner
	Scheduler      *scheduler.Scheduler
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, rs repos.Set, clients Clients, hub *realtime.SSEHub, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")

	c, err := cache.New(log, cfg.Cache, clients.Redis, metrics)
	if err != nil {
		return Services{}, fmt.Errorf("init cache: %w", err)
	}
	invalidator := services.NewCacheInvalidator(log, c)
	emitter := wireEmitter(log, cfg, clients, hub)
	notifier := services.NewJobNotifier(emitter)
	events := services.NewGameEventPublisher(log, clients.Events, metrics)
	tx := dataagg.NewGormTxRunner(db)

	jobService := services.NewJobService(db, log, rs.JobRuns, notifier, cfg.Worker.DefaultMaxAttempts, clients.Temporal, cfg.Temporal.TaskQueue)

	categories := services.NewCategoryService(log, rs.Categories, c, invalidator)
	allocator := services.NewPositionAllocator(log, rs.Games, rs.Positions)
	likes := services.NewLikeService(log, rs.Games, rs.Likes, rs.LikeCounts, c, jobService, notifier, cfg.LikeSetTTL)
	games := services.NewGameService(log, tx, rs, categories, allocator, jobService, likes, c, invalidator, notifier, events, clients.Storage)
	intake := services.NewGameIntakeService(log, tx, rs.Games, rs.JobRuns, categories, allocator, jobService, invalidator, notifier, clients.Storage)
	uploads := services.NewUploadService(log, clients.Storage, cfg.MaxArchiveBytes, cfg.MaxThumbnailBytes)

	out := Services{
		Cache:       c,
		Invalidator: invalidator,
		Emitter:     emitter,
		Events:      events,
		Auth:        services.NewAuthService(log, cfg.JWTSecretKey),
		Categories:  categories,
		Allocator:   allocator,
		Games:       games,
		Intake:      intake,
		Likes:       likes,
		Uploads:     uploads,
		JobNotifier: notifier,
		JobService:  jobService,
	}

	// Job handlers are registered in every mode so enqueue paths and the
	// executor agree on the set of job types.
	reg := jobruntime.NewRegistry()
	handlers := []jobruntime.Handler{
		game_publish.New(game_publish.Deps{
			DB:          db,
			Log:         log,
			Games:       rs.Games,
			Files:       rs.Files,
			Storage:     clients.Storage,
			Invalidator: invalidator,
			Notify:      notifier,
			Events:      events,
			Thumbs:      clients.Thumbs,
		}, cfg.Publish),
		like_sync.New(db, log, rs.Likes, likes),
		like_count_refresh.New(db, log, rs.Games, rs.LikeCounts, invalidator, cfg.LikeRefresh),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return Services{}, fmt.Errorf("register job handler %s: %w", h.Type(), err)
		}
	}
	out.JobRegistry = reg
	out.JobExecutor = &jobruntime.Executor{
		DB:       db,
		Log:      log,
		Repo:     rs.JobRuns,
		Registry: reg,
		Notify:   notifier,
		Metrics:  metrics,
	}

	if !cfg.RunsWorkers() {
		return out, nil
	}

	if clients.Temporal != nil {
		runner, err := temporalworker.NewRunner(log, cfg.Temporal, cfg.TemporalWorker, clients.Temporal, db, rs.JobRuns, out.JobExecutor)
		if err != nil {
			return Services{}, fmt.Errorf("init temporal worker: %w", err)
		}
		out.TemporalWorker = runner
	} else {
		out.JobWorker = worker.NewWorker(db, log, rs.JobRuns, out.JobExecutor, cfg.Worker)
	}

	sched, err := scheduler.New(log, jobService, cfg.Scheduler)
	if err != nil {
		return Services{}, err
	}
	out.Scheduler = sched

	return out, nil
}

// wireEmitter routes notifications through redis when it is available so
// every API process sees them; otherwise straight into this process's hub.
// A worker-only process without redis has nobody to notify.
func wireEmitter(log *logger.Logger, cfg Config, clients Clients, hub *realtime.SSEHub) services.SSEEmitter {
	switch {
	case clients.Bus != nil:
		return &services.BusEmitter{Bus: clients.Bus, Log: log.With("component", "SSEBusEmitter")}
	case cfg.ServesAPI() && hub != nil:
		return &services.HubEmitter{Hub: hub}
	default:
		log.Warn("No realtime sink available; job notifications are dropped")
		return services.NopEmitter{}
	}
}
