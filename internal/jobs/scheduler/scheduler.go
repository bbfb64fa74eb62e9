package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

type Config struct {
	// LikeRefreshSchedule is a cron expression; descriptors such as @daily and @every 6h are accepted.
	LikeRefreshSchedule string
	RunOnStart          bool
}

func ConfigFromEnv() Config {
	cfg := Config{
		LikeRefreshSchedule: envutil.String("LIKE_REFRESH_SCHEDULE", "@daily"),
		RunOnStart:          envutil.Bool("LIKE_REFRESH_ON_START", true),
	}
	if d := envutil.Duration("LIKE_REFRESH_INTERVAL", 0); d > 0 {
		cfg.LikeRefreshSchedule = fmt.Sprintf("@every %s", d)
	}
	return cfg
}

// Scheduler enqueues periodic maintenance jobs. The jobs themselves run on the
// worker, so several API processes scheduling at once still produce one
// runnable row per job type.
type Scheduler struct {
	log  *logger.Logger
	jobs services.JobService
	cron *cron.Cron
	cfg  Config
}

func New(baseLog *logger.Logger, jobs services.JobService, cfg Config) (*Scheduler, error) {
	if jobs == nil {
		return nil, fmt.Errorf("scheduler: job service required")
	}
	if strings.TrimSpace(cfg.LikeRefreshSchedule) == "" {
		cfg.LikeRefreshSchedule = "@daily"
	}
	s := &Scheduler{
		log:  baseLog.With("component", "JobScheduler"),
		jobs: jobs,
		cron: cron.New(cron.WithLocation(time.UTC)),
		cfg:  cfg,
	}
	if _, err := s.cron.AddFunc(cfg.LikeRefreshSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.EnqueueLikeRefresh(ctx); err != nil {
			s.log.Warn("like count refresh enqueue failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("scheduler: bad like refresh schedule %q: %w", cfg.LikeRefreshSchedule, err)
	}
	return s, nil
}

// Start runs the cron loop until ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.log.Info("Starting job scheduler", "like_refresh_schedule", s.cfg.LikeRefreshSchedule)
	if s.cfg.RunOnStart {
		if _, err := s.EnqueueLikeRefresh(ctx); err != nil {
			s.log.Warn("like count refresh enqueue failed", "error", err)
		}
	}
	s.cron.Start()
	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.log.Info("Job scheduler stopped")
	}()
}

// EnqueueLikeRefresh queues a like_count_refresh run unless one is already
// queued or running. It reports whether a row was inserted.
func (s *Scheduler) EnqueueLikeRefresh(ctx context.Context) (bool, error) {
	job, created, err := s.jobs.EnqueueIfAbsent(dbctx.Context{Ctx: ctx}, uuid.Nil, services.JobTypeLikeCountRefresh, "", nil, map[string]any{
		"scheduled_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return false, err
	}
	if created {
		s.log.Info("like count refresh enqueued", "job_id", job.ID)
	}
	return created, nil
}
