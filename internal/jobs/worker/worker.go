package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	// failed attempts become claimable again after RetryDelay
	RetryDelay time.Duration
	// running rows whose heartbeat is older than StaleRunning are reclaimed
	StaleRunning       time.Duration
	HeartbeatInterval  time.Duration
	DefaultMaxAttempts int
}

func DefaultConfig() Config {
	return Config{
		Concurrency:        4,
		PollInterval:       time.Second,
		RetryDelay:         30 * time.Second,
		StaleRunning:       10 * time.Minute,
		HeartbeatInterval:  30 * time.Second,
		DefaultMaxAttempts: 3,
	}
}

func ConfigFromEnv() Config {
	def := DefaultConfig()
	return Config{
		Concurrency:        envutil.Int("WORKER_CONCURRENCY", def.Concurrency),
		PollInterval:       envutil.Duration("WORKER_POLL_INTERVAL", def.PollInterval),
		RetryDelay:         envutil.Duration("JOB_RETRY_DELAY", def.RetryDelay),
		StaleRunning:       envutil.Duration("JOB_STALE_RUNNING", def.StaleRunning),
		HeartbeatInterval:  envutil.Duration("JOB_HEARTBEAT_INTERVAL", def.HeartbeatInterval),
		DefaultMaxAttempts: envutil.Int("JOB_MAX_ATTEMPTS", def.DefaultMaxAttempts),
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Concurrency < 1 {
		c.Concurrency = 1
	}
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = def.RetryDelay
	}
	if c.StaleRunning <= 0 {
		c.StaleRunning = def.StaleRunning
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = def.HeartbeatInterval
	}
	if c.DefaultMaxAttempts <= 0 {
		c.DefaultMaxAttempts = def.DefaultMaxAttempts
	}
	return c
}

// Worker polls job_run and executes claimed attempts on a fixed pool of loops.
type Worker struct {
	db   *gorm.DB
	log  *logger.Logger
	repo repos.JobRunRepo
	exec *runtime.Executor
	cfg  Config
}

func NewWorker(db *gorm.DB, baseLog *logger.Logger, repo repos.JobRunRepo, exec *runtime.Executor, cfg Config) *Worker {
	return &Worker{
		db:   db,
		log:  baseLog.With("component", "JobWorker"),
		repo: repo,
		exec: exec,
		cfg:  cfg.withDefaults(),
	}
}

// Start launches the loops and returns; they stop with ctx.
func (w *Worker) Start(ctx context.Context) {
	w.log.Info("Starting job worker pool", "concurrency", w.cfg.Concurrency, "poll_interval", w.cfg.PollInterval, "retry_delay", w.cfg.RetryDelay)
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.runLoop(ctx, i+1)
	}
}

func (w *Worker) runLoop(ctx context.Context, workerID int) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Info("Worker loop stopped", "worker_id", workerID)
			return
		case <-ticker.C:
			// drain the queue before waiting for the next tick
			for ctx.Err() == nil {
				ran, err := w.RunOnce(ctx)
				if err != nil {
					w.log.Warn("job claim failed", "worker_id", workerID, "error", err)
					break
				}
				if !ran {
					break
				}
			}
		}
	}
}

// RunOnce claims and executes at most one runnable attempt. It reports whether one ran.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.repo.ClaimNextRunnable(dbctx.Context{Ctx: ctx, Tx: w.db}, w.cfg.DefaultMaxAttempts, w.cfg.RetryDelay, w.cfg.StaleRunning)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.log.Debug("job claimed", "job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts, "max_attempts", job.MaxAttempts)

	stop := w.heartbeat(ctx, job.ID)
	defer stop()
	updated, err := w.exec.Execute(ctx, job)
	if err != nil {
		w.log.Error("job execution bookkeeping failed", "job_id", job.ID, "error", err)
		return true, nil
	}
	w.log.Info("job attempt finished", "job_id", updated.ID, "job_type", updated.JobType, "status", updated.Status, "attempt", updated.Attempts)
	return true, nil
}

func (w *Worker) heartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(w.cfg.HeartbeatInterval)
		defer t.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-t.C:
				if err := w.repo.Heartbeat(dbctx.Context{Ctx: ctx, Tx: w.db}, jobID); err != nil {
					w.log.Debug("job heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
