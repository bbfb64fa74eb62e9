package temporalworker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/temporalx"
	"github.com/yungbote/playhub-backend/internal/temporalx/jobrun"
)

type Options struct {
	Concurrency        int
	RetryDelay         time.Duration
	DefaultMaxAttempts int
	StartMaxWait       time.Duration
}

func OptionsFromEnv() Options {
	return Options{
		Concurrency:        envutil.Int("WORKER_CONCURRENCY", 4),
		RetryDelay:         envutil.Duration("JOB_RETRY_DELAY", 30*time.Second),
		DefaultMaxAttempts: envutil.Int("JOB_MAX_ATTEMPTS", 3),
		StartMaxWait:       envutil.Duration("TEMPORAL_WORKER_START_MAX_WAIT", time.Minute),
	}
}

// Runner hosts the job_run workflow and its tick activity on the task queue.
type Runner struct {
	log  *logger.Logger
	cfg  temporalx.Config
	opts Options

	tc      temporalsdkclient.Client
	db      *gorm.DB
	jobRepo repos.JobRunRepo
	exec    *jobrt.Executor
}

func NewRunner(
	log *logger.Logger,
	cfg temporalx.Config,
	opts Options,
	tc temporalsdkclient.Client,
	db *gorm.DB,
	jobRepo repos.JobRunRepo,
	exec *jobrt.Executor,
) (*Runner, error) {
	if tc == nil {
		return nil, fmt.Errorf("temporal client is not configured")
	}
	if db == nil || jobRepo == nil || exec == nil {
		return nil, fmt.Errorf("temporal worker missing deps")
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Runner{
		log:     log.With("component", "TemporalWorker"),
		cfg:     cfg,
		opts:    opts,
		tc:      tc,
		db:      db,
		jobRepo: jobRepo,
		exec:    exec,
	}, nil
}

// Start polls the task queue until ctx ends. Start failures are retried for
// StartMaxWait, re-registering the namespace when it is missing.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting Temporal worker", "address", r.cfg.Address, "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue)

	deadline := time.Now().Add(r.opts.StartMaxWait)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		w := r.newWorker()
		startErr := w.Start()
		if startErr == nil {
			go func() {
				<-ctx.Done()
				w.Stop()
			}()
			r.log.Info("Temporal worker started", "namespace", r.cfg.Namespace, "task_queue", r.cfg.TaskQueue, "attempts", attempt)
			return nil
		}
		w.Stop()

		var nfe *serviceerror.NamespaceNotFound
		missingNS := errors.As(startErr, &nfe)
		if missingNS && r.cfg.AutoRegister {
			if err := temporalx.EnsureNamespace(ctx, r.cfg, r.log); err != nil {
				r.log.Warn("Temporal namespace ensure failed", "namespace", r.cfg.Namespace, "error", err)
			}
		}

		if r.opts.StartMaxWait <= 0 || time.Now().After(deadline) {
			if missingNS {
				return fmt.Errorf("temporal namespace not found (namespace=%s): %w", r.cfg.Namespace, startErr)
			}
			return startErr
		}
		r.log.Warn("Temporal worker failed to start; retrying", "task_queue", r.cfg.TaskQueue, "attempt", attempt, "error", startErr)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff(attempt)):
		}
	}
}

func (r *Runner) newWorker() worker.Worker {
	w := worker.New(r.tc, r.cfg.TaskQueue, worker.Options{
		MaxConcurrentActivityExecutionSize:     r.opts.Concurrency,
		MaxConcurrentWorkflowTaskExecutionSize: r.opts.Concurrency,
	})

	acts := &jobrun.Activities{
		Log:                r.log,
		DB:                 r.db,
		Jobs:               r.jobRepo,
		Executor:           r.exec,
		RetryDelay:         r.opts.RetryDelay,
		DefaultMaxAttempts: r.opts.DefaultMaxAttempts,
	}
	w.RegisterWorkflowWithOptions(jobrun.Workflow, workflow.RegisterOptions{Name: jobrun.WorkflowName})
	acts.Register(w)
	return w
}

func backoff(attempt int) time.Duration {
	d := 250 * time.Millisecond
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= 5*time.Second {
			return 5 * time.Second
		}
	}
	return d
}
