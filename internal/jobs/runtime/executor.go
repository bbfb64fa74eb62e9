package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

// Metrics receives one observation per executed attempt. May be nil.
type Metrics interface {
	JobFinished(jobType, status string, final bool, d time.Duration)
}

// Executor runs one claimed attempt through its handler. The polling worker
// and the temporal activity both execute jobs through it.
type Executor struct {
	DB       *gorm.DB
	Log      *logger.Logger
	Repo     repos.JobRunRepo
	Registry *Registry
	Notify   services.JobNotifier
	Metrics  Metrics
}

// IsTerminal reports errors no retry can fix; they end the run on the attempt that hit them.
func IsTerminal(err error) bool {
	if err == nil {
		return false
	}
	switch domainagg.CodeOf(err) {
	case domainagg.CodeTerminal, domainagg.CodeValidation, domainagg.CodeNotFound:
		return true
	}
	return false
}

// Execute runs job, which must already be marked running with its attempt
// counted, and returns the row as stored afterwards.
func (e *Executor) Execute(ctx context.Context, job *types.JobRun) (*types.JobRun, error) {
	if e == nil || e.Repo == nil || e.Registry == nil {
		return nil, fmt.Errorf("jobs: executor not configured")
	}
	if job == nil || job.ID == uuid.Nil {
		return nil, fmt.Errorf("jobs: missing job")
	}
	log := e.Log
	if log == nil {
		log = logger.Nop()
	}

	ctx, span := otel.Tracer("playhub/jobs").Start(ctx, "job."+job.JobType,
		trace.WithAttributes(
			attribute.String("job.id", job.ID.String()),
			attribute.String("job.type", job.JobType),
			attribute.Int("job.attempt", job.Attempts),
			attribute.Int("job.max_attempts", job.MaxAttempts),
		))
	defer span.End()
	start := time.Now()

	jc := NewContext(ctx, e.DB, job, e.Repo, e.Notify, log)
	handlerReturnedNil := false
	h, ok := e.Registry.Get(job.JobType)
	if !ok {
		log.Warn("No handler registered for job_type", "job_type", job.JobType, "job_id", job.ID)
		jc.FailFinal("dispatch", fmt.Errorf("no handler registered for job_type=%s", job.JobType))
	} else {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error("Job handler panic", "job_id", job.ID, "job_type", job.JobType, "panic", r)
					jc.Fail("panic", fmt.Errorf("panic: unexpected error"))
				}
			}()
			runErr := h.Run(jc)
			if runErr == nil {
				handlerReturnedNil = true
				return
			}
			span.RecordError(runErr)
			// handlers usually record their own failure; this is the safety net
			if jc.Job.Status == types.JobStatusFailed {
				return
			}
			if IsTerminal(runErr) {
				jc.FailFinal(stageOr(jc.Job.Stage, "run"), runErr)
			} else {
				jc.Fail(stageOr(jc.Job.Stage, "run"), runErr)
			}
		}()
	}

	updated, err := e.Repo.GetByID(dbctx.Context{Ctx: ctx, Tx: e.DB}, job.ID)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		return nil, fmt.Errorf("jobs: job %s vanished during execution", job.ID)
	}

	// a handler that returned nil without a terminal transition would otherwise sit in running until it goes stale
	if handlerReturnedNil && updated.Status == types.JobStatusRunning {
		log.Warn("Job handler returned nil without terminal status; marking succeeded", "job_id", job.ID, "job_type", job.JobType, "stage", updated.Stage)
		var result any
		if raw := strings.TrimSpace(string(updated.Result)); raw != "" && raw != "null" {
			result = json.RawMessage(updated.Result)
		}
		jc.Succeed(stageOr(updated.Stage, "done"), result)
		if again, rerr := e.Repo.GetByID(dbctx.Context{Ctx: ctx, Tx: e.DB}, job.ID); rerr == nil && again != nil {
			updated = again
		}
	}

	final := updated.Status == types.JobStatusSucceeded || updated.Status == types.JobStatusCanceled ||
		(updated.Status == types.JobStatusFailed && updated.IsFinalAttempt())
	span.SetAttributes(attribute.String("job.status", updated.Status), attribute.Bool("job.final", final))
	if updated.Status == types.JobStatusFailed {
		span.SetStatus(codes.Error, updated.Error)
	}
	if e.Metrics != nil {
		e.Metrics.JobFinished(updated.JobType, updated.Status, final, time.Since(start))
	}
	return updated, nil
}

func stageOr(stage, def string) string {
	s := strings.TrimSpace(stage)
	if s == "" || s == "queued" || s == "running" {
		return def
	}
	return s
}
