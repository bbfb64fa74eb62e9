package jobrun

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type Activities struct {
	Log                *logger.Logger
	DB                 *gorm.DB
	Jobs               repos.JobRunRepo
	Executor           *jobrt.Executor
	RetryDelay         time.Duration
	DefaultMaxAttempts int
	// heartbeat only inside a real activity; tests call Tick directly
	heartbeats bool
}

// Register binds the activity under its stable name.
func (a *Activities) Register(r interface {
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}) {
	a.heartbeats = true
	r.RegisterActivityWithOptions(a.Tick, activity.RegisterOptions{Name: ActivityTick})
}

// Tick runs at most one attempt of the job and reports where the row ended up.
func (a *Activities) Tick(ctx context.Context, jobID string) (TickResult, error) {
	res := TickResult{JobID: strings.TrimSpace(jobID)}
	if a == nil || a.DB == nil || a.Jobs == nil || a.Executor == nil {
		return res, fmt.Errorf("jobrun: activity not configured")
	}
	id, err := uuid.Parse(res.JobID)
	if err != nil || id == uuid.Nil {
		return res, fmt.Errorf("jobrun: invalid job_id %q", jobID)
	}
	dbc := dbctx.Context{Ctx: ctx, Tx: a.DB}

	job, err := a.Jobs.GetByID(dbc, id)
	if err != nil {
		return res, err
	}
	if job == nil {
		return res, fmt.Errorf("jobrun: job %s not found", id)
	}
	if done, out := a.settled(job); done {
		return out, nil
	}

	now := time.Now().UTC()
	updates := map[string]interface{}{
		"status":       types.JobStatusRunning,
		"attempts":     gorm.Expr("attempts + 1"),
		"locked_at":    now,
		"heartbeat_at": now,
		"updated_at":   now,
	}
	if job.MaxAttempts <= 0 {
		updates["max_attempts"] = a.defaultMaxAttempts()
	}
	ok, err := a.Jobs.UpdateFieldsUnlessStatus(dbc, id, []string{types.JobStatusSucceeded, types.JobStatusCanceled}, updates)
	if err != nil {
		return res, err
	}
	if !ok {
		job, err = a.Jobs.GetByID(dbc, id)
		if err != nil || job == nil {
			return res, fmt.Errorf("jobrun: reload %s: %v", id, err)
		}
		_, out := a.settled(job)
		return out, nil
	}
	job, err = a.Jobs.GetByID(dbc, id)
	if err != nil {
		return res, err
	}

	stop := a.startHeartbeat(ctx, id)
	updated, err := a.Executor.Execute(ctx, job)
	stop()
	if err != nil {
		return res, err
	}
	_, out := a.settled(updated)
	return out, nil
}

// settled reports whether job needs no attempt now, and the result describing it.
func (a *Activities) settled(job *types.JobRun) (bool, TickResult) {
	out := TickResult{
		JobID:    job.ID.String(),
		Status:   job.Status,
		Stage:    job.Stage,
		Progress: job.Progress,
		Error:    job.Error,
		Attempts: job.Attempts,
	}
	switch job.Status {
	case types.JobStatusSucceeded, types.JobStatusCanceled:
		return true, out
	case types.JobStatusFailed:
		if job.MaxAttempts > 0 && job.IsFinalAttempt() {
			return true, out
		}
		out.Status = StatusRetryWait
		if job.LastErrorAt != nil {
			until := job.LastErrorAt.Add(a.RetryDelay)
			if until.After(time.Now()) {
				out.WaitUntil = &until
				return true, out
			}
		}
		return false, out
	}
	return false, out
}

func (a *Activities) defaultMaxAttempts() int {
	if a.DefaultMaxAttempts > 0 {
		return a.DefaultMaxAttempts
	}
	return 3
}

func (a *Activities) startHeartbeat(ctx context.Context, jobID uuid.UUID) func() {
	done := make(chan struct{})
	go func() {
		temporalHB := time.NewTicker(10 * time.Second)
		defer temporalHB.Stop()
		dbHB := time.NewTicker(30 * time.Second)
		defer dbHB.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-temporalHB.C:
				if a.heartbeats {
					activity.RecordHeartbeat(ctx)
				}
			case <-dbHB.C:
				if err := a.Jobs.Heartbeat(dbctx.Context{Ctx: ctx, Tx: a.DB}, jobID); err != nil && a.Log != nil {
					a.Log.Debug("job heartbeat failed", "job_id", jobID, "error", err)
				}
			}
		}
	}()
	return func() { close(done) }
}
