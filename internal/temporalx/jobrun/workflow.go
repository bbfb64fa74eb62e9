package jobrun

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	types "github.com/yungbote/playhub-backend/internal/domain"
)

// Workflow drives one job_run row, whose id is the workflow id, through its
// attempts. Each attempt is one Tick activity; the retry delay is a durable timer.
func Workflow(ctx workflow.Context) error {
	jobID := strings.TrimSpace(workflow.GetInfo(ctx).WorkflowExecution.ID)
	if jobID == "" {
		return fmt.Errorf("jobrun: missing job_id")
	}

	const (
		defaultRetryWait     = 30 * time.Second
		continueTickLimit    = 200
		continueHistoryLimit = 10000
	)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Hour,
		HeartbeatTimeout:    time.Minute,
		// attempts are counted on the job row, not by temporal
		RetryPolicy: &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	resumeCh := workflow.GetSignalChannel(ctx, SignalResume)
	for tick := 1; ; tick++ {
		var out TickResult
		if err := workflow.ExecuteActivity(ctx, ActivityTick, jobID).Get(ctx, &out); err != nil {
			return err
		}

		switch out.Status {
		case types.JobStatusSucceeded, types.JobStatusCanceled:
			return nil
		case types.JobStatusFailed:
			return temporal.NewNonRetryableApplicationError(
				fmt.Sprintf("job failed after %d attempts (stage=%s): %s", out.Attempts, out.Stage, out.Error),
				"JobFailed", nil)
		case StatusRetryWait:
			waitForResumeOrTimer(ctx, resumeCh, nextWait(ctx, out.WaitUntil, defaultRetryWait))
		}

		if shouldContinueAsNew(ctx, tick, continueTickLimit, continueHistoryLimit) {
			return workflow.NewContinueAsNewError(ctx, Workflow)
		}
	}
}

func waitForResumeOrTimer(ctx workflow.Context, ch workflow.ReceiveChannel, d time.Duration) {
	if d <= 0 {
		return
	}
	timerCtx, cancel := workflow.WithCancel(ctx)
	defer cancel()
	timer := workflow.NewTimer(timerCtx, d)
	sel := workflow.NewSelector(ctx)
	sel.AddReceive(ch, func(c workflow.ReceiveChannel, more bool) {
		var v any
		c.Receive(ctx, &v)
	})
	sel.AddFuture(timer, func(f workflow.Future) {})
	sel.Select(ctx)
}

func nextWait(ctx workflow.Context, waitUntil *time.Time, def time.Duration) time.Duration {
	if waitUntil == nil || waitUntil.IsZero() {
		return def
	}
	d := waitUntil.Sub(workflow.Now(ctx))
	if d <= 0 {
		return 0
	}
	if d > 15*time.Minute {
		return 15 * time.Minute
	}
	return d
}

func shouldContinueAsNew(ctx workflow.Context, ticks, maxTicks, maxHistory int) bool {
	if maxTicks > 0 && ticks >= maxTicks {
		return true
	}
	info := workflow.GetInfo(ctx)
	return info != nil && maxHistory > 0 && info.GetCurrentHistoryLength() >= maxHistory
}
