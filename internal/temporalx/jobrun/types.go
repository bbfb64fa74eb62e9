package jobrun

import "time"

const (
	WorkflowName = "job_run"
	ActivityTick = "job_run_tick"
	SignalResume = "job_resume"
)

// StatusRetryWait is reported for a failed attempt with attempts left; the
// workflow sleeps until WaitUntil or a resume signal.
const StatusRetryWait = "retry_wait"

type TickResult struct {
	JobID     string     `json:"job_id"`
	Status    string     `json:"status"`
	Stage     string     `json:"stage,omitempty"`
	Progress  int        `json:"progress,omitempty"`
	Error     string     `json:"error,omitempty"`
	Attempts  int        `json:"attempts,omitempty"`
	WaitUntil *time.Time `json:"wait_until,omitempty"`
}
