package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/services"
)

/*
Context is the execution handle for one attempt of one job run.
It wraps:
  - the database handle the handler writes through,
  - the mutable job_run row,
  - the notifier that mirrors progress to connected clients.

Handlers never write job_run directly; Progress, Fail, FailFinal and Succeed
are the only sanctioned transitions.
*/
type Context struct {
	Ctx     context.Context
	DB      *gorm.DB
	Job     *types.JobRun
	Repo    repos.JobRunRepo
	Notify  services.JobNotifier
	Log     *logger.Logger
	payload map[string]any
}

// a canceled run is never overwritten by a late writer
var guardStatuses = []string{types.JobStatusCanceled}

/*
NewContext builds the handle for a claimed job. The payload is decoded eagerly;
a malformed payload decodes to an empty map and handlers fail on the missing fields.
*/
func NewContext(ctx context.Context, db *gorm.DB, job *types.JobRun, repo repos.JobRunRepo, notify services.JobNotifier, log *logger.Logger) *Context {
	if log == nil {
		log = logger.Nop()
	}
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
		Log:    log,
	}
	if job != nil {
		c.Log = log.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	}
	_ = c.decodePayload()
	c.applyTraceData()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

func (c *Context) applyTraceData() {
	if c == nil || c.Ctx == nil {
		return
	}
	traceID := c.PayloadString("trace_id")
	reqID := c.PayloadString("request_id")
	if traceID == "" && reqID == "" {
		return
	}
	c.Ctx = ctxutil.WithTraceData(c.Ctx, &ctxutil.TraceData{
		TraceID:   traceID,
		RequestID: reqID,
	})
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadString returns the trimmed string at key, or "" when absent or null.
func (c *Context) PayloadString(key string) string {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// PayloadUUID returns the non-nil UUID at key.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	s := c.PayloadString(key)
	if s == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(s)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// IsFinalAttempt reports whether failing now ends the run for good.
func (c *Context) IsFinalAttempt() bool {
	return c != nil && c.Job.IsFinalAttempt()
}

// Canceled reports whether the run was canceled after it was claimed.
func (c *Context) Canceled() bool {
	if c == nil || c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return false
	}
	row, err := c.Repo.GetByID(dbctx.Context{Ctx: c.ctx(), Tx: c.DB}, c.Job.ID)
	if err != nil || row == nil {
		return false
	}
	return row.Status == types.JobStatusCanceled
}

func (c *Context) ctx() context.Context {
	if c.Ctx == nil {
		return context.Background()
	}
	return c.Ctx
}

func (c *Context) write(updates map[string]interface{}) bool {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return true
	}
	ok, err := c.Repo.UpdateFieldsUnlessStatus(dbctx.Context{Ctx: c.ctx(), Tx: c.DB}, c.Job.ID, guardStatuses, updates)
	if err != nil {
		c.Log.Warn("job state write failed", "error", err)
		return false
	}
	return ok
}

/*
Progress records a non-terminal checkpoint (stage, percent, message) plus a
heartbeat, then mirrors it to the notifier. Nothing is emitted when the row
was canceled underneath the handler.
*/
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	if !c.write(map[string]interface{}{
		"stage":        stage,
		"progress":     pct,
		"message":      msg,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

/*
Fail records a failed attempt. While attempts remain, the row becomes claimable
again once the retry delay has passed since last_error_at. On the final attempt
this is FailFinal.
*/
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	if c.IsFinalAttempt() {
		c.FailFinal(stage, err)
		return
	}
	c.fail(stage, err, false)
}

// FailFinal ends the run regardless of attempts left by pinning max_attempts to attempts.
func (c *Context) FailFinal(stage string, err error) {
	if c == nil {
		return
	}
	c.fail(stage, err, true)
}

func (c *Context) fail(stage string, err error, final bool) {
	now := time.Now().UTC()
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	updates := map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         stage,
		"message":       "",
		"error":         msg,
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	}
	if final && c.Job != nil {
		updates["max_attempts"] = c.Job.Attempts
	}
	if !c.write(updates) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Message = ""
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.UpdatedAt = now
		if final {
			c.Job.MaxAttempts = c.Job.Attempts
		}
	}
	c.Log.Warn("job attempt failed", "stage", stage, "final", final, "error", msg)
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

/*
Succeed finishes the run at progress 100 and stores result as JSON.
*/
func (c *Context) Succeed(finalStage string, result any) {
	if c == nil {
		return
	}
	now := time.Now().UTC()
	res := datatypes.JSON([]byte(`{}`))
	if result != nil {
		if b, err := json.Marshal(result); err == nil {
			res = datatypes.JSON(b)
		}
	}
	if !c.write(map[string]interface{}{
		"status":       types.JobStatusSucceeded,
		"stage":        finalStage,
		"progress":     100,
		"message":      "",
		"error":        "",
		"result":       res,
		"locked_at":    nil,
		"heartbeat_at": now,
		"updated_at":   now,
	}) {
		return
	}
	if c.Job != nil {
		c.Job.Status = types.JobStatusSucceeded
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = ""
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}
	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}
