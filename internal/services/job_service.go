package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	temporalsdkclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/ctxutil"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type EnqueueOption func(*types.JobRun)

// WithMaxAttempts overrides the default attempt budget of one job.
func WithMaxAttempts(n int) EnqueueOption {
	return func(j *types.JobRun) {
		if n > 0 {
			j.MaxAttempts = n
		}
	}
}

type JobService interface {
	Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts ...EnqueueOption) (*types.JobRun, error)
	// EnqueueIfAbsent skips the insert when a queued or running job of the same type exists for the entity.
	EnqueueIfAbsent(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts ...EnqueueOption) (*types.JobRun, bool, error)
	Dispatch(dbc dbctx.Context, jobID uuid.UUID) error
	GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
	GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error)
	// Expedite makes a failed job that still has attempts left claimable now instead of after the retry delay.
	Expedite(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.JobRunRepo
	notify JobNotifier

	defaultMaxAttempts int

	temporal          temporalsdkclient.Client
	temporalTaskQueue string
}

// NewJobService builds the job service. tc may be nil: jobs then wait in the
// table for the polling worker.
func NewJobService(
	db *gorm.DB,
	baseLog *logger.Logger,
	repo repos.JobRunRepo,
	notify JobNotifier,
	defaultMaxAttempts int,
	tc temporalsdkclient.Client,
	taskQueue string,
) JobService {
	if defaultMaxAttempts <= 0 {
		defaultMaxAttempts = 3
	}
	return &jobService{
		db:                 db,
		log:                baseLog.With("service", "JobService"),
		repo:               repo,
		notify:             notify,
		defaultMaxAttempts: defaultMaxAttempts,
		temporal:           tc,
		temporalTaskQueue:  strings.TrimSpace(taskQueue),
	}
}

func (s *jobService) Enqueue(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts ...EnqueueOption) (*types.JobRun, error) {
	if strings.TrimSpace(jobType) == "" {
		return nil, fmt.Errorf("missing job_type")
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if td := ctxutil.GetTraceData(dbc.Ctx); td != nil {
		if td.TraceID != "" {
			if _, ok := payload["trace_id"]; !ok {
				payload["trace_id"] = td.TraceID
			}
		}
		if td.RequestID != "" {
			if _, ok := payload["request_id"]; !ok {
				payload["request_id"] = td.RequestID
			}
		}
	}
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode job payload: %w", err)
	}
	now := time.Now().UTC()
	job := &types.JobRun{
		ID:          uuid.New(),
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		Progress:    0,
		Attempts:    0,
		MaxAttempts: s.defaultMaxAttempts,
		Message:     "Queued",
		Payload:     datatypes.JSON(b),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(job)
		}
	}
	if _, err := s.repo.Create(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, []*types.JobRun{job}); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}
	if s.notify != nil {
		s.notify.JobCreated(ownerUserID, job)
	}

	// Inside a real transaction the row is not visible yet; callers Dispatch after commit.
	if isDBTransaction(dbc.Tx) {
		s.log.Debug("Job enqueued inside transaction; awaiting dispatch after commit", "job_id", job.ID, "job_type", job.JobType)
		return job, nil
	}
	if err := s.Dispatch(dbctx.Context{Ctx: dbc.Ctx}, job.ID); err != nil {
		return job, err
	}
	return job, nil
}

func (s *jobService) EnqueueIfAbsent(dbc dbctx.Context, ownerUserID uuid.UUID, jobType string, entityType string, entityID *uuid.UUID, payload map[string]any, opts ...EnqueueOption) (*types.JobRun, bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = s.db
	}
	exists, err := s.repo.ExistsRunnable(dbctx.Context{Ctx: dbc.Ctx, Tx: transaction}, jobType, entityType, entityID)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}
	job, err := s.Enqueue(dbc, ownerUserID, jobType, entityType, entityID, payload, opts...)
	if err != nil {
		return job, false, err
	}
	return job, true, nil
}

type txCommitter interface {
	Commit() error
	Rollback() error
}

// gorm.DB pointers get cloned by WithContext/Session, so pointer identity says
// nothing; the conn pool of a real transaction implements Commit/Rollback.
func isDBTransaction(db *gorm.DB) bool {
	if db == nil || db.Statement == nil || db.Statement.ConnPool == nil {
		return false
	}
	_, ok := db.Statement.ConnPool.(txCommitter)
	return ok
}

func (s *jobService) Dispatch(dbc dbctx.Context, jobID uuid.UUID) error {
	if jobID == uuid.Nil {
		return fmt.Errorf("missing job id")
	}
	if s == nil || s.temporal == nil {
		// the polling worker claims queued rows on its own
		return nil
	}
	ctx := dbc.Ctx
	if ctx == nil {
		ctx = context.Background()
	}

	err := s.startTemporalJobWorkflow(ctx, jobID, enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE_FAILED_ONLY)
	if err == nil {
		return nil
	}
	var started *serviceerror.WorkflowExecutionAlreadyStarted
	if errors.As(err, &started) {
		return nil
	}

	now := time.Now().UTC()
	_ = s.repo.UpdateFields(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID, map[string]interface{}{
		"status":        types.JobStatusFailed,
		"stage":         "dispatch",
		"message":       "",
		"error":         err.Error(),
		"last_error_at": now,
		"locked_at":     nil,
		"updated_at":    now,
	})
	if s.notify != nil {
		if j, rerr := s.repo.GetByID(dbctx.Context{Ctx: ctx, Tx: s.db}, jobID); rerr == nil && j != nil {
			s.notify.JobFailed(j.OwnerUserID, j, "dispatch", err.Error())
		}
	}
	return fmt.Errorf("dispatch job %s: %w", jobID, err)
}

func (s *jobService) startTemporalJobWorkflow(ctx context.Context, jobID uuid.UUID, reusePolicy enums.WorkflowIdReusePolicy) error {
	if s == nil || s.temporal == nil || jobID == uuid.Nil {
		return fmt.Errorf("temporal not configured")
	}
	tq := s.temporalTaskQueue
	if tq == "" {
		tq = "playhub"
	}
	opts := temporalsdkclient.StartWorkflowOptions{
		ID:                    jobID.String(),
		TaskQueue:             tq,
		WorkflowIDReusePolicy: reusePolicy,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    30 * time.Second,
			BackoffCoefficient: 1.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    5,
		},
	}
	// literal workflow name keeps services free of the temporalx import
	_, err := s.temporal.ExecuteWorkflow(ctx, opts, "job_run")
	return err
}

func (s *jobService) GetByID(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	if jobID == uuid.Nil {
		return nil, domainagg.Validation("get_job", "missing job id")
	}
	job, err := s.repo.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, domainagg.NotFound("get_job", "job not found")
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(dbc dbctx.Context, entityType string, entityID uuid.UUID, jobType string) (*types.JobRun, error) {
	if entityID == uuid.Nil {
		return nil, nil
	}
	return s.repo.GetLatestByEntity(dbc, entityType, entityID, jobType)
}

func (s *jobService) Expedite(dbc dbctx.Context, jobID uuid.UUID) (*types.JobRun, error) {
	job, err := s.GetByID(dbc, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != types.JobStatusFailed || job.IsFinalAttempt() {
		return nil, domainagg.Conflict("expedite_job", "job is not awaiting a retry")
	}
	ok, err := s.repo.UpdateFieldsUnlessStatus(dbc, job.ID, []string{types.JobStatusRunning, types.JobStatusSucceeded, types.JobStatusCanceled}, map[string]interface{}{
		"last_error_at": nil,
		"message":       "Retry requested",
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainagg.Conflict("expedite_job", "job changed state")
	}
	job.LastErrorAt = nil
	job.Message = "Retry requested"
	if s.temporal != nil {
		s.signalResume(dbc.Ctx, job.ID)
	}
	return job, nil
}

// signalResume wakes a workflow sleeping out its retry delay.
func (s *jobService) signalResume(ctx context.Context, jobID uuid.UUID) {
	if ctx == nil {
		ctx = context.Background()
	}
	err := s.temporal.SignalWorkflow(ctx, jobID.String(), "", "job_resume", nil)
	if err == nil {
		return
	}
	var nf *serviceerror.NotFound
	if errors.As(err, &nf) || temporal.IsCanceledError(err) || temporal.IsTimeoutError(err) {
		return
	}
	s.log.Warn("job resume signal failed", "job_id", jobID, "error", err)
}
