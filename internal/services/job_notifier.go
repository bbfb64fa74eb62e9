package services

import (
	"context"

	"github.com/google/uuid"

	types "github.com/yungbote/playhub-backend/internal/domain"
	"github.com/yungbote/playhub-backend/internal/realtime"
)

// JobNotifier pushes job and game processing updates to connected clients.
// Every method is fire-and-forget.
type JobNotifier interface {
	JobCreated(userID uuid.UUID, job *types.JobRun)
	JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string)
	JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string)
	JobDone(userID uuid.UUID, job *types.JobRun)
	GameStatusChanged(game *types.Game)
	GameLikeChanged(gameID uuid.UUID, count int64)
}

type jobNotifier struct {
	emit SSEEmitter
}

func NewJobNotifier(emit SSEEmitter) JobNotifier {
	if emit == nil {
		emit = NopEmitter{}
	}
	return &jobNotifier{emit: emit}
}

// jobs about a game are mirrored onto the game's channel so any admin
// watching that game sees progress, not only the one who uploaded
func (n *jobNotifier) send(userID uuid.UUID, job *types.JobRun, event realtime.SSEEvent, data map[string]any) {
	ctx := context.Background()
	if userID != uuid.Nil {
		n.emit.Emit(ctx, realtime.SSEMessage{Channel: realtime.UserChannel(userID), Event: event, Data: data})
	}
	if job != nil && job.EntityType == EntityTypeGame && job.EntityID != nil && *job.EntityID != uuid.Nil {
		n.emit.Emit(ctx, realtime.SSEMessage{Channel: realtime.GameChannel(*job.EntityID), Event: event, Data: data})
	}
}

func (n *jobNotifier) JobCreated(userID uuid.UUID, job *types.JobRun) {
	if job == nil {
		return
	}
	n.send(userID, job, realtime.SSEEventJobCreated, map[string]any{"job": job})
}

func (n *jobNotifier) JobProgress(userID uuid.UUID, job *types.JobRun, stage string, progress int, message string) {
	if job == nil {
		return
	}
	n.send(userID, job, realtime.SSEEventJobProgress, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"progress": progress,
		"message":  message,
		"job":      job,
	})
}

func (n *jobNotifier) JobFailed(userID uuid.UUID, job *types.JobRun, stage string, errorMessage string) {
	if job == nil {
		return
	}
	n.send(userID, job, realtime.SSEEventJobFailed, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"stage":    stage,
		"error":    errorMessage,
		"job":      job,
	})
}

func (n *jobNotifier) JobDone(userID uuid.UUID, job *types.JobRun) {
	if job == nil {
		return
	}
	n.send(userID, job, realtime.SSEEventJobDone, map[string]any{
		"job_id":   job.ID,
		"job_type": job.JobType,
		"job":      job,
	})
}

func (n *jobNotifier) GameStatusChanged(game *types.Game) {
	if game == nil || game.ID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.GameChannel(game.ID),
		Event:   realtime.SSEEventGameStatusChanged,
		Data: map[string]any{
			"game_id":           game.ID,
			"status":            game.Status,
			"processing_status": game.ProcessingStatus,
			"processing_error":  game.ProcessingError,
			"job_id":            game.JobID,
		},
	})
}

func (n *jobNotifier) GameLikeChanged(gameID uuid.UUID, count int64) {
	if gameID == uuid.Nil {
		return
	}
	n.emit.Emit(context.Background(), realtime.SSEMessage{
		Channel: realtime.GameChannel(gameID),
		Event:   realtime.SSEEventGameLikeChanged,
		Data:    map[string]any{"game_id": gameID, "like_count": count},
	})
}
