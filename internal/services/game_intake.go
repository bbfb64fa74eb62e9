package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

type CreateGameRequest struct {
	Title        string     `json:"title" validate:"required,max=200"`
	CategoryID   *uuid.UUID `json:"categoryId,omitempty"`
	Position     *int       `json:"position,omitempty" validate:"omitempty,gte=1"`
	ThumbnailKey string     `json:"thumbnailKey,omitempty" validate:"omitempty,max=512,storagekey"`
	ArchiveKey   string     `json:"archiveKey" validate:"required,max=512,storagekey"`
}

type ReuploadRequest struct {
	ThumbnailKey string `json:"thumbnailKey,omitempty" validate:"omitempty,max=512,storagekey"`
	ArchiveKey   string `json:"archiveKey" validate:"required,max=512,storagekey"`
}

type CreateGameResult struct {
	Game  *types.Game `json:"game"`
	JobID *uuid.UUID  `json:"jobId"`
}

// GameIntakeService commits new game metadata and hands the archive to the publish job.
type GameIntakeService interface {
	Create(ctx context.Context, req CreateGameRequest, requestingUserID uuid.UUID) (*CreateGameResult, error)
	// Reupload starts a new processing attempt for an existing game.
	Reupload(ctx context.Context, gameID uuid.UUID, req ReuploadRequest, requestingUserID uuid.UUID) (*CreateGameResult, error)
}

type gameIntakeService struct {
	log         *logger.Logger
	tx          dataagg.TxRunner
	games       repos.GameRepo
	jobRuns     repos.JobRunRepo
	categories  CategoryService
	allocator   PositionAllocator
	jobs        JobService
	invalidator CacheInvalidator
	notify      JobNotifier
	storage     gcp.BucketService
}

func NewGameIntakeService(
	baseLog *logger.Logger,
	tx dataagg.TxRunner,
	games repos.GameRepo,
	jobRuns repos.JobRunRepo,
	categories CategoryService,
	allocator PositionAllocator,
	jobs JobService,
	invalidator CacheInvalidator,
	notify JobNotifier,
	storage gcp.BucketService,
) GameIntakeService {
	return &gameIntakeService{
		log:         baseLog.With("service", "GameIntake"),
		tx:          tx,
		games:       games,
		jobRuns:     jobRuns,
		categories:  categories,
		allocator:   allocator,
		jobs:        jobs,
		invalidator: invalidator,
		notify:      notify,
		storage:     storage,
	}
}

func (s *gameIntakeService) Create(ctx context.Context, req CreateGameRequest, requestingUserID uuid.UUID) (*CreateGameResult, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.ArchiveKey = strings.TrimSpace(req.ArchiveKey)
	req.ThumbnailKey = strings.TrimSpace(req.ThumbnailKey)
	if err := validateRequest("create_game", req); err != nil {
		return nil, err
	}

	var (
		game      *types.Game
		displaced []uuid.UUID
	)
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		category, err := s.categories.Resolve(dbc, req.CategoryID)
		if err != nil {
			return err
		}
		slug, err := UniqueSlug(dbc, s.games, req.Title, uuid.Nil)
		if err != nil {
			return err
		}
		game = &types.Game{
			Title:            req.Title,
			Slug:             slug,
			CategoryID:       category.ID,
			ArchiveKey:       req.ArchiveKey,
			ThumbnailKey:     req.ThumbnailKey,
			Status:           types.GameStatusDisabled,
			ProcessingStatus: types.ProcessingPending,
		}
		if err := s.games.Create(dbc, game); err != nil {
			return err
		}
		assignment, err := s.allocator.AssignOnCreate(dbc, game.ID, req.Position)
		if err != nil {
			return err
		}
		pos := assignment.Position
		game.Position = &pos
		displaced = assignment.Displaced
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError("create_game", err)
	}
	s.log.Info("game created", "game_id", game.ID, "slug", game.Slug, "position", *game.Position, "displaced", len(displaced))

	res := &CreateGameResult{Game: game}
	if job := s.enqueuePublish(ctx, game, requestingUserID); job != nil {
		res.JobID = &job.ID
	}

	s.invalidator.GameCreated(ctx, game.ID, game.CategoryID)
	if len(displaced) > 0 {
		s.invalidator.GamePositionChanged(ctx, displaced...)
	}
	s.notify.GameStatusChanged(game)
	return res, nil
}

// enqueuePublish runs after commit. A failure here leaves the game pending
// without a job; it is logged and surfaced as a null job id.
func (s *gameIntakeService) enqueuePublish(ctx context.Context, game *types.Game, requestingUserID uuid.UUID) *types.JobRun {
	payload := map[string]any{
		"game_id":               game.ID.String(),
		"archive_storage_key":   game.ArchiveKey,
		"thumbnail_storage_key": game.ThumbnailKey,
		"requesting_user_id":    requestingUserID.String(),
	}
	dbc := dbctx.Background(ctx)
	job, err := s.jobs.Enqueue(dbc, requestingUserID, JobTypeGamePublish, EntityTypeGame, &game.ID, payload)
	if err != nil && job == nil {
		s.log.Error("publish job enqueue failed; game left pending", "game_id", game.ID, "error", err)
		return nil
	}
	if err != nil {
		// row exists but dispatch failed; the job is already marked failed and retryable
		s.log.Warn("publish job dispatch failed", "game_id", game.ID, "job_id", job.ID, "error", err)
	}
	if uErr := s.games.UpdateFields(dbc, game.ID, map[string]interface{}{"job_id": job.ID}); uErr != nil {
		s.log.Error("record publish job id", "game_id", game.ID, "job_id", job.ID, "error", uErr)
	}
	game.JobID = &job.ID
	return job
}

func (s *gameIntakeService) Reupload(ctx context.Context, gameID uuid.UUID, req ReuploadRequest, requestingUserID uuid.UUID) (*CreateGameResult, error) {
	req.ArchiveKey = strings.TrimSpace(req.ArchiveKey)
	req.ThumbnailKey = strings.TrimSpace(req.ThumbnailKey)
	if err := validateRequest("reupload_game", req); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	game, err := s.games.GetByID(dbc, gameID)
	if err != nil {
		return nil, dataagg.MapError("reupload_game", err)
	}
	if game == nil {
		return nil, domainagg.NotFound("reupload_game", "game not found")
	}
	busy, err := s.jobRuns.HasRunnableForEntity(dbc, EntityTypeGame, game.ID, JobTypeGamePublish)
	if err != nil {
		return nil, dataagg.MapError("reupload_game", err)
	}
	if busy || game.ProcessingStatus == types.ProcessingProcessing {
		return nil, domainagg.Conflict("reupload_game", "an upload is already being processed")
	}

	staleArchive, staleThumb := game.ArchiveKey, game.ThumbnailKey
	ok, err := s.games.UpdateFieldsIfProcessing(dbc, game.ID,
		[]string{types.ProcessingPending, types.ProcessingCompleted, types.ProcessingFailed},
		map[string]interface{}{
			"status":            types.GameStatusDisabled,
			"processing_status": types.ProcessingPending,
			"processing_error":  nil,
			"archive_key":       req.ArchiveKey,
			"thumbnail_key":     req.ThumbnailKey,
			"job_id":            nil,
		})
	if err != nil {
		return nil, dataagg.MapError("reupload_game", err)
	}
	if !ok {
		return nil, domainagg.Conflict("reupload_game", "an upload is already being processed")
	}
	wasActive := game.Status == types.GameStatusActive
	game.Status = types.GameStatusDisabled
	game.ProcessingStatus = types.ProcessingPending
	game.ProcessingError = nil
	game.ArchiveKey = req.ArchiveKey
	game.ThumbnailKey = req.ThumbnailKey
	game.JobID = nil

	// a previous attempt that never ran still holds its temporary objects
	s.dropTemp(ctx, staleArchive, req.ArchiveKey)
	s.dropTemp(ctx, staleThumb, req.ThumbnailKey)

	res := &CreateGameResult{Game: game}
	if job := s.enqueuePublish(ctx, game, requestingUserID); job != nil {
		res.JobID = &job.ID
	}
	if wasActive {
		s.invalidator.GameUpdated(ctx, game.ID, game.CategoryID, game.CategoryID)
	} else {
		s.invalidator.Batch(ctx, BatchInvalidation{GameIDs: []uuid.UUID{game.ID}})
	}
	s.notify.GameStatusChanged(game)
	return res, nil
}

func (s *gameIntakeService) dropTemp(ctx context.Context, stale, replacement string) {
	if s.storage == nil || stale == "" || stale == replacement {
		return
	}
	if err := s.storage.DeleteFile(ctx, gcp.BucketCategoryUploads, stale); err != nil {
		s.log.Warn("delete superseded upload", "key", stale, "error", err)
	}
}
