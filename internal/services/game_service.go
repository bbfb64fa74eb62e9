package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/playhub-backend/internal/cache"
	dataagg "github.com/yungbote/playhub-backend/internal/data/aggregates"
	"github.com/yungbote/playhub-backend/internal/data/repos"
	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// GameView is a game as served to clients. Like fields are filled per request
// and never come from the read cache.
type GameView struct {
	*types.Game
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	PlayURL      string `json:"playUrl,omitempty"`
	LikeCount    int64  `json:"likeCount"`
	Liked        *bool  `json:"liked,omitempty"`
}

type GamePage struct {
	Items    []*GameView `json:"items"`
	Total    int64       `json:"total"`
	Page     int         `json:"page"`
	PageSize int         `json:"pageSize"`
}

type ListGamesQuery struct {
	Page       int
	PageSize   int
	CategoryID *uuid.UUID
	Status     string `validate:"omitempty,oneof=active disabled"`
	// Admin lists may include disabled games; public lists never do.
	Admin bool
}

type UpdateGameRequest struct {
	Title      *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	CategoryID *uuid.UUID `json:"categoryId,omitempty"`
	Position   *int       `json:"position,omitempty"`
}

type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

type BulkStatusRequest struct {
	GameIDs []uuid.UUID `json:"gameIds" validate:"required,min=1,max=500"`
	Status  string      `json:"status" validate:"required,oneof=active disabled"`
}

type BulkStatusResult struct {
	Updated []uuid.UUID `json:"updated"`
	Skipped []uuid.UUID `json:"skipped"`
}

type JobProgressView struct {
	JobID       uuid.UUID `json:"jobId"`
	Status      string    `json:"status"`
	Stage       string    `json:"stage"`
	Progress    int       `json:"progress"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"maxAttempts"`
}

type ProcessingView struct {
	GameID           uuid.UUID        `json:"gameId"`
	Status           string           `json:"status"`
	ProcessingStatus string           `json:"processingStatus"`
	ProcessingError  *string          `json:"processingError"`
	JobID            *uuid.UUID       `json:"jobId"`
	LiveJobProgress  *JobProgressView `json:"liveJobProgress,omitempty"`
}

type GameService interface {
	// Get resolves ref as an id or a slug. Non-admin callers only see active games.
	Get(ctx context.Context, ref string, viewer uuid.UUID, admin bool) (*GameView, error)
	List(ctx context.Context, q ListGamesQuery) (*GamePage, error)
	Search(ctx context.Context, query string, page, pageSize int) (*GamePage, error)
	Update(ctx context.Context, id uuid.UUID, req UpdateGameRequest) (*types.Game, error)
	SetStatus(ctx context.Context, id uuid.UUID, req SetStatusRequest) (*types.Game, error)
	BulkSetStatus(ctx context.Context, req BulkStatusRequest) (*BulkStatusResult, error)
	Delete(ctx context.Context, id uuid.UUID) error
	ProcessingStatus(ctx context.Context, id uuid.UUID) (*ProcessingView, error)
	Retry(ctx context.Context, id uuid.UUID, requestingUserID uuid.UUID) (*ProcessingView, error)
	Play(ctx context.Context, ref string) error
}

type gameService struct {
	log         *logger.Logger
	tx          dataagg.TxRunner
	repos       repos.Set
	categories  CategoryService
	allocator   PositionAllocator
	jobs        JobService
	likes       LikeService
	cache       *cache.Cache
	invalidator CacheInvalidator
	notify      JobNotifier
	events      GameEventPublisher
	storage     gcp.BucketService
}

func NewGameService(
	baseLog *logger.Logger,
	tx dataagg.TxRunner,
	rs repos.Set,
	categories CategoryService,
	allocator PositionAllocator,
	jobs JobService,
	likes LikeService,
	c *cache.Cache,
	invalidator CacheInvalidator,
	notify JobNotifier,
	events GameEventPublisher,
	storage gcp.BucketService,
) GameService {
	return &gameService{
		log:         baseLog.With("service", "GameService"),
		tx:          tx,
		repos:       rs,
		categories:  categories,
		allocator:   allocator,
		jobs:        jobs,
		likes:       likes,
		cache:       c,
		invalidator: invalidator,
		notify:      notify,
		events:      events,
		storage:     storage,
	}
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// GamePrefix is where every published object of a game lives in the games bucket.
func GamePrefix(gameID uuid.UUID) string {
	return "games/" + gameID.String() + "/"
}

func (s *gameService) resolveID(ctx context.Context, ref string) (uuid.UUID, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return uuid.Nil, domainagg.Validation("get_game", "missing game id")
	}
	if id, err := uuid.Parse(ref); err == nil {
		return id, nil
	}
	g, err := s.repos.Games.GetBySlug(dbctx.Background(ctx), strings.ToLower(ref))
	if err != nil {
		return uuid.Nil, dataagg.MapError("get_game", err)
	}
	if g == nil {
		return uuid.Nil, domainagg.NotFound("get_game", "game not found")
	}
	return g.ID, nil
}

func (s *gameService) Get(ctx context.Context, ref string, viewer uuid.UUID, admin bool) (*GameView, error) {
	id, err := s.resolveID(ctx, ref)
	if err != nil {
		return nil, err
	}
	load := func(ctx context.Context) (*GameView, error) {
		dbc := dbctx.Background(ctx)
		g, err := s.repos.Games.GetByID(dbc, id)
		if err != nil {
			return nil, dataagg.MapError("get_game", err)
		}
		if g == nil {
			return nil, domainagg.NotFound("get_game", "game not found")
		}
		views, err := s.toViews(dbc, []*types.Game{g})
		if err != nil {
			return nil, err
		}
		return views[0], nil
	}
	var view *GameView
	if s.cache != nil {
		view, err = cache.GetOrLoad(ctx, s.cache, s.cache.Keys().Game(id), load)
	} else {
		view, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if view == nil || view.Game == nil {
		return nil, domainagg.NotFound("get_game", "game not found")
	}
	if !admin && !view.IsActive() {
		return nil, domainagg.NotFound("get_game", "game not found")
	}

	out := *view
	if lv, err := s.likes.Count(ctx, id, viewer); err == nil {
		out.LikeCount = lv.Count
		if viewer != uuid.Nil {
			liked := lv.Liked
			out.Liked = &liked
		}
	} else {
		s.log.Warn("like count unavailable", "game_id", id, "error", err)
	}
	return &out, nil
}

func (s *gameService) List(ctx context.Context, q ListGamesQuery) (*GamePage, error) {
	q.Status = strings.ToLower(strings.TrimSpace(q.Status))
	if err := validateRequest("list_games", q); err != nil {
		return nil, err
	}
	if !q.Admin {
		q.Status = types.GameStatusActive
	}
	page, size := normalizePage(q.Page, q.PageSize)
	filter := repos.GameListFilter{
		CategoryID: q.CategoryID,
		Status:     q.Status,
		Offset:     (page - 1) * size,
		Limit:      size,
	}
	var key string
	if s.cache != nil {
		if q.CategoryID != nil && *q.CategoryID != uuid.Nil {
			key = s.cache.Keys().CategoryGames(*q.CategoryID, q.Status, page, size)
		} else {
			key = s.cache.Keys().GamesList(q.Status, page, size)
		}
	}
	return s.page(ctx, "list_games", key, filter, page, size)
}

func (s *gameService) Search(ctx context.Context, query string, page, pageSize int) (*GamePage, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domainagg.Validation("search_games", "q is required")
	}
	if len(query) > 100 {
		return nil, domainagg.Validation("search_games", "q must be at most 100")
	}
	page, size := normalizePage(page, pageSize)
	filter := repos.GameListFilter{
		Status: types.GameStatusActive,
		Query:  query,
		Offset: (page - 1) * size,
		Limit:  size,
	}
	var key string
	if s.cache != nil {
		key = s.cache.Keys().Search(query, page, size)
	}
	return s.page(ctx, "search_games", key, filter, page, size)
}

func (s *gameService) page(ctx context.Context, op, key string, filter repos.GameListFilter, page, size int) (*GamePage, error) {
	load := func(ctx context.Context) (*GamePage, error) {
		dbc := dbctx.Background(ctx)
		games, total, err := s.repos.Games.List(dbc, filter)
		if err != nil {
			return nil, dataagg.MapError(op, err)
		}
		views, err := s.toViews(dbc, games)
		if err != nil {
			return nil, err
		}
		return &GamePage{Items: views, Total: total, Page: page, PageSize: size}, nil
	}
	var (
		out *GamePage
		err error
	)
	if key != "" {
		out, err = cache.GetOrLoad(ctx, s.cache, key, load)
	} else {
		out, err = load(ctx)
	}
	if err != nil {
		return nil, err
	}
	if out == nil {
		return &GamePage{Items: []*GameView{}, Page: page, PageSize: size}, nil
	}
	// copy before decorating: the singleflight result is shared between callers
	items := make([]*GameView, 0, len(out.Items))
	ids := make([]uuid.UUID, 0, len(out.Items))
	for _, v := range out.Items {
		if v == nil || v.Game == nil {
			continue
		}
		cp := *v
		items = append(items, &cp)
		ids = append(ids, v.ID)
	}
	counts, err := s.likes.Counts(ctx, ids)
	if err != nil {
		s.log.Warn("like counts unavailable", "op", op, "error", err)
	}
	for _, v := range items {
		v.LikeCount = counts[v.ID]
	}
	return &GamePage{Items: items, Total: out.Total, Page: out.Page, PageSize: out.PageSize}, nil
}

func (s *gameService) toViews(dbc dbctx.Context, games []*types.Game) ([]*GameView, error) {
	fileIDs := make([]uuid.UUID, 0, len(games)*2)
	for _, g := range games {
		if g.FileID != nil {
			fileIDs = append(fileIDs, *g.FileID)
		}
		if g.ThumbnailFileID != nil {
			fileIDs = append(fileIDs, *g.ThumbnailFileID)
		}
	}
	urls := map[uuid.UUID]string{}
	if len(fileIDs) > 0 {
		files, err := s.repos.Files.GetByIDs(dbc, fileIDs)
		if err != nil {
			return nil, dataagg.MapError("load_game_files", err)
		}
		for _, f := range files {
			urls[f.ID] = f.PublicURL
		}
	}
	out := make([]*GameView, 0, len(games))
	for _, g := range games {
		v := &GameView{Game: g}
		if g.FileID != nil {
			v.PlayURL = urls[*g.FileID]
		}
		if g.ThumbnailFileID != nil {
			v.ThumbnailURL = urls[*g.ThumbnailFileID]
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *gameService) load(dbc dbctx.Context, op string, id uuid.UUID) (*types.Game, error) {
	g, err := s.repos.Games.GetByID(dbc, id)
	if err != nil {
		return nil, dataagg.MapError(op, err)
	}
	if g == nil {
		return nil, domainagg.NotFound(op, "game not found")
	}
	return g, nil
}

func (s *gameService) Update(ctx context.Context, id uuid.UUID, req UpdateGameRequest) (*types.Game, error) {
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		req.Title = &t
	}
	if err := validateRequest("update_game", req); err != nil {
		return nil, err
	}
	var (
		game            *types.Game
		previousCat     uuid.UUID
		positionChanged bool
		displaced       []uuid.UUID
	)
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		g, err := s.load(dbc, "update_game", id)
		if err != nil {
			return err
		}
		previousCat = g.CategoryID
		updates := map[string]interface{}{}
		if req.Title != nil && *req.Title != g.Title {
			slug, err := UniqueSlug(dbc, s.repos.Games, *req.Title, g.ID)
			if err != nil {
				return err
			}
			updates["title"] = *req.Title
			updates["slug"] = slug
			g.Title, g.Slug = *req.Title, slug
		}
		if req.CategoryID != nil && *req.CategoryID != g.CategoryID {
			c, err := s.categories.Resolve(dbc, req.CategoryID)
			if err != nil {
				return err
			}
			updates["category_id"] = c.ID
			g.CategoryID = c.ID
		}
		if len(updates) > 0 {
			if err := s.repos.Games.UpdateFields(dbc, g.ID, updates); err != nil {
				return err
			}
		}
		if req.Position != nil {
			a, err := s.allocator.AssignOnUpdate(dbc, g.ID, *req.Position)
			if err != nil {
				return err
			}
			if a.Changed {
				pos := a.Position
				g.Position = &pos
				positionChanged = true
				displaced = a.Displaced
			}
		}
		game = g
		return nil
	})
	if err != nil {
		return nil, dataagg.MapError("update_game", err)
	}

	s.invalidator.GameUpdated(ctx, game.ID, game.CategoryID, previousCat)
	if positionChanged {
		s.invalidator.GamePositionChanged(ctx, append([]uuid.UUID{game.ID}, displaced...)...)
	}
	return game, nil
}

func (s *gameService) SetStatus(ctx context.Context, id uuid.UUID, req SetStatusRequest) (*types.Game, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := validateRequest("set_game_status", req); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	g, err := s.load(dbc, "set_game_status", id)
	if err != nil {
		return nil, err
	}
	if g.Status == req.Status {
		return g, nil
	}
	if req.Status == types.GameStatusActive && g.ProcessingStatus != types.ProcessingCompleted {
		return nil, domainagg.NewError(domainagg.CodeInvariantViolation, "set_game_status", "a game can only be activated after processing completes", nil)
	}
	changed, err := s.repos.Games.UpdateStatusBulk(dbc, []uuid.UUID{g.ID}, req.Status)
	if err != nil {
		return nil, dataagg.MapError("set_game_status", err)
	}
	if len(changed) == 0 {
		return nil, domainagg.Conflict("set_game_status", "game changed while updating its status")
	}
	g.Status = req.Status
	s.invalidator.GameUpdated(ctx, g.ID, g.CategoryID, g.CategoryID)
	s.notify.GameStatusChanged(g)
	return g, nil
}

func (s *gameService) BulkSetStatus(ctx context.Context, req BulkStatusRequest) (*BulkStatusResult, error) {
	req.Status = strings.ToLower(strings.TrimSpace(req.Status))
	if err := validateRequest("bulk_game_status", req); err != nil {
		return nil, err
	}
	dbc := dbctx.Background(ctx)
	changed, err := s.repos.Games.UpdateStatusBulk(dbc, req.GameIDs, req.Status)
	if err != nil {
		return nil, dataagg.MapError("bulk_game_status", err)
	}
	res := &BulkStatusResult{Updated: changed, Skipped: []uuid.UUID{}}
	if res.Updated == nil {
		res.Updated = []uuid.UUID{}
	}
	done := make(map[uuid.UUID]struct{}, len(changed))
	for _, id := range changed {
		done[id] = struct{}{}
	}
	for _, id := range req.GameIDs {
		if _, ok := done[id]; !ok {
			res.Skipped = append(res.Skipped, id)
		}
	}
	if len(changed) == 0 {
		return res, nil
	}

	games, err := s.repos.Games.GetByIDs(dbc, changed)
	if err != nil {
		s.log.Warn("reload games after bulk status", "error", err)
	}
	batch := BatchInvalidation{GameIDs: changed}
	for _, g := range games {
		batch.CategoryIDs = append(batch.CategoryIDs, g.CategoryID)
		s.notify.GameStatusChanged(g)
	}
	s.invalidator.Batch(ctx, batch)
	return res, nil
}

func (s *gameService) Delete(ctx context.Context, id uuid.UUID) error {
	var game *types.Game
	err := s.tx.InTx(ctx, func(dbc dbctx.Context) error {
		g, err := s.load(dbc, "delete_game", id)
		if err != nil {
			return err
		}
		if err := s.repos.Positions.DeleteByGame(dbc, g.ID); err != nil {
			return err
		}
		if err := s.repos.Likes.DeleteByGame(dbc, g.ID); err != nil {
			return err
		}
		if err := s.repos.LikeCounts.Delete(dbc, g.ID); err != nil {
			return err
		}
		if err := s.repos.Files.DeleteByGame(dbc, g.ID); err != nil {
			return err
		}
		// a publish still in flight stops writing objects once it sees the cancel
		canceled, err := s.repos.JobRuns.CancelRunnableForEntity(dbc, EntityTypeGame, g.ID, JobTypeGamePublish, "game deleted")
		if err != nil {
			return err
		}
		if len(canceled) > 0 {
			s.log.Info("canceled publish jobs of deleted game", "game_id", g.ID, "job_ids", canceled)
		}
		if err := s.repos.Games.Delete(dbc, g.ID); err != nil {
			return err
		}
		game = g
		return nil
	})
	if err != nil {
		return dataagg.MapError("delete_game", err)
	}
	s.log.Info("game deleted", "game_id", game.ID, "slug", game.Slug)

	if s.storage != nil {
		if err := s.storage.DeletePrefix(ctx, gcp.BucketCategoryGames, GamePrefix(game.ID)); err != nil {
			s.log.Warn("delete published objects", "game_id", game.ID, "error", err)
		}
		for _, key := range []string{game.ArchiveKey, game.ThumbnailKey} {
			if key == "" {
				continue
			}
			if err := s.storage.DeleteFile(ctx, gcp.BucketCategoryUploads, key); err != nil {
				s.log.Warn("delete temporary upload", "game_id", game.ID, "key", key, "error", err)
			}
		}
	}
	s.invalidator.GameDeleted(ctx, game.ID, game.Slug, game.CategoryID)
	s.events.Deleted(ctx, game)
	return nil
}

func (s *gameService) latestJob(dbc dbctx.Context, g *types.Game) (*types.JobRun, error) {
	if g.JobID != nil && *g.JobID != uuid.Nil {
		job, err := s.repos.JobRuns.GetByID(dbc, *g.JobID)
		if err != nil || job != nil {
			return job, err
		}
	}
	return s.jobs.GetLatestForEntity(dbc, EntityTypeGame, g.ID, JobTypeGamePublish)
}

func (s *gameService) ProcessingStatus(ctx context.Context, id uuid.UUID) (*ProcessingView, error) {
	dbc := dbctx.Background(ctx)
	g, err := s.load(dbc, "processing_status", id)
	if err != nil {
		return nil, err
	}
	view := &ProcessingView{
		GameID:           g.ID,
		Status:           g.Status,
		ProcessingStatus: g.ProcessingStatus,
		ProcessingError:  g.ProcessingError,
		JobID:            g.JobID,
	}
	job, err := s.latestJob(dbc, g)
	if err != nil {
		s.log.Warn("load publish job", "game_id", g.ID, "error", err)
	}
	if job != nil {
		view.LiveJobProgress = &JobProgressView{
			JobID:       job.ID,
			Status:      job.Status,
			Stage:       job.Stage,
			Progress:    job.Progress,
			Message:     job.Message,
			Error:       job.Error,
			Attempts:    job.Attempts,
			MaxAttempts: job.MaxAttempts,
		}
	}
	return view, nil
}

// Retry never reprocesses a failed upload: its temporary archive is gone once
// the final attempt fails. It can only hurry a pending retry along, or
// re-enqueue an upload whose job never got recorded.
func (s *gameService) Retry(ctx context.Context, id uuid.UUID, requestingUserID uuid.UUID) (*ProcessingView, error) {
	dbc := dbctx.Background(ctx)
	g, err := s.load(dbc, "retry_game", id)
	if err != nil {
		return nil, err
	}
	switch g.ProcessingStatus {
	case types.ProcessingFailed:
		return nil, domainagg.Conflict("retry_game", "re-upload required: the uploaded archive is not retained after a failed publish")
	case types.ProcessingCompleted:
		return nil, domainagg.Conflict("retry_game", "game is already published")
	}

	job, err := s.latestJob(dbc, g)
	if err != nil {
		return nil, dataagg.MapError("retry_game", err)
	}
	switch {
	case job == nil || job.Status == types.JobStatusCanceled || (job.Status == types.JobStatusFailed && job.IsFinalAttempt()):
		if g.ArchiveKey == "" {
			return nil, domainagg.Conflict("retry_game", "re-upload required: no archive is recorded for this game")
		}
		payload := map[string]any{
			"game_id":               g.ID.String(),
			"archive_storage_key":   g.ArchiveKey,
			"thumbnail_storage_key": g.ThumbnailKey,
			"requesting_user_id":    requestingUserID.String(),
		}
		fresh, err := s.jobs.Enqueue(dbc, requestingUserID, JobTypeGamePublish, EntityTypeGame, &g.ID, payload)
		if err != nil && fresh == nil {
			return nil, domainagg.Wrap(domainagg.CodeRetryable, "retry_game", err)
		}
		if err := s.repos.Games.UpdateFields(dbc, g.ID, map[string]interface{}{"job_id": fresh.ID}); err != nil {
			return nil, dataagg.MapError("retry_game", err)
		}
	case job.Status == types.JobStatusFailed:
		if _, err := s.jobs.Expedite(dbc, job.ID); err != nil {
			return nil, err
		}
	default:
		return nil, domainagg.Conflict("retry_game", "processing is already in progress")
	}
	return s.ProcessingStatus(ctx, g.ID)
}

func (s *gameService) Play(ctx context.Context, ref string) error {
	id, err := s.resolveID(ctx, ref)
	if err != nil {
		return err
	}
	dbc := dbctx.Background(ctx)
	g, err := s.load(dbc, "play_game", id)
	if err != nil {
		return err
	}
	if !g.IsActive() {
		return domainagg.NotFound("play_game", "game not found")
	}
	if g.Position == nil {
		return nil
	}
	ok, err := s.repos.Positions.IncrementClicks(dbc, g.ID, *g.Position)
	if err != nil {
		return dataagg.MapError("play_game", err)
	}
	if !ok {
		// history predates the allocator; create the pair and count this play
		if _, err := s.repos.Positions.GetOrCreate(dbc, g.ID, *g.Position); err != nil {
			return dataagg.MapError("play_game", err)
		}
		if _, err := s.repos.Positions.IncrementClicks(dbc, g.ID, *g.Position); err != nil {
			return dataagg.MapError("play_game", err)
		}
	}
	return nil
}
