package game_publish

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	types "github.com/yungbote/playhub-backend/internal/domain"
	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/archive"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/thumbnail"
	"github.com/yungbote/playhub-backend/internal/services"
)

type publishInput struct {
	gameID       uuid.UUID
	archiveKey   string
	thumbnailKey string
}

type published struct {
	index     *types.File
	thumbnail *types.File
	entries   int
}

func (p *Pipeline) Run(jc *jobrt.Context) error {
	if jc == nil || jc.Job == nil {
		return nil
	}
	gameID, ok := jc.PayloadUUID("game_id")
	if !ok {
		jc.FailFinal("validate", fmt.Errorf("missing game_id"))
		return nil
	}
	in := publishInput{
		gameID:       gameID,
		archiveKey:   jc.PayloadString("archive_storage_key"),
		thumbnailKey: jc.PayloadString("thumbnail_storage_key"),
	}
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx, Tx: p.db}

	game, err := p.games.GetByID(dbc, gameID)
	if err != nil {
		return err
	}
	if game == nil {
		p.dropGameObjects(ctx, gameID)
		jc.FailFinal("load", domainagg.NotFound("game_publish", "game no longer exists"))
		return nil
	}
	// a stale reclaim after the publishing attempt already finished
	if game.ProcessingStatus == types.ProcessingCompleted && game.ArchiveKey != in.archiveKey {
		jc.Succeed("done", map[string]any{"game_id": game.ID, "already_published": true})
		return nil
	}
	if game.ArchiveKey != in.archiveKey {
		jc.Succeed("superseded", map[string]any{"game_id": game.ID, "superseded": true})
		return nil
	}

	stage := "processing"
	out, err := p.publishRecovered(jc, game, in, &stage)
	if err == nil {
		jc.Succeed("done", map[string]any{
			"game_id":           game.ID,
			"file_id":           out.index.ID,
			"thumbnail_file_id": out.thumbnail.ID,
			"index_key":         out.index.StorageKey,
			"public_url":        out.index.PublicURL,
			"entries":           out.entries,
		})
		return nil
	}

	if !jobrt.IsTerminal(err) && !jc.IsFinalAttempt() {
		// the temp archive is kept so the next attempt can reuse it
		jc.Log.Warn("publish attempt failed; will retry", "game_id", game.ID, "stage", stage, "error", err)
		jc.Fail(stage, err)
		return nil
	}
	p.markFailed(ctx, game, in, err)
	jc.FailFinal(stage, err)
	return nil
}

// publishRecovered turns a panic into an ordinary attempt failure, so the final
// attempt still records the game as failed.
func (p *Pipeline) publishRecovered(jc *jobrt.Context, game *types.Game, in publishInput, stage *string) (out *published, err error) {
	defer func() {
		if r := recover(); r != nil {
			jc.Log.Error("publish panicked", "game_id", game.ID, "stage", *stage, "panic", r, "stack", string(debug.Stack()))
			out, err = nil, fmt.Errorf("panic during %s: %v", *stage, r)
		}
	}()
	return p.publish(jc, game, in, stage)
}

func (p *Pipeline) publish(jc *jobrt.Context, game *types.Game, in publishInput, stage *string) (*published, error) {
	ctx := jc.Ctx
	dbc := dbctx.Context{Ctx: ctx, Tx: p.db}
	if strings.TrimSpace(in.archiveKey) == "" {
		return nil, domainagg.Terminal("game_publish", errors.New("no archive was uploaded"))
	}

	ok, err := p.games.UpdateFieldsIfProcessing(dbc, game.ID,
		[]string{types.ProcessingPending, types.ProcessingProcessing},
		map[string]interface{}{
			"processing_status": types.ProcessingProcessing,
			"status":            types.GameStatusDisabled,
			"job_id":            jc.Job.ID,
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainagg.Terminal("game_publish", fmt.Errorf("game is %s, not awaiting processing", game.ProcessingStatus))
	}
	game.ProcessingStatus = types.ProcessingProcessing
	game.Status = types.GameStatusDisabled
	game.JobID = &jc.Job.ID
	p.notify.GameStatusChanged(game)
	jc.Progress("processing", 10, "Processing started")

	*stage = "download"
	var buf []byte
	if err := p.step(ctx, "download", func(ctx context.Context) error {
		rc, err := p.storage.DownloadFile(ctx, gcp.BucketCategoryUploads, in.archiveKey)
		if errors.Is(err, gcp.ErrObjectNotFound) {
			return domainagg.Terminal("download", fmt.Errorf("uploaded archive is gone; re-upload required"))
		}
		if err != nil {
			return err
		}
		defer rc.Close()
		buf, err = io.ReadAll(rc)
		return err
	}); err != nil {
		return nil, err
	}
	jc.Progress("download", 30, "Archive downloaded")

	*stage = "extract"
	var tree *archive.Tree
	if err := p.step(ctx, "extract", func(ctx context.Context) error {
		var err error
		tree, err = archive.Extract(buf, p.cfg.Limits)
		if archive.IsTerminal(err) {
			return domainagg.Terminal("extract", err)
		}
		return err
	}); err != nil {
		return nil, err
	}
	buf = nil
	jc.Progress("extract", 50, fmt.Sprintf("Found %s", tree.IndexPath))

	*stage = "upload"
	prefix := PublishPrefix(game.ID, in.archiveKey)
	if err := p.step(ctx, "upload", func(ctx context.Context) error {
		return p.uploadTree(ctx, prefix, tree)
	}); err != nil {
		return nil, err
	}
	if jc.Canceled() {
		p.dropGameObjects(ctx, game.ID)
		return nil, domainagg.Terminal("upload", errors.New("publish canceled"))
	}
	jc.Progress("upload", 80, fmt.Sprintf("Uploaded %d files", len(tree.Entries)))

	*stage = "record"
	out := &published{entries: len(tree.Entries)}
	indexKey := prefix + tree.IndexPath
	out.index, err = p.files.GetOrCreateByStorageKey(dbc, &types.File{
		GameID:      game.ID,
		Kind:        types.FileKindGameIndex,
		StorageKey:  indexKey,
		PublicURL:   p.storage.GetPublicURL(gcp.BucketCategoryGames, indexKey),
		ContentType: gcp.ContentTypeForKey(indexKey),
		SizeBytes:   indexSize(tree),
	})
	if err != nil {
		return nil, err
	}
	if err := p.step(ctx, "thumbnail", func(ctx context.Context) error {
		var err error
		out.thumbnail, err = p.publishThumbnail(ctx, game, in.thumbnailKey)
		return err
	}); err != nil {
		return nil, err
	}
	jc.Progress("record", 90, "Files recorded")

	ok, err = p.games.UpdateFieldsIfProcessing(dbc, game.ID,
		[]string{types.ProcessingProcessing},
		map[string]interface{}{
			"file_id":           out.index.ID,
			"thumbnail_file_id": out.thumbnail.ID,
			"processing_status": types.ProcessingCompleted,
			"status":            types.GameStatusActive,
			"processing_error":  nil,
			"archive_key":       "",
			"thumbnail_key":     "",
		})
	if err != nil {
		return nil, err
	}
	if !ok {
		if current, gErr := p.games.GetByID(dbc, game.ID); gErr == nil && current == nil {
			p.dropGameObjects(ctx, game.ID)
		}
		return nil, domainagg.Terminal("activate", fmt.Errorf("game left processing while publishing"))
	}
	game.FileID = &out.index.ID
	game.ThumbnailFileID = &out.thumbnail.ID
	game.ProcessingStatus = types.ProcessingCompleted
	game.Status = types.GameStatusActive
	game.ProcessingError = nil
	game.ArchiveKey, game.ThumbnailKey = "", ""

	*stage = "cleanup"
	p.deleteTemp(ctx, in)
	if p.invalidator != nil {
		p.invalidator.GameCreated(ctx, game.ID, game.CategoryID)
	}
	if p.events != nil {
		p.events.Published(ctx, game)
	}
	p.notify.GameStatusChanged(game)
	return out, nil
}

func (p *Pipeline) uploadTree(ctx context.Context, prefix string, tree *archive.Tree) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.UploadConcurrency)
	for _, e := range tree.Entries {
		e := e
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			rc, err := e.Open()
			if err != nil {
				return domainagg.Terminal("upload", err)
			}
			defer rc.Close()
			if err := p.storage.UploadFile(gctx, gcp.BucketCategoryGames, prefix+e.Path, rc); err != nil {
				if archive.IsTerminal(err) {
					return domainagg.Terminal("upload", err)
				}
				return fmt.Errorf("upload %s: %w", e.Path, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// publishThumbnail stores the uploaded cover, scaled down when oversized, or a
// rendered placeholder when none was uploaded or it is not a readable image.
func (p *Pipeline) publishThumbnail(ctx context.Context, game *types.Game, tempKey string) (*types.File, error) {
	var raw []byte
	if tempKey != "" {
		rc, err := p.storage.DownloadFile(ctx, gcp.BucketCategoryUploads, tempKey)
		switch {
		case errors.Is(err, gcp.ErrObjectNotFound):
			p.log.Warn("uploaded thumbnail missing; rendering placeholder", "game_id", game.ID, "key", tempKey)
		case err != nil:
			return nil, err
		default:
			raw, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
		}
	}
	if raw != nil {
		if _, err := thumbnail.Inspect(raw); err != nil {
			p.log.Warn("uploaded thumbnail unreadable; rendering placeholder", "game_id", game.ID, "error", err)
			raw = nil
		} else if scaled, ok, err := p.thumbs.Downscale(raw); err == nil && ok {
			raw = scaled
		}
	}
	if raw == nil {
		var err error
		raw, err = p.thumbs.Placeholder(game.Title, game.ID.String())
		if err != nil {
			return nil, err
		}
	}
	info, err := thumbnail.Inspect(raw)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(raw)
	key := fmt.Sprintf("%sthumbnails/%s%s", services.GamePrefix(game.ID), hex.EncodeToString(sum[:])[:16], thumbnail.ExtForFormat(info.Format))
	if err := p.storage.UploadFile(ctx, gcp.BucketCategoryGames, key, bytes.NewReader(raw)); err != nil {
		return nil, err
	}
	return p.files.GetOrCreateByStorageKey(dbctx.Context{Ctx: ctx, Tx: p.db}, &types.File{
		GameID:      game.ID,
		Kind:        types.FileKindThumbnail,
		StorageKey:  key,
		PublicURL:   p.storage.GetPublicURL(gcp.BucketCategoryGames, key),
		ContentType: gcp.ContentTypeForKey(key),
		SizeBytes:   int64(len(raw)),
		Width:       info.Width,
		Height:      info.Height,
	})
}

// markFailed records the final failure on the game. Nothing is left to retry
// with, so the temporary uploads go too.
func (p *Pipeline) markFailed(ctx context.Context, game *types.Game, in publishInput, cause error) {
	msg := domainagg.MessageOf(cause)
	ok, err := p.games.UpdateFieldsIfProcessing(dbctx.Context{Ctx: ctx, Tx: p.db}, game.ID,
		[]string{types.ProcessingPending, types.ProcessingProcessing},
		map[string]interface{}{
			"processing_status": types.ProcessingFailed,
			"status":            types.GameStatusDisabled,
			"processing_error":  msg,
			"archive_key":       "",
			"thumbnail_key":     "",
		})
	if err != nil {
		p.log.Error("record publish failure", "game_id", game.ID, "error", err)
		return
	}
	if !ok {
		p.log.Warn("game left processing before failure was recorded", "game_id", game.ID)
		return
	}
	game.ProcessingStatus = types.ProcessingFailed
	game.Status = types.GameStatusDisabled
	game.ProcessingError = &msg
	game.ArchiveKey, game.ThumbnailKey = "", ""

	p.deleteTemp(ctx, in)
	if p.invalidator != nil {
		p.invalidator.GameUpdated(ctx, game.ID, game.CategoryID, uuid.Nil)
	}
	if p.events != nil {
		p.events.Failed(ctx, game, msg)
	}
	p.notify.GameStatusChanged(game)
}

// dropGameObjects removes what publishing wrote for a game that was deleted
// underneath it.
func (p *Pipeline) dropGameObjects(ctx context.Context, gameID uuid.UUID) {
	if err := p.storage.DeletePrefix(ctx, gcp.BucketCategoryGames, services.GamePrefix(gameID)); err != nil {
		p.log.Warn("drop objects of deleted game", "game_id", gameID, "error", err)
	}
}

func (p *Pipeline) deleteTemp(ctx context.Context, in publishInput) {
	for _, key := range []string{in.archiveKey, in.thumbnailKey} {
		if key == "" {
			continue
		}
		if err := p.storage.DeleteFile(ctx, gcp.BucketCategoryUploads, key); err != nil {
			p.log.Warn("temporary upload not deleted", "key", key, "error", err)
		}
	}
}

func (p *Pipeline) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := otel.Tracer("playhub/jobs").Start(ctx, "game_publish."+name)
	defer span.End()
	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("error.terminal", jobrt.IsTerminal(err)))
	}
	return err
}

func indexSize(tree *archive.Tree) int64 {
	for _, e := range tree.Entries {
		if e.Path == tree.IndexPath {
			return e.Size
		}
	}
	return 0
}
