package game_publish

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/data/repos/testutil"
	types "github.com/yungbote/playhub-backend/internal/domain"
	jobrt "github.com/yungbote/playhub-backend/internal/jobs/runtime"
	"github.com/yungbote/playhub-backend/internal/platform/blobstore"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/services"
)

// flakyStorage fails the first failUploads uploads into the games bucket and
// panics on archive downloads while panicDownloads is set.
type flakyStorage struct {
	gcp.BucketService
	failUploads    atomic.Int32
	panicDownloads atomic.Bool
	// onGamesUpload runs once, before the first upload into the games bucket
	onGamesUpload func()
	hookOnce      sync.Once
}

func (f *flakyStorage) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	if category == gcp.BucketCategoryUploads && f.panicDownloads.Load() {
		panic("reader exploded")
	}
	return f.BucketService.DownloadFile(ctx, category, key)
}

func (f *flakyStorage) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, r io.Reader) error {
	if category == gcp.BucketCategoryGames && f.onGamesUpload != nil {
		f.hookOnce.Do(f.onGamesUpload)
	}
	if category == gcp.BucketCategoryGames && f.failUploads.Add(-1) >= 0 {
		return errors.New("storage unavailable")
	}
	return f.BucketService.UploadFile(ctx, category, key, r)
}

type recordedEvents struct {
	published, failed []uuid.UUID
	reasons           []string
}

func (r *recordedEvents) Published(_ context.Context, g *types.Game) { r.published = append(r.published, g.ID) }
func (r *recordedEvents) Failed(_ context.Context, g *types.Game, reason string) {
	r.failed = append(r.failed, g.ID)
	r.reasons = append(r.reasons, reason)
}
func (r *recordedEvents) Deleted(context.Context, *types.Game) {}

type fixture struct {
	db      *gorm.DB
	rs      repos.Set
	mem     *blobstore.Store
	storage *flakyStorage
	events  *recordedEvents
	exec    *jobrt.Executor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.SQLite(t)
	log := testutil.Logger(t)
	rs := repos.NewSet(db, log)
	mem := blobstore.NewMemory(log)
	storage := &flakyStorage{BucketService: mem}
	events := &recordedEvents{}

	reg := jobrt.NewRegistry()
	require.NoError(t, reg.Register(New(Deps{
		DB:          db,
		Log:         log,
		Games:       rs.Games,
		Files:       rs.Files,
		Storage:     storage,
		Invalidator: services.NewCacheInvalidator(log, nil),
		Events:      events,
	}, Config{UploadConcurrency: 2})))

	return &fixture{
		db:      db,
		rs:      rs,
		mem:     mem,
		storage: storage,
		events:  events,
		exec:    &jobrt.Executor{DB: db, Log: log, Repo: rs.JobRuns, Registry: reg},
	}
}

func (f *fixture) dbc(t *testing.T) dbctx.Context {
	return dbctx.Context{Ctx: t.Context(), Tx: f.db}
}

func (f *fixture) put(t *testing.T, key string, body []byte) {
	t.Helper()
	require.NoError(t, f.mem.UploadFile(t.Context(), gcp.BucketCategoryUploads, key, bytes.NewReader(body)))
}

// newGame stores a pending game plus its queued publish job.
func (f *fixture) newGame(t *testing.T, archiveKey, thumbKey string, maxAttempts int) *types.Game {
	t.Helper()
	now := time.Now().UTC()
	g := &types.Game{
		ID:                uuid.New(),
		Title:             "Space Pong",
		Slug:              "space-pong-" + uuid.NewString()[:8],
		CategoryID:        uuid.New(),
		ArchiveKey:        archiveKey,
		ThumbnailKey:      thumbKey,
		Status:            types.GameStatusDisabled,
		ProcessingStatus:  types.ProcessingPending,
		LastLikeIncrement: now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, f.rs.Games.Create(f.dbc(t), g))

	payload, err := json.Marshal(map[string]any{
		"game_id":               g.ID.String(),
		"archive_storage_key":   archiveKey,
		"thumbnail_storage_key": thumbKey,
	})
	require.NoError(t, err)
	_, err = f.rs.JobRuns.Create(f.dbc(t), []*types.JobRun{{
		ID:          uuid.New(),
		JobType:     services.JobTypeGamePublish,
		EntityType:  services.EntityTypeGame,
		EntityID:    &g.ID,
		Status:      types.JobStatusQueued,
		Stage:       "queued",
		MaxAttempts: maxAttempts,
		Payload:     datatypes.JSON(payload),
		Result:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}})
	require.NoError(t, err)
	return g
}

// runAttempt claims the next runnable job, ignoring the retry delay.
func (f *fixture) runAttempt(t *testing.T) *types.JobRun {
	t.Helper()
	job, err := f.rs.JobRuns.ClaimNextRunnable(f.dbc(t), 3, 0, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, job, "no runnable job")
	out, err := f.exec.Execute(t.Context(), job)
	require.NoError(t, err)
	return out
}

func (f *fixture) game(t *testing.T, id uuid.UUID) *types.Game {
	t.Helper()
	g, err := f.rs.Games.GetByID(f.dbc(t), id)
	require.NoError(t, err)
	require.NotNil(t, g)
	return g
}

func (f *fixture) uploadExists(t *testing.T, key string) bool {
	t.Helper()
	_, err := f.mem.GetObjectAttrs(t.Context(), gcp.BucketCategoryUploads, key)
	if errors.Is(err, gcp.ErrObjectNotFound) {
		return false
	}
	require.NoError(t, err)
	return true
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func TestPublishNestedIndex(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/a.zip", zipOf(t, map[string]string{
		"assets/index.html": "<html>pong</html>",
		"assets/game.js":    "console.log(1)",
		"__MACOSX/junk":     "x",
	}))
	f.put(t, "thumbnails/t.png", pngOf(t, 40, 30))
	g := f.newGame(t, "archives/a.zip", "thumbnails/t.png", 3)

	job := f.runAttempt(t)
	assert.Equal(t, types.JobStatusSucceeded, job.Status)
	assert.Equal(t, 100, job.Progress)

	got := f.game(t, g.ID)
	assert.Equal(t, types.ProcessingCompleted, got.ProcessingStatus)
	assert.Equal(t, types.GameStatusActive, got.Status)
	assert.Nil(t, got.ProcessingError)
	require.NotNil(t, got.FileID)
	require.NotNil(t, got.ThumbnailFileID)
	assert.Empty(t, got.ArchiveKey)

	files, err := f.rs.Files.GetByIDs(f.dbc(t), []uuid.UUID{*got.FileID, *got.ThumbnailFileID})
	require.NoError(t, err)
	byKind := map[string]*types.File{}
	for _, file := range files {
		byKind[file.Kind] = file
	}
	assert.Equal(t, PublishPrefix(g.ID, "archives/a.zip")+"assets/index.html", byKind[types.FileKindGameIndex].StorageKey)
	assert.Equal(t, 40, byKind[types.FileKindThumbnail].Width)
	assert.Equal(t, 30, byKind[types.FileKindThumbnail].Height)

	keys, err := f.mem.ListKeys(t.Context(), gcp.BucketCategoryGames, PublishPrefix(g.ID, "archives/a.zip"))
	require.NoError(t, err)
	assert.Len(t, keys, 2)

	assert.False(t, f.uploadExists(t, "archives/a.zip"))
	assert.False(t, f.uploadExists(t, "thumbnails/t.png"))
	assert.Equal(t, []uuid.UUID{g.ID}, f.events.published)
}

func TestPublishWithoutThumbnailRendersPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/b.zip", zipOf(t, map[string]string{"index.html": "<html></html>"}))
	g := f.newGame(t, "archives/b.zip", "", 3)

	f.runAttempt(t)
	got := f.game(t, g.ID)
	require.NotNil(t, got.ThumbnailFileID)
	files, err := f.rs.Files.GetByIDs(f.dbc(t), []uuid.UUID{*got.ThumbnailFileID})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, 640, files[0].Width)
	assert.Contains(t, files[0].StorageKey, "thumbnails/")
}

func TestPublishMissingIndexFailsImmediately(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/c.zip", zipOf(t, map[string]string{"readme.txt": "no game here"}))
	g := f.newGame(t, "archives/c.zip", "", 3)

	job := f.runAttempt(t)
	assert.Equal(t, types.JobStatusFailed, job.Status)
	assert.True(t, job.IsFinalAttempt())
	assert.Equal(t, 1, job.Attempts)

	got := f.game(t, g.ID)
	assert.Equal(t, types.ProcessingFailed, got.ProcessingStatus)
	assert.Equal(t, types.GameStatusDisabled, got.Status)
	require.NotNil(t, got.ProcessingError)
	assert.Equal(t, "archive does not contain an index.html", *got.ProcessingError)
	assert.False(t, f.uploadExists(t, "archives/c.zip"))
	assert.Equal(t, []uuid.UUID{g.ID}, f.events.failed)
}

func TestPublishCorruptArchiveIsTerminal(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/d.zip", []byte("definitely not a zip"))
	g := f.newGame(t, "archives/d.zip", "", 3)

	job := f.runAttempt(t)
	assert.True(t, job.IsFinalAttempt())
	assert.Equal(t, types.ProcessingFailed, f.game(t, g.ID).ProcessingStatus)
}

func TestPublishRetryReachesSameFileReference(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/e.zip", zipOf(t, map[string]string{"index.html": "<html></html>", "a.js": "1"}))
	g := f.newGame(t, "archives/e.zip", "", 3)
	f.storage.failUploads.Store(1)

	job := f.runAttempt(t)
	assert.Equal(t, types.JobStatusFailed, job.Status)
	assert.False(t, job.IsFinalAttempt())
	assert.Equal(t, "upload", job.Stage)

	mid := f.game(t, g.ID)
	assert.Equal(t, types.ProcessingProcessing, mid.ProcessingStatus)
	assert.Equal(t, types.GameStatusDisabled, mid.Status)
	assert.True(t, f.uploadExists(t, "archives/e.zip"), "temp archive must survive a non-final failure")

	job = f.runAttempt(t)
	assert.Equal(t, types.JobStatusSucceeded, job.Status)
	assert.Equal(t, 2, job.Attempts)

	got := f.game(t, g.ID)
	assert.Equal(t, types.GameStatusActive, got.Status)
	files, err := f.rs.Files.GetByIDs(f.dbc(t), []uuid.UUID{*got.FileID})
	require.NoError(t, err)
	assert.Equal(t, PublishPrefix(g.ID, "archives/e.zip")+"index.html", files[0].StorageKey)
}

func TestPublishExhaustedRetriesMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/f.zip", zipOf(t, map[string]string{"index.html": "<html></html>"}))
	g := f.newGame(t, "archives/f.zip", "", 2)
	f.storage.failUploads.Store(100)

	first := f.runAttempt(t)
	assert.False(t, first.IsFinalAttempt())
	assert.True(t, f.uploadExists(t, "archives/f.zip"))

	second := f.runAttempt(t)
	assert.Equal(t, types.JobStatusFailed, second.Status)
	assert.True(t, second.IsFinalAttempt())

	got := f.game(t, g.ID)
	assert.Equal(t, types.ProcessingFailed, got.ProcessingStatus)
	require.NotNil(t, got.ProcessingError)
	assert.Contains(t, *got.ProcessingError, "storage unavailable")
	assert.False(t, f.uploadExists(t, "archives/f.zip"))
	assert.Len(t, f.events.reasons, 1)
}

func TestPublishSupersededJobSucceedsWithoutWork(t *testing.T) {
	f := newFixture(t)
	g := f.newGame(t, "archives/old.zip", "", 3)
	require.NoError(t, f.rs.Games.UpdateFields(f.dbc(t), g.ID, map[string]interface{}{"archive_key": "archives/new.zip"}))

	job := f.runAttempt(t)
	assert.Equal(t, types.JobStatusSucceeded, job.Status)
	assert.Equal(t, "superseded", job.Stage)
	assert.Equal(t, types.ProcessingPending, f.game(t, g.ID).ProcessingStatus)
}

func TestPublishPrefixIsStablePerUpload(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, PublishPrefix(id, "archives/x.zip"), PublishPrefix(id, "archives/x.zip"))
	assert.NotEqual(t, PublishPrefix(id, "archives/x.zip"), PublishPrefix(id, "archives/y.zip"))
	assert.Regexp(t, `^games/`+id.String()+`/[0-9a-f]{16}/$`, PublishPrefix(id, "archives/x.zip"))
}

func TestPublishPanicOnFinalAttemptMarksFailed(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/p.zip", zipOf(t, map[string]string{"index.html": "<html></html>"}))
	g := f.newGame(t, "archives/p.zip", "", 1)
	f.storage.panicDownloads.Store(true)

	run := f.runAttempt(t)
	assert.Equal(t, types.JobStatusFailed, run.Status)
	assert.True(t, run.IsFinalAttempt())

	got := f.game(t, g.ID)
	assert.Equal(t, types.ProcessingFailed, got.ProcessingStatus)
	assert.Equal(t, types.GameStatusDisabled, got.Status)
	require.NotNil(t, got.ProcessingError)
	assert.Contains(t, *got.ProcessingError, "reader exploded")
	assert.Len(t, f.events.failed, 1)
}

func TestPublishCanceledMidUploadLeavesNoObjects(t *testing.T) {
	f := newFixture(t)
	f.put(t, "archives/d.zip", zipOf(t, map[string]string{
		"index.html":  "<html></html>",
		"js/game.js":  "run()",
		"css/app.css": "body{}",
	}))
	g := f.newGame(t, "archives/d.zip", "", 3)
	// the game is deleted while its archive is being uploaded
	f.storage.onGamesUpload = func() {
		job, err := f.rs.JobRuns.GetLatestByEntity(f.dbc(t), services.EntityTypeGame, g.ID, services.JobTypeGamePublish)
		if err != nil || job == nil {
			t.Errorf("load publish job: %v", err)
			return
		}
		if err := f.rs.JobRuns.UpdateFields(f.dbc(t), job.ID, map[string]interface{}{"status": types.JobStatusCanceled}); err != nil {
			t.Errorf("cancel job: %v", err)
		}
		if err := f.rs.Games.Delete(f.dbc(t), g.ID); err != nil {
			t.Errorf("delete game: %v", err)
		}
	}

	run := f.runAttempt(t)
	assert.Equal(t, types.JobStatusCanceled, run.Status)

	keys, err := f.mem.ListKeys(t.Context(), gcp.BucketCategoryGames, services.GamePrefix(g.ID))
	require.NoError(t, err)
	assert.Empty(t, keys)
	assert.Empty(t, f.events.published)
}
