package game_publish

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/platform/archive"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/platform/thumbnail"
	"github.com/yungbote/playhub-backend/internal/services"
)

type Config struct {
	Limits            archive.Limits
	UploadConcurrency int
}

func ConfigFromEnv() Config {
	def := archive.DefaultLimits()
	return Config{
		Limits: archive.Limits{
			MaxEntries:           envutil.Int("ARCHIVE_MAX_ENTRIES", def.MaxEntries),
			MaxUncompressedBytes: int64(envutil.Int("ARCHIVE_MAX_UNCOMPRESSED_MB", int(def.MaxUncompressedBytes>>20))) << 20,
		},
		UploadConcurrency: envutil.Int("GAME_PUBLISH_UPLOAD_CONCURRENCY", 8),
	}
}

type Deps struct {
	DB          *gorm.DB
	Log         *logger.Logger
	Games       repos.GameRepo
	Files       repos.FileRepo
	Storage     gcp.BucketService
	Invalidator services.CacheInvalidator
	Notify      services.JobNotifier
	Events      services.GameEventPublisher
	Thumbs      *thumbnail.Renderer
}

type Pipeline struct {
	db          *gorm.DB
	log         *logger.Logger
	games       repos.GameRepo
	files       repos.FileRepo
	storage     gcp.BucketService
	invalidator services.CacheInvalidator
	notify      services.JobNotifier
	events      services.GameEventPublisher
	thumbs      *thumbnail.Renderer
	cfg         Config
}

func New(deps Deps, cfg Config) *Pipeline {
	if cfg.UploadConcurrency <= 0 {
		cfg.UploadConcurrency = 8
	}
	thumbs := deps.Thumbs
	if thumbs == nil {
		// the built-in face never fails to load
		thumbs, _ = thumbnail.NewRenderer("")
	}
	notify := deps.Notify
	if notify == nil {
		notify = services.NewJobNotifier(nil)
	}
	return &Pipeline{
		db:          deps.DB,
		log:         deps.Log.With("job", services.JobTypeGamePublish),
		games:       deps.Games,
		files:       deps.Files,
		storage:     deps.Storage,
		invalidator: deps.Invalidator,
		notify:      notify,
		events:      deps.Events,
		thumbs:      thumbs,
		cfg:         cfg,
	}
}

func (p *Pipeline) Type() string { return services.JobTypeGamePublish }

// PublishPrefix is the permanent home of one uploaded archive. It is stable
// across retries of the same upload and distinct for every re-upload.
func PublishPrefix(gameID uuid.UUID, archiveKey string) string {
	sum := sha256.Sum256([]byte(archiveKey))
	return services.GamePrefix(gameID) + hex.EncodeToString(sum[:])[:16] + "/"
}
