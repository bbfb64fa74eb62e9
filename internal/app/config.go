package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/playhub-backend/internal/cache"
	"github.com/yungbote/playhub-backend/internal/data/db"
	"github.com/yungbote/playhub-backend/internal/jobs/pipeline/game_publish"
	"github.com/yungbote/playhub-backend/internal/jobs/pipeline/like_count_refresh"
	"github.com/yungbote/playhub-backend/internal/jobs/scheduler"
	"github.com/yungbote/playhub-backend/internal/jobs/worker"
	"github.com/yungbote/playhub-backend/internal/platform/envutil"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/platform/mq"
	"github.com/yungbote/playhub-backend/internal/platform/redisx"
	"github.com/yungbote/playhub-backend/internal/temporalx"
	"github.com/yungbote/playhub-backend/internal/temporalx/temporalworker"
)

const (
	RunModeAPI    = "api"
	RunModeWorker = "worker"
	RunModeAll    = "all"
)

type Config struct {
	Port        string
	RunMode     string
	ServiceName string

	JWTSecretKey        string
	DefaultCategoryName string
	CORSOrigins         []string
	MetricsAddr         string

	ObjectStorageMode         string
	StorageEmulatorHost       string
	LocalStorageDir           string
	StorageModeCompatFallback bool
	FilesPublicBaseURL        string
	MaxArchiveBytes           int64
	MaxThumbnailBytes         int64

	RealtimeChannel string
	LikeSetTTL      time.Duration

	DB             db.Config
	Redis          redisx.Config
	Cache          cache.Config
	Worker         worker.Config
	Scheduler      scheduler.Config
	Publish        game_publish.Config
	LikeRefresh    like_count_refresh.Config
	Events         mq.Config
	Temporal       temporalx.Config
	TemporalWorker temporalworker.Options
}

func (c Config) ServesAPI() bool    { return c.RunMode == RunModeAPI || c.RunMode == RunModeAll }
func (c Config) RunsWorkers() bool  { return c.RunMode == RunModeWorker || c.RunMode == RunModeAll }
func (c Config) UsesTemporal() bool { return c.Temporal.Enabled() }

// LoadConfig reads .env (if any), then the CONFIG_FILE overlay, then the
// environment. Real environment variables always win over both files.
func LoadConfig(log *logger.Logger) (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded .env")
	}
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		n, err := applyConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		log.Info("Applied config file", "path", path, "keys", n)
	}

	storageCompat := false
	storageMode := strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", ""))
	if storageMode == "" {
		if envutil.String("STORAGE_EMULATOR_HOST", "") != "" {
			storageMode, storageCompat = "gcs_emulator", true
		} else {
			storageMode = "gcs"
		}
	}

	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		RunMode:     strings.ToLower(envutil.String("RUN_MODE", RunModeAll)),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "playhub-api"),

		JWTSecretKey:        envutil.String("JWT_SECRET_KEY", ""),
		DefaultCategoryName: envutil.String("DEFAULT_CATEGORY_NAME", "Uncategorized"),
		CORSOrigins:         envutil.CSV("CORS_ALLOWED_ORIGINS"),
		MetricsAddr:         envutil.String("METRICS_ADDR", ""),

		ObjectStorageMode:         storageMode,
		StorageEmulatorHost:       envutil.String("STORAGE_EMULATOR_HOST", ""),
		LocalStorageDir:           envutil.String("LOCAL_STORAGE_DIR", "./data/objects"),
		StorageModeCompatFallback: storageCompat,
		FilesPublicBaseURL:        envutil.String("OBJECT_STORAGE_PUBLIC_BASE_URL", ""),
		MaxArchiveBytes:           int64(envutil.Int("UPLOAD_MAX_ARCHIVE_MB", 200)) << 20,
		MaxThumbnailBytes:         int64(envutil.Int("UPLOAD_MAX_THUMBNAIL_MB", 5)) << 20,

		RealtimeChannel: envutil.String("REDIS_CHANNEL", "sse"),
		LikeSetTTL:      envutil.Duration("LIKE_SET_TTL", 7*24*time.Hour),

		DB:             db.ConfigFromEnv(),
		Redis:          redisx.ConfigFromEnv(),
		Cache:          cache.ConfigFromEnv(),
		Worker:         worker.ConfigFromEnv(),
		Scheduler:      scheduler.ConfigFromEnv(),
		Publish:        game_publish.ConfigFromEnv(),
		LikeRefresh:    like_count_refresh.ConfigFromEnv(),
		Events:         mq.ConfigFromEnv(),
		Temporal:       temporalx.LoadConfig(),
		TemporalWorker: temporalworker.OptionsFromEnv(),
	}

	switch cfg.RunMode {
	case RunModeAPI, RunModeWorker, RunModeAll:
	default:
		return Config{}, fmt.Errorf("invalid RUN_MODE %q (want api|worker|all)", cfg.RunMode)
	}
	if cfg.ServesAPI() && cfg.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY not set; authenticated routes will reject every token")
	}
	return cfg, nil
}

// applyConfigFile reads a YAML file of blocks and exports every entry as
// BLOCK_KEY unless that variable is already set:
//
//	cache:
//	  local_size: 2000
//	worker:
//	  concurrency: 8
func applyConfigFile(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read config file: %w", err)
	}
	var blocks map[string]map[string]any
	if err := yaml.Unmarshal(raw, &blocks); err != nil {
		return 0, fmt.Errorf("parse config file %s: %w", path, err)
	}
	n := 0
	for block, entries := range blocks {
		for key, val := range entries {
			name := strings.ToUpper(strings.TrimSpace(block) + "_" + strings.TrimSpace(key))
			if _, set := os.LookupEnv(name); set {
				continue
			}
			if err := os.Setenv(name, fmt.Sprint(val)); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, nil
}
