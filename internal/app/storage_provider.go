package app

import (
	"errors"
	"fmt"
	"strings"

	"github.com/yungbote/playhub-backend/internal/observability"
	"github.com/yungbote/playhub-backend/internal/platform/blobstore"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

var (
	newBucketServiceWithConfig = gcp.NewBucketServiceWithConfig
	openBlobStore              = func(log *logger.Logger, cfg gcp.ObjectStorageConfig, publicBaseURL string) (gcp.BucketService, error) {
		return blobstore.Open(log, cfg, publicBaseURL)
	}
)

type StorageProviderBootstrapErrorCode string

const (
	StorageProviderBootstrapErrorInvalidMode         StorageProviderBootstrapErrorCode = "invalid_mode"
	StorageProviderBootstrapErrorMissingEmulatorHost StorageProviderBootstrapErrorCode = "missing_emulator_host"
	StorageProviderBootstrapErrorInvalidEmulatorHost StorageProviderBootstrapErrorCode = "invalid_emulator_host"
	StorageProviderBootstrapErrorMissingLocalDir     StorageProviderBootstrapErrorCode = "missing_local_dir"
	StorageProviderBootstrapErrorConnectFailed       StorageProviderBootstrapErrorCode = "connect_failed"
)

type StorageProviderBootstrapError struct {
	Code         StorageProviderBootstrapErrorCode
	Mode         string
	EmulatorHost string
	Cause        error
}

func (e *StorageProviderBootstrapError) Error() string {
	if e == nil {
		return ""
	}
	msg := fmt.Sprintf("object storage bootstrap failed (code=%s mode=%s", e.Code, e.Mode)
	if e.EmulatorHost != "" {
		msg += " emulator_host=" + e.EmulatorHost
	}
	msg += ")"
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *StorageProviderBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService builds the object store for cfg.ObjectStorageMode:
// the GCS client for gcs/gcs_emulator, a gocloud bucket for local/memory.
func resolveBucketService(log *logger.Logger, cfg Config) (gcp.BucketService, error) {
	storageCfg := gcp.ObjectStorageConfig{
		Mode:                  gcp.ObjectStorageMode(strings.ToLower(strings.TrimSpace(cfg.ObjectStorageMode))),
		EmulatorHost:          strings.TrimSpace(cfg.StorageEmulatorHost),
		LocalDir:              strings.TrimSpace(cfg.LocalStorageDir),
		CompatibilityFallback: cfg.StorageModeCompatFallback,
	}
	metrics := observability.Current()
	fields := []interface{}{
		"mode", storageCfg.Mode,
		"mode_source", storageCfg.ModeSource(),
		"emulator_host", storageCfg.EmulatorHost,
		"local_dir", storageCfg.LocalDir,
	}

	fail := func(err *StorageProviderBootstrapError) (gcp.BucketService, error) {
		metrics.StorageBootstrap(string(storageCfg.Mode), "error", string(err.Code))
		log.Error("Object storage provider bootstrap failed", append(fields, "error_code", err.Code, "error", err)...)
		return nil, err
	}

	if err := gcp.ValidateObjectStorageConfig(storageCfg); err != nil {
		return fail(classifyStorageProviderBootstrapError(storageCfg, err))
	}

	log.Info("Selecting object storage provider", fields...)

	var (
		bucket gcp.BucketService
		err    error
	)
	if gcp.IsGCSObjectStorageMode(storageCfg.Mode) {
		bucket, err = newBucketServiceWithConfig(log, storageCfg)
	} else {
		bucket, err = openBlobStore(log, storageCfg, cfg.FilesPublicBaseURL)
	}
	if err != nil {
		return fail(classifyStorageProviderBootstrapError(storageCfg, err))
	}
	metrics.StorageBootstrap(string(storageCfg.Mode), "success", "none")
	return bucket, nil
}

func classifyStorageProviderBootstrapError(storageCfg gcp.ObjectStorageConfig, err error) *StorageProviderBootstrapError {
	out := &StorageProviderBootstrapError{
		Code:         StorageProviderBootstrapErrorConnectFailed,
		Mode:         string(storageCfg.Mode),
		EmulatorHost: storageCfg.EmulatorHost,
		Cause:        err,
	}
	var cfgErr *gcp.ObjectStorageConfigError
	if errors.As(err, &cfgErr) {
		switch cfgErr.Code {
		case gcp.ObjectStorageConfigErrorInvalidMode:
			out.Code = StorageProviderBootstrapErrorInvalidMode
		case gcp.ObjectStorageConfigErrorMissingEmulatorHost:
			out.Code = StorageProviderBootstrapErrorMissingEmulatorHost
		case gcp.ObjectStorageConfigErrorInvalidEmulatorHost:
			out.Code = StorageProviderBootstrapErrorInvalidEmulatorHost
		case gcp.ObjectStorageConfigErrorMissingLocalDir:
			out.Code = StorageProviderBootstrapErrorMissingLocalDir
		}
	}
	return out
}
