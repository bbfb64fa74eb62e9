// Package blobstore serves the object storage contract from gocloud buckets:
// a directory tree (local mode) or process memory (memory mode).
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/memblob"
	"gocloud.dev/gcerrors"

	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

// DefaultPublicPrefix is the HTTP path local objects are served under when no public base URL is configured.
const DefaultPublicPrefix = "/files"

type Store struct {
	log           *logger.Logger
	buckets       map[gcp.BucketCategory]*blob.Bucket
	publicBaseURL string
}

// Open builds a store for local or memory mode. publicBaseURL may be empty.
func Open(log *logger.Logger, cfg gcp.ObjectStorageConfig, publicBaseURL string) (*Store, error) {
	buckets := map[gcp.BucketCategory]*blob.Bucket{}
	for _, category := range []gcp.BucketCategory{gcp.BucketCategoryUploads, gcp.BucketCategoryGames} {
		var (
			bk  *blob.Bucket
			err error
		)
		switch cfg.Mode {
		case gcp.ObjectStorageModeLocal:
			dir := filepath.Join(cfg.LocalDir, string(category))
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("ensure storage dir %s: %w", dir, err)
			}
			bk, err = fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true})
		case gcp.ObjectStorageModeMemory:
			bk = memblob.OpenBucket(nil)
		default:
			err = &gcp.ObjectStorageConfigError{Code: gcp.ObjectStorageConfigErrorInvalidMode, Mode: string(cfg.Mode)}
		}
		if err != nil {
			return nil, err
		}
		buckets[category] = bk
	}
	s := &Store{
		log:           log.With("service", "BlobStore"),
		buckets:       buckets,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
	}
	s.log.Info("Object storage initialized", "mode", cfg.Mode, "local_dir", cfg.LocalDir, "public_base_url", s.publicBaseURL)
	return s, nil
}

// NewMemory returns an in-memory store; used by tests and the memory mode.
func NewMemory(log *logger.Logger) *Store {
	s, _ := Open(log, gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeMemory}, "")
	return s
}

func (s *Store) bucket(category gcp.BucketCategory) (*blob.Bucket, error) {
	bk, ok := s.buckets[category]
	if !ok {
		return nil, fmt.Errorf("unknown bucket category: %s", category)
	}
	return bk, nil
}

func sanitizeKey(key string) string {
	key = filepath.ToSlash(key)
	key = strings.TrimLeft(key, "/")
	parts := strings.Split(key, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		out = append(out, p)
	}
	return strings.Join(out, "/")
}

func notFound(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

func (s *Store) UploadFile(ctx context.Context, category gcp.BucketCategory, key string, file io.Reader) error {
	bk, err := s.bucket(category)
	if err != nil {
		return err
	}
	opts := &blob.WriterOptions{ContentType: gcp.ContentTypeForKey(key)}
	if err := bk.Upload(ctx, sanitizeKey(key), file, opts); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (s *Store) DownloadFile(ctx context.Context, category gcp.BucketCategory, key string) (io.ReadCloser, error) {
	bk, err := s.bucket(category)
	if err != nil {
		return nil, err
	}
	r, err := bk.NewReader(ctx, sanitizeKey(key), nil)
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("open %s: %w", key, gcp.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", key, err)
	}
	return r, nil
}

func (s *Store) DeleteFile(ctx context.Context, category gcp.BucketCategory, key string) error {
	bk, err := s.bucket(category)
	if err != nil {
		return err
	}
	if err := bk.Delete(ctx, sanitizeKey(key)); err != nil && !notFound(err) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *Store) CopyObject(ctx context.Context, srcCategory gcp.BucketCategory, srcKey string, dstCategory gcp.BucketCategory, dstKey string) error {
	src, err := s.bucket(srcCategory)
	if err != nil {
		return err
	}
	dst, err := s.bucket(dstCategory)
	if err != nil {
		return err
	}
	if src == dst {
		if err := src.Copy(ctx, sanitizeKey(dstKey), sanitizeKey(srcKey), nil); err != nil {
			if notFound(err) {
				return fmt.Errorf("copy %s->%s: %w", srcKey, dstKey, gcp.ErrObjectNotFound)
			}
			return fmt.Errorf("copy %s->%s: %w", srcKey, dstKey, err)
		}
		return nil
	}
	r, err := s.DownloadFile(ctx, srcCategory, srcKey)
	if err != nil {
		return err
	}
	defer r.Close()
	return s.UploadFile(ctx, dstCategory, dstKey, r)
}

func (s *Store) MoveObject(ctx context.Context, srcCategory gcp.BucketCategory, srcKey string, dstCategory gcp.BucketCategory, dstKey string) error {
	if err := s.CopyObject(ctx, srcCategory, srcKey, dstCategory, dstKey); err != nil {
		return err
	}
	return s.DeleteFile(ctx, srcCategory, srcKey)
}

func (s *Store) GetObjectAttrs(ctx context.Context, category gcp.BucketCategory, key string) (*gcp.ObjectAttrs, error) {
	bk, err := s.bucket(category)
	if err != nil {
		return nil, err
	}
	attrs, err := bk.Attributes(ctx, sanitizeKey(key))
	if err != nil {
		if notFound(err) {
			return nil, fmt.Errorf("attrs %s: %w", key, gcp.ErrObjectNotFound)
		}
		return nil, err
	}
	return &gcp.ObjectAttrs{
		Size:        attrs.Size,
		ContentType: attrs.ContentType,
		Updated:     attrs.ModTime,
		ETag:        attrs.ETag,
	}, nil
}

func (s *Store) ListKeys(ctx context.Context, category gcp.BucketCategory, prefix string) ([]string, error) {
	bk, err := s.bucket(category)
	if err != nil {
		return nil, err
	}
	it := bk.List(&blob.ListOptions{Prefix: sanitizeKey(prefix)})
	out := []string{}
	for {
		obj, err := it.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		out = append(out, obj.Key)
	}
	return out, nil
}

func (s *Store) DeletePrefix(ctx context.Context, category gcp.BucketCategory, prefix string) error {
	keys, err := s.ListKeys(ctx, category, prefix)
	if err != nil {
		return err
	}
	var firstErr error
	for _, k := range keys {
		if err := s.DeleteFile(ctx, category, k); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Store) GetPublicURL(category gcp.BucketCategory, key string) string {
	key = sanitizeKey(key)
	if s.publicBaseURL != "" {
		return fmt.Sprintf("%s/%s/%s", s.publicBaseURL, category, key)
	}
	return fmt.Sprintf("%s/%s/%s", DefaultPublicPrefix, category, key)
}

func (s *Store) Close() error {
	var firstErr error
	for _, bk := range s.buckets {
		if err := bk.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ gcp.BucketService = (*Store)(nil)
