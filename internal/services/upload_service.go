package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	domainagg "github.com/yungbote/playhub-backend/internal/domain/aggregates"
	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
	"github.com/yungbote/playhub-backend/internal/platform/thumbnail"
)

const (
	UploadKindArchive   = "archive"
	UploadKindThumbnail = "thumbnail"

	DefaultMaxArchiveBytes   int64 = 512 << 20
	DefaultMaxThumbnailBytes int64 = 10 << 20
)

type UploadRequest struct {
	Kind     string `json:"kind" validate:"required,oneof=archive thumbnail"`
	Filename string `json:"filename" validate:"required,max=255"`
	Size     int64  `json:"size" validate:"gte=0"`
}

type UploadResult struct {
	Key         string `json:"key"`
	Kind        string `json:"kind"`
	Size        int64  `json:"size"`
	ContentType string `json:"contentType,omitempty"`
	Width       int    `json:"width,omitempty"`
	Height      int    `json:"height,omitempty"`
}

// UploadService stores admin uploads in the temporary bucket. The returned
// key is what game creation and re-upload take as archiveKey/thumbnailKey.
type UploadService interface {
	Upload(ctx context.Context, req UploadRequest, body io.Reader) (*UploadResult, error)
}

type uploadService struct {
	log          *logger.Logger
	storage      gcp.BucketService
	maxArchive   int64
	maxThumbnail int64
	now          func() time.Time
}

func NewUploadService(baseLog *logger.Logger, storage gcp.BucketService, maxArchive, maxThumbnail int64) UploadService {
	if maxArchive <= 0 {
		maxArchive = DefaultMaxArchiveBytes
	}
	if maxThumbnail <= 0 {
		maxThumbnail = DefaultMaxThumbnailBytes
	}
	return &uploadService{
		log:          baseLog.With("service", "UploadService"),
		storage:      storage,
		maxArchive:   maxArchive,
		maxThumbnail: maxThumbnail,
		now:          time.Now,
	}
}

var thumbnailExts = map[string]bool{".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true}

func (s *uploadService) Upload(ctx context.Context, req UploadRequest, body io.Reader) (*UploadResult, error) {
	req.Kind = strings.ToLower(strings.TrimSpace(req.Kind))
	req.Filename = strings.TrimSpace(req.Filename)
	if err := validateRequest("upload", req); err != nil {
		return nil, err
	}
	ext := strings.ToLower(path.Ext(req.Filename))
	limit := s.maxArchive
	switch req.Kind {
	case UploadKindArchive:
		if ext != ".zip" {
			return nil, domainagg.Validation("upload", "archive must be a .zip file")
		}
	case UploadKindThumbnail:
		if !thumbnailExts[ext] {
			return nil, domainagg.Validation("upload", "thumbnail must be a png, jpeg, gif or webp image")
		}
		limit = s.maxThumbnail
	}
	if req.Size > limit {
		return nil, domainagg.Validation("upload", fmt.Sprintf("%s exceeds %d bytes", req.Kind, limit))
	}

	key := fmt.Sprintf("%ss/%s/%s%s", req.Kind, s.now().UTC().Format("2006/01/02"), uuid.NewString(), ext)
	res := &UploadResult{Key: key, Kind: req.Kind, ContentType: gcp.ContentTypeForKey(key)}

	if req.Kind == UploadKindThumbnail {
		// small enough to hold in memory, and the header must decode
		raw, err := io.ReadAll(io.LimitReader(body, limit+1))
		if err != nil {
			return nil, domainagg.Wrap(domainagg.CodeRetryable, "upload", err)
		}
		if int64(len(raw)) > limit {
			return nil, domainagg.Validation("upload", fmt.Sprintf("thumbnail exceeds %d bytes", limit))
		}
		info, err := thumbnail.Inspect(raw)
		if err != nil {
			return nil, domainagg.Validation("upload", "thumbnail is not a readable image")
		}
		res.Width, res.Height = info.Width, info.Height
		res.Size = int64(len(raw))
		if err := s.storage.UploadFile(ctx, gcp.BucketCategoryUploads, key, bytes.NewReader(raw)); err != nil {
			return nil, domainagg.Wrap(domainagg.CodeRetryable, "upload", err)
		}
		s.log.Info("thumbnail uploaded", "key", key, "bytes", res.Size, "width", info.Width, "height", info.Height)
		return res, nil
	}

	counter := &countingReader{r: io.LimitReader(body, limit+1)}
	if err := s.storage.UploadFile(ctx, gcp.BucketCategoryUploads, key, counter); err != nil {
		return nil, domainagg.Wrap(domainagg.CodeRetryable, "upload", err)
	}
	if counter.n > limit {
		_ = s.storage.DeleteFile(ctx, gcp.BucketCategoryUploads, key)
		return nil, domainagg.Validation("upload", fmt.Sprintf("archive exceeds %d bytes", limit))
	}
	res.Size = counter.n
	s.log.Info("archive uploaded", "key", key, "bytes", res.Size)
	return res, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
