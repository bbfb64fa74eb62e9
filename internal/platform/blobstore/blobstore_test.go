package blobstore

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/playhub-backend/internal/platform/gcp"
	"github.com/yungbote/playhub-backend/internal/platform/logger"
)

func readAll(t *testing.T, s *Store, category gcp.BucketCategory, key string) string {
	t.Helper()
	r, err := s.DownloadFile(context.Background(), category, key)
	require.NoError(t, err)
	defer r.Close()
	b, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(b)
}

func TestStore_UploadMoveDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(logger.Nop())
	defer s.Close()

	require.NoError(t, s.UploadFile(ctx, gcp.BucketCategoryUploads, "uploads/archive/a.zip", strings.NewReader("zipdata")))
	require.NoError(t, s.MoveObject(ctx, gcp.BucketCategoryUploads, "uploads/archive/a.zip", gcp.BucketCategoryGames, "games/g1/a.zip"))

	assert.Equal(t, "zipdata", readAll(t, s, gcp.BucketCategoryGames, "games/g1/a.zip"))

	_, err := s.DownloadFile(ctx, gcp.BucketCategoryUploads, "uploads/archive/a.zip")
	require.Error(t, err)
	assert.True(t, errors.Is(err, gcp.ErrObjectNotFound))

	// deleting a missing key is not an error
	require.NoError(t, s.DeleteFile(ctx, gcp.BucketCategoryUploads, "uploads/archive/a.zip"))
}

func TestStore_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(logger.Nop())
	defer s.Close()

	for _, k := range []string{"games/g1/x/index.html", "games/g1/x/js/app.js", "games/g2/y/index.html"} {
		require.NoError(t, s.UploadFile(ctx, gcp.BucketCategoryGames, k, strings.NewReader(k)))
	}
	keys, err := s.ListKeys(ctx, gcp.BucketCategoryGames, "games/g1/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"games/g1/x/index.html", "games/g1/x/js/app.js"}, keys)

	require.NoError(t, s.DeletePrefix(ctx, gcp.BucketCategoryGames, "games/g1/"))
	keys, err = s.ListKeys(ctx, gcp.BucketCategoryGames, "games/")
	require.NoError(t, err)
	assert.Equal(t, []string{"games/g2/y/index.html"}, keys)
}

func TestStore_AttrsAndPublicURL(t *testing.T) {
	ctx := context.Background()
	s := NewMemory(logger.Nop())
	defer s.Close()

	require.NoError(t, s.UploadFile(ctx, gcp.BucketCategoryGames, "games/g1/x/index.html", strings.NewReader("<html></html>")))
	attrs, err := s.GetObjectAttrs(ctx, gcp.BucketCategoryGames, "games/g1/x/index.html")
	require.NoError(t, err)
	assert.EqualValues(t, 13, attrs.Size)
	assert.Contains(t, attrs.ContentType, "text/html")

	assert.Equal(t, "/files/games/games/g1/x/index.html", s.GetPublicURL(gcp.BucketCategoryGames, "/games/g1/x/index.html"))
}

func TestStore_LocalModeSanitizesKeys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := Open(logger.Nop(), gcp.ObjectStorageConfig{Mode: gcp.ObjectStorageModeLocal, LocalDir: dir}, "http://localhost:8080/files")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.UploadFile(ctx, gcp.BucketCategoryUploads, "../../etc/evil.txt", strings.NewReader("x")))
	assert.Equal(t, "x", readAll(t, s, gcp.BucketCategoryUploads, "etc/evil.txt"))
	assert.Equal(t, "http://localhost:8080/files/uploads/etc/evil.txt", s.GetPublicURL(gcp.BucketCategoryUploads, "etc/evil.txt"))
}
