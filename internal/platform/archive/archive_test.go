package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildZip(t *testing.T, files map[string]string) []byte {
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

func TestExtract_FindsNestedIndex(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"assets/index.html": "<html>game</html>",
		"assets/js/app.js":  "console.log(1)",
	})
	tree, err := Extract(buf, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "assets/index.html", tree.IndexPath)
	require.Len(t, tree.Entries, 2)
	assert.Equal(t, "assets/index.html", tree.Entries[0].Path)

	rc, err := tree.Entries[0].Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "<html>game</html>", string(body))
}

func TestExtract_PrefersShallowestIndex(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"Index.HTML":            "root",
		"docs/index.html":       "docs",
		"vendor/lib/index.html": "lib",
	})
	tree, err := Extract(buf, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "Index.HTML", tree.IndexPath)
}

func TestExtract_AmbiguousIndex(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"a/index.html": "a",
		"b/index.html": "b",
	})
	_, err := Extract(buf, DefaultLimits())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAmbiguousIndex))
	assert.True(t, IsTerminal(err))
}

func TestExtract_MissingIndex(t *testing.T) {
	buf := buildZip(t, map[string]string{"main.html": "x"})
	_, err := Extract(buf, DefaultLimits())
	assert.True(t, errors.Is(err, ErrIndexNotFound))
}

func TestExtract_IgnoresMacMetadata(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"game/index.html":          "ok",
		"__MACOSX/game/index.html": "fork",
		"game/.DS_Store":           "meta",
	})
	tree, err := Extract(buf, DefaultLimits())
	require.NoError(t, err)
	assert.Equal(t, "game/index.html", tree.IndexPath)
	assert.Len(t, tree.Entries, 1)
}

func TestExtract_Corrupt(t *testing.T) {
	_, err := Extract([]byte("definitely not a zip"), DefaultLimits())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorrupt))
	assert.True(t, IsTerminal(err))
}

func TestExtract_RejectsTraversal(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"index.html":       "ok",
		"../../etc/passwd": "root:x",
	})
	_, err := Extract(buf, DefaultLimits())
	assert.True(t, errors.Is(err, ErrUnsafePath))
}

func TestExtract_Limits(t *testing.T) {
	buf := buildZip(t, map[string]string{
		"index.html": "0123456789",
		"a.js":       "0123456789",
	})
	_, err := Extract(buf, Limits{MaxEntries: 1, MaxUncompressedBytes: 1 << 20})
	assert.True(t, errors.Is(err, ErrTooLarge))

	_, err = Extract(buf, Limits{MaxEntries: 10, MaxUncompressedBytes: 15})
	assert.True(t, errors.Is(err, ErrTooLarge))
}

func TestIsTerminal_OtherErrors(t *testing.T) {
	assert.False(t, IsTerminal(errors.New("network down")))
	assert.False(t, IsTerminal(nil))
}
