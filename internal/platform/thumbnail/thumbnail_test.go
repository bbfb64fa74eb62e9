package thumbnail

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	info, err := Inspect(pngOf(t, 32, 18))
	require.NoError(t, err)
	assert.Equal(t, Info{Format: "png", Width: 32, Height: 18}, info)
	assert.Equal(t, ".png", ExtForFormat(info.Format))

	_, err = Inspect([]byte("nope"))
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestPlaceholder(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)

	a, err := r.Placeholder("Space Invaders", "g1")
	require.NoError(t, err)
	info, err := Inspect(a)
	require.NoError(t, err)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, r.Width, info.Width)
	assert.Equal(t, r.Height, info.Height)

	b, err := r.Placeholder("Space Invaders", "g1")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestDownscale(t *testing.T) {
	r, err := NewRenderer("")
	require.NoError(t, err)
	r.MaxWidth = 16

	_, ok, err := r.Downscale(pngOf(t, 8, 8))
	require.NoError(t, err)
	assert.False(t, ok)

	out, ok, err := r.Downscale(pngOf(t, 64, 32))
	require.NoError(t, err)
	require.True(t, ok)
	info, err := Inspect(out)
	require.NoError(t, err)
	assert.Equal(t, 16, info.Width)
	assert.Equal(t, 8, info.Height)
}

func TestInitials(t *testing.T) {
	assert.Equal(t, "SI", initials("space invaders deluxe"))
	assert.Equal(t, "?", initials("   "))
	assert.Equal(t, "É", initials("étoile"))
}
