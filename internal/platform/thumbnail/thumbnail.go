// Package thumbnail inspects uploaded cover images, scales oversized ones down
// and renders a placeholder cover for games uploaded without one.
package thumbnail

import (
	"bytes"
	"errors"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"os"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	_ "golang.org/x/image/webp"
)

var ErrUnsupportedImage = errors.New("unsupported or corrupt image")

type Info struct {
	Format string
	Width  int
	Height int
}

// Inspect reads only the image header.
func Inspect(raw []byte) (Info, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Info{}, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	return Info{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// ExtForFormat maps an image.DecodeConfig format name to a file extension.
func ExtForFormat(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "webp":
		return "." + format
	default:
		return ".img"
	}
}

// Renderer holds the palette and font used for placeholders.
type Renderer struct {
	Width    int
	Height   int
	MaxWidth int
	colors   []color.NRGBA
	face     font.Face
}

var defaultPalette = []color.NRGBA{
	{R: 0x26, G: 0x46, B: 0x53, A: 0xFF},
	{R: 0x2A, G: 0x9D, B: 0x8F, A: 0xFF},
	{R: 0xE9, G: 0xC4, B: 0x6A, A: 0xFF},
	{R: 0xF4, G: 0xA2, B: 0x61, A: 0xFF},
	{R: 0xE7, G: 0x6F, B: 0x51, A: 0xFF},
	{R: 0x6D, G: 0x59, B: 0x7A, A: 0xFF},
}

// NewRenderer loads an optional TTF font; with an empty path gg's built-in bitmap face is used.
func NewRenderer(fontPath string) (*Renderer, error) {
	r := &Renderer{Width: 640, Height: 360, MaxWidth: 1280, colors: defaultPalette}
	if strings.TrimSpace(fontPath) == "" {
		return r, nil
	}
	face, err := loadFontFace(fontPath, 96)
	if err != nil {
		return nil, fmt.Errorf("could not load thumbnail font: %w", err)
	}
	r.face = face
	return r, nil
}

func (r *Renderer) pickColor(seed string) color.NRGBA {
	h := fnv.New32a()
	_, _ = h.Write([]byte(seed))
	return r.colors[int(h.Sum32())%len(r.colors)]
}

// Placeholder renders a PNG cover with the title's initials. The color is stable per seed.
func (r *Renderer) Placeholder(title string, seed string) ([]byte, error) {
	dc := gg.NewContext(r.Width, r.Height)
	dc.SetColor(r.pickColor(seed))
	dc.DrawRectangle(0, 0, float64(r.Width), float64(r.Height))
	dc.Fill()

	if r.face != nil {
		dc.SetFontFace(r.face)
	}
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials(title), float64(r.Width)/2, float64(r.Height)/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// Downscale returns a PNG no wider than MaxWidth, or ok=false when raw is already small enough.
func (r *Renderer) Downscale(raw []byte) (out []byte, ok bool, err error) {
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	b := img.Bounds()
	if r.MaxWidth <= 0 || b.Dx() <= r.MaxWidth {
		return nil, false, nil
	}
	h := b.Dy() * r.MaxWidth / b.Dx()
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, r.MaxWidth, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Over, nil)

	var buf bytes.Buffer
	dc := gg.NewContextForRGBA(dst)
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, false, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), true, nil
}

func initials(title string) string {
	words := strings.Fields(title)
	out := ""
	for _, w := range words {
		rs := []rune(w)
		if len(rs) == 0 {
			continue
		}
		out += strings.ToUpper(string(rs[0]))
		if len([]rune(out)) == 2 {
			break
		}
	}
	if out == "" {
		return "?"
	}
	return out
}

func loadFontFace(fontPath string, size float64) (font.Face, error) {
	fontBytes, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsedFont, err := truetype.Parse(fontBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	face := truetype.NewFace(parsedFont, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	})
	return face, nil
}
