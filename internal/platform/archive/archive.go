// Package archive reads uploaded game bundles (zip) and locates the entry page.
package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// IndexFileName is matched case-insensitively anywhere in the tree.
const IndexFileName = "index.html"

var (
	ErrCorrupt        = errors.New("archive is corrupt or not a zip file")
	ErrEmpty          = errors.New("archive contains no files")
	ErrIndexNotFound  = errors.New("archive does not contain an index.html")
	ErrAmbiguousIndex = errors.New("archive contains more than one top-most index.html")
	ErrUnsafePath     = errors.New("archive entry escapes the extraction root")
	ErrTooLarge       = errors.New("archive exceeds the extraction limits")
)

type Limits struct {
	MaxEntries           int
	MaxUncompressedBytes int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxEntries:           10000,
		MaxUncompressedBytes: 1 << 30,
	}
}

// Entry is one regular file inside the archive. Path is slash-separated and relative.
type Entry struct {
	Path string
	Size int64
	file *zip.File
}

// Open streams the entry's contents. Reads past the declared size fail with ErrTooLarge.
func (e Entry) Open() (io.ReadCloser, error) {
	rc, err := e.file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrCorrupt, e.Path, err)
	}
	return &boundedReadCloser{rc: rc, remaining: e.Size}, nil
}

type Tree struct {
	Entries   []Entry
	IndexPath string
	TotalSize int64
}

// Extract validates buf as a zip archive and selects its index page: the
// shallowest index.html wins; two at the same shallowest depth is ambiguous.
func Extract(buf []byte, limits Limits) (*Tree, error) {
	if limits.MaxEntries <= 0 || limits.MaxUncompressedBytes <= 0 {
		limits = DefaultLimits()
	}
	zr, err := zip.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return nil, fmt.Errorf("%w: %v", ErrUnsafePath, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	tree := &Tree{}
	seen := map[string]struct{}{}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		clean, err := cleanEntryPath(f.Name)
		if err != nil {
			return nil, err
		}
		if skipEntry(clean) {
			continue
		}
		if _, dup := seen[clean]; dup {
			continue
		}
		seen[clean] = struct{}{}

		size := int64(f.UncompressedSize64)
		if size < 0 || tree.TotalSize+size > limits.MaxUncompressedBytes {
			return nil, fmt.Errorf("%w: more than %d uncompressed bytes", ErrTooLarge, limits.MaxUncompressedBytes)
		}
		tree.TotalSize += size
		tree.Entries = append(tree.Entries, Entry{Path: clean, Size: size, file: f})
		if len(tree.Entries) > limits.MaxEntries {
			return nil, fmt.Errorf("%w: more than %d entries", ErrTooLarge, limits.MaxEntries)
		}
	}
	if len(tree.Entries) == 0 {
		return nil, ErrEmpty
	}

	index, err := findIndex(tree.Entries)
	if err != nil {
		return nil, err
	}
	tree.IndexPath = index
	sort.Slice(tree.Entries, func(i, j int) bool { return tree.Entries[i].Path < tree.Entries[j].Path })
	return tree, nil
}

func cleanEntryPath(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	if strings.HasPrefix(name, "/") || strings.Contains(name, "\x00") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	clean := path.Clean(name)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	return clean, nil
}

// macOS resource forks and Finder metadata are never part of a game.
func skipEntry(p string) bool {
	if strings.HasPrefix(p, "__MACOSX/") {
		return true
	}
	return path.Base(p) == ".DS_Store"
}

func depth(p string) int {
	return strings.Count(p, "/")
}

func findIndex(entries []Entry) (string, error) {
	best := ""
	bestDepth := -1
	ties := 0
	for _, e := range entries {
		if !strings.EqualFold(path.Base(e.Path), IndexFileName) {
			continue
		}
		d := depth(e.Path)
		switch {
		case bestDepth < 0 || d < bestDepth:
			best, bestDepth, ties = e.Path, d, 1
		case d == bestDepth:
			ties++
		}
	}
	if bestDepth < 0 {
		return "", ErrIndexNotFound
	}
	if ties > 1 {
		return "", fmt.Errorf("%w at depth %d", ErrAmbiguousIndex, bestDepth)
	}
	return best, nil
}

type boundedReadCloser struct {
	rc        io.ReadCloser
	remaining int64
}

func (b *boundedReadCloser) Read(p []byte) (int, error) {
	if b.remaining <= 0 {
		// one more byte means the header lied about the size
		var one [1]byte
		n, err := b.rc.Read(one[:])
		if n > 0 {
			return 0, ErrTooLarge
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		return 0, io.EOF
	}
	if int64(len(p)) > b.remaining {
		p = p[:b.remaining]
	}
	n, err := b.rc.Read(p)
	b.remaining -= int64(n)
	if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
		return n, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return n, err
}

func (b *boundedReadCloser) Close() error {
	return b.rc.Close()
}

// IsTerminal reports whether err comes from archive content that no retry can fix.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrCorrupt) ||
		errors.Is(err, ErrEmpty) ||
		errors.Is(err, ErrIndexNotFound) ||
		errors.Is(err, ErrAmbiguousIndex) ||
		errors.Is(err, ErrUnsafePath) ||
		errors.Is(err, ErrTooLarge)
}
