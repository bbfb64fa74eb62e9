package services

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/yungbote/playhub-backend/internal/data/repos"
	"github.com/yungbote/playhub-backend/internal/platform/dbctx"
)

const maxSlugLen = 80

// Slugify lowercases title, folds accents and joins the remaining
// alphanumeric runs with single dashes.
func Slugify(title string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), title)
	if err != nil {
		folded = title
	}
	s := strings.ToLower(strings.TrimSpace(folded))
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= '0' && r <= '9':
			return r
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '/' || r == '.' || r == ':':
			return '-'
		default:
			return -1
		}
	}, s)
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if len(s) > maxSlugLen {
		s = strings.TrimRight(s[:maxSlugLen], "-")
	}
	if s == "" {
		s = "game"
	}
	return s
}

// UniqueSlug returns Slugify(title), or the first free "<slug>-N" (N >= 2).
// self is the game being renamed; its own slug does not count as taken.
func UniqueSlug(dbc dbctx.Context, games repos.GameRepo, title string, self uuid.UUID) (string, error) {
	base := Slugify(title)
	taken, err := games.SlugsWithPrefix(dbc, base)
	if err != nil {
		return "", err
	}
	if self != uuid.Nil {
		current, err := games.GetByID(dbc, self)
		if err != nil {
			return "", err
		}
		if current != nil && (current.Slug == base || hasNumericSuffix(current.Slug, base)) {
			return current.Slug, nil
		}
	}
	used := make(map[string]struct{}, len(taken))
	for _, s := range taken {
		used[s] = struct{}{}
	}
	if _, ok := used[base]; !ok {
		return base, nil
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s-%d", base, n)
		if _, ok := used[candidate]; !ok {
			return candidate, nil
		}
	}
}

func hasNumericSuffix(slug, base string) bool {
	rest, ok := strings.CutPrefix(slug, base+"-")
	if !ok || rest == "" {
		return false
	}
	_, err := strconv.Atoi(rest)
	return err == nil
}
