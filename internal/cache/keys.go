package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// Keys builds cache keys of the form cache:<version>:<kind>:<parts...>.
// Bumping the version orphans every key written under the old one.
type Keys struct {
	Version string
}

func NewKeys(version string) Keys {
	version = strings.TrimSpace(version)
	if version == "" {
		version = DefaultVersion
	}
	return Keys{Version: version}
}

func (k Keys) prefix() string { return "cache:" + k.Version + ":" }

func (k Keys) Game(id uuid.UUID) string {
	return k.prefix() + "game:" + id.String()
}

// GamesList is one page of the global games list for a status filter ("" = public view).
func (k Keys) GamesList(status string, page, pageSize int) string {
	return fmt.Sprintf("%sgames:list:%s:%d:%d", k.prefix(), normalizePart(status), page, pageSize)
}

func (k Keys) GamesListPattern() string {
	return k.prefix() + "games:list:*"
}

func (k Keys) CategoryGames(categoryID uuid.UUID, status string, page, pageSize int) string {
	return fmt.Sprintf("%scategory:%s:games:%s:%d:%d", k.prefix(), categoryID, normalizePart(status), page, pageSize)
}

func (k Keys) CategoryGamesPattern(categoryID uuid.UUID) string {
	return k.prefix() + "category:" + categoryID.String() + ":games:*"
}

// AllCategoryGamesPattern matches the game lists of every category.
func (k Keys) AllCategoryGamesPattern() string {
	return k.prefix() + "category:*"
}

func (k Keys) Search(query string, page, pageSize int) string {
	q := url.QueryEscape(strings.ToLower(strings.TrimSpace(query)))
	return fmt.Sprintf("%ssearch:%s:%d:%d", k.prefix(), q, page, pageSize)
}

func (k Keys) SearchPattern() string {
	return k.prefix() + "search:*"
}

func (k Keys) Categories() string {
	return k.prefix() + "categories:all"
}

// LikeUsers is the redis set of user ids with an explicit like on the game.
func (k Keys) LikeUsers(gameID uuid.UUID) string {
	return k.prefix() + "likes:" + gameID.String() + ":users"
}

func normalizePart(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "all"
	}
	return s
}
