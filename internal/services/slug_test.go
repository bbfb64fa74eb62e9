package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Space Invaders":        "space-invaders",
		"  Pac--Man!! ":         "pac-man",
		"Pokémon Café":          "pokemon-cafe",
		"a/b_c.d:e":             "a-b-c-d-e",
		"!!!":                   "game",
		"":                      "game",
		"Tetris 99 - Deluxe ":   "tetris-99-deluxe",
		"日本語":                   "game",
		"MiXeD CaSe 2048 Clone": "mixed-case-2048-clone",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), "input %q", in)
	}

	long := Slugify(strings.Repeat("ab ", 60))
	assert.LessOrEqual(t, len(long), maxSlugLen)
	assert.False(t, strings.HasSuffix(long, "-"))
}

func TestUniqueSlugNumbersCollisions(t *testing.T) {
	h := newHarness(t)

	a := h.createGame(t, "Snake", nil)
	b := h.createGame(t, "Snake", nil)
	c := h.createGame(t, "snake!", nil)
	assert.Equal(t, "snake", a.Slug)
	assert.Equal(t, "snake-2", b.Slug)
	assert.Equal(t, "snake-3", c.Slug)

	// a game keeps its numbered slug when renamed to the same base
	got, err := UniqueSlug(h.dbc(t), h.rs.Games, "SNAKE", b.ID)
	require.NoError(t, err)
	assert.Equal(t, "snake-2", got)

	got, err = UniqueSlug(h.dbc(t), h.rs.Games, "Snakes", b.ID)
	require.NoError(t, err)
	assert.Equal(t, "snakes", got)
}
