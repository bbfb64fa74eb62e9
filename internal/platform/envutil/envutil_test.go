package envutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDuration(t *testing.T) {
	t.Setenv("ENVUTIL_DUR", "90s")
	assert.Equal(t, 90*time.Second, Duration("ENVUTIL_DUR", time.Second))

	t.Setenv("ENVUTIL_DUR", "15")
	assert.Equal(t, 15*time.Second, Duration("ENVUTIL_DUR", time.Second))

	t.Setenv("ENVUTIL_DUR", "soon")
	assert.Equal(t, time.Second, Duration("ENVUTIL_DUR", time.Second))
}

func TestBoolAndCSV(t *testing.T) {
	t.Setenv("ENVUTIL_BOOL", "on")
	assert.True(t, Bool("ENVUTIL_BOOL", false))
	t.Setenv("ENVUTIL_BOOL", "maybe")
	assert.True(t, Bool("ENVUTIL_BOOL", true))

	t.Setenv("ENVUTIL_CSV", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, CSV("ENVUTIL_CSV"))
	assert.Nil(t, CSV("ENVUTIL_CSV_UNSET"))
}
