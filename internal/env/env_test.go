package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeLayering(t *testing.T) {
	e := New(false)
	e.SetGlobal([]string{"NODE_ENV=production", "HOME_DIR=/srv", "bad", "=nokey"})
	got := e.Merge("NODE_ENV=staging", "DATA=${HOME_DIR}/data", "PORT=$P")
	assert.Equal(t, []string{
		"DATA=/srv/data",
		"HOME_DIR=/srv",
		"NODE_ENV=staging",
		"PORT=",
	}, got)
}

func TestUnset(t *testing.T) {
	e := New(false)
	e.SetGlobal([]string{"A=1", "B=2"})
	e.Unset("A")
	assert.Equal(t, []string{"B=2"}, e.Merge())
}

func TestInheritOS(t *testing.T) {
	t.Setenv("PMDECK_ENV_TEST", "from-os")
	e := New(true)
	assert.Contains(t, e.Merge(), "PMDECK_ENV_TEST=from-os")
	assert.NotContains(t, New(false).Merge(), "PMDECK_ENV_TEST=from-os")
}

func TestParse(t *testing.T) {
	k, v, ok := Parse("A=b=c")
	assert.True(t, ok)
	assert.Equal(t, "A", k)
	assert.Equal(t, "b=c", v)
	_, _, ok = Parse("novalue")
	assert.False(t, ok)
}
