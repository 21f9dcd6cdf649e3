// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
)

// Run exercises st, which must be empty and have its schema ensured.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()

	a, err := st.Insert(ctx, store.Record{Name: "api", Script: "node server.js", Instances: 1})
	require.NoError(t, err)
	b, err := st.Insert(ctx, store.Record{Name: "worker", Script: "python worker.py", Args: "--queue jobs", Cwd: "/srv", Instances: 2, AutoStart: true})
	require.NoError(t, err)
	assert.Greater(t, a.ID, int64(0))
	assert.Greater(t, b.ID, a.ID)
	assert.False(t, a.CreatedAt.IsZero())

	list, err := st.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, "worker", list[1].Name)
	assert.Equal(t, "--queue jobs", list[1].Args)
	assert.Equal(t, "/srv", list[1].Cwd)
	assert.Equal(t, 2, list[1].Instances)
	assert.True(t, list[1].AutoStart)

	b.Script = "python worker2.py"
	b.UpdatedAt = b.UpdatedAt.Add(1)
	require.NoError(t, st.Update(ctx, b))
	list, err = st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "python worker2.py", list[1].Script)

	// ids are never reused after a delete
	require.NoError(t, st.Delete(ctx, b.ID))
	c, err := st.Insert(ctx, store.Record{Name: "cron", Script: "sh tick.sh", Instances: 1})
	require.NoError(t, err)
	assert.Greater(t, c.ID, b.ID)

	assert.ErrorIs(t, st.Delete(ctx, b.ID), errs.ErrNotFound)
	assert.ErrorIs(t, st.Update(ctx, store.Record{ID: 9999, Name: "x", Script: "y"}), errs.ErrNotFound)

	list, err = st.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, []int64{a.ID, c.ID}, []int64{list[0].ID, list[1].ID})
}
