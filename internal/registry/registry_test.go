package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/pmdeck/internal/errs"
	"github.com/loykin/pmdeck/internal/store"
	"github.com/loykin/pmdeck/internal/store/memory"
)

func newRegistry(t *testing.T, unique bool) *Registry {
	t.Helper()
	r, err := Open(context.Background(), memory.New(), Options{UniqueNames: unique})
	require.NoError(t, err)
	return r
}

func ptr[T any](v T) *T { return &v }

func TestAddNormalizesAndValidates(t *testing.T) {
	r := newRegistry(t, true)
	ctx := context.Background()

	c, err := r.Add(ctx, Config{Name: "  api ", Script: " node app.js ", Instances: 0})
	require.NoError(t, err)
	assert.Equal(t, "api", c.Name)
	assert.Equal(t, "node app.js", c.Script)
	assert.Equal(t, 1, c.Instances)
	assert.Equal(t, int64(1), c.ID)

	_, err = r.Add(ctx, Config{Name: "   ", Script: "x"})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = r.Add(ctx, Config{Name: "x", Script: ""})
	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Equal(t, 1, r.Len())
}

func TestDuplicateNames(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, true)
	_, err := r.Add(ctx, Config{Name: "api", Script: "a"})
	require.NoError(t, err)
	_, err = r.Add(ctx, Config{Name: "api", Script: "b"})
	assert.ErrorIs(t, err, errs.ErrDuplicateName)
	assert.ErrorIs(t, err, errs.ErrConflict)

	loose := newRegistry(t, false)
	_, err = loose.Add(ctx, Config{Name: "api", Script: "a"})
	require.NoError(t, err)
	_, err = loose.Add(ctx, Config{Name: "api", Script: "b"})
	assert.NoError(t, err)
}

func TestUpdateKeepsIDAndOrder(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, true)
	a, _ := r.Add(ctx, Config{Name: "a", Script: "x"})
	b, _ := r.Add(ctx, Config{Name: "b", Script: "y"})

	got, err := r.Update(ctx, a.ID, Patch{Args: ptr(" --port 80 "), AutoStart: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, "--port 80", got.Args)
	assert.True(t, got.AutoStart)

	_, err = r.Update(ctx, a.ID, Patch{Name: ptr("b")})
	assert.ErrorIs(t, err, errs.ErrConflict)
	_, err = r.Update(ctx, a.ID, Patch{Instances: ptr(0)})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = r.Update(ctx, a.ID, Patch{Script: ptr(" ")})
	assert.ErrorIs(t, err, errs.ErrValidation)
	_, err = r.Update(ctx, 42, Patch{})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	want := []Config{got, b}
	if diff := cmp.Diff(want, r.List(), cmpopts.IgnoreFields(Config{}, "UpdatedAt", "CreatedAt")); diff != "" {
		t.Fatalf("list mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteNeverReusesIDs(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(t, true)
	a, _ := r.Add(ctx, Config{Name: "a", Script: "x"})
	require.NoError(t, r.Delete(ctx, a.ID))
	_, err := r.Get(a.ID)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.ErrorIs(t, r.Delete(ctx, a.ID), errs.ErrNotFound)

	b, err := r.Add(ctx, Config{Name: "a", Script: "x"})
	require.NoError(t, err)
	assert.Greater(t, b.ID, a.ID)
}

func TestOpenLoadsExisting(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	_, _ = st.Insert(ctx, store.Record{Name: "one", Script: "a", Instances: 1})
	_, _ = st.Insert(ctx, store.Record{Name: "two", Script: "b", Instances: 3})
	r, err := Open(ctx, st, Options{})
	require.NoError(t, err)
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "two", list[1].Name)
	assert.Equal(t, 3, list[1].Instances)
}

type failingStore struct{ *memory.DB }

func (failingStore) Insert(context.Context, store.Record) (store.Record, error) {
	return store.Record{}, errors.New("disk full")
}

func TestAddStoreFailureLeavesCacheUntouched(t *testing.T) {
	r, err := Open(context.Background(), failingStore{memory.New()}, Options{})
	require.NoError(t, err)
	_, err = r.Add(context.Background(), Config{Name: "a", Script: "x"})
	assert.ErrorIs(t, err, errs.ErrExecution)
	assert.Equal(t, 0, r.Len())
}

func TestCommandChanged(t *testing.T) {
	base := Config{Name: "a", Script: "x", Instances: 1}
	assert.False(t, CommandChanged(base, Patch{Name: ptr("b"), AutoStart: ptr(true)}.Apply(base)))
	assert.True(t, CommandChanged(base, Patch{Args: ptr("-v")}.Apply(base)))
	assert.True(t, CommandChanged(base, Patch{Instances: ptr(2)}.Apply(base)))
	assert.True(t, Patch{}.Empty())
}
