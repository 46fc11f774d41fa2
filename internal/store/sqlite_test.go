package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/listsync/internal/todo"
)

func newTestStore(t *testing.T) *SQLite {
	t.Helper()
	st, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedList(t *testing.T, st *SQLite) (todo.User, todo.List) {
	t.Helper()
	ctx := context.Background()
	u, err := st.CreateUser(ctx, "alice", "hash")
	require.NoError(t, err)
	l, err := st.CreateList(ctx, u.ID, "groceries")
	require.NoError(t, err)
	return u, l
}

func TestMaxOrderKeyEmptyAndOrdered(t *testing.T) {
	st := newTestStore(t)
	u, l := seedList(t, st)
	ctx := context.Background()

	max, err := st.MaxOrderKey(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "", max)

	// "aA" < "aa" byte-wise; a case-insensitive collation would disagree.
	for i, pos := range []string{"aa", "aA", "a0"} {
		_, err := st.InsertItem(ctx, NewItem{ID: string(rune('x' + i)), ListID: l.ID, CreatedBy: u.ID, Position: pos})
		require.NoError(t, err)
	}
	max, err = st.MaxOrderKey(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, "aa", max)

	items, err := st.ListItems(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, []string{"a0", "aA", "aa"}, []string{items[0].Position, items[1].Position, items[2].Position})
}

func TestInsertItemDefaultsAndConflicts(t *testing.T) {
	st := newTestStore(t)
	u, l := seedList(t, st)
	ctx := context.Background()

	it, err := st.InsertItem(ctx, NewItem{ID: "i1", ListID: l.ID, CreatedBy: u.ID, Position: "a0"})
	require.NoError(t, err)
	assert.Equal(t, todo.DefaultDescription, it.Description)
	assert.Equal(t, todo.StatusPending, it.Status)

	_, err = st.InsertItem(ctx, NewItem{ID: "i2", ListID: l.ID, CreatedBy: u.ID, Position: "a0"})
	assert.ErrorIs(t, err, ErrConflict, "duplicate position")

	_, err = st.InsertItem(ctx, NewItem{ID: "i1", ListID: l.ID, CreatedBy: u.ID, Position: "a1"})
	assert.ErrorIs(t, err, ErrConflict, "duplicate id")

	_, err = st.InsertItem(ctx, NewItem{ID: "i3", ListID: "missing", CreatedBy: u.ID, Position: "a0"})
	assert.ErrorIs(t, err, ErrNotFound, "unknown list")
}

func TestCompareAndSetStatus(t *testing.T) {
	st := newTestStore(t)
	u, l := seedList(t, st)
	ctx := context.Background()
	_, err := st.InsertItem(ctx, NewItem{ID: "i1", ListID: l.ID, CreatedBy: u.ID, Position: "a0"})
	require.NoError(t, err)

	_, err = st.CompareAndSetStatus(ctx, "i1", l.ID, todo.StatusActive, todo.StatusCompleted)
	assert.ErrorIs(t, err, ErrNotFound, "stale expected status")

	_, err = st.CompareAndSetStatus(ctx, "i1", l.ID, todo.StatusPending, todo.StatusActive)
	require.NoError(t, err)

	got, err := st.GetItem(ctx, "i1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, todo.StatusActive, got.Status)
}

func TestUpdatesReportNotFound(t *testing.T) {
	st := newTestStore(t)
	u, l := seedList(t, st)
	ctx := context.Background()
	_, err := st.InsertItem(ctx, NewItem{ID: "i1", ListID: l.ID, CreatedBy: u.ID, Position: "a0"})
	require.NoError(t, err)

	_, err = st.UpdateDescription(ctx, "nope", l.ID, "x")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = st.UpdatePosition(ctx, "i1", "other-list", "a1")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = st.UpdateDescription(ctx, "i1", l.ID, "milk")
	require.NoError(t, err)
	_, err = st.UpdatePosition(ctx, "i1", l.ID, "Zz")
	require.NoError(t, err)
	got, err := st.GetItem(ctx, "i1", l.ID)
	require.NoError(t, err)
	assert.Equal(t, "milk", got.Description)
	assert.Equal(t, "Zz", got.Position)

	_, err = st.GetItem(ctx, "nope", l.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUsersAndLists(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	u, err := st.CreateUser(ctx, "bob", "h1")
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, "bob", "h2")
	assert.ErrorIs(t, err, ErrConflict)

	got, hash, err := st.UserByUsername(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "h1", hash)
	_, _, err = st.UserByUsername(ctx, "carol")
	assert.ErrorIs(t, err, ErrNotFound)

	l1, err := st.CreateList(ctx, u.ID, "one")
	require.NoError(t, err)
	_, err = st.CreateList(ctx, u.ID, "two")
	require.NoError(t, err)
	lists, err := st.ListsByOwner(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, lists, 2)

	gl, err := st.GetList(ctx, l1.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", gl.Name)
	_, err = st.GetList(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetAndListUsers(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	empty, err := st.ListUsers(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	a, err := st.CreateUser(ctx, "ann", "h1")
	require.NoError(t, err)
	b, err := st.CreateUser(ctx, "ben", "h2")
	require.NoError(t, err)

	got, err := st.GetUser(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "ben", got.Username)
	assert.False(t, got.CreatedAt.IsZero())
	_, err = st.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := st.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 2)
	ids := []string{users[0].ID, users[1].ID}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	st, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
	st, err = OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}
