package cache_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinekit/recsync/pkg/cache"
	"github.com/offlinekit/recsync/pkg/models"
	"github.com/offlinekit/recsync/pkg/store"
)

// Offline-authored create, reconciled after reconnect: the server persists
// it and the pair carries the created identity.
func TestReconcileAbsorbsOfflineCreate(t *testing.T) {
	ctx := context.Background()
	ctrl, srv, local := newController(t)

	srv.SetUnavailable(true)
	saved, err := ctrl.Save(ctx, models.Record{Name: "offline dish"})
	require.NoError(t, err)

	srv.SetUnavailable(false)
	require.NoError(t, ctrl.Reconcile(ctx))

	view := ctrl.Snapshot()
	require.Len(t, view.Conflicts, 1)
	pair := view.Conflicts[0]
	assert.Equal(t, saved.ID, pair.Previous.ID)
	assert.NotEqual(t, saved.ID, pair.Latest.ID)
	assert.Equal(t, int64(1), pair.Latest.Version)

	// Accepting the server's resolution retires the provisional copy.
	require.NoError(t, ctrl.ResolveConflict(ctx, saved.ID, cache.AcceptRemote))

	view = ctrl.Snapshot()
	assert.Empty(t, view.Conflicts)
	require.Len(t, view.Items, 1)
	assert.Equal(t, pair.Latest.ID, view.Items[0].ID)

	_, err = local.Get(ctx, saved.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "provisional key retired")
	mirrored, err := local.Get(ctx, pair.Latest.ID)
	require.NoError(t, err)
	assert.False(t, mirrored.Pending)
}

// Reconciliation idempotence: a second run with no intervening writes
// yields the same conflict set. Covers both a stale edit and an unresolved
// offline create; without the carry-over the second run would absorb the
// provisional record again and duplicate it server-side.
func TestReconcileIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ctrl, srv, _ := newController(t)
	srv.Seed(models.Record{ID: "s1", OwnerID: testUser, Name: "soup", Version: 1})
	require.NoError(t, ctrl.FetchPage(ctx, models.Filter{Limit: 10}))

	srv.Bump("s1") // the mirrored copy is now stale
	srv.SetUnavailable(true)
	provisional, err := ctrl.Save(ctx, models.Record{Name: "offline dish"})
	require.NoError(t, err)
	srv.SetUnavailable(false)

	require.NoError(t, ctrl.Reconcile(ctx))
	first := ctrl.Snapshot().Conflicts
	require.Len(t, first, 2)

	require.NoError(t, ctrl.Reconcile(ctx))
	second := ctrl.Snapshot().Conflicts
	assert.Equal(t, first, second, "unresolved pairs survive the rerun unchanged")

	// Exactly one server copy of the absorbed record exists.
	require.NoError(t, ctrl.ReloadPage(ctx, models.Filter{Limit: 10}))
	assert.Len(t, ctrl.Snapshot().Items, 2)

	// Once resolved, a further run yields the residue: nothing.
	require.NoError(t, ctrl.ResolveConflict(ctx, "s1", cache.AcceptRemote))
	require.NoError(t, ctrl.ResolveConflict(ctx, provisional.ID, cache.AcceptRemote))
	require.NoError(t, ctrl.Reconcile(ctx))
	assert.Empty(t, ctrl.Snapshot().Conflicts)
}

func TestReconcileWithCleanMirrorIsEmpty(t *testing.T) {
	ctx := context.Background()
	ctrl, srv, _ := newController(t)
	srv.Seed(models.Record{ID: "s1", OwnerID: testUser, Name: "soup", Version: 1})
	require.NoError(t, ctrl.FetchPage(ctx, models.Filter{Limit: 10}))

	require.NoError(t, ctrl.Reconcile(ctx))
	assert.Empty(t, ctrl.Snapshot().Conflicts)
}

func TestKeepLocalOverwritesRemote(t *testing.T) {
	ctx := context.Background()
	ctrl, srv, _ := newController(t)
	srv.Seed(models.Record{ID: "s1", OwnerID: testUser, Name: "server copy", Version: 1})
	require.NoError(t, ctrl.FetchPage(ctx, models.Filter{Limit: 10}))

	srv.Bump("s1")
	_, err := ctrl.Save(ctx, models.Record{ID: "s1", OwnerID: testUser, Name: "my edit", Version: 1})
	require.NoError(t, err)
	require.Len(t, ctrl.Snapshot().Conflicts, 1)

	require.NoError(t, ctrl.ResolveConflict(ctx, "s1", cache.KeepLocal))

	view := ctrl.Snapshot()
	assert.Empty(t, view.Conflicts)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "my edit", view.Items[0].Name)

	current, ok := srv.Record("s1")
	require.True(t, ok)
	assert.Equal(t, "my edit", current.Name)
	assert.Equal(t, int64(3), current.Version, "overwrite applied over the authoritative version")
}

func TestResolveUnknownConflict(t *testing.T) {
	ctrl, _, _ := newController(t)
	err := ctrl.ResolveConflict(context.Background(), "ghost", cache.AcceptRemote)
	assert.ErrorIs(t, err, cache.ErrNoConflict)
}
