package gateway_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinekit/recsync/internal/fakeserver"
	"github.com/offlinekit/recsync/pkg/gateway"
	"github.com/offlinekit/recsync/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func newClient(t *testing.T) (*gateway.Client, *fakeserver.Server) {
	t.Helper()
	srv := fakeserver.New()
	t.Cleanup(srv.Close)
	return gateway.NewClient(srv.URL()), srv
}

func TestListFiltersAndPaginates(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.Seed(
		models.Record{ID: "s1", Name: "pancakes", Good: true},
		models.Record{ID: "s2", Name: "pasta", Good: false},
		models.Record{ID: "s3", Name: "pav", Good: true},
	)

	all, err := client.List(ctx, "tok", models.Filter{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	good, err := client.List(ctx, "tok", models.Filter{Limit: 10, Good: boolPtr(true)})
	require.NoError(t, err)
	assert.Len(t, good, 2)

	prefixed, err := client.List(ctx, "tok", models.Filter{Limit: 10, NamePrefix: "pa"})
	require.NoError(t, err)
	assert.Len(t, prefixed, 2)

	page, err := client.List(ctx, "tok", models.Filter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "s2", page[0].ID)
}

func TestCreateAssignsIdentity(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.Authorize("tok", "u1")

	created, err := client.Create(ctx, "tok", models.Record{Name: "soup", Pending: true})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, int64(1), created.Version)
	assert.Equal(t, "u1", created.OwnerID, "owner comes from the bearer token")
	assert.False(t, created.Pending, "pending never reaches the server")
}

func TestUpdateAppliedAndStale(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.Seed(models.Record{ID: "s1", Name: "soup", Version: 1})

	// Version matches: applied, new version echoed.
	updated := models.Record{ID: "s1", Name: "stew", Version: 1}
	echoed, applied, err := client.Update(ctx, "tok", updated)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(2), echoed.Version)
	assert.Equal(t, "stew", echoed.Name)

	// Version stale: not applied, authoritative record echoed, server copy
	// untouched.
	echoed, applied, err = client.Update(ctx, "tok", models.Record{ID: "s1", Name: "salad", Version: 1})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, "stew", echoed.Name)
	assert.Equal(t, int64(2), echoed.Version)

	current, ok := srv.Record("s1")
	require.True(t, ok)
	assert.Equal(t, "stew", current.Name)
}

func TestUpdateMissingRecord(t *testing.T) {
	client, _ := newClient(t)
	_, _, err := client.Update(context.Background(), "tok", models.Record{ID: "ghost", Version: 1})
	assert.ErrorIs(t, err, gateway.ErrNotFound)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.Seed(models.Record{ID: "s1", Name: "soup"})

	require.NoError(t, client.Delete(ctx, "tok", "s1"))
	_, ok := srv.Record("s1")
	assert.False(t, ok)

	assert.ErrorIs(t, client.Delete(ctx, "tok", "s1"), gateway.ErrNotFound)
}

func TestCheckConflicts(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.Authorize("tok", "u1")
	srv.Seed(models.Record{ID: "s1", OwnerID: "u1", Name: "soup", Version: 2})

	locals := []models.Record{
		{ID: "s1", OwnerID: "u1", Name: "stale soup", Version: 1},
		{ID: "local-1", OwnerID: "u1", Name: "offline creation", Pending: true},
	}
	conflicts, err := client.CheckConflicts(ctx, "tok", locals)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)

	assert.Equal(t, "s1", conflicts[0].Previous.ID)
	assert.Equal(t, int64(2), conflicts[0].Latest.Version)

	assert.Equal(t, "local-1", conflicts[1].Previous.ID)
	assert.NotEqual(t, "local-1", conflicts[1].Latest.ID, "never-synced create is persisted under a server ID")
	assert.Equal(t, int64(1), conflicts[1].Latest.Version)
}

func TestUnavailableMapsToSentinel(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)
	srv.SetUnavailable(true)

	_, err := client.List(ctx, "tok", models.Filter{Limit: 5})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	_, err = client.Create(ctx, "tok", models.Record{Name: "soup"})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	_, _, err = client.Update(ctx, "tok", models.Record{ID: "s1", Version: 1})
	assert.ErrorIs(t, err, gateway.ErrUnavailable)

	assert.ErrorIs(t, client.Delete(ctx, "tok", "s1"), gateway.ErrUnavailable)

	_, err = client.CheckConflicts(ctx, "tok", nil)
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestUnknownTokenRejected(t *testing.T) {
	client, srv := newClient(t)
	srv.Authorize("tok", "u1")

	_, err := client.List(context.Background(), "wrong", models.Filter{Limit: 5})
	assert.ErrorIs(t, err, gateway.ErrUnauthorized)
}
