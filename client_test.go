package recsync_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinekit/recsync"
	"github.com/offlinekit/recsync/internal/fakeserver"
	"github.com/offlinekit/recsync/pkg/logger"
	"github.com/offlinekit/recsync/pkg/models"
	"github.com/offlinekit/recsync/pkg/store"
)

func openSession(t *testing.T) (*recsync.Session, *fakeserver.Server) {
	t.Helper()
	srv := fakeserver.New()
	t.Cleanup(srv.Close)
	srv.Authorize("tok", "u1")

	session, err := recsync.Open(context.Background(),
		recsync.Config{BaseURL: srv.URL()},
		recsync.Credentials{Token: "tok", UserID: "u1"},
		recsync.WithStore(store.NewMemory()),
		recsync.WithLogger(logger.Nop{}))
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	return session, srv
}

func TestSessionFetchAndLiveUpdates(t *testing.T) {
	ctx := context.Background()
	session, srv := openSession(t)
	srv.Seed(models.Record{ID: "s1", OwnerID: "u1", Name: "soup", Version: 1})

	ctrl := session.Controller()
	require.NoError(t, ctrl.FetchPage(ctx, models.Filter{Limit: 10}))
	require.Len(t, ctrl.Snapshot().Items, 1)

	// The session subscribed on Open; a remote change reaches the view.
	require.Eventually(t, func() bool { return srv.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)
	srv.Broadcast(models.Event{Type: models.EventCreated,
		Record: models.Record{ID: "s2", OwnerID: "u1", Name: "stew", Version: 1}})

	require.Eventually(t, func() bool {
		return len(ctrl.Snapshot().Items) == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSessionReconcilesOnRegainedConnectivity(t *testing.T) {
	ctx := context.Background()
	session, srv := openSession(t)
	ctrl := session.Controller()

	session.ReportConnectivity(true) // initial observation, no reconcile

	srv.SetUnavailable(true)
	saved, err := ctrl.Save(ctx, models.Record{Name: "offline dish"})
	require.NoError(t, err)
	session.ReportConnectivity(false)

	srv.SetUnavailable(false)
	session.ReportConnectivity(true)

	view := ctrl.Snapshot()
	require.Len(t, view.Conflicts, 1)
	assert.Equal(t, saved.ID, view.Conflicts[0].Previous.ID)
}

func TestSessionCloseTearsDown(t *testing.T) {
	session, srv := openSession(t)
	require.Eventually(t, func() bool { return srv.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond)

	require.NoError(t, session.Close())

	view := session.Controller().Snapshot()
	assert.Empty(t, view.Items)
	assert.Empty(t, view.Conflicts)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("RECSYNC_BASE_URL", "http://example.test:3000")
	t.Setenv("RECSYNC_LOG_LEVEL", "debug")

	cfg, err := recsync.FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "http://example.test:3000", cfg.BaseURL)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Empty(t, cfg.SQLitePath)
}
