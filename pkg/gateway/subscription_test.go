package gateway_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinekit/recsync/internal/fakeserver"
	"github.com/offlinekit/recsync/pkg/gateway"
	"github.com/offlinekit/recsync/pkg/models"
)

func waitForSubscriber(t *testing.T, srv *fakeserver.Server) {
	t.Helper()
	require.Eventually(t, func() bool { return srv.Subscribers() == 1 },
		2*time.Second, 10*time.Millisecond, "live channel never registered")
}

func TestSubscribeDeliversEvents(t *testing.T) {
	client, srv := newClient(t)
	srv.Authorize("tok", "u1")

	sub, err := client.Subscribe(context.Background(), "tok")
	require.NoError(t, err)
	defer sub.Close()
	waitForSubscriber(t, srv)

	srv.Broadcast(models.Event{
		Type:   models.EventCreated,
		Record: models.Record{ID: "s9", Name: "soup", Version: 1},
	})

	select {
	case event := <-sub.Events():
		assert.Equal(t, models.EventCreated, event.Type)
		assert.Equal(t, "s9", event.Record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}
}

func TestMutationsAreBroadcast(t *testing.T) {
	ctx := context.Background()
	client, srv := newClient(t)

	sub, err := client.Subscribe(ctx, "tok")
	require.NoError(t, err)
	defer sub.Close()
	waitForSubscriber(t, srv)

	created, err := client.Create(ctx, "tok", models.Record{Name: "soup"})
	require.NoError(t, err)

	select {
	case event := <-sub.Events():
		assert.Equal(t, models.EventCreated, event.Type)
		assert.Equal(t, created.ID, event.Record.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("create was not announced on the live channel")
	}
}

func TestSubscribeWhileUnreachable(t *testing.T) {
	client, srv := newClient(t)
	srv.SetUnavailable(true)

	_, err := client.Subscribe(context.Background(), "tok")
	assert.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCloseEndsEventSequence(t *testing.T) {
	client, srv := newClient(t)

	sub, err := client.Subscribe(context.Background(), "tok")
	require.NoError(t, err)
	waitForSubscriber(t, srv)

	require.NoError(t, sub.Close())

	select {
	case _, open := <-sub.Events():
		assert.False(t, open, "events channel closes on teardown")
	case <-time.After(2 * time.Second):
		t.Fatal("events channel still open after Close")
	}
}

func TestSubscriptionRejectsBadToken(t *testing.T) {
	client, srv := newClient(t)
	srv.Authorize("tok", "u1")

	// The dial itself succeeds; the server drops the connection after the
	// authorization frame, so the subscription just never yields events and
	// keeps retrying in the background until closed.
	sub, err := client.Subscribe(context.Background(), "wrong")
	require.NoError(t, err)
	defer sub.Close()

	assert.Equal(t, 0, srv.Subscribers())
}
