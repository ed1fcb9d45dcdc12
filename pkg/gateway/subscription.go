package gateway

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/offlinekit/recsync/pkg/models"
)

// authMessage is the first and only outbound frame on the live channel.
type authMessage struct {
	Type    string      `json:"type"`
	Payload authPayload `json:"payload"`
}

type authPayload struct {
	Token string `json:"token"`
}

// Subscription is a live-update channel delivering create/update/delete
// events as they happen elsewhere. The event sequence is lazy and unbounded,
// and restarts itself after a broken connection while the subscription is
// open. Events that arrive after Close are discarded, never delivered.
type Subscription struct {
	events chan models.Event
	cancel context.CancelFunc
	done   chan struct{}

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe opens the live-update channel, authenticating with token as the
// first message. The returned subscription reconnects on its own until
// Close is called or ctx is canceled.
func (c *Client) Subscribe(ctx context.Context, token string) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	conn, err := c.dial(ctx, token)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s := &Subscription{
		events: make(chan models.Event),
		cancel: cancel,
		done:   make(chan struct{}),
		conn:   conn,
	}
	go s.run(ctx, c, token)
	return s, nil
}

// Events is the inbound event sequence. It is closed when the subscription
// shuts down.
func (s *Subscription) Events() <-chan models.Event {
	return s.events
}

// Close tears the channel down and waits for the read loop to exit. It is
// safe to call more than once.
func (s *Subscription) Close() error {
	s.cancel()
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	<-s.done
	return nil
}

func (s *Subscription) run(ctx context.Context, c *Client, token string) {
	defer close(s.done)
	defer close(s.events)

	for {
		s.mu.Lock()
		conn := s.conn
		s.mu.Unlock()

		var event models.Event
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("live channel read failed, reconnecting", "error", err)
			if !s.redial(ctx, c, token) {
				return
			}
			continue
		}

		select {
		case s.events <- event:
		case <-ctx.Done():
			return
		}
	}
}

// redial retries the dial on the client's reconnect interval until it
// succeeds or the subscription is torn down.
func (s *Subscription) redial(ctx context.Context, c *Client, token string) bool {
	ticker := time.NewTicker(c.reconnectInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			conn, err := c.dial(ctx, token)
			if err != nil {
				c.log.Debug("live channel redial failed", "error", err)
				continue
			}
			s.mu.Lock()
			s.conn = conn
			s.mu.Unlock()
			c.log.Info("live channel reconnected")
			return true
		}
	}
}

func (c *Client) dial(ctx context.Context, token string) (*websocket.Conn, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	auth := authMessage{Type: "authorization", Payload: authPayload{Token: token}}
	if err := conn.WriteJSON(auth); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}
