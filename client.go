package recsync

import (
	"context"
	"io"
	"os"
	"sync"

	"github.com/offlinekit/recsync/pkg/cache"
	"github.com/offlinekit/recsync/pkg/gateway"
	"github.com/offlinekit/recsync/pkg/logger"
	"github.com/offlinekit/recsync/pkg/netmon"
	"github.com/offlinekit/recsync/pkg/store"
	"github.com/offlinekit/recsync/pkg/store/sqlite"
)

// Credentials are supplied by the authentication collaborator. The token is
// presented as a bearer credential on every gateway call and as the first
// message on the live-update channel.
type Credentials struct {
	Token  string
	UserID string
}

// Session binds the sync engine to one authenticated user: gateway, local
// mirror, cache controller, live subscription and connectivity monitor.
// Close tears everything down; the in-memory view does not survive it.
type Session struct {
	log     logger.Logger
	gw      *gateway.Client
	local   store.Store
	ctrl    *cache.Controller
	mon     *netmon.Monitor
	creds   Credentials
	closeDB io.Closer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu  sync.Mutex
	sub *gateway.Subscription
}

type SessionOption func(*Session)

// WithLogger replaces the logger built from Config.LogLevel.
func WithLogger(l logger.Logger) SessionOption {
	return func(s *Session) { s.log = l }
}

// WithStore replaces the local mirror chosen by Config.SQLitePath.
func WithStore(local store.Store) SessionOption {
	return func(s *Session) { s.local = local }
}

// Open wires a session for the given user. The live-update channel is
// opened best-effort: an unreachable gateway does not fail Open, the
// subscription is retried on the next offline-to-online transition.
func Open(ctx context.Context, cfg Config, creds Credentials, opts ...SessionOption) (*Session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &Session{
		creds:  creds,
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.log == nil {
		level, err := cfg.logLevel()
		if err != nil {
			cancel()
			return nil, err
		}
		s.log = logger.New(os.Stderr, level)
	}
	if s.local == nil {
		if cfg.SQLitePath == "" {
			s.local = store.NewMemory()
		} else {
			db, err := sqlite.New(cfg.SQLitePath)
			if err != nil {
				cancel()
				return nil, err
			}
			s.local = db
			s.closeDB = db
		}
	}

	s.gw = gateway.NewClient(cfg.BaseURL, gateway.WithLogger(s.log))
	s.ctrl = cache.New(s.gw, s.local, creds.Token, creds.UserID, cache.WithLogger(s.log))
	s.mon = netmon.New(s.onOnline, netmon.WithLogger(s.log))

	s.ensureLive()
	return s, nil
}

// Controller is the surface the presentation collaborator consumes: the
// view snapshot, the operations, and the conflict queue.
func (s *Session) Controller() *cache.Controller {
	return s.ctrl
}

// ReportConnectivity feeds one platform reachability observation to the
// connectivity monitor.
func (s *Session) ReportConnectivity(connected bool) {
	s.mon.Observe(netmon.Status{Connected: connected})
}

// WatchConnectivity consumes reachability observations from source until the
// session closes or the source does.
func (s *Session) WatchConnectivity(source <-chan netmon.Status) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mon.Run(s.ctx, source)
	}()
}

// onOnline runs on every gated offline-to-online transition: restore the
// live channel if it is down, then reconcile.
func (s *Session) onOnline() {
	s.ensureLive()
	if err := s.ctrl.Reconcile(s.ctx); err != nil {
		s.log.Warn("reconciliation failed", "error", err)
	}
}

// ensureLive opens the live-update subscription if it is not already
// running and pumps its events into the controller.
func (s *Session) ensureLive() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil || s.ctx.Err() != nil {
		return
	}
	sub, err := s.gw.Subscribe(s.ctx, s.creds.Token)
	if err != nil {
		s.log.Warn("live channel unavailable", "error", err)
		return
	}
	s.sub = sub
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.ctrl.Run(s.ctx, sub.Events())
	}()
}

// Close unsubscribes from the live channel, stops the monitor, clears the
// view and releases the local mirror. Late callbacks are discarded.
func (s *Session) Close() error {
	s.cancel()

	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}

	s.wg.Wait()
	s.ctrl.Close()
	if s.closeDB != nil {
		return s.closeDB.Close()
	}
	return nil
}
