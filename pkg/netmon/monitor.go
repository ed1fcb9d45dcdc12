// Package netmon turns platform reachability signals into reconciliation
// triggers.
package netmon

import (
	"context"
	"sync"

	"github.com/offlinekit/recsync/pkg/logger"
)

// Status is one observation of the platform reachability signal.
type Status struct {
	Connected bool
}

// Monitor counts reachability observations and fires its callback on every
// transition into the connected state except the very first observation,
// which merely establishes the initial state. There is no debounce: flapping
// connectivity fires repeatedly, which is safe because reconciliation is
// idempotent.
type Monitor struct {
	mu       sync.Mutex
	count    int
	online   bool
	onOnline func()
	log      logger.Logger
}

type Option func(*Monitor)

func WithLogger(l logger.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

// New builds a monitor invoking onOnline per the gating rule above.
func New(onOnline func(), opts ...Option) *Monitor {
	m := &Monitor{
		onOnline: onOnline,
		log:      logger.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Observe consumes one reachability observation.
func (m *Monitor) Observe(status Status) {
	m.mu.Lock()
	m.count++
	fire := status.Connected && m.count > 1
	m.online = status.Connected
	count := m.count
	m.mu.Unlock()

	m.log.Debug("connectivity observation", "connected", status.Connected, "count", count)
	if fire && m.onOnline != nil {
		m.onOnline()
	}
}

// Online reports the last observed state.
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Run consumes observations from source until it closes or ctx is canceled.
// Observations arriving after cancellation are discarded.
func (m *Monitor) Run(ctx context.Context, source <-chan Status) {
	for {
		select {
		case <-ctx.Done():
			return
		case status, ok := <-source:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			m.Observe(status)
		}
	}
}
