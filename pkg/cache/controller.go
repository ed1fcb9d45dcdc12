package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/offlinekit/recsync/pkg/gateway"
	"github.com/offlinekit/recsync/pkg/logger"
	"github.com/offlinekit/recsync/pkg/models"
	"github.com/offlinekit/recsync/pkg/store"
)

// localIDPrefix marks identifiers generated for records created offline.
// They are drawn from a namespace server IDs never use and replaced during
// reconciliation.
const localIDPrefix = "local-"

type opClass int

const (
	opFetch opClass = iota
	opSave
	opDelete
)

// Controller owns the in-memory view of the current items and orchestrates
// fetch/save/delete against the gateway, falling back to the local mirror
// whenever the gateway is unreachable. Operations are safe for concurrent
// use; they are not serialized against each other, so the view reflects
// completion order.
type Controller struct {
	gw    Gateway
	local store.Store
	log   logger.Logger

	token  string
	userID string

	mu        sync.Mutex
	items     []models.Record
	conflicts []models.Conflict
	inflight  [3]int
	lastErr   [3]error

	// Pagination cursor for the session, advanced by FetchPage. Held per
	// instance so concurrent sessions never share listing state.
	offset, limit int
	filter        models.Filter

	changed chan struct{}
	closed  bool
}

type Option func(*Controller)

func WithLogger(l logger.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New builds a controller bound to one authenticated user. The view starts
// empty and is populated by fetch operations.
func New(gw Gateway, local store.Store, token, userID string, opts ...Option) *Controller {
	c := &Controller{
		gw:      gw,
		local:   local,
		log:     logger.Nop{},
		token:   token,
		userID:  userID,
		items:   []models.Record{},
		changed: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Snapshot returns a copy of the current view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	view := View{
		Items:     append([]models.Record(nil), c.items...),
		Conflicts: append([]models.Conflict(nil), c.conflicts...),
		Fetching:  c.inflight[opFetch] > 0,
		Saving:    c.inflight[opSave] > 0,
		Deleting:  c.inflight[opDelete] > 0,
		FetchErr:  c.lastErr[opFetch],
		SaveErr:   c.lastErr[opSave],
		DeleteErr: c.lastErr[opDelete],
	}
	return view
}

// Changes signals, coalescing, whenever the view changed. Consumers read a
// fresh Snapshot on each tick.
func (c *Controller) Changes() <-chan struct{} {
	return c.changed
}

// Close clears the view and stops change notifications. It does not cancel
// in-flight operations; their late effects are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.items = nil
	c.conflicts = nil
	close(c.changed)
}

// FetchPage fetches one page from the gateway and appends it to the view,
// advancing the session cursor. When the gateway is unreachable it serves
// the same filter from the local mirror scoped to the current owner and
// replaces the view with that result, leaving ErrUnavailable as the
// transient fetch notice.
func (c *Controller) FetchPage(ctx context.Context, f models.Filter) error {
	if err := validatePage(f); err != nil {
		c.fail(opFetch, err)
		return err
	}
	c.begin(opFetch)
	defer c.end(opFetch)

	records, err := c.gw.List(ctx, c.token, f)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return c.fetchLocal(ctx, f)
		}
		c.fail(opFetch, err)
		return err
	}

	c.mirror(ctx, records)
	c.mu.Lock()
	if !c.closed {
		c.items = append(c.items, records...)
		c.offset, c.limit, c.filter = f.Offset, f.Limit, f
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// ReloadPage refetches everything up to and including the addressed page as
// a single page and replaces the view with it. It is used after a filter
// change, so the visible window stays consistent instead of accumulating
// pages fetched under different filters.
func (c *Controller) ReloadPage(ctx context.Context, f models.Filter) error {
	if err := validatePage(f); err != nil {
		c.fail(opFetch, err)
		return err
	}
	c.begin(opFetch)
	defer c.end(opFetch)

	wide := f
	wide.Offset = 0
	wide.Limit = f.Offset + f.Limit

	records, err := c.gw.List(ctx, c.token, wide)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return c.fetchLocal(ctx, f)
		}
		c.fail(opFetch, err)
		return err
	}

	c.mirror(ctx, records)
	c.mu.Lock()
	if !c.closed {
		c.items = records
		c.offset, c.limit, c.filter = f.Offset, f.Limit, f
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// NextPage fetches the page after the one the cursor points at.
func (c *Controller) NextPage(ctx context.Context) error {
	c.mu.Lock()
	f := c.filter
	f.Offset = c.offset + c.limit
	f.Limit = c.limit
	c.mu.Unlock()
	return c.FetchPage(ctx, f)
}

func validatePage(f models.Filter) error {
	if f.Offset < 0 {
		return errors.New("cache: offset must not be negative")
	}
	if f.Limit <= 0 {
		return errors.New("cache: limit must be positive")
	}
	return nil
}

// fetchLocal replaces the view with the owner-scoped local mirror contents
// matching f. The unavailable signal stays visible as the fetch notice.
func (c *Controller) fetchLocal(ctx context.Context, f models.Filter) error {
	c.log.Warn("gateway unreachable, serving local mirror", "user", c.userID)
	records, err := store.List(ctx, c.local, c.userID, f)
	if err != nil {
		c.fail(opFetch, err)
		return err
	}
	c.mu.Lock()
	if !c.closed {
		c.items = records
		c.lastErr[opFetch] = gateway.ErrUnavailable
	}
	c.mu.Unlock()
	c.notify()
	return nil
}

// Save creates or updates a record.
//
// A record without an ID is created remotely and inserted at the front of
// the view. A record with an ID is submitted as a versioned update: when the
// server applies it the matching item is replaced; when the server rejects
// it as stale the view is left untouched and the rejected attempt is queued
// as a conflict paired with the authoritative record.
//
// When the gateway is unreachable the record is persisted to the local
// mirror — under a generated provisional ID if it has none — and merged into
// the view optimistically.
func (c *Controller) Save(ctx context.Context, record models.Record) (models.Record, error) {
	c.begin(opSave)
	defer c.end(opSave)

	if record.ID == "" {
		return c.create(ctx, record)
	}
	return c.update(ctx, record)
}

func (c *Controller) create(ctx context.Context, record models.Record) (models.Record, error) {
	created, err := c.gw.Create(ctx, c.token, record)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return c.saveLocal(ctx, record)
		}
		c.fail(opSave, err)
		return models.Record{}, err
	}
	if err := c.local.Put(ctx, created); err != nil {
		c.log.Error("failed to mirror created record", "id", created.ID, "error", err)
	}
	c.mergeItem(created)
	return created, nil
}

func (c *Controller) update(ctx context.Context, record models.Record) (models.Record, error) {
	echoed, applied, err := c.gw.Update(ctx, c.token, record)
	if err != nil {
		if errors.Is(err, gateway.ErrUnavailable) {
			return c.saveLocal(ctx, record)
		}
		c.fail(opSave, err)
		return models.Record{}, err
	}
	if !applied {
		// Stale version. The server copy stands; the attempt goes to the
		// conflict queue for explicit resolution, never an automatic retry.
		c.log.Info("update rejected as stale", "id", record.ID,
			"attempted", record.Version, "authoritative", echoed.Version)
		c.enqueueConflict(models.Conflict{Previous: record, Latest: echoed})
		return echoed, nil
	}
	if err := c.local.Put(ctx, echoed); err != nil {
		c.log.Error("failed to mirror updated record", "id", echoed.ID, "error", err)
	}
	c.mergeItem(echoed)
	return echoed, nil
}

// saveLocal is the write fallback: the record becomes a provisional,
// not-yet-synced resident of the local mirror and the view.
func (c *Controller) saveLocal(ctx context.Context, record models.Record) (models.Record, error) {
	if record.ID == "" {
		record.ID = localIDPrefix + uuid.NewString()
		record.Pending = true
	}
	record.OwnerID = c.userID
	if err := c.local.Put(ctx, record); err != nil {
		c.fail(opSave, err)
		return models.Record{}, err
	}
	c.log.Warn("gateway unreachable, record saved locally", "id", record.ID)
	c.mu.Lock()
	if !c.closed {
		c.lastErr[opSave] = gateway.ErrUnavailable
	}
	c.mu.Unlock()
	c.mergeItem(record)
	return record, nil
}

// Delete removes a record remotely and from the view. When the gateway is
// unreachable it removes the record from the local mirror and the view
// optimistically; a local delete is not replayed on resync.
func (c *Controller) Delete(ctx context.Context, record models.Record) error {
	c.begin(opDelete)
	defer c.end(opDelete)

	if err := c.gw.Delete(ctx, c.token, record.ID); err != nil {
		if !errors.Is(err, gateway.ErrUnavailable) {
			c.fail(opDelete, err)
			return err
		}
		c.log.Warn("gateway unreachable, deleting locally", "id", record.ID)
		c.mu.Lock()
		if !c.closed {
			c.lastErr[opDelete] = gateway.ErrUnavailable
		}
		c.mu.Unlock()
	}
	if err := c.local.Remove(ctx, record.ID); err != nil {
		c.log.Error("failed to remove mirrored record", "id", record.ID, "error", err)
	}
	c.removeItem(record.ID)
	return nil
}

// ApplyEvent merges one live-update event into the view: insert-or-replace
// for created and updated, removal for deleted. Events apply unconditionally
// with no version check — last message wins. A deleted event for an unknown
// ID is a no-op.
func (c *Controller) ApplyEvent(event models.Event) {
	switch event.Type {
	case models.EventCreated, models.EventUpdated:
		c.mergeItem(event.Record)
	case models.EventDeleted:
		c.removeItem(event.Record.ID)
	default:
		c.log.Debug("ignoring unknown live event", "type", event.Type)
	}
}

// Run consumes live-update events until the channel closes or ctx is
// canceled. Events arriving after cancellation are discarded.
func (c *Controller) Run(ctx context.Context, events <-chan models.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			c.ApplyEvent(event)
		}
	}
}

// mergeItem replaces the item with the same ID in place, or prepends the
// record when absent.
func (c *Controller) mergeItem(record models.Record) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	replaced := false
	for i := range c.items {
		if c.items[i].ID == record.ID {
			c.items[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		c.items = append([]models.Record{record}, c.items...)
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) removeItem(id string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	for i := range c.items {
		if c.items[i].ID == id {
			c.items = append(c.items[:i], c.items[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) enqueueConflict(conflict models.Conflict) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conflicts = append(c.conflicts, conflict)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) begin(op opClass) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.inflight[op]++
	c.lastErr[op] = nil
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) end(op opClass) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.inflight[op] > 0 {
		c.inflight[op]--
	}
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) fail(op opClass, err error) {
	c.mu.Lock()
	if !c.closed {
		c.lastErr[op] = err
	}
	c.mu.Unlock()
	c.notify()
}

// mirror writes fetched records through to the local store so they are
// available while offline.
func (c *Controller) mirror(ctx context.Context, records []models.Record) {
	for _, record := range records {
		if err := c.local.Put(ctx, record); err != nil {
			c.log.Error("failed to mirror record", "id", record.ID, "error", err)
		}
	}
}

func (c *Controller) notify() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.changed <- struct{}{}:
	default:
	}
}
