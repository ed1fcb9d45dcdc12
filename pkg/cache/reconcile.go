package cache

import (
	"context"
	"errors"

	"github.com/offlinekit/recsync/pkg/models"
	"github.com/offlinekit/recsync/pkg/store"
)

// Resolution is the user's decision for one conflict pair.
type Resolution int

const (
	// AcceptRemote discards the local attempt; the authoritative record
	// replaces it in the mirror and the view.
	AcceptRemote Resolution = iota
	// KeepLocal re-submits the local payload over the authoritative version,
	// overwriting the remote state.
	KeepLocal
)

// ErrNoConflict is returned when resolving a pair that is not queued.
var ErrNoConflict = errors.New("cache: no such conflict")

// Reconcile diffs every locally-resident record owned by the current user
// against the remote store and rebuilds the conflict queue from the result.
// Records whose pair is already queued are carried over untouched, not
// re-checked: resubmitting a provisional record the server absorbed once
// would create a second server copy of it under a fresh identity. Running
// Reconcile again with no intervening writes therefore yields the same
// queue, and re-triggering on flapping connectivity is safe.
func (c *Controller) Reconcile(ctx context.Context) error {
	c.log.Info("reconciling local records", "user", c.userID)

	locals, err := store.List(ctx, c.local, c.userID, models.Filter{})
	if err != nil {
		return err
	}
	localByID := make(map[string]struct{}, len(locals))
	for _, record := range locals {
		localByID[record.ID] = struct{}{}
	}

	c.mu.Lock()
	conflicts := make([]models.Conflict, 0, len(locals))
	queued := make(map[string]struct{}, len(c.conflicts))
	for _, conflict := range c.conflicts {
		if _, ok := localByID[conflict.Previous.ID]; ok {
			conflicts = append(conflicts, conflict)
			queued[conflict.Previous.ID] = struct{}{}
		}
	}
	c.mu.Unlock()

	var unchecked []models.Record
	for _, record := range locals {
		if _, ok := queued[record.ID]; ok {
			continue
		}
		unchecked = append(unchecked, record)
	}
	if len(unchecked) > 0 {
		fresh, err := c.gw.CheckConflicts(ctx, c.token, unchecked)
		if err != nil {
			return err
		}
		conflicts = append(conflicts, fresh...)
	}

	// Provisional records the server absorbed now exist under their
	// server-assigned identity; the pair's resolution carries it. Either
	// resolution path retires the provisional key, so nothing to do here.
	c.mu.Lock()
	if !c.closed {
		c.conflicts = conflicts
	}
	c.mu.Unlock()
	c.notify()
	c.log.Info("reconciliation finished", "conflicts", len(conflicts))
	return nil
}

// ResolveConflict applies the user's decision to the pair keyed by
// previousID and removes it from the queue.
func (c *Controller) ResolveConflict(ctx context.Context, previousID string, resolution Resolution) error {
	conflict, ok := c.takeConflict(previousID)
	if !ok {
		return ErrNoConflict
	}

	// A provisional record was stored and listed under its generated key;
	// that identity is retired now that the server one is known.
	if conflict.Previous.ID != conflict.Latest.ID {
		if err := c.local.Remove(ctx, conflict.Previous.ID); err != nil {
			c.log.Error("failed to retire provisional record", "id", conflict.Previous.ID, "error", err)
		}
		c.removeItem(conflict.Previous.ID)
	}

	switch resolution {
	case AcceptRemote:
		if err := c.local.Put(ctx, conflict.Latest); err != nil {
			c.log.Error("failed to mirror accepted record", "id", conflict.Latest.ID, "error", err)
		}
		c.mergeItem(conflict.Latest)
		return nil

	case KeepLocal:
		// Resubmit the local payload against the authoritative identity and
		// version so the overwrite applies instead of re-conflicting.
		record := conflict.Previous
		record.ID = conflict.Latest.ID
		record.Version = conflict.Latest.Version
		record.Pending = false
		if _, err := c.Save(ctx, record); err != nil {
			return err
		}
		return nil

	default:
		return errors.New("cache: unknown resolution")
	}
}

func (c *Controller) takeConflict(previousID string) (models.Conflict, bool) {
	c.mu.Lock()
	defer func() {
		c.mu.Unlock()
		c.notify()
	}()
	if c.closed {
		return models.Conflict{}, false
	}
	for i := range c.conflicts {
		if c.conflicts[i].Previous.ID == previousID {
			conflict := c.conflicts[i]
			c.conflicts = append(c.conflicts[:i], c.conflicts[i+1:]...)
			return conflict, true
		}
	}
	return models.Conflict{}, false
}
