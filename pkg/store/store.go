// Package store defines the persisted local mirror of records, the fallback
// source of truth while the gateway is unreachable.
package store

import (
	"context"
	"errors"

	"github.com/offlinekit/recsync/pkg/models"
)

// ErrNotFound is returned by Get for a key with no stored record.
var ErrNotFound = errors.New("store: record not found")

// Store is a key/value mirror of every record the user has seen, keyed by
// record ID. Implementations guarantee per-key atomicity only; concurrent
// writers of different keys may interleave freely and there is no
// cross-key transaction.
type Store interface {
	Get(ctx context.Context, key string) (models.Record, error)
	Put(ctx context.Context, record models.Record) error
	Remove(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
}

// List scans the whole store and returns the records owned by ownerID that
// match f. Iteration is storage order; callers must not rely on any
// particular ordering. Keys removed concurrently with the scan are skipped.
func List(ctx context.Context, s Store, ownerID string, f models.Filter) ([]models.Record, error) {
	keys, err := s.Keys(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]models.Record, 0, len(keys))
	for _, key := range keys {
		record, err := s.Get(ctx, key)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if record.OwnerID != ownerID {
			continue
		}
		if !f.Match(record) {
			continue
		}
		records = append(records, record)
	}
	return records, nil
}
