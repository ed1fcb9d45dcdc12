// Package cache implements the record cache controller: the in-memory
// authoritative view of the user's records, kept consistent with the remote
// store when reachable and with the local mirror when not.
package cache

import (
	"context"

	"github.com/offlinekit/recsync/pkg/models"
)

// Gateway is the slice of the remote boundary the controller drives. It is
// satisfied by *gateway.Client.
type Gateway interface {
	List(ctx context.Context, token string, f models.Filter) ([]models.Record, error)
	Create(ctx context.Context, token string, record models.Record) (models.Record, error)
	Update(ctx context.Context, token string, record models.Record) (models.Record, bool, error)
	Delete(ctx context.Context, token, id string) error
	CheckConflicts(ctx context.Context, token string, records []models.Record) ([]models.Conflict, error)
}

// View is a snapshot of the controller state for the presentation
// collaborator. The operation flags report "at least one call of that class
// in flight", not a queue depth; the per-class errors hold the last failure
// and are cleared when the next attempt of that class starts.
//
// While Conflicts is non-empty the presentation layer is expected to show
// the conflict queue instead of Items, so a partially-reconciled listing is
// never displayed.
type View struct {
	Items     []models.Record
	Conflicts []models.Conflict

	Fetching bool
	Saving   bool
	Deleting bool

	FetchErr  error
	SaveErr   error
	DeleteErr error
}
