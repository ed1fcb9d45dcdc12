// Package models defines the data types shared by the local mirror, the
// remote gateway and the cache controller.
package models

import "strings"

// Record is the synchronized entity. The sync engine treats the payload
// fields as opaque: it copies them verbatim between the local mirror and the
// remote store. Version is the optimistic-concurrency token, incremented by
// the remote store on every accepted update.
type Record struct {
	// ID is empty for a record that has never been created remotely.
	// Assigning an ID is a one-time transition.
	ID      string `json:"_id,omitempty"`
	OwnerID string `json:"userId,omitempty"`
	Version int64  `json:"version,omitempty"`

	Name        string  `json:"name"`
	Description string  `json:"description"`
	Good        bool    `json:"isGood"`
	Calories    string  `json:"calories"`
	Photo       string  `json:"photo"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`

	// Pending marks a record created while the gateway was unreachable.
	// It only ever lives in the local mirror; the gateway strips it before
	// any request so the server never sees it.
	Pending bool `json:"pending,omitempty"`
}

// Provisional reports whether the record has never been confirmed created on
// the remote store.
func (r Record) Provisional() bool {
	return r.ID == "" || r.Pending
}

// Filter selects a page of records. Offset and Limit address the remote
// listing; Good and NamePrefix narrow it. A nil Good matches any flag value,
// NamePrefix is a case-sensitive prefix match on Name.
type Filter struct {
	Offset     int
	Limit      int
	Good       *bool
	NamePrefix string
}

// Match evaluates the non-positional part of the filter against a record.
// Offset and Limit are pagination concerns and are ignored here.
func (f Filter) Match(r Record) bool {
	if f.Good != nil && r.Good != *f.Good {
		return false
	}
	if f.NamePrefix != "" && !strings.HasPrefix(r.Name, f.NamePrefix) {
		return false
	}
	return true
}

// Conflict pairs a local, offline-authored record with the authoritative
// remote state it collided with. The pair is keyed by Previous.ID.
type Conflict struct {
	// Previous is the local attempt, authored while offline or against a
	// stale version.
	Previous Record `json:"previousRecord"`
	// Latest is the gateway's resolution: the current authoritative version,
	// or the successfully-created version if the record had never reached
	// the server.
	Latest Record `json:"newRecord"`
}
