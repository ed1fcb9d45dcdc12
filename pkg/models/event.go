package models

// EventType is the kind of change announced on the live-update channel.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// Event is one inbound message on the live-update channel, announcing a
// change made elsewhere. Events carry no delivery guarantee beyond the
// channel's own; consumers apply them last-message-wins.
type Event struct {
	Type   EventType `json:"type"`
	Record Record    `json:"payload"`
}
