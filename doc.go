// Package recsync is an offline-first synchronization client for versioned
// user records. It keeps an in-memory view of the user's records consistent
// with a remote authoritative store while the network is up, serves and
// accepts changes against a persisted local mirror while it is down, and
// reconciles the two by version when connectivity returns.
//
// A Session wires the pieces together: the remote gateway (request/response
// plus a websocket live-update channel), the local record store, the cache
// controller exposed to the presentation layer, and the connectivity
// monitor that triggers reconciliation. Conflict handling is deliberately
// simple: last writer wins, with a single-level manual merge queue for
// version conflicts. This is not a CRDT; live updates are applied
// last-message-wins and delivery is at-most-once per message.
package recsync
