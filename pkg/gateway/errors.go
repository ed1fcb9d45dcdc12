package gateway

import "errors"

var (
	// ErrUnavailable means the gateway call could not reach the server at
	// all. Callers fall back to the local mirror on this error; it is never
	// a hard failure.
	ErrUnavailable = errors.New("gateway: unavailable")

	// ErrNotFound means the server was reachable and the addressed record
	// does not exist.
	ErrNotFound = errors.New("gateway: record not found")

	// ErrValidation means the server rejected the record contents.
	ErrValidation = errors.New("gateway: record rejected")

	// ErrUnauthorized means the bearer token was missing or not accepted.
	ErrUnauthorized = errors.New("gateway: unauthorized")
)
