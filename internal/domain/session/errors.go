package session

import "errors"

var (
	// ErrNilSource is returned when a session is created without a backlog.
	ErrNilSource = errors.New("session requires a source collection")
)
