package repository

import "errors"

// Sentinel kinds for snapshot store errors.
var (
	ErrNotFound      = errors.New("ranking not found")
	ErrEmptyID       = errors.New("snapshot has no ranking id")
	ErrUnknownDriver = errors.New("unknown store driver")
)
