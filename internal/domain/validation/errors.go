package validation

import (
	"errors"
	"fmt"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrTargetPositionInvalid = errors.New("target position invalid")
	ErrSourceNotFound        = errors.New("source not found")
	ErrSourceAlreadyUsed     = errors.New("source already used")
	ErrUnknown               = errors.New("unknown error")
	// ErrConcurrentTransfer matches only the transient lock-contention rejection.
	ErrConcurrentTransfer = errors.New("item locked by another transfer")
)

// Error is the error form of a failed Result.
type Error struct {
	Code      Code
	Message   string
	Transient bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is reports whether target is the sentinel for e's code.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTargetPositionInvalid:
		return e.Code == CodeTargetPositionInvalid
	case ErrSourceNotFound:
		return e.Code == CodeSourceNotFound
	case ErrSourceAlreadyUsed:
		return e.Code == CodeSourceAlreadyUsed
	case ErrUnknown:
		return e.Code == CodeUnknownError
	case ErrConcurrentTransfer:
		return e.Transient
	}
	return false
}
