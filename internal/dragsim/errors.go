package dragsim

import "errors"

var (
	ErrInvalidConfig = errors.New("invalid simulation config")
	ErrUnhealthy     = errors.New("service is not healthy")
	ErrUnexpected    = errors.New("unexpected response")
	// ErrInconsistent is returned when the final ranking breaks an invariant.
	ErrInconsistent = errors.New("ranking is inconsistent")
)
