package transfer

import "errors"

var (
	// ErrInvalidState is returned when a phase is called out of order.
	ErrInvalidState = errors.New("operation is not in a state that allows this call")
	// ErrRollbackConflict means the table diverged from what the operation wrote.
	ErrRollbackConflict = errors.New("table no longer matches the operation result")
	// ErrRollbackBlocked means another transfer holds one of the items to restore.
	ErrRollbackBlocked = errors.New("rollback blocked by another transfer")
	// ErrNotRollbackable is returned for results that did not succeed.
	ErrNotRollbackable = errors.New("only successful results can be rolled back")
)
