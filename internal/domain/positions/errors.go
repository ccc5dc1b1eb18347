package positions

import "errors"

// Sentinel kinds for table errors.
var (
	ErrInvalidSize        = errors.New("ranking size must be positive")
	ErrPositionOutOfRange = errors.New("position out of range")
	ErrDuplicateItem      = errors.New("item would occupy two positions")
	ErrDuplicatePosition  = errors.New("position assigned twice")
	ErrEmptyItemID        = errors.New("assignment has no item id")
	ErrSizeMismatch       = errors.New("snapshot size does not match table")
	ErrConflict           = errors.New("position no longer holds the expected item")
)
