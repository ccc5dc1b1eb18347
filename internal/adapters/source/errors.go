package source

import "errors"

// Sentinel kinds for backlog errors.
var (
	ErrEmptyItemID  = errors.New("item has no id")
	ErrItemNotFound = errors.New("item not in backlog")
	ErrItemInUse    = errors.New("item is ranked")
	ErrBacklogFull  = errors.New("backlog is full")
)
