package views

import "errors"

var (
	ErrInvalidTierConfig = errors.New("invalid tier config")
	ErrUnknownTier       = errors.New("unknown tier")
	ErrTierOverflow      = errors.New("tier holds more items than positions")
	ErrInvalidBracket    = errors.New("invalid bracket config")
	ErrInvalidPlace      = errors.New("invalid bracket place")
	ErrDuplicateItem     = errors.New("item listed twice")
	// ErrImportFailed wraps the transfer failure that aborted an import.
	ErrImportFailed = errors.New("import failed and was rolled back")
)
