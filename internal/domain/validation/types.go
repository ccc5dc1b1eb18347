package validation

import (
	"fmt"
	"strings"

	"github.com/okian/podium/internal/domain/model"
)

// AutoPosition asks an assign to take the first empty position.
const AutoPosition = -1

// Kind names a transfer operation type.
type Kind string

const (
	KindAssign Kind = "assign"
	KindMove   Kind = "move"
	KindSwap   Kind = "swap"
	KindRemove Kind = "remove"
)

// ParseKind converts boundary input into a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindAssign, KindMove, KindSwap, KindRemove:
		return k, nil
	default:
		return "", fmt.Errorf("unknown transfer kind %q", s)
	}
}

// Code classifies a failed transfer.
type Code string

const (
	CodeNone                  Code = ""
	CodeTargetPositionInvalid Code = "TARGET_POSITION_INVALID"
	CodeSourceNotFound        Code = "SOURCE_NOT_FOUND"
	CodeSourceAlreadyUsed     Code = "SOURCE_ALREADY_USED"
	CodeUnknownError          Code = "UNKNOWN_ERROR"
)

// Request describes a transfer to validate.
//
// Assign uses ItemID and To. Move uses From and To. Swap exchanges From and To.
// Remove uses From. For positional kinds a non-empty ItemID must match the
// occupant of From.
type Request struct {
	Kind           Kind
	ItemID         string
	From           int
	To             int
	AllowOverwrite bool
	Owner          string
}

// Result is the outcome of CanTransfer. On success Item and Target are
// resolved so execution needs no second lookup.
type Result struct {
	Valid     bool
	Code      Code
	Message   string
	Transient bool
	Debug     map[string]any

	Item model.ItemSnapshot
	// Target is the resolved destination (the second position for swaps).
	Target int
	// Displaced is the occupant of Target that the transfer overwrites or swaps, if any.
	Displaced model.ItemSnapshot
}

// Err returns nil for a valid result and an *Error otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Message, Transient: r.Transient}
}

// Reject builds a failed result.
func Reject(code Code, message string, debug map[string]any) Result {
	return Result{Code: code, Message: message, Debug: debug}
}

// Blocked builds the transient rejection used when another transfer holds the item.
func Blocked(itemID, holder string) Result {
	return Result{
		Code:      CodeSourceAlreadyUsed,
		Message:   fmt.Sprintf("item %s is being moved by another transfer", itemID),
		Transient: true,
		Debug:     map[string]any{"itemID": itemID, "holder": holder},
	}
}

// TableView is the read side of the position table.
type TableView interface {
	Size() int
	Get(position int) (model.Assignment, bool)
	PositionOf(itemID string) (int, bool)
	FirstEmpty() (int, bool)
}

// SourceView is the read side of the source collection.
type SourceView interface {
	GetItemByID(id string) (model.ItemSnapshot, bool)
	IsItemUsed(id string) bool
}

// LockView is the read side of the lock registry.
type LockView interface {
	Holder(itemID string) (string, bool)
}
