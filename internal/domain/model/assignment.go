package model

import "time"

// Assignment binds an item to a ranking position.
type Assignment struct {
	Item       ItemSnapshot `json:"item"`
	Position   int          `json:"position"`
	AssignedAt time.Time    `json:"assigned_at"`
	Source     Source       `json:"source"`
	// Matched marks an item highlighted by the current backlog filter.
	Matched bool `json:"matched,omitempty"`
}

// ItemID returns the id of the assigned item.
func (a Assignment) ItemID() string {
	return a.Item.ID
}

// Equivalent reports whether a and b would render identically in a slot:
// same item id and same matched flag. Nil means an empty slot.
func Equivalent(a, b *Assignment) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Item.ID == b.Item.ID && a.Matched == b.Matched
}

// RankingSnapshot is the serializable form of a position table.
type RankingSnapshot struct {
	ID          string       `json:"id"`
	Size        int          `json:"size"`
	Assignments []Assignment `json:"assignments"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SyncEvent asks the persistence pipeline to store a snapshot.
type SyncEvent struct {
	SessionID  string
	Snapshot   RankingSnapshot
	Reason     string // e.g. "assign", "tier_import", "restore"
	EnqueuedAt time.Time
}
