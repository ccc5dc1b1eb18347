// Package types contains read shapes shared by the service and its transports.
package types

import (
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Entry is one occupied row of a ranking, 1-based rank for display.
type Entry struct {
	Rank       int          `json:"rank"`
	Position   int          `json:"position"`
	ItemID     string       `json:"item_id"`
	Title      string       `json:"title"`
	Source     model.Source `json:"source"`
	AssignedAt time.Time    `json:"assigned_at"`
}

// BacklogEntry is a source-collection item with its used flag.
type BacklogEntry struct {
	Item model.ItemSnapshot `json:"item"`
	Used bool               `json:"used"`
}

// EntriesFromSnapshot flattens a snapshot into display rows ordered by position.
// Holes are skipped; ranks still follow positions, so a hole at 1 yields ranks 1, 3, ...
func EntriesFromSnapshot(snap model.RankingSnapshot) []Entry {
	out := make([]Entry, 0, len(snap.Assignments))
	for _, a := range snap.Assignments {
		out = append(out, Entry{
			Rank:       a.Position + 1,
			Position:   a.Position,
			ItemID:     a.Item.ID,
			Title:      a.Item.Title,
			Source:     a.Source,
			AssignedAt: a.AssignedAt,
		})
	}
	return out
}
