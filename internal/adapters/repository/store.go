// Package repository persists ranking snapshots.
package repository

import (
	"context"
	"time"

	"github.com/okian/podium/internal/domain/model"
)

// Summary is the listing row of a stored ranking.
type Summary struct {
	ID        string    `json:"id"`
	Size      int       `json:"size"`
	Occupied  int       `json:"occupied"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store provides durable access to ranking snapshots.
type Store interface {
	// Save stores snap unless a snapshot of the same ranking with a later
	// UpdatedAt is already stored, or the ranking was deleted at or after
	// snap.UpdatedAt. Returns true if snap was written.
	Save(ctx context.Context, snap model.RankingSnapshot) (bool, error)

	// Load returns the stored snapshot. Returns ErrNotFound if the ranking is unknown.
	Load(ctx context.Context, id string) (model.RankingSnapshot, error)

	// List returns summaries ordered by UpdatedAt, most recent first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a snapshot and records the deletion time, so saves of
	// snapshots taken before the delete are refused. The deletion is recorded
	// even when it returns ErrNotFound for an unknown ranking.
	Delete(ctx context.Context, id string) error

	Count(ctx context.Context) int
	Close() error
}

func summarize(snap model.RankingSnapshot) Summary {
	return Summary{ID: snap.ID, Size: snap.Size, Occupied: len(snap.Assignments), UpdatedAt: snap.UpdatedAt}
}

func cloneSnapshot(snap model.RankingSnapshot) model.RankingSnapshot {
	out := snap
	out.Assignments = make([]model.Assignment, len(snap.Assignments))
	for i, a := range snap.Assignments {
		a.Item = a.Item.Clone()
		out.Assignments[i] = a
	}
	return out
}
