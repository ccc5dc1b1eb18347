package service

import (
	"time"

	"github.com/okian/podium/internal/domain/magnet"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// CreateRequest describes a new ranking. Zero Size means the service default;
// an empty ID gets a generated one.
type CreateRequest struct {
	ID    string               `json:"id,omitempty"`
	Size  int                  `json:"size,omitempty"`
	Items []model.ItemSnapshot `json:"items,omitempty"`
}

// RankingView is the read model of one ranking.
type RankingView struct {
	ID        string        `json:"id"`
	Size      int           `json:"size"`
	Occupied  int           `json:"occupied"`
	Entries   []types.Entry `json:"entries"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TransferRequest is one drag/drop. For assign, a nil To means the first
// empty position. Move and swap need both From and To, remove needs From.
// A nil Matched keeps the flag the moved assignment already carries.
type TransferRequest struct {
	Kind      string `json:"kind"`
	ItemID    string `json:"item_id,omitempty"`
	From      *int   `json:"from,omitempty"`
	To        *int   `json:"to,omitempty"`
	Overwrite bool   `json:"overwrite,omitempty"`
	Source    string `json:"source,omitempty"`
	Matched   *bool  `json:"matched,omitempty"`
}

// SuggestRequest carries the pointer state and slot layout of a drag.
type SuggestRequest struct {
	Pointer  magnet.Point   `json:"pointer"`
	Velocity *magnet.Vector `json:"velocity,omitempty"`
	Slots    []magnet.Slot  `json:"slots"`
	Columns  int            `json:"columns,omitempty"`
}

// RestoreResult reports a restore. Added lists snapshot items the backlog
// did not know and received from the snapshot.
type RestoreResult struct {
	ID       string   `json:"id"`
	Occupied int      `json:"occupied"`
	Added    []string `json:"added,omitempty"`
}
