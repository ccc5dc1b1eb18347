package views

import (
	"context"
	"fmt"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
)

// BracketConfig sizes a bracket export. Zero entrants means the whole ranking.
type BracketConfig struct {
	Entrants int `json:"entrants"`
}

// Seed is one bracket entrant. Seed n comes from position n-1.
type Seed struct {
	Seed int                `json:"seed"`
	Item model.ItemSnapshot `json:"item"`
}

// Bracket is the seeding handed to the bracket collaborator. Empty positions
// produce no seed, so seed numbers may skip.
type Bracket struct {
	Entrants int    `json:"entrants"`
	Seeds    []Seed `json:"seeds"`
}

// Placement is one final standing: place p lands on position p-1.
type Placement struct {
	Place  int    `json:"place"`
	ItemID string `json:"item_id"`
}

// Standings is the outcome of a finished bracket.
type Standings struct {
	Places []Placement `json:"places"`
}

// ToBracket seeds the top cfg.Entrants positions.
func ToBracket(table Reader, cfg BracketConfig) (Bracket, error) {
	size := table.Size()
	n := cfg.Entrants
	if n == 0 {
		n = size
	}
	if n < 2 || n > size {
		return Bracket{}, fmt.Errorf("%w: %d entrants for %d positions", ErrInvalidBracket, n, size)
	}
	b := Bracket{Entrants: n, Seeds: make([]Seed, 0, n)}
	for p := 0; p < n; p++ {
		if a, ok := table.Get(p); ok {
			b.Seeds = append(b.Seeds, Seed{Seed: p + 1, Item: a.Item})
		}
	}
	return b, nil
}

// FromBracket writes standings onto the ranking. Only the listed places are
// touched; an item listed there is pulled from its current position.
func FromBracket(ctx context.Context, s *session.Session, st Standings) ([]transfer.Result, error) {
	size := s.Table.Size()
	scope := make([]int, 0, len(st.Places))
	target := make(map[int]string, len(st.Places))
	for _, pl := range st.Places {
		if pl.Place < 1 || pl.Place > size {
			return nil, fmt.Errorf("%w: place %d outside 1..%d", ErrInvalidPlace, pl.Place, size)
		}
		p := pl.Place - 1
		if _, dup := target[p]; dup {
			return nil, fmt.Errorf("%w: place %d listed twice", ErrInvalidPlace, pl.Place)
		}
		if pl.ItemID == "" {
			return nil, fmt.Errorf("%w: place %d has no item", ErrInvalidPlace, pl.Place)
		}
		scope = append(scope, p)
		target[p] = pl.ItemID
	}
	return importTarget(ctx, s, scope, target, model.SourceBracket)
}

// StandingsFromBracket lists b's seeds as places, the identity result of a
// bracket where every seed finishes where it started.
func StandingsFromBracket(b Bracket) Standings {
	st := Standings{Places: make([]Placement, 0, len(b.Seeds))}
	for _, s := range b.Seeds {
		st.Places = append(st.Places, Placement{Place: s.Seed, ItemID: s.Item.ID})
	}
	return st
}
