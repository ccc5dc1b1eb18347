// Package views projects a ranking into tier and bracket groupings and
// imports them back. Exports are read-only; imports run every change through
// the transfer protocol.
package views

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
)

// Reader is the read side of a position table.
type Reader interface {
	Size() int
	Get(position int) (model.Assignment, bool)
}

// importTarget makes the positions in scope hold target (position -> item id,
// missing or "" for a hole). Items named in target are pulled from wherever
// they currently sit. Observers see one coalesced change per position, and a
// failure rolls back every step already taken.
func importTarget(ctx context.Context, s *session.Session, scope []int, target map[int]string, src model.Source) ([]transfer.Result, error) {
	wanted := make(map[string]int, len(target))
	for p, id := range target {
		if id == "" {
			continue
		}
		if other, dup := wanted[id]; dup {
			return nil, fmt.Errorf("%w: %q at %d and %d", ErrDuplicateItem, id, other, p)
		}
		wanted[id] = p
	}

	sort.Ints(scope)
	removed := make(map[int]bool)
	var removals, assigns []transfer.Operation

	remove := func(p int, id string) {
		if removed[p] {
			return
		}
		removed[p] = true
		removals = append(removals, transfer.NewRemove(s, p, transfer.WithItem(id)))
	}

	for _, p := range scope {
		cur, occupied := s.Table.Get(p)
		want := target[p]
		if occupied && cur.Item.ID == want {
			continue
		}
		if occupied {
			remove(p, cur.Item.ID)
		}
		if want == "" {
			continue
		}
		if q, ok := s.Table.PositionOf(want); ok {
			remove(q, want)
		}
		assigns = append(assigns, transfer.NewAssign(s, want, p, transfer.WithSource(src)))
	}

	ops := append(removals, assigns...)
	if len(ops) == 0 {
		return nil, nil
	}

	release := s.Table.HoldNotifications()
	defer release()
	results, err := transfer.RunAll(ctx, ops...)
	if err != nil {
		return results, fmt.Errorf("%w: %w", ErrImportFailed, err)
	}
	return results, nil
}
