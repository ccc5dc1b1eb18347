package dragsim

import (
	"errors"
	"fmt"

	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/types"
)

// Check verifies a ranking against its backlog: positions in range and
// distinct, no item placed twice, and an item is flagged used exactly when
// it is placed. Every violation is reported.
func Check(v service.RankingView, backlog []types.BacklogEntry) error {
	var problems []error

	if v.Occupied != len(v.Entries) {
		problems = append(problems, fmt.Errorf("occupied is %d but %d entries listed", v.Occupied, len(v.Entries)))
	}

	used := make(map[string]bool, len(backlog))
	for _, e := range backlog {
		used[e.Item.ID] = e.Used
	}

	positions := make(map[int]string, len(v.Entries))
	placed := make(map[string]int, len(v.Entries))
	for _, e := range v.Entries {
		if e.Position < 0 || e.Position >= v.Size {
			problems = append(problems, fmt.Errorf("item %s at position %d outside [0,%d)", e.ItemID, e.Position, v.Size))
		}
		if other, ok := positions[e.Position]; ok {
			problems = append(problems, fmt.Errorf("position %d holds both %s and %s", e.Position, other, e.ItemID))
		}
		positions[e.Position] = e.ItemID

		if at, ok := placed[e.ItemID]; ok {
			problems = append(problems, fmt.Errorf("item %s placed at %d and %d", e.ItemID, at, e.Position))
		}
		placed[e.ItemID] = e.Position

		flag, known := used[e.ItemID]
		switch {
		case !known:
			problems = append(problems, fmt.Errorf("item %s is placed but not in the backlog", e.ItemID))
		case !flag:
			problems = append(problems, fmt.Errorf("item %s is placed but not flagged used", e.ItemID))
		}
	}

	for _, e := range backlog {
		if _, ok := placed[e.Item.ID]; e.Used && !ok {
			problems = append(problems, fmt.Errorf("item %s is flagged used but not placed", e.Item.ID))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInconsistent, errors.Join(problems...))
}
