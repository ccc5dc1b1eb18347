package views

import (
	"context"
	"fmt"
	"sort"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
)

// Tier is a named half-open position range [Start, End). Boundaries are
// decided by whoever owns the tier layout.
type Tier struct {
	Name  string `json:"name"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// TierConfig lists the tiers of a ranking. Tiers may leave positions uncovered.
type TierConfig struct {
	Tiers []Tier `json:"tiers"`
}

// TierGroup is one tier's membership. ItemIDs[i] is the item at Start+i,
// with "" for a hole.
type TierGroup struct {
	Name    string               `json:"name"`
	Start   int                  `json:"start"`
	End     int                  `json:"end"`
	ItemIDs []string             `json:"item_ids"`
	Items   []model.ItemSnapshot `json:"items,omitempty"`
}

// Validate checks the tiers against a ranking of size positions.
func (c TierConfig) Validate(size int) error {
	if len(c.Tiers) == 0 {
		return fmt.Errorf("%w: no tiers", ErrInvalidTierConfig)
	}
	names := make(map[string]bool, len(c.Tiers))
	sorted := append([]Tier(nil), c.Tiers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i, t := range sorted {
		switch {
		case t.Name == "":
			return fmt.Errorf("%w: tier without a name", ErrInvalidTierConfig)
		case names[t.Name]:
			return fmt.Errorf("%w: tier %q listed twice", ErrInvalidTierConfig, t.Name)
		case t.Start < 0 || t.End > size || t.Start >= t.End:
			return fmt.Errorf("%w: tier %q range [%d,%d) outside [0,%d)", ErrInvalidTierConfig, t.Name, t.Start, t.End, size)
		case i > 0 && t.Start < sorted[i-1].End:
			return fmt.Errorf("%w: tiers %q and %q overlap", ErrInvalidTierConfig, sorted[i-1].Name, t.Name)
		}
		names[t.Name] = true
	}
	return nil
}

// ToTiers projects the table into cfg's tiers, in cfg order.
func ToTiers(table Reader, cfg TierConfig) ([]TierGroup, error) {
	if err := cfg.Validate(table.Size()); err != nil {
		return nil, err
	}
	groups := make([]TierGroup, 0, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		g := TierGroup{Name: t.Name, Start: t.Start, End: t.End, ItemIDs: make([]string, t.End-t.Start)}
		for p := t.Start; p < t.End; p++ {
			if a, ok := table.Get(p); ok {
				g.ItemIDs[p-t.Start] = a.Item.ID
				g.Items = append(g.Items, a.Item)
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// FromTiers makes the tiers named in groups match their membership. Tiers of
// cfg that are not named keep their current items.
func FromTiers(ctx context.Context, s *session.Session, cfg TierConfig, groups []TierGroup) ([]transfer.Result, error) {
	if err := cfg.Validate(s.Table.Size()); err != nil {
		return nil, err
	}
	byName := make(map[string]Tier, len(cfg.Tiers))
	for _, t := range cfg.Tiers {
		byName[t.Name] = t
	}

	var scope []int
	target := make(map[int]string)
	for _, g := range groups {
		t, ok := byName[g.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTier, g.Name)
		}
		if len(g.ItemIDs) > t.End-t.Start {
			return nil, fmt.Errorf("%w: %q has %d items for %d positions", ErrTierOverflow, g.Name, len(g.ItemIDs), t.End-t.Start)
		}
		for p := t.Start; p < t.End; p++ {
			scope = append(scope, p)
		}
		for i, id := range g.ItemIDs {
			target[t.Start+i] = id
		}
	}
	return importTarget(ctx, s, scope, target, model.SourceTier)
}
