package views_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/internal/domain/views"
	. "github.com/smartystreets/goconvey/convey"
)

type backlog struct {
	mu    sync.Mutex
	items map[string]model.ItemSnapshot
	used  map[string]bool
}

func newBacklog(ids ...string) *backlog {
	b := &backlog{items: map[string]model.ItemSnapshot{}, used: map[string]bool{}}
	for _, id := range ids {
		b.items[id] = model.ItemSnapshot{ID: id, Title: "Item " + id}
	}
	return b
}

func (b *backlog) GetItemByID(id string) (model.ItemSnapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	it, ok := b.items[id]
	return it, ok
}

func (b *backlog) IsItemUsed(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used[id]
}

func (b *backlog) MarkItemAsUsed(id string, used bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used[id] = used
}

func layout(s *session.Session) map[int]string {
	out := map[int]string{}
	for _, a := range s.Table.Assignments() {
		out[a.Position] = a.Item.ID
	}
	return out
}

// seeded builds a size-6 ranking with a,b,c at 0..2 and e at 4.
func seeded(ctx context.Context) (*session.Session, *backlog) {
	src := newBacklog("a", "b", "c", "d", "e", "f")
	s, err := session.New(6, src)
	So(err, ShouldBeNil)
	for id, p := range map[string]int{"a": 0, "b": 1, "c": 2, "e": 4} {
		So(transfer.Run(ctx, transfer.NewAssign(s, id, p)).Success, ShouldBeTrue)
	}
	return s, src
}

var tiers = views.TierConfig{Tiers: []views.Tier{
	{Name: "S", Start: 0, End: 2},
	{Name: "A", Start: 2, End: 5},
}}

func TestTierConfigValidate(t *testing.T) {
	Convey("Given tier configs", t, func() {
		So(tiers.Validate(6), ShouldBeNil)

		bad := []views.TierConfig{
			{},
			{Tiers: []views.Tier{{Name: "", Start: 0, End: 1}}},
			{Tiers: []views.Tier{{Name: "S", Start: 0, End: 7}}},
			{Tiers: []views.Tier{{Name: "S", Start: 2, End: 2}}},
			{Tiers: []views.Tier{{Name: "S", Start: 0, End: 3}, {Name: "A", Start: 2, End: 4}}},
			{Tiers: []views.Tier{{Name: "S", Start: 0, End: 1}, {Name: "S", Start: 1, End: 2}}},
		}
		for _, cfg := range bad {
			So(errors.Is(cfg.Validate(6), views.ErrInvalidTierConfig), ShouldBeTrue)
		}
	})
}

func TestTiers(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seeded ranking", t, func() {
		s, src := seeded(ctx)

		Convey("When exporting tiers", func() {
			before := s.Table.Serialize()
			groups, err := views.ToTiers(s.Table, tiers)

			Convey("Then membership should be projected without touching the table", func() {
				So(err, ShouldBeNil)
				So(groups, ShouldHaveLength, 2)
				So(groups[0].ItemIDs, ShouldResemble, []string{"a", "b"})
				So(groups[1].ItemIDs, ShouldResemble, []string{"c", "", "e"})
				So(groups[1].Items, ShouldHaveLength, 2)
				So(s.Table.Serialize(), ShouldResemble, before)
			})

			Convey("And importing the export back should change nothing", func() {
				results, err := views.FromTiers(ctx, s, tiers, groups)
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
				So(layout(s), ShouldResemble, map[int]string{0: "a", 1: "b", 2: "c", 4: "e"})
			})
		})

		Convey("When importing a reshuffled tier", func() {
			var notes []int
			for p := 0; p < 6; p++ {
				s.Table.SubscribeToPosition(p, func(pos int, _, _ *model.Assignment) { notes = append(notes, pos) })
			}
			results, err := views.FromTiers(ctx, s, tiers, []views.TierGroup{
				{Name: "S", ItemIDs: []string{"e", "a"}},
			})

			Convey("Then the tier should match and displaced items return to the backlog", func() {
				So(err, ShouldBeNil)
				So(results, ShouldNotBeEmpty)
				So(layout(s), ShouldResemble, map[int]string{0: "e", 1: "a", 2: "c"})
				So(src.IsItemUsed("b"), ShouldBeFalse)
				So(src.IsItemUsed("e"), ShouldBeTrue)
				a, _ := s.Table.Get(0)
				So(a.Source, ShouldEqual, model.SourceTier)
			})

			Convey("Then each changed position should be notified once", func() {
				So(notes, ShouldResemble, []int{0, 1, 4})
			})
		})

		Convey("When an import names an unknown item", func() {
			_, err := views.FromTiers(ctx, s, tiers, []views.TierGroup{
				{Name: "S", ItemIDs: []string{"ghost", "a"}},
			})

			Convey("Then the whole import should be rolled back", func() {
				So(errors.Is(err, views.ErrImportFailed), ShouldBeTrue)
				So(errors.Is(err, validation.ErrSourceNotFound), ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{0: "a", 1: "b", 2: "c", 4: "e"})
				So(src.IsItemUsed("a"), ShouldBeTrue)
				So(src.IsItemUsed("b"), ShouldBeTrue)
			})
		})

		Convey("When an import is malformed", func() {
			_, unknown := views.FromTiers(ctx, s, tiers, []views.TierGroup{{Name: "Z"}})
			_, overflow := views.FromTiers(ctx, s, tiers, []views.TierGroup{{Name: "S", ItemIDs: []string{"a", "b", "c"}}})
			_, dup := views.FromTiers(ctx, s, tiers, []views.TierGroup{{Name: "A", ItemIDs: []string{"d", "d"}}})

			Convey("Then it should be refused before any transfer", func() {
				So(errors.Is(unknown, views.ErrUnknownTier), ShouldBeTrue)
				So(errors.Is(overflow, views.ErrTierOverflow), ShouldBeTrue)
				So(errors.Is(dup, views.ErrDuplicateItem), ShouldBeTrue)
			})
		})
	})
}

func TestBracket(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seeded ranking", t, func() {
		s, src := seeded(ctx)

		Convey("When exporting a 4-entrant bracket", func() {
			b, err := views.ToBracket(s.Table, views.BracketConfig{Entrants: 4})

			Convey("Then seeds should follow positions and skip holes", func() {
				So(err, ShouldBeNil)
				So(b.Entrants, ShouldEqual, 4)
				So(b.Seeds, ShouldHaveLength, 3)
				So(b.Seeds[2].Seed, ShouldEqual, 3)
				So(b.Seeds[2].Item.ID, ShouldEqual, "c")
			})

			Convey("And importing the identity standings should change nothing", func() {
				results, err := views.FromBracket(ctx, s, views.StandingsFromBracket(b))
				So(err, ShouldBeNil)
				So(results, ShouldBeEmpty)
			})
		})

		Convey("When the entrant count does not fit", func() {
			_, tooMany := views.ToBracket(s.Table, views.BracketConfig{Entrants: 7})
			_, tooFew := views.ToBracket(s.Table, views.BracketConfig{Entrants: 1})
			all, err := views.ToBracket(s.Table, views.BracketConfig{})

			Convey("Then it should be refused, and zero should mean everything", func() {
				So(errors.Is(tooMany, views.ErrInvalidBracket), ShouldBeTrue)
				So(errors.Is(tooFew, views.ErrInvalidBracket), ShouldBeTrue)
				So(err, ShouldBeNil)
				So(all.Entrants, ShouldEqual, 6)
				So(all.Seeds, ShouldHaveLength, 4)
			})
		})

		Convey("When importing final standings", func() {
			_, err := views.FromBracket(ctx, s, views.Standings{Places: []views.Placement{
				{Place: 1, ItemID: "c"},
				{Place: 2, ItemID: "a"},
				{Place: 3, ItemID: "d"},
			}})

			Convey("Then place p should land on position p-1", func() {
				So(err, ShouldBeNil)
				So(layout(s), ShouldResemble, map[int]string{0: "c", 1: "a", 2: "d", 4: "e"})
				So(src.IsItemUsed("b"), ShouldBeFalse)
				So(src.IsItemUsed("d"), ShouldBeTrue)
				a, _ := s.Table.Get(2)
				So(a.Source, ShouldEqual, model.SourceBracket)
			})
		})

		Convey("When standings are malformed", func() {
			_, outOfRange := views.FromBracket(ctx, s, views.Standings{Places: []views.Placement{{Place: 7, ItemID: "a"}}})
			_, twice := views.FromBracket(ctx, s, views.Standings{Places: []views.Placement{{Place: 1, ItemID: "a"}, {Place: 1, ItemID: "b"}}})
			_, empty := views.FromBracket(ctx, s, views.Standings{Places: []views.Placement{{Place: 1}}})
			_, dup := views.FromBracket(ctx, s, views.Standings{Places: []views.Placement{{Place: 1, ItemID: "a"}, {Place: 2, ItemID: "a"}}})

			Convey("Then nothing should run", func() {
				So(errors.Is(outOfRange, views.ErrInvalidPlace), ShouldBeTrue)
				So(errors.Is(twice, views.ErrInvalidPlace), ShouldBeTrue)
				So(errors.Is(empty, views.ErrInvalidPlace), ShouldBeTrue)
				So(errors.Is(dup, views.ErrDuplicateItem), ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{0: "a", 1: "b", 2: "c", 4: "e"})
			})
		})
	})
}
