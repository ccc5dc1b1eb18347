package transfer_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/validation"
	. "github.com/smartystreets/goconvey/convey"
)

type backlog struct {
	mu          sync.Mutex
	items       map[string]model.ItemSnapshot
	used        map[string]bool
	panicOnMark bool
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
	if b.panicOnMark {
		panic("backlog unavailable")
	}
	b.used[id] = used
}

func (b *backlog) drop(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.items, id)
	delete(b.used, id)
}

func (b *backlog) usedFlags() map[string]bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]bool, len(b.used))
	for k, v := range b.used {
		out[k] = v
	}
	return out
}

func newSession(size int, src session.Source) *session.Session {
	s, err := session.New(size, src)
	So(err, ShouldBeNil)
	return s
}

func layout(s *session.Session) map[int]string {
	out := map[int]string{}
	for _, a := range s.Table.Assignments() {
		out[a.Position] = a.Item.ID
	}
	return out
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()

	Convey("Given a size-5 ranking and an unused item X", t, func() {
		src := newBacklog("X")
		s := newSession(5, src)

		Convey("When X is assigned to 2 while a second caller assigns X to 4", func() {
			first := transfer.NewAssign(s, "X", 2)
			second := transfer.NewAssign(s, "X", 4)

			v1 := first.Validate(ctx)
			v2 := second.Validate(ctx)
			res := first.Execute(ctx)
			res2 := second.Execute(ctx)

			Convey("Then the first should succeed and the second be blocked", func() {
				So(v1.Valid, ShouldBeTrue)
				So(res.Success, ShouldBeTrue)
				So(res.To, ShouldEqual, 2)
				So(res.From, ShouldEqual, transfer.FromBacklog)

				So(v2.Valid, ShouldBeFalse)
				So(v2.Code, ShouldEqual, validation.CodeSourceAlreadyUsed)
				So(v2.Transient, ShouldBeTrue)
				So(res2.Success, ShouldBeFalse)
				So(errors.Is(res2.Err(), validation.ErrConcurrentTransfer), ShouldBeTrue)
				So(second.State(), ShouldEqual, transfer.StateRejected)
			})

			Convey("Then X should sit at 2 only and be marked used", func() {
				So(layout(s), ShouldResemble, map[int]string{2: "X"})
				So(src.IsItemUsed("X"), ShouldBeTrue)
				So(s.Locks.Size(), ShouldEqual, 0)
			})

			Convey("And a new move is needed to bring X to 4", func() {
				mv := transfer.Run(ctx, transfer.NewMove(s, 2, 4))
				So(mv.Success, ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{4: "X"})
				So(src.IsItemUsed("X"), ShouldBeTrue)
			})
		})
	})
}

func TestConcurrentAssignRace(t *testing.T) {
	ctx := context.Background()

	Convey("Given many rounds of two goroutines assigning the same item", t, func() {
		for round := 0; round < 50; round++ {
			src := newBacklog("X")
			s := newSession(5, src)
			results := make([]transfer.Result, 2)
			var wg sync.WaitGroup
			for i, to := range []int{1, 3} {
				wg.Add(1)
				go func(i, to int) {
					defer wg.Done()
					results[i] = transfer.Run(ctx, transfer.NewAssign(s, "X", to))
				}(i, to)
			}
			wg.Wait()

			successes := 0
			for _, r := range results {
				if r.Success {
					successes++
					continue
				}
				So(r.Code, ShouldEqual, validation.CodeSourceAlreadyUsed)
			}
			So(successes, ShouldEqual, 1)
			So(s.Table.OccupiedCount(), ShouldEqual, 1)
			So(s.Locks.Size(), ShouldEqual, 0)
		}
	})
}

func TestPositionalOperations(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ranking with a at 0 and b at 1", t, func() {
		src := newBacklog("a", "b", "c")
		s := newSession(4, src)
		So(transfer.Run(ctx, transfer.NewAssign(s, "a", 0)).Success, ShouldBeTrue)
		So(transfer.Run(ctx, transfer.NewAssign(s, "b", 1)).Success, ShouldBeTrue)

		Convey("When swapping 0 and 1", func() {
			res := transfer.Run(ctx, transfer.NewSwap(s, 0, 1))

			Convey("Then the occupants should trade places", func() {
				So(res.Success, ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{0: "b", 1: "a"})
				So(res.Changes, ShouldHaveLength, 2)
			})
		})

		Convey("When moving a onto b with overwrite", func() {
			res := transfer.Run(ctx, transfer.NewMove(s, 0, 1, transfer.WithOverwrite()))

			Convey("Then b should return to the backlog", func() {
				So(res.Success, ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{1: "a"})
				So(src.IsItemUsed("b"), ShouldBeFalse)
				So(src.IsItemUsed("a"), ShouldBeTrue)
			})
		})

		Convey("When moving a onto b without overwrite", func() {
			res := transfer.Run(ctx, transfer.NewMove(s, 0, 1))

			Convey("Then it should be rejected with nothing changed", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Code, ShouldEqual, validation.CodeTargetPositionInvalid)
				So(layout(s), ShouldResemble, map[int]string{0: "a", 1: "b"})
			})
		})

		Convey("When moving a to itself", func() {
			res := transfer.Run(ctx, transfer.NewMove(s, 0, 0))

			Convey("Then it should succeed as a no-op", func() {
				So(res.Success, ShouldBeTrue)
				So(res.Changes, ShouldBeEmpty)
			})
		})

		Convey("When removing b", func() {
			res := transfer.Run(ctx, transfer.NewRemove(s, 1))

			Convey("Then the slot should be a hole and b unused", func() {
				So(res.Success, ShouldBeTrue)
				So(res.Item.ID, ShouldEqual, "b")
				So(layout(s), ShouldResemble, map[int]string{0: "a"})
				So(src.IsItemUsed("b"), ShouldBeFalse)
			})
		})

		Convey("When removing with a stale expected item", func() {
			res := transfer.Run(ctx, transfer.NewRemove(s, 1, transfer.WithItem("a")))

			Convey("Then the source should be reported missing", func() {
				So(res.Code, ShouldEqual, validation.CodeSourceNotFound)
			})
		})

		Convey("When assigning to the first empty slot with tier metadata", func() {
			res := transfer.Run(ctx, transfer.NewAssign(s, "c", validation.AutoPosition,
				transfer.WithSource(model.SourceTier), transfer.WithMatched(true)))

			Convey("Then c should land at 2 carrying the metadata", func() {
				So(res.Success, ShouldBeTrue)
				So(res.To, ShouldEqual, 2)
				a, _ := s.Table.Get(2)
				So(a.Source, ShouldEqual, model.SourceTier)
				So(a.Matched, ShouldBeTrue)
			})
		})
	})
}

func TestRollback(t *testing.T) {
	ctx := context.Background()

	Convey("Given a ranking with y at 1", t, func() {
		src := newBacklog("x", "y")
		s := newSession(5, src)
		So(transfer.Run(ctx, transfer.NewAssign(s, "y", 1)).Success, ShouldBeTrue)
		beforeLayout := layout(s)
		beforeUsed := src.usedFlags()

		Convey("When an overwriting assign is rolled back", func() {
			op := transfer.NewAssign(s, "x", 1, transfer.WithOverwrite())
			res := transfer.Run(ctx, op)
			So(res.Success, ShouldBeTrue)
			So(src.IsItemUsed("y"), ShouldBeFalse)

			err := op.Rollback(ctx, res)

			Convey("Then table and used flags should match the pre-operation values", func() {
				So(err, ShouldBeNil)
				So(op.State(), ShouldEqual, transfer.StateRolledBack)
				So(layout(s), ShouldResemble, beforeLayout)
				So(src.IsItemUsed("x"), ShouldBeFalse)
				So(src.IsItemUsed("y"), ShouldEqual, beforeUsed["y"])
			})

			Convey("And rolling back again should be harmless", func() {
				So(op.Rollback(ctx, res), ShouldBeNil)
				So(transfer.Revert(ctx, s, res), ShouldBeNil)
				So(layout(s), ShouldResemble, beforeLayout)
			})
		})

		Convey("When every kind of operation is rolled back", func() {
			ops := []*transfer.Op{
				transfer.NewAssign(s, "x", 3),
				transfer.NewMove(s, 1, 4),
				transfer.NewSwap(s, 1, 2),
				transfer.NewRemove(s, 1),
			}
			for _, op := range ops {
				res := transfer.Run(ctx, op)
				So(res.Success, ShouldBeTrue)
				So(op.Rollback(ctx, res), ShouldBeNil)
				So(layout(s), ShouldResemble, beforeLayout)
				So(src.usedFlags()["x"], ShouldBeFalse)
				So(src.IsItemUsed("y"), ShouldBeTrue)
			}
		})

		Convey("When the table diverged partially", func() {
			res := transfer.Run(ctx, transfer.NewMove(s, 1, 3))
			So(res.Success, ShouldBeTrue)
			_, _ = s.Table.SetItemAtPosition(1, &model.Assignment{Item: model.ItemSnapshot{ID: "intruder"}})

			err := transfer.Revert(ctx, s, res)

			Convey("Then rollback should refuse without touching anything", func() {
				So(errors.Is(err, transfer.ErrRollbackConflict), ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{1: "intruder", 3: "y"})
			})
		})

		Convey("When another transfer holds an item to restore", func() {
			op := transfer.NewRemove(s, 1)
			res := transfer.Run(ctx, op)
			s.Locks.TryAcquire(ctx, "y", "someone-else")

			err := op.Rollback(ctx, res)

			Convey("Then rollback should be blocked and retryable", func() {
				So(errors.Is(err, transfer.ErrRollbackBlocked), ShouldBeTrue)
				So(op.State(), ShouldEqual, transfer.StateSucceeded)
				s.Locks.Release(ctx, "y", "someone-else")
				So(op.Rollback(ctx, res), ShouldBeNil)
				So(layout(s), ShouldResemble, beforeLayout)
			})
		})

		Convey("When rolling back a failed result", func() {
			res := transfer.Run(ctx, transfer.NewAssign(s, "ghost", 2))

			Convey("Then it should be refused", func() {
				So(errors.Is(transfer.Revert(ctx, s, res), transfer.ErrNotRollbackable), ShouldBeTrue)
			})
		})
	})
}

func TestStateMachine(t *testing.T) {
	ctx := context.Background()

	Convey("Given a fresh assign", t, func() {
		src := newBacklog("x")
		s := newSession(3, src)
		op := transfer.NewAssign(s, "x", 0, transfer.WithID("op-1"))

		Convey("When executing before validating", func() {
			res := op.Execute(ctx)

			Convey("Then it should fail without leaving created", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Code, ShouldEqual, validation.CodeUnknownError)
				So(op.State(), ShouldEqual, transfer.StateCreated)
				So(op.ID(), ShouldEqual, "op-1")
			})
		})

		Convey("When validating twice", func() {
			first := op.Validate(ctx)
			second := op.Validate(ctx)

			Convey("Then the second call should not re-enter validation", func() {
				So(first.Valid, ShouldBeTrue)
				So(second.Valid, ShouldBeFalse)
				So(op.State(), ShouldEqual, transfer.StateValidated)
				holder, _ := s.Locks.Holder("x")
				So(holder, ShouldEqual, "op-1")
			})
		})

		Convey("When executing twice", func() {
			first := transfer.Run(ctx, op)
			second := op.Execute(ctx)

			Convey("Then only the first should apply", func() {
				So(first.Success, ShouldBeTrue)
				So(second.Success, ShouldBeFalse)
				So(op.State(), ShouldEqual, transfer.StateSucceeded)
			})
		})

		Convey("When rolling back a rejected operation", func() {
			bad := transfer.NewAssign(s, "ghost", 0)
			res := transfer.Run(ctx, bad)

			Convey("Then it should report an invalid state", func() {
				So(res.Code, ShouldEqual, validation.CodeSourceNotFound)
				So(errors.Is(bad.Rollback(ctx, res), transfer.ErrInvalidState), ShouldBeTrue)
			})
		})
	})
}

func TestUnexpectedFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a backlog that panics when flags change", t, func() {
		src := newBacklog("x")
		s := newSession(3, src)
		notified := 0
		s.Table.SubscribeToPosition(0, func(int, *model.Assignment, *model.Assignment) { notified++ })
		src.panicOnMark = true

		Convey("When an assign executes", func() {
			res := transfer.Run(ctx, transfer.NewAssign(s, "x", 0))

			Convey("Then it should fail as unknown with nothing changed", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Code, ShouldEqual, validation.CodeUnknownError)
				So(errors.Is(res.Err(), validation.ErrUnknown), ShouldBeTrue)
				So(s.Table.OccupiedCount(), ShouldEqual, 0)
				So(s.Locks.Size(), ShouldEqual, 0)
				So(notified, ShouldEqual, 0)
			})
		})
	})
}

func TestStaleValidation(t *testing.T) {
	ctx := context.Background()

	Convey("Given an assign validated against an empty target", t, func() {
		src := newBacklog("x", "y")
		s := newSession(3, src)
		op := transfer.NewAssign(s, "x", 2)
		So(op.Validate(ctx).Valid, ShouldBeTrue)

		Convey("When another transfer fills the target before execution", func() {
			So(transfer.Run(ctx, transfer.NewAssign(s, "y", 2)).Success, ShouldBeTrue)
			res := op.Execute(ctx)

			Convey("Then execution should fail transiently without overwriting", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Code, ShouldEqual, validation.CodeTargetPositionInvalid)
				So(res.Transient, ShouldBeTrue)
				So(layout(s), ShouldResemble, map[int]string{2: "y"})
				So(src.IsItemUsed("x"), ShouldBeFalse)
				So(s.Locks.IsLocked("x"), ShouldBeFalse)
			})
		})
	})
}

func TestSourceChangedBeforeExecute(t *testing.T) {
	ctx := context.Background()

	Convey("Given an assign of x validated against position 2", t, func() {
		src := newBacklog("x")
		s := newSession(5, src)
		op := transfer.NewAssign(s, "x", 2)
		So(op.Validate(ctx).Valid, ShouldBeTrue)

		Convey("When x is dropped from the source before execution", func() {
			src.drop("x")
			res := op.Execute(ctx)

			Convey("Then nothing should be placed and the lock released", func() {
				So(res.Success, ShouldBeFalse)
				So(res.Code, ShouldEqual, validation.CodeSourceNotFound)
				So(layout(s), ShouldBeEmpty)
				So(src.usedFlags(), ShouldBeEmpty)
				So(s.Locks.IsLocked("x"), ShouldBeFalse)
			})
		})
	})
}

func TestRunAll(t *testing.T) {
	ctx := context.Background()

	Convey("Given a batch whose last step fails", t, func() {
		src := newBacklog("a", "b")
		s := newSession(3, src)

		results, err := transfer.RunAll(ctx,
			transfer.NewAssign(s, "a", 0),
			transfer.NewAssign(s, "b", 1),
			transfer.NewAssign(s, "missing", 2),
		)

		Convey("Then the earlier steps should be rolled back", func() {
			So(err, ShouldNotBeNil)
			So(errors.Is(err, validation.ErrSourceNotFound), ShouldBeTrue)
			So(results, ShouldHaveLength, 3)
			So(s.Table.OccupiedCount(), ShouldEqual, 0)
			So(src.IsItemUsed("a"), ShouldBeFalse)
			So(src.IsItemUsed("b"), ShouldBeFalse)
		})
	})

	Convey("Given a batch that succeeds", t, func() {
		src := newBacklog("a", "b")
		s := newSession(3, src)

		results, err := transfer.RunAll(ctx,
			transfer.NewAssign(s, "a", 0),
			transfer.NewSwap(s, 0, 2),
		)

		Convey("Then every step should apply", func() {
			So(err, ShouldBeNil)
			So(results, ShouldHaveLength, 2)
			So(layout(s), ShouldResemble, map[int]string{2: "a"})
		})
	})
}

func TestUniquenessAcrossOperations(t *testing.T) {
	ctx := context.Background()

	Convey("Given concurrent random transfers", t, func() {
		ids := []string{"a", "b", "c", "d", "e", "f", "g"}
		src := newBacklog(ids...)
		s := newSession(5, src)

		var wg sync.WaitGroup
		for w := 0; w < 8; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < 100; i++ {
					n := w*100 + i
					var op transfer.Operation
					switch n % 4 {
					case 0:
						op = transfer.NewAssign(s, ids[n%len(ids)], n%5)
					case 1:
						op = transfer.NewMove(s, n%5, (n+2)%5, transfer.WithOverwrite())
					case 2:
						op = transfer.NewSwap(s, n%5, (n+3)%5)
					default:
						op = transfer.NewRemove(s, (n+1)%5)
					}
					transfer.Run(ctx, op)
				}
			}(w)
		}
		wg.Wait()

		Convey("Then no item should be ranked twice and flags should agree with the table", func() {
			seen := map[string]bool{}
			for _, a := range s.Table.Assignments() {
				So(seen[a.Item.ID], ShouldBeFalse)
				seen[a.Item.ID] = true
			}
			for _, id := range ids {
				So(src.IsItemUsed(id), ShouldEqual, seen[id])
			}
			So(s.Locks.Size(), ShouldEqual, 0)
		})
	})
}
