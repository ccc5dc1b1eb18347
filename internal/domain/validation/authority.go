// Package validation decides whether a transfer may run. Decisions are pure:
// calling the authority never touches lock or table state.
package validation

import (
	"context"
	"fmt"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

// Authority runs the ordered transfer checks.
type Authority struct {
	logger logger.Logger
}

// NewAuthority creates an Authority.
func NewAuthority(opts ...Option) *Authority {
	a := &Authority{logger: logger.Nop()}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// CanTransfer checks, in order: target shape, source availability, lock
// state and capacity. The first failure wins.
func (a *Authority) CanTransfer(ctx context.Context, req Request, table TableView, source SourceView, locks LockView) Result {
	var res Result
	switch req.Kind {
	case KindAssign:
		res = a.checkAssign(req, table, source, locks)
	case KindMove:
		res = a.checkMove(req, table, locks)
	case KindSwap:
		res = a.checkSwap(req, table, locks)
	case KindRemove:
		res = a.checkRemove(req, table, locks)
	default:
		res = Reject(CodeUnknownError, fmt.Sprintf("unknown transfer kind %q", req.Kind), nil)
	}

	if !res.Valid {
		a.logger.Debug(ctx, "transfer rejected",
			logger.String("kind", string(req.Kind)),
			logger.String("code", string(res.Code)),
			logger.String("message", res.Message),
			logger.Bool("transient", res.Transient),
			logger.String("itemID", req.ItemID),
			logger.Int("from", req.From),
			logger.Int("to", req.To),
			logger.Any("debug", res.Debug),
		)
	}
	return res
}

func (a *Authority) checkAssign(req Request, table TableView, source SourceView, locks LockView) Result {
	size := table.Size()
	if req.To != AutoPosition && !inRange(req.To, size) {
		return outOfRange(req.To, size)
	}

	item, ok := source.GetItemByID(req.ItemID)
	if !ok || item.IsZero() {
		return Reject(CodeSourceNotFound, fmt.Sprintf("item %q is not in the backlog", req.ItemID),
			map[string]any{"itemID": req.ItemID})
	}
	placed, inTable := table.PositionOf(item.ID)
	if inTable || (source.IsItemUsed(item.ID) && !req.AllowOverwrite) {
		debug := map[string]any{"itemID": item.ID}
		if inTable {
			debug["position"] = placed
		}
		return Reject(CodeSourceAlreadyUsed, fmt.Sprintf("item %s is already ranked", item.ID), debug)
	}

	if res, blocked := checkLock(locks, item.ID, req.Owner); blocked {
		return res
	}

	target := req.To
	if target == AutoPosition {
		first, ok := table.FirstEmpty()
		if !ok {
			return Reject(CodeTargetPositionInvalid, "ranking is full", map[string]any{"size": size})
		}
		target = first
	}
	var displaced model.ItemSnapshot
	if cur, occupied := table.Get(target); occupied {
		if !req.AllowOverwrite {
			return occupiedTarget(target, cur.Item.ID)
		}
		if res, blocked := checkLock(locks, cur.Item.ID, req.Owner); blocked {
			return res
		}
		displaced = cur.Item
	}
	return Result{Valid: true, Item: item, Target: target, Displaced: displaced}
}

func (a *Authority) checkMove(req Request, table TableView, locks LockView) Result {
	size := table.Size()
	if !inRange(req.From, size) {
		return outOfRange(req.From, size)
	}
	if !inRange(req.To, size) {
		return outOfRange(req.To, size)
	}

	src, res, ok := occupant(req, table)
	if !ok {
		return res
	}
	if res, blocked := checkLock(locks, src.Item.ID, req.Owner); blocked {
		return res
	}

	var displaced model.ItemSnapshot
	if req.To != req.From {
		if cur, occupied := table.Get(req.To); occupied {
			if !req.AllowOverwrite {
				return occupiedTarget(req.To, cur.Item.ID)
			}
			if res, blocked := checkLock(locks, cur.Item.ID, req.Owner); blocked {
				return res
			}
			displaced = cur.Item
		}
	}
	return Result{Valid: true, Item: src.Item, Target: req.To, Displaced: displaced}
}

func (a *Authority) checkSwap(req Request, table TableView, locks LockView) Result {
	size := table.Size()
	if !inRange(req.From, size) {
		return outOfRange(req.From, size)
	}
	if !inRange(req.To, size) {
		return outOfRange(req.To, size)
	}

	first, firstOK := table.Get(req.From)
	second, secondOK := table.Get(req.To)
	if !firstOK && !secondOK {
		return Reject(CodeSourceNotFound, fmt.Sprintf("positions %d and %d are both empty", req.From, req.To),
			map[string]any{"from": req.From, "to": req.To})
	}
	if req.ItemID != "" && (!firstOK || first.Item.ID != req.ItemID) {
		return Reject(CodeSourceNotFound, fmt.Sprintf("item %q is not at position %d", req.ItemID, req.From),
			map[string]any{"itemID": req.ItemID, "from": req.From})
	}
	for _, occ := range []struct {
		a  model.Assignment
		ok bool
	}{{first, firstOK}, {second, secondOK}} {
		if !occ.ok {
			continue
		}
		if res, blocked := checkLock(locks, occ.a.Item.ID, req.Owner); blocked {
			return res
		}
	}
	return Result{Valid: true, Item: first.Item, Target: req.To, Displaced: second.Item}
}

func (a *Authority) checkRemove(req Request, table TableView, locks LockView) Result {
	size := table.Size()
	if !inRange(req.From, size) {
		return outOfRange(req.From, size)
	}
	src, res, ok := occupant(req, table)
	if !ok {
		return res
	}
	if res, blocked := checkLock(locks, src.Item.ID, req.Owner); blocked {
		return res
	}
	return Result{Valid: true, Item: src.Item, Target: req.From}
}

// occupant resolves the item at req.From for positional kinds.
func occupant(req Request, table TableView) (model.Assignment, Result, bool) {
	src, ok := table.Get(req.From)
	if !ok {
		return model.Assignment{}, Reject(CodeSourceNotFound, fmt.Sprintf("position %d is empty", req.From),
			map[string]any{"from": req.From}), false
	}
	if req.ItemID != "" && src.Item.ID != req.ItemID {
		return model.Assignment{}, Reject(CodeSourceNotFound,
			fmt.Sprintf("item %q is not at position %d", req.ItemID, req.From),
			map[string]any{"itemID": req.ItemID, "from": req.From, "occupant": src.Item.ID}), false
	}
	return src, Result{}, true
}

func checkLock(locks LockView, itemID, owner string) (Result, bool) {
	if locks == nil {
		return Result{}, false
	}
	holder, held := locks.Holder(itemID)
	if held && holder != owner {
		return Blocked(itemID, holder), true
	}
	return Result{}, false
}

func inRange(p, size int) bool {
	return p >= 0 && p < size
}

func outOfRange(p, size int) Result {
	return Reject(CodeTargetPositionInvalid, fmt.Sprintf("position %d is outside the ranking", p),
		map[string]any{"position": p, "size": size})
}

func occupiedTarget(p int, itemID string) Result {
	return Reject(CodeTargetPositionInvalid, fmt.Sprintf("position %d is taken", p),
		map[string]any{"position": p, "occupant": itemID})
}
