// Package positions holds the canonical position -> item table of a ranking.
//
// The table never compacts: clearing a position leaves a hole. Every mutation
// is a single state transition under one lock, and listeners are notified after
// the lock is released, once per position whose occupant effectively changed.
package positions

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/metrics"
)

// Listener observes one position. next or prev is nil when the slot is empty.
type Listener func(position int, next, prev *model.Assignment)

// Write sets one position. A nil Assignment clears it.
type Write struct {
	Position   int
	Assignment *model.Assignment
}

// Change describes an effective transition of one position.
type Change struct {
	Position int
	Prev     *model.Assignment
	Next     *model.Assignment
}

// Expect pins the occupant a conditional update requires. An empty ItemID
// requires the position to be empty.
type Expect struct {
	Position int
	ItemID   string
}

type subscription struct {
	id uint64
	fn Listener
}

type pendingChange struct {
	prev *model.Assignment
	next *model.Assignment
}

// Table is the authoritative mapping of positions to items.
type Table struct {
	mu        sync.RWMutex
	id        string
	size      int
	slots     []*model.Assignment
	byItem    map[string]int
	lastWrite []time.Time
	createdAt time.Time
	updatedAt time.Time
	now       func() time.Time

	subMu     sync.Mutex
	listeners map[int][]subscription
	nextSubID uint64

	holdMu  sync.Mutex
	holds   int
	pending map[int]*pendingChange
}

// New creates an empty table with size positions.
func New(size int, opts ...Option) (*Table, error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	t := &Table{
		size:      size,
		slots:     make([]*model.Assignment, size),
		byItem:    make(map[string]int),
		lastWrite: make([]time.Time, size),
		listeners: make(map[int][]subscription),
		pending:   make(map[int]*pendingChange),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.id == "" {
		t.id = uuid.NewString()
	}
	t.createdAt = t.now()
	t.updatedAt = t.createdAt
	return t, nil
}

// ID returns the ranking id this table belongs to.
func (t *Table) ID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.id
}

// Size returns the fixed number of positions.
func (t *Table) Size() int {
	return t.size
}

// Get returns the assignment at position, if any.
func (t *Table) Get(position int) (model.Assignment, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.inRange(position) || t.slots[position] == nil {
		return model.Assignment{}, false
	}
	return cloneAssignment(t.slots[position]), true
}

// PositionOf returns where itemID is assigned.
func (t *Table) PositionOf(itemID string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.byItem[itemID]
	return p, ok
}

// OccupiedCount returns the number of assigned positions.
func (t *Table) OccupiedCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byItem)
}

// Occupied returns the set of assigned positions.
func (t *Table) Occupied() map[int]bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[int]bool, len(t.byItem))
	for _, p := range t.byItem {
		out[p] = true
	}
	return out
}

// FirstEmpty returns the lowest unassigned position.
func (t *Table) FirstEmpty() (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for p, a := range t.slots {
		if a == nil {
			return p, true
		}
	}
	return 0, false
}

// Assignments returns all assignments ordered by position.
func (t *Table) Assignments() []model.Assignment {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.assignmentsLocked()
}

func (t *Table) assignmentsLocked() []model.Assignment {
	out := make([]model.Assignment, 0, len(t.byItem))
	for _, a := range t.slots {
		if a != nil {
			out = append(out, cloneAssignment(a))
		}
	}
	return out
}

// SetItemAtPosition writes a (or clears the slot when a is nil). It reports
// false and notifies nobody when the slot already holds the same item with
// the same matched flag.
func (t *Table) SetItemAtPosition(position int, a *model.Assignment) (bool, error) {
	changes, err := t.BatchUpdate([]Write{{Position: position, Assignment: a}})
	return len(changes) > 0, err
}

// ClearPosition empties position. Clearing an empty slot is a no-op.
func (t *Table) ClearPosition(position int) (bool, error) {
	return t.SetItemAtPosition(position, nil)
}

// MoveItem relocates the occupant of from onto to, overwriting to.
// Nothing happens when from is empty or equal to to.
func (t *Table) MoveItem(from, to int) (bool, error) {
	t.mu.Lock()
	if !t.inRange(from) || !t.inRange(to) {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: move %d -> %d", ErrPositionOutOfRange, from, to)
	}
	src := t.slots[from]
	if src == nil || from == to {
		t.mu.Unlock()
		return false, nil
	}
	moved := rewritten(src)
	changes, err := t.applyLocked([]Write{
		{Position: from},
		{Position: to, Assignment: &moved},
	})
	t.mu.Unlock()
	if err != nil {
		return false, err
	}
	t.dispatch(changes)
	return len(changes) > 0, nil
}

// SwapItems exchanges the occupants of a and b. Either side may be empty.
func (t *Table) SwapItems(a, b int) (bool, error) {
	t.mu.Lock()
	if !t.inRange(a) || !t.inRange(b) {
		t.mu.Unlock()
		return false, fmt.Errorf("%w: swap %d <-> %d", ErrPositionOutOfRange, a, b)
	}
	if a == b {
		t.mu.Unlock()
		return false, nil
	}
	var toA, toB *model.Assignment
	if x := t.slots[a]; x != nil {
		c := rewritten(x)
		toB = &c
	}
	if y := t.slots[b]; y != nil {
		c := rewritten(y)
		toA = &c
	}
	changes, err := t.applyLocked([]Write{
		{Position: a, Assignment: toA},
		{Position: b, Assignment: toB},
	})
	t.mu.Unlock()
	if err != nil {
		return false, err
	}
	t.dispatch(changes)
	return len(changes) > 0, nil
}

// BatchUpdate applies writes as one transition. When the same position is
// written twice the last write wins. The whole batch is refused if any write
// is out of range or the final state would hold one item twice.
func (t *Table) BatchUpdate(writes []Write) ([]Change, error) {
	t.mu.Lock()
	changes, err := t.applyLocked(writes)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t.dispatch(changes)
	return changes, nil
}

// CompareAndUpdate applies writes like BatchUpdate, but only while every
// expected occupant is still in place. Otherwise it returns ErrConflict and
// changes nothing.
func (t *Table) CompareAndUpdate(expect []Expect, writes []Write) ([]Change, error) {
	t.mu.Lock()
	for _, e := range expect {
		if !t.inRange(e.Position) {
			t.mu.Unlock()
			return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrPositionOutOfRange, e.Position, t.size)
		}
		cur := ""
		if a := t.slots[e.Position]; a != nil {
			cur = a.Item.ID
		}
		if cur != e.ItemID {
			t.mu.Unlock()
			return nil, fmt.Errorf("%w: position %d holds %q, want %q", ErrConflict, e.Position, cur, e.ItemID)
		}
	}
	changes, err := t.applyLocked(writes)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}
	t.dispatch(changes)
	return changes, nil
}

// applyLocked must be called with t.mu held for writing.
func (t *Table) applyLocked(writes []Write) ([]Change, error) {
	final := make(map[int]*model.Assignment, len(writes))
	for _, w := range writes {
		if !t.inRange(w.Position) {
			return nil, fmt.Errorf("%w: %d not in [0,%d)", ErrPositionOutOfRange, w.Position, t.size)
		}
		if w.Assignment != nil && w.Assignment.Item.IsZero() {
			return nil, fmt.Errorf("%w: position %d", ErrEmptyItemID, w.Position)
		}
		final[w.Position] = w.Assignment
	}

	// Uniqueness: an item may only land where it is now, on a touched
	// position it leaves, or nowhere else in the batch.
	landing := make(map[string]int, len(final))
	for p, a := range final {
		if a == nil {
			continue
		}
		id := a.Item.ID
		if other, dup := landing[id]; dup {
			return nil, fmt.Errorf("%w: %q at %d and %d", ErrDuplicateItem, id, other, p)
		}
		landing[id] = p
		if cur, ok := t.byItem[id]; ok && cur != p {
			if _, touched := final[cur]; !touched {
				return nil, fmt.Errorf("%w: %q already at %d", ErrDuplicateItem, id, cur)
			}
		}
	}

	positions := make([]int, 0, len(final))
	for p := range final {
		positions = append(positions, p)
	}
	sort.Ints(positions)

	now := t.now()
	changes := make([]Change, 0, len(positions))
	for _, p := range positions {
		next := final[p]
		prev := t.slots[p]
		if model.Equivalent(prev, next) {
			continue
		}
		changes = append(changes, Change{Position: p, Prev: prev})
	}
	if len(changes) == 0 {
		return nil, nil
	}

	// Clear first so an item moving between two touched positions is indexed once.
	for _, c := range changes {
		if c.Prev != nil && t.byItem[c.Prev.Item.ID] == c.Position {
			delete(t.byItem, c.Prev.Item.ID)
		}
		t.slots[c.Position] = nil
	}
	for i, c := range changes {
		next := final[c.Position]
		stamp := now
		if next != nil && !next.AssignedAt.IsZero() {
			stamp = next.AssignedAt
		}
		if stamp.Before(t.lastWrite[c.Position]) {
			stamp = t.lastWrite[c.Position]
		}
		t.lastWrite[c.Position] = stamp
		if next == nil {
			continue
		}
		stored := cloneAssignment(next)
		stored.Position = c.Position
		stored.AssignedAt = stamp
		if stored.Source == "" {
			stored.Source = model.SourceDirect
		}
		t.slots[c.Position] = &stored
		t.byItem[stored.Item.ID] = c.Position
		out := cloneAssignment(&stored)
		changes[i].Next = &out
	}
	if now.After(t.updatedAt) {
		t.updatedAt = now
	}
	return changes, nil
}

// SubscribeToPosition registers l for changes of position. The returned func
// removes the listener; calling it more than once is harmless.
func (t *Table) SubscribeToPosition(position int, l Listener) func() {
	t.subMu.Lock()
	t.nextSubID++
	id := t.nextSubID
	t.listeners[position] = append(t.listeners[position], subscription{id: id, fn: l})
	t.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.subMu.Lock()
			defer t.subMu.Unlock()
			subs := t.listeners[position]
			for i, s := range subs {
				if s.id == id {
					t.listeners[position] = append(subs[:i:i], subs[i+1:]...)
					break
				}
			}
			if len(t.listeners[position]) == 0 {
				delete(t.listeners, position)
			}
		})
	}
}

// HoldNotifications defers listener calls until the returned release func
// runs. Changes made meanwhile are coalesced per position, so observers see
// the net effect of several transitions as one. Holds nest.
func (t *Table) HoldNotifications() (release func()) {
	t.holdMu.Lock()
	t.holds++
	t.holdMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.holdMu.Lock()
			t.holds--
			if t.holds > 0 {
				t.holdMu.Unlock()
				return
			}
			pending := t.pending
			t.pending = make(map[int]*pendingChange)
			t.holdMu.Unlock()

			changes := make([]Change, 0, len(pending))
			for p, pc := range pending {
				if model.Equivalent(pc.prev, pc.next) {
					continue
				}
				changes = append(changes, Change{Position: p, Prev: pc.prev, Next: pc.next})
			}
			sort.Slice(changes, func(i, j int) bool { return changes[i].Position < changes[j].Position })
			t.notify(changes)
		})
	}
}

func (t *Table) dispatch(changes []Change) {
	if len(changes) == 0 {
		return
	}
	t.holdMu.Lock()
	if t.holds > 0 {
		for _, c := range changes {
			if pc, ok := t.pending[c.Position]; ok {
				pc.next = c.Next
				continue
			}
			t.pending[c.Position] = &pendingChange{prev: c.Prev, next: c.Next}
		}
		t.holdMu.Unlock()
		return
	}
	t.holdMu.Unlock()
	t.notify(changes)
}

func (t *Table) notify(changes []Change) {
	delivered := 0
	for _, c := range changes {
		t.subMu.Lock()
		subs := append([]subscription(nil), t.listeners[c.Position]...)
		t.subMu.Unlock()
		for _, s := range subs {
			s.fn(c.Position, copyPtr(c.Next), copyPtr(c.Prev))
			delivered++
		}
	}
	metrics.RecordPositionNotifications(delivered)
}

// Serialize captures the table as a snapshot.
func (t *Table) Serialize() model.RankingSnapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return model.RankingSnapshot{
		ID:          t.id,
		Size:        t.size,
		Assignments: t.assignmentsLocked(),
		CreatedAt:   t.createdAt,
		UpdatedAt:   t.updatedAt,
	}
}

// Deserialize replaces the whole table with snap in one transition.
// Positions absent from snap are cleared.
func (t *Table) Deserialize(snap model.RankingSnapshot) error {
	if snap.Size != t.size {
		return fmt.Errorf("%w: snapshot %d, table %d", ErrSizeMismatch, snap.Size, t.size)
	}
	target := make([]*model.Assignment, t.size)
	for i := range snap.Assignments {
		a := snap.Assignments[i]
		if !t.inRange(a.Position) {
			return fmt.Errorf("%w: %d not in [0,%d)", ErrPositionOutOfRange, a.Position, t.size)
		}
		if target[a.Position] != nil {
			return fmt.Errorf("%w: %d", ErrDuplicatePosition, a.Position)
		}
		target[a.Position] = &a
	}
	writes := make([]Write, t.size)
	for p := range target {
		writes[p] = Write{Position: p, Assignment: target[p]}
	}

	t.mu.Lock()
	changes, err := t.applyLocked(writes)
	if err == nil {
		if snap.ID != "" {
			t.id = snap.ID
		}
		if !snap.CreatedAt.IsZero() {
			t.createdAt = snap.CreatedAt
		}
		if snap.UpdatedAt.After(t.updatedAt) {
			t.updatedAt = snap.UpdatedAt
		}
	}
	t.mu.Unlock()
	if err != nil {
		return err
	}
	t.dispatch(changes)
	return nil
}

func (t *Table) inRange(p int) bool {
	return p >= 0 && p < t.size
}

// rewritten copies a for a fresh write: the new slot gets a new timestamp.
func rewritten(a *model.Assignment) model.Assignment {
	c := cloneAssignment(a)
	c.AssignedAt = time.Time{}
	return c
}

func cloneAssignment(a *model.Assignment) model.Assignment {
	c := *a
	c.Item = a.Item.Clone()
	return c
}

func copyPtr(a *model.Assignment) *model.Assignment {
	if a == nil {
		return nil
	}
	c := cloneAssignment(a)
	return &c
}
