// Package source provides the in-memory backlog rankings draw items from.
package source

import (
	"fmt"
	"sync"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// Backlog is a thread-safe source collection with per-item used flags.
// It satisfies session.Source.
type Backlog struct {
	mu    sync.RWMutex
	items map[string]model.ItemSnapshot
	order []string
	used  map[string]bool
	limit int
}

// NewBacklog creates an empty backlog.
func NewBacklog(opts ...Option) *Backlog {
	b := &Backlog{
		items: make(map[string]model.ItemSnapshot),
		used:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Add inserts items, replacing the snapshot of ids already present. Used
// flags are kept on replace.
func (b *Backlog) Add(items ...model.ItemSnapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	fresh := 0
	for _, it := range items {
		if it.IsZero() {
			return ErrEmptyItemID
		}
		if _, ok := b.items[it.ID]; !ok {
			fresh++
		}
	}
	if b.limit > 0 && len(b.items)+fresh > b.limit {
		return fmt.Errorf("%w: %d items, limit %d", ErrBacklogFull, len(b.items)+fresh, b.limit)
	}
	for _, it := range items {
		if _, ok := b.items[it.ID]; !ok {
			b.order = append(b.order, it.ID)
		}
		b.items[it.ID] = it.Clone()
	}
	return nil
}

// Remove deletes an unused item.
func (b *Backlog) Remove(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.items[id]; !ok {
		return fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	if b.used[id] {
		return fmt.Errorf("%w: %s", ErrItemInUse, id)
	}
	delete(b.items, id)
	delete(b.used, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}

func (b *Backlog) GetItemByID(id string) (model.ItemSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	it, ok := b.items[id]
	if !ok {
		return model.ItemSnapshot{}, false
	}
	return it.Clone(), true
}

func (b *Backlog) IsItemUsed(id string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.used[id]
}

// MarkItemAsUsed sets the used flag of a known item. Unknown ids are ignored.
func (b *Backlog) MarkItemAsUsed(id string, used bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.items[id]; !ok {
		return
	}
	if used {
		b.used[id] = true
		return
	}
	delete(b.used, id)
}

// Reconcile sets the used flag of every item to whether it appears in ranked.
// Ranked ids the backlog does not know are returned.
func (b *Backlog) Reconcile(ranked []string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.used = make(map[string]bool, len(ranked))
	var unknown []string
	for _, id := range ranked {
		if _, ok := b.items[id]; !ok {
			unknown = append(unknown, id)
			continue
		}
		b.used[id] = true
	}
	return unknown
}

// List returns all items in insertion order.
func (b *Backlog) List() []types.BacklogEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]types.BacklogEntry, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, types.BacklogEntry{Item: b.items[id].Clone(), Used: b.used[id]})
	}
	return out
}

// Len returns the number of items.
func (b *Backlog) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// UsedCount returns the number of items marked used.
func (b *Backlog) UsedCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.used)
}
