// Package lock provides the per-session item lock registry used by transfer
// operations.
package lock

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/okian/podium/pkg/metrics"
)

// Registry tracks which in-flight operation holds which item.
type Registry interface {
	// TryAcquire atomically claims itemID for owner if nobody holds it.
	// Re-acquiring an item the owner already holds succeeds.
	TryAcquire(ctx context.Context, itemID, owner string) bool

	// Release frees itemID if owner holds it. It reports whether the lock was dropped.
	Release(ctx context.Context, itemID, owner string) bool

	IsLocked(itemID string) bool
	IsLockedByOther(itemID, owner string) bool
	Holder(itemID string) (string, bool)
	Size() int64
}

type inMemoryRegistry struct {
	mu      sync.RWMutex
	holders map[string]string
	size    atomic.Int64
	// publish mirrors the held count to the process-wide gauge.
	publish bool
}

// NewInMemoryRegistry creates an empty registry.
func NewInMemoryRegistry(opts ...Option) Registry {
	r := &inMemoryRegistry{publish: true}
	for _, opt := range opts {
		opt(r)
	}
	r.holders = make(map[string]string)
	return r
}

func (r *inMemoryRegistry) TryAcquire(_ context.Context, itemID, owner string) bool {
	if itemID == "" || owner == "" {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.holders[itemID]; held {
		if holder == owner {
			return true
		}
		metrics.RecordLockContention()
		return false
	}
	r.holders[itemID] = owner
	r.size.Add(1)
	r.report()
	return true
}

func (r *inMemoryRegistry) Release(_ context.Context, itemID, owner string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if holder, held := r.holders[itemID]; !held || holder != owner {
		return false
	}
	delete(r.holders, itemID)
	r.size.Add(-1)
	r.report()
	return true
}

func (r *inMemoryRegistry) IsLocked(itemID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, held := r.holders[itemID]
	return held
}

func (r *inMemoryRegistry) IsLockedByOther(itemID, owner string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, held := r.holders[itemID]
	return held && holder != owner
}

func (r *inMemoryRegistry) Holder(itemID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	holder, held := r.holders[itemID]
	return holder, held
}

func (r *inMemoryRegistry) Size() int64 {
	return r.size.Load()
}

// report must be called with r.mu held.
func (r *inMemoryRegistry) report() {
	if r.publish {
		metrics.UpdateLocksHeld(int(r.size.Load()))
	}
}
