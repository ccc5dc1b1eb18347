package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
)

// MemoryStore keeps snapshots in process memory.
type MemoryStore struct {
	mu     sync.RWMutex
	snaps  map[string]model.RankingSnapshot
	tombs  map[string]time.Time
	logger logger.Logger
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore(opts ...Option) *MemoryStore {
	cfg := newSettings(opts)
	return &MemoryStore{
		snaps:  make(map[string]model.RankingSnapshot),
		tombs:  make(map[string]time.Time),
		logger: cfg.logger,
	}
}

func (s *MemoryStore) Save(ctx context.Context, snap model.RankingSnapshot) (bool, error) {
	if snap.ID == "" {
		return false, ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if deleted, ok := s.tombs[snap.ID]; ok && !snap.UpdatedAt.After(deleted) {
		s.logger.Debug(ctx, "skipping snapshot of deleted ranking",
			logger.String("rankingID", snap.ID),
			logger.Any("deleted", deleted),
			logger.Any("incoming", snap.UpdatedAt),
		)
		return false, nil
	}
	if cur, ok := s.snaps[snap.ID]; ok && cur.UpdatedAt.After(snap.UpdatedAt) {
		s.logger.Debug(ctx, "skipping stale snapshot",
			logger.String("rankingID", snap.ID),
			logger.Any("stored", cur.UpdatedAt),
			logger.Any("incoming", snap.UpdatedAt),
		)
		return false, nil
	}
	s.snaps[snap.ID] = cloneSnapshot(snap)
	return true, nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (model.RankingSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return model.RankingSnapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return cloneSnapshot(snap), nil
}

func (s *MemoryStore) List(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	out := make([]Summary, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, summarize(snap))
	}
	s.mu.RUnlock()
	sortSummaries(out)
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tombs[id] = time.Now()
	if _, ok := s.snaps[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.snaps, id)
	return nil
}

func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.snaps)
}

func (s *MemoryStore) Close() error { return nil }

func sortSummaries(out []Summary) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
}
