// Package service owns the rankings of a process and exposes the operations
// the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/adapters/mq/worker"
	"github.com/okian/podium/internal/adapters/repository"
	"github.com/okian/podium/internal/adapters/source"
	"github.com/okian/podium/internal/domain/lock"
	"github.com/okian/podium/internal/domain/magnet"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/positions"
	"github.com/okian/podium/internal/domain/session"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/internal/domain/validation"
	"github.com/okian/podium/internal/domain/views"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const (
	defaultRankingSize = 10
	defaultQueueSize   = 1024
)

// ranking is one session with its backlog. Transfers share mu; restores and
// deletes hold it exclusively.
type ranking struct {
	mu      sync.RWMutex
	sess    *session.Session
	backlog *source.Backlog
	deleted bool
}

// live must run with mu held. Callers that fetched r before DeleteRanking
// took the lock see the ranking as gone.
func (r *ranking) live() error {
	if r.deleted {
		return fmt.Errorf("%w: %s", ErrRankingNotFound, r.sess.ID)
	}
	return nil
}

// Service implements the API dependencies for the ranking engine.
type Service struct {
	mu       sync.RWMutex
	rankings map[string]*ranking

	store   repository.Store
	queue   *queue.InMemoryQueue
	pool    *worker.Pool
	scorer  *magnet.Scorer
	started bool

	workerCount  int
	queueSize    int
	defaultSize  int
	backlogLimit int
	magnetOpts   []magnet.Option

	succeeded atomic.Int64
	rejected  atomic.Int64
	syncDrops atomic.Int64

	logger logger.Logger
}

// New constructs a Service. Rankings can be used before Start; snapshots are
// only persisted while the service runs.
func New(opts ...Option) *Service {
	s := &Service{
		rankings:    make(map[string]*ranking),
		workerCount: runtime.NumCPU(),
		queueSize:   defaultQueueSize,
		defaultSize: defaultRankingSize,
		logger:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.scorer = magnet.NewScorer(s.magnetOpts...)
	return s
}

// Start loads persisted rankings and starts the sync workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting ranking service...")

	restored, err := s.rehydrateLocked(ctx)
	if err != nil {
		return fmt.Errorf("loading rankings: %w", err)
	}

	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s.store, worker.WithLogger(s.logger))
	// Workers must outlive the request context that started them.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.refreshGaugesLocked()
	s.logger.Info(ctx, "ranking service started",
		logger.Int("workers", s.pool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("restored", restored),
	)
	return nil
}

// Stop drains pending snapshot syncs and closes the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping ranking service...")

	var errs []error
	if err := s.pool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := s.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing store: %w", err))
	}
	s.started = false
	s.logger.Info(ctx, "ranking service stopped")
	return errors.Join(errs...)
}

func (s *Service) rehydrateLocked(ctx context.Context) (int, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, sum := range summaries {
		if _, ok := s.rankings[sum.ID]; ok {
			continue
		}
		snap, err := s.store.Load(ctx, sum.ID)
		if err != nil {
			return n, err
		}
		r, err := s.newRanking(snap.ID, snap.Size)
		if err != nil {
			return n, err
		}
		if _, err := restoreInto(r, snap); err != nil {
			s.logger.Warn(ctx, "skipping unreadable snapshot",
				logger.String("rankingID", sum.ID),
				logger.Error(err),
			)
			continue
		}
		s.rankings[snap.ID] = r
		n++
	}
	return n, nil
}

func (s *Service) newRanking(id string, size int) (*ranking, error) {
	var backlogOpts []source.Option
	if s.backlogLimit > 0 {
		backlogOpts = append(backlogOpts, source.WithLimit(s.backlogLimit))
	}
	backlog := source.NewBacklog(backlogOpts...)
	sess, err := session.New(size, backlog,
		session.WithID(id),
		session.WithLogger(s.logger),
		session.WithLocks(lock.NewInMemoryRegistry(lock.WithGaugeReporting(false))),
	)
	if err != nil {
		return nil, err
	}
	return &ranking{sess: sess, backlog: backlog}, nil
}

// CreateRanking adds an empty ranking, optionally seeding its backlog.
func (s *Service) CreateRanking(ctx context.Context, req CreateRequest) (RankingView, error) {
	size := req.Size
	if size == 0 {
		size = s.defaultSize
	}
	if size < 0 {
		return RankingView{}, fmt.Errorf("%w: size %d", ErrInvalidRequest, size)
	}

	s.mu.Lock()
	if req.ID != "" {
		if _, ok := s.rankings[req.ID]; ok {
			s.mu.Unlock()
			return RankingView{}, fmt.Errorf("%w: %s", ErrRankingExists, req.ID)
		}
	}
	r, err := s.newRanking(req.ID, size)
	if err != nil {
		s.mu.Unlock()
		return RankingView{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if err := r.backlog.Add(req.Items...); err != nil {
		s.mu.Unlock()
		return RankingView{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	s.rankings[r.sess.ID] = r
	s.refreshGaugesLocked()
	s.mu.Unlock()

	s.logger.Info(ctx, "ranking created",
		logger.String("rankingID", r.sess.ID),
		logger.Int("size", size),
		logger.Int("items", len(req.Items)),
	)
	s.sync(ctx, r, "create")
	return view(r), nil
}

// DeleteRanking drops a ranking from memory and from the store.
func (s *Service) DeleteRanking(ctx context.Context, id string) error {
	s.mu.Lock()
	r, ok := s.rankings[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRankingNotFound, id)
	}
	delete(s.rankings, id)
	s.refreshGaugesLocked()
	s.mu.Unlock()

	// Wait for in-flight transfers before the snapshot is removed.
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = true
	if err := s.store.Delete(ctx, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	s.logger.Info(ctx, "ranking deleted", logger.String("rankingID", id))
	return nil
}

// Rankings lists the live rankings ordered by id.
func (s *Service) Rankings(_ context.Context) []RankingView {
	s.mu.RLock()
	out := make([]RankingView, 0, len(s.rankings))
	for _, r := range s.rankings {
		out = append(out, view(r))
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Ranking returns one ranking's read model.
func (s *Service) Ranking(_ context.Context, id string) (RankingView, error) {
	r, err := s.get(id)
	if err != nil {
		return RankingView{}, err
	}
	return view(r), nil
}

// Snapshot returns the serializable state of a ranking.
func (s *Service) Snapshot(_ context.Context, id string) (model.RankingSnapshot, error) {
	r, err := s.get(id)
	if err != nil {
		return model.RankingSnapshot{}, err
	}
	return r.sess.Table.Serialize(), nil
}

// Items lists a ranking's backlog with used flags.
func (s *Service) Items(_ context.Context, id string) ([]types.BacklogEntry, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return r.backlog.List(), nil
}

// AddItems upserts items into a ranking's backlog.
func (s *Service) AddItems(ctx context.Context, id string, items []model.ItemSnapshot) ([]types.BacklogEntry, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	if err := r.backlog.Add(items...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	s.logger.Debug(ctx, "backlog items added",
		logger.String("rankingID", id),
		logger.Int("count", len(items)),
	)
	return r.backlog.List(), nil
}

// RemoveItem deletes an unused item from a ranking's backlog. It waits for
// in-flight transfers and refuses items that are locked or placed.
func (s *Service) RemoveItem(ctx context.Context, id, itemID string) error {
	r, err := s.get(id)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.live(); err != nil {
		return err
	}
	if holder, ok := r.sess.Locks.Holder(itemID); ok {
		return fmt.Errorf("%w: item %s held by %s", validation.ErrConcurrentTransfer, itemID, holder)
	}
	if p, ok := r.sess.Table.PositionOf(itemID); ok {
		return fmt.Errorf("%w: %w: %s at position %d", ErrInvalidRequest, source.ErrItemInUse, itemID, p)
	}
	if err := r.backlog.Remove(itemID); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	s.logger.Debug(ctx, "backlog item removed",
		logger.String("rankingID", id),
		logger.String("itemID", itemID),
	)
	return nil
}

// Transfer runs one operation through validate and execute. Rejections are
// reported in the result, not as an error; the error is reserved for an
// unknown ranking or a malformed request.
func (s *Service) Transfer(ctx context.Context, id string, req TransferRequest) (transfer.Result, error) {
	r, err := s.get(id)
	if err != nil {
		return transfer.Result{}, err
	}
	op, err := buildOp(r.sess, req)
	if err != nil {
		return transfer.Result{}, err
	}

	r.mu.RLock()
	if err := r.live(); err != nil {
		r.mu.RUnlock()
		return transfer.Result{}, err
	}
	res := transfer.Run(ctx, op)
	r.mu.RUnlock()

	if !res.Success {
		s.rejected.Add(1)
		return res, nil
	}
	s.succeeded.Add(1)
	s.refreshGauges()
	s.sync(ctx, r, string(res.Kind))
	return res, nil
}

func buildOp(sess *session.Session, req TransferRequest) (*transfer.Op, error) {
	kind, err := validation.ParseKind(req.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	src, err := model.ParseSource(req.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	opts := []transfer.Option{transfer.WithSource(src)}
	if req.Matched != nil {
		opts = append(opts, transfer.WithMatched(*req.Matched))
	}
	if req.Overwrite {
		opts = append(opts, transfer.WithOverwrite())
	}
	if req.ItemID != "" && kind != validation.KindAssign {
		opts = append(opts, transfer.WithItem(req.ItemID))
	}

	need := func(p *int, name string) (int, error) {
		if p == nil {
			return 0, fmt.Errorf("%w: %s requires %s", ErrInvalidRequest, kind, name)
		}
		return *p, nil
	}
	switch kind {
	case validation.KindAssign:
		if req.ItemID == "" {
			return nil, fmt.Errorf("%w: assign requires item_id", ErrInvalidRequest)
		}
		to := validation.AutoPosition
		if req.To != nil {
			to = *req.To
		}
		return transfer.NewAssign(sess, req.ItemID, to, opts...), nil
	case validation.KindMove, validation.KindSwap:
		from, err := need(req.From, "from")
		if err != nil {
			return nil, err
		}
		to, err := need(req.To, "to")
		if err != nil {
			return nil, err
		}
		if kind == validation.KindMove {
			return transfer.NewMove(sess, from, to, opts...), nil
		}
		return transfer.NewSwap(sess, from, to, opts...), nil
	default:
		from, err := need(req.From, "from")
		if err != nil {
			return nil, err
		}
		return transfer.NewRemove(sess, from, opts...), nil
	}
}

// Suggest scores drop targets for the pointer state against the ranking's
// current occupancy.
func (s *Service) Suggest(_ context.Context, id string, req SuggestRequest) (magnet.Result, error) {
	r, err := s.get(id)
	if err != nil {
		return magnet.Result{}, err
	}
	start := time.Now()
	res := s.scorer.Score(magnet.Input{
		Pointer:  req.Pointer,
		Velocity: req.Velocity,
		Slots:    req.Slots,
		Columns:  req.Columns,
		Occupied: r.sess.Table.Occupied(),
	})
	metrics.RecordSuggestion(len(res.Candidates), float64(time.Since(start).Microseconds())/1000)
	return res, nil
}

// ExportTiers groups the ranking into tiers.
func (s *Service) ExportTiers(_ context.Context, id string, cfg views.TierConfig) ([]views.TierGroup, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	groups, err := views.ToTiers(r.sess.Table, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return groups, nil
}

// ImportTiers rewrites the tier-covered positions from groups as one unit.
func (s *Service) ImportTiers(ctx context.Context, id string, cfg views.TierConfig, groups []views.TierGroup) (RankingView, error) {
	r, err := s.get(id)
	if err != nil {
		return RankingView{}, err
	}
	r.mu.RLock()
	if err = r.live(); err == nil {
		_, err = views.FromTiers(ctx, r.sess, cfg, groups)
	}
	r.mu.RUnlock()
	if errors.Is(err, ErrRankingNotFound) {
		return RankingView{}, err
	}
	if err != nil {
		return RankingView{}, s.importError(ctx, id, "tiers", err)
	}
	s.refreshGauges()
	s.sync(ctx, r, "tier_import")
	return view(r), nil
}

// ExportBracket seeds a bracket from the ranking.
func (s *Service) ExportBracket(_ context.Context, id string, cfg views.BracketConfig) (views.Bracket, error) {
	r, err := s.get(id)
	if err != nil {
		return views.Bracket{}, err
	}
	b, err := views.ToBracket(r.sess.Table, cfg)
	if err != nil {
		return views.Bracket{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return b, nil
}

// ImportBracket writes final standings back onto the ranking.
func (s *Service) ImportBracket(ctx context.Context, id string, st views.Standings) (RankingView, error) {
	r, err := s.get(id)
	if err != nil {
		return RankingView{}, err
	}
	r.mu.RLock()
	if err = r.live(); err == nil {
		_, err = views.FromBracket(ctx, r.sess, st)
	}
	r.mu.RUnlock()
	if errors.Is(err, ErrRankingNotFound) {
		return RankingView{}, err
	}
	if err != nil {
		return RankingView{}, s.importError(ctx, id, "bracket", err)
	}
	s.refreshGauges()
	s.sync(ctx, r, "bracket_import")
	return view(r), nil
}

func (s *Service) importError(ctx context.Context, id, kind string, err error) error {
	s.logger.Warn(ctx, "import rejected",
		logger.String("rankingID", id),
		logger.String("view", kind),
		logger.Error(err),
	)
	if errors.Is(err, views.ErrImportFailed) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
}

// Restore replaces a ranking's table with snap and realigns backlog used
// flags with it. Items the backlog lacks are added from the snapshot.
func (s *Service) Restore(ctx context.Context, id string, snap model.RankingSnapshot) (RestoreResult, error) {
	r, err := s.get(id)
	if err != nil {
		return RestoreResult{}, err
	}
	snap.ID = id

	r.mu.Lock()
	if err := r.live(); err != nil {
		r.mu.Unlock()
		return RestoreResult{}, err
	}
	added, err := restoreInto(r, snap)
	r.mu.Unlock()
	if err != nil {
		return RestoreResult{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	s.refreshGauges()
	s.sync(ctx, r, "restore")
	s.logger.Info(ctx, "ranking restored",
		logger.String("rankingID", id),
		logger.Int("assignments", len(snap.Assignments)),
		logger.Int("added", len(added)),
	)
	return RestoreResult{ID: id, Occupied: r.sess.Table.OccupiedCount(), Added: added}, nil
}

// restoreInto must run with r.mu held exclusively or before r is published.
// A snapshot the table would refuse leaves both table and backlog untouched.
func restoreInto(r *ranking, snap model.RankingSnapshot) ([]string, error) {
	scratch, err := positions.New(r.sess.Table.Size())
	if err != nil {
		return nil, err
	}
	if err := scratch.Deserialize(snap); err != nil {
		return nil, err
	}

	ranked := make([]string, 0, len(snap.Assignments))
	var missing []model.ItemSnapshot
	for _, a := range snap.Assignments {
		ranked = append(ranked, a.Item.ID)
		if _, ok := r.backlog.GetItemByID(a.Item.ID); !ok {
			missing = append(missing, a.Item)
		}
	}
	added := make([]string, 0, len(missing))
	for _, it := range missing {
		added = append(added, it.ID)
	}
	if len(missing) > 0 {
		if err := r.backlog.Add(missing...); err != nil {
			return nil, err
		}
	}
	if err := r.sess.Table.Deserialize(snap); err != nil {
		for _, id := range added {
			_ = r.backlog.Remove(id)
		}
		return nil, err
	}
	r.backlog.Reconcile(ranked)
	return added, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	occupied, slots, locks := 0, 0, int64(0)
	for _, r := range s.rankings {
		occupied += r.sess.Table.OccupiedCount()
		slots += r.sess.Table.Size()
		locks += r.sess.Locks.Size()
	}
	stats := map[string]any{
		"started":             s.started,
		"rankings":            len(s.rankings),
		"positions":           slots,
		"occupied_positions":  occupied,
		"locks_held":          locks,
		"transfers_succeeded": s.succeeded.Load(),
		"transfers_rejected":  s.rejected.Load(),
		"sync_dropped":        s.syncDrops.Load(),
		"stored_rankings":     s.store.Count(ctx),
	}
	if s.started {
		stats["queue_length"] = s.queue.Len()
		stats["workers"] = s.pool.Size()
		stats["snapshots_synced"] = s.pool.Processed()
		stats["snapshots_failed"] = s.pool.Failed()
	}
	return stats
}

func (s *Service) get(id string) (*ranking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rankings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRankingNotFound, id)
	}
	return r, nil
}

// sync hands the current snapshot to the persistence workers. A full queue
// drops the request; the next mutation carries a newer snapshot anyway.
func (s *Service) sync(ctx context.Context, r *ranking, reason string) {
	s.mu.RLock()
	q := s.queue
	started := s.started
	s.mu.RUnlock()
	if !started {
		return
	}
	e := model.SyncEvent{
		SessionID:  r.sess.ID,
		Snapshot:   r.sess.Table.Serialize(),
		Reason:     reason,
		EnqueuedAt: time.Now(),
	}
	if err := q.Enqueue(context.WithoutCancel(ctx), e); err != nil {
		s.syncDrops.Add(1)
		s.logger.Warn(ctx, "snapshot sync dropped",
			logger.String("rankingID", r.sess.ID),
			logger.String("reason", reason),
			logger.Error(err),
		)
	}
}

func (s *Service) refreshGauges() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	s.refreshGaugesLocked()
}

func (s *Service) refreshGaugesLocked() {
	occupied := 0
	var locks int64
	for _, r := range s.rankings {
		occupied += r.sess.Table.OccupiedCount()
		locks += r.sess.Locks.Size()
	}
	metrics.UpdateActiveSessions(len(s.rankings))
	metrics.UpdateOccupiedPositions(occupied)
	metrics.UpdateLocksHeld(int(locks))
}

func view(r *ranking) RankingView {
	snap := r.sess.Table.Serialize()
	return RankingView{
		ID:        snap.ID,
		Size:      snap.Size,
		Occupied:  len(snap.Assignments),
		Entries:   types.EntriesFromSnapshot(snap),
		CreatedAt: snap.CreatedAt,
		UpdatedAt: snap.UpdatedAt,
	}
}
