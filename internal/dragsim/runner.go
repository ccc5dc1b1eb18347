package dragsim

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	service "github.com/okian/podium/internal/app"
	"github.com/okian/podium/internal/domain/transfer"
	"github.com/okian/podium/internal/domain/types"
	"github.com/okian/podium/pkg/logger"
)

const percentageMultiplier = 100

// Runner drives one simulation against a podium server.
type Runner struct {
	cfg    Config
	client *client
	log    logger.Logger
}

// NewRunner validates cfg and creates a Runner.
func NewRunner(cfg Config, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Runner{
		cfg:    cfg,
		client: newClient(cfg.BaseURL, cfg.Timeout),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run creates a ranking seeded with the configured items, fires the drags
// concurrently and checks the final state. Rejected drags are expected; only
// transport failures, unexpected statuses and an inconsistent ranking are
// errors.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	start := time.Now()
	stats := &Stats{Codes: make(map[string]int)}

	r.log.Info(ctx, "starting drag simulation",
		logger.String("baseURL", r.cfg.BaseURL),
		logger.Int("size", r.cfg.Size),
		logger.Int("items", r.cfg.Items),
		logger.Int("drags", r.cfg.Drags),
		logger.Int("workers", r.cfg.Workers),
		logger.Any("seed", r.cfg.Seed))

	if _, err := r.client.do(ctx, http.MethodGet, "/healthz", nil, nil, http.StatusOK); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}

	items := Items(r.cfg.Items)
	var created service.RankingView
	req := service.CreateRequest{ID: r.cfg.RankingID, Size: r.cfg.Size, Items: items}
	if _, err := r.client.do(ctx, http.MethodPost, "/rankings", req, &created, http.StatusCreated); err != nil {
		return nil, fmt.Errorf("create ranking: %w", err)
	}
	stats.RankingID = created.ID

	drags := Generate(r.cfg.Seed, r.cfg.Drags, r.cfg.Size, items)
	if err := r.submit(ctx, created.ID, drags, stats); err != nil {
		return stats, err
	}

	occupied, used, err := r.verify(ctx, created.ID)
	stats.Occupied, stats.Used = occupied, used
	stats.Duration = time.Since(start)
	r.report(ctx, stats)
	if err != nil {
		return stats, err
	}
	r.log.Info(ctx, "ranking verified", logger.String("rankingID", created.ID))
	return stats, nil
}

// submit sends every drag with at most Workers in flight.
func (r *Runner) submit(ctx context.Context, id string, drags []service.TransferRequest, stats *Stats) error {
	var (
		submitted atomic.Int64
		succeeded atomic.Int64
		rejected  atomic.Int64
		locked    atomic.Int64
		failed    atomic.Int64
		mu        sync.Mutex
	)
	path := rankingPath(id, "transfers")

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, d := range drags {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			var res transfer.Result
			status, err := r.client.do(gctx, http.MethodPost, path, d, &res,
				http.StatusOK, http.StatusConflict, http.StatusLocked, http.StatusInternalServerError)
			submitted.Add(1)
			if err != nil {
				failed.Add(1)
				r.log.Warn(gctx, "transfer request failed", logger.String("kind", d.Kind), logger.Error(err))
				return nil
			}
			switch status {
			case http.StatusOK:
				succeeded.Add(1)
				return nil
			case http.StatusLocked:
				locked.Add(1)
			case http.StatusConflict:
				rejected.Add(1)
			default:
				failed.Add(1)
			}
			mu.Lock()
			stats.Codes[string(res.Code)]++
			mu.Unlock()
			if r.cfg.Verbose {
				r.log.Info(gctx, "transfer rejected",
					logger.String("kind", d.Kind),
					logger.String("code", string(res.Code)),
					logger.String("message", res.Message))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.Submitted = int(submitted.Load())
	stats.Succeeded = int(succeeded.Load())
	stats.Rejected = int(rejected.Load())
	stats.Locked = int(locked.Load())
	stats.Failed = int(failed.Load())
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("submitting drags: %w", err)
	}
	return nil
}

// verify fetches the ranking and its backlog and runs Check on them.
func (r *Runner) verify(ctx context.Context, id string) (occupied, used int, err error) {
	var v service.RankingView
	if _, err := r.client.do(ctx, http.MethodGet, rankingPath(id), nil, &v, http.StatusOK); err != nil {
		return 0, 0, fmt.Errorf("fetch ranking: %w", err)
	}
	var backlog []types.BacklogEntry
	if _, err := r.client.do(ctx, http.MethodGet, rankingPath(id, "items"), nil, &backlog, http.StatusOK); err != nil {
		return 0, 0, fmt.Errorf("fetch items: %w", err)
	}
	for _, e := range backlog {
		if e.Used {
			used++
		}
	}
	return len(v.Entries), used, Check(v, backlog)
}

func (r *Runner) report(ctx context.Context, stats *Stats) {
	var successRate, dragsPerSecond float64
	if stats.Submitted > 0 {
		successRate = float64(stats.Succeeded) / float64(stats.Submitted) * percentageMultiplier
	}
	if stats.Duration > 0 {
		dragsPerSecond = float64(stats.Submitted) / stats.Duration.Seconds()
	}
	r.log.Info(ctx, "final statistics",
		logger.String("rankingID", stats.RankingID),
		logger.Int("submitted", stats.Submitted),
		logger.Int("succeeded", stats.Succeeded),
		logger.Int("rejected", stats.Rejected),
		logger.Int("locked", stats.Locked),
		logger.Int("failed", stats.Failed),
		logger.Any("codes", stats.Codes),
		logger.Int("occupied", stats.Occupied),
		logger.Int("used", stats.Used),
		logger.Duration("duration", stats.Duration),
		logger.Float64("successRate", successRate),
		logger.Float64("dragsPerSecond", dragsPerSecond))
}
