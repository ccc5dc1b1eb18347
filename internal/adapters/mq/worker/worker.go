package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/podium/internal/adapters/mq/queue"
	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/pkg/logger"
	"github.com/okian/podium/pkg/metrics"
)

const (
	defaultAttempts     = 3
	retryBackoff        = 20 * time.Millisecond
	poolShutdownTimeout = 30 * time.Second
)

// Saver stores a snapshot. It reports false when a newer one was kept.
type Saver interface {
	Save(ctx context.Context, snap model.RankingSnapshot) (bool, error)
}

// Queue defines how workers receive events.
type Queue interface {
	Dequeue() <-chan queue.Event
}

// InMemoryWorker drains sync events into a Saver.
type InMemoryWorker struct {
	queue    Queue
	saver    Saver
	name     string
	attempts int

	processed atomic.Int64
	failed    atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from q.
func NewInMemoryWorker(q Queue, saver Saver, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		saver:    saver,
		name:     "worker",
		attempts: defaultAttempts,
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes events until the queue channel closes or ctx is cancelled.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	events := w.queue.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, e); err != nil {
				w.logger.Error(ctx, "snapshot sync failed",
					logger.String("rankingID", e.SessionID),
					logger.String("reason", e.Reason),
					logger.Error(err),
				)
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

// Processed returns the number of events handled, failed ones included.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

// Failed returns the number of events whose snapshot could not be stored.
func (w *InMemoryWorker) Failed() int64 { return w.failed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, e queue.Event) error { //nolint:gocritic // hugeParam: received by value from the channel
	defer w.processed.Add(1)

	start := time.Now()
	var err error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		var stored bool
		stored, err = w.saver.Save(ctx, e.Snapshot)
		if err == nil {
			outcome := "stored"
			if !stored {
				outcome = "stale"
			}
			metrics.RecordSnapshotSave(outcome, float64(time.Since(start).Milliseconds()))
			w.logger.Debug(ctx, "snapshot synced",
				logger.String("rankingID", e.SessionID),
				logger.String("outcome", outcome),
				logger.Duration("lag", time.Since(e.EnqueuedAt)),
			)
			return nil
		}
		if attempt < w.attempts {
			select {
			case <-ctx.Done():
				attempt = w.attempts
			case <-time.After(retryBackoff * time.Duration(attempt)):
			}
		}
	}

	w.failed.Add(1)
	metrics.RecordSnapshotSaveError()
	metrics.RecordErrorByComponent("worker", "snapshot_save")
	return fmt.Errorf("saving snapshot %s: %w", e.SessionID, err)
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	active  atomic.Int64
	logger  logger.Logger
}

// NewPool creates workerCount workers. Zero or less means one per CPU.
func NewPool(workerCount int, q Queue, saver Saver, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Nop(),
	}
	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)))
		pool.workers[i] = NewInMemoryWorker(q, saver, wopts...)
	}
	base := &InMemoryWorker{logger: logger.Nop()}
	for _, opt := range opts {
		opt(base)
	}
	pool.logger = base.logger.Named("worker-pool")
	return pool
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		metrics.UpdateWorkerActiveCount(int(p.active.Add(1)))
		go func(w *InMemoryWorker) {
			defer func() { metrics.UpdateWorkerActiveCount(int(p.active.Add(-1))) }()
			w.Run(ctx)
		}(w)
	}
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed sums the events handled by all workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Failed sums the events no worker could store.
func (p *Pool) Failed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Failed()
	}
	return n
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.Done():
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("workerID", i))
			return fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
		}
	}
	return nil
}
