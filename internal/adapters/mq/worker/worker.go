// Package worker drains the submission queue into the leaderboard store
// and tells live subscribers about every new entry.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/scoring"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Inserter persists stamped entries.
type Inserter interface {
	Insert(ctx context.Context, e model.Entry) error
}

// Notifier is told about every persisted entry.
type Notifier interface {
	Notify(ctx context.Context, e model.Entry)
}

// Queue defines how workers receive submissions.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Submission
}

// InMemoryWorker processes submissions one at a time.
type InMemoryWorker struct {
	queue    Queue
	store    Inserter
	notifier Notifier
	name     string
	now      func() time.Time
	logger   logger.Logger
	done     chan struct{}
}

// NewInMemoryWorker creates a worker. notifier may be nil.
func NewInMemoryWorker(queue Queue, store Inserter, notifier Notifier, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		store:    store,
		notifier: notifier,
		name:     "worker",
		now:      time.Now,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = logger.Get().Named(w.name)
	}
	return w
}

// Run consumes submissions until the queue is closed and drained or ctx
// is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)
	for s := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, s); err != nil {
			w.logger.Error(ctx, "submission not recorded", logger.String("submission_id", s.ID), logger.Error(err))
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

func (w *InMemoryWorker) process(ctx context.Context, s model.Submission) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	e := scoring.Stamp(s, w.now())
	if err := w.store.Insert(ctx, e); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.RecordSubmissionDuplicate()
			w.logger.Debug(ctx, "duplicate submission ignored", logger.String("submission_id", s.ID))
			return nil
		}
		metrics.RecordSubmissionFailed()
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "insert")
		return fmt.Errorf("insert entry %s: %w", s.ID, err)
	}

	if w.notifier != nil {
		w.notifier.Notify(ctx, e)
	}
	w.logger.Debug(ctx, "submission recorded",
		logger.String("submission_id", e.ID),
		logger.String("uid", e.UID),
		logger.Int("score", e.Score),
		logger.String("difficulty", e.Difficulty),
	)
	return nil
}

// Pool runs a fixed set of workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
	wg      sync.WaitGroup
}

// NewPool creates workerCount workers; < 1 means one per CPU.
func NewPool(workerCount int, queue Queue, store Inserter, notifier Notifier, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(queue, store, notifier, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Shutdown closes the queue so workers drain what is buffered, then waits
// for them or for ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		metrics.UpdateWorkerCount(0)
		return nil
	case <-ctx.Done():
		p.logger.Warn(ctx, "worker shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}
