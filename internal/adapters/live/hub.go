// Package live pushes fresh leaderboard snapshots to subscribers whenever
// an entry lands in a view they follow.
package live

import (
	"context"
	"fmt"
	"sync"

	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/ranking"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

// Querier reads leaderboard views.
type Querier interface {
	Query(ctx context.Context, q repository.Query) ([]model.Entry, error)
}

type subscription struct {
	q  repository.Query
	ch chan []model.Ranked
}

// Hub fans out snapshots to subscribers. Slow subscribers only ever hold
// the latest snapshot.
type Hub struct {
	store  Querier
	logger logger.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
}

// NewHub creates a hub reading views from store.
func NewHub(store Querier, log logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{store: store, logger: log, subs: make(map[uint64]*subscription)}
}

// Snapshot reads a de-duplicated, ranked view.
func Snapshot(ctx context.Context, store Querier, q repository.Query) ([]model.Ranked, error) {
	q.Distinct = true
	entries, err := store.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	return ranking.Top(ranking.DedupeByUser(entries), q.Limit), nil
}

// Subscribe registers interest in a view. The first snapshot is delivered
// immediately. The subscription ends when ctx is done or cancel is called.
func (h *Hub) Subscribe(ctx context.Context, q repository.Query) (<-chan []model.Ranked, func(), error) {
	q, err := q.Normalize()
	if err != nil {
		return nil, nil, err
	}
	first, err := Snapshot(ctx, h.store, q)
	if err != nil {
		return nil, nil, fmt.Errorf("initial snapshot: %w", err)
	}

	sub := &subscription{q: q, ch: make(chan []model.Ranked, 1)}
	sub.ch <- first

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	n := len(h.subs)
	h.mu.Unlock()
	metrics.UpdateLiveSubscribers(n)

	var once sync.Once
	stop := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			n := len(h.subs)
			close(sub.ch)
			h.mu.Unlock()
			close(stop)
			metrics.UpdateLiveSubscribers(n)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()
	return sub.ch, cancel, nil
}

// Notify re-reads every view that e belongs to and pushes the result.
// Views shared by several subscribers are read once.
func (h *Hub) Notify(ctx context.Context, e model.Entry) {
	h.mu.Lock()
	targets := make(map[uint64]*subscription)
	for id, s := range h.subs {
		if s.q.Matches(e) {
			targets[id] = s
		}
	}
	h.mu.Unlock()
	if len(targets) == 0 {
		return
	}

	snapshots := make(map[repository.Query][]model.Ranked)
	for id, s := range targets {
		snap, ok := snapshots[s.q]
		if !ok {
			var err error
			snap, err = Snapshot(ctx, h.store, s.q)
			if err != nil {
				h.logger.Warn(ctx, "live snapshot failed", logger.String("bucket", s.q.Bucket()), logger.Error(err))
				continue
			}
			snapshots[s.q] = snap
		}
		h.deliver(id, snap)
	}
}

// deliver replaces any unread snapshot with snap.
func (h *Hub) deliver(id uint64, snap []model.Ranked) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.subs[id]
	if !ok {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	s.ch <- snap
	metrics.RecordLiveSnapshotSent()
}

// Subscribers is the number of open subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
