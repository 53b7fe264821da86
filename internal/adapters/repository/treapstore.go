package repository

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/ranking"
	"github.com/okian/flaggy/pkg/metrics"
)

// In-memory Store built from one treap per bucket.
//
// Ordering follows ranking.Compare: score DESC, averageTime ASC, id ASC.
// "Less" means ranks earlier, so an in-order walk yields the leaderboard
// from best to worst and a top-N read stops after N nodes.

type node struct {
	entry model.Entry
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

// insert places e in the subtree; ties on every key cannot happen because
// ids are unique.
func insert(n *node, e model.Entry, prio uint64) *node {
	if n == nil {
		return &node{entry: e, prio: prio, size: 1}
	}
	if ranking.Less(e, n.entry) {
		n.left = insert(n.left, e, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, e, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

// walk visits entries in rank order until visit returns false.
func walk(n *node, visit func(model.Entry) bool) bool {
	if n == nil {
		return true
	}
	if !walk(n.left, visit) {
		return false
	}
	if !visit(n.entry) {
		return false
	}
	return walk(n.right, visit)
}

// rankOf returns the 1-based position of e within the subtree.
func rankOf(n *node, e model.Entry) int {
	rank := 0
	for n != nil {
		switch c := ranking.Compare(e, n.entry); {
		case c < 0:
			n = n.left
		case c > 0:
			rank += nsize(n.left) + 1
			n = n.right
		default:
			return rank + nsize(n.left) + 1
		}
	}
	return 0
}

// TreapStore is the default, process-local Store.
type TreapStore struct {
	mu      sync.RWMutex
	byID    map[string]model.Entry
	buckets map[string]*node
	rng     *rand.Rand
	seed    uint64

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewTreapStore constructs a treap store and starts its metrics updater,
// which stops when ctx is done or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]model.Entry),
		buckets:               make(map[string]*node),
		metricsUpdateInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seed == 0 {
		s.seed = rand.Uint64()
	}
	s.rng = rand.New(rand.NewPCG(s.seed, s.seed>>1|1)) //nolint:gosec // tree balancing only

	s.stopChan = make(chan struct{})
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics updater.
func (s *TreapStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Insert implements Store.Insert in O(log n) expected time per bucket.
func (s *TreapStore) Insert(_ context.Context, e model.Entry) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryInsertLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	if e.ID == "" || e.Difficulty == "" {
		metrics.RecordErrorByComponent("repository", "invalid_entry")
		return fmt.Errorf("%w: id and difficulty are required", ErrInvalidEntry)
	}

	s.mu.Lock()
	if _, ok := s.byID[e.ID]; ok {
		s.mu.Unlock()
		metrics.RecordErrorByComponent("repository", "duplicate")
		return fmt.Errorf("%w: %s", ErrDuplicate, e.ID)
	}
	s.byID[e.ID] = e
	prio := s.rng.Uint64()
	for _, b := range Buckets(e) {
		s.buckets[b] = insert(s.buckets[b], e, prio)
	}
	s.mu.Unlock()
	return nil
}

// Query implements Store.Query; it walks only the requested bucket.
func (s *TreapStore) Query(_ context.Context, q Query) ([]model.Entry, error) {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	q, err := q.Normalize()
	if err != nil {
		metrics.RecordErrorByComponent("repository", "invalid_query")
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	app := newAppender(q)
	walk(s.buckets[q.Bucket()], app.add)
	return app.out, nil
}

// Position returns the 1-based rank of an entry within the view of q, or 0
// when the entry is not part of it. Duplicate players are not collapsed.
func (s *TreapStore) Position(_ context.Context, q Query, id string) (int, error) {
	q, err := q.Normalize()
	if err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok || !q.Matches(e) {
		return 0, nil
	}
	return rankOf(s.buckets[q.Bucket()], e), nil
}

// Count returns the total number of entries.
func (s *TreapStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				metrics.UpdateRepositoryRecordsTotal(s.Count(ctx))
			}
		}
	}()
}
