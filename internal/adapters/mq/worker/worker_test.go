package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/adapters/mq/queue"
	"github.com/okian/flaggy/internal/adapters/mq/worker"
	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/model"
	logging "github.com/okian/flaggy/pkg/logger"
)

type mockStore struct {
	mu      sync.Mutex
	entries []model.Entry
	fail    map[string]error
}

func (m *mockStore) Insert(_ context.Context, e model.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[e.ID]; err != nil {
		return err
	}
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockStore) snapshot() []model.Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Entry(nil), m.entries...)
}

type mockNotifier struct {
	mu   sync.Mutex
	seen []string
}

func (m *mockNotifier) Notify(_ context.Context, e model.Entry) {
	m.mu.Lock()
	m.seen = append(m.seen, e.ID)
	m.mu.Unlock()
}

func (m *mockNotifier) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.seen)
}

var fixedNow = time.Date(2024, time.March, 5, 9, 30, 0, 0, time.UTC)

func TestWorker(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a worker over a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		store := &mockStore{fail: map[string]error{
			"dup":    fmt.Errorf("wrapped: %w", repository.ErrDuplicate),
			"broken": errors.New("disk on fire"),
		}}
		notifier := &mockNotifier{}
		w := worker.NewInMemoryWorker(q, store, notifier, worker.WithNow(func() time.Time { return fixedNow }))

		convey.Convey("When submissions are processed", func() {
			ctx := context.Background()
			_ = q.Enqueue(ctx, model.Submission{ID: "ok", UID: "u1", Score: 7, Accuracy: 77.77, AverageTime: 2.04, Difficulty: "medium", Country: "ng"})
			_ = q.Enqueue(ctx, model.Submission{ID: "dup", UID: "u1", Difficulty: "medium"})
			_ = q.Enqueue(ctx, model.Submission{ID: "broken", UID: "u2", Difficulty: "medium"})
			_ = q.Close()
			w.Run(ctx)

			convey.Convey("Then good submissions are stamped and stored", func() {
				got := store.snapshot()
				convey.So(got, convey.ShouldHaveLength, 1)
				convey.So(got[0].ID, convey.ShouldEqual, "ok")
				convey.So(got[0].Country, convey.ShouldEqual, "NG")
				convey.So(got[0].Accuracy, convey.ShouldEqual, 77.8)
				convey.So(got[0].DayID, convey.ShouldEqual, "2024-03-05")
				convey.So(got[0].DisplayName, convey.ShouldEqual, "Anonymous")
			})

			convey.Convey("And only stored entries are announced", func() {
				convey.So(notifier.count(), convey.ShouldEqual, 1)
			})

			convey.Convey("And the worker stops once the queue drains", func() {
				select {
				case <-w.Done():
				default:
					convey.So("worker still running", convey.ShouldBeEmpty)
				}
			})
		})
	})
}

func TestPool(t *testing.T) {
	_ = logging.Init()

	convey.Convey("Given a pool of four workers", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		store := &mockStore{}
		notifier := &mockNotifier{}
		p := worker.NewPool(4, q, store, notifier)
		ctx := context.Background()
		p.Start(ctx)

		convey.Convey("When many submissions arrive and the pool shuts down", func() {
			for i := 0; i < 200; i++ {
				convey.So(q.Enqueue(ctx, model.Submission{ID: fmt.Sprintf("s%03d", i), UID: "u", Difficulty: "hard"}), convey.ShouldBeNil)
			}
			err := p.Shutdown(ctx)

			convey.Convey("Then every buffered submission is drained first", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(store.snapshot(), convey.ShouldHaveLength, 200)
				convey.So(notifier.count(), convey.ShouldEqual, 200)
				convey.So(q.IsClosed(), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool whose context is cancelled", t, func() {
		q := queue.NewInMemoryQueue()
		p := worker.NewPool(2, q, &mockStore{}, nil)
		ctx, cancel := context.WithCancel(context.Background())
		p.Start(ctx)
		cancel()

		convey.Convey("Then shutdown still returns promptly", func() {
			sctx, scancel := context.WithTimeout(context.Background(), time.Second)
			defer scancel()
			convey.So(p.Shutdown(sctx), convey.ShouldBeNil)
		})
	})
}
