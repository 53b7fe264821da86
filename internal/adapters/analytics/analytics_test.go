package analytics_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/flaggy/internal/adapters/analytics"
)

type captured struct {
	Event      string         `json:"event"`
	DistinctID string         `json:"distinct_id"`
	Properties map[string]any `json:"properties"`
}

type batch struct {
	APIKey string     `json:"api_key"`
	Batch  []captured `json:"batch"`
}

func TestPostHogSink(t *testing.T) {
	Convey("Given a batch endpoint", t, func() {
		var (
			mu    sync.Mutex
			got   []captured
			key   string
			paths []string
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var b batch
			_ = json.NewDecoder(r.Body).Decode(&b)
			mu.Lock()
			got = append(got, b.Batch...)
			key = b.APIKey
			paths = append(paths, r.URL.Path)
			mu.Unlock()
		}))
		defer srv.Close()

		sink, err := analytics.NewPostHogSink("phc_key", srv.URL, analytics.WithInterval(20*time.Millisecond))
		So(err, ShouldBeNil)

		Convey("When events are captured and the sink closed", func() {
			ctx := context.Background()
			sink.Capture(ctx, analytics.Event{Name: analytics.GameStarted, DistinctID: "u1", Properties: map[string]any{"difficulty": "hard"}})
			sink.Capture(ctx, analytics.Event{Name: analytics.FlagGuessed, DistinctID: "u1", Properties: map[string]any{"isCorrect": true}})
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			So(sink.Close(cctx), ShouldBeNil)

			Convey("Then every event is delivered with the key", func() {
				mu.Lock()
				defer mu.Unlock()
				So(got, ShouldHaveLength, 2)
				So(paths[0], ShouldEqual, "/batch/")
				So(key, ShouldEqual, "phc_key")
				So(got[0].Event, ShouldEqual, "game_started")
				So(got[0].DistinctID, ShouldEqual, "u1")
				So(got[0].Properties["difficulty"], ShouldEqual, "hard")
				So(got[1].Properties["isCorrect"], ShouldEqual, true)
			})

			Convey("And later captures are dropped quietly", func() {
				sink.Capture(ctx, analytics.Event{Name: analytics.RegionChanged})
				So(sink.Close(ctx), ShouldBeNil)
			})
		})
	})

	Convey("Given a stalled endpoint", t, func() {
		release := make(chan struct{})
		srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			<-release
		}))
		defer srv.Close()
		sink, err := analytics.NewPostHogSink("k", srv.URL, analytics.WithBatchSize(1))
		So(err, ShouldBeNil)

		Convey("Then capture never waits on delivery", func() {
			start := time.Now()
			for i := 0; i < 50; i++ {
				sink.Capture(context.Background(), analytics.Event{Name: analytics.FlagGuessed, DistinctID: "u2"})
			}
			So(time.Since(start), ShouldBeLessThan, time.Second)
			close(release)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(sink.Close(ctx), ShouldBeNil)
		})
	})
}

func TestNew(t *testing.T) {
	Convey("Given no api key", t, func() {
		sink := analytics.New("", "", nil)

		Convey("Then a no-op sink is used", func() {
			_, ok := sink.(*analytics.NopSink)
			So(ok, ShouldBeTrue)
			sink.Capture(context.Background(), analytics.Event{Name: analytics.GameStarted})
			So(sink.Close(context.Background()), ShouldBeNil)
		})
	})

	Convey("Given an api key", t, func() {
		sink := analytics.New("phc_key", "http://127.0.0.1:1", nil)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = sink.Close(ctx)
		}()

		Convey("Then events go to PostHog", func() {
			_, ok := sink.(*analytics.PostHogSink)
			So(ok, ShouldBeTrue)
		})
	})
}
