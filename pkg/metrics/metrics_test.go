package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithRegistry(registry))

			Convey("Then it uses the flaggy namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "flaggy")
				So(manager.subsystem, ShouldEqual, "quiz")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test_namespace"),
				WithSubsystem("test_subsystem"),
				WithMetricPrefix("test_prefix"),
				WithLatencyBuckets([]float64{0.1, 0.5, 1.0}),
				WithAnswerBuckets([]float64{1, 2}),
				WithInstance("replica-a"),
				WithRegistry(registry),
			)

			Convey("Then the options are applied", func() {
				So(manager.namespace, ShouldEqual, "test_namespace")
				So(manager.subsystem, ShouldEqual, "test_subsystem")
				So(manager.latencyBuckets, ShouldResemble, []float64{0.1, 0.5, 1.0})
				So(manager.answerBuckets, ShouldResemble, []float64{1, 2})
				So(manager.constLabels["instance"], ShouldEqual, "replica-a")
			})

			Convey("And the collectors are registered under the prefix", func() {
				manager.questionsServed.Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				var found bool
				for _, f := range families {
					if f.GetName() == "test_namespace_test_subsystem_test_prefix_questions_served_total" {
						found = true
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty option values are given", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithNamespace(""), WithSubsystem(""), WithLatencyBuckets(nil), WithRegistry(registry))

			Convey("Then the defaults survive", func() {
				So(manager.namespace, ShouldEqual, "flaggy")
				So(manager.subsystem, ShouldEqual, "quiz")
				So(manager.latencyBuckets, ShouldResemble, prometheus.DefBuckets)
			})
		})
	})
}

func TestGameplayMetrics(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When games start", func() {
			before := testutil.ToFloat64(globalManager.gamesStarted.WithLabelValues("hard"))
			RecordGameStarted("hard")
			RecordGameStarted("hard")

			Convey("Then the per-difficulty counter grows", func() {
				So(testutil.ToFloat64(globalManager.gamesStarted.WithLabelValues("hard"))-before, ShouldEqual, 2)
			})
		})

		Convey("When guesses resolve", func() {
			before := testutil.ToFloat64(globalManager.guesses.WithLabelValues("beginner", "timeout"))
			RecordGuess("beginner", "timeout", 15*time.Second)

			Convey("Then the outcome counter grows", func() {
				So(testutil.ToFloat64(globalManager.guesses.WithLabelValues("beginner", "timeout"))-before, ShouldEqual, 1)
			})
		})

		Convey("When gauges are set", func() {
			UpdateActiveSessions(7)
			UpdateLiveSubscribers(3)

			Convey("Then they report the last value", func() {
				So(testutil.ToFloat64(globalManager.activeSessions), ShouldEqual, 7)
				So(testutil.ToFloat64(globalManager.liveSubscribers), ShouldEqual, 3)
			})
		})

		Convey("When cycles complete", func() {
			before := testutil.ToFloat64(globalManager.cyclesCompleted.WithLabelValues("medium", "true"))
			RecordCycleCompleted("medium", true)

			Convey("Then the passed label is recorded", func() {
				So(testutil.ToFloat64(globalManager.cyclesCompleted.WithLabelValues("medium", "true"))-before, ShouldEqual, 1)
			})
		})
	})
}

func TestOperationalMetrics(t *testing.T) {
	Convey("Given operational metrics", t, func() {
		Convey("When recording queue, worker, repository and upstream metrics", func() {
			Convey("Then none of the helpers panic", func() {
				So(func() {
					RecordQuestionServed()
					RecordSessionExpired()
					RecordSubmissionAccepted()
					RecordSubmissionDuplicate()
					RecordSubmissionFailed()
					RecordLiveSnapshotSent()
					RecordCountryFetch("ok")
					RecordCountryCacheHit()
					RecordGeoLookup("fallback")
					RecordAnalyticsEvent("dropped")
					UpdateQueueSize(10)
					UpdateQueueCapacity(100)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueEnqueueError()
					UpdateWorkerCount(4)
					RecordWorkerProcessingLatency(1.5)
					RecordWorkerError()
					UpdateRepositoryRecordsTotal(42)
					RecordRepositoryInsertLatency(0.2)
					RecordRepositoryQueryLatency(0.4)
					RecordErrorByComponent("worker", "insert")
					RecordErrorByEndpoint("/scores", "POST", "validation")
					UpdateSystemMemoryUsage(1 << 20)
					UpdateSystemGoroutineCount(12)
					RecordSystemGCPauseTime(0.3)
				}, ShouldNotPanic)
			})
		})

		Convey("When recording HTTP metrics", func() {
			before := testutil.ToFloat64(globalManager.httpRequests.WithLabelValues("/games", "POST", "201"))
			RecordHTTPRequest("/games", "POST", "201")
			RecordHTTPRequestDuration("/games", "POST", "201", 12.5)

			Convey("Then the request counter grows", func() {
				So(testutil.ToFloat64(globalManager.httpRequests.WithLabelValues("/games", "POST", "201"))-before, ShouldEqual, 1)
			})
		})

		Convey("When the registry is gathered", func() {
			families, err := GetRegistry().Gather()

			Convey("Then flaggy metrics are present", func() {
				So(err, ShouldBeNil)
				So(len(families), ShouldBeGreaterThan, 0)
			})
		})
	})
}
