// Package metrics provides Prometheus metrics for the flaggy quiz service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	latencyBuckets []float64
	answerBuckets  []float64
	constLabels    prometheus.Labels
	metricPrefix   string
	registry       prometheus.Registerer

	// Gameplay
	gamesStarted      *prometheus.CounterVec
	guesses           *prometheus.CounterVec
	questionsServed   prometheus.Counter
	activeSessions    prometheus.Gauge
	sessionsExpired   prometheus.Counter
	cyclesCompleted   *prometheus.CounterVec
	answerTimeSeconds *prometheus.HistogramVec

	// Leaderboard
	submissionsAccepted  prometheus.Counter
	submissionsDuplicate prometheus.Counter
	submissionsFailed    prometheus.Counter
	liveSubscribers      prometheus.Gauge
	liveSnapshotsSent    prometheus.Counter

	// Upstreams
	countryFetches     *prometheus.CounterVec
	countryCacheHits   prometheus.Counter
	geoLookups         *prometheus.CounterVec
	analyticsDelivered *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryRecordsTotal  prometheus.Gauge
	repositoryInsertLatency prometheus.Histogram
	repositoryQueryLatency  prometheus.Histogram

	// Queue
	queueSize        prometheus.Gauge
	queueCapacity    prometheus.Gauge
	queueUtilization prometheus.Gauge
	queueEnqueued    prometheus.Counter
	queueDequeued    prometheus.Counter
	queueRejected    prometheus.Counter

	// Worker
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorsByComponent *prometheus.CounterVec
	errorsByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithRegistry(customRegistry))
}

// NewManager creates a new metrics manager. Without WithRegistry the
// collectors land on prometheus.DefaultRegisterer.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "flaggy",
		subsystem:        "quiz",
		latencyBuckets: prometheus.DefBuckets,
		answerBuckets:  []float64{0.5, 1, 2, 3, 5, 7, 10, 15},
		registry:       prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.gamesStarted = m.counterVec("games_started_total", "Games started by difficulty", "difficulty")
	m.guesses = m.counterVec("guesses_total", "Resolved rounds by difficulty and outcome", "difficulty", "outcome")
	m.questionsServed = m.counter("questions_served_total", "Questions generated and served")
	m.activeSessions = m.gauge("active_sessions", "Game sessions currently held in memory")
	m.sessionsExpired = m.counter("sessions_expired_total", "Sessions evicted after the idle TTL")
	m.cyclesCompleted = m.counterVec("cycles_completed_total", "Full passes through a country pool", "difficulty", "passed")
	m.answerTimeSeconds = m.histogramVec("answer_time_seconds", "Time taken to resolve a round",
		m.answerBuckets, "difficulty")

	m.submissionsAccepted = m.counter("submissions_accepted_total", "Score submissions accepted for processing")
	m.submissionsDuplicate = m.counter("submissions_duplicate_total", "Score submissions rejected as duplicates")
	m.submissionsFailed = m.counter("submissions_failed_total", "Score submissions that could not be persisted")
	m.liveSubscribers = m.gauge("live_subscribers", "Open live leaderboard subscriptions")
	m.liveSnapshotsSent = m.counter("live_snapshots_sent_total", "Leaderboard snapshots pushed to subscribers")

	m.countryFetches = m.counterVec("country_fetches_total", "Country data source fetches by result", "result")
	m.countryCacheHits = m.counter("country_cache_hits_total", "Country list served from cache")
	m.geoLookups = m.counterVec("geo_lookups_total", "Geographic detection lookups by result", "result")
	m.analyticsDelivered = m.counterVec("analytics_events_total", "Analytics events by delivery result", "result")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds",
		m.latencyBuckets, "endpoint", "method", "status_code")

	m.repositoryRecordsTotal = m.gauge("repository_records_total", "Leaderboard entries held by the store")
	m.repositoryInsertLatency = m.histogram("repository_insert_latency_milliseconds", "Store insert latency in milliseconds", m.latencyBuckets)
	m.repositoryQueryLatency = m.histogram("repository_query_latency_milliseconds", "Store query latency in milliseconds", m.latencyBuckets)

	m.queueSize = m.gauge("queue_size", "Current size of the submission queue")
	m.queueCapacity = m.gauge("queue_capacity", "Maximum submission queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Queue utilization ratio (size / capacity)")
	m.queueEnqueued = m.counter("queue_enqueue_total", "Submissions enqueued")
	m.queueDequeued = m.counter("queue_dequeue_total", "Submissions dequeued")
	m.queueRejected = m.counter("queue_enqueue_errors_total", "Submissions rejected by the queue")

	m.workerCount = m.gauge("worker_count", "Submission workers running")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds", "Worker processing latency in milliseconds", m.latencyBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Worker processing errors")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorsByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// Gameplay.

// RecordGameStarted counts a new game for the difficulty.
func RecordGameStarted(difficulty string) {
	globalManager.gamesStarted.WithLabelValues(difficulty).Inc()
}

// RecordGuess counts a resolved round; outcome is correct, wrong or timeout.
func RecordGuess(difficulty, outcome string, elapsed time.Duration) {
	globalManager.guesses.WithLabelValues(difficulty, outcome).Inc()
	globalManager.answerTimeSeconds.WithLabelValues(difficulty).Observe(elapsed.Seconds())
}

// RecordQuestionServed counts a generated question.
func RecordQuestionServed() {
	globalManager.questionsServed.Inc()
}

// UpdateActiveSessions sets the number of live sessions.
func UpdateActiveSessions(n int) {
	globalManager.activeSessions.Set(float64(n))
}

// RecordSessionExpired counts an idle session eviction.
func RecordSessionExpired() {
	globalManager.sessionsExpired.Inc()
}

// RecordCycleCompleted counts a finished pass through the pool.
func RecordCycleCompleted(difficulty string, passed bool) {
	p := "false"
	if passed {
		p = "true"
	}
	globalManager.cyclesCompleted.WithLabelValues(difficulty, p).Inc()
}

// Leaderboard.

// RecordSubmissionAccepted counts a submission handed to the queue.
func RecordSubmissionAccepted() {
	globalManager.submissionsAccepted.Inc()
}

// RecordSubmissionDuplicate counts a submission dropped by the deduper.
func RecordSubmissionDuplicate() {
	globalManager.submissionsDuplicate.Inc()
}

// RecordSubmissionFailed counts a submission the worker could not persist.
func RecordSubmissionFailed() {
	globalManager.submissionsFailed.Inc()
}

// UpdateLiveSubscribers sets the number of open live subscriptions.
func UpdateLiveSubscribers(n int) {
	globalManager.liveSubscribers.Set(float64(n))
}

// RecordLiveSnapshotSent counts a snapshot pushed to a subscriber.
func RecordLiveSnapshotSent() {
	globalManager.liveSnapshotsSent.Inc()
}

// Upstreams.

// RecordCountryFetch counts a country data source call; result is ok or error.
func RecordCountryFetch(result string) {
	globalManager.countryFetches.WithLabelValues(result).Inc()
}

// RecordCountryCacheHit counts a country list served from cache.
func RecordCountryCacheHit() {
	globalManager.countryCacheHits.Inc()
}

// RecordGeoLookup counts a detection lookup; result is ok, cached or fallback.
func RecordGeoLookup(result string) {
	globalManager.geoLookups.WithLabelValues(result).Inc()
}

// RecordAnalyticsEvent counts an analytics event; result is sent, dropped or failed.
func RecordAnalyticsEvent(result string) {
	globalManager.analyticsDelivered.WithLabelValues(result).Inc()
}

// HTTP.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration in milliseconds.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository.

// UpdateRepositoryRecordsTotal sets the number of stored entries.
func UpdateRepositoryRecordsTotal(count int) {
	globalManager.repositoryRecordsTotal.Set(float64(count))
}

// RecordRepositoryInsertLatency records store insert latency.
func RecordRepositoryInsertLatency(latencyMs float64) {
	globalManager.repositoryInsertLatency.Observe(latencyMs)
}

// RecordRepositoryQueryLatency records store query latency.
func RecordRepositoryQueryLatency(latencyMs float64) {
	globalManager.repositoryQueryLatency.Observe(latencyMs)
}

// Queue.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the rejected counter.
func RecordQueueEnqueueError() {
	globalManager.queueRejected.Inc()
}

// Worker.

// UpdateWorkerCount sets the number of running workers.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// Errors.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorsByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System.

// UpdateSystemMemoryUsage sets the memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
