// Package service wires the quiz domain to its adapters and implements
// the operations behind the HTTP API.
package service

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/okian/flaggy/internal/adapters/analytics"
	"github.com/okian/flaggy/internal/adapters/countries"
	"github.com/okian/flaggy/internal/adapters/live"
	eventqueue "github.com/okian/flaggy/internal/adapters/mq/queue"
	workerpool "github.com/okian/flaggy/internal/adapters/mq/worker"
	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/dedupe"
	"github.com/okian/flaggy/internal/domain/question"
	"github.com/okian/flaggy/internal/domain/session"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

const (
	defaultSessionTTL  = 30 * time.Minute
	defaultDefaultGeo  = "NG"
	maxTrackedPlayers  = 100_000
	shutdownDrainLimit = 30 * time.Second
)

// CountrySource delivers the full country list.
type CountrySource interface {
	FetchAll(ctx context.Context) ([]country.Country, error)
}

// GeoDetector resolves an ISO-2 country code for an IP. It never fails.
type GeoDetector interface {
	Country(ctx context.Context, ip string) string
}

type fixedGeo string

func (f fixedGeo) Country(context.Context, string) string { return string(f) }

// Service implements the API dependencies for the flag quiz.
type Service struct {
	mu sync.RWMutex

	// Collaborators
	countries   CountrySource
	geo         GeoDetector
	events      analytics.Sink
	leaderboard repository.Store
	deduper     dedupe.Deduper
	notifier    workerpool.Notifier
	hub         *live.Hub

	// Owned components
	queue    *eventqueue.InMemoryQueue
	pool     *workerpool.Pool
	sessions *session.Store
	gen      *question.Generator
	clock    session.Clock

	// Configuration
	workerCount      int
	queueSize        int
	dedupeSize       int
	sessionTTL       time.Duration
	leaderboardLimit int

	// Last settings per player, for change events.
	prefsMu sync.Mutex
	prefs   map[string]session.Settings

	// State
	started bool
	cancel  context.CancelFunc
	bg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of submission workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the submission queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the in-memory submission id cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithSessionTTL evicts games idle for longer than ttl.
func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithLeaderboardLimit caps leaderboard reads.
func WithLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.leaderboardLimit = n
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCountrySource sets where countries come from. Defaults to a cached
// client for the public REST Countries API.
func WithCountrySource(src CountrySource) Option {
	return func(s *Service) { s.countries = src }
}

// WithGeoDetector sets the IP to country resolver.
func WithGeoDetector(g GeoDetector) Option {
	return func(s *Service) {
		if g != nil {
			s.geo = g
		}
	}
}

// WithAnalytics sets the event sink.
func WithAnalytics(sink analytics.Sink) Option {
	return func(s *Service) {
		if sink != nil {
			s.events = sink
		}
	}
}

// WithStore sets the leaderboard store. Defaults to an in-memory treap.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.leaderboard = st }
}

// WithDeduper sets the submission id deduper.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) { s.deduper = d }
}

// WithHub shares a live hub, for instance one fed by a redis relay.
func WithHub(h *live.Hub) Option {
	return func(s *Service) { s.hub = h }
}

// WithNotifier replaces the hub as the target of stored entries.
func WithNotifier(n workerpool.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock replaces the wall clock for game countdowns.
func WithClock(c session.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithQuestionSeed makes question generation deterministic.
func WithQuestionSeed(seed uint64) Option {
	return func(s *Service) { s.gen = question.NewGenerator(question.WithSeed(seed)) }
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:      runtime.NumCPU() * 2,
		queueSize:        10_000,
		dedupeSize:       50_000,
		sessionTTL:       defaultSessionTTL,
		leaderboardLimit: repository.DefaultLimit,
		geo:              fixedGeo(defaultDefaultGeo),
		clock:            session.RealClock(),
		prefs:            make(map[string]session.Settings),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting flaggy service...")

	if s.events == nil {
		s.events = analytics.NewNopSink(s.logger)
	}
	if s.countries == nil {
		s.countries = countries.NewCache(countries.NewClient(countries.DefaultBaseURL),
			countries.WithLogger(s.logger.Named("countries")))
	}
	if s.gen == nil {
		s.gen = question.NewGenerator()
	}
	if s.leaderboard == nil {
		s.leaderboard = repository.NewTreapStore(ctx)
		s.logger.Info(ctx, "using treap store")
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	}
	if s.hub == nil {
		s.hub = live.NewHub(s.leaderboard, s.logger.Named("live"))
	}
	if s.notifier == nil {
		s.notifier = s.hub
	}

	s.sessions = session.NewStore(
		session.WithIdleTTL(s.sessionTTL),
		session.WithEvictHook(func(*session.Session) {
			metrics.RecordSessionExpired()
		}),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s.leaderboard, s.notifier,
		workerpool.WithLogger(s.logger.Named("worker")),
		workerpool.WithNow(s.clock.Now))

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.pool.Start(bgCtx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		s.sessions.Run(bgCtx, 0)
	}()

	s.started = true
	metrics.UpdateWorkerCount(s.workerCount)
	s.logger.Info(ctx, "flaggy service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
		logger.Duration("sessionTTL", s.sessionTTL),
	)
	return nil
}

// Stop drains pending submissions and shuts everything down.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}
	s.logger.Info(ctx, "stopping flaggy service...")

	drainCtx, cancel := context.WithTimeout(ctx, shutdownDrainLimit)
	defer cancel()
	err := s.pool.Shutdown(drainCtx)
	if err != nil {
		s.logger.Warn(ctx, "submission drain incomplete", logger.Error(err))
	}

	s.cancel()
	s.bg.Wait()
	s.sessions.CloseAll()
	metrics.UpdateActiveSessions(0)

	if closer, ok := s.leaderboard.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if cerr := s.events.Close(ctx); cerr != nil {
		s.logger.Warn(ctx, "analytics flush incomplete", logger.Error(cerr))
	}

	s.started = false
	s.logger.Info(ctx, "flaggy service stopped")
	return err
}

func (s *Service) running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Regions lists the selectable regions and subregions.
func (s *Service) Regions() []country.Region {
	return country.Regions()
}

// Countries returns the pool a game with these settings would use.
func (s *Service) Countries(ctx context.Context, settings session.Settings) ([]country.Country, error) {
	d, err := difficultyOf(settings)
	if err != nil {
		return nil, err
	}
	all, err := s.countries.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	return country.Filter(all, d, settings.Region, settings.Subregion), nil
}

// DetectCountry resolves the caller's ISO-2 country code.
func (s *Service) DetectCountry(ctx context.Context, ip string) string {
	return s.geo.Country(ctx, ip)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		queueLen := s.queue.Len()
		entries := s.leaderboard.Count(ctx)
		active := s.sessions.Len()

		stats["queueLength"] = queueLen
		stats["entries"] = entries
		stats["activeSessions"] = active
		stats["liveSubscribers"] = s.hub.Subscribers()
		stats["seenSubmissions"] = s.deduper.Size()

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateRepositoryRecordsTotal(entries)
		metrics.UpdateActiveSessions(active)
		metrics.UpdateWorkerCount(s.workerCount)
	}
	return stats
}

// rememberSettings stores the player's latest settings and returns the
// previous ones.
func (s *Service) rememberSettings(player string, st session.Settings) (session.Settings, bool) {
	s.prefsMu.Lock()
	defer s.prefsMu.Unlock()
	prev, ok := s.prefs[player]
	if !ok && len(s.prefs) >= maxTrackedPlayers {
		for k := range s.prefs {
			delete(s.prefs, k)
			break
		}
	}
	s.prefs[player] = st
	return prev, ok
}

func (s *Service) capture(ctx context.Context, name, player string, props map[string]any) {
	s.events.Capture(ctx, analytics.Event{Name: name, DistinctID: player, Properties: props})
}
