package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/okian/flaggy/internal/adapters/analytics"
	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/internal/adapters/countries"
	"github.com/okian/flaggy/internal/adapters/geo"
	"github.com/okian/flaggy/internal/adapters/http/api"
	"github.com/okian/flaggy/internal/adapters/http/swagger"
	"github.com/okian/flaggy/internal/adapters/live"
	"github.com/okian/flaggy/internal/adapters/repository"
	service "github.com/okian/flaggy/internal/app"
	"github.com/okian/flaggy/internal/config"
	"github.com/okian/flaggy/internal/domain/dedupe"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

// HTTP server timeout constants.
const (
	readTimeout               = 10 * time.Second
	writeTimeout              = 10 * time.Second
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	redisPingTimeout          = 5 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

// Redis key layout shared by every instance.
const (
	redisLeaderboardPrefix = "flaggy:lb"
	redisCountriesKey      = "flaggy:countries"
	redisSeenPrefix        = "flaggy:seen"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; overrides the addr setting")
	return cmd
}

// stack is a wired service plus the resources it borrowed.
type stack struct {
	svc     *service.Service
	handler http.Handler
	redis   *redis.Client
	relay   *live.RedisRelay
}

func (s *stack) close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// build wires every adapter selected by cfg into a service and its routes.
// The service is not started.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (*stack, error) {
	st := &stack{}

	if cfg.RedisAddr != "" {
		st.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		pctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := st.redis.Ping(pctx).Err()
		cancel()
		if err != nil {
			st.close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
	}

	store, err := openStore(ctx, cfg, st.redis)
	if err != nil {
		st.close()
		return nil, err
	}
	log.Info(ctx, "leaderboard store ready", logger.String("store", cfg.Store))

	cacheOpts := []countries.CacheOption{
		countries.WithTTL(cfg.CountriesTTL()),
		countries.WithLogger(log.Named("countries")),
	}
	if st.redis != nil {
		cacheOpts = append(cacheOpts, countries.WithRedis(st.redis, redisCountriesKey))
	}
	catalog := countries.NewCache(countries.NewClient(cfg.CountriesURL), cacheOpts...)

	detector := geo.NewDetector(
		geo.WithBaseURL(cfg.GeoURL),
		geo.WithDefault(cfg.GeoDefaultCountry),
		geo.WithCacheSize(cfg.GeoCacheSize),
		geo.WithLogger(log.Named("geo")),
	)

	hub := live.NewHub(store, log.Named("live"))
	opts := []service.Option{
		service.WithLogger(log.Named("service")),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithDedupeSize(cfg.DedupeSize),
		service.WithSessionTTL(cfg.SessionTTL()),
		service.WithLeaderboardLimit(cfg.LeaderboardLimit),
		service.WithStore(store),
		service.WithHub(hub),
		service.WithCountrySource(catalog),
		service.WithGeoDetector(detector),
		service.WithAnalytics(analytics.New(cfg.AnalyticsKey, cfg.AnalyticsHost, log.Named("analytics"))),
	}
	if st.redis != nil {
		st.relay = live.NewRedisRelay(st.redis, cfg.RedisChannel, hub, log.Named("relay"))
		opts = append(opts,
			service.WithNotifier(st.relay),
			service.WithDeduper(dedupe.NewRedisDeduper(st.redis, redisSeenPrefix, 0)),
		)
	}
	st.svc = service.New(opts...)

	proxies, err := geo.ParseProxies(cfg.TrustedProxies)
	if err != nil {
		st.close()
		return nil, err
	}
	apiOpts := []api.Option{api.WithLogger(log.Named("api")), api.WithTrustedProxies(proxies)}
	if cfg.JWTSecret != "" {
		v, err := auth.NewVerifier(cfg.JWTSecret)
		if err != nil {
			st.close()
			return nil, fmt.Errorf("jwt verifier: %w", err)
		}
		apiOpts = append(apiOpts, api.WithVerifier(v))
	} else {
		log.Warn(ctx, "jwt_secret not set; every player is anonymous and scores cannot be submitted")
	}

	mux := http.NewServeMux()
	swagger.Register(ctx, mux)
	api.NewServer(st.svc, apiOpts...).Register(ctx, mux)
	st.handler = mux
	return st, nil
}

func openStore(ctx context.Context, cfg *config.Config, rdb *redis.Client) (repository.Store, error) {
	switch cfg.Store {
	case config.StoreRedis:
		return repository.NewRedisStore(rdb, redisLeaderboardPrefix), nil
	case config.StorePostgres:
		db, err := repository.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return repository.NewSQLStore(ctx, db)
	case config.StoreSQLite:
		db, err := repository.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return repository.NewSQLStore(ctx, db)
	default:
		return repository.NewTreapStore(ctx), nil
	}
}

func runServe(ctx context.Context, addr string) error {
	log := logger.Get()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if addr != "" {
		cfg.Addr = addr
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	st, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.close()

	if err := st.svc.Start(ctx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := st.svc.Stop(stopCtx); err != nil {
			log.Error(stopCtx, "service stop failed", logger.Error(err))
		}
	}()

	if st.relay != nil {
		if err := st.relay.Start(ctx); err != nil {
			return fmt.Errorf("start relay: %w", err)
		}
	}

	go startSystemMetricsUpdater(ctx)
	go startServiceMetricsUpdater(ctx, st.svc)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           st.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	log.Info(shutdownCtx, "server stopped")
	return nil
}

// startSystemMetricsUpdater updates runtime metrics until ctx is done.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater mirrors service stats into gauges.
func startServiceMetricsUpdater(ctx context.Context, svc *service.Service) {
	ticker := time.NewTicker(serviceMetricsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(svc)
		}
	}
}

func updateSystemMetrics() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
	if m.NumGC > 0 {
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics refreshes the queue, store and session gauges;
// GetStats records them as a side effect.
func updateServiceMetrics(svc *service.Service) {
	_ = svc.GetStats()
}
