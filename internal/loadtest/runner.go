package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/pkg/logger"
)

// ErrVerification is returned when the leaderboard breaks an ordering rule.
var ErrVerification = errors.New("leaderboard verification failed")

// Run executes a complete load test: health check, concurrent games,
// then a leaderboard read and verification.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	cfg := config.withDefaults()
	log := logger.Get().Named("loadtest")
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting flaggy load test",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("players", cfg.Players),
		logger.Int("rounds", cfg.Rounds),
		logger.Int("workers", cfg.Workers),
		logger.String("difficulty", cfg.Difficulty),
		logger.Bool("authenticated", cfg.Secret != ""))

	hc := newHTTPClient(cfg.Timeout)
	if err := newClient(hc, cfg.BaseURL, "", "").do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	var issuer *auth.Issuer
	if cfg.Secret != "" {
		var err error
		if issuer, err = auth.NewIssuer(cfg.Secret, time.Hour); err != nil {
			return stats, fmt.Errorf("token issuer: %w", err)
		}
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	known := &knowledge{}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i := 0; i < cfg.Players; i++ {
		id := fmt.Sprintf("load-%04d", i)
		token := ""
		if issuer != nil {
			var err error
			if token, err = issuer.Issue(auth.Identity{UID: id, DisplayName: "Player " + id}); err != nil {
				return stats, fmt.Errorf("issue token: %w", err)
			}
		}
		p := &player{
			id:    id,
			cl:    newClient(hc, cfg.BaseURL, token, id),
			cfg:   cfg,
			rng:   rand.New(rand.NewPCG(seed, uint64(i))), //nolint:gosec // simulated answers
			known: known,
			stats: stats,
		}
		g.Go(func() error {
			if err := p.play(gctx); err != nil {
				atomic.AddInt64(&stats.Failures, 1)
				if cfg.Verbose {
					log.Warn(gctx, "player failed", logger.String("player", p.id), logger.Error(err))
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	board, err := settle(ctx, newClient(hc, cfg.BaseURL, "", ""), cfg, int(atomic.LoadInt64(&stats.Submitted)))
	if err != nil {
		return stats, err
	}
	stats.LeaderboardLength = len(board)
	if err := Verify(board); err != nil {
		return stats, err
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	logStats(ctx, log, stats)
	return stats, nil
}

// settle polls the leaderboard until every submitted player shows up or
// the settle wait runs out; queued scores land asynchronously.
func settle(ctx context.Context, cl *client, cfg *Config, want int) ([]Entry, error) {
	path := fmt.Sprintf("/leaderboard?difficulty=%s&limit=%d", cfg.Difficulty, max(cfg.Players, 1))
	deadline := time.Now().Add(cfg.SettleWait)
	for {
		var lb leaderboard
		if err := cl.do(ctx, http.MethodGet, path, nil, &lb); err != nil {
			return nil, fmt.Errorf("leaderboard retrieval failed: %w", err)
		}
		if len(lb.Entries) >= want || time.Now().After(deadline) {
			return lb.Entries, nil
		}
		select {
		case <-ctx.Done():
			return lb.Entries, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Verify checks that ranks are consecutive, every player appears once and
// entries are ordered by score then average time.
func Verify(entries []Entry) error {
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.Rank != i+1 {
			return fmt.Errorf("%w: entry %d has rank %d", ErrVerification, i, e.Rank)
		}
		if seen[e.UID] {
			return fmt.Errorf("%w: player %s listed twice", ErrVerification, e.UID)
		}
		seen[e.UID] = true
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Score > prev.Score || (e.Score == prev.Score && e.AverageTime < prev.AverageTime) {
			return fmt.Errorf("%w: %s ranked below %s", ErrVerification, e.ID, prev.ID)
		}
	}
	return nil
}

func logStats(ctx context.Context, log logger.Logger, stats *Stats) {
	var accuracy float64
	if stats.Answers > 0 {
		accuracy = float64(stats.Correct) / float64(stats.Answers) * percentage
	}
	log.Info(ctx, "final statistics",
		logger.Int("playersStarted", int(stats.PlayersStarted)),
		logger.Int("playersFinished", int(stats.PlayersFinished)),
		logger.Int("answers", int(stats.Answers)),
		logger.Int("conflicts", int(stats.Conflicts)),
		logger.Int("failures", int(stats.Failures)),
		logger.Int("submitted", int(stats.Submitted)),
		logger.Int("leaderboardEntries", stats.LeaderboardLength),
		logger.Float64("accuracy", accuracy),
		logger.Duration("duration", stats.Duration))
}
