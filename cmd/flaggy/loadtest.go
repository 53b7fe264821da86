package main

import (
	"context"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/flaggy/internal/loadtest"
)

const defaultLoadTestTimeout = 10 * time.Minute

func newLoadTestCmd() *cobra.Command {
	cfg := &loadtest.Config{}
	var total time.Duration
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Play simulated games against a running server and verify the leaderboard",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if total > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, total)
				defer cancel()
			}
			_, err := loadtest.Run(ctx, cfg)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the service")
	f.IntVar(&cfg.Players, "players", loadtest.DefaultPlayers, "number of simulated players")
	f.IntVar(&cfg.Rounds, "rounds", loadtest.DefaultRounds, "questions answered per player")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*2, "players running at once")
	f.DurationVar(&cfg.Timeout, "timeout", loadtest.DefaultTimeout, "HTTP request timeout")
	f.StringVar(&cfg.Secret, "secret", "", "JWT secret to sign player tokens; anonymous when empty")
	f.StringVar(&cfg.Difficulty, "difficulty", loadtest.DefaultDifficulty, "difficulty every player picks")
	f.StringVar(&cfg.Region, "region", "", "region every player picks")
	f.Float64Var(&cfg.Accuracy, "accuracy", 0.7, "chance of recalling a flag already seen, 0..1")
	f.DurationVar(&cfg.SettleWait, "settle", loadtest.DefaultSettleWait, "how long to wait for queued scores")
	f.Uint64Var(&cfg.Seed, "seed", 0, "answer RNG seed; random when zero")
	f.BoolVar(&cfg.Verbose, "verbose", false, "log failed players")
	f.DurationVar(&total, "deadline", defaultLoadTestTimeout, "overall run deadline")
	return cmd
}
