// Package loadtest drives a running flaggy server with simulated players
// and checks the resulting leaderboard.
package loadtest

import (
	"errors"
	"fmt"
	"time"
)

// Default run parameters.
const (
	DefaultPlayers    = 50
	DefaultRounds     = 10
	DefaultTimeout    = 10 * time.Second
	DefaultDifficulty = "beginner"
	DefaultSettleWait = 2 * time.Second
	percentage        = 100
)

// ErrInvalidConfig is returned when a run cannot start.
var ErrInvalidConfig = errors.New("invalid load test config")

// Config holds configuration for a load test run.
type Config struct {
	BaseURL    string        // Base URL of the service
	Players    int           // Number of simulated players
	Rounds     int           // Questions answered per player
	Workers    int           // Players running at once
	Timeout    time.Duration // HTTP request timeout
	Secret     string        // HMAC secret for player tokens; anonymous when empty
	Difficulty string        // Difficulty every player picks
	Region     string        // Region every player picks
	Accuracy   float64       // Chance of answering correctly, 0..1
	SettleWait time.Duration // Upper bound on waiting for queued scores
	Seed       uint64        // Answer RNG seed; random when zero
	Verbose    bool          // Log every request
}

func (c *Config) withDefaults() *Config {
	out := *c
	if out.Players == 0 {
		out.Players = DefaultPlayers
	}
	if out.Rounds == 0 {
		out.Rounds = DefaultRounds
	}
	if out.Workers == 0 {
		out.Workers = out.Players
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Difficulty == "" {
		out.Difficulty = DefaultDifficulty
	}
	if out.SettleWait == 0 {
		out.SettleWait = DefaultSettleWait
	}
	return &out
}

func (c *Config) validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case c.Players < 0 || c.Rounds < 0 || c.Workers < 0:
		return fmt.Errorf("%w: counts must not be negative", ErrInvalidConfig)
	case c.Accuracy < 0 || c.Accuracy > 1:
		return fmt.Errorf("%w: accuracy must be within 0..1", ErrInvalidConfig)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	PlayersStarted    int64
	PlayersFinished   int64
	Answers           int64
	Correct           int64
	Conflicts         int64
	Failures          int64
	Submitted         int64
	Duplicates        int64
	LeaderboardLength int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
