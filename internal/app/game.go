package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/flaggy/internal/adapters/analytics"
	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/session"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

// Game is a freshly started game with its first round.
type Game struct {
	ID        string
	Settings  session.Settings
	PoolSize  int
	TimeLimit time.Duration
	Round     session.Round
}

// FinishOptions control what happens to the result of a finished game.
type FinishOptions struct {
	// Country is the ISO-2 code credited; empty resolves it from ClientIP.
	Country  string
	ClientIP string
	// SubmissionID makes retried finishes idempotent.
	SubmissionID string
}

// FinishResult is the final summary and the fate of its submission.
type FinishResult struct {
	Summary      session.Summary
	Submitted    bool
	Duplicate    bool
	SubmissionID string
}

func difficultyOf(st session.Settings) (country.Difficulty, error) {
	if st.Difficulty == "" {
		return country.Beginner, nil
	}
	return country.ParseDifficulty(string(st.Difficulty))
}

// StartGame filters the pool for settings, creates a session and serves
// its first question. player is the analytics identity of the caller.
func (s *Service) StartGame(ctx context.Context, player string, settings session.Settings) (Game, error) {
	if !s.running() {
		return Game{}, ErrNotStarted
	}
	d, err := difficultyOf(settings)
	if err != nil {
		return Game{}, err
	}
	settings.Difficulty = d
	if settings.Region == "" {
		settings.Region = country.AllRegions
	}
	if settings.Subregion == "" {
		settings.Subregion = country.AllRegions
	}

	pool, err := s.Countries(ctx, settings)
	if err != nil {
		metrics.RecordErrorByComponent("service", "countries")
		return Game{}, err
	}

	owner := ""
	if id, ok := auth.FromContext(ctx); ok {
		owner = id.UID
	}
	gameID := uuid.NewString()
	sess, err := session.New(gameID, owner, pool, settings, s.gen,
		session.WithClock(s.clock),
		session.WithTimeoutHandler(s.timeoutHandler(player, settings)),
	)
	if err != nil {
		return Game{}, err
	}
	round, err := sess.Next()
	if err != nil {
		sess.Close()
		return Game{}, fmt.Errorf("first question: %w", err)
	}
	s.sessions.Put(sess)

	metrics.RecordGameStarted(string(d))
	metrics.RecordQuestionServed()
	metrics.UpdateActiveSessions(s.sessions.Len())
	s.trackStart(ctx, player, settings)

	s.logger.Debug(ctx, "game started",
		logger.String("game", gameID),
		logger.String("difficulty", string(d)),
		logger.String("region", settings.Region),
		logger.Int("pool", len(pool)),
	)
	return Game{
		ID:        gameID,
		Settings:  settings,
		PoolSize:  len(pool),
		TimeLimit: d.TimeLimit(),
		Round:     round,
	}, nil
}

func (s *Service) trackStart(ctx context.Context, player string, st session.Settings) {
	s.capture(ctx, analytics.GameStarted, player, map[string]any{
		"difficulty": st.Difficulty,
		"region":     st.Region,
		"subregion":  st.Subregion,
	})
	prev, ok := s.rememberSettings(player, st)
	if !ok {
		return
	}
	if prev.Difficulty != st.Difficulty {
		s.capture(ctx, analytics.DifficultyChanged, player, map[string]any{"difficulty": st.Difficulty})
	}
	if prev.Region != st.Region || prev.Subregion != st.Subregion {
		s.capture(ctx, analytics.RegionChanged, player, map[string]any{
			"region":    st.Region,
			"subregion": st.Subregion,
		})
	}
}

func (s *Service) timeoutHandler(player string, st session.Settings) func(session.Outcome) {
	return func(out session.Outcome) {
		ctx := context.Background()
		s.recordOutcome(ctx, player, st, out)
	}
}

func (s *Service) recordOutcome(ctx context.Context, player string, st session.Settings, out session.Outcome) {
	outcome := "wrong"
	switch {
	case out.TimedOut:
		outcome = "timeout"
	case out.Correct:
		outcome = "correct"
	}
	metrics.RecordGuess(string(st.Difficulty), outcome, out.Elapsed)
	if out.Summary != nil {
		metrics.RecordCycleCompleted(string(st.Difficulty), out.Summary.Passed)
	}
	s.capture(ctx, analytics.FlagGuessed, player, map[string]any{
		"country":    out.Answer.Name.Common,
		"cca3":       out.Answer.CCA3,
		"isCorrect":  out.Correct,
		"difficulty": st.Difficulty,
		"region":     st.Region,
		"subregion":  st.Subregion,
		"isTimeout":  out.TimedOut,
	})
}

// Question returns the current round of a game.
func (s *Service) Question(_ context.Context, gameID string) (session.Round, error) {
	sess, err := s.session(gameID)
	if err != nil {
		return session.Round{}, err
	}
	r, ok := sess.Current()
	if !ok {
		return session.Round{}, ErrNoQuestion
	}
	return r, nil
}

// Next serves the following question once the current one is resolved.
func (s *Service) Next(ctx context.Context, gameID string) (session.Round, error) {
	sess, err := s.ownedSession(ctx, gameID)
	if err != nil {
		return session.Round{}, err
	}
	r, err := sess.Next()
	if err != nil {
		return session.Round{}, err
	}
	metrics.RecordQuestionServed()
	return r, nil
}

// Answer resolves the current round with the chosen country code.
func (s *Service) Answer(ctx context.Context, player, gameID, cca3 string) (session.Outcome, error) {
	sess, err := s.ownedSession(ctx, gameID)
	if err != nil {
		return session.Outcome{}, err
	}
	out, err := sess.Answer(cca3)
	if err != nil {
		return session.Outcome{}, err
	}
	s.recordOutcome(ctx, player, sess.Settings(), out)
	return out, nil
}

// Progress returns the live scoreboard of a game.
func (s *Service) Progress(_ context.Context, gameID string) (session.Progress, session.Settings, error) {
	sess, err := s.session(gameID)
	if err != nil {
		return session.Progress{}, session.Settings{}, err
	}
	return sess.Progress(), sess.Settings(), nil
}

// FinishGame ends a game and returns its summary. Authenticated players
// with at least one answer get their result submitted; submission
// problems are logged and never fail the call.
func (s *Service) FinishGame(ctx context.Context, gameID string, opts FinishOptions) (FinishResult, error) {
	sess, err := s.ownedSession(ctx, gameID)
	if err != nil {
		return FinishResult{}, err
	}
	if _, err := countryCode(opts.Country); err != nil {
		return FinishResult{}, err
	}
	sum := sess.Summary()
	s.sessions.Delete(gameID)
	metrics.UpdateActiveSessions(s.sessions.Len())

	res := FinishResult{Summary: sum}
	if _, ok := auth.FromContext(ctx); !ok || sum.Total == 0 {
		return res, nil
	}

	sub, err := s.SubmitScore(ctx, ScoreInput{
		SubmissionID: opts.SubmissionID,
		Score:        sum.Score,
		Accuracy:     sum.Accuracy,
		AverageTime:  sum.AverageTime,
		Difficulty:   string(sum.Difficulty),
		Country:      opts.Country,
		ClientIP:     opts.ClientIP,
	})
	if err != nil {
		s.logger.Warn(ctx, "score submission failed", logger.String("game", gameID), logger.Error(err))
		return res, nil
	}
	res.Submitted = true
	res.Duplicate = sub.Duplicate
	res.SubmissionID = sub.ID
	return res, nil
}

// ownedSession is session plus the owner check: games started by a
// signed-in player only accept moves from that player.
func (s *Service) ownedSession(ctx context.Context, gameID string) (*session.Session, error) {
	sess, err := s.session(gameID)
	if err != nil {
		return nil, err
	}
	owner := sess.Owner()
	if owner == "" {
		return sess, nil
	}
	if id, ok := auth.FromContext(ctx); !ok || id.UID != owner {
		return nil, fmt.Errorf("%w: %s", ErrNotOwner, gameID)
	}
	return sess, nil
}

func (s *Service) session(gameID string) (*session.Session, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	sess, err := s.sessions.Get(gameID)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return nil, fmt.Errorf("game %s: %w", gameID, err)
		}
		return nil, err
	}
	return sess, nil
}
