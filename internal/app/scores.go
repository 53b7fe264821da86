package service

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/okian/flaggy/internal/adapters/auth"
	"github.com/okian/flaggy/internal/adapters/live"
	"github.com/okian/flaggy/internal/adapters/repository"
	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/model"
	"github.com/okian/flaggy/internal/domain/scoring"
	"github.com/okian/flaggy/pkg/logger"
	"github.com/okian/flaggy/pkg/metrics"
)

// Leaderboard scopes.
const (
	ScopeGlobal  = "global"
	ScopeCountry = "country"
)

// ScoreInput is a result submitted by an authenticated player.
type ScoreInput struct {
	SubmissionID string
	Score        int
	Accuracy     float64
	AverageTime  float64
	Difficulty   string
	Country      string
	ClientIP     string
}

// SubmitResult tells the caller what happened to a submission.
type SubmitResult struct {
	ID        string
	Duplicate bool
}

// LeaderboardRequest selects a leaderboard view.
type LeaderboardRequest struct {
	Difficulty string
	TimeFrame  string
	Scope      string
	Country    string
	ClientIP   string
	Limit      int
}

// SubmitScore validates a result and queues it for the leaderboard. The
// caller must be authenticated. Resubmitting an id is accepted once.
func (s *Service) SubmitScore(ctx context.Context, in ScoreInput) (SubmitResult, error) {
	if !s.running() {
		return SubmitResult{}, ErrNotStarted
	}
	id, err := auth.RequireIdentity(ctx)
	if err != nil {
		return SubmitResult{}, err
	}
	d, err := country.ParseDifficulty(in.Difficulty)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %w", ErrInvalidSubmission, err)
	}
	if err := validScore(in); err != nil {
		return SubmitResult{}, err
	}
	cc, err := countryCode(in.Country)
	if err != nil {
		return SubmitResult{}, err
	}

	subID := strings.TrimSpace(in.SubmissionID)
	if subID == "" {
		subID = uuid.NewString()
	}
	if s.deduper.SeenAndRecord(ctx, subID) {
		metrics.RecordSubmissionDuplicate()
		s.logger.Debug(ctx, "duplicate submission, skipping", logger.String("submission", subID))
		return SubmitResult{ID: subID, Duplicate: true}, nil
	}

	if cc == "" {
		cc = s.geo.Country(ctx, in.ClientIP)
	}
	sub := model.Submission{
		ID:          subID,
		UID:         id.UID,
		DisplayName: id.DisplayName,
		PhotoURL:    id.PhotoURL,
		Score:       in.Score,
		Accuracy:    in.Accuracy,
		AverageTime: in.AverageTime,
		Difficulty:  string(d),
		Country:     cc,
	}
	if err := s.queue.Enqueue(ctx, sub); err != nil {
		s.deduper.Unrecord(ctx, subID)
		metrics.RecordSubmissionFailed()
		return SubmitResult{}, fmt.Errorf("enqueue submission: %w", err)
	}
	metrics.UpdateQueueSize(s.queue.Len())
	return SubmitResult{ID: subID}, nil
}

func validScore(in ScoreInput) error {
	switch {
	case in.Score < 0:
		return fmt.Errorf("%w: negative score", ErrInvalidSubmission)
	case math.IsNaN(in.Accuracy) || in.Accuracy < 0 || in.Accuracy > 100:
		return fmt.Errorf("%w: accuracy must be within 0..100", ErrInvalidSubmission)
	case math.IsNaN(in.AverageTime) || in.AverageTime < 0:
		return fmt.Errorf("%w: negative average time", ErrInvalidSubmission)
	}
	return nil
}

// countryCode upper-cases an ISO 3166 alpha-2 code. Empty stays empty so
// the caller can fall back to geo detection.
func countryCode(raw string) (string, error) {
	cc := strings.ToUpper(strings.TrimSpace(raw))
	if cc == "" {
		return "", nil
	}
	if len(cc) != 2 || cc[0] < 'A' || cc[0] > 'Z' || cc[1] < 'A' || cc[1] > 'Z' {
		return "", fmt.Errorf("%w: country %q is not an ISO-2 code", ErrInvalidSubmission, raw)
	}
	return cc, nil
}

// LeaderboardQuery turns a request into a store query for the current
// day and week.
func (s *Service) LeaderboardQuery(ctx context.Context, req LeaderboardRequest) (repository.Query, error) {
	d := country.Beginner
	if strings.TrimSpace(req.Difficulty) != "" {
		var err error
		if d, err = country.ParseDifficulty(req.Difficulty); err != nil {
			return repository.Query{}, err
		}
	}
	tf, err := repository.ParseTimeFrame(req.TimeFrame)
	if err != nil {
		return repository.Query{}, err
	}
	periods := scoring.PeriodIDs(s.clock.Now())
	q := repository.Query{
		Difficulty: string(d),
		TimeFrame:  tf,
		DayID:      periods.DayID,
		WeekID:     periods.WeekID,
		Limit:      req.Limit,
		Distinct:   true,
	}
	switch strings.ToLower(strings.TrimSpace(req.Scope)) {
	case "", ScopeGlobal:
	case ScopeCountry:
		q.Country = req.Country
		if strings.TrimSpace(q.Country) == "" {
			q.Country = s.geo.Country(ctx, req.ClientIP)
		}
	default:
		return repository.Query{}, fmt.Errorf("%w: %q", ErrInvalidScope, req.Scope)
	}
	if q.Limit == 0 || q.Limit > s.leaderboardLimit {
		q.Limit = s.leaderboardLimit
	}
	return q.Normalize()
}

// Leaderboard returns a ranked view with one entry per player.
func (s *Service) Leaderboard(ctx context.Context, req LeaderboardRequest) ([]model.Ranked, error) {
	if !s.running() {
		return nil, ErrNotStarted
	}
	q, err := s.LeaderboardQuery(ctx, req)
	if err != nil {
		return nil, err
	}
	return live.Snapshot(ctx, s.leaderboard, q)
}

// Subscribe follows a leaderboard view. The period of daily and weekly
// views is fixed when subscribing.
func (s *Service) Subscribe(ctx context.Context, req LeaderboardRequest) (<-chan []model.Ranked, func(), error) {
	if !s.running() {
		return nil, nil, ErrNotStarted
	}
	q, err := s.LeaderboardQuery(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	return s.hub.Subscribe(ctx, q)
}

// Positioner is implemented by stores that can rank a single entry.
type Positioner interface {
	Position(ctx context.Context, q repository.Query, id string) (int, error)
}

// Position returns the 1-based rank of a submission in a view, counting
// every entry rather than one per player. 0 means it is not in the view.
func (s *Service) Position(ctx context.Context, req LeaderboardRequest, submissionID string) (int, error) {
	if !s.running() {
		return 0, ErrNotStarted
	}
	p, ok := s.leaderboard.(Positioner)
	if !ok {
		return 0, ErrPositionUnsupported
	}
	q, err := s.LeaderboardQuery(ctx, req)
	if err != nil {
		return 0, err
	}
	q.Distinct = false
	return p.Position(ctx, q, submissionID)
}
