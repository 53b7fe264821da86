// Package session runs a single player's game: it walks a shuffled queue of
// the filtered pool, serves one question per round and resolves each round
// exactly once, either by an answer or by the countdown expiring.
package session

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/okian/flaggy/internal/domain/country"
	"github.com/okian/flaggy/internal/domain/question"
)

// PassAccuracy is the accuracy (percent) needed to unlock the next level.
const PassAccuracy = 80.0

// Settings are the player's choices for a game.
type Settings struct {
	Difficulty country.Difficulty `json:"difficulty"`
	Region     string             `json:"region"`
	Subregion  string             `json:"subregion"`
}

// Round is one question and how it ended. Outcome is nil while open.
type Round struct {
	Number    int
	Question  question.Question
	StartedAt time.Time
	Deadline  time.Time
	Outcome   *Outcome
}

// Outcome is the resolution of a round.
type Outcome struct {
	Round         int
	Correct       bool
	TimedOut      bool
	Selected      string
	Answer        country.Country
	Elapsed       time.Duration
	Score         int
	Answered      int
	CycleComplete bool
	Summary       *Summary
}

// Summary describes the game so far, as shown on the results screen.
type Summary struct {
	Difficulty  country.Difficulty `json:"difficulty"`
	Score       int                `json:"score"`
	Total       int                `json:"total"`
	Accuracy    float64            `json:"accuracy"`
	AverageTime float64            `json:"averageTime"`
	Passed      bool               `json:"passed"`
	NextLevel   country.Difficulty `json:"nextLevel,omitempty"`
}

// Progress is the live scoreboard of a session.
type Progress struct {
	Seen      int
	PoolSize  int
	Score     int
	Answered  int
	Accuracy  int
	TimeLimit time.Duration
	Remaining time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithTimeoutHandler registers f to be called, outside the session lock,
// whenever a round expires unanswered.
func WithTimeoutHandler(f func(Outcome)) Option {
	return func(s *Session) { s.onTimeout = f }
}

// Session is a single game. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	id        string
	owner     string
	settings  Settings
	pool      []country.Country
	queue     []country.Country
	lastShown string

	score    int
	answered int
	elapsed  time.Duration

	round *Round
	timer Timer

	gen       *question.Generator
	clock     Clock
	onTimeout func(Outcome)

	createdAt  time.Time
	lastActive time.Time
	closed     bool
}

// New creates a session over an already filtered pool. owner is the player
// uid, empty for anonymous play.
func New(id, owner string, pool []country.Country, settings Settings, gen *question.Generator, opts ...Option) (*Session, error) {
	if len(pool) < country.MinPool {
		return nil, fmt.Errorf("%w: %d available", country.ErrNotEnoughCountries, len(pool))
	}
	s := &Session{
		id:       id,
		owner:    owner,
		settings: settings,
		pool:     pool,
		gen:      gen,
		clock:    RealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.createdAt = s.clock.Now()
	s.lastActive = s.createdAt
	return s, nil
}

func (s *Session) ID() string         { return s.id }
func (s *Session) Owner() string      { return s.owner }
func (s *Session) Settings() Settings { return s.settings }
func (s *Session) PoolSize() int      { return len(s.pool) }

// LastActive is the last time the session was touched.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Touch marks the session as active at t.
func (s *Session) Touch(t time.Time) {
	s.mu.Lock()
	if t.After(s.lastActive) {
		s.lastActive = t
	}
	s.mu.Unlock()
}

// Next serves the next question and starts its countdown.
func (s *Session) Next() (Round, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Round{}, ErrClosed
	}
	if s.round != nil && s.round.Outcome == nil {
		return Round{}, ErrRoundInProgress
	}

	if len(s.queue) == 0 {
		s.refill()
	}
	correct := s.queue[len(s.queue)-1]
	s.queue = s.queue[:len(s.queue)-1]
	s.lastShown = correct.CCA3

	now := s.clock.Now()
	limit := s.settings.Difficulty.TimeLimit()
	number := 1
	if s.round != nil {
		number = s.round.Number + 1
	}
	s.round = &Round{
		Number:    number,
		Question:  s.gen.Generate(s.pool, correct),
		StartedAt: now,
		Deadline:  now.Add(limit),
	}
	s.lastActive = now
	s.timer = s.clock.AfterFunc(limit, func() { s.expire(number) })
	return *s.round, nil
}

// refill reshuffles the whole pool into the queue. The queue is consumed
// from the end, so a country that would repeat the last one shown is moved
// to the front. Caller holds s.mu.
func (s *Session) refill() {
	q := s.gen.Shuffle(s.pool)
	if s.lastShown != "" && len(q) > 2 && q[len(q)-1].CCA3 == s.lastShown {
		last := q[len(q)-1]
		copy(q[1:], q[:len(q)-1])
		q[0] = last
	}
	s.queue = q
}

// Current returns the current round, if any.
func (s *Session) Current() (Round, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.round == nil {
		return Round{}, false
	}
	return *s.round, true
}

// Answer resolves the current round with the chosen country code.
func (s *Session) Answer(cca3 string) (Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Outcome{}, ErrClosed
	}
	if s.round == nil {
		return Outcome{}, ErrNoActiveRound
	}
	if s.round.Outcome != nil {
		return Outcome{}, ErrAlreadyResolved
	}
	if !offered(s.round.Question, cca3) {
		return Outcome{}, fmt.Errorf("%w: %q", ErrInvalidOption, cca3)
	}

	elapsed := s.clock.Now().Sub(s.round.StartedAt)
	if limit := s.settings.Difficulty.TimeLimit(); elapsed > limit {
		elapsed = limit
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	return s.resolve(cca3, false, elapsed), nil
}

// expire is the timer callback for round number.
func (s *Session) expire(number int) {
	s.mu.Lock()
	if s.closed || s.round == nil || s.round.Number != number || s.round.Outcome != nil {
		s.mu.Unlock()
		return
	}
	out := s.resolve("", true, s.settings.Difficulty.TimeLimit())
	handler := s.onTimeout
	s.mu.Unlock()

	if handler != nil {
		handler(out)
	}
}

// resolve is the single place a round ends. Caller holds s.mu.
func (s *Session) resolve(selected string, timedOut bool, elapsed time.Duration) Outcome {
	correct := !timedOut && selected == s.round.Question.Correct.CCA3
	if correct {
		s.score++
	}
	s.answered++
	s.elapsed += elapsed
	s.timer = nil

	out := Outcome{
		Round:         s.round.Number,
		Correct:       correct,
		TimedOut:      timedOut,
		Selected:      selected,
		Answer:        s.round.Question.Correct,
		Elapsed:       elapsed,
		Score:         s.score,
		Answered:      s.answered,
		CycleComplete: len(s.queue) == 0,
	}
	if out.CycleComplete {
		sum := s.summary()
		out.Summary = &sum
	}
	s.round.Outcome = &out
	s.lastActive = s.clock.Now()
	return out
}

func offered(q question.Question, cca3 string) bool {
	for _, o := range q.Options {
		if o.CCA3 == cca3 {
			return true
		}
	}
	return false
}

// Progress returns the live scoreboard.
func (s *Session) Progress() Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := Progress{
		Seen:      len(s.pool) - len(s.queue),
		PoolSize:  len(s.pool),
		Score:     s.score,
		Answered:  s.answered,
		TimeLimit: s.settings.Difficulty.TimeLimit(),
	}
	if s.round == nil {
		p.Seen = 0
	}
	if s.answered > 0 {
		p.Accuracy = int(math.Round(float64(s.score) / float64(s.answered) * 100))
	}
	if s.round != nil && s.round.Outcome == nil {
		if rem := s.round.Deadline.Sub(s.clock.Now()); rem > 0 {
			p.Remaining = rem
		}
	}
	return p
}

// Summary returns the results of the game so far.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary()
}

// summary computes the results. Caller holds s.mu.
func (s *Session) summary() Summary {
	sum := Summary{
		Difficulty: s.settings.Difficulty,
		Score:      s.score,
		Total:      s.answered,
	}
	if s.answered > 0 {
		sum.Accuracy = round1(float64(s.score) / float64(s.answered) * 100)
		sum.AverageTime = round1(s.elapsed.Seconds() / float64(s.answered))
	}
	sum.Passed = s.answered > 0 && sum.Accuracy >= PassAccuracy
	if sum.Passed {
		if next, ok := s.settings.Difficulty.Next(); ok {
			sum.NextLevel = next
		}
	}
	return sum
}

// Close stops any pending countdown. Further calls fail with ErrClosed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.closed = true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
