// Package repository persists leaderboard entries and answers ranked,
// bucketed queries over them.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/flaggy/internal/domain/model"
)

// DefaultLimit is used when a query does not set one.
const DefaultLimit = 20

// TimeFrame selects the period bucket of a query.
type TimeFrame string

const (
	Daily   TimeFrame = "daily"
	Weekly  TimeFrame = "weekly"
	AllTime TimeFrame = "all-time"
)

// ParseTimeFrame accepts daily, weekly and all-time; empty means all-time.
func ParseTimeFrame(s string) (TimeFrame, error) {
	switch TimeFrame(strings.ToLower(strings.TrimSpace(s))) {
	case "", AllTime, "alltime", "all":
		return AllTime, nil
	case Daily:
		return Daily, nil
	case Weekly:
		return Weekly, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeFrame, s)
	}
}

// Query describes a leaderboard view.
type Query struct {
	Difficulty string
	TimeFrame  TimeFrame
	DayID      string // required for Daily
	WeekID     string // required for Weekly
	Country    string // empty for global scope
	Limit      int
	// Distinct keeps only the best entry of each player.
	Distinct bool
}

// Normalize fills defaults and validates the query.
func (q Query) Normalize() (Query, error) {
	q.Difficulty = strings.ToLower(strings.TrimSpace(q.Difficulty))
	q.Country = strings.ToUpper(strings.TrimSpace(q.Country))
	if q.TimeFrame == "" {
		q.TimeFrame = AllTime
	}
	if q.Limit == 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit < 1 {
		return q, ErrInvalidLimit
	}
	switch q.TimeFrame {
	case Daily:
		if q.DayID == "" {
			return q, fmt.Errorf("%w: daily view without day id", ErrInvalidTimeFrame)
		}
	case Weekly:
		if q.WeekID == "" {
			return q, fmt.Errorf("%w: weekly view without week id", ErrInvalidTimeFrame)
		}
	case AllTime:
	default:
		return q, fmt.Errorf("%w: %q", ErrInvalidTimeFrame, q.TimeFrame)
	}
	return q, nil
}

// Bucket is the name of the ordered set that holds the entries of q.
func (q Query) Bucket() string {
	var period string
	switch q.TimeFrame {
	case Daily:
		period = "day:" + q.DayID
	case Weekly:
		period = "week:" + q.WeekID
	default:
		period = "all"
	}
	b := q.Difficulty + ":" + period
	if q.Country != "" {
		b += ":c:" + q.Country
	}
	return b
}

// Matches reports whether e belongs to the view of q.
func (q Query) Matches(e model.Entry) bool {
	if e.Difficulty != q.Difficulty {
		return false
	}
	if q.Country != "" && e.Country != q.Country {
		return false
	}
	switch q.TimeFrame {
	case Daily:
		return e.DayID == q.DayID
	case Weekly:
		return e.WeekID == q.WeekID
	default:
		return true
	}
}

// Buckets lists every bucket an entry is filed under: each period, both
// globally and for its country.
func Buckets(e model.Entry) []string {
	out := make([]string, 0, 6)
	for _, tf := range []TimeFrame{AllTime, Daily, Weekly} {
		q := Query{Difficulty: e.Difficulty, TimeFrame: tf, DayID: e.DayID, WeekID: e.WeekID}
		out = append(out, q.Bucket())
		if e.Country != "" {
			q.Country = e.Country
			out = append(out, q.Bucket())
		}
	}
	return out
}

// Store is an append-only leaderboard.
type Store interface {
	// Insert adds an entry. It returns ErrDuplicate when the id exists.
	Insert(ctx context.Context, e model.Entry) error

	// Query returns the entries of a view, best first, at most q.Limit.
	Query(ctx context.Context, q Query) ([]model.Entry, error)

	// Count returns the number of stored entries.
	Count(ctx context.Context) int
}

// distinctAppender collects entries in rank order, optionally skipping
// players already seen. It reports false once the limit is reached.
type distinctAppender struct {
	out      []model.Entry
	seen     map[string]struct{}
	limit    int
	distinct bool
}

func newAppender(q Query) *distinctAppender {
	return &distinctAppender{
		out:      make([]model.Entry, 0, q.Limit),
		seen:     make(map[string]struct{}),
		limit:    q.Limit,
		distinct: q.Distinct,
	}
}

func (a *distinctAppender) add(e model.Entry) bool {
	if len(a.out) >= a.limit {
		return false
	}
	if a.distinct {
		if _, dup := a.seen[e.UID]; dup {
			return true
		}
		a.seen[e.UID] = struct{}{}
	}
	a.out = append(a.out, e)
	return len(a.out) < a.limit
}
