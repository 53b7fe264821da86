// Package scoring turns a finished game into a leaderboard entry: it assigns
// the day and ISO-week buckets and normalizes the submitted figures.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/okian/flaggy/internal/domain/model"
)

// AnonymousName is used when a player has no display name.
const AnonymousName = "Anonymous"

// Periods identifies the leaderboard buckets a moment falls into.
type Periods struct {
	DayID  string // YYYY-MM-DD, UTC
	WeekID string // <ISO year>-W<ISO week>, week not zero padded
}

// PeriodIDs returns the UTC day and ISO-week ids for t.
func PeriodIDs(t time.Time) Periods {
	u := t.UTC()
	year, week := u.ISOWeek()
	return Periods{
		DayID:  u.Format(time.DateOnly),
		WeekID: fmt.Sprintf("%d-W%d", year, week),
	}
}

// Stamp converts a submission into an insert-ready entry. now is used
// when the submission carries no timestamp.
func Stamp(sub model.Submission, now time.Time) model.Entry {
	ts := sub.SubmittedAt
	if ts.IsZero() {
		ts = now
	}
	ts = ts.UTC()
	p := PeriodIDs(ts)

	name := strings.TrimSpace(sub.DisplayName)
	if name == "" {
		name = AnonymousName
	}

	return model.Entry{
		ID:          sub.ID,
		UID:         sub.UID,
		DisplayName: name,
		PhotoURL:    sub.PhotoURL,
		Score:       sub.Score,
		Accuracy:    round1(sub.Accuracy),
		AverageTime: round1(sub.AverageTime),
		Difficulty:  strings.ToLower(sub.Difficulty),
		Country:     strings.ToUpper(strings.TrimSpace(sub.Country)),
		Timestamp:   ts,
		DayID:       p.DayID,
		WeekID:      p.WeekID,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
