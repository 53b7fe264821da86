package country

import (
	"fmt"
	"strings"
	"time"
)

// Difficulty selects how many of the most populous countries are in play
// and how long a round lasts.
type Difficulty string

const (
	Beginner Difficulty = "beginner"
	Medium   Difficulty = "medium"
	Hard     Difficulty = "hard"
	Genius   Difficulty = "genius"
)

// Difficulties lists every level from easiest to hardest.
func Difficulties() []Difficulty {
	return []Difficulty{Beginner, Medium, Hard, Genius}
}

// ParseDifficulty parses a difficulty name, ignoring case and surrounding space.
func ParseDifficulty(s string) (Difficulty, error) {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	switch d {
	case Beginner, Medium, Hard, Genius:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownDifficulty, s)
	}
}

// Limit is the number of countries kept by population rank; 0 keeps all.
func (d Difficulty) Limit() int {
	switch d {
	case Beginner:
		return 50
	case Medium:
		return 100
	case Hard:
		return 200
	default:
		return 0
	}
}

// TimeLimit is the countdown for a single round.
func (d Difficulty) TimeLimit() time.Duration {
	switch d {
	case Beginner:
		return 15 * time.Second
	case Medium:
		return 10 * time.Second
	case Hard:
		return 7 * time.Second
	case Genius:
		return 2 * time.Second
	default:
		return 15 * time.Second
	}
}

// Next returns the level after d. ok is false for genius.
func (d Difficulty) Next() (next Difficulty, ok bool) {
	switch d {
	case Beginner:
		return Medium, true
	case Medium:
		return Hard, true
	case Hard:
		return Genius, true
	default:
		return "", false
	}
}

func (d Difficulty) String() string { return string(d) }
