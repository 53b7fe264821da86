// Package model contains domain models passed between layers.
package model

import "time"

// Submission is a finished game result handed to the leaderboard pipeline.
// ID is the idempotency key; clients may supply it, otherwise the service
// assigns a uuid.
type Submission struct {
	ID          string
	UID         string
	DisplayName string
	PhotoURL    string
	Score       int
	Accuracy    float64 // percent
	AverageTime float64 // seconds
	Difficulty  string
	Country     string // ISO-3166 alpha-2
	SubmittedAt time.Time
}

// Entry is a persisted leaderboard row. Entries are insert-only.
type Entry struct {
	ID          string    `json:"id"`
	UID         string    `json:"uid"`
	DisplayName string    `json:"displayName"`
	PhotoURL    string    `json:"photoURL,omitempty"`
	Score       int       `json:"score"`
	Accuracy    float64   `json:"accuracy"`
	AverageTime float64   `json:"averageTime"`
	Difficulty  string    `json:"difficulty"`
	Country     string    `json:"country"`
	Timestamp   time.Time `json:"timestamp"`
	DayID       string    `json:"dayId"`
	WeekID      string    `json:"weekId"`
}

// Ranked is an entry with its 1-based position in a leaderboard view.
type Ranked struct {
	Rank int `json:"rank"`
	Entry
}
