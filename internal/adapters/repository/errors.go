package repository

import "errors"

// Sentinel kinds for leaderboard errors.
var (
	ErrDuplicate        = errors.New("leaderboard entry already exists")
	ErrInvalidLimit     = errors.New("invalid leaderboard limit")
	ErrInvalidTimeFrame = errors.New("invalid leaderboard time frame")
	ErrInvalidEntry     = errors.New("invalid leaderboard entry")
)
