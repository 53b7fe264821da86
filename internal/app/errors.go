package service

import "errors"

var (
	// ErrNotStarted is returned by operations that need Start first.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidSubmission means a score failed validation.
	ErrInvalidSubmission = errors.New("invalid submission")
	// ErrInvalidScope means the leaderboard scope is neither global nor country.
	ErrInvalidScope = errors.New("invalid scope")
	// ErrNoQuestion means the game has not served a question yet.
	ErrNoQuestion = errors.New("no question served")
	// ErrNotOwner means a signed-in player's game was touched by someone else.
	ErrNotOwner = errors.New("game belongs to another player")
	// ErrPositionUnsupported means the configured store cannot rank one entry.
	ErrPositionUnsupported = errors.New("position lookup not supported by store")
)
