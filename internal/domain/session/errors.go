package session

import "errors"

var (
	// ErrAlreadyResolved is returned to whichever of answer or timeout loses the race.
	ErrAlreadyResolved = errors.New("round already resolved")
	// ErrNoActiveRound means no question has been served yet.
	ErrNoActiveRound = errors.New("no active round")
	// ErrRoundInProgress is returned by Next while the current round is open.
	ErrRoundInProgress = errors.New("round still in progress")
	// ErrInvalidOption means the answer is not one of the offered options.
	ErrInvalidOption = errors.New("answer is not one of the options")
	// ErrClosed is returned once the session was torn down.
	ErrClosed = errors.New("session closed")
	// ErrNotFound is returned by the store for unknown or expired ids.
	ErrNotFound = errors.New("session not found")
)
