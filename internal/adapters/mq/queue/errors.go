package queue

import "errors"

// Sentinel kinds for queue errors.
var (
	ErrFull   = errors.New("submission queue full")
	ErrClosed = errors.New("submission queue closed")
)
