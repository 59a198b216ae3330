package tracker

import (
	"github.com/juju/errors"
)

var (
	// ErrMalformedInput marks a reply that cannot be decoded, e.g. a peer list
	// that is not a whole number of entries.
	ErrMalformedInput = errors.New("malformed tracker message")
	// ErrIO marks socket failures that persisted through every attempt.
	ErrIO = errors.New("tracker transport failure")
	// ErrTimeout is returned when no correlated reply arrived within the
	// retry budget.
	ErrTimeout = errors.New("tracker request timed out")
	// ErrProtocolMismatch is returned when the tracker answered the
	// transaction with an unexpected action.
	ErrProtocolMismatch = errors.New("tracker protocol mismatch")
	ErrResolutionFailed = errors.New("tracker address resolution failed")
)

// TrackerError is an error reply (action 3) to one of our transactions.
type TrackerError struct {
	Message string
}

func (e *TrackerError) Error() string {
	return "tracker error: " + e.Message
}

func (e *TrackerError) Unwrap() error {
	return ErrProtocolMismatch
}
