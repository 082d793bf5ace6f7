package sequence

import (
	"errors"
	"fmt"
)

// Scheduler and sequence errors.
var (
	ErrSessionInactive = errors.New("session is not active")
	ErrCancelled       = errors.New("sequence cancelled")
	ErrOwnerDestroyed  = errors.New("owner destroyed")
	ErrSchedulerClosed = errors.New("scheduler closed")
)

// CancelError is the rejection reason carried through a cancelled chain.
type CancelError struct {
	Sequence string
	Owner    string
	By       string
	Reason   string
	cause    error
}

func (e *CancelError) Error() string {
	msg := fmt.Sprintf("sequence %q cancelled", e.Sequence)
	if e.By != "" {
		msg += fmt.Sprintf(" by %q", e.By)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// Unwrap lets errors.Is match both ErrCancelled and the specific cause
// (ErrOwnerDestroyed, ErrSchedulerClosed) when there is one.
func (e *CancelError) Unwrap() []error {
	if e.cause != nil {
		return []error{ErrCancelled, e.cause}
	}
	return []error{ErrCancelled}
}

// FactoryError reports a sub-sequence factory that failed while its step was
// being constructed.
type FactoryError struct {
	Sequence string
	Step     int
	Err      error
}

func (e *FactoryError) Error() string {
	return fmt.Sprintf("sequence %q step %d: sub-sequence factory: %v", e.Sequence, e.Step, e.Err)
}

func (e *FactoryError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is a cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
