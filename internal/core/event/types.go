package event

import "github.com/google/uuid"

// Outcome of a finished sequence.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
)

// SequenceFinished is emitted when the scheduler prunes a sequence.
type SequenceFinished struct {
	ID         uuid.UUID
	Name       string
	Owner      string
	Outcome    Outcome
	Reason     string
	Steps      int
	StartFrame uint64
	EndFrame   uint64
}

// ActiveCountChanged is emitted when a tick changes the number of tracked
// sequences.
type ActiveCountChanged struct {
	Frame uint64
	Prev  int
	Cur   int
}
