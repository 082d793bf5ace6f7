package sequence

import (
	"fmt"
	"time"
)

// NoTimeout disables the timeout of predicate and sub-sequence steps.
const NoTimeout time.Duration = -1

// Kind tags a Step descriptor.
type Kind int

const (
	KindAction Kind = iota
	KindTime
	KindFrames
	KindPredicate
	KindManual
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindAction:
		return "action"
	case KindTime:
		return "time"
	case KindFrames:
		return "frames"
	case KindPredicate:
		return "predicate"
	case KindManual:
		return "manual"
	case KindSequence:
		return "sequence"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Factory lazily builds the sequence a KindSequence step waits on.
type Factory func() (*Sequence, error)

// Step describes one suspend condition. Only the fields relevant to Kind are
// read.
type Step struct {
	Kind      Kind
	Duration  time.Duration // KindTime
	Frames    uint64        // KindFrames
	Predicate func() bool   // KindPredicate
	Factory   Factory       // KindSequence
	Timeout   time.Duration // KindPredicate, KindSequence; NoTimeout disables
	Action    func()        // KindAction
}

func (s Step) String() string {
	switch s.Kind {
	case KindTime:
		return fmt.Sprintf("time %s", s.Duration)
	case KindFrames:
		return fmt.Sprintf("frames %d", s.Frames)
	case KindPredicate, KindSequence:
		if s.Timeout >= 0 {
			return fmt.Sprintf("%s timeout=%s", s.Kind, s.Timeout)
		}
	}
	return s.Kind.String()
}

// stepRun is a constructed step: the descriptor plus the clock and frame
// snapshots taken when it became current.
type stepRun struct {
	step       Step
	index      int
	future     *Future
	startTime  time.Duration
	startFrame uint64
	sub        *Sequence
}

func newStepRun(step Step, index int, now time.Duration, frame uint64) *stepRun {
	return &stepRun{
		step:       step,
		index:      index,
		future:     NewFuture(),
		startTime:  now,
		startFrame: frame,
	}
}

// check reports whether the step's condition holds at the given clock
// reading and frame index.
func (r *stepRun) check(now time.Duration, frame uint64) bool {
	elapsed := now - r.startTime
	switch r.step.Kind {
	case KindAction:
		return true
	case KindTime:
		return elapsed >= r.step.Duration
	case KindFrames:
		return frame >= r.startFrame+r.step.Frames
	case KindPredicate:
		if r.step.Predicate != nil && r.step.Predicate() {
			return true
		}
		return r.timedOut(elapsed)
	case KindManual:
		return false
	case KindSequence:
		if r.sub == nil || r.sub.Done() {
			return true
		}
		return r.timedOut(elapsed)
	}
	return false
}

func (r *stepRun) timedOut(elapsed time.Duration) bool {
	return r.step.Timeout >= 0 && elapsed >= r.step.Timeout
}
