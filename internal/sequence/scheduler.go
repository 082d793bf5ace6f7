// Package sequence implements tick-driven deferred execution: chains of wait
// steps (time, frame count, predicate, manual, sub-sequence, action) advanced
// once per tick by a Scheduler owned by the host session.
//
// Everything in this package runs on the goroutine that calls Tick. There is
// no locking; suspension is purely logical, a pending step just stays pending
// across ticks until its condition holds.
package sequence

import (
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/core/ecs"
	"go.uber.org/zap"
)

// Clocks are the two time sources a sequence can be measured against.
type Clocks struct {
	Session clock.Provider // pausable, scaled game time
	Wall    clock.Provider // real time
}

// Scheduler tracks active sequences and advances them once per Tick. It is
// created at session start, gated by Activate/Deactivate, and disposed with
// Close at session end.
type Scheduler struct {
	clocks  Clocks
	log     *zap.Logger
	active  bool
	closed  bool
	ticking bool

	frame   uint64
	version uint64
	seqs    []*Sequence // newest first

	onChange  []func(prev, cur int)
	onRemoved []func(*Sequence)
}

// New creates an inactive scheduler. Missing clocks default to a fresh
// session clock and the process wall clock.
func New(clocks Clocks, log *zap.Logger) *Scheduler {
	if clocks.Session == nil {
		clocks.Session = clock.NewSession()
	}
	if clocks.Wall == nil {
		clocks.Wall = clock.NewWall()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		clocks: clocks,
		log:    log,
		seqs:   make([]*Sequence, 0, 32),
	}
}

// Activate opens the session gate. A closed scheduler stays inactive.
func (s *Scheduler) Activate() {
	if s.closed {
		s.log.Warn("activate ignored: scheduler closed")
		return
	}
	s.active = true
}

// Deactivate closes the session gate. Tracked sequences keep running; new
// ones are refused.
func (s *Scheduler) Deactivate() { s.active = false }

func (s *Scheduler) Active() bool    { return s.active }
func (s *Scheduler) Frame() uint64   { return s.frame }
func (s *Scheduler) Version() uint64 { return s.version }
func (s *Scheduler) Len() int        { return len(s.seqs) }
func (s *Scheduler) Clocks() Clocks  { return s.clocks }

// Sequences returns the tracked sequences, newest first.
func (s *Scheduler) Sequences() []*Sequence {
	out := make([]*Sequence, len(s.seqs))
	copy(out, s.seqs)
	return out
}

// OnChange registers a hook fired at most once per Tick, when the number of
// tracked sequences differs from before the tick.
func (s *Scheduler) OnChange(fn func(prev, cur int)) {
	s.onChange = append(s.onChange, fn)
}

// OnRemoved registers a hook fired for every sequence pruned from the
// registry, after its result has settled.
func (s *Scheduler) OnRemoved(fn func(*Sequence)) {
	s.onRemoved = append(s.onRemoved, fn)
}

// NewSequence creates and registers an empty sequence. It fails with
// ErrSessionInactive while the session gate is closed.
func (s *Scheduler) NewSequence(name string) (*Sequence, error) {
	if !s.active {
		return nil, ErrSessionInactive
	}
	seq := newSequence(s, name)
	s.Add(seq)
	return seq, nil
}

// WaitFor starts a sequence whose first step waits d on the session clock.
func (s *Scheduler) WaitFor(d time.Duration) (*Sequence, error) {
	seq, err := s.NewSequence("")
	if err != nil {
		return nil, err
	}
	return seq.WaitFor(d), nil
}

// WaitForFrameCount starts a sequence whose first step waits n ticks.
func (s *Scheduler) WaitForFrameCount(n int) (*Sequence, error) {
	seq, err := s.NewSequence("")
	if err != nil {
		return nil, err
	}
	return seq.WaitForFrameCount(n), nil
}

// WaitUntil starts a sequence whose first step waits for pred.
func (s *Scheduler) WaitUntil(pred func() bool) (*Sequence, error) {
	seq, err := s.NewSequence("")
	if err != nil {
		return nil, err
	}
	return seq.WaitUntil(pred), nil
}

// WaitManual starts a sequence whose first step waits for Complete.
func (s *Scheduler) WaitManual() (*Sequence, error) {
	seq, err := s.NewSequence("")
	if err != nil {
		return nil, err
	}
	return seq.WaitManual(), nil
}

// Add registers a sequence at the front of the tracked set. It is a no-op
// while the session is inactive, for sequences of another scheduler and for
// sequences already tracked.
func (s *Scheduler) Add(seq *Sequence) {
	if seq == nil || seq.sched != s || seq.tracked {
		return
	}
	if !s.active {
		s.log.Debug("sequence dropped: session inactive", zap.String("sequence", seq.name))
		return
	}
	seq.tracked = true
	s.seqs = append(s.seqs, nil)
	copy(s.seqs[1:], s.seqs)
	s.seqs[0] = seq
	s.version++
}

// Tick advances every tracked sequence by one step and prunes the ones that
// are done. It runs regardless of the session gate, which only refuses new
// sequences. It must be called exactly once per host frame from a single
// goroutine; a reentrant call is logged and ignored.
func (s *Scheduler) Tick() {
	if s.ticking {
		s.log.Error("reentrant scheduler tick ignored", zap.Uint64("frame", s.frame))
		return
	}
	s.ticking = true
	defer func() { s.ticking = false }()

	s.frame++
	before := len(s.seqs)

	// Sequences added while updating wait for the next tick.
	snapshot := make([]*Sequence, len(s.seqs))
	copy(snapshot, s.seqs)
	for _, seq := range snapshot {
		seq.Update()
	}

	s.prune()
	s.notify(before)
}

func (s *Scheduler) prune() {
	var removed []*Sequence
	kept := make([]*Sequence, 0, len(s.seqs))
	for _, seq := range s.seqs {
		if seq.Done() {
			removed = append(removed, seq)
			continue
		}
		kept = append(kept, seq)
	}
	if len(removed) == 0 {
		return
	}
	s.seqs = kept
	s.version += uint64(len(removed))

	for _, seq := range removed {
		seq.tracked = false
		seq.settle()
		for _, fn := range s.onRemoved {
			fn(seq)
		}
	}
}

func (s *Scheduler) notify(before int) {
	after := len(s.seqs)
	if after == before {
		return
	}
	for _, fn := range s.onChange {
		fn(before, after)
	}
}

// CancelOwned cancels every tracked sequence bound to owner and returns how
// many were cancelled. Cancelled sequences are pruned on the next Tick.
func (s *Scheduler) CancelOwned(owner ecs.EntityID, reason string) int {
	return s.cancelOwned(owner, reason, "", nil)
}

// Remove implements ecs.Removable: an owner being destroyed cancels its
// sequences.
func (s *Scheduler) Remove(owner ecs.EntityID) {
	s.cancelOwned(owner, "owner destroyed", "", ErrOwnerDestroyed)
}

func (s *Scheduler) cancelOwned(owner ecs.EntityID, reason, by string, cause error) int {
	if owner.IsZero() {
		return 0
	}
	n := 0
	for _, seq := range s.Sequences() {
		if seq.owner.ID != owner {
			continue
		}
		who := by
		if who == "" {
			who = seq.owner.Label
		}
		if seq.cancel(reason, who, cause) {
			n++
		}
	}
	return n
}

// Close ends the session: the gate is closed for good, every tracked
// sequence is cancelled and pruned immediately.
func (s *Scheduler) Close(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.active = false
	before := len(s.seqs)
	for _, seq := range s.Sequences() {
		seq.cancel(reason, "scheduler", ErrSchedulerClosed)
	}
	s.prune()
	s.notify(before)
	s.log.Info("scheduler closed",
		zap.Uint64("frame", s.frame),
		zap.Int("removed", before-len(s.seqs)))
}
