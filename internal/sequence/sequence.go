package sequence

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/l1jgo/tickseq/internal/core/ecs"
	"go.uber.org/zap"
)

// Owner identifies the context a sequence belongs to. The label is only used
// in diagnostics; the ID lets the scheduler cancel everything an owner holds
// when it is destroyed.
type Owner struct {
	ID    ecs.EntityID
	Label string
}

// Sequence is an ordered chain of steps advanced once per tick. Steps are
// kept as descriptors and constructed one at a time: step N+1 is built only
// when step N resolves, so later steps may depend on state that becomes
// valid only once earlier ones finish. A rejected step ends the chain.
//
// Sequences are created by a Scheduler and are not safe for concurrent use.
type Sequence struct {
	id       uuid.UUID
	sched    *Scheduler
	log      *zap.Logger
	name     string
	owner    Owner
	realTime bool
	advanced bool
	tracked  bool

	steps   []Step
	current *stepRun
	result  *Future

	createdFrame uint64
}

func newSequence(sched *Scheduler, name string) *Sequence {
	id := uuid.New()
	if name == "" {
		name = "seq-" + id.String()[:8]
	}
	return &Sequence{
		id:           id,
		sched:        sched,
		log:          sched.log,
		name:         name,
		result:       NewFuture(),
		createdFrame: sched.frame,
	}
}

func (s *Sequence) ID() uuid.UUID        { return s.id }
func (s *Sequence) Name() string         { return s.name }
func (s *Sequence) Owner() Owner         { return s.owner }
func (s *Sequence) RealTime() bool       { return s.realTime }
func (s *Sequence) CreatedFrame() uint64 { return s.createdFrame }
func (s *Sequence) Len() int             { return len(s.steps) }

// Result settles when the sequence finishes: resolved once it is observed
// done, rejected as soon as the chain is rejected.
func (s *Sequence) Result() *Future { return s.result }

// WithName relabels the sequence.
func (s *Sequence) WithName(name string) *Sequence {
	if name != "" {
		s.name = name
	}
	return s
}

// WithOwner binds the sequence to an owner entity.
func (s *Sequence) WithOwner(id ecs.EntityID, label string) *Sequence {
	s.owner = Owner{ID: id, Label: label}
	return s
}

// Then appends an action step: fn runs when the previous step resolves and
// the step resolves immediately after.
func (s *Sequence) Then(fn func()) *Sequence {
	return s.append(Step{Kind: KindAction, Action: fn})
}

// WaitFor waits until d has elapsed on the sequence's clock.
func (s *Sequence) WaitFor(d time.Duration) *Sequence {
	if d < 0 {
		d = 0
	}
	return s.append(Step{Kind: KindTime, Duration: d})
}

// WaitForFrame waits for the next tick.
func (s *Sequence) WaitForFrame() *Sequence {
	return s.WaitForFrameCount(1)
}

// WaitForFrameCount waits until the scheduler has ticked n more times.
func (s *Sequence) WaitForFrameCount(n int) *Sequence {
	if n < 0 {
		n = 0
	}
	return s.append(Step{Kind: KindFrames, Frames: uint64(n)})
}

// WaitUntil waits until pred reports true. pred is called at most once per
// tick while the step is pending.
func (s *Sequence) WaitUntil(pred func() bool) *Sequence {
	return s.WaitUntilTimeout(pred, NoTimeout)
}

// WaitUntilTimeout waits until pred reports true or timeout elapses,
// whichever comes first. Either way the step resolves.
func (s *Sequence) WaitUntilTimeout(pred func() bool, timeout time.Duration) *Sequence {
	return s.append(Step{Kind: KindPredicate, Predicate: pred, Timeout: timeout})
}

// WaitForSequence waits until the sequence built by factory is done. The
// factory runs once, when this step becomes current.
func (s *Sequence) WaitForSequence(factory Factory) *Sequence {
	return s.WaitForSequenceTimeout(factory, NoTimeout)
}

// WaitForSequenceTimeout is WaitForSequence bounded by timeout.
func (s *Sequence) WaitForSequenceTimeout(factory Factory, timeout time.Duration) *Sequence {
	return s.append(Step{Kind: KindSequence, Factory: factory, Timeout: timeout})
}

// WaitManual waits until Complete or a cancellation settles the step.
func (s *Sequence) WaitManual() *Sequence {
	return s.append(Step{Kind: KindManual})
}

// OrElse runs fn once if the chain is rejected.
func (s *Sequence) OrElse(fn func(error)) *Sequence {
	s.result.OrElse(fn)
	return s
}

// InRealTime measures the sequence against the wall clock instead of the
// session clock. It must be called before the first Update; later calls are
// logged and ignored.
func (s *Sequence) InRealTime() *Sequence {
	if s.advanced {
		s.log.Warn("real-time switch ignored: sequence already started",
			zap.String("sequence", s.name))
		return s
	}
	if s.realTime {
		return s
	}
	s.realTime = true
	if cur := s.current; cur != nil {
		cur.startTime = s.now()
	}
	return s
}

// Append adds a raw step descriptor. Builders are thin wrappers over it.
func (s *Sequence) Append(step Step) *Sequence {
	return s.append(step)
}

func (s *Sequence) append(step Step) *Sequence {
	switch s.result.State() {
	case Rejected:
		return s
	case Resolved:
		s.log.Warn("step ignored: sequence already finished",
			zap.String("sequence", s.name),
			zap.Stringer("step", step))
		return s
	}
	s.steps = append(s.steps, step)
	s.advance()
	return s
}

// advance constructs the next step if the current one has resolved. It is
// also the resolve continuation of every step future, so a chain of
// immediately-resolving steps unrolls synchronously.
func (s *Sequence) advance() {
	next := 0
	if cur := s.current; cur != nil {
		if cur.future.State() != Resolved {
			return
		}
		next = cur.index + 1
	}
	if next >= len(s.steps) {
		return
	}
	run := newStepRun(s.steps[next], next, s.now(), s.sched.frame)
	s.current = run
	run.future.Then(s.advance, s.fail)
	s.begin(run)
}

func (s *Sequence) begin(run *stepRun) {
	switch run.step.Kind {
	case KindAction:
		if run.step.Action != nil {
			run.step.Action()
		}
		run.future.Resolve()
	case KindSequence:
		sub, err := s.build(run.step.Factory)
		if err != nil {
			ferr := &FactoryError{Sequence: s.name, Step: run.index, Err: err}
			s.log.Error("sub-sequence construction failed, step skipped",
				zap.String("sequence", s.name),
				zap.Int("step", run.index),
				zap.Error(ferr))
			run.future.Resolve()
			return
		}
		run.sub = sub
	}
}

// build is the one place caller errors are caught: a failing factory must not
// wedge the outer chain.
func (s *Sequence) build(factory Factory) (sub *Sequence, err error) {
	if factory == nil {
		return nil, errors.New("nil factory")
	}
	defer func() {
		if r := recover(); r != nil {
			sub, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	sub, err = factory()
	switch {
	case err != nil:
		return nil, err
	case sub == nil:
		return nil, errors.New("factory returned no sequence")
	case sub == s:
		return nil, errors.New("sequence cannot wait on itself")
	}
	return sub, nil
}

func (s *Sequence) fail(reason error) {
	s.result.Reject(reason)
}

func (s *Sequence) now() time.Duration {
	if s.realTime {
		return s.sched.clocks.Wall.Now()
	}
	return s.sched.clocks.Session.Now()
}

// Update advances the sequence by one tick: the current step is checked and,
// if its condition holds, resolved, which constructs the next step in place.
func (s *Sequence) Update() {
	s.advanced = true
	if cur := s.current; cur != nil && cur.future.State() == Pending {
		if cur.check(s.now(), s.sched.frame) {
			cur.future.Resolve()
		}
	}
	s.settle()
}

func (s *Sequence) settle() {
	if s.Done() {
		s.result.Resolve()
	}
}

// Done reports whether the chain has finished: the current step is settled
// and either it was rejected or no further step is queued.
func (s *Sequence) Done() bool {
	cur := s.current
	if cur == nil {
		return true
	}
	switch cur.future.State() {
	case Rejected:
		return true
	case Resolved:
		return cur.index == len(s.steps)-1
	}
	return false
}

// Complete force-resolves the current step if it is still pending.
func (s *Sequence) Complete() {
	if cur := s.current; cur != nil && cur.future.State() == Pending {
		cur.future.Resolve()
	}
}

// Cancel rejects the current step. It reports false if the sequence was
// already done.
func (s *Sequence) Cancel(reason string) bool {
	return s.cancel(reason, "", nil)
}

// CancelBy is Cancel naming the cancelling context in the log line and the
// rejection reason.
func (s *Sequence) CancelBy(reason, by string) bool {
	return s.cancel(reason, by, nil)
}

func (s *Sequence) cancel(reason, by string, cause error) bool {
	cur := s.current
	if s.Done() || cur.future.State() != Pending {
		return false
	}
	err := &CancelError{
		Sequence: s.name,
		Owner:    s.owner.Label,
		By:       by,
		Reason:   reason,
		cause:    cause,
	}
	fields := []zap.Field{zap.String("sequence", s.name), zap.Int("step", cur.index)}
	if s.owner.Label != "" {
		fields = append(fields, zap.String("owner", s.owner.Label))
	}
	if by != "" {
		fields = append(fields, zap.String("by", by))
	}
	if reason != "" {
		fields = append(fields, zap.String("reason", reason))
	}
	s.log.Info("sequence cancelled", fields...)
	return cur.future.Reject(err)
}

// StepInfo is a read-only view of one step for diagnostics.
type StepInfo struct {
	Index   int
	Kind    Kind
	Desc    string
	State   string
	Current bool
}

// Steps reports every descriptor with its state: resolved, pending or
// rejected once constructed; queued or skipped (after a rejection) if not.
func (s *Sequence) Steps() []StepInfo {
	out := make([]StepInfo, len(s.steps))
	cur := -1
	rejected := false
	if s.current != nil {
		cur = s.current.index
		rejected = s.current.future.State() == Rejected
	}
	for i, st := range s.steps {
		info := StepInfo{Index: i, Kind: st.Kind, Desc: st.String(), Current: i == cur}
		switch {
		case i < cur:
			info.State = Resolved.String()
		case i == cur:
			info.State = s.current.future.State().String()
		case rejected:
			info.State = "skipped"
		default:
			info.State = "queued"
		}
		out[i] = info
	}
	return out
}

// Describe renders the chain, one step per line, marking the current step.
func (s *Sequence) Describe() string {
	var b strings.Builder
	mode := "session"
	if s.realTime {
		mode = "wall"
	}
	fmt.Fprintf(&b, "sequence %q clock=%s", s.name, mode)
	if s.owner.Label != "" {
		fmt.Fprintf(&b, " owner=%q", s.owner.Label)
	}
	b.WriteByte('\n')
	for _, st := range s.Steps() {
		marker := " "
		if st.Current {
			marker = ">"
		}
		fmt.Fprintf(&b, "%s %d %s [%s]\n", marker, st.Index, st.Desc, st.State)
	}
	return b.String()
}

func (s *Sequence) String() string {
	return s.name
}
