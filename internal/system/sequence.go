package system

import (
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/core/event"
	coresys "github.com/l1jgo/tickseq/internal/core/system"
	"github.com/l1jgo/tickseq/internal/sequence"
	"go.uber.org/zap"
)

// SequenceSystem is the scheduler's tick hook: it advances the session clock
// by the tick delta and ticks the scheduler once. Pruned sequences and
// active-count changes are emitted on the bus. Phase 2 (Update).
type SequenceSystem struct {
	sched   *sequence.Scheduler
	session *clock.Session
	bus     *event.Bus
	log     *zap.Logger
}

func NewSequenceSystem(sched *sequence.Scheduler, session *clock.Session, bus *event.Bus, log *zap.Logger) *SequenceSystem {
	s := &SequenceSystem{sched: sched, session: session, bus: bus, log: log}
	sched.OnRemoved(s.finished)
	sched.OnChange(s.changed)
	return s
}

func (s *SequenceSystem) Phase() coresys.Phase { return coresys.PhaseUpdate }

func (s *SequenceSystem) Update(dt time.Duration) {
	s.session.Advance(dt)
	s.sched.Tick()
}

func (s *SequenceSystem) finished(seq *sequence.Sequence) {
	ev := event.SequenceFinished{
		ID:         seq.ID(),
		Name:       seq.Name(),
		Owner:      seq.Owner().Label,
		Outcome:    event.OutcomeCompleted,
		Steps:      seq.Len(),
		StartFrame: seq.CreatedFrame(),
		EndFrame:   s.sched.Frame(),
	}
	if res := seq.Result(); res.State() == sequence.Rejected {
		ev.Outcome = event.OutcomeCancelled
		ev.Reason = res.Reason().Error()
	}
	event.Emit(s.bus, ev)
}

func (s *SequenceSystem) changed(prev, cur int) {
	event.Emit(s.bus, event.ActiveCountChanged{
		Frame: s.sched.Frame(),
		Prev:  prev,
		Cur:   cur,
	})
}
