package timeline

import (
	"fmt"

	"github.com/l1jgo/tickseq/internal/core/ecs"
	"github.com/l1jgo/tickseq/internal/sequence"
	"go.uber.org/zap"
)

// Signals is the shared flag set raised and cleared by timeline actions and
// polled by until steps.
type Signals struct {
	raised map[string]bool
}

func NewSignals() *Signals {
	return &Signals{raised: make(map[string]bool)}
}

func (s *Signals) Raise(name string)       { s.raised[name] = true }
func (s *Signals) Clear(name string)       { delete(s.raised, name) }
func (s *Signals) Raised(name string) bool { return s.raised[name] }

// Runner starts timelines on a scheduler.
type Runner struct {
	table   *Table
	sched   *sequence.Scheduler
	signals *Signals
	log     *zap.Logger
}

func NewRunner(table *Table, sched *sequence.Scheduler, signals *Signals, log *zap.Logger) *Runner {
	if signals == nil {
		signals = NewSignals()
	}
	return &Runner{table: table, sched: sched, signals: signals, log: log}
}

func (r *Runner) Signals() *Signals { return r.signals }
func (r *Runner) Table() *Table     { return r.table }

// Start builds the named timeline as a new registered sequence.
func (r *Runner) Start(name string) (*sequence.Sequence, error) {
	return r.StartOwned(name, 0)
}

// StartOwned is Start binding the sequence to an owner entity.
func (r *Runner) StartOwned(name string, owner ecs.EntityID) (*sequence.Sequence, error) {
	tl := r.table.Get(name)
	if tl == nil {
		return nil, fmt.Errorf("unknown timeline %q", name)
	}
	seq, err := r.sched.NewSequence(tl.Name)
	if err != nil {
		return nil, fmt.Errorf("start timeline %q: %w", name, err)
	}
	if owner != 0 || tl.Owner != "" {
		seq.WithOwner(owner, tl.Owner)
	}
	if tl.RealTime {
		seq.InRealTime()
	}
	for _, st := range tl.Steps {
		seq.Append(r.compile(tl.Name, st, owner))
	}
	return seq, nil
}

func (r *Runner) compile(timeline string, st StepSpec, owner ecs.EntityID) sequence.Step {
	timeout := sequence.NoTimeout
	if st.Timeout != "" {
		timeout, _ = parseDuration(st.Timeout)
	}
	switch {
	case st.Wait != "":
		d, _ := parseDuration(st.Wait)
		return sequence.Step{Kind: sequence.KindTime, Duration: d}
	case st.Frames != nil:
		return sequence.Step{Kind: sequence.KindFrames, Frames: uint64(*st.Frames)}
	case st.Until != "":
		signal := st.Until
		return sequence.Step{
			Kind:      sequence.KindPredicate,
			Predicate: func() bool { return r.signals.Raised(signal) },
			Timeout:   timeout,
		}
	case st.Manual:
		return sequence.Step{Kind: sequence.KindManual}
	case st.Start != "":
		target := st.Start
		return sequence.Step{
			Kind: sequence.KindSequence,
			Factory: func() (*sequence.Sequence, error) {
				return r.StartOwned(target, owner)
			},
			Timeout: timeout,
		}
	case st.Say != "":
		text := st.Say
		return sequence.Step{Kind: sequence.KindAction, Action: func() {
			r.log.Info(text, zap.String("timeline", timeline), zap.Uint64("frame", r.sched.Frame()))
		}}
	case st.Raise != "":
		signal := st.Raise
		return sequence.Step{Kind: sequence.KindAction, Action: func() { r.signals.Raise(signal) }}
	default:
		signal := st.Clear
		return sequence.Step{Kind: sequence.KindAction, Action: func() { r.signals.Clear(signal) }}
	}
}

// StartAll starts each named timeline, stopping at the first failure.
func (r *Runner) StartAll(names []string) ([]*sequence.Sequence, error) {
	out := make([]*sequence.Sequence, 0, len(names))
	for _, name := range names {
		seq, err := r.Start(name)
		if err != nil {
			return out, err
		}
		out = append(out, seq)
	}
	return out, nil
}
