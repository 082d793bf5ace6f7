package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: host input, clock adjustments
	PhasePreUpdate               // 1: deliver last tick's events
	PhaseUpdate                  // 2: advance sequences
	PhasePostUpdate              // 3: react to sequence results
	PhasePersist                 // 4: journal flush
	PhaseCleanup                 // 5: destroy queued owners
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseUpdate:
		return "update"
	case PhasePostUpdate:
		return "post-update"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	}
	return "unknown"
}

// System is one unit of per-tick work.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
