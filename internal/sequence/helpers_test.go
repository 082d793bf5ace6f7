package sequence

import (
	"testing"
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type harness struct {
	sched   *Scheduler
	session *clock.Manual
	wall    *clock.Manual
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	h := &harness{
		session: clock.NewManual(),
		wall:    clock.NewManual(),
		logs:    logs,
	}
	h.sched = New(Clocks{Session: h.session, Wall: h.wall}, zap.New(core))
	h.sched.Activate()
	return h
}

// tick moves both clocks by dt and runs one scheduler tick.
func (h *harness) tick(dt time.Duration) {
	h.session.Advance(dt)
	h.wall.Advance(dt)
	h.sched.Tick()
}

func (h *harness) ticks(n int, dt time.Duration) {
	for i := 0; i < n; i++ {
		h.tick(dt)
	}
}

func (h *harness) seq(t *testing.T, name string) *Sequence {
	t.Helper()
	s, err := h.sched.NewSequence(name)
	if err != nil {
		t.Fatalf("new sequence: %v", err)
	}
	return s
}
