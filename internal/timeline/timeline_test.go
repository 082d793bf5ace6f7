package timeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/core/ecs"
	"github.com/l1jgo/tickseq/internal/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const doorYAML = `
- name: door_open
  owner: door
  steps:
    - wait: 200ms
    - say: the door creaks open
    - raise: door_opened
- name: guard
  steps:
    - until: door_opened
      timeout: 10s
    - start: door_open
      timeout: 1s
    - frames: 2
    - clear: door_opened
- name: idle
  real_time: true
  steps:
    - manual: true
`

func newRunner(t *testing.T, doc string) (*Runner, *sequence.Scheduler, *clock.Manual, *observer.ObservedLogs) {
	t.Helper()
	table, err := ParseTable([]byte(doc))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)
	session := clock.NewManual()
	sched := sequence.New(sequence.Clocks{Session: session, Wall: clock.NewManual()}, log)
	sched.Activate()
	return NewRunner(table, sched, nil, log), sched, session, logs
}

func TestParseTable(t *testing.T) {
	table, err := ParseTable([]byte(doorYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, table.Count())
	assert.Equal(t, []string{"door_open", "guard", "idle"}, table.Names())

	guard := table.Get("guard")
	require.NotNil(t, guard)
	require.Len(t, guard.Steps, 4)
	assert.Equal(t, "door_opened", guard.Steps[0].Until)
	assert.Equal(t, "10s", guard.Steps[0].Timeout)
	require.NotNil(t, guard.Steps[2].Frames)
	assert.Equal(t, 2, *guard.Steps[2].Frames)
	assert.True(t, table.Get("idle").RealTime)
	assert.Nil(t, table.Get("missing"))
}

func TestParseTable_Errors(t *testing.T) {
	tests := map[string]string{
		"missing name":   "- steps: [{wait: 1s}]\n",
		"duplicate":      "- name: a\n  steps: [{wait: 1s}]\n- name: a\n  steps: [{wait: 1s}]\n",
		"two kinds":      "- name: a\n  steps: [{wait: 1s, frames: 2}]\n",
		"no kind":        "- name: a\n  steps: [{timeout: 1s}]\n",
		"bad duration":   "- name: a\n  steps: [{wait: soon}]\n",
		"negative wait":  "- name: a\n  steps: [{wait: -1s}]\n",
		"negative frame": "- name: a\n  steps: [{frames: -1}]\n",
		"stray timeout":  "- name: a\n  steps: [{wait: 1s, timeout: 2s}]\n",
		"unknown start":  "- name: a\n  steps: [{start: b}]\n",
		"cycle":          "- name: a\n  steps: [{start: b}]\n- name: b\n  steps: [{start: a}]\n",
		"self cycle":     "- name: a\n  steps: [{start: a}]\n",
		"not a list":     "name: a\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseTable([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "timelines.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doorYAML), 0o644))
	table, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, 3, table.Count())

	_, err = LoadTable(filepath.Join(t.TempDir(), "none.yaml"))
	assert.ErrorContains(t, err, "read timelines")
}

func TestRunner_GuardWaitsForDoor(t *testing.T) {
	r, sched, session, logs := newRunner(t, doorYAML)

	guard, err := r.Start("guard")
	require.NoError(t, err)
	assert.Equal(t, "guard", guard.Name())

	tick := func() {
		session.Advance(100 * time.Millisecond)
		sched.Tick()
	}

	tick()
	assert.Equal(t, 1, sched.Len(), "guard is waiting on the signal")

	r.Signals().Raise("door_opened")
	tick()
	assert.Equal(t, 2, sched.Len(), "the start step built door_open")
	r.Signals().Clear("door_opened")

	tick()
	tick()
	assert.Equal(t, 1, logs.FilterMessage("the door creaks open").Len())
	assert.True(t, r.Signals().Raised("door_opened"))

	tick() // frames 1/2
	assert.False(t, guard.Done())
	tick()
	assert.True(t, guard.Done())
	assert.False(t, r.Signals().Raised("door_opened"), "guard cleared the signal")
	assert.Equal(t, 0, sched.Len())
}

func TestRunner_OwnerAndRealTime(t *testing.T) {
	r, _, _, _ := newRunner(t, doorYAML)
	world := ecs.NewWorld()
	id := world.CreateEntity("door#1")

	door, err := r.StartOwned("door_open", id)
	require.NoError(t, err)
	assert.Equal(t, sequence.Owner{ID: id, Label: "door"}, door.Owner())

	idle, err := r.Start("idle")
	require.NoError(t, err)
	assert.True(t, idle.RealTime())
}

func TestRunner_StartErrors(t *testing.T) {
	r, sched, _, _ := newRunner(t, doorYAML)
	_, err := r.Start("nope")
	assert.ErrorContains(t, err, "unknown timeline")

	sched.Deactivate()
	_, err = r.Start("guard")
	assert.ErrorIs(t, err, sequence.ErrSessionInactive)

	sched.Activate()
	seqs, err := r.StartAll([]string{"idle", "nope", "guard"})
	assert.Error(t, err)
	assert.Len(t, seqs, 1)
}
