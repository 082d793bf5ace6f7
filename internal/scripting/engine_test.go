package scripting

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/l1jgo/tickseq/internal/clock"
	"github.com/l1jgo/tickseq/internal/sequence"
	"github.com/l1jgo/tickseq/internal/timeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type fixture struct {
	engine  *Engine
	sched   *sequence.Scheduler
	session *clock.Manual
	wall    *clock.Manual
	logs    *observer.ObservedLogs
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := &fixture{session: clock.NewManual(), wall: clock.NewManual(), logs: logs}
	f.sched = sequence.New(sequence.Clocks{Session: f.session, Wall: f.wall}, zap.New(core))
	f.sched.Activate()
	f.engine = NewEngine(f.sched, zap.New(core), opts...)
	t.Cleanup(f.engine.Close)
	return f
}

func (f *fixture) tick(dt time.Duration) {
	f.session.Advance(dt)
	f.wall.Advance(dt)
	f.sched.Tick()
}

func (f *fixture) number(t *testing.T, name string) float64 {
	t.Helper()
	v, ok := f.engine.Global(name).(lua.LNumber)
	require.True(t, ok, "global %s is %s", name, f.engine.Global(name).Type())
	return float64(v)
}

func (f *fixture) boolean(name string) bool {
	return lua.LVAsBool(f.engine.Global(name))
}

func TestEngine_Chain(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		count = 0
		s = sequence.new("lua_chain")
			:wait_frames(1)
			:run(function() count = count + 1 end)
			:wait(0.5)
			:run(function() count = count + 10 end)
		name = s:name()
	`))
	assert.Equal(t, "lua_chain", f.engine.Global("name").String())
	assert.Equal(t, 1, f.sched.Len())
	assert.Equal(t, 0.0, f.number(t, "count"))

	f.tick(100 * time.Millisecond)
	assert.Equal(t, 1.0, f.number(t, "count"))

	f.tick(400 * time.Millisecond)
	assert.Equal(t, 1.0, f.number(t, "count"))

	f.tick(100 * time.Millisecond)
	assert.Equal(t, 11.0, f.number(t, "count"))
	assert.Equal(t, 0, f.sched.Len())
}

func TestEngine_WaitUntil(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		ready = false
		fired = false
		sequence.new("gate")
			:wait_until(function() return ready end)
			:run(function() fired = true end)
	`))

	f.tick(time.Second)
	assert.False(t, f.boolean("fired"))

	require.NoError(t, f.engine.DoString(`ready = true`))
	f.tick(time.Second)
	assert.True(t, f.boolean("fired"))
}

func TestEngine_WaitUntilTimeout(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		fired = false
		sequence.new("gate")
			:wait_until(function() return false end, 1.5)
			:run(function() fired = true end)
	`))

	f.tick(time.Second)
	assert.False(t, f.boolean("fired"))
	f.tick(time.Second)
	assert.True(t, f.boolean("fired"))
}

func TestEngine_PredicateErrorCancels(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		reason = nil
		sequence.new("broken")
			:wait_until(function() error("boom") end)
			:on_cancel(function(r) reason = r end)
	`))

	f.tick(100 * time.Millisecond)
	assert.Equal(t, 0, f.sched.Len())
	assert.Contains(t, f.engine.Global("reason").String(), "boom")
	assert.Equal(t, 1, f.logs.FilterMessage("lua predicate error").Len())
}

func TestEngine_WaitFor(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		after = false
		sequence.new("outer")
			:wait_for(function() return sequence.new("inner"):wait_frames(2) end)
			:run(function() after = true end)
	`))
	assert.Equal(t, 2, f.sched.Len())

	f.tick(time.Millisecond)
	assert.False(t, f.boolean("after"))

	// The inner sequence is newer so it updates first; the outer step sees
	// it done on the same tick.
	f.tick(time.Millisecond)
	assert.True(t, f.boolean("after"))
	assert.Equal(t, 0, f.sched.Len())
}

func TestEngine_WaitForBadFactory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		after = false
		sequence.new("outer")
			:wait_for(function() return 42 end)
			:run(function() after = true end)
	`))

	assert.True(t, f.boolean("after"))
	assert.Equal(t, 1, f.logs.FilterMessage("sub-sequence construction failed, step skipped").Len())
}

func TestEngine_ManualAndCancel(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		m = sequence.new("door"):wait_manual()
		c = sequence.new("trap"):wait_manual()
		why = nil
		c:on_cancel(function(r) why = r end)
	`))
	f.tick(time.Second)
	assert.Equal(t, 2, f.sched.Len())

	require.NoError(t, f.engine.DoString(`
		m:complete()
		ok = c:cancel("disarmed")
		again = c:cancel("twice")
		done = c:done()
	`))
	assert.True(t, f.boolean("ok"))
	assert.False(t, f.boolean("again"))
	assert.True(t, f.boolean("done"))
	assert.Equal(t, `sequence "trap" cancelled by "lua": disarmed`, f.engine.Global("why").String())

	f.tick(time.Second)
	assert.Equal(t, 0, f.sched.Len())
}

func TestEngine_InRealTime(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		fired = false
		sequence.new("rt"):wait(1):in_real_time():run(function() fired = true end)
	`))

	// Session clock stalls; only the wall clock moves.
	f.wall.Advance(time.Second)
	f.sched.Tick()
	assert.True(t, f.boolean("fired"))
}

func TestEngine_Globals(t *testing.T) {
	f := newFixture(t)
	f.tick(time.Millisecond)
	f.tick(time.Millisecond)

	require.NoError(t, f.engine.DoString(`
		v = API_VERSION
		now = frame()
		log("hello from lua")
	`))
	assert.Equal(t, float64(APIVersion), f.number(t, "v"))
	assert.Equal(t, 2.0, f.number(t, "now"))

	entries := f.logs.FilterMessage("hello from lua").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lua", entries[0].ContextMap()["source"])
}

func TestEngine_InactiveSchedulerRaises(t *testing.T) {
	f := newFixture(t)
	f.sched.Deactivate()

	err := f.engine.DoString(`sequence.new("late")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session is not active")
}

func TestEngine_BadSelf(t *testing.T) {
	f := newFixture(t)
	err := f.engine.DoString(`sequence.new("x").wait_frame(42)`)
	require.Error(t, err)
}

func TestEngine_Timeline(t *testing.T) {
	table, err := timeline.ParseTable([]byte(`
- name: bell
  steps:
    - frames: 1
    - say: ding
`))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.InfoLevel)
	session := clock.NewManual()
	sched := sequence.New(sequence.Clocks{Session: session, Wall: clock.NewManual()}, zap.New(core))
	sched.Activate()
	e := NewEngine(sched, zap.NewNop(), WithTimelines(timeline.NewRunner(table, sched, nil, zap.New(core))))
	defer e.Close()

	require.NoError(t, e.DoString(`
		b = timeline("bell")
		label = b:name()
	`))
	assert.Equal(t, "bell", e.Global("label").String())
	assert.Equal(t, 1, sched.Len())

	sched.Tick()
	assert.Equal(t, 1, logs.FilterMessage("ding").Len())

	err = e.DoString(`timeline("nope")`)
	require.Error(t, err)
}

func TestEngine_NoTimelineGlobalByDefault(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, lua.LNil, f.engine.Global("timeline"))
}

func TestEngine_LoadDir(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_first.lua"), []byte(`x = 1`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_second.lua"), []byte(`x = x * 10 + 2`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte(`not lua`), 0o644))

	n, err := f.engine.LoadDir(dir)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 12.0, f.number(t, "x"))
}

func TestEngine_LoadDirMissing(t *testing.T) {
	f := newFixture(t)
	n, err := f.engine.LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEngine_LoadDirSyntaxError(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.lua"), []byte(`this is not lua`), 0o644))

	_, err := f.engine.LoadDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.lua")
}

func TestEngine_CallbacksAfterClose(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.DoString(`
		sequence.new("late"):wait_manual():on_cancel(function(r) log("cancelled") end)
	`))

	f.engine.Close()
	require.NotPanics(t, func() { f.sched.Close("shutdown") })
	assert.Equal(t, 0, f.sched.Len())
	entries := f.logs.FilterMessage("lua cancel handler error").All()
	require.Len(t, entries, 1)
	assert.Equal(t, ErrEngineClosed.Error(), entries[0].ContextMap()["error"])
}
