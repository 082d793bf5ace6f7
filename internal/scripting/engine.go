package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/l1jgo/tickseq/internal/sequence"
	"github.com/l1jgo/tickseq/internal/timeline"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned for Lua callbacks that fire after Close.
var ErrEngineClosed = errors.New("lua engine closed")

// APIVersion is exposed to scripts as API_VERSION.
const APIVersion = 1

// Engine wraps a single gopher-lua VM that builds sequences on a scheduler.
// Single-goroutine access only: scripts, and every Lua callback a sequence
// holds, run on the tick goroutine.
type Engine struct {
	vm        *lua.LState
	sched     *sequence.Scheduler
	timelines *timeline.Runner
	log       *zap.Logger
	closed    bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimelines exposes timeline(name) to scripts.
func WithTimelines(r *timeline.Runner) Option {
	return func(e *Engine) { e.timelines = r }
}

// NewEngine creates a Lua VM with the sequence API registered.
func NewEngine(sched *sequence.Scheduler, log *zap.Logger, opts ...Option) *Engine {
	vm := lua.NewState(lua.Options{
		SkipOpenLibs: false,
	})
	e := &Engine{vm: vm, sched: sched, log: log}
	for _, opt := range opts {
		opt(e)
	}

	vm.SetGlobal("API_VERSION", lua.LNumber(APIVersion))
	vm.SetGlobal("log", vm.NewFunction(e.luaLog))
	vm.SetGlobal("frame", vm.NewFunction(e.luaFrame))
	if e.timelines != nil {
		vm.SetGlobal("timeline", vm.NewFunction(e.luaTimeline))
	}
	e.registerSequenceType()
	return e
}

// Close shuts the VM down. Callbacks still held by pending sequences
// become no-ops that report ErrEngineClosed.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	e.closed = true
	e.vm.Close()
}

// LoadDir runs every .lua file in dir in file name order. A missing
// directory is not an error.
func (e *Engine) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return n, fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("loaded lua script", zap.String("file", path))
		n++
	}
	return n, nil
}

// DoString runs a chunk of Lua source.
func (e *Engine) DoString(src string) error {
	return e.vm.DoString(src)
}

// Global returns a global variable of the VM.
func (e *Engine) Global(name string) lua.LValue {
	return e.vm.GetGlobal(name)
}

// call invokes a Lua function in protected mode and returns its first
// result.
func (e *Engine) call(fn *lua.LFunction, args ...lua.LValue) (lua.LValue, error) {
	if e.closed {
		return lua.LNil, ErrEngineClosed
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, args...); err != nil {
		return lua.LNil, err
	}
	ret := e.vm.Get(-1)
	e.vm.Pop(1)
	return ret, nil
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info(L.CheckString(1), zap.String("source", "lua"), zap.Uint64("frame", e.sched.Frame()))
	return 0
}

func (e *Engine) luaFrame(L *lua.LState) int {
	L.Push(lua.LNumber(e.sched.Frame()))
	return 1
}

func (e *Engine) luaTimeline(L *lua.LState) int {
	seq, err := e.timelines.Start(L.CheckString(1))
	if err != nil {
		L.RaiseError("%s", err.Error())
		return 0
	}
	L.Push(e.wrap(seq))
	return 1
}
