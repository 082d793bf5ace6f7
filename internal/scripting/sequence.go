package scripting

import (
	"fmt"
	"time"

	"github.com/l1jgo/tickseq/internal/sequence"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

const luaSequenceTypeName = "sequence"

// registerSequenceType installs the global `sequence` table: sequence.new
// plus the chainable methods of sequence userdata. Builder methods return
// self so scripts can write
//
//	sequence.new("door"):wait(1.5):run(open):wait_frames(2)
func (e *Engine) registerSequenceType() {
	mt := e.vm.NewTypeMetatable(luaSequenceTypeName)
	e.vm.SetGlobal(luaSequenceTypeName, mt)
	e.vm.SetField(mt, "new", e.vm.NewFunction(e.luaNewSequence))
	e.vm.SetField(mt, "__index", e.vm.SetFuncs(e.vm.NewTable(), map[string]lua.LGFunction{
		"name":         e.seqName,
		"with_name":    e.seqWithName,
		"run":          e.seqRun,
		"wait":         e.seqWait,
		"wait_frame":   e.seqWaitFrame,
		"wait_frames":  e.seqWaitFrames,
		"wait_until":   e.seqWaitUntil,
		"wait_for":     e.seqWaitFor,
		"wait_manual":  e.seqWaitManual,
		"in_real_time": e.seqInRealTime,
		"complete":     e.seqComplete,
		"cancel":       e.seqCancel,
		"done":         e.seqDone,
		"on_cancel":    e.seqOnCancel,
		"describe":     e.seqDescribe,
	}))
}

func (e *Engine) wrap(seq *sequence.Sequence) *lua.LUserData {
	ud := e.vm.NewUserData()
	ud.Value = seq
	e.vm.SetMetatable(ud, e.vm.GetTypeMetatable(luaSequenceTypeName))
	return ud
}

func checkSequence(L *lua.LState, n int) *sequence.Sequence {
	ud := L.CheckUserData(n)
	if seq, ok := ud.Value.(*sequence.Sequence); ok {
		return seq
	}
	L.ArgError(n, "sequence expected")
	return nil
}

// chain pushes self back so builder calls compose.
func chain(L *lua.LState) int {
	L.Push(L.Get(1))
	return 1
}

func seconds(v lua.LNumber) time.Duration {
	return time.Duration(float64(v) * float64(time.Second))
}

func (e *Engine) luaNewSequence(L *lua.LState) int {
	seq, err := e.sched.NewSequence(L.OptString(1, ""))
	if err != nil {
		L.RaiseError("sequence.new: %s", err.Error())
		return 0
	}
	L.Push(e.wrap(seq))
	return 1
}

func (e *Engine) seqName(L *lua.LState) int {
	L.Push(lua.LString(checkSequence(L, 1).Name()))
	return 1
}

func (e *Engine) seqWithName(L *lua.LState) int {
	checkSequence(L, 1).WithName(L.CheckString(2))
	return chain(L)
}

func (e *Engine) seqRun(L *lua.LState) int {
	seq := checkSequence(L, 1)
	fn := L.CheckFunction(2)
	seq.Then(func() {
		if _, err := e.call(fn); err != nil {
			e.log.Error("lua action error", zap.String("sequence", seq.Name()), zap.Error(err))
		}
	})
	return chain(L)
}

func (e *Engine) seqWait(L *lua.LState) int {
	checkSequence(L, 1).WaitFor(seconds(L.CheckNumber(2)))
	return chain(L)
}

func (e *Engine) seqWaitFrame(L *lua.LState) int {
	checkSequence(L, 1).WaitForFrame()
	return chain(L)
}

func (e *Engine) seqWaitFrames(L *lua.LState) int {
	checkSequence(L, 1).WaitForFrameCount(L.CheckInt(2))
	return chain(L)
}

func optTimeout(L *lua.LState, n int) time.Duration {
	if L.Get(n) == lua.LNil {
		return sequence.NoTimeout
	}
	return seconds(L.CheckNumber(n))
}

// seqWaitUntil polls a Lua predicate. Lua errors do not reach the host: a
// predicate that raises cancels the sequence (by "lua") with the error as
// reason, and the chain stops there.
func (e *Engine) seqWaitUntil(L *lua.LState) int {
	seq := checkSequence(L, 1)
	fn := L.CheckFunction(2)
	timeout := optTimeout(L, 3)
	seq.WaitUntilTimeout(func() bool {
		ret, err := e.call(fn)
		if err != nil {
			e.log.Error("lua predicate error", zap.String("sequence", seq.Name()), zap.Error(err))
			seq.CancelBy(err.Error(), "lua")
			return false
		}
		return lua.LVAsBool(ret)
	}, timeout)
	return chain(L)
}

// seqWaitFor waits on the sequence returned by a Lua factory function.
func (e *Engine) seqWaitFor(L *lua.LState) int {
	seq := checkSequence(L, 1)
	fn := L.CheckFunction(2)
	timeout := optTimeout(L, 3)
	seq.WaitForSequenceTimeout(func() (*sequence.Sequence, error) {
		ret, err := e.call(fn)
		if err != nil {
			return nil, err
		}
		ud, ok := ret.(*lua.LUserData)
		if !ok {
			return nil, fmt.Errorf("factory returned %s, want sequence", ret.Type())
		}
		sub, ok := ud.Value.(*sequence.Sequence)
		if !ok {
			return nil, fmt.Errorf("factory returned foreign userdata")
		}
		return sub, nil
	}, timeout)
	return chain(L)
}

func (e *Engine) seqWaitManual(L *lua.LState) int {
	checkSequence(L, 1).WaitManual()
	return chain(L)
}

func (e *Engine) seqInRealTime(L *lua.LState) int {
	checkSequence(L, 1).InRealTime()
	return chain(L)
}

func (e *Engine) seqComplete(L *lua.LState) int {
	checkSequence(L, 1).Complete()
	return chain(L)
}

func (e *Engine) seqCancel(L *lua.LState) int {
	ok := checkSequence(L, 1).CancelBy(L.OptString(2, ""), "lua")
	L.Push(lua.LBool(ok))
	return 1
}

func (e *Engine) seqDone(L *lua.LState) int {
	L.Push(lua.LBool(checkSequence(L, 1).Done()))
	return 1
}

// seqOnCancel registers a Lua handler called with the rejection message.
func (e *Engine) seqOnCancel(L *lua.LState) int {
	seq := checkSequence(L, 1)
	fn := L.CheckFunction(2)
	seq.OrElse(func(reason error) {
		if _, err := e.call(fn, lua.LString(reason.Error())); err != nil {
			e.log.Error("lua cancel handler error", zap.String("sequence", seq.Name()), zap.Error(err))
		}
	})
	return chain(L)
}

func (e *Engine) seqDescribe(L *lua.LState) int {
	L.Push(lua.LString(checkSequence(L, 1).Describe()))
	return 1
}
