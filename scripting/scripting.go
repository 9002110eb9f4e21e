// Package scripting embeds gopher-lua, grounded on the teacher's
// lua.go/plugin.go Lua API bridge, repurposed from a chat-command and
// player-event API to two hook points a session can script: a
// transform.Step for the pipeline's user-hook slot, and an IP
// whitelist predicate for server/relay admission.
package scripting

import (
	"errors"
	"path/filepath"

	lua "github.com/yuin/gopher-lua"

	"github.com/duskproto/session/transform"
)

// Engine wraps one gopher-lua state and the plugin scripts loaded
// into it, mirroring the teacher's single package-level *lua.LState
// but held as a value so multiple sessions in one process do not
// share Lua globals.
type Engine struct {
	state *lua.LState
}

// New returns an Engine with an empty Lua state.
func New() *Engine {
	return &Engine{state: lua.NewState()}
}

// Close releases the underlying Lua state.
func (e *Engine) Close() {
	e.state.Close()
}

// LoadPlugins walks dir for "<plugin>/init.lua" files and executes
// each one against the shared state, mirroring the teacher's
// LoadPlugins (plugin.go), generalized from a fixed "plugins/"
// directory to a caller-supplied root.
func (e *Engine) LoadPlugins(dir string) error {
	entries, err := filepath.Glob(filepath.Join(dir, "*", "init.lua"))
	if err != nil {
		return err
	}
	for _, path := range entries {
		if err := e.state.DoFile(path); err != nil {
			return err
		}
	}
	return nil
}

// ErrScriptMissingFunction is returned when a required global
// function is absent from a loaded script.
var ErrScriptMissingFunction = errors.New("scripting: script does not define the required function")

// TransformStep builds a transform.Step whose Send/Receive callbacks
// invoke the Lua functions sendFn/receiveFn (either name may be empty
// to leave that direction as a no-op), each called with the packet
// bytes as a Lua string and expected to return the transformed bytes.
// This is the "user hook" slot of the transform pipeline's ordering
// contract (any priority other than 0/100/200).
func (e *Engine) TransformStep(name string, priority int, sendFn, receiveFn string) transform.Step {
	step := transform.Step{Name: name, Priority: priority}
	if sendFn != "" {
		step.Send = func(pkt []byte) ([]byte, error) { return e.callByteFunc(sendFn, pkt) }
	}
	if receiveFn != "" {
		step.Receive = func(pkt []byte) ([]byte, error) { return e.callByteFunc(receiveFn, pkt) }
	}
	return step
}

func (e *Engine) callByteFunc(fnName string, pkt []byte) ([]byte, error) {
	fn := e.state.GetGlobal(fnName)
	if fn == lua.LNil {
		return nil, ErrScriptMissingFunction
	}

	if err := e.state.CallByParam(lua.P{
		Fn:      fn,
		NRet:    1,
		Protect: true,
	}, lua.LString(pkt)); err != nil {
		return nil, err
	}

	ret := e.state.Get(-1)
	e.state.Pop(1)

	s, ok := ret.(lua.LString)
	if !ok {
		return nil, ErrScriptMissingFunction
	}
	return []byte(s), nil
}

// WhitelistPredicate returns a func(ip string) bool that calls fnName
// in the Lua state, letting an operator script custom IP allowlist
// logic instead of the flat string-list config.Whitelist.
func (e *Engine) WhitelistPredicate(fnName string) func(ip string) bool {
	return func(ip string) bool {
		fn := e.state.GetGlobal(fnName)
		if fn == lua.LNil {
			return false
		}
		if err := e.state.CallByParam(lua.P{
			Fn:      fn,
			NRet:    1,
			Protect: true,
		}, lua.LString(ip)); err != nil {
			return false
		}
		ret := e.state.Get(-1)
		e.state.Pop(1)
		return lua.LVAsBool(ret)
	}
}
