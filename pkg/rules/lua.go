package rules

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/user/sdtmflow/pkg/mapping"
	"github.com/user/sdtmflow/pkg/record"
	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

func init() {
	Register("lua", newLuaRule)
}

var statePool = &sync.Pool{
	New: func() any {
		return newState()
	},
}

// blockedGlobals are base functions that load code or reach the host.
var blockedGlobals = []string{
	"dofile", "loadfile", "load", "loadstring", "require", "module",
	"collectgarbage", "setfenv", "getfenv", "print", "_printregs",
}

// newState opens the string, math and table libraries plus the pure part of the base library.
func newState() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
		{lua.TabLibName, lua.OpenTable},
	} {
		L.Push(L.NewFunction(lib.fn))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range blockedGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	// The string metatable is shared by every run on this state.
	if mt, ok := L.GetMetatable(lua.LString("")).(*lua.LTable); ok {
		mt.RawSetString("__metatable", lua.LFalse)
	}
	return L
}

// sandbox builds the globals for one script run. Library tables are copied so nothing a script
// assigns, globally or into a library, is seen by the next run on the same state.
func sandbox(L *lua.LState) *lua.LTable {
	env := L.NewTable()
	L.G.Global.ForEach(func(k, v lua.LValue) {
		if t, ok := v.(*lua.LTable); ok {
			if t == L.G.Global {
				return
			}
			cp := L.NewTable()
			t.ForEach(func(tk, tv lua.LValue) { cp.RawSet(tk, tv) })
			v = cp
		}
		env.RawSet(k, v)
	})
	env.RawSetString("_G", env)
	return env
}

// luaRule runs a compiled script in a fresh sandbox with the record exposed as the global table rec. The script
// returns true to pass, or false with an optional message.
type luaRule struct {
	base
	proto   *lua.FunctionProto
	columns []string
}

func newLuaRule(spec mapping.RuleSpec, domain *mapping.DomainSpec) (Rule, error) {
	if spec.Script == "" {
		return nil, fmt.Errorf("lua rule has no script")
	}
	chunk, err := parse.Parse(strings.NewReader(spec.Script), spec.ID)
	if err != nil {
		return nil, fmt.Errorf("lua parse error: %w", err)
	}
	proto, err := lua.Compile(chunk, spec.ID)
	if err != nil {
		return nil, fmt.Errorf("lua compile error: %w", err)
	}
	return &luaRule{base: base{spec}, proto: proto, columns: domain.Columns()}, nil
}

func (r *luaRule) Check(ctx context.Context, rec *record.Record) (*Violation, error) {
	L := statePool.Get().(*lua.LState)
	L.SetContext(ctx)

	env := sandbox(L)
	tbl := L.NewTable()
	for _, c := range r.columns {
		if v := rec.Get(c); v != "" {
			tbl.RawSetString(c, lua.LString(v))
		}
	}
	env.RawSetString("rec", tbl)

	fn := L.NewFunctionFromProto(r.proto)
	fn.Env = env
	L.Push(fn)
	if err := L.PCall(0, 2, nil); err != nil {
		// A failed or cancelled run may leave the state mid-call; it is not reused.
		L.Close()
		return nil, fmt.Errorf("rule %s: lua script error: %w", r.spec.ID, err)
	}
	defer func() {
		L.SetTop(0)
		L.RemoveContext()
		statePool.Put(L)
	}()

	ok, msg := L.Get(-2), L.Get(-1)
	if lua.LVAsBool(ok) {
		return nil, nil
	}
	fallback := "scripted rule failed"
	if s, isStr := msg.(lua.LString); isStr && s != "" {
		fallback = string(s)
	}
	variable := ""
	if len(r.spec.Uses) > 0 {
		variable = r.spec.Uses[0]
	}
	return r.violation(variable, fallback), nil
}
