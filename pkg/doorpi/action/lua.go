package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	dperrors "github.com/doorpi/doorpi/pkg/doorpi/errors"
)

// LuaAction runs a Lua chunk compiled once at construction time.
//
// Every run gets a fresh interpreter with these globals:
//
//	event, source, fire_id  strings describing the fire
//	silent                  boolean
//	extra                   table with the caller's data
//	log(msg)                writes an info record
//	shutdown([msg])         stops the chunk and asks the engine to shut down
//
// Only the base, table, string and math libraries are available. A Lua
// error() is an ordinary action failure.
type LuaAction struct {
	Name   string
	Source string
	Logger *slog.Logger

	proto *lua.FunctionProto
}

// CompileLua parses and compiles src. Syntax errors are reported here, not
// when the action runs.
func CompileLua(name, src string) (*LuaAction, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, fmt.Errorf("parse lua %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("compile lua %s: %w", name, err)
	}
	return &LuaAction{Name: name, Source: src, proto: proto}, nil
}

// errLuaShutdown unwinds the interpreter after shutdown() was called.
var errLuaShutdown = errors.New("lua shutdown")

// unsafeGlobals load code from files or strings at run time.
var unsafeGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "module"}

// newSandbox returns a state with the base, table, string and math
// libraries only. io and os are not opened, so a chunk cannot exit the
// process or touch the filesystem.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
	L.SetTop(0)
	for _, name := range unsafeGlobals {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (a *LuaAction) Run(ctx context.Context, call Call) error {
	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	var shutdownMsg *string
	L.SetGlobal("event", lua.LString(call.Event))
	L.SetGlobal("source", lua.LString(call.Source))
	L.SetGlobal("fire_id", lua.LString(call.FireID))
	L.SetGlobal("silent", lua.LBool(call.Silent))
	L.SetGlobal("extra", toLuaTable(L, call.Extra))
	L.SetGlobal("log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		if !call.Silent {
			logger := a.Logger
			if logger == nil {
				logger = slog.Default()
			}
			logger.InfoContext(ctx, msg,
				slog.String("event", call.Event),
				slog.String("fire_id", call.FireID),
				slog.String("lua", a.Name),
			)
		}
		return 0
	}))
	L.SetGlobal("shutdown", L.NewFunction(func(L *lua.LState) int {
		msg := L.OptString(1, "")
		shutdownMsg = &msg
		L.RaiseError("%s", errLuaShutdown)
		return 0
	}))

	L.Push(L.NewFunctionFromProto(a.proto))
	err := L.PCall(0, lua.MultRet, nil)

	if shutdownMsg != nil {
		var reason error
		if *shutdownMsg != "" {
			reason = errors.New(*shutdownMsg)
		}
		return dperrors.Shutdown(reason, "lua "+a.Name)
	}
	if err != nil {
		return fmt.Errorf("lua %s: %w", a.Name, err)
	}
	return nil
}

func (a *LuaAction) String() string {
	return "lua:" + a.Name
}

func toLuaTable(L *lua.LState, m map[string]any) *lua.LTable {
	tbl := L.NewTable()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		L.SetField(tbl, k, toLuaValue(L, m[k]))
	}
	return tbl
}

func toLuaValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case string:
		return lua.LString(val)
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		return toLuaTable(L, val)
	case []any:
		tbl := L.NewTable()
		for _, item := range val {
			tbl.Append(toLuaValue(L, item))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprint(val))
	}
}
