package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/spinup/spinup/internal/config"
	"github.com/spinup/spinup/internal/orchestrator"
)

// NewLuaAction compiles a Lua action. The script must define a global
// function run(ctx); its return value becomes the action result and a Lua
// error() fails the attempt. Relative script paths resolve against baseDir.
//
// ctx is a table with query, input, results, run_id, round, attempt and
// actions (the registered ids).
func NewLuaAction(cfg config.LuaActionConfig, baseDir string) (orchestrator.Action, error) {
	name := cfg.ID
	src := cfg.Source
	if cfg.Script != "" {
		path := cfg.Script
		if !filepath.IsAbs(path) && baseDir != "" {
			path = filepath.Join(baseDir, path)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return orchestrator.Action{}, fmt.Errorf("action %s: script path: %w", cfg.ID, err)
		}
		src = string(data)
		name = path
	}

	proto, err := compile(src, name)
	if err != nil {
		return orchestrator.Action{}, fmt.Errorf("action %s: load script: %w", cfg.ID, err)
	}

	extra := make(map[string]any, len(cfg.Metadata)+1)
	for k, v := range cfg.Metadata {
		extra[k] = v
	}
	extra["runtime"] = "lua"

	return orchestrator.Action{
		Config: orchestrator.ActionConfig{
			ID:        cfg.ID,
			Retries:   cfg.Retries,
			DependsOn: cfg.DependsOn,
			Metadata: orchestrator.ActionMetadata{
				Description: cfg.Description,
				Extra:       extra,
			},
		},
		Run: func(ctx context.Context, actx *orchestrator.ActionContext) (any, error) {
			return runLua(ctx, proto, actx)
		},
	}, nil
}

func compile(src, name string) (*lua.FunctionProto, error) {
	chunk, err := parse.Parse(strings.NewReader(src), name)
	if err != nil {
		return nil, err
	}
	return lua.Compile(chunk, name)
}

// runLua executes proto in a fresh state; states are not safe for concurrent
// use and runs may invoke the same action concurrently.
func runLua(ctx context.Context, proto *lua.FunctionProto, actx *orchestrator.ActionContext) (any, error) {
	lState := newState()
	defer lState.Close()
	lState.SetContext(ctx)

	lState.Push(lState.NewFunctionFromProto(proto))
	if err := lState.PCall(0, lua.MultRet, nil); err != nil {
		return nil, fmt.Errorf("load script: %w", err)
	}

	fn := lState.GetGlobal("run")
	if fn.Type() == lua.LTNil {
		return nil, fmt.Errorf("script must define global function run(ctx)")
	}
	if fn.Type() != lua.LTFunction {
		return nil, fmt.Errorf("run must be a function, got %s", fn.Type().String())
	}

	lState.Push(fn)
	lState.Push(contextTable(lState, actx))
	if err := lState.PCall(1, 1, nil); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run(): %w", ctxErr)
		}
		return nil, fmt.Errorf("run(): %w", err)
	}

	ret := lState.Get(-1)
	lState.Pop(1)
	return fromLua(ret), nil
}

// newState opens only the pure libraries. os is available through
// require("os") and is reduced to getenv and time.
func newState() *lua.LState {
	lState := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.LoadLibName, lua.OpenPackage},
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		lState.Push(lState.NewFunction(lib.open))
		lState.Push(lua.LString(lib.name))
		lState.Call(1, 0)
	}
	lState.PreloadModule("os", osModuleLoader)
	return lState
}

func contextTable(lState *lua.LState, actx *orchestrator.ActionContext) *lua.LTable {
	tbl := lState.NewTable()
	tbl.RawSetString("query", lua.LString(actx.Query()))
	tbl.RawSetString("run_id", lua.LString(actx.RunID))
	tbl.RawSetString("round", lua.LNumber(actx.Round))
	tbl.RawSetString("attempt", lua.LNumber(actx.Attempt))
	tbl.RawSetString("input", toLua(lState, actx.Input))
	tbl.RawSetString("results", toLua(lState, actx.Results))

	ids := lState.NewTable()
	for _, id := range actx.Actions.IDs() {
		ids.Append(lua.LString(id))
	}
	tbl.RawSetString("actions", ids)
	return tbl
}

// osModuleLoader provides a minimal os module: getenv and time.
func osModuleLoader(lState *lua.LState) int {
	mod := lState.NewTable()
	lState.SetField(mod, "getenv", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LString(os.Getenv(ls.CheckString(1))))
		return 1
	}))
	lState.SetField(mod, "time", lState.NewFunction(func(ls *lua.LState) int {
		ls.Push(lua.LNumber(time.Now().Unix()))
		return 1
	}))
	lState.Push(mod)
	return 1
}
