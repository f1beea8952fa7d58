package action

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	lua "github.com/yuin/gopher-lua"
)

// toLua converts JSON-like Go values into Lua values. Anything else is
// round-tripped through encoding/json first.
func toLua(lState *lua.LState, v any) lua.LValue {
	switch x := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(x)
	case string:
		return lua.LString(x)
	case int:
		return lua.LNumber(x)
	case int64:
		return lua.LNumber(x)
	case float64:
		return lua.LNumber(x)
	case json.Number:
		f, _ := x.Float64()
		return lua.LNumber(f)
	case []any:
		tbl := lState.CreateTable(len(x), 0)
		for _, e := range x {
			tbl.Append(toLua(lState, e))
		}
		return tbl
	case map[string]any:
		tbl := lState.CreateTable(0, len(x))
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			tbl.RawSetString(k, toLua(lState, x[k]))
		}
		return tbl
	default:
		data, err := json.Marshal(x)
		if err != nil {
			return lua.LString(fmt.Sprintf("%v", x))
		}
		var generic any
		if err := json.Unmarshal(data, &generic); err != nil {
			return lua.LString(string(data))
		}
		return toLua(lState, generic)
	}
}

// fromLua converts a Lua value into JSON-like Go values. A table whose keys
// are exactly 1..n becomes a slice; any other table becomes a map keyed by
// the string form of its keys. Integral numbers become int64.
func fromLua(v lua.LValue) any {
	switch x := v.(type) {
	case *lua.LNilType:
		return nil
	case lua.LBool:
		return bool(x)
	case lua.LString:
		return string(x)
	case lua.LNumber:
		f := float64(x)
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return int64(f)
		}
		return f
	case *lua.LTable:
		return tableValue(x)
	default:
		return x.String()
	}
}

func tableValue(tbl *lua.LTable) any {
	n := tbl.MaxN()
	count := 0
	tbl.ForEach(func(lua.LValue, lua.LValue) { count++ })

	if n > 0 && n == count {
		out := make([]any, 0, n)
		for i := 1; i <= n; i++ {
			out = append(out, fromLua(tbl.RawGetInt(i)))
		}
		return out
	}

	out := make(map[string]any, count)
	tbl.ForEach(func(k, v lua.LValue) {
		out[k.String()] = fromLua(v)
	})
	return out
}
