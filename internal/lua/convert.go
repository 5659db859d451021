package lua

import (
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/scriptdbg/internal/debug"
)

// maxRenderDepth caps table rendering. Deeper values render as their
// tostring form and stay expandable through further evaluation.
const maxRenderDepth = 3

// ToVariable converts a Lua value into its captured Variable form.
// Tables carry a JSON rendering in Value so the inspector can expand
// children without touching the interpreter again.
func ToVariable(name string, v lua.LValue) debug.Variable {
	out := debug.Variable{
		Name: name,
		Type: v.Type().String(),
	}

	switch val := v.(type) {
	case *lua.LTable:
		out.Value = renderTable(val, 0)
		out.HasChildren = true
		out.Reference = name
	case lua.LString:
		out.Value = string(val)
	default:
		out.Value = v.String()
	}
	return out
}

// renderTable builds a JSON rendering of a table, one sjson set per entry.
func renderTable(tbl *lua.LTable, depth int) string {
	json := "{}"
	tbl.ForEach(func(k, v lua.LValue) {
		key := escapeKey(k.String())
		var err error
		switch val := v.(type) {
		case lua.LNumber:
			json, err = sjson.Set(json, key, float64(val))
		case lua.LBool:
			json, err = sjson.Set(json, key, bool(val))
		case lua.LString:
			json, err = sjson.Set(json, key, string(val))
		case *lua.LTable:
			if depth+1 < maxRenderDepth {
				json, err = sjson.SetRaw(json, key, renderTable(val, depth+1))
			} else {
				json, err = sjson.Set(json, key, v.String())
			}
		case *lua.LNilType:
			json, err = sjson.Set(json, key, nil)
		default:
			json, err = sjson.Set(json, key, v.String())
		}
		if err != nil {
			// Leave the entry out rather than corrupt the rendering.
			return
		}
	})
	return json
}

// escapeKey guards sjson path metacharacters in table keys.
func escapeKey(key string) string {
	r := strings.NewReplacer(".", `\.`, "*", `\*`, "?", `\?`, "|", `\|`)
	return r.Replace(key)
}

// FromVariable rebuilds a Lua value from a captured Variable, for
// injecting pause-time locals into the evaluator environment.
func FromVariable(L *lua.LState, v debug.Variable) lua.LValue {
	switch v.Type {
	case "number":
		if n, err := strconv.ParseFloat(v.Value, 64); err == nil {
			return lua.LNumber(n)
		}
		return lua.LString(v.Value)
	case "boolean":
		return lua.LBool(v.Value == "true")
	case "nil":
		return lua.LNil
	case "table":
		if gjson.Valid(v.Value) {
			return buildTable(L, gjson.Parse(v.Value))
		}
		return lua.LString(v.Value)
	default:
		return lua.LString(v.Value)
	}
}

// buildTable converts a JSON rendering back into an LTable.
func buildTable(L *lua.LState, r gjson.Result) *lua.LTable {
	tbl := L.NewTable()
	r.ForEach(func(key, value gjson.Result) bool {
		var lv lua.LValue
		switch {
		case value.IsObject() || value.IsArray():
			lv = buildTable(L, value)
		case value.Type == gjson.Number:
			lv = lua.LNumber(value.Float())
		case value.Type == gjson.True:
			lv = lua.LTrue
		case value.Type == gjson.False:
			lv = lua.LFalse
		case value.Type == gjson.Null:
			lv = lua.LNil
		default:
			lv = lua.LString(value.String())
		}
		if r.IsArray() {
			tbl.Append(lv)
		} else {
			tbl.RawSetString(key.String(), lv)
		}
		return true
	})
	return tbl
}
