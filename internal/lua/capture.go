package lua

import (
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/scriptdbg/internal/debug"
)

// maxStackProbe caps stack walks so a runaway recursion cannot stall the
// pause path.
const maxStackProbe = 256

// CaptureStack snapshots the Lua call stack as engine frames, innermost
// first. Go-function frames are skipped; tail-call frames are kept but
// marked as runtime-synthesized. The snapshot is immutable once returned.
func CaptureStack(L *lua.LState, maxDepth int) []debug.StackFrame {
	if maxDepth <= 0 || maxDepth > maxStackProbe {
		maxDepth = maxStackProbe
	}

	var frames []debug.StackFrame
	for level := 0; level < maxStackProbe && len(frames) < maxDepth; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if _, err := L.GetInfo("nSl", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.What == "C" || dbg.What == "G" {
			continue
		}

		frame := debug.StackFrame{
			ID:         len(frames),
			Name:       frameName(dbg),
			Source:     cleanSource(dbg.Source),
			Line:       dbg.CurrentLine,
			Locals:     CaptureLocals(L, dbg),
			IsUserCode: dbg.What != "tail",
		}
		frames = append(frames, frame)
	}
	return frames
}

// CaptureLocals extracts the named locals of one frame in slot order.
// Compiler-internal slots (parenthesized names) are skipped.
func CaptureLocals(L *lua.LState, dbg *lua.Debug) []debug.Variable {
	var locals []debug.Variable
	for n := 1; n <= maxStackProbe; n++ {
		name, value := L.GetLocal(dbg, n)
		if name == "" {
			break
		}
		if strings.HasPrefix(name, "(") {
			continue
		}
		locals = append(locals, ToVariable(name, value))
	}
	return locals
}

// StackDepth counts live Lua frames.
func StackDepth(L *lua.LState) int {
	depth := 0
	for level := 0; level < maxStackProbe; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			break
		}
		if _, err := L.GetInfo("S", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.What == "C" || dbg.What == "G" {
			continue
		}
		depth++
	}
	return depth
}

// frameName picks the presentable function name. The main chunk and
// anonymous functions stay nameless; the navigator applies the Lua
// conventions when formatting.
func frameName(dbg *lua.Debug) string {
	if dbg.What == "main" {
		return ""
	}
	return dbg.Name
}

// cleanSource strips gopher-lua's chunk-name sigils.
func cleanSource(source string) string {
	source = strings.TrimPrefix(source, "@")
	source = strings.TrimPrefix(source, "=")
	return source
}
