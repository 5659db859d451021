package lua

import (
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
	"github.com/dshills/scriptdbg/internal/debug/cache"
)

// LineHook is the interpreter-side collaborator: the embedding runtime
// calls OnLine at every executable line. The gate check is the only work
// done on the vast majority of lines; everything below it is slow path.
type LineHook struct {
	manager *debug.ExecutionManager
	coord   *debug.Coordinator
	eval    *Evaluator
	config  debug.SessionConfig
	logger  *zap.Logger

	// firstLine distinguishes a stop-on-entry pause from a client pause.
	firstLine atomic.Bool
}

// NewLineHook creates the hook for a session's coordinator pair.
func NewLineHook(session *debug.Session, eval *Evaluator, logger *zap.Logger) *LineHook {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &LineHook{
		manager: session.ExecutionManager(),
		coord:   session.Coordinator(),
		eval:    eval,
		config:  session.Config(),
		logger:  logger,
	}
	h.firstLine.Store(true)
	return h
}

// OnLine runs the fast-path gate and, on a confirmed break, captures the
// stack and blocks in the coordinator. Must be called from the goroutine
// running the script. Returns false once the session is terminated; the
// caller should unwind.
func (h *LineHook) OnLine(L *lua.LState, source string, line int) bool {
	if h.coord.Terminated() {
		return false
	}

	c := h.manager.Cache()
	depth := StackDepth(L)
	c.SetDepth(depth)

	first := h.firstLine.Swap(false)

	var reason debug.PauseReason
	switch {
	case c.TakePendingPause():
		if first {
			reason = debug.PauseReason{Kind: debug.PauseEntry}
		} else {
			reason = debug.PauseReason{Kind: debug.PausePause}
		}
	case c.MightBreakAt(source, line) && h.manager.ShouldBreakAt(source, line, h.conditionEvaluator(L, source, line)):
		reason = debug.PauseReason{Kind: debug.PauseBreakpoint}
	case c.Stepping() && c.ShouldStepPause(depth):
		reason = debug.PauseReason{Kind: debug.PauseStep}
	default:
		return true
	}

	return h.pause(L, reason, source, line)
}

// OnError is called when the guest raises an uncaught error. With
// stop-on-exception set, it pauses at the failing line; otherwise it is a
// no-op.
func (h *LineHook) OnError(L *lua.LState, source string, line int, message string) bool {
	if !h.config.StopOnException || h.coord.Terminated() {
		return false
	}
	reason := debug.PauseReason{Kind: debug.PauseException, Message: message}
	return h.pause(L, reason, source, line)
}

// pause captures the snapshot and blocks until resumed. Returns false on
// terminate.
func (h *LineHook) pause(L *lua.LState, reason debug.PauseReason, source string, line int) bool {
	loc := debug.ExecutionLocation{Source: source, Line: line}
	stack := CaptureStack(L, h.config.MaxStackDepth)
	var locals []debug.Variable
	if len(stack) > 0 {
		locals = stack[0].Locals
	}

	h.logger.Debug("pausing interpreter",
		zap.Stringer("location", loc),
		zap.String("reason", reason.Kind.String()),
		zap.Int("frames", len(stack)))

	cmd := h.coord.Pause(reason, loc, stack, locals)
	return cmd != debug.CommandTerminate
}

// conditionEvaluator builds the guard evaluator for one gate hit. Locals
// are captured lazily, only if a guarded breakpoint is actually reached,
// and the guard runs in the sandboxed evaluator state, never in the
// interpreter state.
func (h *LineHook) conditionEvaluator(L *lua.LState, source string, line int) debug.ConditionEvaluator {
	if h.eval == nil || !h.config.EnableConditions {
		return nil
	}
	return func(expr string) (bool, error) {
		var locals []debug.Variable
		if dbg, ok := L.GetStack(topLuaLevel(L)); ok {
			if _, err := L.GetInfo("nSl", dbg, lua.LNil); err == nil {
				locals = CaptureLocals(L, dbg)
			}
		}
		if cond, ok := h.manager.Cache().Condition(source, line); ok && cond.Expr == expr {
			return h.eval.EvaluateCondition(cond, locals)
		}
		return h.eval.EvaluateCondition(&cache.Condition{Expr: expr}, locals)
	}
}

// topLuaLevel finds the innermost Lua frame, skipping the Go hook frame.
func topLuaLevel(L *lua.LState) int {
	for level := 0; level < maxStackProbe; level++ {
		dbg, ok := L.GetStack(level)
		if !ok {
			return 0
		}
		if _, err := L.GetInfo("S", dbg, lua.LNil); err != nil {
			continue
		}
		if dbg.What != "C" && dbg.What != "G" {
			return level
		}
	}
	return 0
}
