package lua

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
)

// Debugger binds the language-agnostic engine to the Lua guest. It is the
// guest side of the capability interface: breakpoint administration routes
// to the execution manager, inspection reads the pause snapshot, and
// expression evaluation runs in the sandboxed evaluator with the paused
// frame's locals as environment.
type Debugger struct {
	manager *debug.ExecutionManager
	coord   *debug.Coordinator
	eval    *Evaluator
	logger  *zap.Logger
}

var (
	_ debug.ScriptDebugger      = (*Debugger)(nil)
	_ debug.ExpressionEvaluator = (*Debugger)(nil)
	_ debug.VariableReader      = (*Debugger)(nil)
)

// NewDebugger creates the Lua binding for a session.
func NewDebugger(session *debug.Session, eval *Evaluator, logger *zap.Logger) *Debugger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Debugger{
		manager: session.ExecutionManager(),
		coord:   session.Coordinator(),
		eval:    eval,
		logger:  logger,
	}
}

// SetBreakpoints replaces the breakpoint set for one source. Existing
// breakpoints in other sources are untouched.
func (d *Debugger) SetBreakpoints(source string, breakpoints []*debug.Breakpoint) error {
	if source == "" {
		return fmt.Errorf("set breakpoints: empty source: %w", debug.ErrInvalidState)
	}

	for _, bp := range d.manager.Breakpoints() {
		if bp.Source == source {
			d.manager.RemoveBreakpoint(bp.ID)
		}
	}
	for _, bp := range breakpoints {
		bp.Source = source
		if _, err := d.manager.AddBreakpoint(bp); err != nil {
			return fmt.Errorf("set breakpoints for %s: %w", source, err)
		}
		if bp.Condition != "" && d.eval != nil {
			if cond, ok := d.manager.Cache().Condition(source, bp.Line); ok {
				d.eval.Precompile(cond)
			}
		}
	}

	d.logger.Debug("breakpoints replaced",
		zap.String("source", source),
		zap.Int("count", len(breakpoints)))
	return nil
}

// RemoveBreakpoint deletes one breakpoint by ID.
func (d *Debugger) RemoveBreakpoint(id string) error {
	if !d.manager.RemoveBreakpoint(id) {
		return fmt.Errorf("breakpoint %s: %w", id, debug.ErrNotFound)
	}
	return nil
}

// State returns the current debug state.
func (d *Debugger) State() debug.DebugState {
	return d.manager.State()
}

// StackTrace returns the latest pause snapshot.
func (d *Debugger) StackTrace() []debug.StackFrame {
	return d.manager.StackTrace()
}

// Variables returns the variables of one snapshot frame, preferring the
// per-frame cache filled at pause time.
func (d *Debugger) Variables(frameID int) ([]debug.Variable, error) {
	if vars, ok := d.manager.CachedVariables(frameID); ok {
		return vars, nil
	}

	stack := d.manager.StackTrace()
	for _, frame := range stack {
		if frame.ID == frameID {
			vars := make([]debug.Variable, len(frame.Locals))
			copy(vars, frame.Locals)
			d.manager.CacheVariables(frameID, vars)
			return vars, nil
		}
	}
	return nil, fmt.Errorf("frame %d: %w", frameID, debug.ErrNotFound)
}

// Evaluate evaluates an expression in the sandbox with the given frame's
// locals visible. Only legal while paused.
func (d *Debugger) Evaluate(expr string, frameID int) (debug.Variable, error) {
	if !d.manager.State().Paused() {
		return debug.Variable{}, fmt.Errorf("evaluate while not paused: %w", debug.ErrInvalidState)
	}
	if d.eval == nil {
		return debug.Variable{}, fmt.Errorf("no evaluator: %w", debug.ErrInvalidState)
	}

	locals, err := d.Variables(frameID)
	if err != nil {
		return debug.Variable{}, err
	}
	return d.eval.EvaluateWithLocals(expr, locals)
}

// EvaluateExpression implements the session's evaluator hook. It is
// Evaluate under the interface name the session expects.
func (d *Debugger) EvaluateExpression(expr string, frameID int) (debug.Variable, error) {
	return d.Evaluate(expr, frameID)
}

// SendCommand forwards a debug command to the coordinator.
func (d *Debugger) SendCommand(cmd debug.Command) error {
	return d.coord.SendCommand(cmd)
}

// IsActive reports whether the session can still be debugged.
func (d *Debugger) IsActive() bool {
	return d.manager.IsActive()
}

// ReadVariables resolves names against the current frame's snapshot,
// consulting the generation-tagged variable cache first.
func (d *Debugger) ReadVariables(names []string) (map[string]debug.Variable, error) {
	stack := d.manager.StackTrace()
	if len(stack) == 0 {
		return nil, fmt.Errorf("no pause snapshot: %w", debug.ErrInvalidState)
	}

	c := d.manager.Cache()
	byName := make(map[string]debug.Variable, len(stack[0].Locals))
	for _, v := range stack[0].Locals {
		byName[v.Name] = v
	}

	out := make(map[string]debug.Variable, len(names))
	for _, name := range names {
		v, ok := byName[name]
		if !ok {
			v = debug.Variable{Name: name, Value: "nil", Type: "nil"}
		}
		if cached, hit := c.CachedVariable(name); hit {
			v.Value = cached
		} else {
			c.CacheVariable(name, v.Value)
		}
		out[name] = v
	}
	return out, nil
}
