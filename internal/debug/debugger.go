package debug

// ScriptDebugger is the capability interface a guest language binding
// implements to make its scripts debuggable. The engine in this package is
// language-agnostic; everything guest-specific (introspection, expression
// evaluation, the line hook itself) lives behind this interface.
type ScriptDebugger interface {
	// SetBreakpoints replaces the breakpoints for one source.
	SetBreakpoints(source string, breakpoints []*Breakpoint) error

	// RemoveBreakpoint deletes a breakpoint by ID.
	RemoveBreakpoint(id string) error

	// State returns the current debug state.
	State() DebugState

	// StackTrace returns the latest pause snapshot.
	StackTrace() []StackFrame

	// Variables returns the variables of a snapshot frame.
	Variables(frameID int) ([]Variable, error)

	// Evaluate evaluates an expression against the current pause.
	Evaluate(expr string, frameID int) (Variable, error)

	// SendCommand applies a debug command.
	SendCommand(cmd Command) error

	// IsActive reports whether the debugger is still live
	// (state not Terminated).
	IsActive() bool
}
