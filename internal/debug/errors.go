package debug

import "errors"

// Error taxonomy for the debug engine. Callers match with errors.Is; most
// constructors wrap these with fmt.Errorf("...: %w", ...) for context.
var (
	// ErrNotFound indicates an unknown breakpoint, session, or frame index.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState indicates a command that is illegal in the current
	// session state, such as stepping a terminated session.
	ErrInvalidState = errors.New("invalid state")

	// ErrTimeout indicates the operation timeout elapsed waiting on a
	// pause/command round trip.
	ErrTimeout = errors.New("operation timed out")

	// ErrEvaluation indicates a watch or condition expression failed to
	// evaluate. Fast-path callers swallow this into "condition not met";
	// client-facing callers return it.
	ErrEvaluation = errors.New("evaluation failed")
)
