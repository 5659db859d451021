package debug

// EventKind enumerates coordinator notifications.
type EventKind int

const (
	// EventBreakpointHit fires when a breakpoint pauses execution.
	EventBreakpointHit EventKind = iota
	// EventStepComplete fires when a step command pauses execution.
	EventStepComplete
	// EventPaused fires for explicit pauses, entry stops, and exceptions.
	EventPaused
	// EventResumed fires when the interpreter thread unblocks.
	EventResumed
	// EventTerminated fires once when the session ends.
	EventTerminated
)

// String returns a string representation of the event kind.
func (k EventKind) String() string {
	switch k {
	case EventBreakpointHit:
		return "breakpoint-hit"
	case EventStepComplete:
		return "step-complete"
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Event is a coordinator notification delivered to the session side over a
// bounded channel. Stack and Locals are only set on pause events.
type Event struct {
	Kind     EventKind
	Reason   PauseReason
	Location ExecutionLocation
	Stack    []StackFrame
	Locals   []Variable
}
