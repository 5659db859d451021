package debug

import (
	"fmt"

	"github.com/google/uuid"
)

// ExecutionLocation identifies a position in guest source.
// It is an immutable value type.
type ExecutionLocation struct {
	// Source is the source identifier (file path or chunk name).
	Source string `json:"source"`

	// Line is the line number (1-based).
	Line int `json:"line"`

	// Column is the column number (1-based, 0 when unknown).
	Column int `json:"column,omitempty"`
}

// String returns "source:line" or "source:line:column" when a column is known.
func (l ExecutionLocation) String() string {
	if l.Column > 0 {
		return fmt.Sprintf("%s:%d:%d", l.Source, l.Line, l.Column)
	}
	return fmt.Sprintf("%s:%d", l.Source, l.Line)
}

// Breakpoint represents a user-defined breakpoint.
//
// The canonical set of breakpoints is owned by ExecutionManager. The fast
// path only sees a denormalized source+line projection, rebuilt on every
// mutation.
type Breakpoint struct {
	// ID is a unique identifier for this breakpoint.
	ID string `json:"id"`

	// Source is the source file path or chunk name.
	Source string `json:"source"`

	// Line is the line number (1-based).
	Line int `json:"line"`

	// Condition is an optional guard expression in the guest language.
	// The breakpoint only fires when it evaluates to a truthy value.
	Condition string `json:"condition,omitempty"`

	// HitCount is an optional hit threshold. Zero means fire on every hit;
	// N means fire once CurrentHits reaches N.
	HitCount int `json:"hitCount,omitempty"`

	// CurrentHits is the number of times execution has reached this
	// breakpoint, whether or not it fired.
	CurrentHits int `json:"currentHits"`

	// Enabled indicates if the breakpoint is active.
	Enabled bool `json:"enabled"`
}

// NewBreakpoint creates an enabled breakpoint with a fresh ID.
func NewBreakpoint(source string, line int) *Breakpoint {
	return &Breakpoint{
		ID:      uuid.NewString(),
		Source:  source,
		Line:    line,
		Enabled: true,
	}
}

// Location returns the breakpoint's position as an ExecutionLocation.
func (b *Breakpoint) Location() ExecutionLocation {
	return ExecutionLocation{Source: b.Source, Line: b.Line}
}

// Variable represents a captured variable or expression result.
type Variable struct {
	// Name is the variable name or the expression that produced it.
	Name string `json:"name"`

	// Value is the string rendering of the value.
	Value string `json:"value"`

	// Type is the guest-language type name.
	Type string `json:"type"`

	// HasChildren indicates the value is structured and can be expanded.
	HasChildren bool `json:"hasChildren"`

	// Reference is an opaque id for lazy child expansion, empty for
	// scalar values.
	Reference string `json:"reference,omitempty"`
}

// StackFrame is one frame of a stack snapshot captured at pause time.
// Snapshots are immutable; they are stale once execution resumes and
// callers must re-fetch after each resume.
type StackFrame struct {
	// ID is the frame identifier, unique within one snapshot.
	ID int `json:"id"`

	// Name is the function name, or "main chunk" for top-level code.
	Name string `json:"name"`

	// Source is the source file path or chunk name.
	Source string `json:"source"`

	// Line is the current line in the frame (1-based).
	Line int `json:"line"`

	// Column is the current column, 0 when unknown.
	Column int `json:"column,omitempty"`

	// Locals are the frame's local variables in declaration order.
	Locals []Variable `json:"locals"`

	// IsUserCode is false for frames synthesized by the runtime
	// (tail calls, native functions).
	IsUserCode bool `json:"isUserCode"`
}

// Location returns the frame's position as an ExecutionLocation.
func (f *StackFrame) Location() ExecutionLocation {
	return ExecutionLocation{Source: f.Source, Line: f.Line, Column: f.Column}
}

// PauseReason explains why execution paused.
type PauseReason struct {
	// Kind is one of the PauseKind constants.
	Kind PauseKind

	// Message carries the exception text when Kind is PauseException.
	Message string
}

// PauseKind enumerates the causes of a pause.
type PauseKind int

const (
	// PauseBreakpoint means a breakpoint fired.
	PauseBreakpoint PauseKind = iota
	// PauseStep means a step command completed.
	PauseStep
	// PausePause means a client requested an explicit pause.
	PausePause
	// PauseException means the guest raised an error with stop_on_exception set.
	PauseException
	// PauseEntry means the session stopped on entry before the first line.
	PauseEntry
)

// String returns a string representation of the pause kind.
func (k PauseKind) String() string {
	switch k {
	case PauseBreakpoint:
		return "breakpoint"
	case PauseStep:
		return "step"
	case PausePause:
		return "pause"
	case PauseException:
		return "exception"
	case PauseEntry:
		return "entry"
	default:
		return "unknown"
	}
}

// DebugState is the execution state of one debugged script.
// Exactly one DebugState is live per session; transitions are serialized
// through ExecutionManager.
type DebugState struct {
	// Status is Running, Paused, or Terminated.
	Status Status

	// Reason is set while Paused.
	Reason PauseReason

	// Location is set while Paused.
	Location ExecutionLocation
}

// Status enumerates the coarse execution states.
type Status int

const (
	// StatusRunning means the script is executing.
	StatusRunning Status = iota
	// StatusPaused means the interpreter thread is blocked awaiting a command.
	StatusPaused
	// StatusTerminated means execution has ended. Terminated is absorbing.
	StatusTerminated
)

// String returns a string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusPaused:
		return "paused"
	case StatusTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Paused reports whether execution is suspended awaiting a command.
func (s DebugState) Paused() bool {
	return s.Status == StatusPaused
}

// Running returns the Running state.
func Running() DebugState {
	return DebugState{Status: StatusRunning}
}

// Paused returns a Paused state with the given reason and location.
func Paused(reason PauseReason, loc ExecutionLocation) DebugState {
	return DebugState{Status: StatusPaused, Reason: reason, Location: loc}
}

// Terminated returns the Terminated state.
func Terminated() DebugState {
	return DebugState{Status: StatusTerminated}
}

// Command is an abstract debug command issued by a client.
type Command int

const (
	// CommandContinue resumes execution until the next breakpoint.
	CommandContinue Command = iota
	// CommandStepInto pauses at the next executed line, entering calls.
	CommandStepInto
	// CommandStepOver pauses at the next line in the current frame.
	CommandStepOver
	// CommandStepOut pauses after the current frame returns.
	CommandStepOut
	// CommandPause requests a pause at the next instrumented location.
	CommandPause
	// CommandTerminate ends the session.
	CommandTerminate
)

// String returns a string representation of the command.
func (c Command) String() string {
	switch c {
	case CommandContinue:
		return "continue"
	case CommandStepInto:
		return "step-into"
	case CommandStepOver:
		return "step-over"
	case CommandStepOut:
		return "step-out"
	case CommandPause:
		return "pause"
	case CommandTerminate:
		return "terminate"
	default:
		return "unknown"
	}
}

// IsStep returns true for the three step commands.
func (c Command) IsStep() bool {
	return c == CommandStepInto || c == CommandStepOver || c == CommandStepOut
}
