package debug

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug/cache"
)

// defaultEventBuffer bounds the coordinator's event channel. Events beyond
// the buffer are dropped and counted, never blocked on.
const defaultEventBuffer = 64

// defaultPauseBudget is the acceptable wall-clock latency between
// publishing a pause and blocking the interpreter thread. Exceeding it is
// an SLO violation surfaced in the log, not a failure.
const defaultPauseBudget = 10 * time.Millisecond

// Coordinator mediates between the synchronous interpreter thread and the
// asynchronous session side. It is the only component allowed to block the
// interpreter thread, and the only writer of pause/resume transitions.
//
// Pause is called from the interpreter thread. SendCommand is called from
// the session side. If the session disappears while the interpreter is
// blocked, Terminate force-resumes it; a stuck interpreter thread is the
// single most severe failure mode.
type Coordinator struct {
	manager     *ExecutionManager
	logger      *zap.Logger
	pauseBudget time.Duration

	events  chan Event
	dropped atomic.Uint64

	terminated atomic.Bool

	mu     sync.Mutex
	resume chan Command
}

// NewCoordinator creates a coordinator over the given manager. A nil
// logger disables logging.
func NewCoordinator(manager *ExecutionManager, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		manager:     manager,
		logger:      logger,
		pauseBudget: defaultPauseBudget,
		events:      make(chan Event, defaultEventBuffer),
	}
}

// Events returns the bounded notification channel. The channel is never
// closed; consumers should stop reading after EventTerminated.
func (co *Coordinator) Events() <-chan Event {
	return co.events
}

// DroppedEvents returns the number of events dropped because the channel
// was full.
func (co *Coordinator) DroppedEvents() uint64 {
	return co.dropped.Load()
}

// Manager returns the execution manager this coordinator drives.
func (co *Coordinator) Manager() *ExecutionManager {
	return co.manager
}

// Pause blocks the calling goroutine at the given location until a resume
// command arrives. It must only be called from the interpreter thread,
// after the slow path has confirmed a real break. The stack and locals
// become the pause snapshot.
//
// Returns the command that ended the pause. After Terminate the caller
// must unwind; the session is over.
func (co *Coordinator) Pause(reason PauseReason, loc ExecutionLocation, stack []StackFrame, locals []Variable) Command {
	if co.terminated.Load() {
		return CommandTerminate
	}

	start := time.Now()

	// Install the resume channel before publishing the paused state so a
	// client that reacts to the state change always finds a pause to
	// resume.
	resume := make(chan Command, 1)
	co.mu.Lock()
	co.resume = resume
	co.mu.Unlock()

	// Terminate may have raced ahead of the channel install; self-resume
	// rather than block a dead session.
	if co.terminated.Load() {
		select {
		case resume <- CommandTerminate:
		default:
		}
	}

	co.manager.SetStackTrace(stack)
	if len(stack) > 0 {
		co.manager.CacheVariables(stack[0].ID, locals)
	}
	co.manager.SetState(Paused(reason, loc))
	co.manager.Cache().SetPaused(true)

	kind := EventPaused
	switch reason.Kind {
	case PauseBreakpoint:
		kind = EventBreakpointHit
	case PauseStep:
		kind = EventStepComplete
	}
	co.publish(Event{Kind: kind, Reason: reason, Location: loc, Stack: stack, Locals: locals})

	if elapsed := time.Since(start); elapsed > co.pauseBudget {
		co.logger.Warn("pause publish latency over budget",
			zap.Duration("elapsed", elapsed),
			zap.Duration("budget", co.pauseBudget),
			zap.Stringer("location", loc))
	}

	cmd := <-resume

	co.mu.Lock()
	co.resume = nil
	co.mu.Unlock()
	co.manager.Cache().SetPaused(false)

	co.applyResume(cmd, loc)
	return cmd
}

// applyResume updates state after the interpreter thread unblocks.
func (co *Coordinator) applyResume(cmd Command, loc ExecutionLocation) {
	if cmd == CommandTerminate {
		// State already Terminated; the terminate path published the event.
		return
	}

	c := co.manager.Cache()
	if cmd.IsStep() {
		c.StartStep(stepModeFor(cmd), c.Depth())
	} else {
		c.ClearStep()
	}

	co.manager.ClearSnapshot()
	co.manager.SetState(Running())
	co.publish(Event{Kind: EventResumed, Location: loc})
}

// stepModeFor maps a step command to its cache step mode.
func stepModeFor(cmd Command) cache.StepMode {
	switch cmd {
	case CommandStepInto:
		return cache.StepInto
	case CommandStepOver:
		return cache.StepOver
	case CommandStepOut:
		return cache.StepOut
	default:
		return cache.StepNone
	}
}

// SendCommand applies a client command. Called from the session side.
//
// If the interpreter thread is paused, Continue and the step commands
// unblock it. If it is running, they only record intent: a Pause is armed
// for the next instrumented line, Continue is a no-op, and a step arms
// step state directly. Terminate always succeeds and force-resumes a
// blocked interpreter; every other command fails once terminated.
func (co *Coordinator) SendCommand(cmd Command) error {
	if cmd == CommandTerminate {
		co.Terminate()
		return nil
	}
	if co.terminated.Load() {
		return fmt.Errorf("command %s after terminate: %w", cmd, ErrInvalidState)
	}

	co.mu.Lock()
	resume := co.resume
	co.mu.Unlock()

	if resume != nil && cmd != CommandPause {
		select {
		case resume <- cmd:
		default:
			// A resume is already in flight; drop the duplicate.
		}
		return nil
	}

	// Interpreter is running (or the command is a pause): record intent only.
	switch cmd {
	case CommandPause:
		co.manager.Cache().RequestPause()
	case CommandStepInto, CommandStepOver, CommandStepOut:
		c := co.manager.Cache()
		c.StartStep(stepModeFor(cmd), c.Depth())
	case CommandContinue:
		// Nothing to do while running.
	}
	return nil
}

// Terminate marks the session over and force-resumes a blocked interpreter
// thread with a Terminated state. Idempotent.
func (co *Coordinator) Terminate() {
	if co.terminated.Swap(true) {
		return
	}

	co.manager.SetState(Terminated())

	co.mu.Lock()
	resume := co.resume
	co.mu.Unlock()
	if resume != nil {
		select {
		case resume <- CommandTerminate:
		default:
		}
	}

	co.publish(Event{Kind: EventTerminated})
	co.logger.Debug("coordinator terminated")
}

// Terminated reports whether Terminate has been called.
func (co *Coordinator) Terminated() bool {
	return co.terminated.Load()
}

// publish delivers an event without blocking. Full channel drops the event.
func (co *Coordinator) publish(ev Event) {
	select {
	case co.events <- ev:
	default:
		n := co.dropped.Inc()
		co.logger.Warn("debug event dropped",
			zap.Stringer("kind", ev.Kind),
			zap.Uint64("dropped", n))
	}
}
