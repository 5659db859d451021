package debug

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug/cache"
)

// SessionState represents the lifecycle state of a debug session.
type SessionState int

const (
	// StateInitialized means the session exists but no script is running.
	StateInitialized SessionState = iota
	// StateRunning means the script is executing.
	StateRunning
	// StatePaused means execution is suspended awaiting a command.
	StatePaused
	// StateTerminated means the session has ended. Terminated is absorbing.
	StateTerminated
)

// String returns a string representation of the session state.
func (s SessionState) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionConfig controls session behavior.
type SessionConfig struct {
	// StopOnEntry pauses before the first executable line.
	StopOnEntry bool

	// StopOnException pauses when the guest raises an uncaught error.
	StopOnException bool

	// EnableConditions enables guard-expression evaluation on breakpoints.
	EnableConditions bool

	// EnableWatch enables watch-expression evaluation on pause.
	EnableWatch bool

	// MaxStackDepth caps the frames captured per pause snapshot.
	MaxStackDepth int

	// OperationTimeout bounds client-facing operations such as expression
	// evaluation.
	OperationTimeout time.Duration
}

// DefaultSessionConfig returns a config with conditions and watches
// enabled and conservative limits.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		EnableConditions: true,
		EnableWatch:      true,
		MaxStackDepth:    100,
		OperationTimeout: 5 * time.Second,
	}
}

// SessionMetadata is bookkeeping updated as the session runs.
type SessionMetadata struct {
	ScriptPath     string
	StartedAt      time.Time
	LastActivity   time.Time
	BreakpointsHit int
	StepsExecuted  int
}

// ExpressionEvaluator evaluates a guest-language expression against the
// current pause and renders the result as a Variable.
type ExpressionEvaluator interface {
	EvaluateExpression(expr string, frameID int) (Variable, error)
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(logger *zap.Logger) SessionOption {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSessionClock sets the clock used for metadata timestamps.
func WithSessionClock(clk clock.Clock) SessionOption {
	return func(s *Session) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithEvaluator sets the watch/condition expression evaluator.
func WithEvaluator(eval ExpressionEvaluator) SessionOption {
	return func(s *Session) { s.evaluator = eval }
}

// WithVariableReader sets the reader backing the session's inspector.
func WithVariableReader(reader VariableReader) SessionOption {
	return func(s *Session) { s.inspector = NewInspector(reader) }
}

// Session is one interactive debugging session: the state machine a client
// drives, wrapping a coordinator/manager pair it owns.
//
// A session holds shared handles downward only. Nothing in the pair refers
// back to the session, so teardown order is never cyclic.
type Session struct {
	id          string
	config      SessionConfig
	coordinator *Coordinator
	manager     *ExecutionManager
	navigator   *StackNavigator
	inspector   *Inspector
	evaluator   ExpressionEvaluator
	logger      *zap.Logger
	clock       clock.Clock

	mu           sync.RWMutex
	state        SessionState
	meta         SessionMetadata
	watchExprs   []string
	currentFrame int
}

// NewSession creates a session together with its own cache, execution
// manager, and coordinator.
func NewSession(config SessionConfig, opts ...SessionOption) *Session {
	s := &Session{
		id:     uuid.NewString(),
		config: config,
		logger: zap.NewNop(),
		clock:  clock.New(),
		state:  StateInitialized,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.manager = NewExecutionManager(cache.New(), s.logger)
	s.coordinator = NewCoordinator(s.manager, s.logger)
	s.navigator = NewStackNavigator()
	if s.inspector == nil {
		s.inspector = NewInspector(nil)
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// BindGuest attaches the guest-language binding. Guest bindings are built
// around the session's coordinator pair, so they cannot exist before the
// session does; this is the second wiring step. Must be called before
// Initialize.
func (s *Session) BindGuest(eval ExpressionEvaluator, reader VariableReader) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if eval != nil {
		s.evaluator = eval
	}
	if reader != nil {
		s.inspector = NewInspector(reader)
	}
}

// Config returns the session configuration.
func (s *Session) Config() SessionConfig {
	return s.config
}

// Coordinator returns the session's coordinator, for wiring the
// interpreter hook.
func (s *Session) Coordinator() *Coordinator {
	return s.coordinator
}

// ExecutionManager returns the session's canonical execution state.
func (s *Session) ExecutionManager() *ExecutionManager {
	return s.manager
}

// Inspector returns the session's variable inspector.
func (s *Session) Inspector() *Inspector {
	return s.inspector
}

// State returns the session state.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Metadata returns a copy of the session bookkeeping.
func (s *Session) Metadata() SessionMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.meta
}

// Initialize transitions Initialized→Running for the given script. With
// StopOnEntry set, a pause is armed for the first instrumented line.
func (s *Session) Initialize(scriptPath string) error {
	s.mu.Lock()
	if s.state != StateInitialized {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("initialize from %s: %w", state, ErrInvalidState)
	}
	now := s.clock.Now()
	s.state = StateRunning
	s.meta.ScriptPath = scriptPath
	s.meta.StartedAt = now
	s.meta.LastActivity = now
	s.mu.Unlock()

	if s.config.StopOnEntry {
		s.manager.Cache().RequestPause()
	}

	s.logger.Info("session initialized",
		zap.String("session", s.id),
		zap.String("script", scriptPath),
		zap.Bool("stopOnEntry", s.config.StopOnEntry))
	return nil
}

// Continue resumes a paused script.
func (s *Session) Continue() error {
	return s.command(CommandContinue)
}

// Pause requests a pause at the next instrumented line.
func (s *Session) Pause() error {
	return s.command(CommandPause)
}

// StepInto pauses at the next executed line, entering calls.
func (s *Session) StepInto() error {
	return s.step(CommandStepInto)
}

// StepOver pauses at the next line without entering calls.
func (s *Session) StepOver() error {
	return s.step(CommandStepOver)
}

// StepOut pauses after the current function returns.
func (s *Session) StepOut() error {
	return s.step(CommandStepOut)
}

// step issues a step command and counts it.
func (s *Session) step(cmd Command) error {
	if err := s.command(cmd); err != nil {
		return err
	}
	s.mu.Lock()
	s.meta.StepsExecuted++
	s.meta.LastActivity = s.clock.Now()
	s.mu.Unlock()
	return nil
}

// command delegates to the coordinator, guarding terminal state.
func (s *Session) command(cmd Command) error {
	if s.State() == StateTerminated {
		return fmt.Errorf("command %s on terminated session: %w", cmd, ErrInvalidState)
	}
	if err := s.coordinator.SendCommand(cmd); err != nil {
		return fmt.Errorf("send %s: %w", cmd, err)
	}
	return nil
}

// SetBreakpoint installs a breakpoint and returns its ID. Condition and
// hitCount are optional; a condition is ignored when conditions are
// disabled by config.
func (s *Session) SetBreakpoint(source string, line int, condition string, hitCount int) (string, error) {
	if s.State() == StateTerminated {
		return "", fmt.Errorf("set breakpoint on terminated session: %w", ErrInvalidState)
	}
	if !s.config.EnableConditions {
		condition = ""
	}

	bp := NewBreakpoint(source, line)
	bp.Condition = condition
	bp.HitCount = hitCount
	id, err := s.manager.AddBreakpoint(bp)
	if err != nil {
		return "", err
	}
	s.touch()
	return id, nil
}

// RemoveBreakpoint deletes a breakpoint by ID.
func (s *Session) RemoveBreakpoint(id string) error {
	if !s.manager.RemoveBreakpoint(id) {
		return fmt.Errorf("breakpoint %s: %w", id, ErrNotFound)
	}
	s.touch()
	return nil
}

// Breakpoints returns detached copies of all breakpoints.
func (s *Session) Breakpoints() []Breakpoint {
	return s.manager.Breakpoints()
}

// AddWatch registers a watch expression, re-evaluated on every pause.
func (s *Session) AddWatch(expr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.watchExprs {
		if w == expr {
			return
		}
	}
	s.watchExprs = append(s.watchExprs, expr)
	s.manager.Cache().AddWatch(expr)
}

// RemoveWatch unregisters a watch expression and drops its memoized result.
func (s *Session) RemoveWatch(expr string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, w := range s.watchExprs {
		if w == expr {
			s.watchExprs = append(s.watchExprs[:i], s.watchExprs[i+1:]...)
			s.manager.Cache().RemoveWatch(expr)
			return
		}
	}
}

// WatchExpressions returns the registered watch expressions.
func (s *Session) WatchExpressions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, len(s.watchExprs))
	copy(result, s.watchExprs)
	return result
}

// EvaluateWatches evaluates every watch expression against the current
// pause. Outside a pause, or with watches disabled, each expression yields
// an unavailable placeholder; individual evaluation errors become error
// placeholders rather than failing the batch. Successful results are
// memoized in the generation-tagged watch cache, so repeated calls within
// one pause evaluate each expression once; the generation bump on resume
// invalidates them.
func (s *Session) EvaluateWatches() []Variable {
	exprs := s.WatchExpressions()
	results := make([]Variable, len(exprs))

	paused := s.State() == StatePaused && s.manager.State().Status == StatusPaused
	frameID := s.CurrentFrameIndex()
	c := s.manager.Cache()

	for i, expr := range exprs {
		if !s.config.EnableWatch || !paused || s.evaluator == nil {
			results[i] = Variable{Name: expr, Value: "<not available>", Type: "unavailable"}
			continue
		}
		if value, vtype, ok := c.CachedWatchResult(expr); ok {
			results[i] = Variable{Name: expr, Value: value, Type: vtype}
			continue
		}
		v, err := s.evaluator.EvaluateExpression(expr, frameID)
		if err != nil {
			results[i] = Variable{Name: expr, Value: fmt.Sprintf("<error: %v>", err), Type: "error"}
			continue
		}
		v.Name = expr
		c.CacheWatchResult(expr, v.Value, v.Type)
		results[i] = v
	}
	return results
}

// Evaluate evaluates an expression against the current pause.
func (s *Session) Evaluate(expr string) (Variable, error) {
	if s.State() != StatePaused {
		return Variable{}, fmt.Errorf("evaluate while %s: %w", s.State(), ErrInvalidState)
	}
	if s.evaluator == nil {
		return Variable{}, fmt.Errorf("no expression evaluator: %w", ErrInvalidState)
	}
	v, err := s.evaluator.EvaluateExpression(expr, s.CurrentFrameIndex())
	if err != nil {
		return Variable{}, fmt.Errorf("evaluate %q: %w", expr, err)
	}
	return v, nil
}

// StackTrace returns the current pause snapshot.
func (s *Session) StackTrace() []StackFrame {
	return s.manager.StackTrace()
}

// SelectFrame changes the current frame index for navigation. It never
// mutates the snapshot itself.
func (s *Session) SelectFrame(index int) error {
	stack := s.manager.StackTrace()
	if _, err := s.navigator.NavigateToFrame(index, stack); err != nil {
		return err
	}
	s.mu.Lock()
	s.currentFrame = index
	s.mu.Unlock()
	return nil
}

// CurrentFrameIndex returns the selected frame index.
func (s *Session) CurrentFrameIndex() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentFrame
}

// FormatStackTrace renders the current snapshot with the selected frame
// marked.
func (s *Session) FormatStackTrace() string {
	return s.navigator.FormatStackTrace(s.manager.StackTrace(), s.CurrentFrameIndex())
}

// FrameVariables returns the locals of the frame at index.
func (s *Session) FrameVariables(index int) (map[string]Variable, error) {
	frame, err := s.navigator.NavigateToFrame(index, s.manager.StackTrace())
	if err != nil {
		return nil, err
	}
	return s.navigator.FrameVariables(frame), nil
}

// Terminate ends the session, force-resuming a blocked interpreter thread.
// Idempotent.
func (s *Session) Terminate() {
	s.mu.Lock()
	if s.state == StateTerminated {
		s.mu.Unlock()
		return
	}
	s.state = StateTerminated
	s.meta.LastActivity = s.clock.Now()
	s.mu.Unlock()

	s.coordinator.Terminate()
	s.inspector.InvalidateCache()
	s.logger.Info("session terminated", zap.String("session", s.id))
}

// ProcessEvents drains pending coordinator events. Safe and cheap to call
// with zero pending events; each call is a bounded non-blocking sweep.
func (s *Session) ProcessEvents() int {
	n := 0
	for {
		select {
		case ev := <-s.coordinator.Events():
			s.HandleEvent(ev)
			n++
		default:
			return n
		}
	}
}

// HandleEvent applies one coordinator event to session bookkeeping.
func (s *Session) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateTerminated && ev.Kind != EventTerminated {
		return
	}
	s.meta.LastActivity = s.clock.Now()

	switch ev.Kind {
	case EventBreakpointHit:
		s.meta.BreakpointsHit++
		s.state = StatePaused
		s.currentFrame = 0
	case EventStepComplete, EventPaused:
		s.state = StatePaused
		s.currentFrame = 0
	case EventResumed:
		s.state = StateRunning
		s.inspector.InvalidateCache()
	case EventTerminated:
		s.state = StateTerminated
	}
}

// touch updates the last-activity timestamp.
func (s *Session) touch() {
	s.mu.Lock()
	s.meta.LastActivity = s.clock.Now()
	s.mu.Unlock()
}
