package debug

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug/cache"
)

// ConditionEvaluator evaluates a breakpoint guard expression against the
// current execution context. Implementations must not call back into the
// ExecutionManager.
type ConditionEvaluator func(expr string) (bool, error)

// ExecutionManager is the canonical, thread-shared store of breakpoints,
// debug state, and pause snapshots. It is the single source of truth
// consulted and mutated by both client commands and the coordinator.
//
// The fast-path projection in cache.StateCache is rebuilt synchronously on
// every breakpoint mutation; it may never lag the canonical set by more
// than the mutation in flight.
type ExecutionManager struct {
	cache  *cache.StateCache
	logger *zap.Logger

	mu          sync.RWMutex
	breakpoints map[string]*Breakpoint
	bySource    map[string][]*Breakpoint
	state       DebugState

	// Latest pause snapshot, replaced wholesale on each pause.
	stack     []StackFrame
	frameVars map[int][]Variable
}

// NewExecutionManager creates an ExecutionManager over the given fast-path
// cache. A nil logger disables logging.
func NewExecutionManager(c *cache.StateCache, logger *zap.Logger) *ExecutionManager {
	if c == nil {
		c = cache.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionManager{
		cache:       c,
		logger:      logger,
		breakpoints: make(map[string]*Breakpoint),
		bySource:    make(map[string][]*Breakpoint),
		state:       Running(),
		frameVars:   make(map[int][]Variable),
	}
}

// Cache returns the fast-path cache shared with the interpreter hook.
func (m *ExecutionManager) Cache() *cache.StateCache {
	return m.cache
}

// AddBreakpoint installs a breakpoint and returns its ID. A zero-valued ID
// is assigned; Source and Line must be set.
func (m *ExecutionManager) AddBreakpoint(bp *Breakpoint) (string, error) {
	if bp.Source == "" || bp.Line <= 0 {
		return "", fmt.Errorf("breakpoint needs source and positive line: %w", ErrInvalidState)
	}

	m.mu.Lock()
	if bp.ID == "" {
		bp.ID = uuid.NewString()
		bp.Enabled = true
	}
	// The manager owns its own copy; the caller's struct never aliases
	// state behind the lock.
	stored := *bp
	m.breakpoints[stored.ID] = &stored
	m.bySource[stored.Source] = append(m.bySource[stored.Source], &stored)
	m.rebuildIndexLocked()
	m.mu.Unlock()

	if bp.Condition != "" {
		m.cache.SetCondition(bp.Source, bp.Line, &cache.Condition{Expr: bp.Condition})
	}

	m.logger.Debug("breakpoint added",
		zap.String("id", bp.ID),
		zap.String("source", bp.Source),
		zap.Int("line", bp.Line),
		zap.String("condition", bp.Condition))
	return bp.ID, nil
}

// RemoveBreakpoint deletes a breakpoint by ID, reporting whether it existed.
func (m *ExecutionManager) RemoveBreakpoint(id string) bool {
	m.mu.Lock()
	bp, ok := m.breakpoints[id]
	if !ok {
		m.mu.Unlock()
		return false
	}
	delete(m.breakpoints, id)
	m.removeFromSourceLocked(bp)
	m.rebuildIndexLocked()
	m.mu.Unlock()

	if bp.Condition != "" {
		m.cache.RemoveCondition(bp.Source, bp.Line)
	}

	m.logger.Debug("breakpoint removed", zap.String("id", id))
	return true
}

// removeFromSourceLocked drops bp from the per-source slice. Caller holds mu.
func (m *ExecutionManager) removeFromSourceLocked(bp *Breakpoint) {
	bps := m.bySource[bp.Source]
	for i, b := range bps {
		if b.ID == bp.ID {
			m.bySource[bp.Source] = append(bps[:i], bps[i+1:]...)
			break
		}
	}
	if len(m.bySource[bp.Source]) == 0 {
		delete(m.bySource, bp.Source)
	}
}

// rebuildIndexLocked pushes the enabled-breakpoint projection into the
// fast-path cache. Caller holds mu.
func (m *ExecutionManager) rebuildIndexLocked() {
	locs := make([]cache.Location, 0, len(m.breakpoints))
	for _, bp := range m.breakpoints {
		if bp.Enabled {
			locs = append(locs, cache.Location{Source: bp.Source, Line: bp.Line})
		}
	}
	m.cache.UpdateBreakpoints(locs)
}

// SetEnabled enables or disables a breakpoint.
func (m *ExecutionManager) SetEnabled(id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return fmt.Errorf("breakpoint %s: %w", id, ErrNotFound)
	}
	bp.Enabled = enabled
	m.rebuildIndexLocked()
	return nil
}

// SetCondition sets or clears the guard expression of a breakpoint.
func (m *ExecutionManager) SetCondition(id, condition string) error {
	m.mu.Lock()
	bp, ok := m.breakpoints[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("breakpoint %s: %w", id, ErrNotFound)
	}
	bp.Condition = condition
	source, line := bp.Source, bp.Line
	m.mu.Unlock()

	if condition == "" {
		m.cache.RemoveCondition(source, line)
	} else {
		m.cache.SetCondition(source, line, &cache.Condition{Expr: condition})
	}
	return nil
}

// Breakpoints returns detached copies of all breakpoints. Hit counts keep
// advancing inside the manager; callers re-fetch for fresh values.
func (m *ExecutionManager) Breakpoints() []Breakpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]Breakpoint, 0, len(m.breakpoints))
	for _, bp := range m.breakpoints {
		result = append(result, *bp)
	}
	return result
}

// Breakpoint returns a copy of the breakpoint with the given ID.
func (m *ExecutionManager) Breakpoint(id string) (Breakpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	bp, ok := m.breakpoints[id]
	if !ok {
		return Breakpoint{}, false
	}
	return *bp, true
}

// BreakpointAt returns a copy of the breakpoint at the given location, if
// any.
func (m *ExecutionManager) BreakpointAt(source string, line int) (Breakpoint, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, bp := range m.bySource[source] {
		if bp.Line == line {
			return *bp, true
		}
	}
	return Breakpoint{}, false
}

// ShouldBreakAt decides whether a confirmed gate hit actually pauses.
// The hit count increments first; the guard expression is then evaluated
// against the post-increment count. The guard runs fresh on every hit:
// locals change between hits without any cache mutation, so a stored
// result says nothing about the next hit. Evaluation failures are
// swallowed and treated as "condition not met" so the interpreter thread
// never aborts on a debugging failure.
func (m *ExecutionManager) ShouldBreakAt(source string, line int, eval ConditionEvaluator) bool {
	m.mu.Lock()
	var bp *Breakpoint
	for _, b := range m.bySource[source] {
		if b.Line == line {
			bp = b
			break
		}
	}
	if bp == nil || !bp.Enabled {
		m.mu.Unlock()
		return false
	}
	bp.CurrentHits++
	hits, threshold, condition := bp.CurrentHits, bp.HitCount, bp.Condition
	m.mu.Unlock()

	if threshold > 0 && hits < threshold {
		return false
	}
	if condition == "" {
		return true
	}
	if eval == nil {
		return true
	}
	result, err := eval(condition)
	if err != nil {
		m.logger.Debug("breakpoint condition failed, not breaking",
			zap.String("source", source),
			zap.Int("line", line),
			zap.Error(err))
		return false
	}
	// Memoized for queries made during the resulting pause, never for the
	// break decision itself.
	m.cache.CacheConditionResult(source, line, result)
	return result
}

// SetState replaces the debug state. Terminated is absorbing; attempts to
// leave it are ignored.
func (m *ExecutionManager) SetState(state DebugState) {
	m.mu.Lock()
	if m.state.Status == StatusTerminated {
		m.mu.Unlock()
		return
	}
	m.state = state
	m.mu.Unlock()

	m.logger.Debug("debug state changed", zap.Stringer("status", state.Status))
}

// State returns the current debug state.
func (m *ExecutionManager) State() DebugState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// IsActive reports whether the session is still debuggable
// (state is not Terminated).
func (m *ExecutionManager) IsActive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status != StatusTerminated
}

// SetStackTrace replaces the pause snapshot wholesale. The previous
// snapshot's cached frame variables are dropped with it.
func (m *ExecutionManager) SetStackTrace(frames []StackFrame) {
	m.mu.Lock()
	m.stack = frames
	m.frameVars = make(map[int][]Variable)
	m.mu.Unlock()
}

// StackTrace returns the latest pause snapshot. Empty while Running.
func (m *ExecutionManager) StackTrace() []StackFrame {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]StackFrame, len(m.stack))
	copy(result, m.stack)
	return result
}

// CacheVariables stores fetched variables for a frame of the current
// snapshot.
func (m *ExecutionManager) CacheVariables(frameID int, vars []Variable) {
	m.mu.Lock()
	m.frameVars[frameID] = vars
	m.mu.Unlock()
}

// CachedVariables returns previously fetched variables for a frame.
func (m *ExecutionManager) CachedVariables(frameID int) ([]Variable, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	vars, ok := m.frameVars[frameID]
	return vars, ok
}

// ClearSnapshot drops the stack and variable snapshot and advances the
// cache generation. Called on every resume; stale snapshots after resume
// are a correctness bug.
func (m *ExecutionManager) ClearSnapshot() {
	m.mu.Lock()
	m.stack = nil
	m.frameVars = make(map[int][]Variable)
	m.mu.Unlock()

	m.cache.BumpGeneration()
}

// Clear resets breakpoints, state, and snapshots. Used on session teardown.
func (m *ExecutionManager) Clear() {
	m.mu.Lock()
	m.breakpoints = make(map[string]*Breakpoint)
	m.bySource = make(map[string][]*Breakpoint)
	m.state = Running()
	m.stack = nil
	m.frameVars = make(map[int][]Variable)
	m.mu.Unlock()

	m.cache.Clear()
}
