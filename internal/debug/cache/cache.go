// Package cache implements the fast-path state shared between the guest
// interpreter's hot loop and the debug control plane.
//
// The interpreter hook calls MightBreakAt on every executable line. When no
// breakpoints exist anywhere the call is a single relaxed atomic load. When
// breakpoints exist it is one RLock'd map lookup. Everything else in this
// package (conditions, step state, variable caches) is slow-path only.
//
// Cached results are invalidated by a process-wide generation counter rather
// than an explicit clear: every mutation bumps the generation, and a cached
// entry whose generation lags the current one is treated as a miss.
package cache

import (
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// Location is a denormalized breakpoint position, the only thing the fast
// path knows about a breakpoint.
type Location struct {
	Source string
	Line   int
}

// StepMode selects how step state decides to pause.
type StepMode int

const (
	// StepNone means no step is in progress.
	StepNone StepMode = iota
	// StepInto pauses at the next executed line regardless of depth.
	StepInto
	// StepOver pauses at the next line at or above the starting depth.
	StepOver
	// StepOut pauses at the first line shallower than the starting depth.
	StepOut
)

// String returns a string representation of the step mode.
func (m StepMode) String() string {
	switch m {
	case StepNone:
		return "none"
	case StepInto:
		return "into"
	case StepOver:
		return "over"
	case StepOut:
		return "out"
	default:
		return "unknown"
	}
}

// Condition is a compiled breakpoint guard expression.
type Condition struct {
	// Expr is the guard expression source text.
	Expr string

	// Compiled is an opaque compiled form installed by the guest-language
	// evaluator, nil until compiled.
	Compiled any
}

type condResult struct {
	result     bool
	generation uint64
}

type cachedVar struct {
	value      string
	generation uint64
	lastUsed   uint64
}

type watchResult struct {
	value      string
	vtype      string
	generation uint64
}

// defaultVariableCap bounds the variable cache before LRU eviction kicks in.
const defaultVariableCap = 256

// StateCache holds all state consulted on the interpreter's hot path plus
// the generation-tagged slow-path caches.
//
// MightBreakAt never acquires a writer lock, never allocates, and never
// blocks. All mutation paths are client-driven and rare.
type StateCache struct {
	// Fast path.
	active atomic.Bool
	mu     sync.RWMutex
	lines  map[string]map[int]struct{}

	// Bumped on any breakpoint or condition mutation and on resume.
	generation atomic.Uint64

	// Conditions and their memoized results, keyed by "source:line".
	conditions  sync.Map
	condResults sync.Map

	// Step state.
	stepping atomic.Bool
	stepMu   sync.Mutex
	stepMode StepMode
	// Depth the step started at; meaning depends on stepMode.
	stepDepth int
	depth     atomic.Int64

	// Paused flag mirrors whether the interpreter thread is blocked.
	paused atomic.Bool

	// Pending pause requested while running, honored at the next line.
	pendingPause atomic.Bool

	// Variable and watch caches.
	varMu        sync.Mutex
	varSeq       uint64
	varCap       int
	vars         map[string]cachedVar
	watches      map[string]struct{}
	watchResults map[string]watchResult
}

// New creates an empty StateCache.
func New() *StateCache {
	return &StateCache{
		lines:        make(map[string]map[int]struct{}),
		varCap:       defaultVariableCap,
		vars:         make(map[string]cachedVar),
		watches:      make(map[string]struct{}),
		watchResults: make(map[string]watchResult),
	}
}

// condKey builds the condition map key. Slow path only.
func condKey(source string, line int) string {
	return fmt.Sprintf("%s:%d", source, line)
}

// MightBreakAt reports whether a breakpoint may exist at the location.
// It only signals "maybe"; hit counting and condition evaluation happen in
// the slow path. Safe to call from the interpreter thread on every line.
func (c *StateCache) MightBreakAt(source string, line int) bool {
	if !c.active.Load() {
		return false
	}
	c.mu.RLock()
	set, ok := c.lines[source]
	if ok {
		_, ok = set[line]
	}
	c.mu.RUnlock()
	return ok
}

// UpdateBreakpoints rebuilds the source→line-set projection wholesale and
// flips the active flag based on emptiness. This is the only mutation path
// for the fast-path index.
func (c *StateCache) UpdateBreakpoints(locs []Location) {
	lines := make(map[string]map[int]struct{}, len(locs))
	for _, loc := range locs {
		set, ok := lines[loc.Source]
		if !ok {
			set = make(map[int]struct{})
			lines[loc.Source] = set
		}
		set[loc.Line] = struct{}{}
	}

	c.mu.Lock()
	c.lines = lines
	c.mu.Unlock()

	c.active.Store(len(locs) > 0)
	c.generation.Inc()
}

// Active reports whether any breakpoints are installed.
func (c *StateCache) Active() bool {
	return c.active.Load()
}

// Generation returns the current cache generation.
func (c *StateCache) Generation() uint64 {
	return c.generation.Load()
}

// BumpGeneration advances the generation, invalidating all tagged caches.
// Called on resume so values captured during one pause never leak into the
// next.
func (c *StateCache) BumpGeneration() {
	c.generation.Inc()
}

// HasCondition reports whether a guard expression is registered for the
// location. Lock-free.
func (c *StateCache) HasCondition(source string, line int) bool {
	_, ok := c.conditions.Load(condKey(source, line))
	return ok
}

// SetCondition registers a guard expression for the location, replacing any
// previous one.
func (c *StateCache) SetCondition(source string, line int, cond *Condition) {
	key := condKey(source, line)
	c.conditions.Store(key, cond)
	c.condResults.Delete(key)
	c.generation.Inc()
}

// RemoveCondition removes the guard expression for the location.
func (c *StateCache) RemoveCondition(source string, line int) {
	key := condKey(source, line)
	c.conditions.Delete(key)
	c.condResults.Delete(key)
	c.generation.Inc()
}

// Condition returns the guard expression for the location, if any.
func (c *StateCache) Condition(source string, line int) (*Condition, bool) {
	v, ok := c.conditions.Load(condKey(source, line))
	if !ok {
		return nil, false
	}
	return v.(*Condition), true
}

// CacheConditionResult memoizes a guard evaluation, tagged with the current
// generation.
func (c *StateCache) CacheConditionResult(source string, line int, result bool) {
	c.condResults.Store(condKey(source, line), condResult{
		result:     result,
		generation: c.generation.Load(),
	})
}

// CachedConditionResult returns the memoized guard result if it is still
// current. A generation mismatch is a miss; the caller re-evaluates.
func (c *StateCache) CachedConditionResult(source string, line int) (bool, bool) {
	v, ok := c.condResults.Load(condKey(source, line))
	if !ok {
		return false, false
	}
	r := v.(condResult)
	if r.generation != c.generation.Load() {
		return false, false
	}
	return r.result, true
}

// StartStep arms step state. The depth argument is the call depth at the
// time the step command was issued.
func (c *StateCache) StartStep(mode StepMode, depth int) {
	c.stepMu.Lock()
	c.stepMode = mode
	c.stepDepth = depth
	c.stepMu.Unlock()
	c.stepping.Store(mode != StepNone)
}

// ClearStep disarms step state.
func (c *StateCache) ClearStep() {
	c.stepMu.Lock()
	c.stepMode = StepNone
	c.stepDepth = 0
	c.stepMu.Unlock()
	c.stepping.Store(false)
}

// Stepping reports whether a step is in progress. Cheap enough for the
// line hook's slow path.
func (c *StateCache) Stepping() bool {
	return c.stepping.Load()
}

// Step returns the current step mode and its starting depth.
func (c *StateCache) Step() (StepMode, int) {
	c.stepMu.Lock()
	defer c.stepMu.Unlock()
	return c.stepMode, c.stepDepth
}

// ShouldStepPause decides whether an armed step pauses at the given call
// depth: into pauses anywhere, over pauses at or above the starting depth,
// out pauses strictly above it.
func (c *StateCache) ShouldStepPause(depth int) bool {
	c.stepMu.Lock()
	mode, start := c.stepMode, c.stepDepth
	c.stepMu.Unlock()

	switch mode {
	case StepInto:
		return true
	case StepOver:
		return depth <= start
	case StepOut:
		return depth < start
	default:
		return false
	}
}

// EnterFunction records a call, deepening the tracked depth.
func (c *StateCache) EnterFunction() {
	c.depth.Inc()
}

// LeaveFunction records a return.
func (c *StateCache) LeaveFunction() {
	c.depth.Dec()
}

// Depth returns the tracked call depth.
func (c *StateCache) Depth() int {
	return int(c.depth.Load())
}

// SetDepth overwrites the tracked call depth. Hooks that can measure the
// real stack depth directly use this instead of Enter/LeaveFunction pairs.
func (c *StateCache) SetDepth(depth int) {
	c.depth.Store(int64(depth))
}

// SetPaused records whether the interpreter thread is blocked.
func (c *StateCache) SetPaused(paused bool) {
	c.paused.Store(paused)
}

// Paused reports whether the interpreter thread is blocked.
func (c *StateCache) Paused() bool {
	return c.paused.Load()
}

// RequestPause arms a pause for the next instrumented line.
func (c *StateCache) RequestPause() {
	c.pendingPause.Store(true)
}

// TakePendingPause consumes an armed pause request, reporting whether one
// was pending.
func (c *StateCache) TakePendingPause() bool {
	return c.pendingPause.Swap(false)
}

// PausePending reports whether a pause request is armed without consuming it.
func (c *StateCache) PausePending() bool {
	return c.pendingPause.Load()
}

// CacheVariable stores a variable rendering tagged with the current
// generation. The cache is bounded; the least recently used entry is
// evicted once the cap is exceeded.
func (c *StateCache) CacheVariable(name, value string) {
	c.varMu.Lock()
	defer c.varMu.Unlock()

	c.varSeq++
	c.vars[name] = cachedVar{
		value:      value,
		generation: c.generation.Load(),
		lastUsed:   c.varSeq,
	}
	if len(c.vars) > c.varCap {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the least recently used variable entry.
// Caller holds varMu.
func (c *StateCache) evictOldestLocked() {
	var oldest string
	var oldestSeq uint64
	first := true
	for name, v := range c.vars {
		if first || v.lastUsed < oldestSeq {
			oldest = name
			oldestSeq = v.lastUsed
			first = false
		}
	}
	if !first {
		delete(c.vars, oldest)
	}
}

// CachedVariable returns a cached variable rendering if still current.
func (c *StateCache) CachedVariable(name string) (string, bool) {
	c.varMu.Lock()
	defer c.varMu.Unlock()

	v, ok := c.vars[name]
	if !ok || v.generation != c.generation.Load() {
		return "", false
	}
	c.varSeq++
	v.lastUsed = c.varSeq
	c.vars[name] = v
	return v.value, true
}

// AddWatch registers a watched variable name.
func (c *StateCache) AddWatch(name string) {
	c.varMu.Lock()
	c.watches[name] = struct{}{}
	c.varMu.Unlock()
}

// RemoveWatch unregisters a watched variable name.
func (c *StateCache) RemoveWatch(name string) {
	c.varMu.Lock()
	delete(c.watches, name)
	delete(c.watchResults, name)
	c.varMu.Unlock()
}

// Watches returns the watched variable names.
func (c *StateCache) Watches() []string {
	c.varMu.Lock()
	defer c.varMu.Unlock()

	names := make([]string, 0, len(c.watches))
	for name := range c.watches {
		names = append(names, name)
	}
	return names
}

// CacheWatchResult stores a watch evaluation and its type name, tagged
// with the current generation.
func (c *StateCache) CacheWatchResult(name, value, vtype string) {
	c.varMu.Lock()
	c.watchResults[name] = watchResult{
		value:      value,
		vtype:      vtype,
		generation: c.generation.Load(),
	}
	c.varMu.Unlock()
}

// CachedWatchResult returns a cached watch evaluation if still current.
func (c *StateCache) CachedWatchResult(name string) (value, vtype string, ok bool) {
	c.varMu.Lock()
	defer c.varMu.Unlock()

	v, found := c.watchResults[name]
	if !found || v.generation != c.generation.Load() {
		return "", "", false
	}
	return v.value, v.vtype, true
}

// Clear resets everything. Used on session teardown.
func (c *StateCache) Clear() {
	c.mu.Lock()
	c.lines = make(map[string]map[int]struct{})
	c.mu.Unlock()
	c.active.Store(false)

	c.conditions.Range(func(key, _ any) bool {
		c.conditions.Delete(key)
		return true
	})
	c.condResults.Range(func(key, _ any) bool {
		c.condResults.Delete(key)
		return true
	})

	c.ClearStep()
	c.depth.Store(0)
	c.paused.Store(false)
	c.pendingPause.Store(false)

	c.varMu.Lock()
	c.vars = make(map[string]cachedVar)
	c.watches = make(map[string]struct{})
	c.watchResults = make(map[string]watchResult)
	c.varMu.Unlock()

	c.generation.Inc()
}
