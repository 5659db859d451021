package lua

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/dshills/scriptdbg/internal/debug"
)

func TestInstrumentStatementLines(t *testing.T) {
	tests := []struct {
		name   string
		line   string
		wantIn bool
	}{
		{"assignment", "x = 1", true},
		{"local", "local y = 2", true},
		{"call", "print(x)", true},
		{"if", "if x > 1 then", true},
		{"for", "for i = 1, 10 do", true},
		{"while", "while x < 5 do", true},
		{"return", "return x", true},
		{"function def", "local function f(a)", true},
		{"blank", "", false},
		{"whitespace", "   ", false},
		{"comment", "-- a comment", false},
		{"indented comment", "  -- note", false},
		{"end", "end", false},
		{"indented end", "    end", false},
		{"else", "else", false},
		{"elseif", "elseif x == 2 then", false},
		{"until", "until done", false},
		{"then on own line", "then", false},
		{"closing paren", ")", false},
		{"closing brace", "}", false},
		{"closing bracket", "]", false},
		{"method continuation", ".upper()", false},
		{"identifier starting with end", "endpoint = 1", true},
		{"identifier starting with else", "elsewhere()", true},
		{"do on own line", "do", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Instrument(tt.line)
			if gotIn := strings.Contains(got, lineHookGlobal); gotIn != tt.wantIn {
				t.Errorf("Instrument(%q) = %q, instrumented = %v, want %v",
					tt.line, got, gotIn, tt.wantIn)
			}
		})
	}
}

func TestInstrumentPreservesLineNumbers(t *testing.T) {
	src := "x = 1\n\ny = 2\n-- done\nz = 3"
	got := Instrument(src)

	if strings.Count(got, "\n") != strings.Count(src, "\n") {
		t.Fatalf("line count changed:\n%s", got)
	}
	lines := strings.Split(got, "\n")
	if !strings.HasPrefix(lines[0], lineHookGlobal+"(1);") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[2], lineHookGlobal+"(3);") {
		t.Errorf("line 3 = %q", lines[2])
	}
	if !strings.HasPrefix(lines[4], lineHookGlobal+"(5);") {
		t.Errorf("line 5 = %q", lines[4])
	}
}

func TestInstrumentSkipsLongComments(t *testing.T) {
	src := "--[[\nx = 1\ny = 2\n]]\nz = 3"
	got := Instrument(src)

	if strings.Count(got, lineHookGlobal) != 1 {
		t.Fatalf("want only the line after the long comment instrumented:\n%s", got)
	}
	if !strings.Contains(got, lineHookGlobal+"(5);") {
		t.Fatalf("z = 3 not instrumented:\n%s", got)
	}
}

// helperScript exercises a nested call, a loop, and locals at two depths.
//
//	1  local function helper(a)
//	2    local x = a * 2
//	3    return x
//	4  end
//	5
//	6  local total = 0
//	7  for i = 1, 5 do
//	8    total = total + helper(i)
//	9  end
const helperScript = `local function helper(a)
  local x = a * 2
  return x
end

local total = 0
for i = 1, 5 do
  total = total + helper(i)
end
`

// debugHarness wires a full session, evaluator, hook, and runner.
type debugHarness struct {
	session  *debug.Session
	runner   *Runner
	finished chan struct{}
	runErr   error
}

func newDebugHarness(t *testing.T, cfg debug.SessionConfig) *debugHarness {
	t.Helper()

	eval := NewEvaluator()
	t.Cleanup(eval.Close)

	session := debug.NewSession(cfg)
	hook := NewLineHook(session, eval, nil)

	return &debugHarness{
		session:  session,
		runner:   NewRunner(hook, nil),
		finished: make(chan struct{}),
	}
}

func (h *debugHarness) start(t *testing.T, source string) {
	t.Helper()
	if err := h.session.Initialize("test.lua"); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	go func() {
		h.runErr = h.runner.RunSource(context.Background(), "test.lua", source)
		close(h.finished)
	}()
	t.Cleanup(func() {
		h.session.Terminate()
		select {
		case <-h.finished:
		case <-time.After(2 * time.Second):
			t.Error("runner did not unwind after terminate")
		}
	})
}

func (h *debugHarness) waitPaused(t *testing.T) debug.DebugState {
	t.Helper()
	mgr := h.session.ExecutionManager()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := mgr.State(); st.Paused() {
			h.session.ProcessEvents()
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("interpreter never paused")
	return debug.DebugState{}
}

// waitPausedFor waits for a pause with a specific reason, so a poll right
// after a resume cannot match the stale previous pause.
func (h *debugHarness) waitPausedFor(t *testing.T, kind debug.PauseKind) debug.DebugState {
	t.Helper()
	mgr := h.session.ExecutionManager()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if st := mgr.State(); st.Paused() && st.Reason.Kind == kind {
			h.session.ProcessEvents()
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("interpreter never paused with reason %v", kind)
	return debug.DebugState{}
}

func (h *debugHarness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case <-h.finished:
		return h.runErr
	case <-time.After(2 * time.Second):
		t.Fatal("script did not finish")
		return nil
	}
}

// clearBreakpoints removes all breakpoints so a following step pause is
// unambiguous.
func (h *debugHarness) clearBreakpoints(t *testing.T) {
	t.Helper()
	for _, bp := range h.session.Breakpoints() {
		if err := h.session.RemoveBreakpoint(bp.ID); err != nil {
			t.Fatalf("RemoveBreakpoint: %v", err)
		}
	}
}

func TestRunnerBreakpointPausesInHelper(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 2, "", 0); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	st := h.waitPaused(t)
	if st.Reason.Kind != debug.PauseBreakpoint {
		t.Fatalf("reason = %v, want breakpoint", st.Reason.Kind)
	}
	if st.Location.Source != "test.lua" || st.Location.Line != 2 {
		t.Fatalf("location = %v, want test.lua:2", st.Location)
	}

	stack := h.session.StackTrace()
	if len(stack) < 2 {
		t.Fatalf("stack depth = %d, want at least 2 (helper + main)", len(stack))
	}
	if stack[0].Line != 2 {
		t.Errorf("frame 0 line = %d, want 2", stack[0].Line)
	}
	vars, err := h.session.FrameVariables(0)
	if err != nil {
		t.Fatalf("FrameVariables: %v", err)
	}
	a, ok := vars["a"]
	if !ok {
		t.Fatalf("local a not captured, got %v", vars)
	}
	if a.Value != "1" {
		t.Errorf("a = %q, want 1 on first call", a.Value)
	}

	bps := h.session.Breakpoints()
	if len(bps) != 1 {
		t.Fatalf("breakpoint count = %d", len(bps))
	}
	if err := h.session.RemoveBreakpoint(bps[0].ID); err != nil {
		t.Fatalf("RemoveBreakpoint: %v", err)
	}
	if err := h.session.Continue(); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("script error: %v", err)
	}
}

func TestRunnerHitCountDelaysPause(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 8, "", 3); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	h.waitPaused(t)
	vars, err := h.session.FrameVariables(0)
	if err != nil {
		t.Fatalf("FrameVariables: %v", err)
	}
	if i := vars["i"]; i.Value != "3" {
		t.Fatalf("paused at i = %q, want 3rd iteration", i.Value)
	}
	bp := h.session.Breakpoints()[0]
	if bp.CurrentHits != 3 {
		t.Errorf("CurrentHits = %d, want 3", bp.CurrentHits)
	}
}

func TestRunnerConditionGuardsPause(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 8, "i == 4", 0); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	h.waitPaused(t)
	vars, err := h.session.FrameVariables(0)
	if err != nil {
		t.Fatalf("FrameVariables: %v", err)
	}
	if i := vars["i"]; i.Value != "4" {
		t.Fatalf("paused at i = %q, want condition to hold only at 4", i.Value)
	}
}

func TestRunnerStepOverStaysInFrame(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 8, "", 0); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	h.waitPaused(t)
	h.clearBreakpoints(t)
	before := h.session.Metadata().StepsExecuted

	// Line 8 calls helper; step over must skip its body.
	if err := h.session.StepOver(); err != nil {
		t.Fatalf("StepOver: %v", err)
	}
	st := h.waitPausedFor(t, debug.PauseStep)
	if st.Location.Line == 2 || st.Location.Line == 3 {
		t.Fatalf("stopped inside helper at line %d", st.Location.Line)
	}
	if got := h.session.Metadata().StepsExecuted; got != before+1 {
		t.Errorf("StepsExecuted = %d, want %d", got, before+1)
	}
}

func TestRunnerStepIntoEntersHelper(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 8, "", 0); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	h.waitPaused(t)
	h.clearBreakpoints(t)
	if err := h.session.StepInto(); err != nil {
		t.Fatalf("StepInto: %v", err)
	}
	st := h.waitPausedFor(t, debug.PauseStep)
	if st.Location.Line != 2 {
		t.Fatalf("step into stopped at line %d, want helper body line 2", st.Location.Line)
	}
}

func TestRunnerStopOnEntry(t *testing.T) {
	cfg := debug.DefaultSessionConfig()
	cfg.StopOnEntry = true
	h := newDebugHarness(t, cfg)
	h.start(t, helperScript)

	st := h.waitPaused(t)
	if st.Reason.Kind != debug.PauseEntry {
		t.Fatalf("reason = %v, want entry", st.Reason.Kind)
	}
	if st.Location.Line != 1 {
		t.Fatalf("entry pause at line %d, want 1", st.Location.Line)
	}
	if err := h.session.Continue(); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	if err := h.waitDone(t); err != nil {
		t.Fatalf("script error: %v", err)
	}
}

func TestRunnerTerminateWhilePausedUnwinds(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	if _, err := h.session.SetBreakpoint("test.lua", 8, "", 0); err != nil {
		t.Fatalf("SetBreakpoint: %v", err)
	}
	h.start(t, helperScript)

	h.waitPaused(t)
	h.session.Terminate()

	if err := h.waitDone(t); err != nil {
		t.Fatalf("terminate must unwind cleanly, got %v", err)
	}
	if h.session.State() != debug.StateTerminated {
		t.Fatalf("session state = %v, want terminated", h.session.State())
	}
}

func TestRunnerRunsToCompletionWithoutBreakpoints(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	h.start(t, helperScript)

	if err := h.waitDone(t); err != nil {
		t.Fatalf("script error: %v", err)
	}
}

func TestRunnerStopOnExceptionPausesAtFailingLine(t *testing.T) {
	cfg := debug.DefaultSessionConfig()
	cfg.StopOnException = true
	h := newDebugHarness(t, cfg)
	h.start(t, "local t = nil\nx = t.field\n")

	st := h.waitPausedFor(t, debug.PauseException)
	if st.Location.Source != "test.lua" || st.Location.Line != 2 {
		t.Fatalf("exception pause at %v, want test.lua:2", st.Location)
	}
	if !strings.Contains(st.Reason.Message, "index") {
		t.Errorf("message = %q, want the index error text", st.Reason.Message)
	}

	if err := h.session.Continue(); err != nil {
		t.Fatalf("Continue: %v", err)
	}
	err := h.waitDone(t)
	if err == nil || !strings.Contains(err.Error(), "script error") {
		t.Fatalf("err = %v, want the surfaced script error", err)
	}
}

func TestRunnerScriptErrorSurfaces(t *testing.T) {
	h := newDebugHarness(t, debug.DefaultSessionConfig())
	h.start(t, "local t = nil\nx = t.field\n")

	err := h.waitDone(t)
	if err == nil {
		t.Fatal("expected a script error")
	}
	if !strings.Contains(err.Error(), "script error") {
		t.Fatalf("err = %v", err)
	}
}
