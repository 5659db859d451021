package lua

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
)

// lineHookGlobal is the global the instrumenter injects calls to.
const lineHookGlobal = "__scriptdbg_line"

// Runner executes a Lua script with line instrumentation wired to a
// LineHook. It exists for hosts without a native line-hook facility: the
// instrumenter rewrites the source so every statement line first reports
// itself to the hook.
type Runner struct {
	hook   *LineHook
	logger *zap.Logger
}

// NewRunner creates a runner delivering lines to the given hook.
func NewRunner(hook *LineHook, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{hook: hook, logger: logger}
}

// RunFile executes a script file under instrumentation. The source
// identifier seen by breakpoints is the file's base name.
func (r *Runner) RunFile(ctx context.Context, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	return r.RunSource(ctx, filepath.Base(path), string(src))
}

// RunSource executes Lua source under instrumentation. It blocks for the
// lifetime of the script, including any time spent paused, so callers run
// it on a dedicated goroutine.
func (r *Runner) RunSource(ctx context.Context, chunkName, source string) error {
	instrumented := Instrument(source)

	L := lua.NewState()
	defer L.Close()
	L.SetContext(ctx)

	terminated := false
	// lastLine is the most recent statement line; an uncaught error is
	// attributed to it.
	lastLine := 0
	L.SetGlobal(lineHookGlobal, L.NewFunction(func(L *lua.LState) int {
		line := L.CheckInt(1)
		lastLine = line
		if !r.hook.OnLine(L, chunkName, line) {
			terminated = true
			L.RaiseError("debug session terminated")
		}
		return 0
	}))

	fn, err := L.Load(strings.NewReader(instrumented), chunkName)
	if err != nil {
		return fmt.Errorf("%w: load %s: %v", debug.ErrEvaluation, chunkName, err)
	}

	L.Push(fn)
	if err := L.PCall(0, 0, nil); err != nil {
		if terminated {
			r.logger.Debug("script unwound by terminate", zap.String("chunk", chunkName))
			return nil
		}
		if r.hook.OnError(L, chunkName, lastLine, err.Error()) {
			return fmt.Errorf("script error (paused): %w", err)
		}
		return fmt.Errorf("script error: %w", err)
	}
	return nil
}

// continuationTokens open lines that continue a surrounding statement or
// close a block; a hook call cannot legally precede them.
var continuationTokens = []string{
	"else", "elseif", "end", "until", "then", "do",
}

// continuationPrefixes are leading characters that mark an expression
// continuation line.
const continuationPrefixes = ")}],."

// Instrument rewrites source so each statement line starts with a hook
// call carrying its original line number. Prepending keeps line numbers
// intact.
//
// Statement detection is a line heuristic, not a parse: blank lines,
// comments, long-bracket bodies, block-closing keywords, and expression
// continuations are skipped. Multi-line expressions instrument only their
// first line, which matches where a breakpoint on them would bind.
func Instrument(source string) string {
	lines := strings.Split(source, "\n")
	inLong := false

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inLong {
			if strings.Contains(trimmed, "]]") {
				inLong = false
			}
			continue
		}
		if idx := strings.Index(trimmed, "--[["); idx == 0 {
			if !strings.Contains(trimmed, "]]") {
				inLong = true
			}
			continue
		}
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if isContinuationLine(trimmed) {
			continue
		}

		lines[i] = fmt.Sprintf("%s(%d); %s", lineHookGlobal, i+1, line)
	}
	return strings.Join(lines, "\n")
}

// isContinuationLine reports whether a hook call may not precede the line.
func isContinuationLine(trimmed string) bool {
	if strings.ContainsRune(continuationPrefixes, rune(trimmed[0])) {
		return true
	}
	for _, tok := range continuationTokens {
		if trimmed == tok || (strings.HasPrefix(trimmed, tok) && !isIdentChar(trimmed[len(tok)])) {
			return true
		}
	}
	return false
}

// isIdentChar reports whether c can appear inside an identifier.
func isIdentChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
