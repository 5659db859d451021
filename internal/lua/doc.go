// Package lua binds the debug engine to gopher-lua guests.
//
// The engine in internal/debug is language-agnostic; this package supplies
// everything Lua-specific:
//
//	┌─────────────────────────────────────────────────────────┐
//	│ Runner      instruments source, executes it, delivers   │
//	│             every statement line to the LineHook        │
//	│ LineHook    fast-path gate + pause entry point          │
//	│ Debugger    debug.ScriptDebugger implementation         │
//	│ Evaluator   sandboxed state for conditions and watches  │
//	│ Executor    serializes operations onto the state owner  │
//	└─────────────────────────────────────────────────────────┘
//
// Two Lua states are involved. The interpreter state runs the script and
// is touched only from its own goroutine, including while blocked in a
// pause. The evaluator state is a separate sandbox (base, table, string,
// math) owned by an Executor goroutine; conditions and watch expressions
// run there against pause-time locals injected as the environment, so
// evaluation can never deadlock against the paused interpreter.
//
// Instrumentation is a line heuristic rather than a parse. It covers the
// common statement shapes; a breakpoint on a line the instrumenter skips
// (a continuation line of a multi-line expression, say) binds to the
// statement's first line instead.
package lua
