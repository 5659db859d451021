// Package debug implements an embeddable interactive debugging engine for
// hosted script runtimes.
//
// The engine reconciles two execution models: the guest interpreter's hot
// loop, which is synchronous and must run at native speed, and the debug
// control plane, which is asynchronous and waits on a remote client. It is
// split into a fast path consulted on every interpreter line and a slow
// path that only runs when a breakpoint might actually fire.
//
// # Architecture
//
//	┌─────────────────────────────────────────────────────────────────┐
//	│                     Interpreter thread                          │
//	│  line hook → cache.MightBreakAt (atomic + RLock, no alloc)      │
//	│     miss: return immediately                                    │
//	│     hit:  ExecutionManager.ShouldBreakAt (hits, condition)      │
//	│           → Coordinator.Pause (blocks)                          │
//	└─────────────────────────────────────────────────────────────────┘
//	                              │ events (bounded channel)
//	                              ▼
//	┌─────────────────────────────────────────────────────────────────┐
//	│                       Session side                              │
//	│  Session state machine, SessionManager registry                 │
//	│  client commands → Coordinator.SendCommand → unblocks pause     │
//	└─────────────────────────────────────────────────────────────────┘
//
// # Components
//
//   - cache.StateCache: the fast-path gate, breakpoint index, condition
//     cache, and step state, invalidated by a generation counter.
//   - ExecutionManager: canonical breakpoints, debug state, and pause
//     snapshots; the single source of truth for client reads.
//   - Coordinator: the only component allowed to block the interpreter
//     thread; owns the pause-and-wait protocol.
//   - StackNavigator: pure formatting/navigation over a pause snapshot.
//   - Inspector: batched, pause-scoped variable reads and watches.
//   - Session / SessionManager: the client-facing state machine and
//     multi-session registry.
//
// # Session states
//
// Sessions move Initialized → Running ⇄ Paused → Terminated. Terminated is
// absorbing: terminate always succeeds, even while the interpreter thread
// is blocked in a pause, and unblocks it.
//
// # Usage
//
//	session := debug.NewSession(debug.DefaultSessionConfig())
//	if err := session.Initialize("script.lua"); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Terminate()
//
//	id, _ := session.SetBreakpoint("script.lua", 42, "", 0)
//
//	// Interpreter hook, on its own goroutine:
//	//   if mgr.Cache().MightBreakAt(src, line) && mgr.ShouldBreakAt(...) {
//	//       coordinator.Pause(reason, loc, stack, locals)
//	//   }
//
//	session.ProcessEvents()
//	if session.State() == debug.StatePaused {
//	    fmt.Print(session.FormatStackTrace())
//	    session.Continue()
//	}
package debug
