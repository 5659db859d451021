package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
	"github.com/dshills/scriptdbg/internal/lua"
)

// RunScript wires a full debugging session around one script and hands
// control to the interactive shell. It returns once the shell exits.
func RunScript(path string, cfg *Config, logger *zap.Logger) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("script %s: %w", path, err)
	}

	scfg := debug.SessionConfig{
		StopOnEntry:      cfg.StopOnEntry,
		StopOnException:  cfg.StopOnException,
		EnableConditions: cfg.EnableConditions,
		EnableWatch:      cfg.EnableWatch,
		MaxStackDepth:    cfg.MaxStackDepth,
		OperationTimeout: cfg.EvalTimeout,
	}

	session := debug.NewSession(scfg, debug.WithSessionLogger(logger))
	eval := lua.NewEvaluator(
		lua.WithEvalTimeout(cfg.EvalTimeout),
		lua.WithEvalLogger(logger),
	)
	defer eval.Close()

	guest := lua.NewDebugger(session, eval, logger)
	session.BindGuest(guest, guest)

	hook := lua.NewLineHook(session, eval, logger)
	runner := lua.NewRunner(hook, logger)

	if err := session.Initialize(path); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	var runErr error
	go func() {
		runErr = runner.RunFile(ctx, path)
		close(finished)
	}()

	shell := NewShell(session, finished, cfg, logger)
	if scfg.StopOnEntry {
		shell.waitStop()
	}
	shell.Start()

	// The shell is gone; force the interpreter down if it is still up.
	session.Terminate()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		logger.Warn("interpreter did not unwind after terminate")
	}

	if runErr != nil {
		return fmt.Errorf("script failed: %w", runErr)
	}
	return nil
}
