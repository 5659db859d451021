package lua

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
	"go.uber.org/zap"

	"github.com/dshills/scriptdbg/internal/debug"
	"github.com/dshills/scriptdbg/internal/debug/cache"
)

// defaultEvalTimeout bounds one expression evaluation.
const defaultEvalTimeout = 5 * time.Second

// Evaluator evaluates breakpoint conditions and watch expressions in a
// dedicated sandboxed Lua state, separate from the interpreter running the
// script. Pause-time locals are injected as the expression environment, so
// evaluation never needs the interpreter state and is safe while the
// interpreter thread is blocked in a pause.
//
// The sandbox opens base, table, string, and math only. io, os, debug,
// and package stay closed; a guard expression has no business touching
// the file system.
type Evaluator struct {
	exec    *Executor
	cancel  context.CancelFunc
	timeout time.Duration
	logger  *zap.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithEvalTimeout bounds each evaluation.
func WithEvalTimeout(d time.Duration) EvaluatorOption {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithEvalLogger sets the evaluator logger.
func WithEvalLogger(logger *zap.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEvaluator creates an evaluator with its own sandboxed state and
// owning goroutine.
func NewEvaluator(opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		timeout: defaultEvalTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	openSafeLibraries(L)
	e.exec = NewExecutor(L, 32)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go func() {
		e.exec.Run(ctx)
		L.Close()
	}()
	return e
}

// openSafeLibraries opens only the Lua standard libraries safe for
// expression evaluation. io, os, debug, and package are intentionally
// not opened.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

// Close shuts down the evaluator and its state.
func (e *Evaluator) Close() {
	e.exec.Close()
	e.cancel()
}

// EvaluateCondition evaluates a compiled guard expression against the
// given locals. The compiled form is built on first use and reused via
// the condition's opaque slot. Any failure is an evaluation error the
// caller is expected to swallow into "condition not met".
func (e *Evaluator) EvaluateCondition(cond *cache.Condition, locals []debug.Variable) (bool, error) {
	var result bool
	err := e.do(func(L *lua.LState) error {
		ret, err := e.eval(L, cond.Expr, &cond.Compiled, locals)
		if err != nil {
			return err
		}
		result = lua.LVAsBool(ret)
		return nil
	})
	if err != nil {
		return false, err
	}
	return result, nil
}

// EvaluateWithLocals evaluates an arbitrary expression against the given
// locals and renders the result.
func (e *Evaluator) EvaluateWithLocals(expr string, locals []debug.Variable) (debug.Variable, error) {
	var result debug.Variable
	err := e.do(func(L *lua.LState) error {
		var compiled any
		ret, err := e.eval(L, expr, &compiled, locals)
		if err != nil {
			return err
		}
		result = ToVariable(expr, ret)
		return nil
	})
	if err != nil {
		return debug.Variable{}, err
	}
	return result, nil
}

// do runs an operation on the evaluator state, mapping transport failures
// into the engine's error taxonomy.
func (e *Evaluator) do(fn func(L *lua.LState) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	err := e.exec.Do(ctx, fn)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("evaluation: %w", debug.ErrTimeout)
	case errors.Is(err, ErrExecutorClosed):
		return fmt.Errorf("evaluator closed: %w", debug.ErrInvalidState)
	default:
		return fmt.Errorf("%w: %v", debug.ErrEvaluation, err)
	}
}

// compileExpr compiles "return <expr>" into the opaque slot, reusing a
// previously compiled form. The slot is confined to the executor
// goroutine; this must only run there.
func compileExpr(expr string, compiled *any) (*lua.FunctionProto, error) {
	if proto, ok := (*compiled).(*lua.FunctionProto); ok {
		return proto, nil
	}
	chunk, err := parse.Parse(strings.NewReader("return "+expr), "=expr")
	if err != nil {
		return nil, fmt.Errorf("parse %q: %v", expr, err)
	}
	proto, err := lua.Compile(chunk, "=expr")
	if err != nil {
		return nil, fmt.Errorf("compile %q: %v", expr, err)
	}
	*compiled = proto
	return proto, nil
}

// Precompile queues compilation of a guard expression on the evaluator
// goroutine without waiting for it, so the first gate hit pays no compile
// cost. Best effort: with the queue full or the evaluator closed, the
// guard simply compiles on first evaluation.
func (e *Evaluator) Precompile(cond *cache.Condition) {
	if cond == nil || cond.Expr == "" {
		return
	}
	expr := cond.Expr
	if err := e.exec.DoAsync(func(*lua.LState) error {
		_, err := compileExpr(expr, &cond.Compiled)
		return err
	}); err != nil {
		e.logger.Debug("guard precompile skipped",
			zap.String("expr", expr),
			zap.Error(err))
	}
}

// eval compiles (or reuses) "return <expr>" and runs it with locals as
// the environment. Must run on the executor goroutine.
func (e *Evaluator) eval(L *lua.LState, expr string, compiled *any, locals []debug.Variable) (lua.LValue, error) {
	proto, err := compileExpr(expr, compiled)
	if err != nil {
		return lua.LNil, err
	}

	fn := L.NewFunctionFromProto(proto)
	fn.Env = e.environment(L, locals)

	L.Push(fn)
	if err := L.PCall(0, 1, nil); err != nil {
		return lua.LNil, fmt.Errorf("run %q: %v", expr, err)
	}
	ret := L.Get(-1)
	L.Pop(1)
	return ret, nil
}

// environment builds an env table with the locals layered over the
// sandbox globals.
func (e *Evaluator) environment(L *lua.LState, locals []debug.Variable) *lua.LTable {
	env := L.NewTable()
	for _, v := range locals {
		env.RawSetString(v.Name, FromVariable(L, v))
	}
	mt := L.NewTable()
	mt.RawSetString("__index", L.Get(lua.GlobalsIndex))
	L.SetMetatable(env, mt)
	return env
}
