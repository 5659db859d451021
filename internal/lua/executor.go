package lua

import (
	"context"
	"errors"
	"sync"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/atomic"
)

// ErrExecutorClosed is returned when using a closed executor.
var ErrExecutorClosed = errors.New("lua executor is closed")

// ErrQueueFull is returned by DoAsync when the queue is saturated.
var ErrQueueFull = errors.New("lua executor queue full")

// call is one queued Lua operation.
type call struct {
	fn     func(L *lua.LState) error
	result chan error
}

// Executor serializes Lua operations onto the single goroutine that owns
// an LState.
//
// gopher-lua's LState is not goroutine-safe, but the debug control plane
// is inherently multi-goroutine: a client evaluates watch expressions
// while the interpreter thread sits blocked in a pause. The executor is
// the bridging primitive that lets any goroutine run an operation against
// the evaluator state and block for its result, without itself owning the
// state. It is safe to call from the control plane's own goroutines; the
// owning goroutine is dedicated, so there is no pool to deadlock.
type Executor struct {
	L      *lua.LState
	queue  chan *call
	closed atomic.Bool
	done   chan struct{}

	closeOnce sync.Once
}

// NewExecutor creates an executor for the given state. queueSize bounds
// how many operations may be buffered.
func NewExecutor(L *lua.LState, queueSize int) *Executor {
	if queueSize <= 0 {
		queueSize = 32
	}
	return &Executor{
		L:     L,
		queue: make(chan *call, queueSize),
		done:  make(chan struct{}),
	}
}

// Run processes queued operations until the context is cancelled or Close
// is called. Must run on the goroutine that owns the LState.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx.Err())
			return
		case <-e.done:
			e.drain(ErrExecutorClosed)
			return
		case c := <-e.queue:
			err := e.run(c)
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		}
	}
}

// run executes one operation with panic recovery. A panicking guard
// expression must never take down the owning goroutine.
func (e *Executor) run(c *call) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch v := r.(type) {
			case error:
				err = v
			case string:
				err = errors.New(v)
			default:
				err = errors.New("lua panic")
			}
		}
	}()
	return c.fn(e.L)
}

// drain fails all remaining queued operations with err.
func (e *Executor) drain(err error) {
	for {
		select {
		case c := <-e.queue:
			select {
			case c.result <- err:
			default:
			}
			close(c.result)
		default:
			return
		}
	}
}

// Do runs an operation on the owning goroutine and blocks until it
// completes or the context is done.
func (e *Executor) Do(ctx context.Context, fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- c:
	}

	select {
	case <-ctx.Done():
		// The call stays queued and will still run; we just stop waiting.
		return ctx.Err()
	case err, ok := <-c.result:
		if !ok {
			return ErrExecutorClosed
		}
		return err
	}
}

// DoAsync queues an operation without waiting for its result.
func (e *Executor) DoAsync(fn func(L *lua.LState) error) error {
	if e.closed.Load() {
		return ErrExecutorClosed
	}

	c := &call{fn: fn, result: make(chan error, 1)}
	select {
	case <-e.done:
		return ErrExecutorClosed
	case e.queue <- c:
		go func() {
			<-c.result
		}()
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the executor. Queued operations fail with ErrExecutorClosed.
func (e *Executor) Close() {
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		close(e.done)
	})
}

// Closed reports whether Close has been called.
func (e *Executor) Closed() bool {
	return e.closed.Load()
}
