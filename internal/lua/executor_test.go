package lua

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

func newTestExecutor(t *testing.T, queueSize int) (*Executor, context.CancelFunc) {
	t.Helper()
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	exec := NewExecutor(L, queueSize)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		exec.Run(ctx)
		L.Close()
	}()
	t.Cleanup(func() {
		exec.Close()
		cancel()
	})
	return exec, cancel
}

func TestExecutorRunsOperations(t *testing.T) {
	exec, _ := newTestExecutor(t, 4)

	var got lua.LValue
	err := exec.Do(context.Background(), func(L *lua.LState) error {
		L.SetGlobal("x", lua.LNumber(42))
		got = L.GetGlobal("x")
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if n, ok := got.(lua.LNumber); !ok || n != 42 {
		t.Fatalf("got %v, want 42", got)
	}
}

func TestExecutorSerializesConcurrentCallers(t *testing.T) {
	exec, _ := newTestExecutor(t, 8)

	const callers = 16
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = exec.Do(context.Background(), func(L *lua.LState) error {
				// Unsynchronized on purpose; the executor is the lock.
				counter++
				return nil
			})
		}()
	}
	wg.Wait()

	if counter != callers {
		t.Fatalf("counter = %d, want %d", counter, callers)
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	exec, _ := newTestExecutor(t, 4)

	err := exec.Do(context.Background(), func(L *lua.LState) error {
		panic("guard blew up")
	})
	if err == nil || err.Error() != "guard blew up" {
		t.Fatalf("err = %v, want panic message", err)
	}

	// The owning goroutine must survive the panic.
	if err := exec.Do(context.Background(), func(L *lua.LState) error { return nil }); err != nil {
		t.Fatalf("Do after panic: %v", err)
	}
}

func TestExecutorCloseFailsPending(t *testing.T) {
	exec, _ := newTestExecutor(t, 4)
	exec.Close()

	err := exec.Do(context.Background(), func(L *lua.LState) error { return nil })
	if !errors.Is(err, ErrExecutorClosed) {
		t.Fatalf("err = %v, want ErrExecutorClosed", err)
	}
	if !exec.Closed() {
		t.Fatal("Closed() = false after Close")
	}
}

func TestExecutorDoHonorsContext(t *testing.T) {
	exec, _ := newTestExecutor(t, 4)

	release := make(chan struct{})
	go func() {
		_ = exec.Do(context.Background(), func(L *lua.LState) error {
			<-release
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Give the blocking call time to occupy the owning goroutine.
	time.Sleep(10 * time.Millisecond)

	err := exec.Do(ctx, func(L *lua.LState) error { return nil })
	close(release)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
}

func TestExecutorDoAsyncQueueFull(t *testing.T) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()
	exec := NewExecutor(L, 1)
	// Never started, so the queue only drains on Close.

	if err := exec.DoAsync(func(L *lua.LState) error { return nil }); err != nil {
		t.Fatalf("first DoAsync: %v", err)
	}
	if err := exec.DoAsync(func(L *lua.LState) error { return nil }); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}
	exec.Close()
}
