package scripthost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/dop251/goja_nodejs/require"

	"github.com/viewscreen/viewscreen/internal/goroutineid"
)

// DefaultSyncTimeout bounds how long RunSync waits for the loop.
const DefaultSyncTimeout = 5 * time.Second

// Runtime is one view document's JavaScript world: a goja runtime
// driven by a goja_nodejs event loop. goja.Runtime is not
// goroutine-safe, so every operation is routed through the loop.
// RunSync detects calls arriving from the loop goroutine itself and
// runs them inline instead of deadlocking on a hand-off; this matters
// when view code calls back into Go which needs to touch the VM
// again.
//
// A Runtime lives exactly as long as one document. Setting new
// content on a surface discards its Runtime and starts a fresh one.
type Runtime struct {
	loop *eventloop.EventLoop

	// loopID and loopVM identify the loop goroutine and its runtime,
	// captured once at startup for the inline fast path.
	loopID atomic.Int64
	loopVM *goja.Runtime

	mu      sync.RWMutex
	started bool
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
}

// NewRuntime starts an event loop and returns once it accepts jobs.
// Cancelling ctx closes the runtime; Close is also safe to call
// directly, and repeatedly.
func NewRuntime(ctx context.Context) (*Runtime, error) {
	loop := eventloop.NewEventLoop(
		eventloop.WithRegistry(require.NewRegistry()),
		eventloop.EnableConsole(true),
	)

	lifecycle, cancel := context.WithCancel(context.Background())
	rt := &Runtime{
		loop:   loop,
		ctx:    lifecycle,
		cancel: cancel,
	}

	loop.Start()
	rt.mu.Lock()
	rt.started = true
	rt.mu.Unlock()

	ready := make(chan struct{})
	if !loop.RunOnLoop(func(vm *goja.Runtime) {
		rt.loopID.Store(goroutineid.Get())
		rt.loopVM = vm
		close(ready)
	}) {
		cancel()
		loop.Stop()
		return nil, errors.New("event loop refused startup job")
	}
	<-ready

	if ctx.Done() != nil {
		context.AfterFunc(ctx, func() { _ = rt.Close() })
	}
	return rt, nil
}

// Close stops the event loop after pending jobs finish. Safe to call
// multiple times.
func (rt *Runtime) Close() error {
	rt.mu.Lock()
	if rt.stopped {
		rt.mu.Unlock()
		return nil
	}
	rt.stopped = true
	rt.mu.Unlock()

	// Cancel first so RunSync waiters unblock before the loop drains.
	rt.cancel()
	rt.loop.Stop()
	return nil
}

// Done is closed once the runtime is stopped.
func (rt *Runtime) Done() <-chan struct{} {
	return rt.ctx.Done()
}

// Running reports whether the loop is accepting jobs.
func (rt *Runtime) Running() bool {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return rt.started && !rt.stopped
}

// RunOnLoop schedules fn on the loop goroutine without waiting.
// Returns false when the loop is not running. The *goja.Runtime must
// not escape the callback.
func (rt *Runtime) RunOnLoop(fn func(*goja.Runtime)) bool {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return false
	}
	rt.mu.RUnlock()
	return rt.loop.RunOnLoop(fn)
}

// RunSync runs fn on the loop goroutine and waits for it. Calls
// already on the loop goroutine run inline.
func (rt *Runtime) RunSync(fn func(*goja.Runtime) error) error {
	rt.mu.RLock()
	if !rt.started || rt.stopped {
		rt.mu.RUnlock()
		return errors.New("event loop not running")
	}
	rt.mu.RUnlock()

	if id := rt.loopID.Load(); id > 0 && id == goroutineid.Get() {
		return fn(rt.loopVM)
	}

	errCh := make(chan error, 1)
	if !rt.loop.RunOnLoop(func(vm *goja.Runtime) { errCh <- fn(vm) }) {
		return errors.New("event loop not running")
	}
	timer := time.NewTimer(DefaultSyncTimeout)
	defer timer.Stop()
	select {
	case err := <-errCh:
		return err
	case <-rt.ctx.Done():
		return errors.New("runtime closed before completion")
	case <-timer.C:
		return fmt.Errorf("loop operation timed out after %v", DefaultSyncTimeout)
	}
}

// LoadScript compiles and executes code in the runtime under strict
// mode, using name for stack traces.
func (rt *Runtime) LoadScript(name, code string) error {
	return rt.RunSync(func(vm *goja.Runtime) error {
		prg, err := goja.Compile(name, code, true)
		if err != nil {
			return fmt.Errorf("compile %s: %w", name, err)
		}
		if _, err := vm.RunProgram(prg); err != nil {
			return fmt.Errorf("run %s: %w", name, err)
		}
		return nil
	})
}
