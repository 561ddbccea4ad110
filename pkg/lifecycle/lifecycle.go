// Package lifecycle coordinates startup, readiness, background work, and
// graceful shutdown for the service's subsystems.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// ReadinessChecker reports whether a subsystem can serve traffic.
type ReadinessChecker interface {
	Ready() bool
}

// Coordinator runs startup hooks concurrently, tracks readiness, and on
// Shutdown cancels its context and waits for shutdown hooks and background
// work.
type Coordinator struct {
	ctx    context.Context
	cancel context.CancelFunc

	starting sync.WaitGroup
	running  sync.WaitGroup

	started  atomic.Bool
	mu       sync.Mutex
	checkers []ReadinessChecker
}

func New() *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{ctx: ctx, cancel: cancel}
}

// Context is cancelled when Shutdown begins.
func (c *Coordinator) Context() context.Context {
	return c.ctx
}

// OnStartup runs fn now; WaitForStartup waits for it.
func (c *Coordinator) OnStartup(fn func()) {
	c.starting.Go(fn)
}

// OnShutdown runs fn now; Shutdown waits for it. fn should block on
// Context().Done() before cleaning up.
func (c *Coordinator) OnShutdown(fn func()) {
	c.running.Go(fn)
}

// Go runs fn with the coordinator's context. Shutdown waits for it.
func (c *Coordinator) Go(fn func(ctx context.Context)) {
	c.running.Go(func() { fn(c.ctx) })
}

// Require makes readiness depend on checker.
func (c *Coordinator) Require(checker ReadinessChecker) {
	c.mu.Lock()
	c.checkers = append(c.checkers, checker)
	c.mu.Unlock()
}

// Ready reports whether startup completed, shutdown has not begun, and
// every required checker is ready.
func (c *Coordinator) Ready() bool {
	if !c.started.Load() || c.ctx.Err() != nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, checker := range c.checkers {
		if !checker.Ready() {
			return false
		}
	}
	return true
}

// WaitForStartup blocks until every startup hook has returned.
func (c *Coordinator) WaitForStartup() {
	c.starting.Wait()
	c.started.Store(true)
}

// Shutdown cancels the context and waits up to timeout for shutdown hooks
// and background work.
func (c *Coordinator) Shutdown(timeout time.Duration) error {
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.running.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}
