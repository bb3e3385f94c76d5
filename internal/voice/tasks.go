package voice

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/onchain-voice-lab/internal/logging"
)

// Tasks tracks background work started by the router so it can be awaited
// or cancelled on exit.
type Tasks struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	pending atomic.Int64

	mu     sync.Mutex
	closed bool
}

// NewTasks derives the task context from parent.
func NewTasks(parent context.Context) *Tasks {
	ctx, cancel := context.WithCancel(parent)
	return &Tasks{ctx: ctx, cancel: cancel}
}

// Go runs fn in its own goroutine. A panic in fn is logged and swallowed.
// Once Shutdown has started no new task is accepted and Go reports false.
func (t *Tasks) Go(name string, fn func(ctx context.Context)) bool {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		logging.Warnw("task rejected after shutdown", "task", name)
		return false
	}
	t.wg.Add(1)
	t.pending.Add(1)
	t.mu.Unlock()
	go func() {
		defer t.wg.Done()
		defer t.pending.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				logging.Errorw("task panicked", "task", name, "panic", fmt.Sprint(r))
			}
		}()
		fn(t.ctx)
	}()
	return true
}

// Pending is the number of tasks that have not returned yet.
func (t *Tasks) Pending() int { return int(t.pending.Load()) }

// Cancel cancels the context of every running and future task.
func (t *Tasks) Cancel() { t.cancel() }

// Shutdown waits for running tasks. If ctx ends first the tasks are
// cancelled and ctx's error is returned without waiting further.
func (t *Tasks) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		t.cancel()
		return nil
	case <-ctx.Done():
		t.cancel()
		logging.Warnw("abandoning pending tasks", "pending", t.Pending())
		return ctx.Err()
	}
}
