// Package supervisor runs background tasks that can fail independently and be
// cancelled as a group.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Task is a unit of background work. It must return when ctx is cancelled.
type Task func(ctx context.Context) error

// Supervisor tracks every task it starts. A failing or panicking task is
// logged and ends on its own; the other tasks keep running.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu     sync.Mutex
	tasks  map[uuid.UUID]string
	closed bool
	wg     sync.WaitGroup
}

// New creates a Supervisor whose tasks are cancelled when parent is.
func New(parent context.Context, log *slog.Logger) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{
		ctx:    ctx,
		cancel: cancel,
		log:    log,
		tasks:  make(map[uuid.UUID]string),
	}
}

// Go starts fn in its own goroutine. It returns false, without running fn,
// once Shutdown has been called.
func (s *Supervisor) Go(name string, fn Task) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debug("supervisor closed, task dropped", "task", name)
		return false
	}
	id := uuid.New()
	s.tasks[id] = name
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(id, name, fn)
	return true
}

func (s *Supervisor) run(id uuid.UUID, name string, fn Task) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
	}()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked",
				"task", name,
				"task_id", id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	err := fn(s.ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && s.ctx.Err() != nil:
		s.log.Debug("task cancelled", "task", name, "task_id", id)
	default:
		s.log.Error("task failed", "task", name, "task_id", id, "error", err)
	}
}

// Len returns the number of running tasks.
func (s *Supervisor) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Shutdown cancels all tasks and waits for them to return or for ctx to
// expire, whichever comes first.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	pending := len(s.tasks)
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.log.Debug("supervisor stopped", "tasks", pending)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %d tasks: %w", s.Len(), ctx.Err())
	}
}

// Sleep pauses for d or until ctx is cancelled. It returns ctx.Err() in the
// latter case.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
