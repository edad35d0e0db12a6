package supervisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	s := New(context.Background(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func TestFailingTaskIsIsolated(t *testing.T) {
	s := newTestSupervisor(t)

	started := make(chan struct{})
	var survivorStopped atomic.Bool
	s.Go("survivor", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		survivorStopped.Store(true)
		return ctx.Err()
	})
	<-started

	failed := make(chan struct{})
	s.Go("panics", func(context.Context) error {
		defer close(failed)
		panic("boom")
	})
	<-failed

	errored := make(chan struct{})
	s.Go("errors", func(context.Context) error {
		defer close(errored)
		return errors.New("broken")
	})
	<-errored

	deadline := time.Now().Add(2 * time.Second)
	for s.Len() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if diff := cmp.Diff(1, s.Len()); diff != "" {
		t.Fatalf("running tasks (-want +got):\n%s", diff)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !survivorStopped.Load() {
		t.Error("surviving task was not cancelled by Shutdown")
	}
}

func TestShutdownCancelsAndWaits(t *testing.T) {
	s := newTestSupervisor(t)

	var finished atomic.Int32
	for range 5 {
		s.Go("sleeper", func(ctx context.Context) error {
			err := Sleep(ctx, time.Hour)
			finished.Add(1)
			return err
		})
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if diff := cmp.Diff(int32(5), finished.Load()); diff != "" {
		t.Errorf("finished tasks (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(0, s.Len()); diff != "" {
		t.Errorf("running tasks after shutdown (-want +got):\n%s", diff)
	}
}

func TestGoAfterShutdown(t *testing.T) {
	s := newTestSupervisor(t)
	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	ran := false
	ok := s.Go("late", func(context.Context) error {
		ran = true
		return nil
	})
	if ok || ran {
		t.Errorf("Go after Shutdown = %v (ran %v), want false", ok, ran)
	}
}

func TestShutdownTimeout(t *testing.T) {
	s := newTestSupervisor(t)

	release := make(chan struct{})
	s.Go("stubborn", func(context.Context) error {
		<-release
		return nil
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := s.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Shutdown() error = %v, want deadline exceeded", err)
	}
}

func TestSleep(t *testing.T) {
	if err := Sleep(context.Background(), time.Millisecond); err != nil {
		t.Errorf("Sleep() = %v, want nil", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() on cancelled ctx = %v, want context.Canceled", err)
	}
}
