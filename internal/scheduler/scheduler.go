// Package scheduler runs one long-lived polling task per configured feed.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"billfred/internal/fetcher"
	"billfred/internal/model"
	"billfred/internal/supervisor"
)

// Defaults used when the configuration leaves them unset.
const (
	DefaultWorkers    = 2
	DefaultStartDelay = 10 * time.Second
	DefaultStagger    = 5 * time.Second
)

// Sender is the interface for sending chat messages.
type Sender interface {
	Send(msg model.OutboundMessage)
}

// Scheduler polls feeds on their own intervals and posts new entries to the
// room. Feed downloads share a pool of workers.
type Scheduler struct {
	poller     *fetcher.Poller
	sem        *semaphore.Weighted
	startDelay time.Duration
	stagger    time.Duration
	log        *slog.Logger
}

// New creates a Scheduler. Feed i starts after startDelay + i*stagger, and at
// most workers downloads run at the same time.
func New(poller *fetcher.Poller, workers int, startDelay, stagger time.Duration, log *slog.Logger) *Scheduler {
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Scheduler{
		poller:     poller,
		sem:        semaphore.NewWeighted(int64(workers)),
		startDelay: startDelay,
		stagger:    stagger,
		log:        log,
	}
}

// Start launches one supervised task per feed and returns how many were
// started.
func (s *Scheduler) Start(sup *supervisor.Supervisor, sender Sender, tasks []model.FeedTask) int {
	started := 0
	for i, task := range tasks {
		delay := s.startDelay + time.Duration(i)*s.stagger
		ok := sup.Go("feed "+task.Prefix, func(ctx context.Context) error {
			return s.run(ctx, sender, task, delay)
		})
		if ok {
			started++
		}
	}
	s.log.Info("feed tasks started", "count", started)
	return started
}

func (s *Scheduler) run(ctx context.Context, sender Sender, task model.FeedTask, delay time.Duration) error {
	if task.PollInterval <= 0 {
		return fmt.Errorf("feed %s: non-positive interval %s", task.Prefix, task.PollInterval)
	}
	if err := supervisor.Sleep(ctx, delay); err != nil {
		return err
	}

	s.check(ctx, sender, task)

	ticker := time.NewTicker(task.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.check(ctx, sender, task)
		}
	}
}

func (s *Scheduler) check(ctx context.Context, sender Sender, task model.FeedTask) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return
	}
	entries, err := s.poller.Poll(ctx, task)
	s.sem.Release(1)

	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("poll feed", "prefix", task.Prefix, "url", task.URL, "error", err)
		}
		return
	}
	if len(entries) == 0 {
		return
	}

	s.log.Debug("posting feed entries", "prefix", task.Prefix, "count", len(entries))
	sender.Send(model.OutboundMessage{Body: strings.Join(entries, "\n")})
}
