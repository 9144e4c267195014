// Package scheduler scans the task collection on a fixed interval and fires
// reminder notifications for tasks whose reminder or due timestamp has
// elapsed.
//
// Delivery is at-least-once by design: a task leaves the Due state only when
// the notified flag is durably persisted through the sync engine. If either
// the delivery or that write fails, the task stays Due and the next scan
// retries it. Failures on one task never abort the scan of the rest.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/metrics"
	"github.com/lawdesk/docket/internal/model"
)

// DefaultInterval is the default scan cadence.
const DefaultInterval = 30 * time.Second

// TaskSource provides the task snapshot to scan and the durability point for
// delivered notifications. The sync engine satisfies it.
type TaskSource interface {
	Tasks() []model.Task
	MarkNotified(ctx context.Context, id string) error
}

// Notifier delivers a notification for a due task. The notify.Dispatcher
// satisfies it.
type Notifier interface {
	NotifyNow(t model.Task) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) { s.clock = clock }
}

// Scheduler is the single reminder poller. UI layers subscribe to its
// output through the engine; nothing else runs its own interval.
type Scheduler struct {
	source   TaskSource
	notifier Notifier
	interval time.Duration
	clock    func() time.Time
	log      *zap.SugaredLogger
}

// New creates a scheduler. An interval <= 0 falls back to DefaultInterval.
func New(source TaskSource, notifier Notifier, interval time.Duration, logger *zap.SugaredLogger, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Scheduler{
		source:   source,
		notifier: notifier,
		interval: interval,
		clock:    time.Now,
		log:      logger.With("component", "scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run scans on the configured interval until ctx is cancelled. An immediate
// first scan runs before the first tick.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Infow("scheduler started", "interval", s.interval)
	s.Scan(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.Scan(ctx)
		}
	}
}

// Scan walks a snapshot of the current tasks, fires notifications for the
// ones that are Due, and persists the notified flag for each confirmed
// delivery. It returns how many notifications were confirmed.
//
// The snapshot is taken once at scan start; tasks added or removed while
// scanning are picked up next time.
func (s *Scheduler) Scan(ctx context.Context) int {
	now := s.clock()
	notified := 0

	for _, t := range s.source.Tasks() {
		if Classify(t, now) != StateDue {
			continue
		}

		if err := s.notifier.NotifyNow(t); err != nil {
			s.log.Warnw("notification failed, will retry next scan", "task", t.ID, "error", err)
			metrics.ScanErrors.Inc()
			continue
		}
		if err := s.source.MarkNotified(ctx, t.ID); err != nil {
			// The task stays Due and is re-notified next scan. At-least-once
			// beats losing the reminder.
			s.log.Warnw("persisting notified flag failed", "task", t.ID, "error", err)
			metrics.ScanErrors.Inc()
			continue
		}
		notified++
	}
	return notified
}
