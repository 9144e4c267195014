// Package notify formats and delivers reminder notifications.
//
// The dispatcher composes a title/body from a task and hands the payload to
// a Platform: whatever notification capability the process has (the serve
// daemon broadcasts to websocket clients; tests use a fake). Lack of
// permission is a routine condition, not an error: calls log and return nil.
package notify

import (
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/metrics"
	"github.com/lawdesk/docket/internal/model"
)

// Payload is the wire shape handed to the platform.
type Payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Icon  string      `json:"icon,omitempty"`
	Tag   string      `json:"tag"`
	Data  PayloadData `json:"data"`
}

// PayloadData identifies the task behind a notification.
type PayloadData struct {
	TaskID    string         `json:"taskId"`
	Type      model.TaskType `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
}

// Platform is the permission-gated notification capability.
//
// Show may be called repeatedly with the same tag; the platform replaces the
// visible notification rather than stacking. Close withdraws a shown
// notification where the platform supports it and is a no-op otherwise.
type Platform interface {
	Granted() bool
	Show(p Payload) error
	Close(tag string) error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIcon sets the icon path carried in payloads.
func WithIcon(icon string) Option {
	return func(d *Dispatcher) { d.icon = icon }
}

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = clock }
}

// Dispatcher delivers task notifications immediately or after a delay, one
// timer per pending delayed notification.
type Dispatcher struct {
	platform Platform
	log      *zap.SugaredLogger
	clock    func() time.Time
	icon     string

	mu     sync.Mutex
	timers map[string]*time.Timer // task id -> pending delayed delivery
}

// New creates a dispatcher over the given platform.
func New(platform Platform, logger *zap.SugaredLogger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	d := &Dispatcher{
		platform: platform,
		log:      logger.With("component", "notify"),
		clock:    time.Now,
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// NotifyNow delivers a notification for the task immediately. The tag equals
// the task id, so re-delivery replaces rather than stacks. Without
// permission this logs and returns nil; a platform delivery failure is
// returned so the caller can retry (the scheduler relies on this for
// at-least-once delivery).
func (d *Dispatcher) NotifyNow(t model.Task) error {
	return d.deliver(t, t.ID)
}

// Snooze re-delivers after the given delay under a derived tag, so the
// original notification is not replaced.
func (d *Dispatcher) Snooze(t model.Task, delay time.Duration) func() {
	return d.after(t, t.ID+"-snooze", delay)
}

// NotifyAfter delivers after the given delay. The returned function cancels
// the pending delivery; Cancel(taskID) does the same.
func (d *Dispatcher) NotifyAfter(t model.Task, delay time.Duration) func() {
	return d.after(t, t.ID, delay)
}

// Cancel withdraws both a still-pending delayed notification and an
// already-shown one, including any snooze re-notification.
func (d *Dispatcher) Cancel(taskID string) {
	d.mu.Lock()
	if timer, ok := d.timers[taskID]; ok {
		timer.Stop()
		delete(d.timers, taskID)
	}
	d.mu.Unlock()

	for _, tag := range []string{taskID, taskID + "-snooze"} {
		if err := d.platform.Close(tag); err != nil {
			d.log.Debugw("close notification failed", "tag", tag, "error", err)
		}
	}
}

func (d *Dispatcher) after(t model.Task, tag string, delay time.Duration) func() {
	if delay <= 0 {
		if err := d.deliver(t, tag); err != nil {
			d.log.Warnw("delayed delivery failed", "task", t.ID, "error", err)
		}
		return func() {}
	}

	d.mu.Lock()
	if old, ok := d.timers[t.ID]; ok {
		old.Stop()
	}
	timer := time.AfterFunc(delay, func() {
		d.mu.Lock()
		delete(d.timers, t.ID)
		d.mu.Unlock()
		if err := d.deliver(t, tag); err != nil {
			d.log.Warnw("delayed delivery failed", "task", t.ID, "error", err)
		}
	})
	d.timers[t.ID] = timer
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.timers[t.ID] == timer {
			timer.Stop()
			delete(d.timers, t.ID)
		}
	}
}

func (d *Dispatcher) deliver(t model.Task, tag string) error {
	if !d.platform.Granted() {
		d.log.Debugw("notification permission not granted, skipping", "task", t.ID)
		return nil
	}
	p := d.BuildPayload(t, tag)
	if err := d.platform.Show(p); err != nil {
		return err
	}
	metrics.NotificationsDelivered.Inc()
	d.log.Infow("notification delivered", "task", t.ID, "tag", tag)
	return nil
}

// BuildPayload composes the notification content for a task. The title
// depends on the task type; the body includes only fields that are present.
func (d *Dispatcher) BuildPayload(t model.Task, tag string) Payload {
	title := "Task reminder"
	if t.Type == model.TaskTypeHearing {
		title = "Hearing reminder"
	}

	parts := []string{t.TaskName, "Client: " + t.ClientName}
	if t.Type == model.TaskTypeHearing {
		if t.Court != "" {
			parts = append(parts, "Court: "+t.Court)
		}
		if t.Judge != "" {
			parts = append(parts, "Judge: "+t.Judge)
		}
		if when, err := model.ParseTime(t.CourtDate); err == nil {
			parts = append(parts, "Hearing: "+when.Format("Mon, 2 Jan 2006 15:04"))
		}
	}
	if due, err := model.ParseTime(t.DueDate); err == nil {
		parts = append(parts, "Due: "+due.Format("Mon, 2 Jan 2006"))
	}

	return Payload{
		Title: title,
		Body:  strings.Join(parts, "\n"),
		Icon:  d.icon,
		Tag:   tag,
		Data: PayloadData{
			TaskID:    t.ID,
			Type:      t.Type,
			Timestamp: d.clock(),
		},
	}
}
