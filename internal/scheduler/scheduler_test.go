package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lawdesk/docket/internal/model"
)

// fakeSource serves a fixed task list and records MarkNotified calls,
// mutating its own copy so later scans see the persisted flag.
type fakeSource struct {
	mu      sync.Mutex
	tasks   []model.Task
	markErr error
	marked  []string
}

func (f *fakeSource) Tasks() []model.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Task(nil), f.tasks...)
}

func (f *fakeSource) MarkNotified(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	f.marked = append(f.marked, id)
	for i := range f.tasks {
		if f.tasks[i].ID == id {
			f.tasks[i].Notified = true
		}
	}
	return nil
}

// fakeNotifier records deliveries and can fail selectively by task id.
type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string
	failFor   map[string]error
}

func (f *fakeNotifier) NotifyNow(t model.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[t.ID]; ok {
		return err
	}
	f.delivered = append(f.delivered, t.ID)
	return nil
}

func at(s string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

// TestScan_FiresDueReminder is the reference scenario: a reminder elapsed
// 30 seconds ago fires exactly one notification.
func TestScan_FiresDueReminder(t *testing.T) {
	src := &fakeSource{tasks: []model.Task{{
		ID: "t1", ClientName: "Cohen", TaskName: "X",
		DueDate: "2025-01-10", ReminderDate: "2025-01-09T09:00",
	}}}
	n := &fakeNotifier{}
	s := New(src, n, time.Minute, nil, WithClock(at("2025-01-09T09:00:30Z")))

	if got := s.Scan(context.Background()); got != 1 {
		t.Fatalf("Scan() = %d confirmed notifications, want 1", got)
	}
	if len(n.delivered) != 1 || n.delivered[0] != "t1" {
		t.Fatalf("delivered = %v, want [t1]", n.delivered)
	}
	if len(src.marked) != 1 {
		t.Fatalf("marked = %v, want [t1]", src.marked)
	}

	// Second scan: the persisted flag keeps it out of Due.
	if got := s.Scan(context.Background()); got != 0 {
		t.Errorf("second Scan() = %d, want 0", got)
	}
	if len(n.delivered) != 1 {
		t.Errorf("delivered = %v after second scan, want no re-delivery", n.delivered)
	}
}

// TestScan_AtLeastOnce verifies a failed notified-flag write leaves the task
// Due so the next scan re-attempts delivery.
func TestScan_AtLeastOnce(t *testing.T) {
	src := &fakeSource{
		tasks: []model.Task{{
			ID: "t1", ClientName: "Cohen", TaskName: "X",
			DueDate: "2025-01-01", ReminderDate: "2025-01-01T09:00",
		}},
		markErr: errors.New("store write failed"),
	}
	n := &fakeNotifier{}
	s := New(src, n, time.Minute, nil, WithClock(at("2025-01-02T00:00:00Z")))

	if got := s.Scan(context.Background()); got != 0 {
		t.Fatalf("Scan() = %d confirmed, want 0 while the write fails", got)
	}
	if len(n.delivered) != 1 {
		t.Fatalf("delivered = %v, want one attempt", n.delivered)
	}

	// The write path recovers; the task is re-notified and confirmed.
	src.mu.Lock()
	src.markErr = nil
	src.mu.Unlock()

	if got := s.Scan(context.Background()); got != 1 {
		t.Fatalf("Scan() after recovery = %d, want 1", got)
	}
	if len(n.delivered) != 2 {
		t.Errorf("delivered = %v, want re-delivery", n.delivered)
	}
}

// TestScan_IsolatesPerTaskFailures verifies one failing task does not abort
// the scan of the rest.
func TestScan_IsolatesPerTaskFailures(t *testing.T) {
	src := &fakeSource{tasks: []model.Task{
		{ID: "a", ClientName: "A", TaskName: "X", DueDate: "2025-01-01"},
		{ID: "b", ClientName: "B", TaskName: "Y", DueDate: "2025-01-01"},
		{ID: "c", ClientName: "C", TaskName: "Z", DueDate: "2025-01-01"},
	}}
	n := &fakeNotifier{failFor: map[string]error{"b": errors.New("display gone")}}
	s := New(src, n, time.Minute, nil, WithClock(at("2025-01-02T00:00:00Z")))

	if got := s.Scan(context.Background()); got != 2 {
		t.Fatalf("Scan() = %d confirmed, want 2", got)
	}
	if len(n.delivered) != 2 {
		t.Errorf("delivered = %v, want a and c", n.delivered)
	}
}

// TestScan_SkipsCompletedAndPending verifies only Due tasks fire.
func TestScan_SkipsCompletedAndPending(t *testing.T) {
	src := &fakeSource{tasks: []model.Task{
		{ID: "done", ClientName: "A", TaskName: "X", DueDate: "2025-01-01", Completed: true},
		{ID: "future", ClientName: "B", TaskName: "Y", DueDate: "2030-01-01", ReminderDate: "2029-12-31"},
		{ID: "seen", ClientName: "C", TaskName: "Z", DueDate: "2025-01-01", Notified: true},
	}}
	n := &fakeNotifier{}
	s := New(src, n, time.Minute, nil, WithClock(at("2025-06-01T00:00:00Z")))

	if got := s.Scan(context.Background()); got != 0 {
		t.Fatalf("Scan() = %d confirmed, want 0", got)
	}
	if len(n.delivered) != 0 {
		t.Errorf("delivered = %v, want none", n.delivered)
	}
}

// TestRun_StopsOnCancel verifies the loop exits when the context ends.
func TestRun_StopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	s := New(src, &fakeNotifier{}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run() did not stop after cancel")
	}
}
