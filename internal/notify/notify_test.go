package notify

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lawdesk/docket/internal/model"
)

// fakePlatform records shown and closed notifications.
type fakePlatform struct {
	mu      sync.Mutex
	granted bool
	showErr error
	shown   []Payload
	closed  []string
}

func (f *fakePlatform) Granted() bool { return f.granted }

func (f *fakePlatform) Show(p Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.showErr != nil {
		return f.showErr
	}
	f.shown = append(f.shown, p)
	return nil
}

func (f *fakePlatform) Close(tag string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, tag)
	return nil
}

func (f *fakePlatform) shownCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.shown)
}

var hearing = model.Task{
	ID: "t1", ClientName: "Cohen", TaskName: "Attend hearing",
	DueDate: "2025-03-01T00:00:00Z", Type: model.TaskTypeHearing,
	Court: "Tel Aviv District", Judge: "Barak", CourtDate: "2025-03-01T10:30:00Z",
}

// TestNotifyNow_TagAndTitle verifies the stable tag and type-dependent title.
func TestNotifyNow_TagAndTitle(t *testing.T) {
	p := &fakePlatform{granted: true}
	d := New(p, nil)

	if err := d.NotifyNow(hearing); err != nil {
		t.Fatalf("NotifyNow() failed: %v", err)
	}
	if len(p.shown) != 1 {
		t.Fatalf("shown = %d notifications, want 1", len(p.shown))
	}
	got := p.shown[0]
	if got.Tag != "t1" {
		t.Errorf("Tag = %q, want task id", got.Tag)
	}
	if got.Title != "Hearing reminder" {
		t.Errorf("Title = %q, want Hearing reminder", got.Title)
	}
	if got.Data.TaskID != "t1" || got.Data.Type != model.TaskTypeHearing {
		t.Errorf("Data = %+v, want task id and type", got.Data)
	}

	regular := model.Task{ID: "t2", ClientName: "Levi", TaskName: "File", DueDate: "2025-01-10"}
	if err := d.NotifyNow(regular); err != nil {
		t.Fatalf("NotifyNow() failed: %v", err)
	}
	if p.shown[1].Title != "Task reminder" {
		t.Errorf("Title = %q, want Task reminder", p.shown[1].Title)
	}
}

// TestBuildPayload_BodyFields verifies hearing fields appear only when
// present and only for hearings.
func TestBuildPayload_BodyFields(t *testing.T) {
	d := New(&fakePlatform{granted: true}, nil)

	body := d.BuildPayload(hearing, hearing.ID).Body
	for _, want := range []string{"Attend hearing", "Client: Cohen", "Court: Tel Aviv District", "Judge: Barak", "Hearing:", "Due:"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}

	noJudge := hearing
	noJudge.Judge = ""
	if strings.Contains(d.BuildPayload(noJudge, noJudge.ID).Body, "Judge:") {
		t.Error("body includes Judge line for a task without a judge")
	}

	regular := model.Task{ID: "t2", ClientName: "Levi", TaskName: "File", DueDate: "2025-01-10"}
	if strings.Contains(d.BuildPayload(regular, regular.ID).Body, "Court:") {
		t.Error("body includes Court line for a regular task")
	}
}

// TestNotifyNow_PermissionDenied verifies lack of permission is a silent,
// non-error no-op.
func TestNotifyNow_PermissionDenied(t *testing.T) {
	p := &fakePlatform{granted: false}
	d := New(p, nil)

	if err := d.NotifyNow(hearing); err != nil {
		t.Fatalf("NotifyNow() without permission = %v, want nil", err)
	}
	if len(p.shown) != 0 {
		t.Error("notification shown despite missing permission")
	}
}

// TestNotifyNow_DeliveryFailure verifies platform errors surface to the
// caller so the scheduler can retry.
func TestNotifyNow_DeliveryFailure(t *testing.T) {
	p := &fakePlatform{granted: true, showErr: errors.New("display gone")}
	d := New(p, nil)

	if err := d.NotifyNow(hearing); err == nil {
		t.Fatal("NotifyNow() succeeded, want delivery error")
	}
}

// TestNotifyAfter_Cancel verifies a pending timer can be withdrawn before it
// fires, and that Cancel also closes shown notifications by tag.
func TestNotifyAfter_Cancel(t *testing.T) {
	p := &fakePlatform{granted: true}
	d := New(p, nil)

	cancel := d.NotifyAfter(hearing, 50*time.Millisecond)
	cancel()
	time.Sleep(100 * time.Millisecond)
	if p.shownCount() != 0 {
		t.Error("cancelled delayed notification was still delivered")
	}

	d.Cancel("t1")
	want := map[string]bool{"t1": true, "t1-snooze": true}
	for _, tag := range p.closed {
		delete(want, tag)
	}
	if len(want) != 0 {
		t.Errorf("Cancel did not close tags %v", want)
	}
}

// TestNotifyAfter_Fires verifies delayed delivery happens after the delay.
func TestNotifyAfter_Fires(t *testing.T) {
	p := &fakePlatform{granted: true}
	d := New(p, nil)

	d.NotifyAfter(hearing, 10*time.Millisecond)

	deadline := time.After(time.Second)
	for p.shownCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("delayed notification never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// TestSnooze_DerivedTag verifies snooze uses the derived tag so the original
// notification is not replaced.
func TestSnooze_DerivedTag(t *testing.T) {
	p := &fakePlatform{granted: true}
	d := New(p, nil)

	d.Snooze(hearing, 0)
	if len(p.shown) != 1 {
		t.Fatalf("shown = %d notifications, want 1", len(p.shown))
	}
	if p.shown[0].Tag != "t1-snooze" {
		t.Errorf("Tag = %q, want t1-snooze", p.shown[0].Tag)
	}
}
