package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func doc(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	return data
}

// TestMemory_PutGet verifies basic round-tripping through a collection.
func TestMemory_PutGet(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	body := doc(t, map[string]any{"taskName": "file brief"})
	if err := m.Put(ctx, Tasks, "t1", body); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, err := m.Get(ctx, Tasks, "t1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ID != "t1" {
		t.Errorf("ID = %q, want t1", got.ID)
	}

	all, err := m.GetAll(ctx, Tasks)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("GetAll() returned %d documents, want 1", len(all))
	}
}

// TestMemory_GetAllOrder verifies documents come back in id order.
func TestMemory_GetAllOrder(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"c", "a", "b"} {
		if err := m.Put(ctx, Tasks, id, doc(t, map[string]any{"id": id})); err != nil {
			t.Fatalf("Put(%s) failed: %v", id, err)
		}
	}
	all, err := m.GetAll(ctx, Tasks)
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	for i, want := range []string{"a", "b", "c"} {
		if all[i].ID != want {
			t.Errorf("all[%d].ID = %q, want %q", i, all[i].ID, want)
		}
	}
}

// TestMemory_PatchMissing verifies Patch refuses to upsert.
func TestMemory_PatchMissing(t *testing.T) {
	m := NewMemory()
	err := m.Patch(context.Background(), Tasks, "ghost", map[string]any{"completed": true})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("Patch() error = %v, want ErrNotFound", err)
	}
}

// TestMemory_PatchMerges verifies untouched fields survive a patch.
func TestMemory_PatchMerges(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, Tasks, "t1", doc(t, map[string]any{"taskName": "x", "completed": false})); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := m.Patch(ctx, Tasks, "t1", map[string]any{"completed": true}); err != nil {
		t.Fatalf("Patch() failed: %v", err)
	}

	got, err := m.Get(ctx, Tasks, "t1")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	var body map[string]any
	if err := json.Unmarshal(got.Data, &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["taskName"] != "x" {
		t.Errorf("taskName = %v, want preserved", body["taskName"])
	}
	if body["completed"] != true {
		t.Errorf("completed = %v, want true", body["completed"])
	}
}

// TestMemory_Subscribe verifies the initial snapshot plus change delivery
// and that unsubscribe stops delivery.
func TestMemory_Subscribe(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, Tasks, "t1", doc(t, map[string]any{"n": 1})); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	var snapshots [][]Document
	unsub, err := m.Subscribe(ctx, Tasks, func(docs []Document) {
		snapshots = append(snapshots, docs)
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("initial snapshot = %v, want one document", snapshots)
	}

	if err := m.Put(ctx, Tasks, "t2", doc(t, map[string]any{"n": 2})); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 2 {
		t.Fatalf("after Put: %d snapshots, want 2 with 2 docs", len(snapshots))
	}

	// Changes to the other collection must not leak in.
	if err := m.Put(ctx, Cases, "c1", doc(t, map[string]any{})); err != nil {
		t.Fatalf("Put(cases) failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatalf("case change leaked into tasks subscription")
	}

	unsub()
	if err := m.Delete(ctx, Tasks, "t1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if len(snapshots) != 2 {
		t.Fatal("snapshot delivered after unsubscribe")
	}
}

// TestMemory_DeleteAll verifies the collection is emptied and broadcast.
func TestMemory_DeleteAll(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b"} {
		if err := m.Put(ctx, Cases, id, doc(t, map[string]any{})); err != nil {
			t.Fatalf("Put() failed: %v", err)
		}
	}

	var last []Document
	if _, err := m.Subscribe(ctx, Cases, func(docs []Document) { last = docs }, nil); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if err := m.DeleteAll(ctx, Cases); err != nil {
		t.Fatalf("DeleteAll() failed: %v", err)
	}
	if len(last) != 0 {
		t.Errorf("collection has %d documents after DeleteAll, want 0", len(last))
	}
}

// flakyStore fails Ping a fixed number of times before recovering.
type flakyStore struct {
	*Memory
	failures int
	pings    int
}

func (f *flakyStore) Ping(ctx context.Context) error {
	f.pings++
	if f.pings <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

// TestWaitReady_RecoversWithinBudget verifies the probe retries through
// transient failures.
func TestWaitReady_RecoversWithinBudget(t *testing.T) {
	s := &flakyStore{Memory: NewMemory(), failures: 2}
	cfg := ProbeConfig{Attempts: 3, BaseDelay: time.Millisecond}
	if err := WaitReady(context.Background(), s, cfg, nil); err != nil {
		t.Fatalf("WaitReady() failed: %v", err)
	}
	if s.pings != 3 {
		t.Errorf("pings = %d, want 3", s.pings)
	}
}

// TestWaitReady_Exhausted verifies a ConnectivityError after the last retry.
func TestWaitReady_Exhausted(t *testing.T) {
	s := &flakyStore{Memory: NewMemory(), failures: 10}
	cfg := ProbeConfig{Attempts: 3, BaseDelay: time.Millisecond}
	err := WaitReady(context.Background(), s, cfg, nil)

	var ce *ConnectivityError
	if !errors.As(err, &ce) {
		t.Fatalf("error = %v, want *ConnectivityError", err)
	}
	if ce.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", ce.Attempts)
	}
	if s.pings != 3 {
		t.Errorf("pings = %d, want 3", s.pings)
	}
}
