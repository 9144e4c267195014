package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/lawdesk/docket/internal/store"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	s := New(DefaultConfig(), m, nil)
	s.hub.Start()
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		s.hub.Stop()
	})
	return s, ts, m
}

func do(t *testing.T, method, url string, body string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/healthz", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET /healthz = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v, want ok", body["status"])
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	_, ts, _ := newTestServer(t)

	doc := `{"id":"t1","clientName":"Cohen","taskName":"File brief","dueDate":"2025-01-10"}`
	resp := do(t, http.MethodPut, ts.URL+"/v1/tasks/t1", doc)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PUT = %d, want 200", resp.StatusCode)
	}

	resp = do(t, http.MethodGet, ts.URL+"/v1/tasks/t1", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET = %d, want 200", resp.StatusCode)
	}
	data, _ := io.ReadAll(resp.Body)
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("body is not a JSON document: %v", err)
	}
	if got["clientName"] != "Cohen" {
		t.Errorf("clientName = %v, want Cohen", got["clientName"])
	}
}

func TestGetAll_KeyedByID(t *testing.T) {
	_, ts, m := newTestServer(t)
	ctx := context.Background()
	m.Put(ctx, store.Tasks, "a", json.RawMessage(`{"id":"a"}`))
	m.Put(ctx, store.Tasks, "b", json.RawMessage(`{"id":"b"}`))

	resp := do(t, http.MethodGet, ts.URL+"/v1/tasks", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET collection = %d, want 200", resp.StatusCode)
	}
	var got map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("documents = %d, want 2", len(got))
	}
	if _, ok := got["a"]; !ok {
		t.Error("missing document keyed by id a")
	}
}

func TestPatch(t *testing.T) {
	_, ts, m := newTestServer(t)
	m.Put(context.Background(), store.Tasks, "t1",
		json.RawMessage(`{"id":"t1","completed":false,"taskName":"X"}`))

	resp := do(t, http.MethodPatch, ts.URL+"/v1/tasks/t1", `{"completed":true}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("PATCH = %d, want 200", resp.StatusCode)
	}

	doc, err := m.Get(context.Background(), store.Tasks, "t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Contains(doc.Data, []byte(`"completed":true`)) {
		t.Errorf("patch not merged: %s", doc.Data)
	}
	if !bytes.Contains(doc.Data, []byte(`"taskName":"X"`)) {
		t.Errorf("patch dropped sibling field: %s", doc.Data)
	}
}

func TestPatch_MissingDocumentIs404(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := do(t, http.MethodPatch, ts.URL+"/v1/tasks/ghost", `{"completed":true}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("PATCH missing = %d, want 404", resp.StatusCode)
	}
}

func TestDeleteAndDeleteAll(t *testing.T) {
	_, ts, m := newTestServer(t)
	ctx := context.Background()
	m.Put(ctx, store.Tasks, "a", json.RawMessage(`{"id":"a"}`))
	m.Put(ctx, store.Tasks, "b", json.RawMessage(`{"id":"b"}`))
	m.Put(ctx, store.Cases, "c", json.RawMessage(`{"id":"c"}`))

	resp := do(t, http.MethodDelete, ts.URL+"/v1/tasks/a", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE doc = %d, want 204", resp.StatusCode)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/v1/tasks", "")
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("DELETE collection = %d, want 204", resp.StatusCode)
	}

	docs, _ := m.GetAll(ctx, store.Tasks)
	if len(docs) != 0 {
		t.Errorf("tasks = %d, want 0", len(docs))
	}
	docs, _ = m.GetAll(ctx, store.Cases)
	if len(docs) != 1 {
		t.Errorf("cases = %d, want untouched", len(docs))
	}
}

func TestUnknownCollection(t *testing.T) {
	_, ts, _ := newTestServer(t)

	resp := do(t, http.MethodGet, ts.URL+"/v1/clients", "")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("GET /v1/clients = %d, want 404", resp.StatusCode)
	}
}

func TestCollectionStream(t *testing.T) {
	_, ts, m := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws?collection=tasks"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	// First frame: current (empty) contents.
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read initial frame: %v", err)
	}
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if msg.Collection != store.Tasks || len(msg.Data) != 0 {
		t.Fatalf("initial frame = %+v, want empty tasks snapshot", msg)
	}

	// A write produces another frame.
	if err := m.Put(context.Background(), store.Tasks, "t1", json.RawMessage(`{"id":"t1"}`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	_, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read change frame: %v", err)
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal frame: %v", err)
	}
	if _, ok := msg.Data["t1"]; !ok {
		t.Errorf("change frame = %+v, want t1 present", msg)
	}
}

func TestHub_GrantedTracksClients(t *testing.T) {
	s, ts, _ := newTestServer(t)

	if s.Hub().Granted() {
		t.Fatal("Granted() = true with no clients")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for !s.Hub().Granted() {
		if time.Now().After(deadline) {
			t.Fatal("Granted() never became true after a client connected")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHub_ForwardsClientActions(t *testing.T) {
	s, ts, _ := newTestServer(t)

	type action struct{ name, taskID string }
	actions := make(chan action, 4)
	s.Hub().OnAction(func(name, taskID string) {
		actions <- action{name, taskID}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"action":"snooze","taskId":"t1"}`)); err != nil {
		t.Fatalf("write action: %v", err)
	}
	// Garbage and incomplete frames are ignored, not fatal.
	conn.Write(ctx, websocket.MessageText, []byte(`not json`))
	conn.Write(ctx, websocket.MessageText, []byte(`{"action":"snooze"}`))

	select {
	case got := <-actions:
		if got.name != "snooze" || got.taskID != "t1" {
			t.Errorf("action = %+v, want snooze t1", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("action never reached the handler")
	}

	select {
	case got := <-actions:
		t.Fatalf("unexpected second action %+v from malformed frames", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHub_BroadcastsShowEvents(t *testing.T) {
	s, ts, _ := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/notifications/ws"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	deadline := time.Now().Add(2 * time.Second)
	for s.Hub().ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := s.Hub().Close("t1"); err != nil {
		t.Fatalf("Close: %v", err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	var ev hubEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		t.Fatalf("unmarshal event: %v", err)
	}
	if ev.Type != eventClose || ev.Tag != "t1" {
		t.Errorf("event = %+v, want close for t1", ev)
	}
}
