// Package engine implements the sync engine: the single source of truth for
// the in-memory task and case collections.
//
// The engine subscribes to the document store, re-validates every incoming
// snapshot record, and publishes the resulting collections to listeners.
// Invalid records are dropped with a log line; they never crash the stream.
// Writes go remote-first: the engine never mutates local state optimistically
// and instead waits for the subscription to report the accepted change, so
// listeners can never diverge from what the store accepted.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/metrics"
	"github.com/lawdesk/docket/internal/model"
	"github.com/lawdesk/docket/internal/store"
)

// Snapshot is what listeners receive: copies of both collections in the
// order the store returned them. Callers needing a specific order sort at
// their own boundary.
type Snapshot struct {
	Tasks []model.Task
	Cases []model.Case
}

// Listener receives collection snapshots. Called after every applied change.
type Listener func(Snapshot)

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the time source, for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithProbeConfig overrides the connectivity probe used by Start.
func WithProbeConfig(cfg store.ProbeConfig) Option {
	return func(e *Engine) { e.probe = cfg }
}

// Engine owns the canonical in-memory collections.
type Engine struct {
	store store.Store
	log   *zap.SugaredLogger
	clock func() time.Time
	probe store.ProbeConfig

	mu        sync.RWMutex
	tasks     []model.Task
	cases     []model.Case
	seenTasks bool
	seenCases bool

	listenerMu   sync.Mutex
	listeners    map[int]Listener
	nextListener int

	ready     chan struct{}
	readyOnce sync.Once

	unsubscribes []func()
}

// New creates an engine over the given store. Call Start to begin syncing.
func New(st store.Store, logger *zap.SugaredLogger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	e := &Engine{
		store:     st,
		log:       logger.With("component", "engine"),
		clock:     time.Now,
		probe:     store.DefaultProbeConfig(),
		listeners: make(map[int]Listener),
		ready:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start probes connectivity and subscribes to both collections. It returns a
// *store.ConnectivityError when the store stays unreachable through the
// probe budget.
func (e *Engine) Start(ctx context.Context) error {
	if err := store.WaitReady(ctx, e.store, e.probe, e.log); err != nil {
		return err
	}

	unsubTasks, err := e.store.Subscribe(ctx, store.Tasks, e.applyTasks, e.streamError(store.Tasks))
	if err != nil {
		return fmt.Errorf("subscribe tasks: %w", err)
	}
	unsubCases, err := e.store.Subscribe(ctx, store.Cases, e.applyCases, e.streamError(store.Cases))
	if err != nil {
		unsubTasks()
		return fmt.Errorf("subscribe cases: %w", err)
	}
	e.unsubscribes = []func(){unsubTasks, unsubCases}
	return nil
}

// Stop detaches from the store. In-flight writes are not cancelled.
func (e *Engine) Stop() {
	for _, unsub := range e.unsubscribes {
		unsub()
	}
	e.unsubscribes = nil
}

// Ready is closed once both collections have delivered their first snapshot.
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Subscribe registers a listener and returns its unsubscribe function.
// Unsubscribing stops forwarding but does not cancel in-flight writes.
func (e *Engine) Subscribe(fn Listener) func() {
	e.listenerMu.Lock()
	id := e.nextListener
	e.nextListener++
	e.listeners[id] = fn
	e.listenerMu.Unlock()

	return func() {
		e.listenerMu.Lock()
		delete(e.listeners, id)
		e.listenerMu.Unlock()
	}
}

// Tasks returns a copy of the current task collection.
func (e *Engine) Tasks() []model.Task {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Task(nil), e.tasks...)
}

// Cases returns a copy of the current case collection.
func (e *Engine) Cases() []model.Case {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return append([]model.Case(nil), e.cases...)
}

// Task returns the task with the given id, if present.
func (e *Engine) Task(id string) (model.Task, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, t := range e.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// Case returns the case with the given id, if present.
func (e *Engine) Case(id string) (model.Case, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, c := range e.cases {
		if c.ID == id {
			return c, true
		}
	}
	return model.Case{}, false
}

// CreateTask validates and persists a new task. The id is assigned here and
// never reassigned. The in-memory collection picks the task up through the
// subscription once the store accepts it.
func (e *Engine) CreateTask(ctx context.Context, in model.Task) (model.Task, error) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	t, err := model.NormalizeTask(in)
	if err != nil {
		return model.Task{}, err
	}
	data, err := json.Marshal(t)
	if err != nil {
		return model.Task{}, fmt.Errorf("encode task: %w", err)
	}
	if err := e.store.Put(ctx, store.Tasks, t.ID, data); err != nil {
		return model.Task{}, fmt.Errorf("put task %s: %w", t.ID, err)
	}
	e.log.Infow("task created", "id", t.ID, "type", t.Type)
	return t, nil
}

// UpdateTask merges the patch onto the existing task, re-validates the
// merged record, and patches the store. Fails with store.ErrNotFound when no
// task has the id.
func (e *Engine) UpdateTask(ctx context.Context, id string, patch model.TaskPatch) (model.Task, error) {
	existing, ok := e.Task(id)
	if !ok {
		return model.Task{}, fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	merged, err := model.NormalizeTask(patch.Apply(existing))
	if err != nil {
		return model.Task{}, err
	}
	if err := e.store.Patch(ctx, store.Tasks, id, patch.Fields(merged)); err != nil {
		return model.Task{}, fmt.Errorf("patch task %s: %w", id, err)
	}
	return merged, nil
}

// DeleteTask removes a task.
func (e *Engine) DeleteTask(ctx context.Context, id string) error {
	if err := e.store.Delete(ctx, store.Tasks, id); err != nil {
		return fmt.Errorf("delete task %s: %w", id, err)
	}
	e.log.Infow("task deleted", "id", id)
	return nil
}

// SetCompleted sets the completion flag. Calling it again with the same
// value is a no-op from the caller's perspective, though the remote write is
// still issued.
func (e *Engine) SetCompleted(ctx context.Context, id string, completed bool) error {
	if _, ok := e.Task(id); !ok {
		return fmt.Errorf("task %s: %w", id, store.ErrNotFound)
	}
	if err := e.store.Patch(ctx, store.Tasks, id, map[string]any{"completed": completed}); err != nil {
		return fmt.Errorf("patch task %s: %w", id, err)
	}
	return nil
}

// MarkNotified records that a reminder notification for the task was
// delivered. Reserved for the reminder scheduler; this write is the
// durability point for at-least-once delivery.
func (e *Engine) MarkNotified(ctx context.Context, id string) error {
	if err := e.store.Patch(ctx, store.Tasks, id, map[string]any{"notified": true}); err != nil {
		return fmt.Errorf("mark task %s notified: %w", id, err)
	}
	return nil
}

// CreateCase validates and persists a new case.
func (e *Engine) CreateCase(ctx context.Context, in model.Case) (model.Case, error) {
	if strings.TrimSpace(in.ID) == "" {
		in.ID = uuid.NewString()
	}
	c, err := model.NormalizeCase(in, e.clock())
	if err != nil {
		return model.Case{}, err
	}
	data, err := json.Marshal(c)
	if err != nil {
		return model.Case{}, fmt.Errorf("encode case: %w", err)
	}
	if err := e.store.Put(ctx, store.Cases, c.ID, data); err != nil {
		return model.Case{}, fmt.Errorf("put case %s: %w", c.ID, err)
	}
	e.log.Infow("case created", "id", c.ID, "caseNumber", c.CaseNumber)
	return c, nil
}

// UpdateCase merges the patch onto the existing case, re-validates, stamps
// updatedAt, and patches the store.
func (e *Engine) UpdateCase(ctx context.Context, id string, patch model.CasePatch) (model.Case, error) {
	existing, ok := e.Case(id)
	if !ok {
		return model.Case{}, fmt.Errorf("case %s: %w", id, store.ErrNotFound)
	}
	merged := patch.Apply(existing)
	merged.UpdatedAt = model.FormatStamp(e.clock())
	normalized, err := model.NormalizeCase(merged, e.clock())
	if err != nil {
		return model.Case{}, err
	}
	if err := e.store.Patch(ctx, store.Cases, id, patch.Fields(normalized)); err != nil {
		return model.Case{}, fmt.Errorf("patch case %s: %w", id, err)
	}
	return normalized, nil
}

// DeleteCase removes a case and every task that references it, tasks first
// so a failure cannot orphan the case record silently.
func (e *Engine) DeleteCase(ctx context.Context, id string) error {
	for _, t := range e.Tasks() {
		if t.CaseID != id {
			continue
		}
		if err := e.store.Delete(ctx, store.Tasks, t.ID); err != nil {
			return fmt.Errorf("delete linked task %s: %w", t.ID, err)
		}
	}
	if err := e.store.Delete(ctx, store.Cases, id); err != nil {
		return fmt.Errorf("delete case %s: %w", id, err)
	}
	e.log.Infow("case deleted", "id", id)
	return nil
}

// SearchTasks returns tasks whose client or task name contains the term,
// case-insensitively.
func (e *Engine) SearchTasks(term string) []model.Task {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []model.Task
	for _, t := range e.Tasks() {
		if strings.Contains(strings.ToLower(t.ClientName), term) ||
			strings.Contains(strings.ToLower(t.TaskName), term) {
			out = append(out, t)
		}
	}
	return out
}

// SearchCases returns cases whose client name, case number, or subject
// contains the term, case-insensitively.
func (e *Engine) SearchCases(term string) []model.Case {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []model.Case
	for _, c := range e.Cases() {
		if strings.Contains(strings.ToLower(c.ClientName), term) ||
			strings.Contains(strings.ToLower(c.CaseNumber), term) ||
			strings.Contains(strings.ToLower(c.Subject), term) {
			out = append(out, c)
		}
	}
	return out
}

func (e *Engine) applyTasks(docs []store.Document) {
	tasks := make([]model.Task, 0, len(docs))
	for _, doc := range docs {
		var raw model.Task
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			e.log.Warnw("dropping undecodable task record", "id", doc.ID, "error", err)
			metrics.RecordsDropped.WithLabelValues(string(store.Tasks)).Inc()
			continue
		}
		if raw.ID == "" {
			raw.ID = doc.ID
		}
		t, err := model.NormalizeTask(raw)
		if err != nil {
			e.log.Warnw("dropping invalid task record", "id", doc.ID, "error", err)
			metrics.RecordsDropped.WithLabelValues(string(store.Tasks)).Inc()
			continue
		}
		tasks = append(tasks, t)
	}

	e.mu.Lock()
	e.tasks = tasks
	e.seenTasks = true
	both := e.seenCases
	e.mu.Unlock()

	metrics.SnapshotsApplied.WithLabelValues(string(store.Tasks)).Inc()
	if both {
		e.readyOnce.Do(func() { close(e.ready) })
	}
	e.publish()
}

func (e *Engine) applyCases(docs []store.Document) {
	cases := make([]model.Case, 0, len(docs))
	now := e.clock()
	for _, doc := range docs {
		var raw model.Case
		if err := json.Unmarshal(doc.Data, &raw); err != nil {
			e.log.Warnw("dropping undecodable case record", "id", doc.ID, "error", err)
			metrics.RecordsDropped.WithLabelValues(string(store.Cases)).Inc()
			continue
		}
		if raw.ID == "" {
			raw.ID = doc.ID
		}
		c, err := model.NormalizeCase(raw, now)
		if err != nil {
			e.log.Warnw("dropping invalid case record", "id", doc.ID, "error", err)
			metrics.RecordsDropped.WithLabelValues(string(store.Cases)).Inc()
			continue
		}
		cases = append(cases, c)
	}

	e.mu.Lock()
	e.cases = cases
	e.seenCases = true
	both := e.seenTasks
	e.mu.Unlock()

	metrics.SnapshotsApplied.WithLabelValues(string(store.Cases)).Inc()
	if both {
		e.readyOnce.Do(func() { close(e.ready) })
	}
	e.publish()
}

func (e *Engine) publish() {
	snap := Snapshot{Tasks: e.Tasks(), Cases: e.Cases()}

	e.listenerMu.Lock()
	listeners := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		listeners = append(listeners, fn)
	}
	e.listenerMu.Unlock()

	for _, fn := range listeners {
		fn(snap)
	}
}

func (e *Engine) streamError(col store.Collection) store.ErrorFunc {
	return func(err error) {
		e.log.Errorw("subscription stream error", "collection", col, "error", err)
	}
}
