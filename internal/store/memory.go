package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process Store used by tests and by `docket serve` in
// memory mode. Snapshots are delivered synchronously from the mutating call,
// which keeps test flows deterministic.
type Memory struct {
	mu     sync.RWMutex
	data   map[Collection]map[string]json.RawMessage
	subs   map[Collection]map[int]ChangeFunc
	nextID int
	closed bool
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		data: map[Collection]map[string]json.RawMessage{
			Tasks: {},
			Cases: {},
		},
		subs: map[Collection]map[int]ChangeFunc{
			Tasks: {},
			Cases: {},
		},
	}
}

// GetAll implements Store. Documents are returned in id order.
func (m *Memory) GetAll(ctx context.Context, col Collection) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.snapshotLocked(col), nil
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, col Collection, id string) (Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return Document{}, ErrClosed
	}
	body, ok := m.data[col][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{ID: id, Data: append(json.RawMessage(nil), body...)}, nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, col Collection, id string, data json.RawMessage) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.data[col][id] = append(json.RawMessage(nil), data...)
	subs, docs := m.broadcastLocked(col)
	m.mu.Unlock()

	notify(subs, docs)
	return nil
}

// Patch implements Store. Fails with ErrNotFound when id is absent.
func (m *Memory) Patch(ctx context.Context, col Collection, id string, fields map[string]any) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	body, ok := m.data[col][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	merged, err := MergeFields(body, fields)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	m.data[col][id] = merged
	subs, docs := m.broadcastLocked(col)
	m.mu.Unlock()

	notify(subs, docs)
	return nil
}

// Delete implements Store. Deleting an absent id is a no-op.
func (m *Memory) Delete(ctx context.Context, col Collection, id string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	delete(m.data[col], id)
	subs, docs := m.broadcastLocked(col)
	m.mu.Unlock()

	notify(subs, docs)
	return nil
}

// DeleteAll implements Store.
func (m *Memory) DeleteAll(ctx context.Context, col Collection) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.data[col] = map[string]json.RawMessage{}
	subs, docs := m.broadcastLocked(col)
	m.mu.Unlock()

	notify(subs, docs)
	return nil
}

// Subscribe implements Store. The callback fires once immediately with the
// current contents, then after every change until unsubscribe is called.
func (m *Memory) Subscribe(ctx context.Context, col Collection, onChange ChangeFunc, onError ErrorFunc) (func(), error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	id := m.nextID
	m.nextID++
	m.subs[col][id] = onChange
	docs := m.snapshotLocked(col)
	m.mu.Unlock()

	onChange(docs)

	return func() {
		m.mu.Lock()
		delete(m.subs[col], id)
		m.mu.Unlock()
	}, nil
}

// Ping implements Store.
func (m *Memory) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) snapshotLocked(col Collection) []Document {
	docs := make([]Document, 0, len(m.data[col]))
	for id, body := range m.data[col] {
		docs = append(docs, Document{ID: id, Data: append(json.RawMessage(nil), body...)})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}

func (m *Memory) broadcastLocked(col Collection) ([]ChangeFunc, []Document) {
	subs := make([]ChangeFunc, 0, len(m.subs[col]))
	for _, fn := range m.subs[col] {
		subs = append(subs, fn)
	}
	return subs, m.snapshotLocked(col)
}

func notify(subs []ChangeFunc, docs []Document) {
	for _, fn := range subs {
		fn(docs)
	}
}
