// Package store defines the document store interface the sync engine talks
// to, plus an in-memory implementation and the connectivity probe.
//
// A store holds two keyed collections of flat JSON documents, tasks and
// cases, and can push full-collection snapshots to subscribers whenever a
// collection changes. Implementations live in this package (memory) and in
// the sqlite and remote subpackages.
package store

import (
	"context"
	"encoding/json"
)

// Collection names the two top-level containers.
type Collection string

const (
	Tasks Collection = "tasks"
	Cases Collection = "cases"
)

// IsValid reports whether c names a known collection.
func (c Collection) IsValid() bool {
	return c == Tasks || c == Cases
}

// Document is one raw record in a collection. Data is the flat JSON body;
// consumers re-validate it before trusting the shape.
type Document struct {
	ID   string
	Data json.RawMessage
}

// ChangeFunc receives the full collection contents after every change,
// including once immediately after subscribing. The latest snapshot always
// wins; implementations never queue stale snapshots behind fresh ones.
type ChangeFunc func(docs []Document)

// ErrorFunc receives subscription stream errors. The stream keeps running
// after an error where the backend allows it.
type ErrorFunc func(err error)

// Store is the remote store adapter: a thin, testable surface over an opaque
// keyed document store with change subscriptions.
//
// Put overwrites the whole document. Patch merges the given fields into an
// existing document and fails with ErrNotFound when the id is absent.
// Subscribe returns an unsubscribe function; unsubscribing stops snapshot
// delivery but does not cancel in-flight writes.
type Store interface {
	GetAll(ctx context.Context, col Collection) ([]Document, error)
	Get(ctx context.Context, col Collection, id string) (Document, error)
	Put(ctx context.Context, col Collection, id string, data json.RawMessage) error
	Patch(ctx context.Context, col Collection, id string, fields map[string]any) error
	Delete(ctx context.Context, col Collection, id string) error
	DeleteAll(ctx context.Context, col Collection) error
	Subscribe(ctx context.Context, col Collection, onChange ChangeFunc, onError ErrorFunc) (func(), error)

	// Ping reports whether the backend is reachable right now.
	Ping(ctx context.Context) error
	Close() error
}

// MergeFields applies a patch payload onto a raw JSON document and returns
// the merged body. Shared by the memory and sqlite backends.
func MergeFields(body json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	doc := make(map[string]any)
	if len(body) > 0 {
		if err := json.Unmarshal(body, &doc); err != nil {
			return nil, err
		}
	}
	for k, v := range fields {
		doc[k] = v
	}
	return json.Marshal(doc)
}
