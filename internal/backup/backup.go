// Package backup serializes the task and case collections into a versioned
// snapshot document and restores snapshots with replace or merge semantics.
//
// The snapshot is plain JSON so it stays readable and portable. For
// backward compatibility with older exports, the tasks and cases containers
// decode from either an array or an id-keyed object.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/model"
	"github.com/lawdesk/docket/internal/store"
)

// Version is the snapshot document version written by Create.
const Version = 1

// Mode selects restore semantics.
type Mode string

const (
	// ModeReplace clears both collections before loading the snapshot.
	ModeReplace Mode = "replace"

	// ModeMerge upserts snapshot records by id and leaves everything else
	// untouched.
	ModeMerge Mode = "merge"
)

// ParseMode parses a user-supplied mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeReplace:
		return ModeReplace, nil
	case ModeMerge:
		return ModeMerge, nil
	default:
		return "", fmt.Errorf("backup: unknown restore mode %q (want replace or merge)", s)
	}
}

// ShapeError reports a snapshot missing its required containers. Restore
// refuses to touch the store when it sees one.
type ShapeError struct {
	Missing []string
}

func (e *ShapeError) Error() string {
	return "backup: snapshot missing " + strings.Join(e.Missing, ", ")
}

// TaskSet decodes from either a JSON array or an id-keyed object.
type TaskSet []model.Task

// CaseSet decodes from either a JSON array or an id-keyed object.
type CaseSet []model.Case

func (s *TaskSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		*s = nil
		return nil
	case trimmed[0] == '[':
		return json.Unmarshal(trimmed, (*[]model.Task)(s))
	case trimmed[0] == '{':
		var keyed map[string]model.Task
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return err
		}
		out := make([]model.Task, 0, len(keyed))
		for id, t := range keyed {
			if t.ID == "" {
				t.ID = id
			}
			out = append(out, t)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		*s = out
		return nil
	default:
		return fmt.Errorf("backup: tasks container is neither array nor object")
	}
}

func (s *CaseSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0 || string(trimmed) == "null":
		*s = nil
		return nil
	case trimmed[0] == '[':
		return json.Unmarshal(trimmed, (*[]model.Case)(s))
	case trimmed[0] == '{':
		var keyed map[string]model.Case
		if err := json.Unmarshal(trimmed, &keyed); err != nil {
			return err
		}
		out := make([]model.Case, 0, len(keyed))
		for id, c := range keyed {
			if c.ID == "" {
				c.ID = id
			}
			out = append(out, c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		*s = out
		return nil
	default:
		return fmt.Errorf("backup: cases container is neither array nor object")
	}
}

// Snapshot is the transportable export of both collections.
type Snapshot struct {
	Version   int       `json:"version"`
	Timestamp time.Time `json:"timestamp"`
	Tasks     TaskSet   `json:"tasks"`
	Cases     CaseSet   `json:"cases"`
}

// Create builds a snapshot from the collections the sync engine currently
// holds. The caller passes them in; backup never re-fetches from the store.
func Create(tasks []model.Task, cases []model.Case, now time.Time) *Snapshot {
	snap := &Snapshot{
		Version:   Version,
		Timestamp: now.UTC(),
		Tasks:     append(TaskSet{}, tasks...),
		Cases:     append(CaseSet{}, cases...),
	}
	return snap
}

// Write serializes the snapshot as indented JSON.
func Write(w io.Writer, snap *Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("backup: encode snapshot: %w", err)
	}
	return nil
}

// Decode reads and shape-checks a snapshot document. A document missing the
// tasks or cases container fails with a *ShapeError.
func Decode(r io.Reader) (*Snapshot, error) {
	var raw struct {
		Version   int       `json:"version"`
		Timestamp time.Time `json:"timestamp"`
		Tasks     *TaskSet  `json:"tasks"`
		Cases     *CaseSet  `json:"cases"`
	}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("backup: decode snapshot: %w", err)
	}

	var missing []string
	if raw.Tasks == nil {
		missing = append(missing, "tasks")
	}
	if raw.Cases == nil {
		missing = append(missing, "cases")
	}
	if len(missing) > 0 {
		return nil, &ShapeError{Missing: missing}
	}

	return &Snapshot{
		Version:   raw.Version,
		Timestamp: raw.Timestamp,
		Tasks:     *raw.Tasks,
		Cases:     *raw.Cases,
	}, nil
}

// Restore loads the snapshot into the store. Replace mode clears both
// collections first; merge mode upserts by id and leaves unmentioned
// records untouched.
//
// Every precondition is checked before the first write: a malformed
// snapshot, or any record without an id, aborts with zero side effects. A
// partial destructive restore is the one failure this function must never
// produce.
func Restore(ctx context.Context, st store.Store, snap *Snapshot, mode Mode, logger *zap.SugaredLogger) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if snap == nil {
		return &ShapeError{Missing: []string{"tasks", "cases"}}
	}
	if snap.Tasks == nil || snap.Cases == nil {
		var missing []string
		if snap.Tasks == nil {
			missing = append(missing, "tasks")
		}
		if snap.Cases == nil {
			missing = append(missing, "cases")
		}
		return &ShapeError{Missing: missing}
	}

	for i, t := range snap.Tasks {
		if strings.TrimSpace(t.ID) == "" {
			return fmt.Errorf("backup: task record %d has no id", i)
		}
	}
	for i, c := range snap.Cases {
		if strings.TrimSpace(c.ID) == "" {
			return fmt.Errorf("backup: case record %d has no id", i)
		}
	}

	if mode == ModeReplace {
		if err := st.DeleteAll(ctx, store.Tasks); err != nil {
			return fmt.Errorf("backup: clear tasks: %w", err)
		}
		if err := st.DeleteAll(ctx, store.Cases); err != nil {
			return fmt.Errorf("backup: clear cases: %w", err)
		}
	}

	for _, t := range snap.Tasks {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("backup: encode task %s: %w", t.ID, err)
		}
		if err := st.Put(ctx, store.Tasks, t.ID, data); err != nil {
			return fmt.Errorf("backup: restore task %s: %w", t.ID, err)
		}
	}
	for _, c := range snap.Cases {
		data, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("backup: encode case %s: %w", c.ID, err)
		}
		if err := st.Put(ctx, store.Cases, c.ID, data); err != nil {
			return fmt.Errorf("backup: restore case %s: %w", c.ID, err)
		}
	}

	logger.Infow("restore complete", "mode", mode, "tasks", len(snap.Tasks), "cases", len(snap.Cases))
	return nil
}
