// Package sqlite implements the document store over embedded SQLite.
//
// Documents live in a single table keyed by (collection, id) with the flat
// JSON body alongside. Every mutation also appends a row to an oplog table
// whose monotonically increasing sequence number drives change
// subscriptions: subscribers poll the latest sequence per collection and
// reload the collection when it advances. WAL mode keeps readers concurrent
// with the writer.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/lawdesk/docket/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT NOT NULL,
	id         TEXT NOT NULL,
	body       TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (collection, id)
);

CREATE TABLE IF NOT EXISTS oplog (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	doc_id     TEXT NOT NULL,
	op         TEXT NOT NULL,
	at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_oplog_collection ON oplog(collection, seq);
`

// Config tunes the sqlite backend.
type Config struct {
	// PollInterval is how often subscriptions check the oplog for new
	// sequence numbers.
	PollInterval time.Duration

	Logger *zap.SugaredLogger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: 250 * time.Millisecond,
		Logger:       zap.NewNop().Sugar(),
	}
}

// DB is a Store backed by an embedded SQLite database file.
type DB struct {
	conn   *sql.DB
	path   string
	config Config

	mu     sync.Mutex
	closed bool
	stops  []func()
	wg     sync.WaitGroup
}

// Open creates or opens the database at path and ensures the schema exists.
// The caller must Close the returned DB.
func Open(path string, config Config) (*DB, error) {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultConfig().PollInterval
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop().Sugar()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &DB{conn: conn, path: path, config: config}, nil
}

// GetAll implements store.Store. Documents are returned in id order.
func (d *DB) GetAll(ctx context.Context, col store.Collection) ([]store.Document, error) {
	rows, err := d.conn.QueryContext(ctx,
		"SELECT id, body FROM documents WHERE collection = ? ORDER BY id", string(col))
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", col, err)
	}
	defer rows.Close()

	var docs []store.Document
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", col, err)
		}
		docs = append(docs, store.Document{ID: id, Data: json.RawMessage(body)})
	}
	return docs, rows.Err()
}

// Get implements store.Store.
func (d *DB) Get(ctx context.Context, col store.Collection, id string) (store.Document, error) {
	var body string
	err := d.conn.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND id = ?", string(col), id).Scan(&body)
	if err == sql.ErrNoRows {
		return store.Document{}, store.ErrNotFound
	}
	if err != nil {
		return store.Document{}, fmt.Errorf("get %s/%s: %w", col, id, err)
	}
	return store.Document{ID: id, Data: json.RawMessage(body)}, nil
}

// Put implements store.Store.
func (d *DB) Put(ctx context.Context, col store.Collection, id string, data json.RawMessage) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO documents (collection, id, body, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (collection, id) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at`,
			string(col), id, string(data), now); err != nil {
			return fmt.Errorf("upsert %s/%s: %w", col, id, err)
		}
		return appendOp(ctx, tx, col, id, "put")
	})
}

// Patch implements store.Store. Fails with store.ErrNotFound for an absent id.
func (d *DB) Patch(ctx context.Context, col store.Collection, id string, fields map[string]any) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		var body string
		err := tx.QueryRowContext(ctx,
			"SELECT body FROM documents WHERE collection = ? AND id = ?", string(col), id).Scan(&body)
		if err == sql.ErrNoRows {
			return store.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load %s/%s: %w", col, id, err)
		}

		merged, err := store.MergeFields(json.RawMessage(body), fields)
		if err != nil {
			return fmt.Errorf("merge %s/%s: %w", col, id, err)
		}

		now := time.Now().UTC().Format(time.RFC3339)
		if _, err := tx.ExecContext(ctx,
			"UPDATE documents SET body = ?, updated_at = ? WHERE collection = ? AND id = ?",
			string(merged), now, string(col), id); err != nil {
			return fmt.Errorf("update %s/%s: %w", col, id, err)
		}
		return appendOp(ctx, tx, col, id, "patch")
	})
}

// Delete implements store.Store. Deleting an absent id is a no-op.
func (d *DB) Delete(ctx context.Context, col store.Collection, id string) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ? AND id = ?", string(col), id); err != nil {
			return fmt.Errorf("delete %s/%s: %w", col, id, err)
		}
		return appendOp(ctx, tx, col, id, "delete")
	})
}

// DeleteAll implements store.Store.
func (d *DB) DeleteAll(ctx context.Context, col store.Collection) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = ?", string(col)); err != nil {
			return fmt.Errorf("clear %s: %w", col, err)
		}
		return appendOp(ctx, tx, col, "*", "clear")
	})
}

// Subscribe implements store.Store. A goroutine polls the oplog sequence for
// the collection and reloads it whenever the sequence advances. The callback
// fires once immediately with the current contents.
func (d *DB) Subscribe(ctx context.Context, col store.Collection, onChange store.ChangeFunc, onError store.ErrorFunc) (func(), error) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, store.ErrClosed
	}
	stop := make(chan struct{})
	var once sync.Once
	cancel := func() { once.Do(func() { close(stop) }) }
	d.stops = append(d.stops, cancel)
	d.wg.Add(1)
	d.mu.Unlock()

	lastSeq, err := d.latestSeq(ctx, col)
	if err != nil {
		d.wg.Done()
		return nil, err
	}
	docs, err := d.GetAll(ctx, col)
	if err != nil {
		d.wg.Done()
		return nil, err
	}
	onChange(docs)

	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-ticker.C:
				seq, err := d.latestSeq(ctx, col)
				if err != nil {
					d.config.Logger.Warnw("oplog poll failed", "collection", col, "error", err)
					if onError != nil {
						onError(err)
					}
					continue
				}
				if seq == lastSeq {
					continue
				}
				lastSeq = seq
				docs, err := d.GetAll(ctx, col)
				if err != nil {
					d.config.Logger.Warnw("snapshot reload failed", "collection", col, "error", err)
					if onError != nil {
						onError(err)
					}
					continue
				}
				onChange(docs)
			}
		}
	}()

	return cancel, nil
}

// Ping implements store.Store.
func (d *DB) Ping(ctx context.Context) error {
	return d.conn.PingContext(ctx)
}

// Close stops all subscriptions and closes the database. A WAL checkpoint
// runs so the main file holds all changes.
func (d *DB) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	for _, cancel := range d.stops {
		cancel()
	}
	d.mu.Unlock()

	d.wg.Wait()

	if _, err := d.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		d.config.Logger.Warnw("wal checkpoint failed", "error", err)
	}
	return d.conn.Close()
}

func (d *DB) latestSeq(ctx context.Context, col store.Collection) (int64, error) {
	var seq int64
	err := d.conn.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM oplog WHERE collection = ?", string(col)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("latest oplog seq for %s: %w", col, err)
	}
	return seq, nil
}

func (d *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func appendOp(ctx context.Context, tx *sql.Tx, col store.Collection, id, op string) error {
	_, err := tx.ExecContext(ctx,
		"INSERT INTO oplog (collection, doc_id, op, at) VALUES (?, ?, ?, ?)",
		string(col), id, op, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append oplog: %w", err)
	}
	return nil
}
