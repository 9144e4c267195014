// Package remote implements the document store interface over the docket
// server's HTTP and WebSocket API. It is what a workstation process uses
// when the store lives on another machine.
//
// Subscriptions ride the server's snapshot stream: every change delivers the
// full collection, so a dropped connection needs no cursor to resume. The
// client redials with linear backoff until unsubscribed.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/lawdesk/docket/internal/store"
)

// Config holds the remote endpoint and client tuning.
type Config struct {
	// BaseURL is the server root, e.g. "http://docket.local:8487".
	BaseURL string

	// RedialDelay is the base delay between websocket redial attempts.
	// Backoff is linear: delay, 2*delay, 3*delay, capped at 10x.
	RedialDelay time.Duration

	// HTTPTimeout bounds individual REST calls.
	HTTPTimeout time.Duration
}

// Store is the remote client. It satisfies store.Store.
type Store struct {
	base   string
	wsBase string
	http   *http.Client
	redial time.Duration
	log    *zap.SugaredLogger

	mu     sync.Mutex
	closed bool
	stops  []func()
	wg     sync.WaitGroup
}

// Open validates the config and builds a client. No connection is made until
// the first call; use Ping to probe.
func Open(cfg Config, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: invalid base URL %q", cfg.BaseURL)
	}
	if cfg.RedialDelay <= 0 {
		cfg.RedialDelay = time.Second
	}
	if cfg.HTTPTimeout <= 0 {
		cfg.HTTPTimeout = 15 * time.Second
	}

	wsURL := *u
	switch u.Scheme {
	case "http":
		wsURL.Scheme = "ws"
	case "https":
		wsURL.Scheme = "wss"
	default:
		return nil, fmt.Errorf("remote: unsupported scheme %q", u.Scheme)
	}

	return &Store{
		base:   strings.TrimRight(u.String(), "/"),
		wsBase: strings.TrimRight(wsURL.String(), "/"),
		http:   &http.Client{Timeout: cfg.HTTPTimeout},
		redial: cfg.RedialDelay,
		log:    logger.With("component", "remote"),
	}, nil
}

func (s *Store) docURL(col store.Collection, id string) string {
	return s.base + "/v1/" + string(col) + "/" + url.PathEscape(id)
}

func (s *Store) colURL(col store.Collection) string {
	return s.base + "/v1/" + string(col)
}

func (s *Store) do(ctx context.Context, method, u string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("remote: encode body: %w", err)
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("remote: %s %s: %w", method, u, err)
	}
	return resp, nil
}

func drainError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return fmt.Errorf("remote: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
}

// GetAll fetches the whole collection, sorted by document id.
func (s *Store) GetAll(ctx context.Context, col store.Collection) ([]store.Document, error) {
	resp, err := s.do(ctx, http.MethodGet, s.colURL(col), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, drainError(resp)
	}

	var keyed map[string]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&keyed); err != nil {
		return nil, fmt.Errorf("remote: decode collection: %w", err)
	}
	return docsFromKeyed(keyed), nil
}

// Get fetches one document. A missing document maps to store.ErrNotFound.
func (s *Store) Get(ctx context.Context, col store.Collection, id string) (store.Document, error) {
	resp, err := s.do(ctx, http.MethodGet, s.docURL(col, id), nil)
	if err != nil {
		return store.Document{}, err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return store.Document{}, fmt.Errorf("%s/%s: %w", col, id, store.ErrNotFound)
	default:
		return store.Document{}, drainError(resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return store.Document{}, fmt.Errorf("remote: read document: %w", err)
	}
	return store.Document{ID: id, Data: data}, nil
}

// Put writes the full document body.
func (s *Store) Put(ctx context.Context, col store.Collection, id string, data json.RawMessage) error {
	resp, err := s.do(ctx, http.MethodPut, s.docURL(col, id), data)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return drainError(resp)
	}
	return nil
}

// Patch merges fields into an existing document. A missing document maps to
// store.ErrNotFound.
func (s *Store) Patch(ctx context.Context, col store.Collection, id string, fields map[string]any) error {
	resp, err := s.do(ctx, http.MethodPatch, s.docURL(col, id), fields)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%s/%s: %w", col, id, store.ErrNotFound)
	default:
		return drainError(resp)
	}
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, col store.Collection, id string) error {
	resp, err := s.do(ctx, http.MethodDelete, s.docURL(col, id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return drainError(resp)
	}
	return nil
}

// DeleteAll clears a collection.
func (s *Store) DeleteAll(ctx context.Context, col store.Collection) error {
	resp, err := s.do(ctx, http.MethodDelete, s.colURL(col), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return drainError(resp)
	}
	return nil
}

// Ping probes the server health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	resp, err := s.do(ctx, http.MethodGet, s.base+"/healthz", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return drainError(resp)
	}
	return nil
}

// snapshotFrame mirrors the server's stream message.
type snapshotFrame struct {
	Collection store.Collection           `json:"collection"`
	Data       map[string]json.RawMessage `json:"data"`
}

// Subscribe streams collection snapshots over WebSocket. Every frame carries
// the full collection, so onChange always sees complete state. Dropped
// connections redial until the subscription or the store is closed;
// onError reports dial and stream failures along the way.
func (s *Store) Subscribe(ctx context.Context, col store.Collection, onChange store.ChangeFunc, onError store.ErrorFunc) (func(), error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, store.ErrClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	stop := func() { once.Do(cancel) }
	s.stops = append(s.stops, stop)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.streamLoop(subCtx, col, onChange, onError)
	}()

	return stop, nil
}

func (s *Store) streamLoop(ctx context.Context, col store.Collection, onChange store.ChangeFunc, onError store.ErrorFunc) {
	wsURL := s.wsBase + "/v1/ws?collection=" + string(col)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.Dial(ctx, wsURL, nil)
		if err != nil {
			attempt++
			if onError != nil {
				onError(fmt.Errorf("remote: dial stream for %s: %w", col, err))
			}
			if !sleepCtx(ctx, s.backoff(attempt)) {
				return
			}
			continue
		}
		attempt = 0
		s.log.Debugw("snapshot stream connected", "collection", col)

		err = s.readFrames(ctx, conn, col, onChange)
		conn.Close(websocket.StatusNormalClosure, "")
		if ctx.Err() != nil {
			return
		}
		if err != nil && onError != nil {
			onError(fmt.Errorf("remote: stream for %s dropped: %w", col, err))
		}
		if !sleepCtx(ctx, s.backoff(1)) {
			return
		}
	}
}

func (s *Store) readFrames(ctx context.Context, conn *websocket.Conn, col store.Collection, onChange store.ChangeFunc) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var frame snapshotFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			s.log.Warnw("dropping undecodable frame", "collection", col, "error", err)
			continue
		}
		if frame.Collection != col {
			continue
		}
		onChange(docsFromKeyed(frame.Data))
	}
}

func (s *Store) backoff(attempt int) time.Duration {
	if attempt > 10 {
		attempt = 10
	}
	return time.Duration(attempt) * s.redial
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// Close ends all subscriptions and waits for their goroutines.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	stops := s.stops
	s.stops = nil
	s.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	s.wg.Wait()
	s.http.CloseIdleConnections()
	return nil
}

func docsFromKeyed(keyed map[string]json.RawMessage) []store.Document {
	docs := make([]store.Document, 0, len(keyed))
	for id, data := range keyed {
		docs = append(docs, store.Document{ID: id, Data: data})
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs
}
