package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher re-reads the config file when it changes and hands the result to a
// callback. Editors replace files with rename-and-create, so the parent
// directory is watched rather than the file itself.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	onChange func(*Config)
	onError  func(error)

	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// NewWatcher creates a watcher for the given config file. Start begins
// delivery; a reload that fails to parse or validate goes to onError and
// the previous config stays in effect.
func NewWatcher(path string, onChange func(*Config), onError func(error)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: resolve %s: %w", path, err)
	}
	return &Watcher{
		watcher:  fw,
		path:     abs,
		onChange: onChange,
		onError:  onError,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching. Safe to call once.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return fmt.Errorf("config: watcher already running")
	}
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("config: watch %s: %w", filepath.Dir(w.path), err)
	}
	w.running = true
	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop ends the watch and blocks until the event loop exits.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("config: close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	// Writes arrive in bursts; a short debounce collapses them into one
	// reload.
	var pending *time.Timer
	reload := make(chan struct{}, 1)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if pending != nil {
				pending.Stop()
			}
			pending = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})

		case <-reload:
			cfg, err := Load(w.path)
			if err != nil {
				if w.onError != nil {
					w.onError(err)
				}
				continue
			}
			if w.onChange != nil {
				w.onChange(cfg)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.onError != nil {
				w.onError(err)
			}
		}
	}
}
