// Package watcher monitors the dataset file and signals when it has changed
// and settled, so the caller can re-run the scoring pipeline.
package watcher

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Event signals a stable dataset change.
type Event struct {
	Path      string
	Size      int64
	Timestamp time.Time
}

// Watcher watches a single dataset file with debouncing. The file must be
// untouched for the debounce interval before an Event fires, so partial
// writes never trigger a re-score.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	path      string
	interval  time.Duration

	// lastMod tracks the most recent change awaiting debounce.
	lastMod time.Time
	dirty   bool
	mu      sync.Mutex

	events chan Event
	errors chan error

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a watcher for the dataset file at path.
func New(path string, debounce time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		fsWatcher.Close()
		return nil, err
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		path:      abs,
		interval:  debounce,
		events:    make(chan Event, 8),
		errors:    make(chan error, 8),
		done:      make(chan struct{}),
	}, nil
}

// Events returns the channel of stable-change events.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Errors returns the channel of watch errors.
func (w *Watcher) Errors() <-chan error {
	return w.errors
}

// Start begins watching. The file's directory is watched so recreation via
// rename (the usual atomic-write pattern) is caught too.
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.wg.Add(2)
	go w.eventLoop()
	go w.debounceLoop()
	return nil
}

// Stop gracefully shuts down the watcher.
func (w *Watcher) Stop() error {
	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
	return w.fsWatcher.Close()
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case ev, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if ev.Name != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			w.mu.Lock()
			w.lastMod = time.Now()
			w.dirty = true
			w.mu.Unlock()

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
			}
		}
	}
}

func (w *Watcher) debounceLoop() {
	defer w.wg.Done()

	tick := w.interval / 4
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return

		case now := <-ticker.C:
			w.mu.Lock()
			ready := w.dirty && now.Sub(w.lastMod) >= w.interval
			if ready {
				w.dirty = false
			}
			w.mu.Unlock()

			if !ready {
				continue
			}

			info, err := os.Stat(w.path)
			if err != nil {
				select {
				case w.errors <- err:
				default:
				}
				continue
			}

			select {
			case w.events <- Event{Path: w.path, Size: info.Size(), Timestamp: now}:
			default:
			}
		}
	}
}
