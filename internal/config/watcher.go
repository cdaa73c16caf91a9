package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"mastershell/internal/event"
	"mastershell/internal/logging"
)

const watchDebounce = 250 * time.Millisecond

// Watcher reports on-disk changes to the launch configuration. The running
// Registry stays immutable; a change only produces a restart-required notice.
type Watcher struct {
	path    string
	watcher *fsnotify.Watcher
	bus     *event.Bus[event.ConfigEvent]
	logger  *logging.Logger

	mu      sync.Mutex
	pending *time.Timer
	lastOp  string
	closed  bool

	done chan struct{}
}

// Watch observes the configuration file at path. Editors typically replace
// files by rename, so the parent directory is watched and events are filtered
// to the config path.
func Watch(path string, bus *event.Bus[event.ConfigEvent], logger *logging.Logger) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		_ = fsWatcher.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}

	watcher := &Watcher{
		path:    absPath,
		watcher: fsWatcher,
		bus:     bus,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go watcher.run()
	return watcher, nil
}

func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.pending != nil {
		w.pending.Stop()
		w.pending = nil
	}
	w.mu.Unlock()

	err := w.watcher.Close()
	<-w.done
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case fsEvent, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(fsEvent)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("config watch error", map[string]string{
					"error": err.Error(),
				})
			}
		}
	}
}

func (w *Watcher) handle(fsEvent fsnotify.Event) {
	if filepath.Clean(fsEvent.Name) != w.path {
		return
	}
	if !fsEvent.Op.Has(fsnotify.Write) && !fsEvent.Op.Has(fsnotify.Create) && !fsEvent.Op.Has(fsnotify.Rename) && !fsEvent.Op.Has(fsnotify.Remove) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	w.lastOp = fsEvent.Op.String()
	// Editors fire bursts of writes; collapse them into one notice.
	if w.pending != nil {
		w.pending.Reset(watchDebounce)
		return
	}
	w.pending = time.AfterFunc(watchDebounce, w.flush)
}

func (w *Watcher) flush() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	op := w.lastOp
	w.pending = nil
	w.mu.Unlock()

	if w.logger != nil {
		w.logger.Warn("launch configuration changed on disk; restart to apply", map[string]string{
			"path": w.path,
			"op":   op,
		})
	}
	if w.bus != nil {
		w.bus.Publish(event.NewConfigEvent(w.path, op))
	}
}
