package mapping

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounceInterval is the quiet period after the last file event
// before a reload is triggered. Editors and config-management tools often
// produce several events per save.
const DefaultDebounceInterval = 500 * time.Millisecond

// WatcherConfig holds configuration for the mapping file watcher.
type WatcherConfig struct {
	// Path is the mapping file to watch
	Path string

	// DebounceInterval overrides DefaultDebounceInterval when positive
	DebounceInterval time.Duration

	// OnReload is called after each reload attempt with its outcome.
	// Optional.
	OnReload func(err error)

	// Logger for watcher events (optional)
	Logger *slog.Logger
}

// Watcher reloads the mapping store when the mapping file changes, so an
// operator can disable an identity without restarting the server. The parent
// directory is watched rather than the file itself because atomic writes
// (rename over the target) replace the inode fsnotify is attached to.
type Watcher struct {
	mu      sync.Mutex
	store   *Store
	config  WatcherConfig
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	running bool

	debounceMu    sync.Mutex
	debounceTimer *time.Timer

	logger *slog.Logger
}

// NewWatcher creates a watcher that reloads store from config.Path on change
func NewWatcher(store *Store, config WatcherConfig) *Watcher {
	if config.DebounceInterval <= 0 {
		config.DebounceInterval = DefaultDebounceInterval
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:  store,
		config: config,
		logger: logger.With("component", "mapping_watcher"),
	}
}

// Start begins watching for mapping file changes
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(w.config.Path)
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}

	w.watcher = watcher
	w.stopCh = make(chan struct{})
	w.running = true

	// Capture channels under the lock so Stop cannot race processEvents
	eventsCh := watcher.Events
	errorsCh := watcher.Errors
	go w.processEvents(eventsCh, errorsCh)

	w.logger.Info("watching mapping file", "path", w.config.Path)
	return nil
}

func (w *Watcher) processEvents(eventsCh <-chan fsnotify.Event, errorsCh <-chan error) {
	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-eventsCh:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-errorsCh:
			if !ok {
				return
			}
			w.logger.Error("mapping watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != filepath.Base(w.config.Path) {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug("mapping file changed", "op", event.Op.String())
	w.triggerReloadDebounced()
}

// triggerReloadDebounced schedules a reload after the debounce interval,
// resetting the timer on every new event.
func (w *Watcher) triggerReloadDebounced() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}

	w.debounceTimer = time.AfterFunc(w.config.DebounceInterval, func() {
		w.mu.Lock()
		running := w.running
		w.mu.Unlock()
		if !running {
			return
		}

		err := w.store.LoadFile(w.config.Path)
		if err != nil {
			// Keep serving the previous table; a broken edit must not
			// take down existing mappings.
			w.logger.Error("mapping reload failed, keeping previous table", "error", err)
		} else {
			w.logger.Info("mapping file reloaded", "entries", w.store.Size())
		}
		if w.config.OnReload != nil {
			w.config.OnReload(err)
		}
	})
}

// Stop stops the watcher. Safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.running {
		return nil
	}
	w.running = false
	close(w.stopCh)

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
		w.debounceTimer = nil
	}
	w.debounceMu.Unlock()

	if w.watcher != nil {
		if err := w.watcher.Close(); err != nil {
			w.logger.Warn("error closing fsnotify watcher", "error", err)
		}
		w.watcher = nil
	}

	w.logger.Info("mapping watcher stopped")
	return nil
}

// IsRunning reports whether the watcher is active
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}
