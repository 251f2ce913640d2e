package hotreload

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileEvent is the slimmed-down change notification handed to the reload
// callback. Removed is set when the watched file disappeared, which callers
// treat differently from a content change.
type FileEvent struct {
	Path    string
	Removed bool
}

// FileWatcher watches profile files for changes
type FileWatcher struct {
	watcher      *fsnotify.Watcher
	logger       *zap.Logger
	debouncer    *Debouncer
	watchedPaths map[string]bool
	mu           sync.RWMutex
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewFileWatcher creates a new file watcher
func NewFileWatcher(logger *zap.Logger, debounceDelay time.Duration) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &FileWatcher{
		watcher:      watcher,
		logger:       logger,
		debouncer:    NewDebouncer(debounceDelay),
		watchedPaths: make(map[string]bool),
		ctx:          ctx,
		cancel:       cancel,
	}, nil
}

// AddPath adds a file or directory to watch
func (fw *FileWatcher) AddPath(path string) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	if fw.watchedPaths[absPath] {
		return nil
	}

	if err := fw.watcher.Add(absPath); err != nil {
		return err
	}

	fw.watchedPaths[absPath] = true
	fw.logger.Debug("Added path to watcher", zap.String("path", absPath))

	return nil
}

// Start starts the file watcher with a callback function
func (fw *FileWatcher) Start(callback func(FileEvent)) error {
	go fw.watchLoop(callback)
	fw.logger.Info("File watcher started", zap.Int("watched_paths", len(fw.watchedPaths)))
	return nil
}

// Stop stops the file watcher
func (fw *FileWatcher) Stop() error {
	fw.cancel()

	if err := fw.watcher.Close(); err != nil {
		fw.logger.Error("Error closing file watcher", zap.Error(err))
		return err
	}

	fw.debouncer.Stop()
	fw.logger.Info("File watcher stopped")
	return nil
}

// watchLoop runs the main event processing loop
func (fw *FileWatcher) watchLoop(callback func(FileEvent)) {
	for {
		select {
		case <-fw.ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleEvent(event, callback)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// handleEvent processes a single file system event
func (fw *FileWatcher) handleEvent(event fsnotify.Event, callback func(FileEvent)) {
	if !fw.isRelevantFile(event.Name) {
		return
	}

	fileEvent := FileEvent{
		Path:    event.Name,
		Removed: event.Op&fsnotify.Remove != 0,
	}

	fw.logger.Debug("File event detected",
		zap.String("path", event.Name),
		zap.String("op", event.Op.String()),
	)

	// Debounce rapid successive events per path
	fw.debouncer.Debounce(event.Name, func() {
		callback(fileEvent)
	})
}

// isRelevantFile checks if the file can hold profiles
func (fw *FileWatcher) isRelevantFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

// Debouncer helps prevent rapid successive events
type Debouncer struct {
	delay   time.Duration
	timers  map[string]*time.Timer
	mu      sync.Mutex
	stopped bool
}

// NewDebouncer creates a new debouncer
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		timers: make(map[string]*time.Timer),
	}
}

// Debounce debounces a function call for a specific key
func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, exists := d.timers[key]; exists {
		timer.Stop()
	}

	d.timers[key] = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		delete(d.timers, key)
		stopped := d.stopped
		d.mu.Unlock()

		if !stopped {
			fn()
		}
	})
}

// Stop stops the debouncer and cancels all pending timers
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true

	for key, timer := range d.timers {
		timer.Stop()
		delete(d.timers, key)
	}
}
