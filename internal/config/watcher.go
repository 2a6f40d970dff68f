package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/dooshek/gamecoach/internal/logger"
	"github.com/dooshek/gamecoach/internal/types"
	"github.com/fsnotify/fsnotify"
)

const defaultDebounce = 200 * time.Millisecond

// Loader reads the current settings file. external is false when the file
// holds a document the app saved itself.
type Loader interface {
	LoadExternal(ctx context.Context) (patch types.SettingsPatch, external bool, err error)
}

// Watcher reloads the settings file when it is edited outside the app
// and hands the parsed patch to onChange.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	loader   Loader
	onChange func(types.SettingsPatch)
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher watches the directory holding path. The directory is watched
// rather than the file because saves replace the file by rename.
func NewWatcher(path string, loader Loader, onChange func(types.SettingsPatch)) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, err
	}

	return &Watcher{
		watcher:  w,
		path:     filepath.Clean(path),
		loader:   loader,
		onChange: onChange,
		debounce: defaultDebounce,
	}, nil
}

// SetDebounce overrides the quiet period before a reload
func (w *Watcher) SetDebounce(d time.Duration) {
	w.mu.Lock()
	w.debounce = d
	w.mu.Unlock()
}

// Start blocks until ctx is cancelled or the watcher is closed
func (w *Watcher) Start(ctx context.Context) {
	defer w.stopTimer()
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				logger.Debugf("Settings file event: %v", event.Op)
				w.schedule(ctx)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("Settings watcher error", err)
		case <-ctx.Done():
			w.watcher.Close()
			return
		}
	}
}

func (w *Watcher) schedule(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() { w.reload(ctx) })
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	patch, external, err := w.loader.LoadExternal(ctx)
	if err != nil {
		logger.Warnf("Ignoring unreadable settings file: %v", err)
		return
	}
	if !external {
		logger.Debug("Settings file holds our own save, not reloading")
		return
	}
	logger.Info("Settings file changed, applying")
	w.onChange(patch)
}

// Close stops the watcher and releases resources
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
