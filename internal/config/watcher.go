package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Watcher reloads the endpoint config whenever the env file changes. Values
// from an edited file override the process environment for the keys it sets.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	holder   *Holder
	logger   *zap.Logger
	onReload func(EndpointConfig)
}

// NewWatcher watches the directory holding path, since editors often replace
// the file instead of writing it in place
func NewWatcher(path string, holder *Holder, logger *zap.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve env file path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		watcher: w,
		path:    abs,
		holder:  holder,
		logger:  logger,
	}, nil
}

// OnReload registers a callback invoked after every successful reload
func (w *Watcher) OnReload(fn func(EndpointConfig)) {
	w.onReload = fn
}

// Run blocks until ctx is cancelled or the watcher is closed
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Env file watcher error", zap.Error(err))
		}
	}
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload() {
	if err := godotenv.Overload(w.path); err != nil {
		w.logger.Warn("Failed to read changed env file", zap.String("file", w.path), zap.Error(err))
		return
	}
	cfg := w.holder.Reload()
	w.logger.Info("Endpoint configuration reloaded", zap.String("file", w.path))
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
