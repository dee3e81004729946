package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// schemaWatcher reports changes to a single file. The parent directory is
// watched because editors often save by writing a temp file and renaming
// it over the original.
type schemaWatcher struct {
	w        *fsnotify.Watcher
	path     string
	debounce time.Duration
	logger   *slog.Logger
}

func newSchemaWatcher(path string, debounce time.Duration, logger *slog.Logger) (*schemaWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to start file watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	return &schemaWatcher{
		w:        w,
		path:     filepath.Clean(path),
		debounce: debounce,
		logger:   logger,
	}, nil
}

// Run calls fn once per burst of changes to the file until ctx is done.
func (sw *schemaWatcher) Run(ctx context.Context, fn func()) error {
	pending := time.NewTimer(sw.debounce)
	pending.Stop()
	defer pending.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-sw.w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != sw.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.logger.Debug("schema_changed", "path", ev.Name, "op", ev.Op.String())
			pending.Reset(sw.debounce)
		case err, ok := <-sw.w.Errors:
			if !ok {
				return nil
			}
			sw.logger.Warn("watch_error", "error", err)
		case <-pending.C:
			fn()
		}
	}
}

func (sw *schemaWatcher) Close() error {
	return sw.w.Close()
}
