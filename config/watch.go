package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads the config file when it changes. The directory is
// watched rather than the file so editors that replace the file by rename
// are seen too.
type Watcher struct {
	path     string
	cooldown time.Duration
	watcher  *fsnotify.Watcher
	log      *zap.Logger
}

func NewWatcher(path string, log *zap.Logger) (*Watcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watch config dir: %w", err)
	}
	return &Watcher{path: abs, cooldown: 100 * time.Millisecond, watcher: w, log: log}, nil
}

// Run calls onUpdate with every valid reload until ctx ends. Invalid files
// are logged and skipped; the previous config stays in effect.
func (w *Watcher) Run(ctx context.Context, onUpdate func(Config)) error {
	defer w.watcher.Close()

	// bursts of events from one save collapse into a single reload
	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			pending = time.After(w.cooldown)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("config watcher error", zap.Error(err))
		case <-pending:
			pending = nil
			cfg, err := Load(w.path)
			if err != nil {
				w.log.Warn("config reload rejected", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.log.Info("config reloaded", zap.String("path", w.path))
			if onUpdate != nil {
				onUpdate(cfg)
			}
		}
	}
}
