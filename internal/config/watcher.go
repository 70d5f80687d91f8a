package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ZebulonRouseFrantzich/toolkeeper/internal/logging"
)

// DefaultDebounce coalesces the burst of events an editor produces on save.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a Store's file whenever it changes on disk.
//
// The parent directory is watched rather than the file, so editors that save
// by renaming a new file over the old one are noticed.
type Watcher struct {
	store  *Store
	fsw    *fsnotify.Watcher
	name   string
	delay  time.Duration
	logger logging.Logger
}

// NewWatcher starts watching the directory of store's file. The directory
// is created when missing.
func NewWatcher(store *Store, delay time.Duration) (*Watcher, error) {
	if delay <= 0 {
		delay = DefaultDebounce
	}

	dir := filepath.Dir(store.Path())
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	return &Watcher{
		store:  store,
		fsw:    fsw,
		name:   filepath.Base(store.Path()),
		delay:  delay,
		logger: store.logger,
	}, nil
}

// Run calls onChange with every successfully reloaded config until ctx is
// done. Configs that fail to parse are logged and skipped. Run closes the
// watcher before returning.
func (w *Watcher) Run(ctx context.Context, onChange func(*Config)) error {
	defer w.fsw.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != w.name {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)

		case <-fire:
			fire = nil
			cfg, err := w.store.Load(ctx)
			if err != nil {
				w.logger.Warn("config reload failed", "path", w.store.Path(), "error", err)
				continue
			}
			w.logger.Info("config reloaded", "path", w.store.Path())
			onChange(cfg)
		}
	}
}
