package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of events editors emit on save.
const reloadDebounce = 250 * time.Millisecond

// ReloadFunc re-resolves the full configuration, env and CLI layers included.
type ReloadFunc func() (*Config, error)

// ChangeFunc is called after a successful reload with the old and new config.
type ChangeFunc func(prev, next *Config)

// Watch reloads the configuration whenever the holder's config file changes,
// until ctx is canceled. The parent directory is watched so that editors which
// save by rename are observed. A reload that fails validation is logged and
// the previous config stays in effect.
func Watch(ctx context.Context, holder *Holder, reload ReloadFunc, onChange ChangeFunc, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: creating watcher: %w", err)
	}
	defer watcher.Close()

	path := filepath.Clean(holder.Path())
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("config: watching %s: %w", filepath.Dir(path), err)
	}

	logger.Debug("watching config file", slog.String("path", path))

	timer := time.NewTimer(reloadDebounce)
	timer.Stop()

	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path {
				continue
			}

			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				timer.Reset(reloadDebounce)
			}

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", werr.Error()))

		case <-timer.C:
			applyReload(holder, reload, onChange, logger)
		}
	}
}

func applyReload(holder *Holder, reload ReloadFunc, onChange ChangeFunc, logger *slog.Logger) {
	next, err := reload()
	if err != nil {
		logger.Warn("config reload failed, keeping previous config",
			slog.String("path", holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	prev := holder.Update(next)

	logger.Info("config reloaded", slog.String("path", holder.Path()))

	if onChange != nil {
		onChange(prev, next)
	}
}
