package capability

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ReloadFunc is notified after every triggered reload
type ReloadFunc func(stats ReloadStats, err error)

// Watcher reloads a registry when units in its discovery source change
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	onReload ReloadFunc
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

// NewWatcher starts watching the registry's discovery directory
func NewWatcher(registry *Registry, logger zerolog.Logger, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(registry.Dir()); err != nil {
		fsw.Close()
		return nil, err
	}

	return &Watcher{
		registry: registry,
		watcher:  fsw,
		logger:   logger.With().Str("component", "registry-watcher").Logger(),
		onReload: onReload,
		debounce: 250 * time.Millisecond,
	}, nil
}

// Run processes file system events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info().Str("dir", w.registry.Dir()).Msg("Watching discovery directory")

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, w.registry.suffix) {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.logger.Debug().
					Str("file", filepath.Base(event.Name)).
					Str("op", event.Op.String()).
					Msg("Unit change detected")
				w.scheduleReload()
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Msg("Discovery watcher error")

		case <-ctx.Done():
			w.mu.Lock()
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
			return nil
		}
	}
}

// scheduleReload debounces bursts of events into one reload
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		stats, err := w.registry.Reload()
		if err != nil {
			w.logger.Error().Err(err).Msg("Reload after unit change failed")
		}
		if w.onReload != nil {
			w.onReload(stats, err)
		}
	})
}
