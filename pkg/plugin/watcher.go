package plugin

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// TriggerWatcher pushes reconcile requests by watching the trigger marker in
// the plugins root, as a push-style companion to polling NeedsReconcile.
type TriggerWatcher struct {
	logger     zerolog.Logger
	watcher    *fsnotify.Watcher
	pluginsDir string
	settle     time.Duration
	onTrigger  func()

	done     chan struct{}
	stopOnce sync.Once

	debounceMu    sync.Mutex
	debounceTimer *time.Timer
}

// TriggerWatcherConfig configures a TriggerWatcher.
type TriggerWatcherConfig struct {
	PluginsDir string
	// Settle is the quiet period collapsing bursts of marker writes into one
	// callback. Defaults to 100ms.
	Settle    time.Duration
	OnTrigger func()
	Logger    zerolog.Logger
}

// NewTriggerWatcher creates a trigger watcher.
func NewTriggerWatcher(cfg TriggerWatcherConfig) (*TriggerWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	if cfg.Settle == 0 {
		cfg.Settle = 100 * time.Millisecond
	}

	return &TriggerWatcher{
		logger:     cfg.Logger.With().Str("component", "trigger-watcher").Logger(),
		watcher:    watcher,
		pluginsDir: cfg.PluginsDir,
		settle:     cfg.Settle,
		onTrigger:  cfg.OnTrigger,
		done:       make(chan struct{}),
	}, nil
}

// Start begins watching the plugins root.
func (w *TriggerWatcher) Start() error {
	if err := w.watcher.Add(w.pluginsDir); err != nil {
		return fmt.Errorf("failed to watch plugins directory: %w", err)
	}

	go w.eventLoop()

	w.logger.Info().Str("dir", w.pluginsDir).Msg("Trigger watcher started")
	return nil
}

// Stop stops the watcher.
func (w *TriggerWatcher) Stop() error {
	w.stopOnce.Do(func() {
		close(w.done)
	})

	w.debounceMu.Lock()
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceMu.Unlock()

	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (w *TriggerWatcher) eventLoop() {
	triggerPath := filepath.Join(w.pluginsDir, TriggerFileName)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != triggerPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Chmod) == 0 {
				continue
			}
			w.debounce()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("Watcher error")

		case <-w.done:
			return
		}
	}
}

func (w *TriggerWatcher) debounce() {
	w.debounceMu.Lock()
	defer w.debounceMu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.settle, func() {
		select {
		case <-w.done:
			return
		default:
		}
		w.logger.Debug().Msg("Trigger marker changed")
		if w.onTrigger != nil {
			w.onTrigger()
		}
	})
}
