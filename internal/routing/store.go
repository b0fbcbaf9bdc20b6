package routing

import (
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"classroom-backend/internal/provider"
	"classroom-backend/internal/shared/telemetry"
)

const debounceWindow = time.Second

// ConfigStore holds the current routing table and hot-swaps it when the
// backing file changes. Reads never block and never observe a partial config.
type ConfigStore struct {
	registry *provider.Registry
	current  atomic.Value // Config

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	debounce *time.Timer
	done     chan struct{}
}

// NewConfigStore constructs a store seeded with the compiled-in defaults.
func NewConfigStore(reg *provider.Registry) *ConfigStore {
	s := &ConfigStore{registry: reg}
	s.current.Store(DefaultConfig())
	return s
}

// Load reads the routing document at path and publishes it. A missing file,
// parse error, or validation error keeps the current value and logs a warning.
func (s *ConfigStore) Load(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		telemetry.Warn("routing.load_failed", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return s.Current()
	}
	cfg, err := ParseConfig(data, s.registry)
	if err != nil {
		telemetry.Warn("routing.invalid_config", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return s.Current()
	}
	s.current.Store(cfg)
	telemetry.Info("routing.loaded", map[string]any{
		"path":    path,
		"version": cfg.Version,
	})
	return cfg
}

// Current returns the last good routing table.
func (s *ConfigStore) Current() Config {
	return s.current.Load().(Config)
}

// Watch registers a filesystem watch on path and reloads on change, debouncing
// bursts of events into a single reload attempt. A nonexistent path is a no-op.
func (s *ConfigStore) Watch(path string) error {
	if _, err := os.Stat(path); err != nil {
		telemetry.Warn("routing.watch_skipped", map[string]any{
			"path":  path,
			"error": err.Error(),
		})
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = watcher
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				s.scheduleReload(path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				telemetry.Warn("routing.watch_error", map[string]any{"error": err.Error()})
			case <-done:
				return
			}
		}
	}()
	return nil
}

func (s *ConfigStore) scheduleReload(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
	}
	s.debounce = time.AfterFunc(debounceWindow, func() {
		s.Load(path)
	})
}

// Close tears down the watcher and any pending debounce timer.
func (s *ConfigStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.debounce != nil {
		s.debounce.Stop()
		s.debounce = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}
