package config

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// Flags answers feature-flag queries for the engine. The snapshot can be
// swapped atomically, either programmatically or by watching a config file.
type Flags struct {
	mu       sync.RWMutex
	snapshot FlagsConfig

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFlags creates a flag store seeded from the given config snapshot.
func NewFlags(cfg FlagsConfig) *Flags {
	return &Flags{snapshot: cfg}
}

// Update replaces the current snapshot.
func (f *Flags) Update(cfg FlagsConfig) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshot = cfg
}

// ValidationEnabled reports whether validation runs at all.
func (f *Flags) ValidationEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot.ValidationEnabled
}

// PersonaTypeEnabled reports whether validation runs for the persona type.
func (f *Flags) PersonaTypeEnabled(pt models.PersonaType) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, disabled := range f.snapshot.DisabledPersonaTypes {
		if disabled == string(pt) {
			return false
		}
	}
	return true
}

// CategoryEnabled reports whether rules of the category should run.
func (f *Flags) CategoryEnabled(c models.RuleCategory) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, disabled := range f.snapshot.DisabledCategories {
		if disabled == string(c) {
			return false
		}
	}
	return true
}

// FallbackEnabled reports whether recovery paths may run.
func (f *Flags) FallbackEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot.FallbackEnabled
}

// MetricsEnabled reports whether per-call metrics are collected.
func (f *Flags) MetricsEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot.MetricsEnabled
}

// DebugEnabled reports whether step tracing is on.
func (f *Flags) DebugEnabled() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.snapshot.DebugEnabled
}

// Watch re-reads flags from the config file whenever it changes. Calling
// Watch twice is a no-op; Close stops the watcher.
func (f *Flags) Watch(configPath string) error {
	f.mu.Lock()
	if f.watcher != nil {
		f.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		f.mu.Unlock()
		return err
	}

	// Watch the directory rather than the file: editors replace files on
	// save, which drops a direct file watch.
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		watcher.Close()
		f.mu.Unlock()
		return err
	}

	f.watcher = watcher
	f.done = make(chan struct{})
	f.mu.Unlock()

	go f.watchLoop(configPath)
	return nil
}

// watchLoop applies flag updates from config file writes.
func (f *Flags) watchLoop(configPath string) {
	for {
		select {
		case <-f.done:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := LoadFromPath(configPath)
			if err != nil {
				continue
			}
			f.Update(cfg.Flags)
		case <-f.watcher.Errors:
			// Keep watching.
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (f *Flags) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.watcher == nil {
		return
	}
	close(f.done)
	f.watcher.Close()
	f.watcher = nil
}
