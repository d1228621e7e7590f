package registry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/veritas/pkg/models"
)

// Loader reads template definitions from a directory of YAML files and keeps
// the registry in sync, optionally watching for file changes.
type Loader struct {
	registry *Registry
	dir      string
	log      *zap.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
	// fileIDs maps file path to the template ID it last contributed, so a
	// rewrite can replace the old registration.
	fileIDs map[string]string
}

// NewLoader creates a loader for the given template directory.
func NewLoader(r *Registry, dir string, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{
		registry: r,
		dir:      dir,
		log:      log.Named("loader"),
		fileIDs:  make(map[string]string),
	}
}

// LoadDir loads every *.yaml / *.yml file in the directory. Files that fail
// to parse or validate are skipped with a logged error; a bad file never
// blocks the rest.
func (l *Loader) LoadDir() error {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return fmt.Errorf("read template directory: %w", err)
	}

	var loaded int
	for _, entry := range entries {
		if entry.IsDir() || !isYAMLFile(entry.Name()) {
			continue
		}
		path := filepath.Join(l.dir, entry.Name())
		if err := l.loadFile(path); err != nil {
			l.log.Error("skipping template file", zap.String("path", path), zap.Error(err))
			continue
		}
		loaded++
	}

	l.log.Info("templates loaded", zap.String("dir", l.dir), zap.Int("count", loaded))
	return nil
}

// loadFile parses one template file and registers or updates it.
func (l *Loader) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read template file: %w", err)
	}

	var t models.ValidationTemplate
	if err := yaml.Unmarshal(data, &t); err != nil {
		return fmt.Errorf("parse template yaml: %w", err)
	}

	err = l.registry.Register(&t)
	if errors.Is(err, ErrDuplicateTemplate) {
		err = l.registry.Update(&t)
	}
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.fileIDs[path] = t.ID
	l.mu.Unlock()
	return nil
}

// Watch hot-reloads template files on change and unregisters templates whose
// files are removed. Calling Watch twice is a no-op.
func (l *Loader) Watch() error {
	l.mu.Lock()
	if l.watcher != nil {
		l.mu.Unlock()
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		l.mu.Unlock()
		return err
	}
	if err := watcher.Add(l.dir); err != nil {
		watcher.Close()
		l.mu.Unlock()
		return err
	}

	l.watcher = watcher
	l.done = make(chan struct{})
	l.mu.Unlock()

	go l.watchLoop()
	return nil
}

// watchLoop processes file events until Close.
func (l *Loader) watchLoop() {
	for {
		select {
		case <-l.done:
			return
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if !isYAMLFile(filepath.Base(event.Name)) {
				continue
			}
			switch {
			case event.Op&(fsnotify.Write|fsnotify.Create) != 0:
				if err := l.loadFile(event.Name); err != nil {
					l.log.Error("reload failed", zap.String("path", event.Name), zap.Error(err))
				}
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				l.mu.Lock()
				id, known := l.fileIDs[event.Name]
				delete(l.fileIDs, event.Name)
				l.mu.Unlock()
				if known {
					if err := l.registry.Delete(id); err != nil {
						l.log.Error("unregister failed", zap.String("id", id), zap.Error(err))
					}
				}
			}
		case <-l.watcher.Errors:
			// Keep watching.
		}
	}
}

// Close stops the watcher. Safe to call multiple times.
func (l *Loader) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.watcher == nil {
		return
	}
	close(l.done)
	l.watcher.Close()
	l.watcher = nil
}

// isYAMLFile reports whether the name has a YAML extension.
func isYAMLFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
