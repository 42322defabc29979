package policy

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// FileSource loads policy definitions from YAML files on disk and can
// watch them for changes, reloading the store on edit.
type FileSource struct {
	path   string
	logger *slog.Logger

	// onReload, when set, runs after every successful watch reload with
	// the freshly applied policy set.
	onReload func([]*Policy)
}

// policyFile is the on-disk document shape. A file may hold one policy
// or a list.
type policyFile struct {
	Policies []*Policy `yaml:"policies"`
}

// NewFileSource creates a file-based policy source. The path can be a
// single file or a directory of .yaml/.yml files.
func NewFileSource(path string, logger *slog.Logger) *FileSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSource{
		path:   path,
		logger: logger.With("component", "policy.source"),
	}
}

// SetOnReload registers a hook that runs after every successful watch
// reload. Must be called before Watch.
func (s *FileSource) SetOnReload(fn func([]*Policy)) {
	s.onReload = fn
}

// Load reads all policy definitions from the configured path.
func (s *FileSource) Load() ([]*Policy, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat path %q: %w", s.path, err)
	}

	var policies []*Policy
	if info.IsDir() {
		err = filepath.Walk(s.path, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			ext := filepath.Ext(path)
			if ext != ".yaml" && ext != ".yml" {
				return nil
			}
			loaded, err := s.loadFile(path)
			if err != nil {
				s.logger.Warn("failed to load policy file, skipping",
					"path", path,
					"error", err,
				)
				return nil
			}
			policies = append(policies, loaded...)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %q: %w", s.path, err)
		}
	} else {
		policies, err = s.loadFile(s.path)
		if err != nil {
			return nil, err
		}
	}

	s.logger.Info("loaded policies from source",
		"path", s.path,
		"policy_count", len(policies),
	)
	return policies, nil
}

// loadFile parses a single policy file.
func (s *FileSource) loadFile(path string) ([]*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %q: %w", path, err)
	}

	var doc policyFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}
	if len(doc.Policies) > 0 {
		return doc.Policies, nil
	}

	// Fall back to a single top-level policy document.
	var single Policy
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %q: %w", path, err)
	}
	if single.ID == "" {
		return nil, fmt.Errorf("policy file %q contains no policies", path)
	}
	return []*Policy{&single}, nil
}

// Watch watches the source path and reloads the store whenever a policy
// file changes. Events are debounced so a burst of writes triggers a
// single reload. Blocks until the context is cancelled.
//
// Reload failures are logged and the previous policy set stays live; a
// broken edit never clears running policies.
func (s *FileSource) Watch(ctx context.Context, store *Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer watcher.Close()

	watchPath := s.path
	if info, err := os.Stat(s.path); err == nil && !info.IsDir() {
		// Watch the parent directory so editor rename-and-replace
		// saves are still observed.
		watchPath = filepath.Dir(s.path)
	}
	if err := watcher.Add(watchPath); err != nil {
		return fmt.Errorf("failed to watch path %q: %w", watchPath, err)
	}

	s.logger.Info("policy watcher started", "path", s.path)

	const debounce = 100 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("policy watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			ext := filepath.Ext(event.Name)
			if ext != ".yaml" && ext != ".yml" {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			s.reload(store)

		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			s.logger.Warn("policy watcher error", "error", err)
		}
	}
}

func (s *FileSource) reload(store *Store) {
	policies, err := s.Load()
	if err != nil {
		s.logger.Error("policy reload failed, keeping previous set", "error", err)
		return
	}
	if err := store.Replace(policies); err != nil {
		s.logger.Error("policy reload rejected, keeping previous set", "error", err)
		return
	}
	s.logger.Info("policies reloaded", "policy_count", len(policies))
	if s.onReload != nil {
		s.onReload(policies)
	}
}
