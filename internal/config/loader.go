package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadSettings reads the settings file at path, applies env overrides and validates the result.
// A missing file yields the defaults.
func LoadSettings(path string) (*Settings, error) {
	s, err := decodeSettingsFile(path)
	if err != nil {
		return nil, err
	}
	s.ApplyEnvOverrides()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// SaveSettings writes s as TOML.
func SaveSettings(s *Settings, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(s)
}

func decodeSettingsFile(path string) (*Settings, error) {
	s := DefaultSettings()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), s); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}
	return s, nil
}

// Loader holds the current settings and reloads them when the file changes.
type Loader struct {
	path string
	log  *zap.Logger

	mu       sync.RWMutex
	settings *Settings
	onChange []func(*Settings)

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewLoader creates a loader for the settings file at path.
func NewLoader(path string, log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{path: path, log: log}
}

// Load reads the file and makes it current.
func (l *Loader) Load() (*Settings, error) {
	s, err := LoadSettings(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.settings = s
	l.mu.Unlock()
	return s, nil
}

// Settings returns the current settings.
func (l *Loader) Settings() *Settings {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// OnChange registers a callback invoked after a successful reload. Register before Watch.
func (l *Loader) OnChange(cb func(*Settings)) {
	l.mu.Lock()
	l.onChange = append(l.onChange, cb)
	l.mu.Unlock()
}

// Watch reloads the settings whenever the file is written. Invalid files are logged and ignored.
func (l *Loader) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		w.Close()
		return err
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch directory: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	l.watcher, l.cancel, l.done = w, cancel, make(chan struct{})
	go l.watchLoop(ctx)
	return nil
}

func (l *Loader) watchLoop(ctx context.Context) {
	defer close(l.done)
	var debounce *time.Timer
	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return
		case ev, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != filepath.Base(l.path) || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, l.reload)
		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.log.Warn("settings watcher", zap.Error(err))
		}
	}
}

func (l *Loader) reload() {
	s, err := LoadSettings(l.path)
	if err != nil {
		l.log.Warn("settings reload rejected", zap.String("path", l.path), zap.Error(err))
		return
	}
	l.mu.Lock()
	l.settings = s
	cbs := append([]func(*Settings){}, l.onChange...)
	l.mu.Unlock()
	l.log.Info("settings reloaded", zap.String("path", l.path))
	for _, cb := range cbs {
		cb(s)
	}
}

// Close stops watching.
func (l *Loader) Close() error {
	if l.cancel == nil {
		return nil
	}
	l.cancel()
	err := l.watcher.Close()
	<-l.done
	return err
}
