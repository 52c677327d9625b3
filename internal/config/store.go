// Package config provides the persisted key/value state used by the sync engine and the client
// settings file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Keys of the persisted state.
const (
	KeyAccessToken             = "access_token"
	KeyRefreshToken            = "refresh_token"
	KeyExpiresAt               = "expires_at"
	KeyUser                    = "user"
	KeyDownloadedDecks         = "downloaded_decks"
	KeyLastNotificationCheck   = "last_notification_check"
	KeyUnreadNotificationCount = "unread_notification_count"
)

// Store is the key/value contract the engine depends on. Values are JSON-encoded.
type Store interface {
	// Get decodes the value for key into dst. It reports false if the key is absent or null.
	Get(key string, dst any) (bool, error)
	// Set stores v under key.
	Set(key string, v any) error
	// SetMany stores several keys in one write.
	SetMany(kv map[string]any) error
	// Delete removes keys; absent keys are ignored.
	Delete(keys ...string) error
}

// FileStore keeps the state in a single JSON object on disk. Every read goes to the file so
// changes made by the host between calls are observed.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a store backed by the file at path. The file is created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// DefaultStatePath returns $XDG_CONFIG_HOME/decksync/state.json or ~/.config/decksync/state.json.
func DefaultStatePath() string {
	return filepath.Join(Dir(), "state.json")
}

// Dir returns the client configuration directory.
func Dir() string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, "decksync")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "decksync")
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Get implements Store.
func (s *FileStore) Get(key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return false, err
	}
	raw, ok := m[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("config %s: %w", key, err)
	}
	return true, nil
}

// Set implements Store.
func (s *FileStore) Set(key string, v any) error {
	return s.SetMany(map[string]any{key: v})
}

// SetMany implements Store.
func (s *FileStore) SetMany(kv map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return err
	}
	for k, v := range kv {
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("config %s: %w", k, err)
		}
		m[k] = b
	}
	return s.write(m)
}

// Delete implements Store.
func (s *FileStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.read()
	if err != nil {
		return err
	}
	for _, k := range keys {
		delete(m, k)
	}
	return s.write(m)
}

func (s *FileStore) read() (map[string]json.RawMessage, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]json.RawMessage{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return m, nil
}

// write replaces the file atomically.
func (s *FileStore) write(m map[string]json.RawMessage) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*.json")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

// MemoryStore is an in-process Store, used by tests and short-lived hosts.
type MemoryStore struct {
	mu sync.Mutex
	m  map[string]json.RawMessage
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: map[string]json.RawMessage{}}
}

// Get implements Store.
func (s *MemoryStore) Get(key string, dst any) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.m[key]
	if !ok || isNull(raw) {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

// Set implements Store.
func (s *MemoryStore) Set(key string, v any) error {
	return s.SetMany(map[string]any{key: v})
}

// SetMany implements Store.
func (s *MemoryStore) SetMany(kv map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range kv {
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		s.m[k] = b
	}
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.m, k)
	}
	return nil
}

// SetRaw stores a raw JSON value, bypassing encoding.
func (s *MemoryStore) SetRaw(key, raw string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = json.RawMessage(raw)
}
