package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Settings are the client's user-editable options.
type Settings struct {
	// APIURL is the base URL of the remote authority, without a trailing slash.
	APIURL string `toml:"api_url" json:"api_url" yaml:"api_url"`

	// RequestTimeoutSec bounds every API call except binary downloads.
	RequestTimeoutSec int `toml:"request_timeout_sec" json:"request_timeout_sec" yaml:"request_timeout_sec"`

	// DownloadTimeoutSec bounds the binary file download.
	DownloadTimeoutSec int `toml:"download_timeout_sec" json:"download_timeout_sec" yaml:"download_timeout_sec"`

	// StatePath is the JSON key/value state file.
	StatePath string `toml:"state_path" json:"state_path" yaml:"state_path"`

	// CollectionPath is the local SQLite collection.
	CollectionPath string `toml:"collection_path" json:"collection_path" yaml:"collection_path"`

	// WindowDays is the trailing analytics window.
	WindowDays int `toml:"window_days" json:"window_days" yaml:"window_days"`

	// Timezone names the zone used for streak calendar dates; empty means the system zone.
	Timezone string `toml:"timezone" json:"timezone" yaml:"timezone"`

	AutoSyncEnabled       bool `toml:"auto_sync_enabled" json:"auto_sync_enabled" yaml:"auto_sync_enabled"`
	AutoSyncIntervalHours int  `toml:"auto_sync_interval_hours" json:"auto_sync_interval_hours" yaml:"auto_sync_interval_hours"`

	NotificationIntervalMin int `toml:"notification_interval_min" json:"notification_interval_min" yaml:"notification_interval_min"`

	// StateCacheMs is the TTL of the state read cache; 0 disables caching.
	StateCacheMs int `toml:"state_cache_ms" json:"state_cache_ms" yaml:"state_cache_ms"`
}

// DefaultSettings returns the built-in defaults.
func DefaultSettings() *Settings {
	return &Settings{
		APIURL:                  "http://localhost:8080",
		RequestTimeoutSec:       30,
		DownloadTimeoutSec:      120,
		StatePath:               filepath.Join(Dir(), "state.json"),
		CollectionPath:          filepath.Join(Dir(), "collection.db"),
		WindowDays:              30,
		AutoSyncEnabled:         true,
		AutoSyncIntervalHours:   1,
		NotificationIntervalMin: 15,
		StateCacheMs:            1000,
	}
}

// DefaultSettingsPath returns the settings file location.
func DefaultSettingsPath() string {
	return filepath.Join(Dir(), "settings.toml")
}

// RequestTimeout returns the per-call deadline.
func (s *Settings) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSec) * time.Second
}

// DownloadTimeout returns the binary download deadline.
func (s *Settings) DownloadTimeout() time.Duration {
	return time.Duration(s.DownloadTimeoutSec) * time.Second
}

// AutoSyncInterval returns the daemon cycle period.
func (s *Settings) AutoSyncInterval() time.Duration {
	return time.Duration(s.AutoSyncIntervalHours) * time.Hour
}

// NotificationInterval returns the minimum time between notification checks.
func (s *Settings) NotificationInterval() time.Duration {
	return time.Duration(s.NotificationIntervalMin) * time.Minute
}

// StateCacheTTL returns the state read cache TTL.
func (s *Settings) StateCacheTTL() time.Duration {
	return time.Duration(s.StateCacheMs) * time.Millisecond
}

// Location resolves Timezone.
func (s *Settings) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(s.Timezone)
}

// ApplyEnvOverrides applies DECKSYNC_* environment variables.
func (s *Settings) ApplyEnvOverrides() {
	if v := os.Getenv("DECKSYNC_API_URL"); v != "" {
		s.APIURL = v
	}
	if v := os.Getenv("DECKSYNC_STATE_PATH"); v != "" {
		s.StatePath = v
	}
	if v := os.Getenv("DECKSYNC_COLLECTION_PATH"); v != "" {
		s.CollectionPath = v
	}
	if v := os.Getenv("DECKSYNC_TIMEZONE"); v != "" {
		s.Timezone = v
	}
	if v := os.Getenv("DECKSYNC_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.WindowDays = n
		}
	}
	if v := os.Getenv("DECKSYNC_AUTO_SYNC"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.AutoSyncEnabled = b
		}
	}
}

// Validate checks the settings and normalizes the API URL.
func (s *Settings) Validate() error {
	var errs []error
	s.APIURL = strings.TrimRight(s.APIURL, "/")
	if u, err := url.Parse(s.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("api_url: must be an absolute http(s) URL, got %q", s.APIURL))
	}
	if s.RequestTimeoutSec <= 0 {
		errs = append(errs, errors.New("request_timeout_sec: must be positive"))
	}
	if s.DownloadTimeoutSec <= 0 {
		errs = append(errs, errors.New("download_timeout_sec: must be positive"))
	}
	if s.WindowDays <= 0 {
		errs = append(errs, errors.New("window_days: must be positive"))
	}
	if s.AutoSyncEnabled && s.AutoSyncIntervalHours <= 0 {
		errs = append(errs, errors.New("auto_sync_interval_hours: must be positive when auto sync is enabled"))
	}
	if s.NotificationIntervalMin < 0 || s.StateCacheMs < 0 {
		errs = append(errs, errors.New("notification_interval_min/state_cache_ms: must not be negative"))
	}
	if s.StatePath == "" || s.CollectionPath == "" {
		errs = append(errs, errors.New("state_path/collection_path: must be set"))
	}
	if _, err := s.Location(); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	return errors.Join(errs...)
}
