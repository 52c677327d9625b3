// Package convert defines the JSON wire shapes of the remote API and maps them to domain models.
// Client and reference server share these types so both sides agree on field names.
package convert

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// EpochSeconds decodes a JSON number (integer or float) or numeric string as whole epoch seconds.
type EpochSeconds int64

// UnmarshalJSON implements json.Unmarshaler.
func (e *EpochSeconds) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*e = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		b = []byte(s)
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("epoch seconds: invalid value %q", b)
	}
	*e = EpochSeconds(int64(f))
	return nil
}

// Envelope is the common part of every JSON response.
type Envelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// ErrorText returns the error message, falling back to message.
func (e Envelope) ErrorText() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}

// LoginRequest is the body of POST /addon-login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the success body of POST /addon-login.
type LoginResponse struct {
	Envelope
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	ExpiresAt    EpochSeconds    `json:"expires_at"`
	User         json.RawMessage `json:"user"`
}

// RefreshRequest is the body of POST /addon-refresh-token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// RefreshResponse is the success body of POST /addon-refresh-token.
type RefreshResponse struct {
	Envelope
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresAt    EpochSeconds `json:"expires_at"`
}

// UserDTO is the user object returned on login.
type UserDTO struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
}

// DeckDTO is a deck entry as sent by the catalog and update-check endpoints. Several historical
// spellings of the id and version fields are accepted; Descriptor normalizes them.
type DeckDTO struct {
	DeckID         string `json:"deck_id,omitempty"`
	ID             string `json:"id,omitempty"`
	MongoID        string `json:"_id,omitempty"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	Version        string `json:"version,omitempty"`
	CurrentVersion string `json:"current_version,omitempty"`
	SyncedVersion  string `json:"synced_version,omitempty"`
	HasUpdate      bool   `json:"has_update,omitempty"`
	CardCount      int    `json:"card_count"`
}

// CatalogResponse is the success body of GET /addon-get-purchases.
type CatalogResponse struct {
	Envelope
	Decks      []DeckDTO `json:"decks"`
	TotalCount int       `json:"total_count"`
}

// CheckUpdatesResponse is the success body of POST /addon-check-updates.
type CheckUpdatesResponse struct {
	Envelope
	Decks            []DeckDTO `json:"decks"`
	UpdatesAvailable int       `json:"updates_available"`
	TotalDecks       int       `json:"total_decks"`
}

// DownloadRequest is the body of POST /addon-download-deck.
type DownloadRequest struct {
	DeckID  string `json:"deck_id"`
	Version string `json:"version,omitempty"`
}

// DownloadResponse is the success body of POST /addon-download-deck.
type DownloadResponse struct {
	Envelope
	DeckID      string       `json:"deck_id,omitempty"`
	Title       string       `json:"title,omitempty"`
	Version     string       `json:"version"`
	DownloadURL string       `json:"download_url"`
	ExpiresAt   EpochSeconds `json:"expires_at,omitempty"`
}

// BatchDownloadRequest is the body of POST /addon-batch-download.
type BatchDownloadRequest struct {
	DeckIDs []string `json:"deck_ids"`
}

// BatchDownloadItem is one entry of a batch download response.
type BatchDownloadItem struct {
	Success     bool         `json:"success"`
	DeckID      string       `json:"deck_id"`
	Title       string       `json:"title,omitempty"`
	Version     string       `json:"version,omitempty"`
	DownloadURL string       `json:"download_url,omitempty"`
	ExpiresAt   EpochSeconds `json:"expires_at,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// BatchFailure is a deck the server refused within a batch.
type BatchFailure struct {
	DeckID string `json:"deck_id"`
	Title  string `json:"title,omitempty"`
	Error  string `json:"error"`
}

// BatchDownloadResponse is the success body of POST /addon-batch-download.
type BatchDownloadResponse struct {
	Envelope
	Downloads []BatchDownloadItem `json:"downloads"`
	Failed    []BatchFailure      `json:"failed"`
}

// ChangelogRequest is the body of POST /addon-get-changelog.
type ChangelogRequest struct {
	DeckID string `json:"deck_id"`
}

// ChangelogVersionDTO is one version entry of a changelog.
type ChangelogVersionDTO struct {
	Version      string     `json:"version"`
	VersionNotes string     `json:"version_notes"`
	CardCount    int        `json:"card_count"`
	IsCurrent    bool       `json:"is_current"`
	IsSynced     bool       `json:"is_synced"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}

// ChangelogResponse is the success body of POST /addon-get-changelog.
type ChangelogResponse struct {
	Envelope
	DeckID            string                `json:"deck_id"`
	Title             string                `json:"title"`
	CurrentVersion    string                `json:"current_version"`
	UserSyncedVersion string                `json:"user_synced_version"`
	IsUpToDate        bool                  `json:"is_up_to_date"`
	Versions          []ChangelogVersionDTO `json:"versions"`
}

// ProgressDTO is one deck's progress snapshot on the wire.
type ProgressDTO struct {
	DeckID            string     `json:"deck_id"`
	TotalCards        int        `json:"total_cards"`
	TotalCardsStudied int64      `json:"total_cards_studied"`
	NewCardsStudied   int64      `json:"new_cards_studied"`
	CardsMastered     int        `json:"cards_mastered"`
	AverageEase       float64    `json:"average_ease"`
	StudyTimeMinutes  float64    `json:"study_time_minutes"`
	LastStudyDate     *time.Time `json:"last_study_date"`
	RetentionRate     float64    `json:"retention_rate"`
	CurrentStreakDays int        `json:"current_streak_days"`
	SyncedAt          time.Time  `json:"synced_at"`
}

// SyncProgressRequest is the body of POST /addon-sync-progress.
type SyncProgressRequest struct {
	Progress []ProgressDTO `json:"progress"`
}

// SyncProgressResponse is the success body of POST /addon-sync-progress.
type SyncProgressResponse struct {
	Envelope
	SyncedCount int `json:"synced_count"`
}

// NotificationsRequest is the body of POST /addon-check-notifications.
type NotificationsRequest struct {
	MarkAsRead bool `json:"mark_as_read"`
	Limit      int  `json:"limit"`
}

// NotificationDTO is one notification on the wire.
type NotificationDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	CreatedAt time.Time      `json:"created_at"`
	Read      bool           `json:"read"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NotificationsResponse is the success body of POST /addon-check-notifications.
type NotificationsResponse struct {
	Envelope
	Notifications []NotificationDTO `json:"notifications"`
	UnreadCount   int               `json:"unread_count"`
	TotalCount    int               `json:"total_count"`
}
