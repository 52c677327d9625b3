// Package model defines domain entities shared by the sync engine, the local collection and the
// reference server.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// AuthToken is the access/refresh pair held by the client session.
type AuthToken struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // epoch seconds; always set when AccessToken is set
}

// Empty reports whether no access token is present.
func (t AuthToken) Empty() bool { return t.AccessToken == "" }

// TrackedDeck is a remote deck that has been downloaded and imported locally.
type TrackedDeck struct {
	DeckID       string    // remote deck id, unique key
	Version      string    // version that was imported
	LocalRef     int64     // id of the local material; 0 when the stored value was not coercible
	DownloadedAt time.Time // when the deck was (re)imported
}

// ReviewEvent is one study repetition read from the local review log.
type ReviewEvent struct {
	CardID      int64
	TimestampMs int64
	Ease        int
	Type        ReviewType
	DurationMs  int64
}

// ReviewType mirrors the review log entry type.
type ReviewType int

const (
	ReviewNew ReviewType = iota
	ReviewLearning
	ReviewReview
	ReviewRelearning
)

// ReviewAggregate is the raw windowed aggregate returned by a review log query.
type ReviewAggregate struct {
	Count           int64
	CorrectCount    int64 // ease >= 2
	NewCount        int64 // type == new
	AvgEase         float64
	TotalDurationMs int64
	LastEventMs     int64 // 0 when Count == 0
}

// ReviewStats is the derived per-deck review summary.
type ReviewStats struct {
	TotalReviews     int64
	NewCards         int64
	AverageEase      float64
	StudyTimeMinutes float64
	LastStudyDate    *time.Time
}

// CardCounts groups the cards of a material by scheduling state.
type CardCounts struct {
	Total     int
	New       int
	Learning  int
	Review    int
	Suspended int
}

// ProgressSnapshot is the per-deck analytics payload pushed on every sync cycle.
type ProgressSnapshot struct {
	DeckID            string
	TotalCards        int
	TotalCardsStudied int64
	NewCardsStudied   int64
	CardsMastered     int
	AverageEase       float64
	StudyTimeMinutes  float64
	LastStudyDate     *time.Time
	RetentionRate     float64
	CurrentStreakDays int
	SyncedAt          time.Time
}

// RemoteDeckDescriptor is the canonical form of a deck entry from the catalog or update check.
type RemoteDeckDescriptor struct {
	DeckID        string
	Title         string
	Version       string
	CardCount     int
	SyncedVersion string // version the server believes the user has, if reported
	HasUpdate     bool   // server-side hint, informational only
}

// UpdateState is the reconciliation outcome for one deck.
type UpdateState int

const (
	NotDownloaded UpdateState = iota
	UpToDate
	UpdateAvailable
)

func (s UpdateState) String() string {
	switch s {
	case UpToDate:
		return "up_to_date"
	case UpdateAvailable:
		return "update_available"
	default:
		return "not_downloaded"
	}
}

// UpdateStatus is derived, never persisted.
type UpdateStatus struct {
	State         UpdateState
	LocalVersion  string // set for UpdateAvailable and UpToDate
	RemoteVersion string
}

// DownloadGrant is a pre-signed download issued for one deck version.
type DownloadGrant struct {
	DeckID      string
	Title       string
	Version     string
	DownloadURL string
	ExpiresAt   int64
}

// DownloadFailure reports a deck the server refused to grant, or that failed locally.
type DownloadFailure struct {
	DeckID string
	Title  string
	Error  string
}

// ChangelogVersion is one released version of a deck.
type ChangelogVersion struct {
	Version   string
	Notes     string
	CardCount int
	IsCurrent bool
	IsSynced  bool
	CreatedAt time.Time
}

// Changelog lists released versions of a deck, newest first.
type Changelog struct {
	DeckID            string
	Title             string
	CurrentVersion    string
	UserSyncedVersion string
	IsUpToDate        bool
	Versions          []ChangelogVersion
}

// Notification is a message from the remote authority.
type Notification struct {
	ID        string
	Type      string // deck_update | announcement
	Title     string
	Message   string
	CreatedAt time.Time
	Read      bool
	Metadata  map[string]any
}

// NotificationPage is one check-notifications result.
type NotificationPage struct {
	Notifications []Notification
	UnreadCount   int
	TotalCount    int
}

// User represents an account stored on the server. Passwords are stored as argon2id PHC strings.
type User struct {
	ID                  uuid.UUID // PK
	Email               string    // unique
	DisplayName         string
	PwdHash             string
	ProgressSyncEnabled bool
	CreatedAt           time.Time
}

// Deck is a catalog entry on the server.
type Deck struct {
	ID             uuid.UUID
	Title          string
	Description    string
	CurrentVersion string
	CardCount      int
	UpdatedAt      time.Time
}

// OwnedDeck is a catalog deck the user has access to, with the version last granted to them.
type OwnedDeck struct {
	Deck
	SyncedVersion string // empty if never downloaded
}

// DeckVersion is one released package of a deck.
type DeckVersion struct {
	DeckID    uuid.UUID
	Version   string
	Notes     string
	CardCount int
	FileKey   string // object name under the server's package directory
	CreatedAt time.Time
}

// RefreshToken is a server-side record of an issued refresh token. Only the hash is stored.
type RefreshToken struct {
	Hash      []byte
	UserID    uuid.UUID
	ExpiresAt time.Time
}

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time // access token expiry
}
