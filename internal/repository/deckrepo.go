package repository

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/decksync/internal/model"
)

// DeckRepository provides the catalog, released versions and ownership.
type DeckRepository interface {
	// CreateDeck inserts a catalog entry.
	CreateDeck(ctx context.Context, d *model.Deck) error
	// AddVersion records a released version and makes it the deck's current one.
	AddVersion(ctx context.Context, v model.DeckVersion) error
	// Grant gives a user access to a deck. Granting twice is a no-op.
	Grant(ctx context.Context, userID, deckID uuid.UUID) error

	// ListOwned returns the decks a user owns ordered by title.
	ListOwned(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, error)
	// GetOwned returns one owned deck, or errs.ErrNotFound if the user does not own it.
	GetOwned(ctx context.Context, userID, deckID uuid.UUID) (model.OwnedDeck, error)
	// GetVersion returns one released version, or errs.ErrNotFound.
	GetVersion(ctx context.Context, deckID uuid.UUID, version string) (model.DeckVersion, error)
	// ListVersions returns all versions of a deck, newest first.
	ListVersions(ctx context.Context, deckID uuid.UUID) ([]model.DeckVersion, error)
	// Owners returns the ids of users owning a deck.
	Owners(ctx context.Context, deckID uuid.UUID) ([]uuid.UUID, error)
	// MarkSynced records the version last granted to a user.
	MarkSynced(ctx context.Context, userID, deckID uuid.UUID, version string) error
}

// ProgressRepository stores the latest progress snapshot per user and deck.
type ProgressRepository interface {
	// Upsert replaces the stored snapshots and returns how many rows were written.
	Upsert(ctx context.Context, userID uuid.UUID, snaps []model.ProgressSnapshot) (int, error)
	// Get returns the snapshot of one deck, or errs.ErrNotFound.
	Get(ctx context.Context, userID, deckID uuid.UUID) (model.ProgressSnapshot, error)
}

// NotificationRepository stores per-user notifications.
type NotificationRepository interface {
	// Create stores a notification for a user.
	Create(ctx context.Context, userID uuid.UUID, n model.Notification) error
	// List returns up to limit notifications newest first plus the unread and total counts.
	List(ctx context.Context, userID uuid.UUID, limit int) (items []model.Notification, unread, total int, err error)
	// MarkRead flags the given notifications as read.
	MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error
}
