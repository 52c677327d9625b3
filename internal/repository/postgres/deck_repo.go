package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// DeckRepo implements DeckRepository using PostgreSQL.
type DeckRepo struct{ db *DB }

// NewDeckRepo constructs a deck repository.
func NewDeckRepo(db *DB) *DeckRepo { return &DeckRepo{db: db} }

// CreateDeck inserts a catalog entry.
func (r *DeckRepo) CreateDeck(ctx context.Context, d *model.Deck) error {
	const q = `
INSERT INTO decks (id, title, description, current_version, card_count)
VALUES ($1, $2, $3, $4, $5)`
	_, err := r.db.Pool.Exec(ctx, q, d.ID, d.Title, d.Description, d.CurrentVersion, d.CardCount)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// AddVersion inserts the version and promotes it to current in one transaction.
func (r *DeckRepo) AddVersion(ctx context.Context, v model.DeckVersion) (err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO deck_versions (deck_id, version, notes, card_count, file_key)
VALUES ($1, $2, $3, $4, $5)`
	const upd = `UPDATE decks SET current_version=$2, card_count=$3, updated_at=now() WHERE id=$1`

	if _, err = tx.Exec(ctx, ins, v.DeckID, v.Version, v.Notes, v.CardCount, v.FileKey); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("deck %s version %s: %w", v.DeckID, v.Version, errs.ErrAlreadyExists)
		}
		return err
	}
	tag, err := tx.Exec(ctx, upd, v.DeckID, v.Version, v.CardCount)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// Grant records a purchase.
func (r *DeckRepo) Grant(ctx context.Context, userID, deckID uuid.UUID) error {
	const q = `INSERT INTO purchases (user_id, deck_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`
	_, err := r.db.Pool.Exec(ctx, q, userID, deckID)
	return err
}

const ownedCols = `d.id, d.title, d.description, d.current_version, d.card_count, d.updated_at, p.synced_version`

// ListOwned returns the user's decks ordered by title.
func (r *DeckRepo) ListOwned(ctx context.Context, userID uuid.UUID) ([]model.OwnedDeck, error) {
	const q = `
SELECT ` + ownedCols + `
FROM purchases p JOIN decks d ON d.id = p.deck_id
WHERE p.user_id=$1
ORDER BY d.title, d.id`
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.OwnedDeck
	for rows.Next() {
		var d model.OwnedDeck
		if err := rows.Scan(&d.ID, &d.Title, &d.Description, &d.CurrentVersion, &d.CardCount, &d.UpdatedAt, &d.SyncedVersion); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// GetOwned returns one deck if the user owns it.
func (r *DeckRepo) GetOwned(ctx context.Context, userID, deckID uuid.UUID) (model.OwnedDeck, error) {
	const q = `
SELECT ` + ownedCols + `
FROM purchases p JOIN decks d ON d.id = p.deck_id
WHERE p.user_id=$1 AND p.deck_id=$2`
	var d model.OwnedDeck
	err := r.db.Pool.QueryRow(ctx, q, userID, deckID).
		Scan(&d.ID, &d.Title, &d.Description, &d.CurrentVersion, &d.CardCount, &d.UpdatedAt, &d.SyncedVersion)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.OwnedDeck{}, errs.ErrNotFound
	}
	return d, err
}

// GetVersion returns one released version.
func (r *DeckRepo) GetVersion(ctx context.Context, deckID uuid.UUID, version string) (model.DeckVersion, error) {
	const q = `
SELECT deck_id, version, notes, card_count, file_key, created_at
FROM deck_versions WHERE deck_id=$1 AND version=$2`
	var v model.DeckVersion
	err := r.db.Pool.QueryRow(ctx, q, deckID, version).
		Scan(&v.DeckID, &v.Version, &v.Notes, &v.CardCount, &v.FileKey, &v.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.DeckVersion{}, errs.ErrNotFound
	}
	return v, err
}

// ListVersions returns the versions of a deck, newest first.
func (r *DeckRepo) ListVersions(ctx context.Context, deckID uuid.UUID) ([]model.DeckVersion, error) {
	const q = `
SELECT deck_id, version, notes, card_count, file_key, created_at
FROM deck_versions WHERE deck_id=$1
ORDER BY created_at DESC, version DESC`
	rows, err := r.db.Pool.Query(ctx, q, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DeckVersion
	for rows.Next() {
		var v model.DeckVersion
		if err := rows.Scan(&v.DeckID, &v.Version, &v.Notes, &v.CardCount, &v.FileKey, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Owners returns the users owning a deck.
func (r *DeckRepo) Owners(ctx context.Context, deckID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT user_id FROM purchases WHERE deck_id=$1`, deckID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// MarkSynced stores the version last granted to the user.
func (r *DeckRepo) MarkSynced(ctx context.Context, userID, deckID uuid.UUID, version string) error {
	const q = `UPDATE purchases SET synced_version=$3 WHERE user_id=$1 AND deck_id=$2`
	tag, err := r.db.Pool.Exec(ctx, q, userID, deckID, version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
