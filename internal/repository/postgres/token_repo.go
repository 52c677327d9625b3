package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// TokenRepo implements TokenRepository using PostgreSQL.
type TokenRepo struct{ db *DB }

// NewTokenRepo constructs a refresh token repository.
func NewTokenRepo(db *DB) *TokenRepo { return &TokenRepo{db: db} }

// SaveRefresh inserts a refresh token digest.
func (r *TokenRepo) SaveRefresh(ctx context.Context, rt model.RefreshToken) error {
	const q = `INSERT INTO refresh_tokens (hash, user_id, expires_at) VALUES ($1, $2, $3)`
	_, err := r.db.Pool.Exec(ctx, q, rt.Hash, rt.UserID, rt.ExpiresAt)
	return err
}

// ConsumeRefresh deletes the record in the same statement that reads it, so concurrent
// presentations of one token cannot both succeed.
func (r *TokenRepo) ConsumeRefresh(ctx context.Context, hash []byte, now time.Time) (model.RefreshToken, error) {
	const q = `DELETE FROM refresh_tokens WHERE hash=$1 RETURNING user_id, expires_at`
	rt := model.RefreshToken{Hash: hash}
	err := r.db.Pool.QueryRow(ctx, q, hash).Scan(&rt.UserID, &rt.ExpiresAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return model.RefreshToken{}, errs.ErrUnauthorized
	case err != nil:
		return model.RefreshToken{}, err
	}
	if !rt.ExpiresAt.After(now) {
		return model.RefreshToken{}, errs.ErrUnauthorized
	}
	return rt, nil
}

// DeleteForUser revokes all refresh tokens of a user.
func (r *TokenRepo) DeleteForUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE user_id=$1`, userID)
	return err
}
