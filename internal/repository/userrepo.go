// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/decksync/internal/model"
)

// UserRepository provides access to accounts.
type UserRepository interface {
	// Create inserts a new user. A taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, u *model.User) error
	// GetByID loads a user by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	// GetByEmail loads a user by email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// SetProgressSync toggles the account's progress sync flag.
	SetProgressSync(ctx context.Context, id uuid.UUID, enabled bool) error
}

// TokenRepository stores refresh token digests.
type TokenRepository interface {
	// SaveRefresh stores a new refresh token record.
	SaveRefresh(ctx context.Context, rt model.RefreshToken) error
	// ConsumeRefresh deletes and returns the record for hash. Unknown or expired tokens yield
	// errs.ErrUnauthorized; a token can be consumed once.
	ConsumeRefresh(ctx context.Context, hash []byte, now time.Time) (model.RefreshToken, error)
	// DeleteForUser revokes every refresh token of a user.
	DeleteForUser(ctx context.Context, userID uuid.UUID) error
}
