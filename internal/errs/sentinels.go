// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotAuthenticated indicates there is no stored session at all.
	ErrNotAuthenticated = errors.New("not authenticated")

	// ErrSessionExpired indicates the token could not be refreshed; re-login is required.
	ErrSessionExpired = errors.New("session expired")

	// ErrMaterialMissing indicates a local material reference no longer resolves.
	ErrMaterialMissing = errors.New("local material missing")

	// ErrSyncDisabled indicates the server has progress sync switched off for the account.
	ErrSyncDisabled = errors.New("progress sync is not enabled for this account")
)
