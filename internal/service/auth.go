// Package service contains the reference server's application services.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	pkgcrypto "github.com/and161185/decksync/internal/crypto"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/limiter"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository"
)

// ErrInvalidArgument marks malformed client input.
var ErrInvalidArgument = errors.New("invalid argument")

const tokenLeeway = 30 * time.Second

// AuthService defines account and token operations.
type AuthService interface {
	// Register creates a new account with an argon2id password hash.
	Register(ctx context.Context, email, password, displayName string) (uuid.UUID, error)
	// LoginWithIP applies rate limiting by (email, ip) and issues a token pair.
	LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error)
	// Refresh rotates a refresh token. A token is accepted once.
	Refresh(ctx context.Context, refreshToken string) (model.Tokens, error)
	// Logout revokes every refresh token of the user.
	Logout(ctx context.Context, userID uuid.UUID) error
	// ParseAccess validates an access token and returns its subject.
	ParseAccess(token string) (uuid.UUID, error)
}

type AuthServiceImpl struct {
	users      repository.UserRepository
	tokens     repository.TokenRepository
	lim        limiter.Limiter
	signKey    []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewAuthService constructs AuthService with required dependencies.
func NewAuthService(users repository.UserRepository, tokens repository.TokenRepository, lim limiter.Limiter,
	signKey []byte, accessTTL, refreshTTL time.Duration) *AuthServiceImpl {
	return &AuthServiceImpl{
		users: users, tokens: tokens, lim: lim,
		signKey: signKey, accessTTL: accessTTL, refreshTTL: refreshTTL,
		now: time.Now,
	}
}

// Register validates the address and stores the account with progress sync enabled.
func (s *AuthServiceImpl) Register(ctx context.Context, email, password, displayName string) (uuid.UUID, error) {
	email = limiter.Key(email)
	if email == "" || password == "" {
		return uuid.Nil, fmt.Errorf("%w: empty email/password", ErrInvalidArgument)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return uuid.Nil, fmt.Errorf("%w: email: %v", ErrInvalidArgument, err)
	}
	uid, err := uuid.NewV4()
	if err != nil {
		return uuid.Nil, err
	}
	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return uuid.Nil, err
	}
	u := &model.User{
		ID:                  uid,
		Email:               email,
		DisplayName:         strings.TrimSpace(displayName),
		PwdHash:             hash,
		ProgressSyncEnabled: true,
	}
	if err := s.users.Create(ctx, u); err != nil {
		return uuid.Nil, err
	}
	return uid, nil
}

// LoginWithIP authenticates with rate limiting by (email, ip).
func (s *AuthServiceImpl) LoginWithIP(ctx context.Context, email, password, ip string) (model.Tokens, model.User, error) {
	email = limiter.Key(email)
	ipHash := limiter.HashIP(ip)

	allowed, _, err := s.lim.Allow(ctx, email, ipHash)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	if !allowed {
		return model.Tokens{}, model.User{}, errs.ErrRateLimited
	}

	u, err := s.users.GetByEmail(ctx, email)
	ok := false
	if err == nil {
		ok, err = pkgcrypto.VerifyPassword(password, u.PwdHash)
	}
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return model.Tokens{}, model.User{}, err
	}
	if !ok {
		if blocked, _, ferr := s.lim.Failure(ctx, email, ipHash); ferr == nil && blocked {
			return model.Tokens{}, model.User{}, errs.ErrRateLimited
		}
		// unknown email and wrong password look the same
		return model.Tokens{}, model.User{}, errs.ErrUnauthorized
	}

	_ = s.lim.Success(ctx, email, ipHash)

	tok, err := s.issue(ctx, u.ID)
	if err != nil {
		return model.Tokens{}, model.User{}, err
	}
	return tok, *u, nil
}

// Refresh consumes the presented token and issues a new pair.
func (s *AuthServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.Tokens, error) {
	if refreshToken == "" {
		return model.Tokens{}, errs.ErrUnauthorized
	}
	rt, err := s.tokens.ConsumeRefresh(ctx, pkgcrypto.TokenDigest(refreshToken), s.now())
	if err != nil {
		return model.Tokens{}, err
	}
	if _, err := s.users.GetByID(ctx, rt.UserID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.Tokens{}, errs.ErrUnauthorized
		}
		return model.Tokens{}, err
	}
	return s.issue(ctx, rt.UserID)
}

// Logout revokes the user's refresh tokens.
func (s *AuthServiceImpl) Logout(ctx context.Context, userID uuid.UUID) error {
	return s.tokens.DeleteForUser(ctx, userID)
}

func (s *AuthServiceImpl) issue(ctx context.Context, userID uuid.UUID) (model.Tokens, error) {
	access, exp, err := s.issueAccessToken(userID)
	if err != nil {
		return model.Tokens{}, err
	}
	refresh, digest, err := pkgcrypto.NewOpaqueToken()
	if err != nil {
		return model.Tokens{}, err
	}
	rt := model.RefreshToken{Hash: digest, UserID: userID, ExpiresAt: s.now().Add(s.refreshTTL)}
	if err := s.tokens.SaveRefresh(ctx, rt); err != nil {
		return model.Tokens{}, err
	}
	return model.Tokens{AccessToken: access, RefreshToken: refresh, ExpiresAt: exp}, nil
}

// issueAccessToken creates a signed HS256 JWT for the given subject.
func (s *AuthServiceImpl) issueAccessToken(userID uuid.UUID) (string, time.Time, error) {
	now := s.now()
	exp := now.Add(s.accessTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.Must(uuid.NewV4()).String(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.signKey)
	return signed, exp, err
}

// ParseAccess verifies an HS256 access token and returns the subject as UUID.
func (s *AuthServiceImpl) ParseAccess(token string) (uuid.UUID, error) {
	var claims jwt.RegisteredClaims
	if err := parseHS256(token, s.signKey, &claims, s.now); err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", errs.ErrUnauthorized)
	}
	return id, nil
}

// parseHS256 verifies signature and registered claims with a small leeway.
func parseHS256(token string, key []byte, claims jwt.Claims, now func() time.Time) error {
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return key, nil
	}, jwt.WithLeeway(tokenLeeway), jwt.WithTimeFunc(now), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return fmt.Errorf("%w: invalid token", errs.ErrUnauthorized)
	}
	return nil
}
