// Package auth owns the client's access/refresh token pair and gates authenticated calls.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

// ExpiryBuffer is subtracted from expires_at when deciding whether a token is still usable.
const ExpiryBuffer = 300 * time.Second

// API is the subset of the remote client the session needs. Refresh must not require auth.
type API interface {
	Login(ctx context.Context, email, password string) (model.AuthToken, json.RawMessage, error)
	Refresh(ctx context.Context, refreshToken string) (model.AuthToken, error)
}

// Session persists the token triple in a config.Store and refreshes it on demand. At most one
// refresh is in flight; concurrent callers wait for it and share its result.
type Session struct {
	store config.Store
	api   API
	log   *zap.Logger
	now   func() time.Time

	flight singleflight.Group
	// mu keeps the token triple consistent: readers never observe half of a save or clear.
	mu sync.RWMutex
}

// NewSession constructs a Session. log may be nil.
func NewSession(store config.Store, api API, log *zap.Logger) *Session {
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{store: store, api: api, log: log, now: time.Now}
}

// Token reads the stored token triple.
func (s *Session) Token() (model.AuthToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t model.AuthToken
	if _, err := s.store.Get(config.KeyAccessToken, &t.AccessToken); err != nil {
		return t, err
	}
	if _, err := s.store.Get(config.KeyRefreshToken, &t.RefreshToken); err != nil {
		return t, err
	}
	if _, err := s.store.Get(config.KeyExpiresAt, &t.ExpiresAt); err != nil {
		return t, err
	}
	return t, nil
}

// User returns the stored user object as raw JSON, or nil.
func (s *Session) User() (json.RawMessage, error) {
	var u json.RawMessage
	if _, err := s.store.Get(config.KeyUser, &u); err != nil {
		return nil, err
	}
	return u, nil
}

// LoggedIn reports whether an access token is stored. It does not check expiry.
func (s *Session) LoggedIn() bool {
	t, err := s.Token()
	return err == nil && !t.Empty()
}

// IsExpired reports whether there is no usable access token.
func (s *Session) IsExpired() bool {
	t, err := s.Token()
	if err != nil {
		return true
	}
	return s.expired(t)
}

func (s *Session) expired(t model.AuthToken) bool {
	if t.Empty() || t.ExpiresAt == 0 {
		return true
	}
	return !s.now().Before(time.Unix(t.ExpiresAt, 0).Add(-ExpiryBuffer))
}

// Login authenticates and persists the new token triple and user.
func (s *Session) Login(ctx context.Context, email, password string) (model.AuthToken, error) {
	if email == "" || password == "" {
		return model.AuthToken{}, errors.New("email and password are required")
	}
	tok, user, err := s.api.Login(ctx, email, password)
	if err != nil {
		return model.AuthToken{}, err
	}
	if tok.Empty() || tok.ExpiresAt == 0 {
		return model.AuthToken{}, errs.Validation("login", "Login response has no usable token",
			errors.New("access token or expires_at missing"))
	}
	if err := s.save(tok, user); err != nil {
		return model.AuthToken{}, fmt.Errorf("save session: %w", err)
	}
	s.log.Info("logged in", zap.Int64("expires_at", tok.ExpiresAt))
	return tok, nil
}

// AuthHeader returns the Authorization header value, refreshing the token first if it is expired.
func (s *Session) AuthHeader(ctx context.Context) (string, error) {
	tok, err := s.Token()
	if err != nil {
		return "", errs.Auth("auth", "Cannot read session. Please login again.", err)
	}
	if tok.Empty() && tok.RefreshToken == "" {
		return "", errs.Auth("auth", "Not authenticated. Please login.", errs.ErrNotAuthenticated)
	}
	if s.expired(tok) {
		v, err, shared := s.flight.Do("refresh", func() (any, error) {
			return s.refresh(context.WithoutCancel(ctx))
		})
		if err != nil {
			return "", err
		}
		if shared {
			s.log.Debug("joined in-flight token refresh")
		}
		tok = v.(model.AuthToken)
	}
	return "Bearer " + tok.AccessToken, nil
}

// AuthorizedHeaders returns the headers for an authenticated request.
func (s *Session) AuthorizedHeaders(ctx context.Context) (map[string]string, error) {
	h, err := s.AuthHeader(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": h, "Content-Type": "application/json"}, nil
}

// refresh runs inside the single flight. A caller that queued behind a finished refresh finds a
// fresh token and returns it without calling the server again.
func (s *Session) refresh(ctx context.Context) (model.AuthToken, error) {
	tok, err := s.Token()
	if err == nil && !s.expired(tok) {
		return tok, nil
	}
	if err != nil || tok.RefreshToken == "" {
		return s.expire(errors.New("no refresh token available"))
	}

	s.log.Info("access token expired, refreshing")
	fresh, err := s.api.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		return s.expire(err)
	}
	if fresh.Empty() || fresh.ExpiresAt == 0 {
		return s.expire(errors.New("invalid refresh response"))
	}
	if err := s.save(fresh, nil); err != nil {
		return s.expire(fmt.Errorf("save refreshed token: %w", err))
	}
	s.log.Info("token refreshed", zap.Int64("expires_at", fresh.ExpiresAt))
	return fresh, nil
}

func (s *Session) expire(cause error) (model.AuthToken, error) {
	s.log.Warn("token refresh failed, clearing session", zap.Error(cause))
	if err := s.Clear(); err != nil {
		s.log.Error("clear session", zap.Error(err))
	}
	return model.AuthToken{}, errs.Auth("refresh", "Session expired. Please login again.",
		fmt.Errorf("%w: %w", errs.ErrSessionExpired, cause))
}

// Clear removes the token triple and the user.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(config.KeyAccessToken, config.KeyRefreshToken, config.KeyExpiresAt, config.KeyUser)
}

func (s *Session) save(tok model.AuthToken, user json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv := map[string]any{
		config.KeyAccessToken:  tok.AccessToken,
		config.KeyRefreshToken: tok.RefreshToken,
		config.KeyExpiresAt:    tok.ExpiresAt,
	}
	if len(user) > 0 {
		kv[config.KeyUser] = user
	}
	return s.store.SetMany(kv)
}
