package auth

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

type fakeAPI struct {
	loginTok  model.AuthToken
	loginUser json.RawMessage
	loginErr  error

	refreshTok   model.AuthToken
	refreshErr   error
	refreshCalls atomic.Int32
	refreshGate  chan struct{} // if set, Refresh blocks until closed
	gotRefresh   string
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) Login(context.Context, string, string) (model.AuthToken, json.RawMessage, error) {
	return f.loginTok, f.loginUser, f.loginErr
}

func (f *fakeAPI) Refresh(_ context.Context, rt string) (model.AuthToken, error) {
	f.refreshCalls.Add(1)
	f.gotRefresh = rt
	if f.refreshGate != nil {
		<-f.refreshGate
	}
	return f.refreshTok, f.refreshErr
}

var t0 = time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

func newTestSession(t *testing.T, api *fakeAPI) (*Session, *config.MemoryStore) {
	t.Helper()
	st := config.NewMemoryStore()
	s := NewSession(st, api, nil)
	s.now = func() time.Time { return t0 }
	return s, st
}

func seed(t *testing.T, st config.Store, access, refresh string, exp int64) {
	t.Helper()
	if err := st.SetMany(map[string]any{
		config.KeyAccessToken:  access,
		config.KeyRefreshToken: refresh,
		config.KeyExpiresAt:    exp,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestSession_IsExpired_Buffer(t *testing.T) {
	t.Parallel()
	s, st := newTestSession(t, &fakeAPI{})

	if !s.IsExpired() {
		t.Fatalf("no token must be expired")
	}
	seed(t, st, "a", "r", t0.Add(301*time.Second).Unix())
	if s.IsExpired() {
		t.Fatalf("301s left must be usable")
	}
	seed(t, st, "a", "r", t0.Add(300*time.Second).Unix())
	if !s.IsExpired() {
		t.Fatalf("exactly at buffer must be expired")
	}
	seed(t, st, "a", "r", 0)
	if !s.IsExpired() {
		t.Fatalf("token without expiry must be expired")
	}
}

func TestSession_Login_PersistsTripleAndUser(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		loginTok:  model.AuthToken{AccessToken: "acc", RefreshToken: "ref", ExpiresAt: t0.Add(time.Hour).Unix()},
		loginUser: json.RawMessage(`{"email":"a@b.c"}`),
	}
	s, _ := newTestSession(t, api)

	if _, err := s.Login(context.Background(), "", "x"); err == nil {
		t.Fatalf("want error on empty email")
	}
	if _, err := s.Login(context.Background(), "a@b.c", "pw"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	tok, err := s.Token()
	if err != nil || tok.AccessToken != "acc" || tok.RefreshToken != "ref" || tok.ExpiresAt == 0 {
		t.Fatalf("token not persisted: %+v %v", tok, err)
	}
	u, _ := s.User()
	if string(u) != `{"email":"a@b.c"}` {
		t.Fatalf("user not persisted: %s", u)
	}
	if !s.LoggedIn() {
		t.Fatalf("want logged in")
	}

	api.loginTok = model.AuthToken{AccessToken: "acc2", RefreshToken: "ref2"}
	if _, err := s.Login(context.Background(), "a@b.c", "pw"); !errors.Is(err, errs.ErrValidation) {
		t.Fatalf("token without expiry: want validation error, got %v", err)
	}
	if tok, _ := s.Token(); tok.AccessToken != "acc" {
		t.Fatalf("token without expiry must not be stored: %+v", tok)
	}

	api.loginErr = errs.Server("POST /addon-login", "Invalid credentials")
	if _, err := s.Login(context.Background(), "a@b.c", "bad"); !errors.Is(err, errs.ErrServer) {
		t.Fatalf("want server error, got %v", err)
	}
}

func TestSession_AuthHeader_FreshTokenNoRefresh(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	s, st := newTestSession(t, api)
	seed(t, st, "acc", "ref", t0.Add(time.Hour).Unix())

	h, err := s.AuthHeader(context.Background())
	if err != nil || h != "Bearer acc" {
		t.Fatalf("AuthHeader=%q err=%v", h, err)
	}
	if api.refreshCalls.Load() != 0 {
		t.Fatalf("unexpected refresh")
	}
	hs, err := s.AuthorizedHeaders(context.Background())
	if err != nil || hs["Authorization"] != "Bearer acc" {
		t.Fatalf("AuthorizedHeaders=%v err=%v", hs, err)
	}
}

func TestSession_AuthHeader_NotAuthenticated(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	s, _ := newTestSession(t, api)

	_, err := s.AuthHeader(context.Background())
	if !errors.Is(err, errs.ErrAuth) || !errors.Is(err, errs.ErrNotAuthenticated) {
		t.Fatalf("want not-authenticated auth error, got %v", err)
	}
	if api.refreshCalls.Load() != 0 {
		t.Fatalf("must not refresh without any token")
	}
}

func TestSession_BackToBackCallsRefreshOnce(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{refreshTok: model.AuthToken{AccessToken: "new", RefreshToken: "ref2", ExpiresAt: t0.Add(time.Hour).Unix()}}
	s, st := newTestSession(t, api)
	seed(t, st, "old", "ref1", t0.Add(-time.Minute).Unix())

	for i := 0; i < 2; i++ {
		h, err := s.AuthHeader(context.Background())
		if err != nil || h != "Bearer new" {
			t.Fatalf("call %d: %q %v", i, h, err)
		}
	}
	if n := api.refreshCalls.Load(); n != 1 {
		t.Fatalf("refresh calls=%d, want 1", n)
	}
	if api.gotRefresh != "ref1" {
		t.Fatalf("refresh sent %q", api.gotRefresh)
	}
	tok, _ := s.Token()
	if tok.RefreshToken != "ref2" {
		t.Fatalf("rotated refresh token not stored: %+v", tok)
	}
}

func TestSession_ConcurrentCallersShareOneRefresh(t *testing.T) {
	t.Parallel()
	gate := make(chan struct{})
	api := &fakeAPI{
		refreshTok:  model.AuthToken{AccessToken: "new", RefreshToken: "ref2", ExpiresAt: t0.Add(time.Hour).Unix()},
		refreshGate: gate,
	}
	s, st := newTestSession(t, api)
	seed(t, st, "old", "ref1", t0.Add(-time.Minute).Unix())

	const n = 16
	var wg sync.WaitGroup
	headers := make([]string, n)
	errsOut := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			headers[i], errsOut[i] = s.AuthHeader(context.Background())
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	if c := api.refreshCalls.Load(); c != 1 {
		t.Fatalf("refresh calls=%d, want 1", c)
	}
	for i := 0; i < n; i++ {
		if errsOut[i] != nil || headers[i] != "Bearer new" {
			t.Fatalf("caller %d: %q %v", i, headers[i], errsOut[i])
		}
	}
}

func TestSession_RefreshFailureClearsTokens(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{refreshErr: errs.Network("POST /addon-refresh-token", errors.New("dial tcp: refused"))}
	s, st := newTestSession(t, api)
	seed(t, st, "old", "ref1", t0.Add(-time.Minute).Unix())
	_ = st.Set(config.KeyUser, map[string]string{"email": "x"})

	_, err := s.AuthHeader(context.Background())
	if !errors.Is(err, errs.ErrAuth) || !errors.Is(err, errs.ErrSessionExpired) {
		t.Fatalf("want session expired auth error, got %v", err)
	}
	tok, _ := s.Token()
	if tok != (model.AuthToken{}) {
		t.Fatalf("tokens not cleared: %+v", tok)
	}
	if u, _ := s.User(); u != nil {
		t.Fatalf("user not cleared: %s", u)
	}

	// no automatic retry: next call is simply unauthenticated
	_, err = s.AuthHeader(context.Background())
	if !errors.Is(err, errs.ErrNotAuthenticated) {
		t.Fatalf("want not authenticated, got %v", err)
	}
	if api.refreshCalls.Load() != 1 {
		t.Fatalf("refresh retried: %d", api.refreshCalls.Load())
	}
}

func TestSession_RefreshInvalidShapeClears(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{refreshTok: model.AuthToken{AccessToken: "new"}} // no expiry
	s, st := newTestSession(t, api)
	seed(t, st, "old", "ref1", t0.Add(-time.Minute).Unix())

	if _, err := s.AuthHeader(context.Background()); !errors.Is(err, errs.ErrSessionExpired) {
		t.Fatalf("want session expired, got %v", err)
	}
	if s.LoggedIn() {
		t.Fatalf("session must be cleared")
	}
}

func TestSession_ExpiredWithoutRefreshToken(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	s, st := newTestSession(t, api)
	seed(t, st, "old", "", t0.Add(-time.Minute).Unix())

	if _, err := s.AuthHeader(context.Background()); !errors.Is(err, errs.ErrSessionExpired) {
		t.Fatalf("want session expired, got %v", err)
	}
	if api.refreshCalls.Load() != 0 {
		t.Fatalf("refresh without token")
	}
	if s.LoggedIn() {
		t.Fatalf("session must be cleared")
	}
}

// pausingStore stops the first Get of key after it has read the underlying value.
type pausingStore struct {
	config.Store
	key     string
	armed   atomic.Bool
	paused  chan struct{}
	release chan struct{}
}

func (p *pausingStore) Get(key string, dst any) (bool, error) {
	ok, err := p.Store.Get(key, dst)
	if key == p.key && p.armed.CompareAndSwap(true, false) {
		close(p.paused)
		<-p.release
	}
	return ok, err
}

func TestSession_CachedStore_ReaderOverlappingRefresh(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{
		refreshTok: model.AuthToken{AccessToken: "new-access", RefreshToken: "new-ref", ExpiresAt: t0.Add(time.Hour).Unix()},
	}
	mem := config.NewMemoryStore()
	seed(t, mem, "old-access", "old-ref", t0.Add(-time.Minute).Unix())
	ps := &pausingStore{Store: mem, key: config.KeyAccessToken, paused: make(chan struct{}), release: make(chan struct{})}
	ps.armed.Store(true)
	s := NewSession(config.NewCached(ps, time.Hour), api, nil)
	s.now = func() time.Time { return t0 }

	// reader holds the old access token when the refresh starts
	readerDone := make(chan model.AuthToken)
	go func() {
		tok, _ := s.Token()
		readerDone <- tok
	}()
	<-ps.paused

	type result struct {
		h   string
		err error
	}
	refreshed := make(chan result)
	go func() {
		h, err := s.AuthHeader(context.Background())
		refreshed <- result{h, err}
	}()
	deadline := time.Now().Add(5 * time.Second)
	for api.refreshCalls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("refresh never started")
		}
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	close(ps.release)

	if tok := <-readerDone; tok.AccessToken != "old-access" || tok.RefreshToken != "old-ref" {
		t.Fatalf("overlapping reader saw a mixed triple: %+v", tok)
	}
	if r := <-refreshed; r.err != nil || r.h != "Bearer new-access" {
		t.Fatalf("refreshing caller: %q %v", r.h, r.err)
	}

	h, err := s.AuthHeader(context.Background())
	if err != nil || h != "Bearer new-access" {
		t.Fatalf("caller after refresh: %q %v", h, err)
	}
	if c := api.refreshCalls.Load(); c != 1 {
		t.Fatalf("refresh calls=%d, want 1", c)
	}
}
