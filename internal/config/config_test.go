package config

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTripAndDelete(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "nested", "state.json")
	s := NewFileStore(p)

	var tok string
	ok, err := s.Get(KeyAccessToken, &tok)
	require.NoError(t, err)
	require.False(t, ok, "missing file reads as empty")

	require.NoError(t, s.SetMany(map[string]any{KeyAccessToken: "a", KeyExpiresAt: int64(42)}))
	ok, err = s.Get(KeyAccessToken, &tok)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "a", tok)

	fi, err := os.Stat(p)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), fi.Mode().Perm())

	require.NoError(t, s.Set(KeyUser, nil))
	var user map[string]any
	ok, err = s.Get(KeyUser, &user)
	require.NoError(t, err)
	require.False(t, ok, "null reads as absent")

	require.NoError(t, s.Delete(KeyAccessToken, "never-set"))
	ok, err = s.Get(KeyAccessToken, &tok)
	require.NoError(t, err)
	require.False(t, ok)

	var exp int64
	ok, err = s.Get(KeyExpiresAt, &exp)
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 42, exp)
}

func TestFileStore_SeesExternalWrites(t *testing.T) {
	t.Parallel()
	p := filepath.Join(t.TempDir(), "state.json")
	s := NewFileStore(p)
	require.NoError(t, s.Set(KeyUnreadNotificationCount, 1))

	require.NoError(t, os.WriteFile(p, []byte(`{"unread_notification_count": 7}`), 0o600))
	var n int
	_, err := s.Get(KeyUnreadNotificationCount, &n)
	require.NoError(t, err)
	require.Equal(t, 7, n)

	require.NoError(t, os.WriteFile(p, []byte(`{broken`), 0o600))
	_, err = s.Get(KeyUnreadNotificationCount, &n)
	require.Error(t, err)
}

func TestCached_TTLAndInvalidation(t *testing.T) {
	t.Parallel()
	mem := NewMemoryStore()
	c := NewCached(mem, time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	require.NoError(t, mem.Set("k", "v1"))
	var v string
	_, err := c.Get("k", &v)
	require.NoError(t, err)
	require.Equal(t, "v1", v)

	// behind the cache's back
	require.NoError(t, mem.Set("k", "v2"))
	_, _ = c.Get("k", &v)
	require.Equal(t, "v1", v, "served from cache within TTL")

	now = now.Add(2 * time.Second)
	_, _ = c.Get("k", &v)
	require.Equal(t, "v2", v, "expired entry re-read")

	require.NoError(t, c.Set("k", "v3"))
	_, _ = c.Get("k", &v)
	require.Equal(t, "v3", v, "write through invalidates")

	ok, err := c.Get("absent", &v)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestLoadSettings_FormatsEnvAndValidation(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	s, err := LoadSettings(filepath.Join(dir, "missing.toml"))
	require.NoError(t, err)
	require.Equal(t, 30, s.WindowDays)
	require.Equal(t, 30*time.Second, s.RequestTimeout())
	require.Equal(t, 2*time.Minute, s.DownloadTimeout())

	tomlPath := filepath.Join(dir, "s.toml")
	require.NoError(t, os.WriteFile(tomlPath, []byte("api_url = \"https://api.example.com/v1/\"\nwindow_days = 7\n"), 0o600))
	s, err = LoadSettings(tomlPath)
	require.NoError(t, err)
	require.Equal(t, "https://api.example.com/v1", s.APIURL)
	require.Equal(t, 7, s.WindowDays)

	yamlPath := filepath.Join(dir, "s.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("api_url: http://h:1\nauto_sync_interval_hours: 3\n"), 0o600))
	s, err = LoadSettings(yamlPath)
	require.NoError(t, err)
	require.Equal(t, 3*time.Hour, s.AutoSyncInterval())

	t.Setenv("DECKSYNC_WINDOW_DAYS", "14")
	t.Setenv("DECKSYNC_API_URL", "http://override:9")
	s, err = LoadSettings(yamlPath)
	require.NoError(t, err)
	require.Equal(t, 14, s.WindowDays)
	require.Equal(t, "http://override:9", s.APIURL)

	t.Setenv("DECKSYNC_API_URL", "ftp://nope")
	_, err = LoadSettings(yamlPath)
	require.Error(t, err)
}

func TestSettings_Validate(t *testing.T) {
	t.Parallel()
	s := DefaultSettings()
	require.NoError(t, s.Validate())

	s.Timezone = "Mars/Olympus"
	s.WindowDays = 0
	err := s.Validate()
	require.ErrorContains(t, err, "timezone")
	require.ErrorContains(t, err, "window_days")
}

func TestLoader_WatchReloads(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)
	p := filepath.Join(dir, "settings.toml")
	require.NoError(t, SaveSettings(DefaultSettings(), p))

	l := NewLoader(p, nil)
	_, err := l.Load()
	require.NoError(t, err)

	var calls atomic.Int32
	l.OnChange(func(*Settings) { calls.Add(1) })
	require.NoError(t, l.Watch(context.Background()))
	defer l.Close()

	s := DefaultSettings()
	s.WindowDays = 9
	require.NoError(t, SaveSettings(s, p))

	require.Eventually(t, func() bool { return l.Settings().WindowDays == 9 }, 3*time.Second, 20*time.Millisecond)
	require.GreaterOrEqual(t, calls.Load(), int32(1))
}

// pausingStore stops the first Get of key after it has read the underlying value.
type pausingStore struct {
	Store
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

func TestCached_WriteDuringFillIsNotMasked(t *testing.T) {
	t.Parallel()
	mem := NewMemoryStore()
	require.NoError(t, mem.Set("k", "old"))
	ps := &pausingStore{Store: mem, key: "k", paused: make(chan struct{}), release: make(chan struct{})}
	ps.armed.Store(true)
	c := NewCached(ps, time.Hour)

	done := make(chan string)
	go func() {
		var v string
		_, _ = c.Get("k", &v)
		done <- v
	}()
	<-ps.paused
	require.NoError(t, c.Set("k", "new"))
	close(ps.release)
	require.Equal(t, "old", <-done, "overlapping read may see the old value")

	var v string
	_, err := c.Get("k", &v)
	require.NoError(t, err)
	require.Equal(t, "new", v, "value read before the write must not be cached")
}
