package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/syncer"
)

func testSettings(t *testing.T, apiURL string) *config.Settings {
	t.Helper()
	dir := t.TempDir()
	s := config.DefaultSettings()
	s.APIURL = apiURL
	s.StatePath = filepath.Join(dir, "state.json")
	s.CollectionPath = filepath.Join(dir, "collection.db")
	s.Timezone = "UTC"
	require.NoError(t, s.Validate())
	return s
}

func TestEngine_Lifecycle(t *testing.T) {
	t.Parallel()
	e := New(testSettings(t, "http://127.0.0.1:1"), nil)
	assert.ErrorIs(t, e.Ready(), ErrNotInitialized)

	ctx := context.Background()
	require.NoError(t, e.Initialize(ctx))
	require.NoError(t, e.Initialize(ctx))
	require.NoError(t, e.Ready())
	assert.NotNil(t, e.Coordinator)
	assert.False(t, e.Session.LoggedIn())

	require.NoError(t, e.Shutdown())
	assert.ErrorIs(t, e.Ready(), ErrNotInitialized)
	require.NoError(t, e.Shutdown())
}

func TestEngine_SyncWithoutTrackedDecksStaysOffline(t *testing.T) {
	t.Parallel()
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := New(testSettings(t, srv.URL), nil)
	require.NoError(t, e.Initialize(context.Background()))
	defer e.Shutdown()

	res, err := e.Coordinator.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, syncer.StatusNothingToSync, res.Status)
	assert.Equal(t, 0, hits)
}
