package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/errs"
)

type fakeMaterial struct {
	mu     sync.Mutex
	refs   map[int64]bool
	failOn map[int64]bool
}

var _ Material = (*fakeMaterial)(nil)

func (f *fakeMaterial) Exists(_ context.Context, ref int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn[ref] {
		return false, errors.New("collection locked")
	}
	return f.refs[ref], nil
}

func (f *fakeMaterial) drop(ref int64) {
	f.mu.Lock()
	delete(f.refs, ref)
	f.mu.Unlock()
}

func newRegistry(refs ...int64) (*Registry, *fakeMaterial, *config.MemoryStore) {
	mat := &fakeMaterial{refs: map[int64]bool{}, failOn: map[int64]bool{}}
	for _, r := range refs {
		mat.refs[r] = true
	}
	st := config.NewMemoryStore()
	r := New(st, mat, nil)
	r.now = func() time.Time { return time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC) }
	return r, mat, st
}

func TestRegistry_TrackGetRemove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, _, st := newRegistry(11, 12)

	_, err := r.Track(ctx, "d1", "1.0", 99)
	require.ErrorIs(t, err, errs.ErrMaterialMissing)

	td, err := r.Track(ctx, "d1", "1.0", 11)
	require.NoError(t, err)
	require.EqualValues(t, 11, td.LocalRef)

	_, err = r.Track(ctx, "d1", "2.0", 12)
	require.NoError(t, err)
	got, ok, err := r.Get("d1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2.0", got.Version)
	require.EqualValues(t, 12, got.LocalRef)
	require.Equal(t, 2024, got.DownloadedAt.Year())

	var raw map[string]map[string]any
	_, err = st.Get(config.KeyDownloadedDecks, &raw)
	require.NoError(t, err)
	require.EqualValues(t, 12, raw["d1"]["local_material_ref"], "ref persisted as an integer")

	require.NoError(t, r.Remove("d1"))
	require.NoError(t, r.Remove("d1"), "second remove is a no-op")
	require.NoError(t, r.Remove("never"))
	_, ok, err = r.Get("d1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistry_LegacyAndCoercion(t *testing.T) {
	t.Parallel()
	r, _, st := newRegistry(42, 43)
	st.SetRaw(config.KeyDownloadedDecks, `{
		"a": {"version": "1", "anki_deck_id": "42", "downloaded_at": "2023-11-02T10:11:12.123456"},
		"b": {"version": "1", "local_material_ref": 43.0, "downloaded_at": "2023-11-02T10:11:12Z"},
		"c": {"version": "1", "local_material_ref": "not-a-number"},
		"d": {"version": "1", "local_material_ref": {"id": 1}}
	}`)

	decks, err := r.List()
	require.NoError(t, err)
	require.Len(t, decks, 4)
	require.Equal(t, "a", decks[0].DeckID)
	require.EqualValues(t, 42, decks[0].LocalRef)
	require.True(t, decks[0].DownloadedAt.Equal(time.Date(2023, 11, 2, 10, 11, 12, 123456000, time.Local)),
		"zone-less timestamp is local time: %v", decks[0].DownloadedAt)
	require.True(t, decks[1].DownloadedAt.Equal(time.Date(2023, 11, 2, 10, 11, 12, 0, time.UTC)))
	require.EqualValues(t, 43, decks[1].LocalRef)
	require.Zero(t, decks[2].LocalRef)
	require.Zero(t, decks[3].LocalRef)

	removed, total, err := r.Cleanup(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 4, total)
}

func TestCoerceRef(t *testing.T) {
	t.Parallel()
	cases := map[string]int64{
		`17`:      17,
		`"17"`:    17,
		`" 17 "`:  17,
		`17.0`:    17,
		`17.5`:    0,
		`"x"`:     0,
		`null`:    0,
		``:        0,
		`true`:    0,
		`[1]`:     0,
		`1.7e+12`: 1700000000000,
	}
	for in, want := range cases {
		if got := CoerceRef(json.RawMessage(in)); got != want {
			t.Fatalf("CoerceRef(%s)=%d want %d", in, got, want)
		}
	}
}

func TestRegistry_CleanupRemovesExactlyMissingAndIsIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, mat, _ := newRegistry(1, 2, 3, 4)
	for i, id := range []string{"d1", "d2", "d3", "d4"} {
		_, err := r.Track(ctx, id, "v1", int64(i+1))
		require.NoError(t, err)
	}
	mat.drop(2)
	mat.drop(4)

	removed, total, err := r.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Equal(t, 4, total)

	decks, err := r.List()
	require.NoError(t, err)
	require.Len(t, decks, 2)
	require.Equal(t, "d1", decks[0].DeckID)
	require.Equal(t, "d3", decks[1].DeckID)

	removed, total, err = r.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, removed, "second cleanup removes nothing")
	require.Equal(t, 2, total)
}

func TestRegistry_CleanupEmptyAndLookupErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r, mat, _ := newRegistry(5)

	removed, total, err := r.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Zero(t, total)

	_, err = r.Track(ctx, "d5", "1", 5)
	require.NoError(t, err)
	mat.failOn[5] = true
	require.False(t, r.VerifyExists(ctx, 5), "lookup error counts as missing")
	require.False(t, r.VerifyExists(ctx, 0))

	removed, _, err = r.Cleanup(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

type failingStore struct {
	*config.MemoryStore
	failSet bool
}

func (f *failingStore) Set(key string, v any) error {
	if f.failSet {
		return errors.New("disk full")
	}
	return f.MemoryStore.Set(key, v)
}

func TestRegistry_CleanupKeepsEntryWhenRemovalFails(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	mat := &fakeMaterial{refs: map[int64]bool{7: true}, failOn: map[int64]bool{}}
	st := &failingStore{MemoryStore: config.NewMemoryStore()}
	r := New(st, mat, nil)

	_, err := r.Track(ctx, "d7", "1", 7)
	require.NoError(t, err)
	mat.drop(7)
	st.failSet = true

	removed, total, err := r.Cleanup(ctx)
	require.NoError(t, err)
	require.Zero(t, removed)
	require.Equal(t, 1, total)

	_, ok, err := r.Get("d7")
	require.NoError(t, err)
	require.True(t, ok, "entry stays tracked")
}
