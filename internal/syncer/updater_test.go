package syncer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/api"
	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
)

func TestUpdater_CheckUsesLocalVersions(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{updates: api.UpdateCheck{
		Decks: []model.RemoteDeckDescriptor{
			{DeckID: "a", Version: "2"},
			{DeckID: "b", Version: "1"},
			{DeckID: "c", Version: "1", HasUpdate: true},
		},
		UpdatesAvailable: 2,
		TotalDecks:       3,
	}}
	reg := &fakeRegistry{decks: []model.TrackedDeck{{DeckID: "a", Version: "1"}, {DeckID: "b", Version: "1"}}}

	rep, err := NewUpdater(remote, reg, nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.UpdateAvailable)
	assert.Equal(t, 1, rep.UpToDate)
	assert.Equal(t, 1, rep.NotDownloaded)
	assert.Equal(t, "1 updates available out of 3 decks", rep.Summary())
}

func TestUpdater_Catalog(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{catalog: []model.RemoteDeckDescriptor{{DeckID: "a", Version: "1"}}}
	rep, err := NewUpdater(remote, &fakeRegistry{}, nil).Catalog(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Items, 1)
	assert.Equal(t, model.NotDownloaded, rep.Items[0].Status.State)
}

func TestUpdater_Error(t *testing.T) {
	t.Parallel()
	remote := &fakeRemote{catalogErr: errs.Network("check updates", context.DeadlineExceeded)}
	_, err := NewUpdater(remote, &fakeRegistry{}, nil).Check(context.Background())
	assert.ErrorIs(t, err, errs.ErrNetwork)
}
