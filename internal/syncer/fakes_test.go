package syncer

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/and161185/decksync/internal/api"
	"github.com/and161185/decksync/internal/model"
)

type fakeRegistry struct {
	mu         sync.Mutex
	decks      []model.TrackedDeck
	cleanupErr error
	cleaned    int
}

var _ Registry = (*fakeRegistry)(nil)

func (r *fakeRegistry) Cleanup(context.Context) (int, int, error) {
	if r.cleanupErr != nil {
		return 0, 0, r.cleanupErr
	}
	return r.cleaned, len(r.decks) + r.cleaned, nil
}

func (r *fakeRegistry) List() ([]model.TrackedDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.TrackedDeck(nil), r.decks...), nil
}

func (r *fakeRegistry) Track(_ context.Context, id, version string, ref int64) (model.TrackedDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	td := model.TrackedDeck{DeckID: id, Version: version, LocalRef: ref}
	for i := range r.decks {
		if r.decks[i].DeckID == id {
			r.decks[i] = td
			return td, nil
		}
	}
	r.decks = append(r.decks, td)
	return td, nil
}

type fakeSnapshotter struct {
	fail map[string]error
}

func (s fakeSnapshotter) Snapshot(_ context.Context, d model.TrackedDeck) (model.ProgressSnapshot, error) {
	if err := s.fail[d.DeckID]; err != nil {
		return model.ProgressSnapshot{}, err
	}
	return model.ProgressSnapshot{DeckID: d.DeckID, TotalCards: 10}, nil
}

// fakeRemote implements every API interface of the package.
type fakeRemote struct {
	mu sync.Mutex

	syncCalls int
	synced    [][]model.ProgressSnapshot
	syncErr   error

	catalog     []model.RemoteDeckDescriptor
	updates     api.UpdateCheck
	catalogErr  error
	batchCalls  [][]string
	batchErr    map[int]error // by call index
	refuse      map[string]bool
	omit        map[string]bool
	fileErr     map[string]error
	notif       model.NotificationPage
	notifErr    error
	notifCalls  int
	markAsReads []bool
}

var (
	_ ProgressAPI     = (*fakeRemote)(nil)
	_ CatalogAPI      = (*fakeRemote)(nil)
	_ DownloadAPI     = (*fakeRemote)(nil)
	_ NotificationAPI = (*fakeRemote)(nil)
)

func (f *fakeRemote) SyncProgress(_ context.Context, snaps []model.ProgressSnapshot) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncCalls++
	f.synced = append(f.synced, snaps)
	if f.syncErr != nil {
		return 0, f.syncErr
	}
	return len(snaps), nil
}

func (f *fakeRemote) Catalog(context.Context) ([]model.RemoteDeckDescriptor, error) {
	return f.catalog, f.catalogErr
}

func (f *fakeRemote) CheckUpdates(context.Context) (api.UpdateCheck, error) {
	return f.updates, f.catalogErr
}

func (f *fakeRemote) DownloadDeck(_ context.Context, id, version string) (model.DownloadGrant, error) {
	if f.refuse[id] {
		return model.DownloadGrant{}, errors.New("refused")
	}
	if version == "" {
		version = "1.0"
	}
	return model.DownloadGrant{DeckID: id, Title: "Deck " + id, Version: version, DownloadURL: "https://files/" + id}, nil
}

func (f *fakeRemote) BatchDownload(_ context.Context, ids []string) (api.BatchResult, error) {
	f.mu.Lock()
	call := len(f.batchCalls)
	f.batchCalls = append(f.batchCalls, append([]string(nil), ids...))
	f.mu.Unlock()
	if err := f.batchErr[call]; err != nil {
		return api.BatchResult{}, err
	}
	var res api.BatchResult
	for _, id := range ids {
		switch {
		case f.omit[id]:
		case f.refuse[id]:
			res.Failed = append(res.Failed, model.DownloadFailure{DeckID: id, Error: "not owned"})
		default:
			res.Grants = append(res.Grants, model.DownloadGrant{DeckID: id, Version: "2.0", DownloadURL: "https://files/" + id})
		}
	}
	return res, nil
}

func (f *fakeRemote) DownloadFile(_ context.Context, url string) ([]byte, error) {
	id := url[strings.LastIndex(url, "/")+1:]
	if err := f.fileErr[id]; err != nil {
		return nil, err
	}
	return []byte("archive:" + id), nil
}

func (f *fakeRemote) CheckNotifications(_ context.Context, markAsRead bool, _ int) (model.NotificationPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifCalls++
	f.markAsReads = append(f.markAsReads, markAsRead)
	return f.notif, f.notifErr
}

type fakeImporter struct {
	mu     sync.Mutex
	next   int64
	titles []string
}

func (im *fakeImporter) Import(_ context.Context, title string, archive []byte) (int64, error) {
	im.mu.Lock()
	defer im.mu.Unlock()
	if len(archive) == 0 {
		return 0, errors.New("empty archive")
	}
	im.next++
	im.titles = append(im.titles, title)
	return im.next, nil
}
