package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/and161185/decksync/internal/errs"
	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/reconcile"
	"github.com/and161185/decksync/internal/syncer"
)

func assertGolden(t *testing.T, name string, got []byte) {
	t.Helper()
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, got)
}

func TestRender_Report(t *testing.T) {
	rep := reconcile.ClassifyCatalog(
		[]model.TrackedDeck{{DeckID: "a", Version: "1.0"}, {DeckID: "c", Version: "3"}},
		[]model.RemoteDeckDescriptor{
			{DeckID: "a", Title: "Spanish Basics", Version: "2.0"},
			{DeckID: "b", Version: "1.0"},
			{DeckID: "c", Title: "Kanji N5", Version: "3"},
		},
	)
	var buf bytes.Buffer
	renderReport(&buf, rep)
	assertGolden(t, "report", buf.Bytes())
}

func TestRender_Status(t *testing.T) {
	var buf bytes.Buffer
	renderStatus(&buf, statusView{
		LoggedIn: true,
		User:     json.RawMessage(`{"email":"a@b.c"}`),
		Unread:   2,
		Tracked: []model.TrackedDeck{
			{DeckID: "deck-1", Version: "1.0", LocalRef: 42, DownloadedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)},
			{DeckID: "deck-22", LocalRef: 7},
		},
	})
	assertGolden(t, "status", buf.Bytes())

	buf.Reset()
	renderStatus(&buf, statusView{})
	assertGolden(t, "status_logged_out", buf.Bytes())
}

func TestRender_Changelog(t *testing.T) {
	var buf bytes.Buffer
	renderChangelog(&buf, model.Changelog{
		DeckID:            "d1",
		Title:             "Spanish Basics",
		CurrentVersion:    "2.0",
		UserSyncedVersion: "1.0",
		Versions: []model.ChangelogVersion{
			{Version: "2.0", Notes: "Added 50 cards\nFixed typos\n", CardCount: 550, IsCurrent: true, CreatedAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)},
			{Version: "1.0", CardCount: 500, IsSynced: true},
		},
	})
	assertGolden(t, "changelog", buf.Bytes())
}

func TestRender_Notifications(t *testing.T) {
	var buf bytes.Buffer
	renderNotifications(&buf, model.NotificationPage{
		Notifications: []model.Notification{
			{ID: "1", Type: "deck_update", Title: "Spanish Basics updated", Message: "Version 2.0 is available", CreatedAt: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)},
			{ID: "2", Type: "announcement", Title: "Maintenance", Read: true},
		},
		UnreadCount: 1,
		TotalCount:  2,
	})
	assertGolden(t, "notifications", buf.Bytes())
}

func TestRender_DownloadAndSync(t *testing.T) {
	var buf bytes.Buffer
	renderDownload(&buf, syncer.DownloadReport{
		Installed: []model.TrackedDeck{{DeckID: "a", Version: "2.0"}},
		Failed:    []model.DownloadFailure{{DeckID: "b", Error: "not owned"}},
	})
	assertGolden(t, "download", buf.Bytes())

	buf.Reset()
	renderSync(&buf, syncer.Result{
		Status:      syncer.StatusSynced,
		SyncedCount: 2,
		Attempted:   2,
		Cleaned:     1,
		Skipped:     []error{errs.PartialSync("c", errors.New("database is locked"))},
	})
	assertGolden(t, "sync", buf.Bytes())
}

func TestRender_SyncStatuses(t *testing.T) {
	t.Parallel()
	cases := map[syncer.Status]string{
		syncer.StatusNothingToSync: "Nothing to sync.\n",
		syncer.StatusDisabled:      "Progress sync is not enabled for this account.\n",
	}
	for st, want := range cases {
		var buf bytes.Buffer
		renderSync(&buf, syncer.Result{Status: st})
		if buf.String() != want {
			t.Fatalf("%s: got %q, want %q", st, buf.String(), want)
		}
	}
}

func Test_pretty_JSON_and_Raw(t *testing.T) {
	t.Parallel()
	if got := pretty([]byte(`{"a":1}`)); got != "{\n  \"a\": 1\n}" {
		t.Fatalf("pretty(json)=%q", got)
	}
	if pretty([]byte("not-json")) != "not-json" {
		t.Fatalf("pretty(raw) should return the same string")
	}
}
