package convert

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/model"
)

func TestDeckDTO_Descriptor_AcceptsIDSpellings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		id   string
		ver  string
		ok   bool
	}{
		{"deck_id", `{"deck_id":"a","title":"A","version":"2.0","card_count":3}`, "a", "2.0", true},
		{"id", `{"id":"b","title":"B","current_version":"1.1"}`, "b", "1.1", true},
		{"_id", `{"_id":"c","title":"C","version":"3"}`, "c", "3", true},
		{"deck_id wins", `{"deck_id":"a","id":"b","version":"1","current_version":"9"}`, "a", "1", true},
		{"no id", `{"title":"X"}`, "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d DeckDTO
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &d))
			got, ok := d.Descriptor()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.id, got.DeckID)
			require.Equal(t, tc.ver, got.Version)
		})
	}
}

func TestEpochSeconds_Unmarshal(t *testing.T) {
	t.Parallel()

	var v struct {
		E EpochSeconds `json:"e"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"e":1700000000}`), &v))
	require.EqualValues(t, 1700000000, v.E)

	require.NoError(t, json.Unmarshal([]byte(`{"e":1700000000.9}`), &v))
	require.EqualValues(t, 1700000000, v.E)

	require.NoError(t, json.Unmarshal([]byte(`{"e":"1700000001"}`), &v))
	require.EqualValues(t, 1700000001, v.E)

	require.NoError(t, json.Unmarshal([]byte(`{"e":null}`), &v))
	require.EqualValues(t, 0, v.E)

	require.Error(t, json.Unmarshal([]byte(`{"e":"soon"}`), &v))
}

func TestToDeckDTO_HasUpdate(t *testing.T) {
	t.Parallel()

	id := uuid.Must(uuid.NewV4())
	d := ToDeckDTO(model.OwnedDeck{
		Deck:          model.Deck{ID: id, Title: "Bio", CurrentVersion: "2.0", CardCount: 10},
		SyncedVersion: "1.0",
	})
	require.Equal(t, id.String(), d.DeckID)
	require.True(t, d.HasUpdate)

	d = ToDeckDTO(model.OwnedDeck{Deck: model.Deck{ID: id, CurrentVersion: "2.0"}})
	require.False(t, d.HasUpdate, "never downloaded is not an update")
}

func TestProgressDTO_WireNames(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)
	b, err := json.Marshal(ToProgressDTO(model.ProgressSnapshot{DeckID: "d1", RetentionRate: 70, SyncedAt: at}))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	require.Equal(t, "d1", m["deck_id"])
	require.EqualValues(t, 70, m["retention_rate"])
	require.Contains(t, m, "last_study_date")
	require.Nil(t, m["last_study_date"])
	require.Equal(t, "2024-01-05T10:00:00Z", m["synced_at"])

	back := FromProgressDTO(ToProgressDTO(model.ProgressSnapshot{DeckID: "d2", CurrentStreakDays: 4}))
	require.Equal(t, 4, back.CurrentStreakDays)
}

func TestChangelogAndNotifications_Mapping(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	cl := FromChangelogResponse(ToChangelogResponse(model.Changelog{
		DeckID: "d", Title: "T", CurrentVersion: "2",
		Versions: []model.ChangelogVersion{{Version: "2", Notes: "new", IsCurrent: true, CreatedAt: at}, {Version: "1"}},
	}))
	require.Len(t, cl.Versions, 2)
	require.Equal(t, "new", cl.Versions[0].Notes)
	require.Equal(t, at, cl.Versions[0].CreatedAt)
	require.True(t, cl.Versions[1].CreatedAt.IsZero())

	page := FromNotificationsResponse(ToNotificationsResponse(model.NotificationPage{
		Notifications: []model.Notification{{ID: "n1", Title: "hi"}},
		UnreadCount:   1, TotalCount: 3,
	}))
	require.Equal(t, "n1", page.Notifications[0].ID)
	require.Equal(t, 3, page.TotalCount)
}
