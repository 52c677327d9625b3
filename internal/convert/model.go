package convert

import (
	"time"

	"github.com/and161185/decksync/internal/model"
)

// Descriptor normalizes a deck entry into the canonical descriptor. It reports false when the entry
// carries no usable id.
func (d DeckDTO) Descriptor() (model.RemoteDeckDescriptor, bool) {
	id := firstNonEmpty(d.DeckID, d.ID, d.MongoID)
	if id == "" {
		return model.RemoteDeckDescriptor{}, false
	}
	return model.RemoteDeckDescriptor{
		DeckID:        id,
		Title:         d.Title,
		Version:       firstNonEmpty(d.Version, d.CurrentVersion),
		CardCount:     d.CardCount,
		SyncedVersion: d.SyncedVersion,
		HasUpdate:     d.HasUpdate,
	}, true
}

// ToDeckDTO maps an owned deck to the wire. Only the canonical field names are emitted.
func ToDeckDTO(d model.OwnedDeck) DeckDTO {
	return DeckDTO{
		DeckID:        d.ID.String(),
		Title:         d.Title,
		Description:   d.Description,
		Version:       d.CurrentVersion,
		SyncedVersion: d.SyncedVersion,
		HasUpdate:     d.SyncedVersion != "" && d.SyncedVersion != d.CurrentVersion,
		CardCount:     d.CardCount,
	}
}

// ToProgressDTO maps a snapshot to the wire.
func ToProgressDTO(p model.ProgressSnapshot) ProgressDTO {
	return ProgressDTO{
		DeckID:            p.DeckID,
		TotalCards:        p.TotalCards,
		TotalCardsStudied: p.TotalCardsStudied,
		NewCardsStudied:   p.NewCardsStudied,
		CardsMastered:     p.CardsMastered,
		AverageEase:       p.AverageEase,
		StudyTimeMinutes:  p.StudyTimeMinutes,
		LastStudyDate:     p.LastStudyDate,
		RetentionRate:     p.RetentionRate,
		CurrentStreakDays: p.CurrentStreakDays,
		SyncedAt:          p.SyncedAt,
	}
}

// FromProgressDTO maps a wire snapshot to the domain.
func FromProgressDTO(p ProgressDTO) model.ProgressSnapshot {
	return model.ProgressSnapshot{
		DeckID:            p.DeckID,
		TotalCards:        p.TotalCards,
		TotalCardsStudied: p.TotalCardsStudied,
		NewCardsStudied:   p.NewCardsStudied,
		CardsMastered:     p.CardsMastered,
		AverageEase:       p.AverageEase,
		StudyTimeMinutes:  p.StudyTimeMinutes,
		LastStudyDate:     p.LastStudyDate,
		RetentionRate:     p.RetentionRate,
		CurrentStreakDays: p.CurrentStreakDays,
		SyncedAt:          p.SyncedAt,
	}
}

// ToProgressDTOs maps a batch of snapshots.
func ToProgressDTOs(ps []model.ProgressSnapshot) []ProgressDTO {
	out := make([]ProgressDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, ToProgressDTO(p))
	}
	return out
}

// FromChangelogResponse maps a changelog response to the domain.
func FromChangelogResponse(r ChangelogResponse) model.Changelog {
	cl := model.Changelog{
		DeckID:            r.DeckID,
		Title:             r.Title,
		CurrentVersion:    r.CurrentVersion,
		UserSyncedVersion: r.UserSyncedVersion,
		IsUpToDate:        r.IsUpToDate,
		Versions:          make([]model.ChangelogVersion, 0, len(r.Versions)),
	}
	for _, v := range r.Versions {
		cv := model.ChangelogVersion{
			Version:   v.Version,
			Notes:     v.VersionNotes,
			CardCount: v.CardCount,
			IsCurrent: v.IsCurrent,
			IsSynced:  v.IsSynced,
		}
		if v.CreatedAt != nil {
			cv.CreatedAt = *v.CreatedAt
		}
		cl.Versions = append(cl.Versions, cv)
	}
	return cl
}

// ToChangelogResponse maps a domain changelog to the wire.
func ToChangelogResponse(cl model.Changelog) ChangelogResponse {
	r := ChangelogResponse{
		Envelope:          Envelope{Success: true},
		DeckID:            cl.DeckID,
		Title:             cl.Title,
		CurrentVersion:    cl.CurrentVersion,
		UserSyncedVersion: cl.UserSyncedVersion,
		IsUpToDate:        cl.IsUpToDate,
		Versions:          make([]ChangelogVersionDTO, 0, len(cl.Versions)),
	}
	for _, v := range cl.Versions {
		r.Versions = append(r.Versions, ChangelogVersionDTO{
			Version:      v.Version,
			VersionNotes: v.Notes,
			CardCount:    v.CardCount,
			IsCurrent:    v.IsCurrent,
			IsSynced:     v.IsSynced,
			CreatedAt:    tsPtr(v.CreatedAt),
		})
	}
	return r
}

// FromNotificationsResponse maps a notifications response to the domain.
func FromNotificationsResponse(r NotificationsResponse) model.NotificationPage {
	page := model.NotificationPage{
		Notifications: make([]model.Notification, 0, len(r.Notifications)),
		UnreadCount:   r.UnreadCount,
		TotalCount:    r.TotalCount,
	}
	for _, n := range r.Notifications {
		page.Notifications = append(page.Notifications, model.Notification(n))
	}
	return page
}

// ToNotificationsResponse maps a domain page to the wire.
func ToNotificationsResponse(p model.NotificationPage) NotificationsResponse {
	r := NotificationsResponse{
		Envelope:      Envelope{Success: true},
		Notifications: make([]NotificationDTO, 0, len(p.Notifications)),
		UnreadCount:   p.UnreadCount,
		TotalCount:    p.TotalCount,
	}
	for _, n := range p.Notifications {
		r.Notifications = append(r.Notifications, NotificationDTO(n))
	}
	return r
}

// FromBatchItem maps a granted batch entry to a download grant.
func FromBatchItem(it BatchDownloadItem) model.DownloadGrant {
	return model.DownloadGrant{
		DeckID:      it.DeckID,
		Title:       it.Title,
		Version:     it.Version,
		DownloadURL: it.DownloadURL,
		ExpiresAt:   int64(it.ExpiresAt),
	}
}

func tsPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
