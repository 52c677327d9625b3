package service

import (
	"context"
	"testing"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository/memory"
)

type limitRecorder struct {
	*memory.Notifications
	limits []int
}

func (r *limitRecorder) List(ctx context.Context, uid uuid.UUID, limit int) ([]model.Notification, int, int, error) {
	r.limits = append(r.limits, limit)
	return r.Notifications.List(ctx, uid, limit)
}

func TestNotifications_Check(t *testing.T) {
	ctx := context.Background()
	repo := &limitRecorder{Notifications: memory.NewNotifications()}
	svc := NewNotificationService(repo)
	uid := uuid.Must(uuid.NewV4())

	page, err := svc.Check(ctx, uid, false, 0)
	require.NoError(t, err)
	require.NotNil(t, page.Notifications)
	require.Empty(t, page.Notifications)

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.Announce(ctx, uid, model.Notification{Title: "news"}))
	}
	page, err = svc.Check(ctx, uid, true, 2)
	require.NoError(t, err)
	require.Len(t, page.Notifications, 2)
	require.Equal(t, "announcement", page.Notifications[0].Type)
	require.Equal(t, 1, page.UnreadCount)
	require.Equal(t, 3, page.TotalCount)

	page, err = svc.Check(ctx, uid, true, 500)
	require.NoError(t, err)
	require.Equal(t, 0, page.UnreadCount)

	require.Equal(t, []int{DefaultNotificationLimit, 2, MaxNotificationLimit}, repo.limits)
}
