package service

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/decksync/internal/model"
	"github.com/and161185/decksync/internal/repository"
)

// Page size bounds for notification checks.
const (
	DefaultNotificationLimit = 10
	MaxNotificationLimit     = 50
)

// NotificationService lists and acknowledges user notifications.
type NotificationService interface {
	// Check returns the newest notifications, marking them read when asked.
	Check(ctx context.Context, userID uuid.UUID, markAsRead bool, limit int) (model.NotificationPage, error)
	// Announce stores a notification for one user.
	Announce(ctx context.Context, userID uuid.UUID, n model.Notification) error
}

type NotificationServiceImpl struct {
	repo repository.NotificationRepository
}

// NewNotificationService constructs NotificationService.
func NewNotificationService(repo repository.NotificationRepository) *NotificationServiceImpl {
	return &NotificationServiceImpl{repo: repo}
}

// Check clamps limit to [1, MaxNotificationLimit]. Marking read affects only the returned page; the
// returned items keep the read flag they had when fetched while the unread count reflects the update.
func (s *NotificationServiceImpl) Check(ctx context.Context, userID uuid.UUID, markAsRead bool, limit int) (model.NotificationPage, error) {
	switch {
	case limit <= 0:
		limit = DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		limit = MaxNotificationLimit
	}
	items, unread, total, err := s.repo.List(ctx, userID, limit)
	if err != nil {
		return model.NotificationPage{}, err
	}
	if items == nil {
		items = []model.Notification{}
	}
	page := model.NotificationPage{Notifications: items, UnreadCount: unread, TotalCount: total}
	if !markAsRead {
		return page, nil
	}

	var ids []uuid.UUID
	for _, n := range items {
		if n.Read {
			continue
		}
		if id, err := uuid.FromString(n.ID); err == nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return page, nil
	}
	if err := s.repo.MarkRead(ctx, userID, ids); err != nil {
		return model.NotificationPage{}, err
	}
	page.UnreadCount = max(0, unread-len(ids))
	return page, nil
}

func (s *NotificationServiceImpl) Announce(ctx context.Context, userID uuid.UUID, n model.Notification) error {
	if n.Type == "" {
		n.Type = "announcement"
	}
	return s.repo.Create(ctx, userID, n)
}
