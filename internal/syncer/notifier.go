package syncer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/decksync/internal/config"
	"github.com/and161185/decksync/internal/model"
)

// DefaultNotificationInterval is the minimum time between notification checks.
const DefaultNotificationInterval = 15 * time.Minute

// NotificationAPI fetches notifications.
type NotificationAPI interface {
	CheckNotifications(ctx context.Context, markAsRead bool, limit int) (model.NotificationPage, error)
}

// Notifier polls notifications and remembers the unread count and last check time.
type Notifier struct {
	api      NotificationAPI
	store    config.Store
	interval time.Duration
	now      func() time.Time
	log      *zap.Logger
}

// NewNotifier wires a notifier. A non-positive interval selects the default. log may be nil.
func NewNotifier(a NotificationAPI, store config.Store, interval time.Duration, log *zap.Logger) *Notifier {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultNotificationInterval
	}
	return &Notifier{api: a, store: store, interval: interval, now: time.Now, log: log}
}

// ShouldCheck reports whether the interval has passed since the last check. A missing or
// unparsable timestamp means yes.
func (n *Notifier) ShouldCheck() bool {
	var s string
	ok, err := n.store.Get(config.KeyLastNotificationCheck, &s)
	if err != nil || !ok {
		return true
	}
	last, ok := parseCheckTime(s)
	if !ok {
		return true
	}
	return n.now().Sub(last) >= n.interval
}

// Check fetches up to limit notifications and records the check.
func (n *Notifier) Check(ctx context.Context, markAsRead bool, limit int) (model.NotificationPage, error) {
	page, err := n.api.CheckNotifications(ctx, markAsRead, limit)
	if err != nil {
		return page, err
	}
	if page.UnreadCount < 0 {
		page.UnreadCount = 0
	}
	err = n.store.SetMany(map[string]any{
		config.KeyLastNotificationCheck:   n.now().Format(time.RFC3339),
		config.KeyUnreadNotificationCount: page.UnreadCount,
	})
	if err != nil {
		return page, fmt.Errorf("record notification check: %w", err)
	}
	n.log.Debug("notifications checked", zap.Int("returned", len(page.Notifications)), zap.Int("unread", page.UnreadCount))
	return page, nil
}

// CheckIfDue runs Check only when ShouldCheck allows it. It reports whether a check happened.
func (n *Notifier) CheckIfDue(ctx context.Context, limit int) (model.NotificationPage, bool, error) {
	if !n.ShouldCheck() {
		return model.NotificationPage{UnreadCount: n.UnreadCount()}, false, nil
	}
	page, err := n.Check(ctx, false, limit)
	return page, true, err
}

// UnreadCount returns the stored unread count, never negative.
func (n *Notifier) UnreadCount() int {
	var c int
	if _, err := n.store.Get(config.KeyUnreadNotificationCount, &c); err != nil || c < 0 {
		return 0
	}
	return c
}

var checkTimeLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"}

// parseCheckTime accepts RFC 3339 and the zone-less ISO form older state files carry; the latter
// is read as local time.
func parseCheckTime(s string) (time.Time, bool) {
	for _, l := range checkTimeLayouts {
		if t, err := time.ParseInLocation(l, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
