package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/decksync/internal/model"
)

// NotificationRepo implements NotificationRepository using PostgreSQL.
type NotificationRepo struct{ db *DB }

// NewNotificationRepo constructs a notification repository.
func NewNotificationRepo(db *DB) *NotificationRepo { return &NotificationRepo{db: db} }

// Create inserts a notification. An empty ID gets a fresh UUID.
func (r *NotificationRepo) Create(ctx context.Context, userID uuid.UUID, n model.Notification) error {
	id := uuid.Must(uuid.NewV4())
	if n.ID != "" {
		var err error
		if id, err = uuid.FromString(n.ID); err != nil {
			return fmt.Errorf("notification id: %w", err)
		}
	}
	var meta []byte
	if len(n.Metadata) > 0 {
		var err error
		if meta, err = json.Marshal(n.Metadata); err != nil {
			return err
		}
	}
	const q = `
INSERT INTO notifications (id, user_id, type, title, message, metadata, read)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.Pool.Exec(ctx, q, id, userID, n.Type, n.Title, n.Message, meta, n.Read)
	return err
}

// List returns the newest notifications and the user's counts.
func (r *NotificationRepo) List(ctx context.Context, userID uuid.UUID, limit int) ([]model.Notification, int, int, error) {
	var unread, total int
	const cnt = `SELECT count(*) FILTER (WHERE NOT read), count(*) FROM notifications WHERE user_id=$1`
	if err := r.db.Pool.QueryRow(ctx, cnt, userID).Scan(&unread, &total); err != nil {
		return nil, 0, 0, err
	}

	const q = `
SELECT id, type, title, message, metadata, read, created_at
FROM notifications WHERE user_id=$1
ORDER BY created_at DESC, id
LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, q, userID, limit)
	if err != nil {
		return nil, 0, 0, err
	}
	defer rows.Close()

	out := make([]model.Notification, 0, limit)
	for rows.Next() {
		var (
			n    model.Notification
			id   uuid.UUID
			meta []byte
		)
		if err := rows.Scan(&id, &n.Type, &n.Title, &n.Message, &meta, &n.Read, &n.CreatedAt); err != nil {
			return nil, 0, 0, err
		}
		n.ID = id.String()
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Metadata); err != nil {
				return nil, 0, 0, fmt.Errorf("notification %s metadata: %w", n.ID, err)
			}
		}
		out = append(out, n)
	}
	return out, unread, total, rows.Err()
}

// MarkRead flags notifications as read.
func (r *NotificationRepo) MarkRead(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.Pool.Exec(ctx, `UPDATE notifications SET read=true WHERE user_id=$1 AND id = ANY($2)`, userID, ids)
	return err
}
