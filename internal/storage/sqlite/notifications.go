package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mmynk/splitledger/internal/errs"
	"github.com/mmynk/splitledger/internal/models"
)

// CreateNotification persists a notification for a member.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().Unix()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notifications (id, member_id, kind, title, message, data, read, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.MemberID, n.Kind, n.Title, n.Message, n.Data, boolToInt(n.Read), n.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// ListNotifications retrieves a member's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, memberID string, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, member_id, kind, title, message, data, read, created_at
		 FROM notifications WHERE member_id = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		memberID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(&n.ID, &n.MemberID, &n.Kind, &n.Title, &n.Message, &n.Data, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationRead marks one of the member's notifications read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, memberID, notificationID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE id = ? AND member_id = ?", notificationID, memberID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.Newf(errs.ErrNotFound, "notification %s not found", notificationID)
	}
	return nil
}

// MarkAllNotificationsRead marks every notification of the member read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, memberID string) error {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = 1 WHERE member_id = ? AND read = 0", memberID); err != nil {
		return fmt.Errorf("failed to mark notifications read: %w", err)
	}
	return nil
}
