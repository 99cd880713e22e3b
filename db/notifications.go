package db

import (
	"context"
	"fmt"

	"pms/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const notificationColumns = `id, title, message, type, priority, user_id, is_read, expires_at,
        entity_type, entity_id, created_at`

// CreateNotification stores an inbox row.
func (s *Storage) CreateNotification(ctx context.Context, n *models.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	query := `
        INSERT INTO notifications
            (id, title, message, type, priority, user_id, is_read, expires_at, entity_type, entity_id)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7, $8, $9)
        RETURNING created_at`
	err := s.db.QueryRowxContext(ctx, query,
		n.ID, n.Title, n.Message, n.Type, n.Priority, n.UserID, n.ExpiresAt, n.EntityType, n.EntityID).
		Scan(&n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	n.IsRead = false
	return nil
}

func (s *Storage) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	n := &models.Notification{}
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = $1`
	if err := s.db.GetContext(ctx, n, query, id); err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

// ListNotifications returns the inbox of userID: rows addressed to the user
// plus broadcasts, skipping expired ones. It also returns the unread count
// over the same set.
func (s *Storage) ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]models.Notification, int, error) {
	where := `(user_id = $1 OR user_id IS NULL) AND (expires_at IS NULL OR expires_at > NOW())`

	listQuery := `SELECT ` + notificationColumns + ` FROM notifications WHERE ` + where
	if unreadOnly {
		listQuery += ` AND is_read = FALSE`
	}
	listQuery += ` ORDER BY created_at DESC`

	items := []models.Notification{}
	if err := s.db.SelectContext(ctx, &items, listQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}

	var unread int
	countQuery := `SELECT COUNT(1) FROM notifications WHERE ` + where + ` AND is_read = FALSE`
	if err := s.db.GetContext(ctx, &unread, countQuery, userID); err != nil {
		return nil, 0, fmt.Errorf("count unread notifications: %w", err)
	}
	return items, unread, nil
}

// MarkNotificationRead flips the read flag of one row visible to userID.
func (s *Storage) MarkNotificationRead(ctx context.Context, id, userID string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	query := `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND (user_id = $2 OR user_id IS NULL)`
	return execAffecting(ctx, s.db, query, id, userID)
}

// MarkAllNotificationsRead flips every unread row visible to userID and
// returns how many changed.
func (s *Storage) MarkAllNotificationsRead(ctx context.Context, userID string) (int64, error) {
	query := `UPDATE notifications SET is_read = TRUE WHERE (user_id = $1 OR user_id IS NULL) AND is_read = FALSE`
	res, err := s.db.ExecContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("mark notifications read: %w", err)
	}
	return res.RowsAffected()
}

func (s *Storage) DeleteNotification(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	return execAffecting(ctx, s.db, `DELETE FROM notifications WHERE id = $1`, id)
}

// execAffecting runs a single-row statement and maps zero affected rows to ErrNotFound.
func execAffecting(ctx context.Context, e sqlx.ExecerContext, query string, args ...interface{}) error {
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
