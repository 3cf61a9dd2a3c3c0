package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/database"
)

// NotificationRepository writes and reads per-user mailbox entries. A fan-out
// call's batch is inserted in one transaction: all recipients get the entry
// or none do.
type NotificationRepository struct {
	db *database.DB
}

// NewNotificationRepository creates a new NotificationRepository.
func NewNotificationRepository(db *database.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// CreateBatch inserts one notification per entry atomically.
func (r *NotificationRepository) CreateBatch(ctx context.Context, items []*Notification) error {
	if len(items) == 0 {
		return nil
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		for _, n := range items {
			if n.ID == "" {
				n.ID = uuid.NewString()
			}
			err := tx.QueryRow(ctx, `
				INSERT INTO notifications
				    (id, user_id, title, body, type, link, request_id, announcement_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING created_at
			`, n.ID, n.UserID, n.Title, n.Body, n.Type, n.Link, n.RequestID, n.AnnouncementID,
			).Scan(&n.CreatedAt)
			if err != nil {
				return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to write notification")
			}
		}
		return nil
	})
}

// ListForUser returns a user's notifications newest first.
func (r *NotificationRepository) ListForUser(ctx context.Context, userID string, limit int) ([]*Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, body, type, link, request_id, announcement_id,
		       read, created_at, read_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list notifications")
	}
	defer rows.Close()

	var out []*Notification
	for rows.Next() {
		n := &Notification{}
		err := rows.Scan(
			&n.ID, &n.UserID, &n.Title, &n.Body, &n.Type, &n.Link,
			&n.RequestID, &n.AnnouncementID, &n.Read, &n.CreatedAt, &n.ReadAt,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkRead marks one notification read. Only the owner may mutate their
// mailbox, so the user id is part of the match.
func (r *NotificationRepository) MarkRead(ctx context.Context, userID, notificationID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET read = TRUE, read_at = now()
		WHERE id = $1 AND user_id = $2 AND NOT read
	`, notificationID, userID)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to mark notification read")
	}
	if tag.RowsAffected() == 0 {
		// Already read or not owned; treat the latter as absent.
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE id = $1 AND user_id = $2)`,
			notificationID, userID).Scan(&exists); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to check notification")
		}
		if !exists {
			return apperrors.NotFound("notification", notificationID)
		}
	}
	return nil
}

// CountUnread returns the number of unread notifications for a user.
func (r *NotificationRepository) CountUnread(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1 AND NOT read`, userID,
	).Scan(&count)
	if err != nil {
		return 0, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to count unread notifications")
	}
	return count, nil
}
