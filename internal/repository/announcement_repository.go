package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/database"
)

// AnnouncementRepository stores announcements and their audience tokens.
type AnnouncementRepository struct {
	db *database.DB
}

// NewAnnouncementRepository creates a new AnnouncementRepository.
func NewAnnouncementRepository(db *database.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// Create inserts an announcement and returns its id.
func (r *AnnouncementRepository) Create(ctx context.Context, a *Announcement) (string, error) {
	a.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO announcements (id, title, body, audience_tokens, created_by_uid)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, a.ID, a.Title, a.Body, a.AudienceTokens, a.CreatedByUID).Scan(&a.CreatedAt)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create announcement")
	}
	return a.ID, nil
}

// GetByID retrieves one announcement.
func (r *AnnouncementRepository) GetByID(ctx context.Context, id string) (*Announcement, error) {
	a := &Announcement{}
	err := r.db.QueryRow(ctx, `
		SELECT id, title, body, audience_tokens, created_by_uid, created_at
		FROM announcements WHERE id = $1
	`, id).Scan(&a.ID, &a.Title, &a.Body, &a.AudienceTokens, &a.CreatedByUID, &a.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("announcement", id)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to get announcement")
	}
	return a, nil
}

// List returns announcements newest first.
func (r *AnnouncementRepository) List(ctx context.Context, limit int) ([]*Announcement, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, title, body, audience_tokens, created_by_uid, created_at
		FROM announcements
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list announcements")
	}
	defer rows.Close()

	var out []*Announcement
	for rows.Next() {
		a := &Announcement{}
		if err := rows.Scan(&a.ID, &a.Title, &a.Body, &a.AudienceTokens, &a.CreatedByUID, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
