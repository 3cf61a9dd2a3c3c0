package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/database"
	"github.com/orgdesk/hrops/internal/directory"
)

// RequestRepository stores internal requests and their append-only action
// logs. Creation allocates the per-recipient sequence in the same
// transaction as the document insert; after creation the only workflow
// mutator is UpdateWorkflow.
type RequestRepository struct {
	db *database.DB
}

// NewRequestRepository creates a new RequestRepository.
func NewRequestRepository(db *database.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

const requestColumns = `
	id, title, type, description,
	created_by_uid, created_by_email, created_by_recipient_key,
	main_recipient_key, main_recipient_label, main_recipient_number,
	sequence_for_recipient, request_number,
	status, current_assignee_key, current_assignee_uid,
	cc_recipient_keys, cc_uids, archived,
	actions, attachments,
	created_at, updated_at`

// Create inserts a request, allocating the recipient's next sequence number
// in the same transaction. The counter upsert and the document insert either
// both commit or neither does, so sequences are gapless and never reused.
// req must arrive with the submitted action already in Actions.
func (r *RequestRepository) Create(ctx context.Context, req *InternalRequest, recipient directory.Recipient) (string, error) {
	req.ID = uuid.NewString()

	err := r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		// Atomic read-modify-write of the per-recipient counter. Concurrent
		// creators targeting the same key serialize on the row.
		var seq int64
		err := tx.QueryRow(ctx, `
			INSERT INTO request_sequence_counters (recipient_key, last_sequence)
			VALUES ($1, 1)
			ON CONFLICT (recipient_key) DO UPDATE
			SET last_sequence = request_sequence_counters.last_sequence + 1,
			    updated_at    = now()
			RETURNING last_sequence
		`, recipient.Key).Scan(&seq)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to allocate request sequence")
		}

		req.MainRecipientKey = recipient.Key
		req.MainRecipientLabel = recipient.Label
		req.MainRecipientNumber = recipient.SequenceNumber
		req.SequenceForRecipient = int(seq)
		req.RequestNumber = fmt.Sprintf("%d/%d", recipient.SequenceNumber, seq)

		actionsJSON, err := json.Marshal(req.Actions)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal actions")
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO internal_requests
			    (id, title, type, description,
			     created_by_uid, created_by_email, created_by_recipient_key,
			     main_recipient_key, main_recipient_label, main_recipient_number,
			     sequence_for_recipient, request_number,
			     status, current_assignee_key, current_assignee_uid,
			     cc_recipient_keys, cc_uids, actions)
			VALUES ($1, $2, $3, $4,
			        $5, $6, $7,
			        $8, $9, $10,
			        $11, $12,
			        $13, $14, $15,
			        $16, $17, $18)
			RETURNING created_at, updated_at
		`,
			req.ID, req.Title, req.Type, req.Description,
			req.CreatedByUID, req.CreatedByEmail, req.CreatedByRecipientKey,
			req.MainRecipientKey, req.MainRecipientLabel, req.MainRecipientNumber,
			req.SequenceForRecipient, req.RequestNumber,
			req.Status, req.CurrentAssigneeKey, req.CurrentAssigneeUID,
			req.CCRecipientKeys, req.CCUIDs, actionsJSON,
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to create internal request")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return req.ID, nil
}

// GetByID retrieves a request by id.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*InternalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM internal_requests WHERE id = $1`

	req, err := scanRequest(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("internal_request", id)
	}
	return req, err
}

// UpdateWorkflow loads a request under a row lock, asks mutate for the
// validated transition, then appends the action and applies the new status,
// assignee and archived flag as one atomic update. mutate runs with the row
// locked, so two racing actions on the same request serialize and the loser
// sees the winner's state.
func (r *RequestRepository) UpdateWorkflow(ctx context.Context, id string, mutate func(*InternalRequest) (*WorkflowUpdate, error)) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `SELECT ` + requestColumns + ` FROM internal_requests WHERE id = $1 FOR UPDATE`

		req, err := scanRequest(tx.QueryRow(ctx, query, id))
		if err == pgx.ErrNoRows {
			return apperrors.NotFound("internal_request", id)
		}
		if err != nil {
			return err
		}

		upd, err := mutate(req)
		if err != nil {
			return err
		}

		appended, err := json.Marshal([]RequestAction{upd.Action})
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal action")
		}

		_, err = tx.Exec(ctx, `
			UPDATE internal_requests
			SET actions              = actions || $2::jsonb,
			    status               = $3,
			    current_assignee_key = $4,
			    current_assignee_uid = $5,
			    archived             = $6,
			    updated_at           = now()
			WHERE id = $1
		`, id, appended, upd.Status, upd.AssigneeKey, upd.AssigneeUID, upd.Archived)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to apply workflow update")
		}
		return nil
	})
}

// AddAttachments appends attachment metadata, de-duplicated by storage path.
// Existing entries are never replaced or removed, so the call is idempotent.
func (r *RequestRepository) AddAttachments(ctx context.Context, id string, items []Attachment) error {
	if len(items) == 0 {
		return nil
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var existingJSON []byte
		err := tx.QueryRow(ctx,
			`SELECT attachments FROM internal_requests WHERE id = $1 FOR UPDATE`, id,
		).Scan(&existingJSON)
		if err == pgx.ErrNoRows {
			return apperrors.NotFound("internal_request", id)
		}
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to read attachments")
		}

		var existing []Attachment
		if err := json.Unmarshal(existingJSON, &existing); err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal attachments")
		}

		seen := make(map[string]bool, len(existing))
		for _, a := range existing {
			seen[a.Path] = true
		}

		merged := existing
		for _, a := range items {
			if seen[a.Path] {
				continue
			}
			seen[a.Path] = true
			merged = append(merged, a)
		}
		if len(merged) == len(existing) {
			return nil
		}

		mergedJSON, err := json.Marshal(merged)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to marshal attachments")
		}

		_, err = tx.Exec(ctx, `
			UPDATE internal_requests
			SET attachments = $2::jsonb, updated_at = now()
			WHERE id = $1
		`, id, mergedJSON)
		if err != nil {
			return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to append attachments")
		}
		return nil
	})
}

// ListFilter selects a live view of requests. Exactly one of the identity
// filters is normally set; Archived narrows further when non-nil.
type ListFilter struct {
	CreatedByUID   string
	AssigneeKey    string
	CCRecipientKey string
	Archived       *bool

	Status    RequestStatus // optional
	TitleLike string        // optional title substring
	DateFrom  *time.Time    // optional createdAt lower bound
	DateTo    *time.Time    // optional createdAt upper bound
}

// List returns requests matching the filter ordered by creation time
// descending.
func (r *RequestRepository) List(ctx context.Context, f ListFilter) ([]*InternalRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM internal_requests WHERE 1=1`
	args := []any{}
	n := 0
	arg := func(v any) string {
		n++
		args = append(args, v)
		return fmt.Sprintf("$%d", n)
	}

	if f.CreatedByUID != "" {
		query += ` AND created_by_uid = ` + arg(f.CreatedByUID)
	}
	if f.AssigneeKey != "" {
		query += ` AND current_assignee_key = ` + arg(f.AssigneeKey)
	}
	if f.CCRecipientKey != "" {
		query += ` AND ` + arg(f.CCRecipientKey) + ` = ANY (cc_recipient_keys)`
	}
	if f.Archived != nil {
		query += ` AND archived = ` + arg(*f.Archived)
	}
	if f.Status != "" {
		query += ` AND status = ` + arg(f.Status)
	}
	if f.TitleLike != "" {
		query += ` AND title ILIKE ` + arg("%"+f.TitleLike+"%")
	}
	if f.DateFrom != nil {
		query += ` AND created_at >= ` + arg(*f.DateFrom)
	}
	if f.DateTo != nil {
		query += ` AND created_at <= ` + arg(*f.DateTo)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list internal requests")
	}
	defer rows.Close()

	out := []*InternalRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// ── scan helper ───────────────────────────────────────────────────────────────

type requestScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row requestScanner) (*InternalRequest, error) {
	req := &InternalRequest{}
	var actionsJSON, attachmentsJSON []byte

	err := row.Scan(
		&req.ID, &req.Title, &req.Type, &req.Description,
		&req.CreatedByUID, &req.CreatedByEmail, &req.CreatedByRecipientKey,
		&req.MainRecipientKey, &req.MainRecipientLabel, &req.MainRecipientNumber,
		&req.SequenceForRecipient, &req.RequestNumber,
		&req.Status, &req.CurrentAssigneeKey, &req.CurrentAssigneeUID,
		&req.CCRecipientKeys, &req.CCUIDs, &req.Archived,
		&actionsJSON, &attachmentsJSON,
		&req.CreatedAt, &req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actionsJSON, &req.Actions); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal actions")
	}
	if err := json.Unmarshal(attachmentsJSON, &req.Attachments); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to unmarshal attachments")
	}
	return req, nil
}
