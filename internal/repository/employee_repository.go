package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/database"
)

// EmployeeRepository stores employee profiles, certificate metadata and
// evaluation records.
type EmployeeRepository struct {
	db *database.DB
}

// NewEmployeeRepository creates a new EmployeeRepository.
func NewEmployeeRepository(db *database.DB) *EmployeeRepository {
	return &EmployeeRepository{db: db}
}

// Upsert creates or updates an employee profile keyed by uid.
func (r *EmployeeRepository) Upsert(ctx context.Context, e *Employee) error {
	err := r.db.QueryRow(ctx, `
		INSERT INTO employees (uid, national_id, full_name, job_title, department, hired_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uid) DO UPDATE
		SET national_id = EXCLUDED.national_id,
		    full_name   = EXCLUDED.full_name,
		    job_title   = EXCLUDED.job_title,
		    department  = EXCLUDED.department,
		    hired_at    = EXCLUDED.hired_at
		RETURNING created_at
	`, e.UID, e.NationalID, e.FullName, e.JobTitle, e.Department, e.HiredAt).Scan(&e.CreatedAt)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to upsert employee")
	}
	return nil
}

// GetByUID retrieves one employee profile.
func (r *EmployeeRepository) GetByUID(ctx context.Context, uid string) (*Employee, error) {
	e := &Employee{}
	err := r.db.QueryRow(ctx, `
		SELECT uid, national_id, full_name, job_title, department, hired_at, created_at
		FROM employees WHERE uid = $1
	`, uid).Scan(&e.UID, &e.NationalID, &e.FullName, &e.JobTitle, &e.Department, &e.HiredAt, &e.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("employee", uid)
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to get employee")
	}
	return e, nil
}

// List returns all employee profiles ordered by name.
func (r *EmployeeRepository) List(ctx context.Context) ([]*Employee, error) {
	rows, err := r.db.Query(ctx, `
		SELECT uid, national_id, full_name, job_title, department, hired_at, created_at
		FROM employees
		ORDER BY full_name
	`)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list employees")
	}
	defer rows.Close()

	var out []*Employee
	for rows.Next() {
		e := &Employee{}
		if err := rows.Scan(&e.UID, &e.NationalID, &e.FullName, &e.JobTitle, &e.Department, &e.HiredAt, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// AddCertificate records certificate metadata for an employee.
func (r *EmployeeRepository) AddCertificate(ctx context.Context, c *Certificate) (string, error) {
	c.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO certificates (id, employee_uid, title, path, url, content_type)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING uploaded_at
	`, c.ID, c.EmployeeUID, c.Title, c.Path, c.URL, c.ContentType).Scan(&c.UploadedAt)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to add certificate")
	}
	return c.ID, nil
}

// ListCertificates returns an employee's certificates newest first.
func (r *EmployeeRepository) ListCertificates(ctx context.Context, employeeUID string) ([]*Certificate, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, employee_uid, title, path, url, content_type, uploaded_at
		FROM certificates
		WHERE employee_uid = $1
		ORDER BY uploaded_at DESC
	`, employeeUID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list certificates")
	}
	defer rows.Close()

	var out []*Certificate
	for rows.Next() {
		c := &Certificate{}
		if err := rows.Scan(&c.ID, &c.EmployeeUID, &c.Title, &c.Path, &c.URL, &c.ContentType, &c.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// AddEvaluation records one evaluation.
func (r *EmployeeRepository) AddEvaluation(ctx context.Context, e *Evaluation) (string, error) {
	e.ID = uuid.NewString()
	err := r.db.QueryRow(ctx, `
		INSERT INTO evaluations (id, employee_uid, period, score, notes)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, e.ID, e.EmployeeUID, e.Period, e.Score, e.Notes).Scan(&e.CreatedAt)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to add evaluation")
	}
	return e.ID, nil
}

// ListEvaluations returns an employee's evaluations newest first.
func (r *EmployeeRepository) ListEvaluations(ctx context.Context, employeeUID string) ([]*Evaluation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, employee_uid, period, score, notes, created_at
		FROM evaluations
		WHERE employee_uid = $1
		ORDER BY created_at DESC
	`, employeeUID)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to list evaluations")
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		e := &Evaluation{}
		if err := rows.Scan(&e.ID, &e.EmployeeUID, &e.Period, &e.Score, &e.Notes, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
