package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/database"
)

// resolveChunkSize caps the key set per membership query.
const resolveChunkSize = 10

// UserRepository reads dashboard accounts and resolves recipient bindings to
// user ids. Bindings change over time, so callers resolve fresh per action
// and never persist the result as a source of truth.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `
	id, email, display_name, role, recipient_key,
	school_key, unit, school_type, tags, created_at`

// GetByID retrieves one user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// ResolveByRecipientKey returns the user currently bound to a recipient key,
// or nil when the key is unbound.
func (r *UserRepository) ResolveByRecipientKey(ctx context.Context, key string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE recipient_key = $1 LIMIT 1`
	u, err := scanUser(r.db.QueryRow(ctx, query, key))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to resolve recipient key")
	}
	return u, nil
}

// ResolveUIDsByRecipientKeys returns the ids of all users bound to any of the
// given keys, querying in chunks of at most ten keys.
func (r *UserRepository) ResolveUIDsByRecipientKeys(ctx context.Context, keys []string) ([]string, error) {
	unique := dedupe(keys)
	if len(unique) == 0 {
		return nil, nil
	}

	seen := make(map[string]bool)
	var uids []string
	for start := 0; start < len(unique); start += resolveChunkSize {
		end := start + resolveChunkSize
		if end > len(unique) {
			end = len(unique)
		}

		rows, err := r.db.Query(ctx,
			`SELECT id FROM users WHERE recipient_key = ANY ($1)`, unique[start:end])
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to resolve recipient keys")
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if !seen[id] {
				seen[id] = true
				uids = append(uids, id)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return uids, nil
}

// AllUserIDs returns every user id. Used by the all:all audience.
func (r *UserRepository) AllUserIDs(ctx context.Context) ([]string, error) {
	return r.queryIDs(ctx, `SELECT id FROM users`)
}

// AudienceFilter is the parsed form of announcement audience tokens.
type AudienceFilter struct {
	SchoolKeys  []string
	Units       []string
	Roles       []string
	Tags        []string
	SchoolTypes []string
}

// ResolveAudienceUserIDs returns the union of users matching any filter
// dimension.
func (r *UserRepository) ResolveAudienceUserIDs(ctx context.Context, f AudienceFilter) ([]string, error) {
	seen := make(map[string]bool)
	var out []string
	collect := func(ids []string) {
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}

	type dim struct {
		query  string
		values []string
	}
	dims := []dim{
		{`SELECT id FROM users WHERE school_key = ANY ($1)`, f.SchoolKeys},
		{`SELECT id FROM users WHERE unit = ANY ($1)`, f.Units},
		{`SELECT id FROM users WHERE role = ANY ($1)`, f.Roles},
		{`SELECT id FROM users WHERE tags && $1`, f.Tags},
		{`SELECT id FROM users WHERE school_type = ANY ($1)`, f.SchoolTypes},
	}
	for _, d := range dims {
		if len(d.values) == 0 {
			continue
		}
		ids, err := r.queryIDs(ctx, d.query, d.values)
		if err != nil {
			return nil, err
		}
		collect(ids)
	}
	return out, nil
}

func (r *UserRepository) queryIDs(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "failed to query users")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// ── scan helper ───────────────────────────────────────────────────────────────

type userScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userScanner) (*User, error) {
	u := &User{}
	err := row.Scan(
		&u.ID, &u.Email, &u.DisplayName, &u.Role, &u.RecipientKey,
		&u.SchoolKey, &u.Unit, &u.SchoolType, &u.Tags, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return u, nil
}
