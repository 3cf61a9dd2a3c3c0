package service

import (
	"context"
	"strings"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// EmployeeStore is the persistence surface the employee service needs.
type EmployeeStore interface {
	Upsert(ctx context.Context, e *repository.Employee) error
	GetByUID(ctx context.Context, uid string) (*repository.Employee, error)
	List(ctx context.Context) ([]*repository.Employee, error)
	AddCertificate(ctx context.Context, c *repository.Certificate) (string, error)
	ListCertificates(ctx context.Context, employeeUID string) ([]*repository.Certificate, error)
	AddEvaluation(ctx context.Context, e *repository.Evaluation) (string, error)
	ListEvaluations(ctx context.Context, employeeUID string) ([]*repository.Evaluation, error)
}

// SheetFetcher looks up an employee row in the external spreadsheet bridge.
type SheetFetcher interface {
	FetchByNationalID(ctx context.Context, nationalID string) (map[string]string, error)
}

// FileLinker resolves stored certificate paths to temporary download URLs.
type FileLinker interface {
	PresignDownload(ctx context.Context, path string) (string, error)
}

// EmployeeService manages employee profiles, certificates and evaluations.
// Writes are restricted to the administrative tier; an employee may always
// read their own records.
type EmployeeService struct {
	store EmployeeStore
	sheet SheetFetcher
	files FileLinker
	log   *logger.Logger
}

// NewEmployeeService creates a new EmployeeService.
func NewEmployeeService(store EmployeeStore, sheet SheetFetcher, files FileLinker, log *logger.Logger) *EmployeeService {
	return &EmployeeService{store: store, sheet: sheet, files: files, log: log}
}

func requireHRTier(actor *auth.Actor) error {
	if actor == nil {
		return apperrors.New(apperrors.ErrCodeUnauthorized, "not authenticated")
	}
	if !auth.IsHRTier(actor.Role) {
		return apperrors.New(apperrors.ErrCodeForbidden, "requires an administrative role")
	}
	return nil
}

func canReadEmployee(actor *auth.Actor, uid string) error {
	if actor == nil {
		return apperrors.New(apperrors.ErrCodeUnauthorized, "not authenticated")
	}
	if actor.UID == uid || auth.IsHRTier(actor.Role) {
		return nil
	}
	return apperrors.New(apperrors.ErrCodeForbidden, "cannot read another employee's records")
}

// UpsertProfile creates or updates an employee profile.
func (s *EmployeeService) UpsertProfile(ctx context.Context, actor *auth.Actor, e *repository.Employee) (*repository.Employee, error) {
	if err := requireHRTier(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.UID) == "" {
		return nil, apperrors.InvalidInput("uid", "must not be empty")
	}
	if strings.TrimSpace(e.FullName) == "" {
		return nil, apperrors.InvalidInput("fullName", "must not be empty")
	}

	if err := s.store.Upsert(ctx, e); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("employee_uid", e.UID).
		Str("actor_uid", actor.UID).
		Msg("employee profile upserted")
	return e, nil
}

// GetProfile returns one employee profile.
func (s *EmployeeService) GetProfile(ctx context.Context, actor *auth.Actor, uid string) (*repository.Employee, error) {
	if err := canReadEmployee(actor, uid); err != nil {
		return nil, err
	}
	return s.store.GetByUID(ctx, uid)
}

// ListProfiles returns all employee profiles. Administrative tier only.
func (s *EmployeeService) ListProfiles(ctx context.Context, actor *auth.Actor) ([]*repository.Employee, error) {
	if err := requireHRTier(actor); err != nil {
		return nil, err
	}
	return s.store.List(ctx)
}

// AddCertificate records certificate metadata after the file was uploaded to
// the object store.
func (s *EmployeeService) AddCertificate(ctx context.Context, actor *auth.Actor, c *repository.Certificate) (*repository.Certificate, error) {
	if err := requireHRTier(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(c.EmployeeUID) == "" {
		return nil, apperrors.InvalidInput("employeeUid", "must not be empty")
	}
	if strings.TrimSpace(c.Title) == "" {
		return nil, apperrors.InvalidInput("title", "must not be empty")
	}
	if strings.TrimSpace(c.Path) == "" {
		return nil, apperrors.InvalidInput("path", "must not be empty")
	}

	// The profile must exist before certificates can attach to it.
	if _, err := s.store.GetByUID(ctx, c.EmployeeUID); err != nil {
		return nil, err
	}

	if _, err := s.store.AddCertificate(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCertificates returns an employee's certificates with fresh download
// URLs. A link that cannot be presigned is returned with its stored URL.
func (s *EmployeeService) ListCertificates(ctx context.Context, actor *auth.Actor, employeeUID string) ([]*repository.Certificate, error) {
	if err := canReadEmployee(actor, employeeUID); err != nil {
		return nil, err
	}

	certs, err := s.store.ListCertificates(ctx, employeeUID)
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		u, err := s.files.PresignDownload(ctx, c.Path)
		if err != nil {
			s.log.Warn().Err(err).Str("path", c.Path).Msg("failed to presign certificate download")
			continue
		}
		c.URL = u
	}
	return certs, nil
}

// AddEvaluation records one evaluation for an employee.
func (s *EmployeeService) AddEvaluation(ctx context.Context, actor *auth.Actor, e *repository.Evaluation) (*repository.Evaluation, error) {
	if err := requireHRTier(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.EmployeeUID) == "" {
		return nil, apperrors.InvalidInput("employeeUid", "must not be empty")
	}
	if strings.TrimSpace(e.Period) == "" {
		return nil, apperrors.InvalidInput("period", "must not be empty")
	}
	if e.Score < 0 || e.Score > 100 {
		return nil, apperrors.InvalidInput("score", "must be between 0 and 100")
	}

	if _, err := s.store.GetByUID(ctx, e.EmployeeUID); err != nil {
		return nil, err
	}

	if _, err := s.store.AddEvaluation(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// ListEvaluations returns an employee's evaluations.
func (s *EmployeeService) ListEvaluations(ctx context.Context, actor *auth.Actor, employeeUID string) ([]*repository.Evaluation, error) {
	if err := canReadEmployee(actor, employeeUID); err != nil {
		return nil, err
	}
	return s.store.ListEvaluations(ctx, employeeUID)
}

// SheetRow proxies a spreadsheet bridge lookup for an employee's national id.
func (s *EmployeeService) SheetRow(ctx context.Context, actor *auth.Actor, nationalID string) (map[string]string, error) {
	if err := requireHRTier(actor); err != nil {
		return nil, err
	}
	if strings.TrimSpace(nationalID) == "" {
		return nil, apperrors.InvalidInput("nationalId", "must not be empty")
	}
	return s.sheet.FetchByNationalID(ctx, nationalID)
}
