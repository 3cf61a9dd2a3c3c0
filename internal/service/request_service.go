package service

import (
	"context"
	"strings"
	"time"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/directory"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// RequestStore is the repository contract the workflow service needs.
type RequestStore interface {
	Create(ctx context.Context, req *repository.InternalRequest, recipient directory.Recipient) (string, error)
	GetByID(ctx context.Context, id string) (*repository.InternalRequest, error)
	UpdateWorkflow(ctx context.Context, id string, mutate func(*repository.InternalRequest) (*repository.WorkflowUpdate, error)) error
	AddAttachments(ctx context.Context, id string, items []repository.Attachment) error
	List(ctx context.Context, f repository.ListFilter) ([]*repository.InternalRequest, error)
}

// UserResolver resolves recipient keys to currently bound users. Resolution
// happens fresh per action so rebinding a recipient takes effect immediately.
type UserResolver interface {
	ResolveByRecipientKey(ctx context.Context, key string) (*repository.User, error)
	ResolveUIDsByRecipientKeys(ctx context.Context, keys []string) ([]string, error)
}

// ActionNotifier delivers best-effort notifications for a committed workflow
// action. Implementations log failures and never propagate them.
type ActionNotifier interface {
	NotifyAction(ctx context.Context, req *repository.InternalRequest, actionType repository.ActionType, actorUID, targetUID string)
}

// EventPublisher emits change events for live subscribers. Best-effort.
type EventPublisher interface {
	PublishRequestUpdated(ctx context.Context, requestID string)
}

// RequestService implements the internal-request workflow: creation with
// per-recipient numbering, the action state machine, attachments and the
// inbox/outbox/archive views.
type RequestService struct {
	requests RequestStore
	users    UserResolver
	notifier ActionNotifier
	events   EventPublisher
	log      *logger.Logger

	allowTerminalAttachments bool
}

// NewRequestService creates a new RequestService.
func NewRequestService(
	requests RequestStore,
	users UserResolver,
	notifier ActionNotifier,
	events EventPublisher,
	log *logger.Logger,
	allowTerminalAttachments bool,
) *RequestService {
	return &RequestService{
		requests: requests,
		users:    users,
		notifier: notifier,
		events:   events,
		log:      log,

		allowTerminalAttachments: allowTerminalAttachments,
	}
}

// ── Creation ─────────────────────────────────────────────────────────────────

// CreateRequestInput is the creation intent.
type CreateRequestInput struct {
	Title       string
	Type        string
	Description string

	CreatedByUID          string
	CreatedByEmail        string
	CreatedByRole         string
	CreatedByRecipientKey string

	MainRecipientKey string
	CCRecipientKeys  []string
}

// CreateRequest validates the input, resolves the main recipient's bound
// user, allocates the per-recipient sequence and writes the request with its
// initial submitted action — all-or-nothing. The submission notification is
// dispatched after commit and never fails the call.
func (s *RequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (string, error) {
	if strings.TrimSpace(in.Title) == "" {
		return "", apperrors.InvalidInput("title", "must not be empty")
	}
	if in.MainRecipientKey == "" {
		return "", apperrors.InvalidInput("mainRecipientKey", "must not be empty")
	}
	if in.MainRecipientKey == in.CreatedByRecipientKey {
		return "", apperrors.SelfTarget(in.MainRecipientKey)
	}

	recipient, ok := directory.ByKey(in.MainRecipientKey)
	if !ok {
		return "", apperrors.NotFound("recipient", in.MainRecipientKey)
	}

	assignee, err := s.users.ResolveByRecipientKey(ctx, recipient.Key)
	if err != nil {
		return "", err
	}
	if assignee == nil {
		return "", apperrors.NotFound("user bound to recipient", recipient.Key)
	}

	ccUIDs, err := s.users.ResolveUIDsByRecipientKeys(ctx, in.CCRecipientKeys)
	if err != nil {
		return "", err
	}

	reqType := in.Type
	if reqType == "" {
		reqType = "general"
	}

	now := time.Now()
	req := &repository.InternalRequest{
		Title:       in.Title,
		Type:        reqType,
		Description: in.Description,

		CreatedByUID:          in.CreatedByUID,
		CreatedByEmail:        optional(in.CreatedByEmail),
		CreatedByRecipientKey: optional(in.CreatedByRecipientKey),

		Status:             repository.StatusOpen,
		CurrentAssigneeKey: &recipient.Key,
		CurrentAssigneeUID: &assignee.ID,

		CCRecipientKeys: dedupeKeys(in.CCRecipientKeys),
		CCUIDs:          ccUIDs,

		Actions: []repository.RequestAction{{
			At:             now,
			FromUID:        in.CreatedByUID,
			FromRole:       in.CreatedByRole,
			ToUID:          &assignee.ID,
			ToRole:         &assignee.Role,
			ToRecipientKey: &recipient.Key,
			ActionType:     repository.ActionSubmitted,
			Comment:        "",
		}},
		Attachments: []repository.Attachment{},
	}
	if req.CCRecipientKeys == nil {
		req.CCRecipientKeys = []string{}
	}
	if req.CCUIDs == nil {
		req.CCUIDs = []string{}
	}

	id, err := s.requests.Create(ctx, req, recipient)
	if err != nil {
		return "", err
	}

	s.log.Info().
		Str("request_id", id).
		Str("request_number", req.RequestNumber).
		Str("main_recipient", recipient.Key).
		Msg("Internal request created")

	s.dispatch(req, repository.ActionSubmitted, in.CreatedByUID, assignee.ID)
	return id, nil
}

// ── Actions ──────────────────────────────────────────────────────────────────

// ActionInput is one workflow action intent.
type ActionInput struct {
	RequestID  string
	ActionType repository.ActionType
	Cancel     bool
	Comment    string

	ActorUID          string
	ActorRole         string
	ActorRecipientKey string

	TargetRecipientKey string
}

// PerformAction validates and applies one workflow action. Validation and the
// append/status update run inside one repository transaction under a row
// lock; notifications and change events go out only after commit.
func (s *RequestService) PerformAction(ctx context.Context, in ActionInput) error {
	tin := TransitionInput{
		Action:            in.ActionType,
		Cancel:            in.Cancel,
		Comment:           in.Comment,
		ActorUID:          in.ActorUID,
		ActorRole:         in.ActorRole,
		ActorRecipientKey: in.ActorRecipientKey,
		Now:               time.Now(),
	}

	// Forward targets resolve before the transaction; the binding is looked
	// up fresh on every action.
	if in.ActionType == repository.ActionForwarded {
		if in.TargetRecipientKey == "" {
			return apperrors.InvalidInput("targetRecipientKey", "required for forwarding")
		}
		if _, ok := directory.ByKey(in.TargetRecipientKey); !ok {
			return apperrors.NotFound("recipient", in.TargetRecipientKey)
		}
		target, err := s.users.ResolveByRecipientKey(ctx, in.TargetRecipientKey)
		if err != nil {
			return err
		}
		if target == nil {
			return apperrors.NotFound("user bound to recipient", in.TargetRecipientKey)
		}
		tin.TargetRecipientKey = in.TargetRecipientKey
		tin.TargetUID = target.ID
		tin.TargetRole = target.Role
	}

	var updated *repository.InternalRequest
	var priorAssigneeUID string
	err := s.requests.UpdateWorkflow(ctx, in.RequestID, func(req *repository.InternalRequest) (*repository.WorkflowUpdate, error) {
		if req.CurrentAssigneeUID != nil {
			priorAssigneeUID = *req.CurrentAssigneeUID
		}

		upd, err := NextState(req, tin)
		if err != nil {
			return nil, err
		}

		// Snapshot for post-commit fan-out.
		after := *req
		after.Status = upd.Status
		after.CurrentAssigneeKey = upd.AssigneeKey
		after.CurrentAssigneeUID = upd.AssigneeUID
		after.Archived = upd.Archived
		after.Actions = append(append([]repository.RequestAction{}, req.Actions...), upd.Action)
		updated = &after

		return upd, nil
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("request_id", in.RequestID).
		Str("action", string(in.ActionType)).
		Bool("cancel", in.Cancel).
		Str("status", string(updated.Status)).
		Msg("Workflow action applied")

	notifyType := in.ActionType
	notifyTarget := tin.TargetUID
	if in.Cancel {
		// The cancellation clears the assignment; the notification still has
		// to reach whoever held the request.
		notifyType = repository.ActionCancelled
		notifyTarget = priorAssigneeUID
	}
	s.dispatch(updated, notifyType, in.ActorUID, notifyTarget)
	return nil
}

// ── Attachments ──────────────────────────────────────────────────────────────

// AddAttachments appends attachment metadata after an access check. Whether
// terminal requests still accept attachments is a deployment choice.
func (s *RequestService) AddAttachments(ctx context.Context, requestID string, actorUID, actorRecipientKey, actorRole string, items []repository.Attachment) error {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}

	perms := CanAct(req, actorUID, actorRecipientKey, actorRole)
	if !perms.CanAttach {
		return apperrors.New(apperrors.ErrCodeForbidden, "not allowed to attach files to this request")
	}
	if req.Status.Terminal() && !s.allowTerminalAttachments {
		return apperrors.InvalidTransition("attach", string(req.Status))
	}

	if err := s.requests.AddAttachments(ctx, requestID, items); err != nil {
		return err
	}
	s.events.PublishRequestUpdated(context.WithoutCancel(ctx), requestID)
	return nil
}

// ── Views ────────────────────────────────────────────────────────────────────

// GetRequest fetches one request.
func (s *RequestService) GetRequest(ctx context.Context, id string) (*repository.InternalRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ViewOptions narrows a list view.
type ViewOptions struct {
	Status    repository.RequestStatus
	TitleLike string
	DateFrom  *time.Time
	DateTo    *time.Time
	InboxKind string // all | primary | cc
}

// Inbox returns the active requests a recipient should act on or is copied
// on: the union of "assigned to my key" and "cc'd to my key", de-duplicated
// by id with the assigned stream taking precedence.
func (s *RequestService) Inbox(ctx context.Context, recipientKey string, opts ViewOptions) ([]*repository.InternalRequest, error) {
	if recipientKey == "" {
		return nil, apperrors.New(apperrors.ErrCodeForbidden, "caller has no recipient binding")
	}

	active := false
	base := repository.ListFilter{
		Archived:  &active,
		Status:    opts.Status,
		TitleLike: opts.TitleLike,
		DateFrom:  opts.DateFrom,
		DateTo:    opts.DateTo,
	}

	var primary, cc []*repository.InternalRequest
	var err error

	if opts.InboxKind == "" || opts.InboxKind == "all" || opts.InboxKind == "primary" {
		f := base
		f.AssigneeKey = recipientKey
		if primary, err = s.requests.List(ctx, f); err != nil {
			return nil, err
		}
	}
	if opts.InboxKind == "" || opts.InboxKind == "all" || opts.InboxKind == "cc" {
		f := base
		f.CCRecipientKey = recipientKey
		if cc, err = s.requests.List(ctx, f); err != nil {
			return nil, err
		}
	}

	return mergeByID(primary, cc), nil
}

// Outbox returns the requests a user created, newest first.
func (s *RequestService) Outbox(ctx context.Context, uid string, opts ViewOptions) ([]*repository.InternalRequest, error) {
	archived := false
	return s.requests.List(ctx, repository.ListFilter{
		CreatedByUID: uid,
		Archived:     &archived,
		Status:       opts.Status,
		TitleLike:    opts.TitleLike,
		DateFrom:     opts.DateFrom,
		DateTo:       opts.DateTo,
	})
}

// Archive returns terminal requests the caller owns or was copied on.
func (s *RequestService) Archive(ctx context.Context, uid, recipientKey string, opts ViewOptions) ([]*repository.InternalRequest, error) {
	archived := true
	base := repository.ListFilter{
		Archived:  &archived,
		Status:    opts.Status,
		TitleLike: opts.TitleLike,
		DateFrom:  opts.DateFrom,
		DateTo:    opts.DateTo,
	}

	f := base
	f.CreatedByUID = uid
	own, err := s.requests.List(ctx, f)
	if err != nil {
		return nil, err
	}

	var copied []*repository.InternalRequest
	if recipientKey != "" {
		f = base
		f.CCRecipientKey = recipientKey
		if copied, err = s.requests.List(ctx, f); err != nil {
			return nil, err
		}
	}

	return mergeByID(own, copied), nil
}

// ── Internal helpers ─────────────────────────────────────────────────────────

// dispatch sends notifications and the change event for a committed action.
// Detached: the workflow action has already succeeded, failures here are
// logged by the notifier and never reach the caller.
func (s *RequestService) dispatch(req *repository.InternalRequest, actionType repository.ActionType, actorUID, targetUID string) {
	ctx := context.Background()
	go func() {
		s.notifier.NotifyAction(ctx, req, actionType, actorUID, targetUID)
		s.events.PublishRequestUpdated(ctx, req.ID)
	}()
}

// mergeByID unions two request lists keeping the first list's entry on
// duplicate ids and the overall createdAt-descending order.
func mergeByID(primary, secondary []*repository.InternalRequest) []*repository.InternalRequest {
	seen := make(map[string]bool, len(primary))
	out := make([]*repository.InternalRequest, 0, len(primary)+len(secondary))
	for _, r := range primary {
		seen[r.ID] = true
		out = append(out, r)
	}
	for _, r := range secondary {
		if !seen[r.ID] {
			out = append(out, r)
		}
	}
	// Re-sort: both inputs are createdAt-descending, the union may interleave.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].CreatedAt.After(out[j-1].CreatedAt); j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func dedupeKeys(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, k := range in {
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
