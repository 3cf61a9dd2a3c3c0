package service

import (
	"time"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/repository"
)

// TransitionInput is one validated-to-be-applied workflow intent. Target* is
// the freshly resolved user for the target recipient key on forwards.
type TransitionInput struct {
	Action  repository.ActionType
	Cancel  bool // owner cancellation; recorded as a comment action with status cancelled
	Comment string

	ActorUID          string
	ActorRole         string
	ActorRecipientKey string

	TargetRecipientKey string
	TargetUID          string
	TargetRole         string

	Now time.Time
}

// transition is one row of the workflow transition table.
type transition struct {
	status        repository.RequestStatus
	assignTarget  bool // assignee becomes the forward target
	clearAssignee bool
	archive       bool
}

// transitions maps each action to the state it produces. Comment and cancel
// are handled separately: comment leaves state untouched, cancel is a
// comment action with an explicit cancelled status.
var transitions = map[repository.ActionType]transition{
	repository.ActionForwarded: {status: repository.StatusInProgress, assignTarget: true},
	repository.ActionApproved:  {status: repository.StatusApproved, clearAssignee: true, archive: true},
	repository.ActionRejected:  {status: repository.StatusRejected, clearAssignee: true, archive: true},
	repository.ActionClosed:    {status: repository.StatusClosed, clearAssignee: true, archive: true},
}

// NextState validates an action against the request's current state and
// returns the atomic update to apply: exactly one appended action plus the
// new status, assignee and archived flag. Pure function; callers run it
// under the repository's row lock.
func NextState(req *repository.InternalRequest, in TransitionInput) (*repository.WorkflowUpdate, error) {
	perms := CanAct(req, in.ActorUID, in.ActorRecipientKey, in.ActorRole)

	action := repository.RequestAction{
		At:         in.Now,
		FromUID:    in.ActorUID,
		FromRole:   in.ActorRole,
		ActionType: in.Action,
		Comment:    in.Comment,
	}

	if in.Cancel {
		if !perms.CanCancel {
			if in.ActorUID != req.CreatedByUID {
				return nil, apperrors.New(apperrors.ErrCodeForbidden, "only the request owner may cancel")
			}
			return nil, apperrors.InvalidTransition("cancel", string(req.Status))
		}
		action.ActionType = repository.ActionComment
		return &repository.WorkflowUpdate{
			Action:   action,
			Status:   repository.StatusCancelled,
			Archived: true,
		}, nil
	}

	switch in.Action {
	case repository.ActionComment, repository.ActionGeneratedPDF:
		if !perms.CanComment {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "only the owner or current assignee may comment")
		}
		// Status, assignee and archived stay exactly as they are.
		return &repository.WorkflowUpdate{
			Action:      action,
			Status:      req.Status,
			AssigneeKey: req.CurrentAssigneeKey,
			AssigneeUID: req.CurrentAssigneeUID,
			Archived:    req.Archived,
		}, nil

	case repository.ActionForwarded:
		if req.Status.Terminal() {
			return nil, apperrors.InvalidTransition(string(in.Action), string(req.Status))
		}
		if !perms.CanForward {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "only the current assignee may forward")
		}
		if in.TargetRecipientKey == "" {
			return nil, apperrors.InvalidInput("targetRecipientKey", "required for forwarding")
		}
		if in.TargetRecipientKey == in.ActorRecipientKey {
			return nil, apperrors.InvalidTransition("forward to own recipient", string(req.Status))
		}

	case repository.ActionApproved, repository.ActionRejected, repository.ActionClosed:
		if req.Status.Terminal() {
			return nil, apperrors.InvalidTransition(string(in.Action), string(req.Status))
		}
		if !perms.CanDecide {
			return nil, apperrors.New(apperrors.ErrCodeForbidden, "only the current assignee may decide")
		}

	default:
		// submitted exists only at creation; anything else is unknown.
		return nil, apperrors.InvalidTransition(string(in.Action), string(req.Status))
	}

	t := transitions[in.Action]
	upd := &repository.WorkflowUpdate{
		Action:   action,
		Status:   t.status,
		Archived: req.Archived || t.archive,
	}

	switch {
	case t.assignTarget:
		upd.Action.ToUID = &in.TargetUID
		upd.Action.ToRole = &in.TargetRole
		upd.Action.ToRecipientKey = &in.TargetRecipientKey
		upd.AssigneeKey = &in.TargetRecipientKey
		upd.AssigneeUID = &in.TargetUID
	case t.clearAssignee:
		upd.AssigneeKey = nil
		upd.AssigneeUID = nil
	}

	return upd, nil
}
