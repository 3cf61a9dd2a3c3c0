package service

import (
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/repository"
)

// Permissions says which workflow actions an actor may take on a request.
type Permissions struct {
	CanForward bool
	CanDecide  bool
	CanComment bool
	CanCancel  bool
	CanAttach  bool
}

// CanAct computes an actor's permissions on a request. Pure function, no I/O.
//
// Decision and forwarding authority follow the recipient binding, not the
// role: an elevated role that is not the current assignee can neither decide
// nor forward. Elevated roles may only attach files regardless of assignment.
func CanAct(req *repository.InternalRequest, actorUID, actorRecipientKey, actorRole string) Permissions {
	isOwner := actorUID != "" && actorUID == req.CreatedByUID
	isAssignee := actorRecipientKey != "" &&
		req.CurrentAssigneeKey != nil &&
		actorRecipientKey == *req.CurrentAssigneeKey
	active := !req.Status.Terminal()

	return Permissions{
		CanForward: isAssignee && active,
		CanDecide:  isAssignee && active,
		CanComment: isOwner || isAssignee,
		CanCancel:  isOwner && (req.Status == repository.StatusOpen || req.Status == repository.StatusInProgress),
		CanAttach:  isOwner || isAssignee || auth.IsHRTier(actorRole),
	}
}
