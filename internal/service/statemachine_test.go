package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/repository"
)

func strPtr(s string) *string { return &s }

func openRequest() *repository.InternalRequest {
	return &repository.InternalRequest{
		ID:                 "req-1",
		Title:              "طلب صيانة",
		CreatedByUID:       "owner-uid",
		Status:             repository.StatusOpen,
		CurrentAssigneeKey: strPtr("finance"),
		CurrentAssigneeUID: strPtr("finance-uid"),
	}
}

func TestNextState_ForwardAssignsTarget(t *testing.T) {
	t.Parallel()

	req := openRequest()
	upd, err := NextState(req, TransitionInput{
		Action:             repository.ActionForwarded,
		ActorUID:           "finance-uid",
		ActorRole:          "employee",
		ActorRecipientKey:  "finance",
		TargetRecipientKey: "hr",
		TargetUID:          "hr-uid",
		TargetRole:         "hr",
		Now:                time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, repository.StatusInProgress, upd.Status)
	require.NotNil(t, upd.AssigneeKey)
	assert.Equal(t, "hr", *upd.AssigneeKey)
	require.NotNil(t, upd.AssigneeUID)
	assert.Equal(t, "hr-uid", *upd.AssigneeUID)
	assert.False(t, upd.Archived)

	assert.Equal(t, repository.ActionForwarded, upd.Action.ActionType)
	require.NotNil(t, upd.Action.ToRecipientKey)
	assert.Equal(t, "hr", *upd.Action.ToRecipientKey)
}

func TestNextState_ForwardRequiresAssignee(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Action:             repository.ActionForwarded,
		ActorUID:           "someone-else",
		ActorRecipientKey:  "hr", // not the current assignee
		TargetRecipientKey: "projects",
		TargetUID:          "projects-uid",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))
}

func TestNextState_ForwardToOwnRecipientRejected(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Action:             repository.ActionForwarded,
		ActorUID:           "finance-uid",
		ActorRecipientKey:  "finance",
		TargetRecipientKey: "finance",
		TargetUID:          "finance-uid",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))
}

func TestNextState_ForwardWithoutTarget(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Action:            repository.ActionForwarded,
		ActorUID:          "finance-uid",
		ActorRecipientKey: "finance",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))
}

func TestNextState_DecisionsClearAssigneeAndArchive(t *testing.T) {
	t.Parallel()

	cases := []struct {
		action repository.ActionType
		status repository.RequestStatus
	}{
		{repository.ActionApproved, repository.StatusApproved},
		{repository.ActionRejected, repository.StatusRejected},
		{repository.ActionClosed, repository.StatusClosed},
	}

	for _, tc := range cases {
		t.Run(string(tc.action), func(t *testing.T) {
			t.Parallel()

			req := openRequest()
			upd, err := NextState(req, TransitionInput{
				Action:            tc.action,
				ActorUID:          "finance-uid",
				ActorRecipientKey: "finance",
				Now:               time.Now(),
			})
			require.NoError(t, err)

			assert.Equal(t, tc.status, upd.Status)
			assert.Nil(t, upd.AssigneeKey)
			assert.Nil(t, upd.AssigneeUID)
			assert.True(t, upd.Archived)
		})
	}
}

func TestNextState_DecisionRequiresAssignee(t *testing.T) {
	t.Parallel()

	req := openRequest()
	// An elevated role that is not the current assignee cannot decide.
	_, err := NextState(req, TransitionInput{
		Action:            repository.ActionApproved,
		ActorUID:          "boss-uid",
		ActorRole:         "ceo",
		ActorRecipientKey: "ceo",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))
}

func TestNextState_TerminalRejectsWorkflowActions(t *testing.T) {
	t.Parallel()

	req := openRequest()
	req.Status = repository.StatusApproved
	req.CurrentAssigneeKey = nil
	req.CurrentAssigneeUID = nil
	req.Archived = true

	for _, action := range []repository.ActionType{
		repository.ActionForwarded,
		repository.ActionApproved,
		repository.ActionRejected,
		repository.ActionClosed,
	} {
		_, err := NextState(req, TransitionInput{
			Action:             action,
			ActorUID:           "finance-uid",
			ActorRecipientKey:  "finance",
			TargetRecipientKey: "hr",
		})
		require.Error(t, err, string(action))
		assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err), string(action))
	}
}

func TestNextState_CommentPreservesState(t *testing.T) {
	t.Parallel()

	req := openRequest()
	req.Status = repository.StatusInProgress

	upd, err := NextState(req, TransitionInput{
		Action:   repository.ActionComment,
		Comment:  "متى يتم الانتهاء؟",
		ActorUID: "owner-uid",
		Now:      time.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, repository.StatusInProgress, upd.Status)
	assert.Equal(t, req.CurrentAssigneeKey, upd.AssigneeKey)
	assert.Equal(t, req.CurrentAssigneeUID, upd.AssigneeUID)
	assert.False(t, upd.Archived)
	assert.Equal(t, "متى يتم الانتهاء؟", upd.Action.Comment)
}

func TestNextState_CommentByOutsiderForbidden(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Action:   repository.ActionComment,
		ActorUID: "stranger-uid",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))
}

func TestNextState_CancelByOwner(t *testing.T) {
	t.Parallel()

	req := openRequest()
	req.Status = repository.StatusInProgress

	upd, err := NextState(req, TransitionInput{
		Cancel:   true,
		Action:   repository.ActionComment,
		Comment:  "لم يعد الطلب مطلوباً",
		ActorUID: "owner-uid",
		Now:      time.Now(),
	})
	require.NoError(t, err)

	// Cancellation is recorded as a comment action carrying the cancelled
	// status.
	assert.Equal(t, repository.ActionComment, upd.Action.ActionType)
	assert.Equal(t, repository.StatusCancelled, upd.Status)
	assert.Nil(t, upd.AssigneeKey)
	assert.Nil(t, upd.AssigneeUID)
	assert.True(t, upd.Archived)
}

func TestNextState_CancelByNonOwnerForbidden(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Cancel:            true,
		ActorUID:          "finance-uid",
		ActorRecipientKey: "finance",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))
}

func TestNextState_CancelAfterTerminalRejected(t *testing.T) {
	t.Parallel()

	req := openRequest()
	req.Status = repository.StatusRejected
	req.Archived = true

	_, err := NextState(req, TransitionInput{
		Cancel:   true,
		ActorUID: "owner-uid",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))
}

func TestNextState_SubmittedIsCreationOnly(t *testing.T) {
	t.Parallel()

	req := openRequest()
	_, err := NextState(req, TransitionInput{
		Action:            repository.ActionSubmitted,
		ActorUID:          "finance-uid",
		ActorRecipientKey: "finance",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.Code(err))
}
