package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/orgdesk/hrops/internal/repository"
)

func TestCanAct(t *testing.T) {
	t.Parallel()

	base := func() *repository.InternalRequest {
		return &repository.InternalRequest{
			CreatedByUID:       "owner-uid",
			Status:             repository.StatusOpen,
			CurrentAssigneeKey: strPtr("finance"),
			CurrentAssigneeUID: strPtr("finance-uid"),
		}
	}

	tests := []struct {
		name         string
		mutate       func(*repository.InternalRequest)
		uid          string
		recipientKey string
		role         string
		want         Permissions
	}{
		{
			name:         "assignee on open request",
			uid:          "finance-uid",
			recipientKey: "finance",
			role:         "employee",
			want:         Permissions{CanForward: true, CanDecide: true, CanComment: true, CanAttach: true},
		},
		{
			name: "owner on open request",
			uid:  "owner-uid",
			role: "employee",
			want: Permissions{CanComment: true, CanCancel: true, CanAttach: true},
		},
		{
			name: "elevated role without assignment only attaches",
			uid:  "boss-uid",
			role: "ceo",
			want: Permissions{CanAttach: true},
		},
		{
			name: "unrelated employee",
			uid:  "random-uid",
			role: "employee",
			want: Permissions{},
		},
		{
			name: "owner cannot cancel terminal request",
			mutate: func(r *repository.InternalRequest) {
				r.Status = repository.StatusApproved
				r.CurrentAssigneeKey = nil
				r.CurrentAssigneeUID = nil
			},
			uid:  "owner-uid",
			role: "employee",
			want: Permissions{CanComment: true, CanAttach: true},
		},
		{
			name: "former assignee loses authority after terminal",
			mutate: func(r *repository.InternalRequest) {
				r.Status = repository.StatusClosed
				r.CurrentAssigneeKey = nil
				r.CurrentAssigneeUID = nil
			},
			uid:          "finance-uid",
			recipientKey: "finance",
			role:         "employee",
			want:         Permissions{},
		},
		{
			name: "assignee authority follows the recipient binding",
			mutate: func(r *repository.InternalRequest) {
				r.CurrentAssigneeKey = strPtr("hr")
				r.CurrentAssigneeUID = strPtr("new-hr-uid")
			},
			// Same uid as before rebinding but the key moved on.
			uid:          "finance-uid",
			recipientKey: "finance",
			role:         "employee",
			want:         Permissions{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := base()
			if tc.mutate != nil {
				tc.mutate(req)
			}
			got := CanAct(req, tc.uid, tc.recipientKey, tc.role)
			assert.Equal(t, tc.want, got)
		})
	}
}
