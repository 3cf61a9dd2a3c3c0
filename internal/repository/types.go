package repository

import "time"

// ── Domain types for the internal-request workflow ───────────────────────────

// RequestStatus is the workflow status of an internal request.
type RequestStatus string

const (
	StatusOpen       RequestStatus = "open"
	StatusInProgress RequestStatus = "in_progress"
	StatusApproved   RequestStatus = "approved"
	StatusRejected   RequestStatus = "rejected"
	StatusClosed     RequestStatus = "closed"
	StatusCancelled  RequestStatus = "cancelled"
)

// Terminal reports whether a status ends the workflow. Terminal requests are
// archived and accept no further forwards or decisions.
func (s RequestStatus) Terminal() bool {
	switch s {
	case StatusApproved, StatusRejected, StatusClosed, StatusCancelled:
		return true
	}
	return false
}

// ActionType is the kind of one workflow event in the action log.
type ActionType string

const (
	ActionSubmitted    ActionType = "submitted"
	ActionForwarded    ActionType = "forwarded"
	ActionApproved     ActionType = "approved"
	ActionRejected     ActionType = "rejected"
	ActionComment      ActionType = "comment"
	ActionClosed       ActionType = "closed"
	ActionGeneratedPDF ActionType = "generated_pdf"

	// ActionCancelled routes notifications for an owner cancellation. The
	// stored log entry stays a comment action with status cancelled.
	ActionCancelled ActionType = "cancelled"
)

// RequestAction is one immutable entry in a request's append-only action log.
// Log order is insertion order; `at` is informational only.
type RequestAction struct {
	At             time.Time  `json:"at"`
	FromUID        string     `json:"fromUid"`
	FromRole       string     `json:"fromRole"`
	ToUID          *string    `json:"toUid,omitempty"`
	ToRole         *string    `json:"toRole,omitempty"`
	ToRecipientKey *string    `json:"toRecipientKey,omitempty"`
	ActionType     ActionType `json:"actionType"`
	Comment        string     `json:"comment"`
}

// Attachment is metadata for one uploaded file. The object itself lives in
// object storage; Path is its storage key and the de-duplication key.
type Attachment struct {
	Name            string  `json:"name"`
	Size            int64   `json:"size"`
	ContentType     string  `json:"contentType"`
	URL             string  `json:"url"`
	Path            string  `json:"path"`
	UploadedByUID   *string `json:"uploadedByUid"`
	UploadedByLabel *string `json:"uploadedByLabel"`
	UploadedAtMs    int64   `json:"uploadedAtMs,omitempty"`
}

// InternalRequest is the central workflow entity.
//
// Identity and creation-time fields never change after Create. Workflow state
// (Status, CurrentAssignee*, Archived, UpdatedAt) changes only through
// UpdateWorkflow. Actions and Attachments are append-only.
type InternalRequest struct {
	ID string `json:"id"`

	Title       string `json:"title"`
	Type        string `json:"type"`
	Description string `json:"description"`

	CreatedByUID          string  `json:"createdByUid"`
	CreatedByEmail        *string `json:"createdByEmail,omitempty"`
	CreatedByRecipientKey *string `json:"createdByRecipientKey,omitempty"`

	MainRecipientKey     string `json:"mainRecipientKey"`
	MainRecipientLabel   string `json:"mainRecipientLabel"`
	MainRecipientNumber  int    `json:"mainRecipientNumber"`
	SequenceForRecipient int    `json:"sequenceForRecipient"`
	RequestNumber        string `json:"requestNumber"` // "<recipientNumber>/<sequence>"

	Status             RequestStatus `json:"status"`
	CurrentAssigneeKey *string       `json:"currentAssigneeKey"`
	CurrentAssigneeUID *string       `json:"currentAssigneeUid"`

	CCRecipientKeys []string `json:"ccRecipientKeys"`
	CCUIDs          []string `json:"ccUids"`

	Archived bool `json:"archived"`

	Actions     []RequestAction `json:"actions"`
	Attachments []Attachment    `json:"attachments"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// WorkflowUpdate is the outcome of one validated workflow action: the action
// to append plus the new mutable state, applied atomically as a single
// update.
type WorkflowUpdate struct {
	Action      RequestAction
	Status      RequestStatus
	AssigneeKey *string
	AssigneeUID *string
	Archived    bool
}

// ── Users and notifications ──────────────────────────────────────────────────

// User is a dashboard account. RecipientKey binds the user to a directory
// recipient; the binding can change over time, so it is resolved fresh at
// action time rather than denormalized as a source of truth.
type User struct {
	ID           string
	Email        string
	DisplayName  string
	Role         string
	RecipientKey *string

	// Announcement audience attributes.
	SchoolKey  *string
	Unit       *string
	SchoolType *string
	Tags       []string

	CreatedAt time.Time
}

// Notification is one mailbox entry owned by its target user.
type Notification struct {
	ID             string     `json:"id"`
	UserID         string     `json:"-"`
	Title          string     `json:"title"`
	Body           string     `json:"body"`
	Type           string     `json:"type"` // internal_request | announcement
	Link           string     `json:"link"`
	RequestID      *string    `json:"requestId,omitempty"`
	AnnouncementID *string    `json:"annId,omitempty"`
	Read           bool       `json:"read"`
	CreatedAt      time.Time  `json:"createdAt"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
}

// ── Announcements ────────────────────────────────────────────────────────────

// Announcement targets an audience described by tokens of the form
// all:all, schoolKey:<k>, unit:<u>, role:<r>, tag:<t>, schoolType:<st>.
type Announcement struct {
	ID             string    `json:"id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	AudienceTokens []string  `json:"audTokens"`
	CreatedByUID   string    `json:"createdByUid"`
	CreatedAt      time.Time `json:"createdAt"`
}

// ── Employee periphery ───────────────────────────────────────────────────────

// Employee is a profile row for the HR views.
type Employee struct {
	UID        string     `json:"uid"`
	NationalID string     `json:"nationalId"`
	FullName   string     `json:"fullName"`
	JobTitle   string     `json:"jobTitle"`
	Department string     `json:"department"`
	HiredAt    *time.Time `json:"hiredAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// Certificate is metadata for a stored certificate document.
type Certificate struct {
	ID          string    `json:"id"`
	EmployeeUID string    `json:"employeeUid"`
	Title       string    `json:"title"`
	Path        string    `json:"path"`
	URL         string    `json:"url"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Evaluation is one performance-evaluation record.
type Evaluation struct {
	ID          string    `json:"id"`
	EmployeeUID string    `json:"employeeUid"`
	Period      string    `json:"period"`
	Score       int       `json:"score"`
	Notes       string    `json:"notes"`
	CreatedAt   time.Time `json:"createdAt"`
}
