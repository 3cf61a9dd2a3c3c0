// Package handler exposes the service over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/directory"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
	"github.com/orgdesk/hrops/internal/service"
	"github.com/orgdesk/hrops/internal/storage"
	"github.com/orgdesk/hrops/internal/stream"
)

// HTTPHandler handles HTTP requests.
type HTTPHandler struct {
	requests      *service.RequestService
	notify        *service.NotifyService
	announcements *service.AnnouncementService
	employees     *service.EmployeeService
	files         *storage.ObjectStore
	watcher       *stream.Watcher
	log           *logger.Logger
}

// NewHTTPHandler creates a new HTTP handler.
func NewHTTPHandler(
	requests *service.RequestService,
	notify *service.NotifyService,
	announcements *service.AnnouncementService,
	employees *service.EmployeeService,
	files *storage.ObjectStore,
	watcher *stream.Watcher,
	log *logger.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		requests:      requests,
		notify:        notify,
		announcements: announcements,
		employees:     employees,
		files:         files,
		watcher:       watcher,
		log:           log,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatus(err)
	msg := "internal error"
	var appErr *apperrors.Error
	if errors.As(err, &appErr) && status < http.StatusInternalServerError {
		msg = appErr.Message
	}
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("request failed")
	}
	writeJSON(w, status, map[string]string{"error": msg})
}

func actor(r *http.Request) *auth.Actor {
	a, _ := auth.ActorFrom(r.Context())
	return a
}

// orEmpty keeps empty list payloads array-shaped instead of null.
func orEmpty(items []*repository.InternalRequest) []*repository.InternalRequest {
	if items == nil {
		return []*repository.InternalRequest{}
	}
	return items
}

// ── Recipient directory ──────────────────────────────────────────────────────

// ListRecipients returns the static recipient directory.
func (h *HTTPHandler) ListRecipients(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, directory.All())
}

// ── Internal requests ────────────────────────────────────────────────────────

type createRequestBody struct {
	Title            string   `json:"title"`
	Type             string   `json:"type"`
	Description      string   `json:"description"`
	MainRecipientKey string   `json:"mainRecipientKey"`
	CCRecipientKeys  []string `json:"ccRecipientKeys"`
}

// CreateRequest handles request submission.
func (h *HTTPHandler) CreateRequest(w http.ResponseWriter, r *http.Request) {
	a := actor(r)

	var body createRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	id, err := h.requests.CreateRequest(r.Context(), service.CreateRequestInput{
		Title:                 body.Title,
		Type:                  body.Type,
		Description:           body.Description,
		CreatedByUID:          a.UID,
		CreatedByEmail:        a.Email,
		CreatedByRole:         a.Role,
		CreatedByRecipientKey: a.RecipientKey,
		MainRecipientKey:      body.MainRecipientKey,
		CCRecipientKeys:       body.CCRecipientKeys,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func canViewRequest(a *auth.Actor, req *repository.InternalRequest) bool {
	if auth.IsHRTier(a.Role) || req.CreatedByUID == a.UID {
		return true
	}
	if a.RecipientKey != "" {
		if req.CurrentAssigneeKey != nil && *req.CurrentAssigneeKey == a.RecipientKey {
			return true
		}
		for _, k := range req.CCRecipientKeys {
			if k == a.RecipientKey {
				return true
			}
		}
	}
	for _, uid := range req.CCUIDs {
		if uid == a.UID {
			return true
		}
	}
	return false
}

// GetRequest returns one request the caller is allowed to see.
func (h *HTTPHandler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, err := h.requests.GetRequest(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !canViewRequest(actor(r), req) {
		h.writeError(w, apperrors.New(apperrors.ErrCodeForbidden, "not a participant of this request"))
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func viewOptions(r *http.Request) service.ViewOptions {
	q := r.URL.Query()
	opts := service.ViewOptions{
		Status:    repository.RequestStatus(q.Get("status")),
		TitleLike: q.Get("q"),
		InboxKind: q.Get("kind"),
	}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.DateFrom = &t
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			opts.DateTo = &t
		}
	}
	return opts
}

// Inbox lists active requests assigned or copied to the caller's recipient.
func (h *HTTPHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	items, err := h.requests.Inbox(r.Context(), actor(r).RecipientKey, viewOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": orEmpty(items)})
}

// Outbox lists the caller's own active requests.
func (h *HTTPHandler) Outbox(w http.ResponseWriter, r *http.Request) {
	items, err := h.requests.Outbox(r.Context(), actor(r).UID, viewOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": orEmpty(items)})
}

// Archive lists the caller's terminal requests.
func (h *HTTPHandler) Archive(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	items, err := h.requests.Archive(r.Context(), a.UID, a.RecipientKey, viewOptions(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": orEmpty(items)})
}

type actionBody struct {
	ActionType         string `json:"actionType"`
	Cancel             bool   `json:"cancel"`
	Comment            string `json:"comment"`
	TargetRecipientKey string `json:"toRecipientKey"`
}

// PerformAction applies one workflow action to a request.
func (h *HTTPHandler) PerformAction(w http.ResponseWriter, r *http.Request) {
	a := actor(r)

	var body actionBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	err := h.requests.PerformAction(r.Context(), service.ActionInput{
		RequestID:          r.PathValue("id"),
		ActionType:         repository.ActionType(body.ActionType),
		Cancel:             body.Cancel,
		Comment:            body.Comment,
		ActorUID:           a.UID,
		ActorRole:          a.Role,
		ActorRecipientKey:  a.RecipientKey,
		TargetRecipientKey: body.TargetRecipientKey,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "applied"})
}

// AddAttachments appends uploaded file metadata to a request.
func (h *HTTPHandler) AddAttachments(w http.ResponseWriter, r *http.Request) {
	a := actor(r)

	var body struct {
		Attachments []repository.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	err := h.requests.AddAttachments(r.Context(), r.PathValue("id"), a.UID, a.RecipientKey, a.Role, body.Attachments)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

// PresignUpload allocates an upload slot in the object store.
func (h *HTTPHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Prefix   string `json:"prefix"`
		Filename string `json:"filename"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if body.Filename == "" {
		h.writeError(w, apperrors.InvalidInput("filename", "must not be empty"))
		return
	}
	switch body.Prefix {
	case "":
		body.Prefix = "requests"
	case "requests", "certificates":
	default:
		h.writeError(w, apperrors.InvalidInput("prefix", "must be requests or certificates"))
		return
	}

	up, err := h.files.PresignUpload(r.Context(), body.Prefix, body.Filename)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, up)
}

// WatchRequests streams the caller's chosen view as server-sent events,
// re-emitting the full snapshot after every change. Mounted outside the
// timeout middleware.
func (h *HTTPHandler) WatchRequests(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	view := r.URL.Query().Get("view")
	if view == "" {
		view = "inbox"
	}
	opts := viewOptions(r)

	fetch := func(ctx context.Context) ([]*repository.InternalRequest, error) {
		switch view {
		case "inbox":
			return h.requests.Inbox(ctx, a.RecipientKey, opts)
		case "outbox":
			return h.requests.Outbox(ctx, a.UID, opts)
		case "archive":
			return h.requests.Archive(ctx, a.UID, a.RecipientKey, opts)
		default:
			return nil, apperrors.InvalidInput("view", "must be inbox, outbox or archive")
		}
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, apperrors.New(apperrors.ErrCodeInternal, "streaming unsupported"))
		return
	}

	// Snapshots cross from the watcher goroutine to this one; only the
	// handler goroutine touches the response writer.
	snapshots := make(chan []*repository.InternalRequest, 1)
	stop, err := h.watcher.Subscribe(r.Context(), fetch, func(items []*repository.InternalRequest) {
		for {
			select {
			case snapshots <- items:
				return
			default:
			}
			select {
			case <-snapshots:
			default:
			}
		}
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	defer stop()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case items := <-snapshots:
			payload, err := json.Marshal(map[string]any{"requests": orEmpty(items)})
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: ")); err != nil {
				return
			}
			w.Write(payload)
			w.Write([]byte("\n\n"))
			flusher.Flush()
		}
	}
}

// ── Fan-out ──────────────────────────────────────────────────────────────────

type fanoutRequestBody struct {
	RequestID       string   `json:"requestId"`
	ToRecipientKeys []string `json:"toRecipientKeys"`
	Title           string   `json:"title"`
	Body            string   `json:"body"`
	Link            string   `json:"link"`
}

// FanoutRequest notifies the users behind a set of recipient keys about a
// request.
func (h *HTTPHandler) FanoutRequest(w http.ResponseWriter, r *http.Request) {
	var body fanoutRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	n, err := h.notify.FanoutRequest(r.Context(), actor(r), body.RequestID, body.ToRecipientKeys, body.Title, body.Body, body.Link)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": n})
}

type fanoutAnnouncementBody struct {
	AnnouncementID string   `json:"annId"`
	Title          string   `json:"title"`
	AudienceTokens []string `json:"audTokens"`
}

// FanoutAnnouncement notifies an audience about an existing announcement.
func (h *HTTPHandler) FanoutAnnouncement(w http.ResponseWriter, r *http.Request) {
	var body fanoutAnnouncementBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	n, err := h.notify.FanoutAnnouncement(r.Context(), actor(r), body.AnnouncementID, body.Title, body.AudienceTokens)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sent": n})
}

// ── Notifications ────────────────────────────────────────────────────────────

// ListNotifications returns the caller's notifications, newest first.
func (h *HTTPHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.notify.ListNotifications(r.Context(), actor(r).UID, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": items})
}

// MarkNotificationRead marks one of the caller's notifications as read.
func (h *HTTPHandler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notify.MarkRead(r.Context(), actor(r).UID, r.PathValue("id")); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

// UnreadCount returns the caller's unread notification count.
func (h *HTTPHandler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notify.UnreadCount(r.Context(), actor(r).UID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"unread": n})
}

// ── Announcements ────────────────────────────────────────────────────────────

type createAnnouncementBody struct {
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	AudienceTokens []string `json:"audTokens"`
}

// CreateAnnouncement publishes an announcement and fans it out.
func (h *HTTPHandler) CreateAnnouncement(w http.ResponseWriter, r *http.Request) {
	var body createAnnouncementBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	id, err := h.announcements.Create(r.Context(), actor(r), body.Title, body.Body, body.AudienceTokens)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// ListAnnouncements returns recent announcements.
func (h *HTTPHandler) ListAnnouncements(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.announcements.List(r.Context(), limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"announcements": items})
}

// ── Employees ────────────────────────────────────────────────────────────────

// UpsertEmployee creates or updates an employee profile.
func (h *HTTPHandler) UpsertEmployee(w http.ResponseWriter, r *http.Request) {
	var e repository.Employee
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	out, err := h.employees.UpsertProfile(r.Context(), actor(r), &e)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ListEmployees returns all employee profiles.
func (h *HTTPHandler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	items, err := h.employees.ListProfiles(r.Context(), actor(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"employees": items})
}

// GetEmployee returns one employee profile.
func (h *HTTPHandler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	e, err := h.employees.GetProfile(r.Context(), actor(r), r.PathValue("uid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// AddCertificate records certificate metadata for an employee.
func (h *HTTPHandler) AddCertificate(w http.ResponseWriter, r *http.Request) {
	var c repository.Certificate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	c.EmployeeUID = r.PathValue("uid")

	out, err := h.employees.AddCertificate(r.Context(), actor(r), &c)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ListCertificates returns an employee's certificates.
func (h *HTTPHandler) ListCertificates(w http.ResponseWriter, r *http.Request) {
	items, err := h.employees.ListCertificates(r.Context(), actor(r), r.PathValue("uid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"certificates": items})
}

// AddEvaluation records an evaluation for an employee.
func (h *HTTPHandler) AddEvaluation(w http.ResponseWriter, r *http.Request) {
	var e repository.Evaluation
	if err := json.NewDecoder(r.Body).Decode(&e); err != nil {
		h.writeError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	e.EmployeeUID = r.PathValue("uid")

	out, err := h.employees.AddEvaluation(r.Context(), actor(r), &e)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// ListEvaluations returns an employee's evaluations.
func (h *HTTPHandler) ListEvaluations(w http.ResponseWriter, r *http.Request) {
	items, err := h.employees.ListEvaluations(r.Context(), actor(r), r.PathValue("uid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"evaluations": items})
}

// EmployeeSheetRow proxies a spreadsheet bridge lookup by national id.
func (h *HTTPHandler) EmployeeSheetRow(w http.ResponseWriter, r *http.Request) {
	row, err := h.employees.SheetRow(r.Context(), actor(r), r.URL.Query().Get("nid"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}
