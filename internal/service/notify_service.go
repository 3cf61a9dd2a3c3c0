package service

import (
	"context"
	"strings"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// NotificationStore is the mailbox contract.
type NotificationStore interface {
	CreateBatch(ctx context.Context, items []*repository.Notification) error
	ListForUser(ctx context.Context, userID string, limit int) ([]*repository.Notification, error)
	MarkRead(ctx context.Context, userID, notificationID string) error
	CountUnread(ctx context.Context, userID string) (int, error)
}

// AudienceResolver resolves recipient keys and audience tokens to user ids.
type AudienceResolver interface {
	ResolveUIDsByRecipientKeys(ctx context.Context, keys []string) ([]string, error)
	AllUserIDs(ctx context.Context) ([]string, error)
	ResolveAudienceUserIDs(ctx context.Context, f repository.AudienceFilter) ([]string, error)
}

// RequestGetter fetches a request for fan-out authorization.
type RequestGetter interface {
	GetByID(ctx context.Context, id string) (*repository.InternalRequest, error)
}

// UnreadCache caches per-user unread counters. A miss is not an error.
type UnreadCache interface {
	Get(ctx context.Context, userID string) (int, bool)
	Set(ctx context.Context, userID string, count int)
	Invalidate(ctx context.Context, userIDs ...string)
}

// NotifyService resolves recipient sets and writes mailbox entries. All
// fan-out is best-effort relative to the workflow action that triggered it:
// the action has committed before any of this runs.
type NotifyService struct {
	notifications NotificationStore
	users         AudienceResolver
	requests      RequestGetter
	cache         UnreadCache
	log           *logger.Logger
}

// NewNotifyService creates a new NotifyService.
func NewNotifyService(
	notifications NotificationStore,
	users AudienceResolver,
	requests RequestGetter,
	cache UnreadCache,
	log *logger.Logger,
) *NotifyService {
	return &NotifyService{
		notifications: notifications,
		users:         users,
		requests:      requests,
		cache:         cache,
		log:           log,
	}
}

// ── Workflow action notifications ────────────────────────────────────────────

var actionTitles = map[repository.ActionType]string{
	repository.ActionSubmitted:    "تم تقديم طلب جديد",
	repository.ActionForwarded:    "تمت إحالة طلب إليك",
	repository.ActionApproved:     "تمت الموافقة على طلبك",
	repository.ActionRejected:     "تم رفض طلبك",
	repository.ActionClosed:       "تم إغلاق طلبك",
	repository.ActionCancelled:    "تم إلغاء طلب داخلي",
	repository.ActionComment:      "تعليق جديد على طلب داخلي",
	repository.ActionGeneratedPDF: "تم توليد ملف PDF للطلب",
}

// NotifyAction writes the per-action notifications for a committed workflow
// action. Recipient selection: submitted notifies the assignee; forwarded
// notifies the new assignee and the owner; decisions notify the owner;
// comments notify the owner and the current assignee; cancellation notifies
// the assignee who held the request (passed as targetUID, the request itself
// carries no assignee anymore). The actor never receives a notification for
// their own action. Errors are logged only.
func (s *NotifyService) NotifyAction(ctx context.Context, req *repository.InternalRequest, actionType repository.ActionType, actorUID, targetUID string) {
	recipients := newUIDSet(actorUID)

	switch actionType {
	case repository.ActionSubmitted:
		recipients.addPtr(req.CurrentAssigneeUID)
	case repository.ActionForwarded:
		recipients.add(targetUID)
		recipients.add(req.CreatedByUID)
	case repository.ActionApproved, repository.ActionRejected, repository.ActionClosed:
		recipients.add(req.CreatedByUID)
	case repository.ActionCancelled:
		recipients.add(targetUID)
	case repository.ActionComment, repository.ActionGeneratedPDF:
		recipients.add(req.CreatedByUID)
		recipients.addPtr(req.CurrentAssigneeUID)
	}

	uids := recipients.values()
	if len(uids) == 0 {
		return
	}

	title, ok := actionTitles[actionType]
	if !ok {
		title = "تحديث على طلب داخلي"
	}

	sent, err := s.write(ctx, uids, &repository.Notification{
		Title:     title,
		Body:      req.Title,
		Type:      "internal_request",
		Link:      "/internal-requests/" + req.ID,
		RequestID: &req.ID,
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("request_id", req.ID).
			Str("action", string(actionType)).
			Msg("notification: failed to write action fan-out (non-fatal)")
		return
	}

	s.log.Debug().
		Str("request_id", req.ID).
		Str("action", string(actionType)).
		Int("sent", sent).
		Msg("notification: action fan-out written")
}

// ── Request fan-out endpoint ─────────────────────────────────────────────────

// FanoutRequest resolves recipient keys to bound users and writes one
// notification each, excluding the actor. Allowed for the request owner, the
// current assignee's recipient, or the administrative tier.
func (s *NotifyService) FanoutRequest(ctx context.Context, actor *auth.Actor, requestID string, toRecipientKeys []string, title, body, link string) (int, error) {
	if requestID == "" || title == "" || link == "" || len(toRecipientKeys) == 0 {
		return 0, apperrors.InvalidInput("body", "requestId, title, link and toRecipientKeys are required")
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return 0, err
	}

	allowed := auth.IsHRTier(actor.Role) ||
		req.CreatedByUID == actor.UID ||
		(actor.RecipientKey != "" && req.CurrentAssigneeKey != nil && *req.CurrentAssigneeKey == actor.RecipientKey)
	if !allowed {
		return 0, apperrors.New(apperrors.ErrCodeForbidden, "not allowed to fan out this request")
	}

	uids, err := s.users.ResolveUIDsByRecipientKeys(ctx, toRecipientKeys)
	if err != nil {
		return 0, err
	}
	uids = exclude(uids, actor.UID)
	if len(uids) == 0 {
		return 0, nil
	}

	return s.write(ctx, uids, &repository.Notification{
		Title:     title,
		Body:      body,
		Type:      "internal_request",
		Link:      link,
		RequestID: &requestID,
	})
}

// ── Announcement fan-out ─────────────────────────────────────────────────────

// FanoutAnnouncement resolves audience tokens to users and writes one
// notification each. Administrative tier only; all:all short-circuits to
// every user; the actor is excluded.
func (s *NotifyService) FanoutAnnouncement(ctx context.Context, actor *auth.Actor, annID, title string, audTokens []string) (int, error) {
	if !auth.IsHRTier(actor.Role) {
		return 0, apperrors.New(apperrors.ErrCodeForbidden, "announcement fan-out requires an administrative role")
	}
	if annID == "" || title == "" || len(audTokens) == 0 {
		return 0, apperrors.InvalidInput("body", "annId, title and audTokens are required")
	}

	uids, err := s.resolveAudience(ctx, audTokens)
	if err != nil {
		return 0, err
	}
	uids = exclude(uids, actor.UID)
	if len(uids) == 0 {
		return 0, nil
	}

	return s.write(ctx, uids, &repository.Notification{
		Title:          "تعميم جديد",
		Body:           title,
		Type:           "announcement",
		Link:           "/announcements",
		AnnouncementID: &annID,
	})
}

func (s *NotifyService) resolveAudience(ctx context.Context, audTokens []string) ([]string, error) {
	for _, tok := range audTokens {
		if tok == "all:all" {
			return s.users.AllUserIDs(ctx)
		}
	}
	return s.users.ResolveAudienceUserIDs(ctx, ParseAudienceTokens(audTokens))
}

// ParseAudienceTokens splits audience tokens into their filter dimensions.
// Tokens with unknown prefixes are ignored.
func ParseAudienceTokens(audTokens []string) repository.AudienceFilter {
	var f repository.AudienceFilter
	for _, tok := range audTokens {
		prefix, value, ok := strings.Cut(tok, ":")
		if !ok || value == "" {
			continue
		}
		switch prefix {
		case "schoolKey":
			f.SchoolKeys = append(f.SchoolKeys, value)
		case "unit":
			f.Units = append(f.Units, value)
		case "role":
			f.Roles = append(f.Roles, value)
		case "tag":
			f.Tags = append(f.Tags, value)
		case "schoolType":
			f.SchoolTypes = append(f.SchoolTypes, value)
		}
	}
	return f
}

// ── Mailbox reads ────────────────────────────────────────────────────────────

// ListNotifications returns the caller's notifications newest first.
func (s *NotifyService) ListNotifications(ctx context.Context, userID string, limit int) ([]*repository.Notification, error) {
	return s.notifications.ListForUser(ctx, userID, limit)
}

// MarkRead marks one of the caller's notifications read.
func (s *NotifyService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if err := s.notifications.MarkRead(ctx, userID, notificationID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

// UnreadCount returns the caller's unread badge count, served from cache
// when fresh.
func (s *NotifyService) UnreadCount(ctx context.Context, userID string) (int, error) {
	if n, ok := s.cache.Get(ctx, userID); ok {
		return n, nil
	}
	n, err := s.notifications.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.cache.Set(ctx, userID, n)
	return n, nil
}

// ── Internal helpers ─────────────────────────────────────────────────────────

// write clones the template per recipient, inserts the batch atomically and
// invalidates the recipients' unread counters.
func (s *NotifyService) write(ctx context.Context, uids []string, template *repository.Notification) (int, error) {
	items := make([]*repository.Notification, 0, len(uids))
	for _, uid := range uids {
		n := *template
		n.UserID = uid
		items = append(items, &n)
	}
	if err := s.notifications.CreateBatch(ctx, items); err != nil {
		return 0, err
	}
	s.cache.Invalidate(ctx, uids...)
	return len(items), nil
}

// uidSet accumulates recipient uids, keeping the acting user out.
type uidSet struct {
	actor string
	seen  map[string]bool
	uids  []string
}

func newUIDSet(actorUID string) *uidSet {
	return &uidSet{actor: actorUID, seen: map[string]bool{}}
}

func (s *uidSet) add(uid string) {
	if uid == "" || uid == s.actor || s.seen[uid] {
		return
	}
	s.seen[uid] = true
	s.uids = append(s.uids, uid)
}

func (s *uidSet) addPtr(uid *string) {
	if uid != nil {
		s.add(*uid)
	}
}

func (s *uidSet) values() []string { return s.uids }

func exclude(uids []string, actorUID string) []string {
	out := uids[:0]
	for _, uid := range uids {
		if uid != actorUID {
			out = append(out, uid)
		}
	}
	return out
}
