package service

import (
	"context"
	"strings"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// AnnouncementStore is the announcement repository contract.
type AnnouncementStore interface {
	Create(ctx context.Context, a *repository.Announcement) (string, error)
	GetByID(ctx context.Context, id string) (*repository.Announcement, error)
	List(ctx context.Context, limit int) ([]*repository.Announcement, error)
}

// AnnouncementService creates and lists announcements and triggers their
// audience fan-out.
type AnnouncementService struct {
	announcements AnnouncementStore
	notify        *NotifyService
	log           *logger.Logger
}

// NewAnnouncementService creates a new AnnouncementService.
func NewAnnouncementService(announcements AnnouncementStore, notify *NotifyService, log *logger.Logger) *AnnouncementService {
	return &AnnouncementService{announcements: announcements, notify: notify, log: log}
}

// Create stores an announcement and fans it out to its audience. Creation is
// restricted to the administrative tier; the fan-out runs detached and its
// failure never fails the creation.
func (s *AnnouncementService) Create(ctx context.Context, actor *auth.Actor, title, body string, audTokens []string) (string, error) {
	if !auth.IsHRTier(actor.Role) {
		return "", apperrors.New(apperrors.ErrCodeForbidden, "announcements require an administrative role")
	}
	if strings.TrimSpace(title) == "" {
		return "", apperrors.InvalidInput("title", "must not be empty")
	}
	if len(audTokens) == 0 {
		return "", apperrors.InvalidInput("audTokens", "must not be empty")
	}

	ann := &repository.Announcement{
		Title:          title,
		Body:           body,
		AudienceTokens: audTokens,
		CreatedByUID:   actor.UID,
	}
	id, err := s.announcements.Create(ctx, ann)
	if err != nil {
		return "", err
	}

	s.log.Info().Str("announcement_id", id).Int("tokens", len(audTokens)).Msg("Announcement created")

	actorCopy := *actor
	go func() {
		sent, err := s.notify.FanoutAnnouncement(context.Background(), &actorCopy, id, title, audTokens)
		if err != nil {
			s.log.Warn().Err(err).Str("announcement_id", id).Msg("announcement fan-out failed (non-fatal)")
			return
		}
		s.log.Debug().Str("announcement_id", id).Int("sent", sent).Msg("announcement fan-out written")
	}()

	return id, nil
}

// List returns announcements newest first.
func (s *AnnouncementService) List(ctx context.Context, limit int) ([]*repository.Announcement, error) {
	return s.announcements.List(ctx, limit)
}
