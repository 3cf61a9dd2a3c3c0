package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/auth"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// --- fakes ---

type fakeNotificationStore struct {
	mu      sync.Mutex
	batches [][]*repository.Notification
	unread  map[string]int
}

func (f *fakeNotificationStore) CreateBatch(ctx context.Context, items []*repository.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = append(f.batches, items)
	return nil
}

func (f *fakeNotificationStore) ListForUser(ctx context.Context, userID string, limit int) ([]*repository.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*repository.Notification
	for _, batch := range f.batches {
		for _, n := range batch {
			if n.UserID == userID {
				out = append(out, n)
			}
		}
	}
	return out, nil
}

func (f *fakeNotificationStore) MarkRead(ctx context.Context, userID, notificationID string) error {
	return nil
}

func (f *fakeNotificationStore) CountUnread(ctx context.Context, userID string) (int, error) {
	return f.unread[userID], nil
}

func (f *fakeNotificationStore) sentTo() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, batch := range f.batches {
		for _, n := range batch {
			out = append(out, n.UserID)
		}
	}
	return out
}

type fakeAudience struct {
	mu         sync.Mutex
	byKey      map[string][]string
	all        []string
	audience   []string
	lastFilter repository.AudienceFilter
	allCalled  bool
}

func (f *fakeAudience) ResolveUIDsByRecipientKeys(ctx context.Context, keys []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	seen := map[string]bool{}
	for _, k := range keys {
		for _, uid := range f.byKey[k] {
			if !seen[uid] {
				seen[uid] = true
				out = append(out, uid)
			}
		}
	}
	return out, nil
}

func (f *fakeAudience) AllUserIDs(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.allCalled = true
	return f.all, nil
}

func (f *fakeAudience) ResolveAudienceUserIDs(ctx context.Context, flt repository.AudienceFilter) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = flt
	return f.audience, nil
}

func (f *fakeAudience) wasAllCalled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.allCalled
}

func (f *fakeAudience) filter() repository.AudienceFilter {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastFilter
}

func (f *fakeAudience) setAudience(uids []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audience = uids
}

type fakeRequestGetter struct {
	req *repository.InternalRequest
}

func (f *fakeRequestGetter) GetByID(ctx context.Context, id string) (*repository.InternalRequest, error) {
	if f.req == nil || f.req.ID != id {
		return nil, apperrors.NotFound("internal request", id)
	}
	return f.req, nil
}

type fakeUnreadCache struct {
	mu          sync.Mutex
	values      map[string]int
	invalidated []string
}

func (f *fakeUnreadCache) Get(ctx context.Context, userID string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.values[userID]
	return n, ok
}

func (f *fakeUnreadCache) Set(ctx context.Context, userID string, count int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.values == nil {
		f.values = map[string]int{}
	}
	f.values[userID] = count
}

func (f *fakeUnreadCache) Invalidate(ctx context.Context, userIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userIDs...)
}

func fanoutFixture() (*NotifyService, *fakeNotificationStore, *fakeAudience, *fakeUnreadCache) {
	store := &fakeNotificationStore{unread: map[string]int{}}
	audience := &fakeAudience{
		byKey: map[string][]string{
			"finance": {"finance-uid"},
			"hr":      {"hr-uid"},
			"ceo":     {"ceo-uid"},
		},
		all: []string{"u1", "u2", "u3"},
	}
	getter := &fakeRequestGetter{req: &repository.InternalRequest{
		ID:                 "req-1",
		Title:              "طلب صيانة",
		CreatedByUID:       "owner-uid",
		Status:             repository.StatusOpen,
		CurrentAssigneeKey: strPtr("finance"),
		CurrentAssigneeUID: strPtr("finance-uid"),
	}}
	cache := &fakeUnreadCache{}
	return NewNotifyService(store, audience, getter, cache, logger.Nop()), store, audience, cache
}

// --- action fan-out ---

func TestNotifyAction_RecipientSelection(t *testing.T) {
	t.Parallel()

	req := &repository.InternalRequest{
		ID:                 "req-1",
		Title:              "طلب",
		CreatedByUID:       "owner-uid",
		CurrentAssigneeUID: strPtr("assignee-uid"),
	}

	tests := []struct {
		name     string
		action   repository.ActionType
		actor    string
		target   string
		expected []string
	}{
		{
			name:     "submitted notifies the assignee",
			action:   repository.ActionSubmitted,
			actor:    "owner-uid",
			expected: []string{"assignee-uid"},
		},
		{
			name:     "forwarded notifies new assignee and owner",
			action:   repository.ActionForwarded,
			actor:    "assignee-uid",
			target:   "next-uid",
			expected: []string{"next-uid", "owner-uid"},
		},
		{
			name:     "approval notifies the owner",
			action:   repository.ActionApproved,
			actor:    "assignee-uid",
			expected: []string{"owner-uid"},
		},
		{
			name:     "comment notifies owner and assignee",
			action:   repository.ActionComment,
			actor:    "third-uid",
			expected: []string{"owner-uid", "assignee-uid"},
		},
		{
			name:   "cancellation notifies the prior assignee",
			action: repository.ActionCancelled,
			actor:  "owner-uid",
			// The prior holder arrives as the target; the request's own
			// assignee field is already cleared in the real flow.
			target:   "assignee-uid",
			expected: []string{"assignee-uid"},
		},
		{
			name:   "actor never notifies themselves",
			action: repository.ActionComment,
			actor:  "owner-uid",
			// owner excluded as the actor, only the assignee remains
			expected: []string{"assignee-uid"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			svc, store, _, _ := fanoutFixture()
			svc.NotifyAction(context.Background(), req, tc.action, tc.actor, tc.target)
			assert.ElementsMatch(t, tc.expected, store.sentTo())
		})
	}
}

func TestNotifyAction_InvalidatesUnreadCounters(t *testing.T) {
	t.Parallel()

	svc, _, _, cache := fanoutFixture()
	req := &repository.InternalRequest{
		ID:                 "req-1",
		CreatedByUID:       "owner-uid",
		CurrentAssigneeUID: strPtr("assignee-uid"),
	}

	svc.NotifyAction(context.Background(), req, repository.ActionSubmitted, "owner-uid", "")
	assert.Contains(t, cache.invalidated, "assignee-uid")
}

// --- request fan-out endpoint ---

func TestFanoutRequest_Validation(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := fanoutFixture()
	actor := &auth.Actor{UID: "owner-uid", Role: "employee"}

	_, err := svc.FanoutRequest(context.Background(), actor, "", []string{"hr"}, "t", "b", "/l")
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	_, err = svc.FanoutRequest(context.Background(), actor, "req-1", nil, "t", "b", "/l")
	assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.Code(err))

	_, err = svc.FanoutRequest(context.Background(), actor, "missing", []string{"hr"}, "t", "b", "/l")
	assert.Equal(t, apperrors.ErrCodeNotFound, apperrors.Code(err))
}

func TestFanoutRequest_Authorization(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := fanoutFixture()

	// Unrelated employee may not fan out.
	_, err := svc.FanoutRequest(context.Background(),
		&auth.Actor{UID: "stranger", Role: "employee"},
		"req-1", []string{"hr"}, "t", "b", "/l")
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))

	// The owner may.
	n, err := svc.FanoutRequest(context.Background(),
		&auth.Actor{UID: "owner-uid", Role: "employee"},
		"req-1", []string{"hr"}, "t", "b", "/l")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// The current assignee's recipient may.
	n, err = svc.FanoutRequest(context.Background(),
		&auth.Actor{UID: "finance-uid", Role: "employee", RecipientKey: "finance"},
		"req-1", []string{"hr"}, "t", "b", "/l")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFanoutRequest_ExcludesActor(t *testing.T) {
	t.Parallel()

	svc, store, _, _ := fanoutFixture()

	n, err := svc.FanoutRequest(context.Background(),
		&auth.Actor{UID: "hr-uid", Role: "hr"},
		"req-1", []string{"hr", "finance"}, "t", "b", "/l")
	require.NoError(t, err)

	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"finance-uid"}, store.sentTo())
}

// --- announcement fan-out ---

func TestFanoutAnnouncement_RequiresAdministrativeRole(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := fanoutFixture()
	_, err := svc.FanoutAnnouncement(context.Background(),
		&auth.Actor{UID: "emp", Role: "employee"},
		"ann-1", "تعميم", []string{"all:all"})
	assert.Equal(t, apperrors.ErrCodeForbidden, apperrors.Code(err))
}

func TestFanoutAnnouncement_AllShortCircuits(t *testing.T) {
	t.Parallel()

	svc, store, audience, _ := fanoutFixture()

	n, err := svc.FanoutAnnouncement(context.Background(),
		&auth.Actor{UID: "u1", Role: "hr"},
		"ann-1", "تعميم عام", []string{"schoolKey:north", "all:all"})
	require.NoError(t, err)

	assert.True(t, audience.wasAllCalled())
	// u1 is the actor and excluded from the all-users audience.
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"u2", "u3"}, store.sentTo())
}

func TestFanoutAnnouncement_FilteredAudience(t *testing.T) {
	t.Parallel()

	svc, _, audience, _ := fanoutFixture()
	audience.setAudience([]string{"u2"})

	n, err := svc.FanoutAnnouncement(context.Background(),
		&auth.Actor{UID: "admin-uid", Role: "admin"},
		"ann-1", "تعميم", []string{"schoolKey:north", "role:teacher"})
	require.NoError(t, err)

	assert.False(t, audience.wasAllCalled())
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"north"}, audience.filter().SchoolKeys)
	assert.Equal(t, []string{"teacher"}, audience.filter().Roles)
}

func TestParseAudienceTokens(t *testing.T) {
	t.Parallel()

	f := ParseAudienceTokens([]string{
		"schoolKey:north",
		"schoolKey:south",
		"unit:kindergarten",
		"role:teacher",
		"tag:new-hire",
		"schoolType:boys",
		"bogus",
		"unknown:value",
		"role:",
	})

	assert.Equal(t, []string{"north", "south"}, f.SchoolKeys)
	assert.Equal(t, []string{"kindergarten"}, f.Units)
	assert.Equal(t, []string{"teacher"}, f.Roles)
	assert.Equal(t, []string{"new-hire"}, f.Tags)
	assert.Equal(t, []string{"boys"}, f.SchoolTypes)
}

// --- mailbox reads ---

func TestUnreadCount_CacheRoundTrip(t *testing.T) {
	t.Parallel()

	svc, store, _, cache := fanoutFixture()
	store.unread["u1"] = 4

	n, err := svc.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// The first read populated the cache.
	cached, ok := cache.Get(context.Background(), "u1")
	require.True(t, ok)
	assert.Equal(t, 4, cached)

	// Second read is served from the cache even after the store changes.
	store.unread["u1"] = 9
	n, err = svc.UnreadCount(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestMarkRead_InvalidatesCache(t *testing.T) {
	t.Parallel()

	svc, _, _, cache := fanoutFixture()
	require.NoError(t, svc.MarkRead(context.Background(), "u1", "n1"))
	assert.Contains(t, cache.invalidated, "u1")
}
