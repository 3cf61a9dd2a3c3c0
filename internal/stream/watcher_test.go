package stream

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

type fakeBus struct {
	mu       sync.Mutex
	fn       func(string)
	unsubbed bool
}

func (b *fakeBus) SubscribeRequestUpdates(fn func(requestID string)) (func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fn = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.unsubbed = true
	}, nil
}

func (b *fakeBus) fire(id string) {
	b.mu.Lock()
	fn := b.fn
	b.mu.Unlock()
	fn(id)
}

func (b *fakeBus) wasUnsubscribed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.unsubbed
}

func waitEmission(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case n := <-ch:
		return n
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emission")
		return 0
	}
}

func TestWatcher_EmitsInitialSnapshotAndRefreshesOnEvents(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	w := NewWatcher(bus, logger.Nop())

	var mu sync.Mutex
	snapshot := []*repository.InternalRequest{{ID: "a"}}

	emissions := make(chan int, 8)
	stop, err := w.Subscribe(context.Background(),
		func(ctx context.Context) ([]*repository.InternalRequest, error) {
			mu.Lock()
			defer mu.Unlock()
			return snapshot, nil
		},
		func(items []*repository.InternalRequest) {
			emissions <- len(items)
		},
	)
	require.NoError(t, err)
	defer stop()

	assert.Equal(t, 1, waitEmission(t, emissions))

	mu.Lock()
	snapshot = []*repository.InternalRequest{{ID: "a"}, {ID: "b"}}
	mu.Unlock()

	bus.fire("b")
	assert.Equal(t, 2, waitEmission(t, emissions))
}

func TestWatcher_SurvivesTransientFetchErrors(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	w := NewWatcher(bus, logger.Nop())

	var mu sync.Mutex
	fail := true

	emissions := make(chan int, 8)
	stop, err := w.Subscribe(context.Background(),
		func(ctx context.Context) ([]*repository.InternalRequest, error) {
			mu.Lock()
			defer mu.Unlock()
			if fail {
				return nil, apperrors.New(apperrors.ErrCodeUnavailable, "store unreachable")
			}
			return []*repository.InternalRequest{{ID: "a"}}, nil
		},
		func(items []*repository.InternalRequest) {
			emissions <- len(items)
		},
	)
	require.NoError(t, err)
	defer stop()

	// The initial fetch fails; the subscription stays alive and the next
	// event resumes delivery.
	mu.Lock()
	fail = false
	mu.Unlock()

	bus.fire("a")
	assert.Equal(t, 1, waitEmission(t, emissions))
	assert.False(t, bus.wasUnsubscribed())
}

func TestWatcher_TerminatesOnAuthorizationLoss(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	w := NewWatcher(bus, logger.Nop())

	fetched := make(chan struct{}, 8)
	stop, err := w.Subscribe(context.Background(),
		func(ctx context.Context) ([]*repository.InternalRequest, error) {
			fetched <- struct{}{}
			return nil, apperrors.New(apperrors.ErrCodeUnauthorized, "token revoked")
		},
		func([]*repository.InternalRequest) {
			t.Error("no snapshot expected after authorization loss")
		},
	)
	require.NoError(t, err)
	defer stop()

	select {
	case <-fetched:
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never ran")
	}

	assert.Eventually(t, bus.wasUnsubscribed, 2*time.Second, 10*time.Millisecond)
}

func TestWatcher_StopUnsubscribes(t *testing.T) {
	t.Parallel()

	bus := &fakeBus{}
	w := NewWatcher(bus, logger.Nop())

	stop, err := w.Subscribe(context.Background(),
		func(ctx context.Context) ([]*repository.InternalRequest, error) {
			return nil, nil
		},
		func([]*repository.InternalRequest) {},
	)
	require.NoError(t, err)

	stop()
	assert.True(t, bus.wasUnsubscribed())
}
