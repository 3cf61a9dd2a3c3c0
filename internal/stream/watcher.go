// Package stream provides live request-set subscriptions driven by change
// events.
package stream

import (
	"context"

	"github.com/orgdesk/hrops/internal/apperrors"
	"github.com/orgdesk/hrops/internal/logger"
	"github.com/orgdesk/hrops/internal/repository"
)

// Fetch loads the current contents of a filtered request view.
type Fetch func(ctx context.Context) ([]*repository.InternalRequest, error)

// Bus delivers request change events. The NATS implementation reconnects on
// its own, so a watcher silently rides out transient outages.
type Bus interface {
	SubscribeRequestUpdates(fn func(requestID string)) (func(), error)
}

// Watcher turns change events into fresh snapshots of filtered views.
// Consumers must treat each emission independently: delivery is at-least-once
// and bursts coalesce into a single refresh.
type Watcher struct {
	bus Bus
	log *logger.Logger
}

// NewWatcher creates a Watcher.
func NewWatcher(bus Bus, log *logger.Logger) *Watcher {
	return &Watcher{bus: bus, log: log}
}

// Subscribe emits the current snapshot immediately, then again after every
// change event, until the returned handle is called or ctx ends.
//
// Transient fetch errors keep the subscription alive; the next event retries.
// An authorization failure ends the subscription without surfacing an error —
// that is the normal shape of a logout racing an open view, not a fault.
func (w *Watcher) Subscribe(ctx context.Context, fetch Fetch, onChange func([]*repository.InternalRequest)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)

	// Size 1: a burst of events collapses into one pending refresh.
	kick := make(chan struct{}, 1)
	kick <- struct{}{}

	unsub, err := w.bus.SubscribeRequestUpdates(func(string) {
		select {
		case kick <- struct{}{}:
		default:
		}
	})
	if err != nil {
		cancel()
		return nil, err
	}

	stop := func() {
		unsub()
		cancel()
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-kick:
			}

			items, err := fetch(ctx)
			if err != nil {
				if apperrors.Code(err) == apperrors.ErrCodeUnauthorized {
					stop()
					return
				}
				w.log.Warn().Err(err).Msg("live view refresh failed; keeping subscription")
				continue
			}
			onChange(items)
		}
	}()

	return stop, nil
}
