package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// updateTimeout bounds a single SET_ACTIVITY round trip.
const updateTimeout = 10 * time.Second

// publisher pushes payloads to the presence connection one at a time under
// a rate limit. Only the newest unsent payload is kept, so a burst of
// events collapses into its final state.
type publisher struct {
	presence Presence
	limiter  *rate.Limiter

	mu      sync.Mutex
	pending *Payload

	wake chan struct{}
}

func newPublisher(p Presence, limit rate.Limit, burst int) *publisher {
	return &publisher{
		presence: p,
		limiter:  rate.NewLimiter(limit, burst),
		wake:     make(chan struct{}, 1),
	}
}

// publish queues p, replacing any payload not yet sent. It never blocks and
// takes no controller lock, so callers may hold one.
func (p *publisher) publish(payload Payload) {
	p.mu.Lock()
	p.pending = &payload
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// run sends queued payloads until ctx ends. Update failures are logged and
// never end the loop.
func (p *publisher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		}

		if err := p.limiter.Wait(ctx); err != nil {
			return
		}

		p.mu.Lock()
		payload := p.pending
		p.pending = nil
		p.mu.Unlock()
		if payload == nil {
			continue
		}

		uctx, cancel := context.WithTimeout(ctx, updateTimeout)
		err := p.presence.SetActivity(uctx, payload.Activity())
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				slog.Warn("presence update failed", "error", err)
			}
			continue
		}
		slog.Debug("presence updated", "details", payload.PrimaryText, "state", payload.SecondaryText)
	}
}
