// Package notify provides the notification sources an orchestrator can watch a session with.
//
// Poller ticks at a fixed interval and is always available. WebSocket follows the push channel of the session
// server, a JSON-RPC 2.0 stream over a websocket. Fallback combines a best-effort source with a reliable one.
package notify

import (
	"context"
	"time"

	"github.com/askiada/molsim/pkg/orchestrator"
	"github.com/askiada/molsim/pkg/wire"
)

// Poller notifies once on subscription and then every Interval.
type Poller struct {
	Interval time.Duration
}

// DefaultPollInterval is used when Interval is not set.
const DefaultPollInterval = 5 * time.Second

// NewPoller returns a poller ticking every interval.
func NewPoller(interval time.Duration) *Poller {
	return &Poller{Interval: interval}
}

func (p *Poller) Subscribe(ctx context.Context, sessionID string) (<-chan wire.Notification, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	ch := make(chan wire.Notification)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		n := wire.NewNotification(wire.MethodSessionUpdate, sessionID)
		for {
			select {
			case <-ctx.Done():
				return
			case ch <- n:
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return ch, nil
}

// Fallback uses Primary and switches to Secondary when Primary cannot subscribe or its stream ends.
type Fallback struct {
	Primary   orchestrator.Notifier
	Secondary orchestrator.Notifier
}

// NewFallback returns a Fallback from primary to secondary.
func NewFallback(primary, secondary orchestrator.Notifier) *Fallback {
	return &Fallback{Primary: primary, Secondary: secondary}
}

func (f *Fallback) Subscribe(ctx context.Context, sessionID string) (<-chan wire.Notification, error) {
	primary, err := f.Primary.Subscribe(ctx, sessionID)
	if err != nil {
		return f.Secondary.Subscribe(ctx, sessionID)
	}

	ch := make(chan wire.Notification)
	go func() {
		defer close(ch)

		if !forward(ctx, primary, ch) {
			return
		}

		secondary, err := f.Secondary.Subscribe(ctx, sessionID)
		if err != nil {
			return
		}
		forward(ctx, secondary, ch)
	}()

	return ch, nil
}

// forward copies in to out until in is closed. It returns false when ctx ended first.
func forward(ctx context.Context, in <-chan wire.Notification, out chan<- wire.Notification) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case n, ok := <-in:
			if !ok {
				return ctx.Err() == nil
			}
			select {
			case out <- n:
			case <-ctx.Done():
				return false
			}
		}
	}
}

var (
	_ orchestrator.Notifier = (*Poller)(nil)
	_ orchestrator.Notifier = (*Fallback)(nil)
	_ orchestrator.Notifier = (*WebSocket)(nil)
)
