/*
Package notify delivers out-of-band messages for the engine.

PURPOSE:
  Implements engine.Notifier. The default implementation writes every
  message to structured logs; a production deployment swaps in a mailer
  behind the same interface. Live status events additionally fan out to
  subscribed channels so an HTTP streaming endpoint can forward them.

DESIGN:
  Delivery failures never propagate into business flows. The interface
  is fire-and-forget; anything that goes wrong is logged and dropped.
*/
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/warp/worktime-engine/engine"
)

// LogNotifier logs outbound messages and fans live status events out to
// subscribers. It satisfies engine.Notifier.
type LogNotifier struct {
	logger     *slog.Logger
	adminEmail string

	mu   sync.Mutex
	subs map[chan engine.StatusEvent]struct{}
}

var _ engine.Notifier = (*LogNotifier)(nil)

// New builds a LogNotifier. adminEmail is the address administrative
// messages are labelled with.
func New(logger *slog.Logger, adminEmail string) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{
		logger:     logger,
		adminEmail: adminEmail,
		subs:       make(map[chan engine.StatusEvent]struct{}),
	}
}

func (n *LogNotifier) NotifyUser(ctx context.Context, user *engine.User, subject, body string) {
	n.logger.InfoContext(ctx, "user notification",
		"to", user.Email,
		"user", user.ID,
		"subject", subject,
		"body", body)
}

func (n *LogNotifier) NotifyAdmin(ctx context.Context, subject, body string) {
	n.logger.InfoContext(ctx, "admin notification",
		"to", n.adminEmail,
		"subject", subject,
		"body", body)
}

// PushLiveStatus delivers the event to every subscriber without blocking:
// a subscriber with a full buffer misses the event rather than stalling a
// session transition.
func (n *LogNotifier) PushLiveStatus(ctx context.Context, event engine.StatusEvent) {
	n.logger.DebugContext(ctx, "live status", "user", event.UserID, "status", event.Status)

	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers a live status listener. The returned cancel func
// unregisters it and closes the channel.
func (n *LogNotifier) Subscribe(buffer int) (<-chan engine.StatusEvent, func()) {
	ch := make(chan engine.StatusEvent, buffer)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	cancel := func() {
		n.mu.Lock()
		if _, ok := n.subs[ch]; ok {
			delete(n.subs, ch)
			close(ch)
		}
		n.mu.Unlock()
	}
	return ch, cancel
}
