package engine

import "context"

// =============================================================================
// NOTIFICATION SINK - Fire-and-forget outbound channels
// =============================================================================

// Notifier delivers out-of-band messages. Implementations must never
// return delivery failures into business flows: log and move on.
type Notifier interface {
	// NotifyUser sends a message to the user's own channel (email).
	NotifyUser(ctx context.Context, user *User, subject, body string)

	// NotifyAdmin sends a message to the administrative address.
	NotifyAdmin(ctx context.Context, subject, body string)

	// PushLiveStatus publishes a presence transition to connected clients.
	PushLiveStatus(ctx context.Context, event StatusEvent)
}

// NoopNotifier drops everything. Useful in tests that don't assert on
// notifications.
type NoopNotifier struct{}

func (NoopNotifier) NotifyUser(context.Context, *User, string, string) {}
func (NoopNotifier) NotifyAdmin(context.Context, string, string)       {}
func (NoopNotifier) PushLiveStatus(context.Context, StatusEvent)       {}

var _ Notifier = NoopNotifier{}

// Notification-log kinds used for per-day deduplication.
const (
	NoteKindOverlongWork  = "overlong_work"
	NoteKindBreakClosed   = "break_auto_closed"
	NoteKindNoWorkStarted = "no_work_started"
	NoteKindLongBreak     = "long_active_break"
)
