/*
tracker.go - Work-session state machine

PURPOSE:
  Enforces the transition rules for work and break sessions:

    Work track:  [no open work] --start--> [open work] --end/break--> [closed]
    Break track: [no open break] --break--> [open break] --end/work--> [closed]

  Per user, at most one open work session and at most one open break may
  exist, and never both: starting a break closes the open work, resuming
  work closes the open break. Both halves of such a paired transition are
  applied in one store transaction.

BACKDATED ENTRIES:
  CreatePastSession records an entry with an explicit past start time
  (at most two hours back, never in the future). The entry is created in
  RequiresAttention status; a human later confirms it (Finish as claimed)
  or rejects it (the start time snaps back to the entry's creation time).

CONCURRENCY:
  Mutations for one user are serialized by an in-process keyed mutex.
  The store independently rejects a second open session of a kind with
  *OpenSessionError, so two processes racing on the same user still
  cannot produce two open work sessions.

SEE ALSO:
  - store.go:   Invariant contract on InsertSession
  - sweeper.go: Background auto-close / auto-flag rules
*/
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker is the work-session state machine.
type Tracker struct {
	store    Store
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
	locks    userMutexes
}

// NewTracker wires the state machine. A nil clock falls back to the
// system clock, a nil logger to slog.Default().
func NewTracker(store Store, notifier Notifier, clock Clock, logger *slog.Logger) *Tracker {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Tracker{store: store, notifier: notifier, clock: clock, logger: logger}
}

// =============================================================================
// LIVE TRANSITIONS
// =============================================================================

// StartSession opens a new session of the given kind at the current time.
//
// Break: requires an open work session and remaining daily break budget;
// the open work session is closed at the same instant the break opens.
// Work: any open break is closed first; "resume work" is implicit.
func (t *Tracker) StartSession(ctx context.Context, userID UserID, kind SessionKind) (*Session, error) {
	if !kind.Valid() {
		return nil, invalidArgf("unknown session kind %q", kind)
	}
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %s", userID)
	}

	unlock := t.locks.lock(userID)
	defer unlock()

	now := t.clock.Now()
	session := t.newSession(userID, kind, now, now, StatusStarted)

	switch kind {
	case KindBreak:
		if err := t.checkBreakBudget(ctx, userID); err != nil {
			return nil, err
		}
		err = t.store.WithTx(ctx, func(s Store) error {
			openWork, err := s.FindOpenSession(ctx, userID, KindWork)
			if err != nil {
				return err
			}
			if openWork == nil {
				return invalidStatef("cannot start a break without an active work session")
			}
			if err := closeSession(ctx, s, openWork, now); err != nil {
				return err
			}
			return s.InsertSession(ctx, session)
		})
	case KindWork:
		err = t.store.WithTx(ctx, func(s Store) error {
			openBreak, err := s.FindOpenSession(ctx, userID, KindBreak)
			if err != nil {
				return err
			}
			if openBreak != nil {
				if err := closeSession(ctx, s, openBreak, now); err != nil {
					return err
				}
			}
			return s.InsertSession(ctx, session)
		})
	}
	if err != nil {
		return nil, err
	}

	t.notifier.PushLiveStatus(ctx, StatusEvent{UserID: userID, Status: startedEvent(kind)})
	return session, nil
}

// EndSession closes the session at the current time.
func (t *Tracker) EndSession(ctx context.Context, id SessionID) (*Session, error) {
	session, err := t.existingSession(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := t.locks.lock(session.UserID)
	defer unlock()

	// Re-read under the lock; a concurrent transition may have closed it.
	session, err = t.existingSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, invalidStatef("session %s is already ended", id)
	}

	openBreak, err := t.store.FindOpenSession(ctx, session.UserID, KindBreak)
	if err != nil {
		return nil, err
	}
	switch session.Kind {
	case KindBreak:
		// Structurally impossible, but checked: another open break for
		// the same user means the invariant was violated elsewhere.
		if openBreak != nil && openBreak.ID != session.ID {
			return nil, invalidStatef("another break is already in progress")
		}
	case KindWork:
		if openBreak != nil {
			return nil, invalidStatef("cannot end work while a break is active")
		}
	}

	now := t.clock.Now()
	session.EndTime = &now
	if session.Status == StatusStarted {
		// RequiresAttention entries keep their status; confirm/reject
		// is the path that resolves those.
		session.Status = StatusFinished
	}
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}

	t.notifier.PushLiveStatus(ctx, StatusEvent{UserID: session.UserID, Status: endedEvent(session.Kind)})
	return session, nil
}

// =============================================================================
// BACKDATED ENTRIES
// =============================================================================

// maxBackdate bounds how far in the past a session may be created.
const maxBackdate = 2 * time.Hour

// CreatePastSession records a session that started at an explicit past
// instant. The entry always lands in RequiresAttention for human review.
func (t *Tracker) CreatePastSession(ctx context.Context, userID UserID, kind SessionKind, startTime time.Time) (*Session, error) {
	if !kind.Valid() {
		return nil, invalidArgf("unknown session kind %q", kind)
	}
	user, err := t.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %s", userID)
	}

	now := t.clock.Now()
	if startTime.After(now) {
		return nil, invalidArgf("start time %s is in the future", startTime.Format(time.RFC3339))
	}
	if now.Sub(startTime) > maxBackdate {
		return nil, invalidArgf("start time is more than %s in the past", maxBackdate)
	}

	unlock := t.locks.lock(userID)
	defer unlock()

	if kind == KindBreak {
		covering, err := t.store.FindCoveringSession(ctx, userID, KindWork, startTime)
		if err != nil {
			return nil, err
		}
		if covering == nil {
			return nil, invalidStatef("no work session covers %s", startTime.Format(time.RFC3339))
		}
		if err := t.checkBreakBudget(ctx, userID); err != nil {
			return nil, err
		}
	}

	session := t.newSession(userID, kind, startTime, now, StatusRequiresAttention)
	err = t.store.WithTx(ctx, func(s Store) error {
		if kind == KindWork {
			// A break running over the claimed start is cut off there.
			coveringBreak, err := s.FindCoveringSession(ctx, userID, KindBreak, startTime)
			if err != nil {
				return err
			}
			if coveringBreak != nil {
				if err := closeSession(ctx, s, coveringBreak, startTime); err != nil {
					return err
				}
			}
		}
		return s.InsertSession(ctx, session)
	})
	if err != nil {
		return nil, err
	}

	t.logger.InfoContext(ctx, "backdated entry recorded",
		"user", userID, "kind", kind, "claimed_start", startTime)
	t.notifier.NotifyAdmin(ctx,
		fmt.Sprintf("Backdated %s entry for %s", kind, user.FullName()),
		fmt.Sprintf("%s (%s) recorded a %s session starting %s, entered %d minutes after the fact.",
			user.FullName(), user.Email, kind,
			startTime.Format("02.01.2006 15:04"), MinutesBetween(startTime, now)))
	t.notifier.PushLiveStatus(ctx, StatusEvent{UserID: userID, Status: startedEvent(kind)})
	return session, nil
}

// ConfirmPastSession accepts a backdated entry as claimed: the session is
// finished at the current time with its past start intact.
func (t *Tracker) ConfirmPastSession(ctx context.Context, id SessionID) (*Session, error) {
	return t.resolvePastSession(ctx, id, false)
}

// RejectPastSession refuses the claimed past start: the entry is kept but
// reinterpreted as starting when it was actually created, then finished.
func (t *Tracker) RejectPastSession(ctx context.Context, id SessionID) (*Session, error) {
	return t.resolvePastSession(ctx, id, true)
}

func (t *Tracker) resolvePastSession(ctx context.Context, id SessionID, reject bool) (*Session, error) {
	session, err := t.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Existence == Deleted || session.Status != StatusRequiresAttention {
		return nil, notFoundf("no session %s awaiting review", id)
	}

	unlock := t.locks.lock(session.UserID)
	defer unlock()

	now := t.clock.Now()
	if reject {
		session.StartTime = session.CreatedAt
	}
	session.Status = StatusFinished
	session.EndTime = &now
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	t.logger.InfoContext(ctx, "backdated entry resolved",
		"session", id, "user", session.UserID, "rejected", reject)
	return session, nil
}

// =============================================================================
// ADMINISTRATIVE OPERATIONS
// =============================================================================

// EditSession overwrites a session's fields. Admin-gated by the caller.
func (t *Tracker) EditSession(ctx context.Context, id SessionID, startTime time.Time, endTime *time.Time, status SessionStatus, kind SessionKind) (*Session, error) {
	if !kind.Valid() {
		return nil, invalidArgf("unknown session kind %q", kind)
	}
	if endTime != nil && endTime.Before(startTime) {
		return nil, &InvalidSpanError{Start: startTime, End: *endTime}
	}
	session, err := t.existingSession(ctx, id)
	if err != nil {
		return nil, err
	}
	session.StartTime = startTime
	session.EndTime = endTime
	session.Status = status
	session.Kind = kind
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// DeleteSession soft-deletes the session.
func (t *Tracker) DeleteSession(ctx context.Context, id SessionID) error {
	session, err := t.store.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session == nil {
		return notFoundf("session %s", id)
	}
	session.Existence = Deleted
	return t.store.UpdateSession(ctx, session)
}

// RestoreSession brings a soft-deleted session back, fields untouched.
func (t *Tracker) RestoreSession(ctx context.Context, id SessionID) (*Session, error) {
	session, err := t.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Existence != Deleted {
		return nil, notFoundf("no deleted session %s", id)
	}
	session.Existence = Exist
	if err := t.store.UpdateSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// QuerySessions is a read passthrough for listing surfaces.
func (t *Tracker) QuerySessions(ctx context.Context, f SessionFilter) ([]*Session, error) {
	return t.store.QuerySessions(ctx, f)
}

// =============================================================================
// DERIVED READS
// =============================================================================

// UsedBreakMinutesToday sums the durations of today's closed breaks.
// Open breaks do not count against the budget until they end.
func (t *Tracker) UsedBreakMinutesToday(ctx context.Context, userID UserID) (int, error) {
	today := DayStart(t.clock.Now())
	closed := false
	kind := KindBreak
	sessions, err := t.store.QuerySessions(ctx, SessionFilter{
		UserIDs:  []UserID{userID},
		Kind:     &kind,
		Open:     &closed,
		StartDay: &today,
	})
	if err != nil {
		return 0, err
	}
	total := 0
	for _, s := range sessions {
		if minutes, ok := s.DurationMinutes(); ok {
			total += minutes
		}
	}
	return total, nil
}

func (t *Tracker) checkBreakBudget(ctx context.Context, userID UserID) error {
	settings, err := t.store.GetSettings(ctx)
	if err != nil {
		return err
	}
	used, err := t.UsedBreakMinutesToday(ctx, userID)
	if err != nil {
		return err
	}
	if settings.MaxBreakMinutesPerDay-used <= 0 {
		return &BreakBudgetError{UserID: userID, UsedMinutes: used, MaxMinutes: settings.MaxBreakMinutesPerDay}
	}
	return nil
}

// =============================================================================
// INTERNALS
// =============================================================================

func (t *Tracker) newSession(userID UserID, kind SessionKind, startTime, createdAt time.Time, status SessionStatus) *Session {
	return &Session{
		ID:        SessionID(uuid.NewString()),
		UserID:    userID,
		Kind:      kind,
		Status:    status,
		StartTime: startTime,
		CreatedAt: createdAt,
		Existence: Exist,
	}
}

func (t *Tracker) existingSession(ctx context.Context, id SessionID) (*Session, error) {
	session, err := t.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Existence == Deleted {
		return nil, notFoundf("session %s", id)
	}
	return session, nil
}

// closeSession finishes an open session at the given instant, preserving
// RequiresAttention status for entries still awaiting review.
func closeSession(ctx context.Context, s Store, session *Session, at time.Time) error {
	session.EndTime = &at
	if session.Status == StatusStarted {
		session.Status = StatusFinished
	}
	return s.UpdateSession(ctx, session)
}

func startedEvent(kind SessionKind) string {
	if kind == KindBreak {
		return EventBreakStarted
	}
	return EventWorkStarted
}

func endedEvent(kind SessionKind) string {
	if kind == KindBreak {
		return EventBreakEnded
	}
	return EventWorkEnded
}

// userMutexes serializes per-user session mutations within this process.
type userMutexes struct {
	mu    sync.Mutex
	locks map[UserID]*sync.Mutex
}

func (u *userMutexes) lock(id UserID) (unlock func()) {
	u.mu.Lock()
	if u.locks == nil {
		u.locks = make(map[UserID]*sync.Mutex)
	}
	l, ok := u.locks[id]
	if !ok {
		l = &sync.Mutex{}
		u.locks[id] = l
	}
	u.mu.Unlock()

	l.Lock()
	return l.Unlock
}
