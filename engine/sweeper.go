/*
sweeper.go - Background compliance rules

PURPOSE:
  The rules a scheduler runs against live data without user action:
  - force-close breaks that ran past the daily budget
  - flag (never close) work sessions past the daily cap
  - find users who never started work today
  - find users sitting in an over-long break right now
  - roll day-off requests past their end date into terminal statuses

DESIGN:
  Scheduling (intervals, jitter, shutdown) lives in api/scheduler.go;
  this file is only the rules, invoked through the same interfaces the
  request handlers use.

  Every mutation re-checks its precondition inside the write transaction:
  the user may have ended the break between the sweep's read and write,
  which is treated as a no-op, not an error. Per-item failures are logged
  and the sweep moves on to the next record.

  Notifications that must fire at most once per user per day are guarded
  by the notification log, written in the same transaction as the
  mutation they accompany.
*/
package engine

import (
	"context"
	"fmt"
	"log/slog"
)

// Sweeper evaluates time-based compliance rules.
type Sweeper struct {
	store    Store
	notifier Notifier
	clock    Clock
	logger   *slog.Logger
}

func NewSweeper(store Store, notifier Notifier, clock Clock, logger *slog.Logger) *Sweeper {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if notifier == nil {
		notifier = NoopNotifier{}
	}
	return &Sweeper{store: store, notifier: notifier, clock: clock, logger: logger}
}

// =============================================================================
// BREAK AUTO-CLOSE
// =============================================================================

// AutoCloseOverlongBreaks force-closes open breaks older than
// maxBreakMinutes and notifies the user and the admin address. Returns
// the number of breaks closed. Safe to run repeatedly: a break closed by
// an earlier run (or by the user mid-sweep) is skipped silently, and the
// mail fires at most once per user per day even if the user runs a
// second break over budget.
func (sw *Sweeper) AutoCloseOverlongBreaks(ctx context.Context, maxBreakMinutes int) (int, error) {
	now := sw.clock.Now()
	openBreaks, err := sw.store.ListOpenSessions(ctx, KindBreak)
	if err != nil {
		return 0, err
	}

	closed := 0
	for _, candidate := range openBreaks {
		elapsed := MinutesBetween(candidate.StartTime, now)
		if elapsed <= maxBreakMinutes {
			continue
		}

		acted := false
		alreadyNotified := false
		err := sw.store.WithTx(ctx, func(s Store) error {
			current, err := s.GetSession(ctx, candidate.ID)
			if err != nil {
				return err
			}
			if current == nil || !current.Open() || current.Existence == Deleted {
				return nil // user beat us to it
			}
			if err := closeSession(ctx, s, current, now); err != nil {
				return err
			}
			acted = true
			alreadyNotified, err = s.WasNotified(ctx, current.UserID, NoteKindBreakClosed, DayStart(now))
			if err != nil {
				return err
			}
			if alreadyNotified {
				return nil
			}
			return s.MarkNotified(ctx, current.UserID, NoteKindBreakClosed, DayStart(now))
		})
		if err != nil {
			sw.logger.Error("auto-close break failed", "session", candidate.ID, "err", err)
			continue
		}
		if !acted {
			continue
		}
		closed++

		// The state transition happened either way; only the mail dedups.
		sw.notifier.PushLiveStatus(ctx, StatusEvent{UserID: candidate.UserID, Status: EventBreakEnded})
		if alreadyNotified {
			continue
		}

		user, err := sw.store.GetUser(ctx, candidate.UserID)
		if err != nil || user == nil {
			sw.logger.Warn("auto-closed break for unresolvable user", "user", candidate.UserID)
			continue
		}
		sw.notifier.NotifyUser(ctx, user,
			"Your break has been automatically ended",
			fmt.Sprintf("Your break started at %s was automatically ended after %d minutes.",
				candidate.StartTime.Format("15:04"), elapsed))
		sw.notifier.NotifyAdmin(ctx,
			fmt.Sprintf("Break automatically ended for %s", user.FullName()),
			fmt.Sprintf("Break of %s (%s) started at %s was automatically ended after %d minutes.",
				user.FullName(), user.Email, candidate.StartTime.Format("15:04"), elapsed))
	}
	return closed, nil
}

// =============================================================================
// WORK OVERRUN FLAGGING
// =============================================================================

// AutoFlagOverlongWork flags (RequiresAttention, never auto-closed) the
// still-open work sessions of users whose work total today exceeds
// maxWorkHours. The accompanying notification fires at most once per
// user per day, guarded by the notification log. Returns the number of
// sessions flagged.
func (sw *Sweeper) AutoFlagOverlongWork(ctx context.Context, maxWorkHours int) (int, error) {
	now := sw.clock.Now()
	today := DayStart(now)
	kind := KindWork
	sessions, err := sw.store.QuerySessions(ctx, SessionFilter{Kind: &kind, StartDay: &today})
	if err != nil {
		return 0, err
	}

	totals := make(map[UserID]int)
	open := make(map[UserID][]*Session)
	for _, s := range sessions {
		if minutes, ok := s.DurationMinutes(); ok {
			totals[s.UserID] += minutes
		} else {
			totals[s.UserID] += MinutesBetween(s.StartTime, now)
			open[s.UserID] = append(open[s.UserID], s)
		}
	}

	flagged := 0
	for userID, total := range totals {
		if total <= maxWorkHours*60 || len(open[userID]) == 0 {
			continue
		}

		notify := false
		for _, candidate := range open[userID] {
			err := sw.store.WithTx(ctx, func(s Store) error {
				current, err := s.GetSession(ctx, candidate.ID)
				if err != nil {
					return err
				}
				if current == nil || !current.Open() || current.Status == StatusRequiresAttention {
					return nil
				}
				current.Status = StatusRequiresAttention
				if err := s.UpdateSession(ctx, current); err != nil {
					return err
				}
				already, err := s.WasNotified(ctx, userID, NoteKindOverlongWork, today)
				if err != nil {
					return err
				}
				if !already {
					if err := s.MarkNotified(ctx, userID, NoteKindOverlongWork, today); err != nil {
						return err
					}
					notify = true
				}
				flagged++
				return nil
			})
			if err != nil {
				sw.logger.Error("auto-flag work failed", "session", candidate.ID, "err", err)
			}
		}

		if !notify {
			continue
		}
		user, err := sw.store.GetUser(ctx, userID)
		if err != nil || user == nil {
			continue
		}
		sw.notifier.NotifyUser(ctx, user,
			"Unfinished work session",
			fmt.Sprintf("Your work session was not finished within %d hours. Please contact an administrator.", maxWorkHours))
		sw.notifier.NotifyAdmin(ctx,
			fmt.Sprintf("Unfinished work session for %s", user.FullName()),
			fmt.Sprintf("Work of %s (%s) exceeded %d hours today and is still open.", user.FullName(), user.Email, maxWorkHours))
		sw.notifier.PushLiveStatus(ctx, StatusEvent{UserID: userID, Status: EventAutoWorkEnded})
	}
	return flagged, nil
}

// =============================================================================
// PRESENCE QUERIES
// =============================================================================

// UsersWithoutStartedWorkToday returns existing users who have no work
// session today and no approved day-off covering today.
func (sw *Sweeper) UsersWithoutStartedWorkToday(ctx context.Context) ([]UserID, error) {
	today := DayStart(sw.clock.Now())

	users, err := sw.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}

	kind := KindWork
	started, err := sw.store.QuerySessions(ctx, SessionFilter{Kind: &kind, StartDay: &today})
	if err != nil {
		return nil, err
	}
	startedSet := make(map[UserID]bool, len(started))
	for _, s := range started {
		startedSet[s.UserID] = true
	}

	onDayOff, err := sw.store.UsersOnApprovedDayOff(ctx, today)
	if err != nil {
		return nil, err
	}
	dayOffSet := make(map[UserID]bool, len(onDayOff))
	for _, id := range onDayOff {
		dayOffSet[id] = true
	}

	var result []UserID
	for _, u := range users {
		if !startedSet[u.ID] && !dayOffSet[u.ID] {
			result = append(result, u.ID)
		}
	}
	return result, nil
}

// NotifyUsersWithoutWork reminds users who have not started work today.
// Skips weekends, stays quiet before latestStartHour, and fires at most
// once per user per day.
func (sw *Sweeper) NotifyUsersWithoutWork(ctx context.Context, latestStartHour int) (int, error) {
	now := sw.clock.Now()
	if IsWeekend(now) || now.Hour() < latestStartHour {
		return 0, nil
	}
	today := DayStart(now)

	userIDs, err := sw.UsersWithoutStartedWorkToday(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, userID := range userIDs {
		already, err := sw.store.WasNotified(ctx, userID, NoteKindNoWorkStarted, today)
		if err != nil {
			sw.logger.Error("reminder dedup check failed", "user", userID, "err", err)
			continue
		}
		if already {
			continue
		}
		user, err := sw.store.GetUser(ctx, userID)
		if err != nil || user == nil {
			continue
		}
		if err := sw.store.MarkNotified(ctx, userID, NoteKindNoWorkStarted, today); err != nil {
			sw.logger.Error("reminder dedup mark failed", "user", userID, "err", err)
			continue
		}
		sw.notifier.NotifyUser(ctx, user,
			"You have not started work today",
			"No work session has been recorded for you today. Start one or request a day off.")
		sent++
	}
	return sent, nil
}

// UsersWithLongActiveBreak returns users whose open breaks started today
// have together run longer than maxBreakMinutes. An external presence
// integration uses this to decide on idle-driven actions.
func (sw *Sweeper) UsersWithLongActiveBreak(ctx context.Context, maxBreakMinutes int) ([]UserID, error) {
	now := sw.clock.Now()
	openBreaks, err := sw.store.ListOpenSessions(ctx, KindBreak)
	if err != nil {
		return nil, err
	}

	totals := make(map[UserID]int)
	var order []UserID
	for _, s := range openBreaks {
		if !SameDay(s.StartTime, now) {
			continue
		}
		if _, seen := totals[s.UserID]; !seen {
			order = append(order, s.UserID)
		}
		totals[s.UserID] += MinutesBetween(s.StartTime, now)
	}

	var result []UserID
	for _, id := range order {
		if totals[id] > maxBreakMinutes {
			result = append(result, id)
		}
	}
	return result, nil
}

// =============================================================================
// DAY-OFF ROLLOVER
// =============================================================================

// RolloverDayOffStatuses advances requests whose end date has passed:
// Approved becomes Executed, Pending becomes Rejected. Returns the
// number of requests updated.
func (sw *Sweeper) RolloverDayOffStatuses(ctx context.Context) (int, error) {
	today := DayStart(sw.clock.Now())
	requests, err := sw.store.ListDayOffsEndedBefore(ctx, today, []DayOffStatus{DayOffApproved, DayOffPending})
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, r := range requests {
		next := DayOffExecuted
		if r.Status == DayOffPending {
			next = DayOffRejected
		}
		acted := false
		err := sw.store.WithTx(ctx, func(s Store) error {
			current, err := s.GetDayOff(ctx, r.ID)
			if err != nil {
				return err
			}
			if current == nil || current.Existence == Deleted || current.Status != r.Status {
				return nil
			}
			current.Status = next
			acted = true
			return s.UpdateDayOff(ctx, current)
		})
		if err != nil {
			sw.logger.Error("day-off rollover failed", "request", r.ID, "err", err)
			continue
		}
		if acted {
			updated++
		}
	}
	return updated, nil
}
