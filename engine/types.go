/*
Package engine implements the work-session tracking core.

PURPOSE:
  This package contains the domain types and business rules for tracking
  employee work and break sessions, day-off requests, and derived time
  summaries. Transport (HTTP), persistence (SQLite), and notification
  delivery live in sibling packages and talk to this one through the
  interfaces defined in store.go and notify.go.

KEY CONCEPTS IN THIS FILE (types.go):
  - Session: A single work or break interval for a user (open = no end time)
  - DayOffRequest: A leave request with an inclusive date range
  - Settings: The process-wide policy knobs (break budget, work cap, ...)
  - SummaryResult: A read-only per-user/per-range time projection
  - Identity: The resolved caller (user id + roles) for authorization

DESIGN PRINCIPLES:
  1. Soft deletion: records are hidden, never destroyed; restore is cheap
  2. Two open tracks per user: at most one open work AND one open break,
     never both at the same time (see tracker.go)
  3. No ambient state: settings are read through the store, never a global

SEE ALSO:
  - tracker.go:  Session state machine
  - summary.go:  Aggregation engine
  - sweeper.go:  Background compliance rules
  - dayoff.go:   Day-off request lifecycle
*/
package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type UserID string
type SessionID string
type DayOffID string
type ProjectID string

// =============================================================================
// SESSION - A single work or break interval
// =============================================================================

type SessionKind string

const (
	KindWork  SessionKind = "work"
	KindBreak SessionKind = "break"
)

// Valid reports whether the kind is one of the two known variants.
func (k SessionKind) Valid() bool { return k == KindWork || k == KindBreak }

type SessionStatus string

const (
	// StatusStarted is the initial status of a live session.
	StatusStarted SessionStatus = "started"
	// StatusFinished marks a session closed through the normal flow.
	StatusFinished SessionStatus = "finished"
	// StatusRequiresAttention marks backdated entries awaiting human review
	// and over-long work sessions flagged by the sweeper.
	StatusRequiresAttention SessionStatus = "requires_attention"
)

// Existence is the soft-delete flag shared by all persisted records.
type Existence string

const (
	Exist   Existence = "exist"
	Deleted Existence = "deleted"
)

// Session is a work or break interval. An open session has EndTime == nil.
type Session struct {
	ID        SessionID
	UserID    UserID
	Kind      SessionKind
	Status    SessionStatus
	StartTime time.Time
	EndTime   *time.Time
	CreatedAt time.Time
	Existence Existence
}

// Open reports whether the session is still running.
func (s *Session) Open() bool { return s.EndTime == nil }

// DurationMinutes returns the closed session's length in whole minutes.
// The second return is false for open sessions; callers that want an
// "as of now" figure must project the end themselves.
func (s *Session) DurationMinutes() (int, bool) {
	if s.EndTime == nil {
		return 0, false
	}
	return MinutesBetween(s.StartTime, *s.EndTime), true
}

// Covers reports whether the session interval contains the instant at.
// Open sessions cover everything from their start onward.
func (s *Session) Covers(at time.Time) bool {
	if at.Before(s.StartTime) {
		return false
	}
	return s.EndTime == nil || s.EndTime.After(at)
}

// Clone returns a deep copy, detaching the EndTime pointer.
func (s *Session) Clone() *Session {
	out := *s
	if s.EndTime != nil {
		end := *s.EndTime
		out.EndTime = &end
	}
	return &out
}

// =============================================================================
// DAY-OFF REQUEST
// =============================================================================

type DayOffStatus string

const (
	DayOffPending   DayOffStatus = "pending"
	DayOffApproved  DayOffStatus = "approved"
	DayOffRejected  DayOffStatus = "rejected"
	DayOffCancelled DayOffStatus = "cancelled"
	// DayOffExecuted is set by the daily rollover once an approved
	// request's end date has passed.
	DayOffExecuted DayOffStatus = "executed"
)

// DayOffRequest is a leave request for an inclusive [DateStart, DateEnd]
// calendar range. Times are normalized to midnight.
type DayOffRequest struct {
	ID        DayOffID
	UserID    UserID
	DateStart time.Time
	DateEnd   time.Time
	Status    DayOffStatus
	Reason    string
	Existence Existence
}

// Days returns the number of calendar days the request spans (inclusive).
func (r *DayOffRequest) Days() int {
	return DaysBetween(r.DateStart, r.DateEnd) + 1
}

// Clone returns a copy of the request.
func (r *DayOffRequest) Clone() *DayOffRequest {
	out := *r
	return &out
}

// =============================================================================
// USER & PROJECT
// =============================================================================

// User is a directory-sourced employee record. Users referenced by
// sessions or day-off requests stay resolvable until soft-deleted.
type User struct {
	ID        UserID
	Name      string
	Surname   string
	Email     string
	ProjectID *ProjectID
	Existence Existence
}

// FullName is the display form used in notifications.
func (u *User) FullName() string { return u.Name + " " + u.Surname }

type Project struct {
	ID          ProjectID
	Name        string
	Description string
	Existence   Existence
}

// =============================================================================
// SETTINGS - Singleton policy row, lazily seeded
// =============================================================================

type SyncFrequency string

const (
	SyncDaily  SyncFrequency = "daily"
	SyncWeekly SyncFrequency = "weekly"
)

// Settings is the single shared policy record. Exactly one instance exists;
// the store seeds DefaultSettings() on first read.
type Settings struct {
	// MaxBreakMinutesPerDay is the daily break budget per user.
	MaxBreakMinutesPerDay int
	// MaxWorkHoursPerDay is the cap after which open work sessions are
	// flagged for attention (never auto-closed).
	MaxWorkHoursPerDay int
	// LatestStartHour is the hour of day after which the "never started
	// work" reminder may fire.
	LatestStartHour int

	// Directory sync schedule.
	SyncHour      int
	SyncFrequency SyncFrequency
	SyncDays      []time.Weekday // only consulted for SyncWeekly
}

// DefaultSettings mirrors the values seeded on first use.
func DefaultSettings() *Settings {
	return &Settings{
		MaxBreakMinutesPerDay: 30,
		MaxWorkHoursPerDay:    10,
		LatestStartHour:       12,
		SyncHour:              2,
		SyncFrequency:         SyncDaily,
	}
}

// Clone returns a copy with its own SyncDays slice.
func (s *Settings) Clone() *Settings {
	out := *s
	out.SyncDays = append([]time.Weekday(nil), s.SyncDays...)
	return &out
}

// =============================================================================
// SUMMARY RESULT - Read-only projection, never persisted
// =============================================================================

// SummaryResult aggregates sessions and day-off requests for one user (or
// all users when unfiltered) over a date range. Open sessions contribute
// zero minutes; day-off requests contribute their full day span to the
// bucket of their status.
type SummaryResult struct {
	UserID      *UserID
	UserName    string
	UserSurname string
	UserEmail   string

	// Date is the bucket day for daily summaries, or the range start.
	Date time.Time

	TotalWorkMinutes  int
	TotalBreakMinutes int
	SessionCount      int
	BreakCount        int

	DayOffRequestCount int
	ApprovedDaysOff    int
	RejectedDaysOff    int
	PendingDaysOff     int
	CancelledDaysOff   int
	ExecutedDaysOff    int
}

// WorkHours returns the work total as fractional hours.
func (r *SummaryResult) WorkHours() decimal.Decimal {
	return minutesToHours(r.TotalWorkMinutes)
}

// BreakHours returns the break total as fractional hours.
func (r *SummaryResult) BreakHours() decimal.Decimal {
	return minutesToHours(r.TotalBreakMinutes)
}

func minutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(decimal.NewFromInt(60)).Round(2)
}

// =============================================================================
// IDENTITY - Resolved caller, produced by the transport layer
// =============================================================================

const RoleAdmin = "admin"

// Identity is the authenticated caller. The engine never parses tokens;
// the API layer resolves them and passes the result down.
type Identity struct {
	UserID UserID
	Roles  []string
}

// IsAdmin reports whether the caller carries the admin role.
func (id Identity) IsAdmin() bool {
	for _, r := range id.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// CanActFor reports whether the caller may act on records owned by userID.
func (id Identity) CanActFor(userID UserID) bool {
	return id.UserID == userID || id.IsAdmin()
}

// =============================================================================
// LIVE STATUS EVENTS
// =============================================================================

// StatusEvent is pushed to the live-update channel on every session
// transition so connected clients can repaint presence indicators.
type StatusEvent struct {
	UserID UserID `json:"userId"`
	Status string `json:"status"`
}

const (
	EventWorkStarted   = "work_started"
	EventBreakStarted  = "break_started"
	EventWorkEnded     = "work_ended"
	EventBreakEnded    = "break_ended"
	EventAutoWorkEnded = "auto_work_ended"
)
