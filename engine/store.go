/*
store.go - Persistence interfaces for the engine

PURPOSE:
  Defines the boundary between the business rules and the database.
  Different implementations back this with SQLite (store/sqlite) or
  plain maps (engine/store Memory, used by tests).

KEY INTERFACES:
  SessionStore:         Work/break session records
  DayOffStore:          Day-off request records
  UserStore:            Directory-sourced user catalogue + projects
  SettingsStore:        The lazily-seeded singleton policy row
  NotificationLogStore: Per user/kind/day dedup guard for sweeper mail
  Store:                All of the above plus WithTx

INVARIANT ENFORCEMENT:
  InsertSession MUST reject a second open session of the same kind for
  the same user with *OpenSessionError. The SQLite implementation backs
  this with a partial unique index, the memory implementation with a
  map scan under its lock. The tracker additionally serializes per-user
  mutations, but the store check is what closes the race window.

ATOMICITY:
  WithTx executes fn against a transaction-scoped Store. Paired session
  transitions ("close break + open work") and sweeper flag-plus-dedup
  writes go through it so no half-applied transition can survive a crash.

SOFT DELETION:
  Queries take an Existence filter; business reads always ask for Exist.
  Nothing in this interface hard-deletes.
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// FILTERS
// =============================================================================

// SessionFilter narrows QuerySessions. Zero values mean "no constraint".
type SessionFilter struct {
	UserIDs   []UserID
	Kind      *SessionKind
	Open      *bool // true = end_time IS NULL, false = closed only
	Deleted   bool  // true selects soft-deleted records instead of existing
	StartDay  *time.Time
	StartFrom *time.Time
	StartTo   *time.Time
	ProjectID *ProjectID

	// Substring matches against the owning user's name/surname.
	NameContains    string
	SurnameContains string

	// Offset/limit pagination; Limit == 0 means unbounded.
	Offset int
	Limit  int
}

// DayOffFilter narrows QueryDayOffs. Semantics mirror SessionFilter.
type DayOffFilter struct {
	UserID   *UserID
	Statuses []DayOffStatus
	Deleted  bool

	// DateStart >= StartFrom and DateEnd <= EndTo, both inclusive.
	StartFrom *time.Time
	EndTo     *time.Time

	NameContains    string
	SurnameContains string

	Offset int
	Limit  int
}

// =============================================================================
// STORE INTERFACES
// =============================================================================

type SessionStore interface {
	// InsertSession persists a new session. Returns *OpenSessionError if
	// the user already has an open existing session of the same kind.
	InsertSession(ctx context.Context, s *Session) error

	// GetSession returns the session regardless of existence state, or
	// nil when the id is unknown.
	GetSession(ctx context.Context, id SessionID) (*Session, error)

	// UpdateSession overwrites the stored record by id.
	UpdateSession(ctx context.Context, s *Session) error

	// FindOpenSession returns the user's open existing session of the
	// given kind, or nil when there is none.
	FindOpenSession(ctx context.Context, userID UserID, kind SessionKind) (*Session, error)

	// FindCoveringSession returns an existing session of the given kind
	// whose interval contains at (open sessions cover onward), or nil.
	FindCoveringSession(ctx context.Context, userID UserID, kind SessionKind, at time.Time) (*Session, error)

	// ListOpenSessions returns every existing open session of the kind,
	// across all users. Used by the sweeper.
	ListOpenSessions(ctx context.Context, kind SessionKind) ([]*Session, error)

	// QuerySessions applies the filter, ordered by StartTime descending.
	QuerySessions(ctx context.Context, f SessionFilter) ([]*Session, error)
}

type DayOffStore interface {
	InsertDayOff(ctx context.Context, r *DayOffRequest) error

	// GetDayOff returns the request regardless of existence, or nil.
	GetDayOff(ctx context.Context, id DayOffID) (*DayOffRequest, error)

	UpdateDayOff(ctx context.Context, r *DayOffRequest) error

	// HasDayOffOverlap reports whether a non-cancelled existing request
	// for the user intersects [dateStart, dateEnd] (day-inclusive).
	// excludeID skips the request being edited; empty means none.
	HasDayOffOverlap(ctx context.Context, userID UserID, dateStart, dateEnd time.Time, excludeID DayOffID) (bool, error)

	// QueryDayOffs applies the filter, ordered by DateStart descending.
	QueryDayOffs(ctx context.Context, f DayOffFilter) ([]*DayOffRequest, error)

	// ListDayOffsEndedBefore returns existing requests in the given
	// statuses whose DateEnd is strictly before day. Used by rollover.
	ListDayOffsEndedBefore(ctx context.Context, day time.Time, statuses []DayOffStatus) ([]*DayOffRequest, error)

	// UsersOnApprovedDayOff returns users with an approved existing
	// request covering day.
	UsersOnApprovedDayOff(ctx context.Context, day time.Time) ([]UserID, error)
}

type UserStore interface {
	// GetUser returns the existing user, or nil when absent/deleted.
	GetUser(ctx context.Context, id UserID) (*User, error)

	// ListUsers returns all existing users.
	ListUsers(ctx context.Context) ([]*User, error)

	// UpsertUser inserts or overwrites the record, including existence.
	UpsertUser(ctx context.Context, u *User) error

	SaveProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, id ProjectID) (*Project, error)
	ListProjects(ctx context.Context) ([]*Project, error)
}

type SettingsStore interface {
	// GetSettings returns the singleton row, seeding DefaultSettings()
	// if no row exists yet.
	GetSettings(ctx context.Context) (*Settings, error)

	UpdateSettings(ctx context.Context, s *Settings) error
}

type NotificationLogStore interface {
	// WasNotified reports whether a notification of kind was already
	// recorded for the user on the given day.
	WasNotified(ctx context.Context, userID UserID, kind string, day time.Time) (bool, error)

	// MarkNotified records the notification. Recording the same triple
	// twice is a no-op.
	MarkNotified(ctx context.Context, userID UserID, kind string, day time.Time) error
}

// Store is the full persistence surface consumed by the engine services.
type Store interface {
	SessionStore
	DayOffStore
	UserStore
	SettingsStore
	NotificationLogStore

	// WithTx executes fn against a transaction-scoped Store. If fn
	// returns an error the transaction rolls back. Implementations may
	// run fn directly when already inside a transaction.
	WithTx(ctx context.Context, fn func(Store) error) error
}
