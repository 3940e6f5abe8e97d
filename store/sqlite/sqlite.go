/*
Package sqlite provides the SQLite-backed implementation of engine.Store.

PURPOSE:
  Persists sessions, day-off requests, users, projects, the settings
  singleton, and the notification dedup log. The same patterns apply to
  PostgreSQL with minor SQL dialect differences.

INVARIANT ENFORCEMENT:
  A partial unique index guarantees at most one open session per user
  and kind at the database level:

    CREATE UNIQUE INDEX idx_sessions_single_open
      ON sessions(user_id, kind)
      WHERE end_time IS NULL AND existence = 'exist';

  Violations surface as *engine.OpenSessionError, so a lost race between
  two processes still cannot produce two open work sessions.

QUERY BUILDING:
  The multi-predicate listing queries (session filter, day-off filter)
  are composed with squirrel; fixed-shape statements are plain SQL.

TIME STORAGE:
  Instants are stored as UTC text in a fixed-width layout so string
  comparison matches time ordering. Calendar dates (day-off ranges,
  notification days) are stored as bare YYYY-MM-DD.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/worktime.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  tracker := engine.NewTracker(store, notifier, nil, logger)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/worktime-engine/engine"
)

// timeLayout is fixed-width so lexicographic order equals time order.
const timeLayout = "2006-01-02 15:04:05.000"

// dbtx is the subset of *sql.DB / *sql.Tx the store needs.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store implements engine.Store on SQLite.
type Store struct {
	db *sql.DB
	q  dbtx
}

var _ engine.Store = (*Store)(nil)

// New opens (and migrates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps in-memory databases coherent and
	// sidesteps SQLITE_BUSY between concurrent writers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db, q: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		surname TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		project_id TEXT,
		existence TEXT NOT NULL DEFAULT 'exist'
	);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		existence TEXT NOT NULL DEFAULT 'exist'
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		status TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT,
		created_at TEXT NOT NULL,
		existence TEXT NOT NULL DEFAULT 'exist'
	);

	-- CRITICAL: at most one open session per user and kind. This is the
	-- database half of the concurrent-start protection; the tracker's
	-- per-user mutex is the in-process half.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_single_open
		ON sessions(user_id, kind)
		WHERE end_time IS NULL AND existence = 'exist';

	CREATE INDEX IF NOT EXISTS idx_sessions_user_start
		ON sessions(user_id, start_time DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_kind_open
		ON sessions(kind) WHERE end_time IS NULL;
	CREATE INDEX IF NOT EXISTS idx_sessions_start
		ON sessions(start_time);

	CREATE TABLE IF NOT EXISTS day_off_requests (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		date_start TEXT NOT NULL,
		date_end TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		existence TEXT NOT NULL DEFAULT 'exist'
	);

	CREATE INDEX IF NOT EXISTS idx_dayoffs_user_range
		ON day_off_requests(user_id, date_start, date_end);
	CREATE INDEX IF NOT EXISTS idx_dayoffs_status_end
		ON day_off_requests(status, date_end);

	-- Singleton row, lazily seeded on first read.
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		max_break_minutes INTEGER NOT NULL,
		max_work_hours INTEGER NOT NULL,
		latest_start_hour INTEGER NOT NULL,
		sync_hour INTEGER NOT NULL,
		sync_frequency TEXT NOT NULL,
		sync_days_json TEXT NOT NULL DEFAULT '[]'
	);

	-- Per user/kind/day dedup guard for sweeper notifications.
	CREATE TABLE IF NOT EXISTS notification_log (
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		day TEXT NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (user_id, kind, day)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a transaction-scoped Store. Calling WithTx on a
// store already inside a transaction runs fn directly.
func (s *Store) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	if _, inTx := s.q.(*sql.Tx); inTx {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	scoped := &Store{db: s.db, q: tx}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// =============================================================================
// SESSIONS
// =============================================================================

const sessionColumns = "id, user_id, kind, status, start_time, end_time, created_at, existence"

func (s *Store) InsertSession(ctx context.Context, sess *engine.Session) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.UserID, sess.Kind, sess.Status,
		formatTime(sess.StartTime), formatTimePtr(sess.EndTime),
		formatTime(sess.CreatedAt), sess.Existence,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.OpenSessionError{UserID: sess.UserID, Kind: sess.Kind}
		}
		return fmt.Errorf("failed to insert session: %w", err)
	}
	return nil
}

func (s *Store) GetSession(ctx context.Context, id engine.SessionID) (*engine.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	return scanSessionRow(row)
}

func (s *Store) UpdateSession(ctx context.Context, sess *engine.Session) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE sessions SET user_id = ?, kind = ?, status = ?, start_time = ?,
			end_time = ?, created_at = ?, existence = ? WHERE id = ?`,
		sess.UserID, sess.Kind, sess.Status,
		formatTime(sess.StartTime), formatTimePtr(sess.EndTime),
		formatTime(sess.CreatedAt), sess.Existence, sess.ID,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &engine.OpenSessionError{UserID: sess.UserID, Kind: sess.Kind}
		}
		return fmt.Errorf("failed to update session: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, sess.ID)
	}
	return nil
}

func (s *Store) FindOpenSession(ctx context.Context, userID engine.UserID, kind engine.SessionKind) (*engine.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND kind = ? AND end_time IS NULL AND existence = 'exist'`,
		userID, kind)
	return scanSessionRow(row)
}

func (s *Store) FindCoveringSession(ctx context.Context, userID engine.UserID, kind engine.SessionKind, at time.Time) (*engine.Session, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE user_id = ? AND kind = ? AND existence = 'exist'
		   AND start_time <= ? AND (end_time IS NULL OR end_time > ?)
		 ORDER BY start_time DESC LIMIT 1`,
		userID, kind, formatTime(at), formatTime(at))
	return scanSessionRow(row)
}

func (s *Store) ListOpenSessions(ctx context.Context, kind engine.SessionKind) ([]*engine.Session, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions
		 WHERE kind = ? AND end_time IS NULL AND existence = 'exist'
		 ORDER BY start_time DESC`, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list open sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func (s *Store) QuerySessions(ctx context.Context, f engine.SessionFilter) ([]*engine.Session, error) {
	cols := strings.Split(sessionColumns, ", ")
	for i, c := range cols {
		cols[i] = "s." + c
	}
	q := sq.Select(cols...).From("sessions s")

	needsUser := f.ProjectID != nil || f.NameContains != "" || f.SurnameContains != ""
	if needsUser {
		q = q.Join("users u ON u.id = s.user_id")
	}

	existence := engine.Exist
	if f.Deleted {
		existence = engine.Deleted
	}
	q = q.Where(sq.Eq{"s.existence": existence})

	if len(f.UserIDs) > 0 {
		ids := make([]string, len(f.UserIDs))
		for i, id := range f.UserIDs {
			ids[i] = string(id)
		}
		q = q.Where(sq.Eq{"s.user_id": ids})
	}
	if f.Kind != nil {
		q = q.Where(sq.Eq{"s.kind": *f.Kind})
	}
	if f.Open != nil {
		if *f.Open {
			q = q.Where("s.end_time IS NULL")
		} else {
			q = q.Where("s.end_time IS NOT NULL")
		}
	}
	if f.StartDay != nil {
		day := engine.DayStart(*f.StartDay)
		q = q.Where(sq.GtOrEq{"s.start_time": formatTime(day)})
		q = q.Where(sq.Lt{"s.start_time": formatTime(day.AddDate(0, 0, 1))})
	}
	if f.StartFrom != nil {
		q = q.Where(sq.GtOrEq{"s.start_time": formatTime(*f.StartFrom)})
	}
	if f.StartTo != nil {
		q = q.Where(sq.LtOrEq{"s.start_time": formatTime(*f.StartTo)})
	}
	if f.ProjectID != nil {
		q = q.Where(sq.Eq{"u.project_id": *f.ProjectID})
	}
	if f.NameContains != "" {
		q = q.Where(sq.Like{"u.name": "%" + f.NameContains + "%"})
	}
	if f.SurnameContains != "" {
		q = q.Where(sq.Like{"u.surname": "%" + f.SurnameContains + "%"})
	}

	q = q.OrderBy("s.start_time DESC", "s.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		if f.Limit == 0 {
			// SQLite requires LIMIT before OFFSET.
			q = q.Limit(^uint64(0) >> 1)
		}
		q = q.Offset(uint64(f.Offset))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build session query: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]*engine.Session, error) {
	var result []*engine.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, sess)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*engine.Session, error) {
	var sess engine.Session
	var startTime, createdAt string
	var endTime sql.NullString
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Kind, &sess.Status,
		&startTime, &endTime, &createdAt, &sess.Existence)
	if err != nil {
		return nil, err
	}
	sess.StartTime = parseTime(startTime)
	sess.CreatedAt = parseTime(createdAt)
	if endTime.Valid {
		t := parseTime(endTime.String)
		sess.EndTime = &t
	}
	return &sess, nil
}

func scanSessionRow(row *sql.Row) (*engine.Session, error) {
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}
	return sess, nil
}

// =============================================================================
// DAY-OFF REQUESTS
// =============================================================================

const dayOffColumns = "id, user_id, date_start, date_end, status, reason, existence"

func (s *Store) InsertDayOff(ctx context.Context, r *engine.DayOffRequest) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO day_off_requests (`+dayOffColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, formatDay(r.DateStart), formatDay(r.DateEnd),
		r.Status, r.Reason, r.Existence)
	if err != nil {
		return fmt.Errorf("failed to insert day-off request: %w", err)
	}
	return nil
}

func (s *Store) GetDayOff(ctx context.Context, id engine.DayOffID) (*engine.DayOffRequest, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+dayOffColumns+` FROM day_off_requests WHERE id = ?`, id)
	r, err := scanDayOff(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan day-off request: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateDayOff(ctx context.Context, r *engine.DayOffRequest) error {
	res, err := s.q.ExecContext(ctx,
		`UPDATE day_off_requests SET user_id = ?, date_start = ?, date_end = ?,
			status = ?, reason = ?, existence = ? WHERE id = ?`,
		r.UserID, formatDay(r.DateStart), formatDay(r.DateEnd),
		r.Status, r.Reason, r.Existence, r.ID)
	if err != nil {
		return fmt.Errorf("failed to update day-off request: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("%w: day-off request %s", engine.ErrNotFound, r.ID)
	}
	return nil
}

func (s *Store) HasDayOffOverlap(ctx context.Context, userID engine.UserID, dateStart, dateEnd time.Time, excludeID engine.DayOffID) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM day_off_requests
		 WHERE user_id = ? AND id != ? AND existence = 'exist' AND status != ?
		   AND date_start <= ? AND date_end >= ?`,
		userID, excludeID, engine.DayOffCancelled,
		formatDay(dateEnd), formatDay(dateStart)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check day-off overlap: %w", err)
	}
	return count > 0, nil
}

func (s *Store) QueryDayOffs(ctx context.Context, f engine.DayOffFilter) ([]*engine.DayOffRequest, error) {
	cols := strings.Split(dayOffColumns, ", ")
	for i, c := range cols {
		cols[i] = "d." + c
	}
	q := sq.Select(cols...).From("day_off_requests d")

	if f.NameContains != "" || f.SurnameContains != "" {
		q = q.Join("users u ON u.id = d.user_id")
		if f.NameContains != "" {
			q = q.Where(sq.Like{"u.name": "%" + f.NameContains + "%"})
		}
		if f.SurnameContains != "" {
			q = q.Where(sq.Like{"u.surname": "%" + f.SurnameContains + "%"})
		}
	}

	existence := engine.Exist
	if f.Deleted {
		existence = engine.Deleted
	}
	q = q.Where(sq.Eq{"d.existence": existence})

	if f.UserID != nil {
		q = q.Where(sq.Eq{"d.user_id": *f.UserID})
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where(sq.Eq{"d.status": statuses})
	}
	if f.StartFrom != nil {
		q = q.Where(sq.GtOrEq{"d.date_start": formatDay(*f.StartFrom)})
	}
	if f.EndTo != nil {
		q = q.Where(sq.LtOrEq{"d.date_end": formatDay(*f.EndTo)})
	}

	q = q.OrderBy("d.date_start DESC", "d.id")
	if f.Limit > 0 {
		q = q.Limit(uint64(f.Limit))
	}
	if f.Offset > 0 {
		if f.Limit == 0 {
			q = q.Limit(^uint64(0) >> 1)
		}
		q = q.Offset(uint64(f.Offset))
	}

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build day-off query: %w", err)
	}
	rows, err := s.q.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day-off requests: %w", err)
	}
	defer rows.Close()

	var result []*engine.DayOffRequest
	for rows.Next() {
		r, err := scanDayOff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) ListDayOffsEndedBefore(ctx context.Context, day time.Time, statuses []engine.DayOffStatus) ([]*engine.DayOffRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(statuses)), ",")
	args := []any{formatDay(day)}
	for _, st := range statuses {
		args = append(args, st)
	}
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+dayOffColumns+` FROM day_off_requests
		 WHERE existence = 'exist' AND date_end < ? AND status IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended day-off requests: %w", err)
	}
	defer rows.Close()

	var result []*engine.DayOffRequest
	for rows.Next() {
		r, err := scanDayOff(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func (s *Store) UsersOnApprovedDayOff(ctx context.Context, day time.Time) ([]engine.UserID, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM day_off_requests
		 WHERE existence = 'exist' AND status = ?
		   AND date_start <= ? AND date_end >= ?`,
		engine.DayOffApproved, formatDay(day), formatDay(day))
	if err != nil {
		return nil, fmt.Errorf("failed to list users on day off: %w", err)
	}
	defer rows.Close()

	var result []engine.UserID
	for rows.Next() {
		var id engine.UserID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	return result, rows.Err()
}

func scanDayOff(row rowScanner) (*engine.DayOffRequest, error) {
	var r engine.DayOffRequest
	var start, end string
	err := row.Scan(&r.ID, &r.UserID, &start, &end, &r.Status, &r.Reason, &r.Existence)
	if err != nil {
		return nil, err
	}
	r.DateStart = parseDay(start)
	r.DateEnd = parseDay(end)
	return &r, nil
}

// =============================================================================
// USERS & PROJECTS
// =============================================================================

func (s *Store) GetUser(ctx context.Context, id engine.UserID) (*engine.User, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT id, name, surname, email, project_id, existence
		 FROM users WHERE id = ? AND existence = 'exist'`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]*engine.User, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, surname, email, project_id, existence
		 FROM users WHERE existence = 'exist' ORDER BY surname, name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var result []*engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) UpsertUser(ctx context.Context, u *engine.User) error {
	var projectID any
	if u.ProjectID != nil {
		projectID = string(*u.ProjectID)
	}
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO users (id, name, surname, email, project_id, existence)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, surname = excluded.surname,
			email = excluded.email, project_id = excluded.project_id,
			existence = excluded.existence`,
		u.ID, u.Name, u.Surname, u.Email, projectID, u.Existence)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*engine.User, error) {
	var u engine.User
	var projectID sql.NullString
	err := row.Scan(&u.ID, &u.Name, &u.Surname, &u.Email, &projectID, &u.Existence)
	if err != nil {
		return nil, err
	}
	if projectID.Valid {
		pid := engine.ProjectID(projectID.String)
		u.ProjectID = &pid
	}
	return &u, nil
}

func (s *Store) SaveProject(ctx context.Context, p *engine.Project) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, existence)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name, description = excluded.description,
			existence = excluded.existence`,
		p.ID, p.Name, p.Description, p.Existence)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id engine.ProjectID) (*engine.Project, error) {
	var p engine.Project
	err := s.q.QueryRowContext(ctx,
		`SELECT id, name, description, existence FROM projects
		 WHERE id = ? AND existence = 'exist'`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Existence)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*engine.Project, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT id, name, description, existence FROM projects
		 WHERE existence = 'exist' ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var result []*engine.Project
	for rows.Next() {
		var p engine.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Existence); err != nil {
			return nil, err
		}
		result = append(result, &p)
	}
	return result, rows.Err()
}

// =============================================================================
// SETTINGS
// =============================================================================

func (s *Store) GetSettings(ctx context.Context) (*engine.Settings, error) {
	settings, err := s.readSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings != nil {
		return settings, nil
	}

	// Seed on first read. The fixed primary key makes a concurrent seed
	// race harmless: the loser's insert is ignored.
	defaults := engine.DefaultSettings()
	if err := s.writeSettings(ctx, defaults, true); err != nil {
		return nil, err
	}
	return defaults, nil
}

func (s *Store) UpdateSettings(ctx context.Context, settings *engine.Settings) error {
	return s.writeSettings(ctx, settings, false)
}

func (s *Store) readSettings(ctx context.Context) (*engine.Settings, error) {
	var settings engine.Settings
	var frequency string
	var daysJSON string
	err := s.q.QueryRowContext(ctx,
		`SELECT max_break_minutes, max_work_hours, latest_start_hour,
			sync_hour, sync_frequency, sync_days_json
		 FROM settings WHERE id = 1`).
		Scan(&settings.MaxBreakMinutesPerDay, &settings.MaxWorkHoursPerDay,
			&settings.LatestStartHour, &settings.SyncHour, &frequency, &daysJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	settings.SyncFrequency = engine.SyncFrequency(frequency)
	if err := json.Unmarshal([]byte(daysJSON), &settings.SyncDays); err != nil {
		return nil, fmt.Errorf("failed to decode sync days: %w", err)
	}
	return &settings, nil
}

func (s *Store) writeSettings(ctx context.Context, settings *engine.Settings, seedOnly bool) error {
	days := settings.SyncDays
	if days == nil {
		days = []time.Weekday{}
	}
	daysJSON, err := json.Marshal(days)
	if err != nil {
		return fmt.Errorf("failed to encode sync days: %w", err)
	}

	conflict := `DO UPDATE SET
		max_break_minutes = excluded.max_break_minutes,
		max_work_hours = excluded.max_work_hours,
		latest_start_hour = excluded.latest_start_hour,
		sync_hour = excluded.sync_hour,
		sync_frequency = excluded.sync_frequency,
		sync_days_json = excluded.sync_days_json`
	if seedOnly {
		conflict = `DO NOTHING`
	}

	_, err = s.q.ExecContext(ctx,
		`INSERT INTO settings (id, max_break_minutes, max_work_hours,
			latest_start_hour, sync_hour, sync_frequency, sync_days_json)
		 VALUES (1, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) `+conflict,
		settings.MaxBreakMinutesPerDay, settings.MaxWorkHoursPerDay,
		settings.LatestStartHour, settings.SyncHour,
		settings.SyncFrequency, string(daysJSON))
	if err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

// =============================================================================
// NOTIFICATION LOG
// =============================================================================

func (s *Store) WasNotified(ctx context.Context, userID engine.UserID, kind string, day time.Time) (bool, error) {
	var count int
	err := s.q.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM notification_log WHERE user_id = ? AND kind = ? AND day = ?`,
		userID, kind, formatDay(day)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check notification log: %w", err)
	}
	return count > 0, nil
}

func (s *Store) MarkNotified(ctx context.Context, userID engine.UserID, kind string, day time.Time) error {
	_, err := s.q.ExecContext(ctx,
		`INSERT INTO notification_log (user_id, kind, day, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id, kind, day) DO NOTHING`,
		userID, kind, formatDay(day), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("failed to mark notification: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.ParseInLocation(timeLayout, s, time.UTC)
	return t.Local()
}

func formatDay(t time.Time) string { return t.Format("2006-01-02") }

func parseDay(s string) time.Time {
	t, _ := time.ParseInLocation("2006-01-02", s, time.Local)
	return t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
