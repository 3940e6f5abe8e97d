// Package store provides an in-memory engine.Store implementation used
// by tests and local development. It enforces the same invariants as the
// SQLite store: one open session per user per kind, soft-delete
// filtering, and rollback-on-error transactions.
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/warp/worktime-engine/engine"
)

type noteKey struct {
	User engine.UserID
	Kind string
	Day  string
}

// Memory implements engine.Store with plain maps.
type Memory struct {
	mu   sync.RWMutex
	txMu sync.Mutex

	sessions map[engine.SessionID]engine.Session
	dayoffs  map[engine.DayOffID]engine.DayOffRequest
	users    map[engine.UserID]engine.User
	projects map[engine.ProjectID]engine.Project
	settings *engine.Settings
	notes    map[noteKey]bool
}

func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[engine.SessionID]engine.Session),
		dayoffs:  make(map[engine.DayOffID]engine.DayOffRequest),
		users:    make(map[engine.UserID]engine.User),
		projects: make(map[engine.ProjectID]engine.Project),
		notes:    make(map[noteKey]bool),
	}
}

var _ engine.Store = (*Memory)(nil)

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx serializes against other transactions and rolls the whole state
// back if fn fails. Nested calls run fn directly.
func (m *Memory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	snapshot := m.snapshot()
	if err := fn(txView{m}); err != nil {
		m.restore(snapshot)
		return err
	}
	return nil
}

// txView is the transaction-scoped store handed to WithTx callbacks. Its
// WithTx runs fn directly so helpers can be tx-agnostic.
type txView struct{ *Memory }

func (v txView) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	return fn(v)
}

type memorySnapshot struct {
	sessions map[engine.SessionID]engine.Session
	dayoffs  map[engine.DayOffID]engine.DayOffRequest
	users    map[engine.UserID]engine.User
	projects map[engine.ProjectID]engine.Project
	settings *engine.Settings
	notes    map[noteKey]bool
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := memorySnapshot{
		sessions: make(map[engine.SessionID]engine.Session, len(m.sessions)),
		dayoffs:  make(map[engine.DayOffID]engine.DayOffRequest, len(m.dayoffs)),
		users:    make(map[engine.UserID]engine.User, len(m.users)),
		projects: make(map[engine.ProjectID]engine.Project, len(m.projects)),
		notes:    make(map[noteKey]bool, len(m.notes)),
	}
	for k, v := range m.sessions {
		s.sessions[k] = *v.Clone()
	}
	for k, v := range m.dayoffs {
		s.dayoffs[k] = v
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.projects {
		s.projects[k] = v
	}
	for k, v := range m.notes {
		s.notes[k] = v
	}
	if m.settings != nil {
		s.settings = m.settings.Clone()
	}
	return s
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = s.sessions
	m.dayoffs = s.dayoffs
	m.users = s.users
	m.projects = s.projects
	m.notes = s.notes
	m.settings = s.settings
}

// =============================================================================
// SESSIONS
// =============================================================================

func (m *Memory) InsertSession(_ context.Context, s *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Existence == engine.Exist && s.EndTime == nil {
		for _, existing := range m.sessions {
			if existing.UserID == s.UserID && existing.Kind == s.Kind &&
				existing.Existence == engine.Exist && existing.EndTime == nil {
				return &engine.OpenSessionError{UserID: s.UserID, Kind: s.Kind}
			}
		}
	}
	m.sessions[s.ID] = *s.Clone()
	return nil
}

func (m *Memory) GetSession(_ context.Context, id engine.SessionID) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.sessions[id]; ok {
		return s.Clone(), nil
	}
	return nil, nil
}

func (m *Memory) UpdateSession(_ context.Context, s *engine.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return fmt.Errorf("%w: session %s", engine.ErrNotFound, s.ID)
	}
	m.sessions[s.ID] = *s.Clone()
	return nil
}

func (m *Memory) FindOpenSession(_ context.Context, userID engine.UserID, kind engine.SessionKind) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range m.sessions {
		if s.UserID == userID && s.Kind == kind && s.Existence == engine.Exist && s.EndTime == nil {
			return s.Clone(), nil
		}
	}
	return nil, nil
}

func (m *Memory) FindCoveringSession(_ context.Context, userID engine.UserID, kind engine.SessionKind, at time.Time) (*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *engine.Session
	for id := range m.sessions {
		s := m.sessions[id]
		if s.UserID != userID || s.Kind != kind || s.Existence != engine.Exist || !s.Covers(at) {
			continue
		}
		if best == nil || s.StartTime.After(best.StartTime) {
			best = s.Clone()
		}
	}
	return best, nil
}

func (m *Memory) ListOpenSessions(_ context.Context, kind engine.SessionKind) ([]*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*engine.Session
	for id := range m.sessions {
		s := m.sessions[id]
		if s.Kind == kind && s.Existence == engine.Exist && s.EndTime == nil {
			result = append(result, s.Clone())
		}
	}
	sortSessions(result)
	return result, nil
}

func (m *Memory) QuerySessions(_ context.Context, f engine.SessionFilter) ([]*engine.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.Session
	for id := range m.sessions {
		s := m.sessions[id]
		if m.matchSession(&s, f) {
			result = append(result, s.Clone())
		}
	}
	sortSessions(result)
	return paginate(result, f.Offset, f.Limit), nil
}

func (m *Memory) matchSession(s *engine.Session, f engine.SessionFilter) bool {
	wantExistence := engine.Exist
	if f.Deleted {
		wantExistence = engine.Deleted
	}
	if s.Existence != wantExistence {
		return false
	}
	if len(f.UserIDs) > 0 && !containsUser(f.UserIDs, s.UserID) {
		return false
	}
	if f.Kind != nil && s.Kind != *f.Kind {
		return false
	}
	if f.Open != nil && *f.Open != (s.EndTime == nil) {
		return false
	}
	if f.StartDay != nil && !engine.SameDay(s.StartTime, *f.StartDay) {
		return false
	}
	if f.StartFrom != nil && s.StartTime.Before(*f.StartFrom) {
		return false
	}
	if f.StartTo != nil && s.StartTime.After(*f.StartTo) {
		return false
	}
	if f.ProjectID != nil || f.NameContains != "" || f.SurnameContains != "" {
		u, ok := m.users[s.UserID]
		if !ok {
			return false
		}
		if f.ProjectID != nil && (u.ProjectID == nil || *u.ProjectID != *f.ProjectID) {
			return false
		}
		if f.NameContains != "" && !strings.Contains(u.Name, f.NameContains) {
			return false
		}
		if f.SurnameContains != "" && !strings.Contains(u.Surname, f.SurnameContains) {
			return false
		}
	}
	return true
}

// =============================================================================
// DAY-OFF REQUESTS
// =============================================================================

func (m *Memory) InsertDayOff(_ context.Context, r *engine.DayOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dayoffs[r.ID] = *r.Clone()
	return nil
}

func (m *Memory) GetDayOff(_ context.Context, id engine.DayOffID) (*engine.DayOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.dayoffs[id]; ok {
		return r.Clone(), nil
	}
	return nil, nil
}

func (m *Memory) UpdateDayOff(_ context.Context, r *engine.DayOffRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.dayoffs[r.ID]; !ok {
		return fmt.Errorf("%w: day-off request %s", engine.ErrNotFound, r.ID)
	}
	m.dayoffs[r.ID] = *r.Clone()
	return nil
}

func (m *Memory) HasDayOffOverlap(_ context.Context, userID engine.UserID, dateStart, dateEnd time.Time, excludeID engine.DayOffID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for id := range m.dayoffs {
		r := m.dayoffs[id]
		if r.ID == excludeID || r.UserID != userID ||
			r.Existence != engine.Exist || r.Status == engine.DayOffCancelled {
			continue
		}
		if !r.DateStart.After(dateEnd) && !r.DateEnd.Before(dateStart) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) QueryDayOffs(_ context.Context, f engine.DayOffFilter) ([]*engine.DayOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.DayOffRequest
	for id := range m.dayoffs {
		r := m.dayoffs[id]
		if m.matchDayOff(&r, f) {
			result = append(result, r.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DateStart.After(result[j].DateStart) })
	return paginate(result, f.Offset, f.Limit), nil
}

func (m *Memory) matchDayOff(r *engine.DayOffRequest, f engine.DayOffFilter) bool {
	wantExistence := engine.Exist
	if f.Deleted {
		wantExistence = engine.Deleted
	}
	if r.Existence != wantExistence {
		return false
	}
	if f.UserID != nil && r.UserID != *f.UserID {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, st := range f.Statuses {
			if r.Status == st {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.StartFrom != nil && r.DateStart.Before(*f.StartFrom) {
		return false
	}
	if f.EndTo != nil && r.DateEnd.After(*f.EndTo) {
		return false
	}
	if f.NameContains != "" || f.SurnameContains != "" {
		u, ok := m.users[r.UserID]
		if !ok {
			return false
		}
		if f.NameContains != "" && !strings.Contains(u.Name, f.NameContains) {
			return false
		}
		if f.SurnameContains != "" && !strings.Contains(u.Surname, f.SurnameContains) {
			return false
		}
	}
	return true
}

func (m *Memory) ListDayOffsEndedBefore(_ context.Context, day time.Time, statuses []engine.DayOffStatus) ([]*engine.DayOffRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*engine.DayOffRequest
	for id := range m.dayoffs {
		r := m.dayoffs[id]
		if r.Existence != engine.Exist || !r.DateEnd.Before(day) {
			continue
		}
		for _, st := range statuses {
			if r.Status == st {
				result = append(result, r.Clone())
				break
			}
		}
	}
	return result, nil
}

func (m *Memory) UsersOnApprovedDayOff(_ context.Context, day time.Time) ([]engine.UserID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[engine.UserID]bool)
	var result []engine.UserID
	for id := range m.dayoffs {
		r := m.dayoffs[id]
		if r.Existence != engine.Exist || r.Status != engine.DayOffApproved {
			continue
		}
		if !r.DateStart.After(day) && !r.DateEnd.Before(day) && !seen[r.UserID] {
			seen[r.UserID] = true
			result = append(result, r.UserID)
		}
	}
	return result, nil
}

// =============================================================================
// USERS & PROJECTS
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id engine.UserID) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.users[id]; ok && u.Existence == engine.Exist {
		out := u
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*engine.User
	for id := range m.users {
		u := m.users[id]
		if u.Existence == engine.Exist {
			out := u
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) UpsertUser(_ context.Context, u *engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = *u
	return nil
}

func (m *Memory) SaveProject(_ context.Context, p *engine.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[p.ID] = *p
	return nil
}

func (m *Memory) GetProject(_ context.Context, id engine.ProjectID) (*engine.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.projects[id]; ok && p.Existence == engine.Exist {
		out := p
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) ListProjects(_ context.Context) ([]*engine.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*engine.Project
	for id := range m.projects {
		p := m.projects[id]
		if p.Existence == engine.Exist {
			out := p
			result = append(result, &out)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// SETTINGS & NOTIFICATION LOG
// =============================================================================

func (m *Memory) GetSettings(_ context.Context) (*engine.Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.settings == nil {
		m.settings = engine.DefaultSettings()
	}
	return m.settings.Clone(), nil
}

func (m *Memory) UpdateSettings(_ context.Context, s *engine.Settings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s.Clone()
	return nil
}

func (m *Memory) WasNotified(_ context.Context, userID engine.UserID, kind string, day time.Time) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.notes[noteKey{User: userID, Kind: kind, Day: day.Format("2006-01-02")}], nil
}

func (m *Memory) MarkNotified(_ context.Context, userID engine.UserID, kind string, day time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notes[noteKey{User: userID, Kind: kind, Day: day.Format("2006-01-02")}] = true
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func sortSessions(sessions []*engine.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartTime.Equal(sessions[j].StartTime) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartTime.After(sessions[j].StartTime)
	})
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func containsUser(ids []engine.UserID, id engine.UserID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
