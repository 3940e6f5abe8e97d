/*
handlers.go - HTTP API handlers for the work-time tracking engine

PURPOSE:
  Exposes the tracking engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Sessions:
    POST   /api/sessions/start          Start a work or break session
    POST   /api/sessions/{id}/end       End a session
    POST   /api/sessions/past           Record a backdated entry
    GET    /api/sessions/break-budget   Remaining break minutes today
    POST   /api/sessions/{id}/confirm   Accept a backdated entry (admin)
    POST   /api/sessions/{id}/reject    Refuse a backdated entry (admin)
    GET    /api/sessions                Filtered listing
    PUT    /api/sessions/{id}           Edit a session (admin)
    DELETE /api/sessions/{id}           Soft-delete (admin)
    POST   /api/sessions/{id}/restore   Undo soft-delete (admin)

  Day-off requests:
    POST   /api/dayoffs                 File a request
    GET    /api/dayoffs                 Filtered listing
    GET    /api/dayoffs/{id}            Get one request
    PUT    /api/dayoffs/{id}            Edit (owner/admin, resets to pending)
    POST   /api/dayoffs/{id}/status     Approve/reject/cancel
    DELETE /api/dayoffs/{id}            Soft-delete (admin)
    POST   /api/dayoffs/{id}/restore    Undo soft-delete (admin)

  Summaries:
    GET    /api/summary                 Range summary (per user or all)
    GET    /api/summary/daily           Per-day breakdown
    GET    /api/summary/export          CSV download

  Directory:
    GET    /api/users                   List users
    GET    /api/users/{id}              Get one user
    GET    /api/users/{id}/dayoffs      User's day-off requests
    GET    /api/projects                List projects

  Settings / presence / admin:
    GET    /api/settings                Read policy settings
    PUT    /api/settings                Update (admin)
    GET    /api/presence/absent         Users without work today
    GET    /api/presence/long-breaks    Users in an over-budget break
    POST   /api/admin/sync              Run directory sync now
    POST   /api/admin/rollover          Run day-off rollover now
    POST   /api/admin/sweep/breaks      Run break auto-close now
    POST   /api/admin/sweep/work        Run work overrun flagging now
    GET    /api/scenarios               List demo scenarios (admin)
    POST   /api/scenarios/load          Seed a demo scenario (admin)

ERROR HANDLING:
  Domain errors map to HTTP status by classification:
  - 400: invalid input
  - 403: caller lacks the required role or ownership
  - 404: record not found (or soft-deleted)
  - 409: state conflicts (open session exists, budget spent, overlap)
  - 500: everything else

AUTHENTICATION:
  The router resolves the caller from trusted gateway headers into an
  engine.Identity (see server.go). Handlers only check roles/ownership;
  token parsing is the gateway's job.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - csv.go: Summary export
*/
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/worktime-engine/directory"
	"github.com/warp/worktime-engine/engine"
)

const dateLayout = "2006-01-02"

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker *engine.Tracker
	Summary *engine.SummaryService
	DayOffs *engine.DayOffService
	Sweeper *engine.Sweeper
	Syncer  *directory.Syncer
	Store   engine.Store
	Logger  *slog.Logger
}

func NewHandler(tracker *engine.Tracker, summary *engine.SummaryService, dayOffs *engine.DayOffService, sweeper *engine.Sweeper, syncer *directory.Syncer, store engine.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Tracker: tracker,
		Summary: summary,
		DayOffs: dayOffs,
		Sweeper: sweeper,
		Syncer:  syncer,
		Store:   store,
		Logger:  logger,
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

func (h *Handler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	caller := identityFrom(r)
	userID := engine.UserID(req.UserID)
	if userID == "" {
		userID = caller.UserID
	}
	if !caller.CanActFor(userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "cannot start sessions for another user"})
		return
	}

	session, err := h.Tracker.StartSession(r.Context(), userID, engine.SessionKind(req.Kind))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := engine.SessionID(chi.URLParam(r, "id"))
	session, err := h.ownedSession(w, r, id)
	if session == nil {
		if err != nil {
			h.writeError(w, err)
		}
		return
	}

	ended, err := h.Tracker.EndSession(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTO(ended))
}

func (h *Handler) CreatePastSession(w http.ResponseWriter, r *http.Request) {
	var req PastSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	caller := identityFrom(r)
	userID := engine.UserID(req.UserID)
	if userID == "" {
		userID = caller.UserID
	}
	if !caller.CanActFor(userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "cannot record sessions for another user"})
		return
	}

	session, err := h.Tracker.CreatePastSession(r.Context(), userID, engine.SessionKind(req.Kind), req.StartTime)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionDTO(session))
}

func (h *Handler) ConfirmPastSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	session, err := h.Tracker.ConfirmPastSession(r.Context(), engine.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *Handler) RejectPastSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	session, err := h.Tracker.RejectPastSession(r.Context(), engine.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r)
	q := r.URL.Query()

	filter := engine.SessionFilter{
		NameContains:    q.Get("name"),
		SurnameContains: q.Get("surname"),
	}
	if v := q.Get("userId"); v != "" {
		filter.UserIDs = []engine.UserID{engine.UserID(v)}
	}
	if v := q.Get("kind"); v != "" {
		kind := engine.SessionKind(v)
		if !kind.Valid() {
			writeBadRequest(w, "unknown session kind")
			return
		}
		filter.Kind = &kind
	}
	if v := q.Get("open"); v != "" {
		open := v == "true"
		filter.Open = &open
	}
	if q.Get("deleted") == "true" {
		if !caller.IsAdmin() {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin role required"})
			return
		}
		filter.Deleted = true
	}
	var err error
	if filter.StartDay, err = parseDateParam(q.Get("day")); err != nil {
		writeBadRequest(w, "invalid day")
		return
	}
	if filter.StartFrom, err = parseDateParam(q.Get("from")); err != nil {
		writeBadRequest(w, "invalid from date")
		return
	}
	if filter.StartTo, err = parseDateParam(q.Get("to")); err != nil {
		writeBadRequest(w, "invalid to date")
		return
	}
	if filter.StartTo != nil {
		to := engine.DayEnd(*filter.StartTo)
		filter.StartTo = &to
	}
	if v := q.Get("projectId"); v != "" {
		pid := engine.ProjectID(v)
		filter.ProjectID = &pid
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	// Non-admins only see their own records.
	if !caller.IsAdmin() {
		filter.UserIDs = []engine.UserID{caller.UserID}
	}

	sessions, err := h.Tracker.QuerySessions(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionDTOs(sessions))
}

func (h *Handler) BreakBudget(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r)
	userID := engine.UserID(r.URL.Query().Get("userId"))
	if userID == "" {
		userID = caller.UserID
	}
	if !caller.CanActFor(userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "cannot read another user's budget"})
		return
	}
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	used, err := h.Tracker.UsedBreakMinutesToday(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	remaining := settings.MaxBreakMinutesPerDay - used
	if remaining < 0 {
		remaining = 0
	}
	writeJSON(w, http.StatusOK, BreakBudgetDTO{
		UserID:           string(userID),
		UsedMinutes:      used,
		MaxMinutes:       settings.MaxBreakMinutesPerDay,
		RemainingMinutes: remaining,
	})
}

func (h *Handler) EditSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req EditSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	session, err := h.Tracker.EditSession(r.Context(), engine.SessionID(chi.URLParam(r, "id")),
		req.StartTime, req.EndTime, engine.SessionStatus(req.Status), engine.SessionKind(req.Kind))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.Tracker.DeleteSession(r.Context(), engine.SessionID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreSession(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	session, err := h.Tracker.RestoreSession(r.Context(), engine.SessionID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toSessionDTO(session))
}

// =============================================================================
// DAY-OFF REQUESTS
// =============================================================================

func (h *Handler) CreateDayOff(w http.ResponseWriter, r *http.Request) {
	var req CreateDayOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	caller := identityFrom(r)
	userID := engine.UserID(req.UserID)
	if userID == "" {
		userID = caller.UserID
	}
	if !caller.CanActFor(userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "cannot file requests for another user"})
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.DateStart, time.Local)
	if err != nil {
		writeBadRequest(w, "invalid dateStart")
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.DateEnd, time.Local)
	if err != nil {
		writeBadRequest(w, "invalid dateEnd")
		return
	}

	request, err := h.DayOffs.Request(r.Context(), userID, start, end, req.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDayOffDTO(request))
}

func (h *Handler) ChangeDayOffStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeDayOffStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	request, err := h.DayOffs.ChangeStatus(r.Context(), engine.DayOffID(chi.URLParam(r, "id")),
		engine.DayOffStatus(req.Status), identityFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toDayOffDTO(request))
}

func (h *Handler) EditDayOff(w http.ResponseWriter, r *http.Request) {
	var req EditDayOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	start, err := time.ParseInLocation(dateLayout, req.DateStart, time.Local)
	if err != nil {
		writeBadRequest(w, "invalid dateStart")
		return
	}
	end, err := time.ParseInLocation(dateLayout, req.DateEnd, time.Local)
	if err != nil {
		writeBadRequest(w, "invalid dateEnd")
		return
	}

	request, err := h.DayOffs.Edit(r.Context(), engine.DayOffID(chi.URLParam(r, "id")),
		start, end, req.Reason, identityFrom(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toDayOffDTO(request))
}

func (h *Handler) ListDayOffs(w http.ResponseWriter, r *http.Request) {
	caller := identityFrom(r)
	q := r.URL.Query()

	filter := engine.DayOffFilter{
		NameContains:    q.Get("name"),
		SurnameContains: q.Get("surname"),
	}
	if v := q.Get("userId"); v != "" {
		uid := engine.UserID(v)
		filter.UserID = &uid
	}
	for _, s := range q["status"] {
		filter.Statuses = append(filter.Statuses, engine.DayOffStatus(s))
	}
	if q.Get("deleted") == "true" {
		if !caller.IsAdmin() {
			writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin role required"})
			return
		}
		filter.Deleted = true
	}
	var err error
	if filter.StartFrom, err = parseDateParam(q.Get("from")); err != nil {
		writeBadRequest(w, "invalid from date")
		return
	}
	if filter.EndTo, err = parseDateParam(q.Get("to")); err != nil {
		writeBadRequest(w, "invalid to date")
		return
	}
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	if !caller.IsAdmin() {
		uid := caller.UserID
		filter.UserID = &uid
	}

	requests, err := h.DayOffs.Filter(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayOffDTOs(requests))
}

func (h *Handler) GetDayOff(w http.ResponseWriter, r *http.Request) {
	request, err := h.DayOffs.Get(r.Context(), engine.DayOffID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if !identityFrom(r).CanActFor(request.UserID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not your request"})
		return
	}
	writeJSON(w, http.StatusOK, toDayOffDTO(request))
}

func (h *Handler) ListUserDayOffs(w http.ResponseWriter, r *http.Request) {
	userID := engine.UserID(chi.URLParam(r, "id"))
	if !identityFrom(r).CanActFor(userID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not your requests"})
		return
	}
	requests, err := h.DayOffs.ListForUser(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayOffDTOs(requests))
}

func (h *Handler) DeleteDayOff(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	if err := h.DayOffs.Delete(r.Context(), engine.DayOffID(chi.URLParam(r, "id"))); err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) RestoreDayOff(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	request, err := h.DayOffs.Restore(r.Context(), engine.DayOffID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, toDayOffDTO(request))
}

// =============================================================================
// SUMMARIES
// =============================================================================

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	query, all, err := h.summaryQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	if all {
		from, to := summaryWindow(query)
		results, err := h.Summary.SummarizeAll(r.Context(), from, to)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSummaryDTOs(results))
		return
	}

	result, err := h.Summary.Summarize(r.Context(), query)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTO(result))
}

func (h *Handler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	query, _, err := h.summaryQuery(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	from, to := summaryWindow(query)

	var userIDs []engine.UserID
	if query.UserID != nil {
		userIDs = []engine.UserID{*query.UserID}
	}
	results, err := h.Summary.SummarizeDaily(r.Context(), from, to, userIDs, query.ProjectID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSummaryDTOs(results))
}

// summaryQuery parses the shared from/to/userId/projectId parameters and
// applies the ownership rule: non-admins may only summarize themselves.
func (h *Handler) summaryQuery(r *http.Request) (engine.SummaryQuery, bool, error) {
	caller := identityFrom(r)
	q := r.URL.Query()

	var query engine.SummaryQuery
	var err error
	if query.From, err = parseDateParam(q.Get("from")); err != nil {
		return query, false, errors.New("invalid from date")
	}
	if query.To, err = parseDateParam(q.Get("to")); err != nil {
		return query, false, errors.New("invalid to date")
	}
	if v := q.Get("projectId"); v != "" {
		pid := engine.ProjectID(v)
		query.ProjectID = &pid
	}
	if v := q.Get("userId"); v != "" {
		uid := engine.UserID(v)
		query.UserID = &uid
	}

	if !caller.IsAdmin() {
		uid := caller.UserID
		query.UserID = &uid
	}
	all := caller.IsAdmin() && q.Get("userId") == ""
	return query, all, nil
}

// summaryWindow defaults an unbounded query to the current day.
func summaryWindow(q engine.SummaryQuery) (time.Time, time.Time) {
	now := time.Now()
	from, to := now, now
	if q.From != nil {
		from = *q.From
	}
	if q.To != nil {
		to = *q.To
	}
	return from, to
}

// =============================================================================
// USERS, PROJECTS, SETTINGS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]UserDTO, 0, len(users))
	for _, u := range users {
		out = append(out, toUserDTO(u))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.Store.GetUser(r.Context(), engine.UserID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if user == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "user not found"})
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(user))
}

func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Store.ListProjects(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]ProjectDTO, 0, len(projects))
	for _, p := range projects {
		out = append(out, ProjectDTO{ID: string(p.ID), Name: p.Name, Description: p.Description})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

func (h *Handler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var dto SettingsDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	settings := dto.toSettings()
	if settings.MaxBreakMinutesPerDay <= 0 || settings.MaxWorkHoursPerDay <= 0 {
		writeBadRequest(w, "limits must be positive")
		return
	}
	if err := h.Store.UpdateSettings(r.Context(), settings); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsDTO(settings))
}

// =============================================================================
// PRESENCE & ADMIN TRIGGERS
// =============================================================================

func (h *Handler) AbsentUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	ids, err := h.Sweeper.UsersWithoutStartedWorkToday(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserIDsResponse(ids))
}

func (h *Handler) LongBreakUsers(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	ids, err := h.Sweeper.UsersWithLongActiveBreak(r.Context(), settings.MaxBreakMinutesPerDay)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserIDsResponse(ids))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	upserted, removed, err := h.Syncer.Sync(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncResponse{Upserted: upserted, Removed: removed})
}

func (h *Handler) TriggerRollover(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	updated, err := h.Sweeper.RolloverDayOffStatuses(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, CountResponse{Count: updated})
}

func (h *Handler) TriggerBreakSweep(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	closed, err := h.Sweeper.AutoCloseOverlongBreaks(r.Context(), settings.MaxBreakMinutesPerDay)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: closed})
}

func (h *Handler) TriggerWorkSweep(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	settings, err := h.Store.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	flagged, err := h.Sweeper.AutoFlagOverlongWork(r.Context(), settings.MaxWorkHoursPerDay)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: flagged})
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// ownedSession loads the session and enforces the ownership rule. On a
// failure it has already written the response (or returns the error for
// the caller to map); a non-nil session means proceed.
func (h *Handler) ownedSession(w http.ResponseWriter, r *http.Request, id engine.SessionID) (*engine.Session, error) {
	session, err := h.Store.GetSession(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if session == nil || session.Existence == engine.Deleted {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "session not found"})
		return nil, nil
	}
	if !identityFrom(r).CanActFor(session.UserID) {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "not your session"})
		return nil, nil
	}
	return session, nil
}

func (h *Handler) requireAdmin(w http.ResponseWriter, r *http.Request) bool {
	if !identityFrom(r).IsAdmin() {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin role required"})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, engine.ErrUnauthorized):
		status = http.StatusForbidden
	case engine.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidState), errors.Is(err, engine.ErrConflict):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed", "err", err)
		writeJSON(w, status, ErrorResponse{Error: "internal error"})
		return
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

func parseDateParam(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(dateLayout, v, time.Local)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func toUserIDsResponse(ids []engine.UserID) UserIDsResponse {
	out := UserIDsResponse{UserIDs: make([]string, 0, len(ids))}
	for _, id := range ids {
		out.UserIDs = append(out.UserIDs, string(id))
	}
	return out
}
