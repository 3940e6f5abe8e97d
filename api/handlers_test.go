/*
handlers_test.go - HTTP-level tests for the API surface

Exercises the router with an in-memory store:
- Session lifecycle and conflict mapping
- Identity headers and role-based access
- Day-off request and approval flow
- Summary, settings and CSV export endpoints
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/directory"
	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

type testEnv struct {
	router http.Handler
	mem    *store.Memory
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertUser(context.Background(), &engine.User{
		ID: "u1", Name: "Ada", Surname: "Lovelace", Email: "ada@example.com", Existence: engine.Exist,
	}))

	tracker := engine.NewTracker(mem, nil, nil, nil)
	summary := engine.NewSummaryService(mem, nil, 0)
	sweeper := engine.NewSweeper(mem, nil, nil, nil)
	dayOffs := engine.NewDayOffService(mem, nil)
	syncer := directory.NewSyncer(mem, &directory.StaticFeed{}, nil)

	handler := NewHandler(tracker, summary, dayOffs, sweeper, syncer, mem, nil)
	return &testEnv{router: NewRouter(handler), mem: mem}
}

// do executes a request as the given caller. An empty userID means an
// anonymous request.
func (e *testEnv) do(t *testing.T, method, path, userID, roles string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if userID != "" {
		req.Header.Set(HeaderUserID, userID)
	}
	if roles != "" {
		req.Header.Set(HeaderRoles, roles)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

// =============================================================================
// SESSION FLOW
// =============================================================================

func TestSessionLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: a user with no sessions
	// WHEN: they start work
	rec := env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "work"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	started := decodeJSON[SessionDTO](t, rec)
	assert.Equal(t, "work", started.Kind)
	assert.Equal(t, "started", started.Status)
	assert.Nil(t, started.EndTime)

	// THEN: a second start conflicts
	rec = env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "work"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// AND: ending it succeeds exactly once
	rec = env.do(t, http.MethodPost, "/api/sessions/"+started.ID+"/end", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ended := decodeJSON[SessionDTO](t, rec)
	assert.Equal(t, "finished", ended.Status)
	assert.NotNil(t, ended.EndTime)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+started.ID+"/end", "u1", "", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartSessionForAnotherUserRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: a non-admin caller
	// WHEN: they try to start a session for someone else
	rec := env.do(t, http.MethodPost, "/api/sessions/start", "u2", "", StartSessionRequest{UserID: "u1", Kind: "work"})
	// THEN: the request is rejected
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admins may act for anyone.
	rec = env.do(t, http.MethodPost, "/api/sessions/start", "boss", "admin", StartSessionRequest{UserID: "u1", Kind: "work"})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestBreakWithoutWorkMapsToConflict(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "break"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	body := decodeJSON[ErrorResponse](t, rec)
	assert.Contains(t, body.Error, "work")
}

func TestUnknownKindMapsToBadRequest(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "lunch"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnonymousRequestsAreRejected(t *testing.T) {
	env := newTestEnv(t)

	// No identity header means no resolvable user.
	rec := env.do(t, http.MethodPost, "/api/sessions/start", "", "", StartSessionRequest{Kind: "work"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListSessionsScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.mem.UpsertUser(ctx, &engine.User{ID: "u2", Name: "Grace", Surname: "Hopper", Existence: engine.Exist}))

	env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "work"})
	env.do(t, http.MethodPost, "/api/sessions/start", "u2", "", StartSessionRequest{Kind: "work"})

	// Non-admins only ever see their own sessions, whatever they ask for.
	rec := env.do(t, http.MethodGet, "/api/sessions?userId=u2", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	mine := decodeJSON[[]SessionDTO](t, rec)
	require.Len(t, mine, 1)
	assert.Equal(t, "u1", mine[0].UserID)

	// Admins see everything.
	rec = env.do(t, http.MethodGet, "/api/sessions", "boss", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeJSON[[]SessionDTO](t, rec)
	assert.Len(t, all, 2)
}

func TestPastSessionReviewFlow(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: a backdated session claim
	start := time.Now().Add(-30 * time.Minute)
	rec := env.do(t, http.MethodPost, "/api/sessions/past", "u1", "", PastSessionRequest{Kind: "work", StartTime: start})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[SessionDTO](t, rec)
	assert.Equal(t, "requires_attention", created.Status)

	// WHEN: the owner tries to confirm it
	rec = env.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/confirm", "u1", "", nil)
	// THEN: review stays admin-only
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+created.ID+"/confirm", "boss", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	confirmed := decodeJSON[SessionDTO](t, rec)
	assert.Equal(t, "finished", confirmed.Status)
}

func TestEndingSomeoneElsesSessionForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.mem.UpsertUser(ctx, &engine.User{ID: "u2", Name: "Grace", Surname: "Hopper", Existence: engine.Exist}))

	rec := env.do(t, http.MethodPost, "/api/sessions/start", "u1", "", StartSessionRequest{Kind: "work"})
	started := decodeJSON[SessionDTO](t, rec)

	rec = env.do(t, http.MethodPost, "/api/sessions/"+started.ID+"/end", "u2", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Unknown IDs surface as not-found before any ownership check for admins.
	rec = env.do(t, http.MethodPost, "/api/sessions/nope/end", "boss", "admin", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBreakBudget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// GIVEN: a 20-minute closed break earlier today
	start := engine.DayStart(time.Now()).Add(9 * time.Hour)
	end := start.Add(20 * time.Minute)
	require.NoError(t, env.mem.InsertSession(ctx, &engine.Session{
		ID: "b1", UserID: "u1", Kind: engine.KindBreak, Status: engine.StatusFinished,
		StartTime: start, EndTime: &end, CreatedAt: start, Existence: engine.Exist,
	}))

	rec := env.do(t, http.MethodGet, "/api/sessions/break-budget", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	budget := decodeJSON[BreakBudgetDTO](t, rec)
	assert.Equal(t, 20, budget.UsedMinutes)
	assert.Equal(t, 30, budget.MaxMinutes)
	assert.Equal(t, 10, budget.RemainingMinutes)

	// Someone else's budget is off limits for non-admins.
	rec = env.do(t, http.MethodGet, "/api/sessions/break-budget?userId=u1", "u2", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// DAY-OFF FLOW
// =============================================================================

func TestDayOffRequestAndApproval(t *testing.T) {
	env := newTestEnv(t)

	// GIVEN: a three-day vacation request
	rec := env.do(t, http.MethodPost, "/api/dayoffs", "u1", "", CreateDayOffRequest{
		DateStart: "2025-07-01", DateEnd: "2025-07-03", Reason: "vacation",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeJSON[DayOffDTO](t, rec)
	assert.Equal(t, "pending", created.Status)
	assert.Equal(t, 3, created.Days)

	// WHEN: an overlapping second request arrives
	rec = env.do(t, http.MethodPost, "/api/dayoffs", "u1", "", CreateDayOffRequest{
		DateStart: "2025-07-03", DateEnd: "2025-07-05",
	})
	// THEN: it conflicts
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Owner cannot approve; admin can.
	rec = env.do(t, http.MethodPost, "/api/dayoffs/"+created.ID+"/status", "u1", "", ChangeDayOffStatusRequest{Status: "approved"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/dayoffs/"+created.ID+"/status", "boss", "admin", ChangeDayOffStatusRequest{Status: "approved"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	approved := decodeJSON[DayOffDTO](t, rec)
	assert.Equal(t, "approved", approved.Status)
}

func TestDayOffInvalidDates(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/dayoffs", "u1", "", CreateDayOffRequest{
		DateStart: "not-a-date", DateEnd: "2025-07-03",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/dayoffs", "u1", "", CreateDayOffRequest{
		DateStart: "2025-07-03", DateEnd: "2025-07-01",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// SUMMARY & SETTINGS
// =============================================================================

func TestSummaryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	day := engine.DayStart(time.Now())
	end := day.Add(10*time.Hour + 30*time.Minute)
	require.NoError(t, env.mem.InsertSession(ctx, &engine.Session{
		ID: "s1", UserID: "u1", Kind: engine.KindWork, Status: engine.StatusFinished,
		StartTime: day.Add(8 * time.Hour), EndTime: &end, CreatedAt: day, Existence: engine.Exist,
	}))

	rec := env.do(t, http.MethodGet, "/api/summary?from="+day.Format(dateLayout)+"&to="+day.Format(dateLayout), "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeJSON[SummaryDTO](t, rec)
	assert.Equal(t, 150, summary.TotalWorkMinutes)
	assert.Equal(t, "2.5", summary.WorkHours)
	assert.Equal(t, "Ada", summary.UserName)
}

func TestSettingsUpdateIsAdminOnly(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/settings", "u1", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	settings := decodeJSON[SettingsDTO](t, rec)
	assert.Equal(t, 30, settings.MaxBreakMinutesPerDay)

	settings.MaxBreakMinutesPerDay = 45
	rec = env.do(t, http.MethodPut, "/api/settings", "u1", "", settings)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodPut, "/api/settings", "boss", "admin", settings)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/api/settings", "u1", "", nil)
	updated := decodeJSON[SettingsDTO](t, rec)
	assert.Equal(t, 45, updated.MaxBreakMinutesPerDay)
}

func TestCSVExport(t *testing.T) {
	env := newTestEnv(t)

	day := engine.DayStart(time.Now()).Format(dateLayout)
	rec := env.do(t, http.MethodGet, "/api/summary/export?from="+day+"&to="+day, "boss", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "work_hours")

	// Not for regular users.
	rec = env.do(t, http.MethodGet, "/api/summary/export", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

// =============================================================================
// ADMIN TRIGGERS
// =============================================================================

func TestAdminTriggersRequireRole(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{
		"/api/admin/sync",
		"/api/admin/rollover",
		"/api/admin/sweep/breaks",
		"/api/admin/sweep/work",
	} {
		rec := env.do(t, http.MethodPost, path, "u1", "", nil)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)

		rec = env.do(t, http.MethodPost, path, "boss", "admin", nil)
		assert.Equal(t, http.StatusOK, rec.Code, "%s: %s", path, rec.Body.String())
	}
}
