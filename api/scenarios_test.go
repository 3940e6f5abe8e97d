/*
scenarios_test.go - Tests for demo scenario loaders

PURPOSE:
	Tests that each scenario sets up the expected state:
	- Users and projects are created
	- Sessions land in the right status
	- Day-off requests cover the statuses the scenario promises

These double as integration checks for the seeding helpers.
*/
package api

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
)

func TestListScenarios(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/scenarios", "boss", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeJSON[[]ScenarioDTO](t, rec)
	assert.Len(t, list, 4)

	// Not exposed to regular users.
	rec = env.do(t, http.MethodGet, "/api/scenarios", "u1", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestLoadUnknownScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "boss", "admin", LoadScenarioRequest{ScenarioID: "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSmallTeamScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "boss", "admin", LoadScenarioRequest{ScenarioID: "small-team"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Three seeded users plus the fixture user.
	users, err := env.mem.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 4)

	projects, err := env.mem.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "Atlas", projects[0].Name)

	// Five work days, one break each.
	sessions, err := env.mem.QuerySessions(ctx, engine.SessionFilter{UserIDs: []engine.UserID{"demo-ada"}})
	require.NoError(t, err)
	assert.Len(t, sessions, 10)
	for _, s := range sessions {
		assert.False(t, s.Open())
	}
}

func TestReviewQueueScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "boss", "admin", LoadScenarioRequest{ScenarioID: "review-queue"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	sessions, err := env.mem.QuerySessions(context.Background(), engine.SessionFilter{UserIDs: []engine.UserID{"demo-forgetful"}})
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for _, s := range sessions {
		assert.Equal(t, engine.StatusRequiresAttention, s.Status)
	}

	// The seeded entries are reviewable through the normal flow.
	rec = env.do(t, http.MethodPost, "/api/sessions/"+string(sessions[0].ID)+"/confirm", "boss", "admin", nil)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestLiveMorningScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "boss", "admin", LoadScenarioRequest{ScenarioID: "live-morning"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	open, err := env.mem.ListOpenSessions(ctx, engine.KindWork)
	require.NoError(t, err)
	assert.Len(t, open, 2)

	// The long break shows up on the presence endpoint.
	rec = env.do(t, http.MethodGet, "/api/presence/long-breaks", "boss", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ids := decodeJSON[UserIDsResponse](t, rec)
	assert.Equal(t, []string{"demo-resting"}, ids.UserIDs)
}

func TestLeaveSeasonScenario(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/scenarios/load", "boss", "admin", LoadScenarioRequest{ScenarioID: "leave-season"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	requests, err := env.mem.QueryDayOffs(context.Background(), engine.DayOffFilter{})
	require.NoError(t, err)
	require.Len(t, requests, 5)

	statuses := map[engine.DayOffStatus]bool{}
	for _, r := range requests {
		statuses[r.Status] = true
	}
	for _, want := range []engine.DayOffStatus{
		engine.DayOffPending, engine.DayOffApproved, engine.DayOffRejected,
		engine.DayOffCancelled, engine.DayOffExecuted,
	} {
		assert.True(t, statuses[want], string(want))
	}
}
