/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates users, projects,
	sessions, and day-off requests that demonstrate specific features.

AVAILABLE SCENARIOS:

	small-team:   Three users with a week of closed work/break history
	review-queue: Backdated entries waiting for admin review
	live-morning: Open sessions in progress plus one absent user
	leave-season: Day-off requests across every status

HOW SCENARIOS WORK:
 1. Create projects and users
 2. Seed session history relative to the current day
 3. Seed day-off requests where the scenario calls for them

USAGE VIA API:

	POST /api/scenarios/load
	{"scenarioId": "small-team"}

ADDING NEW SCENARIOS:
 1. Add to the 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios seed on top of whatever is in the database and expect a
	fresh one. Only use in development/demo environments; loading twice
	can conflict with open sessions from the first run.

SEE ALSO:
  - handlers.go: Error mapping and shared helpers
  - server.go: Route registration
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenarioId"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "small-team",
		Name:        "Small Team",
		Description: "Three users with a week of closed work and break history",
		Category:    "tracking",
	},
	{
		ID:          "review-queue",
		Name:        "Review Queue",
		Description: "Backdated entries waiting for admin confirmation",
		Category:    "tracking",
	},
	{
		ID:          "live-morning",
		Name:        "Live Morning",
		Description: "Sessions currently in progress plus one absent user",
		Category:    "presence",
	},
	{
		ID:          "leave-season",
		Name:        "Leave Season",
		Description: "Day-off requests in every status",
		Category:    "dayoff",
	},
}

// =============================================================================
// HANDLERS
// =============================================================================

func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, scenarios)
}

func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx := r.Context()
	var err error
	switch req.ScenarioID {
	case "small-team":
		err = loadSmallTeamScenario(ctx, h.Store)
	case "review-queue":
		err = loadReviewQueueScenario(ctx, h.Store)
	case "live-morning":
		err = loadLiveMorningScenario(ctx, h.Store)
	case "leave-season":
		err = loadLeaveSeasonScenario(ctx, h.Store)
	default:
		writeBadRequest(w, fmt.Sprintf("unknown scenario %q", req.ScenarioID))
		return
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.Summary.InvalidateAll()
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SEEDING HELPERS
// =============================================================================

func seedUser(ctx context.Context, store engine.Store, id engine.UserID, name, surname string, projectID *engine.ProjectID) error {
	return store.UpsertUser(ctx, &engine.User{
		ID:        id,
		Name:      name,
		Surname:   surname,
		Email:     fmt.Sprintf("%s@example.com", id),
		ProjectID: projectID,
		Existence: engine.Exist,
	})
}

func seedClosedSession(ctx context.Context, store engine.Store, userID engine.UserID, kind engine.SessionKind, start time.Time, minutes int) error {
	end := start.Add(time.Duration(minutes) * time.Minute)
	return store.InsertSession(ctx, &engine.Session{
		ID:        engine.SessionID(uuid.NewString()),
		UserID:    userID,
		Kind:      kind,
		Status:    engine.StatusFinished,
		StartTime: start,
		EndTime:   &end,
		CreatedAt: start,
		Existence: engine.Exist,
	})
}

func seedOpenSession(ctx context.Context, store engine.Store, userID engine.UserID, kind engine.SessionKind, start time.Time) error {
	return store.InsertSession(ctx, &engine.Session{
		ID:        engine.SessionID(uuid.NewString()),
		UserID:    userID,
		Kind:      kind,
		Status:    engine.StatusStarted,
		StartTime: start,
		CreatedAt: start,
		Existence: engine.Exist,
	})
}

func seedDayOff(ctx context.Context, store engine.Store, userID engine.UserID, status engine.DayOffStatus, start, end time.Time, reason string) error {
	return store.InsertDayOff(ctx, &engine.DayOffRequest{
		ID:        engine.DayOffID(uuid.NewString()),
		UserID:    userID,
		DateStart: engine.DayStart(start),
		DateEnd:   engine.DayStart(end),
		Status:    status,
		Reason:    reason,
		Existence: engine.Exist,
	})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadSmallTeamScenario seeds three users on one project with five
// working days of closed history each: an eight-hour day with one break.
func loadSmallTeamScenario(ctx context.Context, store engine.Store) error {
	projectID := engine.ProjectID("proj-atlas")
	if err := store.SaveProject(ctx, &engine.Project{
		ID: projectID, Name: "Atlas", Description: "Internal platform rebuild",
	}); err != nil {
		return err
	}

	team := []struct {
		id            engine.UserID
		name, surname string
	}{
		{"demo-ada", "Ada", "Lovelace"},
		{"demo-grace", "Grace", "Hopper"},
		{"demo-edsger", "Edsger", "Dijkstra"},
	}
	for _, m := range team {
		if err := seedUser(ctx, store, m.id, m.name, m.surname, &projectID); err != nil {
			return err
		}
	}

	today := engine.DayStart(time.Now())
	for _, m := range team {
		for day := 1; day <= 5; day++ {
			morning := today.AddDate(0, 0, -day).Add(9 * time.Hour)
			if err := seedClosedSession(ctx, store, m.id, engine.KindWork, morning, 8*60); err != nil {
				return err
			}
			if err := seedClosedSession(ctx, store, m.id, engine.KindBreak, morning.Add(3*time.Hour), 25); err != nil {
				return err
			}
		}
	}
	return nil
}

// loadReviewQueueScenario seeds backdated entries in the attention state
// so the confirm/reject flow has something to act on.
func loadReviewQueueScenario(ctx context.Context, store engine.Store) error {
	if err := seedUser(ctx, store, "demo-forgetful", "Frank", "Forgetful", nil); err != nil {
		return err
	}

	now := time.Now()
	for i := 1; i <= 3; i++ {
		claimed := now.Add(-time.Duration(i) * 90 * time.Minute)
		end := claimed.Add(45 * time.Minute)
		if err := store.InsertSession(ctx, &engine.Session{
			ID:        engine.SessionID(uuid.NewString()),
			UserID:    "demo-forgetful",
			Kind:      engine.KindWork,
			Status:    engine.StatusRequiresAttention,
			StartTime: claimed,
			EndTime:   &end,
			CreatedAt: now,
			Existence: engine.Exist,
		}); err != nil {
			return err
		}
	}
	return nil
}

// loadLiveMorningScenario seeds sessions in progress: one user working,
// one on a break that is already over budget, one absent.
func loadLiveMorningScenario(ctx context.Context, store engine.Store) error {
	users := []struct {
		id            engine.UserID
		name, surname string
	}{
		{"demo-working", "Wanda", "Working"},
		{"demo-resting", "Rita", "Resting"},
		{"demo-absent", "Abe", "Absent"},
	}
	for _, u := range users {
		if err := seedUser(ctx, store, u.id, u.name, u.surname, nil); err != nil {
			return err
		}
	}

	now := time.Now()
	if err := seedOpenSession(ctx, store, "demo-working", engine.KindWork, now.Add(-2*time.Hour)); err != nil {
		return err
	}
	if err := seedOpenSession(ctx, store, "demo-resting", engine.KindWork, now.Add(-3*time.Hour)); err != nil {
		return err
	}
	return seedOpenSession(ctx, store, "demo-resting", engine.KindBreak, now.Add(-45*time.Minute))
}

// loadLeaveSeasonScenario seeds day-off requests covering every status
// the rollover and summary endpoints distinguish.
func loadLeaveSeasonScenario(ctx context.Context, store engine.Store) error {
	if err := seedUser(ctx, store, "demo-traveler", "Tess", "Traveler", nil); err != nil {
		return err
	}

	today := engine.DayStart(time.Now())
	seeds := []struct {
		status     engine.DayOffStatus
		start, end time.Time
		reason     string
	}{
		{engine.DayOffExecuted, today.AddDate(0, 0, -30), today.AddDate(0, 0, -28), "spring trip"},
		{engine.DayOffRejected, today.AddDate(0, 0, -20), today.AddDate(0, 0, -20), "missed the request window"},
		{engine.DayOffCancelled, today.AddDate(0, 0, -10), today.AddDate(0, 0, -9), "changed plans"},
		{engine.DayOffApproved, today.AddDate(0, 0, 7), today.AddDate(0, 0, 11), "summer vacation"},
		{engine.DayOffPending, today.AddDate(0, 0, 30), today.AddDate(0, 0, 31), "long weekend"},
	}
	for _, s := range seeds {
		if err := seedDayOff(ctx, store, "demo-traveler", s.status, s.start, s.end, s.reason); err != nil {
			return err
		}
	}
	return nil
}
