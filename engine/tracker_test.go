package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

// testClock is a mutable clock shared by the tests in this package.
type testClock struct {
	mu sync.Mutex
	at time.Time
}

func newTestClock(at time.Time) *testClock { return &testClock{at: at} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}

// A Wednesday morning, so weekday-gated rules are active.
var testMorning = time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)

const testUser = engine.UserID("u1")

func newTestTracker(t *testing.T) (*engine.Tracker, *store.Memory, *testClock) {
	t.Helper()
	mem := store.NewMemory()
	clock := newTestClock(testMorning)
	require.NoError(t, mem.UpsertUser(context.Background(), &engine.User{
		ID: testUser, Name: "Ada", Surname: "Lovelace", Email: "ada@example.com", Existence: engine.Exist,
	}))
	return engine.NewTracker(mem, nil, clock, nil), mem, clock
}

func TestStartWorkSession(t *testing.T) {
	tracker, mem, _ := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	assert.Equal(t, engine.KindWork, session.Kind)
	assert.Equal(t, engine.StatusStarted, session.Status)
	assert.True(t, session.Open())
	assert.Equal(t, testMorning, session.StartTime)

	open, err := mem.FindOpenSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	require.NotNil(t, open)
	assert.Equal(t, session.ID, open.ID)
}

func TestStartWorkTwiceIsConflict(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	_, err = tracker.StartSession(ctx, testUser, engine.KindWork)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrConflict))

	var open *engine.OpenSessionError
	require.True(t, errors.As(err, &open))
	assert.Equal(t, testUser, open.UserID)
	assert.Equal(t, engine.KindWork, open.Kind)
}

func TestStartSessionUnknownUser(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	_, err := tracker.StartSession(context.Background(), "ghost", engine.KindWork)
	assert.True(t, engine.IsNotFound(err))
}

func TestStartSessionUnknownKind(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	_, err := tracker.StartSession(context.Background(), testUser, "lunch")
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument))
}

func TestBreakRequiresOpenWork(t *testing.T) {
	tracker, _, _ := newTestTracker(t)

	_, err := tracker.StartSession(context.Background(), testUser, engine.KindBreak)
	require.Error(t, err)
	assert.True(t, errors.Is(err, engine.ErrInvalidState))
}

func TestBreakClosesOpenWork(t *testing.T) {
	tracker, mem, clock := newTestTracker(t)
	ctx := context.Background()

	work, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	breakSession, err := tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)

	// The work session was closed at the instant the break opened.
	closedWork, err := mem.GetSession(ctx, work.ID)
	require.NoError(t, err)
	require.NotNil(t, closedWork.EndTime)
	assert.Equal(t, breakSession.StartTime, *closedWork.EndTime)
	assert.Equal(t, engine.StatusFinished, closedWork.Status)

	minutes, ok := closedWork.DurationMinutes()
	require.True(t, ok)
	assert.Equal(t, 30, minutes)
}

func TestResumeWorkClosesOpenBreak(t *testing.T) {
	tracker, mem, clock := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	breakSession, err := tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)

	clock.Advance(15 * time.Minute)
	resumed, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	closedBreak, err := mem.GetSession(ctx, breakSession.ID)
	require.NoError(t, err)
	require.NotNil(t, closedBreak.EndTime)
	assert.Equal(t, resumed.StartTime, *closedBreak.EndTime)

	openBreak, err := mem.FindOpenSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)
	assert.Nil(t, openBreak)
}

func TestEndSession(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	clock.Advance(90 * time.Minute)
	ended, err := tracker.EndSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFinished, ended.Status)

	minutes, ok := ended.DurationMinutes()
	require.True(t, ok)
	assert.Equal(t, 90, minutes)
}

func TestEndSessionTwiceIsInvalidState(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	_, err = tracker.EndSession(ctx, session.ID)
	require.NoError(t, err)

	_, err = tracker.EndSession(ctx, session.ID)
	assert.True(t, errors.Is(err, engine.ErrInvalidState))
}

func TestBreakBudgetExhausted(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	// Default budget is 30 minutes. Spend exactly all of it.
	_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	clock.Advance(10 * time.Minute)
	breakSession, err := tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	_, err = tracker.EndSession(ctx, breakSession.ID)
	require.NoError(t, err)

	_, err = tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	_, err = tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.Error(t, err)

	var budget *engine.BreakBudgetError
	require.True(t, errors.As(err, &budget))
	assert.Equal(t, 30, budget.UsedMinutes)
	assert.Equal(t, 30, budget.MaxMinutes)
}

func TestOpenBreakDoesNotConsumeBudget(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	clock.Advance(5 * time.Minute)
	_, err = tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)
	clock.Advance(45 * time.Minute)

	used, err := tracker.UsedBreakMinutesToday(ctx, testUser)
	require.NoError(t, err)
	assert.Equal(t, 0, used)
}

// =============================================================================
// BACKDATED ENTRIES
// =============================================================================

func TestCreatePastSessionBounds(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()
	now := clock.Now()

	_, err := tracker.CreatePastSession(ctx, testUser, engine.KindWork, now.Add(time.Minute))
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument), "future start must be rejected")

	_, err = tracker.CreatePastSession(ctx, testUser, engine.KindWork, now.Add(-3*time.Hour))
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument), "start older than the backdate window must be rejected")
}

func TestCreatePastWorkClosesCoveringBreak(t *testing.T) {
	tracker, mem, clock := newTestTracker(t)
	ctx := context.Background()

	_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	clock.Advance(30 * time.Minute)
	breakSession, err := tracker.StartSession(ctx, testUser, engine.KindBreak)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)
	claimed := clock.Now().Add(-15 * time.Minute)
	session, err := tracker.CreatePastSession(ctx, testUser, engine.KindWork, claimed)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRequiresAttention, session.Status)
	assert.Equal(t, claimed, session.StartTime)
	assert.Equal(t, clock.Now(), session.CreatedAt)

	// The break running over the claimed start is cut off there.
	closedBreak, err := mem.GetSession(ctx, breakSession.ID)
	require.NoError(t, err)
	require.NotNil(t, closedBreak.EndTime)
	assert.Equal(t, claimed, *closedBreak.EndTime)
}

func TestCreatePastBreakNeedsCoveringWork(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	claimed := clock.Now().Add(-30 * time.Minute)
	_, err := tracker.CreatePastSession(ctx, testUser, engine.KindBreak, claimed)
	assert.True(t, errors.Is(err, engine.ErrInvalidState))

	_, err = tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	clock.Advance(time.Hour)

	claimed = clock.Now().Add(-30 * time.Minute)
	session, err := tracker.CreatePastSession(ctx, testUser, engine.KindBreak, claimed)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusRequiresAttention, session.Status)
}

func TestConfirmPastSessionKeepsClaimedStart(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	claimed := clock.Now().Add(-time.Hour)
	session, err := tracker.CreatePastSession(ctx, testUser, engine.KindWork, claimed)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	confirmed, err := tracker.ConfirmPastSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, claimed, confirmed.StartTime)
	assert.Equal(t, engine.StatusFinished, confirmed.Status)
	require.NotNil(t, confirmed.EndTime)
	assert.Equal(t, clock.Now(), *confirmed.EndTime)
}

func TestRejectPastSessionSnapsStartToCreation(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	createdAt := clock.Now()
	session, err := tracker.CreatePastSession(ctx, testUser, engine.KindWork, createdAt.Add(-time.Hour))
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	rejected, err := tracker.RejectPastSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, createdAt, rejected.StartTime)
	assert.Equal(t, engine.StatusFinished, rejected.Status)

	// A resolved entry cannot be resolved again.
	_, err = tracker.ConfirmPastSession(ctx, session.ID)
	assert.True(t, engine.IsNotFound(err))
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestConcurrentStartOnlyOneWins(t *testing.T) {
	tracker, mem, _ := newTestTracker(t)
	ctx := context.Background()

	const attempts = 8
	errs := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.StartSession(ctx, testUser, engine.KindWork)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	succeeded := 0
	for err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, errors.Is(err, engine.ErrConflict))
		}
	}
	assert.Equal(t, 1, succeeded)

	open, err := mem.ListOpenSessions(ctx, engine.KindWork)
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

// =============================================================================
// ADMINISTRATIVE OPERATIONS
// =============================================================================

func TestDeleteAndRestoreSession(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)
	_, err = tracker.EndSession(ctx, session.ID)
	require.NoError(t, err)

	require.NoError(t, tracker.DeleteSession(ctx, session.ID))

	sessions, err := tracker.QuerySessions(ctx, engine.SessionFilter{UserIDs: []engine.UserID{testUser}})
	require.NoError(t, err)
	assert.Empty(t, sessions)

	deleted, err := tracker.QuerySessions(ctx, engine.SessionFilter{UserIDs: []engine.UserID{testUser}, Deleted: true})
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	restored, err := tracker.RestoreSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.Exist, restored.Existence)

	sessions, err = tracker.QuerySessions(ctx, engine.SessionFilter{UserIDs: []engine.UserID{testUser}})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestRestoreNonDeletedSessionFails(t *testing.T) {
	tracker, _, _ := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	_, err = tracker.RestoreSession(ctx, session.ID)
	assert.True(t, engine.IsNotFound(err))
}

func TestEditSessionValidation(t *testing.T) {
	tracker, _, clock := newTestTracker(t)
	ctx := context.Background()

	session, err := tracker.StartSession(ctx, testUser, engine.KindWork)
	require.NoError(t, err)

	before := clock.Now().Add(-time.Hour)
	_, err = tracker.EditSession(ctx, session.ID, clock.Now(), &before, engine.StatusFinished, engine.KindWork)
	assert.True(t, errors.Is(err, engine.ErrInvalidArgument))

	end := clock.Now().Add(time.Hour)
	edited, err := tracker.EditSession(ctx, session.ID, clock.Now(), &end, engine.StatusFinished, engine.KindBreak)
	require.NoError(t, err)
	assert.Equal(t, engine.KindBreak, edited.Kind)
	assert.Equal(t, engine.StatusFinished, edited.Status)
}
