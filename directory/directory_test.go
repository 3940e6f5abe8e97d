package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/worktime-engine/engine"
	"github.com/warp/worktime-engine/engine/store"
)

func TestSyncUpsertsAndRemoves(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()

	// A local user the feed no longer mentions.
	require.NoError(t, mem.UpsertUser(ctx, &engine.User{
		ID: "gone", Name: "Old", Surname: "Timer", Existence: engine.Exist,
	}))

	feed := &StaticFeed{Records: []Record{
		{ID: "u1", Name: "Ada", Surname: "Lovelace", Email: "ada@example.com"},
		{ID: "u2", Name: "Grace", Surname: "Hopper", Email: "grace@example.com"},
	}}
	syncer := NewSyncer(mem, feed, nil)

	upserted, removed, err := syncer.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, upserted)
	assert.Equal(t, 1, removed)

	users, err := mem.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2, "soft-deleted users drop out of the listing")

	// The removed user is still resolvable by ID for historical records.
	gone, err := mem.GetUser(ctx, "gone")
	require.NoError(t, err)
	require.NotNil(t, gone)
	assert.Equal(t, engine.Deleted, gone.Existence)
}

func TestSyncUpdatesChangedFields(t *testing.T) {
	mem := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, mem.UpsertUser(ctx, &engine.User{
		ID: "u1", Name: "Ada", Surname: "Lovelace", Email: "old@example.com", Existence: engine.Exist,
	}))

	pid := engine.ProjectID("p1")
	feed := &StaticFeed{Records: []Record{
		{ID: "u1", Name: "Ada", Surname: "King", Email: "ada@example.com", ProjectID: &pid},
	}}

	_, _, err := NewSyncer(mem, feed, nil).Sync(ctx)
	require.NoError(t, err)

	user, err := mem.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "King", user.Surname)
	assert.Equal(t, "ada@example.com", user.Email)
	require.NotNil(t, user.ProjectID)
	assert.Equal(t, pid, *user.ProjectID)
}

func TestSyncSkipsRecordsWithoutID(t *testing.T) {
	mem := store.NewMemory()
	feed := &StaticFeed{Records: []Record{
		{ID: "", Name: "No", Surname: "Body"},
		{ID: "u1", Name: "Ada", Surname: "Lovelace"},
	}}

	upserted, _, err := NewSyncer(mem, feed, nil).Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, upserted)
}

func TestSyncPropagatesFeedError(t *testing.T) {
	mem := store.NewMemory()
	feedErr := errors.New("upstream down")
	syncer := NewSyncer(mem, &StaticFeed{Err: feedErr}, nil)

	_, _, err := syncer.Sync(context.Background())
	assert.True(t, errors.Is(err, feedErr))
}

func TestDue(t *testing.T) {
	monday := time.Date(2025, 3, 10, 3, 0, 0, 0, time.UTC)

	daily := &engine.Settings{SyncHour: 3, SyncFrequency: engine.SyncDaily}
	assert.True(t, Due(daily, monday))
	assert.False(t, Due(daily, monday.Add(time.Hour)), "wrong hour")

	weekly := &engine.Settings{
		SyncHour:      3,
		SyncFrequency: engine.SyncWeekly,
		SyncDays:      []time.Weekday{time.Monday},
	}
	assert.True(t, Due(weekly, monday))
	assert.False(t, Due(weekly, monday.AddDate(0, 0, 1)), "tuesday is not a sync day")
}
