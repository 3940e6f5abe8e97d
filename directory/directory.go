/*
Package directory synchronizes the user catalogue from an external feed.

PURPOSE:
  Users are owned by an upstream directory (HR system, identity
  provider); this service is only a consumer. A sync run upserts every
  record the feed returns and soft-deletes local users the feed no
  longer mentions, so their historical sessions stay resolvable.

SCHEDULING:
  The sync hour and frequency come from engine.Settings. Due() decides
  whether a given instant falls in the sync window; the scheduler polls
  it and runs Sync when it fires.
*/
package directory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/warp/worktime-engine/engine"
)

// Record is one user as the upstream directory reports it.
type Record struct {
	ID        engine.UserID
	Name      string
	Surname   string
	Email     string
	ProjectID *engine.ProjectID
}

// Feed lists the upstream directory's current users.
type Feed interface {
	Fetch(ctx context.Context) ([]Record, error)
}

// StaticFeed serves a fixed record set. Used in tests and for seeding
// development databases.
type StaticFeed struct {
	Records []Record
	Err     error
}

func (f *StaticFeed) Fetch(context.Context) ([]Record, error) {
	return f.Records, f.Err
}

// Syncer reconciles the local user catalogue against a Feed.
type Syncer struct {
	store  engine.Store
	feed   Feed
	logger *slog.Logger
}

func NewSyncer(store engine.Store, feed Feed, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{store: store, feed: feed, logger: logger}
}

// Sync pulls the feed and reconciles: every fetched record is upserted
// as existing, and local users absent from the feed are soft-deleted.
// Returns (upserted, removed).
func (sy *Syncer) Sync(ctx context.Context) (int, int, error) {
	records, err := sy.feed.Fetch(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to fetch directory feed: %w", err)
	}

	seen := make(map[engine.UserID]bool, len(records))
	upserted := 0
	for _, r := range records {
		if r.ID == "" {
			sy.logger.Warn("directory record without id skipped", "email", r.Email)
			continue
		}
		seen[r.ID] = true
		user := &engine.User{
			ID:        r.ID,
			Name:      r.Name,
			Surname:   r.Surname,
			Email:     r.Email,
			ProjectID: r.ProjectID,
			Existence: engine.Exist,
		}
		if err := sy.store.UpsertUser(ctx, user); err != nil {
			return upserted, 0, err
		}
		upserted++
	}

	locals, err := sy.store.ListUsers(ctx)
	if err != nil {
		return upserted, 0, err
	}
	removed := 0
	for _, u := range locals {
		if seen[u.ID] {
			continue
		}
		gone := *u
		gone.Existence = engine.Deleted
		if err := sy.store.UpsertUser(ctx, &gone); err != nil {
			return upserted, removed, err
		}
		removed++
	}

	sy.logger.Info("directory sync complete", "upserted", upserted, "removed", removed)
	return upserted, removed, nil
}

// Due reports whether at falls in the sync window described by the
// settings: the configured hour, every day for SyncDaily or only on the
// listed weekdays for SyncWeekly.
func Due(settings *engine.Settings, at time.Time) bool {
	if at.Hour() != settings.SyncHour {
		return false
	}
	if settings.SyncFrequency != engine.SyncWeekly {
		return true
	}
	for _, d := range settings.SyncDays {
		if at.Weekday() == d {
			return true
		}
	}
	return false
}
