/*
summary.go - Aggregation engine

PURPOSE:
  Computes per-user/per-range time summaries from raw session and day-off
  records: total work minutes, break minutes and count, and day-off day
  counts bucketed by status.

CACHING:
  Results are memoized in a TTL-bounded LRU keyed by (user, from, to,
  project). The cache is strictly a performance layer: every computation
  is correct with the cache disabled, entries simply expire, and nothing
  ever writes through it.

COUNTING RULES:
  - Open sessions contribute zero minutes. Callers wanting an "as of now"
    figure close or project the session themselves.
  - A day-off request contributes its full (end-start)+1 day span to the
    bucket of its status, even when the query window clips the range.
    This mirrors the historical reporting behavior; see DESIGN.md.
*/
package engine

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// SummaryQuery narrows Summarize. Nil fields mean "unbounded".
type SummaryQuery struct {
	From      *time.Time
	To        *time.Time
	UserID    *UserID
	ProjectID *ProjectID
}

// SummaryService computes summaries over the store, memoizing results
// for a short TTL.
type SummaryService struct {
	store Store
	clock Clock
	cache *expirable.LRU[summaryKey, *SummaryResult]
}

type summaryKey struct {
	User    string
	From    string
	To      string
	Project string
}

const summaryCacheSize = 512

// NewSummaryService builds the aggregation engine. ttl == 0 disables
// caching entirely.
func NewSummaryService(store Store, clock Clock, ttl time.Duration) *SummaryService {
	if clock == nil {
		clock = SystemClock{}
	}
	svc := &SummaryService{store: store, clock: clock}
	if ttl > 0 {
		svc.cache = expirable.NewLRU[summaryKey, *SummaryResult](summaryCacheSize, nil, ttl)
	}
	return svc
}

// Summarize computes one SummaryResult for the query.
//
// The caller always receives its own copy: cached entries are shared
// across concurrent requests, so handing out the stored pointer would
// let one caller's decoration (SummarizeAll, SummarizeDaily) race with
// another's and leak back into the cache.
func (ss *SummaryService) Summarize(ctx context.Context, q SummaryQuery) (*SummaryResult, error) {
	key := ss.cacheKey(q)
	if ss.cache != nil {
		if cached, ok := ss.cache.Get(key); ok {
			out := *cached
			return &out, nil
		}
	}

	result, err := ss.compute(ctx, q)
	if err != nil {
		return nil, err
	}
	if ss.cache != nil {
		entry := *result
		ss.cache.Add(key, &entry)
	}
	return result, nil
}

// SummarizeAll computes one result per existing user over [from, to].
func (ss *SummaryService) SummarizeAll(ctx context.Context, from, to time.Time) ([]*SummaryResult, error) {
	users, err := ss.store.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	results := make([]*SummaryResult, 0, len(users))
	for _, u := range users {
		userID := u.ID
		summary, err := ss.Summarize(ctx, SummaryQuery{From: &from, To: &to, UserID: &userID})
		if err != nil {
			return nil, err
		}
		summary.UserName = u.Name
		summary.UserSurname = u.Surname
		results = append(results, summary)
	}
	return results, nil
}

// SummarizeDaily computes one result per (user, day) pair for every day
// in [from, min(to, today)]. An empty userIDs slice defaults to all
// existing users, optionally narrowed by projectID.
func (ss *SummaryService) SummarizeDaily(ctx context.Context, from, to time.Time, userIDs []UserID, projectID *ProjectID) ([]*SummaryResult, error) {
	if len(userIDs) == 0 {
		users, err := ss.store.ListUsers(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}
	}
	if projectID != nil {
		filtered := userIDs[:0]
		for _, id := range userIDs {
			u, err := ss.store.GetUser(ctx, id)
			if err != nil {
				return nil, err
			}
			if u != nil && u.ProjectID != nil && *u.ProjectID == *projectID {
				filtered = append(filtered, id)
			}
		}
		userIDs = filtered
	}

	end := DayStart(to)
	if today := DayStart(ss.clock.Now()); end.After(today) {
		end = today
	}

	var results []*SummaryResult
	for _, id := range userIDs {
		userID := id
		for day := DayStart(from); !day.After(end); day = day.AddDate(0, 0, 1) {
			bucket := day
			summary, err := ss.Summarize(ctx, SummaryQuery{From: &bucket, To: &bucket, UserID: &userID, ProjectID: projectID})
			if err != nil {
				return nil, err
			}
			summary.Date = bucket
			results = append(results, summary)
		}
	}
	return results, nil
}

// InvalidateAll drops every cached summary. Called after administrative
// edits that rewrite history (session edits, restores).
func (ss *SummaryService) InvalidateAll() {
	if ss.cache != nil {
		ss.cache.Purge()
	}
}

// =============================================================================
// COMPUTATION
// =============================================================================

func (ss *SummaryService) compute(ctx context.Context, q SummaryQuery) (*SummaryResult, error) {
	filter := SessionFilter{ProjectID: q.ProjectID}
	if q.UserID != nil {
		filter.UserIDs = []UserID{*q.UserID}
	}
	if q.From != nil {
		from := DayStart(*q.From)
		filter.StartFrom = &from
	}
	if q.To != nil {
		// The window end is the To day's last instant.
		to := DayEnd(*q.To)
		filter.StartTo = &to
	}

	sessions, err := ss.store.QuerySessions(ctx, filter)
	if err != nil {
		return nil, err
	}

	result := &SummaryResult{UserID: q.UserID}
	if q.From != nil {
		result.Date = DayStart(*q.From)
	} else {
		result.Date = DayStart(ss.clock.Now())
	}

	for _, s := range sessions {
		minutes, _ := s.DurationMinutes() // open sessions count as 0
		if s.Kind == KindBreak {
			result.BreakCount++
			result.TotalBreakMinutes += minutes
			continue
		}
		result.SessionCount++
		result.TotalWorkMinutes += minutes
	}
	result.SessionCount += result.BreakCount

	dayOffFilter := DayOffFilter{UserID: q.UserID}
	if q.From != nil {
		from := DayStart(*q.From)
		dayOffFilter.StartFrom = &from
	}
	if q.To != nil {
		to := DayStart(*q.To)
		dayOffFilter.EndTo = &to
	}
	requests, err := ss.store.QueryDayOffs(ctx, dayOffFilter)
	if err != nil {
		return nil, err
	}
	for _, r := range requests {
		result.DayOffRequestCount++
		days := r.Days()
		switch r.Status {
		case DayOffApproved:
			result.ApprovedDaysOff += days
		case DayOffRejected:
			result.RejectedDaysOff += days
		case DayOffPending:
			result.PendingDaysOff += days
		case DayOffCancelled:
			result.CancelledDaysOff += days
		case DayOffExecuted:
			result.ExecutedDaysOff += days
		}
	}

	if q.UserID != nil {
		if user, err := ss.store.GetUser(ctx, *q.UserID); err == nil && user != nil {
			result.UserName = user.Name
			result.UserSurname = user.Surname
			result.UserEmail = user.Email
		}
	}
	return result, nil
}

func (ss *SummaryService) cacheKey(q SummaryQuery) summaryKey {
	key := summaryKey{}
	if q.UserID != nil {
		key.User = string(*q.UserID)
	}
	if q.From != nil {
		key.From = DayStart(*q.From).Format("2006-01-02")
	}
	if q.To != nil {
		key.To = DayStart(*q.To).Format("2006-01-02")
	}
	if q.ProjectID != nil {
		key.Project = string(*q.ProjectID)
	}
	return key
}
