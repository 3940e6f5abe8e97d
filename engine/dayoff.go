/*
dayoff.go - Day-off request lifecycle

PURPOSE:
  Leave requests with an overlap-checked, role-gated state machine:

    Pending --admin--> Approved | Rejected
    Pending/Approved --owner or admin--> Cancelled
    (rollover, see sweeper.go: Approved -> Executed, Pending -> Rejected)

  Per user, no two non-cancelled existing requests may share a calendar
  day. Edits re-validate the range, re-run the overlap check against all
  other requests, and reset the status to Pending.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DayOffService manages day-off requests.
type DayOffService struct {
	store Store
	clock Clock
}

func NewDayOffService(store Store, clock Clock) *DayOffService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &DayOffService{store: store, clock: clock}
}

// Request files a new day-off request in Pending status. The range is
// day-inclusive; dateEnd before dateStart is rejected, and any overlap
// with an existing non-cancelled request for the user is a conflict.
func (ds *DayOffService) Request(ctx context.Context, userID UserID, dateStart, dateEnd time.Time, reason string) (*DayOffRequest, error) {
	start, end := DayStart(dateStart), DayStart(dateEnd)
	if end.Before(start) {
		return nil, &InvalidSpanError{Start: start, End: end}
	}
	user, err := ds.store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, notFoundf("user %s", userID)
	}

	overlaps, err := ds.store.HasDayOffOverlap(ctx, userID, start, end, "")
	if err != nil {
		return nil, err
	}
	if overlaps {
		return nil, &OverlapError{UserID: userID, DateStart: start, DateEnd: end}
	}

	request := &DayOffRequest{
		ID:        DayOffID(uuid.NewString()),
		UserID:    userID,
		DateStart: start,
		DateEnd:   end,
		Status:    DayOffPending,
		Reason:    reason,
		Existence: Exist,
	}
	if err := ds.store.InsertDayOff(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// ChangeStatus transitions a request. Cancellation is allowed for the
// owning user or an admin; Approved/Rejected are admin-only.
func (ds *DayOffService) ChangeStatus(ctx context.Context, id DayOffID, status DayOffStatus, caller Identity) (*DayOffRequest, error) {
	switch status {
	case DayOffApproved, DayOffRejected, DayOffCancelled:
	default:
		return nil, invalidArgf("cannot set status %q directly", status)
	}

	request, err := ds.existing(ctx, id)
	if err != nil {
		return nil, err
	}

	if status == DayOffCancelled {
		if !caller.CanActFor(request.UserID) {
			return nil, unauthorizedf("only the owner or an admin may cancel a request")
		}
	} else if !caller.IsAdmin() {
		return nil, unauthorizedf("only an admin may approve or reject requests")
	}

	request.Status = status
	if err := ds.store.UpdateDayOff(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Edit rewrites a request's range and reason. Owner or admin only. The
// overlap check excludes the request itself, and any successful edit
// resets the status to Pending for re-approval.
func (ds *DayOffService) Edit(ctx context.Context, id DayOffID, newStart, newEnd time.Time, newReason string, caller Identity) (*DayOffRequest, error) {
	start, end := DayStart(newStart), DayStart(newEnd)
	if end.Before(start) {
		return nil, &InvalidSpanError{Start: start, End: end}
	}

	request, err := ds.existing(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.CanActFor(request.UserID) {
		return nil, unauthorizedf("only the owner or an admin may edit a request")
	}

	overlaps, err := ds.store.HasDayOffOverlap(ctx, request.UserID, start, end, request.ID)
	if err != nil {
		return nil, err
	}
	if overlaps {
		return nil, &OverlapError{UserID: request.UserID, DateStart: start, DateEnd: end}
	}

	request.DateStart = start
	request.DateEnd = end
	request.Reason = newReason
	request.Status = DayOffPending
	if err := ds.store.UpdateDayOff(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

// Filter lists requests, newest range first, with offset/limit paging.
func (ds *DayOffService) Filter(ctx context.Context, f DayOffFilter) ([]*DayOffRequest, error) {
	return ds.store.QueryDayOffs(ctx, f)
}

// Get returns an existing request by id.
func (ds *DayOffService) Get(ctx context.Context, id DayOffID) (*DayOffRequest, error) {
	return ds.existing(ctx, id)
}

// ListForUser returns the user's existing requests.
func (ds *DayOffService) ListForUser(ctx context.Context, userID UserID) ([]*DayOffRequest, error) {
	return ds.store.QueryDayOffs(ctx, DayOffFilter{UserID: &userID})
}

// Delete soft-deletes a request.
func (ds *DayOffService) Delete(ctx context.Context, id DayOffID) error {
	request, err := ds.store.GetDayOff(ctx, id)
	if err != nil {
		return err
	}
	if request == nil {
		return notFoundf("day-off request %s", id)
	}
	request.Existence = Deleted
	return ds.store.UpdateDayOff(ctx, request)
}

// Restore brings a soft-deleted request back with its prior fields.
// No overlap re-check happens here; see DESIGN.md.
func (ds *DayOffService) Restore(ctx context.Context, id DayOffID) (*DayOffRequest, error) {
	request, err := ds.store.GetDayOff(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil || request.Existence != Deleted {
		return nil, notFoundf("no deleted day-off request %s", id)
	}
	request.Existence = Exist
	if err := ds.store.UpdateDayOff(ctx, request); err != nil {
		return nil, err
	}
	return request, nil
}

func (ds *DayOffService) existing(ctx context.Context, id DayOffID) (*DayOffRequest, error) {
	request, err := ds.store.GetDayOff(ctx, id)
	if err != nil {
		return nil, err
	}
	if request == nil || request.Existence == Deleted {
		return nil, notFoundf("day-off request %s", id)
	}
	return request, nil
}
