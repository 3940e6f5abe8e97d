/*
csv.go - Summary export

PURPOSE:
  Streams a per-user/per-day summary as a CSV download for payroll and
  reporting tools. Hour columns carry two-decimal fractions computed
  with decimal arithmetic, never floats.
*/
package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/warp/worktime-engine/engine"
)

var csvHeader = []string{
	"date", "user_id", "name", "surname", "email",
	"work_hours", "break_hours", "work_minutes", "break_minutes",
	"sessions", "breaks",
	"approved_days_off", "pending_days_off", "executed_days_off",
}

// ExportSummaryCSV writes the daily summary for the requested window as
// text/csv. Admin only; the same from/to/userId/projectId parameters as
// the JSON endpoints apply.
func (h *Handler) ExportSummaryCSV(w http.ResponseWriter, r *http.Request) {
	if !h.requireAdmin(w, r) {
		return
	}
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

	filename := fmt.Sprintf("summary_%s_%s.csv", from.Format(dateLayout), to.Format(dateLayout))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return
	}
	for _, res := range results {
		userID := ""
		if res.UserID != nil {
			userID = string(*res.UserID)
		}
		record := []string{
			res.Date.Format(dateLayout),
			userID,
			res.UserName,
			res.UserSurname,
			res.UserEmail,
			res.WorkHours().String(),
			res.BreakHours().String(),
			strconv.Itoa(res.TotalWorkMinutes),
			strconv.Itoa(res.TotalBreakMinutes),
			strconv.Itoa(res.SessionCount),
			strconv.Itoa(res.BreakCount),
			strconv.Itoa(res.ApprovedDaysOff),
			strconv.Itoa(res.PendingDaysOff),
			strconv.Itoa(res.ExecutedDaysOff),
		}
		if err := cw.Write(record); err != nil {
			return
		}
	}
	cw.Flush()
}
