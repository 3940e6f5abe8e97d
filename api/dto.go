/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATE HANDLING:
  Instants (session start/end) travel as RFC3339. Calendar dates
  (day-off ranges, summary windows) travel as bare "2006-01-02" and are
  parsed with parseDate in handlers.go.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/worktime-engine/engine"
)

// =============================================================================
// SESSIONS
// =============================================================================

type StartSessionRequest struct {
	UserID string `json:"userId"`
	Kind   string `json:"kind"` // "work" or "break"
}

type PastSessionRequest struct {
	UserID    string    `json:"userId"`
	Kind      string    `json:"kind"`
	StartTime time.Time `json:"startTime"`
}

type EditSessionRequest struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	Status    string     `json:"status"`
	Kind      string     `json:"kind"`
}

type SessionDTO struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Kind      string     `json:"kind"`
	Status    string     `json:"status"`
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	Minutes   int        `json:"minutes"` // 0 while open
}

func toSessionDTO(s *engine.Session) SessionDTO {
	minutes, _ := s.DurationMinutes()
	return SessionDTO{
		ID:        string(s.ID),
		UserID:    string(s.UserID),
		Kind:      string(s.Kind),
		Status:    string(s.Status),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		CreatedAt: s.CreatedAt,
		Minutes:   minutes,
	}
}

func toSessionDTOs(sessions []*engine.Session) []SessionDTO {
	out := make([]SessionDTO, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, toSessionDTO(s))
	}
	return out
}

type BreakBudgetDTO struct {
	UserID           string `json:"userId"`
	UsedMinutes      int    `json:"usedMinutes"`
	MaxMinutes       int    `json:"maxMinutes"`
	RemainingMinutes int    `json:"remainingMinutes"`
}

// =============================================================================
// DAY-OFF REQUESTS
// =============================================================================

type CreateDayOffRequest struct {
	UserID    string `json:"userId"`
	DateStart string `json:"dateStart"` // 2006-01-02
	DateEnd   string `json:"dateEnd"`
	Reason    string `json:"reason"`
}

type EditDayOffRequest struct {
	DateStart string `json:"dateStart"`
	DateEnd   string `json:"dateEnd"`
	Reason    string `json:"reason"`
}

type ChangeDayOffStatusRequest struct {
	Status string `json:"status"` // approved, rejected, cancelled
}

type DayOffDTO struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	DateStart string `json:"dateStart"`
	DateEnd   string `json:"dateEnd"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
	Days      int    `json:"days"`
}

func toDayOffDTO(r *engine.DayOffRequest) DayOffDTO {
	return DayOffDTO{
		ID:        string(r.ID),
		UserID:    string(r.UserID),
		DateStart: r.DateStart.Format(dateLayout),
		DateEnd:   r.DateEnd.Format(dateLayout),
		Status:    string(r.Status),
		Reason:    r.Reason,
		Days:      r.Days(),
	}
}

func toDayOffDTOs(requests []*engine.DayOffRequest) []DayOffDTO {
	out := make([]DayOffDTO, 0, len(requests))
	for _, r := range requests {
		out = append(out, toDayOffDTO(r))
	}
	return out
}

// =============================================================================
// SUMMARY
// =============================================================================

type SummaryDTO struct {
	UserID      string `json:"userId,omitempty"`
	UserName    string `json:"userName,omitempty"`
	UserSurname string `json:"userSurname,omitempty"`
	UserEmail   string `json:"userEmail,omitempty"`
	Date        string `json:"date"`

	TotalWorkMinutes  int    `json:"totalWorkMinutes"`
	TotalBreakMinutes int    `json:"totalBreakMinutes"`
	WorkHours         string `json:"workHours"`  // decimal, 2 places
	BreakHours        string `json:"breakHours"` // decimal, 2 places
	SessionCount      int    `json:"sessionCount"`
	BreakCount        int    `json:"breakCount"`

	DayOffRequestCount int `json:"dayOffRequestCount"`
	ApprovedDaysOff    int `json:"approvedDaysOff"`
	RejectedDaysOff    int `json:"rejectedDaysOff"`
	PendingDaysOff     int `json:"pendingDaysOff"`
	CancelledDaysOff   int `json:"cancelledDaysOff"`
	ExecutedDaysOff    int `json:"executedDaysOff"`
}

func toSummaryDTO(r *engine.SummaryResult) SummaryDTO {
	dto := SummaryDTO{
		UserName:    r.UserName,
		UserSurname: r.UserSurname,
		UserEmail:   r.UserEmail,
		Date:        r.Date.Format(dateLayout),

		TotalWorkMinutes:  r.TotalWorkMinutes,
		TotalBreakMinutes: r.TotalBreakMinutes,
		WorkHours:         r.WorkHours().String(),
		BreakHours:        r.BreakHours().String(),
		SessionCount:      r.SessionCount,
		BreakCount:        r.BreakCount,

		DayOffRequestCount: r.DayOffRequestCount,
		ApprovedDaysOff:    r.ApprovedDaysOff,
		RejectedDaysOff:    r.RejectedDaysOff,
		PendingDaysOff:     r.PendingDaysOff,
		CancelledDaysOff:   r.CancelledDaysOff,
		ExecutedDaysOff:    r.ExecutedDaysOff,
	}
	if r.UserID != nil {
		dto.UserID = string(*r.UserID)
	}
	return dto
}

func toSummaryDTOs(results []*engine.SummaryResult) []SummaryDTO {
	out := make([]SummaryDTO, 0, len(results))
	for _, r := range results {
		out = append(out, toSummaryDTO(r))
	}
	return out
}

// =============================================================================
// USERS, PROJECTS, SETTINGS
// =============================================================================

type UserDTO struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Surname   string `json:"surname"`
	Email     string `json:"email"`
	ProjectID string `json:"projectId,omitempty"`
}

func toUserDTO(u *engine.User) UserDTO {
	dto := UserDTO{
		ID:      string(u.ID),
		Name:    u.Name,
		Surname: u.Surname,
		Email:   u.Email,
	}
	if u.ProjectID != nil {
		dto.ProjectID = string(*u.ProjectID)
	}
	return dto
}

type ProjectDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type SettingsDTO struct {
	MaxBreakMinutesPerDay int    `json:"maxBreakMinutesPerDay"`
	MaxWorkHoursPerDay    int    `json:"maxWorkHoursPerDay"`
	LatestStartHour       int    `json:"latestStartHour"`
	SyncHour              int    `json:"syncHour"`
	SyncFrequency         string `json:"syncFrequency"`
	SyncDays              []int  `json:"syncDays,omitempty"`
}

func toSettingsDTO(s *engine.Settings) SettingsDTO {
	dto := SettingsDTO{
		MaxBreakMinutesPerDay: s.MaxBreakMinutesPerDay,
		MaxWorkHoursPerDay:    s.MaxWorkHoursPerDay,
		LatestStartHour:       s.LatestStartHour,
		SyncHour:              s.SyncHour,
		SyncFrequency:         string(s.SyncFrequency),
	}
	for _, d := range s.SyncDays {
		dto.SyncDays = append(dto.SyncDays, int(d))
	}
	return dto
}

func (dto SettingsDTO) toSettings() *engine.Settings {
	s := &engine.Settings{
		MaxBreakMinutesPerDay: dto.MaxBreakMinutesPerDay,
		MaxWorkHoursPerDay:    dto.MaxWorkHoursPerDay,
		LatestStartHour:       dto.LatestStartHour,
		SyncHour:              dto.SyncHour,
		SyncFrequency:         engine.SyncFrequency(dto.SyncFrequency),
	}
	for _, d := range dto.SyncDays {
		s.SyncDays = append(s.SyncDays, time.Weekday(d))
	}
	return s
}

// =============================================================================
// MISC
// =============================================================================

type ErrorResponse struct {
	Error string `json:"error"`
}

type CountResponse struct {
	Count int `json:"count"`
}

type UserIDsResponse struct {
	UserIDs []string `json:"userIds"`
}

type SyncResponse struct {
	Upserted int `json:"upserted"`
	Removed  int `json:"removed"`
}
