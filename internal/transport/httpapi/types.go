package httpapi

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/service/appointments"
)

type createAppointmentRequest struct {
	LeadID      string `json:"lead_id"`
	OwnerID     string `json:"owner_id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	ScheduledAt string `json:"scheduled_at"`
}

type updateAppointmentRequest struct {
	Title       *string        `json:"title"`
	Description optionalString `json:"description"`
	ScheduledAt *string        `json:"scheduled_at"`
	Status      *string        `json:"status"`
}

type cancelAppointmentRequest struct {
	Reason string `json:"reason"`
}

// optionalString tells an absent field apart from an explicit null.
type optionalString struct {
	Set   bool
	Value string
}

func (o *optionalString) UnmarshalJSON(b []byte) error {
	o.Set = true
	if string(b) == "null" {
		o.Value = ""
		return nil
	}
	return json.Unmarshal(b, &o.Value)
}

type appointmentResponse struct {
	ID          uuid.UUID `json:"id"`
	LeadID      uuid.UUID `json:"lead_id"`
	OwnerID     uuid.UUID `json:"owner_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toAppointmentResponse(a domain.Appointment) appointmentResponse {
	return appointmentResponse{
		ID:          a.ID,
		LeadID:      a.LeadID,
		OwnerID:     a.OwnerID,
		Title:       a.Title,
		Description: a.Description,
		ScheduledAt: a.ScheduledAt,
		Status:      string(a.Status),
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}
}

func toAppointmentResponses(rows []domain.Appointment) []appointmentResponse {
	out := make([]appointmentResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, toAppointmentResponse(a))
	}
	return out
}

type paginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"total_pages"`
}

type listAppointmentsResponse struct {
	Appointments []appointmentResponse `json:"appointments"`
	Pagination   paginationResponse    `json:"pagination"`
}

func toListResponse(res appointments.ListResult) listAppointmentsResponse {
	return listAppointmentsResponse{
		Appointments: toAppointmentResponses(res.Appointments),
		Pagination: paginationResponse{
			Page:       res.Page,
			Limit:      res.Limit,
			Total:      res.Total,
			TotalPages: res.TotalPages,
		},
	}
}

type calendarResponse struct {
	View         string                `json:"view"`
	Year         int                   `json:"year"`
	Month        int                   `json:"month"`
	RangeStart   time.Time             `json:"range_start"`
	RangeEnd     time.Time             `json:"range_end"`
	Appointments []appointmentResponse `json:"appointments"`
	TotalCount   int                   `json:"total_count"`
}

func toCalendarResponse(res appointments.CalendarResult) calendarResponse {
	return calendarResponse{
		View:         string(res.View),
		Year:         res.Year,
		Month:        int(res.Month),
		RangeStart:   res.RangeStart,
		RangeEnd:     res.RangeEnd,
		Appointments: toAppointmentResponses(res.Appointments),
		TotalCount:   res.TotalCount,
	}
}

type statsResponse struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
	UpcomingToday int            `json:"upcoming_today"`
	UpcomingWeek  int            `json:"upcoming_week"`
}

func toStatsResponse(s appointments.Stats) statsResponse {
	by := make(map[string]int, len(s.ByStatus))
	for k, v := range s.ByStatus {
		by[string(k)] = v
	}
	return statsResponse{
		Total:         s.Total,
		ByStatus:      by,
		UpcomingToday: s.UpcomingToday,
		UpcomingWeek:  s.UpcomingWeek,
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
