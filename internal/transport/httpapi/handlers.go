package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/service/appointments"
)

type appointmentsService interface {
	Create(ctx context.Context, req appointments.Requester, in appointments.CreateInput) (domain.Appointment, error)
	Update(ctx context.Context, req appointments.Requester, id uuid.UUID, patch appointments.Patch) (domain.Appointment, error)
	Cancel(ctx context.Context, req appointments.Requester, id uuid.UUID, reason string) (domain.Appointment, error)
	Get(ctx context.Context, req appointments.Requester, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, req appointments.Requester, in appointments.ListInput) (appointments.ListResult, error)
	Upcoming(ctx context.Context, req appointments.Requester, limit int) ([]domain.Appointment, error)
	Stats(ctx context.Context, req appointments.Requester, in appointments.StatsInput) (appointments.Stats, error)
	CalendarView(ctx context.Context, req appointments.Requester, year, month int, view domain.CalendarView) (appointments.CalendarResult, error)
}

type appointmentsHandler struct {
	svc appointmentsService
	log *slog.Logger
	// loc interprets bare dates in query strings.
	loc *time.Location
}

func (h *appointmentsHandler) create(w http.ResponseWriter, r *http.Request) {
	var body createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	leadID, err := uuid.Parse(body.LeadID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lead_id", "lead_id must be a valid UUID")
		return
	}
	var ownerID uuid.UUID
	if strings.TrimSpace(body.OwnerID) != "" {
		if ownerID, err = uuid.Parse(body.OwnerID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_owner_id", "owner_id must be a valid UUID")
			return
		}
	}
	scheduledAt, err := time.Parse(time.RFC3339, body.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at must be an RFC 3339 timestamp")
		return
	}

	appt, err := h.svc.Create(r.Context(), requesterFrom(r.Context()), appointments.CreateInput{
		LeadID:      leadID,
		OwnerID:     ownerID,
		Title:       body.Title,
		Description: body.Description,
		ScheduledAt: scheduledAt,
	})
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
}

func (h *appointmentsHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}
	appt, err := h.svc.Get(r.Context(), requesterFrom(r.Context()), id)
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentsHandler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	var body updateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	patch := appointments.Patch{Title: body.Title}
	if body.Description.Set {
		desc := body.Description.Value
		patch.Description = &desc
	}
	if body.ScheduledAt != nil {
		at, err := time.Parse(time.RFC3339, *body.ScheduledAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_at", "scheduled_at must be an RFC 3339 timestamp")
			return
		}
		patch.ScheduledAt = &at
	}
	if body.Status != nil {
		st := domain.Status(strings.TrimSpace(*body.Status))
		patch.Status = &st
	}

	appt, err := h.svc.Update(r.Context(), requesterFrom(r.Context()), id, patch)
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentsHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := appointmentID(w, r)
	if !ok {
		return
	}

	// The body is optional; an empty one (chunked or not) decodes to io.EOF.
	var body cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return
	}

	appt, err := h.svc.Cancel(r.Context(), requesterFrom(r.Context()), id, strings.TrimSpace(body.Reason))
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
}

func (h *appointmentsHandler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := appointments.ListInput{Status: domain.Status(q.Get("status"))}

	var err error
	if in.OwnerID, err = optionalUUID(q, "owner_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_owner_id", err.Error())
		return
	}
	if in.LeadID, err = optionalUUID(q, "lead_id"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_lead_id", err.Error())
		return
	}
	if in.DateFrom, in.DateTo, err = dateRange(q, h.loc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
		return
	}
	if in.Page, err = optionalInt(q, "page"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_page", err.Error())
		return
	}
	if in.Limit, err = optionalInt(q, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}

	res, err := h.svc.List(r.Context(), requesterFrom(r.Context()), in)
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toListResponse(res))
}

func (h *appointmentsHandler) upcoming(w http.ResponseWriter, r *http.Request) {
	limit, err := optionalInt(r.URL.Query(), "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_limit", err.Error())
		return
	}
	rows, err := h.svc.Upcoming(r.Context(), requesterFrom(r.Context()), limit)
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": toAppointmentResponses(rows)})
}

func (h *appointmentsHandler) stats(w http.ResponseWriter, r *http.Request) {
	from, to, err := dateRange(r.URL.Query(), h.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date_range", err.Error())
		return
	}
	s, err := h.svc.Stats(r.Context(), requesterFrom(r.Context()), appointments.StatsInput{DateFrom: from, DateTo: to})
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStatsResponse(s))
}

func (h *appointmentsHandler) calendar(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_year", "year must be an integer")
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_month", "month must be an integer")
		return
	}
	view, err := domain.ParseCalendarView(q.Get("view"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_view", err.Error())
		return
	}

	res, err := h.svc.CalendarView(r.Context(), requesterFrom(r.Context()), year, month, view)
	if err != nil {
		handleServiceError(h.log, w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCalendarResponse(res))
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func optionalUUID(q url.Values, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s must be a valid UUID", key)
	}
	return id, nil
}

func optionalInt(q url.Values, key string) (int, error) {
	raw := strings.TrimSpace(q.Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%s must be a non-negative integer", key)
	}
	return n, nil
}

// dateRange reads date_from and date_to. A bare date for date_to covers the
// whole day.
func dateRange(q url.Values, loc *time.Location) (*time.Time, *time.Time, error) {
	from, err := parseDateParam(q.Get("date_from"), loc, false)
	if err != nil {
		return nil, nil, fmt.Errorf("date_from: %v", err)
	}
	to, err := parseDateParam(q.Get("date_to"), loc, true)
	if err != nil {
		return nil, nil, fmt.Errorf("date_to: %v", err)
	}
	return from, to, nil
}

func parseDateParam(raw string, loc *time.Location, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, loc)
	if err != nil {
		return nil, errors.New("must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		d = domain.EndOfDay(d)
	}
	return &d, nil
}
