package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/service/appointments"
	"leadcal/backend/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}

// handleServiceError maps service errors onto status codes. Anything
// unrecognised is a 500 and the detail is not echoed to the client.
func handleServiceError(log *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	log = log.With(slog.String("request_id", requestID(r.Context())))

	var (
		vErr    *appointments.ValidationError
		cErr    *appointments.ConflictError
		ruleErr *domain.TimeRuleError
	)
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, "invalid_request", vErr.Error())
	case errors.Is(err, appointments.ErrLeadNotFound):
		writeError(w, http.StatusNotFound, "lead_not_found", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointments.ErrForbidden):
		log.Info("forbidden appointment access", slog.String("path", r.URL.Path))
		writeError(w, http.StatusForbidden, "forbidden", "you can only change your own appointments")
	case errors.As(err, &ruleErr):
		writeError(w, http.StatusUnprocessableEntity, string(ruleErr.Rule), err.Error())
	case errors.As(err, &cErr):
		log.Info("appointment conflict",
			slog.String("owner_id", cErr.OwnerID.String()),
			slog.Time("scheduled_at", cErr.ScheduledAt),
		)
		writeError(w, http.StatusConflict, "scheduling_conflict", err.Error())
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "scheduling_conflict", err.Error())
	case errors.Is(err, appointments.ErrOwnerBusy):
		log.Warn("owner calendar busy", slog.String("path", r.URL.Path))
		writeError(w, http.StatusConflict, "owner_busy", "calendar is being changed, please retry shortly")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusUnprocessableEntity, "invalid_status_transition", err.Error())
	default:
		log.Warn("request failed", slog.Any("err", err), slog.String("path", r.URL.Path))
		writeError(w, http.StatusInternalServerError, "internal_error", "")
	}
}
