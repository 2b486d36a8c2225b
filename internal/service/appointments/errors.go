package appointments

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"leadcal/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", store.ErrNotFound)
	ErrLeadNotFound        = fmt.Errorf("lead %w", store.ErrNotFound)

	// ErrForbidden is returned when a restricted requester touches another
	// owner's appointment.
	ErrForbidden = errors.New("forbidden")

	// ErrOwnerBusy means the owner's calendar lock could not be taken in time.
	ErrOwnerBusy = errors.New("owner calendar is busy")
)

type ConflictError struct {
	OwnerID     uuid.UUID
	ScheduledAt time.Time
	ExistingID  uuid.UUID
	ExistingAt  time.Time
}

func (e *ConflictError) Error() string {
	if e.ExistingID == uuid.Nil {
		return fmt.Sprintf("owner already has an appointment within %s of %s",
			conflictBufferText, e.ScheduledAt.Format(time.RFC3339))
	}
	return fmt.Sprintf("owner already has an appointment at %s, within %s of %s",
		e.ExistingAt.Format(time.RFC3339), conflictBufferText, e.ScheduledAt.Format(time.RFC3339))
}

func (e *ConflictError) Is(target error) bool {
	return target == store.ErrConflict
}

const conflictBufferText = "30 minutes"

var fieldNames = map[string]string{
	"Title":       "title",
	"Description": "description",
}

// fromValidator turns validator output into a single ValidationError naming
// the first offending field.
func fromValidator(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	name := fieldNames[fe.Field()]
	if name == "" {
		name = strings.ToLower(fe.Field())
	}
	switch fe.Tag() {
	case "required":
		return validationError(name + " is required")
	case "min":
		return validationError(fmt.Sprintf("%s must be at least %s characters", name, fe.Param()))
	case "max":
		return validationError(fmt.Sprintf("%s must be at most %s characters", name, fe.Param()))
	}
	return validationError(name + " is invalid")
}
