// Package events publishes appointment lifecycle events for downstream
// consumers. Delivery is best effort: a failed publish never fails the write
// that produced it.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
)

const (
	TypeAppointmentCreated   = "appointment.created"
	TypeAppointmentUpdated   = "appointment.updated"
	TypeAppointmentCancelled = "appointment.cancelled"
)

type Event struct {
	ID          uuid.UUID     `json:"event_id"`
	Type        string        `json:"event_type"`
	OccurredAt  time.Time     `json:"occurred_at"`
	Appointment AppointmentV1 `json:"appointment"`
}

type AppointmentV1 struct {
	ID          uuid.UUID     `json:"id"`
	LeadID      uuid.UUID     `json:"lead_id"`
	OwnerID     uuid.UUID     `json:"owner_id"`
	Title       string        `json:"title"`
	ScheduledAt time.Time     `json:"scheduled_at"`
	Status      domain.Status `json:"status"`
}

func New(eventType string, a domain.Appointment, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		OccurredAt: at,
		Appointment: AppointmentV1{
			ID:          a.ID,
			LeadID:      a.LeadID,
			OwnerID:     a.OwnerID,
			Title:       a.Title,
			ScheduledAt: a.ScheduledAt,
			Status:      a.Status,
		},
	}
}

func (e Event) Payload() ([]byte, error) {
	return json.Marshal(e)
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }
