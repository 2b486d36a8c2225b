package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
)

// Scope narrows reads to one owner's calendar. The zero Scope sees every owner.
type Scope struct {
	OwnerID uuid.UUID
}

func OwnerScope(ownerID uuid.UUID) Scope {
	return Scope{OwnerID: ownerID}
}

func (s Scope) Restricted() bool {
	return s.OwnerID != uuid.Nil
}

type ListFilter struct {
	Scope    Scope
	Status   domain.Status
	OwnerID  uuid.UUID
	LeadID   uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
}

type Page struct {
	Limit  int
	Offset int
}

type AppointmentRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	List(ctx context.Context, filter ListFilter, page Page) ([]domain.Appointment, int, error)

	// ListRange returns appointments with scheduled_at in [from, to], oldest first.
	ListRange(ctx context.Context, scope Scope, from, to time.Time) ([]domain.Appointment, error)
	Upcoming(ctx context.Context, scope Scope, from time.Time, limit int) ([]domain.Appointment, error)

	CountByStatus(ctx context.Context, scope Scope, from, to *time.Time) (map[domain.Status]int, error)
	CountScheduledBetween(ctx context.Context, scope Scope, from, to time.Time) (int, error)

	// InOwnerTransaction runs fn with every other writer for ownerID held off
	// until fn returns.
	InOwnerTransaction(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context, tx OwnerTx) error) error
}

type OwnerTx interface {
	FindScheduledInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]domain.Appointment, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error)
	Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
	Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error)
}

type LeadRepository interface {
	// GetLead returns ErrNotFound both for missing leads and for leads
	// outside scope.
	GetLead(ctx context.Context, leadID uuid.UUID, scope Scope) (domain.Lead, error)
	TouchUpdatedAt(ctx context.Context, leadID uuid.UUID, at time.Time) error
}
