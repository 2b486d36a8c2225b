package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type Appointment struct {
	bun.BaseModel `bun:"table:appointments" json:"-"`

	ID          uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	LeadID      uuid.UUID `bun:"lead_id,notnull,type:uuid" json:"lead_id"`
	OwnerID     uuid.UUID `bun:"owner_id,notnull,type:uuid" json:"owner_id"`
	Title       string    `bun:"title,notnull" json:"title"`
	Description string    `bun:"description,nullzero" json:"description,omitempty"`
	ScheduledAt time.Time `bun:"scheduled_at,notnull" json:"scheduled_at"`
	Status      Status    `bun:"status,notnull" json:"status"`
	CreatedAt   time.Time `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt   time.Time `bun:"updated_at,notnull" json:"updated_at"`
}

func (a *Appointment) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

// Lead is the slice of the lead record the scheduler reads. Leads are owned
// by the CRM; only updated_at is ever written from here.
type Lead struct {
	bun.BaseModel `bun:"table:leads"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	OwnerID   uuid.UUID `bun:"owner_id,notnull,type:uuid"`
	Name      string    `bun:"name,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}
