package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/store"
)

// hasConflict reports the first scheduled appointment of ownerID whose start
// lies within the conflict buffer of candidate. The window is built from the
// candidate alone; existing appointments have no duration here.
func hasConflict(ctx context.Context, tx store.OwnerTx, ownerID uuid.UUID, candidate time.Time, excludeID uuid.UUID) (*domain.Appointment, error) {
	from, to := domain.ConflictWindow(candidate)
	found, err := tx.FindScheduledInWindow(ctx, ownerID, from, to, excludeID)
	if err != nil {
		return nil, fmt.Errorf("find conflicting appointments: %w", err)
	}
	if len(found) == 0 {
		return nil, nil
	}
	return &found[0], nil
}

func ensureNoConflict(ctx context.Context, tx store.OwnerTx, ownerID uuid.UUID, candidate time.Time, excludeID uuid.UUID) error {
	existing, err := hasConflict(ctx, tx, ownerID, candidate, excludeID)
	if err != nil {
		return err
	}
	if existing != nil {
		return &ConflictError{
			OwnerID:     ownerID,
			ScheduledAt: candidate,
			ExistingID:  existing.ID,
			ExistingAt:  existing.ScheduledAt,
		}
	}
	return nil
}
