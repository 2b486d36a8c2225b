package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/store"
)

type LeadRepo struct {
	db *bun.DB
}

var _ store.LeadRepository = (*LeadRepo)(nil)

func NewLeadRepo(db *bun.DB) *LeadRepo {
	return &LeadRepo{db: db}
}

func (r *LeadRepo) GetLead(ctx context.Context, leadID uuid.UUID, scope store.Scope) (domain.Lead, error) {
	var l domain.Lead
	q := r.db.NewSelect().Model(&l).Where("id = ?", leadID)
	if scope.Restricted() {
		q = q.Where("owner_id = ?", scope.OwnerID)
	}
	if err := q.Limit(1).Scan(ctx); err != nil {
		return domain.Lead{}, mapNoRows(err)
	}
	return l, nil
}

func (r *LeadRepo) TouchUpdatedAt(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Lead)(nil)).
		Set("updated_at = ?", at).
		Where("id = ?", leadID).
		Exec(ctx)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// InsertLeads bulk-inserts leads; used by seeding.
func (r *LeadRepo) InsertLeads(ctx context.Context, leads []domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for i := range leads {
		if leads[i].ID == uuid.Nil {
			leads[i].ID = uuid.Must(uuid.NewV7())
		}
		if leads[i].CreatedAt.IsZero() {
			leads[i].CreatedAt = now
		}
		if leads[i].UpdatedAt.IsZero() {
			leads[i].UpdatedAt = now
		}
	}
	_, err := r.db.NewInsert().Model(&leads).Exec(ctx)
	return err
}
