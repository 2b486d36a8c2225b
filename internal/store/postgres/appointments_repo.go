package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/store"
)

const doubleBookingConstraint = "appointments_no_double_booking"

type AppointmentRepo struct {
	db *bun.DB
}

var _ store.AppointmentRepository = (*AppointmentRepo)(nil)

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type ownerTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := r.db.NewSelect().Model(&a).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (r *AppointmentRepo) List(ctx context.Context, filter store.ListFilter, page store.Page) ([]domain.Appointment, int, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	q = applyScope(q, filter.Scope)
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.OwnerID != uuid.Nil {
		q = q.Where("owner_id = ?", filter.OwnerID)
	}
	if filter.LeadID != uuid.Nil {
		q = q.Where("lead_id = ?", filter.LeadID)
	}
	q = applyBounds(q, filter.DateFrom, filter.DateTo)
	q = q.OrderExpr("scheduled_at ASC, id ASC")
	if page.Limit > 0 {
		q = q.Limit(page.Limit)
	}
	if page.Offset > 0 {
		q = q.Offset(page.Offset)
	}

	total, err := q.ScanAndCount(ctx)
	if err != nil {
		return nil, 0, err
	}
	return rows, total, nil
}

func (r *AppointmentRepo) ListRange(ctx context.Context, scope store.Scope, from, to time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	q = applyScope(q, scope)
	err := q.
		Where("scheduled_at >= ?", from).
		Where("scheduled_at <= ?", to).
		OrderExpr("scheduled_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) Upcoming(ctx context.Context, scope store.Scope, from time.Time, limit int) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows)
	q = applyScope(q, scope)
	q = q.
		Where("status = ?", domain.StatusScheduled).
		Where("scheduled_at >= ?", from).
		OrderExpr("scheduled_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

type statusCount struct {
	Status domain.Status `bun:"status"`
	Count  int           `bun:"count"`
}

func (r *AppointmentRepo) CountByStatus(ctx context.Context, scope store.Scope, from, to *time.Time) (map[domain.Status]int, error) {
	var rows []statusCount
	q := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count")
	q = applyScope(q, scope)
	q = applyBounds(q, from, to)
	if err := q.Group("status").Scan(ctx, &rows); err != nil {
		return nil, err
	}

	out := make(map[domain.Status]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

func (r *AppointmentRepo) CountScheduledBetween(ctx context.Context, scope store.Scope, from, to time.Time) (int, error) {
	q := r.db.NewSelect().Model((*domain.Appointment)(nil))
	q = applyScope(q, scope)
	return q.
		Where("status = ?", domain.StatusScheduled).
		Where("scheduled_at >= ?", from).
		Where("scheduled_at <= ?", to).
		Count(ctx)
}

func (r *AppointmentRepo) InOwnerTransaction(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context, tx store.OwnerTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockOwnerCalendar(ctx, tx, ownerID); err != nil {
			return err
		}
		return fn(ctx, ownerTx{tx: tx})
	})
}

func lockOwnerCalendar(ctx context.Context, tx bun.Tx, ownerID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", ownerID.String()).Exec(ctx)
	return err
}

func (t ownerTx) FindScheduledInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := t.tx.NewSelect().
		Model(&rows).
		Where("owner_id = ?", ownerID).
		Where("status = ?", domain.StatusScheduled).
		Where("scheduled_at >= ?", from).
		Where("scheduled_at <= ?", to)
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.OrderExpr("scheduled_at ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return rows, nil
}

func (t ownerTx) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	var a domain.Appointment
	err := t.tx.NewSelect().Model(&a).Where("id = ?", id).For("UPDATE").Limit(1).Scan(ctx)
	if err != nil {
		return domain.Appointment{}, mapNoRows(err)
	}
	return a, nil
}

func (t ownerTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	if _, err := t.tx.NewInsert().Model(&m).Returning("*").Exec(ctx); err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	return m, nil
}

func (t ownerTx) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := t.tx.NewUpdate().
		Model(&m).
		Column("title", "description", "scheduled_at", "status", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Appointment{}, mapWriteError(err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Appointment{}, store.ErrNotFound
	}
	return m, nil
}

func applyScope(q *bun.SelectQuery, scope store.Scope) *bun.SelectQuery {
	if scope.Restricted() {
		q = q.Where("owner_id = ?", scope.OwnerID)
	}
	return q
}

func applyBounds(q *bun.SelectQuery, from, to *time.Time) *bun.SelectQuery {
	if from != nil {
		q = q.Where("scheduled_at >= ?", *from)
	}
	if to != nil {
		q = q.Where("scheduled_at <= ?", *to)
	}
	return q
}

func mapNoRows(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			if pgErr.ConstraintName == doubleBookingConstraint {
				return store.ErrConflict
			}
		case "23505":
			return store.ErrConflict
		case "23503":
			return store.ErrNotFound
		}
	}
	return err
}
