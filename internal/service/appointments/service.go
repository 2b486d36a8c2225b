package appointments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"leadcal/backend/internal/clock"
	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/events"
	"leadcal/backend/internal/lock"
	"leadcal/backend/internal/store"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100

	defaultUpcomingLimit = 5
	maxUpcomingLimit     = 50
)

type Service struct {
	repo     store.AppointmentRepository
	leads    store.LeadRepository
	locker   lock.Locker
	events   events.Publisher
	clock    clock.Clock
	loc      *time.Location
	validate *validator.Validate
	log      *slog.Logger
}

type Option func(*Service)

func WithLocker(l lock.Locker) Option {
	return func(s *Service) { s.locker = l }
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.events = p }
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the zone whose wall clock defines weekdays, business
// hours and calendar boundaries.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithLogger(log *slog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(repo store.AppointmentRepository, leads store.LeadRepository, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		leads:    leads,
		locker:   lock.Noop{},
		events:   events.Noop{},
		clock:    clock.System{},
		loc:      time.Local,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(slog.String("component", "service.appointments"))
	return s
}

func (s *Service) now() time.Time {
	return s.clock.Now().In(s.loc)
}

type CreateInput struct {
	LeadID uuid.UUID
	// OwnerID defaults to the requester when empty.
	OwnerID     uuid.UUID
	Title       string
	Description string
	ScheduledAt time.Time
}

type fieldsInput struct {
	Title       string `validate:"required,min=2,max=200"`
	Description string `validate:"max=1000"`
}

func (s *Service) Create(ctx context.Context, req Requester, in CreateInput) (domain.Appointment, error) {
	if in.LeadID == uuid.Nil {
		return domain.Appointment{}, validationError("lead_id is required")
	}
	if in.ScheduledAt.IsZero() {
		return domain.Appointment{}, validationError("scheduled_at is required")
	}
	title := strings.TrimSpace(in.Title)
	if err := s.validate.Struct(fieldsInput{Title: title, Description: in.Description}); err != nil {
		return domain.Appointment{}, fromValidator(err)
	}

	ownerID := in.OwnerID
	if ownerID == uuid.Nil {
		ownerID = req.ID
	}
	if ownerID == uuid.Nil {
		return domain.Appointment{}, validationError("owner_id is required")
	}

	if _, err := s.leads.GetLead(ctx, in.LeadID, req.Scope()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, ErrLeadNotFound
		}
		return domain.Appointment{}, fmt.Errorf("load lead: %w", err)
	}

	now := s.now()
	scheduledAt := in.ScheduledAt.In(s.loc)
	if err := domain.ValidateScheduleTime(scheduledAt, now); err != nil {
		return domain.Appointment{}, err
	}

	var created domain.Appointment
	err := s.inOwnerCalendar(ctx, ownerID, func(ctx context.Context, tx store.OwnerTx) error {
		if err := ensureNoConflict(ctx, tx, ownerID, scheduledAt, uuid.Nil); err != nil {
			return err
		}
		a, err := tx.Insert(ctx, domain.Appointment{
			LeadID:      in.LeadID,
			OwnerID:     ownerID,
			Title:       title,
			Description: in.Description,
			ScheduledAt: scheduledAt,
			Status:      domain.StatusScheduled,
		})
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return &ConflictError{OwnerID: ownerID, ScheduledAt: scheduledAt}
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrLeadNotFound
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	if err := s.leads.TouchUpdatedAt(ctx, in.LeadID, now); err != nil {
		s.log.Warn("lead touch failed",
			slog.Any("err", err),
			slog.String("lead_id", in.LeadID.String()),
			slog.String("appointment_id", created.ID.String()),
		)
	}
	s.publish(ctx, events.TypeAppointmentCreated, created)

	return created, nil
}

// Patch carries the fields to change. A nil field is left untouched; a
// non-nil Description pointing at "" clears it.
type Patch struct {
	Title       *string
	Description *string
	ScheduledAt *time.Time
	Status      *domain.Status
}

func (p Patch) empty() bool {
	return p.Title == nil && p.Description == nil && p.ScheduledAt == nil && p.Status == nil
}

func (s *Service) Update(ctx context.Context, req Requester, id uuid.UUID, patch Patch) (domain.Appointment, error) {
	if err := s.validatePatch(&patch); err != nil {
		return domain.Appointment{}, err
	}
	return s.apply(ctx, req, id, events.TypeAppointmentUpdated, func(domain.Appointment) Patch {
		return patch
	})
}

func (s *Service) Cancel(ctx context.Context, req Requester, id uuid.UUID, reason string) (domain.Appointment, error) {
	cancelled := domain.StatusCancelled
	return s.apply(ctx, req, id, events.TypeAppointmentCancelled, func(cur domain.Appointment) Patch {
		p := Patch{Status: &cancelled}
		if reason != "" {
			desc := cur.Description + "\n\nCancellation reason: " + reason
			p.Description = &desc
		}
		return p
	})
}

func (s *Service) validatePatch(p *Patch) error {
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		p.Title = &title
		if err := s.validate.StructPartial(fieldsInput{Title: title}, "Title"); err != nil {
			return fromValidator(err)
		}
	}
	if p.Description != nil {
		if err := s.validate.StructPartial(fieldsInput{Description: *p.Description}, "Description"); err != nil {
			return fromValidator(err)
		}
	}
	if p.ScheduledAt != nil && p.ScheduledAt.IsZero() {
		return validationError("scheduled_at must be a valid time")
	}
	if p.Status != nil && !p.Status.Valid() {
		return validationError(fmt.Sprintf("unknown status %q", *p.Status))
	}
	return nil
}

// apply loads the appointment, checks the requester, then builds and applies
// the patch while holding the owner's calendar.
func (s *Service) apply(ctx context.Context, req Requester, id uuid.UUID, eventType string, build func(cur domain.Appointment) Patch) (domain.Appointment, error) {
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, ErrAppointmentNotFound
		}
		return domain.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}
	if !req.CanMutate(existing.OwnerID) {
		return domain.Appointment{}, ErrForbidden
	}

	var updated domain.Appointment
	err = s.inOwnerCalendar(ctx, existing.OwnerID, func(ctx context.Context, tx store.OwnerTx) error {
		cur, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return fmt.Errorf("lock appointment: %w", err)
		}

		patch := build(cur)
		if patch.empty() {
			updated = cur
			return nil
		}

		next, err := s.patched(ctx, tx, cur, patch)
		if err != nil {
			return err
		}

		a, err := tx.Update(ctx, next)
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return &ConflictError{OwnerID: cur.OwnerID, ScheduledAt: next.ScheduledAt}
			}
			if errors.Is(err, store.ErrNotFound) {
				return ErrAppointmentNotFound
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		updated = a
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}

	s.publish(ctx, eventType, updated)
	return updated, nil
}

func (s *Service) patched(ctx context.Context, tx store.OwnerTx, cur domain.Appointment, patch Patch) (domain.Appointment, error) {
	next := cur
	if patch.Title != nil {
		next.Title = *patch.Title
	}
	if patch.Description != nil {
		// A cancellation reason is appended to what is stored, so the bound
		// is checked on the result.
		if err := s.validate.StructPartial(fieldsInput{Description: *patch.Description}, "Description"); err != nil {
			return domain.Appointment{}, fromValidator(err)
		}
		next.Description = *patch.Description
	}

	conflictChecked := false
	if patch.ScheduledAt != nil {
		at := patch.ScheduledAt.In(s.loc)
		if err := domain.ValidateScheduleTime(at, s.now()); err != nil {
			return domain.Appointment{}, err
		}
		if err := ensureNoConflict(ctx, tx, cur.OwnerID, at, cur.ID); err != nil {
			return domain.Appointment{}, err
		}
		next.ScheduledAt = at
		conflictChecked = true
	}

	if patch.Status != nil && (*patch.Status != cur.Status || cur.Status.Terminal()) {
		if err := domain.ValidateTransition(cur.Status, *patch.Status); err != nil {
			return domain.Appointment{}, err
		}
		next.Status = *patch.Status
	}

	// Coming back to scheduled re-enters the owner's calendar.
	if !conflictChecked && cur.Status != domain.StatusScheduled && next.Status == domain.StatusScheduled {
		if err := ensureNoConflict(ctx, tx, cur.OwnerID, next.ScheduledAt, cur.ID); err != nil {
			return domain.Appointment{}, err
		}
	}
	return next, nil
}

func (s *Service) inOwnerCalendar(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context, tx store.OwnerTx) error) error {
	err := s.locker.WithOwnerLock(ctx, ownerID, func(ctx context.Context) error {
		return s.repo.InOwnerTransaction(ctx, ownerID, fn)
	})
	if errors.Is(err, lock.ErrNotAcquired) {
		return ErrOwnerBusy
	}
	return err
}

func (s *Service) publish(ctx context.Context, eventType string, a domain.Appointment) {
	if err := s.events.Publish(ctx, events.New(eventType, a, s.now())); err != nil {
		s.log.Warn("event publish failed",
			slog.Any("err", err),
			slog.String("event_type", eventType),
			slog.String("appointment_id", a.ID.String()),
		)
	}
}

func (s *Service) Get(ctx context.Context, req Requester, id uuid.UUID) (domain.Appointment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Appointment{}, ErrAppointmentNotFound
		}
		return domain.Appointment{}, fmt.Errorf("get appointment: %w", err)
	}
	if req.Restricted() && a.OwnerID != req.ID {
		return domain.Appointment{}, ErrAppointmentNotFound
	}
	return a, nil
}

type ListInput struct {
	Status   domain.Status
	OwnerID  uuid.UUID
	LeadID   uuid.UUID
	DateFrom *time.Time
	DateTo   *time.Time
	Page     int
	Limit    int
}

type ListResult struct {
	Appointments []domain.Appointment
	Total        int
	Page         int
	Limit        int
	TotalPages   int
}

func (s *Service) List(ctx context.Context, req Requester, in ListInput) (ListResult, error) {
	if in.Status != "" && !in.Status.Valid() {
		return ListResult{}, validationError(fmt.Sprintf("unknown status %q", in.Status))
	}
	if in.DateFrom != nil && in.DateTo != nil && in.DateTo.Before(*in.DateFrom) {
		return ListResult{}, validationError("date_to must not be before date_from")
	}

	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	rows, total, err := s.repo.List(ctx, store.ListFilter{
		Scope:    req.Scope(),
		Status:   in.Status,
		OwnerID:  in.OwnerID,
		LeadID:   in.LeadID,
		DateFrom: in.DateFrom,
		DateTo:   in.DateTo,
	}, store.Page{Limit: limit, Offset: (page - 1) * limit})
	if err != nil {
		return ListResult{}, fmt.Errorf("list appointments: %w", err)
	}

	return ListResult{
		Appointments: rows,
		Total:        total,
		Page:         page,
		Limit:        limit,
		TotalPages:   int(math.Ceil(float64(total) / float64(limit))),
	}, nil
}

func (s *Service) Upcoming(ctx context.Context, req Requester, limit int) ([]domain.Appointment, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if limit > maxUpcomingLimit {
		limit = maxUpcomingLimit
	}
	rows, err := s.repo.Upcoming(ctx, req.Scope(), s.now(), limit)
	if err != nil {
		return nil, fmt.Errorf("upcoming appointments: %w", err)
	}
	return rows, nil
}
