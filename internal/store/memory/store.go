// Package memory is an in-process store used by tests and local runs.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/store"
)

type Store struct {
	mu    sync.RWMutex
	appts map[uuid.UUID]domain.Appointment
	leads map[uuid.UUID]domain.Lead

	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex

	now func() time.Time
}

var (
	_ store.AppointmentRepository = (*Store)(nil)
	_ store.LeadRepository        = (*Store)(nil)
)

func New() *Store {
	return &Store{
		appts: make(map[uuid.UUID]domain.Appointment),
		leads: make(map[uuid.UUID]domain.Lead),
		locks: make(map[uuid.UUID]*sync.Mutex),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// PutLead inserts or replaces a lead.
func (s *Store) PutLead(l domain.Lead) domain.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.Must(uuid.NewV7())
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	if l.UpdatedAt.IsZero() {
		l.UpdatedAt = l.CreatedAt
	}
	s.leads[l.ID] = l
	return l
}

func (s *Store) InsertLeads(ctx context.Context, leads []domain.Lead) error {
	for i := range leads {
		leads[i] = s.PutLead(leads[i])
	}
	return nil
}

func (s *Store) GetLead(ctx context.Context, leadID uuid.UUID, scope store.Scope) (domain.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[leadID]
	if !ok {
		return domain.Lead{}, store.ErrNotFound
	}
	if scope.Restricted() && l.OwnerID != scope.OwnerID {
		return domain.Lead{}, store.ErrNotFound
	}
	return l, nil
}

func (s *Store) TouchUpdatedAt(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.leads[leadID]
	if !ok {
		return store.ErrNotFound
	}
	l.UpdatedAt = at
	s.leads[leadID] = l
	return nil
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (s *Store) List(ctx context.Context, filter store.ListFilter, page store.Page) ([]domain.Appointment, int, error) {
	matched := s.collect(func(a domain.Appointment) bool {
		if !inScope(filter.Scope, a) {
			return false
		}
		if filter.Status != "" && a.Status != filter.Status {
			return false
		}
		if filter.OwnerID != uuid.Nil && a.OwnerID != filter.OwnerID {
			return false
		}
		if filter.LeadID != uuid.Nil && a.LeadID != filter.LeadID {
			return false
		}
		return inBounds(a.ScheduledAt, filter.DateFrom, filter.DateTo)
	})

	total := len(matched)
	if page.Offset >= total {
		return []domain.Appointment{}, total, nil
	}
	end := total
	if page.Limit > 0 && page.Offset+page.Limit < total {
		end = page.Offset + page.Limit
	}
	return matched[page.Offset:end], total, nil
}

func (s *Store) ListRange(ctx context.Context, scope store.Scope, from, to time.Time) ([]domain.Appointment, error) {
	return s.collect(func(a domain.Appointment) bool {
		return inScope(scope, a) && inBounds(a.ScheduledAt, &from, &to)
	}), nil
}

func (s *Store) Upcoming(ctx context.Context, scope store.Scope, from time.Time, limit int) ([]domain.Appointment, error) {
	out := s.collect(func(a domain.Appointment) bool {
		return inScope(scope, a) && a.Status == domain.StatusScheduled && !a.ScheduledAt.Before(from)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountByStatus(ctx context.Context, scope store.Scope, from, to *time.Time) (map[domain.Status]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[domain.Status]int)
	for _, a := range s.appts {
		if inScope(scope, a) && inBounds(a.ScheduledAt, from, to) {
			counts[a.Status]++
		}
	}
	return counts, nil
}

func (s *Store) CountScheduledBetween(ctx context.Context, scope store.Scope, from, to time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.appts {
		if inScope(scope, a) && a.Status == domain.StatusScheduled && inBounds(a.ScheduledAt, &from, &to) {
			n++
		}
	}
	return n, nil
}

func (s *Store) InOwnerTransaction(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context, tx store.OwnerTx) error) error {
	l := s.ownerLock(ownerID)
	l.Lock()
	defer l.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &ownerTx{store: s, pending: make(map[uuid.UUID]domain.Appointment)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	for id, a := range tx.pending {
		s.appts[id] = a
	}
	s.mu.Unlock()
	return nil
}

func (s *Store) ownerLock(ownerID uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[ownerID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[ownerID] = l
	}
	return l
}

func (s *Store) collect(keep func(domain.Appointment) bool) []domain.Appointment {
	s.mu.RLock()
	out := make([]domain.Appointment, 0)
	for _, a := range s.appts {
		if keep(a) {
			out = append(out, a)
		}
	}
	s.mu.RUnlock()
	sortByScheduledAt(out)
	return out
}

type ownerTx struct {
	store   *Store
	pending map[uuid.UUID]domain.Appointment
}

func (t *ownerTx) lookup(id uuid.UUID) (domain.Appointment, bool) {
	if a, ok := t.pending[id]; ok {
		return a, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.appts[id]
	return a, ok
}

func (t *ownerTx) FindScheduledInWindow(ctx context.Context, ownerID uuid.UUID, from, to time.Time, excludeID uuid.UUID) ([]domain.Appointment, error) {
	seen := make(map[uuid.UUID]domain.Appointment)
	t.store.mu.RLock()
	for id, a := range t.store.appts {
		seen[id] = a
	}
	t.store.mu.RUnlock()
	for id, a := range t.pending {
		seen[id] = a
	}

	out := make([]domain.Appointment, 0)
	for id, a := range seen {
		if id == excludeID || a.OwnerID != ownerID || a.Status != domain.StatusScheduled {
			continue
		}
		if inBounds(a.ScheduledAt, &from, &to) {
			out = append(out, a)
		}
	}
	sortByScheduledAt(out)
	return out, nil
}

func (t *ownerTx) GetForUpdate(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := t.lookup(id)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *ownerTx) Insert(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if appt.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return domain.Appointment{}, err
		}
		appt.ID = id
	}
	if _, exists := t.lookup(appt.ID); exists {
		return domain.Appointment{}, store.ErrConflict
	}
	now := t.store.now()
	appt.CreatedAt = now
	appt.UpdatedAt = now
	t.pending[appt.ID] = appt
	return appt, nil
}

func (t *ownerTx) Update(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	existing, ok := t.lookup(appt.ID)
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	appt.CreatedAt = existing.CreatedAt
	appt.UpdatedAt = t.store.now()
	t.pending[appt.ID] = appt
	return appt, nil
}

func inScope(scope store.Scope, a domain.Appointment) bool {
	return !scope.Restricted() || a.OwnerID == scope.OwnerID
}

func inBounds(t time.Time, from, to *time.Time) bool {
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func sortByScheduledAt(appts []domain.Appointment) {
	sort.Slice(appts, func(i, j int) bool {
		if appts[i].ScheduledAt.Equal(appts[j].ScheduledAt) {
			return appts[i].ID.String() < appts[j].ID.String()
		}
		return appts[i].ScheduledAt.Before(appts[j].ScheduledAt)
	})
}
