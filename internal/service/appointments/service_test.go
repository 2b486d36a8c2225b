package appointments

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"leadcal/backend/internal/clock"
	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/events"
	"leadcal/backend/internal/lock"
	"leadcal/backend/internal/store"
	"leadcal/backend/internal/store/memory"
)

var (
	ownerU    = uuid.MustParse("00000000-0000-0000-0000-0000000000a1")
	ownerV    = uuid.MustParse("00000000-0000-0000-0000-0000000000a2")
	managerID = uuid.MustParse("00000000-0000-0000-0000-0000000000f1")
)

type fakeLeads struct {
	getFn   func(ctx context.Context, leadID uuid.UUID, scope store.Scope) (domain.Lead, error)
	touchFn func(ctx context.Context, leadID uuid.UUID, at time.Time) error
}

func (f *fakeLeads) GetLead(ctx context.Context, leadID uuid.UUID, scope store.Scope) (domain.Lead, error) {
	if f.getFn == nil {
		panic("GetLead not configured")
	}
	return f.getFn(ctx, leadID, scope)
}

func (f *fakeLeads) TouchUpdatedAt(ctx context.Context, leadID uuid.UUID, at time.Time) error {
	if f.touchFn == nil {
		panic("TouchUpdatedAt not configured")
	}
	return f.touchFn(ctx, leadID, at)
}

type fakeLocker struct {
	fn func(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error
}

func (f *fakeLocker) WithOwnerLock(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
	return f.fn(ctx, ownerID, fn)
}

type recordingPublisher struct {
	mu  sync.Mutex
	evs []events.Event
	err error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evs = append(p.evs, ev)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.evs))
	for _, ev := range p.evs {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	svc   *Service
	store *memory.Store
	clock *clock.Fixed
	pub   *recordingPublisher
	leadU domain.Lead
	leadV domain.Lead
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newHarness starts the clock on Monday 2025-03-03 08:00 UTC.
func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	st := memory.New()
	h := &harness{
		store: st,
		clock: clock.NewFixed(time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)),
		pub:   &recordingPublisher{},
	}
	h.leadU = st.PutLead(domain.Lead{OwnerID: ownerU, Name: "Acme"})
	h.leadV = st.PutLead(domain.Lead{OwnerID: ownerV, Name: "Globex"})

	base := []Option{
		WithClock(h.clock),
		WithLocation(time.UTC),
		WithPublisher(h.pub),
		WithLogger(quietLogger()),
	}
	h.svc = NewService(st, st, append(base, opts...)...)
	return h
}

func at(day, hour, minute int) time.Time {
	return time.Date(2025, 3, day, hour, minute, 0, 0, time.UTC)
}

func (h *harness) create(t *testing.T, req Requester, when time.Time) domain.Appointment {
	t.Helper()
	a, err := h.svc.Create(context.Background(), req, CreateInput{
		LeadID:      h.leadU.ID,
		OwnerID:     ownerU,
		Title:       "Discovery call",
		ScheduledAt: when,
	})
	if err != nil {
		t.Fatalf("Create(%v) error: %v", when, err)
	}
	return a
}

// seed writes an appointment without any rule checks.
func (h *harness) seed(t *testing.T, a domain.Appointment) domain.Appointment {
	t.Helper()
	if a.LeadID == uuid.Nil {
		a.LeadID = h.leadU.ID
	}
	if a.Title == "" {
		a.Title = "Seeded"
	}
	var out domain.Appointment
	err := h.store.InOwnerTransaction(context.Background(), a.OwnerID, func(ctx context.Context, tx store.OwnerTx) error {
		var err error
		out, err = tx.Insert(ctx, a)
		return err
	})
	if err != nil {
		t.Fatalf("seed error: %v", err)
	}
	return out
}

func TestCreate_ConflictBufferScenario(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)

	first := h.create(t, req, at(10, 10, 0))
	if first.Status != domain.StatusScheduled {
		t.Fatalf("status = %s, want %s", first.Status, domain.StatusScheduled)
	}

	_, err := h.svc.Create(context.Background(), req, CreateInput{
		LeadID:      h.leadU.ID,
		OwnerID:     ownerU,
		Title:       "Follow-up",
		ScheduledAt: at(10, 10, 20),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	var cErr *ConflictError
	if !errors.As(err, &cErr) {
		t.Fatalf("error type = %T, want *ConflictError", err)
	}
	if cErr.ExistingID != first.ID {
		t.Fatalf("existing id = %s, want %s", cErr.ExistingID, first.ID)
	}

	h.create(t, req, at(10, 10, 45))
}

func TestCreate_ConflictWindowIsClosed(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	h.create(t, req, at(10, 10, 0))

	_, err := h.svc.Create(context.Background(), req, CreateInput{
		LeadID: h.leadU.ID, OwnerID: ownerU, Title: "Edge", ScheduledAt: at(10, 10, 30),
	})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("exactly 30 minutes apart: err = %v, want conflict", err)
	}

	h.create(t, req, at(10, 10, 31))
}

func TestCreate_OtherOwnersAndInactiveDoNotConflict(t *testing.T) {
	h := newHarness(t)
	h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 11, 0), Status: domain.StatusCancelled})
	h.seed(t, domain.Appointment{OwnerID: ownerV, ScheduledAt: at(10, 11, 0), Status: domain.StatusScheduled})

	h.create(t, Unrestricted(managerID), at(10, 11, 0))
}

func TestCreate_TimeRules(t *testing.T) {
	h := newHarness(t)

	tests := []struct {
		name string
		when time.Time
		want error
	}{
		{name: "saturday", when: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC), want: domain.ErrWeekend},
		{name: "past", when: time.Date(2025, 3, 3, 7, 0, 0, 0, time.UTC), want: domain.ErrPastScheduling},
		{name: "too far", when: time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC), want: domain.ErrTooFarFuture},
		{name: "early", when: at(10, 8, 59), want: domain.ErrOutsideBusinessHours},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), Unrestricted(managerID), CreateInput{
				LeadID: h.leadU.ID, OwnerID: ownerU, Title: "Call", ScheduledAt: tt.when,
			})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestCreate_EvaluatesHoursInConfiguredLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*60*60)
	h := newHarness(t, WithLocation(loc))

	// 14:00 UTC is 09:00 in loc.
	a := h.create(t, Unrestricted(managerID), time.Date(2025, 3, 10, 14, 0, 0, 0, time.UTC))
	if a.ScheduledAt.Location() != loc || a.ScheduledAt.Hour() != 9 {
		t.Fatalf("scheduled_at = %v, want 09:00 in %s", a.ScheduledAt, loc)
	}

	_, err := h.svc.Create(context.Background(), Unrestricted(managerID), CreateInput{
		LeadID: h.leadU.ID, OwnerID: ownerU, Title: "Late", ScheduledAt: time.Date(2025, 3, 10, 23, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, domain.ErrOutsideBusinessHours) {
		t.Fatalf("err = %v, want %v", err, domain.ErrOutsideBusinessHours)
	}
}

func TestCreate_LeadVisibility(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Create(context.Background(), Unrestricted(managerID), CreateInput{
		LeadID: uuid.New(), OwnerID: ownerU, Title: "Call", ScheduledAt: at(10, 10, 0),
	})
	if !errors.Is(err, ErrLeadNotFound) || !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("unknown lead: err = %v, want %v", err, ErrLeadNotFound)
	}

	_, err = h.svc.Create(context.Background(), RestrictedTo(ownerU), CreateInput{
		LeadID: h.leadV.ID, Title: "Call", ScheduledAt: at(10, 10, 0),
	})
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("foreign lead: err = %v, want %v", err, ErrLeadNotFound)
	}
}

func TestCreate_LeadCheckPrecedesTimeRules(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Create(context.Background(), Unrestricted(managerID), CreateInput{
		LeadID: uuid.New(), OwnerID: ownerU, Title: "Call", ScheduledAt: time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, ErrLeadNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrLeadNotFound)
	}
}

func TestCreate_DefaultsOwnerAndTouchesLead(t *testing.T) {
	h := newHarness(t)

	a, err := h.svc.Create(context.Background(), RestrictedTo(ownerU), CreateInput{
		LeadID:      h.leadU.ID,
		Title:       "  Demo  ",
		Description: "Product walkthrough",
		ScheduledAt: at(11, 14, 0),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if a.OwnerID != ownerU {
		t.Fatalf("owner = %s, want %s", a.OwnerID, ownerU)
	}
	if a.Title != "Demo" {
		t.Fatalf("title = %q, want %q", a.Title, "Demo")
	}

	lead, err := h.store.GetLead(context.Background(), h.leadU.ID, store.Scope{})
	if err != nil {
		t.Fatalf("GetLead error: %v", err)
	}
	if !lead.UpdatedAt.Equal(h.clock.Now()) {
		t.Fatalf("lead updated_at = %v, want %v", lead.UpdatedAt, h.clock.Now())
	}

	if got := h.pub.types(); len(got) != 1 || got[0] != events.TypeAppointmentCreated {
		t.Fatalf("events = %v", got)
	}
}

func TestCreate_LeadTouchFailureIsNotFatal(t *testing.T) {
	st := memory.New()
	leadID := uuid.MustParse("00000000-0000-0000-0000-0000000000b9")
	var touched bool
	leads := &fakeLeads{
		getFn: func(ctx context.Context, id uuid.UUID, scope store.Scope) (domain.Lead, error) {
			return domain.Lead{ID: id, OwnerID: ownerU}, nil
		},
		touchFn: func(ctx context.Context, id uuid.UUID, at time.Time) error {
			touched = true
			return errors.New("leads table locked")
		},
	}
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := NewService(st, leads,
		WithClock(clock.NewFixed(time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC))),
		WithLocation(time.UTC),
		WithPublisher(pub),
		WithLogger(quietLogger()),
	)

	a, err := svc.Create(context.Background(), Unrestricted(managerID), CreateInput{
		LeadID: leadID, OwnerID: ownerU, Title: "Call", ScheduledAt: at(10, 10, 0),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !touched {
		t.Fatalf("lead touch not attempted")
	}
	if _, err := st.Get(context.Background(), a.ID); err != nil {
		t.Fatalf("appointment not persisted: %v", err)
	}
}

func TestCreate_FieldValidation(t *testing.T) {
	h := newHarness(t)
	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'x'
	}

	tests := []struct {
		name    string
		in      CreateInput
		wantMsg string
	}{
		{name: "missing lead", in: CreateInput{Title: "Call", ScheduledAt: at(10, 10, 0)}, wantMsg: "lead_id is required"},
		{name: "missing time", in: CreateInput{LeadID: h.leadU.ID, Title: "Call"}, wantMsg: "scheduled_at is required"},
		{name: "blank title", in: CreateInput{LeadID: h.leadU.ID, Title: "   ", ScheduledAt: at(10, 10, 0)}, wantMsg: "title is required"},
		{name: "short title", in: CreateInput{LeadID: h.leadU.ID, Title: "x", ScheduledAt: at(10, 10, 0)}, wantMsg: "title must be at least 2 characters"},
		{name: "long description", in: CreateInput{LeadID: h.leadU.ID, Title: "Call", Description: string(long), ScheduledAt: at(10, 10, 0)}, wantMsg: "description must be at most 1000 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Create(context.Background(), Unrestricted(managerID), tt.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T (%v), want *ValidationError", err, err)
			}
			if vErr.Error() != tt.wantMsg {
				t.Fatalf("error = %q, want %q", vErr.Error(), tt.wantMsg)
			}
		})
	}
}

func TestCreate_ConcurrentCallersKeepOwnerCalendarDisjoint(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker lock.Locker
	}{
		{name: "store only", locker: lock.Noop{}},
		{name: "local locker", locker: lock.NewLocal()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, WithLocker(tc.locker))
			req := Unrestricted(managerID)

			var wg sync.WaitGroup
			for i := 0; i < 60; i++ {
				when := at(10, 10, 0).Add(time.Duration(i%12) * 5 * time.Minute)
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := h.svc.Create(context.Background(), req, CreateInput{
						LeadID: h.leadU.ID, OwnerID: ownerU, Title: "Race", ScheduledAt: when,
					})
					if err != nil && !errors.Is(err, store.ErrConflict) {
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			rows, _, err := h.store.List(context.Background(), store.ListFilter{OwnerID: ownerU, Status: domain.StatusScheduled}, store.Page{})
			if err != nil {
				t.Fatalf("List error: %v", err)
			}
			if len(rows) == 0 {
				t.Fatalf("no appointment was created")
			}
			for i := range rows {
				for j := i + 1; j < len(rows); j++ {
					gap := rows[j].ScheduledAt.Sub(rows[i].ScheduledAt)
					if gap < 0 {
						gap = -gap
					}
					if gap <= domain.ConflictBuffer {
						t.Fatalf("%v and %v are %s apart", rows[i].ScheduledAt, rows[j].ScheduledAt, gap)
					}
				}
			}
		})
	}
}

func TestCancel_AppendsReason(t *testing.T) {
	h := newHarness(t)
	a, err := h.svc.Create(context.Background(), RestrictedTo(ownerU), CreateInput{
		LeadID: h.leadU.ID, Title: "Discovery", Description: "Discovery call", ScheduledAt: at(10, 10, 0),
	})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := h.svc.Cancel(context.Background(), RestrictedTo(ownerU), a.ID, "Client rescheduled")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if want := "Discovery call\n\nCancellation reason: Client rescheduled"; got.Description != want {
		t.Fatalf("description = %q, want %q", got.Description, want)
	}
	if got.Status != domain.StatusCancelled {
		t.Fatalf("status = %s, want %s", got.Status, domain.StatusCancelled)
	}

	types := h.pub.types()
	if types[len(types)-1] != events.TypeAppointmentCancelled {
		t.Fatalf("last event = %s", types[len(types)-1])
	}
}

func TestCancel_ReasonCannotOverflowDescription(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, Description: strings.Repeat("d", 1000), ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})

	_, err := h.svc.Cancel(context.Background(), req, a.ID, strings.Repeat("r", 5000))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}

	got, err := h.svc.Get(context.Background(), req, a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Status != domain.StatusScheduled || len(got.Description) != 1000 {
		t.Fatalf("appointment changed: status=%s len(description)=%d", got.Status, len(got.Description))
	}

	if _, err := h.svc.Cancel(context.Background(), req, a.ID, ""); err != nil {
		t.Fatalf("Cancel without reason: %v", err)
	}
}

func TestCancel_WithoutReasonKeepsDescription(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, Description: "Keep me", ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})

	got, err := h.svc.Cancel(context.Background(), Unrestricted(managerID), a.ID, "")
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if got.Description != "Keep me" {
		t.Fatalf("description = %q", got.Description)
	}
}

func TestCancel_CompletedFails(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusCompleted})

	_, err := h.svc.Cancel(context.Background(), Unrestricted(managerID), a.ID, "late")
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want %v", err, domain.ErrInvalidTransition)
	}
}

func TestUpdate_Authorization(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})
	title := "Renamed"

	_, err := h.svc.Update(context.Background(), RestrictedTo(ownerV), a.ID, Patch{Title: &title})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("restricted other owner: err = %v, want %v", err, ErrForbidden)
	}

	got, err := h.svc.Update(context.Background(), RestrictedTo(ownerU), a.ID, Patch{Title: &title})
	if err != nil {
		t.Fatalf("restricted owner: %v", err)
	}
	if got.Title != title {
		t.Fatalf("title = %q", got.Title)
	}

	if _, err := h.svc.Update(context.Background(), Unrestricted(managerID), a.ID, Patch{Title: &title}); err != nil {
		t.Fatalf("unrestricted: %v", err)
	}
}

func TestUpdate_NotFoundBeforeForbidden(t *testing.T) {
	h := newHarness(t)
	title := "Renamed"
	_, err := h.svc.Update(context.Background(), RestrictedTo(ownerV), uuid.New(), Patch{Title: &title})
	if !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("err = %v, want %v", err, ErrAppointmentNotFound)
	}
}

func TestUpdate_Reschedule(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	a := h.create(t, req, at(10, 10, 0))
	h.create(t, req, at(10, 11, 0))

	moved := at(10, 10, 10)
	got, err := h.svc.Update(context.Background(), req, a.ID, Patch{ScheduledAt: &moved})
	if err != nil {
		t.Fatalf("small move should ignore itself: %v", err)
	}
	if !got.ScheduledAt.Equal(moved) {
		t.Fatalf("scheduled_at = %v, want %v", got.ScheduledAt, moved)
	}

	clash := at(10, 11, 15)
	if _, err := h.svc.Update(context.Background(), req, a.ID, Patch{ScheduledAt: &clash}); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	weekend := time.Date(2025, 3, 16, 10, 0, 0, 0, time.UTC)
	if _, err := h.svc.Update(context.Background(), req, a.ID, Patch{ScheduledAt: &weekend}); !errors.Is(err, domain.ErrWeekend) {
		t.Fatalf("err = %v, want %v", err, domain.ErrWeekend)
	}

	stored, err := h.store.Get(context.Background(), a.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if !stored.ScheduledAt.Equal(moved) {
		t.Fatalf("failed updates leaked: scheduled_at = %v", stored.ScheduledAt)
	}
}

func TestUpdate_StatusMachine(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	st := func(s domain.Status) *domain.Status { return &s }

	completed := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusCompleted})
	for _, target := range domain.AllStatuses {
		_, err := h.svc.Update(context.Background(), req, completed.ID, Patch{Status: st(target)})
		if !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("completed -> %s: err = %v, want %v", target, err, domain.ErrInvalidTransition)
		}
	}

	scheduled := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(11, 10, 0), Status: domain.StatusScheduled})
	_, err := h.svc.Update(context.Background(), req, scheduled.ID, Patch{Status: st(domain.StatusNoShow)})
	var tErr *domain.InvalidTransitionError
	if !errors.As(err, &tErr) || tErr.From != domain.StatusScheduled || tErr.To != domain.StatusNoShow {
		t.Fatalf("scheduled -> no_show: err = %v", err)
	}

	same, err := h.svc.Update(context.Background(), req, scheduled.ID, Patch{Status: st(domain.StatusScheduled)})
	if err != nil || same.Status != domain.StatusScheduled {
		t.Fatalf("no-op status patch: %v", err)
	}

	done, err := h.svc.Update(context.Background(), req, scheduled.ID, Patch{Status: st(domain.StatusCompleted)})
	if err != nil || done.Status != domain.StatusCompleted {
		t.Fatalf("scheduled -> completed: %v", err)
	}

	noShow := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(12, 10, 0), Status: domain.StatusNoShow})
	back, err := h.svc.Update(context.Background(), req, noShow.ID, Patch{Status: st(domain.StatusScheduled)})
	if err != nil || back.Status != domain.StatusScheduled {
		t.Fatalf("no_show -> scheduled: %v", err)
	}

	if _, err := h.svc.Update(context.Background(), req, noShow.ID, Patch{Status: st("archived")}); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
}

func TestUpdate_ReactivationChecksConflict(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	cancelled := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusCancelled})
	h.create(t, req, at(10, 10, 10))

	scheduled := domain.StatusScheduled
	_, err := h.svc.Update(context.Background(), req, cancelled.ID, Patch{Status: &scheduled})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	moved := at(10, 15, 0)
	got, err := h.svc.Update(context.Background(), req, cancelled.ID, Patch{Status: &scheduled, ScheduledAt: &moved})
	if err != nil {
		t.Fatalf("reactivate with new time: %v", err)
	}
	if got.Status != domain.StatusScheduled || !got.ScheduledAt.Equal(moved) {
		t.Fatalf("got %+v", got)
	}
}

func TestUpdate_ReactivationOfPastAppointmentSkipsTimeRules(t *testing.T) {
	h := newHarness(t)
	req := Unrestricted(managerID)
	cancelled := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(4, 10, 0), Status: domain.StatusCancelled})
	h.clock.Set(at(20, 8, 0))

	scheduled := domain.StatusScheduled
	got, err := h.svc.Update(context.Background(), req, cancelled.ID, Patch{Status: &scheduled})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Status != domain.StatusScheduled || !got.ScheduledAt.Equal(at(4, 10, 0)) {
		t.Fatalf("got status=%s at=%v", got.Status, got.ScheduledAt)
	}
}

func TestUpdate_PartialFields(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, Title: "Original", Description: "Notes", ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})
	req := Unrestricted(managerID)

	title := "New title"
	got, err := h.svc.Update(context.Background(), req, a.ID, Patch{Title: &title})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Description != "Notes" || !got.ScheduledAt.Equal(a.ScheduledAt) || got.Status != a.Status {
		t.Fatalf("untouched fields changed: %+v", got)
	}

	empty := ""
	got, err = h.svc.Update(context.Background(), req, a.ID, Patch{Description: &empty})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.Description != "" || got.Title != title {
		t.Fatalf("clear description: %+v", got)
	}

	short := "x"
	if _, err := h.svc.Update(context.Background(), req, a.ID, Patch{Title: &short}); err == nil {
		t.Fatalf("expected validation error for short title")
	}

	got, err = h.svc.Update(context.Background(), req, a.ID, Patch{})
	if err != nil || got.ID != a.ID {
		t.Fatalf("empty patch: %v", err)
	}
}

func TestUpdate_LockNotAcquiredSurfacesOwnerBusy(t *testing.T) {
	h := newHarness(t, WithLocker(&fakeLocker{
		fn: func(ctx context.Context, ownerID uuid.UUID, fn func(ctx context.Context) error) error {
			return lock.ErrNotAcquired
		},
	}))
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})

	title := "Renamed"
	_, err := h.svc.Update(context.Background(), Unrestricted(managerID), a.ID, Patch{Title: &title})
	if !errors.Is(err, ErrOwnerBusy) {
		t.Fatalf("err = %v, want %v", err, ErrOwnerBusy)
	}
}

func TestCreate_CallerCancelWhileWaitingIsNotOwnerBusy(t *testing.T) {
	l := lock.NewLocal()
	h := newHarness(t, WithLocker(l))

	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = l.WithOwnerLock(context.Background(), ownerU, func(ctx context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := h.svc.Create(ctx, RestrictedTo(ownerU), CreateInput{LeadID: h.leadU.ID, Title: "Call", ScheduledAt: at(10, 10, 0)})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want %v", err, context.DeadlineExceeded)
	}
	if errors.Is(err, ErrOwnerBusy) {
		t.Fatalf("caller timeout reported as %v", ErrOwnerBusy)
	}
}

func TestGet_RestrictedSeesOnlyOwn(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})

	if _, err := h.svc.Get(context.Background(), RestrictedTo(ownerU), a.ID); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if _, err := h.svc.Get(context.Background(), RestrictedTo(ownerV), a.ID); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("foreign Get: err = %v, want %v", err, ErrAppointmentNotFound)
	}
	if _, err := h.svc.Get(context.Background(), Unrestricted(managerID), a.ID); err != nil {
		t.Fatalf("manager Get: %v", err)
	}
}

func TestList_PaginatesAndScopes(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 5; i++ {
		h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10+i, 10, 0), Status: domain.StatusScheduled})
	}
	h.seed(t, domain.Appointment{OwnerID: ownerV, LeadID: h.leadV.ID, ScheduledAt: at(10, 10, 0), Status: domain.StatusScheduled})

	res, err := h.svc.List(context.Background(), RestrictedTo(ownerU), ListInput{Page: 2, Limit: 2})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if res.Total != 5 || res.TotalPages != 3 || len(res.Appointments) != 2 {
		t.Fatalf("result = total %d pages %d len %d", res.Total, res.TotalPages, len(res.Appointments))
	}
	if !res.Appointments[0].ScheduledAt.Equal(at(12, 10, 0)) {
		t.Fatalf("page 2 starts at %v", res.Appointments[0].ScheduledAt)
	}

	all, err := h.svc.List(context.Background(), Unrestricted(managerID), ListInput{Limit: 500})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if all.Total != 6 || all.Limit != maxPageSize || all.Page != 1 {
		t.Fatalf("unrestricted result = %+v", all)
	}

	byLead, err := h.svc.List(context.Background(), Unrestricted(managerID), ListInput{LeadID: h.leadV.ID})
	if err != nil || byLead.Total != 1 {
		t.Fatalf("lead filter: total=%d err=%v", byLead.Total, err)
	}

	if _, err := h.svc.List(context.Background(), Unrestricted(managerID), ListInput{Status: "archived"}); err == nil {
		t.Fatalf("expected validation error for unknown status")
	}
}

func TestUpcoming_OnlyFutureScheduled(t *testing.T) {
	h := newHarness(t)
	h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(1, 10, 0), Status: domain.StatusScheduled})
	h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(10, 10, 0), Status: domain.StatusCancelled})
	for i := 0; i < 7; i++ {
		h.seed(t, domain.Appointment{OwnerID: ownerU, ScheduledAt: at(4+i, 10, 0), Status: domain.StatusScheduled})
	}

	rows, err := h.svc.Upcoming(context.Background(), Unrestricted(managerID), 0)
	if err != nil {
		t.Fatalf("Upcoming error: %v", err)
	}
	if len(rows) != defaultUpcomingLimit {
		t.Fatalf("len = %d, want %d", len(rows), defaultUpcomingLimit)
	}
	if !rows[0].ScheduledAt.Equal(at(4, 10, 0)) {
		t.Fatalf("first = %v", rows[0].ScheduledAt)
	}
	for _, r := range rows {
		if r.Status != domain.StatusScheduled || r.ScheduledAt.Before(h.clock.Now()) {
			t.Fatalf("unexpected row %+v", r)
		}
	}
}

func TestService_WrapsStoreErrors(t *testing.T) {
	boom := errors.New("db down")
	svc := NewService(&failingRepo{err: boom}, &fakeLeads{}, WithLogger(quietLogger()))

	if _, err := svc.Get(context.Background(), Unrestricted(managerID), uuid.New()); !errors.Is(err, boom) {
		t.Fatalf("Get err = %v, want wrapped %v", err, boom)
	}
	if _, err := svc.CalendarView(context.Background(), Unrestricted(managerID), 2025, 3, domain.CalendarViewMonth); !errors.Is(err, boom) {
		t.Fatalf("CalendarView err = %v, want wrapped %v", err, boom)
	}
}

type failingRepo struct {
	store.AppointmentRepository
	err error
}

func (f *failingRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return domain.Appointment{}, f.err
}

func (f *failingRepo) ListRange(ctx context.Context, scope store.Scope, from, to time.Time) ([]domain.Appointment, error) {
	return nil, f.err
}
