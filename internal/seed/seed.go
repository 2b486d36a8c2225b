// Package seed fills a store with fake leads and appointments for demos and
// load checks.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"

	"leadcal/backend/internal/domain"
	"leadcal/backend/internal/service/appointments"
	"leadcal/backend/internal/store"
)

type LeadWriter interface {
	InsertLeads(ctx context.Context, leads []domain.Lead) error
}

type Creator interface {
	Create(ctx context.Context, req appointments.Requester, in appointments.CreateInput) (domain.Appointment, error)
}

// Owners returns n fake sales-rep ids.
func Owners(f *gofakeit.Faker, n int) []uuid.UUID {
	out := make([]uuid.UUID, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, uuid.MustParse(f.UUID()))
	}
	return out
}

// Leads spreads n fake leads across owners.
func Leads(f *gofakeit.Faker, owners []uuid.UUID, n int) []domain.Lead {
	out := make([]domain.Lead, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, domain.Lead{
			OwnerID: owners[i%len(owners)],
			Name:    f.Company(),
		})
	}
	return out
}

// SlotTime picks a bookable instant on a weekday within the next 60 days,
// inside business hours of loc, on a quarter hour.
func SlotTime(f *gofakeit.Faker, now time.Time, loc *time.Location) time.Time {
	now = now.In(loc)
	day := time.Date(now.Year(), now.Month(), now.Day()+f.Number(1, 60), 0, 0, 0, 0, loc)
	for day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
		day = day.AddDate(0, 0, 1)
	}
	hour := f.Number(domain.BusinessHoursStart, domain.BusinessHoursEnd-1)
	minute := 15 * f.Number(0, 3)
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, loc)
}

type Result struct {
	Created   int
	Conflicts int
}

// Appointments books n appointments through the service. Slots that collide
// with an existing booking are retried up to attempts times each.
func Appointments(ctx context.Context, svc Creator, f *gofakeit.Faker, leads []domain.Lead, n, attempts int, now time.Time, loc *time.Location) (Result, error) {
	if len(leads) == 0 {
		return Result{}, errors.New("seed: no leads to book against")
	}
	if attempts < 1 {
		attempts = 1
	}

	var res Result
	for i := 0; i < n; i++ {
		lead := leads[f.Number(0, len(leads)-1)]
		for try := 0; try < attempts; try++ {
			_, err := svc.Create(ctx, appointments.Unrestricted(lead.OwnerID), appointments.CreateInput{
				LeadID:      lead.ID,
				OwnerID:     lead.OwnerID,
				Title:       "Call with " + lead.Name,
				Description: f.JobTitle() + " follow-up",
				ScheduledAt: SlotTime(f, now, loc),
			})
			if err == nil {
				res.Created++
				break
			}
			if !errors.Is(err, store.ErrConflict) {
				return res, fmt.Errorf("seed appointment %d: %w", i, err)
			}
			res.Conflicts++
		}
	}
	return res, nil
}
