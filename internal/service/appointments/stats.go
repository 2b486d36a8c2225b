package appointments

import (
	"context"
	"fmt"
	"time"

	"leadcal/backend/internal/domain"
)

type StatsInput struct {
	DateFrom *time.Time
	DateTo   *time.Time
}

type Stats struct {
	Total         int                   `json:"total"`
	ByStatus      map[domain.Status]int `json:"by_status"`
	UpcomingToday int                   `json:"upcoming_today"`
	UpcomingWeek  int                   `json:"upcoming_week"`
}

// Stats counts appointments visible to the requester. The optional date
// bounds apply to the totals; the upcoming counters always use the real
// current day and Sunday-to-Saturday week.
func (s *Service) Stats(ctx context.Context, req Requester, in StatsInput) (Stats, error) {
	if in.DateFrom != nil && in.DateTo != nil && in.DateTo.Before(*in.DateFrom) {
		return Stats{}, validationError("date_to must not be before date_from")
	}
	scope := req.Scope()

	counts, err := s.repo.CountByStatus(ctx, scope, in.DateFrom, in.DateTo)
	if err != nil {
		return Stats{}, fmt.Errorf("count by status: %w", err)
	}

	byStatus := make(map[domain.Status]int, len(domain.AllStatuses))
	total := 0
	for _, st := range domain.AllStatuses {
		byStatus[st] = counts[st]
		total += counts[st]
	}

	now := s.now()
	today, err := s.repo.CountScheduledBetween(ctx, scope, domain.StartOfDay(now), domain.EndOfDay(now))
	if err != nil {
		return Stats{}, fmt.Errorf("count upcoming today: %w", err)
	}
	week, err := s.repo.CountScheduledBetween(ctx, scope, domain.StartOfWeek(now), domain.EndOfWeek(now))
	if err != nil {
		return Stats{}, fmt.Errorf("count upcoming week: %w", err)
	}

	return Stats{
		Total:         total,
		ByStatus:      byStatus,
		UpcomingToday: today,
		UpcomingWeek:  week,
	}, nil
}
