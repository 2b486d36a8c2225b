package appointments

import (
	"context"
	"fmt"
	"time"

	"leadcal/backend/internal/domain"
)

type CalendarResult struct {
	View         domain.CalendarView  `json:"view"`
	Year         int                  `json:"year"`
	Month        time.Month           `json:"month"`
	RangeStart   time.Time            `json:"range_start"`
	RangeEnd     time.Time            `json:"range_end"`
	Appointments []domain.Appointment `json:"appointments"`
	TotalCount   int                  `json:"total_count"`
}

// CalendarView returns the requester's appointments inside the range the
// view covers. Week and day views take their day from today's date.
func (s *Service) CalendarView(ctx context.Context, req Requester, year, month int, view domain.CalendarView) (CalendarResult, error) {
	if year < 1970 || year > 9999 {
		return CalendarResult{}, validationError("year is out of range")
	}
	if month < 1 || month > 12 {
		return CalendarResult{}, validationError("month must be between 1 and 12")
	}
	if view == "" {
		view = domain.CalendarViewMonth
	}

	start, end := domain.CalendarRange(year, time.Month(month), view, s.now())

	rows, err := s.repo.ListRange(ctx, req.Scope(), start, end)
	if err != nil {
		return CalendarResult{}, fmt.Errorf("calendar view: %w", err)
	}

	return CalendarResult{
		View:         view,
		Year:         year,
		Month:        time.Month(month),
		RangeStart:   start,
		RangeEnd:     end,
		Appointments: rows,
		TotalCount:   len(rows),
	}, nil
}
