package domain

import (
	"testing"
	"time"
)

func TestCalendarRange(t *testing.T) {
	today := time.Date(2025, 3, 12, 15, 4, 5, 0, time.UTC) // Wednesday

	tests := []struct {
		name      string
		year      int
		month     time.Month
		view      CalendarView
		today     time.Time
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "month",
			year:      2025,
			month:     time.March,
			view:      CalendarViewMonth,
			today:     today,
			wantStart: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "list reuses month",
			year:      2024,
			month:     time.February,
			view:      CalendarViewList,
			today:     today,
			wantStart: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "december rolls year for end",
			year:      2025,
			month:     time.December,
			view:      CalendarViewMonth,
			today:     today,
			wantStart: time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 12, 31, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "week anchored on today's day",
			year:      2025,
			month:     time.March,
			view:      CalendarViewWeek,
			today:     today,
			wantStart: time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 15, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "week for other month uses today's day number",
			year:      2025,
			month:     time.June,
			view:      CalendarViewWeek,
			today:     today,
			wantStart: time.Date(2025, 6, 8, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 6, 14, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "day",
			year:      2025,
			month:     time.April,
			view:      CalendarViewDay,
			today:     today,
			wantStart: time.Date(2025, 4, 12, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 4, 12, 23, 59, 59, 999_999_999, time.UTC),
		},
		{
			name:      "day overflows into next month",
			year:      2025,
			month:     time.February,
			view:      CalendarViewDay,
			today:     time.Date(2025, 1, 30, 9, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 2, 23, 59, 59, 999_999_999, time.UTC),
		},
		{
			name:      "week overflows into next month",
			year:      2025,
			month:     time.February,
			view:      CalendarViewWeek,
			today:     time.Date(2025, 1, 30, 9, 0, 0, 0, time.UTC),
			wantStart: time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2025, 3, 8, 23, 59, 59, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start, end := CalendarRange(tt.year, tt.month, tt.view, tt.today)
			if !start.Equal(tt.wantStart) {
				t.Fatalf("start = %v, want %v", start, tt.wantStart)
			}
			if !end.Equal(tt.wantEnd) {
				t.Fatalf("end = %v, want %v", end, tt.wantEnd)
			}
		})
	}
}

func TestParseCalendarView(t *testing.T) {
	if v, err := ParseCalendarView(""); err != nil || v != CalendarViewMonth {
		t.Fatalf("ParseCalendarView(\"\") = %q, %v", v, err)
	}
	if v, err := ParseCalendarView(" Week "); err != nil || v != CalendarViewWeek {
		t.Fatalf("ParseCalendarView(Week) = %q, %v", v, err)
	}
	if _, err := ParseCalendarView("year"); err == nil {
		t.Fatalf("expected error for unknown view")
	}
}

func TestWeekBounds(t *testing.T) {
	sat := time.Date(2025, 3, 15, 12, 0, 0, 0, time.UTC)
	if got := StartOfWeek(sat); !got.Equal(time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("StartOfWeek = %v", got)
	}
	sun := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	if got := StartOfWeek(sun); !got.Equal(sun) {
		t.Fatalf("StartOfWeek(sunday) = %v", got)
	}
	if got := EndOfWeek(sun); !got.Equal(time.Date(2025, 3, 15, 23, 59, 59, 999_999_999, time.UTC)) {
		t.Fatalf("EndOfWeek = %v", got)
	}
}
