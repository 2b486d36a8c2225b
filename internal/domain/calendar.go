package domain

import (
	"fmt"
	"strings"
	"time"
)

type CalendarView string

const (
	CalendarViewMonth CalendarView = "month"
	CalendarViewWeek  CalendarView = "week"
	CalendarViewDay   CalendarView = "day"
	CalendarViewList  CalendarView = "list"
)

func ParseCalendarView(s string) (CalendarView, error) {
	v := CalendarView(strings.ToLower(strings.TrimSpace(s)))
	switch v {
	case "":
		return CalendarViewMonth, nil
	case CalendarViewMonth, CalendarViewWeek, CalendarViewDay, CalendarViewList:
		return v, nil
	}
	return "", fmt.Errorf("unknown calendar view %q", s)
}

// CalendarRange returns the inclusive range covered by a calendar view.
//
// Week and day views are anchored on today's day-of-month inside the
// requested year and month. time.Date normalizes days past the end of the
// month, so asking for February while today is the 30th lands in March.
// That behavior is kept as-is; see DESIGN.md.
func CalendarRange(year int, month time.Month, view CalendarView, today time.Time) (time.Time, time.Time) {
	loc := today.Location()

	switch view {
	case CalendarViewWeek:
		anchor := time.Date(year, month, today.Day(), 0, 0, 0, 0, loc)
		start := StartOfWeek(anchor)
		end := time.Date(start.Year(), start.Month(), start.Day()+6, 23, 59, 59, 0, loc)
		return start, end
	case CalendarViewDay:
		anchor := time.Date(year, month, today.Day(), 0, 0, 0, 0, loc)
		return StartOfDay(anchor), EndOfDay(anchor)
	default:
		start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
		end := time.Date(year, month+1, 0, 23, 59, 59, 0, loc)
		return start, end
	}
}

func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func EndOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999_999_999, t.Location())
}

// StartOfWeek returns midnight of the Sunday on or before t.
func StartOfWeek(t time.Time) time.Time {
	d := StartOfDay(t)
	return time.Date(d.Year(), d.Month(), d.Day()-int(d.Weekday()), 0, 0, 0, 0, d.Location())
}

// EndOfWeek returns the last instant of the Saturday on or after t.
func EndOfWeek(t time.Time) time.Time {
	s := StartOfWeek(t)
	return EndOfDay(time.Date(s.Year(), s.Month(), s.Day()+6, 0, 0, 0, 0, s.Location()))
}
