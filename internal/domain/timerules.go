package domain

import (
	"errors"
	"fmt"
	"time"
)

const (
	ConflictBuffer = 30 * time.Minute

	BusinessHoursStart = 9
	BusinessHoursEnd   = 18
)

type TimeRule string

const (
	RulePast                 TimeRule = "past"
	RuleTooFarFuture         TimeRule = "too_far_future"
	RuleWeekend              TimeRule = "weekend"
	RuleOutsideBusinessHours TimeRule = "outside_business_hours"
)

var (
	ErrPastScheduling       = errors.New("cannot schedule appointments in the past")
	ErrTooFarFuture         = errors.New("cannot schedule appointments more than 1 year in advance")
	ErrWeekend              = errors.New("appointments can only be scheduled on weekdays")
	ErrOutsideBusinessHours = errors.New("appointments must be scheduled between 9 AM and 6 PM")
)

var ruleErrors = map[TimeRule]error{
	RulePast:                 ErrPastScheduling,
	RuleTooFarFuture:         ErrTooFarFuture,
	RuleWeekend:              ErrWeekend,
	RuleOutsideBusinessHours: ErrOutsideBusinessHours,
}

type TimeRuleError struct {
	Rule      TimeRule
	Candidate time.Time
}

func (e *TimeRuleError) Error() string {
	return fmt.Sprintf("%s (requested %s)", ruleErrors[e.Rule], e.Candidate.Format(time.RFC3339))
}

func (e *TimeRuleError) Is(target error) bool {
	return ruleErrors[e.Rule] == target
}

// MaxScheduleAhead returns the latest instant that may still be booked.
func MaxScheduleAhead(now time.Time) time.Time {
	return now.AddDate(1, 0, 0)
}

// ValidateScheduleTime checks candidate against the booking rules. The first
// failing rule wins. Weekday and hour are read in candidate's own location.
func ValidateScheduleTime(candidate, now time.Time) error {
	if !candidate.After(now) {
		return &TimeRuleError{Rule: RulePast, Candidate: candidate}
	}
	if candidate.After(MaxScheduleAhead(now)) {
		return &TimeRuleError{Rule: RuleTooFarFuture, Candidate: candidate}
	}
	switch candidate.Weekday() {
	case time.Saturday, time.Sunday:
		return &TimeRuleError{Rule: RuleWeekend, Candidate: candidate}
	}
	if h := candidate.Hour(); h < BusinessHoursStart || h >= BusinessHoursEnd {
		return &TimeRuleError{Rule: RuleOutsideBusinessHours, Candidate: candidate}
	}
	return nil
}

// ConflictWindow is the closed interval checked for double booking.
func ConflictWindow(candidate time.Time) (time.Time, time.Time) {
	return candidate.Add(-ConflictBuffer), candidate.Add(ConflictBuffer)
}
