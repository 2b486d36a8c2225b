package domain

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

var AllStatuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Terminal reports whether no transition may leave s.
func (s Status) Terminal() bool {
	return len(allowedTransitions[s]) == 0
}

// NoShow is never a target: it is only ever set outside this service.
var allowedTransitions = map[Status][]Status{
	StatusScheduled: {StatusCompleted, StatusCancelled},
	StatusCompleted: nil,
	StatusCancelled: {StatusScheduled},
	StatusNoShow:    {StatusScheduled},
}

var ErrInvalidTransition = errors.New("invalid status transition")

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func CanTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func ValidateTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}
