package entities

import (
	"fmt"
	"strings"

	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending             BookingStatus = "PENDING"
	BookingStatusConfirmed           BookingStatus = "CONFIRMED"
	BookingStatusInProgress          BookingStatus = "IN_PROGRESS"
	BookingStatusRescheduleRequested BookingStatus = "RESCHEDULE_REQUESTED"
	BookingStatusCompleted           BookingStatus = "COMPLETED"
	BookingStatusCancelled           BookingStatus = "CANCELLED"
)

// AllBookingStatuses lists every status in lifecycle order
var AllBookingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
	BookingStatusRescheduleRequested,
	BookingStatusCompleted,
	BookingStatusCancelled,
}

// WindowHoldingStatuses are the statuses whose scheduled window is held against
// the provider: every status but CANCELLED. A booking with a pending reschedule
// keeps its scheduled window until the move is confirmed.
var WindowHoldingStatuses = []BookingStatus{
	BookingStatusPending,
	BookingStatusConfirmed,
	BookingStatusInProgress,
	BookingStatusRescheduleRequested,
	BookingStatusCompleted,
}

// BookingAction is a trigger applied to a booking
type BookingAction string

const (
	BookingActionAccept            BookingAction = "accept"
	BookingActionDecline           BookingAction = "decline"
	BookingActionStart             BookingAction = "start"
	BookingActionComplete          BookingAction = "complete"
	BookingActionRequestReschedule BookingAction = "request_reschedule"
	BookingActionConfirmReschedule BookingAction = "confirm_reschedule"
	BookingActionDeclineReschedule BookingAction = "decline_reschedule"
	BookingActionCancel            BookingAction = "cancel"
)

// AllBookingActions lists every action
var AllBookingActions = []BookingAction{
	BookingActionAccept,
	BookingActionDecline,
	BookingActionStart,
	BookingActionComplete,
	BookingActionRequestReschedule,
	BookingActionConfirmReschedule,
	BookingActionDeclineReschedule,
	BookingActionCancel,
}

// transitions is the complete table of legal (status, action) pairs.
// Terminal statuses have no entry.
var transitions = map[BookingStatus]map[BookingAction]BookingStatus{
	BookingStatusPending: {
		BookingActionAccept:  BookingStatusConfirmed,
		BookingActionDecline: BookingStatusCancelled,
		BookingActionCancel:  BookingStatusCancelled,
	},
	BookingStatusConfirmed: {
		BookingActionStart:             BookingStatusInProgress,
		BookingActionComplete:          BookingStatusCompleted,
		BookingActionRequestReschedule: BookingStatusRescheduleRequested,
		BookingActionCancel:            BookingStatusCancelled,
	},
	BookingStatusInProgress: {
		BookingActionComplete: BookingStatusCompleted,
		BookingActionCancel:   BookingStatusCancelled,
	},
	BookingStatusRescheduleRequested: {
		BookingActionConfirmReschedule: BookingStatusConfirmed,
		BookingActionDeclineReschedule: BookingStatusConfirmed,
		BookingActionCancel:            BookingStatusCancelled,
	},
}

// NextStatus returns the status reached by applying action to current.
// Any pair outside the transition table yields an INVALID_TRANSITION error.
func NextStatus(current BookingStatus, action BookingAction) (BookingStatus, error) {
	if next, ok := transitions[current][action]; ok {
		return next, nil
	}
	return "", apperrors.NewInvalidTransitionError(string(current), string(action))
}

// CanTransition reports whether action is legal from s
func (s BookingStatus) CanTransition(action BookingAction) bool {
	_, ok := transitions[s][action]
	return ok
}

// IsTerminal reports whether no action is legal from s
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// HoldsWindow reports whether a booking in s occupies its scheduled window
func (s BookingStatus) HoldsWindow() bool {
	return s != BookingStatusCancelled
}

// ParseBookingStatus parses a status name case-insensitively
func ParseBookingStatus(s string) (BookingStatus, error) {
	status := BookingStatus(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range AllBookingStatuses {
		if status == known {
			return status, nil
		}
	}
	return "", fmt.Errorf("unknown booking status %q", s)
}
