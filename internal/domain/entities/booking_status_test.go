package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/servicehub/bookingengine/pkg/errors"
)

func TestNextStatus_LegalTransitions(t *testing.T) {
	tests := []struct {
		from   BookingStatus
		action BookingAction
		want   BookingStatus
	}{
		{BookingStatusPending, BookingActionAccept, BookingStatusConfirmed},
		{BookingStatusPending, BookingActionDecline, BookingStatusCancelled},
		{BookingStatusPending, BookingActionCancel, BookingStatusCancelled},
		{BookingStatusConfirmed, BookingActionStart, BookingStatusInProgress},
		{BookingStatusConfirmed, BookingActionComplete, BookingStatusCompleted},
		{BookingStatusConfirmed, BookingActionRequestReschedule, BookingStatusRescheduleRequested},
		{BookingStatusConfirmed, BookingActionCancel, BookingStatusCancelled},
		{BookingStatusInProgress, BookingActionComplete, BookingStatusCompleted},
		{BookingStatusInProgress, BookingActionCancel, BookingStatusCancelled},
		{BookingStatusRescheduleRequested, BookingActionConfirmReschedule, BookingStatusConfirmed},
		{BookingStatusRescheduleRequested, BookingActionDeclineReschedule, BookingStatusConfirmed},
		{BookingStatusRescheduleRequested, BookingActionCancel, BookingStatusCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.action), func(t *testing.T) {
			got, err := NextStatus(tt.from, tt.action)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, tt.from.CanTransition(tt.action))
		})
	}
}

func TestNextStatus_EveryUnlistedPairIsInvalid(t *testing.T) {
	legal := map[BookingStatus]map[BookingAction]bool{
		BookingStatusPending:             {BookingActionAccept: true, BookingActionDecline: true, BookingActionCancel: true},
		BookingStatusConfirmed:           {BookingActionStart: true, BookingActionComplete: true, BookingActionRequestReschedule: true, BookingActionCancel: true},
		BookingStatusInProgress:          {BookingActionComplete: true, BookingActionCancel: true},
		BookingStatusRescheduleRequested: {BookingActionConfirmReschedule: true, BookingActionDeclineReschedule: true, BookingActionCancel: true},
	}

	for _, status := range AllBookingStatuses {
		for _, action := range AllBookingActions {
			if legal[status][action] {
				continue
			}
			_, err := NextStatus(status, action)
			require.Error(t, err, "%s/%s should be rejected", status, action)
			assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))
			assert.Contains(t, err.Error(), string(status))
			assert.Contains(t, err.Error(), string(action))
		}
	}
}

func TestNextStatus_CancelCompleted(t *testing.T) {
	_, err := NextStatus(BookingStatusCompleted, BookingActionCancel)

	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeInvalidTransition))
}

func TestBookingStatus_Predicates(t *testing.T) {
	assert.True(t, BookingStatusCompleted.IsTerminal())
	assert.True(t, BookingStatusCancelled.IsTerminal())
	assert.False(t, BookingStatusRescheduleRequested.IsTerminal())

	for _, s := range WindowHoldingStatuses {
		assert.True(t, s.HoldsWindow(), s)
	}
	assert.True(t, BookingStatusRescheduleRequested.HoldsWindow(), "a pending reschedule keeps its window")
	assert.True(t, BookingStatusCompleted.HoldsWindow())
	assert.False(t, BookingStatusCancelled.HoldsWindow())
}

func TestParseBookingStatus(t *testing.T) {
	status, err := ParseBookingStatus(" in_progress ")
	require.NoError(t, err)
	assert.Equal(t, BookingStatusInProgress, status)

	_, err = ParseBookingStatus("archived")
	assert.Error(t, err)
}
