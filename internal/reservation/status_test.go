package reservation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCancelled, true},
		{StatusConfirmed, StatusSeated, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusSeated, StatusCompleted, true},

		{StatusConfirmed, StatusCompleted, false},
		{StatusSeated, StatusCancelled, false},
		{StatusSeated, StatusNoShow, false},
		{StatusConfirmed, StatusConfirmed, false},
		{StatusCompleted, StatusSeated, false},
		{StatusCancelled, StatusConfirmed, false},
		{StatusNoShow, StatusCancelled, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := CheckTransition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled, StatusNoShow} {
		assert.True(t, s.Terminal(), s)
		assert.False(t, s.Active(), s)
	}
	for _, s := range []Status{StatusPending, StatusConfirmed} {
		assert.False(t, s.Terminal(), s)
		assert.True(t, s.Active(), s)
	}
	assert.False(t, StatusSeated.Active())
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("no_show")
	require.NoError(t, err)
	assert.Equal(t, StatusNoShow, s)

	_, err = ParseStatus("eaten")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestPolicyErrorsWrapPolicyViolation(t *testing.T) {
	assert.ErrorIs(t, ErrTooLateToCancel, ErrPolicyViolation)
	assert.ErrorIs(t, ErrPastReservation, ErrPolicyViolation)
	assert.True(t, IsRetryable(ErrTransactionFailure))
	assert.False(t, IsRetryable(ErrSchedulingConflict))
}
