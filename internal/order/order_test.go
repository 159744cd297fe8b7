package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMapBrokerStatus tests normalization of brokerage status strings
func TestMapBrokerStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"NEW", StatusPending},
		{"open", StatusPending},
		{"PARTIALLY_FILLED", StatusPartialFilled},
		{"PARTIAL_FILLED", StatusPartialFilled},
		{"FILLED", StatusFilled},
		{"executed", StatusFilled},
		{"CANCELLED", StatusCancelled},
		{"CANCELED", StatusCancelled},
		{"REJECTED", StatusRejected},
	}

	for _, tt := range tests {
		got, err := mapBrokerStatus(tt.raw)
		require.NoError(t, err, "status %s", tt.raw)
		assert.Equal(t, tt.want, got, "status %s", tt.raw)
	}
}

// TestMapBrokerStatus_Unknown tests that unknown statuses are errors
func TestMapBrokerStatus_Unknown(t *testing.T) {
	_, err := mapBrokerStatus("WEDGED")
	assert.Error(t, err)
}

// TestStatus_IsTerminal tests the terminal state set
func TestStatus_IsTerminal(t *testing.T) {
	assert.False(t, StatusPending.IsTerminal())
	assert.False(t, StatusPartialFilled.IsTerminal())
	assert.True(t, StatusFilled.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.True(t, StatusRejected.IsTerminal())
}

// TestOrder_IsActive tests the active state set
func TestOrder_IsActive(t *testing.T) {
	o := &Order{Status: StatusPending}
	assert.True(t, o.IsActive())

	o.Status = StatusPartialFilled
	assert.True(t, o.IsActive())

	o.Status = StatusCancelled
	assert.False(t, o.IsActive())
}
