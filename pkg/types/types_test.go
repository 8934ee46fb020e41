package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReasonMessagesAreDistinct(t *testing.T) {
	seen := make(map[string]UnavailableReason)
	for _, reason := range Reasons() {
		msg := reason.Message()
		assert.NotEqual(t, string(reason), msg, "reason %s has no message", reason)
		if other, dup := seen[msg]; dup {
			t.Errorf("reasons %s and %s share message %q", reason, other, msg)
		}
		seen[msg] = reason
	}
	assert.Len(t, seen, 5)
}

func TestUnknownReasonMessage(t *testing.T) {
	assert.Equal(t, "something_else", UnavailableReason("something_else").Message())
}

func TestParseNodeStatus(t *testing.T) {
	assert.Equal(t, NodeConnected, ParseNodeStatus("connected"))
	assert.Equal(t, NodeDisconnected, ParseNodeStatus("disconnected"))
	assert.Equal(t, NodeUnknown, ParseNodeStatus(""))
	assert.Equal(t, NodeUnknown, ParseNodeStatus("Connected"))
}

func TestNewStatusUpdate(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	t.Run("available", func(t *testing.T) {
		update := NewStatusUpdate(StatusAvailable, "ignored", now)
		assert.Equal(t, StatusAvailable, update.AvailabilityStatus)
		assert.Empty(t, update.AvailabilityStatusError)
		require.NotNil(t, update.LastAvailableAt)
		assert.Equal(t, now, *update.LastAvailableAt)
		assert.Equal(t, now, *update.LastCheckedAt)
	})

	t.Run("unavailable", func(t *testing.T) {
		update := NewStatusUpdate(StatusUnavailable, ReasonReceptorNotResponding.Message(), now)
		assert.Equal(t, StatusUnavailable, update.AvailabilityStatus)
		assert.Equal(t, "Receptor node is not responding", update.AvailabilityStatusError)
		assert.Nil(t, update.LastAvailableAt)
		require.NotNil(t, update.LastCheckedAt)
	})
}
