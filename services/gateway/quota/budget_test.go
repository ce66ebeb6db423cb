package quota

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReserve_RefusesWhenOverDailyLimit(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Reserve("req-1", "alice", 300, 295)
	require.NoError(t, err)

	_, err = tr.Reserve("req-2", "alice", 300, 10)
	assert.Error(t, err)
}

func TestSettle_MovesReservedToSettled(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Reserve("req-1", "alice", 300, 50)
	require.NoError(t, err)

	require.NoError(t, tr.Settle("req-1", 40))
	settled, reserved := tr.Consumed("alice")
	assert.Equal(t, 40.0, settled)
	assert.Equal(t, 0.0, reserved)
}

func TestRefund_ReleasesReservationWithoutCharging(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Reserve("req-1", "alice", 300, 50)
	require.NoError(t, err)

	require.NoError(t, tr.Refund("req-1"))
	settled, reserved := tr.Consumed("alice")
	assert.Equal(t, 0.0, settled)
	assert.Equal(t, 0.0, reserved)
}

func TestSettle_RejectsDoubleSettle(t *testing.T) {
	tr := NewTracker()
	_, err := tr.Reserve("req-1", "alice", 300, 50)
	require.NoError(t, err)
	require.NoError(t, tr.Settle("req-1", 40))

	err = tr.Settle("req-1", 40)
	assert.Error(t, err)
}

func TestCheckRowLimit_CapsAtEnvelopeMax(t *testing.T) {
	n, err := CheckRowLimit(50000, 10000)
	require.NoError(t, err)
	assert.Equal(t, 10000, n)

	n, err = CheckRowLimit(500, 10000)
	require.NoError(t, err)
	assert.Equal(t, 500, n)

	n, err = CheckRowLimit(0, 10000)
	require.NoError(t, err)
	assert.Equal(t, 10000, n)
}
