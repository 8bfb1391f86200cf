package motion

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestSampleDelta verifies per-axis absolute deltas regardless of direction.
func TestSampleDelta(t *testing.T) {
	t.Parallel()

	a := Sample{X: 1, Y: -4, Z: 10}
	b := Sample{X: -2, Y: 6, Z: 10}

	dx, dy, dz := a.Delta(b)
	require.InDelta(t, 3.0, dx, 1e-9)
	require.InDelta(t, 10.0, dy, 1e-9)
	require.InDelta(t, 0.0, dz, 1e-9)

	// Symmetric.
	dx2, dy2, dz2 := b.Delta(a)
	require.Equal(t, dx, dx2)
	require.Equal(t, dy, dy2)
	require.Equal(t, dz, dz2)
}

// TestSampleIsFinite rejects NaN and infinite axis values.
func TestSampleIsFinite(t *testing.T) {
	t.Parallel()

	require.True(t, Sample{X: 1, Y: 2, Z: 3}.IsFinite())
	require.False(t, Sample{X: math.NaN()}.IsFinite())
	require.False(t, Sample{Z: math.Inf(-1)}.IsFinite())
}

// TestNewEvent checks the fixed name and a fresh identifier per event.
func TestNewEvent(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0)
	a := NewEvent(at, 1)
	b := NewEvent(at, 2)

	require.Equal(t, ShakeEventName, a.Name)
	require.Equal(t, at, a.At)
	require.Equal(t, uint64(1), a.Seq)
	require.NotEqual(t, uuid.Nil, a.ID)
	require.NotEqual(t, a.ID, b.ID)
}
