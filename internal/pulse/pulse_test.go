package pulse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestDecodeTrainCountsPulses covers spec.md scenario S4: seven pulses
// on the line produce digit 7, per "count FALLING edges ... until
// PULSE_TIMEOUT of quiescence, emit count mod 10".
func TestDecodeTrainCountsPulses(t *testing.T) {
	d := New(15 * time.Millisecond)
	edges := make(chan struct{})

	go func() {
		for i := 0; i < 14; i++ { // 7 pulses = 14 make/break transitions
			edges <- struct{}{}
			time.Sleep(time.Millisecond)
		}
	}()

	digit, err := d.DecodeTrain(context.Background(), edges)
	require.NoError(t, err)
	require.Equal(t, 7, digit)
}

// TestTenPulsesIsZero covers rotary dial's "0" being ten pulses, wrapped
// by count mod 10.
func TestTenPulsesIsZero(t *testing.T) {
	d := New(15 * time.Millisecond)
	edges := make(chan struct{})

	go func() {
		for i := 0; i < 20; i++ {
			edges <- struct{}{}
			time.Sleep(time.Millisecond)
		}
	}()

	digit, err := d.DecodeTrain(context.Background(), edges)
	require.NoError(t, err)
	require.Equal(t, 0, digit)
}

// TestNoEdgesIsHungUp covers the stable-on-hook case: no pulses at all
// before the first timeout means the caller hung up, not dialed.
func TestNoEdgesIsHungUp(t *testing.T) {
	d := New(10 * time.Millisecond)
	edges := make(chan struct{})

	_, err := d.DecodeTrain(context.Background(), edges)
	require.ErrorIs(t, err, ErrHungUp)
}
