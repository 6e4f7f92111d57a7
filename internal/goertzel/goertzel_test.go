package goertzel

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/config"
)

// TestPureToneDetectsDigit covers spec.md invariant 9: a clean dual
// tone at the row/column frequencies for key '1' (697 Hz + 1209 Hz)
// must decode to '1' once a full window has accumulated.
func TestPureToneDetectsDigit(t *testing.T) {
	cfg := config.Default()
	b := NewBank(cfg)

	const amplitude = 8000.0
	var digit Digit
	var ready bool
	for n := 0; n < cfg.WindowInterval; n++ {
		s := amplitude * (math.Sin(2*math.Pi*697*float64(n)/float64(cfg.SampleFreq)) +
			math.Sin(2*math.Pi*1209*float64(n)/float64(cfg.SampleFreq)))
		digit, ready = b.Push(s)
	}

	require.True(t, ready)
	require.Equal(t, Digit('1'), digit)
}

// TestSilenceYieldsNone covers spec.md invariant 9's silence case: a
// window of zero samples must never be reported as a digit.
func TestSilenceYieldsNone(t *testing.T) {
	cfg := config.Default()
	b := NewBank(cfg)

	var digit Digit
	var ready bool
	for n := 0; n < cfg.WindowInterval; n++ {
		digit, ready = b.Push(0)
	}

	require.True(t, ready)
	require.Equal(t, None, digit)
}

// TestNotReadyBeforeWindowFull covers the windowing contract: Push
// must not report a result until WindowInterval samples have arrived.
func TestNotReadyBeforeWindowFull(t *testing.T) {
	cfg := config.Default()
	b := NewBank(cfg)

	for n := 0; n < cfg.WindowInterval-1; n++ {
		_, ready := b.Push(1000)
		require.False(t, ready)
	}
}
