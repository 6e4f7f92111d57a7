package debounce

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/goertzel"
)

// TestEmitsExactlyOncePerPress covers spec.md invariant 3: a run of
// identical detections, a gap, and a tail of the same digit again must
// emit the digit exactly once per press with HITS_TO_BEGIN=2,
// MISSES_TO_END=2.
func TestEmitsExactlyOncePerPress(t *testing.T) {
	d := New(2, 2)

	seq := []goertzel.Digit{
		'1', '1', '1', '1', // press: emits once on the 2nd '1'
		goertzel.None, goertzel.None, // release: 2 misses clears sent
		'1', '1', // second press of the same key: emits again
	}

	var emissions []goertzel.Digit
	for _, det := range seq {
		if got, ok := d.Push(det); ok {
			emissions = append(emissions, got)
		}
	}

	require.Equal(t, []goertzel.Digit{'1', '1'}, emissions)
}

// TestSingleMissDoesNotDropKey covers the hysteresis: a single dropout
// within MISSES_TO_END must not be mistaken for a key release.
func TestSingleMissDoesNotDropKey(t *testing.T) {
	d := New(2, 2)

	seq := []goertzel.Digit{'5', '5', goertzel.None, '5', '5', '5'}
	var emissions []goertzel.Digit
	for _, det := range seq {
		if got, ok := d.Push(det); ok {
			emissions = append(emissions, got)
		}
	}

	require.Equal(t, []goertzel.Digit{'5'}, emissions)
}

// TestSwitchingKeysEmitsBoth covers pressing one key, releasing it for
// MISSES_TO_END silent windows, then pressing a different key: each
// key is emitted once.
func TestSwitchingKeysEmitsBoth(t *testing.T) {
	d := New(2, 2)

	seq := []goertzel.Digit{
		'3', '3', // emits '3'
		goertzel.None, goertzel.None, // release
		'7', '7', // emits '7'
	}
	var emissions []goertzel.Digit
	for _, det := range seq {
		if got, ok := d.Push(det); ok {
			emissions = append(emissions, got)
		}
	}

	require.Equal(t, []goertzel.Digit{'3', '7'}, emissions)
}
