package tone

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/config"
)

// TestContinuousToneNeverGoesSilent covers off-hook dial tone: with no
// cadence configured every frame carries signal.
func TestContinuousToneNeverGoesSilent(t *testing.T) {
	cfg := config.Default()
	g := NewGenerator(cfg, OffHook)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []int16)
	go g.Play(ctx, frames)

	for i := 0; i < 5; i++ {
		frame := <-frames
		require.True(t, hasNonZero(frame))
	}
}

// TestCadencedToneGatesOff covers busy/no-wifi/ring-back tones: frames
// within the off window must be silent.
func TestCadencedToneGatesOff(t *testing.T) {
	cfg := config.Default()
	// 20ms on / 40ms off lines up exactly with the 960-sample (20ms at
	// 48kHz) frame boundary, so each received frame is wholly on or off.
	recipe := Recipe{F1: 480, F2: 620, OnDur: 20 * time.Millisecond, OffDur: 40 * time.Millisecond}
	g := NewGenerator(cfg, recipe)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan []int16)
	go g.Play(ctx, frames)

	onFrame := <-frames
	require.True(t, hasNonZero(onFrame))

	offFrame := <-frames
	require.False(t, hasNonZero(offFrame))
}

func hasNonZero(frame []int16) bool {
	for _, s := range frame {
		if s != 0 {
			return true
		}
	}
	return false
}
