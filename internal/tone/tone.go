// Package tone synthesizes the call-progress tones the phone plays
// into the handset earpiece: off-hook dial tone, no-Wi-Fi, busy, and
// ring-back, grounded on the original Rust TwoToneGen (precompute
// 100ms of summed sine samples, then gate it on/off on a cadence) and
// on diago's ringtone.go for the idiomatic Go shape — a context-driven
// play loop returning a stop function — but adapted to emit raw
// 960-sample/20ms frames matching the RTP endpoint's wire format
// instead of diago's RTP-session-coupled writer.
package tone

import (
	"context"
	"math"
	"time"

	"github.com/frandline/frandline/internal/config"
)

const gain = 0.5

// frameSamples is 20ms at 48kHz, matching the RTP endpoint's raw PCM
// framing (spec.md §4.8).
const frameSamples = 960

// Recipe names the two frequencies and on/off cadence of a
// call-progress tone. OnDur == 0 means continuous (never gated off).
type Recipe struct {
	F1, F2        float64
	OnDur, OffDur time.Duration
}

var (
	OffHook  = Recipe{F1: 350, F2: 440}
	NoWiFi   = Recipe{F1: 350, F2: 440, OnDur: 500 * time.Millisecond, OffDur: 500 * time.Millisecond}
	Busy     = Recipe{F1: 480, F2: 620, OnDur: 500 * time.Millisecond, OffDur: 500 * time.Millisecond}
	RingBack = Recipe{F1: 440, F2: 480, OnDur: 2 * time.Second, OffDur: 4 * time.Second}
)

// Generator streams a Recipe as a sequence of 20ms PCM frames.
type Generator struct {
	sampleRate int
	loop       []int16
	onSamples  int
	offSamples int
}

// NewGenerator precomputes 100ms of the recipe's summed, gained sine
// waves (every call-progress frequency is a multiple of 10Hz, so this loops
// seamlessly) and its on/off cadence in samples at cfg.SampleFreq.
func NewGenerator(cfg config.Config, recipe Recipe) *Generator {
	rate := cfg.SampleFreq
	bufSize := rate / 10
	loop := make([]int16, bufSize)
	step := 1.0 / float64(rate)
	for i := 0; i < bufSize; i++ {
		s := gain*math.Sin(2*math.Pi*recipe.F1*step*float64(i)) +
			gain*math.Sin(2*math.Pi*recipe.F2*step*float64(i))
		loop[i] = int16(s * math.MaxInt16)
	}

	g := &Generator{sampleRate: rate, loop: loop}
	if recipe.OnDur > 0 {
		g.onSamples = int(recipe.OnDur.Seconds() * float64(rate))
		g.offSamples = int(recipe.OffDur.Seconds() * float64(rate))
	}
	return g
}

// Play streams 20ms frames on out until ctx is cancelled. Silence
// frames (all zero) are sent during the off portion of a cadenced
// tone; a continuous tone (OnDur == 0) never gates off.
func (g *Generator) Play(ctx context.Context, out chan<- []int16) error {
	loopIdx := 0
	cadenceIdx := 0

	for {
		frame := make([]int16, frameSamples)
		for i := 0; i < frameSamples; i++ {
			on := g.onSamples == 0 || cadenceIdx < g.onSamples
			if on {
				frame[i] = g.loop[loopIdx]
				loopIdx = (loopIdx + 1) % len(g.loop)
			}
			if g.onSamples > 0 {
				cadenceIdx++
				if cadenceIdx >= g.onSamples+g.offSamples {
					cadenceIdx = 0
				}
			}
		}

		select {
		case out <- frame:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// PlayBackground starts Play in its own goroutine and returns a stop
// function, mirroring diago's PlayBackground/cancel-then-wait shape.
func (g *Generator) PlayBackground(out chan<- []int16) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		g.Play(ctx, out)
	}()
	return func() {
		cancel()
		<-done
	}
}
