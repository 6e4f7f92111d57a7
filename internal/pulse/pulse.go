// Package pulse decodes rotary dial digits from the make/break hook
// switch events that ride on the same line as the handset hook during
// pulse dialing, grounded on the original Rust notgoertzelme: the same
// even/odd pair of timeout races per pulse (the first race counts a
// break, the second absorbs the matching make), generalized to report
// results through an explicit return rather than a broadcast channel
// tied to the handset's own hook-switch state.
package pulse

import (
	"context"
	"fmt"
	"time"
)

// ErrHungUp is returned by DecodeTrain when the line goes stably
// on-hook for PulseTimeout instead of producing any pulses, meaning
// the caller hung up rather than dialed.
var ErrHungUp = fmt.Errorf("pulse: hung up during dial")

// Decoder counts falling-edge pulse trains into digits.
type Decoder struct {
	timeout time.Duration
}

// New builds a Decoder using the pulse quiescence timeout from
// config.Config.PulseTimeout.
func New(timeout time.Duration) *Decoder {
	return &Decoder{timeout: timeout}
}

// DecodeTrain counts one digit's worth of falling edges from edges
// (each receive is one make/break transition of the hook line) until
// Timeout of quiescence ends the train, and returns count mod 10. If
// no edge arrives at all before the first timeout, it returns
// ErrHungUp instead: a stable on-hook line during dialing means the
// caller hung up rather than dialed a 0 (ten pulses).
func (d *Decoder) DecodeTrain(ctx context.Context, edges <-chan struct{}) (digit int, err error) {
	count := 0
	for {
		select {
		case <-edges:
			count++
		case <-time.After(d.timeout):
			if count == 0 {
				return 0, ErrHungUp
			}
			return count % 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}

		select {
		case <-edges:
			// absorbs the pulse's matching make/break half; only every
			// other transition advances the count.
		case <-time.After(d.timeout):
			return count % 10, nil
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}
