// Digit stream wiring: the Goertzel/debounce pipeline over the mic and
// the pulse decoder over hook edges each produce a trickle of pressed
// keys; spec.md §5's ordering guarantee asks that both drain into one
// shared downstream channel so a consumer (T9, or raw number
// accumulation in Await) sees one consistent sequence regardless of
// which input method the caller used.
package phone

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/frandline/frandline/internal/debounce"
	"github.com/frandline/frandline/internal/goertzel"
	"github.com/frandline/frandline/internal/pulse"
	"github.com/frandline/frandline/internal/t9"
)

// startDigitStream wires both digit sources and returns their merged
// output along with a stop func that cancels both and waits for them to
// exit. The stream carries raw ASCII '0'-'9', '*', '#'; T9 decoding, if
// wanted, is layered on top by the caller (see captureT9Field).
func (p *Phone) startDigitStream(parent context.Context) (<-chan rune, func()) {
	ctx, cancel := context.WithCancel(parent)
	out := make(chan rune, 16)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); p.runGoertzelDigits(ctx, out) }()
	go func() { defer wg.Done(); p.runPulseDigits(ctx, out) }()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	stop := func() {
		cancel()
		<-done
	}
	return out, stop
}

// runGoertzelDigits feeds the mic sample stream through a Goertzel bank
// and a debouncer, forwarding each emitted key press.
func (p *Phone) runGoertzelDigits(ctx context.Context, out chan<- rune) {
	samples, unsub := p.audio.SubscribeSamples()
	defer unsub()

	bank := goertzel.NewBank(p.cfg)
	deb := debounce.New(p.cfg.HitsToBegin, p.cfg.MissesToEnd)

	for {
		select {
		case s, ok := <-samples:
			if !ok {
				return
			}
			digit, ready := bank.Push(float64(s))
			if !ready {
				continue
			}
			emitted, ok := deb.Push(digit)
			if !ok || emitted == goertzel.None {
				continue
			}
			select {
			case out <- rune(emitted):
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// runPulseDigits forwards every switch-hook transition as a pulse edge
// and repeatedly decodes digit trains from it. A pulse.ErrHungUp (stable
// on-hook with no pulses before the first timeout) is not a real hang-up
// signal here -- that is handled separately by each state's own hook-ON
// watch -- so it is treated as "nothing dialed yet" and the decode loop
// just retries.
func (p *Phone) runPulseDigits(ctx context.Context, out chan<- rune) {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	edges := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case _, ok := <-hookCh:
				if !ok {
					return
				}
				select {
				case edges <- struct{}{}:
				default:
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	dec := pulse.New(p.cfg.PulseTimeout)
	for {
		digit, err := dec.DecodeTrain(ctx, edges)
		if err != nil {
			if err == pulse.ErrHungUp {
				continue
			}
			return
		}
		select {
		case out <- rune('0' + digit):
		case <-ctx.Done():
			return
		}
	}
}

// captureT9Field reads a single Sentinel-terminated field (spec.md §4.4:
// digit '0' pressed outside Symbol/Number mode ends the field) from in,
// decoding multi-tap keypresses as it goes, committing whatever letter
// is in flight after T9CommitTimeout of silence.
func (p *Phone) captureT9Field(ctx context.Context, in <-chan rune) (string, error) {
	dec := t9.New()
	var field []rune

	timer := time.NewTimer(p.cfg.T9CommitTimeout)
	defer timer.Stop()

	for {
		select {
		case r, ok := <-in:
			if !ok {
				return "", fmt.Errorf("phone: digit stream closed mid-field")
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			for _, c := range dec.Push(goertzel.Digit(r)) {
				if c == t9.Sentinel {
					return string(field), nil
				}
				field = append(field, c)
			}
			timer.Reset(p.cfg.T9CommitTimeout)
		case <-timer.C:
			if r, ok := dec.Timeout(); ok {
				field = append(field, r)
			}
			timer.Reset(p.cfg.T9CommitTimeout)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}
