// Package ring drives the mechanical bell (or its solid-state
// ringer-chip substitute): spec.md §6 calls for "a task [that] drives
// the bell at 20 Hz with 1 s on / 1 s off" while alive, returned as a
// drop-handle whose release stops it. Grounded on github.com/
// warthog618/go-gpiocdev for the output line (the same library hook
// uses for its input line) and on diago's ringtone.go for the
// idiomatic Go shape: a context-driven drive loop plus a
// PlayBackground/stop-function pair rather than a raw goroutine the
// caller has to manage by hand.
package ring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

const (
	driveFreq = 25 * time.Millisecond // half-period of the 20Hz bell drive
	onDur     = 1 * time.Second
	offDur    = 1 * time.Second
)

// Bell drives the physical ringer output line.
type Bell struct {
	log  zerolog.Logger
	line *gpiocdev.Line // nil when running the no-op fallback
}

// Open requests line offset on GPIO chip chipName as an output for
// the bell driver.
func Open(chipName string, offset int, log zerolog.Logger) (*Bell, error) {
	line, err := gpiocdev.RequestLine(chipName, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("ring: requesting line %d on %s: %w", offset, chipName, err)
	}
	return &Bell{log: log.With().Str("component", "ring").Logger(), line: line}, nil
}

// OpenNoop is the no-GPIO fallback for development off the target
// board: Ring still runs its cadence loop and logs instead of driving
// a line.
func OpenNoop(log zerolog.Logger) *Bell {
	return &Bell{log: log.With().Str("component", "ring").Logger()}
}

func (b *Bell) setLine(v int) {
	if b.line == nil {
		return
	}
	if err := b.line.SetValue(v); err != nil {
		b.log.Warn().Err(err).Msg("ring: failed to drive bell line")
	}
}

// Ring drives the bell at 20Hz (a square wave toggled every
// driveFreq) for onDur, then stays silent for offDur, looping until
// ctx is cancelled.
func (b *Bell) Ring(ctx context.Context) {
	t := time.NewTicker(driveFreq)
	defer t.Stop()

	cadence := time.NewTimer(onDur)
	defer cadence.Stop()
	ringing := true
	level := 0

	for {
		select {
		case <-ctx.Done():
			b.setLine(0)
			return
		case <-cadence.C:
			ringing = !ringing
			if ringing {
				cadence.Reset(onDur)
			} else {
				b.setLine(0)
				cadence.Reset(offDur)
			}
		case <-t.C:
			if !ringing {
				continue
			}
			level = 1 - level
			b.setLine(level)
		}
	}
}

// PlayBackground starts Ring in its own goroutine and returns a stop
// function, mirroring diago's ringtone PlayBackground/cancel-then-wait
// shape: when alive, the bell rings; dropping the handle (calling the
// returned func) silences it.
func (b *Bell) PlayBackground() func() {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		b.Ring(ctx)
	}()
	return func() {
		cancel()
		wg.Wait()
	}
}

// Close releases the GPIO line, if any.
func (b *Bell) Close() error {
	if b.line == nil {
		return nil
	}
	return b.line.Close()
}
