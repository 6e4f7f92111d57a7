// Package hook drives the switch-hook input: the single contact that
// reports whether the handset is cradled or lifted, and that also
// carries the make/break pulses of rotary dialing on the same line,
// grounded on the original Rust hook.rs/pulse.rs pair (an rppal GPIO
// pin with a both-edges interrupt broadcasting typed SwitchHook
// events, falling back to a ctrlc-style signal toggle on platforms
// without GPIO) but built on github.com/warthog618/go-gpiocdev, the
// Linux GPIO character-device binding the retrieval pack's own
// hardware-facing repo depends on for the same role rppal plays in
// the original, with an os/signal fallback for development off the
// target board.
package hook

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// State is the switch-hook's reported position: ON means on-hook
// (cradled), OFF means off-hook (lifted). Per spec.md §6, every
// physical transition of the contact is broadcast as one of these,
// whether it is a deliberate pickup/hangup or one break/make pulse of
// rotary dialing: the pulse decoder and the hang-up watcher both
// subscribe to the same stream and interpret it differently.
type State int

const (
	ON State = iota
	OFF
)

func (s State) String() string {
	if s == OFF {
		return "OFF"
	}
	return "ON"
}

const subBuffer = 16

// Switch broadcasts switch-hook transitions to any number of
// subscribers (the phone FSM's hang-up watcher, the pulse decoder
// during a dial window).
type Switch struct {
	log zerolog.Logger

	line *gpiocdev.Line // nil when running the signal fallback

	mu      sync.Mutex
	subs    map[int]chan State
	next    int
	current State

	closeOnce sync.Once
}

func newSwitch(log zerolog.Logger) *Switch {
	return &Switch{log: log.With().Str("component", "hook").Logger(), subs: make(map[int]chan State), current: ON}
}

// CurrentState returns the most recently observed hook position,
// defaulting to ON (on-hook) before any transition has been seen --
// the same assumption the original macOS development fallback made.
func (sw *Switch) CurrentState() State {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	return sw.current
}

// Open requests line offset on GPIO chip chipName with both-edge
// detection: falling edge reports ON (handset set down), rising edge
// reports OFF (handset lifted), matching spec.md §6.
func Open(chipName string, offset int, log zerolog.Logger) (*Switch, error) {
	sw := newSwitch(log)

	line, err := gpiocdev.RequestLine(chipName, offset,
		gpiocdev.AsInput,
		gpiocdev.WithBothEdges,
		gpiocdev.WithDebounce(0),
		gpiocdev.WithEventHandler(sw.onEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("hook: requesting line %d on %s: %w", offset, chipName, err)
	}
	sw.line = line
	return sw, nil
}

func (sw *Switch) onEvent(evt gpiocdev.LineEvent) {
	switch evt.Type {
	case gpiocdev.LineEventFallingEdge:
		sw.publish(ON)
	case gpiocdev.LineEventRisingEdge:
		sw.publish(OFF)
	}
}

// OpenSignal is the no-GPIO fallback spec.md §6 allows: each SIGUSR1
// toggles the reported state, for development off the target board.
func OpenSignal(log zerolog.Logger) *Switch {
	sw := newSwitch(log)

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGUSR1)
	state := ON
	go func() {
		for range sigs {
			if state == ON {
				state = OFF
			} else {
				state = ON
			}
			sw.publish(state)
		}
	}()
	return sw
}

// Subscribe returns a fresh channel of future transitions and an
// unsubscribe func.
func (sw *Switch) Subscribe() (<-chan State, func()) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	id := sw.next
	sw.next++
	ch := make(chan State, subBuffer)
	sw.subs[id] = ch
	return ch, func() { sw.unsubscribe(id) }
}

func (sw *Switch) unsubscribe(id int) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if ch, ok := sw.subs[id]; ok {
		delete(sw.subs, id)
		close(ch)
	}
}

func (sw *Switch) publish(s State) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.current = s
	for _, ch := range sw.subs {
		select {
		case ch <- s:
		default:
			sw.log.Warn().Msg("hook subscriber slow, dropping transition")
		}
	}
}

// Close releases the GPIO line, if any, and closes all subscriber
// channels.
func (sw *Switch) Close() error {
	var err error
	sw.closeOnce.Do(func() {
		if sw.line != nil {
			err = sw.line.Close()
		}
		sw.mu.Lock()
		for id, ch := range sw.subs {
			delete(sw.subs, id)
			close(ch)
		}
		sw.mu.Unlock()
	})
	return err
}
