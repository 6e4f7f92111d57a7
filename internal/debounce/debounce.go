// Package debounce turns the noisy per-window digit stream the
// goertzel bank produces into a clean monotone sequence of key-press
// events, one per physical press. It generalizes the edge-trigger
// ("emit only if digit changed") the original Rust goertzelme used
// into the hit/miss hysteresis state machine spec.md §4.2 specifies,
// which tolerates a detection dropping out for fewer than missesToEnd
// consecutive windows without mistaking it for a key release.
package debounce

import "github.com/frandline/frandline/internal/goertzel"

// Debouncer tracks the (sent, current, hits, misses) state spec.md
// §4.2 describes. The zero value is not usable; use New.
type Debouncer struct {
	hitsToBegin int
	missesToEnd int

	sentDig  goertzel.Digit
	currDig  goertzel.Digit
	hits     int
	misses   int
}

// New builds a Debouncer requiring hitsToBegin consecutive identical
// detections before emitting, and missesToEnd consecutive silent
// windows (goertzel.None) before considering the key released; a window
// carrying a different digit resets that miss count.
func New(hitsToBegin, missesToEnd int) *Debouncer {
	return &Debouncer{hitsToBegin: hitsToBegin, missesToEnd: missesToEnd}
}

// Push feeds one window's detection (possibly goertzel.None) and
// reports the digit to emit, if any. At most one digit is emitted per
// physical key press.
func (m *Debouncer) Push(d goertzel.Digit) (emitted goertzel.Digit, ok bool) {
	if m.sentDig != goertzel.None && d == m.sentDig {
		m.hits = 0
		m.misses = 0
		return goertzel.None, false
	}

	if m.sentDig == goertzel.None {
		return m.pushIdle(d)
	}
	return m.pushEmitting(d)
}

func (m *Debouncer) pushIdle(d goertzel.Digit) (goertzel.Digit, bool) {
	if d == goertzel.None {
		m.currDig = goertzel.None
		m.hits = 0
		return goertzel.None, false
	}

	if d != m.currDig {
		m.currDig = d
		m.hits = 1
	} else {
		m.hits++
	}

	if m.hits >= m.hitsToBegin {
		m.sentDig = d
		m.hits = 0
		return d, true
	}
	return goertzel.None, false
}

func (m *Debouncer) pushEmitting(d goertzel.Digit) (goertzel.Digit, bool) {
	if d == goertzel.None {
		m.misses++
		if m.misses >= m.missesToEnd {
			m.sentDig = goertzel.None
			m.currDig = goertzel.None
			m.hits = 0
			m.misses = 0
		}
		return goertzel.None, false
	}

	if d != m.currDig {
		m.currDig = d
		m.hits = 1
	} else {
		m.hits++
	}
	m.misses = 0
	return goertzel.None, false
}
