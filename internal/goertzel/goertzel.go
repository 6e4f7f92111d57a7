// Package goertzel detects DTMF digits in a PCM sample stream using a
// bank of seven Goertzel resonators, one per standard DTMF frequency,
// grounded on the original Rust Goertzeler/goertzelme (Hamming-windowed
// accumulation, per-window row/column peak-and-twist decision) but
// generalized to the richer threshold set spec.md §4.1 describes
// (absolute magnitude floor, relative peak margins per group, and a
// total-energy dominance check) rather than the single THRESHOLD_MAG
// ratio the original used.
package goertzel

import (
	"math"

	"github.com/frandline/frandline/internal/config"
)

// Digit is a detected DTMF key, or None. The zero value is None so an
// unset Digit reads naturally as "no tone".
type Digit rune

// None means no digit is currently being pressed.
const None Digit = 0

var freqs = [7]float64{697, 770, 852, 941, 1209, 1336, 1477}

// rowCount is the number of low-group (row) frequencies; the remaining
// entries in freqs are the high-group (column) frequencies.
const rowCount = 4

// keypad[rowIdx][colIdx] maps a (row, column) frequency pair to its
// DTMF digit, colIdx counted from 0 within the high-group frequencies.
var keypad = [4][3]Digit{
	{'1', '2', '3'},
	{'4', '5', '6'},
	{'7', '8', '9'},
	{'*', '0', '#'},
}

// Bank is one sliding Goertzel detector covering CHUNK_SIZE samples at
// a time; it is not safe for concurrent use.
type Bank struct {
	c config.Config

	coeffs   [7]float64
	hamming  []float64
	sampleIx int

	q1 [7]float64
	q2 [7]float64

	totalEnergy float64

	lastDigit Digit
}

// NewBank precomputes the Goertzel coefficients and Hamming window for
// cfg's sample rate and chunk size.
func NewBank(cfg config.Config) *Bank {
	n := float64(cfg.ChunkSize)
	b := &Bank{c: cfg, hamming: make([]float64, cfg.ChunkSize)}
	for i, f := range freqs {
		b.coeffs[i] = 2 * math.Cos(2*math.Pi/n*(0.5+n*f/float64(cfg.SampleFreq)))
	}
	for nIdx := 0; nIdx < cfg.ChunkSize; nIdx++ {
		b.hamming[nIdx] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(nIdx)/float64(cfg.ChunkSize-1))
	}
	return b
}

// Push feeds one PCM sample into the bank. Once WindowInterval samples
// have accumulated it evaluates the window and returns the detected
// digit (which may be None); between window boundaries it returns
// (None, false).
func (b *Bank) Push(sample float64) (digit Digit, ready bool) {
	windowed := sample * b.hamming[b.sampleIx]
	for i, coeff := range b.coeffs {
		q0 := coeff*b.q1[i] - b.q2[i] + windowed
		b.q2[i] = b.q1[i]
		b.q1[i] = q0
	}
	b.totalEnergy += windowed * windowed

	b.sampleIx++
	if b.sampleIx < b.c.WindowInterval {
		return None, false
	}

	d := b.decide()
	b.reset()
	return d, true
}

func (b *Bank) reset() {
	b.sampleIx = 0
	b.totalEnergy = 0
	for i := range b.q1 {
		b.q1[i] = 0
		b.q2[i] = 0
	}
}

type scored struct {
	idx int
	mag float64
}

// decide implements get_digit(): energy per frequency, strongest and
// runner-up in each of the row group and column group, then the three
// spec.md §4.1 threshold checks.
func (b *Bank) decide() Digit {
	energies := make([]float64, 7)
	for i, coeff := range b.coeffs {
		q1, q2 := b.q1[i], b.q2[i]
		energies[i] = q1*q1 + q2*q2 - q1*q2*coeff
	}

	rows := topTwo(energies[:rowCount], 0)
	cols := topTwo(energies[rowCount:], rowCount)

	rMax, rIdx, r2 := rows[0].mag, rows[0].idx, rows[1].mag
	cMax, cIdx, c2 := cols[0].mag, cols[0].idx, cols[1].mag

	if rMax < b.c.ThreshMag || cMax < b.c.ThreshMag {
		return None
	}
	if rMax < r2*b.c.ThreshRelPeakRow || cMax < c2*b.c.ThreshRelPeakCol {
		return None
	}
	if rMax+cMax < b.c.ThreshRelEnergy*b.totalEnergy {
		return None
	}

	return keypad[rIdx][cIdx-rowCount]
}

// topTwo returns the two highest-energy entries in group, descending,
// with idx offset by base so callers can recover the index into the
// full 7-frequency array.
func topTwo(group []float64, base int) [2]scored {
	best := scored{idx: base, mag: -1}
	second := scored{idx: base, mag: -1}
	for i, mag := range group {
		if mag > best.mag {
			second = best
			best = scored{idx: base + i, mag: mag}
		} else if mag > second.mag {
			second = scored{idx: base + i, mag: mag}
		}
	}
	return [2]scored{best, second}
}
