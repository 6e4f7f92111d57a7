// Package t9 implements multi-tap keypad text entry with mode shifts,
// grounded on the original Rust deco.rs State::poosh/emit state
// machine (Lower/Upper/Symbol/Number, (digit, tap_count) pairs, the
// same per-key tap limits and glyph tables) but generalized so that
// digit '0' outside Symbol/Number always yields the end-of-field
// sentinel spec.md §4.4 describes, rather than silently doing nothing
// when no letter was in flight.
package t9

import "github.com/frandline/frandline/internal/goertzel"

// Sentinel is the end-of-field marker emitted when '0' is pressed
// outside Symbol/Number mode (used by Wi-Fi SSID/password capture to
// know the field is done).
const Sentinel rune = 0

// mode is the decoder's coarse entry mode.
type mode int

const (
	modeLower mode = iota
	modeUpper
	modeSymbol
	modeNumber
)

// noDigit marks "no key pending" in state.digit (distinct from a real
// key, unlike the Rust original's u8::MAX sentinel trick).
const noDigit = -1

type state struct {
	mode  mode
	digit int // noDigit, or 0-9
	taps  int
}

func initialState() state { return state{mode: modeLower, digit: noDigit} }

// Decoder holds the in-flight multi-tap state across key presses. The
// zero value is not usable; use New.
type Decoder struct {
	s state
}

// New builds a Decoder starting in Lower mode with no pending key.
func New() *Decoder { return &Decoder{s: initialState()} }

// Push feeds one debounced keypress ('0'-'9', '*', or '#') and returns
// the characters committed as a result, in order. Most presses commit
// nothing (an empty slice); committing a letter that was mid-tap when
// '0' arrives commits that letter before the Sentinel.
func (d *Decoder) Push(key goertzel.Digit) []rune {
	next, out := poosh(d.s, key)
	d.s = next
	return out
}

// Timeout commits whatever letter is in flight after 3 s of silence
// (spec.md §4.4) and resets to Lower default. It returns the committed
// rune and whether anything was pending.
func (d *Decoder) Timeout() (rune, bool) {
	r, ok := emit(d.s)
	d.s = initialState()
	return r, ok
}

func poosh(s state, key goertzel.Digit) (state, []rune) {
	switch key {
	case '*':
		return initialState(), nil
	case '#':
		r, ok := emit(s)
		if !ok {
			return initialState(), nil
		}
		return initialState(), []rune{r}
	}

	dig := int(key - '0')
	switch s.mode {
	case modeLower:
		return pooshLetters(s, dig, modeLower, modeUpper)
	case modeUpper:
		return pooshLetters(s, dig, modeUpper, modeSymbol)
	case modeSymbol:
		return pooshSymbol(s, dig)
	case modeNumber:
		return state{mode: modeLower, digit: noDigit}, []rune{rune('0' + dig)}
	}
	return s, nil
}

// tapLimit is the number of letters/symbols available on key dig: 4
// for 7 and 9 (pqrs, wxyz), 3 for every other key 2-9.
func tapLimit(dig int) int {
	if dig == 7 || dig == 9 {
		return 4
	}
	return 3
}

// pooshLetters implements the shared Lower/Upper transition shape:
// start a new letter, continue tapping the same key, mode-shift on
// '1', commit-and-restart on a different key, or commit-and-sentinel
// on '0'.
func pooshLetters(s state, dig int, thisMode, nextMode mode) (state, []rune) {
	if s.digit == noDigit {
		switch {
		case dig >= 2 && dig <= 9:
			return state{mode: thisMode, digit: dig, taps: 1}, nil
		case dig == 1:
			return state{mode: nextMode, digit: noDigit}, nil
		case dig == 0:
			return state{mode: modeLower, digit: noDigit}, []rune{Sentinel}
		}
	}

	if s.digit == dig {
		taps := s.taps + 1
		if taps > tapLimit(dig) {
			taps = 1 // cycles back to the key's first letter
		}
		return state{mode: thisMode, digit: dig, taps: taps}, nil
	}

	// A different key (including 0 and 1): commit the pending letter,
	// then handle dig as if freshly pressed from Lower default.
	r, ok := emit(s)
	var committed []rune
	if ok {
		committed = append(committed, r)
	}
	if dig == 0 {
		return state{mode: modeLower, digit: noDigit}, append(committed, Sentinel)
	}
	fresh, out := poosh(state{mode: modeLower, digit: noDigit}, digitToKey(dig))
	return fresh, append(committed, out...)
}

func pooshSymbol(s state, dig int) (state, []rune) {
	if s.digit == noDigit {
		switch {
		case dig >= 2 && dig <= 9:
			return state{mode: modeSymbol, digit: dig, taps: 1}, nil
		case dig == 0:
			return state{mode: modeSymbol, digit: noDigit}, []rune{' '}
		case dig == 1:
			return state{mode: modeNumber, digit: noDigit}, nil
		}
	}

	if s.digit == dig {
		taps := s.taps + 1
		if taps > 4 {
			taps = 1
		}
		return state{mode: modeSymbol, digit: dig, taps: taps}, nil
	}

	r, ok := emit(s)
	var committed []rune
	if ok {
		committed = append(committed, r)
	}
	if dig == 0 {
		return state{mode: modeSymbol, digit: noDigit}, append(committed, ' ')
	}
	fresh, out := poosh(state{mode: modeSymbol, digit: noDigit}, digitToKey(dig))
	return fresh, append(committed, out...)
}

func digitToKey(dig int) goertzel.Digit { return goertzel.Digit('0' + dig) }

var lowerTable = map[[2]int]rune{
	{2, 1}: 'a', {2, 2}: 'b', {2, 3}: 'c',
	{3, 1}: 'd', {3, 2}: 'e', {3, 3}: 'f',
	{4, 1}: 'g', {4, 2}: 'h', {4, 3}: 'i',
	{5, 1}: 'j', {5, 2}: 'k', {5, 3}: 'l',
	{6, 1}: 'm', {6, 2}: 'n', {6, 3}: 'o',
	{7, 1}: 'p', {7, 2}: 'q', {7, 3}: 'r', {7, 4}: 's',
	{8, 1}: 't', {8, 2}: 'u', {8, 3}: 'v',
	{9, 1}: 'w', {9, 2}: 'x', {9, 3}: 'y', {9, 4}: 'z',
}

var upperTable = map[[2]int]rune{
	{2, 1}: 'A', {2, 2}: 'B', {2, 3}: 'C',
	{3, 1}: 'D', {3, 2}: 'E', {3, 3}: 'F',
	{4, 1}: 'G', {4, 2}: 'H', {4, 3}: 'I',
	{5, 1}: 'J', {5, 2}: 'K', {5, 3}: 'L',
	{6, 1}: 'M', {6, 2}: 'N', {6, 3}: 'O',
	{7, 1}: 'P', {7, 2}: 'Q', {7, 3}: 'R', {7, 4}: 'S',
	{8, 1}: 'T', {8, 2}: 'U', {8, 3}: 'V',
	{9, 1}: 'W', {9, 2}: 'X', {9, 3}: 'Y', {9, 4}: 'Z',
}

var symbolTable = map[[2]int]rune{
	{0, 1}: ' ',
	{2, 1}: '!', {2, 2}: '@', {2, 3}: '#', {2, 4}: '$',
	{3, 1}: '%', {3, 2}: '^', {3, 3}: '&', {3, 4}: '*',
	{4, 1}: '(', {4, 2}: ')', {4, 3}: '`', {4, 4}: '~',
	{5, 1}: '[', {5, 2}: ']', {5, 3}: '{', {5, 4}: '}',
	{6, 1}: '/', {6, 2}: '\\', {6, 3}: '?', {6, 4}: '|',
	{7, 1}: '\'', {7, 2}: '"', {7, 3}: ';', {7, 4}: ':',
	{8, 1}: ',', {8, 2}: '.', {8, 3}: '<', {8, 4}: '>',
	{9, 1}: '-', {9, 2}: '_', {9, 3}: '=', {9, 4}: '+',
}

// emit resolves a state's pending (digit, taps) to the glyph it
// represents, if any.
func emit(s state) (rune, bool) {
	if s.digit == noDigit || s.taps == 0 {
		return 0, false
	}
	var table map[[2]int]rune
	switch s.mode {
	case modeLower:
		table = lowerTable
	case modeUpper:
		table = upperTable
	case modeSymbol:
		table = symbolTable
	default:
		return 0, false
	}
	r, ok := table[[2]int{s.digit, s.taps}]
	return r, ok
}
