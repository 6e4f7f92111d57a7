package t9

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestMultiTapCommitsOnKeyChange covers spec.md scenario S2: two taps
// of key 4 (Lower 'h'), then two taps of key 3 (Lower 'e') after idle,
// committing 'h' the moment a different key interrupts the first run.
func TestMultiTapCommitsOnKeyChange(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('4'))
	require.Empty(t, d.Push('4'))

	out := d.Push('3')
	require.Equal(t, []rune{'h'}, out)

	require.Empty(t, d.Push('3'))

	r, ok := d.Timeout()
	require.True(t, ok)
	require.Equal(t, 'e', r)
}

// TestModeShiftThenLetter covers spec.md scenario S3: '1' shifts Lower
// to Upper, then a single tap of '2' commits 'A' after timeout.
func TestModeShiftThenLetter(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('1'))
	require.Empty(t, d.Push('2'))

	r, ok := d.Timeout()
	require.True(t, ok)
	require.Equal(t, 'A', r)
}

// TestDoubleModeShiftReachesSymbol covers the Lower->Upper->Symbol
// cascade, then a single tap committing a punctuation glyph.
func TestDoubleModeShiftReachesSymbol(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('1'))
	require.Empty(t, d.Push('1'))
	require.Empty(t, d.Push('2'))

	r, ok := d.Timeout()
	require.True(t, ok)
	require.Equal(t, '!', r)
}

// TestDigitZeroOutsideSymbolNumberEmitsSentinel covers spec.md §4.4:
// '0' outside Symbol/Number commits any in-flight letter and emits the
// end-of-field sentinel, used by Wi-Fi SSID/password capture.
func TestDigitZeroOutsideSymbolNumberEmitsSentinel(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('2')) // start 'a'

	out := d.Push('0')
	require.Equal(t, []rune{'a', Sentinel}, out)
}

// TestDigitZeroIdleEmitsBareSentinel covers '0' pressed with nothing
// in flight: still the sentinel, with no letter to commit first.
func TestDigitZeroIdleEmitsBareSentinel(t *testing.T) {
	d := New()

	out := d.Push('0')
	require.Equal(t, []rune{Sentinel}, out)
}

// TestStarCancelsInFlightLetter covers '*' discarding the current tap
// run without emitting anything.
func TestStarCancelsInFlightLetter(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('7'))
	require.Empty(t, d.Push('7'))
	require.Empty(t, d.Push('*'))

	r, ok := d.Timeout()
	require.False(t, ok)
	require.Equal(t, rune(0), r)
}

// TestOctothorpeCommitsImmediately covers '#' committing the in-flight
// letter without waiting for the timeout.
func TestOctothorpeCommitsImmediately(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('7'))
	require.Empty(t, d.Push('7'))
	require.Empty(t, d.Push('7'))

	out := d.Push('#')
	require.Equal(t, []rune{'r'}, out)
}

// TestTapCyclingWrapsPastKeyLimit covers pressing the same key more
// times than it has letters: the count wraps back to the first glyph
// rather than losing the key.
func TestTapCyclingWrapsPastKeyLimit(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('2'))
	require.Empty(t, d.Push('2'))
	require.Empty(t, d.Push('2'))
	require.Empty(t, d.Push('2')) // wraps past 'c' back to 'a'

	r, ok := d.Timeout()
	require.True(t, ok)
	require.Equal(t, 'a', r)
}

// TestNumberModeCommitsSingleDigitAndReverts covers Symbol -> Number
// via mode-shift, one digit committed immediately, then reverting to
// Lower for the next letter.
func TestNumberModeCommitsSingleDigitAndReverts(t *testing.T) {
	d := New()

	require.Empty(t, d.Push('1')) // Lower -> Upper
	require.Empty(t, d.Push('1')) // Upper -> Symbol
	require.Empty(t, d.Push('1')) // Symbol -> Number

	out := d.Push('5')
	require.Equal(t, []rune{'5'}, out)

	require.Empty(t, d.Push('2')) // back in Lower, starts 'a'
	r, ok := d.Timeout()
	require.True(t, ok)
	require.Equal(t, 'a', r)
}
