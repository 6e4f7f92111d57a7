package rtpshim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketizerWrapUnwrapRoundTrips(t *testing.T) {
	p := NewPacketizer(0xcafebabe, 960)
	payload := EncodePCMU([]int16{100, -100, 0, 32000})

	wire, err := p.Wrap(payload)
	require.NoError(t, err)

	got, err := Unwrap(wire)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestPacketizerAdvancesSequenceAndTimestamp(t *testing.T) {
	p := NewPacketizer(1, 960)

	first, err := p.Wrap([]byte{1, 2})
	require.NoError(t, err)
	second, err := p.Wrap([]byte{1, 2})
	require.NoError(t, err)

	require.NotEqual(t, first, second)
}

func TestPCMURoundTripIsLossyButBounded(t *testing.T) {
	samples := []int16{0, 1000, -1000, 32767, -32768}
	encoded := EncodePCMU(samples)
	decoded := DecodePCMU(encoded)

	require.Len(t, decoded, len(samples))
	for i, s := range samples {
		diff := int(s) - int(decoded[i])
		if diff < 0 {
			diff = -diff
		}
		require.Less(t, diff, 1<<11, "PCMU quantization error should stay well under full scale")
	}
}
