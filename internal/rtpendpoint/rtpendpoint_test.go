package rtpendpoint

import (
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/config"
)

func TestIsInNetHonorsConfiguredPrivateRange(t *testing.T) {
	cfg := config.Default()
	cfg.RTPPort = 0 // ephemeral, avoid colliding with a real deployment

	e, err := Bind(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	require.True(t, e.IsInNet(net.ParseIP("10.100.5.9")))
	require.False(t, e.IsInNet(net.ParseIP("203.0.113.4")))
}

func TestBindReturnsAPort(t *testing.T) {
	cfg := config.Default()
	cfg.RTPPort = 0

	e, err := Bind(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	require.NotZero(t, e.Port())
}

func TestRawCodecRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.RTPPort = 0

	e, err := Bind(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	frame := []int16{1, -1, 0, 32000, -32000}
	wire := e.encodeOut(frame)
	require.Equal(t, frame, e.decodeIn(wire))
}

func TestRTPRealHeadersCodecRoundTrips(t *testing.T) {
	cfg := config.Default()
	cfg.RTPPort = 0
	cfg.RTPRealHeaders = true

	e, err := Bind(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	frame := make([]int16, SamplesPerFrame)
	for i := range frame {
		frame[i] = int16(i)
	}
	wire := e.encodeOut(frame)
	require.NotNil(t, wire)
	require.Equal(t, frame, e.decodeIn(wire))
}

func TestPCMUTranscodeCodecIsLossyButBounded(t *testing.T) {
	cfg := config.Default()
	cfg.RTPPort = 0
	cfg.RTPRealHeaders = true
	cfg.CodecTranscodePCMU = true

	e, err := Bind(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer e.Close()

	frame := []int16{0, 1000, -1000, 30000, -30000}
	wire := e.encodeOut(frame)
	require.NotNil(t, wire)

	got := e.decodeIn(wire)
	require.Len(t, got, len(frame))
	for i, s := range frame {
		diff := int(s) - int(got[i])
		if diff < 0 {
			diff = -diff
		}
		require.Less(t, diff, 1<<11)
	}
}
