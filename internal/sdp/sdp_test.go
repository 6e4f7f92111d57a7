package sdp

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUnmarshalParsesOriginConnectionAndAudioPort(t *testing.T) {
	body := "v=0\r\n" +
		"o=- 3905350750 3905350750 IN IP4 192.168.100.11\r\n" +
		"s=Frandline\r\n" +
		"c=IN IP4 192.168.100.11\r\n" +
		"t=0 0\r\n" +
		"m=audio 57797 RTP/AVP 0\r\n" +
		"a=rtpmap:0 PCMU/8000\r\n" +
		"a=ptime:20\r\n" +
		"a=maxptime:140\r\n" +
		"a=sendrecv\r\n"

	sd, err := Unmarshal([]byte(body))
	require.NoError(t, err)

	origin, err := sd.Origin()
	require.NoError(t, err)
	require.Equal(t, "3905350750", origin.SessID)
	require.Equal(t, net.ParseIP("192.168.100.11").String(), origin.Address.String())

	connIP, err := sd.ConnectionAddress()
	require.NoError(t, err)
	require.Equal(t, net.ParseIP("192.168.100.11").String(), connIP.String())

	port, err := sd.AudioPort()
	require.NoError(t, err)
	require.Equal(t, 57797, port)
}

// TestOfferRoundTrip covers spec.md invariant 7: SDP encode -> decode
// -> encode yields a byte-identical offer for a fixed sess_id.
func TestOfferRoundTrip(t *testing.T) {
	ip := net.ParseIP("203.0.113.9")
	first := Offer("123456", ip, 19512)

	sd, err := Unmarshal(first)
	require.NoError(t, err)
	origin, err := sd.Origin()
	require.NoError(t, err)

	second := Offer(origin.SessID, ip, 19512)
	require.Equal(t, first, second)
}

func TestSessIDFromRemoteEchoesOrigin(t *testing.T) {
	remote := Offer("999888777", net.ParseIP("198.51.100.7"), 19512)
	sessID, err := SessIDFromRemote(remote)
	require.NoError(t, err)
	require.Equal(t, "999888777", sessID)
}
