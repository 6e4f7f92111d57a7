package sipmsg

import (
	"bufio"
	"strings"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"
)

func TestReadMessageParsesHeadAndContentLengthBody(t *testing.T) {
	raw := "INVITE sips:bob@pbx.frandline.com SIP/2.0\r\n" +
		"Call-ID: abc123\r\n" +
		"CSeq: 1 INVITE\r\n" +
		"Content-Length: 4\r\n" +
		"\r\n" +
		"ABCD"

	msg, err := ReadMessage(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	req, ok := msg.(*sip.Request)
	require.True(t, ok)
	require.Equal(t, sip.INVITE, req.Method)
	require.Equal(t, "abc123", req.CallID().Value())
	require.Equal(t, []byte("ABCD"), req.Body())
}

func TestReadMessageNoBody(t *testing.T) {
	raw := "SIP/2.0 200 OK\r\n" +
		"Call-ID: xyz\r\n" +
		"CSeq: 1 REGISTER\r\n" +
		"\r\n"

	msg, err := ReadMessage(bufio.NewReader(strings.NewReader(raw)))
	require.NoError(t, err)

	resp, ok := msg.(*sip.Response)
	require.True(t, ok)
	require.Equal(t, sip.StatusCode(200), resp.StatusCode)
	require.Empty(t, resp.Body())
}
