package dialog

import (
	"context"
	"net"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/frandline/frandline/internal/config"
)

func newTestDialog(t *testing.T) (*Dialog, chan sip.Message, chan sip.Message) {
	t.Helper()
	send := make(chan sip.Message, 8)
	recv := make(chan sip.Message, 8)
	d := New(config.Default(), net.ParseIP("192.0.2.10"), uuid.New(), "1100", NewCallID(), send, recv, zerolog.Nop())
	return d, send, recv
}

func TestNewRequestIncrementsCSeqMonotonically(t *testing.T) {
	d, _, _ := newTestDialog(t)

	registerURI := sip.Uri{Scheme: "sips", Host: "pbx.frandline.com", Port: 5061}
	first := d.NewRequest(sip.REGISTER, registerURI, nil)
	second := d.NewRequest(sip.REGISTER, registerURI, nil)

	require.Greater(t, second.CSeq().SeqNo, first.CSeq().SeqNo)
}

func TestRegisterSucceedsAfterDigestChallenge(t *testing.T) {
	d, send, recv := newTestDialog(t)

	go func() {
		msg := <-send
		req, ok := msg.(*sip.Request)
		require.True(t, ok)
		require.Equal(t, sip.REGISTER, req.Method)

		challenge := sip.NewResponseFromRequest(req, 401, "Unauthorized", nil)
		challenge.AppendHeader(sip.NewHeader("WWW-Authenticate", `Digest realm="asterisk", nonce="abc123", qop="auth"`))
		recv <- challenge

		authedMsg := <-send
		authed, ok := authedMsg.(*sip.Request)
		require.True(t, ok)
		require.NotNil(t, authed.GetHeader("Authorization"))

		ok2 := sip.NewResponseFromRequest(authed, 200, "OK", nil)
		recv <- ok2
	}()

	err := d.Register(context.Background(), "secret")
	require.NoError(t, err)
}

func TestRegisterFailsOnRejectedAuth(t *testing.T) {
	d, send, recv := newTestDialog(t)

	go func() {
		msg := <-send
		req := msg.(*sip.Request)
		challenge := sip.NewResponseFromRequest(req, 401, "Unauthorized", nil)
		challenge.AppendHeader(sip.NewHeader("WWW-Authenticate", `Digest realm="asterisk", nonce="abc123", qop="auth"`))
		recv <- challenge

		authedMsg := <-send
		authed := authedMsg.(*sip.Request)
		recv <- sip.NewResponseFromRequest(authed, 403, "Forbidden", nil)
	}()

	err := d.Register(context.Background(), "secret")
	require.ErrorIs(t, err, ErrAuthFailed)
}
