// Package dialog implements per-call-leg SIP dialog state: message
// construction, tag/branch bookkeeping, and digest authentication
// dances for REGISTER and INVITE. It owns no
// socket; it is handed a send channel and a receive queue by the
// transport that demultiplexes inbound traffic on Call-ID, exactly as
// the original Rust Dialog type took tx_ch/rx_ch rather than a raw
// connection.
//
// Messages are sipgo's own sip.Request/sip.Response/sip.Message types
// (github.com/emiago/sipgo/sip), the same message model diago and
// flowpbx build every request and response on -- sip.NewRequest,
// sip.NewResponseFromRequest, the typed sip.FromHeader/ToHeader/
// ContactHeader/CSeqHeader structs, and the From/To/CallID/CSeq
// accessor methods on *sip.Request, grounded on digest_auth.go,
// register_transaction.go, and flowpbx's internal/sip package.
package dialog

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frandline/frandline/internal/config"
	"github.com/frandline/frandline/internal/digestauth"
	"github.com/frandline/frandline/internal/sdp"
)

// ErrAuthFailed is returned by Register/Invite when the server rejects
// the authenticated retry.
var ErrAuthFailed = fmt.Errorf("dialog: authentication failed")

// Target is a dial destination: a SIP user at the PBX's own host
// (this phone only ever dials other extensions on the same server).
type Target struct {
	User string
}

// Dialog is a single logical call leg. It is not safe for concurrent
// use by more than one goroutine at a time (the phone FSM owns exactly
// one at once and drives it cooperatively from a single goroutine).
type Dialog struct {
	log zerolog.Logger

	c config.Config

	send chan<- sip.Message
	recv <-chan sip.Message

	clientIP     net.IP
	instanceUUID uuid.UUID

	username string
	cseq     uint32

	callID  string
	fromURI sip.Uri
	fromTag string
	toURI   sip.Uri
	toTag   string
	toIsSet bool

	mu sync.Mutex
}

// NewCallID mints a fresh Call-ID: a millisecond timestamp and 16
// random alphanumerics. Callers that need the transport to register a dialog's
// inbox before the Dialog itself exists (every outbound-initiated
// dialog) mint one here, register it, then hand both to New.
func NewCallID() string {
	return fmt.Sprintf("%d/%s", time.Now().UnixMilli(), randAlnum(16))
}

// New builds a dialog for an outbound-initiated call (REGISTER or
// INVITE we place ourselves) around a Call-ID the caller already
// registered with the transport (see NewCallID).
func New(cfg config.Config, clientIP net.IP, instanceUUID uuid.UUID, username, callID string, send chan<- sip.Message, recv <-chan sip.Message, log zerolog.Logger) *Dialog {
	return &Dialog{
		log:          log.With().Str("call_id", callID).Logger(),
		c:            cfg,
		send:         send,
		recv:         recv,
		clientIP:     clientIP,
		instanceUUID: instanceUUID,
		username:     username,
		callID:       callID,
		fromURI:      serverURI(cfg, username),
		fromTag:      sip.GenerateTagN(16),
	}
}

// FromRequest builds a dialog representing the other side of an
// inbound INVITE: From/To are swapped relative to the request, and the
// To tag is generated immediately since we are now the UAS.
func FromRequest(cfg config.Config, clientIP net.IP, instanceUUID uuid.UUID, send chan<- sip.Message, recv <-chan sip.Message, req *sip.Request, log zerolog.Logger) (*Dialog, error) {
	cid := req.CallID()
	if cid == nil {
		return nil, fmt.Errorf("dialog: inbound INVITE missing Call-ID")
	}
	cseqHdr := req.CSeq()
	if cseqHdr == nil {
		return nil, fmt.Errorf("dialog: inbound INVITE missing CSeq")
	}
	fromHdr := req.From()
	toHdr := req.To()
	if fromHdr == nil || toHdr == nil {
		return nil, fmt.Errorf("dialog: inbound INVITE missing From/To")
	}

	callID := cid.Value()
	toTag, _ := fromHdr.Params.Get("tag")

	d := &Dialog{
		log:          log.With().Str("call_id", callID).Logger(),
		c:            cfg,
		send:         send,
		recv:         recv,
		clientIP:     clientIP,
		instanceUUID: instanceUUID,
		username:     toHdr.Address.User,
		cseq:         cseqHdr.SeqNo,
		callID:       callID,
		fromURI:      toHdr.Address,
		fromTag:      sip.GenerateTagN(16),
		toURI:        fromHdr.Address,
		toTag:        toTag,
		toIsSet:      true,
	}
	return d, nil
}

// serverHost resolves the PBX host, honoring ServerAddr as an override
// of ServerName.
func serverHost(cfg config.Config) string {
	if cfg.ServerAddr != "" {
		return cfg.ServerAddr
	}
	return cfg.ServerName
}

func serverURI(cfg config.Config, user string) sip.Uri {
	return sip.Uri{Scheme: "sips", User: user, Host: serverHost(cfg), Port: cfg.ServerPort}
}

func randAlnum(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, n)
	raw := make([]byte, n)
	if _, err := rand.Read(raw); err != nil {
		// uuid.New() falls back to crypto/rand internally too; this path
		// only triggers if the OS RNG is broken, which is unrecoverable.
		panic(fmt.Sprintf("dialog: reading random bytes: %v", err))
	}
	for i, v := range raw {
		b[i] = alphabet[int(v)%len(alphabet)]
	}
	return string(b)
}

func tagParams(tag string) sip.HeaderParams {
	p := sip.NewParams()
	if tag != "" {
		p.Add("tag", tag)
	}
	return p
}

func (d *Dialog) contactHeader() *sip.ContactHeader {
	return &sip.ContactHeader{
		Address: sip.Uri{
			Scheme:    "sips",
			User:      d.username,
			Host:      serverHost(d.c),
			Port:      d.c.ServerPort,
			UriParams: sip.HeaderParams{"transport": "tls", "ob": ""},
		},
		Params: sip.HeaderParams{
			"+sip.instance": fmt.Sprintf(`"<urn:uuid:%s>"`, d.instanceUUID.String()),
			"reg-id":        "1",
		},
	}
}

// NewRequest builds a fresh request within this dialog: increments
// CSeq, generates a branch, and fills in the dialog's standing header
// set.
func (d *Dialog) NewRequest(method sip.RequestMethod, requestURI sip.Uri, body []byte) *sip.Request {
	d.mu.Lock()
	d.cseq++
	cseq := d.cseq
	d.mu.Unlock()

	req := sip.NewRequest(method, requestURI)
	req.AppendHeader(&sip.CSeqHeader{SeqNo: cseq, MethodName: method})
	req.AppendHeader(sip.NewHeader("Via", fmt.Sprintf("SIP/2.0/TLS %s;branch=%s;rport", d.c.ServerHostPort(), sip.GenerateBranch())))
	maxFwd := sip.MaxForwardsHeader(d.c.MaxForwards)
	req.AppendHeader(&maxFwd)
	req.AppendHeader(sip.NewHeader("User-Agent", d.c.UserAgent))
	req.AppendHeader(sip.NewHeader("Call-ID", d.callID))
	req.AppendHeader(d.contactHeader())
	req.AppendHeader(&sip.FromHeader{Address: d.fromURI, Params: tagParams(d.fromTag)})
	if d.toIsSet {
		req.AppendHeader(&sip.ToHeader{Address: d.toURI, Params: tagParams(d.toTag)})
	}
	if len(body) > 0 {
		req.SetBody(body)
	}
	return req
}

// ResponseTo builds a response within this dialog via
// sip.NewResponseFromRequest, which already copies Via/From/To/Call-ID/
// CSeq off req, then, when req's To carries no tag, adds the dialog's
// own local tag: the UAS tag is minted once when the dialog is built
// and reused for every reply in the dialog.
func (d *Dialog) ResponseTo(req *sip.Request, statusCode int, reason string, body []byte) *sip.Response {
	resp := sip.NewResponseFromRequest(req, sip.StatusCode(statusCode), reason, body)

	if to := resp.To(); to != nil {
		if _, hasTag := to.Params.Get("tag"); !hasTag {
			to.Params.Add("tag", d.fromTag)
		}
	}
	resp.AppendHeader(d.contactHeader())
	return resp
}

// SDPFrom parses the remote offer/answer in req and builds our own SDP
// body echoing its sess_id back to the remote side.
func (d *Dialog) SDPFrom(req *sip.Request) ([]byte, error) {
	sessID, err := sdp.SessIDFromRemote(req.Body())
	if err != nil {
		return nil, fmt.Errorf("dialog: parsing remote SDP: %w", err)
	}
	return sdp.Offer(sessID, d.clientIP, d.c.RTPPort), nil
}

// SDPResponseTo is ResponseTo plus an SDP body and Content-Type.
func (d *Dialog) SDPResponseTo(req *sip.Request, statusCode int, reason string, sdpBody []byte) *sip.Response {
	resp := d.ResponseTo(req, statusCode, reason, sdpBody)
	resp.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	return resp
}

// AddAuthToRequest computes the Authorization header for req in
// response to a 401/407 challenge and mutates req in place (digest
// MD5, qop=auth, Expires=3600).
func (d *Dialog) AddAuthToRequest(req *sip.Request, challengeStatus int, challengeHeaderValue, password string) error {
	_, authHeader := digestauth.ChallengeHeaderFor(challengeStatus)
	value, err := digestauth.Authorize(challengeHeaderValue, string(req.Method), req.Recipient.String(), d.username, password)
	if err != nil {
		return err
	}
	req.AppendHeader(sip.NewHeader(authHeader, value))
	exp := sip.ExpiresHeader(3600)
	req.AppendHeader(&exp)
	return nil
}

// Send enqueues msg on the transport's outbound channel.
func (d *Dialog) Send(ctx context.Context, msg sip.Message) error {
	d.log.Trace().Str("start_line", msg.StartLine()).Msg("sip send")
	select {
	case d.send <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recv blocks for the next message demultiplexed to this dialog.
func (d *Dialog) Recv(ctx context.Context) (sip.Message, error) {
	select {
	case msg, ok := <-d.recv:
		if !ok {
			return nil, fmt.Errorf("dialog: inbox closed")
		}
		d.log.Trace().Str("start_line", msg.StartLine()).Msg("sip recv")
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// recvResponse is Recv narrowed to the common case of awaiting our own
// request's response; an inbound request landing in the same inbox
// (e.g. a race with CANCEL) is reported as an error rather than
// silently discarded.
func (d *Dialog) recvResponse(ctx context.Context) (*sip.Response, error) {
	msg, err := d.Recv(ctx)
	if err != nil {
		return nil, err
	}
	resp, ok := msg.(*sip.Response)
	if !ok {
		return nil, fmt.Errorf("dialog: expected response, got %s", msg.StartLine())
	}
	return resp, nil
}

// CallID returns the dialog's Call-ID, used by the transport as the
// demux key.
func (d *Dialog) CallID() string { return d.callID }

// Register performs the REGISTER challenge/response dance, ending in
// a 2xx or ErrAuthFailed.
func (d *Dialog) Register(ctx context.Context, password string) error {
	registerURI := sip.Uri{Scheme: "sips", Host: serverHost(d.c), Port: d.c.ServerPort}

	req := d.NewRequest(sip.REGISTER, registerURI, nil)
	exp := sip.ExpiresHeader(d.c.RegisterExpiry.Seconds())
	req.AppendHeader(&exp)
	if err := d.Send(ctx, req); err != nil {
		return err
	}

	resp, err := d.recvResponse(ctx)
	if err != nil {
		return err
	}
	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		if resp.StatusCode/100 == 2 {
			return nil
		}
		return fmt.Errorf("%w: unexpected REGISTER response %d", ErrAuthFailed, resp.StatusCode)
	}

	challengeHeader, _ := digestauth.ChallengeHeaderFor(int(resp.StatusCode))
	challengeHdr := resp.GetHeader(challengeHeader)
	if challengeHdr == nil {
		return fmt.Errorf("%w: missing %s header", ErrAuthFailed, challengeHeader)
	}

	authedReq := d.NewRequest(sip.REGISTER, registerURI, nil)
	authedExp := sip.ExpiresHeader(d.c.RegisterExpiry.Seconds())
	authedReq.AppendHeader(&authedExp)
	if err := d.AddAuthToRequest(authedReq, int(resp.StatusCode), challengeHdr.Value(), password); err != nil {
		return err
	}
	if err := d.Send(ctx, authedReq); err != nil {
		return err
	}

	finalResp, err := d.recvResponse(ctx)
	if err != nil {
		return err
	}
	if finalResp.StatusCode/100 != 2 {
		return fmt.Errorf("%w: REGISTER rejected with %d", ErrAuthFailed, finalResp.StatusCode)
	}
	return nil
}

// Invite places an outbound call to target. When the first response is
// a 401/407 challenge it resends the INVITE with credentials and
// returns as soon as that retry is sent, without waiting for a
// response to it; any other first response is consumed here and Invite
// returns at once. The caller (the phone FSM) reads every later
// provisional/final response itself via Recv.
func (d *Dialog) Invite(ctx context.Context, password string, target Target) ([]byte, error) {
	sessID := strconv.FormatInt(time.Now().UnixMicro(), 10)
	offer := sdp.Offer(sessID, d.clientIP, d.c.RTPPort)

	inviteURI := sip.Uri{Scheme: "sips", User: target.User, Host: serverHost(d.c), Port: d.c.ServerPort}
	d.toURI = inviteURI
	d.toIsSet = true

	req := d.NewRequest(sip.INVITE, inviteURI, offer)
	req.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := d.Send(ctx, req); err != nil {
		return nil, err
	}

	resp, err := d.recvResponse(ctx)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		return offer, nil
	}

	challengeHeader, _ := digestauth.ChallengeHeaderFor(int(resp.StatusCode))
	challengeHdr := resp.GetHeader(challengeHeader)
	if challengeHdr == nil {
		return nil, fmt.Errorf("%w: missing %s header", ErrAuthFailed, challengeHeader)
	}

	authedReq := d.NewRequest(sip.INVITE, inviteURI, offer)
	authedReq.AppendHeader(sip.NewHeader("Content-Type", "application/sdp"))
	if err := d.AddAuthToRequest(authedReq, int(resp.StatusCode), challengeHdr.Value(), password); err != nil {
		return nil, err
	}
	if err := d.Send(ctx, authedReq); err != nil {
		return nil, err
	}
	return offer, nil
}

// Ack builds and sends an ACK for a 2xx response, outside the RFC 3261
// transaction layer. The ACK reuses the INVITE transaction's CSeq
// number rather than the dialog's own incrementing counter, per RFC
// 3261 §17.1.1.3.
func (d *Dialog) Ack(ctx context.Context, resp *sip.Response) error {
	req := d.NewRequest(sip.ACK, d.toURI, nil)
	respCseq := resp.CSeq()
	if respCseq == nil {
		return fmt.Errorf("dialog: response missing CSeq")
	}
	if reqCseq := req.CSeq(); reqCseq != nil {
		reqCseq.SeqNo = respCseq.SeqNo
	}
	return d.Send(ctx, req)
}

// Cancel sends a CANCEL for the pending INVITE.
func (d *Dialog) Cancel(ctx context.Context) error {
	req := d.NewRequest(sip.CANCEL, d.toURI, nil)
	return d.Send(ctx, req)
}

// Bye sends a BYE to terminate an established dialog.
func (d *Dialog) Bye(ctx context.Context) error {
	req := d.NewRequest(sip.BYE, d.toURI, nil)
	return d.Send(ctx, req)
}
