// Package transport implements the single persistent TLS connection to
// the SIP server: a line-framed reader that demultiplexes inbound
// messages onto per-Call-ID dialog inboxes, and a writer that drains a
// shared outbound queue, grounded on the original Rust TLSConn (one
// task per direction, channels rather than shared mutable state) but
// generalized to read a Content-Length body rather than assume bodies
// never appear, and to answer unsolicited inbound requests itself
// rather than leaving them to the caller.
//
// Messages in flight are sipgo's sip.Message (the common interface
// over *sip.Request and *sip.Response); sipmsg.ReadMessage is what
// turns raw bytes off the wire into one, via sip.ParseMessage.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"

	"github.com/frandline/frandline/internal/config"
	"github.com/frandline/frandline/internal/sipmsg"
)

const outboundQueueSize = 64

// ErrClosed names a closed connection. No function in this package
// returns it: a dead connection is signalled by Done and by the closing
// of every dialog inbox.
var ErrClosed = fmt.Errorf("transport: connection closed")

// Transport owns one TLS connection and the Call-ID -> inbox table
// that demultiplexes inbound SIP messages to dialogs. The registry is
// a field of Transport, not a package global, so multiple Transport
// instances never share state.
type Transport struct {
	log zerolog.Logger
	c   config.Config

	conn net.Conn

	outbound chan sip.Message

	mu     sync.RWMutex
	inbox  map[string]chan sip.Message
	closed bool

	// NewInvites delivers inbound out-of-dialog INVITE requests to the
	// phone FSM, which decides whether to ring or reply 486.
	NewInvites chan *sip.Request

	cancel context.CancelFunc
	done   chan struct{}
}

// Dial opens the TLS connection to cfg.ServerHostPort (or ServerAddr,
// if set) and starts the reader/writer goroutines.
func Dial(ctx context.Context, cfg config.Config, log zerolog.Logger) (*Transport, error) {
	dialer := &net.Dialer{}
	tlsConf := &tls.Config{ServerName: cfg.ServerName}

	rawConn, err := dialer.DialContext(ctx, "tcp", cfg.ServerHostPort())
	if err != nil {
		return nil, fmt.Errorf("transport: dialing %s: %w", cfg.ServerHostPort(), err)
	}
	conn := tls.Client(rawConn, tlsConf)
	if err := conn.HandshakeContext(ctx); err != nil {
		rawConn.Close()
		return nil, fmt.Errorf("transport: TLS handshake with %s: %w", cfg.ServerHostPort(), err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		log:        log.With().Str("component", "transport").Logger(),
		c:          cfg,
		conn:       conn,
		outbound:   make(chan sip.Message, outboundQueueSize),
		inbox:      make(map[string]chan sip.Message),
		NewInvites: make(chan *sip.Request, 8),
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go t.readLoop(runCtx)
	go t.writeLoop(runCtx)

	return t, nil
}

// Register creates (or replaces) the inbox for callID and returns it.
// The phone FSM calls this before sending the first request of a new
// dialog so responses have somewhere to land.
func (t *Transport) Register(callID string) <-chan sip.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan sip.Message, 16)
	t.inbox[callID] = ch
	return ch
}

// Unregister removes and closes callID's inbox once its dialog ends.
func (t *Transport) Unregister(callID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.inbox[callID]; ok {
		delete(t.inbox, callID)
		close(ch)
	}
}

// Send returns the outbound queue the writer goroutine drains. Sending
// on it is safe for concurrent use by multiple dialogs.
func (t *Transport) Send() chan<- sip.Message { return t.outbound }

// Done returns a channel closed once the reader goroutine has exited and
// torn down every dialog inbox, signaling that the connection has died.
// Callers holding an open dialog select on this alongside their own
// inputs to detect a transport-scoped failure.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Close tears down the connection and all dialog inboxes.
func (t *Transport) Close() error {
	t.cancel()
	err := t.conn.Close()
	<-t.done
	return err
}

func (t *Transport) readLoop(ctx context.Context) {
	defer close(t.done)
	defer t.teardown()

	r := bufio.NewReader(t.conn)
	for {
		msg, err := sipmsg.ReadMessage(r)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.Warn().Err(err).Msg("sip transport read failed")
			return
		}
		t.route(ctx, msg)
	}
}

func (t *Transport) route(ctx context.Context, msg sip.Message) {
	callID := ""
	if cid := msg.CallID(); cid != nil {
		callID = cid.Value()
	}

	t.mu.RLock()
	ch, known := t.inbox[callID]
	t.mu.RUnlock()

	if known {
		select {
		case ch <- msg:
		case <-ctx.Done():
		default:
			t.log.Warn().Str("call_id", callID).Msg("dialog inbox full, dropping message")
		}
		return
	}

	if req, ok := msg.(*sip.Request); ok {
		t.handleUnsolicited(ctx, req)
		return
	}

	t.log.Debug().Str("call_id", callID).Str("start_line", msg.StartLine()).Msg("response for unknown dialog, discarding")
}

// handleUnsolicited answers requests that arrive outside any known
// dialog: OPTIONS -> 200, out-of-dialog BYE -> 200, out-of-dialog
// CANCEL -> 200 + 487. Inbound INVITE is instead handed
// to the phone FSM, which decides whether to ring or reply 486 Busy
// Here when no ringing slot is available.
func (t *Transport) handleUnsolicited(ctx context.Context, req *sip.Request) {
	switch req.Method {
	case sip.OPTIONS:
		t.reply(ctx, req, 200, "OK")
	case sip.BYE:
		t.reply(ctx, req, 200, "OK")
	case sip.CANCEL:
		t.reply(ctx, req, 200, "OK")
		t.reply(ctx, req, 487, "Request Terminated")
	case sip.INVITE:
		select {
		case t.NewInvites <- req:
		case <-ctx.Done():
		default:
			t.log.Warn().Msg("no ringing slot available, rejecting inbound INVITE")
			t.reply(ctx, req, 486, "Busy Here")
		}
	default:
		t.log.Debug().Str("method", string(req.Method)).Msg("unsolicited request, ignoring")
	}
}

func (t *Transport) reply(ctx context.Context, req *sip.Request, statusCode int, reason string) {
	resp := sip.NewResponseFromRequest(req, sip.StatusCode(statusCode), reason, nil)
	select {
	case t.outbound <- resp:
	case <-ctx.Done():
	}
}

func (t *Transport) writeLoop(ctx context.Context) {
	for {
		select {
		case msg, ok := <-t.outbound:
			if !ok {
				return
			}
			if err := sipmsg.WriteMessage(t.conn, msg); err != nil {
				t.log.Warn().Err(err).Msg("sip transport write failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (t *Transport) teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for callID, ch := range t.inbox {
		delete(t.inbox, callID)
		close(ch)
	}
	close(t.NewInvites)
}
