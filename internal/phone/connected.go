// Connected(Dial) sub-state handlers, one function per dialState, each
// an await-on-a-select loop per spec.md §4.9/§5: it blocks until one of
// its valid events fires, handles it, and either loops (no transition
// yet) or returns the next phoneState. Every exit path releases exactly
// the resources the next state does not carry forward, per §5's "no
// state ever leaks a background task on a transition".
package phone

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/frandline/frandline/internal/dialog"
	"github.com/frandline/frandline/internal/hook"
	"github.com/frandline/frandline/internal/rtpendpoint"
	"github.com/frandline/frandline/internal/sdp"
	"github.com/frandline/frandline/internal/tone"
)

func (p *Phone) stepConnected(ctx context.Context, s connectedState) phoneState {
	switch s.dial {
	case dialOnHook:
		return p.connOnHook(ctx, s)
	case dialRinging:
		return p.connRinging(ctx, s)
	case dialAwait:
		return p.connAwait(ctx, s)
	case dialDialOut:
		return p.connDialOut(ctx, s)
	case dialDialing:
		return p.connDialing(ctx, s)
	case dialConnected:
		return p.connConnected(ctx, s)
	case dialBusy:
		return p.connBusy(ctx, s)
	case dialError:
		return p.connError(ctx, s)
	default:
		return disconnectedState{wifi: wifiError, cause: fmt.Errorf("phone: unknown dial state %d", s.dial)}
	}
}

func transportDiedErr() error { return fmt.Errorf("phone: transport closed") }

// connOnHook waits for an inbound call or the handset being lifted.
func (p *Phone) connOnHook(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	for {
		select {
		case req, ok := <-s.tr.NewInvites:
			if !ok {
				return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
			}
			return p.beginRinging(ctx, s, req)
		case st := <-hookCh:
			if st == hook.OFF {
				return connectedState{tr: s.tr, dial: dialAwait}
			}
		case <-s.tr.Done():
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

// beginRinging answers an inbound INVITE with 100 Trying then 180
// Ringing, opens the RTP socket the eventual answer will use, and starts
// the bell.
func (p *Phone) beginRinging(ctx context.Context, s connectedState, req *sip.Request) phoneState {
	cid := req.CallID()
	if cid == nil {
		p.log.Warn().Msg("inbound INVITE missing Call-ID, ignoring")
		return s
	}
	callID := cid.Value()
	recv := s.tr.Register(callID)
	dlg, err := dialog.FromRequest(p.cfg, p.clientIP, p.instanceUUID, s.tr.Send(), recv, req, p.log)
	if err != nil {
		p.log.Warn().Err(err).Msg("malformed inbound INVITE, ignoring")
		s.tr.Unregister(callID)
		return s
	}

	if err := dlg.Send(ctx, dlg.ResponseTo(req, 100, "Trying", nil)); err != nil {
		s.tr.Unregister(callID)
		return connectedState{tr: s.tr, dial: dialError, cause: err}
	}
	if err := dlg.Send(ctx, dlg.ResponseTo(req, 180, "Ringing", nil)); err != nil {
		s.tr.Unregister(callID)
		return connectedState{tr: s.tr, dial: dialError, cause: err}
	}

	rtp, err := rtpendpoint.Bind(p.cfg, p.log)
	if err != nil {
		dlg.Send(ctx, dlg.ResponseTo(req, 500, "Server Internal Error", nil))
		s.tr.Unregister(callID)
		return connectedState{tr: s.tr, dial: dialError, cause: err}
	}

	stopBell := p.bell.PlayBackground()

	return connectedState{tr: s.tr, dial: dialRinging, dlg: dlg, rtp: rtp, invite: req, stopBell: stopBell}
}

// connRinging waits for the handset to be lifted (answer) or a CANCEL
// from the caller.
func (p *Phone) connRinging(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	recvCh := recvAsync(ctx, s.dlg)

	for {
		select {
		case st := <-hookCh:
			if st == hook.OFF {
				return p.answerCall(ctx, s)
			}
		case r := <-recvCh:
			if r.err != nil {
				return p.teardownRingingToError(s, r.err)
			}
			if req, ok := r.msg.(*sip.Request); ok && req.Method == sip.CANCEL {
				return p.endRinging(ctx, s, req)
			}
			recvCh = recvAsync(ctx, s.dlg)
		case <-s.tr.Done():
			if s.stopBell != nil {
				s.stopBell()
			}
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

func (p *Phone) endRinging(ctx context.Context, s connectedState, cancelReq *sip.Request) phoneState {
	if s.stopBell != nil {
		s.stopBell()
	}
	s.dlg.Send(ctx, s.dlg.ResponseTo(cancelReq, 200, "OK", nil))
	s.dlg.Send(ctx, s.dlg.ResponseTo(s.invite, 487, "Request Terminated", nil))
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	return connectedState{tr: s.tr, dial: dialOnHook}
}

func (p *Phone) teardownRingingToError(s connectedState, err error) phoneState {
	if s.stopBell != nil {
		s.stopBell()
	}
	if s.rtp != nil {
		s.rtp.Close()
	}
	s.tr.Unregister(s.dlg.CallID())
	p.log.Warn().Err(err).Msg("inbound call failed while ringing")
	return connectedState{tr: s.tr, dial: dialError, cause: err}
}

// answerCall sends the 200 OK + SDP answer, awaits the ACK, and starts
// the media bridge once the remote media address clears policy.
func (p *Phone) answerCall(ctx context.Context, s connectedState) phoneState {
	if s.stopBell != nil {
		s.stopBell()
	}

	answer, err := s.dlg.SDPFrom(s.invite)
	if err != nil {
		return p.teardownRingingToError(s, err)
	}
	if err := s.dlg.Send(ctx, s.dlg.SDPResponseTo(s.invite, 200, "OK", answer)); err != nil {
		return p.teardownRingingToError(s, err)
	}

	select {
	case r := <-recvAsync(ctx, s.dlg):
		req, ok := r.msg.(*sip.Request)
		if r.err != nil || !ok || req.Method != sip.ACK {
			return p.teardownRingingToError(s, fmt.Errorf("phone: expected ACK after 200 OK"))
		}
	case <-time.After(p.cfg.CancelTimeout):
		return p.teardownRingingToError(s, fmt.Errorf("phone: timed out waiting for ACK"))
	case <-ctx.Done():
		return s
	}

	remote, err := remoteMediaAddr(s.invite.Body())
	if err != nil {
		return p.teardownRingingToError(s, err)
	}
	if !p.cfg.AllowForeignRTP && !s.rtp.IsInNet(remote.IP) {
		return p.teardownRingingToError(s, fmt.Errorf("phone: remote media %s outside configured private network", remote.IP))
	}

	return p.startMedia(s, remote)
}

// remoteMediaAddr parses the connection address and audio port out of
// a raw SDP body.
func remoteMediaAddr(body []byte) (*net.UDPAddr, error) {
	parsed, err := sdp.Unmarshal(body)
	if err != nil {
		return nil, fmt.Errorf("phone: parsing remote SDP: %w", err)
	}
	ip, err := parsed.ConnectionAddress()
	if err != nil {
		return nil, err
	}
	port, err := parsed.AudioPort()
	if err != nil {
		return nil, err
	}
	return &net.UDPAddr{IP: ip, Port: port}, nil
}

// startMedia bridges the RTP socket to the audio device for the
// lifetime of the call.
func (p *Phone) startMedia(s connectedState, remote *net.UDPAddr) connectedState {
	mediaCtx, cancel := context.WithCancel(context.Background())

	frames, unsubFrames := p.audio.SubscribeFrames(mediaCtx.Done())
	toSpeaker := make(chan []int16, 4)
	go p.audio.PlayFrames(mediaCtx.Done(), toSpeaker)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.rtp.Connect(mediaCtx.Done(), remote, toSpeaker, frames); err != nil {
			p.log.Warn().Err(err).Msg("rtp bridge ended")
		}
	}()

	stopMedia := func() {
		cancel()
		unsubFrames()
		<-done
	}

	return connectedState{tr: s.tr, dial: dialConnected, dlg: s.dlg, rtp: s.rtp, stopMedia: stopMedia}
}

// connAwait plays dial tone, accumulates dialed digits, and commits to
// an outbound INVITE once a known contact has been idle for
// DialCommitTimeout.
func (p *Phone) connAwait(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	stopTone := p.playTone(tone.OffHook)
	toneStopped := false
	stopToneOnce := func() {
		if !toneStopped {
			stopTone()
			toneStopped = true
		}
	}
	defer stopToneOnce()

	digits, stopDigits := p.startDigitStream(ctx)
	defer stopDigits()

	var number []rune
	var commitTimer *time.Timer
	var commitCh <-chan time.Time

	// A rotary pulse train rides make/break edges on the same hook line
	// as a genuine hang-up: only an ON held for PulseTimeout (spec.md
	// §4.3) without an intervening OFF counts as setting the handset
	// down, so a real break/make pair during dialing doesn't abort it.
	var hangupTimer *time.Timer
	var hangupCh <-chan time.Time

	for {
		select {
		case st := <-hookCh:
			switch st {
			case hook.ON:
				if hangupTimer == nil {
					hangupTimer = time.NewTimer(p.cfg.PulseTimeout)
					hangupCh = hangupTimer.C
				}
			case hook.OFF:
				if hangupTimer != nil {
					if !hangupTimer.Stop() {
						<-hangupTimer.C
					}
					hangupTimer = nil
					hangupCh = nil
				}
			}
		case <-hangupCh:
			return connectedState{tr: s.tr, dial: dialOnHook}
		case r := <-digits:
			stopToneOnce()
			number = append(number, r)
			if _, ok := p.dir.Lookup(string(number)); ok {
				if commitTimer == nil {
					commitTimer = time.NewTimer(p.cfg.DialCommitTimeout)
				} else {
					if !commitTimer.Stop() {
						<-commitTimer.C
					}
					commitTimer.Reset(p.cfg.DialCommitTimeout)
				}
				commitCh = commitTimer.C
			} else if commitTimer != nil {
				commitTimer.Stop()
				commitCh = nil
			}
		case <-commitCh:
			target, ok := p.dir.Lookup(string(number))
			if !ok {
				continue
			}
			return p.beginDialOut(ctx, s, target)
		case <-s.tr.Done():
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

func (p *Phone) beginDialOut(ctx context.Context, s connectedState, target dialog.Target) phoneState {
	callID := dialog.NewCallID()
	recv := s.tr.Register(callID)
	dlg := dialog.New(p.cfg, p.clientIP, p.instanceUUID, p.username, callID, s.tr.Send(), recv, p.log)

	rtp, err := rtpendpoint.Bind(p.cfg, p.log)
	if err != nil {
		s.tr.Unregister(callID)
		return connectedState{tr: s.tr, dial: dialError, cause: err}
	}

	if _, err := dlg.Invite(ctx, p.password, target); err != nil {
		rtp.Close()
		s.tr.Unregister(callID)
		return connectedState{tr: s.tr, dial: dialError, cause: err}
	}

	return connectedState{tr: s.tr, dial: dialDialOut, dlg: dlg, rtp: rtp, target: target}
}

// connDialOut waits for 180 Ringing, a rejection, or the CANCEL-decision
// timeout.
func (p *Phone) connDialOut(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	recvCh := recvAsync(ctx, s.dlg)
	cancelTimer := time.NewTimer(p.cfg.CancelTimeout)
	defer cancelTimer.Stop()

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return p.abandonDialOut(ctx, s)
			}
		case r := <-recvCh:
			if r.err != nil {
				return p.teardownDialToError(s, r.err)
			}
			resp, ok := r.msg.(*sip.Response)
			if !ok {
				recvCh = recvAsync(ctx, s.dlg)
				continue
			}
			switch {
			case resp.StatusCode == 180:
				return connectedState{tr: s.tr, dial: dialDialing, dlg: s.dlg, rtp: s.rtp, target: s.target}
			case resp.StatusCode == 486 || resp.StatusCode == 603:
				s.dlg.Ack(ctx, resp)
				return p.enterBusy(s)
			case resp.StatusCode/100 == 2:
				return p.connectToAnswer(ctx, s, resp)
			default:
				recvCh = recvAsync(ctx, s.dlg)
			}
		case <-cancelTimer.C:
			s.dlg.Cancel(ctx)
			return p.enterBusy(s)
		case <-s.tr.Done():
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

// connDialing waits for the final response to a ringing outbound call.
func (p *Phone) connDialing(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	recvCh := recvAsync(ctx, s.dlg)

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return p.abandonDialOut(ctx, s)
			}
		case r := <-recvCh:
			if r.err != nil {
				return p.teardownDialToError(s, r.err)
			}
			resp, ok := r.msg.(*sip.Response)
			if !ok {
				recvCh = recvAsync(ctx, s.dlg)
				continue
			}
			switch {
			case resp.StatusCode/100 == 2:
				return p.connectToAnswer(ctx, s, resp)
			case resp.StatusCode == 486 || resp.StatusCode == 603:
				s.dlg.Ack(ctx, resp)
				return p.enterBusy(s)
			default:
				recvCh = recvAsync(ctx, s.dlg)
			}
		case <-s.tr.Done():
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

func (p *Phone) connectToAnswer(ctx context.Context, s connectedState, resp *sip.Response) phoneState {
	if err := s.dlg.Ack(ctx, resp); err != nil {
		return p.teardownDialToError(s, err)
	}
	remote, err := remoteMediaAddr(resp.Body())
	if err != nil {
		return p.teardownDialToError(s, err)
	}
	if !p.cfg.AllowForeignRTP && !s.rtp.IsInNet(remote.IP) {
		return p.teardownDialToError(s, fmt.Errorf("phone: remote media %s outside configured private network", remote.IP))
	}
	return p.startMedia(s, remote)
}

// abandonDialOut tears down a pending outbound INVITE when the user
// hangs up before a final response.
func (p *Phone) abandonDialOut(ctx context.Context, s connectedState) phoneState {
	s.dlg.Cancel(ctx)
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	return connectedState{tr: s.tr, dial: dialOnHook}
}

func (p *Phone) teardownDialToError(s connectedState, err error) phoneState {
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	p.log.Warn().Err(err).Msg("outbound call failed")
	return connectedState{tr: s.tr, dial: dialError, cause: err}
}

func (p *Phone) enterBusy(s connectedState) connectedState {
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	stopTone := p.playTone(tone.Busy)
	return connectedState{tr: s.tr, dial: dialBusy, stopTone: stopTone}
}

// connBusy plays busy tone until the handset is set down.
func (p *Phone) connBusy(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				if s.stopTone != nil {
					s.stopTone()
				}
				return connectedState{tr: s.tr, dial: dialOnHook}
			}
		case <-s.tr.Done():
			if s.stopTone != nil {
				s.stopTone()
			}
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

// connConnected races an inbound BYE/re-INVITE against the handset
// being set down.
func (p *Phone) connConnected(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	recvCh := recvAsync(ctx, s.dlg)

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return p.hangUp(ctx, s)
			}
		case r := <-recvCh:
			if r.err != nil {
				return p.teardownConnectedToError(s, r.err)
			}
			req, isReq := r.msg.(*sip.Request)
			switch {
			case isReq && req.Method == sip.BYE:
				s.dlg.Send(ctx, s.dlg.ResponseTo(req, 200, "OK", nil))
				return p.endMedia(s)
			case isReq && req.Method == sip.INVITE:
				next := p.reInvite(ctx, s, req)
				if cs, ok := next.(connectedState); ok && cs.dial == dialConnected {
					recvCh = recvAsync(ctx, cs.dlg)
					s = cs
					continue
				}
				return next
			default:
				recvCh = recvAsync(ctx, s.dlg)
			}
		case <-s.tr.Done():
			if s.stopMedia != nil {
				s.stopMedia()
			}
			return disconnectedState{wifi: wifiError, cause: transportDiedErr()}
		case <-ctx.Done():
			return s
		}
	}
}

func (p *Phone) hangUp(ctx context.Context, s connectedState) phoneState {
	if err := s.dlg.Bye(ctx); err == nil {
		select {
		case <-recvAsync(ctx, s.dlg):
		case <-time.After(p.cfg.CancelTimeout):
		case <-ctx.Done():
		}
	}
	return p.endMedia(s)
}

func (p *Phone) endMedia(s connectedState) connectedState {
	if s.stopMedia != nil {
		s.stopMedia()
	}
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	return connectedState{tr: s.tr, dial: dialOnHook}
}

func (p *Phone) teardownConnectedToError(s connectedState, err error) phoneState {
	if s.stopMedia != nil {
		s.stopMedia()
	}
	s.rtp.Close()
	s.tr.Unregister(s.dlg.CallID())
	p.log.Warn().Err(err).Msg("established call failed")
	return connectedState{tr: s.tr, dial: dialError, cause: err}
}

// reInvite accepts or refuses a mid-call re-INVITE by the configured IP
// policy (spec.md §9's open question, resolved as a config knob via
// AllowForeignRTP), swapping the media bridge to the new remote address
// on acceptance.
func (p *Phone) reInvite(ctx context.Context, s connectedState, req *sip.Request) phoneState {
	remote, err := remoteMediaAddr(req.Body())
	if err != nil || (!p.cfg.AllowForeignRTP && !s.rtp.IsInNet(remote.IP)) {
		s.dlg.Send(ctx, s.dlg.ResponseTo(req, 406, "Not Acceptable Here", nil))
		return connectedState{tr: s.tr, dial: dialConnected, dlg: s.dlg, rtp: s.rtp, stopMedia: s.stopMedia}
	}

	answer, err := s.dlg.SDPFrom(req)
	if err != nil {
		s.dlg.Send(ctx, s.dlg.ResponseTo(req, 500, "Server Internal Error", nil))
		return connectedState{tr: s.tr, dial: dialConnected, dlg: s.dlg, rtp: s.rtp, stopMedia: s.stopMedia}
	}
	if err := s.dlg.Send(ctx, s.dlg.SDPResponseTo(req, 200, "OK", answer)); err != nil {
		return p.teardownConnectedToError(s, err)
	}

	select {
	case r := <-recvAsync(ctx, s.dlg):
		ackReq, isReq := r.msg.(*sip.Request)
		if r.err != nil || !isReq || ackReq.Method != sip.ACK {
			return p.teardownConnectedToError(s, fmt.Errorf("phone: re-INVITE ACK not received"))
		}
	case <-time.After(p.cfg.CancelTimeout):
		return p.teardownConnectedToError(s, fmt.Errorf("phone: timed out waiting for re-INVITE ACK"))
	case <-ctx.Done():
		return s
	}

	if s.stopMedia != nil {
		s.stopMedia()
	}
	return p.startMedia(s, remote)
}

// connError waits for the handset to be set down before returning to a
// clean OnHook.
func (p *Phone) connError(ctx context.Context, s connectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return connectedState{tr: s.tr, dial: dialOnHook}
			}
		case <-ctx.Done():
			return s
		}
	}
}
