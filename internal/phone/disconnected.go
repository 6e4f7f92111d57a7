// Disconnected(WiFi) sub-state handlers: no SIP registration is held in
// this branch, so every handler's only shared resource is the digit
// stream and whatever tone is playing.
package phone

import (
	"context"
	"fmt"
	"time"

	"github.com/frandline/frandline/internal/hook"
	"github.com/frandline/frandline/internal/tone"
	"github.com/frandline/frandline/internal/wifi"
)

func (p *Phone) stepDisconnected(ctx context.Context, s disconnectedState) phoneState {
	switch s.wifi {
	case wifiOnHook:
		return p.discOnHook(ctx, s)
	case wifiAwait:
		return p.discAwait(ctx, s)
	case wifiError:
		return p.discError(ctx, s)
	default:
		return disconnectedState{wifi: wifiError, cause: fmt.Errorf("phone: unknown wifi state %d", s.wifi)}
	}
}

// discOnHook periodically probes for internet while on-hook, registering
// and returning to Connected.OnHook as soon as it reappears, per spec.md
// §4.9's "has_internet goes true -> register -> C.OnHook".
func (p *Phone) discOnHook(ctx context.Context, s disconnectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	probe := time.NewTicker(5 * time.Second)
	defer probe.Stop()

	for {
		select {
		case st := <-hookCh:
			if st == hook.OFF {
				return disconnectedState{wifi: wifiAwait}
			}
		case <-probe.C:
			if !wifi.HaveInternet(ctx) {
				continue
			}
			tr, err := p.dialTransport(ctx)
			if err != nil {
				p.log.Warn().Err(err).Msg("registration after internet recovery failed")
				continue
			}
			return connectedState{tr: tr, dial: dialOnHook}
		case <-ctx.Done():
			return s
		}
	}
}

// discAwait plays the no-WiFi tone while capturing SSID and password as
// two Sentinel-terminated T9 fields, then applies and registers.
func (p *Phone) discAwait(ctx context.Context, s disconnectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	stopTone := p.playTone(tone.NoWiFi)
	defer stopTone()

	digits, stopDigits := p.startDigitStream(ctx)
	defer stopDigits()

	captureCtx, cancelCapture := context.WithCancel(ctx)
	defer cancelCapture()

	type captureResult struct {
		ssid, password string
		err            error
	}
	resultCh := make(chan captureResult, 1)
	go func() {
		ssid, err := p.captureT9Field(captureCtx, digits)
		if err != nil {
			resultCh <- captureResult{err: err}
			return
		}
		password, err := p.captureT9Field(captureCtx, digits)
		resultCh <- captureResult{ssid: ssid, password: password, err: err}
	}()

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return disconnectedState{wifi: wifiOnHook}
			}
		case res := <-resultCh:
			if res.err != nil {
				return disconnectedState{wifi: wifiError, cause: res.err}
			}
			if err := wifi.Apply(ctx, res.ssid, res.password); err != nil {
				return disconnectedState{wifi: wifiError, cause: err}
			}
			tr, err := p.dialTransport(ctx)
			if err != nil {
				return disconnectedState{wifi: wifiError, cause: err}
			}
			return connectedState{tr: tr, dial: dialAwait}
		case <-ctx.Done():
			return s
		}
	}
}

// discError waits for the handset to be set down before returning to
// Disconnected.OnHook, per spec.md §4.9's "*.Error | hook ON | peer's
// OnHook".
func (p *Phone) discError(ctx context.Context, s disconnectedState) phoneState {
	hookCh, unsub := p.hk.Subscribe()
	defer unsub()

	for {
		select {
		case st := <-hookCh:
			if st == hook.ON {
				return disconnectedState{wifi: wifiOnHook}
			}
		case <-ctx.Done():
			return s
		}
	}
}
