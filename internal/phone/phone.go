// Package phone is the spine of the softphone: a single long-running
// task that iterates over a two-level hierarchical state (Connected's
// Dial sub-states, Disconnected's WiFi sub-states), wiring every other
// package together exactly as phone.rs's begin_life loop does.
// Grounded on phone.rs's State/Dial/WiFi enums and its match-and-break
// transition style, ported to Go as two tagged-union state types
// behind a shared phoneState interface and a dispatch loop that
// replaces the current state with whatever its step function returns,
// so each transition consumes the old state's resources and produces
// exactly the resources the next state owns (spec.md §9's "avoid
// cyclic ownership" note and §5's "no state ever leaks a background
// task on a transition").
package phone

import (
	"context"
	"fmt"
	"net"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/frandline/frandline/internal/audioio"
	"github.com/frandline/frandline/internal/config"
	"github.com/frandline/frandline/internal/contacts"
	"github.com/frandline/frandline/internal/hook"
	"github.com/frandline/frandline/internal/ring"
	"github.com/frandline/frandline/internal/wifi"
)

// dialState is the Dial sub-state tag, carried inside connectedState.
type dialState int

const (
	dialOnHook dialState = iota
	dialRinging
	dialAwait
	dialDialOut
	dialDialing
	dialConnected
	dialBusy
	dialError
)

// wifiState is the WiFi sub-state tag, carried inside
// disconnectedState.
type wifiState int

const (
	wifiOnHook wifiState = iota
	wifiAwait
	wifiError
)

// phoneState is the top-level tagged union: Connected(Dial) |
// Disconnected(WiFi).
type phoneState interface {
	isPhoneState()
}

func (connectedState) isPhoneState()    {}
func (disconnectedState) isPhoneState() {}

// Phone owns every long-lived collaborator the state machine wires
// together: the audio device, the switch-hook, the bell, the contact
// directory, and the credentials. Per-state resources (the transport,
// a dialog, an RTP endpoint) are NOT fields here; they live inside the
// current phoneState value and are dropped when the state transitions
// away from them, matching spec.md §5's cancellation semantics.
type Phone struct {
	log zerolog.Logger
	cfg config.Config

	audio *audioio.Device
	hk    *hook.Switch
	bell  *ring.Bell
	dir   *contacts.Directory

	clientIP     net.IP
	instanceUUID uuid.UUID

	username string
	password string
}

// New builds a Phone around already-open hardware collaborators. The
// caller chooses how hk/bell were opened (real GPIO vs. the signal/
// no-op fallback), matching spec.md §6's "on platforms without GPIO"
// allowance.
func New(cfg config.Config, audioDev *audioio.Device, hk *hook.Switch, bell *ring.Bell, log zerolog.Logger) (*Phone, error) {
	ip, err := localIP()
	if err != nil {
		return nil, fmt.Errorf("phone: determining local IP: %w", err)
	}
	return &Phone{
		log:          log.With().Str("component", "phone").Logger(),
		cfg:          cfg,
		audio:        audioDev,
		hk:           hk,
		bell:         bell,
		dir:          contacts.Default(),
		clientIP:     ip,
		instanceUUID: uuid.New(),
		username:     cfg.SIPUsername,
		password:     cfg.SIPPassword,
	}, nil
}

// localIP picks the outbound-routable local address by dialing a UDP
// "connection" (no packet is sent) to a well-known host and reading
// back the chosen local address -- the usual Go idiom for this, used
// in place of a public-IP lookup service since no library in the
// retrieval pack offers one (see DESIGN.md).
func localIP() (net.IP, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP, nil
}

// Run drives the state machine until ctx is cancelled or an
// unrecoverable setup error occurs. It never returns nil on its own;
// the only graceful exit is ctx cancellation.
func (p *Phone) Run(ctx context.Context) error {
	cur := p.initialState(ctx)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch s := cur.(type) {
		case connectedState:
			cur = p.stepConnected(ctx, s)
		case disconnectedState:
			cur = p.stepDisconnected(ctx, s)
		default:
			return fmt.Errorf("phone: unknown state %T", cur)
		}
	}
}

// initialState resolves (has_internet, is_on_hook) into one of the
// four starting states spec.md §4.9 names, attempting registration
// immediately if the network is up.
func (p *Phone) initialState(ctx context.Context) phoneState {
	isOnHook := p.hk.CurrentState() == hook.ON

	if !wifi.HaveInternet(ctx) {
		if isOnHook {
			return disconnectedState{wifi: wifiOnHook}
		}
		return disconnectedState{wifi: wifiAwait}
	}

	tr, err := p.dialTransport(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("initial registration failed, starting disconnected")
		if isOnHook {
			return disconnectedState{wifi: wifiOnHook}
		}
		return disconnectedState{wifi: wifiAwait}
	}

	if isOnHook {
		return connectedState{tr: tr, dial: dialOnHook}
	}
	return connectedState{tr: tr, dial: dialAwait}
}
