package phone

import (
	"github.com/emiago/sipgo/sip"

	"github.com/frandline/frandline/internal/dialog"
	"github.com/frandline/frandline/internal/rtpendpoint"
	"github.com/frandline/frandline/internal/transport"
)

// connectedState is the Connected(Dial) branch of the top-level state.
// Per spec.md §4.9 each Dial sub-state owns exactly a subset of these
// fields (Ringing owns dlg/rtp/invite/stopBell, DialOut/Dialing own
// dlg/rtp/target, Connected owns dlg/rtp/stopMedia, Busy owns stopTone,
// Error owns cause); the remaining fields are left zero. A single
// struct carries the union of every sub-state's fields rather than one
// Go type per sub-state, which would otherwise require a second level
// of type-switching dispatch on top of the dialState tag for no benefit
// -- the dialState tag alone already determines which fields are live.
type connectedState struct {
	tr   *transport.Transport
	dial dialState

	dlg    *dialog.Dialog
	rtp    *rtpendpoint.Endpoint
	invite *sip.Request
	target dialog.Target

	stopTone  func()
	stopBell  func()
	stopMedia func()

	cause error
}

// disconnectedState is the Disconnected(WiFi) branch.
type disconnectedState struct {
	wifi  wifiState
	cause error
}
