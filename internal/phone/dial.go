package phone

import (
	"context"

	"github.com/frandline/frandline/internal/dialog"
	"github.com/frandline/frandline/internal/transport"
)

// dialTransport opens a fresh TLS connection and completes the initial
// REGISTER dance over it, per spec.md §4.9's Initial/D.OnHook transitions
// ("register -> C.OnHook"). The REGISTER dialog's inbox is dropped once
// registration completes; nothing keeps it open afterward since there is
// no periodic re-registration in this design.
func (p *Phone) dialTransport(ctx context.Context) (*transport.Transport, error) {
	tr, err := transport.Dial(ctx, p.cfg, p.log)
	if err != nil {
		return nil, err
	}

	callID := dialog.NewCallID()
	recv := tr.Register(callID)
	d := dialog.New(p.cfg, p.clientIP, p.instanceUUID, p.username, callID, tr.Send(), recv, p.log)

	if err := d.Register(ctx, p.password); err != nil {
		tr.Unregister(callID)
		tr.Close()
		return nil, err
	}
	tr.Unregister(callID)
	return tr, nil
}
