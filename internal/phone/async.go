package phone

import (
	"context"

	"github.com/emiago/sipgo/sip"

	"github.com/frandline/frandline/internal/dialog"
)

// recvResult is the outcome of one dlg.Recv call, carried over a channel
// so a select can race it against hook events and timers without the
// blocking Recv call itself occupying the select.
type recvResult struct {
	msg sip.Message
	err error
}

// recvAsync starts a single Recv(ctx) call in its own goroutine and
// reports its outcome on the returned channel. Callers that loop on
// non-terminal messages call recvAsync again for the next receive.
func recvAsync(ctx context.Context, d *dialog.Dialog) <-chan recvResult {
	ch := make(chan recvResult, 1)
	go func() {
		msg, err := d.Recv(ctx)
		ch <- recvResult{msg: msg, err: err}
	}()
	return ch
}
