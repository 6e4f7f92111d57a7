package phone

import (
	"context"

	"github.com/frandline/frandline/internal/tone"
)

// playTone starts a tone.Generator and relays its 20ms frames into the
// speaker through audioio.Device.PlayFrames, the same frame-sized path
// the RTP media bridge uses (startMedia in connected.go) -- the
// device's output queue only accepts per-sample writes, so anything
// that produces whole frames needs a PlayFrames relay goroutine rather
// than writing straight to SpeakerSamples. Returns a stop function
// that tears down both the generator and the relay.
func (p *Phone) playTone(recipe tone.Recipe) func() {
	gen := tone.NewGenerator(p.cfg, recipe)
	frames := make(chan []int16, 4)

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		p.audio.PlayFrames(relayCtx.Done(), frames)
	}()

	stopGen := gen.PlayBackground(frames)

	return func() {
		stopGen()
		cancelRelay()
		<-relayDone
	}
}
