// Package audioio opens the handset's microphone and earpiece as a
// single full-duplex PortAudio stream pair, grounded on the original
// Rust audio.rs (cpal default host, one input stream broadcasting
// samples, one output stream fed from a queue) but built on
// github.com/gordonklaus/portaudio, the cross-platform audio binding
// the retrieval pack's own hardware-facing repo depends on for the
// same role cpal plays in the original.
//
// The external interface spec.md §6 describes --
// get_input_channel() -> (broadcast_sender<i16>, stream_handle, config)
// and get_output_channel() -> (queue_sender<i16>, stream_handle, config)
// -- is implemented here as a broadcaster with drop-oldest semantics on
// the mic side and a bounded queue returning equilibrium (silence) on
// underflow on the speaker side, per spec.md §9's blocking-callback
// design note: PortAudio's callback runs on a realtime audio thread
// and must never block on a channel send/receive.
package audioio

import (
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/frandline/frandline/internal/config"
)

// Sample is one linear PCM sample, matching the wire format spec.md
// §6 uses throughout (48kHz mono i16).
type Sample = int16

// frameSamples is 20ms at 48kHz, matching rtpendpoint's and tone's
// frame size; audioio re-declares it rather than importing rtpendpoint
// to avoid coupling the hardware layer to the network layer.
const frameSamples = 960

// micSubBuffer is how many samples a slow mic subscriber may lag
// before the broadcaster starts dropping its oldest buffered sample.
const micSubBuffer = 4096

// speakerQueueDepth is roughly 1 second of playout queue headroom.
const speakerQueueDepth = 48000

// micBroadcast fans one input stream's samples out to any number of
// subscribers (the Goertzel pipeline, the RTP bridge, ...). A
// subscriber that falls behind loses its oldest buffered sample
// rather than stalling the audio callback.
type micBroadcast struct {
	mu   sync.Mutex
	subs map[int]chan Sample
	next int
}

func newMicBroadcast() *micBroadcast {
	return &micBroadcast{subs: make(map[int]chan Sample)}
}

func (b *micBroadcast) subscribe() (int, <-chan Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan Sample, micSubBuffer)
	b.subs[id] = ch
	return id, ch
}

func (b *micBroadcast) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// publish is called from the PortAudio input callback; it must never
// block.
func (b *micBroadcast) publish(s Sample) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- s:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}

// speakerQueue is the single writer-owned playout queue for the
// output stream. Reading past the end of what's queued yields silence
// (equilibrium) rather than blocking the audio callback.
type speakerQueue struct {
	in chan Sample
}

func newSpeakerQueue() *speakerQueue {
	return &speakerQueue{in: make(chan Sample, speakerQueueDepth)}
}

func (q *speakerQueue) next() Sample {
	select {
	case s := <-q.in:
		return s
	default:
		return 0
	}
}

// Device owns the open input/output PortAudio streams for the
// lifetime of the process; spec.md §7 treats failure to open it as
// hardware-absent, retried with backoff by the caller rather than
// inside Open.
type Device struct {
	log zerolog.Logger

	in  *portaudio.Stream
	out *portaudio.Stream

	mic *micBroadcast
	spk *speakerQueue
}

// Open initializes PortAudio and starts one default input stream and
// one default output stream at cfg.SampleFreq, mono, i16.
func Open(cfg config.Config, log zerolog.Logger) (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("audioio: initializing PortAudio: %w", err)
	}

	mic := newMicBroadcast()
	spk := newSpeakerQueue()

	inStream, err := portaudio.OpenDefaultStream(1, 0, float64(cfg.SampleFreq), 0, func(in []Sample) {
		for _, s := range in {
			mic.publish(s)
		}
	})
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("audioio: opening input stream: %w", err)
	}

	outStream, err := portaudio.OpenDefaultStream(0, 1, float64(cfg.SampleFreq), 0, func(out []Sample) {
		for i := range out {
			out[i] = spk.next()
		}
	})
	if err != nil {
		inStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audioio: opening output stream: %w", err)
	}

	if err := inStream.Start(); err != nil {
		inStream.Close()
		outStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audioio: starting input stream: %w", err)
	}
	if err := outStream.Start(); err != nil {
		inStream.Close()
		outStream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("audioio: starting output stream: %w", err)
	}

	return &Device{
		log: log.With().Str("component", "audioio").Logger(),
		in:  inStream,
		out: outStream,
		mic: mic,
		spk: spk,
	}, nil
}

// Close stops and releases both streams.
func (d *Device) Close() error {
	err1 := d.in.Close()
	err2 := d.out.Close()
	portaudio.Terminate()
	if err1 != nil {
		return err1
	}
	return err2
}

// SubscribeSamples returns a raw per-sample mic feed and an
// unsubscribe func, for a consumer (the Goertzel bank) that wants one
// sample at a time.
func (d *Device) SubscribeSamples() (<-chan Sample, func()) {
	id, ch := d.mic.subscribe()
	return ch, func() { d.mic.unsubscribe(id) }
}

// SubscribeFrames batches the per-sample mic feed into frameSamples
// frames for a consumer (the RTP bridge) that wants whole 20ms frames.
// It stops once ctxDone closes.
func (d *Device) SubscribeFrames(ctxDone <-chan struct{}) (<-chan []Sample, func()) {
	samples, unsub := d.SubscribeSamples()
	frames := make(chan []Sample, 4)

	go func() {
		defer close(frames)
		frame := make([]Sample, 0, frameSamples)
		for {
			select {
			case s, ok := <-samples:
				if !ok {
					return
				}
				frame = append(frame, s)
				if len(frame) == frameSamples {
					select {
					case frames <- frame:
					case <-ctxDone:
						return
					}
					frame = make([]Sample, 0, frameSamples)
				}
			case <-ctxDone:
				return
			}
		}
	}()

	return frames, unsub
}

// SpeakerSamples returns the send side of the playout queue, for a
// consumer (a tone generator) that writes one sample at a time.
func (d *Device) SpeakerSamples() chan<- Sample {
	return d.spk.in
}

// PlayFrames drains frames (20ms, frameSamples long) into the playout
// queue sample by sample until ctxDone closes or frames is closed.
func (d *Device) PlayFrames(ctxDone <-chan struct{}, frames <-chan []Sample) {
	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				return
			}
			for _, s := range frame {
				select {
				case d.spk.in <- s:
				case <-ctxDone:
					return
				}
			}
		case <-ctxDone:
			return
		}
	}
}
