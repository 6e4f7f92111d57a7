// Package rtpendpoint bridges the handset's audio to the network over
// a single UDP socket, grounded on the original Rust rtp/socket.rs
// (one bound socket, a reader task and a writer task, a 30ms playout
// jitter warmup on the first inbound packet) but generalized to pass
// whole 20ms frames over Go channels instead of per-sample channels,
// and to consult config.Config's private-network policy instead of a
// hardcoded 10.100.0.0/16.
//
// No RTP header, SSRC, sequence number, or timestamp is produced here
// by default: the wire payload is raw big-endian PCM samples, matching
// spec.md's described format. Setting config.Config.RTPRealHeaders
// and/or config.Config.CodecTranscodePCMU switches the wire encoding
// to real RTP framing and/or PCMU transcoding via the rtpshim
// subpackage, for interop with a peer that insists on standard RTP.
package rtpendpoint

import (
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/frandline/frandline/internal/config"
	"github.com/frandline/frandline/internal/rtpendpoint/rtpshim"
)

// maxWireFrame is large enough for an RTP-wrapped 20ms frame (header
// plus payload) in either raw-PCM or PCMU encoding.
const maxWireFrame = FrameBytes + 64

// SamplesPerFrame is 20ms of audio at 48kHz (spec.md §4.8).
const SamplesPerFrame = 960

// FrameBytes is the wire size of one frame: 2 bytes per big-endian i16
// sample.
const FrameBytes = 2 * SamplesPerFrame

// Endpoint owns the bound UDP socket carrying one call's media.
type Endpoint struct {
	log zerolog.Logger
	c   config.Config

	conn *net.UDPConn

	encodeOut func(frame []int16) []byte
	decodeIn  func(raw []byte) []int16
}

// Bind opens the UDP socket on cfg.RTPPort and wires the wire codec
// per cfg.RTPRealHeaders/cfg.CodecTranscodePCMU.
func Bind(cfg config.Config, log zerolog.Logger) (*Endpoint, error) {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.RTPPort})
	if err != nil {
		return nil, fmt.Errorf("rtpendpoint: binding port %d: %w", cfg.RTPPort, err)
	}
	e := &Endpoint{
		log:  log.With().Str("component", "rtp").Int("port", cfg.RTPPort).Logger(),
		c:    cfg,
		conn: conn,
	}
	e.encodeOut, e.decodeIn = e.buildCodec(cfg)
	return e, nil
}

// buildCodec selects the outbound/inbound frame transforms. Raw PCM
// with no RTP header is the default; RTPRealHeaders adds a
// Packetizer, CodecTranscodePCMU mu-law-encodes the payload. The two
// flags compose independently.
func (e *Endpoint) buildCodec(cfg config.Config) (func([]int16) []byte, func([]byte) []int16) {
	if !cfg.RTPRealHeaders && !cfg.CodecTranscodePCMU {
		return rawEncode, rawDecode
	}

	var pkt *rtpshim.Packetizer
	if cfg.RTPRealHeaders {
		tsStep := uint32(SamplesPerFrame)
		if cfg.CodecTranscodePCMU {
			tsStep = SamplesPerFrame / 6 // 48kHz raw frame advance at PCMU's 8kHz clock
		}
		pkt = rtpshim.NewPacketizer(rand.Uint32(), tsStep)
	}

	encode := func(frame []int16) []byte {
		var payload []byte
		if cfg.CodecTranscodePCMU {
			payload = rtpshim.EncodePCMU(frame)
		} else {
			payload = rawEncode(frame)
		}
		if pkt == nil {
			return payload
		}
		wire, err := pkt.Wrap(payload)
		if err != nil {
			e.log.Warn().Err(err).Msg("rtp packetization failed, dropping frame")
			return nil
		}
		return wire
	}

	decode := func(raw []byte) []int16 {
		payload := raw
		if cfg.RTPRealHeaders {
			p, err := rtpshim.Unwrap(raw)
			if err != nil {
				e.log.Warn().Err(err).Msg("rtp unmarshal failed, dropping frame")
				return nil
			}
			payload = p
		}
		if cfg.CodecTranscodePCMU {
			return rtpshim.DecodePCMU(payload)
		}
		return rawDecode(payload)
	}

	return encode, decode
}

func rawEncode(frame []int16) []byte {
	out := make([]byte, 2*len(frame))
	for i, s := range frame {
		binary.BigEndian.PutUint16(out[2*i:2*i+2], uint16(s))
	}
	return out
}

func rawDecode(raw []byte) []int16 {
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(binary.BigEndian.Uint16(raw[2*i : 2*i+2]))
	}
	return out
}

// Port returns the locally bound UDP port.
func (e *Endpoint) Port() int {
	return e.conn.LocalAddr().(*net.UDPAddr).Port
}

// Close releases the socket.
func (e *Endpoint) Close() error {
	return e.conn.Close()
}

// IsInNet reports whether ip falls inside the configured private
// network spec.md §4.8 allows RTP from without policy review.
func (e *Endpoint) IsInNet(ip net.IP) bool {
	if e.c.RTPPrivateNet == nil {
		return false
	}
	return e.c.RTPPrivateNet.Contains(ip)
}

// Connect starts the reader and writer goroutines bridging remote to
// toSpeaker/fromMic, and blocks until ctx is cancelled or a socket
// error occurs.
func (e *Endpoint) Connect(ctxDone <-chan struct{}, remote *net.UDPAddr, toSpeaker chan<- []int16, fromMic <-chan []int16) error {
	errCh := make(chan error, 2)

	go func() { errCh <- e.readLoop(ctxDone, remote, toSpeaker) }()
	go func() { errCh <- e.writeLoop(ctxDone, remote, fromMic) }()

	select {
	case err := <-errCh:
		return err
	case <-ctxDone:
		return nil
	}
}

func (e *Endpoint) readLoop(ctxDone <-chan struct{}, remote *net.UDPAddr, toSpeaker chan<- []int16) error {
	buf := make([]byte, maxWireFrame)
	gotFirstPacket := false

	for {
		select {
		case <-ctxDone:
			return nil
		default:
		}

		n, from, err := e.conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("rtpendpoint: read: %w", err)
		}

		if !e.c.AllowForeignRTP && !e.IsInNet(from.IP) {
			e.log.Warn().Str("remote", from.String()).Msg("rejecting RTP from outside configured private network")
			continue
		}

		if !gotFirstPacket {
			time.Sleep(e.c.JitterWarmup)
			gotFirstPacket = true
		}

		frame := e.decodeIn(buf[:n])
		if frame == nil {
			continue
		}

		select {
		case toSpeaker <- frame:
		case <-ctxDone:
			return nil
		}
		_ = remote
	}
}

func (e *Endpoint) writeLoop(ctxDone <-chan struct{}, remote *net.UDPAddr, fromMic <-chan []int16) error {
	for {
		select {
		case frame, ok := <-fromMic:
			if !ok {
				return nil
			}
			if len(frame) > SamplesPerFrame {
				frame = frame[:SamplesPerFrame]
			}
			wire := e.encodeOut(frame)
			if wire == nil {
				continue
			}
			if _, err := e.conn.WriteToUDP(wire, remote); err != nil {
				return fmt.Errorf("rtpendpoint: write: %w", err)
			}
		case <-ctxDone:
			return nil
		}
	}
}
