// Package sipmsg supplies the construction and parsing glue the phone
// core's single persistent connection needs around sipgo's sip
// package, which is the actual SIP message model (sip.Request,
// sip.Response, sip.Message, the typed header structs, and
// sip.ParseMessage as the wire parser) -- grounded on how diago's own
// digest_auth.go and register_transaction.go build messages with
// sip.NewRequest/sip.NewResponseFromRequest/sip.NewHeader, and on
// sipgo's own test helper (main_benchmark_test.go's testCreateMessage)
// which turns raw CRLF bytes into a sip.Message via sip.ParseMessage.
//
// sipgo's own server/client (sipgo.NewServer, sipgo.NewUA) own a
// socket end to end and never expose raw-bytes-in/sip.Message-out as a
// standalone call; our transport keeps the original Rust TLSConn's
// single-persistent-connection design instead of adopting sipgo's
// transaction layer, so this package still has to do the framing
// (locating the blank line, reading exactly Content-Length body bytes)
// before handing the full message to sip.ParseMessage -- the one seam
// sipgo does not cover for a caller managing its own socket.
package sipmsg

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/emiago/sipgo/sip"
)

// ReadMessage reads one SIP message off r: CRLF header lines up to the
// blank line, then exactly Content-Length body bytes, then parses the
// whole thing with sip.ParseMessage. The Content-Length scan here is
// the minimal amount of text handling sip.ParseMessage can't do for us
// mid-stream -- it needs the complete message up front, and our own
// socket has no record of where one message ends and the next begins.
func ReadMessage(r *bufio.Reader) (sip.Message, error) {
	var head bytes.Buffer
	contentLength := 0

	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		head.WriteString(line)

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			break
		}
		if name, value, ok := strings.Cut(trimmed, ":"); ok && strings.EqualFold(strings.TrimSpace(name), "Content-Length") {
			n, err := strconv.Atoi(strings.TrimSpace(value))
			if err != nil {
				return nil, fmt.Errorf("sipmsg: malformed Content-Length %q: %w", value, err)
			}
			contentLength = n
		}
	}

	body := make([]byte, contentLength)
	if contentLength > 0 {
		if _, err := readFull(r, body); err != nil {
			return nil, fmt.Errorf("sipmsg: reading body: %w", err)
		}
	}

	raw := append(head.Bytes(), body...)
	msg, err := sip.ParseMessage(raw)
	if err != nil {
		return nil, fmt.Errorf("sipmsg: parsing message: %w", err)
	}
	return msg, nil
}

func readFull(r *bufio.Reader, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := r.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteMessage renders msg as SIP wire text and writes it to w.
func WriteMessage(w interface{ Write([]byte) (int, error) }, msg sip.Message) error {
	_, err := w.Write([]byte(msg.String()))
	return err
}
