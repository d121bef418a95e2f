// Package mac implements the three MAC variants of spec.md §4.3 — ALOHA,
// MACAW, and STEM — sharing one frame format, checksum discipline,
// sequence-number dedup, and send/recv contract.
//
// Grounded on the teacher's ax25_pad.go for the framing/checksum
// discipline (explicit byte layout, no host struct padding) and on
// original_source/STRPAloha/ALOHA, .../STRP_MACAW/MACAW and
// .../SMRP_STEM/STEM for the variant-specific procedures.
package mac

import (
	"errors"
	"fmt"

	"github.com/loranet/strp/internal/wire"
)

// HeaderLen is the fixed on-air header size: ctrl(1) + src(1) + dst(1) +
// seq(2) + len(2) + checksum(1).
const HeaderLen = 8

// MaxPayload bounds application datagrams to spec.md §1's 240 bytes.
const MaxPayload = 240

var (
	ErrChecksum    = errors.New("mac: checksum mismatch")
	ErrShortFrame  = errors.New("mac: frame shorter than header")
	ErrTooLarge    = errors.New("mac: payload exceeds MaxPayload")
	ErrUnknownCtrl = errors.New("mac: unknown control byte")
)

// Header is the fixed MAC frame header (spec.md §3).
type Header struct {
	Ctrl byte
	Src  wire.Addr
	Dst  wire.Addr
	Seq  uint16
	Len  uint16
}

// Pack serialises header+payload into a wire frame: the checksum is
// computed over the header (with the checksum field as a zero placeholder)
// concatenated with the payload, then written into the header's checksum
// byte per spec.md §4.3.
func Pack(h Header, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d", ErrTooLarge, len(payload))
	}

	frame := make([]byte, HeaderLen+len(payload))
	frame[0] = h.Ctrl
	frame[1] = h.Src
	frame[2] = h.Dst
	wire.PutUint16(frame[3:5], h.Seq)
	wire.PutUint16(frame[5:7], h.Len)
	frame[7] = 0 // checksum placeholder
	copy(frame[HeaderLen:], payload)

	frame[7] = wire.Checksum8(frame)
	return frame, nil
}

// Unpack parses a wire frame, verifying the checksum. On mismatch it
// returns ErrChecksum and the caller must silently drop the frame
// (spec.md §7's "recoverable transient" regime).
func Unpack(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderLen {
		return Header{}, nil, ErrShortFrame
	}

	h := Header{
		Ctrl: frame[0],
		Src:  frame[1],
		Dst:  frame[2],
		Seq:  wire.Uint16(frame[3:5]),
		Len:  wire.Uint16(frame[5:7]),
	}

	got := frame[7]
	check := make([]byte, len(frame))
	copy(check, frame)
	check[7] = 0
	want := wire.Checksum8(check)
	if got != want {
		return h, nil, ErrChecksum
	}

	if int(h.Len) > len(frame)-HeaderLen {
		return h, nil, ErrShortFrame
	}

	return h, frame[HeaderLen : HeaderLen+int(h.Len)], nil
}

// control-frame builders. Each reuses the common Header with Len giving
// the meaning appropriate to its control byte, per spec.md §3.

func packControl(ctrl byte, src, dst wire.Addr, seq uint16, extra []byte) []byte {
	frame, _ := Pack(Header{Ctrl: ctrl, Src: src, Dst: dst, Seq: seq, Len: uint16(len(extra))}, extra)
	return frame
}

// Ack/RTS/CTS/wake-beacon/wake-ack frames carry no payload beyond the
// header; msg_len for RTS/CTS is stashed in the header's Len field so the
// NAV calculations in macaw.go can read it back.
func packAck(src, dst wire.Addr, seq uint16) []byte { return packControl(wire.CtrlAck, src, dst, seq, nil) }

func packRTS(src, dst wire.Addr, msgLen uint16) []byte {
	frame, _ := Pack(Header{Ctrl: wire.CtrlRts, Src: src, Dst: dst, Len: msgLen}, nil)
	return frame
}

func packCTS(src, dst wire.Addr, msgLen uint16) []byte {
	frame, _ := Pack(Header{Ctrl: wire.CtrlCts, Src: src, Dst: dst, Len: msgLen}, nil)
	return frame
}

func packBeacon(src wire.Addr, parent wire.Addr, parentRSSI int8) []byte {
	payload := []byte{parent, byte(parentRSSI)}
	frame, _ := Pack(Header{Ctrl: wire.CtrlBcn, Src: src, Dst: wire.Broadcast, Len: uint16(len(payload))}, payload)
	return frame
}

func unpackBeacon(payload []byte) (parent wire.Addr, parentRSSI int8, ok bool) {
	if len(payload) < 2 {
		return 0, 0, false
	}
	return payload[0], int8(payload[1]), true
}

func packWakeBeacon(src, dst wire.Addr) []byte {
	return packControl(wire.CtrlWakeBea, src, dst, 0, nil)
}

func packWakeAck(src, dst wire.Addr) []byte {
	return packControl(wire.CtrlWakeAck, src, dst, 0, nil)
}
