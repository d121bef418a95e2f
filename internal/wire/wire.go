// Package wire defines the on-air constants and encoding primitives shared
// by the MAC, routing, and monitor layers: the one-octet address space,
// the globally-distinct control-byte discriminators of spec §6, and the
// additive checksum used at every framing boundary.
//
// Grounded on the teacher's ax25_pad.go (explicit little-endian field
// packing, no reliance on host struct layout) and on
// original_source/common/common.h's flat CTRL_* byte-constant style.
package wire

import "encoding/binary"

// Addr is a node address: one octet, so the whole address space fits in a
// byte and the neighbour table can index it directly.
type Addr = uint8

// Broadcast is the reserved destination meaning "every neighbour".
const Broadcast Addr = 0xFF

// Control-byte discriminators. Routing-layer and MAC-layer control bytes
// live in different header fields, but per spec §6 the whole set is kept
// globally distinct to avoid ever confusing a log line or a capture dump.
const (
	// Routing layer (first byte of a MAC payload, spec.md §3 "Routing frame").
	CtrlPkt        byte = 0x01 // ordinary application data
	CtrlTab        byte = 0x03 // topology report (push or pull response)
	CtrlMsg        byte = 0x04 // ProtoMon-instrumented application datagram
	CtrlMacMetrics byte = 0x05 // ProtoMon MAC-layer metric report
	CtrlRouMetrics byte = 0x06 // ProtoMon routing-layer metric report
	CtrlTopoReq    byte = 0x07 // sink-initiated topology pull (SPEC_FULL addition)

	// MAC layer (control byte of the on-air frame header, spec.md §3/§4.3).
	CtrlBcn     byte = 0x02 // routing beacon, broadcast, not routed
	CtrlAck     byte = 0x10 // acknowledgement
	CtrlRts     byte = 0x11 // request-to-send (MACAW)
	CtrlCts     byte = 0x12 // clear-to-send (MACAW)
	CtrlWakeBea byte = 0x13 // wake-up beacon (STEM)
	CtrlWakeAck byte = 0x14 // wake-up acknowledgement (STEM)

	// Radio transport out-of-band response discriminator (spec.md §6).
	CtrlRet byte = 0x7F
)

// Checksum8 is the additive byte-sum-mod-256 checksum used for every frame
// in this stack. It is, by construction, invariant under reordering of the
// summed bytes.
func Checksum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

// PutUint16 / Uint16 centralise the little-endian discipline §3 and §9
// require for every multi-byte wire field.
func PutUint16(b []byte, v uint16) {
	binary.LittleEndian.PutUint16(b, v)
}

func Uint16(b []byte) uint16 {
	return binary.LittleEndian.Uint16(b)
}
