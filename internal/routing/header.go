// Package routing implements STRP, the sink-rooted tree-formation and
// store-and-forward layer of spec.md §4.4: beacon-driven parent
// selection, loop detection with loopy-parent suppression, and
// topology reporting, layered over internal/mac.
//
// Grounded on original_source/AlohaRoute/STRP/STRP.c and
// .../STRP_Aloha/STRP's Routing_Header/ParentSelectionStrategy, and on
// the teacher's digipeater.go (store-and-forward decision logic) and
// beacon.go (periodic + on-demand beacon emission).
package routing

import (
	"encoding/binary"
	"errors"

	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/wire"
)

// HeaderLen is the fixed routing-layer header prefixed to every
// CTRL_PKT payload handed to the MAC layer: ctrl(1) + src(1) + dst(1).
// Hop count and source path are not routing-header fields in this
// unmonitored core (spec.md §4.4); when ProtoMon is active they instead
// ride inside the application payload as the monitor overlay internal/
// monitor prefixes and mutates, so the routing layer never carries or
// interprets them itself.
const HeaderLen = 3

var (
	ErrShortHeader = errors.New("routing: payload shorter than header")
	ErrTooLarge    = errors.New("routing: payload exceeds MAC frame budget")
)

// Header is the routing-layer envelope carried inside a MAC data frame.
type Header struct {
	Ctrl byte
	Src  wire.Addr
	Dst  wire.Addr
}

// Encode serialises a routing header plus application payload into the
// byte slice handed to the MAC layer's Send.
func Encode(h Header, payload []byte) ([]byte, error) {
	if HeaderLen+len(payload) > mac.MaxPayload {
		return nil, ErrTooLarge
	}
	out := make([]byte, HeaderLen+len(payload))
	out[0] = h.Ctrl
	out[1] = h.Src
	out[2] = h.Dst
	copy(out[HeaderLen:], payload)
	return out, nil
}

// Decode is Encode's inverse.
func Decode(raw []byte) (Header, []byte, error) {
	if len(raw) < HeaderLen {
		return Header{}, nil, ErrShortHeader
	}
	h := Header{
		Ctrl: raw[0],
		Src:  raw[1],
		Dst:  raw[2],
	}
	return h, raw[HeaderLen:], nil
}

// TopoRecord is one neighbour-table row as carried in a CTRL_TAB
// topology report (spec.md §4.4): addr, state, link, parent, rssi,
// parent_rssi, last_seen (seconds-since-epoch-truncated-to-uint32, since
// the report only needs relative freshness at the sink).
type TopoRecord struct {
	Addr       wire.Addr
	State      uint8
	Link       uint8
	Parent     wire.Addr
	RSSI       int8
	ParentRSSI int8
	LastSeen   uint32
}

const topoRecordLen = 10

// EncodeTopology serialises a slice of TopoRecord into a CTRL_TAB payload.
func EncodeTopology(records []TopoRecord) []byte {
	out := make([]byte, len(records)*topoRecordLen)
	for i, r := range records {
		b := out[i*topoRecordLen:]
		b[0] = r.Addr
		b[1] = r.State
		b[2] = r.Link
		b[3] = r.Parent
		b[4] = byte(r.RSSI)
		b[5] = byte(r.ParentRSSI)
		binary.LittleEndian.PutUint32(b[6:10], r.LastSeen)
	}
	return out
}

// DecodeTopology is EncodeTopology's inverse.
func DecodeTopology(payload []byte) []TopoRecord {
	n := len(payload) / topoRecordLen
	out := make([]TopoRecord, n)
	for i := 0; i < n; i++ {
		b := payload[i*topoRecordLen:]
		out[i] = TopoRecord{
			Addr:       b[0],
			State:      b[1],
			Link:       b[2],
			Parent:     b[3],
			RSSI:       int8(b[4]),
			ParentRSSI: int8(b[5]),
			LastSeen:   binary.LittleEndian.Uint32(b[6:10]),
		}
	}
	return out
}
