// Package monitor implements ProtoMon (spec.md §4.5): a decorator layered
// over the routing and MAC send/recv contracts that overlays hop-count,
// timestamp, and path-trace metadata, accumulates per-peer metrics, and
// on the sink ships them to CSV plus an external visualisation hook.
//
// Grounded on original_source/STRP_Aloha/ProtoMon/ProtoMon.c and
// metric.c (per-peer Metric tables under a mutex) and the teacher's
// telemetry.go (metrics-record shape) and log.go (CSV-append-with-header
// idiom; rows here are written with fmt.Fprintf).
package monitor

import (
	"encoding/binary"
	"errors"

	"github.com/loranet/strp/internal/wire"
)

// overlayHeader is the fixed prefix spec.md §4.5 describes as
// "(monitor_ctrl=MSG, hop_count=0, send_timestamp)", placed ahead of the
// application payload and followed by a variable-length path trail.
type overlayHeader struct {
	HopCount      uint8
	SendTimestamp int64 // unix milliseconds
}

const overlayHeaderLen = 1 + 8 // hopCount + timestamp

var ErrShortOverlay = errors.New("monitor: payload shorter than overlay header")

// encodeOverlay produces ctrl(=CtrlMsg) + hopCount + timestamp + pathLen +
// path + payload, the shape MonitoredRouting.Send prefixes onto every
// outgoing application datagram and MonitoredRadio mutates in place on
// every relay.
func encodeOverlay(h overlayHeader, path []wire.Addr, payload []byte) []byte {
	out := make([]byte, 1+overlayHeaderLen+1+len(path)+len(payload))
	out[0] = wire.CtrlMsg
	out[1] = h.HopCount
	binary.LittleEndian.PutUint64(out[2:10], uint64(h.SendTimestamp))
	out[10] = uint8(len(path))
	copy(out[11:], path)
	copy(out[11+len(path):], payload)
	return out
}

func decodeOverlay(raw []byte) (overlayHeader, []wire.Addr, []byte, error) {
	if len(raw) < 1+overlayHeaderLen+1 || raw[0] != wire.CtrlMsg {
		return overlayHeader{}, nil, nil, ErrShortOverlay
	}
	h := overlayHeader{
		HopCount:      raw[1],
		SendTimestamp: int64(binary.LittleEndian.Uint64(raw[2:10])),
	}
	pathLen := int(raw[10])
	if len(raw) < 11+pathLen {
		return overlayHeader{}, nil, nil, ErrShortOverlay
	}
	path := append([]wire.Addr(nil), raw[11:11+pathLen]...)
	payload := raw[11+pathLen:]
	return h, path, payload, nil
}

// pathString renders a path as spec.md §4.5 requires: '-'-joined address
// tokens so the whole metrics stream stays comma-free and CSV-safe.
func pathString(path []wire.Addr) string {
	out := make([]byte, 0, len(path)*3)
	for i, a := range path {
		if i > 0 {
			out = append(out, '-')
		}
		out = appendHex(out, a)
	}
	return string(out)
}

func appendHex(b []byte, v wire.Addr) []byte {
	const hexDigits = "0123456789ABCDEF"
	return append(b, hexDigits[v>>4], hexDigits[v&0xF])
}
