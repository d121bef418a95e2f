package monitor

import (
	"encoding/binary"

	"github.com/loranet/strp/internal/wire"
)

// macMetricRecordLen is addr(1) + sent(4) + received(4) + cumulative
// latency in milliseconds(8) + broadcasts(4).
const macMetricRecordLen = 21

func encodeMacMetrics(snap map[wire.Addr]MacPeerMetrics) []byte {
	out := make([]byte, 0, len(snap)*macMetricRecordLen)
	for addr, m := range snap {
		rec := make([]byte, macMetricRecordLen)
		rec[0] = addr
		binary.LittleEndian.PutUint32(rec[1:5], uint32(m.Sent))
		binary.LittleEndian.PutUint32(rec[5:9], uint32(m.Received))
		binary.LittleEndian.PutUint64(rec[9:17], uint64(m.CumulativeLatency.Milliseconds()))
		binary.LittleEndian.PutUint32(rec[17:21], uint32(m.Broadcasts))
		out = append(out, rec...)
	}
	return out
}

func decodeMacMetrics(payload []byte) map[wire.Addr]MacPeerMetrics {
	out := make(map[wire.Addr]MacPeerMetrics)
	for i := 0; i+macMetricRecordLen <= len(payload); i += macMetricRecordLen {
		b := payload[i:]
		out[b[0]] = MacPeerMetrics{
			Sent:              uint64(binary.LittleEndian.Uint32(b[1:5])),
			Received:          uint64(binary.LittleEndian.Uint32(b[5:9])),
			CumulativeLatency: msDuration(binary.LittleEndian.Uint64(b[9:17])),
			Broadcasts:        uint64(binary.LittleEndian.Uint32(b[17:21])),
		}
	}
	return out
}

// routingMetricRecord is addr(1) + sent(4) + received(4) + lastHopCount(1)
// + cumulative latency ms(8) + pathLen(1) + path (ascii hex pairs).
func encodeRoutingMetrics(snap map[wire.Addr]RoutingPeerMetrics) []byte {
	var out []byte
	for addr, m := range snap {
		path := []byte(m.LastPath)
		rec := make([]byte, 19, 19+len(path))
		rec[0] = addr
		binary.LittleEndian.PutUint32(rec[1:5], uint32(m.Sent))
		binary.LittleEndian.PutUint32(rec[5:9], uint32(m.Received))
		rec[9] = m.LastHopCount
		binary.LittleEndian.PutUint64(rec[10:18], uint64(m.CumulativeLatency.Milliseconds()))
		rec[18] = byte(len(path))
		rec = append(rec, path...)
		out = append(out, rec...)
	}
	return out
}

func decodeRoutingMetrics(payload []byte) map[wire.Addr]RoutingPeerMetrics {
	out := make(map[wire.Addr]RoutingPeerMetrics)
	i := 0
	for i+19 <= len(payload) {
		b := payload[i:]
		pathLen := int(b[18])
		if i+19+pathLen > len(payload) {
			break
		}
		out[b[0]] = RoutingPeerMetrics{
			Sent:              uint64(binary.LittleEndian.Uint32(b[1:5])),
			Received:          uint64(binary.LittleEndian.Uint32(b[5:9])),
			LastHopCount:      b[9],
			CumulativeLatency: msDuration(binary.LittleEndian.Uint64(b[10:18])),
			LastPath:          string(b[19 : 19+pathLen]),
		}
		i += 19 + pathLen
	}
	return out
}
