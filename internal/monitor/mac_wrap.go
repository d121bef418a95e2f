package monitor

import (
	"encoding/binary"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/wire"
)

// MonitoredRadio decorates a mac.Engine (and the Beacons/SendBeacon
// extensions routing.Radio needs) with ProtoMon's MAC-layer wrapping
// (spec.md §4.5): a per-send hop-timestamp prefix used to measure
// per-hop latency on the next receiver, in-place hop-count/path bumping
// of any routing-level monitor overlay riding inside the frame on
// *receive* (each receiving node records its own hop, not the sender's),
// and the MAC peer metric table.
//
// Grounded on ProtoMon.c's MAC-level function-pointer wrapper, expressed
// as a decorator value per spec.md §9's redesign note rather than global
// function-pointer substitution.
type MonitoredRadio struct {
	inner routing.Radio
	self  wire.Addr
	mac   *macTable
	log   *logging.Logger
}

// WrapRadio returns inner unchanged if monitoring is disabled — ProtoMon
// init is specified as a no-op when no layer is marked for monitoring
// (spec.md §4.5), and the cheapest way to honour that is to not
// construct the decorator at all.
func WrapRadio(inner routing.Radio, self wire.Addr, enabled bool) routing.Radio {
	if !enabled {
		return inner
	}
	return &MonitoredRadio{inner: inner, self: self, mac: newMacTable(), log: logging.For(logging.ComponentMonitor)}
}

const hopTimestampLen = 8

func prependHopTimestamp(frame []byte) []byte {
	out := make([]byte, hopTimestampLen+len(frame))
	binary.LittleEndian.PutUint64(out[:hopTimestampLen], uint64(time.Now().UnixMilli()))
	copy(out[hopTimestampLen:], frame)
	return out
}

func stripHopTimestamp(wrapped []byte) (time.Time, []byte, bool) {
	if len(wrapped) < hopTimestampLen {
		return time.Time{}, nil, false
	}
	ms := int64(binary.LittleEndian.Uint64(wrapped[:hopTimestampLen]))
	return time.UnixMilli(ms), wrapped[hopTimestampLen:], true
}

// bumpRoutingOverlay increments hop_count and appends self to the path of
// any routing-level monitor overlay riding inside frame, leaving frame
// untouched if it isn't a decodable routing frame or carries no overlay
// (spec.md §4.5: "on every relay the MAC-wrapper increments hop_count in
// place... without requiring routing-level cooperation"). Grounded on
// ProtoMon.c's ProtoMon_MAC_recv, which is where numHops/the path trail
// are actually advanced — the receiving node records its own hop, never
// the sender.
func (m *MonitoredRadio) bumpRoutingOverlay(frame []byte) []byte {
	h, payload, err := routing.Decode(frame)
	if err != nil {
		return frame
	}
	oh, path, inner, err := decodeOverlay(payload)
	if err != nil {
		return frame
	}
	oh.HopCount++
	path = append(path, m.self)
	newPayload := encodeOverlay(oh, path, inner)
	newFrame, err := routing.Encode(h, newPayload)
	if err != nil {
		return frame
	}
	return newFrame
}

func (m *MonitoredRadio) Send(dest wire.Addr, data []byte) bool {
	frame := prependHopTimestamp(data)
	m.mac.recordSent(dest, dest == wire.Broadcast)
	return m.inner.Send(dest, frame)
}

func (m *MonitoredRadio) ISend(dest wire.Addr, data []byte) bool {
	frame := prependHopTimestamp(data)
	m.mac.recordSent(dest, dest == wire.Broadcast)
	return m.inner.ISend(dest, frame)
}

func (m *MonitoredRadio) Recv() (mac.RecvHeader, []byte, error) {
	rh, wrapped, err := m.inner.Recv()
	if err != nil {
		return rh, nil, err
	}
	return rh, m.unwrap(rh, wrapped), nil
}

func (m *MonitoredRadio) TryRecv() (mac.RecvHeader, []byte, bool, error) {
	rh, wrapped, ok, err := m.inner.TryRecv()
	if err != nil || !ok {
		return rh, nil, ok, err
	}
	return rh, m.unwrap(rh, wrapped), true, nil
}

func (m *MonitoredRadio) RecvTimeout(d time.Duration) (mac.RecvHeader, []byte, error) {
	rh, wrapped, err := m.inner.RecvTimeout(d)
	if err != nil {
		return rh, nil, err
	}
	return rh, m.unwrap(rh, wrapped), nil
}

// unwrap records the MAC-level received metric, strips the hop-timestamp
// prefix, and bumps this node's own hop/path onto any routing-level
// overlay riding inside the frame.
func (m *MonitoredRadio) unwrap(rh mac.RecvHeader, wrapped []byte) []byte {
	sentAt, frame, ok := stripHopTimestamp(wrapped)
	if !ok {
		return wrapped
	}
	m.mac.recordReceived(rh.Src, time.Since(sentAt))
	return m.bumpRoutingOverlay(frame)
}

func (m *MonitoredRadio) Close() error { return m.inner.Close() }

func (m *MonitoredRadio) Beacons() <-chan mac.BeaconFrame { return m.inner.Beacons() }

func (m *MonitoredRadio) SendBeacon(parent wire.Addr, parentRSSI int8) error {
	return m.inner.SendBeacon(parent, parentRSSI)
}

// Snapshot returns and clears the MAC peer metric table, for the
// reporter thread's CTRL_MAC report.
func (m *MonitoredRadio) Snapshot() map[wire.Addr]MacPeerMetrics {
	return m.mac.snapshotAndReset(func(e MacPeerMetrics) bool {
		return e.Sent > 0 || e.Received > 0
	})
}
