package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/wire"
)

// fakeInnerRadio is a routing.Radio stand-in that just loops back whatever
// was sent, for exercising MonitoredRadio's wrapping without a transport.
type fakeInnerRadio struct {
	sent   []byte
	sentTo wire.Addr
	recvCh chan []byte
}

func newFakeInnerRadio() *fakeInnerRadio {
	return &fakeInnerRadio{recvCh: make(chan []byte, 4)}
}

func (f *fakeInnerRadio) Send(dest wire.Addr, data []byte) bool {
	f.sent, f.sentTo = data, dest
	return true
}
func (f *fakeInnerRadio) ISend(dest wire.Addr, data []byte) bool { return f.Send(dest, data) }
func (f *fakeInnerRadio) Recv() (mac.RecvHeader, []byte, error) {
	return mac.RecvHeader{Src: 9}, <-f.recvCh, nil
}
func (f *fakeInnerRadio) TryRecv() (mac.RecvHeader, []byte, bool, error) {
	select {
	case d := <-f.recvCh:
		return mac.RecvHeader{Src: 9}, d, true, nil
	default:
		return mac.RecvHeader{}, nil, false, nil
	}
}
func (f *fakeInnerRadio) RecvTimeout(time.Duration) (mac.RecvHeader, []byte, error) {
	return mac.RecvHeader{Src: 9}, <-f.recvCh, nil
}
func (f *fakeInnerRadio) Close() error                                      { return nil }
func (f *fakeInnerRadio) Beacons() <-chan mac.BeaconFrame                   { return nil }
func (f *fakeInnerRadio) SendBeacon(parent wire.Addr, parentRSSI int8) error { return nil }

func TestHopTimestampPrependStripRoundTrip(t *testing.T) {
	frame := []byte{1, 2, 3}
	wrapped := prependHopTimestamp(frame)

	sentAt, stripped, ok := stripHopTimestamp(wrapped)
	require.True(t, ok)
	require.Equal(t, frame, stripped)
	require.WithinDuration(t, time.Now(), sentAt, time.Second)
}

func TestStripHopTimestampRejectsShortFrame(t *testing.T) {
	_, _, ok := stripHopTimestamp([]byte{1, 2})
	require.False(t, ok)
}

func TestBumpRoutingOverlayIncrementsHopCountAndPath(t *testing.T) {
	m := &MonitoredRadio{self: 7}

	overlay := encodeOverlay(overlayHeader{HopCount: 2, SendTimestamp: 1}, []wire.Addr{1, 2}, []byte("payload"))
	rh := routing.Header{Ctrl: wire.CtrlPkt, Src: 1, Dst: 9}
	frame, err := routing.Encode(rh, overlay)
	require.NoError(t, err)

	bumped := m.bumpRoutingOverlay(frame)

	h, payload, err := routing.Decode(bumped)
	require.NoError(t, err)
	require.Equal(t, rh.Src, h.Src)

	oh, path, inner, err := decodeOverlay(payload)
	require.NoError(t, err)
	require.Equal(t, uint8(3), oh.HopCount)
	require.Equal(t, []wire.Addr{1, 2, 7}, path)
	require.Equal(t, []byte("payload"), inner)
}

func TestBumpRoutingOverlayLeavesNonOverlayFrameUntouched(t *testing.T) {
	m := &MonitoredRadio{self: 7}

	rh := routing.Header{Ctrl: wire.CtrlPkt, Src: 1, Dst: 9}
	frame, err := routing.Encode(rh, []byte("plain data, no overlay"))
	require.NoError(t, err)

	require.Equal(t, frame, m.bumpRoutingOverlay(frame))
}

func TestMonitoredRadioSendOnlyPrependsTimestamp(t *testing.T) {
	inner := newFakeInnerRadio()
	m := &MonitoredRadio{inner: inner, self: 1, mac: newMacTable(), log: nil}

	ok := m.Send(9, []byte("hello"))
	require.True(t, ok)
	require.Equal(t, wire.Addr(9), inner.sentTo)

	_, stripped, underlying := stripHopTimestamp(inner.sent)
	require.True(t, underlying)
	require.Equal(t, []byte("hello"), stripped, "Send must not bump any routing overlay — only the receiver bumps its own hop")

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap[9].Sent)
}

func TestMonitoredRadioRecvStripsTimestampAndRecordsLatency(t *testing.T) {
	inner := newFakeInnerRadio()
	m := &MonitoredRadio{inner: inner, self: 1, mac: newMacTable(), log: nil}

	inner.recvCh <- prependHopTimestamp([]byte("world"))

	rh, payload, err := m.Recv()
	require.NoError(t, err)
	require.Equal(t, wire.Addr(9), rh.Src)
	require.Equal(t, []byte("world"), payload)

	snap := m.Snapshot()
	require.Equal(t, uint64(1), snap[9].Received)
}

func TestMonitoredRadioRecvBumpsHopCountAndAppendsSelf(t *testing.T) {
	inner := newFakeInnerRadio()
	m := &MonitoredRadio{inner: inner, self: 7, mac: newMacTable(), log: nil}

	overlay := encodeOverlay(overlayHeader{HopCount: 0, SendTimestamp: time.Now().UnixMilli()}, []wire.Addr{13}, []byte("app data"))
	rh := routing.Header{Ctrl: wire.CtrlPkt, Src: 13, Dst: 1}
	frame, err := routing.Encode(rh, overlay)
	require.NoError(t, err)
	inner.recvCh <- prependHopTimestamp(frame)

	_, wrapped, err := m.Recv()
	require.NoError(t, err)

	h, payload, err := routing.Decode(wrapped)
	require.NoError(t, err)
	require.Equal(t, rh.Src, h.Src)

	oh, path, inner2, err := decodeOverlay(payload)
	require.NoError(t, err)
	require.Equal(t, uint8(1), oh.HopCount)
	require.Equal(t, []wire.Addr{13, 7}, path, "the receiving node appends its own address, not the sender's")
	require.Equal(t, []byte("app data"), inner2)
}
