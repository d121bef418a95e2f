package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/wire"
)

func TestPayloadOfDecodesOverlayAndRecordsMetric(t *testing.T) {
	m := &MonitoredRouting{rt: newRoutingTable()}

	overlay := encodeOverlay(overlayHeader{HopCount: 2, SendTimestamp: time.Now().UnixMilli()}, []wire.Addr{1, 2}, []byte("app data"))

	got := m.payloadOf(1, overlay)
	require.Equal(t, []byte("app data"), got)

	snap := m.rt.snapshotAndReset(func(e RoutingPeerMetrics) bool { return e.Received > 0 })
	require.Equal(t, uint8(2), snap[1].LastHopCount)
	require.Equal(t, "01-02", snap[1].LastPath)
}

func TestPayloadOfPassesThroughUnmonitoredFrame(t *testing.T) {
	m := &MonitoredRouting{rt: newRoutingTable()}

	raw := []byte("plain, no overlay")
	got := m.payloadOf(1, raw)
	require.Equal(t, raw, got)

	snap := m.rt.snapshotAndReset(func(e RoutingPeerMetrics) bool { return e.Received > 0 })
	require.Empty(t, snap, "a frame with no decodable overlay must not be counted as a received metric")
}
