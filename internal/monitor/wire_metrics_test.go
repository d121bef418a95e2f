package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/wire"
)

func TestMacMetricsEncodeDecodeRoundTrip(t *testing.T) {
	snap := map[wire.Addr]MacPeerMetrics{
		3: {Sent: 10, Received: 8, CumulativeLatency: 900 * time.Millisecond, Broadcasts: 2},
		5: {Sent: 1, Received: 0, CumulativeLatency: 0, Broadcasts: 0},
	}

	raw := encodeMacMetrics(snap)
	got := decodeMacMetrics(raw)
	require.Equal(t, snap, got)
}

func TestMacMetricsDecodeEmpty(t *testing.T) {
	require.Empty(t, decodeMacMetrics(nil))
}

func TestRoutingMetricsEncodeDecodeRoundTrip(t *testing.T) {
	snap := map[wire.Addr]RoutingPeerMetrics{
		3: {Sent: 4, Received: 3, LastHopCount: 2, CumulativeLatency: 300 * time.Millisecond, LastPath: "01-02-03"},
		9: {Sent: 1, Received: 1, LastHopCount: 0, CumulativeLatency: 0, LastPath: ""},
	}

	raw := encodeRoutingMetrics(snap)
	got := decodeRoutingMetrics(raw)
	require.Equal(t, snap, got)
}

func TestRoutingMetricsDecodeEmpty(t *testing.T) {
	require.Empty(t, decodeRoutingMetrics(nil))
}

func TestRoutingMetricsDecodeIgnoresTrailingGarbage(t *testing.T) {
	snap := map[wire.Addr]RoutingPeerMetrics{3: {Sent: 1, Received: 1, LastPath: "01"}}
	raw := append(encodeRoutingMetrics(snap), 0xFF, 0xFF) // short trailing bytes, not a full record

	got := decodeRoutingMetrics(raw)
	require.Equal(t, snap, got)
}
