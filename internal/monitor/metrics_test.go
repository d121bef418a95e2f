package monitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/wire"
)

func TestMacTableAccumulatesAndResets(t *testing.T) {
	tbl := newMacTable()
	tbl.recordSent(5, false)
	tbl.recordSent(5, true)
	tbl.recordReceived(5, 100*time.Millisecond)
	tbl.recordReceived(5, 50*time.Millisecond)

	snap := tbl.snapshotAndReset(func(e MacPeerMetrics) bool { return e.Sent > 0 || e.Received > 0 })
	require.Equal(t, MacPeerMetrics{Sent: 2, Received: 2, CumulativeLatency: 150 * time.Millisecond, Broadcasts: 1}, snap[5])

	// after the snapshot, the table must read back as empty
	again := tbl.snapshotAndReset(func(e MacPeerMetrics) bool { return e.Sent > 0 || e.Received > 0 })
	require.Empty(t, again)
}

func TestRoutingTableAccumulatesAndResets(t *testing.T) {
	tbl := newRoutingTable()
	tbl.recordSent(7)
	tbl.recordReceived(7, 4, 200*time.Millisecond, "01-02")

	snap := tbl.snapshotAndReset(func(e RoutingPeerMetrics) bool { return e.Sent > 0 || e.Received > 0 })
	require.Equal(t, RoutingPeerMetrics{
		Sent:              1,
		Received:          1,
		LastHopCount:      4,
		CumulativeLatency: 200 * time.Millisecond,
		LastPath:          "01-02",
	}, snap[7])
}

func TestPeerTableIsPerAddress(t *testing.T) {
	tbl := newMacTable()
	tbl.recordSent(1, false)
	tbl.recordSent(2, false)
	tbl.recordSent(2, false)

	snap := tbl.snapshotAndReset(func(e MacPeerMetrics) bool { return e.Sent > 0 })
	require.Equal(t, uint64(1), snap[wire.Addr(1)].Sent)
	require.Equal(t, uint64(2), snap[wire.Addr(2)].Sent)
}

func TestMsDurationInverseOfMilliseconds(t *testing.T) {
	d := 1500 * time.Millisecond
	require.Equal(t, d, msDuration(uint64(d.Milliseconds())))
}
