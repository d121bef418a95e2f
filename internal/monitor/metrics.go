package monitor

import (
	"sync"
	"time"

	"github.com/loranet/strp/internal/wire"
)

// MacPeerMetrics is one peer's row in the MAC-layer metric table
// (spec.md §4.5): {sent, received, cumulative per-hop latency, broadcast
// count}.
type MacPeerMetrics struct {
	Sent             uint64
	Received         uint64
	CumulativeLatency time.Duration
	Broadcasts       uint64
}

// RoutingPeerMetrics is one peer's row in the routing-layer (end-to-end)
// metric table: {sent, received, last hop count, cumulative end-to-end
// latency, path trace string}.
type RoutingPeerMetrics struct {
	Sent               uint64
	Received           uint64
	LastHopCount       uint8
	CumulativeLatency  time.Duration
	LastPath           string
}

// peerTable is a [256]entry array guarded by one mutex, mirroring
// original_source's Metric arrays indexed by address and neighbor.Table's
// single-mutex discipline.
type peerTable[T any] struct {
	mu      sync.Mutex
	entries [256]T
}

func (t *peerTable[T]) with(addr wire.Addr, fn func(*T)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(&t.entries[addr])
}

// snapshotAndReset returns a copy of every entry nonEmpty accepts and
// resets those entries to zero values, guarded by the same lock so the
// read and clear are atomic (spec.md §4.5: "after emission, the
// corresponding counter table is cleared atomically").
func (t *peerTable[T]) snapshotAndReset(nonEmpty func(T) bool) map[wire.Addr]T {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[wire.Addr]T)
	for addr, e := range t.entries {
		if nonEmpty(e) {
			out[wire.Addr(addr)] = e
			t.entries[addr] = *new(T)
		}
	}
	return out
}

// macTable / routingTable are the two per-node metric tables spec.md
// §4.5 names.
type macTable struct{ peerTable[MacPeerMetrics] }
type routingTable struct{ peerTable[RoutingPeerMetrics] }

func newMacTable() *macTable           { return &macTable{} }
func newRoutingTable() *routingTable   { return &routingTable{} }

func (t *macTable) recordSent(peer wire.Addr, broadcast bool) {
	t.with(peer, func(e *MacPeerMetrics) {
		e.Sent++
		if broadcast {
			e.Broadcasts++
		}
	})
}

func (t *macTable) recordReceived(peer wire.Addr, hopLatency time.Duration) {
	t.with(peer, func(e *MacPeerMetrics) {
		e.Received++
		e.CumulativeLatency += hopLatency
	})
}

func (t *routingTable) recordSent(peer wire.Addr) {
	t.with(peer, func(e *RoutingPeerMetrics) { e.Sent++ })
}

func (t *routingTable) recordReceived(peer wire.Addr, hopCount uint8, latency time.Duration, path string) {
	t.with(peer, func(e *RoutingPeerMetrics) {
		e.Received++
		e.LastHopCount = hopCount
		e.CumulativeLatency += latency
		e.LastPath = path
	})
}

// msDuration turns a wire-carried millisecond count back into a Duration,
// the inverse of (time.Duration).Milliseconds used by encodeMacMetrics and
// encodeRoutingMetrics.
func msDuration(ms uint64) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
