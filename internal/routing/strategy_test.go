package routing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/neighbor"
	"github.com/loranet/strp/internal/wire"
)

func addressed(addr wire.Addr, rssi int8) neighbor.Addressed {
	return neighbor.Addressed{Addr: addr, Entry: neighbor.Entry{RSSI: rssi}}
}

func TestSelectParentNextLowerPicksHighestBelowSelf(t *testing.T) {
	self := wire.Addr(10)
	candidates := []neighbor.Addressed{addressed(3, 0), addressed(7, 0), addressed(9, 0), addressed(15, 0)}

	got := selectParent(NextLower, self, 0xFE, 3, neighbor.Entry{}, candidates, 0)
	require.Equal(t, wire.Addr(9), got, "NEXT_LOWER must pick the highest candidate address below self, not just any qualifying one")
}

func TestSelectParentNextLowerFallsBackToSink(t *testing.T) {
	self := wire.Addr(1)
	sink := wire.Addr(0xFE)
	candidates := []neighbor.Addressed{addressed(5, 0), addressed(9, 0)}

	got := selectParent(NextLower, self, sink, 2, neighbor.Entry{}, candidates, 0)
	require.Equal(t, sink, got, "with no candidate below self, NEXT_LOWER must fall back to the sink")
}

func TestSelectParentClosestPicksBestRSSIAboveCurrent(t *testing.T) {
	self := wire.Addr(10)
	current := wire.Addr(2)
	currentEntry := neighbor.Entry{RSSI: -80}
	candidates := []neighbor.Addressed{addressed(3, -90), addressed(4, -50), addressed(5, -60)}

	got := selectParent(Closest, self, 0xFE, current, currentEntry, candidates, 0)
	require.Equal(t, wire.Addr(4), got, "CLOSEST must pick the single best-RSSI candidate, not the last one iterated")
}

func TestSelectParentClosestKeepsCurrentWhenNothingBetter(t *testing.T) {
	self := wire.Addr(10)
	current := wire.Addr(2)
	currentEntry := neighbor.Entry{RSSI: -40}
	candidates := []neighbor.Addressed{addressed(3, -90), addressed(4, -50)}

	got := selectParent(Closest, self, 0xFE, current, currentEntry, candidates, 0)
	require.Equal(t, current, got)
}

func TestSelectParentFixedIgnoresCandidates(t *testing.T) {
	fixed := wire.Addr(42)
	got := selectParent(Fixed, 1, 0xFE, 2, neighbor.Entry{}, []neighbor.Addressed{addressed(5, 0)}, fixed)
	require.Equal(t, fixed, got)
}

func TestParseStrategyRoundTrip(t *testing.T) {
	for _, s := range []Strategy{NextLower, Random, RandomLower, Closest, ClosestLower, Fixed} {
		parsed, ok := ParseStrategy(s.String())
		require.True(t, ok)
		require.Equal(t, s, parsed)
	}
}

func TestParseStrategyRejectsUnknown(t *testing.T) {
	_, ok := ParseStrategy("NOT_A_STRATEGY")
	require.False(t, ok)
}
