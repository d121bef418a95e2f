package mac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeqAcceptMonotonic(t *testing.T) {
	var s seqTables

	require.True(t, s.accept(1, 1), "first frame with seq 1 must be accepted")
	require.True(t, s.accept(1, 2), "strictly increasing seq must be accepted")
	require.False(t, s.accept(1, 2), "repeat of an already-seen seq must be rejected as a duplicate")
	require.False(t, s.accept(1, 1), "a seq below the high-water mark must be rejected")
	require.True(t, s.accept(1, 5), "a later seq must be accepted, regardless of the gap")
}

func TestSeqAcceptIsPerSource(t *testing.T) {
	var s seqTables

	require.True(t, s.accept(1, 3))
	require.True(t, s.accept(2, 3), "a different source's sequence space must be independent")
}

func TestSeqZeroNeverTreatedAsDuplicate(t *testing.T) {
	var s seqTables
	// seq 0 is the value retries of the very first send reuse before
	// advanceSend has ever incremented the counter; accept must not treat
	// repeats of 0 as stale relative to themselves.
	require.True(t, s.accept(1, 0))
	require.True(t, s.accept(1, 0))
}

func TestAdvanceSendOnlyAfterWholeProcedure(t *testing.T) {
	var s seqTables

	first := s.currentSend(9)
	first2 := s.currentSend(9)
	require.Equal(t, first, first2, "currentSend must not itself advance the counter")

	s.advanceSend(9)
	require.Equal(t, first+1, s.currentSend(9))
}
