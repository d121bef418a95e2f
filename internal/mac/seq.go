package mac

import "github.com/loranet/strp/internal/wire"

// seqTables holds the per-destination send counters and per-source
// expected-receive counters (spec.md §3 "Sequence numbers"). Per spec.md
// §5's shared-resource policy, the send table is touched only by the send
// worker and the recv table only by the receive worker, so neither needs
// its own lock.
type seqTables struct {
	send     [256]uint16 // next seq to use per destination
	expected [256]uint16 // highest seq accepted per source
}

// currentSend returns the sequence number to use for the (possibly
// multiple) transmission attempts of one outbound message; it does not
// advance the counter. advanceSend does that once the whole send
// procedure terminates, regardless of outcome (spec.md §3: "the counter
// increments after each attempt" — one attempt here meaning one send()
// call, not one retry).
func (s *seqTables) currentSend(dest wire.Addr) uint16 {
	return s.send[dest]
}

func (s *seqTables) advanceSend(dest wire.Addr) {
	s.send[dest]++
}

// accept reports whether a unicast frame from src with sequence q is a
// fresh delivery (spec.md §3/§4.3): duplicates are q <= expected[src] with
// q != 0. On acceptance it records q as the new high-water mark.
func (s *seqTables) accept(src wire.Addr, q uint16) bool {
	if q != 0 && q <= s.expected[src] {
		return false
	}
	s.expected[src] = q
	return true
}
