package routing

import (
	"math/rand"

	"github.com/loranet/strp/internal/neighbor"
	"github.com/loranet/strp/internal/wire"
)

// Strategy selects a new parent from the observed neighbour set
// (spec.md §4.4's parent-selection table). Evaluated both reactively on
// every new neighbour observation and on demand on parent timeout or
// loop detection.
type Strategy int

const (
	NextLower Strategy = iota
	Random
	RandomLower
	Closest
	ClosestLower
	Fixed
)

func (s Strategy) String() string {
	switch s {
	case NextLower:
		return "NEXT_LOWER"
	case Random:
		return "RANDOM"
	case RandomLower:
		return "RANDOM_LOWER"
	case Closest:
		return "CLOSEST"
	case ClosestLower:
		return "CLOSEST_LOWER"
	case Fixed:
		return "FIXED"
	default:
		return "UNKNOWN"
	}
}

// ParseStrategy maps a configuration string onto a Strategy, for
// internal/config's YAML/flag surface.
func ParseStrategy(s string) (Strategy, bool) {
	switch s {
	case "NEXT_LOWER":
		return NextLower, true
	case "RANDOM":
		return Random, true
	case "RANDOM_LOWER":
		return RandomLower, true
	case "CLOSEST":
		return Closest, true
	case "CLOSEST_LOWER":
		return ClosestLower, true
	case "FIXED":
		return Fixed, true
	default:
		return 0, false
	}
}

// selectParent applies strategy over candidates (already filtered to
// exclude INBOUND peers, per spec.md §4.4: "a child is never eligible as
// parent") against the current parent's table entry. NEXT_LOWER falls
// back to sink when no candidate lies below self; RANDOM, RANDOM_LOWER,
// CLOSEST and CLOSEST_LOWER keep the current parent when no candidate
// replaces it.
func selectParent(strategy Strategy, self, sink, current wire.Addr, currentEntry neighbor.Entry, candidates []neighbor.Addressed, fixed wire.Addr) wire.Addr {
	switch strategy {
	case Fixed:
		return fixed

	case NextLower:
		best, found := current, false
		for _, cand := range candidates {
			if cand.Addr < self && (!found || cand.Addr > best) {
				best, found = cand.Addr, true
			}
		}
		if !found {
			return sink
		}
		return best

	case Random:
		chosen := current
		for _, cand := range candidates {
			if cand.Addr != current && rand.Intn(2) == 0 {
				chosen = cand.Addr
			}
		}
		return chosen

	case RandomLower:
		chosen := current
		for _, cand := range candidates {
			if cand.Addr < self && cand.Addr != current && rand.Intn(2) == 0 {
				chosen = cand.Addr
			}
		}
		return chosen

	case Closest:
		best, bestRSSI, found := current, currentEntry.RSSI, false
		for _, cand := range candidates {
			if cand.Entry.RSSI > bestRSSI {
				best, bestRSSI, found = cand.Addr, cand.Entry.RSSI, true
			}
		}
		if !found {
			return current
		}
		return best

	case ClosestLower:
		best, bestRSSI, found := current, currentEntry.RSSI, false
		for _, cand := range candidates {
			if cand.Addr < self && cand.Entry.RSSI > bestRSSI {
				best, bestRSSI, found = cand.Addr, cand.Entry.RSSI, true
			}
		}
		if !found {
			return current
		}
		return best

	default:
		return sink
	}
}
