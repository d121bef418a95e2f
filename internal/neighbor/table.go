// Package neighbor implements the per-node neighbour table (spec.md §3,
// §4.2): one entry per observed address, a single mutex, and a bounded
// liveness sweep over [minAddr, maxAddr] instead of the whole address
// space.
//
// Grounded on original_source/AlohaRoute/STRP/STRP.h's ActiveNodes/NodeInfo
// (fixed array indexed by address, numActive/numKnown, minAddr/maxAddr
// bookkeeping) and the teacher's mheard.go (single mutex, append-mostly
// access pattern, last_heard bookkeeping).
package neighbor

import (
	"sync"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/wire"
)

type State int

const (
	Unknown State = iota
	Active
	Inactive
)

func (s State) String() string {
	switch s {
	case Active:
		return "ACTIVE"
	case Inactive:
		return "INACTIVE"
	default:
		return "UNKNOWN"
	}
}

type Link int

const (
	Idle Link = iota
	Outbound
	Inbound
)

func (l Link) String() string {
	switch l {
	case Outbound:
		return "OUTBOUND"
	case Inbound:
		return "INBOUND"
	default:
		return "IDLE"
	}
}

// Entry is everything known about one peer address (spec.md §3).
type Entry struct {
	State      State
	Link       Link
	RSSI       int8
	Parent     wire.Addr // broadcast sentinel (0xFF) if unknown
	ParentRSSI int8
	LastSeen   time.Time
}

// Table is the node's neighbour table: a [256]Entry array (one slot per
// possible address) so lookups never hash, guarded by a single mutex since
// every critical section here is a fixed-size struct copy with no I/O.
type Table struct {
	mu          sync.Mutex
	self        wire.Addr
	entries     [256]Entry
	minAddr     wire.Addr
	maxAddr     wire.Addr
	anyObserved bool
	nodeTimeout time.Duration
	log         *logging.Logger
}

func NewTable(self wire.Addr, nodeTimeout time.Duration) *Table {
	return &Table{
		self:        self,
		nodeTimeout: nodeTimeout,
		log:         logging.For(logging.ComponentNeighbor),
	}
}

// Get returns a copy of addr's current entry.
func (t *Table) Get(addr wire.Addr) Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entries[addr]
}

// Touch records a sighting of addr — from a data/routing packet, a
// beacon, or a detected loop (spec.md §4.2's three update events). It sets
// last_seen, rssi, transitions state to ACTIVE, and recomputes link role
// per the rule in §4.2: OUTBOUND if addr is currentParent, INBOUND if addr
// advertised self as its parent, IDLE otherwise.
func (t *Table) Touch(addr wire.Addr, rssi int8, peerParent wire.Addr, peerParentRSSI int8, currentParent wire.Addr, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := &t.entries[addr]
	wasKnown := e.State != Unknown

	e.State = Active
	e.RSSI = rssi
	e.Parent = peerParent
	e.ParentRSSI = peerParentRSSI
	e.LastSeen = now

	switch {
	case addr == currentParent:
		e.Link = Outbound
	case peerParent == t.self:
		e.Link = Inbound
	default:
		e.Link = Idle
	}

	if !wasKnown {
		t.widenBounds(addr)
	}
}

// SetLink forcibly sets addr's link role, used by the routing engine when
// a parent change flips the old parent to IDLE and the new one to OUTBOUND.
func (t *Table) SetLink(addr wire.Addr, link Link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[addr].Link = link
}

func (t *Table) widenBounds(addr wire.Addr) {
	if !t.anyObserved {
		t.minAddr, t.maxAddr = addr, addr
		t.anyObserved = true
		return
	}
	if addr < t.minAddr {
		t.minAddr = addr
	}
	if addr > t.maxAddr {
		t.maxAddr = addr
	}
}

// Bounds reports the [minAddr, maxAddr] window Sweep scans, and whether
// any neighbour has ever been observed.
func (t *Table) Bounds() (min, max wire.Addr, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.minAddr, t.maxAddr, t.anyObserved
}

// Sweep walks [minAddr, maxAddr] and transitions every ACTIVE entry whose
// now-lastSeen >= nodeTimeout to INACTIVE, resetting its link to IDLE. It
// reports whether currentParent was one of the entries just timed out, so
// the routing engine knows to trigger a parent change.
func (t *Table) Sweep(now time.Time, currentParent wire.Addr) (parentTimedOut bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.anyObserved {
		return false
	}

	for addr := int(t.minAddr); addr <= int(t.maxAddr); addr++ {
		e := &t.entries[addr]
		if e.State != Active {
			continue
		}
		if now.Sub(e.LastSeen) < t.nodeTimeout {
			continue
		}

		e.State = Inactive
		e.Link = Idle
		t.log.Debug("neighbour timed out", "addr", addr, "last_seen", e.LastSeen)

		if wire.Addr(addr) == currentParent {
			parentTimedOut = true
		}
	}

	return parentTimedOut
}

// Counts reports numActive and numKnown over the observed window.
func (t *Table) Counts() (numActive, numKnown int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.anyObserved {
		return 0, 0
	}
	for addr := int(t.minAddr); addr <= int(t.maxAddr); addr++ {
		e := &t.entries[addr]
		if e.State == Unknown {
			continue
		}
		numKnown++
		if e.State == Active {
			numActive++
		}
	}
	return numActive, numKnown
}

// Addressed is one addr+Entry pair, used by Snapshot for topology reports.
type Addressed struct {
	Addr  wire.Addr
	Entry Entry
}

// Snapshot returns every known (non-UNKNOWN) entry within the observed
// window, for serialising a topology report (spec.md §4.4).
func (t *Table) Snapshot() []Addressed {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.anyObserved {
		return nil
	}

	out := make([]Addressed, 0, int(t.maxAddr)-int(t.minAddr)+1)
	for addr := int(t.minAddr); addr <= int(t.maxAddr); addr++ {
		e := t.entries[addr]
		if e.State == Unknown {
			continue
		}
		out = append(out, Addressed{Addr: wire.Addr(addr), Entry: e})
	}
	return out
}

// Candidates returns every known peer eligible to be considered as a new
// parent: not the broadcast address, not self, and not currently INBOUND
// (a child is never eligible as parent, spec.md §4.4).
func (t *Table) Candidates() []Addressed {
	all := t.Snapshot()
	out := all[:0]
	for _, a := range all {
		if a.Entry.Link == Inbound || a.Addr == wire.Broadcast || a.Addr == t.self {
			continue
		}
		out = append(out, a)
	}
	return out
}
