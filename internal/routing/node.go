package routing

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/neighbor"
	"github.com/loranet/strp/internal/queue"
	"github.com/loranet/strp/internal/wire"
)

// Radio is what Node needs from the MAC layer: the ordinary send/recv
// contract plus the out-of-band beacon channel (spec.md §3/§4.4 — a
// beacon is never an application datagram and never flows through Recv).
type Radio interface {
	mac.Engine
	Beacons() <-chan mac.BeaconFrame
	SendBeacon(parent wire.Addr, parentRSSI int8) error
}

// Config carries every STRP tunable named in spec.md §4.4, with defaults
// matching original_source/AlohaRoute/STRP/STRP.h.
type Config struct {
	Self  wire.Addr
	Sink  wire.Addr
	IsSink bool

	Strategy    Strategy
	FixedParent wire.Addr

	SenseDuration   time.Duration // default 10s
	BeaconInterval  time.Duration // default 30s
	NodeTimeout     time.Duration // default 60s
	CleanupInterval time.Duration // default = NodeTimeout

	SendQueueCap int // default 16
	RecvQueueCap int // default 16
}

func (c *Config) setDefaults() {
	if c.SenseDuration == 0 {
		c.SenseDuration = 10 * time.Second
	}
	if c.BeaconInterval == 0 {
		c.BeaconInterval = 30 * time.Second
	}
	if c.NodeTimeout == 0 {
		c.NodeTimeout = 60 * time.Second
	}
	if c.CleanupInterval == 0 {
		c.CleanupInterval = c.NodeTimeout
	}
	if c.SendQueueCap == 0 {
		c.SendQueueCap = 16
	}
	if c.RecvQueueCap == 0 {
		c.RecvQueueCap = 16
	}
}

// ErrClosed is returned by Recv/RecvTimeout/Topology/Reports once the node
// has been shut down (Send then reports false).
var ErrClosed = errors.New("routing: closed")

type outbound struct {
	dest   wire.Addr
	data   []byte
	result chan bool
}

type delivered struct {
	src  wire.Addr
	dst  wire.Addr
	data []byte
}

// Node is one STRP participant: tree-formation/parent-maintenance state
// plus the send/forward/deliver worker loops layered over a Radio.
//
// Grounded on original_source/AlohaRoute/STRP/STRP.c's per-node globals
// (currentParent, loopyParent, parentChangeCount) and the teacher's
// digipeater.go (store-and-forward decision logic) / beacon.go (periodic
// announcement goroutine).
type Node struct {
	cfg   Config
	radio Radio
	table *neighbor.Table
	log   *logging.Logger

	mu              sync.Mutex
	parent          wire.Addr
	parentChanges   uint64
	loopyParent     wire.Addr
	loopySuppressed bool

	sendQ    *queue.Queue[outbound]
	recvQ    *queue.Queue[delivered]
	topoQ    *queue.Queue[TopologyReport]
	reportQ  *queue.Queue[ControlReport]

	beaconNow chan struct{}

	closed chan struct{}
}

// TopologyReport is one node's neighbour-table snapshot as received at
// the sink (spec.md §4.4's topology reporting, push or pull).
type TopologyReport struct {
	Src     wire.Addr
	Records []TopoRecord
}

// ControlReport is a CTRL_MAC or CTRL_ROU instrumentation payload
// received at the sink (spec.md §4.5), handed up unparsed since only
// internal/monitor knows the metric wire format.
type ControlReport struct {
	Ctrl    byte
	Src     wire.Addr
	Payload []byte
}

// NewNode constructs a Node over radio and starts its worker goroutines:
// sensing, periodic beaconing, liveness cleanup, and the send/recv loops.
func NewNode(cfg Config, radio Radio) *Node {
	cfg.setDefaults()
	n := &Node{
		cfg:       cfg,
		radio:     radio,
		table:     neighbor.NewTable(cfg.Self, cfg.NodeTimeout),
		log:       logging.For(logging.ComponentRouting),
		parent:    cfg.Sink,
		sendQ:     queue.New[outbound](cfg.SendQueueCap),
		recvQ:     queue.New[delivered](cfg.RecvQueueCap),
		topoQ:     queue.New[TopologyReport](8),
		reportQ:   queue.New[ControlReport](8),
		beaconNow: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}

	go n.beaconRecvLoop()
	go n.dataRecvLoop()
	go n.sendLoop()
	go n.beaconTimerLoop()
	go n.cleanupLoop()
	if !cfg.IsSink {
		go n.sensingPhase()
	}
	return n
}

func (n *Node) Close() error {
	select {
	case <-n.closed:
	default:
		close(n.closed)
	}
	n.sendQ.Close()
	n.recvQ.Close()
	n.topoQ.Close()
	n.reportQ.Close()
	return n.radio.Close()
}

// Send frames data as a routing datagram toward dest and blocks until the
// MAC send procedure terminates.
func (n *Node) Send(dest wire.Addr, data []byte) bool {
	result := make(chan bool, 1)
	if err := n.sendQ.Enqueue(outbound{dest: dest, data: data, result: result}); err != nil {
		return false
	}
	select {
	case ok := <-result:
		return ok
	case <-n.closed:
		return false
	}
}

func (n *Node) ISend(dest wire.Addr, data []byte) bool {
	return n.sendQ.TryEnqueue(outbound{dest: dest, data: data})
}

// Recv blocks for the next datagram delivered locally (addressed to self
// or broadcast).
func (n *Node) Recv() (src, dst wire.Addr, data []byte, err error) {
	d, e := n.recvQ.Dequeue()
	if e != nil {
		return 0, 0, nil, ErrClosed
	}
	return d.src, d.dst, d.data, nil
}

func (n *Node) RecvTimeout(timeout time.Duration) (src, dst wire.Addr, data []byte, err error) {
	d, e := n.recvQ.DequeueTimeout(time.Now().Add(timeout))
	if e == queue.ErrTimeout {
		return 0, 0, nil, mac.ErrTimeout
	}
	if e != nil {
		return 0, 0, nil, ErrClosed
	}
	return d.src, d.dst, d.data, nil
}

// CurrentParent reports this node's current next hop toward the sink.
func (n *Node) CurrentParent() wire.Addr {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parent
}

// ParentChanges reports how many times changeParent has fired, for
// ProtoMon's routing-layer metrics.
func (n *Node) ParentChanges() uint64 {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.parentChanges
}

func (n *Node) sendLoop() {
	for {
		ob, err := n.sendQ.Dequeue()
		if err != nil {
			return
		}
		ok := n.sendOne(ob.dest, ob.data)
		if ob.result != nil {
			ob.result <- ok
		}
	}
}

// sendOne implements spec.md §4.4's forwarding rule for locally-originated
// traffic: next hop is always the current parent unless dest is a direct
// broadcast.
func (n *Node) sendOne(dest wire.Addr, data []byte) bool {
	h := Header{Ctrl: wire.CtrlPkt, Src: n.cfg.Self, Dst: dest}
	frame, err := Encode(h, data)
	if err != nil {
		n.log.Error("failed to encode routing frame", "err", err)
		return false
	}

	nextHop := dest
	if dest != wire.Broadcast {
		nextHop = n.CurrentParent()
	}
	return n.radio.Send(nextHop, frame)
}

func (n *Node) dataRecvLoop() {
	for {
		rh, frame, err := n.radio.Recv()
		if err != nil {
			return
		}
		n.handleFrame(rh, frame)
	}
}

func (n *Node) handleFrame(rh mac.RecvHeader, frame []byte) {
	h, payload, err := Decode(frame)
	if err != nil {
		n.log.Debug("dropping malformed routing frame", "src", rh.Src, "err", err)
		return
	}

	now := time.Now()
	// A data frame carries no parent-advertisement of its own; preserve
	// whatever parent/parentRSSI a prior beacon (or touch) already taught
	// us about this neighbour instead of clobbering it with the zero value.
	prior := n.table.Get(h.Src)
	n.table.Touch(h.Src, rh.RSSI, prior.Parent, prior.ParentRSSI, n.CurrentParent(), now)

	switch h.Ctrl {
	case wire.CtrlTab:
		if h.Dst == n.cfg.Self {
			n.topoQ.TryEnqueue(TopologyReport{Src: h.Src, Records: DecodeTopology(payload)})
			return
		}
		n.deliverOrForward(h, payload)

	case wire.CtrlTopoReq:
		n.handleTopoRequest(h.Src)

	case wire.CtrlMacMetrics, wire.CtrlRouMetrics:
		if h.Dst == n.cfg.Self {
			n.reportQ.TryEnqueue(ControlReport{Ctrl: h.Ctrl, Src: h.Src, Payload: payload})
			return
		}
		n.deliverOrForward(h, payload)

	default:
		n.detectLoop(rh.Src)
		n.deliverOrForward(h, payload)
	}
}

// detectLoop implements spec.md §4.4's rule: a frame whose MAC-level
// sender is self (it left and came back) or equals the current parent (a
// parent forwarding back to its own child) marks that neighbour as the
// loopy parent and triggers changeParent, suppressed from repeating for
// the same offending relaying neighbour until a fresh loop is seen from a
// different peer.
func (n *Node) detectLoop(src wire.Addr) {
	loopy := src == n.cfg.Self || src == n.CurrentParent()
	if !loopy {
		return
	}

	n.mu.Lock()
	if n.loopySuppressed && n.loopyParent == src {
		n.mu.Unlock()
		return
	}
	n.loopyParent = src
	n.loopySuppressed = true
	n.mu.Unlock()

	n.log.Debug("loop detected, changing parent", "via", src)
	n.changeParent()
}

func (n *Node) deliverOrForward(h Header, payload []byte) {
	if h.Dst == wire.Broadcast && h.Src == n.cfg.Self {
		// A node that observes its own broadcast must not enqueue it for
		// delivery to itself (spec.md §8).
		return
	}
	if h.Dst == n.cfg.Self || h.Dst == wire.Broadcast {
		n.recvQ.TryEnqueue(delivered{src: h.Src, dst: h.Dst, data: payload})
		return
	}

	// Not for us: re-serialise toward the current parent (spec.md §4.4
	// "the routing layer does not inspect or rewrite the encapsulated
	// data"; Src/Dst are preserved, only the MAC-level next hop changes).
	frame, err := Encode(h, payload)
	if err != nil {
		n.log.Error("failed to re-encode forwarded frame", "err", err)
		return
	}
	n.radio.ISend(n.CurrentParent(), frame)
}

func (n *Node) handleTopoRequest(requester wire.Addr) {
	records := n.snapshotTopology()
	payload := EncodeTopology(records)
	h := Header{Ctrl: wire.CtrlTab, Src: n.cfg.Self, Dst: requester}
	frame, err := Encode(h, payload)
	if err != nil {
		return
	}
	n.radio.ISend(n.CurrentParent(), frame)
}

// Topology blocks for the next topology report received (sink-side only;
// non-sink nodes never have anything delivered here since reports are
// always addressed to the sink).
func (n *Node) Topology() (TopologyReport, error) {
	r, err := n.topoQ.Dequeue()
	if err != nil {
		return TopologyReport{}, ErrClosed
	}
	return r, nil
}

// Reports blocks for the next CTRL_MAC/CTRL_ROU instrumentation payload
// received (sink-side only).
func (n *Node) Reports() (ControlReport, error) {
	r, err := n.reportQ.Dequeue()
	if err != nil {
		return ControlReport{}, ErrClosed
	}
	return r, nil
}

// SendRaw frames payload under ctrl directly to dest's current next hop,
// bypassing the send queue and the application CTRL_PKT framing — used
// by internal/monitor's reporter thread to ship CTRL_MAC/CTRL_ROU
// reports using the *unwrapped* routing send (spec.md §4.5), so that
// metric packets are themselves never re-instrumented.
func (n *Node) SendRaw(ctrl byte, dest wire.Addr, payload []byte) bool {
	h := Header{Ctrl: ctrl, Src: n.cfg.Self, Dst: dest}
	frame, err := Encode(h, payload)
	if err != nil {
		return false
	}
	return n.radio.Send(n.CurrentParent(), frame)
}

// RequestTopology is the sink-side pull trigger (SPEC_FULL addition,
// original_source/AlohaRoute/TopoMap/TopoMap.c's STRP_sendRoutingTable):
// broadcasts a CTRL_TOPO_REQ so every reachable node replies with its
// table on its next opportunity.
func (n *Node) RequestTopology() {
	h := Header{Ctrl: wire.CtrlTopoReq, Src: n.cfg.Self, Dst: wire.Broadcast}
	frame, err := Encode(h, nil)
	if err != nil {
		return
	}
	n.radio.ISend(wire.Broadcast, frame)
}

func (n *Node) snapshotTopology() []TopoRecord {
	entries := n.table.Snapshot()
	out := make([]TopoRecord, 0, len(entries))
	for _, a := range entries {
		out = append(out, TopoRecord{
			Addr:       a.Addr,
			State:      uint8(a.Entry.State),
			Link:       uint8(a.Entry.Link),
			Parent:     a.Entry.Parent,
			RSSI:       a.Entry.RSSI,
			ParentRSSI: a.Entry.ParentRSSI,
			LastSeen:   uint32(a.Entry.LastSeen.Unix()),
		})
	}
	return out
}

func (n *Node) beaconRecvLoop() {
	for {
		select {
		case <-n.closed:
			return
		case bf, ok := <-n.radio.Beacons():
			if !ok {
				return
			}
			n.handleBeacon(bf)
		}
	}
}

func (n *Node) handleBeacon(bf mac.BeaconFrame) {
	n.table.Touch(bf.Src, bf.RSSI, bf.Parent, bf.ParentRSSI, n.CurrentParent(), time.Now())
	n.maybeReselectParent()
}

// maybeReselectParent runs the configured strategy reactively, as
// spec.md §4.4 requires on every new neighbour observation.
func (n *Node) maybeReselectParent() {
	if n.cfg.IsSink {
		return
	}
	current := n.CurrentParent()
	currentEntry := n.table.Get(current)
	candidates := n.table.Candidates()

	next := selectParent(n.cfg.Strategy, n.cfg.Self, n.cfg.Sink, current, currentEntry, candidates, n.cfg.FixedParent)
	if next != current {
		n.setParent(next)
	}
}

// changeParent is the on-demand reselection path (parent timeout, loop
// detection): it re-runs the strategy excluding the current (now
// presumed-bad) parent from consideration.
func (n *Node) changeParent() {
	if n.cfg.IsSink {
		return
	}
	current := n.CurrentParent()
	candidates := n.table.Candidates()
	filtered := candidates[:0]
	for _, c := range candidates {
		if c.Addr != current {
			filtered = append(filtered, c)
		}
	}

	// The excluded parent's RSSI is taken as the floor so any remaining
	// candidate can win; if the strategy still lands on the current parent,
	// the sink is the fallback.
	next := selectParent(n.cfg.Strategy, n.cfg.Self, n.cfg.Sink, current, neighbor.Entry{RSSI: math.MinInt8}, filtered, n.cfg.FixedParent)
	if next == current && n.cfg.Strategy != Fixed {
		next = n.cfg.Sink
	}
	n.setParent(next)
}

func (n *Node) setParent(next wire.Addr) {
	n.mu.Lock()
	old := n.parent
	if next == old {
		n.mu.Unlock()
		return
	}
	n.parent = next
	n.parentChanges++
	n.mu.Unlock()

	n.table.SetLink(old, neighbor.Idle)
	n.table.SetLink(next, neighbor.Outbound)
	n.log.Info("parent changed", "old", old, "new", next)

	select {
	case n.beaconNow <- struct{}{}:
	default:
	}
}

func (n *Node) sendBeacon() {
	parent := n.CurrentParent()
	entry := n.table.Get(parent)
	if err := n.radio.SendBeacon(parent, entry.RSSI); err != nil {
		n.log.Debug("failed to send beacon", "err", err)
	}
}

// beaconTimerLoop broadcasts on the configured period and immediately
// after any parent change (spec.md §4.4).
func (n *Node) beaconTimerLoop() {
	ticker := time.NewTicker(n.cfg.BeaconInterval)
	defer ticker.Stop()
	for {
		select {
		case <-n.closed:
			return
		case <-ticker.C:
			n.sendBeacon()
		case <-n.beaconNow:
			n.sendBeacon()
		}
	}
}

// sensingPhase implements spec.md §4.4's boot-time tree-formation phase:
// broadcast beacons at randomised sub-second intervals for SenseDuration;
// repeat if the window elapsed without observing any neighbour.
func (n *Node) sensingPhase() {
	for {
		deadline := time.Now().Add(n.cfg.SenseDuration)
		for time.Now().Before(deadline) {
			n.sendBeacon()
			select {
			case <-n.closed:
				return
			case <-time.After(randDuration(100*time.Millisecond, 900*time.Millisecond)):
			}
		}

		if _, _, ok := n.table.Bounds(); ok {
			return
		}
		n.log.Debug("sensing phase observed no neighbours, repeating")
	}
}

func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}

func cleanupInterval(cfg Config) time.Duration {
	if cfg.CleanupInterval <= 0 {
		return cfg.NodeTimeout
	}
	return cfg.CleanupInterval
}

func (n *Node) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval(n.cfg))
	defer ticker.Stop()
	for {
		select {
		case <-n.closed:
			return
		case <-ticker.C:
			if n.table.Sweep(time.Now(), n.CurrentParent()) {
				n.log.Debug("current parent timed out")
				n.changeParent()
			}
		}
	}
}
