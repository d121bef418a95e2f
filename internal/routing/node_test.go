package routing

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/neighbor"
	"github.com/loranet/strp/internal/queue"
	"github.com/loranet/strp/internal/wire"
)

// fakeRadio is a minimal Radio stand-in that only records ISend/Send
// calls, for exercising Node's forwarding and loop-detection logic
// without a real transport.
type fakeRadio struct {
	mu    sync.Mutex
	isent []struct {
		dest wire.Addr
		data []byte
	}
}

func (f *fakeRadio) Send(dest wire.Addr, data []byte) bool { return f.ISend(dest, data) }

func (f *fakeRadio) ISend(dest wire.Addr, data []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.isent = append(f.isent, struct {
		dest wire.Addr
		data []byte
	}{dest, data})
	return true
}

func (f *fakeRadio) Recv() (mac.RecvHeader, []byte, error) { return mac.RecvHeader{}, nil, mac.ErrClosed }
func (f *fakeRadio) TryRecv() (mac.RecvHeader, []byte, bool, error) {
	return mac.RecvHeader{}, nil, false, nil
}
func (f *fakeRadio) RecvTimeout(time.Duration) (mac.RecvHeader, []byte, error) {
	return mac.RecvHeader{}, nil, mac.ErrTimeout
}
func (f *fakeRadio) Close() error                                      { return nil }
func (f *fakeRadio) Beacons() <-chan mac.BeaconFrame                   { return nil }
func (f *fakeRadio) SendBeacon(parent wire.Addr, parentRSSI int8) error { return nil }

func (f *fakeRadio) lastSend() (wire.Addr, []byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.isent) == 0 {
		return 0, nil, false
	}
	last := f.isent[len(f.isent)-1]
	return last.dest, last.data, true
}

// newTestNode builds a Node without starting its worker goroutines, so
// the unexported frame-handling methods can be exercised directly and
// deterministically.
func newTestNode(cfg Config, radio Radio) *Node {
	cfg.setDefaults()
	return &Node{
		cfg:     cfg,
		radio:   radio,
		table:   neighbor.NewTable(cfg.Self, cfg.NodeTimeout),
		log:     logging.For(logging.ComponentRouting),
		parent:  cfg.Sink,
		sendQ:   queue.New[outbound](cfg.SendQueueCap),
		recvQ:   queue.New[delivered](cfg.RecvQueueCap),
		topoQ:   queue.New[TopologyReport](8),
		reportQ: queue.New[ControlReport](8),
		beaconNow: make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

func TestDeliverLocalDatagramReachesRecv(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE}, radio)

	n.deliverOrForward(Header{Ctrl: wire.CtrlPkt, Src: 5, Dst: 1}, []byte("hi"))

	src, dst, data, err := n.RecvTimeout(time.Second)
	require.NoError(t, err)
	require.Equal(t, wire.Addr(5), src)
	require.Equal(t, wire.Addr(1), dst)
	require.Equal(t, []byte("hi"), data)
}

func TestDeliverForeignDatagramForwardsToParent(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE}, radio)
	n.setParent(9)

	n.deliverOrForward(Header{Ctrl: wire.CtrlPkt, Src: 5, Dst: 2}, []byte("hi"))

	dest, frame, ok := radio.lastSend()
	require.True(t, ok)
	require.Equal(t, wire.Addr(9), dest)

	h, payload, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, wire.Addr(5), h.Src)
	require.Equal(t, wire.Addr(2), h.Dst)
	require.Equal(t, []byte("hi"), payload)
}

func TestDetectLoopFromSelfTriggersParentChange(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE, Strategy: Fixed, FixedParent: 9}, radio)
	n.setParent(5)

	n.detectLoop(1) // src == self

	require.Equal(t, wire.Addr(9), n.CurrentParent())
}

func TestDetectLoopFromCurrentParentTriggersParentChange(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE, Strategy: Fixed, FixedParent: 9}, radio)
	n.setParent(5)

	n.detectLoop(5) // src == current parent

	require.Equal(t, wire.Addr(9), n.CurrentParent())
}

func TestDetectLoopIgnoresUnrelatedSource(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE, Strategy: Fixed, FixedParent: 9}, radio)
	n.setParent(5)

	n.detectLoop(77)

	require.Equal(t, wire.Addr(5), n.CurrentParent(), "a source that is neither self nor the current parent is not a loop")
}

func TestDetectLoopSuppressesRepeatFromSameOffender(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE, Strategy: Fixed, FixedParent: 9}, radio)
	n.setParent(5)

	n.detectLoop(5)
	require.Equal(t, uint64(1), n.ParentChanges())

	n.detectLoop(5) // same offending peer again, must be suppressed
	require.Equal(t, uint64(1), n.ParentChanges())
}

func TestSetParentIsIdempotentForSameAddr(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE}, radio)

	n.setParent(9)
	require.Equal(t, uint64(1), n.ParentChanges())
	n.setParent(9)
	require.Equal(t, uint64(1), n.ParentChanges(), "re-setting the same parent must not count as a change")
}

func TestHandleTopoRequestRepliesWithSnapshot(t *testing.T) {
	radio := &fakeRadio{}
	n := newTestNode(Config{Self: 1, Sink: 0xFE}, radio)
	n.setParent(9)
	n.table.Touch(2, -40, 0xFF, 0, n.CurrentParent(), time.Now())

	n.handleTopoRequest(0xFE)

	dest, frame, ok := radio.lastSend()
	require.True(t, ok)
	require.Equal(t, wire.Addr(9), dest)

	h, payload, err := Decode(frame)
	require.NoError(t, err)
	require.Equal(t, wire.CtrlTab, h.Ctrl)
	records := DecodeTopology(payload)
	require.Len(t, records, 1)
	require.Equal(t, wire.Addr(2), records[0].Addr)
}
