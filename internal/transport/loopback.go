package transport

import (
	"bytes"
	"time"

	"github.com/loranet/strp/internal/queue"
	"github.com/loranet/strp/internal/wire"
)

// Medium is a shared, half-duplex in-memory radio channel connecting any
// number of LoopbackTransports. It stands in for the physical RF channel
// in tests and in the synthetic-workload harness, so whole multi-node
// scenarios (spec.md §8 S1-S6) can run as a single Go process.
type Medium struct {
	subscribers map[wire.Addr]*LoopbackTransport
	rssi        func(from, to wire.Addr) int8
}

// NewMedium creates a medium. rssiFn reports the simulated RSSI a
// receiver at `to` would observe for a transmission from `from`; pass nil
// for a constant, typical value.
func NewMedium(rssiFn func(from, to wire.Addr) int8) *Medium {
	if rssiFn == nil {
		rssiFn = func(wire.Addr, wire.Addr) int8 { return -60 }
	}
	return &Medium{subscribers: make(map[wire.Addr]*LoopbackTransport), rssi: rssiFn}
}

// Join attaches a new transport for addr to the medium.
func (m *Medium) Join(addr wire.Addr) *LoopbackTransport {
	t := &LoopbackTransport{
		addr:   addr,
		medium: m,
		inbox:  queue.New[[]byte](64),
	}
	m.subscribers[addr] = t
	return t
}

func (m *Medium) deliver(from wire.Addr, frame []byte) {
	for addr, sub := range m.subscribers {
		if addr == from {
			continue
		}
		if sub.mode == ModeDeepSleep {
			continue
		}
		tagged := append(append([]byte(nil), frame...), byte(m.rssi(from, addr)))
		sub.inbox.TryEnqueue(tagged)
	}
}

// LoopbackTransport is a Transport bound to one address on a shared Medium.
type LoopbackTransport struct {
	addr   wire.Addr
	medium *Medium
	mode   Mode
	inbox  *queue.Queue[[]byte]

	current *bytes.Reader
}

func (t *LoopbackTransport) Send(data []byte) (int, error) {
	t.medium.deliver(t.addr, data)
	return len(data), nil
}

func (t *LoopbackTransport) RecvByte() (byte, error) {
	if b, ok := t.nextBuffered(); ok {
		return b, nil
	}
	frame, err := t.inbox.Dequeue()
	if err != nil {
		return 0, err
	}
	t.current = bytes.NewReader(frame)
	b, _ := t.current.ReadByte()
	return b, nil
}

func (t *LoopbackTransport) TryRecvByte() (byte, bool, error) {
	if b, ok := t.nextBuffered(); ok {
		return b, true, nil
	}
	frame, ok := t.inbox.TryDequeue()
	if !ok {
		return 0, false, nil
	}
	t.current = bytes.NewReader(frame)
	b, _ := t.current.ReadByte()
	return b, true, nil
}

func (t *LoopbackTransport) RecvByteTimeout(d time.Duration) (byte, error) {
	if b, ok := t.nextBuffered(); ok {
		return b, nil
	}
	frame, err := t.inbox.DequeueTimeout(time.Now().Add(d))
	if err == queue.ErrTimeout {
		return 0, ErrTimeout
	}
	if err != nil {
		return 0, err
	}
	t.current = bytes.NewReader(frame)
	b, _ := t.current.ReadByte()
	return b, nil
}

func (t *LoopbackTransport) nextBuffered() (byte, bool) {
	if t.current == nil || t.current.Len() == 0 {
		return 0, false
	}
	b, _ := t.current.ReadByte()
	return b, true
}

func (t *LoopbackTransport) SetMode(mode Mode) error {
	t.mode = mode
	return nil
}

func (t *LoopbackTransport) Close() error {
	t.inbox.Close()
	delete(t.medium.subscribers, t.addr)
	return nil
}
