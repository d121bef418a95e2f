package mac

import (
	"math/rand"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/transport"
	"github.com/loranet/strp/internal/wire"
)

// Macaw is the RTS/CTS reservation variant (spec.md §4.3): a send FSM of
// {IDLE, DELAY, LISTEN, AWAIT_NOISE, AWAIT_CTS, AWAIT_ACK, BACKOFF} built
// around a shared NAV that both the send procedure and the receive loop
// consult, so overheard reservations defer a node's own transmissions
// without it ever decoding the frame contents.
//
// Grounded on original_source/.../STRP_MACAW/MACAW/MACAW.c's send()/recv()
// and on the teacher's afsk_demod.go receive-loop shape, reusing base's
// framing/dedup/ack machinery for the parts identical to ALOHA.
type Macaw struct {
	*base
	nav nav
	cts pendingWait
}

func NewMacaw(cfg Config, t transport.Transport) *Macaw {
	m := newMacawBase(cfg, t, logging.ComponentMAC)
	go m.sendLoop()
	go m.recvLoop()
	return m
}

// newMacawBase constructs the FSM/NAV/CTS scaffolding without starting the
// send/recv goroutines, so Stem can reuse the procedure on its own data
// channel while driving a different top-level loop.
func newMacawBase(cfg Config, t transport.Transport, component string) *Macaw {
	return &Macaw{base: newBase(cfg, t, component)}
}

func (m *Macaw) sendLoop() {
	for {
		ob, err := m.sendQ.Dequeue()
		if err != nil {
			return
		}
		ok := m.sendOne(ob.dest, ob.data)
		if ob.result != nil {
			ob.result <- ok
		}
	}
}

// sendOne drives the FSM described in spec.md §4.3. Each loop iteration
// is one pass through DELAY→LISTEN→AWAIT_NOISE→AWAIT_CTS→AWAIT_ACK,
// falling through to BACKOFF on any failure and trying again up to
// MaxTrials times.
func (m *Macaw) sendOne(dest wire.Addr, data []byte) bool {
	seq := m.seq.currentSend(dest)
	defer m.seq.advanceSend(dest)

	broadcast := dest == wire.Broadcast
	var backoffCount uint

	for trial := uint(0); trial < m.cfg.MaxTrials; trial++ {
		// DELAY
		m.waitOutNAV()
		time.Sleep(randDuration(0, m.cfg.ReserveWindow))

		// LISTEN for one timeslot.
		time.Sleep(m.cfg.Timeslot)
		if m.nav.Busy(time.Now()) {
			backoffCount = m.backoff(backoffCount)
			continue
		}

		// AWAIT_NOISE
		if m.cfg.AmbientNoiseEnabled {
			if level, ok := m.sampleNoise(500 * time.Millisecond); ok && level > m.cfg.NoiseThreshold {
				backoffCount = m.backoff(backoffCount)
				continue
			}
		}

		if broadcast {
			frame, err := Pack(Header{Ctrl: wire.CtrlPkt, Src: m.cfg.Self, Dst: wire.Broadcast, Len: uint16(len(data))}, data)
			if err != nil {
				m.log.Error("failed to pack broadcast frame", "err", err)
				return false
			}
			m.transmit(frame)
			return true
		}

		// AWAIT_CTS
		rts := packRTS(m.cfg.Self, dest, uint16(len(data)))
		m.transmit(rts)
		if !m.cts.await(dest, 0, false, m.cfg.ReserveWindow, m.closed) {
			m.log.Debug("cts timed out, backing off", "dest", dest, "trial", trial)
			backoffCount = m.backoff(backoffCount)
			continue
		}

		// AWAIT_ACK
		frame, err := Pack(Header{Ctrl: wire.CtrlPkt, Src: m.cfg.Self, Dst: dest, Seq: seq, Len: uint16(len(data))}, data)
		if err != nil {
			m.log.Error("failed to pack data frame", "err", err)
			return false
		}
		m.transmit(frame)
		if m.awaitAck(dest, seq, m.cfg.ReserveWindow) {
			return true
		}
		backoffCount = m.backoff(backoffCount)
	}

	return false
}

func (m *Macaw) waitOutNAV() {
	now := time.Now()
	if wait := m.nav.Until(now); wait > 0 {
		time.Sleep(wait)
	}
}

// backoff sleeps k*timeslot for random k in [0, 2^c - 1] and returns the
// bumped retry count (spec.md §4.3's BACKOFF state).
func (m *Macaw) backoff(c uint) uint {
	c++
	span := uint64(1) << minUint(c, 16)
	k := rand.Int63n(int64(span))
	time.Sleep(time.Duration(k) * m.cfg.Timeslot)
	return c
}

func minUint(a, b uint) uint {
	if a < b {
		return a
	}
	return b
}

func (m *Macaw) transmit(frame []byte) {
	if err := m.transport.SetMode(transport.ModeTransmit); err != nil {
		m.log.Error("failed to switch to transmit mode", "err", err)
		return
	}
	_, err := m.transport.Send(frame)
	m.transport.SetMode(transport.ModeConfiguration)
	if err != nil {
		m.log.Debug("transmit failed", "err", err)
	}
}

func (m *Macaw) recvLoop() {
	for {
		h, payload, rssi, err := m.readFrame()
		if err != nil {
			return
		}
		m.dispatchMacaw(h, payload, rssi)
	}
}

// dispatchMacaw handles RTS/CTS on top of base's common dispatch, per
// spec.md §4.3's receive-side rules: reply to an RTS addressed to self
// with a CTS, update the NAV from every RTS/CTS that is not addressed to
// self, and from every data frame (whatever its destination) by the time
// of its ACK, so a node defers without decoding payloads.
func (m *Macaw) dispatchMacaw(h Header, payload []byte, rssi int8) {
	if h.Ctrl == wire.CtrlPkt {
		m.nav.Defer(time.Now().Add(txDuration(m.cfg.TOffsetMs, m.cfg.TPerByteMs, 0)))
	}

	if m.dispatchCommon(h, payload, rssi) {
		return
	}

	switch h.Ctrl {
	case wire.CtrlRts:
		if h.Dst == m.cfg.Self {
			cts := packCTS(m.cfg.Self, h.Src, h.Len)
			m.transmit(cts)
		} else {
			m.nav.Defer(time.Now().Add(txDuration(m.cfg.TOffsetMs, m.cfg.TPerByteMs, int(h.Len)) * 3))
		}

	case wire.CtrlCts:
		if h.Dst == m.cfg.Self {
			m.cts.deliver(h.Src, 0, false)
		} else {
			m.nav.Defer(time.Now().Add(txDuration(m.cfg.TOffsetMs, m.cfg.TPerByteMs, int(h.Len)) * 2))
		}
	}
}
