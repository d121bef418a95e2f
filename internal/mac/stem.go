package mac

import (
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/queue"
	"github.com/loranet/strp/internal/transport"
	"github.com/loranet/strp/internal/wire"
)

// Stem is the wake-beacon duty-cycling variant (spec.md §4.3). It runs a
// single loop per node: normally asleep, periodically waking to listen
// for an incoming wake-beacon, and pre-empting its own sleep the instant
// the application enqueues something to send. Once a sender and receiver
// have rendezvoused on the wake-beacon exchange, the data exchange itself
// reuses Macaw's RTS/CTS procedure unchanged — STEM only adds the
// rendezvous, not a second data-transfer discipline.
//
// Grounded on original_source/.../SMRP_STEM/STEM/STEM.c's send()/recv()
// duty-cycle pair, layered over the Macaw type above the way the teacher's
// beacon.go layers a periodic announcement goroutine over ax25_pad.go's
// framing.
type Stem struct {
	*Macaw
	wakeAck pendingWait
}

func NewStem(cfg Config, t transport.Transport) *Stem {
	s := &Stem{Macaw: newMacawBase(cfg, t, logging.ComponentMAC)}
	go s.dutyCycleLoop()
	return s
}

// dutyCycleLoop is STEM's single send+recv loop (spec.md §4.3: "the
// wake/sleep cycle is driven by a timed-dequeue of the send queue so that
// a newly enqueued message pre-empts the sleep without busy waiting").
// A timed dequeue of the send queue doubles as the sleep timer: an item
// arriving mid-sleep wakes the node immediately to send, while a timeout
// means it's time to listen for a wake-beacon instead.
func (s *Stem) dutyCycleLoop() {
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		s.transport.SetMode(transport.ModeDeepSleep)

		ob, err := s.sendQ.DequeueTimeout(time.Now().Add(s.cfg.TSleep))
		switch err {
		case nil:
			ok := s.sendOneStem(ob.dest, ob.data)
			if ob.result != nil {
				ob.result <- ok
			}
		case queue.ErrTimeout:
			s.listenWindow()
		default:
			return // queue closed
		}
	}
}

// sendOneStem runs the wake-beacon rendezvous (unicast only — a broadcast
// has no single receiver to wake) and, once a wake-ack arrives or the
// destination is the broadcast address, hands off to Macaw's RTS/CTS data
// procedure on the data channel.
func (s *Stem) sendOneStem(dest wire.Addr, data []byte) bool {
	if dest != wire.Broadcast {
		if !s.wakeTarget(dest) {
			return false
		}
	}
	return s.Macaw.sendOne(dest, data)
}

// wakeTarget emits a train of wake-beacons every TBeaconPeriod for up to
// TBeacon, returning true as soon as a matching wake-ack arrives.
func (s *Stem) wakeTarget(dest wire.Addr) bool {
	if err := s.transport.SetMode(transport.ModeTransmit); err != nil {
		s.log.Error("failed to switch to transmit mode", "err", err)
		return false
	}
	defer s.transport.SetMode(transport.ModeConfiguration)

	deadline := time.Now().Add(s.cfg.TBeacon)
	for time.Now().Before(deadline) {
		frame := packWakeBeacon(s.cfg.Self, dest)
		if _, err := s.transport.Send(frame); err != nil {
			s.log.Debug("failed to send wake beacon", "dest", dest, "err", err)
			return false
		}
		if s.wakeAck.await(dest, 0, false, s.cfg.TBeaconPeriod, s.closed) {
			return true
		}
	}
	return false
}

// listenWindow wakes for TWake to check for an inbound wake-beacon or any
// frame otherwise in flight. A wake-beacon addressed to self triggers a
// wake-ack reply and a switch into the data-channel receive procedure so
// the sender's subsequent RTS/data exchange is actually heard.
func (s *Stem) listenWindow() {
	if err := s.transport.SetMode(transport.ModeTransmit); err != nil {
		return
	}
	defer s.transport.SetMode(transport.ModeConfiguration)

	deadline := time.Now().Add(s.cfg.TWake)
	for time.Now().Before(deadline) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		h, payload, rssi, ok := s.readFrameTimeout(remaining)
		if !ok {
			return
		}

		if h.Ctrl == wire.CtrlWakeBea && h.Dst == s.cfg.Self {
			ack := packWakeAck(s.cfg.Self, h.Src)
			s.transport.Send(ack)
			s.receiveDataExchange(h.Src)
			return
		}
		if h.Ctrl == wire.CtrlWakeAck {
			s.wakeAck.deliver(h.Src, 0, false)
			continue
		}

		s.dispatchMacaw(h, payload, rssi)
	}
}

// receiveDataExchange stays listening past the wake window long enough to
// receive the data frame (and any RTS/CTS preceding it) the waking sender
// is about to transmit, per spec.md §4.3's "switches to the data channel
// to receive".
func (s *Stem) receiveDataExchange(peer wire.Addr) {
	deadline := time.Now().Add(s.cfg.ReserveWindow * 2)
	for time.Now().Before(deadline) {
		h, payload, rssi, ok := s.readFrameTimeout(time.Until(deadline))
		if !ok {
			return
		}
		s.dispatchMacaw(h, payload, rssi)
		if h.Ctrl == wire.CtrlPkt && h.Src == peer {
			return
		}
	}
}

// readFrameTimeout is readFrame bounded by a deadline, built on the
// transport's timed byte-read primitive rather than blocking readFrame
// indefinitely — STEM is the only variant whose receive side must never
// block past its duty-cycle window.
func (s *Stem) readFrameTimeout(d time.Duration) (Header, []byte, int8, bool) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Header{}, nil, 0, false
		}
		ctrl, err := s.transport.RecvByteTimeout(remaining)
		if err != nil {
			return Header{}, nil, 0, false
		}
		if ctrl == wire.CtrlRet {
			s.absorbNoiseResponse()
			continue
		}
		h, payload, rssi, ok, err := s.readRestOfFrame(ctrl)
		if err != nil {
			return Header{}, nil, 0, false
		}
		if !ok {
			continue
		}
		return h, payload, rssi, true
	}
}
