package mac

import (
	"math/rand"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/transport"
	"github.com/loranet/strp/internal/wire"
)

// Aloha is the baseline MAC variant (spec.md §4.3): transmit immediately
// (optionally gated on an ambient-noise check), wait a randomised window
// for an ACK, retry up to MaxTrials times on an unacknowledged unicast.
// Broadcasts are sent once, fire-and-forget, since nothing can ACK them.
//
// Grounded on original_source/STRPAloha/ALOHA/ALOHA.c's send()/recv() pair
// and on the teacher's afsk_demod.go-style single-goroutine receive loop
// reading a byte stream off a transport.Transport.
type Aloha struct {
	*base
}

// NewAloha constructs an ALOHA engine over t and starts its send/recv
// worker goroutines. Close stops both.
func NewAloha(cfg Config, t transport.Transport) *Aloha {
	a := &Aloha{base: newBase(cfg, t, logging.ComponentMAC)}
	go a.sendLoop()
	go a.recvLoop()
	return a
}

func (a *Aloha) sendLoop() {
	for {
		ob, err := a.sendQ.Dequeue()
		if err != nil {
			return
		}
		ok := a.sendOne(ob.dest, ob.data)
		if ob.result != nil {
			ob.result <- ok
		}
	}
}

// sendOne drives one outbound message through spec.md §4.3's ALOHA send
// procedure: same sequence number across every retry, advanced once at
// the end regardless of outcome.
func (a *Aloha) sendOne(dest wire.Addr, data []byte) bool {
	seq := a.seq.currentSend(dest)
	defer a.seq.advanceSend(dest)

	broadcast := dest == wire.Broadcast
	trials := a.cfg.MaxTrials
	if broadcast {
		trials = 1
	}

	for trial := uint(0); trial < trials; trial++ {
		if a.cfg.AmbientNoiseEnabled {
			if level, ok := a.sampleNoise(500 * time.Millisecond); ok && level > a.cfg.NoiseThreshold {
				a.log.Debug("deferring send: channel busy", "noise", level)
				time.Sleep(randDuration(a.cfg.AckWaitMin, a.cfg.AckWaitMax))
				continue
			}
		}

		frame, err := Pack(Header{Ctrl: wire.CtrlPkt, Src: a.cfg.Self, Dst: dest, Seq: seq, Len: uint16(len(data))}, data)
		if err != nil {
			a.log.Error("failed to pack frame", "err", err)
			return false
		}

		if err := a.transport.SetMode(transport.ModeTransmit); err != nil {
			a.log.Error("failed to switch to transmit mode", "err", err)
			return false
		}
		_, err = a.transport.Send(frame)
		a.transport.SetMode(transport.ModeConfiguration)
		if err != nil {
			a.log.Error("failed to transmit frame", "dest", dest, "err", err)
			continue
		}

		if broadcast {
			return true
		}

		window := randDuration(a.cfg.AckWaitMin, a.cfg.AckWaitMax)
		if a.awaitAck(dest, seq, window) {
			return true
		}
		a.log.Debug("ack timed out, retrying", "dest", dest, "trial", trial)
	}

	return false
}

func (a *Aloha) recvLoop() {
	for {
		h, payload, rssi, err := a.readFrame()
		if err != nil {
			return
		}
		a.dispatchCommon(h, payload, rssi)
	}
}

func randDuration(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(rand.Int63n(int64(hi-lo)))
}
