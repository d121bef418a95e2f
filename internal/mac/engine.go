package mac

import (
	"errors"
	"sync"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/queue"
	"github.com/loranet/strp/internal/transport"
	"github.com/loranet/strp/internal/wire"
)

// ErrTimeout is returned by the timed receive variants (spec.md §4.3:
// "timed recv(ms)") when nothing arrived before the deadline.
var ErrTimeout = queue.ErrTimeout

// ErrClosed is returned once the engine has been shut down.
var ErrClosed = errors.New("mac: closed")

// RecvHeader is populated on every successful receive (spec.md §4.3).
type RecvHeader struct {
	Src      wire.Addr
	Dst      wire.Addr
	Seq      uint16
	Len      uint16
	Checksum byte
	RSSI     int8
}

// Engine is the MAC layer's send/recv contract, common to all three
// variants (spec.md §4.3).
type Engine interface {
	// Send takes ownership of data, blocks until the send attempt
	// terminates (success or exhausted retries), and reports success.
	Send(dest wire.Addr, data []byte) bool

	// ISend enqueues without blocking; false means the queue was full and
	// the caller keeps ownership of data.
	ISend(dest wire.Addr, data []byte) bool

	// Recv blocks for the next data frame addressed to self or broadcast.
	Recv() (RecvHeader, []byte, error)

	// TryRecv never blocks.
	TryRecv() (RecvHeader, []byte, bool, error)

	// RecvTimeout blocks at most d.
	RecvTimeout(d time.Duration) (RecvHeader, []byte, error)

	Close() error
}

// Config carries every MAC tunable named across spec.md §3/§4.3, with
// defaults matching original_source/common/MAC/STEM/STEM.h and
// .../STRP_Aloha/ALOHA/ALOHA.h's documented defaults.
type Config struct {
	Self wire.Addr

	MaxTrials uint // default 5

	AmbientNoiseEnabled bool
	NoiseThreshold      int

	SendQueueCap int // default 16
	RecvQueueCap int // default 16

	// ALOHA ack wait window is a random duration in [AckWaitMin, AckWaitMax].
	AckWaitMin time.Duration // default 5s
	AckWaitMax time.Duration // default 10s

	// MACAW
	Timeslot      time.Duration // default 200ms
	ReserveWindow time.Duration // timeout waiting for CTS/ACK, default 2s

	// STEM duty cycle
	TBeacon       time.Duration // how long to keep sending wake-beacons, default 5s
	TBeaconPeriod time.Duration // gap between wake-beacons in the train, default 200ms
	TSleep        time.Duration // deep-sleep duration, default 2s
	TWake         time.Duration // listen window duration, default 200ms

	// NAV sizing (spec.md §4.3 duration(...) calculations)
	TOffsetMs int // default 10
	TPerByteMs int // default 2
}

func (c *Config) setDefaults() {
	if c.MaxTrials == 0 {
		c.MaxTrials = 5
	}
	if c.SendQueueCap == 0 {
		c.SendQueueCap = 16
	}
	if c.RecvQueueCap == 0 {
		c.RecvQueueCap = 16
	}
	if c.AckWaitMin == 0 {
		c.AckWaitMin = 5 * time.Second
	}
	if c.AckWaitMax == 0 {
		c.AckWaitMax = 10 * time.Second
	}
	if c.Timeslot == 0 {
		c.Timeslot = 200 * time.Millisecond
	}
	if c.ReserveWindow == 0 {
		c.ReserveWindow = 2 * time.Second
	}
	if c.TBeacon == 0 {
		c.TBeacon = 5 * time.Second
	}
	if c.TBeaconPeriod == 0 {
		c.TBeaconPeriod = 200 * time.Millisecond
	}
	if c.TSleep == 0 {
		c.TSleep = 2 * time.Second
	}
	if c.TWake == 0 {
		c.TWake = 200 * time.Millisecond
	}
	if c.TOffsetMs == 0 {
		c.TOffsetMs = 10
	}
	if c.TPerByteMs == 0 {
		c.TPerByteMs = 2
	}
}

// outbound is one queued application send request: the framed payload to
// transmit and a channel the caller blocks on for the outcome. ISend
// passes a nil channel since nobody is waiting.
type outbound struct {
	dest   wire.Addr
	data   []byte
	result chan bool
}

// BeaconFrame is a received routing beacon (spec.md §3/§4.4), surfaced to
// the routing layer on a dedicated channel since it is not application
// data and never flows through Recv.
type BeaconFrame struct {
	Src        wire.Addr
	Parent     wire.Addr
	ParentRSSI int8
	RSSI       int8
}

// base holds everything common to all three variants: the transport, the
// sequence tables, the send/receive queues, and the shared frame-level
// I/O helpers (checksum verification, noise-query demux).
type base struct {
	cfg       Config
	transport transport.Transport
	log       *logging.Logger

	seq seqTables

	sendQ *queue.Queue[outbound]
	recvQ *queue.Queue[recvItem]

	noiseCh  chan int
	beaconCh chan BeaconFrame

	ack pendingWait

	closed chan struct{}
}

// pendingWait is a single-slot rendezvous between a send-side procedure
// blocking for one specific reply frame and the receive loop that
// demultiplexes it off the wire. MACAW/STEM each hold their own instance
// for CTS and wake-ack respectively, alongside base's for ACK, since all
// three variants only ever have one such wait outstanding at a time
// (spec.md §4.3 keeps at most one frame in flight per send procedure).
type pendingWait struct {
	mu      sync.Mutex
	waiting bool
	peer    wire.Addr
	seq     uint16
	notify  chan struct{}
}

// await arms the wait for a reply from peer (seq is only meaningful for
// ACK; callers matching on address alone pass 0 and matching ignores it
// via matchSeq=false) and blocks until woken, timeout, or closed fires.
func (w *pendingWait) await(peer wire.Addr, seq uint16, matchSeq bool, timeout time.Duration, closed <-chan struct{}) bool {
	notify := make(chan struct{})

	w.mu.Lock()
	w.waiting = true
	w.peer = peer
	if matchSeq {
		w.seq = seq
	}
	w.notify = notify
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.waiting = false
		w.notify = nil
		w.mu.Unlock()
	}()

	select {
	case <-notify:
		return true
	case <-time.After(timeout):
		return false
	case <-closed:
		return false
	}
}

// deliver wakes a pending await if peer (and, when matchSeq, seq) match.
func (w *pendingWait) deliver(peer wire.Addr, seq uint16, matchSeq bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.waiting || w.peer != peer || (matchSeq && w.seq != seq) {
		return
	}
	w.waiting = false
	close(w.notify)
}

type recvItem struct {
	h    RecvHeader
	data []byte
}

func newBase(cfg Config, t transport.Transport, component string) *base {
	cfg.setDefaults()
	return &base{
		cfg:       cfg,
		transport: t,
		log:       logging.For(component),
		sendQ:     queue.New[outbound](cfg.SendQueueCap),
		recvQ:     queue.New[recvItem](cfg.RecvQueueCap),
		noiseCh:   make(chan int, 1),
		beaconCh:  make(chan BeaconFrame, 8),
		closed:    make(chan struct{}),
	}
}

func (b *base) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	b.sendQ.Close()
	b.recvQ.Close()
	return b.transport.Close()
}

func (b *base) ISend(dest wire.Addr, data []byte) bool {
	frame := append([]byte(nil), data...)
	return b.sendQ.TryEnqueue(outbound{dest: dest, data: frame})
}

func (b *base) Send(dest wire.Addr, data []byte) bool {
	result := make(chan bool, 1)
	frame := append([]byte(nil), data...)
	if err := b.sendQ.Enqueue(outbound{dest: dest, data: frame, result: result}); err != nil {
		return false
	}
	select {
	case ok := <-result:
		return ok
	case <-b.closed:
		return false
	}
}

func (b *base) Recv() (RecvHeader, []byte, error) {
	item, err := b.recvQ.Dequeue()
	if err != nil {
		return RecvHeader{}, nil, ErrClosed
	}
	return item.h, item.data, nil
}

func (b *base) TryRecv() (RecvHeader, []byte, bool, error) {
	item, ok := b.recvQ.TryDequeue()
	if !ok {
		return RecvHeader{}, nil, false, nil
	}
	return item.h, item.data, true, nil
}

func (b *base) RecvTimeout(d time.Duration) (RecvHeader, []byte, error) {
	item, err := b.recvQ.DequeueTimeout(time.Now().Add(d))
	if err == queue.ErrTimeout {
		return RecvHeader{}, nil, ErrTimeout
	}
	if err != nil {
		return RecvHeader{}, nil, ErrClosed
	}
	return item.h, item.data, nil
}

func (b *base) deliver(h RecvHeader, data []byte) {
	b.recvQ.TryEnqueue(recvItem{h: h, data: data})
}

// readFrame blocks reading one frame off the transport, transparently
// absorbing ambient-noise out-of-band responses (spec.md §6: "a reserved
// discriminator value recognised by the MAC receive thread") and briefly
// draining on an unknown control byte or checksum failure rather than
// propagating them (spec.md §7 "recoverable transient").
func (b *base) readFrame() (Header, []byte, int8, error) {
	for {
		ctrl, err := b.transport.RecvByte()
		if err != nil {
			return Header{}, nil, 0, err
		}

		if ctrl == wire.CtrlRet {
			b.absorbNoiseResponse()
			continue
		}

		h, payload, rssi, ok, err := b.readRestOfFrame(ctrl)
		if err != nil {
			return Header{}, nil, 0, err
		}
		if !ok {
			continue // silently dropped; demux loop reads the next frame
		}
		return h, payload, rssi, nil
	}
}

func (b *base) readRestOfFrame(ctrl byte) (Header, []byte, int8, bool, error) {
	rest := make([]byte, HeaderLen-1)
	for i := range rest {
		by, err := b.transport.RecvByte()
		if err != nil {
			return Header{}, nil, 0, false, err
		}
		rest[i] = by
	}

	raw := append([]byte{ctrl}, rest...)
	h := Header{
		Ctrl: ctrl,
		Src:  raw[1],
		Dst:  raw[2],
		Seq:  wire.Uint16(raw[3:5]),
		Len:  wire.Uint16(raw[5:7]),
	}
	checksumByte := raw[7]

	// RTS/CTS reuse Len for the announced msg_len and carry no payload
	// bytes on the wire (see packRTS/packCTS).
	payloadLen := h.Len
	if ctrl == wire.CtrlRts || ctrl == wire.CtrlCts {
		payloadLen = 0
	}
	payload := make([]byte, payloadLen)
	for i := range payload {
		by, err := b.transport.RecvByte()
		if err != nil {
			return Header{}, nil, 0, false, err
		}
		payload[i] = by
	}

	rssiByte, err := b.transport.RecvByte()
	if err != nil {
		return Header{}, nil, 0, false, err
	}

	full := append(append([]byte(nil), raw...), payload...)
	full[7] = 0
	if wire.Checksum8(full) != checksumByte {
		b.log.Debug("dropping frame: checksum mismatch", "src", h.Src, "ctrl", h.Ctrl)
		return Header{}, nil, 0, false, nil
	}

	if !knownControl(h.Ctrl) {
		b.log.Debug("dropping frame: unknown control byte", "ctrl", h.Ctrl)
		return Header{}, nil, 0, false, nil
	}

	return h, payload, int8(rssiByte), true, nil
}

func knownControl(ctrl byte) bool {
	switch ctrl {
	case wire.CtrlPkt, wire.CtrlBcn, wire.CtrlAck, wire.CtrlRts, wire.CtrlCts,
		wire.CtrlWakeBea, wire.CtrlWakeAck, wire.CtrlTab, wire.CtrlMsg,
		wire.CtrlMacMetrics, wire.CtrlRouMetrics, wire.CtrlTopoReq:
		return true
	default:
		return false
	}
}

func (b *base) absorbNoiseResponse() {
	sample := 0
	for i := 0; i < 2; i++ {
		by, err := b.transport.RecvByte()
		if err != nil {
			return
		}
		sample = sample<<8 | int(by)
	}
	select {
	case b.noiseCh <- sample:
	default:
		select {
		case <-b.noiseCh:
		default:
		}
		b.noiseCh <- sample
	}
}

// Beacons exposes received routing beacons (spec.md §4.4) to the routing
// layer. It is never closed; callers should select on it alongside their
// own shutdown signal.
func (b *base) Beacons() <-chan BeaconFrame {
	return b.beaconCh
}

// SendBeacon transmits a routing beacon directly, bypassing the send
// queue and retry machinery: a beacon is broadcast, unacknowledged, and
// superseded by the next tick anyway, so spec.md §4.3's ACK/backoff
// discipline does not apply to it.
func (b *base) SendBeacon(parent wire.Addr, parentRSSI int8) error {
	frame := packBeacon(b.cfg.Self, parent, parentRSSI)
	if err := b.transport.SetMode(transport.ModeTransmit); err != nil {
		return err
	}
	_, err := b.transport.Send(frame)
	b.transport.SetMode(transport.ModeConfiguration)
	return err
}

// awaitAck arms the ack-wait for (dest, seq) and blocks until either a
// matching CtrlAck is dispatched by the receive loop, timeout elapses, or
// the engine closes. Only one wait may be armed at a time per base, which
// holds for all three variants since each keeps at most one frame
// outstanding (spec.md §4.3).
func (b *base) awaitAck(dest wire.Addr, seq uint16, timeout time.Duration) bool {
	return b.ack.await(dest, seq, true, timeout, b.closed)
}

// notifyAck wakes a pending awaitAck if src/seq match what it is waiting
// for.
func (b *base) notifyAck(src wire.Addr, seq uint16) {
	b.ack.deliver(src, seq, true)
}

// dispatchCommon handles the three frame kinds every variant treats
// identically once the frame has cleared readFrame's checksum/known-ctrl
// filter: ACK notification, beacon hand-off to the routing layer, and
// ordinary data delivery (dedup, auto-ACK, queue to Recv). RTS/CTS/wake
// frames are variant-specific and left for the caller to handle when
// dispatchCommon reports it did not recognise the frame.
func (b *base) dispatchCommon(h Header, payload []byte, rssi int8) (handled bool) {
	switch h.Ctrl {
	case wire.CtrlAck:
		b.notifyAck(h.Src, h.Seq)
		return true

	case wire.CtrlBcn:
		parent, parentRSSI, ok := unpackBeacon(payload)
		if !ok {
			return true
		}
		select {
		case b.beaconCh <- BeaconFrame{Src: h.Src, Parent: parent, ParentRSSI: parentRSSI, RSSI: rssi}:
		default:
			b.log.Debug("dropping beacon: receiver not keeping up", "src", h.Src)
		}
		return true

	case wire.CtrlPkt:
		if h.Dst != b.cfg.Self && h.Dst != wire.Broadcast {
			return true
		}
		if h.Dst != wire.Broadcast {
			b.ackAndMaybeDeliver(h, payload, rssi)
		} else if h.Src != b.cfg.Self {
			// Broadcasts bypass sequence dedup entirely (spec.md §4.3/§8);
			// a node only ever suppresses a broadcast it sent itself.
			b.deliver(b.toRecvHeader(h, rssi), payload)
		}
		return true

	default:
		return false
	}
}

// ackAndMaybeDeliver sends the ACK for a unicast data frame regardless of
// whether it is a duplicate (spec.md §4.3: the sender must see an ACK to
// stop retrying even if its previous attempt's data already landed), and
// delivers to Recv only on first sight.
func (b *base) ackAndMaybeDeliver(h Header, payload []byte, rssi int8) {
	fresh := b.seq.accept(h.Src, h.Seq)
	if fresh {
		b.deliver(b.toRecvHeader(h, rssi), payload)
	}
	ack := packAck(b.cfg.Self, h.Src, h.Seq)
	if _, err := b.transport.Send(ack); err != nil {
		b.log.Debug("failed to send ack", "to", h.Src, "err", err)
	}
}

func (b *base) toRecvHeader(h Header, rssi int8) RecvHeader {
	return RecvHeader{Src: h.Src, Dst: h.Dst, Seq: h.Seq, Len: h.Len, RSSI: rssi}
}

// noiseQueryCommand is the reserved out-of-band byte sequence the radio
// module recognises as "sample ambient noise and reply via the normal
// recv path" (spec.md §6).
var noiseQueryCommand = []byte{wire.CtrlRet}

// sampleNoise sends the query and waits up to timeout for the 3-byte
// response the receive-side demux delivers on noiseCh.
func (b *base) sampleNoise(timeout time.Duration) (int, bool) {
	if _, err := b.transport.Send(noiseQueryCommand); err != nil {
		return 0, false
	}
	select {
	case v := <-b.noiseCh:
		return v, true
	case <-time.After(timeout):
		return 0, false
	}
}
