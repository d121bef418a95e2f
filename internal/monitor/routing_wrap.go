package monitor

import (
	"sync"
	"time"

	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/wire"
)

// Routing is the application-facing contract routing.Node presents and
// MonitoredRouting decorates (spec.md §9's redesign note: a decorator
// value standing in for the original's function-pointer substitution).
type Routing interface {
	Send(dest wire.Addr, data []byte) bool
	ISend(dest wire.Addr, data []byte) bool
	Recv() (src, dst wire.Addr, data []byte, err error)
	RecvTimeout(d time.Duration) (src, dst wire.Addr, data []byte, err error)
	Close() error
}

// MonitoredRouting overlays application datagrams with the (hop_count,
// send_timestamp, path) header spec.md §4.5 describes, accumulates the
// routing-layer peer metric table, and — non-sink — runs the reporter
// thread that periodically ships metrics to the sink. On the sink it
// instead runs the CSV/visualisation dispatch (sink.go).
type MonitoredRouting struct {
	inner  *routing.Node
	cfg    Config
	rt     *routingTable
	log    *logging.Logger
	closed chan struct{}

	macSnapshot func() map[wire.Addr]MacPeerMetrics

	vizMu   sync.Mutex
	lastViz time.Time
}

// WrapRouting returns inner unchanged when cfg.Enabled is false (ProtoMon
// init is a no-op with nothing to monitor). macSnapshot is optional — pass
// nil when the MAC layer is not separately wrapped with WrapRadio.
func WrapRouting(inner *routing.Node, cfg Config, macSnapshot func() map[wire.Addr]MacPeerMetrics) Routing {
	if !cfg.Enabled {
		return inner
	}
	cfg.setDefaults()

	m := &MonitoredRouting{
		inner:       inner,
		cfg:         cfg,
		rt:          newRoutingTable(),
		log:         logging.For(logging.ComponentMonitor),
		closed:      make(chan struct{}),
		macSnapshot: macSnapshot,
	}

	if cfg.IsSink {
		go m.sinkDispatchLoop()
	} else {
		go m.reporterLoop()
	}
	return m
}

func (m *MonitoredRouting) Close() error {
	select {
	case <-m.closed:
	default:
		close(m.closed)
	}
	return m.inner.Close()
}

// Send prefixes data with the monitor overlay header before handing off
// to the unwrapped routing send (spec.md §4.5).
func (m *MonitoredRouting) Send(dest wire.Addr, data []byte) bool {
	overlay := encodeOverlay(overlayHeader{HopCount: 0, SendTimestamp: time.Now().UnixMilli()}, []wire.Addr{m.cfg.Self}, data)
	m.rt.recordSent(dest)
	return m.inner.Send(dest, overlay)
}

func (m *MonitoredRouting) ISend(dest wire.Addr, data []byte) bool {
	overlay := encodeOverlay(overlayHeader{HopCount: 0, SendTimestamp: time.Now().UnixMilli()}, []wire.Addr{m.cfg.Self}, data)
	m.rt.recordSent(dest)
	return m.inner.ISend(dest, overlay)
}

func (m *MonitoredRouting) Recv() (src, dst wire.Addr, data []byte, err error) {
	src, dst, raw, err := m.inner.Recv()
	if err != nil {
		return src, dst, nil, err
	}
	return src, dst, m.payloadOf(src, raw), nil
}

func (m *MonitoredRouting) RecvTimeout(d time.Duration) (src, dst wire.Addr, data []byte, err error) {
	src, dst, raw, err := m.inner.RecvTimeout(d)
	if err != nil {
		return src, dst, nil, err
	}
	return src, dst, m.payloadOf(src, raw), nil
}

// payloadOf decodes the monitor overlay, records the end-to-end routing
// metric for its originator, and returns the application payload. Frames
// that arrive without a recognisable overlay (monitoring was not active
// at the sender) are passed through unchanged.
func (m *MonitoredRouting) payloadOf(src wire.Addr, raw []byte) []byte {
	oh, path, payload, err := decodeOverlay(raw)
	if err != nil {
		return raw
	}
	latency := time.Since(time.UnixMilli(oh.SendTimestamp))
	m.rt.recordReceived(src, oh.HopCount, latency, pathString(path))
	return payload
}

// reporterLoop is the non-sink reporter thread (spec.md §4.5): wakes
// after InitialSendWait, then every SendInterval, serialises each
// enabled layer's metrics into a control-tagged routing payload and ships
// it to the sink via the unwrapped routing send, spacing consecutive
// layer reports by SendDelay.
func (m *MonitoredRouting) reporterLoop() {
	select {
	case <-m.closed:
		return
	case <-time.After(m.cfg.InitialSendWait):
	}

	ticker := time.NewTicker(m.cfg.SendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *MonitoredRouting) report() {
	if m.macSnapshot != nil {
		if snap := m.macSnapshot(); len(snap) > 0 {
			m.inner.SendRaw(wire.CtrlMacMetrics, m.cfg.Sink, encodeMacMetrics(snap))
			time.Sleep(m.cfg.SendDelay)
		}
	}

	if snap := m.rt.snapshotAndReset(func(e RoutingPeerMetrics) bool { return e.Sent > 0 || e.Received > 0 }); len(snap) > 0 {
		m.inner.SendRaw(wire.CtrlRouMetrics, m.cfg.Sink, encodeRoutingMetrics(snap))
		time.Sleep(m.cfg.SendDelay)
	}
}
