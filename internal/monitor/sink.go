package monitor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"

	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/wire"
)

// csvTimestamp formats the row timestamp every CSV append uses, the way
// the teacher's tq.go prefixes its IGate log line with strftime's
// "%Y-%m-%d %H:%M:%S" pattern.
const csvTimestampPattern = "%Y-%m-%d %H:%M:%S"

func csvTimestamp() string {
	ts, err := strftime.Format(csvTimestampPattern, time.Now())
	if err != nil {
		return time.Now().UTC().Format("2006-01-02 15:04:05")
	}
	return ts
}

// sinkDispatchLoop is the sink-side counterpart to reporterLoop: it drains
// the wrapped routing.Node's topology and control-report queues, appends
// each to the matching CSV file, periodically flushes the sink's own
// metrics alongside everyone else's (spec.md §4.5: "the sink also
// periodically flushes its own metrics to the CSV files"), and fires the
// rate-limited external visualisation hook after every report or
// topology write (the sink's own periodic flush does not fire it).
func (m *MonitoredRouting) sinkDispatchLoop() {
	if err := os.MkdirAll(m.cfg.CSVDir, 0o755); err != nil {
		m.log.Error("create csv dir", "dir", m.cfg.CSVDir, "err", err)
	}

	go m.selfFlushLoop()
	go m.reportDrainLoop()
	go m.topologyDrainLoop()
}

// maybeTriggerViz serialises and rate-limits triggerViz across the report
// and topology drain loops, which both run concurrently on the sink.
func (m *MonitoredRouting) maybeTriggerViz() {
	m.vizMu.Lock()
	defer m.vizMu.Unlock()
	if now := time.Now(); now.Sub(m.lastViz) >= m.cfg.VizInterval {
		m.lastViz = now
		m.triggerViz()
	}
}

func (m *MonitoredRouting) reportDrainLoop() {
	for {
		r, err := m.inner.Reports()
		if err != nil {
			return
		}
		m.writeReport(r)
		m.maybeTriggerViz()
	}
}

func (m *MonitoredRouting) topologyDrainLoop() {
	for {
		t, err := m.inner.Topology()
		if err != nil {
			return
		}
		m.writeTopology(t)
		m.maybeTriggerViz()
	}
}

// selfFlushLoop ships the sink's own metric tables through the same CSV
// path every other node's reports use, since the sink never runs
// reporterLoop itself.
func (m *MonitoredRouting) selfFlushLoop() {
	ticker := time.NewTicker(m.cfg.SendInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.closed:
			return
		case <-ticker.C:
		}

		if m.macSnapshot != nil {
			if snap := m.macSnapshot(); len(snap) > 0 {
				m.appendMacCSV(m.cfg.Self, snap)
			}
		}
		if snap := m.rt.snapshotAndReset(func(e RoutingPeerMetrics) bool { return e.Sent > 0 || e.Received > 0 }); len(snap) > 0 {
			m.appendRoutingCSV(m.cfg.Self, snap)
		}
	}
}

func (m *MonitoredRouting) writeReport(r routing.ControlReport) {
	switch r.Ctrl {
	case wire.CtrlMacMetrics:
		m.appendMacCSV(r.Src, decodeMacMetrics(r.Payload))
	case wire.CtrlRouMetrics:
		m.appendRoutingCSV(r.Src, decodeRoutingMetrics(r.Payload))
	default:
		m.log.Warn("unrecognised control report", "ctrl", r.Ctrl, "src", r.Src)
	}
}

func (m *MonitoredRouting) writeTopology(t routing.TopologyReport) {
	path := filepath.Join(m.cfg.CSVDir, "network.csv")
	f, err := openCSV(path, "timestamp,node,peer,state,link,parent,rssi,parent_rssi,last_seen\n")
	if err != nil {
		m.log.Error("open network.csv", "err", err)
		return
	}
	defer f.Close()

	ts := csvTimestamp()
	for _, rec := range t.Records {
		fmt.Fprintf(f, "%s,%d,%d,%d,%d,%d,%d,%d,%d\n",
			ts, t.Src, rec.Addr, rec.State, rec.Link, rec.Parent, rec.RSSI, rec.ParentRSSI, rec.LastSeen)
	}
}

func (m *MonitoredRouting) appendMacCSV(src wire.Addr, snap map[wire.Addr]MacPeerMetrics) {
	path := filepath.Join(m.cfg.CSVDir, "mac.csv")
	f, err := openCSV(path, "timestamp,node,peer,sent,received,cumulative_latency_ms,broadcasts\n")
	if err != nil {
		m.log.Error("open mac.csv", "err", err)
		return
	}
	defer f.Close()

	ts := csvTimestamp()
	for peer, e := range snap {
		fmt.Fprintf(f, "%s,%d,%d,%d,%d,%d,%d\n",
			ts, src, peer, e.Sent, e.Received, e.CumulativeLatency.Milliseconds(), e.Broadcasts)
	}
}

func (m *MonitoredRouting) appendRoutingCSV(src wire.Addr, snap map[wire.Addr]RoutingPeerMetrics) {
	path := filepath.Join(m.cfg.CSVDir, "routing.csv")
	f, err := openCSV(path, "timestamp,node,peer,sent,received,last_hop_count,cumulative_latency_ms,last_path\n")
	if err != nil {
		m.log.Error("open routing.csv", "err", err)
		return
	}
	defer f.Close()

	ts := csvTimestamp()
	for peer, e := range snap {
		fmt.Fprintf(f, "%s,%d,%d,%d,%d,%d,%d,%s\n",
			ts, src, peer, e.Sent, e.Received, e.LastHopCount, e.CumulativeLatency.Milliseconds(), e.LastPath)
	}
}

// openCSV opens path for append, writing header first if the file didn't
// already exist.
func openCSV(path, header string) (*os.File, error) {
	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if os.IsNotExist(statErr) {
		if _, err := f.WriteString(header); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// triggerViz runs cfg.VizCommand, logging but not failing on a non-zero
// exit (spec.md §4.5: the visualisation hook is best-effort).
func (m *MonitoredRouting) triggerViz() {
	if len(m.cfg.VizCommand) == 0 {
		return
	}
	cmd := exec.Command(m.cfg.VizCommand[0], m.cfg.VizCommand[1:]...)
	cmd.Dir = m.cfg.CSVDir
	if out, err := cmd.CombinedOutput(); err != nil {
		m.log.Warn("visualisation hook failed", "err", err, "output", string(out))
	}
}
