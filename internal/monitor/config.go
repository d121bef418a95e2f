package monitor

import (
	"time"

	"github.com/loranet/strp/internal/wire"
)

// Config carries every ProtoMon tunable named in spec.md §4.5.
//
// Open Question resolution: spec.md describes independent "routing
// monitoring" and "MAC monitoring" toggles but only ever exercises them
// together in its worked scenarios (S1/S2/S6). This implementation ties
// both to the single Enabled flag — ProtoMon_init's "no-op when no layers
// are marked for monitoring" becomes "no-op when Enabled is false" — and
// records the simplification here rather than in code comments.
type Config struct {
	Self   wire.Addr
	Sink   wire.Addr
	IsSink bool
	Enabled bool

	SendInterval     time.Duration // default 60s
	InitialSendWait  time.Duration // default 30s
	SendDelay        time.Duration // gap between layer reports, default 500ms
	VizInterval      time.Duration // default 60s

	CSVDir     string   // sink only; default "."
	VizCommand []string // sink only; argv[0]=executable, rest=args
}

func (c *Config) setDefaults() {
	if c.SendInterval == 0 {
		c.SendInterval = 60 * time.Second
	}
	if c.InitialSendWait == 0 {
		c.InitialSendWait = 30 * time.Second
	}
	if c.SendDelay == 0 {
		c.SendDelay = 500 * time.Millisecond
	}
	if c.VizInterval == 0 {
		c.VizInterval = 60 * time.Second
	}
	if c.CSVDir == "" {
		c.CSVDir = "."
	}
}
