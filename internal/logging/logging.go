// Package logging provides the node runtime's structured loggers.
//
// The original testbed routed every component through a single
// text_color_set(DW_COLOR_*) call ahead of a dw_printf — a per-concern
// channel (info/error/debug/xmit/...) with no structure beyond an ANSI
// color. This package keeps the same per-concern split but backs it with
// github.com/charmbracelet/log, giving every line a component field,
// a level, and structured key/value pairs instead of colored free text.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"
)

// Component names used to tag loggers across the runtime. Keeping these
// as constants avoids typos scattering slightly different component
// strings across packages.
const (
	ComponentMAC      = "mac"
	ComponentRouting  = "routing"
	ComponentMonitor  = "monitor"
	ComponentNeighbor = "neighbor"
	ComponentTransport = "transport"
	ComponentGPIO     = "gpio"
	ComponentNode     = "node"
)

// Logger is the logger type returned by For; aliased so callers need not
// import charmbracelet/log directly.
type Logger = log.Logger

var base = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	ReportCaller:    false,
	TimeFormat:      "15:04:05.000",
})

// SetOutput redirects every future logger returned by For to w. Intended
// for tests and for the harness's --log-file flag.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// SetLevel sets the minimum level emitted by every component logger.
func SetLevel(level log.Level) {
	base.SetLevel(level)
}

// For returns the logger for a given component, tagging every line it
// emits with component=<name>.
func For(component string) *Logger {
	return base.With("component", component)
}

// RotatedLogPath expands an strftime pattern against the current time,
// the way the teacher's tq.go formats its IGate log line timestamp — used
// here to turn a --log-file pattern like "strpnode-%Y%m%d.log" into a
// concrete path so a long-running node rolls onto a new file each day
// without an external log-rotation daemon.
func RotatedLogPath(pattern string) (string, error) {
	return strftime.Format(pattern, time.Now())
}
