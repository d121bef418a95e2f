// Package gpio asserts the radio module's mode-select pins: transmit,
// deep-sleep, and configuration (spec.md §6). Generalised from the
// teacher's ptt.go, which drives a single "key the transmitter" GPIO line
// for an audio PTT relay, into a three-way mode select backed by
// github.com/warthog618/go-gpiocdev — a dependency the teacher's go.mod
// already carries but never wires to anything.
package gpio

// Mode mirrors transport.Mode's three values without importing the
// transport package (gpio is a lower-level dependency of transport).
type Mode int

const (
	ModeTransmit Mode = iota
	ModeDeepSleep
	ModeConfiguration
)

func (m Mode) String() string {
	switch m {
	case ModeTransmit:
		return "transmit"
	case ModeDeepSleep:
		return "deep_sleep"
	case ModeConfiguration:
		return "configuration"
	default:
		return "unknown"
	}
}

// ModePins asserts exactly one of the radio module's mode pins at a time.
type ModePins interface {
	Assert(Mode) error
	Close() error
}

// NoopPins implements ModePins by doing nothing; useful for modules wired
// so that mode is controlled entirely by serial commands, and for tests.
type NoopPins struct{}

func (NoopPins) Assert(Mode) error { return nil }
func (NoopPins) Close() error      { return nil }
