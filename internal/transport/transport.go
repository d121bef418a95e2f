// Package transport defines the radio-module driver contract (spec.md §6)
// consumed by the MAC layer, plus two concrete implementations: a real
// serial-port transport and an in-memory loopback medium used by tests and
// by the synthetic-workload harness to run several nodes in one process.
//
// Per spec.md §1 the radio driver itself is an external collaborator, not
// designed here — this package only gives that collaborator's contract a
// Go shape and a working adapter to exercise it against.
package transport

import (
	"errors"
	"time"
)

// Mode selects one of the three states the radio module's GPIO mode pins
// can put it in.
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

// ErrTimeout is returned by the timed byte-read variant when no byte
// arrives before the deadline.
var ErrTimeout = errors.New("transport: timed out")

// Transport is the byte-granular serial interface to a radio module,
// grounded on the teacher's serial_port.go (serial_port_get1 reads one
// byte, waiting if necessary) and generalised with the non-blocking and
// timed variants spec.md §6 requires. The MAC receive thread demultiplexes
// the byte stream itself (frame headers vs. out-of-band CtrlRet
// responses); the transport has no notion of frame boundaries.
type Transport interface {
	// Send writes data to the module, blocking until accepted.
	Send(data []byte) (int, error)

	// RecvByte blocks until one byte is available.
	RecvByte() (byte, error)

	// TryRecvByte returns immediately; ok is false if nothing was ready.
	TryRecvByte() (b byte, ok bool, err error)

	// RecvByteTimeout waits at most d for a byte, returning ErrTimeout on
	// expiry.
	RecvByteTimeout(d time.Duration) (byte, error)

	// SetMode asserts the module's GPIO mode pins via the gpio package.
	SetMode(Mode) error

	Close() error
}
