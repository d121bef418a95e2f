package transport

import (
	"errors"
	"time"

	"github.com/pkg/term"

	"github.com/loranet/strp/internal/gpio"
	"github.com/loranet/strp/internal/logging"
)

var errReadShort = errors.New("transport: short read from serial port")

// SerialTransport talks to a radio module over a UART, via github.com/pkg/term.
// Grounded directly on the teacher's serial_port.go: open in raw mode, set
// speed, read/write raw bytes. Mode switching is delegated to a
// gpio.ModePins so this type stays a pure byte pipe.
type SerialTransport struct {
	fd   *term.Term
	pins gpio.ModePins
	log  *logging.Logger
}

// OpenSerial opens devicename at baud (0 leaves the current speed alone)
// and binds pins for mode switching. pins may be nil if the module has no
// mode GPIOs (e.g. it is always in receive/transmit mode and configured
// out-of-band).
func OpenSerial(devicename string, baud int, pins gpio.ModePins) (*SerialTransport, error) {
	log := logging.For(logging.ComponentTransport)

	fd, err := term.Open(devicename, term.RawMode)
	if err != nil {
		log.Error("open serial port failed", "device", devicename, "err", err)
		return nil, err
	}

	switch baud {
	case 0: // leave alone
	case 1200, 2400, 4800, 9600, 19200, 38400, 57600, 115200:
		if err := fd.SetSpeed(baud); err != nil {
			_ = fd.Close()
			return nil, err
		}
	default:
		log.Warn("unsupported baud rate, using 9600", "requested", baud)
		if err := fd.SetSpeed(9600); err != nil {
			_ = fd.Close()
			return nil, err
		}
	}

	return &SerialTransport{fd: fd, pins: pins, log: log}, nil
}

func (t *SerialTransport) Send(data []byte) (int, error) {
	n, err := t.fd.Write(data)
	if err != nil {
		t.log.Debug("serial write error", "err", err)
	}
	return n, err
}

func (t *SerialTransport) RecvByte() (byte, error) {
	buf := make([]byte, 1)
	n, err := t.fd.Read(buf)
	if n != 1 {
		if err == nil {
			err = errReadShort
		}
		return 0, err
	}
	return buf[0], nil
}

// TryRecvByte is approximated on a blocking serial fd by racing the read
// against an already-expired deadline: the underlying fd has no portable
// non-blocking single-byte read, so we use a near-zero timeout instead.
func (t *SerialTransport) TryRecvByte() (byte, bool, error) {
	b, err := t.recvByteDeadline(time.Now())
	if err == ErrTimeout {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return b, true, nil
}

func (t *SerialTransport) RecvByteTimeout(d time.Duration) (byte, error) {
	return t.recvByteDeadline(time.Now().Add(d))
}

func (t *SerialTransport) recvByteDeadline(deadline time.Time) (byte, error) {
	result := make(chan byte, 1)
	errc := make(chan error, 1)

	go func() {
		b, err := t.RecvByte()
		if err != nil {
			errc <- err
			return
		}
		result <- b
	}()

	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	select {
	case b := <-result:
		return b, nil
	case err := <-errc:
		return 0, err
	case <-timer.C:
		return 0, ErrTimeout
	}
}

func (t *SerialTransport) SetMode(mode Mode) error {
	if t.pins == nil {
		return nil
	}
	return t.pins.Assert(gpio.Mode(mode))
}

func (t *SerialTransport) Close() error {
	if t.pins != nil {
		_ = t.pins.Close()
	}
	return t.fd.Close()
}
