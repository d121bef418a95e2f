package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/loranet/strp/internal/logging"
)

// CdevModePins drives three GPIO output lines — one per mode — on a
// Linux gpiochip character device. Exactly one line is held high at a
// time; asserting a new mode first drops the previously-asserted line,
// mirroring the teacher's ptt.go key-up/key-down discipline but across
// three mutually-exclusive lines instead of one.
type CdevModePins struct {
	lines   map[Mode]*gpiocdev.Line
	current Mode
	log     *logging.Logger
}

// LineOffsets names the gpiochip line offset driving each mode pin.
type LineOffsets struct {
	Transmit      int
	DeepSleep     int
	Configuration int
}

// OpenCdev requests one output line per mode on chip (e.g. "gpiochip0"),
// all initially low (module left in whatever its power-on default is).
func OpenCdev(chip string, offsets LineOffsets) (*CdevModePins, error) {
	log := logging.For(logging.ComponentGPIO)

	byMode := map[Mode]int{
		ModeTransmit:      offsets.Transmit,
		ModeDeepSleep:     offsets.DeepSleep,
		ModeConfiguration: offsets.Configuration,
	}

	lines := make(map[Mode]*gpiocdev.Line, len(byMode))
	for mode, offset := range byMode {
		line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
		if err != nil {
			for _, opened := range lines {
				_ = opened.Close()
			}
			return nil, fmt.Errorf("gpio: request line %d for mode %v: %w", offset, mode, err)
		}
		lines[mode] = line
	}

	return &CdevModePins{lines: lines, log: log}, nil
}

// Assert raises mode's line and lowers every other mode's line.
func (p *CdevModePins) Assert(mode Mode) error {
	line, ok := p.lines[mode]
	if !ok {
		return fmt.Errorf("gpio: no line configured for mode %v", mode)
	}

	for m, l := range p.lines {
		if m == mode {
			continue
		}
		if err := l.SetValue(0); err != nil {
			return fmt.Errorf("gpio: lower mode %v line: %w", m, err)
		}
	}

	if err := line.SetValue(1); err != nil {
		return fmt.Errorf("gpio: raise mode %v line: %w", mode, err)
	}

	p.log.Debug("mode pin asserted", "mode", mode)
	p.current = mode
	return nil
}

func (p *CdevModePins) Close() error {
	var firstErr error
	for _, l := range p.lines {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
