// Package nodebuild wires one strp participant's transport, GPIO mode
// pins, MAC engine, STRP routing node, and ProtoMon decorators together
// from a config.Config, so cmd/strpnode, cmd/strpsend, and cmd/strprecv
// all construct a node identically instead of each repeating the wiring.
package nodebuild

import (
	"fmt"

	"github.com/loranet/strp/internal/config"
	"github.com/loranet/strp/internal/gpio"
	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/monitor"
	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/transport"
)

// Handle bundles a running node's application-facing monitor.Routing
// contract (ProtoMon-wrapped when enabled) with the lower-layer resources
// Close must release.
type Handle struct {
	monitor.Routing
	pins gpio.ModePins
}

func (h *Handle) Close() error {
	err := h.Routing.Close()
	if h.pins != nil {
		h.pins.Close()
	}
	return err
}

// Build constructs the full stack described by cfg: serial transport (+
// optional GPIO mode pins) -> MAC engine -> STRP routing node -> ProtoMon.
func Build(cfg config.Config) (*Handle, error) {
	pins, t, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	macCfg, err := cfg.MACConfig()
	if err != nil {
		return nil, err
	}
	engine, err := buildEngine(cfg.MACVariant, macCfg, t)
	if err != nil {
		return nil, err
	}

	radio := monitor.WrapRadio(engine.(routing.Radio), cfg.Self, cfg.Monitor.Enabled)

	routingCfg, err := cfg.Routing()
	if err != nil {
		return nil, err
	}
	node := routing.NewNode(routingCfg, radio)

	monCfg, err := cfg.Monitor()
	if err != nil {
		return nil, err
	}

	var snapshotFn func() map[uint8]monitor.MacPeerMetrics
	if mr, ok := radio.(*monitor.MonitoredRadio); ok {
		snapshotFn = mr.Snapshot
	}

	wrapped := monitor.WrapRouting(node, monCfg, snapshotFn)
	return &Handle{Routing: wrapped, pins: pins}, nil
}

func buildTransport(cfg config.Config) (gpio.ModePins, transport.Transport, error) {
	switch cfg.Transport {
	case "", "serial":
		var pins gpio.ModePins = gpio.NoopPins{}
		if cfg.GPIOChip != "" {
			cdev, err := gpio.OpenCdev(cfg.GPIOChip, gpio.LineOffsets{
				Transmit:      cfg.GPIOTransmit,
				DeepSleep:     cfg.GPIODeepSleep,
				Configuration: cfg.GPIOConfig,
			})
			if err != nil {
				return nil, nil, fmt.Errorf("gpio: %w", err)
			}
			pins = cdev
		}
		t, err := transport.OpenSerial(cfg.Device, cfg.Baud, pins)
		if err != nil {
			return nil, nil, fmt.Errorf("transport: %w", err)
		}
		return pins, t, nil

	default:
		return nil, nil, fmt.Errorf("transport: unknown kind %q (nodebuild only opens serial transports; use internal/transport.Medium directly for in-process loopback scenarios)", cfg.Transport)
	}
}

func buildEngine(variant string, cfg mac.Config, t transport.Transport) (mac.Engine, error) {
	switch variant {
	case "", "ALOHA":
		return mac.NewAloha(cfg, t), nil
	case "MACAW":
		return mac.NewMacaw(cfg, t), nil
	case "STEM":
		return mac.NewStem(cfg, t), nil
	default:
		return nil, fmt.Errorf("mac: unknown variant %q", variant)
	}
}
