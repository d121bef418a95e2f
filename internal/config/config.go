// Package config assembles every layer's tunables (internal/mac,
// internal/routing, internal/monitor) into one YAML-and-flag-driven
// Config, the way the teacher's config.go loads direwolf.conf plus
// command-line overrides into one Config struct before construction.
//
// Defaults for every field come from original_source's per-layer header
// files (ALOHA.h, STRP.h, STEM.h, ProtoMon.c) and are applied by each
// layer's own setDefaults, not duplicated here: a zero value in the YAML
// file simply means "let the layer pick its default".
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/loranet/strp/internal/mac"
	"github.com/loranet/strp/internal/monitor"
	"github.com/loranet/strp/internal/routing"
	"github.com/loranet/strp/internal/wire"
)

// Config is the complete on-disk/CLI configuration surface for a strpnode
// process: node identity, the chosen MAC variant, every layer's tunables,
// transport selection, and logging.
type Config struct {
	Self   wire.Addr `yaml:"self"`
	Sink   wire.Addr `yaml:"sink"`
	IsSink bool      `yaml:"is_sink"`

	MACVariant string `yaml:"mac_variant"` // "ALOHA", "MACAW", "STEM"

	Transport  string `yaml:"transport"` // "serial" or "loopback"
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	GPIOChip   string `yaml:"gpio_chip"`
	GPIOTransmit  int `yaml:"gpio_transmit"`
	GPIODeepSleep int `yaml:"gpio_deep_sleep"`
	GPIOConfig    int `yaml:"gpio_configuration"`

	MAC     MACConfig     `yaml:"mac"`
	Routing RoutingConfig `yaml:"routing"`
	Monitor MonitorConfig `yaml:"monitor"`

	LogLevel string `yaml:"log_level"` // "debug", "info", "warn", "error"
	LogFile  string `yaml:"log_file"` // strftime pattern, e.g. "strpnode-%Y%m%d.log"
}

// MACConfig mirrors mac.Config with YAML tags and duration strings.
type MACConfig struct {
	MaxTrials           uint   `yaml:"max_trials"`
	AmbientNoiseEnabled bool   `yaml:"ambient_noise_enabled"`
	NoiseThreshold      int    `yaml:"noise_threshold"`
	SendQueueCap        int    `yaml:"send_queue_cap"`
	RecvQueueCap        int    `yaml:"recv_queue_cap"`
	AckWaitMin          string `yaml:"ack_wait_min"`
	AckWaitMax          string `yaml:"ack_wait_max"`
	Timeslot            string `yaml:"timeslot"`
	ReserveWindow       string `yaml:"reserve_window"`
	TBeacon             string `yaml:"t_beacon"`
	TBeaconPeriod       string `yaml:"t_beacon_period"`
	TSleep              string `yaml:"t_sleep"`
	TWake               string `yaml:"t_wake"`
	TOffsetMs           int    `yaml:"t_offset_ms"`
	TPerByteMs          int    `yaml:"t_per_byte_ms"`
}

// RoutingConfig mirrors routing.Config with YAML tags.
type RoutingConfig struct {
	Strategy        string `yaml:"strategy"`
	FixedParent     wire.Addr `yaml:"fixed_parent"`
	SenseDuration   string `yaml:"sense_duration"`
	BeaconInterval  string `yaml:"beacon_interval"`
	NodeTimeout     string `yaml:"node_timeout"`
	CleanupInterval string `yaml:"cleanup_interval"`
	SendQueueCap    int    `yaml:"send_queue_cap"`
	RecvQueueCap    int    `yaml:"recv_queue_cap"`
}

// MonitorConfig mirrors monitor.Config with YAML tags.
type MonitorConfig struct {
	Enabled         bool     `yaml:"enabled"`
	SendInterval    string   `yaml:"send_interval"`
	InitialSendWait string   `yaml:"initial_send_wait"`
	SendDelay       string   `yaml:"send_delay"`
	VizInterval     string   `yaml:"viz_interval"`
	CSVDir          string   `yaml:"csv_dir"`
	VizCommand      []string `yaml:"viz_command"`
}

// Load reads and parses a YAML config file. A missing file is not an
// error: Load returns a zero Config, relying entirely on command-line
// overrides and each layer's setDefaults (matches the teacher's
// direwolf.conf being optional when enough is passed on argv).
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// duration parses an optional duration string, returning 0 (meaning
// "layer default") for an empty value.
func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return time.ParseDuration(s)
}

// MACConfig builds an internal/mac.Config from its YAML-facing mirror.
func (c Config) MACConfig() (mac.Config, error) {
	var out mac.Config
	out.Self = c.Self
	out.MaxTrials = c.MAC.MaxTrials
	out.AmbientNoiseEnabled = c.MAC.AmbientNoiseEnabled
	out.NoiseThreshold = c.MAC.NoiseThreshold
	out.SendQueueCap = c.MAC.SendQueueCap
	out.RecvQueueCap = c.MAC.RecvQueueCap
	out.TOffsetMs = c.MAC.TOffsetMs
	out.TPerByteMs = c.MAC.TPerByteMs

	var err error
	for _, pair := range []struct {
		src string
		dst *time.Duration
	}{
		{c.MAC.AckWaitMin, &out.AckWaitMin},
		{c.MAC.AckWaitMax, &out.AckWaitMax},
		{c.MAC.Timeslot, &out.Timeslot},
		{c.MAC.ReserveWindow, &out.ReserveWindow},
		{c.MAC.TBeacon, &out.TBeacon},
		{c.MAC.TBeaconPeriod, &out.TBeaconPeriod},
		{c.MAC.TSleep, &out.TSleep},
		{c.MAC.TWake, &out.TWake},
	} {
		if *pair.dst, err = duration(pair.src); err != nil {
			return out, fmt.Errorf("config: mac: %w", err)
		}
	}
	return out, nil
}

// RoutingConfig builds an internal/routing.Config from its YAML-facing
// mirror, resolving Self/Sink/IsSink from the top-level fields they share
// with every layer.
func (c Config) Routing() (routing.Config, error) {
	var out routing.Config
	out.Self = c.Self
	out.Sink = c.Sink
	out.IsSink = c.IsSink
	out.FixedParent = c.Routing.FixedParent
	out.SendQueueCap = c.Routing.SendQueueCap
	out.RecvQueueCap = c.Routing.RecvQueueCap

	if c.Routing.Strategy != "" {
		strat, ok := routing.ParseStrategy(c.Routing.Strategy)
		if !ok {
			return out, fmt.Errorf("config: routing: unknown strategy %q", c.Routing.Strategy)
		}
		out.Strategy = strat
	}

	var err error
	for _, pair := range []struct {
		src string
		dst *time.Duration
	}{
		{c.Routing.SenseDuration, &out.SenseDuration},
		{c.Routing.BeaconInterval, &out.BeaconInterval},
		{c.Routing.NodeTimeout, &out.NodeTimeout},
		{c.Routing.CleanupInterval, &out.CleanupInterval},
	} {
		if *pair.dst, err = duration(pair.src); err != nil {
			return out, fmt.Errorf("config: routing: %w", err)
		}
	}
	return out, nil
}

// Monitor builds an internal/monitor.Config from its YAML-facing mirror.
func (c Config) Monitor() (monitor.Config, error) {
	out := monitor.Config{
		Self:       c.Self,
		Sink:       c.Sink,
		IsSink:     c.IsSink,
		Enabled:    c.Monitor.Enabled,
		CSVDir:     c.Monitor.CSVDir,
		VizCommand: c.Monitor.VizCommand,
	}

	var err error
	for _, pair := range []struct {
		src string
		dst *time.Duration
	}{
		{c.Monitor.SendInterval, &out.SendInterval},
		{c.Monitor.InitialSendWait, &out.InitialSendWait},
		{c.Monitor.SendDelay, &out.SendDelay},
		{c.Monitor.VizInterval, &out.VizInterval},
	} {
		if *pair.dst, err = duration(pair.src); err != nil {
			return out, fmt.Errorf("config: monitor: %w", err)
		}
	}
	return out, nil
}
