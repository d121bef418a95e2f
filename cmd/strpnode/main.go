// Command strpnode runs one participant in a strp wireless mesh: a MAC
// engine (ALOHA, MACAW, or STEM) over a serial radio transport, STRP
// tree-formation routing on top, and ProtoMon instrumentation shipping
// metrics to the sink's CSV files.
//
// Grounded on the teacher's cmd/direwolf/main.go: pflag-driven flags
// overriding a config file, then a long-running daemon body until a
// termination signal arrives.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"

	"github.com/loranet/strp/internal/config"
	"github.com/loranet/strp/internal/logging"
	"github.com/loranet/strp/internal/nodebuild"
)

func main() {
	var (
		configFile = pflag.StringP("config-file", "c", "strpnode.yaml", "Node configuration file name.")
		self       = pflag.Uint8P("self", "s", 0, "This node's address (overrides config file).")
		sink       = pflag.Uint8P("sink", "k", 0, "Sink node's address (overrides config file).")
		isSink     = pflag.BoolP("is-sink", "S", false, "Run as the sink node.")
		device     = pflag.StringP("device", "d", "", "Serial device name (overrides config file).")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: strpnode [options] [address]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()
	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("self") {
		cfg.Self = *self
	}
	if pflag.NArg() > 0 {
		addr, err := strconv.ParseUint(pflag.Arg(0), 0, 8)
		if err != nil {
			fmt.Fprintf(os.Stderr, "strpnode: invalid node address %q: %v\n", pflag.Arg(0), err)
			os.Exit(1)
		}
		cfg.Self = uint8(addr)
	}
	if pflag.CommandLine.Changed("sink") {
		cfg.Sink = *sink
	}
	if *isSink {
		cfg.IsSink = true
	}
	if *device != "" {
		cfg.Device = *device
	}

	if cfg.LogFile != "" {
		path, err := logging.RotatedLogPath(cfg.LogFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer f.Close()
		logging.SetOutput(f)
	}
	if lvl, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logging.SetLevel(lvl)
	}

	node, err := nodebuild.Build(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer node.Close()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
}
