// Command strpsend is a synthetic workload generator: it builds a node
// from a config file and repeatedly sends fixed-size payloads to a
// destination address at a fixed rate, reporting the send outcome.
//
// Grounded on the teacher's aclients.go timing-test client and on
// original_source/STRP_Aloha/benchmark/benchmark.c's synthetic sender
// loop.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/loranet/strp/internal/config"
	"github.com/loranet/strp/internal/nodebuild"
)

func main() {
	var (
		configFile = pflag.StringP("config-file", "c", "strpnode.yaml", "Node configuration file name.")
		dest       = pflag.Uint8P("dest", "D", 0xFF, "Destination address (default broadcast).")
		size       = pflag.IntP("size", "z", 32, "Payload size in bytes.")
		interval   = pflag.DurationP("interval", "i", time.Second, "Send interval.")
		count      = pflag.IntP("count", "n", 0, "Number of sends; 0 means unlimited.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: strpsend [options]\n\n")
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

	node, err := nodebuild.Build(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer node.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	payload := make([]byte, *size)
	for i := range payload {
		payload[i] = byte(i)
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	var sent int
	for {
		select {
		case <-stop:
			fmt.Printf("sent %d payload(s)\n", sent)
			return
		case <-ticker.C:
			ok := node.Send(*dest, payload)
			sent++
			fmt.Printf("send #%d to %d: ok=%v\n", sent, *dest, ok)
			if *count > 0 && sent >= *count {
				return
			}
		}
	}
}
