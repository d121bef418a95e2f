// Command strprecv is the synthetic workload's receive side: it builds a
// node from a config file and prints every application datagram it
// receives until interrupted.
//
// Grounded on the teacher's atest.go receive-side test client and on
// original_source/STRP_Aloha/benchmark/benchmark.c's synthetic receiver
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
	"github.com/loranet/strp/internal/routing"
)

func main() {
	var (
		configFile = pflag.StringP("config-file", "c", "strpnode.yaml", "Node configuration file name.")
		help       = pflag.BoolP("help", "h", false, "Display help text.")
	)
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: strprecv [options]\n\n")
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

	done := make(chan struct{})
	var received int
	go func() {
		defer close(done)
		for {
			src, _, data, err := node.RecvTimeout(500 * time.Millisecond)
			if err == routing.ErrClosed {
				return
			}
			if err != nil {
				continue // timeout: loop and check for shutdown
			}
			received++
			fmt.Printf("recv #%d from %d: %d byte(s)\n", received, src, len(data))
		}
	}()

	select {
	case <-stop:
	case <-done:
	}
	fmt.Printf("received %d payload(s)\n", received)
}
