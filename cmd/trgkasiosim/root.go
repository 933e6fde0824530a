// Package main implements trgkasiosim, a cobra CLI that drives the
// driver facade end-to-end against malgo-backed endpoints, for local
// testing of the scenarios in spec.md §8 without a real ASIO host.
package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/trgk-audio/asio-wasapi-bridge/internal/dlog"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/driver"
	"github.com/trgk-audio/asio-wasapi-bridge/internal/hostapi"
)

var (
	configPath  string
	metricsAddr string
	runDuration time.Duration
)

// rootCommand builds the trgkasiosim command tree.
func rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trgkasiosim",
		Short: "Drive the ASIO-shim core end-to-end without a real host",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "trgkasio.json", "Path to the JSON settings document")
	cmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", ":9469", "Address to serve /metrics on, empty to disable")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Init, create buffers, start, and run until interrupted",
		RunE:  runSimulation,
	}
	runCmd.Flags().DurationVar(&runDuration, "duration", 0, "Stop automatically after this long (0 = run until signal)")

	cmd.AddCommand(runCmd)
	return cmd
}

func main() {
	if err := rootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// simCallbacks stands in for the host application: it counts
// bufferSwitch invocations and immediately signals outputReady back,
// approximating a host that writes silence into every buffer as fast
// as it is handed to it.
type simCallbacks struct {
	d      *driver.Driver
	blocks int
	resets int
}

func (c *simCallbacks) BufferSwitch(bufferIndex int, directProcess bool) {
	c.blocks++
	c.d.OutputReady()
}

func (c *simCallbacks) ResetRequest() {
	c.resets++
	dlog.For("trgkasiosim").Warn("host received reset request")
}

func runSimulation(cmd *cobra.Command, args []string) error {
	log := dlog.For("trgkasiosim")

	if metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				log.Warn("metrics server exited", "error", err)
			}
		}()
	}

	d := driver.New()
	if !d.Init(configPath, nil) {
		return fmt.Errorf("init failed: %s", d.GetErrorMessage())
	}
	defer d.Destroy()

	numIn, numOut := d.GetChannels()
	log.Info("driver initialized", "inputs", numIn, "outputs", numOut, "name", d.GetDriverName(), "version", d.GetDriverVersion())

	blockSize := 64
	callbacks := &simCallbacks{d: d}
	infos := make([]hostapi.BufferInfo, numOut)
	for ch := range infos {
		infos[ch] = hostapi.BufferInfo{Channel: ch}
	}

	if code := d.CreateBuffers(infos, numOut, blockSize, callbacks); code != hostapi.OK {
		return fmt.Errorf("createBuffers failed: %s", code)
	}
	defer d.DisposeBuffers()

	if code := d.Start(); code != hostapi.OK {
		return fmt.Errorf("start failed: %s (%s)", code, d.GetErrorMessage())
	}
	defer d.Stop()

	log.Info("running", "duration", runDuration)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var timeout <-chan time.Time
	if runDuration > 0 {
		timer := time.NewTimer(runDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-sigCh:
		log.Info("interrupted")
	case <-timeout:
		log.Info("duration elapsed")
	}

	log.Info("stopping", "blocks_processed", callbacks.blocks, "resets_seen", callbacks.resets)
	return nil
}
