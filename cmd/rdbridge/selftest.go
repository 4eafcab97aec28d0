package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/rdbridge"
	"go.klb.dev/rdbridge/clip"
	"go.klb.dev/rdbridge/cliprdr"
	"go.klb.dev/rdbridge/rdp"
)

func newSelftestCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "selftest",
		Short: "Run a full session against an in-process loopback server",
		Long: `Connects the bridge to an in-process loopback RDP server and exercises the
session lifecycle plus the clipboard channel in both directions. Exits
non-zero if any step fails.

Useful for verifying a build on a new platform without a real RDP server.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(_ *cobra.Command, _ []string) error { return runSelftest(v) },
	}

	f := cmd.Flags()
	f.Uint32("width", 0, "desktop width (0 = library default)")
	f.Uint32("height", 0, "desktop height (0 = library default)")
	f.Duration("step-timeout", 5*time.Second, "timeout for each selftest step")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address during the test (empty = off)")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runSelftest(v *viper.Viper) error {
	setupLogging(v)

	stepTimeout := v.GetDuration("step-timeout")
	if addr := v.GetString("metrics-addr"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			slog.Info("metrics listening", "addr", addr)
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Warn("metrics server stopped", "err", err)
			}
		}()
	}

	slog.Info("selftest starting", "version", Version)

	srv := rdp.NewLoopbackServer()
	board := clip.NewMemory()

	var frames atomic.Int64
	var disconnects atomic.Int32
	client, err := rdbridge.New(srv.Factory(),
		func(rdbridge.Frame) { frames.Add(1) },
		func() { disconnects.Add(1) },
		rdbridge.WithClipboard(board),
	)
	if err != nil {
		return fmt.Errorf("selftest: %w", err)
	}
	defer client.Close()

	if err := client.Connect(rdbridge.Config{
		Host:   "loopback",
		Width:  v.GetUint32("width"),
		Height: v.GetUint32("height"),
	}); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	if err := waitUntil(stepTimeout, func() bool { return frames.Load() > 0 }); err != nil {
		return fmt.Errorf("first frame: %w", err)
	}
	slog.Info("session up", "frames", frames.Load())

	// Server → local clipboard.
	srv.SetClipboardText("remote text")
	if err := waitUntil(stepTimeout, func() bool {
		text, ok := board.Text()
		return ok && text == "remote text"
	}); err != nil {
		return fmt.Errorf("server-to-local clipboard: %w", err)
	}
	slog.Info("server clipboard reached local board")

	// Local → server clipboard.
	if err := board.SetText("local text"); err != nil {
		return fmt.Errorf("set local clipboard: %w", err)
	}
	if err := waitUntil(stepTimeout, func() bool { return srv.ClipboardText() == "local text" }); err != nil {
		return fmt.Errorf("local-to-server clipboard: %w", err)
	}
	slog.Info("local clipboard reached server")

	// Legacy CF_TEXT path. Clear the server side first so the check below
	// proves the transfer happened.
	srv.SetClipboardText("")
	srv.RequestClientClipboard(cliprdr.FormatText)
	if err := waitUntil(stepTimeout, func() bool { return srv.ClipboardText() == "local text" }); err != nil {
		return fmt.Errorf("legacy text request: %w", err)
	}
	slog.Info("legacy text request served")

	client.Disconnect()
	if n := disconnects.Load(); n != 1 {
		return fmt.Errorf("disconnected callback fired %d times, want 1", n)
	}

	slog.Info("selftest passed", "frames", frames.Load())
	return nil
}

// waitUntil polls cond until it holds or the timeout passes.
func waitUntil(timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return fmt.Errorf("condition not met within %s", timeout)
}
