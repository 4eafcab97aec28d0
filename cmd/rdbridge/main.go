// rdbridge: RDP session and clipboard bridge diagnostics.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/rdbridge/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "rdbridge",
		Short: "RDP session and clipboard bridge tooling",
		Long: `rdbridge is the companion binary for the rdbridge library: a client-side
RDP session controller with bidirectional clipboard redirection.

The library is consumed by host applications; this binary exists for
diagnostics. "rdbridge selftest" drives a full session against an in-process
loopback server and exercises the clipboard bridge in both directions.

Config file search order (first found wins):
  /etc/rdbridge/rdbridge.toml
  $HOME/.config/rdbridge/rdbridge.toml
  path supplied via --config

All flags can be set via RDBRIDGE_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newSelftestCmd(),
		newVersionCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("rdbridge %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
