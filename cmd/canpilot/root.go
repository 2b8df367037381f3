package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/canpilot/internal/monitoring"
)

var quiet bool

var rootCmd = &cobra.Command{
	Use:   "canpilot",
	Short: "canpilot runs the Ford steering and radar pipeline over CAN",
	Long: `canpilot decodes vehicle state and radar tracks from the powertrain,
radar and camera CAN buses of supported Ford models, encodes lane-centering
steering commands and records drive sessions to SQLite.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet {
			monitoring.SetLogger(nil)
		}
	},
}

func init() {
	log.SetOutput(os.Stdout)
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "Mute component diagnostics")
}

// Execute runs the root command until it returns or the process receives
// SIGINT or SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
