// Package cli implements the adpfd command-line interface using Cobra.
// serve runs the daemon; the other commands inspect a running daemon or its
// history store.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	serverAddr string
)

var rootCmd = &cobra.Command{
	Use:   "adpfd",
	Short: "Adaptive performance hint session daemon",
	Long: `adpfd runs hint sessions for latency-sensitive thread groups.
Clients report actual work durations against a target; the daemon steers
each thread's uclamp floor with a PID controller and boosts on hints.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default $ADPFD_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "", "Daemon address (default from config)")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
