// Command ignition-core runs the ignition controller: it ticks the decision
// core, drives the local actuator board, talks to the remote nodes over the
// serial link and publishes telemetry to MQTT.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "ignition-core",
	Short: "Hybrid rocket ignition controller",
	Long: `ignition-core arbitrates manual control, the autonomous ignition sequence,
error and abort for a hybrid rocket motor.

Configuration is read from an optional YAML file (--config), then IGNITION_*
environment variables (IGNITION_LINK_PORT=/dev/ttyAMA0), then flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
