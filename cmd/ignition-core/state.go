package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sweeney/ignition-core/internal/config"
	"github.com/sweeney/ignition-core/internal/gpio"
	"github.com/sweeney/ignition-core/internal/link"
)

var stateJSON bool

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the interlock and actuator line state and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath, cmd.Flags())
		if err != nil {
			return err
		}
		act, err := gpio.NewRealActuator(cfg.GPIO.Chip, cfg.GPIO.Pins)
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		defer act.Close()

		st, err := act.State()
		if err != nil {
			return fmt.Errorf("read gpio: %w", err)
		}
		ports, err := link.Ports()
		if err != nil {
			ports = nil
		}
		return printState(cmd.OutOrStdout(), st, ports, stateJSON)
	},
}

func init() {
	stateCmd.Flags().String("chip", "gpiochip0", "GPIO character device")
	stateCmd.Flags().BoolVar(&stateJSON, "json", false, "Print JSON")
	rootCmd.AddCommand(stateCmd)
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}

func printState(w io.Writer, st gpio.State, ports []string, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(struct {
			gpio.State
			Ports []string `json:"serial_ports"`
		}{st, ports})
	}
	interlock := "OPEN"
	if st.Interlock {
		interlock = "ENGAGED"
	}
	fmt.Fprintf(w, "Interlock: %s, Arm: %s, Solenoid: %s, Igniter1: %s, Igniter2: %s\n",
		interlock, onOff(st.Armed), onOff(st.Solenoid), onOff(st.Igniter1), onOff(st.Igniter2))
	if len(ports) > 0 {
		fmt.Fprintf(w, "Serial ports: %v\n", ports)
	}
	return nil
}
