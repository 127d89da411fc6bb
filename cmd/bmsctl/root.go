package main

import (
	"github.com/spf13/cobra"
)

var (
	// Serial connection flags
	portName string
	baudRate int
)

var rootCmd = &cobra.Command{
	Use:   "bmsctl",
	Short: "Battery pack supervisor tooling",
	Long: `bmsctl - host tooling for the battery pack supervisor.

  sim       run the control loop against a simulated pack
  events    decode or format a fault-log storage image
  monitor   follow the firmware telemetry stream on a serial port
  afe       inspect an AFE on a Linux I2C bus`,
	Version:      "1.0.0",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate")
}
