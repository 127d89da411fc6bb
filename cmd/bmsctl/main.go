// bmsctl is the host companion for the pack firmware: it runs the control
// loop against a simulated pack, decodes fault-log images, monitors the
// firmware's telemetry stream and talks to an AFE on a bench I2C bus.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
