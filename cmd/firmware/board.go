//go:build rp2040

package main

import "machine"

// Pack controller board wiring.
const (
	pinAFESDA = machine.GPIO4
	pinAFESCL = machine.GPIO5
	afeI2CHz  = 100_000

	pinAFEOut         = machine.ADC0 // GP26
	pinDischargeSense = machine.ADC1 // GP27
	pinDetect         = machine.ADC2 // GP28
	pinThermistor     = machine.ADC3 // GP29

	pinLEDRed   = machine.GPIO16
	pinLEDGreen = machine.GPIO17
	pinLEDBlue  = machine.GPIO18
	ledPWMHz    = 1000

	pinTelemetryTX = machine.GPIO0
	pinTelemetryRX = machine.GPIO1
	telemetryBaud  = 115200

	watchdogTimeoutMs = 500

	// Offset of the event log image inside the flash data region.
	storageOffset = 0
)
