package supervisor

import (
	"bmscode-go/services/fault"
	"bmscode-go/services/led"
)

// blinkCode is a counted code framed by one-second blanks.
func blinkCode(n uint8, c led.Color) led.Pattern {
	return led.Pattern{Blinks: n, Color: c, OnMs: 500, OffMs: 500, LeadMs: 1000, TrailMs: 1000}
}

// Codes shown by the terminal fault handler.
const (
	codeCriticalComm = 15
	codeBrownOut     = 16
)

var faultPatterns = [...]led.Pattern{
	fault.SignalGeneric:              {Color: led.Red, OnMs: 500, OffMs: 500},
	fault.SignalTemperature:          {Color: led.Yellow, OnMs: 500, OffMs: 500},
	fault.SignalExtOverTemp:          blinkCode(5, led.Red),
	fault.SignalChargeOverCurrent:    blinkCode(8, led.Red),
	fault.SignalDischargeOverCurrent: blinkCode(9, led.Red),
	fault.SignalShortCircuit:         blinkCode(10, led.Red),
	fault.SignalShuntOverCurrent:     blinkCode(11, led.Red),
	fault.SignalUnderTemp:            blinkCode(14, led.Red),
	fault.SignalFullDischarge:        {Blinks: 3, Color: led.Blue, OnMs: 300, OffMs: 300, LeadMs: 750, TrailMs: 750},
}

// Output start-up: one fade-in each of red, green and blue.
var startupPatterns = [...]led.Pattern{
	{Blinks: 1, Color: led.Red, OnMs: 1000, Fade: 32},
	{Blinks: 1, Color: led.Green, OnMs: 1000, Fade: 32},
	{Blinks: 1, Color: led.Blue, OnMs: 1000, Fade: 32},
}

var (
	lowCellPattern   = led.Pattern{Color: led.Blue, OnMs: 500, OffMs: 500}
	noCurrentPattern = led.Pattern{Color: led.Blue, OnMs: 100, OffMs: 100}
)

const breatheIntervalMs = 1500

// breatheCount grades the idle breathe by the lowest cell.
func breatheCount(minMilliV uint16) uint8 {
	switch {
	case minMilliV < 3300:
		return 1
	case minMilliV < 3660:
		return 2
	default:
		return 3
	}
}
