//go:build rp2040

// Command firmware is the pack controller image for the RP2040.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"bmscode-go/drivers/busclear"
	"bmscode-go/drivers/isl94208"
	"bmscode-go/services/led"
	"bmscode-go/services/supervisor"
	"bmscode-go/services/telemetry"
	"bmscode-go/x/timex"
)

func main() {
	wd := startWatchdog()
	println("[main] boot")

	lines := newI2CLines(machine.I2C0)
	afe := isl94208.New(machine.I2C0, isl94208.DefaultConfig())

	bcCfg := busclear.DefaultConfig()
	bcCfg.Watchdog = wd
	bcCfg.Reinit = afe.Init
	bcCfg.ClearErrors = afe.ClearErr
	recoverer := busclear.New(lines, bcCfg)

	sensors := telemetry.New(afe, newADCBank(), nil, telemetry.DefaultConfig())

	rgb, err := newRGBLED()
	if err != nil {
		println("[main] led:", err.Error())
	}
	var out led.Output = rgb
	if rgb == nil {
		out = nopLED{}
	}
	indicator := led.New(out, uint32(timex.DefaultTick/time.Millisecond))

	store, err := openFlashStore()
	if err != nil {
		println("[main] storage:", err.Error())
		system{}.Reset()
	}

	uart := uartx.UART0
	if err := uart.Configure(uartx.UARTConfig{
		BaudRate: telemetryBaud,
		TX:       pinTelemetryTX,
		RX:       pinTelemetryRX,
	}); err != nil {
		println("[main] uart:", err.Error())
	}
	report := func(f telemetry.Frame) {
		if err := telemetry.WriteFrame(uart, f); err != nil {
			println("[main] frame:", err.Error())
		}
	}

	cfg := supervisor.DefaultConfig()
	if err := cfg.Validate(); err != nil {
		println("[main] config:", err.Error())
		system{}.Reset()
	}
	s := supervisor.New(supervisor.Deps{
		AFE:      afe,
		Bus:      recoverer,
		Sensors:  sensors,
		LED:      indicator,
		Storage:  store,
		Watchdog: wd,
		System:   system{},
		Timebase: timex.NewPoller(timex.DefaultTick),
		Report:   report,
	}, cfg)

	err = s.Run(context.Background())
	println("[main] supervisor stopped:", err.Error())
	system{}.Reset()
}

type nopLED struct{}

func (nopLED) Set(led.Color, uint16) {}
