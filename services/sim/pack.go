package sim

import (
	"time"

	"bmscode-go/drivers/busclear"
	"bmscode-go/drivers/isl94208"
	"bmscode-go/services/eventlog"
	"bmscode-go/services/led"
	"bmscode-go/services/telemetry"
	"bmscode-go/types"
	"bmscode-go/x/mathx"
	"bmscode-go/x/timex"
)

// Env is the physical state of the pack and whatever is plugged into it.
type Env struct {
	CellMilliV      [types.NumCells]uint16
	InternalTempC   int16
	ExternalTempC   int16
	DischargeMilliA uint16
	Detect          types.Detect
}

func DefaultEnv() Env {
	e := Env{InternalTempC: 25, ExternalTempC: 25}
	e.SetCells(3700)
	return e
}

func (e *Env) SetCells(mv uint16) {
	for i := range e.CellMilliV {
		e.CellMilliV[i] = mv
	}
}

// Detect-line voltages presented by a trigger and a charger.
const (
	TriggerMilliV = 900
	ChargerMilliV = 2000
)

const vrefMilliV = 2500

// afeCode quantises a voltage on the AFE analog output.
func afeCode(mv uint32) uint16 {
	return uint16(mathx.Min((mv*1024+vrefMilliV/2)/vrefMilliV, 1023))
}

// adcCode quantises a direct ADC input, rounding up so that the
// truncating conversion lands back on mv.
func adcCode(mv uint32) uint16 {
	return uint16(mathx.Min((mv*1024+vrefMilliV-1)/vrefMilliV, 1023))
}

// Analog is the MCU ADC view of the pack.
type Analog struct {
	env *Env
	afe *AFE

	Reads int
}

func (a *Analog) ZeroHold() {}

func (a *Analog) Read(ch telemetry.Channel) uint16 {
	a.Reads++
	e := a.env
	switch ch {
	case telemetry.ChanAFEOut:
		switch sel := a.afe.analogSelect(); {
		case sel >= isl94208.AnalogCell1 && sel <= isl94208.AnalogCell6:
			return afeCode(uint32(e.CellMilliV[sel-isl94208.AnalogCell1]) / 2)
		case sel == isl94208.AnalogIntTemp:
			mv := 1310 - (int32(e.InternalTempC)-25)*7/2
			return afeCode(uint32(mathx.Clamp(mv, 0, vrefMilliV)))
		case sel == isl94208.AnalogExtTemp:
			return afeCode(uint32(telemetry.ThermistorMilliV(e.ExternalTempC)))
		}
		return 0
	case telemetry.ChanDischargeSense:
		// 2 mΩ shunt: 2 µV per mA.
		return uint16(mathx.Min((uint32(e.DischargeMilliA)*2048+2499999)/2500000, 1023))
	case telemetry.ChanDetect:
		switch e.Detect {
		case types.DetectTrigger:
			return adcCode(TriggerMilliV)
		case types.DetectCharger:
			return adcCode(ChargerMilliV)
		}
		return 0
	case telemetry.ChanThermistor:
		return adcCode(uint32(telemetry.ThermistorMilliV(e.ExternalTempC)))
	}
	return 0
}

// LED records what the sequencer shows.
type LED struct {
	Color led.Color
	Duty  uint16
	// Flashes counts off-to-lit transitions per color.
	Flashes map[led.Color]int
}

func (l *LED) Set(c led.Color, duty uint16) {
	if c != led.Off && l.Color == led.Off {
		if l.Flashes == nil {
			l.Flashes = make(map[led.Color]int)
		}
		l.Flashes[c]++
	}
	l.Color, l.Duty = c, duty
}

type Watchdog struct{ Updates int }

func (w *Watchdog) Update() { w.Updates++ }

// System counts requested restarts.
type System struct{ Resets int }

func (s *System) Reset() { s.Resets++ }

// Clock is a timebase that overflows on every poll, so one control-loop
// pass equals one tick.
type Clock struct{}

func (Clock) Overflowed() bool { return true }

// Banner written to freshly formatted storage.
const Banner = "bmscode sim"

// Pack is a simulated pack with the real components wired on top.
type Pack struct {
	Env Env

	Bus      *AFE
	Analog   *Analog
	Light    *LED
	Watchdog *Watchdog
	System   *System
	Storage  *eventlog.Memory
	Clock    Clock

	AFE       *isl94208.Device
	Recoverer *busclear.Recoverer
	Sensors   *telemetry.Acquirer
	Indicator *led.Sequencer
}

// New wires a pack in env with formatted storage and no delays.
func New(env Env) *Pack {
	p := &Pack{
		Env:      env,
		Light:    &LED{},
		Watchdog: &Watchdog{},
		System:   &System{},
		Storage:  eventlog.NewMemory(),
	}
	noDelay := func(time.Duration) {}

	p.Bus = newAFE(&p.Env)
	p.Analog = &Analog{env: &p.Env, afe: p.Bus}

	afeCfg := isl94208.DefaultConfig()
	afeCfg.Delay = noDelay
	p.AFE = isl94208.New(p.Bus, afeCfg)

	bcCfg := busclear.DefaultConfig()
	bcCfg.Delay = noDelay
	bcCfg.Watchdog = p.Watchdog
	bcCfg.Reinit = p.AFE.Init
	bcCfg.ClearErrors = p.AFE.ClearErr
	p.Recoverer = busclear.New(p.Bus, bcCfg)

	telCfg := telemetry.DefaultConfig()
	telCfg.Delay = noDelay
	p.Sensors = telemetry.New(p.AFE, p.Analog, nil, telCfg)

	p.Indicator = led.New(p.Light, uint32(timex.DefaultTick/time.Millisecond))

	_ = eventlog.Format(p.Storage, Banner)
	return p
}
