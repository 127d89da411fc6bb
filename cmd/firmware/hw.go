//go:build rp2040

package main

import (
	"machine"

	"bmscode-go/services/eventlog"
	"bmscode-go/services/led"
	"bmscode-go/services/telemetry"
)

// ---------------- ADC ----------------

type adcBank struct {
	ch [4]machine.ADC
}

func newADCBank() *adcBank {
	machine.InitADC()
	b := &adcBank{}
	for i, p := range [...]machine.Pin{pinAFEOut, pinDischargeSense, pinDetect, pinThermistor} {
		b.ch[i] = machine.ADC{Pin: p}
		b.ch[i].Configure(machine.ADCConfig{})
	}
	return b
}

// Read returns a 10-bit result; machine.ADC scales to 16 bits.
func (b *adcBank) Read(ch telemetry.Channel) uint16 {
	if int(ch) >= len(b.ch) {
		return 0
	}
	return b.ch[ch].Get() >> 6
}

// ZeroHold takes a throwaway conversion on the shunt input, which idles near 0 V.
func (b *adcBank) ZeroHold() { _ = b.ch[telemetry.ChanDischargeSense].Get() }

// ---------------- I2C lines ----------------

// i2cLines hands the AFE bus pins between the I2C block and GPIO for
// bus recovery.
type i2cLines struct {
	bus     *machine.I2C
	cfg     machine.I2CConfig
	enabled bool
}

func newI2CLines(bus *machine.I2C) *i2cLines {
	l := &i2cLines{
		bus: bus,
		cfg: machine.I2CConfig{SDA: pinAFESDA, SCL: pinAFESCL, Frequency: afeI2CHz},
	}
	l.Restore(true)
	return l
}

func (l *i2cLines) PeripheralEnabled() bool { return l.enabled }

func (l *i2cLines) Detach() {
	pinAFESDA.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	pinAFESCL.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
}

func (l *i2cLines) Restore(enable bool) {
	if !enable {
		l.Detach()
		l.enabled = false
		return
	}
	pinAFESDA.Configure(machine.PinConfig{Mode: machine.PinI2C})
	pinAFESCL.Configure(machine.PinConfig{Mode: machine.PinI2C})
	l.enabled = l.bus.Configure(l.cfg) == nil
}

func (l *i2cLines) DriveSCL(low bool) {
	if !low {
		pinAFESCL.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		return
	}
	pinAFESCL.Configure(machine.PinConfig{Mode: machine.PinOutput})
	pinAFESCL.Low()
}

func (l *i2cLines) Released() bool { return pinAFESDA.Get() && pinAFESCL.Get() }

// ---------------- LED ----------------

type pwmCtrl interface {
	Configure(cfg machine.PWMConfig) error
	Top() uint32
	Set(channel uint8, value uint32)
	Channel(pin machine.Pin) (uint8, error)
}

func pwmBySlice(slice uint8) pwmCtrl {
	switch slice {
	case 0:
		return machine.PWM0
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	default:
		return machine.PWM7
	}
}

type pwmChannel struct {
	ctrl pwmCtrl
	ch   uint8
}

// rgbLED drives the common-cathode status LED, one PWM channel per color.
type rgbLED struct {
	r, g, b pwmChannel
}

func newRGBLED() (*rgbLED, error) {
	period := uint64(1e9 / ledPWMHz)
	var out rgbLED
	for _, c := range []struct {
		pin machine.Pin
		dst *pwmChannel
	}{{pinLEDRed, &out.r}, {pinLEDGreen, &out.g}, {pinLEDBlue, &out.b}} {
		slice, err := machine.PWMPeripheral(c.pin)
		if err != nil {
			return nil, err
		}
		ctrl := pwmBySlice(slice)
		if err := ctrl.Configure(machine.PWMConfig{Period: period}); err != nil {
			return nil, err
		}
		ch, err := ctrl.Channel(c.pin)
		if err != nil {
			return nil, err
		}
		*c.dst = pwmChannel{ctrl: ctrl, ch: ch}
	}
	return &out, nil
}

func (p pwmChannel) set(duty uint16) {
	p.ctrl.Set(p.ch, uint32(duty)*p.ctrl.Top()/led.MaxDuty)
}

func (l *rgbLED) Set(c led.Color, duty uint16) {
	level := func(bit led.Color) uint16 {
		if c&bit != 0 {
			return duty
		}
		return 0
	}
	l.r.set(level(led.Red))
	l.g.set(level(led.Green))
	l.b.set(level(led.Blue))
}

// ---------------- Watchdog / reset ----------------

type watchdog struct{}

func startWatchdog() watchdog {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: watchdogTimeoutMs})
	machine.Watchdog.Start()
	return watchdog{}
}

func (watchdog) Update() { machine.Watchdog.Update() }

// system resets the controller by starving the watchdog.
type system struct{}

func (system) Reset() {
	println("[main] restarting")
	for {
	}
}

// ---------------- Storage ----------------

// flashStore keeps the event log image in a RAM shadow. Stores only touch
// the shadow; Flush writes the block back once per log operation.
type flashStore struct {
	shadow eventlog.Memory
	dirty  bool
}

func openFlashStore() (*flashStore, error) {
	s := &flashStore{}
	if _, err := machine.Flash.ReadAt(s.shadow[:], storageOffset); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *flashStore) Load(addr uint8) (uint8, error) { return s.shadow.Load(addr) }

func (s *flashStore) Store(addr uint8, v uint8) error {
	if cur, _ := s.shadow.Load(addr); cur != v {
		_ = s.shadow.Store(addr, v)
		s.dirty = true
	}
	return nil
}

func (s *flashStore) Flush() error {
	if !s.dirty {
		return nil
	}
	if err := machine.Flash.EraseBlocks(storageOffset/machine.Flash.EraseBlockSize(), 1); err != nil {
		return err
	}
	if _, err := machine.Flash.WriteAt(s.shadow[:], storageOffset); err != nil {
		return err
	}
	s.dirty = false
	return nil
}
