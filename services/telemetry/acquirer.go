// Package telemetry samples the pack: cell voltages through the AFE analog
// output, AFE die temperature, the external thermistor, discharge current
// and the detect line.
package telemetry

import (
	"errors"
	"time"

	"bmscode-go/drivers/isl94208"
	"bmscode-go/types"
)

// Channel selects an MCU ADC input.
type Channel uint8

const (
	ChanAFEOut Channel = iota
	ChanDischargeSense
	ChanDetect
	ChanThermistor
)

// ADC is the MCU converter. Read returns a 10-bit result.
type ADC interface {
	Read(ch Channel) uint16
	// ZeroHold drains the sample-and-hold capacitor before a channel switch.
	ZeroHold()
}

// AFE is the part of the front-end driver used to steer its analog output.
type AFE interface {
	SetBits(f isl94208.Field, v uint8) error
}

type Config struct {
	Window        int
	CellScale     uint16 // the AFE halves cell voltages on its output
	VRefMilliV    uint32
	ShuntMilliOhm uint32
	// Analog output settle time after a mux change.
	Settle time.Duration
	// Internal temperature transfer: RefMilliV at RefC.
	IntTempRefMilliV int16
	IntTempRefC      int16
	ChargerMilliV    uint16
	TriggerMilliV    uint16
	Delay            func(time.Duration)
}

func DefaultConfig() Config {
	return Config{
		Window:           4,
		CellScale:        2,
		VRefMilliV:       2500,
		ShuntMilliOhm:    2,
		Settle:           100 * time.Microsecond,
		IntTempRefMilliV: 1310,
		IntTempRefC:      25,
		ChargerMilliV:    1500,
		TriggerMilliV:    400,
	}
}

func (c Config) Validate() error {
	if c.Window < 1 || c.Window > MaxWindow {
		return errors.New("Window must be within 1..8")
	}
	if c.VRefMilliV == 0 || c.ShuntMilliOhm == 0 || c.CellScale == 0 {
		return errors.New("VRefMilliV, ShuntMilliOhm and CellScale must be set")
	}
	if c.TriggerMilliV >= c.ChargerMilliV {
		return errors.New("TriggerMilliV must be below ChargerMilliV")
	}
	return nil
}

// Acquirer produces telemetry snapshots.
type Acquirer struct {
	cfg     Config
	afe     AFE
	adc     ADC
	ext     TempSource
	history *VoltageHistory
	delay   func(time.Duration)
}

// New builds an Acquirer. A nil ext reads the thermistor on ChanThermistor.
func New(afe AFE, adc ADC, ext TempSource, cfg Config) *Acquirer {
	if ext == nil {
		ext = NewThermistor(adc, cfg.VRefMilliV)
	}
	delay := cfg.Delay
	if delay == nil {
		delay = time.Sleep
	}
	return &Acquirer{
		cfg:     cfg,
		afe:     afe,
		adc:     adc,
		ext:     ext,
		history: NewVoltageHistory(cfg.Window),
		delay:   delay,
	}
}

// AnalogOut routes sel to the AFE analog output, samples it, and turns
// the output off again.
func (a *Acquirer) AnalogOut(sel isl94208.AnalogOut) (uint16, error) {
	a.adc.ZeroHold()
	if err := a.afe.SetBits(isl94208.AnalogOutSelect, uint8(sel)); err != nil {
		return 0, err
	}
	a.delay(a.cfg.Settle)
	raw := a.adc.Read(ChanAFEOut)
	if err := a.afe.SetBits(isl94208.AnalogOutSelect, uint8(isl94208.AnalogOff)); err != nil {
		return 0, err
	}
	return AFEOutMilliV(raw, a.cfg.VRefMilliV), nil
}

// ReadCells samples every cell and folds the result into the rolling
// average. A failed sample leaves the history untouched.
func (a *Acquirer) ReadCells() ([types.NumCells]uint16, error) {
	var s [types.NumCells]uint16
	for i := range s {
		mv, err := a.AnalogOut(isl94208.CellChannel(i + 1))
		if err != nil {
			return a.history.Average(), err
		}
		s[i] = mv * a.cfg.CellScale
	}
	return a.history.Push(s), nil
}

func (a *Acquirer) InternalTempC() (int16, error) {
	mv, err := a.AnalogOut(isl94208.AnalogIntTemp)
	if err != nil {
		return 0, err
	}
	return InternalTempC(mv, a.cfg.IntTempRefMilliV, a.cfg.IntTempRefC), nil
}

func (a *Acquirer) ExternalTempC() (int16, error) { return a.ext.TempC() }

func (a *Acquirer) DischargeMilliA() uint16 {
	a.adc.ZeroHold()
	return ShuntMilliA(a.adc.Read(ChanDischargeSense), a.cfg.VRefMilliV, a.cfg.ShuntMilliOhm)
}

func (a *Acquirer) Detect() types.Detect {
	a.adc.ZeroHold()
	mv := ADCMilliV(a.adc.Read(ChanDetect), a.cfg.VRefMilliV)
	return Classify(mv, a.cfg.ChargerMilliV, a.cfg.TriggerMilliV)
}

// Sample takes a full snapshot. On error the returned snapshot must not be
// used; the caller keeps its previous one.
func (a *Acquirer) Sample() (types.Telemetry, error) {
	var t types.Telemetry
	cells, err := a.ReadCells()
	if err != nil {
		return t, err
	}
	t.CellMilliV = cells
	t.Stats = CalcCellStats(cells)
	if t.InternalTempC, err = a.InternalTempC(); err != nil {
		return t, err
	}
	if t.ExternalTempC, err = a.ExternalTempC(); err != nil {
		return t, err
	}
	t.DischargeMilliA = a.DischargeMilliA()
	return t, nil
}
