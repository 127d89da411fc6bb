// Package sim models a pack on the bench: the AFE register file on a
// fake I2C bus, the analog front end seen by the MCU ADC, and recorders
// for the LED, watchdog and reset line. The real drivers and services are
// wired on top so the control loop can run without hardware.
package sim

import (
	"errors"

	"tinygo.org/x/drivers"

	"bmscode-go/drivers/busclear"
	"bmscode-go/drivers/isl94208"
	"bmscode-go/types"
)

var (
	_ drivers.I2C    = (*AFE)(nil)
	_ busclear.Lines = (*AFE)(nil)
)

var errNack = errors.New("sim: nack")

const numRegisters = 8

// AFE is the register-level front end. It also owns the bus lines, since
// a wedged AFE is what holds SDA low.
type AFE struct {
	env  *Env
	regs [numRegisters]uint8

	// FailTx fails the next n transactions.
	FailTx int
	// StuckSamples holds the bus low for the next n line samples.
	StuckSamples int
	// BrownOutAt drops the volatile configuration just before the nth
	// following transaction.
	BrownOutAt int

	detached bool
	sleepSeq uint8

	Transactions int
	Pulses       int
	Sleeps       int
	PORs         int
}

func newAFE(env *Env) *AFE { return &AFE{env: env} }

func (a *AFE) Tx(addr uint16, w, r []byte) error {
	a.Transactions++
	if a.BrownOutAt > 0 {
		if a.BrownOutAt--; a.BrownOutAt == 0 {
			a.BrownOut()
		}
	}
	if a.FailTx > 0 {
		a.FailTx--
		return errNack
	}
	if addr != isl94208.AddressDefault || a.detached || len(w) == 0 || w[0] >= numRegisters {
		return errNack
	}
	reg := isl94208.Register(w[0])
	switch {
	case len(w) == 1 && len(r) == 1:
		r[0] = a.read(reg)
	case len(w) == 2 && len(r) == 0:
		a.write(reg, w[1])
	default:
		return errNack
	}
	return nil
}

func (a *AFE) read(reg isl94208.Register) uint8 {
	v := a.regs[reg]
	if reg == isl94208.RegConfig {
		m := isl94208.WakeStatus.Mask()
		v &^= m
		if a.env.Detect != types.DetectNone {
			v |= m
		}
	}
	return v
}

func (a *AFE) write(reg isl94208.Register, v uint8) {
	switch reg {
	case isl94208.RegFeatureSet:
		if v&isl94208.ForcePOR.Mask() != 0 {
			a.PORs++
			a.regs = [numRegisters]uint8{}
			a.sleepSeq = 0
			return
		}
	case isl94208.RegFETControl:
		bit := (v & isl94208.SleepCtl.Mask()) >> isl94208.SleepCtl.Offset
		a.sleepSeq = a.sleepSeq<<1 | bit
		if a.sleepSeq&0b111 == 0b101 {
			a.Sleeps++
		}
	}
	a.regs[reg] = v
}

// Register returns the raw register value.
func (a *AFE) Register(reg isl94208.Register) uint8 { return a.regs[reg] }

// SetStatus latches protection flags in the status register.
func (a *AFE) SetStatus(f ...isl94208.Field) {
	for _, x := range f {
		a.regs[isl94208.RegStatus] |= x.Mask()
	}
}

func (a *AFE) ClearStatus() { a.regs[isl94208.RegStatus] = 0 }

// BrownOut drops the volatile configuration as a supply dip would.
func (a *AFE) BrownOut() {
	a.regs[isl94208.RegAnalogOut] = 0
	a.regs[isl94208.RegFeatureSet] = 0
	a.regs[isl94208.RegFETControl] = 0
}

func (a *AFE) analogSelect() isl94208.AnalogOut {
	f := isl94208.AnalogOutSelect
	return isl94208.AnalogOut((a.regs[f.Reg] & f.Mask()) >> f.Offset)
}

func (a *AFE) PeripheralEnabled() bool { return !a.detached }
func (a *AFE) Detach()                 { a.detached = true }
func (a *AFE) Restore(enable bool)     { a.detached = !enable }

func (a *AFE) DriveSCL(low bool) {
	if low {
		a.Pulses++
	}
}

func (a *AFE) Released() bool {
	if a.StuckSamples > 0 {
		a.StuckSamples--
		return false
	}
	return true
}
