// Package supervisor runs the pack's cooperative control loop: one pass
// per call to Tick acquires telemetry, checks the AFE link, dispatches
// the operating-state handler and advances the timeout counters.
package supervisor

import (
	"context"

	"bmscode-go/drivers/isl94208"
	"bmscode-go/errcode"
	"bmscode-go/services/eventlog"
	"bmscode-go/services/fault"
	"bmscode-go/services/led"
	"bmscode-go/services/telemetry"
	"bmscode-go/types"
	"bmscode-go/x/timex"
)

// AFE is the front-end driver surface the supervisor uses.
type AFE interface {
	Sleep() error
	Refresh(regs ...isl94208.Register) error
	WriteRegister(reg isl94208.Register, v uint8) error
	SetBits(f isl94208.Field, v uint8) error
	GetBitsCached(f isl94208.Field) uint8
	Cached(reg isl94208.Register) uint8
	Err() error
}

// BusRecoverer clears a stuck bus. A successful Clear is expected to
// re-initialise the AFE and clear its latched error.
type BusRecoverer interface {
	Clear() error
}

type Sensors interface {
	Sample() (types.Telemetry, error)
	Detect() types.Detect
}

type Indicator interface {
	Advance()
	Busy() bool
	Cycles() *timex.Counter
	Pattern(p led.Pattern)
	Solid(c led.Color)
	Breathe(c led.Color, count uint8, intervalMs uint16)
	Reset()
	CellDelta(deltaMilliV uint16) bool
	CellVoltage(minMilliV uint16) bool
}

type Watchdog interface {
	Update()
}

// System restarts the controller.
type System interface {
	Reset()
}

// Deps are the components the supervisor drives. Report may be nil.
type Deps struct {
	AFE      AFE
	Bus      BusRecoverer
	Sensors  Sensors
	LED      Indicator
	Storage  eventlog.EEPROM
	Watchdog Watchdog
	System   System
	Timebase timex.Timebase
	Report   func(telemetry.Frame)
}

type idleState struct {
	prevCharger   bool
	showCellDelta bool
}

type outputState struct {
	startupStep     int
	runOnce         bool
	clearForVoltage bool
}

type errorState struct {
	logged               bool
	fullDischargeTrigger bool
	criticalComm         bool
}

// Supervisor owns all control-loop state. It is not safe for concurrent use.
type Supervisor struct {
	cfg  Config
	deps Deps

	state   types.State
	detect  types.Detect
	history DetectHistory
	tel     types.Telemetry
	faults  *fault.Engine

	fullDischarge  bool
	chargeComplete bool
	commErrors     uint8

	chargeWait    timex.Counter
	chargeElapsed timex.Counter
	sleepTimer    timex.Counter
	errorExit     timex.Counter
	runtime       timex.Counter
	counters      timex.Set

	idle   idleState
	output outputState
	errs   errorState

	ticks uint32
}

func New(deps Deps, cfg Config) *Supervisor {
	s := &Supervisor{
		cfg:    cfg,
		deps:   deps,
		state:  types.StateInit,
		faults: fault.NewEngine(cfg.Limits),
		idle:   idleState{showCellDelta: true},
		output: outputState{clearForVoltage: true},
	}
	s.counters = timex.Set{&s.chargeWait, &s.chargeElapsed, &s.sleepTimer, &s.errorExit, &s.runtime}
	return s
}

func (s *Supervisor) State() types.State         { return s.state }
func (s *Supervisor) Detect() types.Detect       { return s.detect }
func (s *Supervisor) History() DetectHistory     { return s.history }
func (s *Supervisor) Telemetry() types.Telemetry { return s.tel }
func (s *Supervisor) Past() fault.Reason         { return s.faults.Past }
func (s *Supervisor) Current() fault.Reason      { return s.faults.Current }
func (s *Supervisor) FullDischarge() bool        { return s.fullDischarge }
func (s *Supervisor) ChargeComplete() bool       { return s.chargeComplete }
func (s *Supervisor) CommErrors() uint8          { return s.commErrors }
func (s *Supervisor) Runtime() uint32            { return s.runtime.Value }
func (s *Supervisor) Ticks() uint32              { return s.ticks }

// Run ticks until ctx is cancelled or the controller must restart.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := s.Tick(); err != nil {
			return err
		}
	}
}

// Tick runs one control-loop pass. It returns a DeviceReset error once
// the terminal fault handler has requested a restart.
func (s *Supervisor) Tick() error {
	d := s.deps
	d.Watchdog.Update()
	prev := s.state
	defer func() {
		if s.state != prev {
			println("[bms] state", prev.String(), "->", s.state.String())
		}
	}()

	if s.state == types.StateInit {
		s.bringUp()
		return nil
	}
	s.ticks++

	_ = d.AFE.Refresh(isl94208.RegAnalogOut, isl94208.RegFeatureSet)
	brownOut := s.checkBrownOut()

	if t, err := d.Sensors.Sample(); err == nil {
		s.tel = t
	}
	s.history.Record(s.detect)
	s.detect = d.Sensors.Detect()

	_ = d.AFE.Refresh(isl94208.RegConfig, isl94208.RegStatus, isl94208.RegFETControl,
		isl94208.RegAnalogOut, isl94208.RegFeatureSet)
	if !brownOut {
		brownOut = s.checkBrownOut()
	}

	if !brownOut {
		if err := d.AFE.Err(); err != nil {
			s.commErrors++
			println("[bms] afe transport error", s.commErrors, ":", err.Error())
			s.recoverBus()
			if s.commErrors < s.cfg.CriticalCommErrors {
				return nil
			}
			s.state = types.StateError
		} else {
			s.commErrors = 0
		}
	}

	if err := s.dispatch(); err != nil {
		return err
	}

	if d.Timebase.Overflowed() {
		s.counters.Advance()
		d.LED.Advance()
	}
	s.report()
	return nil
}

func (s *Supervisor) dispatch() error {
	switch s.state {
	case types.StateInit:
		s.bringUp()
	case types.StateSleep:
		s.sleep()
	case types.StateIdle:
		s.idleTick()
	case types.StateCharging:
		s.charging()
	case types.StateChargingWait:
		s.chargingWait()
	case types.StateCellBalance:
		s.state = types.StateIdle
	case types.StateOutputEnabled:
		s.outputEnabled()
	case types.StateError:
		return s.errorTick()
	}
	return nil
}

// checkBrownOut forces Error when the AFE has lost its init flags.
func (s *Supervisor) checkBrownOut() bool {
	if !s.afeFlags().BrownedOut() {
		return false
	}
	println("[bms] afe brown-out")
	s.recoverBus()
	s.faults.Latch(s.inputs())
	s.faults.Past = s.faults.Past.With(fault.BrownOut, true)
	s.state = types.StateError
	return true
}

func (s *Supervisor) recoverBus() {
	if err := s.deps.Bus.Clear(); err != nil {
		println("[bms] bus recovery:", err.Error())
	}
}

func (s *Supervisor) bringUp() {
	for i := 0; i < s.cfg.BringUpAttempts; i++ {
		err := s.deps.Bus.Clear()
		if err == nil {
			break
		}
		println("[bms] bring-up bus recovery:", err.Error())
	}
	if rt, err := eventlog.LoadRuntime(s.deps.Storage); err != nil {
		println("[bms] runtime load:", err.Error())
	} else {
		s.runtime.Value = rt
	}
	s.state = types.StateIdle
}

func (s *Supervisor) afeFlags() fault.AFEFlags {
	a := s.deps.AFE
	bit := func(f isl94208.Field) bool { return a.GetBitsCached(f) != 0 }
	return fault.AFEFlags{
		Status:        a.Cached(isl94208.RegStatus),
		IntOverTemp:   bit(isl94208.IntOverTemp),
		ExtOverTemp:   bit(isl94208.ExtOverTemp),
		OverCurCharge: bit(isl94208.OverCurrentCharge),
		OverCurDisch:  bit(isl94208.OverCurrentDischarge),
		ShortCircuit:  bit(isl94208.ShortCircuit),
		UserFlag0:     bit(isl94208.UserFlag0),
		UserFlag1:     bit(isl94208.UserFlag1),
		WakePolarity:  bit(isl94208.WakePolarity),
	}
}

func (s *Supervisor) inputs() fault.Inputs {
	return fault.Inputs{Telemetry: s.tel, AFE: s.afeFlags(), Detect: s.detect, State: s.state}
}

func (s *Supervisor) safe() bool         { return s.faults.SafetyChecks(s.inputs()) }
func (s *Supervisor) chargeTempOK() bool { return s.faults.ChargeTempCheck(s.inputs()) }
func (s *Supervisor) wake() bool         { return s.deps.AFE.GetBitsCached(isl94208.WakeStatus) != 0 }
func (s *Supervisor) minCellOK() bool    { return s.tel.Stats.MinMilliV > s.cfg.MinCellMilliV }
func (s *Supervisor) maxCellOK() bool    { return s.tel.Stats.MaxMilliV < s.cfg.MaxCellMilliV }

func (s *Supervisor) fetOn(f isl94208.Field) bool { return s.deps.AFE.GetBitsCached(f) != 0 }

func (s *Supervisor) setFET(f isl94208.Field, on bool) {
	var v uint8
	if on {
		v = 1
	}
	if err := s.deps.AFE.SetBits(f, v); err != nil {
		println("[bms] fet write:", err.Error())
	}
}

func (s *Supervisor) storeRuntime() {
	if err := eventlog.StoreRuntime(s.deps.Storage, eventlog.RuntimeAddr, s.runtime.Value); err != nil {
		println("[bms] runtime store:", err.Error())
	}
}

func (s *Supervisor) report() {
	if s.deps.Report == nil {
		return
	}
	fets := isl94208.DischargeFET.Mask() | isl94208.ChargeFET.Mask()
	s.deps.Report(telemetry.Frame{
		Tick:      s.ticks,
		State:     s.state,
		Detect:    s.detect,
		Telemetry: s.tel,
		Past:      uint16(s.faults.Past),
		Current:   uint16(s.faults.Current),
		FETs:      s.deps.AFE.Cached(isl94208.RegFETControl) & fets,
		Runtime:   s.runtime.Value,
		CommErrs:  s.commErrors,
	})
}

// errDeviceReset is returned once the terminal handler has asked the
// system to restart.
var errDeviceReset = &errcode.E{C: errcode.DeviceReset, Op: "supervisor.Tick", Msg: "terminal fault"}
