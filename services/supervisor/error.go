package supervisor

import (
	"bmscode-go/drivers/isl94208"
	"bmscode-go/services/eventlog"
	"bmscode-go/services/fault"
	"bmscode-go/services/led"
	"bmscode-go/types"
)

func (s *Supervisor) errorTick() error {
	d := s.deps
	e := &s.errs
	if err := d.AFE.WriteRegister(isl94208.RegFETControl, 0); err != nil {
		println("[bms] fets off:", err.Error())
	}
	if s.runtime.Enabled {
		s.runtime.Stop()
		s.storeRuntime()
	}
	s.faults.Refresh(s.inputs())

	if s.detect == types.DetectTrigger && s.fullDischarge {
		e.fullDischargeTrigger = true
	}
	if s.commErrors >= s.cfg.CriticalCommErrors {
		e.criticalComm = true
	}
	// A discharged pack on the trigger is expected, not an event.
	if !e.logged && !e.fullDischargeTrigger {
		s.logEvent()
		e.logged = true
	}
	if e.criticalComm || s.faults.Past.Has(fault.BrownOut) {
		return s.terminal()
	}

	cycles := d.LED.Cycles()
	allClear := s.faults.Current.Clear() &&
		(s.detect == types.DetectNone || (e.fullDischargeTrigger && s.detect == types.DetectCharger)) &&
		s.tel.DischargeMilliA == 0
	if allClear {
		if !cycles.Enabled {
			cycles.Restart()
		}
		if !s.errorExit.Enabled {
			s.errorExit.Restart()
		} else if s.errorExit.Exceeds(s.cfg.ErrorExitTimeout) && cycles.Value >= s.cfg.FaultClearCycles {
			s.exitError()
			return nil
		}
	} else {
		s.errorExit.Stop()
		cycles.Stop()
	}

	d.LED.Pattern(faultPatterns[fault.SignalFor(s.faults.Past, e.fullDischargeTrigger)])

	switch {
	case s.detect == types.DetectCharger:
		s.sleepTimer.Stop()
	case !s.sleepTimer.Enabled:
		s.sleepTimer.Restart()
	case s.sleepTimer.Exceeds(s.cfg.ErrorSleepTimeout) && !d.LED.Busy():
		s.sleepTimer.Stop()
		s.state = types.StateSleep
	}
	return nil
}

func (s *Supervisor) exitError() {
	s.errorExit.Stop()
	s.sleepTimer.Stop()
	s.faults.Reset()
	s.deps.LED.Reset()
	s.errs = errorState{}
	s.fullDischarge = false
	s.state = types.StateIdle
}

func (s *Supervisor) logEvent() {
	ev := eventlog.Event{
		Reason:  s.faults.Past.With(fault.CriticalComm, s.errs.criticalComm),
		Runtime: s.runtime.Value,
	}
	addr, err := eventlog.Append(s.deps.Storage, ev)
	if err != nil {
		println("[bms] event log:", err.Error())
		return
	}
	println("[bms] fault", ev.Reason.String(), "logged at", addr)
}

// terminal signals an unrecoverable fault until the pack is disconnected
// and the code has been shown enough times, then restarts the controller.
func (s *Supervisor) terminal() error {
	d := s.deps
	l := d.LED
	l.Reset()
	for {
		d.Watchdog.Update()
		_ = d.AFE.WriteRegister(isl94208.RegFETControl, 0)
		_ = d.AFE.Refresh(isl94208.RegAnalogOut, isl94208.RegFeatureSet)
		if d.AFE.Err() != nil {
			s.recoverBus()
		}
		s.checkBrownOut()
		s.detect = d.Sensors.Detect()

		code := uint8(codeCriticalComm)
		if s.faults.Past.Has(fault.BrownOut) {
			code = codeBrownOut
		}
		l.Pattern(blinkCode(code, led.Red))

		cycles := l.Cycles()
		if s.detect == types.DetectNone {
			cycles.Enabled = true
		} else {
			cycles.Reset()
		}
		if cycles.Value >= s.cfg.FaultClearCycles {
			break
		}
		if d.Timebase.Overflowed() {
			l.Advance()
		}
	}
	println("[bms] terminal fault, restarting")
	d.System.Reset()
	return errDeviceReset
}
