package supervisor

import (
	"bmscode-go/drivers/isl94208"
	"bmscode-go/services/led"
	"bmscode-go/types"
)

func (s *Supervisor) idleTick() {
	l := s.deps.LED
	wake := s.wake()
	stats := s.tel.Stats

	switch {
	case s.detect == types.DetectTrigger && s.minCellOK() && wake && !s.fullDischarge && s.safe():
		s.state = types.StateOutputEnabled
	case s.detect == types.DetectTrigger && s.fullDischarge:
		s.state = types.StateError
	case s.detect == types.DetectCharger && !s.chargeComplete && s.maxCellOK() && wake && s.safe():
		if !s.idle.showCellDelta || l.CellDelta(stats.DeltaMilliV) {
			s.state = types.StateCharging
		}
	case s.sleepCandidate(wake) && !s.sleepTimer.Enabled && s.safe():
		s.sleepTimer.Restart()
		s.idle.showCellDelta = true
	case !s.safe():
		s.state = types.StateError
	case s.detect == types.DetectCharger && !s.chargeComplete && !s.maxCellOK():
		s.chargeComplete = true
	case s.detect == types.DetectCharger && s.chargeComplete:
		l.Solid(led.Off)
	case s.detect == types.DetectCharger && wake:
		l.Solid(led.Yellow)
	case s.detect == types.DetectNone:
		if s.history.Contains(types.DetectCharger) {
			s.idle.prevCharger = true
		}
		// A charger just left: show the balance first.
		if !s.idle.prevCharger || l.CellDelta(stats.DeltaMilliV) {
			s.idle.prevCharger = false
			l.Breathe(led.Yellow, breatheCount(stats.MinMilliV), breatheIntervalMs)
			s.idle.showCellDelta = true
		}
	case s.detect == types.DetectTrigger && wake && !s.fullDischarge:
		l.Solid(led.Yellow)
	}

	if s.chargeComplete && stats.MaxMilliV < s.cfg.ChargeRearmMilliV {
		s.chargeComplete = false
		s.idle.showCellDelta = false
	}
	if s.detect != types.DetectCharger {
		s.chargeComplete = false
	}
	if !s.fullDischarge && !s.minCellOK() && s.detect != types.DetectCharger {
		s.fullDischarge = true
	}
	if s.sleepTimer.Exceeds(s.cfg.IdleSleepTimeout) {
		s.sleepTimer.Reset()
		s.state = types.StateSleep
	}
	if s.state != types.StateIdle {
		s.sleepTimer.Stop()
		l.Reset()
		s.idle = idleState{showCellDelta: true}
	}
}

// sleepCandidate reports whether idle conditions allow the sleep timer to
// start: nothing connected, or a charger on a completed charge.
func (s *Supervisor) sleepCandidate(wake bool) bool {
	if s.cfg.SleepAfterChargeComplete {
		return s.detect == types.DetectNone ||
			(s.detect == types.DetectCharger && s.chargeComplete)
	}
	return s.detect == types.DetectNone && !wake
}

func (s *Supervisor) charging() {
	l := s.deps.LED
	ok := s.detect == types.DetectCharger && s.maxCellOK() && s.wake() && s.safe() && s.chargeTempOK()
	on := s.fetOn(isl94208.ChargeFET)

	switch {
	case ok && !on:
		s.chargeElapsed.Restart()
		s.setFET(isl94208.ChargeFET, true)
		s.fullDischarge = false
		l.Reset()
		l.Solid(led.Blue)
	case ok:
		l.Solid(led.Blue)
	case !s.maxCellOK():
		s.setFET(isl94208.ChargeFET, false)
		s.chargeElapsed.Stop()
		// Hitting the limit this quickly means the pack was already full.
		if s.chargeElapsed.Value < s.cfg.ChargeCompleteTimeout {
			s.chargeComplete = true
			s.state = types.StateIdle
			l.Solid(led.Off)
		} else {
			s.state = types.StateChargingWait
		}
	case !s.safe() || !s.chargeTempOK():
		s.setFET(isl94208.ChargeFET, false)
		s.chargeElapsed.Stop()
		l.Solid(led.Yellow)
		s.state = types.StateError
	default:
		s.setFET(isl94208.ChargeFET, false)
		s.chargeElapsed.Stop()
		s.state = types.StateIdle
	}
	if s.state != types.StateCharging {
		l.Reset()
	}
}

// chargingWait rests the pack after a top-up so the cells can relax
// before charging resumes.
func (s *Supervisor) chargingWait() {
	if s.detect == types.DetectCharger {
		s.deps.LED.Solid(led.White)
	}
	if !s.chargeWait.Enabled {
		s.chargeWait.Restart()
	} else if s.chargeWait.Value >= s.cfg.ChargeWaitTimeout {
		s.chargeWait.Stop()
		s.state = types.StateCharging
	}
	if s.detect != types.DetectCharger {
		s.chargeWait.Stop()
		s.state = types.StateIdle
	}
	if !s.safe() {
		s.chargeWait.Stop()
		s.state = types.StateError
	}
}

func (s *Supervisor) outputEnabled() {
	l := s.deps.LED
	o := &s.output
	ok := s.detect == types.DetectTrigger && s.wake() && s.minCellOK() && s.safe()
	on := s.fetOn(isl94208.DischargeFET)

	switch {
	case ok && !on:
		s.setFET(isl94208.DischargeFET, true)
		o.startupStep = 0
		o.clearForVoltage = true
		o.runOnce = false
		l.Reset()
		s.runtime.Enabled = true
	case ok:
		o.clearForVoltage = true
		o.runOnce = false
		s.showOutputStatus()
	case !s.minCellOK():
		s.fullDischarge = true
		s.setFET(isl94208.DischargeFET, false)
		s.state = types.StateIdle
	case !s.safe():
		s.setFET(isl94208.DischargeFET, false)
		s.state = types.StateError
	case s.detect == types.DetectCharger:
		// Charger plugged straight in: show the firmware version.
		s.setFET(isl94208.DischargeFET, false)
		o.clearForVoltage = true
		if !o.runOnce {
			l.Reset()
			l.Cycles().Restart()
			o.runOnce = true
		}
		l.Pattern(blinkCode(s.cfg.FirmwareVersion, led.White))
		if l.Cycles().Value >= 1 {
			s.state = types.StateIdle
		}
	default:
		// Trigger released: report the remaining charge.
		s.setFET(isl94208.DischargeFET, false)
		o.runOnce = false
		if o.clearForVoltage {
			l.Reset()
			o.clearForVoltage = false
		}
		if l.CellVoltage(s.tel.Stats.MinMilliV) {
			s.state = types.StateIdle
		}
	}

	if s.state != types.StateOutputEnabled {
		s.runtime.Stop()
		s.storeRuntime()
		s.output = outputState{clearForVoltage: true}
		l.Reset()
	}
}

func (s *Supervisor) showOutputStatus() {
	l := s.deps.LED
	o := &s.output
	if o.startupStep < len(startupPatterns) {
		l.Cycles().Enabled = true
		l.Pattern(startupPatterns[o.startupStep])
		if l.Cycles().Value >= 1 {
			o.startupStep++
			l.Reset()
		}
		return
	}
	switch {
	case s.tel.Stats.MinMilliV < s.cfg.LowCellWarnMilliV:
		l.Pattern(lowCellPattern)
	case s.tel.DischargeMilliA == 0:
		l.Pattern(noCurrentPattern)
	default:
		l.Solid(led.Blue)
	}
}

// sleep parks the AFE. On hardware the AFE cuts the controller's supply
// here; the remainder only runs when it does not.
func (s *Supervisor) sleep() {
	s.state = types.StateIdle
	if s.cfg.DisableSleep {
		return
	}
	s.deps.LED.Reset()
	if err := s.deps.AFE.Sleep(); err != nil {
		println("[bms] afe sleep:", err.Error())
	}
	s.recoverBus()
	s.faults.Reset()
	s.errs = errorState{}
}
