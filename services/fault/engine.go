// Package fault evaluates telemetry and AFE status against the pack's
// protection limits and keeps the reason masks explaining a fault episode.
package fault

import "bmscode-go/types"

// AFEFlags is the subset of AFE register state the engine consumes.
type AFEFlags struct {
	Status        uint8 // raw status register; any set bit fails the safety check
	IntOverTemp   bool
	ExtOverTemp   bool
	OverCurCharge bool
	OverCurDisch  bool
	ShortCircuit  bool
	UserFlag0     bool
	UserFlag1     bool
	WakePolarity  bool
}

// BrownedOut reports that the flags set at AFE init have been lost.
func (f AFEFlags) BrownedOut() bool { return !(f.UserFlag0 && f.UserFlag1 && f.WakePolarity) }

// Inputs is one tick's view of the pack.
type Inputs struct {
	Telemetry types.Telemetry
	AFE       AFEFlags
	Detect    types.Detect
	State     types.State
}

// Engine owns the current and past reason masks. Past is latched when a
// fault is first declared and held until the episode ends; Current is
// recomputed every tick spent in Error.
type Engine struct {
	Limits  Limits
	Current Reason
	Past    Reason
}

func NewEngine(l Limits) *Engine { return &Engine{Limits: l} }

// SafetyChecks reports whether discharge-side conditions pass. On failure
// outside Error the past mask is latched.
func (e *Engine) SafetyChecks(in Inputs) bool {
	l := e.Limits
	t := in.Telemetry
	ok := t.InternalTempC < l.MaxDischargeTempC &&
		t.ExternalTempC < l.MaxDischargeTempC &&
		t.InternalTempC > l.MinTempC &&
		t.ExternalTempC > l.MinTempC &&
		in.AFE.Status == 0 &&
		t.DischargeMilliA < l.MaxDischargeMilliA
	if !ok && in.State != types.StateError {
		e.Latch(in)
	}
	return ok
}

// ChargeTempCheck reports whether temperatures allow charging.
func (e *Engine) ChargeTempCheck(in Inputs) bool {
	l := e.Limits
	t := in.Telemetry
	ok := t.InternalTempC < l.MaxChargeTempC &&
		t.ExternalTempC < l.MaxChargeTempC &&
		t.InternalTempC > l.MinTempC &&
		t.ExternalTempC > l.MinTempC
	if !ok && in.State != types.StateError {
		e.Latch(in)
	}
	return ok
}

// Latch overwrites the past mask with a fresh evaluation.
func (e *Engine) Latch(in Inputs) { e.Past = e.Evaluate(in) }

// Refresh recomputes the current mask.
func (e *Engine) Refresh(in Inputs) { e.Current = e.Evaluate(in) }

// Reset clears both masks at the end of an episode.
func (e *Engine) Reset() {
	e.Current = 0
	e.Past = 0
}

// Evaluate computes the reason mask for in. While in Error with a latched
// temperature fault it also asserts TempHysteresis for any temperature
// that is on the safe side of a limit by less than the margin.
func (e *Engine) Evaluate(in Inputs) Reason {
	l := e.Limits
	t := in.Telemetry
	ti, te := t.InternalTempC, t.ExternalTempC
	charging := in.State == types.StateCharging

	var r Reason
	r = r.With(IntOverTempAFE, in.AFE.IntOverTemp)
	r = r.With(ExtOverTempAFE, in.AFE.ExtOverTemp)
	r = r.With(IntOverTemp, ti >= l.MaxDischargeTempC)
	r = r.With(ThermistorOverTemp, te >= l.MaxDischargeTempC)
	r = r.With(UnderTemp, ti <= l.MinTempC || te <= l.MinTempC)
	r = r.With(ChargeOverCurrent, in.AFE.OverCurCharge)
	r = r.With(DischargeOverCurrent, in.AFE.OverCurDisch)
	r = r.With(ShortCircuit, in.AFE.ShortCircuit)
	r = r.With(ShuntOverCurrent, t.DischargeMilliA >= l.MaxDischargeMilliA)
	r = r.With(ChargeIntOverTemp, charging && ti >= l.MaxChargeTempC)
	r = r.With(ChargeThermistorOverTemp, charging && te >= l.MaxChargeTempC)
	r = r.With(BrownOut, in.AFE.BrownedOut())
	r = r.WithDetect(in.Detect)

	if in.State != types.StateError || !e.Past.Has(Temperature) {
		return r
	}

	h := l.HysteresisC
	nearHigh := func(v, limit int16) bool { return v < limit && limit-v < h }
	nearLow := func(v, limit int16) bool { return v > limit && v-limit < h }
	wasCharger := e.Past.Detect() == types.DetectCharger

	hyst := nearHigh(ti, l.MaxDischargeTempC) || nearHigh(te, l.MaxDischargeTempC)
	if wasCharger {
		hyst = hyst || nearHigh(ti, l.MaxChargeTempC) || nearHigh(te, l.MaxChargeTempC)
		if te >= l.MaxChargeTempC {
			r |= ChargeThermistorOverTemp
		}
		if ti >= l.MaxChargeTempC {
			r |= ChargeIntOverTemp
		}
	}
	hyst = hyst || nearLow(ti, l.MinTempC) || nearLow(te, l.MinTempC)
	return r.With(TempHysteresis, hyst)
}
