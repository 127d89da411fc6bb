package fault

import (
	"testing"

	"bmscode-go/types"
)

func healthyAFE() AFEFlags {
	return AFEFlags{UserFlag0: true, UserFlag1: true, WakePolarity: true}
}

func healthy() Inputs {
	return Inputs{
		Telemetry: types.Telemetry{InternalTempC: 25, ExternalTempC: 25, DischargeMilliA: 1000},
		AFE:       healthyAFE(),
		Detect:    types.DetectTrigger,
		State:     types.StateOutputEnabled,
	}
}

func TestSafetyChecksBoundaries(t *testing.T) {
	l := DefaultLimits()
	cases := []struct {
		name string
		mod  func(*Inputs)
		want bool
	}{
		{"healthy", func(*Inputs) {}, true},
		{"int temp just under max", func(in *Inputs) { in.Telemetry.InternalTempC = l.MaxDischargeTempC - 1 }, true},
		{"int temp at max", func(in *Inputs) { in.Telemetry.InternalTempC = l.MaxDischargeTempC }, false},
		{"ext temp just under max", func(in *Inputs) { in.Telemetry.ExternalTempC = l.MaxDischargeTempC - 1 }, true},
		{"ext temp at max", func(in *Inputs) { in.Telemetry.ExternalTempC = l.MaxDischargeTempC }, false},
		{"int temp just over min", func(in *Inputs) { in.Telemetry.InternalTempC = l.MinTempC + 1 }, true},
		{"int temp at min", func(in *Inputs) { in.Telemetry.InternalTempC = l.MinTempC }, false},
		{"ext temp just over min", func(in *Inputs) { in.Telemetry.ExternalTempC = l.MinTempC + 1 }, true},
		{"ext temp at min", func(in *Inputs) { in.Telemetry.ExternalTempC = l.MinTempC }, false},
		{"status bit set", func(in *Inputs) { in.AFE.Status = 0x01 }, false},
		{"current just under max", func(in *Inputs) { in.Telemetry.DischargeMilliA = l.MaxDischargeMilliA - 1 }, true},
		{"current at max", func(in *Inputs) { in.Telemetry.DischargeMilliA = l.MaxDischargeMilliA }, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := NewEngine(l)
			in := healthy()
			c.mod(&in)
			if got := e.SafetyChecks(in); got != c.want {
				t.Fatalf("SafetyChecks = %v, want %v", got, c.want)
			}
			if c.want && e.Past != 0 {
				t.Fatalf("passing check latched %s", e.Past)
			}
			if !c.want && e.Past == 0 && in.AFE.Status == 0 {
				t.Fatalf("failing check did not latch a reason")
			}
		})
	}
}

func TestChargeTempCheckBoundaries(t *testing.T) {
	l := DefaultLimits()
	cases := []struct {
		ti, te int16
		want   bool
	}{
		{25, 25, true},
		{l.MaxChargeTempC - 1, 25, true},
		{l.MaxChargeTempC, 25, false},
		{25, l.MaxChargeTempC, false},
		{l.MinTempC + 1, 25, true},
		{l.MinTempC, 25, false},
		{25, l.MinTempC, false},
	}
	for _, c := range cases {
		e := NewEngine(l)
		in := healthy()
		in.State = types.StateCharging
		in.Telemetry.InternalTempC, in.Telemetry.ExternalTempC = c.ti, c.te
		if got := e.ChargeTempCheck(in); got != c.want {
			t.Fatalf("ChargeTempCheck(%d,%d) = %v, want %v", c.ti, c.te, got, c.want)
		}
	}
}

func TestLatchOnlyOutsideError(t *testing.T) {
	e := NewEngine(DefaultLimits())
	in := healthy()
	in.Telemetry.ExternalTempC = 80
	e.SafetyChecks(in)
	if !e.Past.Has(ThermistorOverTemp) || e.Past.Detect() != types.DetectTrigger {
		t.Fatalf("past = %s", e.Past)
	}

	in.State = types.StateError
	in.Telemetry.ExternalTempC = 25
	in.Telemetry.DischargeMilliA = 40000
	e.SafetyChecks(in)
	if e.Past.Has(ShuntOverCurrent) || !e.Past.Has(ThermistorOverTemp) {
		t.Fatalf("check in Error overwrote past: %s", e.Past)
	}
}

func TestEvaluateCategories(t *testing.T) {
	e := NewEngine(DefaultLimits())
	in := healthy()
	in.State = types.StateCharging
	in.Detect = types.DetectCharger
	in.Telemetry.InternalTempC = 50
	in.Telemetry.DischargeMilliA = 30000
	in.AFE = AFEFlags{Status: 0x37, IntOverTemp: true, ExtOverTemp: true, OverCurCharge: true, OverCurDisch: true, ShortCircuit: true}

	r := e.Evaluate(in)
	want := IntOverTempAFE | ExtOverTempAFE | ChargeOverCurrent | DischargeOverCurrent |
		ShortCircuit | ShuntOverCurrent | ChargeIntOverTemp | BrownOut
	if r&^detectMask != want {
		t.Fatalf("Evaluate = %s, want %s", r, want)
	}
	if r.Detect() != types.DetectCharger {
		t.Fatalf("detect = %s", r.Detect())
	}
	if r.Has(TempHysteresis) {
		t.Fatalf("hysteresis outside Error")
	}
}

func TestHysteresisDischargeLimit(t *testing.T) {
	l := DefaultLimits()
	e := NewEngine(l)
	in := healthy()
	in.Telemetry.InternalTempC = l.MaxDischargeTempC + 2
	e.SafetyChecks(in)
	if !e.Past.Has(IntOverTemp) {
		t.Fatalf("past = %s", e.Past)
	}
	in.State = types.StateError
	in.Detect = types.DetectNone

	cases := []struct {
		temp int16
		want bool
	}{
		{l.MaxDischargeTempC, false}, // still over: the over-temp bit blocks instead
		{l.MaxDischargeTempC - 1, true},
		{l.MaxDischargeTempC - l.HysteresisC + 1, true},
		{l.MaxDischargeTempC - l.HysteresisC, false},
		{25, false},
	}
	for _, c := range cases {
		in.Telemetry.InternalTempC = c.temp
		e.Refresh(in)
		if got := e.Current.Has(TempHysteresis); got != c.want {
			t.Fatalf("temp %d: hysteresis = %v, want %v (%s)", c.temp, got, c.want, e.Current)
		}
	}
	in.Telemetry.InternalTempC = l.MaxDischargeTempC
	e.Refresh(in)
	if !e.Current.Has(IntOverTemp) || e.Current.Clear() {
		t.Fatalf("at limit current = %s", e.Current)
	}
}

func TestHysteresisLowLimit(t *testing.T) {
	l := DefaultLimits()
	e := NewEngine(l)
	e.Past = UnderTemp
	in := healthy()
	in.State = types.StateError
	for temp, want := range map[int16]bool{
		l.MinTempC + 1:                 true,
		l.MinTempC + l.HysteresisC - 1: true,
		l.MinTempC + l.HysteresisC:     false,
	} {
		in.Telemetry.ExternalTempC = temp
		e.Refresh(in)
		if got := e.Current.Has(TempHysteresis); got != want {
			t.Fatalf("temp %d: hysteresis = %v, want %v", temp, got, want)
		}
	}
}

func TestHysteresisChargeLimitOnlyWhenLatchedOnCharger(t *testing.T) {
	l := DefaultLimits()
	in := healthy()
	in.State = types.StateError
	in.Telemetry.ExternalTempC = l.MaxChargeTempC - 1

	e := NewEngine(l)
	e.Past = ThermistorOverTemp.WithDetect(types.DetectTrigger)
	e.Refresh(in)
	if e.Current.Has(TempHysteresis) {
		t.Fatalf("charge-limit hysteresis applied to a trigger fault")
	}

	e.Past = ChargeThermistorOverTemp.WithDetect(types.DetectCharger)
	e.Refresh(in)
	if !e.Current.Has(TempHysteresis) {
		t.Fatalf("charge-limit hysteresis missing: %s", e.Current)
	}

	in.Telemetry.ExternalTempC = l.MaxChargeTempC + 5
	e.Refresh(in)
	if !e.Current.Has(ChargeThermistorOverTemp) {
		t.Fatalf("charge over-temp not re-asserted in Error: %s", e.Current)
	}
}

func TestNoHysteresisWithoutTemperatureFault(t *testing.T) {
	e := NewEngine(DefaultLimits())
	e.Past = ShortCircuit
	in := healthy()
	in.State = types.StateError
	in.Telemetry.InternalTempC = 72
	e.Refresh(in)
	if e.Current.Has(TempHysteresis) {
		t.Fatalf("hysteresis armed by a non-temperature fault")
	}
}

func TestLimitsValidate(t *testing.T) {
	if err := DefaultLimits().Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	l := DefaultLimits()
	l.MaxChargeTempC = l.MaxDischargeTempC
	if l.Validate() == nil {
		t.Fatalf("charge limit equal to discharge limit accepted")
	}
}
