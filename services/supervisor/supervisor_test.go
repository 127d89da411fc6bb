package supervisor

import (
	"testing"

	"bmscode-go/drivers/isl94208"
	"bmscode-go/errcode"
	"bmscode-go/services/eventlog"
	"bmscode-go/services/fault"
	"bmscode-go/services/led"
	"bmscode-go/services/sim"
	"bmscode-go/services/telemetry"
	"bmscode-go/types"
)

type rig struct {
	t      *testing.T
	p      *sim.Pack
	s      *Supervisor
	frames []telemetry.Frame
}

func newRig(t *testing.T, env sim.Env, opts ...func(*Config)) *rig {
	t.Helper()
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	p := sim.New(env)
	r := &rig{t: t, p: p}
	r.s = New(Deps{
		AFE:      p.AFE,
		Bus:      p.Recoverer,
		Sensors:  p.Sensors,
		LED:      p.Indicator,
		Storage:  p.Storage,
		Watchdog: p.Watchdog,
		System:   p.System,
		Timebase: p.Clock,
		Report:   func(f telemetry.Frame) { r.frames = append(r.frames, f) },
	}, cfg)
	r.tick()
	if got := r.s.State(); got != types.StateIdle {
		t.Fatalf("after bring-up state=%v", got)
	}
	return r
}

func (r *rig) tick() {
	r.t.Helper()
	if err := r.s.Tick(); err != nil {
		r.t.Fatalf("tick %d: %v", r.s.Ticks(), err)
	}
}

func (r *rig) run(n int) {
	r.t.Helper()
	for i := 0; i < n; i++ {
		r.tick()
	}
}

// until ticks until the state is want and returns the number of ticks taken.
func (r *rig) until(want types.State, max int) int {
	r.t.Helper()
	for i := 1; i <= max; i++ {
		r.tick()
		if r.s.State() == want {
			return i
		}
	}
	r.t.Fatalf("state %v not reached in %d ticks, at %v", want, max, r.s.State())
	return 0
}

func (r *rig) expect(want types.State) {
	r.t.Helper()
	if got := r.s.State(); got != want {
		r.t.Fatalf("state=%v want %v", got, want)
	}
}

func (r *rig) fets() uint8 { return r.p.Bus.Register(isl94208.RegFETControl) }

func (r *rig) events() []eventlog.Slot {
	r.t.Helper()
	img, err := eventlog.Snapshot(r.p.Storage)
	if err != nil {
		r.t.Fatalf("snapshot: %v", err)
	}
	dec, err := eventlog.Decode(img)
	if err != nil {
		r.t.Fatalf("decode: %v", err)
	}
	return dec.Events
}

// outputOn brings the rig into OutputEnabled with the discharge FET on.
func (r *rig) outputOn() {
	r.t.Helper()
	r.p.Env.Detect = types.DetectTrigger
	r.tick()
	r.expect(types.StateOutputEnabled)
	r.tick()
	if r.fets()&isl94208.DischargeFET.Mask() == 0 {
		r.t.Fatalf("discharge FET off after enable, fets=%08b", r.fets())
	}
}

func TestBringUp(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	if r.p.Bus.PORs != 1 {
		t.Fatalf("PORs=%d want 1", r.p.Bus.PORs)
	}
	if r.p.AFE.BrownedOut() {
		t.Fatal("AFE flags missing after bring-up")
	}
	if r.p.Watchdog.Updates == 0 {
		t.Fatal("watchdog not serviced")
	}
	r.run(3)
	r.expect(types.StateIdle)
	st := r.s.Telemetry().Stats
	if st.MinMilliV < 3690 || st.MaxMilliV > 3710 {
		t.Fatalf("cell stats=%+v", st)
	}
	if len(r.frames) != 3 || r.frames[2].Tick != 3 {
		t.Fatalf("frames=%d", len(r.frames))
	}
}

func TestTriggerEnablesOutput(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.outputOn()
	if r.s.Runtime() == 0 {
		t.Fatal("runtime not counting with output on")
	}
	if last := r.frames[len(r.frames)-1]; last.FETs&isl94208.DischargeFET.Mask() == 0 {
		t.Fatalf("frame FETs=%08b", last.FETs)
	}
}

func TestSafetyFailureForcesErrorAndLogsOnce(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.outputOn()
	r.run(10)

	r.p.Env.ExternalTempC = 80
	r.tick()
	r.expect(types.StateError)
	if r.fets() != 0 {
		t.Fatalf("fets=%08b after fault", r.fets())
	}
	if !r.s.Past().Has(fault.ThermistorOverTemp) {
		t.Fatalf("past=%v", r.s.Past())
	}
	if n := len(r.events()); n != 0 {
		t.Fatalf("%d events before the first error tick", n)
	}

	r.run(5)
	ev := r.events()
	if len(ev) != 1 {
		t.Fatalf("events=%d want 1", len(ev))
	}
	if !ev[0].Reason.Has(fault.ThermistorOverTemp) || ev[0].Reason.Detect() != types.DetectTrigger {
		t.Fatalf("logged %v", ev[0].Reason)
	}
	if ev[0].Runtime != r.s.Runtime() {
		t.Fatalf("logged runtime %d, supervisor %d", ev[0].Runtime, r.s.Runtime())
	}
	rt, err := eventlog.LoadRuntime(r.p.Storage)
	if err != nil || rt != r.s.Runtime() {
		t.Fatalf("stored runtime %d (%v), want %d", rt, err, r.s.Runtime())
	}
}

func TestErrorExitNeedsTimeoutAndCycles(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.p.Env.ExternalTempC = 80
	r.tick()
	r.expect(types.StateError)

	r.p.Env.ExternalTempC = 25
	n := r.until(types.StateIdle, 200)
	if n <= int(r.s.cfg.ErrorExitTimeout) {
		t.Fatalf("left Error after %d ticks", n)
	}
	if r.s.Past() != 0 || r.s.Current() != 0 {
		t.Fatalf("masks not cleared: past=%v current=%v", r.s.Past(), r.s.Current())
	}
}

func TestErrorExitRestartsWhenConditionBreaks(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.p.Env.ExternalTempC = 80
	r.tick()
	r.p.Env.ExternalTempC = 25
	r.run(80)
	r.expect(types.StateError)

	r.p.Env.Detect = types.DetectTrigger
	r.tick()
	r.p.Env.Detect = types.DetectNone
	n := r.until(types.StateIdle, 200)
	if n <= int(r.s.cfg.ErrorExitTimeout) {
		t.Fatalf("exit timer not restarted: left after %d ticks", n)
	}
}

func TestTemperatureHysteresisHoldsError(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.p.Env.ExternalTempC = 80
	r.tick()
	r.expect(types.StateError)

	r.p.Env.ExternalTempC = 71
	r.run(300)
	r.expect(types.StateError)
	if !r.s.Current().Has(fault.TempHysteresis) {
		t.Fatalf("current=%v", r.s.Current())
	}

	r.p.Env.ExternalTempC = 69
	r.until(types.StateIdle, 200)
}

func TestStatusFlagBlocksExit(t *testing.T) {
	r := newRig(t, sim.DefaultEnv(), func(c *Config) { c.ErrorSleepTimeout = 10000 })
	r.outputOn()
	r.p.Bus.SetStatus(isl94208.ShortCircuit)
	r.tick()
	r.expect(types.StateError)
	if !r.s.Past().Has(fault.ShortCircuit) {
		t.Fatalf("past=%v", r.s.Past())
	}
	r.p.Env.Detect = types.DetectNone
	r.run(400)
	r.expect(types.StateError)
	if got := r.p.Light.Flashes[led.Red]; got < 10 {
		t.Fatalf("red flashes=%d, want the short-circuit code", got)
	}

	// Three full ten-blink codes must be shown before leaving.
	r.p.Bus.ClearStatus()
	r.until(types.StateIdle, 1400)
}

func TestFullDischargeOnTrigger(t *testing.T) {
	env := sim.DefaultEnv()
	env.SetCells(2600)
	r := newRig(t, env)
	r.tick()
	if !r.s.FullDischarge() {
		t.Fatal("full discharge not latched")
	}

	r.p.Env.Detect = types.DetectTrigger
	r.tick()
	r.expect(types.StateError)
	r.run(200)
	if n := len(r.events()); n != 0 {
		t.Fatalf("full discharge on trigger logged %d events", n)
	}
	if r.fets() != 0 {
		t.Fatalf("fets=%08b", r.fets())
	}
	if got := r.p.Light.Flashes[led.Blue]; got < 3 {
		t.Fatalf("blue flashes=%d", got)
	}

	r.p.Env.Detect = types.DetectCharger
	r.until(types.StateIdle, 400)
}

func TestBrownOutRestarts(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.run(2)
	r.p.Bus.BrownOut()

	err := r.s.Tick()
	if errcode.Of(err) != errcode.DeviceReset {
		t.Fatalf("tick err=%v", err)
	}
	if r.p.System.Resets != 1 {
		t.Fatalf("resets=%d", r.p.System.Resets)
	}
	ev := r.events()
	if len(ev) != 1 || !ev[0].Reason.Has(fault.BrownOut) {
		t.Fatalf("events=%+v", ev)
	}
	if r.fets() != 0 {
		t.Fatalf("fets=%08b", r.fets())
	}
}

func TestTransportErrorsEscalate(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.run(2)

	r.p.Bus.FailTx = 1
	r.tick()
	r.expect(types.StateIdle)
	if r.s.CommErrors() != 1 {
		t.Fatalf("comm errors=%d", r.s.CommErrors())
	}
	r.tick()
	if r.s.CommErrors() != 0 {
		t.Fatalf("comm errors=%d after a clean tick", r.s.CommErrors())
	}

	r.p.Bus.FailTx = 1 << 30
	r.tick()
	r.expect(types.StateIdle)
	err := r.s.Tick()
	if errcode.Of(err) != errcode.DeviceReset {
		t.Fatalf("tick err=%v", err)
	}
	ev := r.events()
	if len(ev) != 1 || !ev[0].Reason.Has(fault.CriticalComm) {
		t.Fatalf("events=%+v", ev)
	}
}

func TestTerminalLoopKeepsRecoveringBus(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.run(2)

	r.p.Bus.FailTx = 1 << 30
	r.tick()
	escalation := r.p.Bus.Pulses
	err := r.s.Tick()
	if errcode.Of(err) != errcode.DeviceReset {
		t.Fatalf("tick err=%v", err)
	}
	// The escalating tick recovers once; the terminal loop must keep trying.
	if got := r.p.Bus.Pulses - escalation; got < 100 {
		t.Fatalf("%d recovery pulses after escalation", got)
	}
}

func TestBrownOutMidTick(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.run(2)

	// Lose the flags after the first refresh has already read them.
	r.p.Bus.BrownOutAt = 3
	err := r.s.Tick()
	if errcode.Of(err) != errcode.DeviceReset {
		t.Fatalf("tick err=%v state=%v", err, r.s.State())
	}
	ev := r.events()
	if len(ev) != 1 || !ev[0].Reason.Has(fault.BrownOut) {
		t.Fatalf("events=%+v", ev)
	}
}

func TestCellBalanceFallsBackToIdle(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.s.state = types.StateCellBalance
	r.tick()
	r.expect(types.StateIdle)
}

// charging brings a rig with a charger attached into Charging with the
// charge FET on.
func charging(t *testing.T) *rig {
	t.Helper()
	env := sim.DefaultEnv()
	env.SetCells(4000)
	env.Detect = types.DetectCharger
	r := newRig(t, env)
	r.until(types.StateCharging, 60)
	r.tick()
	if r.fets()&isl94208.ChargeFET.Mask() == 0 {
		t.Fatalf("charge FET off, fets=%08b", r.fets())
	}
	return r
}

// resting charges past the completion window, then tops out the cells.
func (r *rig) resting() {
	r.t.Helper()
	r.run(int(r.s.cfg.ChargeCompleteTimeout) + 10)
	r.p.Env.SetCells(4250)
	r.until(types.StateChargingWait, 10)
}

func TestLeavingChargeStates(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*rig)
		act   func(*rig)
		want  types.State
		past  fault.Reason
	}{
		{"charging/charger removed", nil,
			func(r *rig) { r.p.Env.Detect = types.DetectNone }, types.StateIdle, 0},
		{"wait/charger removed", (*rig).resting,
			func(r *rig) { r.p.Env.Detect = types.DetectNone }, types.StateIdle, 0},
		{"wait/over temperature", (*rig).resting,
			func(r *rig) { r.p.Env.ExternalTempC = 80 }, types.StateError, fault.ThermistorOverTemp},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			r := charging(t)
			if c.setup != nil {
				c.setup(r)
			}
			c.act(r)
			r.tick()
			r.expect(c.want)
			if r.fets() != 0 {
				t.Fatalf("fets=%08b", r.fets())
			}
			if c.past != 0 && !r.s.Past().Has(c.past) {
				t.Fatalf("past=%v", r.s.Past())
			}
		})
	}
}

func TestChargeCompleteRearmsBelowThreshold(t *testing.T) {
	r := charging(t)
	r.p.Env.SetCells(4250)
	r.until(types.StateIdle, 10)
	if !r.s.ChargeComplete() {
		t.Fatal("charge not marked complete")
	}

	r.p.Env.SetCells(4150)
	r.run(8)
	r.expect(types.StateIdle)
	if !r.s.ChargeComplete() {
		t.Fatal("latch cleared above the re-arm threshold")
	}

	r.p.Env.SetCells(4050)
	r.until(types.StateCharging, 10)
	if r.s.ChargeComplete() {
		t.Fatal("latch still set after re-arming")
	}
}

func TestChargeCompletesQuickly(t *testing.T) {
	env := sim.DefaultEnv()
	env.SetCells(4000)
	env.Detect = types.DetectCharger
	r := newRig(t, env)
	r.until(types.StateCharging, 60)
	r.tick()
	if r.fets()&isl94208.ChargeFET.Mask() == 0 {
		t.Fatalf("charge FET off, fets=%08b", r.fets())
	}

	r.p.Env.SetCells(4250)
	r.until(types.StateIdle, 10)
	if !r.s.ChargeComplete() {
		t.Fatal("charge not marked complete")
	}
	if r.fets() != 0 {
		t.Fatalf("fets=%08b", r.fets())
	}
	r.run(20)
	r.expect(types.StateIdle)
}

func TestLongChargeRestsThenResumes(t *testing.T) {
	env := sim.DefaultEnv()
	env.SetCells(4000)
	env.Detect = types.DetectCharger
	r := newRig(t, env, func(c *Config) { c.ChargeWaitTimeout = 50 })
	r.until(types.StateCharging, 60)
	r.run(int(r.s.cfg.ChargeCompleteTimeout) + 10)
	r.expect(types.StateCharging)

	r.p.Env.SetCells(4250)
	r.until(types.StateChargingWait, 10)
	if r.fets() != 0 {
		t.Fatalf("fets=%08b while resting", r.fets())
	}
	r.p.Env.SetCells(4150)
	n := r.until(types.StateCharging, 100)
	if n < 50 {
		t.Fatalf("rest ended after %d ticks", n)
	}
}

func TestChargeTempBlocksCharging(t *testing.T) {
	env := sim.DefaultEnv()
	env.SetCells(4000)
	env.Detect = types.DetectCharger
	r := newRig(t, env)
	r.until(types.StateCharging, 60)
	r.tick()

	r.p.Env.ExternalTempC = 55
	r.tick()
	r.expect(types.StateError)
	if !r.s.Past().Has(fault.ChargeThermistorOverTemp) {
		t.Fatalf("past=%v", r.s.Past())
	}
}

func TestIdleSleeps(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	n := r.until(types.StateSleep, 1000)
	if n <= int(r.s.cfg.IdleSleepTimeout) {
		t.Fatalf("slept after %d ticks", n)
	}
	r.tick()
	r.expect(types.StateIdle)
	if r.p.Bus.Sleeps != 1 {
		t.Fatalf("sleep commands=%d", r.p.Bus.Sleeps)
	}
	if r.p.Bus.PORs != 2 {
		t.Fatalf("AFE not re-initialised after sleep, PORs=%d", r.p.Bus.PORs)
	}
}

func TestDisableSleep(t *testing.T) {
	r := newRig(t, sim.DefaultEnv(), func(c *Config) { c.DisableSleep = true })
	r.until(types.StateSleep, 1000)
	r.tick()
	r.expect(types.StateIdle)
	if r.p.Bus.Sleeps != 0 {
		t.Fatalf("sleep commands=%d", r.p.Bus.Sleeps)
	}
}

func TestOutputStartupAndRelease(t *testing.T) {
	r := newRig(t, sim.DefaultEnv())
	r.outputOn()
	r.run(120)
	for _, c := range []led.Color{led.Red, led.Green, led.Blue} {
		if r.p.Light.Flashes[c] == 0 {
			t.Fatalf("startup never showed color %03b", c)
		}
	}
	green := r.p.Light.Flashes[led.Green]

	r.p.Env.Detect = types.DetectNone
	r.tick()
	r.expect(types.StateOutputEnabled)
	if r.fets() != 0 {
		t.Fatalf("fets=%08b after release", r.fets())
	}
	r.until(types.StateIdle, 150)
	if got := r.p.Light.Flashes[led.Green] - green; got != 4 {
		t.Fatalf("voltage blinks=%d want 4", got)
	}
	rt, err := eventlog.LoadRuntime(r.p.Storage)
	if err != nil || rt == 0 || rt != r.s.Runtime() {
		t.Fatalf("stored runtime %d (%v), supervisor %d", rt, err, r.s.Runtime())
	}
}

func TestChargerOnOutputShowsVersion(t *testing.T) {
	r := newRig(t, sim.DefaultEnv(), func(c *Config) { c.FirmwareVersion = 2 })
	r.outputOn()
	r.p.Env.Detect = types.DetectCharger
	r.until(types.StateIdle, 150)
	if got := r.p.Light.Flashes[led.White]; got != 2 {
		t.Fatalf("version blinks=%d want 2", got)
	}
}

func TestDetectHistory(t *testing.T) {
	var h DetectHistory
	for _, d := range []types.Detect{types.DetectTrigger, types.DetectCharger, types.DetectNone, types.DetectTrigger} {
		h.Record(d)
	}
	if h.At(0) != types.DetectTrigger || h.At(1) != types.DetectNone || h.At(2) != types.DetectCharger || h.At(3) != types.DetectTrigger {
		t.Fatalf("history=%08b", uint8(h))
	}
	h.Record(types.DetectTrigger)
	h.Record(types.DetectTrigger)
	if h.Contains(types.DetectCharger) {
		t.Fatalf("charger still present after four newer entries: %08b", uint8(h))
	}
	if !h.Contains(types.DetectNone) {
		t.Fatal("none should be 3 entries back")
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config: %v", err)
	}
	bad := []func(*Config){
		func(c *Config) { c.MinCellMilliV = c.MaxCellMilliV },
		func(c *Config) { c.ChargeRearmMilliV = c.MaxCellMilliV },
		func(c *Config) { c.CriticalCommErrors = 0 },
		func(c *Config) { c.FaultClearCycles = 0 },
		func(c *Config) { c.BringUpAttempts = 0 },
		func(c *Config) { c.Limits.HysteresisC = -1 },
	}
	for i, mut := range bad {
		c := DefaultConfig()
		mut(&c)
		if c.Validate() == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
