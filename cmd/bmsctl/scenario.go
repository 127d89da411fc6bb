package main

import (
	"fmt"

	"bmscode-go/drivers/isl94208"
	"bmscode-go/errcode"
	"bmscode-go/services/eventlog"
	"bmscode-go/services/sim"
	"bmscode-go/services/supervisor"
	"bmscode-go/services/telemetry"
	"bmscode-go/types"
)

// step changes the simulated pack before tick at.
type step struct {
	at    uint32
	what  string
	apply func(p *sim.Pack)
}

type scenario struct {
	name  string
	about string
	ticks int
	env   func() sim.Env
	steps []step
}

func attach(d types.Detect) func(*sim.Pack) { return func(p *sim.Pack) { p.Env.Detect = d } }
func load(ma uint16) func(*sim.Pack)        { return func(p *sim.Pack) { p.Env.DischargeMilliA = ma } }
func cells(mv uint16) func(*sim.Pack)       { return func(p *sim.Pack) { p.Env.SetCells(mv) } }
func thermistor(c int16) func(*sim.Pack)    { return func(p *sim.Pack) { p.Env.ExternalTempC = c } }

func envWithCells(mv uint16) func() sim.Env {
	return func() sim.Env {
		e := sim.DefaultEnv()
		e.SetCells(mv)
		return e
	}
}

var scenarios = []scenario{
	{
		name: "discharge", about: "trigger pulled, tool runs under load, trigger released",
		ticks: 600, env: sim.DefaultEnv,
		steps: []step{
			{10, "trigger pulled", attach(types.DetectTrigger)},
			{150, "load 12 A", load(12000)},
			{400, "load off", load(0)},
			{420, "trigger released", attach(types.DetectNone)},
		},
	},
	{
		name: "charge", about: "charger attached until the top cell reaches the limit",
		ticks: 800, env: envWithCells(3950),
		steps: []step{
			{10, "charger attached", attach(types.DetectCharger)},
			{400, "cells at 4.25 V", cells(4250)},
			{450, "cells relax to 4.15 V", cells(4150)},
			{700, "charger removed", attach(types.DetectNone)},
		},
	},
	{
		name: "overtemp", about: "thermistor over-temperature during discharge, then cool down",
		ticks: 700, env: sim.DefaultEnv,
		steps: []step{
			{10, "trigger pulled", attach(types.DetectTrigger)},
			{100, "thermistor 80 °C", thermistor(80)},
			{150, "trigger released", attach(types.DetectNone)},
			{160, "thermistor 71 °C", thermistor(71)},
			{400, "thermistor 40 °C", thermistor(40)},
		},
	},
	{
		name: "short", about: "AFE short-circuit trip under load",
		ticks: 1600, env: sim.DefaultEnv,
		steps: []step{
			{10, "trigger pulled", attach(types.DetectTrigger)},
			{60, "short circuit", func(p *sim.Pack) { p.Bus.SetStatus(isl94208.ShortCircuit) }},
			{70, "trigger released", attach(types.DetectNone)},
			{200, "status cleared", func(p *sim.Pack) { p.Bus.ClearStatus() }},
		},
	},
	{
		name: "full-discharge", about: "trigger on an empty pack, then a charger",
		ticks: 700, env: envWithCells(2650),
		steps: []step{
			{10, "trigger pulled", attach(types.DetectTrigger)},
			{200, "charger attached", attach(types.DetectCharger)},
		},
	},
	{
		name: "brownout", about: "AFE loses its configuration",
		ticks: 200, env: sim.DefaultEnv,
		steps: []step{
			{50, "AFE brown-out", func(p *sim.Pack) { p.Bus.BrownOut() }},
		},
	},
	{
		name: "comm-loss", about: "AFE stops answering on the bus",
		ticks: 200, env: sim.DefaultEnv,
		steps: []step{
			{50, "AFE silent", func(p *sim.Pack) { p.Bus.FailTx = 1 << 30 }},
		},
	},
	{
		name: "sleep", about: "nothing attached until the idle timeout",
		ticks: 1000, env: sim.DefaultEnv,
	},
}

func findScenario(name string) (scenario, error) {
	for _, sc := range scenarios {
		if sc.name == name {
			return sc, nil
		}
	}
	return scenario{}, fmt.Errorf("unknown scenario %q", name)
}

type note struct {
	tick uint32
	text string
}

type result struct {
	ticks  uint32
	final  types.State
	reset  bool
	notes  []note
	events []eventlog.Slot
	frames int
}

// runScenario drives a fresh simulated pack through sc. Report, if set,
// receives every telemetry frame.
func runScenario(sc scenario, ticks int, cfg supervisor.Config, report func(telemetry.Frame) error) (result, error) {
	if err := cfg.Validate(); err != nil {
		return result{}, fmt.Errorf("invalid config: %w", err)
	}
	if ticks <= 0 {
		ticks = sc.ticks
	}
	p := sim.New(sc.env())
	var res result
	var reportErr error
	prev := types.StateInit
	s := supervisor.New(supervisor.Deps{
		AFE:      p.AFE,
		Bus:      p.Recoverer,
		Sensors:  p.Sensors,
		LED:      p.Indicator,
		Storage:  p.Storage,
		Watchdog: p.Watchdog,
		System:   p.System,
		Timebase: p.Clock,
		Report: func(f telemetry.Frame) {
			res.frames++
			if f.State != prev {
				res.notes = append(res.notes, note{f.Tick, fmt.Sprintf("state %s -> %s", prev, f.State)})
				prev = f.State
			}
			if report != nil && reportErr == nil {
				reportErr = report(f)
			}
		},
	}, cfg)

	// Bring-up.
	if err := s.Tick(); err != nil {
		return res, err
	}
	prev = s.State()
	for i := 1; i <= ticks; i++ {
		for _, st := range sc.steps {
			if st.at == uint32(i) {
				st.apply(p)
				res.notes = append(res.notes, note{uint32(i), st.what})
			}
		}
		err := s.Tick()
		if errcode.Of(err) == errcode.DeviceReset {
			res.reset = true
			res.notes = append(res.notes, note{uint32(i), "controller restart requested"})
			break
		}
		if err != nil {
			return res, err
		}
		if reportErr != nil {
			return res, fmt.Errorf("writing frames: %w", reportErr)
		}
	}
	res.ticks = s.Ticks()
	res.final = s.State()

	img, err := eventlog.Snapshot(p.Storage)
	if err != nil {
		return res, err
	}
	dec, err := eventlog.Decode(img)
	if err != nil {
		return res, err
	}
	res.events = dec.Events
	return res, nil
}
