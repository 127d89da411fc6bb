// Package led drives the pack's single RGB status LED with non-blocking
// blink, breathe and indicator sequences. All timing comes from a tick
// counter advanced by the caller's timebase.
package led

import (
	"bmscode-go/x/mathx"
	"bmscode-go/x/timex"
)

type Color uint8

const (
	Off    Color = 0
	Blue   Color = 0b001
	Green  Color = 0b010
	Red    Color = 0b100
	Yellow       = Red | Green
	White        = Red | Green | Blue
)

// MaxDuty is full brightness.
const MaxDuty = 1023

// Output sets the LED color and PWM duty (0..MaxDuty).
type Output interface {
	Set(c Color, duty uint16)
}

// Pattern describes one blink code cycle: a leading blank, Blinks on/off
// pulses, then a trailing blank. Blinks == 0 blinks forever and ignores
// the blanks; each on/off pair then counts as a cycle.
type Pattern struct {
	Blinks  uint8
	Color   Color
	OnMs    uint16
	OffMs   uint16
	LeadMs  uint16
	TrailMs uint16
	// Fade is the duty change per call; positive fades in from dark,
	// negative fades out from full.
	Fade int16
}

func (p Pattern) periodMs() uint32 {
	on, off := uint32(p.OnMs), uint32(p.OffMs)
	if p.Blinks == 0 {
		return on + off
	}
	n := uint32(p.Blinks)
	return uint32(p.LeadMs) + n*on + (n-1)*off + uint32(p.TrailMs)
}

func (p Pattern) lit(t uint32) bool {
	on, off := uint32(p.OnMs), uint32(p.OffMs)
	if on+off == 0 {
		return false
	}
	if p.Blinks == 0 {
		return t%(on+off) < on
	}
	if t < uint32(p.LeadMs) {
		return false
	}
	t -= uint32(p.LeadMs)
	return t/(on+off) < uint32(p.Blinks) && t%(on+off) < on
}

type mode uint8

const (
	modeIdle mode = iota
	modePattern
	modeBreathe
)

// Sequencer owns all LED state. It is not safe for concurrent use.
type Sequencer struct {
	out    Output
	tickMs uint32

	mode   mode
	active Pattern
	duty   int16
	wait   timex.Counter
	cycles timex.Counter

	voltWait   uint8
	voltBlinks uint8
	voltLoaded bool
}

// New returns a sequencer whose clock advances tickMs per Advance.
func New(out Output, tickMs uint32) *Sequencer {
	if tickMs == 0 {
		tickMs = 32
	}
	return &Sequencer{out: out, tickMs: tickMs}
}

// Advance moves the sequence clock by one tick.
func (s *Sequencer) Advance() { s.wait.Advance() }

// Busy reports whether a sequence is mid-cycle.
func (s *Sequencer) Busy() bool { return s.wait.Enabled }

// Cycles counts completed cycles while enabled. Callers enable and reset
// it around the cycles they want to observe.
func (s *Sequencer) Cycles() *timex.Counter { return &s.cycles }

func (s *Sequencer) elapsed() uint32 { return s.wait.Value * s.tickMs }

func (s *Sequencer) begin(m mode, p Pattern) {
	s.mode = m
	s.active = p
	s.wait.Restart()
	s.duty = MaxDuty
	if p.Fade > 0 {
		s.duty = 0
	}
	s.out.Set(Off, uint16(s.duty))
}

// Pattern runs p. Calling with a different pattern restarts the sequence.
func (s *Sequencer) Pattern(p Pattern) {
	if !s.wait.Enabled || s.mode != modePattern || p != s.active {
		s.begin(modePattern, p)
	}
	t := s.elapsed()
	if period := p.periodMs(); period > 0 && t >= period {
		s.cycles.Advance()
		if p.Blinks != 0 {
			s.out.Set(Off, uint16(s.duty))
			s.wait.Reset()
			return
		}
		s.wait.Value = 0
		t = 0
	}
	if p.Fade != 0 {
		s.duty = mathx.Clamp(s.duty+p.Fade, 0, MaxDuty)
	}
	if p.lit(t) {
		s.out.Set(p.Color, uint16(s.duty))
	} else {
		s.out.Set(Off, uint16(s.duty))
	}
}

// Solid shows c at full brightness without touching sequence state.
func (s *Sequencer) Solid(c Color) { s.out.Set(c, MaxDuty) }

// Breathe fades c in and out count times over intervalMs each, then goes
// dark until the next call starts it again.
func (s *Sequencer) Breathe(c Color, count uint8, intervalMs uint16) {
	key := Pattern{Blinks: count, Color: c, OnMs: intervalMs}
	if !s.wait.Enabled || s.mode != modeBreathe || key != s.active {
		s.begin(modeBreathe, key)
	}
	interval := int32(intervalMs)
	t := int32(s.elapsed())
	if interval == 0 || t >= interval*int32(count) {
		s.cycles.Advance()
		s.out.Set(Off, MaxDuty)
		s.wait.Reset()
		return
	}
	phase, half := t%interval, interval/2
	var duty int32
	if phase < half {
		duty = mathx.Interp(phase, 0, half, 0, MaxDuty)
	} else {
		duty = mathx.Interp(phase, half, interval, MaxDuty, 0)
	}
	s.out.Set(c, uint16(mathx.Clamp(duty, 0, MaxDuty)))
}

// Reset turns the LED off and drops every sequence and counter.
func (s *Sequencer) Reset() {
	s.out.Set(Off, MaxDuty)
	s.mode = modeIdle
	s.wait.Reset()
	s.cycles.Reset()
	s.voltWait = 0
	s.voltLoaded = false
}

func (s *Sequencer) oneCycle(p Pattern) bool {
	if !s.cycles.Enabled {
		s.cycles.Restart()
	}
	s.Pattern(p)
	if s.cycles.Value >= 1 {
		s.Reset()
		return true
	}
	return false
}

// CellDelta blinks yellow once per 50 mV of pack imbalance, rounded, and
// reports true once a full cycle has been shown.
func (s *Sequencer) CellDelta(deltaMilliV uint16) bool {
	n := mathx.Min((uint32(deltaMilliV)+25)/50, 255)
	return s.oneCycle(Pattern{Blinks: uint8(n), Color: Yellow, OnMs: 250, OffMs: 250, LeadMs: 750, TrailMs: 500})
}

// CellVoltage waits a few calls for the averages to settle, then blinks
// green once per 200 mV of minimum cell voltage above 3.0 V.
func (s *Sequencer) CellVoltage(minMilliV uint16) bool {
	if s.voltWait < 5 {
		s.voltWait++
		return false
	}
	if !s.voltLoaded {
		n := (int32(minMilliV)-3000)/200 + 1
		s.voltBlinks = uint8(mathx.Clamp(n, 1, 255))
		s.voltLoaded = true
	}
	return s.oneCycle(Pattern{Blinks: s.voltBlinks, Color: Green, OnMs: 250, OffMs: 250, LeadMs: 500, TrailMs: 500})
}
