package led

import "testing"

type setting struct {
	c    Color
	duty uint16
}

type fakeOut struct{ log []setting }

func (f *fakeOut) Set(c Color, duty uint16) { f.log = append(f.log, setting{c, duty}) }
func (f *fakeOut) last() setting            { return f.log[len(f.log)-1] }

// run calls step then advances the clock, n times, returning the colors shown.
func run(s *Sequencer, out *fakeOut, n int, step func()) []Color {
	var shown []Color
	for i := 0; i < n; i++ {
		step()
		shown = append(shown, out.last().c)
		s.Advance()
	}
	return shown
}

func TestCountedPatternTimeline(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 50)
	s.Cycles().Restart()
	p := Pattern{Blinks: 2, Color: Red, OnMs: 100, OffMs: 100}

	got := run(s, out, 7, func() { s.Pattern(p) })
	want := []Color{Red, Red, Off, Off, Red, Red, Off}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tick %d: %v, want %v (all %v)", i, got[i], want[i], got)
		}
	}
	if s.Cycles().Value != 1 {
		t.Fatalf("cycles = %d, want 1", s.Cycles().Value)
	}
	if s.Busy() {
		t.Fatalf("counted pattern still busy at cycle end")
	}
	s.Pattern(p)
	if !s.Busy() {
		t.Fatalf("next call must start a new cycle")
	}
}

func TestLeadingBlank(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 100)
	p := Pattern{Blinks: 1, Color: Blue, OnMs: 100, LeadMs: 200, TrailMs: 100}
	got := run(s, out, 4, func() { s.Pattern(p) })
	want := []Color{Off, Off, Blue, Off}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", got, want)
		}
	}
}

func TestContinuousPatternCountsPeriods(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 100)
	s.Cycles().Restart()
	p := Pattern{Color: Yellow, OnMs: 200, OffMs: 200}
	got := run(s, out, 9, func() { s.Pattern(p) })
	want := []Color{Yellow, Yellow, Off, Off, Yellow, Yellow, Off, Off, Yellow}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("timeline = %v, want %v", got, want)
		}
	}
	if s.Cycles().Value != 2 {
		t.Fatalf("cycles = %d, want 2", s.Cycles().Value)
	}
	if !s.Busy() {
		t.Fatalf("continuous pattern must stay busy")
	}
}

func TestCyclesOnlyCountWhenEnabled(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 100)
	p := Pattern{Color: Red, OnMs: 100, OffMs: 100}
	run(s, out, 5, func() { s.Pattern(p) })
	if s.Cycles().Value != 0 {
		t.Fatalf("disabled counter advanced")
	}
}

func TestPatternChangeRestarts(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 100)
	a := Pattern{Blinks: 3, Color: Red, OnMs: 100, OffMs: 100}
	b := Pattern{Blinks: 3, Color: Green, OnMs: 100, OffMs: 100}
	run(s, out, 3, func() { s.Pattern(a) })
	s.Pattern(b)
	if out.last().c != Green {
		t.Fatalf("new pattern did not restart at its first pulse")
	}
}

func TestFadeIn(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 32)
	p := Pattern{Blinks: 1, Color: Red, OnMs: 1000, Fade: 32}
	run(s, out, 3, func() { s.Pattern(p) })
	if d := out.last().duty; d != 96 {
		t.Fatalf("duty after three calls = %d, want 96", d)
	}
}

func TestBreathe(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 100)
	s.Cycles().Restart()
	var duties []uint16
	for i := 0; i < 11; i++ {
		s.Breathe(Yellow, 1, 1000)
		duties = append(duties, out.last().duty)
		s.Advance()
	}
	if duties[0] != 0 || duties[5] != MaxDuty || duties[9] >= duties[7] {
		t.Fatalf("duty curve = %v", duties)
	}
	if s.Busy() || s.Cycles().Value != 1 {
		t.Fatalf("breath not finished: busy=%v cycles=%d", s.Busy(), s.Cycles().Value)
	}
}

func TestCellDeltaBlinkCount(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 250)
	// 120 mV rounds to two blinks: 750 lead, 250+250+250, 500 trail = 2000 ms.
	ticks := 0
	for !s.CellDelta(120) {
		s.Advance()
		ticks++
		if ticks > 100 {
			t.Fatalf("indicator never finished")
		}
	}
	if ticks != 8 {
		t.Fatalf("finished after %d ticks, want 8", ticks)
	}
	var pulses int
	var prev Color
	for _, st := range out.log {
		if st.c == Yellow && prev != Yellow {
			pulses++
		}
		prev = st.c
	}
	if pulses != 2 {
		t.Fatalf("pulses = %d, want 2", pulses)
	}
	if s.Busy() || s.Cycles().Enabled {
		t.Fatalf("indicator did not reset on completion")
	}
}

func TestCellVoltageSettles(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 250)
	for i := 0; i < 5; i++ {
		if s.CellVoltage(3650) {
			t.Fatalf("finished during settle")
		}
	}
	if len(out.log) != 0 {
		t.Fatalf("LED touched during settle")
	}
	done := false
	for i := 0; i < 100 && !done; i++ {
		done = s.CellVoltage(3650)
		s.Advance()
	}
	if !done {
		t.Fatalf("indicator never finished")
	}
	var pulses int
	var prev Color
	for _, st := range out.log {
		if st.c == Green && prev != Green {
			pulses++
		}
		prev = st.c
	}
	// (3650-3000)/200+1
	if pulses != 4 {
		t.Fatalf("pulses = %d, want 4", pulses)
	}
}
