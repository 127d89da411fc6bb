package timex

import "time"

// DefaultTick is the nominal period of the control-loop timebase.
const DefaultTick = 32 * time.Millisecond

// Counter is a cooperative timeout counter. It only moves forward when
// advanced by a timebase overflow while enabled.
type Counter struct {
	Value   uint32
	Enabled bool
}

// Restart zeroes the counter and enables it.
func (c *Counter) Restart() {
	c.Value = 0
	c.Enabled = true
}

// Stop freezes the counter at its current value.
func (c *Counter) Stop() { c.Enabled = false }

// Reset zeroes and disables the counter.
func (c *Counter) Reset() {
	c.Value = 0
	c.Enabled = false
}

// Advance adds one tick if the counter is enabled.
func (c *Counter) Advance() {
	if c.Enabled {
		c.Value++
	}
}

// Exceeds reports whether the counter is enabled and strictly past n.
func (c *Counter) Exceeds(n uint32) bool { return c.Enabled && c.Value > n }

// Set groups counters that share a timebase.
type Set []*Counter

func (s Set) Advance() {
	for _, c := range s {
		c.Advance()
	}
}

// Duration converts a tick count to wall time.
func Duration(ticks uint32, tick time.Duration) time.Duration {
	return time.Duration(ticks) * tick
}

// Timebase is a polled overflow source. Overflowed reports, at most once
// per period, that a period has elapsed since the previous report.
type Timebase interface {
	Overflowed() bool
}

// Poller implements Timebase over a monotonic clock. Periods missed while
// the caller was busy collapse into a single overflow, like a hardware
// overflow flag that is only polled.
type Poller struct {
	period time.Duration
	now    func() time.Time
	last   time.Time
}

// NewPoller returns a Poller with the given period. A zero period uses DefaultTick.
func NewPoller(period time.Duration) *Poller {
	if period <= 0 {
		period = DefaultTick
	}
	return &Poller{period: period, now: time.Now, last: time.Now()}
}

func (p *Poller) Overflowed() bool {
	now := p.now()
	if now.Sub(p.last) < p.period {
		return false
	}
	p.last = p.last.Add(p.period)
	if now.Sub(p.last) >= p.period {
		p.last = now
	}
	return true
}
