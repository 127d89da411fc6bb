// Package busclear unwedges an I2C bus whose slave is holding SDA low
// mid-byte, by bit-banging clock pulses until both lines read released.
package busclear

import (
	"errors"
	"time"

	"bmscode-go/errcode"
)

// Lines is the board-level view of the two bus pins.
type Lines interface {
	// PeripheralEnabled reports whether the hardware I2C block owns the pins.
	PeripheralEnabled() bool
	// Detach hands both pins to GPIO with the lines released.
	Detach()
	// Restore hands the pins back. With enable set the I2C block is
	// reconfigured; otherwise the pins stay released GPIO inputs.
	Restore(enable bool)
	// DriveSCL pulls SCL low when low is true, otherwise releases it.
	DriveSCL(low bool)
	// Released samples both lines; true when SDA and SCL are high.
	Released() bool
}

// Watchdog is serviced on every clock pulse.
type Watchdog interface {
	Update()
}

type Config struct {
	// Consecutive released samples required to declare the bus clear.
	Consecutive int
	// MaxPulses bounds a single recovery; 0 means no bound, leaving the
	// watchdog as the only backstop.
	MaxPulses int
	// LowTime is the SCL low phase; the high phase is split around the sample.
	LowTime  time.Duration
	HighTime time.Duration
	Delay    func(time.Duration)
	Watchdog Watchdog
	// Reinit runs after a successful clear when the peripheral was enabled.
	Reinit func() error
	// ClearErrors drops any latched transport error after a clear.
	ClearErrors func()
}

func DefaultConfig() Config {
	return Config{
		Consecutive: 10,
		MaxPulses:   256,
		LowTime:     5 * time.Microsecond,
		HighTime:    5 * time.Microsecond,
	}
}

func (c Config) Validate() error {
	if c.Consecutive <= 0 {
		return errors.New("Consecutive must be positive")
	}
	if c.MaxPulses != 0 && c.MaxPulses < c.Consecutive {
		return errors.New("MaxPulses must allow Consecutive pulses")
	}
	return nil
}

type Recoverer struct {
	lines  Lines
	cfg    Config
	pulses int
}

func New(lines Lines, cfg Config) *Recoverer {
	if cfg.Consecutive <= 0 {
		cfg.Consecutive = 10
	}
	if cfg.Delay == nil {
		cfg.Delay = time.Sleep
	}
	return &Recoverer{lines: lines, cfg: cfg}
}

// Pulses returns the number of clock pulses issued by the last Clear.
func (r *Recoverer) Pulses() int { return r.pulses }

// Clear pulses SCL until Consecutive samples in a row read both lines
// released. Any bad sample restarts the run.
func (r *Recoverer) Clear() error {
	wasEnabled := r.lines.PeripheralEnabled()
	r.lines.Detach()

	good := 0
	r.pulses = 0
	for good < r.cfg.Consecutive {
		if r.cfg.MaxPulses > 0 && r.pulses >= r.cfg.MaxPulses {
			r.lines.Restore(wasEnabled)
			println("[busclear] bus still held after", r.pulses, "pulses")
			return &errcode.E{C: errcode.BusStuck, Op: "busclear.Clear"}
		}
		if r.cfg.Watchdog != nil {
			r.cfg.Watchdog.Update()
		}
		r.lines.DriveSCL(true)
		r.cfg.Delay(r.cfg.LowTime)
		r.lines.DriveSCL(false)
		r.cfg.Delay(r.cfg.HighTime / 2)
		if r.lines.Released() {
			good++
		} else {
			good = 0
		}
		r.cfg.Delay(r.cfg.HighTime - r.cfg.HighTime/2)
		r.pulses++
	}

	r.lines.Restore(wasEnabled)
	var err error
	if wasEnabled && r.cfg.Reinit != nil {
		err = r.cfg.Reinit()
	}
	if r.cfg.ClearErrors != nil {
		r.cfg.ClearErrors()
	}
	return err
}
