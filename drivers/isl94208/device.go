package isl94208

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"bmscode-go/errcode"
)

var ErrInvalidField = &errcode.E{C: errcode.InvalidField, Msg: "field exceeds register width"}

// Driver configuration.
type Config struct {
	Address uint16
	// PORSettle is the wait after forcing a power-on reset before the
	// device accepts writes again.
	PORSettle time.Duration
	// SleepToggle and SleepSettle time the sleep entry sequence.
	SleepToggle time.Duration
	SleepSettle time.Duration
	// Delay blocks for d. Nil uses time.Sleep.
	Delay func(d time.Duration)
}

func DefaultConfig() Config {
	return Config{
		Address:     AddressDefault,
		PORSettle:   5 * time.Millisecond,
		SleepToggle: 50 * time.Microsecond,
		SleepSettle: 250 * time.Millisecond,
	}
}

func (c Config) Validate() error {
	if c.Address == 0 || c.Address > 0x7F {
		return errors.New("Address must be a 7-bit I2C address")
	}
	return nil
}

// Device represents an ISL94208 on an I²C bus.
type Device struct {
	i2c   drivers.I2C
	addr  uint16
	cfg   Config
	delay func(time.Duration)

	cache [numRegisters]uint8
	err   error

	// Fixed buffers to avoid per-call heap allocations.
	w [2]byte
	r [1]byte
}

func New(i2c drivers.I2C, cfg Config) *Device {
	if cfg.Address == 0 {
		cfg.Address = AddressDefault
	}
	delay := cfg.Delay
	if delay == nil {
		delay = time.Sleep
	}
	return &Device{i2c: i2c, addr: cfg.Address, cfg: cfg, delay: delay}
}

// Err returns the first transport error since the last ClearErr.
func (d *Device) Err() error { return d.err }

// ClearErr drops the latched transport error.
func (d *Device) ClearErr() { d.err = nil }

func (d *Device) latch(err error) error {
	if err == nil {
		return nil
	}
	if d.err == nil {
		d.err = err
	}
	return err
}

// ReadRegister reads one register over the bus and refreshes its cache
// entry. On failure the cache keeps its previous value.
func (d *Device) ReadRegister(reg Register) (uint8, error) {
	if reg >= numRegisters {
		return 0, ErrInvalidField
	}
	d.w[0] = byte(reg)
	if err := d.i2c.Tx(d.addr, d.w[:1], d.r[:1]); err != nil {
		return d.cache[reg], d.latch(errcode.Wrap(errcode.Transport, "isl94208.read "+reg.String(), err))
	}
	d.cache[reg] = d.r[0]
	return d.r[0], nil
}

// WriteRegister writes one register and mirrors the value into the cache
// whether or not the transaction succeeded.
func (d *Device) WriteRegister(reg Register, v uint8) error {
	if reg >= numRegisters {
		return ErrInvalidField
	}
	d.w[0] = byte(reg)
	d.w[1] = v
	err := d.i2c.Tx(d.addr, d.w[:2], nil)
	d.cache[reg] = v
	return d.latch(errcode.Wrap(errcode.Transport, "isl94208.write "+reg.String(), err))
}

// Cached returns the last known value of reg without bus traffic.
func (d *Device) Cached(reg Register) uint8 {
	if reg >= numRegisters {
		return 0
	}
	return d.cache[reg]
}

// SetBits performs a live read-modify-write of field f. If the read fails
// the write still goes out, built on the cached byte, and the read error
// is returned.
func (d *Device) SetBits(f Field, v uint8) error {
	if !f.valid() {
		return ErrInvalidField
	}
	cur, rerr := d.ReadRegister(f.Reg)
	next := cur&^f.Mask() | (v<<f.Offset)&f.Mask()
	if err := d.WriteRegister(f.Reg, next); err != nil {
		return err
	}
	return rerr
}

// GetBits reads f from the device.
func (d *Device) GetBits(f Field) (uint8, error) {
	if !f.valid() {
		return 0, ErrInvalidField
	}
	v, err := d.ReadRegister(f.Reg)
	if err != nil {
		return 0, err
	}
	return v >> f.Offset & genMask(f.Length), nil
}

// GetBitsCached extracts f from the cache. Callers must have refreshed
// the register earlier in the same tick.
func (d *Device) GetBitsCached(f Field) uint8 {
	if !f.valid() {
		return 0
	}
	return d.cache[f.Reg] >> f.Offset & genMask(f.Length)
}

// Refresh reads regs in order, returning the first error.
func (d *Device) Refresh(regs ...Register) error {
	var first error
	for _, r := range regs {
		if _, err := d.ReadRegister(r); err != nil && first == nil {
			first = err
		}
	}
	return first
}
