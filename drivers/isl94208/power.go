package isl94208

// Init applies the power-on configuration: protection thresholds, the
// user flags used for brown-out detection, active-high wake polarity, and
// both FETs off. The first error is returned but the sequence always runs
// to the end so the FETs are commanded off regardless.
func (d *Device) Init() error {
	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	keep(d.SetBits(WriteEnables, 0b111))
	keep(d.SetBits(ForcePOR, 1))
	d.delay(d.cfg.PORSettle)
	// POR clears the write enables.
	keep(d.SetBits(WriteEnables, 0b111))
	keep(d.WriteRegister(RegDischargeSet, DischargeSetDefault))
	keep(d.WriteRegister(RegChargeSet, ChargeSetDefault))
	keep(d.WriteRegister(RegAnalogOut, AnalogOutDefault))
	keep(d.SetBits(WakePolarity, 1))
	keep(d.SetBits(WriteEnables, 0b000))
	keep(d.SetBits(DischargeFET, 0))
	keep(d.SetBits(ChargeFET, 0))
	return first
}

// Sleep sends the toggle-then-latch sleep command. The device only enters
// sleep on a 1-0-1 sequence of the sleep bit.
func (d *Device) Sleep() error {
	var first error
	for i, v := range [...]uint8{1, 0, 1} {
		if err := d.SetBits(SleepCtl, v); err != nil && first == nil {
			first = err
		}
		if i < 2 {
			d.delay(d.cfg.SleepToggle)
		}
	}
	d.delay(d.cfg.SleepSettle)
	return first
}

// FETsOff clears the whole FET control register without a read.
func (d *Device) FETsOff() error { return d.WriteRegister(RegFETControl, 0) }

// BrownedOut reports, from the cache, whether the user flags or wake
// polarity set by Init have been lost.
func (d *Device) BrownedOut() bool {
	return d.GetBitsCached(UserFlag0) == 0 ||
		d.GetBitsCached(UserFlag1) == 0 ||
		d.GetBitsCached(WakePolarity) == 0
}
