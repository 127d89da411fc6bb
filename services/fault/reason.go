package fault

import (
	"strings"

	"bmscode-go/types"
)

// Reason records why the pack faulted. The bit layout is the persisted
// event-log layout: the high byte is the first log byte and the low byte
// the second, with the detect mode in the two lowest bits.
type Reason uint16

const (
	IntOverTempAFE           Reason = 1 << 15 // AFE internal over-temperature latch
	ExtOverTempAFE           Reason = 1 << 14 // AFE external over-temperature latch
	IntOverTemp              Reason = 1 << 13 // computed internal temperature at or over limit
	ThermistorOverTemp       Reason = 1 << 12
	UnderTemp                Reason = 1 << 11
	ChargeOverCurrent        Reason = 1 << 10
	DischargeOverCurrent     Reason = 1 << 9
	ShortCircuit             Reason = 1 << 8
	ShuntOverCurrent         Reason = 1 << 7 // computed discharge current at or over limit
	ChargeIntOverTemp        Reason = 1 << 6
	ChargeThermistorOverTemp Reason = 1 << 5
	TempHysteresis           Reason = 1 << 4
	BrownOut                 Reason = 1 << 3
	CriticalComm             Reason = 1 << 2

	detectMask Reason = 0b11
)

// Categories that must all be clear before a fault episode may end.
const Blocking = IntOverTempAFE | ExtOverTempAFE | IntOverTemp | ThermistorOverTemp |
	UnderTemp | ChargeOverCurrent | DischargeOverCurrent | ShortCircuit |
	ShuntOverCurrent | ChargeIntOverTemp | ChargeThermistorOverTemp | TempHysteresis

// Temperature categories that arm hysteresis.
const Temperature = IntOverTempAFE | ExtOverTempAFE | IntOverTemp | ThermistorOverTemp |
	ChargeIntOverTemp | ChargeThermistorOverTemp | UnderTemp

func (r Reason) Has(b Reason) bool { return r&b != 0 }

// With sets or clears bits b.
func (r Reason) With(b Reason, on bool) Reason {
	if on {
		return r | b
	}
	return r &^ b
}

func (r Reason) Detect() types.Detect { return types.Detect(r & detectMask) }

func (r Reason) WithDetect(d types.Detect) Reason {
	return r&^detectMask | Reason(d)&detectMask
}

// Clear reports whether no blocking category is set.
func (r Reason) Clear() bool { return r&Blocking == 0 }

// LogBytes returns the two packed bytes stored per event.
func (r Reason) LogBytes() [2]byte { return [2]byte{byte(r >> 8), byte(r)} }

// FromLogBytes rebuilds a Reason from its stored bytes.
func FromLogBytes(b [2]byte) Reason { return Reason(b[0])<<8 | Reason(b[1]) }

var reasonNames = []struct {
	bit  Reason
	name string
}{
	{IntOverTempAFE, "int_overtemp_afe"},
	{ExtOverTempAFE, "ext_overtemp_afe"},
	{IntOverTemp, "int_overtemp"},
	{ThermistorOverTemp, "thermistor_overtemp"},
	{UnderTemp, "undertemp"},
	{ChargeOverCurrent, "charge_oc"},
	{DischargeOverCurrent, "discharge_oc"},
	{ShortCircuit, "short_circuit"},
	{ShuntOverCurrent, "shunt_oc"},
	{ChargeIntOverTemp, "charge_int_overtemp"},
	{ChargeThermistorOverTemp, "charge_thermistor_overtemp"},
	{TempHysteresis, "temp_hysteresis"},
	{BrownOut, "brownout"},
	{CriticalComm, "critical_comm"},
}

// String lists set categories joined by '|', followed by the detect mode.
func (r Reason) String() string {
	var b strings.Builder
	for _, n := range reasonNames {
		if r.Has(n.bit) {
			if b.Len() > 0 {
				b.WriteByte('|')
			}
			b.WriteString(n.name)
		}
	}
	if b.Len() == 0 {
		b.WriteString("none")
	}
	b.WriteString(" detect=")
	b.WriteString(r.Detect().String())
	return b.String()
}
