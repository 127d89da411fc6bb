package fault

// Signal is the user-visible fault indication for a latched episode.
type Signal uint8

const (
	SignalGeneric Signal = iota
	SignalTemperature
	SignalExtOverTemp
	SignalChargeOverCurrent
	SignalDischargeOverCurrent
	SignalShortCircuit
	SignalShuntOverCurrent
	SignalUnderTemp
	SignalFullDischarge
)

var signalNames = [...]string{
	SignalGeneric:              "generic",
	SignalTemperature:          "temperature",
	SignalExtOverTemp:          "afe_ext_over_temp",
	SignalChargeOverCurrent:    "charge_over_current",
	SignalDischargeOverCurrent: "discharge_over_current",
	SignalShortCircuit:         "short_circuit",
	SignalShuntOverCurrent:     "shunt_over_current",
	SignalUnderTemp:            "under_temp",
	SignalFullDischarge:        "full_discharge",
}

func (s Signal) String() string {
	if int(s) < len(signalNames) {
		return signalNames[s]
	}
	return "unknown"
}

// SignalFor picks the indication for past in fixed priority order.
func SignalFor(past Reason, fullDischarge bool) Signal {
	switch {
	case past.Has(IntOverTempAFE | IntOverTemp | ThermistorOverTemp | ChargeIntOverTemp | ChargeThermistorOverTemp):
		return SignalTemperature
	case past.Has(ExtOverTempAFE):
		return SignalExtOverTemp
	case past.Has(ChargeOverCurrent):
		return SignalChargeOverCurrent
	case past.Has(DischargeOverCurrent):
		return SignalDischargeOverCurrent
	case past.Has(ShortCircuit):
		return SignalShortCircuit
	case past.Has(ShuntOverCurrent):
		return SignalShuntOverCurrent
	case past.Has(UnderTemp):
		return SignalUnderTemp
	case fullDischarge:
		return SignalFullDischarge
	default:
		return SignalGeneric
	}
}
