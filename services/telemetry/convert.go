package telemetry

import (
	"bmscode-go/types"
	"bmscode-go/x/mathx"
)

// Raw ADC results are 10-bit.
const adcSpan = 1024

// AFEOutMilliV converts a sample of the AFE analog output, rounding to the
// centre of the code bin.
func AFEOutMilliV(raw uint16, vrefMilliV uint32) uint16 {
	return uint16(((uint32(raw)*2+1)*vrefMilliV + adcSpan) / (2 * adcSpan))
}

// ADCMilliV converts a direct ADC sample.
func ADCMilliV(raw uint16, vrefMilliV uint32) uint16 {
	return uint16(uint32(raw) * vrefMilliV / adcSpan)
}

// ShuntMilliA converts a discharge shunt sample to milliamps, saturating
// at the top of the uint16 range.
func ShuntMilliA(raw uint16, vrefMilliV, shuntMilliOhm uint32) uint16 {
	if shuntMilliOhm == 0 {
		return 0
	}
	ma := uint64(raw) * uint64(vrefMilliV) * 1000 / adcSpan / uint64(shuntMilliOhm)
	return uint16(mathx.Min(ma, 0xFFFF))
}

// InternalTempC converts the AFE temperature output: refMilliV at refC,
// falling 3.5 mV per degree.
func InternalTempC(mv uint16, refMilliV, refC int16) int16 {
	return 2*(refMilliV-int16(mv))/7 + refC
}

// Classify maps the detect-line voltage to a Detect mode. A reading
// exactly on the charger threshold is neither trigger nor charger.
func Classify(mv, chargerMilliV, triggerMilliV uint16) types.Detect {
	switch {
	case mv > chargerMilliV:
		return types.DetectCharger
	case mv < chargerMilliV && mv > triggerMilliV:
		return types.DetectTrigger
	default:
		return types.DetectNone
	}
}
