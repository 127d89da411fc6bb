package telemetry

import "bmscode-go/x/mathx"

// lutPoint is one (millivolt, encoded temperature) entry. Temperatures are
// stored offset by lutOffsetC to keep the table unsigned.
type lutPoint struct {
	mv   int32
	temp int32
}

const lutOffsetC = 20

// Pack thermistor divider, ascending voltage.
var thermistorLUT = [...]lutPoint{
	{45, 119}, {47, 117}, {49, 115}, {51, 113}, {53, 111}, {56, 109}, {58, 107}, {61, 105},
	{64, 103}, {66, 101}, {69, 99}, {73, 97}, {76, 95}, {79, 93}, {83, 91}, {87, 89},
	{91, 87}, {95, 85}, {99, 83}, {103, 81}, {108, 79}, {112, 77}, {117, 75}, {122, 73},
	{127, 71}, {133, 69}, {138, 67}, {144, 65}, {149, 63}, {155, 61}, {161, 59}, {167, 57},
	{173, 55}, {179, 53}, {185, 51}, {191, 49}, {198, 47}, {204, 45}, {210, 43}, {216, 41},
	{222, 39}, {228, 37}, {234, 35}, {239, 33}, {245, 31}, {250, 29}, {255, 27}, {261, 25},
	{267, 23}, {273, 21}, {279, 19}, {285, 17}, {291, 15}, {297, 13}, {303, 11}, {309, 9},
	{315, 7}, {321, 5}, {327, 3}, {333, 1},
}

// ThermistorTempC interpolates the thermistor table, clamping outside it.
func ThermistorTempC(mv uint16) int16 {
	v := int32(mv)
	first, last := thermistorLUT[0], thermistorLUT[len(thermistorLUT)-1]
	if v < first.mv {
		return int16(first.temp - lutOffsetC)
	}
	for i := 0; i < len(thermistorLUT)-1; i++ {
		a, b := thermistorLUT[i], thermistorLUT[i+1]
		if v >= a.mv && v < b.mv {
			return int16(mathx.Interp(v, a.mv, b.mv, a.temp, b.temp) - lutOffsetC)
		}
	}
	return int16(last.temp - lutOffsetC)
}

// TempSource yields the external pack temperature.
type TempSource interface {
	TempC() (int16, error)
}

// Thermistor reads the pack thermistor on its own ADC channel.
type Thermistor struct {
	adc        ADC
	vrefMilliV uint32
}

func NewThermistor(adc ADC, vrefMilliV uint32) *Thermistor {
	return &Thermistor{adc: adc, vrefMilliV: vrefMilliV}
}

func (t *Thermistor) TempC() (int16, error) {
	t.adc.ZeroHold()
	return ThermistorTempC(ADCMilliV(t.adc.Read(ChanThermistor), t.vrefMilliV)), nil
}

// FixedTemp is a TempSource for boards without a thermistor fitted.
type FixedTemp int16

func (f FixedTemp) TempC() (int16, error) { return int16(f), nil }

// ThermistorMilliV is the inverse of ThermistorTempC, for simulation and
// bench calibration.
func ThermistorMilliV(tempC int16) uint16 {
	enc := int32(tempC) + lutOffsetC
	first, last := thermistorLUT[0], thermistorLUT[len(thermistorLUT)-1]
	if enc >= first.temp {
		return uint16(first.mv)
	}
	for i := 0; i < len(thermistorLUT)-1; i++ {
		a, b := thermistorLUT[i], thermistorLUT[i+1]
		if enc <= a.temp && enc > b.temp {
			return uint16(mathx.Interp(enc, a.temp, b.temp, a.mv, b.mv))
		}
	}
	return uint16(last.mv)
}
