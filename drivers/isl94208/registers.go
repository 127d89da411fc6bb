// Package isl94208 is a minimal TinyGo driver for the ISL94208 multi-cell
// Li-ion analog front end.
//
// Design notes:
// • I2C, byte-wide registers, one-byte register pointer then data.
// • Default 7-bit address = 0x28 (0x50 on the wire).
// • Every transaction mirrors into a byte cache so hot paths can read
//   bit fields without bus traffic.
// • Transport errors latch until ClearErr, so a control loop can judge a
//   whole tick's register values at once.
package isl94208

// ---------------- Addresses ----------------

const AddressDefault uint16 = 0x28

// ---------------- Registers ----------------

type Register uint8

const (
	RegConfig Register = iota
	RegStatus
	RegFETControl
	RegAnalogOut
	RegFeatureSet
	RegWriteEnable
	RegDischargeSet
	RegChargeSet

	numRegisters
)

var regNames = [numRegisters]string{
	"config", "status", "fet_control", "analog_out",
	"feature_set", "write_enable", "discharge_set", "charge_set",
}

func (r Register) String() string {
	if r < numRegisters {
		return regNames[r]
	}
	return "unknown"
}

// Registers lists every register in address order.
func Registers() []Register {
	out := make([]Register, numRegisters)
	for i := range out {
		out[i] = Register(i)
	}
	return out
}

// ---------------- Fields ----------------

// Field addresses a bit range inside one register.
// Offset+Length must not exceed 8.
type Field struct {
	Reg    Register
	Offset uint8
	Length uint8
}

// Mask returns the in-register mask for the field.
func (f Field) Mask() uint8 { return genMask(f.Length) << f.Offset }

func (f Field) valid() bool {
	return f.Reg < numRegisters && f.Length > 0 && f.Offset+f.Length <= 8
}

var (
	WakeStatus = Field{RegConfig, 4, 1}

	OverCurrentDischarge = Field{RegStatus, 0, 1}
	OverCurrentCharge    = Field{RegStatus, 1, 1}
	ShortCircuit         = Field{RegStatus, 2, 1}
	ExtOverTemp          = Field{RegStatus, 4, 1}
	IntOverTemp          = Field{RegStatus, 5, 1}

	DischargeFET = Field{RegFETControl, 0, 1}
	ChargeFET    = Field{RegFETControl, 1, 1}
	SleepCtl     = Field{RegFETControl, 2, 1}

	AnalogOutSelect = Field{RegAnalogOut, 0, 4}
	UserFlag0       = Field{RegAnalogOut, 6, 1}
	UserFlag1       = Field{RegAnalogOut, 7, 1}

	WakePolarity = Field{RegFeatureSet, 2, 1}
	ForcePOR     = Field{RegFeatureSet, 7, 1}

	WriteEnables = Field{RegWriteEnable, 5, 3}
)

// ---------------- Analog output mux ----------------

type AnalogOut uint8

const (
	AnalogOff AnalogOut = iota
	AnalogCell1
	AnalogCell2
	AnalogCell3
	AnalogCell4
	AnalogCell5
	AnalogCell6
	AnalogExtTemp
	AnalogIntTemp
)

// CellChannel returns the mux selection for 1-based cell n.
func CellChannel(n int) AnalogOut { return AnalogCell1 + AnalogOut(n-1) }

// ---------------- Power-on configuration ----------------

const (
	// 100 mV discharge OC, 350 mV short circuit, 2.5 ms OC timeout.
	DischargeSetDefault uint8 = 0b00000100
	// 140 mV charge OC, 190 µs SC timeout, both OC delays divided down.
	ChargeSetDefault uint8 = 0b01001100
	// Both user flags set; losing them means the AFE lost power.
	AnalogOutDefault uint8 = 0b11000000
)

func genMask(length uint8) uint8 {
	if length >= 8 {
		return 0xFF
	}
	return uint8(1)<<length - 1
}
