package types

// ------------------------
// Pack topology
// ------------------------

// NumCells is the number of series cells in the pack.
const NumCells = 6

// ------------------------
// Detection
// ------------------------

// Detect classifies what is connected to the pack terminals.
// The numeric values are persisted in the two-bit detect field of fault events.
type Detect uint8

const (
	DetectNone    Detect = 0
	DetectTrigger Detect = 1
	DetectCharger Detect = 2
)

func (d Detect) String() string {
	switch d {
	case DetectNone:
		return "none"
	case DetectTrigger:
		return "trigger"
	case DetectCharger:
		return "charger"
	default:
		return "unknown"
	}
}

// ------------------------
// Operating state
// ------------------------

type State uint8

const (
	StateInit State = iota
	StateSleep
	StateIdle
	StateCharging
	StateChargingWait
	StateCellBalance
	StateOutputEnabled
	StateError
)

var stateNames = [...]string{
	StateInit:          "init",
	StateSleep:         "sleep",
	StateIdle:          "idle",
	StateCharging:      "charging",
	StateChargingWait:  "charging_wait",
	StateCellBalance:   "cell_balance",
	StateOutputEnabled: "output_enabled",
	StateError:         "error",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// ------------------------
// Telemetry
// ------------------------

// CellStats summarises the averaged cell voltages. Cell ids are 1-based.
type CellStats struct {
	MaxCell     uint8  `cbor:"1,keyasint"`
	MaxMilliV   uint16 `cbor:"2,keyasint"`
	MinCell     uint8  `cbor:"3,keyasint"`
	MinMilliV   uint16 `cbor:"4,keyasint"`
	DeltaMilliV uint16 `cbor:"5,keyasint"`
}

// Telemetry is the per-tick snapshot consumed by the fault engine.
type Telemetry struct {
	CellMilliV      [NumCells]uint16 `cbor:"1,keyasint"`
	Stats           CellStats        `cbor:"2,keyasint"`
	InternalTempC   int16            `cbor:"3,keyasint"`
	ExternalTempC   int16            `cbor:"4,keyasint"`
	DischargeMilliA uint16           `cbor:"5,keyasint"`
}
