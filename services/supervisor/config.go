package supervisor

import (
	"errors"

	"bmscode-go/services/fault"
)

// Config holds the supervisor thresholds. Timeouts are in timebase ticks.
type Config struct {
	Limits fault.Limits

	MinCellMilliV     uint16 // below this the pack is fully discharged
	MaxCellMilliV     uint16 // charging stops above this
	ChargeRearmMilliV uint16 // a completed charge re-arms below this
	LowCellWarnMilliV uint16

	IdleSleepTimeout      uint32
	ErrorSleepTimeout     uint32
	ChargeWaitTimeout     uint32
	ChargeCompleteTimeout uint32
	ErrorExitTimeout      uint32

	// Fault indication cycles shown before Error may exit.
	FaultClearCycles uint32
	// Consecutive transport-error ticks that escalate to Error.
	CriticalCommErrors uint8
	// Bus recovery attempts during bring-up.
	BringUpAttempts int

	SleepAfterChargeComplete bool
	DisableSleep             bool
	FirmwareVersion          uint8
}

func DefaultConfig() Config {
	return Config{
		Limits:                   fault.DefaultLimits(),
		MinCellMilliV:            2700,
		MaxCellMilliV:            4200,
		ChargeRearmMilliV:        4100,
		LowCellWarnMilliV:        3200,
		IdleSleepTimeout:         938,
		ErrorSleepTimeout:        1876,
		ChargeWaitTimeout:        2188,
		ChargeCompleteTimeout:    313,
		ErrorExitTimeout:         94,
		FaultClearCycles:         3,
		CriticalCommErrors:       2,
		BringUpAttempts:          3,
		SleepAfterChargeComplete: true,
		FirmwareVersion:          1,
	}
}

func (c Config) Validate() error {
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if c.MinCellMilliV >= c.MaxCellMilliV {
		return errors.New("MinCellMilliV must be below MaxCellMilliV")
	}
	if c.ChargeRearmMilliV >= c.MaxCellMilliV || c.ChargeRearmMilliV <= c.MinCellMilliV {
		return errors.New("ChargeRearmMilliV must lie between the cell limits")
	}
	if c.CriticalCommErrors == 0 {
		return errors.New("CriticalCommErrors must be at least 1")
	}
	if c.FaultClearCycles == 0 {
		return errors.New("FaultClearCycles must be at least 1")
	}
	if c.BringUpAttempts < 1 {
		return errors.New("BringUpAttempts must be at least 1")
	}
	return nil
}
