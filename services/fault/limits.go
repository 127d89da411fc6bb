package fault

import "errors"

// Limits are the protection boundaries. Upper temperature and current
// limits pass strictly below the limit; the lower limit passes strictly above.
type Limits struct {
	MaxChargeTempC     int16
	MaxDischargeTempC  int16
	MinTempC           int16
	MaxDischargeMilliA uint16
	HysteresisC        int16
}

func DefaultLimits() Limits {
	return Limits{
		MaxChargeTempC:     50,
		MaxDischargeTempC:  73,
		MinTempC:           -20,
		MaxDischargeMilliA: 30000,
		HysteresisC:        3,
	}
}

func (l Limits) Validate() error {
	if l.MaxChargeTempC >= l.MaxDischargeTempC {
		return errors.New("MaxChargeTempC must be below MaxDischargeTempC")
	}
	if l.MinTempC >= l.MaxChargeTempC {
		return errors.New("MinTempC must be below MaxChargeTempC")
	}
	if l.MaxDischargeMilliA == 0 {
		return errors.New("MaxDischargeMilliA must be set")
	}
	if l.HysteresisC < 0 {
		return errors.New("HysteresisC must not be negative")
	}
	return nil
}
