package config

// Key: profile name. Val: JSON override applied to supervisor.DefaultConfig.

const profileDefault = `{}`

// Bench fixtures run from a lab supply and are never left unattended.
const profileBench = `{
  "DisableSleep": true,
  "ErrorExitTimeout": 31,
  "FaultClearCycles": 1
}`

// Cold-climate packs discharge down to -30 °C and stop charging earlier.
const profileCold = `{
  "Limits": {
    "MaxChargeTempC": 45,
    "MaxDischargeTempC": 73,
    "MinTempC": -30,
    "MaxDischargeMilliA": 30000,
    "HysteresisC": 5
  }
}`

var embeddedProfiles = map[string][]byte{
	"default": []byte(profileDefault),
	"bench":   []byte(profileBench),
	"cold":    []byte(profileCold),
}
