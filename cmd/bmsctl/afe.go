package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"bmscode-go/drivers/isl94208"
)

var (
	afeBus  string
	afeAddr uint16
	afeInit bool
)

var afeCmd = &cobra.Command{
	Use:   "afe",
	Short: "Talk to an ISL94208 on a Linux I2C bus",
	Long: `Drive an AFE on a bench fixture through a Linux I2C adapter, using the
same driver the firmware runs.`,
}

var afeDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Read and decode every register",
	RunE:  runAFEDump,
}

var afeSleepCmd = &cobra.Command{
	Use:   "sleep",
	Short: "Send the sleep command sequence",
	RunE:  runAFESleep,
}

func init() {
	afeCmd.PersistentFlags().StringVar(&afeBus, "bus", "", "I2C bus name or number (empty picks the first)")
	afeCmd.PersistentFlags().Uint16Var(&afeAddr, "addr", isl94208.AddressDefault, "7-bit device address")
	afeDumpCmd.Flags().BoolVar(&afeInit, "init", false, "Apply the power-on configuration first")
	afeCmd.AddCommand(afeDumpCmd, afeSleepCmd)
	rootCmd.AddCommand(afeCmd)
}

// openAFE opens the selected bus and returns a driver bound to it.
func openAFE() (*isl94208.Device, i2c.BusCloser, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("host init: %w", err)
	}
	bus, err := i2creg.Open(afeBus)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open I2C bus %q: %w", afeBus, err)
	}
	cfg := isl94208.DefaultConfig()
	cfg.Address = afeAddr
	if err := cfg.Validate(); err != nil {
		bus.Close()
		return nil, nil, err
	}
	return isl94208.New(bus, cfg), bus, nil
}

func runAFEDump(cmd *cobra.Command, args []string) error {
	dev, bus, err := openAFE()
	if err != nil {
		return err
	}
	defer bus.Close()

	if afeInit {
		if err := dev.Init(); err != nil {
			return fmt.Errorf("init: %w", err)
		}
		fmt.Println("Power-on configuration applied")
	}
	if err := dev.Refresh(isl94208.Registers()...); err != nil {
		return fmt.Errorf("read: %w", err)
	}

	fmt.Printf("ISL94208 @ 0x%02X on %s\n\n", afeAddr, bus)
	for _, r := range isl94208.Registers() {
		v := dev.Cached(r)
		fmt.Printf("  0x%X  %-14s 0x%02X  %08b\n", uint8(r), r, v, v)
	}

	fmt.Println()
	for _, fd := range afeFields {
		fmt.Printf("  %-24s %d\n", fd.name, dev.GetBitsCached(fd.f))
	}
	if dev.BrownedOut() {
		fmt.Println("\nUser flags or wake polarity lost: device needs init")
	}
	return nil
}

func runAFESleep(cmd *cobra.Command, args []string) error {
	dev, bus, err := openAFE()
	if err != nil {
		return err
	}
	defer bus.Close()
	if err := dev.Sleep(); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	fmt.Println("Sleep sequence sent")
	return nil
}

var afeFields = []struct {
	name string
	f    isl94208.Field
}{
	{"wake", isl94208.WakeStatus},
	{"discharge_over_current", isl94208.OverCurrentDischarge},
	{"charge_over_current", isl94208.OverCurrentCharge},
	{"short_circuit", isl94208.ShortCircuit},
	{"ext_over_temp", isl94208.ExtOverTemp},
	{"int_over_temp", isl94208.IntOverTemp},
	{"discharge_fet", isl94208.DischargeFET},
	{"charge_fet", isl94208.ChargeFET},
	{"analog_select", isl94208.AnalogOutSelect},
	{"user_flag0", isl94208.UserFlag0},
	{"user_flag1", isl94208.UserFlag1},
	{"wake_polarity", isl94208.WakePolarity},
	{"write_enables", isl94208.WriteEnables},
}
