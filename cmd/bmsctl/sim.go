package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bmscode-go/services/config"
	"bmscode-go/services/telemetry"
	"bmscode-go/x/timex"
)

var (
	simTicks       int
	simFrames      string
	simList        bool
	simNoSleep     bool
	simVersion     uint8
	simWaitTimeout uint32
	simProfile     string
	simConfig      string
)

var simCmd = &cobra.Command{
	Use:   "sim [scenario]",
	Short: "Run the supervisor against a simulated pack",
	Long: `Run the real control loop, AFE driver, telemetry and LED sequencer against a
simulated pack and print state transitions and logged fault events.

One tick is one 32 ms timebase period. Use --list to see the scenarios and
--frames to record every tick as a CBOR telemetry stream that
'bmsctl monitor --file' can replay.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSim,
}

func init() {
	simCmd.Flags().IntVarP(&simTicks, "ticks", "n", 0, "Ticks to run (0 uses the scenario length)")
	simCmd.Flags().StringVarP(&simFrames, "frames", "f", "", "Write CBOR telemetry frames to this file")
	simCmd.Flags().BoolVarP(&simList, "list", "l", false, "List scenarios")
	simCmd.Flags().BoolVar(&simNoSleep, "no-sleep", false, "Skip the AFE sleep command")
	simCmd.Flags().Uint8Var(&simVersion, "fw-version", 1, "Firmware version shown on charger attach")
	simCmd.Flags().Uint32Var(&simWaitTimeout, "charge-wait", 0, "Charge rest period in ticks (0 keeps the default)")
	simCmd.Flags().StringVar(&simProfile, "profile", "default", "Configuration profile")
	simCmd.Flags().StringVar(&simConfig, "config", "", "JSON override file applied after the profile")
	rootCmd.AddCommand(simCmd)
}

func runSim(cmd *cobra.Command, args []string) error {
	if simList || len(args) == 0 {
		fmt.Println("Scenarios:")
		for _, sc := range scenarios {
			fmt.Printf("  %-15s %s\n", sc.name, sc.about)
		}
		fmt.Println("\nProfiles:")
		for _, name := range config.Profiles() {
			fmt.Printf("  %s\n", name)
		}
		return nil
	}
	sc, err := findScenario(args[0])
	if err != nil {
		return err
	}

	cfg, err := config.Load(simProfile)
	if err != nil {
		return err
	}
	if simConfig != "" {
		raw, err := os.ReadFile(simConfig)
		if err != nil {
			return err
		}
		if cfg, err = config.Apply(cfg, raw); err != nil {
			return fmt.Errorf("%s: %w", simConfig, err)
		}
	}
	if cmd.Flags().Changed("no-sleep") {
		cfg.DisableSleep = simNoSleep
	}
	if cmd.Flags().Changed("fw-version") {
		cfg.FirmwareVersion = simVersion
	}
	if simWaitTimeout != 0 {
		cfg.ChargeWaitTimeout = simWaitTimeout
	}

	var report func(telemetry.Frame) error
	if simFrames != "" {
		f, err := os.Create(simFrames)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", simFrames, err)
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		report = func(fr telemetry.Frame) error { return telemetry.WriteFrame(w, fr) }
	}

	res, err := runScenario(sc, simTicks, cfg, report)
	if err != nil {
		return err
	}

	fmt.Printf("Scenario: %s (%s)\n\n", sc.name, sc.about)
	for _, n := range res.notes {
		fmt.Printf("  %6d  %8s  %s\n", n.tick, timex.Duration(n.tick, timex.DefaultTick), n.text)
	}
	fmt.Printf("\nFinal state: %s after %d ticks", res.final, res.ticks)
	if res.reset {
		fmt.Print(" (restart requested)")
	}
	fmt.Println()
	printEvents(res.events)
	if simFrames != "" {
		fmt.Printf("%d frames written to %s\n", res.frames, simFrames)
	}
	return nil
}
