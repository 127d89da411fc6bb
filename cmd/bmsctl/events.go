package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bmscode-go/services/eventlog"
	"bmscode-go/services/fault"
	"bmscode-go/x/timex"
)

var formatBanner string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Work with fault-log storage images",
}

var eventsDecodeCmd = &cobra.Command{
	Use:   "decode <image>",
	Short: "Decode a 256-byte storage image",
	Long: `Decode a raw dump of the pack's non-volatile storage: the identification
banner, the total output runtime and every logged fault event, oldest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runEventsDecode,
}

var eventsFormatCmd = &cobra.Command{
	Use:   "format <image>",
	Short: "Write a freshly formatted storage image",
	Args:  cobra.ExactArgs(1),
	RunE:  runEventsFormat,
}

func init() {
	eventsFormatCmd.Flags().StringVar(&formatBanner, "banner", "bmscode", "Identification banner")
	eventsCmd.AddCommand(eventsDecodeCmd, eventsFormatCmd)
	rootCmd.AddCommand(eventsCmd)
}

func runEventsDecode(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	img, err := eventlog.Decode(raw)
	if err != nil {
		return err
	}
	fmt.Printf("Banner:  %q\n", img.Banner)
	fmt.Printf("Runtime: %d ticks (%s)\n", img.Runtime, timex.Duration(img.Runtime, timex.DefaultTick))
	fmt.Printf("Cursor:  0x%02X\n", img.Cursor)
	printEvents(img.Events)
	return nil
}

func runEventsFormat(cmd *cobra.Command, args []string) error {
	if len(formatBanner) > eventlog.BannerLen {
		return fmt.Errorf("banner longer than %d bytes", eventlog.BannerLen)
	}
	m := eventlog.NewMemory()
	if err := eventlog.Format(m, formatBanner); err != nil {
		return err
	}
	if err := os.WriteFile(args[0], m[:], 0o644); err != nil {
		return err
	}
	fmt.Printf("Formatted image written to %s\n", args[0])
	return nil
}

func printEvents(events []eventlog.Slot) {
	if len(events) == 0 {
		fmt.Println("No fault events logged")
		return
	}
	fmt.Printf("\n%d fault event(s):\n", len(events))
	for _, e := range events {
		fmt.Printf("  0x%02X  %-10s  %-28s  %s\n",
			e.Addr,
			timex.Duration(e.Runtime, timex.DefaultTick),
			fault.SignalFor(e.Reason, false),
			e.Reason)
	}
}
