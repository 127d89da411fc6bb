package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"bmscode-go/bus"
	"bmscode-go/drivers/isl94208"
	"bmscode-go/services/fault"
	"bmscode-go/services/telemetry"
)

var (
	monitorFile    string
	monitorTUI     bool
	monitorChanges bool
	monitorRecord  string
)

var (
	topicFrame = bus.T("stream", "frame")
	topicEnd   = bus.T("stream", "end")
	topicAll   = bus.T("stream", "#")
)

// streamEnd is published once when the source is exhausted or fails.
type streamEnd struct {
	err error
}

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Follow the firmware telemetry stream",
	Long: `Decode the CBOR telemetry frames the firmware writes once per tick on its
telemetry UART, or replay a stream recorded with 'bmsctl sim --frames'.

  Serial: --port /dev/ttyUSB0 [--baud 115200]
  File:   --file frames.cbor`,
	RunE: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVar(&monitorFile, "file", "", "Replay frames from a file")
	monitorCmd.Flags().BoolVar(&monitorTUI, "tui", false, "Live dashboard")
	monitorCmd.Flags().BoolVar(&monitorChanges, "changes", false, "Print only frames whose state or faults changed")
	monitorCmd.Flags().StringVar(&monitorRecord, "record", "", "Also write every frame to this file")
	rootCmd.AddCommand(monitorCmd)
}

// openStream opens the frame source selected by the flags.
func openStream() (io.ReadCloser, string, error) {
	if monitorFile != "" {
		f, err := os.Open(monitorFile)
		if err != nil {
			return nil, "", err
		}
		return f, "file " + monitorFile, nil
	}
	if portName == "" {
		return nil, "", errors.New("either --port or --file is required")
	}
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return port, fmt.Sprintf("%s @ %d baud", portName, baudRate), nil
}

// pump decodes frames and hands them to the hub. Lossless pumps wait
// for every subscriber; otherwise slow subscribers see only recent frames.
func pump(ctx context.Context, fr *telemetry.FrameReader, conn *bus.Connection, lossless bool) {
	for {
		f, err := fr.Next()
		if err != nil {
			_ = conn.Deliver(ctx, topicEnd, streamEnd{err: err})
			return
		}
		if !lossless {
			conn.Publish(topicFrame, f, true)
			continue
		}
		if conn.Deliver(ctx, topicFrame, f) != nil {
			return
		}
	}
}

// record writes every frame seen on sub to path until the stream ends
// or the subscription is closed.
func record(path string, sub *bus.Subscription, done chan<- error) {
	f, err := os.Create(path)
	if err != nil {
		done <- err
		return
	}
	w := bufio.NewWriter(f)
	var werr error
	keep := func(err error) {
		if werr == nil {
			werr = err
		}
	}
loop:
	for m := range sub.Channel() {
		switch p := m.Payload.(type) {
		case telemetry.Frame:
			if werr == nil {
				keep(telemetry.WriteFrame(w, p))
			}
		case streamEnd:
			break loop
		}
	}
	keep(w.Flush())
	keep(f.Close())
	done <- werr
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, info, err := openStream()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	hub := bus.New(64)
	consumers := hub.NewConnection("monitor")
	sub := consumers.Subscribe(topicAll)

	recorded := make(chan error, 1)
	if monitorRecord != "" {
		go record(monitorRecord, consumers.Subscribe(topicAll), recorded)
	}

	lossless := !monitorTUI || monitorRecord != ""
	go pump(ctx, telemetry.NewFrameReader(bufio.NewReader(conn)), hub.NewConnection("stream"), lossless)

	if monitorTUI {
		err = runMonitorTUI(sub, info)
	} else {
		err = printFrames(sub, info)
	}
	cancel()
	consumers.Disconnect()
	if monitorRecord != "" {
		if rerr := <-recorded; rerr != nil && err == nil {
			err = fmt.Errorf("record: %w", rerr)
		} else if err == nil {
			fmt.Printf("Frames recorded to %s\n", monitorRecord)
		}
	}
	return err
}

func printFrames(sub *bus.Subscription, info string) error {
	fmt.Printf("bmsctl monitor - %s\n", info)
	fmt.Printf("Press Ctrl+C to exit\n\n")
	var last *telemetry.Frame
	for m := range sub.Channel() {
		switch p := m.Payload.(type) {
		case telemetry.Frame:
			if monitorChanges && last != nil && !changed(*last, p) {
				continue
			}
			fmt.Println(formatFrame(p))
			last = &p
		case streamEnd:
			if errors.Is(p.err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode: %w", p.err)
		}
	}
	return nil
}

func runMonitorTUI(sub *bus.Subscription, info string) error {
	p := tea.NewProgram(newMonitorModel(info), tea.WithAltScreen())
	go func() {
		for m := range sub.Channel() {
			switch v := m.Payload.(type) {
			case telemetry.Frame:
				p.Send(frameMsg(v))
			case streamEnd:
				p.Send(streamEndMsg{err: v.err})
			}
		}
	}()
	_, err := p.Run()
	return err
}

func changed(a, b telemetry.Frame) bool {
	return a.State != b.State || a.Detect != b.Detect || a.Past != b.Past ||
		a.Current != b.Current || a.FETs != b.FETs || a.CommErrs != b.CommErrs
}

func fetString(fets uint8) string {
	var parts []string
	if fets&isl94208.DischargeFET.Mask() != 0 {
		parts = append(parts, "DSG")
	}
	if fets&isl94208.ChargeFET.Mask() != 0 {
		parts = append(parts, "CHG")
	}
	if len(parts) == 0 {
		return "off"
	}
	return strings.Join(parts, "+")
}

func formatFrame(f telemetry.Frame) string {
	t := f.Telemetry
	s := fmt.Sprintf("%7d %-14s %-7s min c%d %4dmV max c%d %4dmV d%3dmV int %3dC ext %3dC %5dmA fets %-7s",
		f.Tick, f.State, f.Detect,
		t.Stats.MinCell, t.Stats.MinMilliV, t.Stats.MaxCell, t.Stats.MaxMilliV, t.Stats.DeltaMilliV,
		t.InternalTempC, t.ExternalTempC, t.DischargeMilliA, fetString(f.FETs))
	if f.Past != 0 {
		s += " past " + fault.Reason(f.Past).String()
	}
	if f.Current != 0 {
		s += " now " + fault.Reason(f.Current).String()
	}
	if f.CommErrs != 0 {
		s += fmt.Sprintf(" comm_errs %d", f.CommErrs)
	}
	return s
}
