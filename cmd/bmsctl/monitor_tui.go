package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"bmscode-go/services/fault"
	"bmscode-go/services/telemetry"
	"bmscode-go/types"
	"bmscode-go/x/timex"
)

const (
	maxLogEntries = 12
	barWidth      = 20
	barLowMilliV  = 2700
	barHighMilliV = 4200
)

type logEntry struct {
	at      time.Time
	message string
	isError bool
}

// monitorModel is the Bubble Tea model for the live dashboard.
type monitorModel struct {
	connInfo string
	frames   int
	last     *telemetry.Frame
	log      []logEntry
	ended    error
	width    int
	height   int
	quitting bool
}

type frameMsg telemetry.Frame

type streamEndMsg struct {
	err error
}

func newMonitorModel(connInfo string) monitorModel {
	return monitorModel{
		connInfo: connInfo,
		width:    80,
		height:   24,
	}
}

func (m monitorModel) Init() tea.Cmd {
	return nil
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case frameMsg:
		f := telemetry.Frame(msg)
		m.frames++
		m.track(f)
		m.last = &f

	case streamEndMsg:
		m.ended = msg.err
		if errors.Is(msg.err, io.EOF) {
			m.addLogEntry("End of stream", false)
		} else {
			m.addLogEntry(fmt.Sprintf("STREAM ERROR: %v", msg.err), true)
		}
	}
	return m, nil
}

// track logs the differences between the previous frame and f.
func (m *monitorModel) track(f telemetry.Frame) {
	if m.last == nil {
		m.addLogEntry(fmt.Sprintf("tick %d: first frame, state %s", f.Tick, f.State), false)
		return
	}
	p := m.last
	if f.State != p.State {
		m.addLogEntry(fmt.Sprintf("tick %d: state %s -> %s", f.Tick, p.State, f.State), f.State == types.StateError)
	}
	if f.Detect != p.Detect {
		m.addLogEntry(fmt.Sprintf("tick %d: detect %s", f.Tick, f.Detect), false)
	}
	if added := f.Past &^ p.Past; added != 0 {
		m.addLogEntry(fmt.Sprintf("tick %d: fault %s", f.Tick, fault.Reason(added)), true)
	}
	if f.CommErrs > p.CommErrs {
		m.addLogEntry(fmt.Sprintf("tick %d: AFE transport error (%d)", f.Tick, f.CommErrs), true)
	}
}

func (m *monitorModel) addLogEntry(message string, isError bool) {
	m.log = append(m.log, logEntry{at: time.Now(), message: message, isError: isError})
	if len(m.log) > maxLogEntries {
		m.log = m.log[len(m.log)-maxLogEntries:]
	}
}

func cellBar(mv uint16) string {
	n := 0
	if mv > barLowMilliV {
		n = int(mv-barLowMilliV) * barWidth / (barHighMilliV - barLowMilliV)
	}
	if n > barWidth {
		n = barWidth
	}
	return strings.Repeat("█", n) + strings.Repeat("░", barWidth-n)
}

func (m monitorModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	var s strings.Builder
	s.WriteString(titleStyle.Render("BMSCTL - PACK MONITOR"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | %d frames | Press 'q' to quit", m.connInfo, m.frames)))
	s.WriteString("\n\n")

	if m.last == nil {
		s.WriteString(warningStyle.Render("Waiting for telemetry..."))
		s.WriteString("\n\n")
	} else {
		f := m.last
		t := f.Telemetry

		stateStyle := valueStyle
		if f.State == types.StateError {
			stateStyle = errorStyle
		}
		var status strings.Builder
		status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("State:"), stateStyle.Render(f.State.String()),
			labelStyle.Render("Detect:"), valueStyle.Render(f.Detect.String()),
			labelStyle.Render("FETs:"), valueStyle.Render(fetString(f.FETs)),
		))
		status.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("Tick:"), valueStyle.Render(fmt.Sprintf("%d", f.Tick)),
			labelStyle.Render("Runtime:"), valueStyle.Render(timex.Duration(f.Runtime, timex.DefaultTick).String()),
			labelStyle.Render("Comm errors:"), func() string {
				if f.CommErrs > 0 {
					return errorStyle.Render(fmt.Sprintf("%d", f.CommErrs))
				}
				return valueStyle.Render("0")
			}(),
		))
		s.WriteString(boxStyle.Render(status.String()))
		s.WriteString("\n")

		var cells strings.Builder
		for i, mv := range t.CellMilliV {
			style := valueStyle
			switch uint8(i + 1) {
			case t.Stats.MinCell:
				style = warningStyle
			case t.Stats.MaxCell:
				style = labelStyle
			}
			cells.WriteString(fmt.Sprintf("%s %s %s\n",
				labelStyle.Render(fmt.Sprintf("Cell %d", i+1)),
				style.Render(fmt.Sprintf("%4d mV", mv)),
				headerStyle.Render(cellBar(mv)),
			))
		}
		cells.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("Delta:"), valueStyle.Render(fmt.Sprintf("%d mV", t.Stats.DeltaMilliV)),
			labelStyle.Render("Internal:"), valueStyle.Render(fmt.Sprintf("%d °C", t.InternalTempC)),
			labelStyle.Render("External:"), valueStyle.Render(fmt.Sprintf("%d °C", t.ExternalTempC)),
		))
		cells.WriteString(fmt.Sprintf("\n%s %s",
			labelStyle.Render("Discharge:"), valueStyle.Render(fmt.Sprintf("%d mA", t.DischargeMilliA)),
		))
		s.WriteString(boxStyle.Render(cells.String()))
		s.WriteString("\n")

		if f.Past != 0 || f.Current != 0 {
			var faults strings.Builder
			faults.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Latched:"), errorStyle.Render(fault.Reason(f.Past).String())))
			faults.WriteString(fmt.Sprintf("%s %s", labelStyle.Render("Active: "), func() string {
				if f.Current == 0 {
					return valueStyle.Render("none")
				}
				return errorStyle.Render(fault.Reason(f.Current).String())
			}()))
			s.WriteString(boxStyle.Render(faults.String()))
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	if len(m.log) > 0 {
		s.WriteString(labelStyle.Render("Events:"))
		s.WriteString("\n")
		for _, e := range m.log {
			line := fmt.Sprintf("%s %s", e.at.Format("15:04:05"), e.message)
			if e.isError {
				s.WriteString(errorStyle.Render(line))
			} else {
				s.WriteString(headerStyle.Render(line))
			}
			s.WriteString("\n")
		}
	}
	return s.String()
}
