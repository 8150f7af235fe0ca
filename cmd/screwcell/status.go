package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/screwcell/pkg/monitor"
)

const statusTelemetryWait = 3 * time.Second

type StatusCommand struct {
	Watch bool `short:"w" long:"watch" description:"Keep refreshing until 'q' is pressed"`
}

func (c *StatusCommand) Execute(args []string) error {
	cl, err := openCell(c.Watch)
	if err != nil {
		return err
	}
	defer cl.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The monitor never dials; probe the arm once so the table means something.
	cl.arm.Connect(ctx)

	if c.Watch {
		p := tea.NewProgram(statusModel{cell: cl, status: cl.monitor.Sample()}, tea.WithAltScreen())
		_, err := p.Run()
		return err
	}

	cl.waitForTelemetry(ctx, statusTelemetryWait)
	st := cl.monitor.Sample()
	fmt.Println(renderStatus(st))
	if !st.Healthy() {
		return fmt.Errorf("cell unhealthy: %s", st.Line())
	}
	return nil
}

// renderStatus renders a health sample as a link table followed by the
// screwdriver state.
func renderStatus(st monitor.Status) string {
	rows := make([][]string, len(st.Links))
	for i, l := range st.Links {
		detail := ""
		if l.Err != nil {
			detail = l.Err.Error()
		}
		since := ""
		if !l.Since.IsZero() {
			since = l.Since.Format("15:04:05")
		}
		rows[i] = []string{l.Name, l.State.String(), since, detail}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Link", "State", "Since", "Last error").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 1 {
				if st.Links[row].Up() {
					return tableGoodStyle
				}
				return tableErrorStyle
			}
			return tableCellStyle
		})

	var sb strings.Builder
	sb.WriteString(t.Render())
	sb.WriteString("\n")
	sb.WriteString(renderToolState(st))
	return sb.String()
}

func renderToolState(st monitor.Status) string {
	state := st.ToolState()
	style := successStyle
	switch state {
	case "idle":
	case "unknown":
		style = warnStyle
	default:
		style = errorStyle
		if st.Snapshot.ErrorCode == 0 {
			style = warnStyle
		}
	}

	line := "Screwdriver: " + style.Render(state)
	if !st.HasSnapshot {
		return line
	}
	s := st.Snapshot
	return line + dimStyle.Render(fmt.Sprintf("  shank %.1f/%.0f mm  torque %.2f Nm (achieved %.2f)  force %.0f N  age %v",
		s.ShankPositionMm, s.MaxShankPositionMm, s.CurrentTorqueNm, s.AchievedTorqueNm, s.ForceN,
		st.At.Sub(s.ReceivedAt).Round(100*time.Millisecond)))
}

type sampleMsg monitor.Status

func tickSample(cl *cell) tea.Cmd {
	return tea.Tick(cl.cfg.RefreshInterval(), func(time.Time) tea.Msg {
		return sampleMsg(cl.monitor.Sample())
	})
}

type statusModel struct {
	cell   *cell
	status monitor.Status
}

func (m statusModel) Init() tea.Cmd {
	return tickSample(m.cell)
}

func (m statusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case sampleMsg:
		m.status = monitor.Status(msg)
		return m, tickSample(m.cell)
	}
	return m, nil
}

func (m statusModel) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Screwcell Status"))
	sb.WriteString(statusStyle.Render("  " + m.status.At.Format("15:04:05")))
	sb.WriteString("\n\n")
	sb.WriteString(renderStatus(m.status))
	sb.WriteString("\n\n")
	sb.WriteString(statusStyle.Render("Press 'q' to quit"))
	sb.WriteString("\n")
	return sb.String()
}
