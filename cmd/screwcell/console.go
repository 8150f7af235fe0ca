package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/NimbleMarkets/ntcharts/canvas/runes"
	"github.com/NimbleMarkets/ntcharts/linechart/streamlinechart"

	"github.com/gwillem/screwcell/pkg/monitor"
	"github.com/gwillem/screwcell/pkg/script"
	"github.com/gwillem/screwcell/pkg/sequencer"
	"github.com/gwillem/screwcell/pkg/telemetry"
	"github.com/gwillem/screwcell/pkg/tool"
)

type ConsoleCommand struct {
	Script string `short:"s" long:"script" description:"Script to run when 'r' is pressed"`
}

const (
	headerHeight = 2 // title + blank line
	statusHeight = 2 // link line + tool line
	legendHeight = 2 // legend row + blank
	footerHeight = 9 // log box height
	maxLogs      = 7 // number of log messages to show
	borderSize   = 2 // chart border

	checkTimeout = 5 * time.Second
)

const (
	seriesTorque   = "torque"
	seriesAchieved = "achieved"
	seriesShank    = "shank"
)

var seriesColors = map[string]string{
	seriesTorque:   "208", // orange
	seriesAchieved: "196", // red
	seriesShank:    "51",  // cyan
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	chartStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

type consoleModel struct {
	cell   *cell
	script string
	ctx    context.Context

	snapshots <-chan telemetry.Snapshot
	results   chan sequencer.Result

	torque *streamlinechart.Model
	shank  *streamlinechart.Model

	status   monitor.Status
	width    int
	height   int
	logs     []string
	quitting bool
}

func (m *consoleModel) addLog(msg string) {
	m.logs = append(m.logs, msg)
	if len(m.logs) > maxLogs {
		m.logs = m.logs[len(m.logs)-maxLogs:]
	}
}

// Messages from the cell
type snapshotMsg telemetry.Snapshot
type logMsg string
type resultMsg sequencer.Result
type doneMsg sequencer.Summary

func waitForSnapshot(ch <-chan telemetry.Snapshot) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(<-ch)
	}
}

func waitForLog(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		return logMsg(<-seq.Logs())
	}
}

func waitForResult(ch <-chan sequencer.Result) tea.Cmd {
	return func() tea.Msg {
		return resultMsg(<-ch)
	}
}

func waitForRun(r *sequencer.Run) tea.Cmd {
	return func() tea.Msg {
		return doneMsg(r.Wait())
	}
}

// chartSize returns the size of each of the two side-by-side charts.
func (m *consoleModel) chartSize() (width, height int) {
	if m.width == 0 || m.height == 0 {
		return 40, 15
	}
	width = m.width/2 - borderSize - 1
	if width < 30 {
		width = 30
	}
	height = m.height - headerHeight - statusHeight - legendHeight - footerHeight - borderSize
	if height < 8 {
		height = 8
	}
	return width, height
}

func (m *consoleModel) resizeCharts() {
	w, h := m.chartSize()
	m.torque.Resize(w, h)
	m.shank.Resize(w, h)
}

func newChart(maxY float64, series ...string) *streamlinechart.Model {
	chart := streamlinechart.New(40, 15, streamlinechart.WithYRange(0, maxY))
	for _, name := range series {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[name]))
		chart.SetDataSetStyles(name, runes.ThinLineStyle, style)
	}
	return &chart
}

func initialConsoleModel(ctx context.Context, cl *cell, scriptPath string) consoleModel {
	snapshots := make(chan telemetry.Snapshot, 16)
	cl.cache.Subscribe(func(s telemetry.Snapshot) {
		select {
		case snapshots <- s:
		default:
			// Drop if the view falls behind
		}
	})

	return consoleModel{
		cell:      cl,
		script:    scriptPath,
		ctx:       ctx,
		snapshots: snapshots,
		results:   make(chan sequencer.Result, 16),
		torque:    newChart(tool.MaxTorqueNm, seriesTorque, seriesAchieved),
		shank:     newChart(tool.MaxShankMm, seriesShank),
		status:    cl.monitor.Sample(),
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		waitForSnapshot(m.snapshots),
		waitForLog(m.cell.seq),
		waitForResult(m.results),
		tickSample(m.cell),
	)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeCharts()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if r := m.cell.seq.Active(); r != nil {
				r.Cancel()
			}
			m.quitting = true
			return m, tea.Quit
		case "r":
			return m, m.startScript()
		case "x":
			if r := m.cell.seq.Active(); r != nil {
				r.Cancel()
				m.addLog(warnStyle.Render("Canceling run " + r.ID[:8]))
			}
			return m, nil
		case "c":
			m.addLog(statusStyle.Render("Checking connections..."))
			return m, m.checkConnections()
		}

	case snapshotMsg:
		s := telemetry.Snapshot(msg)
		m.torque.PushDataSet(seriesTorque, s.CurrentTorqueNm)
		m.torque.PushDataSet(seriesAchieved, s.AchievedTorqueNm)
		m.shank.PushDataSet(seriesShank, s.ShankPositionMm)
		m.torque.DrawAll()
		m.shank.DrawAll()
		return m, waitForSnapshot(m.snapshots)

	case sampleMsg:
		m.status = monitor.Status(msg)
		return m, tickSample(m.cell)

	case logMsg:
		m.addLog(string(msg))
		return m, waitForLog(m.cell.seq)

	case resultMsg:
		r := sequencer.Result(msg)
		style := successStyle
		if !r.OK {
			style = errorStyle
		}
		m.addLog(style.Render(r.String()))
		return m, waitForResult(m.results)

	case doneMsg:
		sum := sequencer.Summary(msg)
		line := fmt.Sprintf("Run %s %s: %d ok, %d failed", sum.RunID[:8], sum.State, sum.Succeeded, sum.Failed)
		if sum.State == sequencer.Aborted {
			if sum.Err != nil {
				line += " (" + sum.Err.Error() + ")"
			}
			m.addLog(errorStyle.Render(line))
		} else {
			m.addLog(successStyle.Render(line))
		}
		return m, nil
	}

	return m, nil
}

// startScript parses the console's script and hands it to the sequencer.
func (m *consoleModel) startScript() tea.Cmd {
	if m.script == "" {
		m.addLog(warnStyle.Render("No script given (use --script)"))
		return nil
	}
	entries, err := script.ParseFile(m.script)
	if err != nil {
		m.addLog(errorStyle.Render(err.Error()))
		return nil
	}

	results, ctx := m.results, m.ctx
	sink := sequencer.SinkFunc(func(r sequencer.Result) {
		select {
		case results <- r:
		case <-ctx.Done():
		}
	})
	run, err := m.cell.seq.Start(ctx, entries, sink)
	if err != nil {
		m.addLog(errorStyle.Render(err.Error()))
		return nil
	}
	m.addLog(statusStyle.Render("Started run " + run.ID[:8] + " from " + m.script))
	return waitForRun(run)
}

// checkConnections dials the arm and pings the tool, since the monitor
// only ever reads link state.
func (m *consoleModel) checkConnections() tea.Cmd {
	cl, parent := m.cell, m.ctx
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, checkTimeout)
		defer cancel()

		var parts []string
		if cl.arm.Connect(ctx) {
			parts = append(parts, "robot ok")
		} else {
			parts = append(parts, fmt.Sprintf("robot: %v", cl.arm.Status().LastError()))
		}
		if err := cl.tool.Ping(ctx); err != nil {
			parts = append(parts, fmt.Sprintf("tool: %v", err))
		} else {
			parts = append(parts, "tool ok")
		}
		return logMsg(fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), strings.Join(parts, ", ")))
	}
}

func (m consoleModel) View() string {
	if m.quitting {
		return "Console closed.\n"
	}

	var sb strings.Builder

	// Header
	sb.WriteString(titleStyle.Render("Screwcell Console"))
	state := m.cell.seq.State().String()
	sb.WriteString(" - " + state)
	if m.width > 0 {
		sb.WriteString(statusStyle.Render(fmt.Sprintf("  [%dx%d]", m.width, m.height)))
	}
	sb.WriteString("\n\n")

	// Health
	linkStyle := successStyle
	if !m.status.Healthy() {
		linkStyle = errorStyle
	}
	sb.WriteString(linkStyle.Render(m.status.Line()))
	sb.WriteString("\n")
	sb.WriteString(renderToolState(m.status))
	sb.WriteString("\n")

	// Charts
	sb.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		chartStyle.Render(m.torque.View()),
		chartStyle.Render(m.shank.View()),
	))
	sb.WriteString("\n")

	// Legend
	sb.WriteString(renderLegend())
	sb.WriteString("\n")

	// Log box
	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Width(max(m.width-4, 20))

	logLines := statusStyle.Render("r: run script  x: cancel run  c: check connections  q: quit")
	if len(m.logs) > 0 {
		logLines = strings.Join(m.logs, "\n")
	}
	sb.WriteString(logStyle.Render(logLines))
	sb.WriteString("\n")

	return sb.String()
}

func renderLegend() string {
	labels := []struct{ name, label string }{
		{seriesTorque, "torque (Nm)"},
		{seriesAchieved, "achieved torque (Nm)"},
		{seriesShank, "shank position (mm)"},
	}
	items := make([]string, len(labels))
	for i, l := range labels {
		colorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(seriesColors[l.name])).Bold(true)
		items[i] = colorStyle.Render("━━") + " " + l.label
	}
	return strings.Join(items, "  ")
}

func (c *ConsoleCommand) Execute(args []string) error {
	cl, err := openCell(true)
	if err != nil {
		return err
	}
	defer cl.Close()

	fmt.Printf("Loaded configuration from %s\n", opts.Config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(initialConsoleModel(ctx, cl, c.Script), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running console: %w", err)
	}
	if r := cl.seq.Active(); r != nil {
		r.Cancel()
		r.Wait()
	}
	return nil
}
