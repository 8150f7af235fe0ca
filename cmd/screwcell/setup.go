package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/screwcell/pkg/config"
	"github.com/gwillem/screwcell/pkg/logging"
	"github.com/gwillem/screwcell/pkg/robot"
	"github.com/gwillem/screwcell/pkg/sequencer"
	"github.com/gwillem/screwcell/pkg/telemetry"
	"github.com/gwillem/screwcell/pkg/tool"
)

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	subHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("14"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableGoodStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Padding(0, 1)
	tableErrorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Padding(0, 1)
)

const probeTimeout = 5 * time.Second

type SetupCommand struct {
	SkipCheck bool `long:"skip-check" description:"Save without probing the devices"`
}

func (c *SetupCommand) Execute(args []string) error {
	fmt.Println(headerStyle.Render("Screwcell Setup"))
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━"))
	fmt.Println()

	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return err
	}

	if err := editConfig(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if !c.SkipCheck {
		fmt.Println()
		fmt.Println(subHeaderStyle.Render("━━━ Checking devices ━━━"))
		fmt.Println()
		fmt.Println(probeDevices(cfg))
	}

	if err := cfg.SaveTo(opts.Config); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Println()
	fmt.Println(successStyle.Render("Setup complete!"))
	fmt.Printf("Configuration saved to %s\n", opts.Config)
	fmt.Println()
	fmt.Println("Open the operator console with: " + headerStyle.Render("screwcell console"))
	return nil
}

// editConfig asks for the cell addresses, pre-filled from cfg.
func editConfig(cfg *config.Config) error {
	toolID := strconv.Itoa(cfg.Tool.ToolID)
	robotPort := strconv.Itoa(cfg.Robot.Port)
	policy := cfg.Sequencer.UnknownToolState

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Tool box address").Value(&cfg.Tool.Host).Validate(required),
			huh.NewInput().Title("Tool username").Value(&cfg.Tool.Username).Validate(required),
			huh.NewInput().Title("Tool password").
				Description("Leave empty to use " + config.EnvToolPassword).
				EchoMode(huh.EchoModePassword).
				Value(&cfg.Tool.Password),
			huh.NewInput().Title("Tool id").Value(&toolID).Validate(nonNegativeInt),
		).Title("Screwdriver"),
		huh.NewGroup(
			huh.NewInput().Title("Robot controller address").Value(&cfg.Robot.Host).Validate(required),
			huh.NewInput().Title("Realtime port").Value(&robotPort).Validate(nonNegativeInt),
			huh.NewSelect[string]().
				Title("Before the first telemetry arrives").
				Options(
					huh.NewOption("Wait for telemetry (safe)", sequencer.WaitForTelemetry.String()),
					huh.NewOption("Assume the tool is idle", sequencer.AssumeIdle.String()),
				).
				Value(&policy),
		).Title("Robot"),
	)
	if err := form.Run(); err != nil {
		return errCanceled
	}

	cfg.Tool.ToolID, _ = strconv.Atoi(toolID)
	cfg.Robot.Port, _ = strconv.Atoi(robotPort)
	cfg.Sequencer.UnknownToolState = policy
	return nil
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("required")
	}
	return nil
}

func nonNegativeInt(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return fmt.Errorf("must be a whole number")
	}
	return nil
}

// probeDevices checks each device once and renders the outcome.
func probeDevices(cfg *config.Config) string {
	logger, closeLog, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, File: cfg.Log.File, Quiet: true})
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	defer closeLog()

	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	type check struct {
		name, target string
		err          error
	}
	var checks []check

	err = tool.New(cfg.ToolClient(), nil, logger).Ping(ctx)
	checks = append(checks, check{"Tool endpoint", "http://" + cfg.Tool.Host, err})

	arm := robot.NewArm(cfg.Arm(), logger)
	err = nil
	if !arm.Connect(ctx) {
		err = arm.Status().LastError()
	}
	arm.Close()
	checks = append(checks, check{"Robot controller", fmt.Sprintf("%s:%d", cfg.Robot.Host, cfg.Robot.Port), err})

	cache := telemetry.NewCache()
	ch := telemetry.NewChannel(cfg.Telemetry(), cache, logger)
	teleCtx, teleCancel := context.WithCancel(ctx)
	go ch.Run(teleCtx)
	err = fmt.Errorf("no screwdriver snapshot within %v", probeTimeout)
	for ctx.Err() == nil {
		if _, ok := cache.Current(); ok {
			err = nil
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil && ch.Status().LastError() != nil {
		err = ch.Status().LastError()
	}
	teleCancel()
	checks = append(checks, check{"Telemetry", "ws://" + cfg.Tool.Host, err})

	rows := make([][]string, len(checks))
	for i, c := range checks {
		result := "ok"
		if c.err != nil {
			result = c.err.Error()
		}
		rows[i] = []string{c.name, c.target, result}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Device", "Address", "Result").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			if col == 2 {
				if checks[row].err == nil {
					return tableGoodStyle
				}
				return tableErrorStyle
			}
			return tableCellStyle
		})
	return t.Render()
}
