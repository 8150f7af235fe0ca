package main

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/screwcell/pkg/script"
	"github.com/gwillem/screwcell/pkg/sequencer"
)

const telemetryWait = 10 * time.Second

type RunCommand struct {
	Args struct {
		Script string `positional-arg-name:"script" required:"yes"`
	} `positional-args:"yes"`
}

func (c *RunCommand) Execute(args []string) error {
	entries, err := script.ParseFile(c.Args.Script)
	if err != nil {
		return err
	}
	fmt.Println(headerStyle.Render("Running " + c.Args.Script))
	return runSequence(entries)
}

type ParseCommand struct {
	Args struct {
		Script string `positional-arg-name:"script" required:"yes"`
	} `positional-args:"yes"`
}

func (c *ParseCommand) Execute(args []string) error {
	entries, err := script.ParseFile(c.Args.Script)
	if err != nil {
		return err
	}

	var rows [][]string
	var failed []int
	for e := range entries {
		status, detail := "ok", ""
		if e.Command != nil {
			detail = e.Command.String()
		}
		if e.Err != nil {
			status, detail = "error", e.Err.Error()
			failed = append(failed, len(rows))
		}
		rows = append(rows, []string{fmt.Sprint(e.Line), status, detail})
	}

	if len(rows) == 0 {
		fmt.Println(dimStyle.Render("No recognized commands (directives: " + strings.Join(script.Directives(), ", ") + ")"))
		return nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Line", "Status", "Command").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			for _, f := range failed {
				if f == row {
					return tableErrorStyle
				}
			}
			return tableCellStyle
		})
	fmt.Println(t.Render())
	fmt.Printf("%d command(s), %d malformed\n", len(rows)-len(failed), len(failed))
	return nil
}

type MoveCommand struct {
	Speed float64 `long:"speed" description:"Joint speed in rad/s (default from config)"`
	Accel float64 `long:"accel" description:"Joint acceleration in rad/s² (default from config)"`

	Args struct {
		Pose string `positional-arg-name:"pose" required:"yes"`
	} `positional-args:"yes"`
}

func (c *MoveCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	poses := cfg.Poses()
	q, ok := poses.Lookup(c.Args.Pose)
	if !ok {
		return fmt.Errorf("unknown pose %q (known: %s)", c.Args.Pose, strings.Join(poses.Names(), ", "))
	}
	cmd := script.MoveJoint{Target: q, Speed: c.Speed, Accel: c.Accel}
	fmt.Println(headerStyle.Render("Moving to " + c.Args.Pose))
	return runSequence(script.FromCommands(cmd))
}

// MacroCommand runs one of the built-in routines; macro is set in main.
type MacroCommand struct {
	macro string
}

func (c *MacroCommand) Execute(args []string) error {
	src, ok := script.Macro(c.macro)
	if !ok {
		return fmt.Errorf("unknown routine %q", c.macro)
	}
	fmt.Println(headerStyle.Render("Routine " + c.macro))
	return runSequence(script.Parse(src))
}

// runSequence opens the cell, executes entries and prints every result.
func runSequence(entries iter.Seq[script.Entry]) error {
	c, err := openCell(false)
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println(dimStyle.Render("Waiting for screwdriver telemetry..."))
	if !c.waitForTelemetry(ctx, telemetryWait) {
		fmt.Println(warnStyle.Render(fmt.Sprintf("No telemetry after %v; policy %q applies",
			telemetryWait, c.cfg.Sequencer.UnknownToolState)))
	}

	sum, err := c.seq.Execute(ctx, entries, sequencer.SinkFunc(printResult))
	if err != nil {
		return err
	}
	printSummary(sum)

	switch {
	case sum.State == sequencer.Aborted:
		return fmt.Errorf("sequence aborted: %w", sum.Err)
	case sum.Failed > 0:
		return fmt.Errorf("%d of %d command(s) failed", sum.Failed, sum.Total)
	}
	return nil
}

func printResult(r sequencer.Result) {
	mark := successStyle.Render("✓")
	if !r.OK {
		mark = errorStyle.Render("✗")
	}
	fmt.Printf("%s %s %s\n", mark, r.String(), dimStyle.Render(r.Elapsed.Round(time.Millisecond).String()))
}

func printSummary(sum sequencer.Summary) {
	fmt.Println(dimStyle.Render("━━━━━━━━━━━━━━━━━━━━━"))
	line := fmt.Sprintf("%d ok, %d failed, %d total", sum.Succeeded, sum.Failed, sum.Total)
	switch {
	case sum.State == sequencer.Aborted:
		fmt.Println(errorStyle.Render("Aborted: ") + line)
	case sum.Failed > 0:
		fmt.Println(warnStyle.Render("Finished: ") + line)
	default:
		fmt.Println(successStyle.Render("Finished: ") + line)
	}
}

// errCanceled is returned when the operator leaves a prompt.
var errCanceled = errors.New("canceled")
