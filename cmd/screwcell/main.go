package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config   string `short:"c" long:"config" default:"screwcell.json" description:"Cell config file (JSON, or YAML by extension)"`
	LogLevel string `long:"log-level" description:"Override log level (debug, info, warn, error)"`
	LogFile  string `long:"log-file" description:"Append diagnostic logs to this file"`

	Setup    SetupCommand   `command:"setup" description:"Configure the tool box and robot addresses"`
	Status   StatusCommand  `command:"status" description:"Show link health and screwdriver state"`
	Run      RunCommand     `command:"run" description:"Execute a robot script"`
	Parse    ParseCommand   `command:"parse" description:"List the commands a script would execute"`
	Tool     ToolCommand    `command:"tool" description:"Run one screwdriver operation"`
	Move     MoveCommand    `command:"move" description:"Move the arm to a named pose"`
	ScrewIn  MacroCommand   `command:"screw-in" description:"Tighten, then back off (built-in routine)"`
	ScrewOut MacroCommand   `command:"screw-out" description:"Release a screw (built-in routine)"`
	Console  ConsoleCommand `command:"console" alias:"ui" description:"Interactive operator console"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "screwcell - coordinate a robot arm and a screwdriver tool"

	opts.ScrewIn.macro = "screw-in"
	opts.ScrewOut.macro = "screw-out"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
