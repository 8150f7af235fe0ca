// Package screwcell coordinates a six-joint robot arm and an automated
// screwdriver mounted on it.
//
// A line-oriented robot script is parsed into motion and tool commands and
// executed strictly in order. Before each command the sequencer waits until
// the screwdriver reports idle (from its live telemetry feed) and the arm has
// stopped moving.
//
// # Installation
//
//	go install github.com/gwillem/screwcell/cmd/screwcell@latest
//
// # Usage
//
// First, run setup to enter the tool box and robot controller addresses:
//
//	screwcell setup
//
// Then run a script, or open the operator console:
//
//	screwcell run assembly.script
//	screwcell console --script assembly.script
//
// # Packages
//
// The module is organized into the following packages:
//
//   - cmd/screwcell: CLI with setup, status, run, tool and console commands
//   - pkg/telemetry: screwdriver telemetry channel and snapshot cache
//   - pkg/tool: screwdriver HTTP command client
//   - pkg/robot: arm realtime link, joint state and named poses
//   - pkg/script: robot script parser and built-in routines
//   - pkg/sequencer: gated, ordered command execution
//   - pkg/monitor: periodic link and tool health sampling
//   - pkg/config, pkg/logging, pkg/link, pkg/fault: shared infrastructure
package screwcell
