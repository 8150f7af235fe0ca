package sequencer

import (
	"fmt"
	"time"
)

// UnknownToolPolicy decides what the gate does before the first
// screwdriver snapshot has arrived.
type UnknownToolPolicy int

const (
	// WaitForTelemetry holds every command until telemetry has been seen.
	WaitForTelemetry UnknownToolPolicy = iota
	// AssumeIdle treats a tool without telemetry as idle.
	AssumeIdle
)

func (p UnknownToolPolicy) String() string {
	if p == AssumeIdle {
		return "assume-idle"
	}
	return "wait"
}

// ParseUnknownToolPolicy parses "wait" or "assume-idle". Empty means wait.
func ParseUnknownToolPolicy(s string) (UnknownToolPolicy, error) {
	switch s {
	case "", "wait":
		return WaitForTelemetry, nil
	case "assume-idle":
		return AssumeIdle, nil
	default:
		return 0, fmt.Errorf("unknown tool state policy %q (want wait or assume-idle)", s)
	}
}

// Config holds the sequencer timing and policies.
type Config struct {
	// PollInterval is the gate re-poll interval.
	PollInterval time.Duration
	// SettleDelay is the pause after each dispatch.
	SettleDelay time.Duration
	// GateTimeout bounds one gate wait. Zero waits indefinitely.
	GateTimeout time.Duration
	// MotionRetries is the number of connection attempts for a motion
	// command whose link is down before the run aborts.
	MotionRetries int

	// Speed and Accel apply to moves that do not set their own.
	Speed float64
	Accel float64

	UnknownTool UnknownToolPolicy

	// Debug logs every joint sample taken by the gate.
	Debug bool
}

// DefaultConfig returns the production timing.
func DefaultConfig() Config {
	return Config{
		PollInterval:  500 * time.Millisecond,
		SettleDelay:   time.Second,
		GateTimeout:   2 * time.Minute,
		MotionRetries: 3,
		Speed:         0.5,
		Accel:         0.3,
		UnknownTool:   WaitForTelemetry,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.SettleDelay < 0 {
		c.SettleDelay = 0
	}
	if c.GateTimeout < 0 {
		c.GateTimeout = 0
	}
	if c.MotionRetries <= 0 {
		c.MotionRetries = 1
	}
	if c.Speed <= 0 {
		c.Speed = def.Speed
	}
	if c.Accel <= 0 {
		c.Accel = def.Accel
	}
	return c
}
