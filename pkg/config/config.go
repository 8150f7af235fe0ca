// Package config loads and saves the cell configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gwillem/screwcell/pkg/robot"
	"github.com/gwillem/screwcell/pkg/sequencer"
	"github.com/gwillem/screwcell/pkg/telemetry"
	"github.com/gwillem/screwcell/pkg/tool"
)

const DefaultConfigFile = "screwcell.json"

// Environment overrides, also read from a .env file in the working directory.
const (
	EnvToolHost     = "SCREWCELL_TOOL_HOST"
	EnvToolUsername = "SCREWCELL_TOOL_USERNAME"
	EnvToolPassword = "SCREWCELL_TOOL_PASSWORD"
	EnvRobotHost    = "SCREWCELL_ROBOT_HOST"
)

// Config holds the cell configuration
type Config struct {
	Tool      ToolConfig      `json:"tool" yaml:"tool"`
	Robot     RobotConfig     `json:"robot" yaml:"robot"`
	Sequencer SequencerConfig `json:"sequencer" yaml:"sequencer"`
	Monitor   MonitorConfig   `json:"monitor" yaml:"monitor"`
	Log       LogConfig       `json:"log" yaml:"log"`
}

// ToolConfig describes the screwdriver's compute box
type ToolConfig struct {
	Host        string `json:"host" yaml:"host"`
	Username    string `json:"username" yaml:"username"`
	Password    string `json:"password,omitempty" yaml:"password,omitempty"`
	ToolID      int    `json:"tool_id" yaml:"tool_id"`
	DeviceType  int    `json:"device_type" yaml:"device_type"`
	TimeoutMs   int    `json:"timeout_ms" yaml:"timeout_ms"`
	ReconnectMs int    `json:"reconnect_ms" yaml:"reconnect_ms"`
}

// RobotConfig describes the arm controller
type RobotConfig struct {
	Host          string      `json:"host" yaml:"host"`
	Port          int         `json:"port" yaml:"port"`
	Speed         float64     `json:"speed" yaml:"speed"`
	Acceleration  float64     `json:"acceleration" yaml:"acceleration"`
	DialTimeoutMs int         `json:"dial_timeout_ms" yaml:"dial_timeout_ms"`
	Poses         robot.Poses `json:"poses,omitempty" yaml:"poses,omitempty"`
}

// SequencerConfig holds gate timing and policies
type SequencerConfig struct {
	GateIntervalMs   int    `json:"gate_interval_ms" yaml:"gate_interval_ms"`
	SettleMs         int    `json:"settle_ms" yaml:"settle_ms"`
	GateTimeoutMs    int    `json:"gate_timeout_ms" yaml:"gate_timeout_ms"`
	MotionRetries    int    `json:"motion_retries" yaml:"motion_retries"`
	UnknownToolState string `json:"unknown_tool_state" yaml:"unknown_tool_state"`
	Debug            bool   `json:"debug,omitempty" yaml:"debug,omitempty"`
}

// MonitorConfig holds the status refresh interval
type MonitorConfig struct {
	RefreshMs int `json:"refresh_ms" yaml:"refresh_ms"`
}

// LogConfig selects diagnostic log output
type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// Default returns the configuration of the reference cell.
func Default() *Config {
	return &Config{
		Tool: ToolConfig{
			Host:        "192.168.0.15",
			Username:    "admin",
			ToolID:      0,
			DeviceType:  telemetry.DefaultDeviceType,
			TimeoutMs:   int(tool.DefaultTimeout / time.Millisecond),
			ReconnectMs: int(telemetry.DefaultReconnectDelay / time.Millisecond),
		},
		Robot: RobotConfig{
			Host:          "192.168.0.20",
			Port:          robot.DefaultPort,
			Speed:         0.5,
			Acceleration:  0.3,
			DialTimeoutMs: int(robot.DefaultDialTimeout / time.Millisecond),
		},
		Sequencer: SequencerConfig{
			GateIntervalMs:   500,
			SettleMs:         1000,
			GateTimeoutMs:    120000,
			MotionRetries:    3,
			UnknownToolState: sequencer.WaitForTelemetry.String(),
		},
		Monitor: MonitorConfig{RefreshMs: 1000},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// Load loads configuration from the default config file
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom loads configuration from path over the defaults, then applies
// .env and environment overrides. YAML is used for .yaml/.yml files.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if isYAML(path) {
		err = yaml.Unmarshal(data, cfg)
	} else {
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, nil
}

// LoadOrDefault is LoadFrom, falling back to the defaults (with environment
// overrides) when path does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := LoadFrom(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg = Default()
		cfg.ApplyEnv()
		return cfg, nil
	}
	return cfg, err
}

// ApplyEnv loads .env if present and applies the SCREWCELL_* overrides.
func (c *Config) ApplyEnv() {
	_ = godotenv.Load()

	if v, ok := os.LookupEnv(EnvToolHost); ok && v != "" {
		c.Tool.Host = v
	}
	if v, ok := os.LookupEnv(EnvToolUsername); ok && v != "" {
		c.Tool.Username = v
	}
	if v, ok := os.LookupEnv(EnvToolPassword); ok {
		c.Tool.Password = v
	}
	if v, ok := os.LookupEnv(EnvRobotHost); ok && v != "" {
		c.Robot.Host = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Tool.Host) == "":
		return errors.New("tool.host is required")
	case strings.TrimSpace(c.Robot.Host) == "":
		return errors.New("robot.host is required")
	case c.Robot.Port <= 0 || c.Robot.Port > 65535:
		return fmt.Errorf("robot.port %d out of range", c.Robot.Port)
	case c.Tool.ToolID < 0:
		return fmt.Errorf("tool.tool_id %d must not be negative", c.Tool.ToolID)
	case c.Tool.DeviceType <= 0:
		return fmt.Errorf("tool.device_type %d must be positive", c.Tool.DeviceType)
	case !(c.Robot.Speed > 0):
		return fmt.Errorf("robot.speed %v must be positive", c.Robot.Speed)
	case !(c.Robot.Acceleration > 0):
		return fmt.Errorf("robot.acceleration %v must be positive", c.Robot.Acceleration)
	case c.Tool.TimeoutMs <= 0, c.Tool.ReconnectMs <= 0, c.Robot.DialTimeoutMs <= 0:
		return errors.New("tool and robot timeouts must be positive")
	case c.Sequencer.GateIntervalMs <= 0:
		return errors.New("sequencer.gate_interval_ms must be positive")
	case c.Sequencer.SettleMs < 0:
		return errors.New("sequencer.settle_ms must not be negative")
	case c.Sequencer.GateTimeoutMs < 0:
		return errors.New("sequencer.gate_timeout_ms must not be negative (0 disables)")
	case c.Sequencer.MotionRetries <= 0:
		return errors.New("sequencer.motion_retries must be positive")
	case c.Monitor.RefreshMs <= 0:
		return errors.New("monitor.refresh_ms must be positive")
	}
	if _, err := sequencer.ParseUnknownToolPolicy(c.Sequencer.UnknownToolState); err != nil {
		return fmt.Errorf("sequencer.unknown_tool_state: %w", err)
	}
	if err := c.Robot.Poses.Validate(); err != nil {
		return fmt.Errorf("robot.poses: %w", err)
	}
	return nil
}

// ToolClient returns the tool command client settings.
func (c *Config) ToolClient() tool.Config {
	return tool.Config{
		Host:     c.Tool.Host,
		Username: c.Tool.Username,
		Password: c.Tool.Password,
		ToolID:   c.Tool.ToolID,
		Timeout:  ms(c.Tool.TimeoutMs),
	}
}

// Telemetry returns the telemetry channel settings.
func (c *Config) Telemetry() telemetry.Config {
	return telemetry.Config{
		Host:           c.Tool.Host,
		Username:       c.Tool.Username,
		Password:       c.Tool.Password,
		DeviceType:     c.Tool.DeviceType,
		ReconnectDelay: ms(c.Tool.ReconnectMs),
	}
}

// Arm returns the motion client settings.
func (c *Config) Arm() robot.Config {
	return robot.Config{
		Host:        c.Robot.Host,
		Port:        c.Robot.Port,
		DialTimeout: ms(c.Robot.DialTimeoutMs),
	}
}

// SequencerConfig returns the sequencer settings.
func (c *Config) SequencerConfig() (sequencer.Config, error) {
	policy, err := sequencer.ParseUnknownToolPolicy(c.Sequencer.UnknownToolState)
	if err != nil {
		return sequencer.Config{}, err
	}
	return sequencer.Config{
		PollInterval:  ms(c.Sequencer.GateIntervalMs),
		SettleDelay:   ms(c.Sequencer.SettleMs),
		GateTimeout:   ms(c.Sequencer.GateTimeoutMs),
		MotionRetries: c.Sequencer.MotionRetries,
		Speed:         c.Robot.Speed,
		Accel:         c.Robot.Acceleration,
		UnknownTool:   policy,
		Debug:         c.Sequencer.Debug,
	}, nil
}

// RefreshInterval returns the status refresh interval.
func (c *Config) RefreshInterval() time.Duration {
	return ms(c.Monitor.RefreshMs)
}

// Poses returns the built-in teach points overlaid with the configured ones.
func (c *Config) Poses() robot.Poses {
	return robot.DefaultPoses.Merge(c.Robot.Poses)
}

// Save saves configuration to the default config file
func (c *Config) Save() error {
	return c.SaveTo(DefaultConfigFile)
}

// SaveTo saves configuration to a specific file. The file is private
// because it may hold the tool password.
func (c *Config) SaveTo(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Exists returns true if the default config file exists
func Exists() bool {
	_, err := os.Stat(DefaultConfigFile)
	return err == nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
