package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gwillem/screwcell/pkg/robot"
	"github.com/gwillem/screwcell/pkg/sequencer"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvToolHost, EnvToolUsername, EnvToolPassword, EnvRobotHost} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "192.168.0.15", cfg.Tool.Host)
	assert.Equal(t, 14, cfg.Tool.DeviceType)
	assert.Equal(t, 30003, cfg.Robot.Port)

	sc, err := cfg.SequencerConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, sc.PollInterval)
	assert.Equal(t, time.Second, sc.SettleDelay)
	assert.Equal(t, 2*time.Minute, sc.GateTimeout)
	assert.Equal(t, 3, sc.MotionRetries)
	assert.Equal(t, sequencer.WaitForTelemetry, sc.UnknownTool)
	assert.Equal(t, time.Second, cfg.RefreshInterval())
}

func TestLoadFrom_JSONKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cell.json")
	data := `{
		"tool": {"host": "10.0.0.5", "password": "pw"},
		"sequencer": {"unknown_tool_state": "assume-idle", "settle_ms": 250},
		"robot": {"poses": {"home": [0, -1.57, 0, -1.57, 0, 0]}}
	}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "10.0.0.5", cfg.Tool.Host)
	assert.Equal(t, "admin", cfg.Tool.Username)
	assert.Equal(t, "pw", cfg.Tool.Password)
	assert.Equal(t, "192.168.0.20", cfg.Robot.Host)
	assert.Equal(t, 500, cfg.Sequencer.GateIntervalMs)

	sc, err := cfg.SequencerConfig()
	require.NoError(t, err)
	assert.Equal(t, sequencer.AssumeIdle, sc.UnknownTool)
	assert.Equal(t, 250*time.Millisecond, sc.SettleDelay)

	poses := cfg.Poses()
	assert.Equal(t, robot.Joints{0, -1.57, 0, -1.57, 0, 0}, poses["home"])
	assert.Contains(t, poses, "approach", "built-in poses stay available")
}

func TestLoadFrom_YAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "cell.yaml")
	data := `
tool:
  host: box.local
  tool_id: 1
robot:
  host: arm.local
  speed: 0.2
  poses:
    park: [1, 2, 3, 4, 5, 6]
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "box.local", cfg.Tool.Host)
	assert.Equal(t, 1, cfg.Tool.ToolID)
	assert.Equal(t, "arm.local", cfg.Robot.Host)
	assert.Equal(t, 0.2, cfg.Robot.Speed)
	assert.Equal(t, 0.3, cfg.Robot.Acceleration)
	assert.Equal(t, robot.Joints{1, 2, 3, 4, 5, 6}, cfg.Robot.Poses["park"])
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadFrom_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFrom(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"tool":`), 0644))
	_, err = LoadFrom(bad)
	assert.Error(t, err)
}

func TestLoadFrom_RejectsShortPose(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	files := map[string]string{
		"cell.json": `{"robot": {"host": "arm.local", "poses": {"home": [1.5, -1.2, 0.9]}}}`,
		"cell.yaml": "robot:\n  host: arm.local\n  poses:\n    home: [1.5, -1.2, 0.9]\n",
	}
	for name, data := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		_, err := LoadFrom(path)
		require.Error(t, err, name)
		assert.Contains(t, err.Error(), `pose "home"`, name)
	}
}

func TestLoadOrDefault(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, Default().Tool.Host, cfg.Tool.Host)
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvToolHost, "10.1.1.1")
	t.Setenv(EnvToolUsername, "operator")
	t.Setenv(EnvToolPassword, "s3cret")
	t.Setenv(EnvRobotHost, "10.1.1.2")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	assert.Equal(t, "10.1.1.1", cfg.Tool.Host)
	assert.Equal(t, "operator", cfg.Tool.Username)
	assert.Equal(t, "s3cret", cfg.Tool.Password)
	assert.Equal(t, "10.1.1.2", cfg.Robot.Host)

	tc := cfg.ToolClient()
	assert.Equal(t, "s3cret", tc.Password)
	assert.Equal(t, "10.1.1.1", cfg.Telemetry().Host)
	assert.Equal(t, "10.1.1.2", cfg.Arm().Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty tool host", func(c *Config) { c.Tool.Host = " " }},
		{"empty robot host", func(c *Config) { c.Robot.Host = "" }},
		{"bad port", func(c *Config) { c.Robot.Port = 70000 }},
		{"zero speed", func(c *Config) { c.Robot.Speed = 0 }},
		{"zero gate interval", func(c *Config) { c.Sequencer.GateIntervalMs = 0 }},
		{"negative settle", func(c *Config) { c.Sequencer.SettleMs = -1 }},
		{"negative gate timeout", func(c *Config) { c.Sequencer.GateTimeoutMs = -5 }},
		{"zero retries", func(c *Config) { c.Sequencer.MotionRetries = 0 }},
		{"bad policy", func(c *Config) { c.Sequencer.UnknownToolState = "maybe" }},
		{"zero refresh", func(c *Config) { c.Monitor.RefreshMs = 0 }},
		{"bad pose", func(c *Config) { c.Robot.Poses = robot.Poses{"": {}} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.Sequencer.GateTimeoutMs = 0
	assert.NoError(t, cfg.Validate(), "zero gate timeout disables the bound")
}

func TestSaveTo_RoundTrip(t *testing.T) {
	clearEnv(t)
	for _, name := range []string{"cell.json", "cell.yml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			cfg := Default()
			cfg.Tool.Password = "pw"
			cfg.Robot.Poses = robot.Poses{"park": {1, 2, 3, 4, 5, 6}}
			require.NoError(t, cfg.SaveTo(path))

			info, err := os.Stat(path)
			require.NoError(t, err)
			assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

			loaded, err := LoadFrom(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)
		})
	}
}
