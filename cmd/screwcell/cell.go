package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gwillem/screwcell/pkg/config"
	"github.com/gwillem/screwcell/pkg/logging"
	"github.com/gwillem/screwcell/pkg/monitor"
	"github.com/gwillem/screwcell/pkg/robot"
	"github.com/gwillem/screwcell/pkg/sequencer"
	"github.com/gwillem/screwcell/pkg/telemetry"
	"github.com/gwillem/screwcell/pkg/tool"
)

// cell wires the clients of one robot cell together.
type cell struct {
	cfg    *config.Config
	logger *slog.Logger

	cache   *telemetry.Cache
	channel *telemetry.Channel
	tool    *tool.Client
	arm     *robot.Arm
	seq     *sequencer.Sequencer
	monitor *monitor.Monitor

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	closeLog func() error
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(opts.Config)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogFile != "" {
		cfg.Log.File = opts.LogFile
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", opts.Config, err)
	}
	return cfg, nil
}

// openCell loads the config and starts the telemetry channel. quiet keeps
// diagnostics off stderr, for full-screen views.
func openCell(quiet bool) (*cell, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
		Quiet:  quiet,
	})
	if err != nil {
		return nil, err
	}

	seqCfg, err := cfg.SequencerConfig()
	if err != nil {
		closeLog()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &cell{
		cfg:      cfg,
		logger:   logger,
		cache:    telemetry.NewCache(),
		cancel:   cancel,
		closeLog: closeLog,
	}
	c.channel = telemetry.NewChannel(cfg.Telemetry(), c.cache, logger)
	c.tool = tool.New(cfg.ToolClient(), c.cache, logger)
	c.arm = robot.NewArm(cfg.Arm(), logger)
	c.seq = sequencer.New(c.arm, c.tool, c.cache, seqCfg, logger)
	c.monitor = monitor.New(c.cache, cfg.RefreshInterval(), c.arm.Status(), c.channel.Status())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.channel.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("telemetry channel stopped", "error", err)
		}
	}()
	return c, nil
}

// waitForTelemetry waits up to d for the first screwdriver snapshot.
func (c *cell) waitForTelemetry(ctx context.Context, d time.Duration) bool {
	got := make(chan struct{}, 1)
	unsubscribe := c.cache.Subscribe(func(telemetry.Snapshot) {
		select {
		case got <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if _, ok := c.cache.Current(); ok {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-got:
		return true
	case <-t.C:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *cell) Close() {
	c.cancel()
	c.wg.Wait()
	if err := c.arm.Close(); err != nil {
		c.logger.Debug("closing arm link", "error", err)
	}
	_ = c.closeLog()
}
