// Package tool drives the screwdriver through its HTTP command endpoint.
//
// Every operation validates its parameters locally, then issues exactly one
// GET request. Nothing is retried here; retry policy belongs to the caller.
package tool

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gwillem/screwcell/pkg/fault"
)

const (
	// DefaultTimeout is the HTTP request timeout.
	DefaultTimeout = 10 * time.Second

	// Parameter limits of the screwdriver.
	MaxShankMm  = 55.0
	MaxForceN   = 200.0
	MaxLengthMm = 55.0
	MaxTorqueNm = 5.0

	maxBodyBytes = 4096
)

// Default operation parameters used when an operator leaves one out.
const (
	DefaultForceN         = 25.0
	DefaultPickLengthMm   = 10.0
	DefaultPremountLength = 25.0
	DefaultPremountTorque = 0.5
	DefaultTightenLength  = 1.0
	DefaultTightenTorque  = 2.0
	DefaultLoosenLength   = 25.0
)

// BusyReader reports the tool's busy state from telemetry.
type BusyReader interface {
	IsBusy() bool
}

// Config describes the tool's command endpoint.
type Config struct {
	// BaseURL overrides the http://<Host> endpoint.
	BaseURL  string
	Host     string
	Username string
	Password string
	ToolID   int
	Timeout  time.Duration
}

// Client issues screwdriver operations.
type Client struct {
	baseURL    string
	username   string
	password   string
	toolID     int
	busy       BusyReader
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a tool client. busy supplies the telemetry-derived busy state.
func New(cfg Config, busy BusyReader, logger *slog.Logger) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = "http://" + cfg.Host
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(base, "/"),
		username:   cfg.Username,
		password:   cfg.Password,
		toolID:     cfg.ToolID,
		busy:       busy,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With("component", "tool"),
	}
}

// IsBusy reports whether the screwdriver or its shank is busy.
func (c *Client) IsBusy() bool {
	if c.busy == nil {
		return false
	}
	return c.busy.IsBusy()
}

// MoveShank moves the shank to positionMm (0-55).
func (c *Client) MoveShank(ctx context.Context, positionMm float64) error {
	const op = "move_shank"
	if err := inRange(op, "position", positionMm, 0, MaxShankMm); err != nil {
		return err
	}
	return c.send(ctx, op, positionMm)
}

// PickScrew picks up a screw.
func (c *Client) PickScrew(ctx context.Context, forceN, lengthMm float64) error {
	const op = "pickup_screw"
	if err := checkForceLength(op, forceN, lengthMm); err != nil {
		return err
	}
	return c.send(ctx, op, forceN, lengthMm)
}

// PremountScrew pre-mounts a screw up to torqueNm.
func (c *Client) PremountScrew(ctx context.Context, forceN, lengthMm, torqueNm float64) error {
	const op = "premount"
	if err := checkForceLength(op, forceN, lengthMm); err != nil {
		return err
	}
	if err := inRange(op, "torque", torqueNm, 0, MaxTorqueNm); err != nil {
		return err
	}
	return c.send(ctx, op, forceN, lengthMm, torqueNm)
}

// TightenScrew tightens a screw to torqueNm.
func (c *Client) TightenScrew(ctx context.Context, forceN, lengthMm, torqueNm float64) error {
	const op = "tighten"
	if err := checkForceLength(op, forceN, lengthMm); err != nil {
		return err
	}
	if err := inRange(op, "torque", torqueNm, 0, MaxTorqueNm); err != nil {
		return err
	}
	return c.send(ctx, op, forceN, lengthMm, torqueNm)
}

// LoosenScrew unscrews over lengthMm.
func (c *Client) LoosenScrew(ctx context.Context, forceN, lengthMm float64) error {
	const op = "loosen"
	if err := checkForceLength(op, forceN, lengthMm); err != nil {
		return err
	}
	return c.send(ctx, op, forceN, lengthMm)
}

// Ping checks that the command endpoint answers at all.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Unavailable("ping", err)
	}
	resp.Body.Close()
	return nil
}

func (c *Client) send(ctx context.Context, op string, params ...float64) error {
	parts := make([]string, 0, len(params)+1)
	parts = append(parts, strconv.Itoa(c.toolID))
	for _, p := range params {
		parts = append(parts, formatParam(p))
	}
	endpoint := "/api/dc/sd/" + op + "/" + strings.Join(parts, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fault.Unavailable(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		c.logger.Debug("request succeeded", "endpoint", endpoint, "status", resp.StatusCode)
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	c.logger.Warn("request failed", "endpoint", endpoint, "status", resp.StatusCode)
	return fault.Remote(op, resp.StatusCode, strings.TrimSpace(string(body)))
}

func checkForceLength(op string, forceN, lengthMm float64) error {
	if err := inRange(op, "force", forceN, 0, MaxForceN); err != nil {
		return err
	}
	return inRange(op, "length", lengthMm, 0, MaxLengthMm)
}

func inRange(op, name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fault.Validationf(op, "%s %v outside [%v, %v]", name, v, lo, hi)
	}
	return nil
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
