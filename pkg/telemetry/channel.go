package telemetry

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nhooyr.io/websocket"

	"github.com/gwillem/screwcell/pkg/link"
)

const (
	// DefaultReconnectDelay is the wait between failed connection attempts.
	DefaultReconnectDelay = 5 * time.Second

	dialTimeout      = 10 * time.Second
	defaultKeepalive = 45 * time.Second
	readLimit        = 1 << 20
)

// Config describes the telemetry endpoint of the tool's compute box.
type Config struct {
	Host     string
	Username string
	Password string

	// DeviceType selects the device entry to consume. Zero means DefaultDeviceType.
	DeviceType int

	// ReconnectDelay is the wait between connection attempts. Zero means DefaultReconnectDelay.
	ReconnectDelay time.Duration

	// URL overrides the endpoint derived from Host.
	URL string
}

func (c Config) url() string {
	if c.URL != "" {
		return c.URL
	}
	return "ws://" + c.Host + "/socket.io/?EIO=4&transport=websocket"
}

var (
	errServerClosed = errors.New("telemetry: server closed the session")
	errDisconnected = errors.New("telemetry: namespace disconnected")
)

// Channel is the push connection feeding a Cache. It owns the telemetry
// link state; Run is the only routine that dials.
type Channel struct {
	cfg     Config
	cache   *Cache
	tracker *link.Tracker
	logger  *slog.Logger
}

// NewChannel creates a channel that records snapshots into cache.
func NewChannel(cfg Config, cache *Cache, logger *slog.Logger) *Channel {
	if cfg.DeviceType == 0 {
		cfg.DeviceType = DefaultDeviceType
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Channel{
		cfg:     cfg,
		cache:   cache,
		tracker: link.NewTracker("telemetry"),
		logger:  logger.With("link", "telemetry"),
	}
}

// Status returns the read-only link state.
func (c *Channel) Status() link.Status {
	return c.tracker
}

// Run connects and keeps reconnecting until ctx is done. It always returns
// ctx.Err().
func (c *Channel) Run(ctx context.Context) error {
	for {
		err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("telemetry connection failed, retrying",
			"error", err, "retry_in", c.cfg.ReconnectDelay)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.ReconnectDelay):
		}
	}
}

// session runs one connection from dial to disconnect.
func (c *Channel) session(ctx context.Context) error {
	if !c.tracker.Begin() {
		return errors.New("telemetry: session already active")
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	header := http.Header{}
	if c.cfg.Username != "" || c.cfg.Password != "" {
		cred := base64.StdEncoding.EncodeToString([]byte(c.cfg.Username + ":" + c.cfg.Password))
		header.Set("Authorization", "Basic "+cred)
	}

	conn, _, err := websocket.Dial(dialCtx, c.cfg.url(), &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		err = fmt.Errorf("telemetry: dial: %w", err)
		c.tracker.Fail(err)
		return err
	}
	defer conn.Close(websocket.StatusNormalClosure, "")
	conn.SetReadLimit(readLimit)

	err = c.receive(ctx, conn)
	if c.tracker.State() == link.Connected {
		c.logger.Info("telemetry disconnected", "error", err)
	}
	c.tracker.Lost(err)
	return err
}

// receive processes Engine.IO frames until the connection ends.
func (c *Channel) receive(ctx context.Context, conn *websocket.Conn) error {
	keepalive := defaultKeepalive
	for {
		readCtx, cancel := context.WithTimeout(ctx, keepalive)
		_, data, err := conn.Read(readCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("telemetry: read: %w", err)
		}
		if len(data) == 0 {
			continue
		}

		switch data[0] {
		case '0': // open
			var open struct {
				PingInterval int `json:"pingInterval"`
				PingTimeout  int `json:"pingTimeout"`
			}
			if err := json.Unmarshal(data[1:], &open); err == nil && open.PingInterval > 0 {
				keepalive = time.Duration(open.PingInterval+open.PingTimeout) * time.Millisecond
			}
			if err := conn.Write(ctx, websocket.MessageText, []byte("40")); err != nil {
				return fmt.Errorf("telemetry: join namespace: %w", err)
			}
		case '1': // close
			return errServerClosed
		case '2': // ping
			pong := append([]byte{'3'}, data[1:]...)
			if err := conn.Write(ctx, websocket.MessageText, pong); err != nil {
				return fmt.Errorf("telemetry: pong: %w", err)
			}
		case '4': // message
			if err := c.handlePacket(data[1:]); err != nil {
				return err
			}
		}
	}
}

// handlePacket handles one Socket.IO packet.
func (c *Channel) handlePacket(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	switch p[0] {
	case '0': // namespace connected
		c.tracker.Succeed()
		c.logger.Info("telemetry connected", "url", c.cfg.url())
	case '1':
		return errDisconnected
	case '2':
		name, args, err := parseEvent(p[1:])
		if err != nil {
			c.logger.Warn("discarding malformed event", "error", err)
			return nil
		}
		if name != "message" || len(args) == 0 {
			return nil
		}
		c.ingest(args[0])
	case '4':
		return fmt.Errorf("telemetry: connect error: %s", p[1:])
	}
	return nil
}

func (c *Channel) ingest(payload []byte) {
	snap, err := Decode(payload, c.cfg.DeviceType, time.Now())
	switch {
	case errors.Is(err, ErrNoDevice):
		c.logger.Debug("push without screwdriver entry")
	case err != nil:
		c.logger.Warn("discarding screwdriver push", "error", err)
	default:
		c.cache.Record(snap)
		c.logger.Debug("screwdriver snapshot stored",
			"busy", snap.Busy, "shank_busy", snap.ShankBusy,
			"shank_position", snap.ShankPositionMm, "torque", snap.CurrentTorqueNm)
	}
}

// parseEvent splits an event packet body ([/nsp,][ackid]["name", args...])
// into its name and arguments.
func parseEvent(p []byte) (string, []json.RawMessage, error) {
	if len(p) > 0 && p[0] == '/' {
		i := 0
		for i < len(p) && p[i] != ',' {
			i++
		}
		if i == len(p) {
			return "", nil, errors.New("namespace without payload")
		}
		p = p[i+1:]
	}
	i := 0
	for i < len(p) && p[i] >= '0' && p[i] <= '9' {
		i++
	}
	if i > 0 {
		if _, err := strconv.Atoi(string(p[:i])); err != nil {
			return "", nil, fmt.Errorf("bad ack id: %w", err)
		}
		p = p[i:]
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(p, &parts); err != nil {
		return "", nil, fmt.Errorf("decode event: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("empty event")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name: %w", err)
	}
	return name, parts[1:], nil
}
