package robot

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/gwillem/screwcell/pkg/fault"
	"github.com/gwillem/screwcell/pkg/link"
)

// DefaultDialTimeout bounds one connection attempt, including the wait for
// the first state packet.
const DefaultDialTimeout = 5 * time.Second

// Config describes the arm controller.
type Config struct {
	Host string
	// Port defaults to DefaultPort.
	Port        int
	DialTimeout time.Duration
	// Dial overrides DialRealtime.
	Dial Dialer
}

func (c Config) addr() string {
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(c.Host, strconv.Itoa(port))
}

// Arm is the motion command client. It owns the motion link: Connect is the
// only place that dials, and it does so lazily on the next use after a
// failure.
type Arm struct {
	addr        string
	dialTimeout time.Duration
	dial        Dialer
	tracker     *link.Tracker
	logger      *slog.Logger

	mu          sync.Mutex
	conn        Link
	initialized bool
}

// NewArm creates an arm client. It does not connect.
func NewArm(cfg Config, logger *slog.Logger) *Arm {
	dial := cfg.Dial
	if dial == nil {
		dial = DialRealtime
	}
	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Arm{
		addr:        cfg.addr(),
		dialTimeout: timeout,
		dial:        dial,
		tracker:     link.NewTracker("motion"),
		logger:      logger.With("link", "motion"),
	}
}

// Status returns the read-only link state.
func (a *Arm) Status() link.Status {
	return a.tracker
}

// Connect returns true when the link is up, dialing if it is not. Repeated
// calls on a live link are free. Failures are logged and reported as false.
func (a *Arm) Connect(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connectLocked(ctx)
}

func (a *Arm) connectLocked(ctx context.Context) bool {
	if a.conn != nil {
		_, err := a.conn.Latest()
		if err == nil {
			return true
		}
		a.dropLocked(err)
	}

	if !a.tracker.Begin() {
		return a.tracker.State() == link.Connected
	}

	dialCtx, cancel := context.WithTimeout(ctx, a.dialTimeout)
	defer cancel()

	conn, err := a.dial(dialCtx, a.addr)
	if err != nil {
		a.tracker.Fail(err)
		a.logger.Warn("arm connection failed", "addr", a.addr, "error", err)
		return false
	}

	a.conn = conn
	a.initialized = true
	a.tracker.Succeed()
	a.logger.Info("arm connected", "addr", a.addr)
	return true
}

// dropLocked closes a dead connection and records the loss.
func (a *Arm) dropLocked(err error) {
	_ = a.conn.Close()
	a.conn = nil
	a.tracker.Lost(err)
	a.logger.Warn("arm link lost", "error", err)
}

// MoveJ sends a joint-space move to q. It returns once the command is
// written; it does not wait for the motion to finish.
func (a *Arm) MoveJ(ctx context.Context, q Joints, speed, accel float64) error {
	const op = "movej"
	if !q.Finite() {
		return fault.Validationf(op, "non-finite joint target %v", q)
	}
	if !(speed > 0) || math.IsInf(speed, 0) {
		return fault.Validationf(op, "speed %v must be positive", speed)
	}
	if !(accel > 0) || math.IsInf(accel, 0) {
		return fault.Validationf(op, "acceleration %v must be positive", accel)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.connectLocked(ctx) {
		return fault.Unavailable(op, a.tracker.LastError())
	}
	if err := a.conn.Send(MoveJScript(q, accel, speed)); err != nil {
		a.dropLocked(err)
		return fault.Unavailable(op, err)
	}
	a.logger.Debug("movej sent", "target", q.String(), "speed", speed, "accel", accel)
	return nil
}

// JointState returns the latest state sample. It does not dial.
func (a *Arm) JointState() (JointState, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.conn == nil {
		if !a.initialized {
			return JointState{}, fault.ErrNotInitialized
		}
		return JointState{}, fault.Unavailable("joint_state", a.tracker.LastError())
	}
	s, err := a.conn.Latest()
	if err != nil {
		a.dropLocked(err)
		return JointState{}, fault.Unavailable("joint_state", err)
	}
	return s, nil
}

// IsPhysicallyMoving reports whether any joint is turning or away from its
// target (see Moving). It panics when the arm has never been connected,
// which is a programming error. With debug set, every sample is logged.
func (a *Arm) IsPhysicallyMoving(debug bool) (bool, error) {
	s, err := a.JointState()
	if errors.Is(err, fault.ErrNotInitialized) {
		panic("robot: IsPhysicallyMoving called before a successful Connect")
	}
	if err != nil {
		return false, err
	}

	joint, moving := movingJoint(s)
	if debug {
		a.logger.Debug("joint sample",
			"target", s.Target.String(),
			"actual", s.Actual.String(),
			"velocity", s.Velocity.String(),
			"moving", moving,
			"joint", joint)
	}
	return moving, nil
}

// Close closes the link if it is open.
func (a *Arm) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.conn == nil {
		return nil
	}
	err := a.conn.Close()
	a.conn = nil
	a.tracker.Lost(errLinkClosed)
	return err
}
