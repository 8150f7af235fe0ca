// Package sequencer executes parsed cell commands one at a time.
//
// Before each command the sequencer waits until the arm has stopped moving
// and the screwdriver reports idle; after each dispatch it waits a fixed
// settle delay so telemetry can catch up. A failed command is reported and
// the run continues with the next one. Only a motion link that stays down
// after its retry budget aborts a run.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gwillem/screwcell/pkg/fault"
	"github.com/gwillem/screwcell/pkg/link"
	"github.com/gwillem/screwcell/pkg/robot"
	"github.com/gwillem/screwcell/pkg/script"
	"github.com/gwillem/screwcell/pkg/telemetry"
)

// State is the sequencer state.
type State int

const (
	Idle State = iota
	Running
	Aborted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Aborted:
		return "aborted"
	default:
		return "idle"
	}
}

// Motion is the arm side of the cell.
type Motion interface {
	Connect(ctx context.Context) bool
	Status() link.Status
	MoveJ(ctx context.Context, q robot.Joints, speed, accel float64) error
	IsPhysicallyMoving(debug bool) (bool, error)
}

// Tool is the screwdriver side of the cell.
type Tool interface {
	MoveShank(ctx context.Context, positionMm float64) error
	PickScrew(ctx context.Context, forceN, lengthMm float64) error
	PremountScrew(ctx context.Context, forceN, lengthMm, torqueNm float64) error
	TightenScrew(ctx context.Context, forceN, lengthMm, torqueNm float64) error
	LoosenScrew(ctx context.Context, forceN, lengthMm float64) error
}

// ToolState reads the latest screwdriver snapshot.
type ToolState interface {
	Current() (telemetry.Snapshot, bool)
}

// Sequencer runs command sequences. At most one sequence runs at a time.
type Sequencer struct {
	motion Motion
	tool   Tool
	state  ToolState
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	current State
	run     *Run
	logCh   chan string
}

// New creates a sequencer.
func New(motion Motion, tool Tool, state ToolState, cfg Config, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		motion: motion,
		tool:   tool,
		state:  state,
		cfg:    cfg.withDefaults(),
		logger: logger.With("component", "sequencer"),
		logCh:  make(chan string, 64),
	}
}

// State returns the current state.
func (s *Sequencer) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Active returns the running sequence, or nil.
func (s *Sequencer) Active() *Run {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != Running {
		return nil
	}
	return s.run
}

// Logs returns a channel of operator-readable progress lines (start, waits,
// link trouble, finish). Lines are dropped when nobody reads. Command
// results go only to the Sink and are never dropped.
func (s *Sequencer) Logs() <-chan string {
	return s.logCh
}

func (s *Sequencer) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case s.logCh <- msg:
	default:
		// Drop if channel full
	}
}

// Start begins executing entries on a new goroutine. It returns a Busy
// error, without queueing, while another sequence is running. sink may be
// nil.
func (s *Sequencer) Start(ctx context.Context, entries iter.Seq[script.Entry], sink Sink) (*Run, error) {
	s.mu.Lock()
	if s.current == Running {
		id := s.run.ID
		s.mu.Unlock()
		return nil, &fault.Error{Kind: fault.Busy, Op: "start", Message: "sequence " + id + " is running"}
	}
	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.current = Running
	s.run = r
	s.mu.Unlock()

	if sink == nil {
		sink = SinkFunc(func(Result) {})
	}

	go func() {
		defer cancel()
		sum := s.execute(runCtx, r.ID, entries, sink)

		s.mu.Lock()
		s.current = sum.State
		s.mu.Unlock()

		r.summary = sum
		close(r.done)
	}()
	return r, nil
}

// Execute runs entries and waits for the sequence to finish.
func (s *Sequencer) Execute(ctx context.Context, entries iter.Seq[script.Entry], sink Sink) (Summary, error) {
	r, err := s.Start(ctx, entries, sink)
	if err != nil {
		return Summary{}, err
	}
	return r.Wait(), nil
}

func (s *Sequencer) execute(ctx context.Context, runID string, entries iter.Seq[script.Entry], sink Sink) Summary {
	logger := s.logger.With("run", runID)
	logger.Info("sequence started")
	s.log("Sequence %s started", shortID(runID))

	sum := Summary{RunID: runID, State: Idle}
	var stop error // set once the run is aborted or canceled

	index := 0
	for e := range entries {
		res := Result{RunID: runID, Index: index, Line: e.Line, Command: e.Text}
		index++
		start := time.Now()

		switch {
		case stop != nil:
			res.Err = stop
		case ctx.Err() != nil:
			stop = &fault.Error{Kind: fault.Canceled, Op: "sequence", Message: "canceled", Err: ctx.Err()}
			res.Err = stop
		case e.Err != nil:
			res.Err = e.Err
		default:
			res.Command = e.Command.String()
			err := s.step(ctx, logger, e.Command)
			var abort *abortError
			switch {
			case errors.As(err, &abort):
				stop = &fault.Error{Kind: fault.Canceled, Op: "sequence", Message: "aborted", Err: abort.cause}
				sum.Err = abort.cause
				res.Err = abort.cause
			case fault.Is(err, fault.Canceled):
				stop = err
				res.Err = err
			default:
				res.Err = err
			}
		}

		res.OK = res.Err == nil
		res.Message = message(res)
		res.Elapsed = time.Since(start)
		sum.add(res)
		s.report(logger, sink, res)
	}

	if stop != nil {
		sum.State = Aborted
		if sum.Err == nil {
			sum.Err = stop
		}
		logger.Warn("sequence aborted", "error", sum.Err,
			"succeeded", sum.Succeeded, "failed", sum.Failed)
		s.log("Sequence %s aborted: %v", shortID(runID), sum.Err)
		return sum
	}
	logger.Info("sequence finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	s.log("Sequence %s finished: %d ok, %d failed", shortID(runID), sum.Succeeded, sum.Failed)
	return sum
}

// abortError ends the run: every remaining command is skipped.
type abortError struct {
	cause error
}

func (e *abortError) Error() string { return "aborted: " + e.cause.Error() }
func (e *abortError) Unwrap() error { return e.cause }

// step runs the gate, dispatch and settle phases of one command.
func (s *Sequencer) step(ctx context.Context, logger *slog.Logger, cmd script.Command) error {
	if cmd.Kind().IsMotion() {
		if err := s.ensureMotionLink(ctx, logger); err != nil {
			return err
		}
	}

	if err := s.gate(ctx, logger, cmd); err != nil {
		return err
	}

	logger.Debug("dispatching", "command", cmd.String())
	err := s.dispatch(ctx, cmd)
	if err != nil && ctx.Err() != nil {
		return canceled(ctx)
	}

	if serr := s.sleep(ctx, s.cfg.SettleDelay); serr != nil && err == nil {
		// The command went out; report it and let the next one see the cancel.
		logger.Debug("settle interrupted", "error", serr)
	}
	return err
}

// ensureMotionLink reconnects a down motion link, giving up after the
// retry budget.
func (s *Sequencer) ensureMotionLink(ctx context.Context, logger *slog.Logger) error {
	for attempt := 1; ; attempt++ {
		if s.motion.Connect(ctx) {
			return nil
		}
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		logger.Warn("motion link down", "attempt", attempt, "of", s.cfg.MotionRetries,
			"error", s.motion.Status().LastError())
		s.log("Motion link down (attempt %d/%d)", attempt, s.cfg.MotionRetries)
		if attempt >= s.cfg.MotionRetries {
			return &abortError{cause: fault.Unavailable("movej", s.motion.Status().LastError())}
		}
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// gate blocks until neither device is busy. Every poll re-reads the live
// state.
func (s *Sequencer) gate(ctx context.Context, logger *slog.Logger, cmd script.Command) error {
	var deadline time.Time
	if s.cfg.GateTimeout > 0 {
		deadline = time.Now().Add(s.cfg.GateTimeout)
	}

	waiting := false
	for {
		reason := s.blocked(logger)
		if reason == "" {
			return nil
		}
		if !waiting {
			waiting = true
			logger.Info("waiting for devices", "command", cmd.String(), "reason", reason)
			s.log("Waiting: %s", reason)
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return &fault.Error{
				Kind:    fault.GateTimeout,
				Op:      cmd.Kind().Directive(),
				Message: fmt.Sprintf("%s after %v", reason, s.cfg.GateTimeout),
			}
		}
		if err := s.sleep(ctx, s.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// blocked returns why the next command may not be dispatched yet, or "".
func (s *Sequencer) blocked(logger *slog.Logger) string {
	if s.motion.Status().State() == link.Connected {
		moving, err := s.motion.IsPhysicallyMoving(s.cfg.Debug)
		switch {
		case err != nil:
			logger.Debug("motion state unavailable", "error", err)
		case moving:
			return "robot is moving"
		}
	}

	snap, ok := s.state.Current()
	if !ok {
		if s.cfg.UnknownTool == WaitForTelemetry {
			return "no screwdriver telemetry yet"
		}
		return ""
	}
	if snap.Busy {
		return "screwdriver is busy"
	}
	if snap.ShankBusy {
		return "shank is busy"
	}
	return ""
}

func (s *Sequencer) dispatch(ctx context.Context, cmd script.Command) error {
	switch c := cmd.(type) {
	case script.MoveJoint:
		speed, accel := c.Speed, c.Accel
		if speed == 0 {
			speed = s.cfg.Speed
		}
		if accel == 0 {
			accel = s.cfg.Accel
		}
		return s.motion.MoveJ(ctx, c.Target, speed, accel)
	case script.MoveShank:
		return s.tool.MoveShank(ctx, c.PositionMm)
	case script.PickScrew:
		return s.tool.PickScrew(ctx, c.ForceN, c.LengthMm)
	case script.PremountScrew:
		return s.tool.PremountScrew(ctx, c.ForceN, c.LengthMm, c.TorqueNm)
	case script.TightenScrew:
		return s.tool.TightenScrew(ctx, c.ForceN, c.LengthMm, c.TorqueNm)
	case script.LoosenScrew:
		return s.tool.LoosenScrew(ctx, c.ForceN, c.LengthMm)
	default:
		return fault.Validationf("dispatch", "unsupported command %T", cmd)
	}
}

func (s *Sequencer) report(logger *slog.Logger, sink Sink, res Result) {
	if res.OK {
		logger.Info("command succeeded", "index", res.Index, "line", res.Line, "command", res.Command)
	} else {
		logger.Warn("command failed", "index", res.Index, "line", res.Line,
			"command", res.Command, "kind", fault.KindOf(res.Err).String(), "error", res.Err)
	}
	sink.Report(res)
}

// sleep waits d or until ctx is done.
func (s *Sequencer) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if ctx.Err() != nil {
			return canceled(ctx)
		}
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return canceled(ctx)
	case <-t.C:
		return nil
	}
}

func canceled(ctx context.Context) error {
	return &fault.Error{Kind: fault.Canceled, Op: "sequence", Message: "canceled", Err: ctx.Err()}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
