// Package link tracks the connection state of one device link.
//
// Each link has exactly one owner (the routine that dials and re-dials it).
// The owner holds a *Tracker and moves it through its states; every other
// component only sees the read-only Status interface.
package link

import (
	"sync"
	"time"
)

// State is the connection state of a link.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Status is the read-only view of a link.
type Status interface {
	Name() string
	State() State
	LastError() error
	Since() time.Time
}

// Tracker owns the mutable state of one link.
type Tracker struct {
	name string

	mu      sync.RWMutex
	state   State
	lastErr error
	since   time.Time
}

// NewTracker returns a tracker in the Disconnected state.
func NewTracker(name string) *Tracker {
	return &Tracker{name: name, since: time.Now()}
}

// Name returns the link name, e.g. "motion" or "telemetry".
func (t *Tracker) Name() string {
	return t.name
}

// State returns the current state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// LastError returns the error recorded by the last failed or lost connection.
func (t *Tracker) LastError() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastErr
}

// Since returns when the current state was entered.
func (t *Tracker) Since() time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.since
}

// Begin moves Disconnected to Connecting. It returns false when the link is
// already Connecting or Connected, in which case the caller must not dial.
func (t *Tracker) Begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != Disconnected {
		return false
	}
	t.setLocked(Connecting)
	return true
}

// Succeed marks the link Connected and clears the last error.
func (t *Tracker) Succeed() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = nil
	t.setLocked(Connected)
}

// Fail records a failed connection attempt and returns to Disconnected.
func (t *Tracker) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastErr = err
	t.setLocked(Disconnected)
}

// Lost records that an established connection dropped.
func (t *Tracker) Lost(err error) {
	t.Fail(err)
}

func (t *Tracker) setLocked(s State) {
	if t.state != s {
		t.since = time.Now()
	}
	t.state = s
}
