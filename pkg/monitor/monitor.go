// Package monitor periodically samples cell health for display.
//
// It only reads: link state comes from the read-only link.Status views and
// tool state from the telemetry cache. It never dials.
package monitor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gwillem/screwcell/pkg/link"
	"github.com/gwillem/screwcell/pkg/telemetry"
)

// DefaultInterval is the refresh interval.
const DefaultInterval = time.Second

// Source reads the latest screwdriver snapshot.
type Source interface {
	Current() (telemetry.Snapshot, bool)
}

// LinkStatus is one link's state at sample time.
type LinkStatus struct {
	Name  string
	State link.State
	Since time.Time
	Err   error
}

// Up reports whether the link is connected.
func (l LinkStatus) Up() bool {
	return l.State == link.Connected
}

// Status is one health sample.
type Status struct {
	At          time.Time
	Links       []LinkStatus
	Snapshot    telemetry.Snapshot
	HasSnapshot bool
}

// Healthy reports whether every link is up.
func (s Status) Healthy() bool {
	for _, l := range s.Links {
		if !l.Up() {
			return false
		}
	}
	return true
}

// ToolState describes the screwdriver state for an operator.
func (s Status) ToolState() string {
	switch {
	case !s.HasSnapshot:
		return "unknown"
	case s.Snapshot.Busy:
		return "busy"
	case s.Snapshot.ShankBusy:
		return "shank busy"
	case s.Snapshot.ErrorCode != 0:
		return fmt.Sprintf("error %d", s.Snapshot.ErrorCode)
	default:
		return "idle"
	}
}

// Line renders the link states, e.g. "motion: connected | telemetry: disconnected".
func (s Status) Line() string {
	parts := make([]string, len(s.Links))
	for i, l := range s.Links {
		parts[i] = l.Name + ": " + l.State.String()
	}
	return strings.Join(parts, " | ")
}

// Monitor samples a cache and a set of links.
type Monitor struct {
	source   Source
	links    []link.Status
	interval time.Duration
}

// New creates a monitor. A non-positive interval means DefaultInterval.
func New(source Source, interval time.Duration, links ...link.Status) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{source: source, links: links, interval: interval}
}

// Sample takes one health sample.
func (m *Monitor) Sample() Status {
	st := Status{At: time.Now(), Links: make([]LinkStatus, len(m.links))}
	for i, l := range m.links {
		st.Links[i] = LinkStatus{
			Name:  l.Name(),
			State: l.State(),
			Since: l.Since(),
			Err:   l.LastError(),
		}
	}
	if m.source != nil {
		st.Snapshot, st.HasSnapshot = m.source.Current()
	}
	return st
}

// Run calls fn with a fresh sample immediately and then on every tick until
// ctx is done. It returns ctx.Err().
func (m *Monitor) Run(ctx context.Context, fn func(Status)) error {
	fn(m.Sample())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(m.Sample())
		}
	}
}
