package sequencer

import (
	"fmt"
	"time"

	"github.com/gwillem/screwcell/pkg/fault"
)

// Result is the outcome of one recognized script line.
type Result struct {
	RunID string
	// Index is the 0-based position in the sequence.
	Index   int
	Line    int
	Command string
	OK      bool
	Message string
	Err     error
	Elapsed time.Duration
}

// Kind returns the failure class, or fault.Unknown for a success.
func (r Result) Kind() fault.Kind {
	if r.OK {
		return fault.Unknown
	}
	return fault.KindOf(r.Err)
}

func (r Result) String() string {
	status := "OK"
	if !r.OK {
		status = "FAIL"
	}
	return fmt.Sprintf("#%d %s %s: %s", r.Index+1, status, r.Command, r.Message)
}

func message(r Result) string {
	if r.Err == nil {
		return "done"
	}
	return r.Err.Error()
}

// Sink receives every result, in order, on the sequence goroutine.
type Sink interface {
	Report(Result)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Result)

func (f SinkFunc) Report(r Result) { f(r) }

// Summary describes a finished sequence.
type Summary struct {
	RunID     string
	Total     int
	Succeeded int
	Failed    int
	// State is Idle after a complete run and Aborted otherwise.
	State State
	// Err is the reason the run aborted.
	Err error
}

func (s *Summary) add(r Result) {
	s.Total++
	if r.OK {
		s.Succeeded++
	} else {
		s.Failed++
	}
}

// Run is a handle on a started sequence.
type Run struct {
	ID string

	cancel  func()
	done    chan struct{}
	summary Summary
}

// Done is closed when the sequence has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the sequence has finished and returns its summary.
func (r *Run) Wait() Summary {
	<-r.done
	return r.summary
}

// Cancel stops the sequence at its next wait. Remaining commands are
// reported as canceled.
func (r *Run) Cancel() {
	r.cancel()
}
