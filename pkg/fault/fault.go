// Package fault defines the error taxonomy shared by the cell packages.
//
// Every failure a command can produce is an *Error carrying a Kind, so the
// sequencer and the CLI can report outcomes without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	// Unknown is any error that was not produced by this package.
	Unknown Kind = iota
	// Validation marks out-of-range or malformed arguments rejected before any network call.
	Validation
	// LinkUnavailable marks a control or telemetry connection that is not established.
	LinkUnavailable
	// RemoteFailure marks a non-success status returned by a device endpoint.
	RemoteFailure
	// Parse marks a script line that matched a directive but whose arguments could not be extracted.
	Parse
	// Busy marks a sequence start requested while another sequence is running.
	Busy
	// NotInitialized marks use of a client before its first successful connect.
	NotInitialized
	// GateTimeout marks a gate wait that exceeded its bound.
	GateTimeout
	// Canceled marks work skipped because the run was canceled or aborted.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case Validation:
		return "ValidationError"
	case LinkUnavailable:
		return "LinkUnavailable"
	case RemoteFailure:
		return "RemoteFailure"
	case Parse:
		return "ParseError"
	case Busy:
		return "Busy"
	case NotInitialized:
		return "NotInitialized"
	case GateTimeout:
		return "GateTimeout"
	case Canceled:
		return "Canceled"
	default:
		return "Unknown"
	}
}

// Error is a classified failure.
type Error struct {
	// Kind is the failure class.
	Kind Kind

	// Op names the operation that failed, e.g. "tighten" or "movej".
	Op string

	// Message is a short human-readable description.
	Message string

	// Status and Body are set for RemoteFailure.
	Status int
	Body   string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Kind == RemoteFailure && e.Status != 0 {
		msg += fmt.Sprintf(" (status %d", e.Status)
		if e.Body != "" {
			msg += ": " + e.Body
		}
		msg += ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind with no more
// specific fields set, so errors.Is(err, fault.ErrBusy) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrValidation      = &Error{Kind: Validation}
	ErrLinkUnavailable = &Error{Kind: LinkUnavailable}
	ErrRemoteFailure   = &Error{Kind: RemoteFailure}
	ErrParse           = &Error{Kind: Parse}
	ErrBusy            = &Error{Kind: Busy}
	ErrNotInitialized  = &Error{Kind: NotInitialized}
	ErrGateTimeout     = &Error{Kind: GateTimeout}
	ErrCanceled        = &Error{Kind: Canceled}
)

// Validationf returns a Validation error for op.
func Validationf(op, format string, args ...any) *Error {
	return &Error{Kind: Validation, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Unavailable returns a LinkUnavailable error for op wrapping cause.
func Unavailable(op string, cause error) *Error {
	return &Error{Kind: LinkUnavailable, Op: op, Err: cause}
}

// Remote returns a RemoteFailure carrying the endpoint status and body.
func Remote(op string, status int, body string) *Error {
	return &Error{Kind: RemoteFailure, Op: op, Status: status, Body: body}
}

// Parsef returns a Parse error for op.
func Parsef(op, format string, args ...any) *Error {
	return &Error{Kind: Parse, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
