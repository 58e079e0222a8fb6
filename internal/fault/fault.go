// Package fault defines the error taxonomy shared by the coordinate engine,
// the pointing encoder and the plate-solve orchestrator.
//
// Every failure that crosses a package boundary is a *Error carrying a Kind,
// so callers can tell "computed (0,0)" from "computation failed" and the API
// layer can map failures to status codes without string matching.
package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	Unknown Kind = iota
	InputError
	NetworkError
	ProtocolError
	RemoteRejection
	TimeoutError
	MathFault
	Cancelled
)

var kindNames = map[Kind]string{
	Unknown:         "unknown",
	InputError:      "input_error",
	NetworkError:    "network_error",
	ProtocolError:   "protocol_error",
	RemoteRejection: "remote_rejection",
	TimeoutError:    "timeout",
	MathFault:       "math_fault",
	Cancelled:       "cancelled",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified failure. Op names the operation that failed
// (e.g. "ephemeris.mars", "platesolve.login").
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *Error of the same kind with no message,
// which lets sentinel values like ErrMath match any MathFault.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Msg == "" && t.Err == nil
}

// Sentinels for errors.Is checks.
var (
	ErrInput    = &Error{Kind: InputError}
	ErrNetwork  = &Error{Kind: NetworkError}
	ErrProtocol = &Error{Kind: ProtocolError}
	ErrRejected = &Error{Kind: RemoteRejection}
	ErrTimeout  = &Error{Kind: TimeoutError}
	ErrMath     = &Error{Kind: MathFault}
	ErrCanceled = &Error{Kind: Cancelled}
)

// New creates a classified error.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap creates a classified error around err.
func Wrap(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or Unknown.
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
