// Package status defines the probe results shared across mcwatch: endpoints,
// immutable snapshots, player references and the probe error taxonomy.
package status

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies why a probe attempt failed.
type Kind string

const (
	KindNone            Kind = ""
	KindConnectTimeout  Kind = "ConnectTimeout"
	KindConnectFailed   Kind = "ConnectFailed"
	KindTruncated       Kind = "Truncated"
	KindMalformedVarInt Kind = "MalformedVarInt"
	KindInvalidData     Kind = "InvalidData"
	KindFormat          Kind = "FormatError"
	KindDecodeSoft      Kind = "DecodeSoft"
	KindIO              Kind = "IOError"
)

// Sentinel errors for the fixed failure modes of the wire protocol.
var (
	ErrMalformedVarInt  = errors.New("varint is too big")
	ErrEmptyDescription = errors.New("empty description")
)

// Error is a probe failure tagged with its Kind.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// NewError builds an Error for the given kind and operation.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf classifies an arbitrary error. Errors that carry no Kind are mapped
// from their network or context semantics.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}

	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}

	if errors.Is(err, ErrMalformedVarInt) {
		return KindMalformedVarInt
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindConnectTimeout
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindConnectTimeout
	}

	return KindIO
}

// Failure is the error recorded on a failed Snapshot.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

// FailureOf converts an error into the Failure stored on a Snapshot.
func FailureOf(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Kind: KindOf(err), Message: err.Error()}
}

// Summary is the short offline reason shown to users.
func (f *Failure) Summary() string {
	if f == nil {
		return "Connection Failed"
	}
	return "Connection Failed: " + string(f.Kind)
}
