// Package perr defines the flat error taxonomy shared by every layer of
// the PanelLink protocol stack.
//
// Every failure surfaced by the codec, framing, crypto, or session layers
// carries exactly one Kind. Callers classify with KindOf and branch on the
// result instead of matching error strings.
//
// Example:
//
//	resp, err := sess.Send(ctx, msg)
//	if perr.KindOf(err) == perr.Timeout {
//	    // retry or report
//	}
package perr

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
)

// Kind identifies the failure class of a protocol error.
type Kind uint8

const (
	// Unknown is the zero Kind; errors not created by this package map here.
	Unknown Kind = iota
	// Cancelled means caller cancellation was observed.
	Cancelled
	// Disconnected means the remote closed or a transport write failed.
	Disconnected
	// FramingError means a TLink delimiter was missing or misplaced.
	FramingError
	// EncodingError means a byte-stuffing violation was found.
	EncodingError
	// EncryptionError means an ECB configure/encrypt/decrypt step failed.
	EncryptionError
	// PacketParseError means a CRC mismatch, length overflow, or bad payload.
	PacketParseError
	// SessionNotFound means a session registry lookup missed.
	SessionNotFound
	// UnexpectedResponse means the handshake got a wrong message type.
	UnexpectedResponse
	// Timeout means a command-response wait exceeded its budget.
	Timeout
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case Cancelled:
		return "Cancelled"
	case Disconnected:
		return "Disconnected"
	case FramingError:
		return "FramingError"
	case EncodingError:
		return "EncodingError"
	case EncryptionError:
		return "EncryptionError"
	case PacketParseError:
		return "PacketParseError"
	case SessionNotFound:
		return "SessionNotFound"
	case UnexpectedResponse:
		return "UnexpectedResponse"
	case Timeout:
		return "Timeout"
	default:
		return "Unknown"
	}
}

// Error is a protocol failure: a kind, a human message, an optional
// offending packet for diagnostics, and an optional wrapped cause.
type Error struct {
	Kind   Kind
	Msg    string
	Packet []byte
	Err    error
}

// Error implements the error interface.
func (e *Error) Error() string {
	s := e.Kind.String() + ": " + e.Msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	if len(e.Packet) > 0 {
		s += " [packet " + hex.EncodeToString(e.Packet) + "]"
	}
	return s
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a protocol error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates a protocol error of the given kind around a cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithPacket attaches the offending packet bytes for hex diagnostics.
func (e *Error) WithPacket(packet []byte) *Error {
	e.Packet = append([]byte(nil), packet...)
	return e
}

// KindOf classifies any error. Errors created by this package (directly
// or wrapped) report their Kind; context cancellation maps to Cancelled;
// everything else is Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled
	}
	return Unknown
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
