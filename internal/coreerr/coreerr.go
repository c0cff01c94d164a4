// Package coreerr defines the error taxonomy shared by every layer of the
// session: networking, crypto, mercury, audio and connect components all
// translate foreign errors into one of these seven kinds at their boundary
// rather than leaking sentinel values or panics.
package coreerr

import (
	"errors"
	"fmt"
)

// Kind is one of the seven error categories the whole module propagates.
type Kind int

const (
	// InvalidArgument marks bad base62, an out-of-range integer, a malformed URI.
	InvalidArgument Kind = iota
	// FailedPrecondition marks an operation attempted before login, before the
	// dealer is connected, or in a state the caller is not allowed to request.
	FailedPrecondition
	// Unavailable marks a network failure, a CDN 5xx, a disconnected AP, or an
	// apresolve outage with no fallback left.
	Unavailable
	// PermissionDenied marks a failed login, a premium-required response, or a
	// geo restriction.
	PermissionDenied
	// DeadlineExceeded marks an expired CDN URL or a request timeout.
	DeadlineExceeded
	// Unimplemented marks an unknown dealer endpoint or packet type.
	Unimplemented
	// Aborted marks a closed session, a cancelled task, or a dropped channel.
	Aborted
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case FailedPrecondition:
		return "failed_precondition"
	case Unavailable:
		return "unavailable"
	case PermissionDenied:
		return "permission_denied"
	case DeadlineExceeded:
		return "deadline_exceeded"
	case Unimplemented:
		return "unimplemented"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with one of the Kind values above.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func new(k Kind, cause error) *Error { return &Error{Kind: k, Cause: cause} }

func InvalidArgument(cause error) *Error    { return new(InvalidArgument, cause) }
func FailedPrecondition(cause error) *Error { return new(FailedPrecondition, cause) }
func Unavailable(cause error) *Error        { return new(Unavailable, cause) }
func PermissionDenied(cause error) *Error   { return new(PermissionDenied, cause) }
func DeadlineExceeded(cause error) *Error   { return new(DeadlineExceeded, cause) }
func Unimplemented(cause error) *Error      { return new(Unimplemented, cause) }
func Aborted(cause error) *Error            { return new(Aborted, cause) }

// Is reports whether err carries the given Kind.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}
