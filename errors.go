package dbus

import "fmt"

// Kind classifies an [Error] into the taxonomy a caller is expected to
// branch on, rather than matching error strings or inventing a new
// Go type per failure mode.
type Kind int

const (
	// MalformedSignature means a type signature string failed to
	// parse or described a container the bridge does not support.
	MalformedSignature Kind = iota
	// TypeMismatch means a host value could not be boxed into, or a
	// wire value could not be unboxed from, the shape the signature
	// required.
	TypeMismatch
	// OutOfMemory means a peer reported an
	// org.gnustep.objc.exception.OutOfMemory failure; the bridge
	// itself never raises it locally.
	OutOfMemory
	// Disconnected means the underlying connection is closed or was
	// closed while a call was outstanding.
	Disconnected
	// RemoteError means a peer returned an explicit D-Bus error
	// reply to a method call.
	RemoteError
	// RemoteUnreachable means the destination could not be
	// contacted at all (no such name, activation failure, and
	// similar bus-level failures).
	RemoteUnreachable
	// Timeout means a call's deadline elapsed before a reply
	// arrived.
	Timeout
	// Cancelled means the call's context was cancelled before a
	// reply arrived.
	Cancelled
	// UnsupportedValue means a host value has no representation in
	// the D-Bus type system at all (not a mismatch against a known
	// signature, but a value the bridge never marshals).
	UnsupportedValue
	// DuplicateKey is a warning-only kind: a dict-entry container
	// carried a repeated key. Bridging continues, keeping the first
	// value seen; later duplicates are dropped.
	DuplicateKey
)

func (k Kind) String() string {
	switch k {
	case MalformedSignature:
		return "malformed signature"
	case TypeMismatch:
		return "type mismatch"
	case OutOfMemory:
		return "out of memory"
	case Disconnected:
		return "disconnected"
	case RemoteError:
		return "remote error"
	case RemoteUnreachable:
		return "remote unreachable"
	case Timeout:
		return "timeout"
	case Cancelled:
		return "cancelled"
	case UnsupportedValue:
		return "unsupported value"
	case DuplicateKey:
		return "duplicate key"
	default:
		return "unknown"
	}
}

// Error is the single error type raised across the bridge. Op names
// the operation that failed (a selector, a method name, or an
// internal step like "dial"); Msg carries a short description; Err
// wraps the underlying cause when there is one. Name carries the
// symbolic exception name (e.g. "MyFailure") stripped of the
// org.gnustep.objc.exception. prefix, when this Error either arrived
// from a peer's named exception or was raised locally via
// [NewHostException] for export under that same prefix.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Name string
	Err  error
}

// NewHostException builds an Error for host code that wants to raise
// a specific, symbolically-named application exception to a remote
// caller, rather than one of the bridge's own system Kinds. Exporting
// it (see wireError in export.go) produces a D-Bus error named
// org.gnustep.objc.exception.<name>, and a peer that calls back
// through this bridge observes an Error with Name == name.
func NewHostException(name, message string) *Error {
	return &Error{Kind: RemoteError, Name: name, Msg: message}
}

// ExceptionName returns the org.gnustep.objc.exception.* wire name
// this error should be exported under: the preserved symbolic Name
// when one was set, falling back to the Kind-derived system name
// otherwise.
func (e *Error) ExceptionName() string {
	if e.Name != "" {
		return "org.gnustep.objc.exception." + e.Name
	}
	return exceptionName(e.Kind)
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same Kind, so callers
// can write errors.Is(err, &dbus.Error{Kind: dbus.Timeout}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// exceptionName maps an error Kind into the
// org.gnustep.objc.exception.* name a remote caller should see when a
// local invocation fails before ever reaching the wire, per the
// method-call error remapping described for the bridge.
func exceptionName(k Kind) string {
	switch k {
	case MalformedSignature, TypeMismatch, UnsupportedValue:
		return "org.gnustep.objc.exception.InvalidArgument"
	case OutOfMemory:
		return "org.gnustep.objc.exception.OutOfMemory"
	case Disconnected, RemoteUnreachable:
		return "org.gnustep.objc.exception.Unreachable"
	case Timeout:
		return "org.gnustep.objc.exception.Timeout"
	case Cancelled:
		return "org.gnustep.objc.exception.Cancelled"
	default:
		return "org.gnustep.objc.exception.Generic"
	}
}
