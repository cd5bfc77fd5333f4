package dbus

import (
	"context"
	"errors"
	"testing"

	godbus "github.com/godbus/dbus/v5"
)

func TestTranslateRemoteErrorPreservesExceptionName(t *testing.T) {
	in := godbus.Error{
		Name: "org.gnustep.objc.exception.MyFailure",
		Body: []any{"nope"},
	}
	out := translateRemoteError(in)
	de, ok := out.(*Error)
	if !ok {
		t.Fatalf("translateRemoteError returned %T, want *Error", out)
	}
	if de.Kind != RemoteError {
		t.Errorf("Kind = %v, want RemoteError", de.Kind)
	}
	if de.Name != "MyFailure" {
		t.Errorf("Name = %q, want MyFailure", de.Name)
	}
	if de.Msg != "nope" {
		t.Errorf("Msg = %q, want the peer's message body", de.Msg)
	}
}

func TestTranslateRemoteErrorPlainDBusError(t *testing.T) {
	in := godbus.Error{Name: "org.freedesktop.DBus.Error.UnknownMethod", Body: []any{"no such method"}}
	de := translateRemoteError(in).(*Error)
	if de.Name != "" {
		t.Errorf("Name = %q, want empty for a non-exception error name", de.Name)
	}
	if de.Kind != RemoteError || de.Msg != "no such method" {
		t.Errorf("unexpected translation: %+v", de)
	}
}

func TestTranslateRemoteErrorClosedConn(t *testing.T) {
	de := translateRemoteError(godbus.ErrClosed).(*Error)
	if de.Kind != Disconnected {
		t.Errorf("Kind = %v, want Disconnected", de.Kind)
	}
}

func TestTranslateRemoteErrorOtherFailure(t *testing.T) {
	de := translateRemoteError(errors.New("dial tcp: refused")).(*Error)
	if de.Kind != RemoteUnreachable {
		t.Errorf("Kind = %v, want RemoteUnreachable", de.Kind)
	}
}

func TestWrapWaitError(t *testing.T) {
	if de := wrapWaitError(context.DeadlineExceeded).(*Error); de.Kind != Timeout {
		t.Errorf("deadline should wrap as Timeout, got %v", de.Kind)
	}
	if de := wrapWaitError(context.Canceled).(*Error); de.Kind != Cancelled {
		t.Errorf("cancellation should wrap as Cancelled, got %v", de.Kind)
	}
	passthrough := &Error{Kind: RemoteError}
	if got := wrapWaitError(passthrough); got != passthrough {
		t.Errorf("an already-structured error should pass through, got %v", got)
	}
}

func TestRequestMember(t *testing.T) {
	r := Request{Interface: "org.example.Foo", Method: "Ping"}
	if got := r.member(); got != "org.example.Foo.Ping" {
		t.Errorf("member = %q, want org.example.Foo.Ping", got)
	}
}
