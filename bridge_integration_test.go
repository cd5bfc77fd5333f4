package dbus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	dbus "github.com/gnustep/dbuskit"
	"github.com/gnustep/dbuskit/dbustest"
)

// echoGreeter is a host object exported onto the test bus: one real
// business method plus a method that always raises a named exception.
type echoGreeter struct{}

func (echoGreeter) ClassName() string { return "Greeter" }

func (echoGreeter) Greet(name string) string { return "hi " + name }

func (echoGreeter) Fail() {}

func (echoGreeter) Invoke(ctx context.Context, sel dbus.Selector, args []dbus.Value) (dbus.Value, error) {
	switch sel {
	case "greet:":
		name, _ := args[0].(string)
		return echoGreeter{}.Greet(name), nil
	case "fail":
		return nil, dbus.NewHostException("MyFailure", "nope")
	default:
		return nil, dbus.NewHostException("UnknownSelector", string(sel))
	}
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// TestExportAndInvokeRoundTrip drives the whole outbound path against
// a real bus: export a host object on one connection, then from a
// second connection let a cold Proxy introspect it and dispatch a
// selector through its derived dispatch table.
func TestExportAndInvokeRoundTrip(t *testing.T) {
	bus := dbustest.New(t)
	srv := bus.MustConn(t)
	cli := bus.MustConn(t)

	if err := srv.Export("/greeter", echoGreeter{}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	p := dbus.NewProxy(cli, srv.UniqueName(), "/greeter")
	if p.State() != dbus.StateCold {
		t.Fatalf("new proxy state = %v, want cold", p.State())
	}

	v, err := p.Invoke(testCtx(t), "greet:", []dbus.Value{"hello"})
	if err != nil {
		t.Fatalf("Invoke(greet:) failed: %v", err)
	}
	if v != "hi hello" {
		t.Errorf("Invoke(greet:) = %v, want %q", v, "hi hello")
	}
	if p.State() != dbus.StateReady {
		t.Errorf("proxy state after first call = %v, want ready", p.State())
	}
}

// TestExportedExceptionRoundTrip checks that a named host exception
// raised while servicing a call crosses the bus and comes back with
// its symbolic name and message intact.
func TestExportedExceptionRoundTrip(t *testing.T) {
	bus := dbustest.New(t)
	srv := bus.MustConn(t)
	cli := bus.MustConn(t)

	if err := srv.Export("/greeter", echoGreeter{}); err != nil {
		t.Fatalf("Export failed: %v", err)
	}

	p := dbus.NewProxy(cli, srv.UniqueName(), "/greeter")
	_, err := p.Invoke(testCtx(t), "fail", nil)
	if err == nil {
		t.Fatal("Invoke(fail) should surface the exported exception")
	}
	var de *dbus.Error
	if !errors.As(err, &de) {
		t.Fatalf("expected *dbus.Error, got %T: %v", err, err)
	}
	if de.Name != "MyFailure" {
		t.Errorf("exception name = %q, want MyFailure", de.Name)
	}
	if de.Msg != "nope" {
		t.Errorf("exception message = %q, want nope", de.Msg)
	}
}

// TestAutoExportMintsPath checks the auto-export path convention on a
// live connection.
func TestAutoExportMintsPath(t *testing.T) {
	bus := dbustest.New(t)
	srv := bus.MustConn(t)

	path, err := srv.AutoExport(echoGreeter{})
	if err != nil {
		t.Fatalf("AutoExport failed: %v", err)
	}
	cli := bus.MustConn(t)
	p := dbus.NewProxy(cli, srv.UniqueName(), path)
	v, err := p.Invoke(testCtx(t), "greet:", []dbus.Value{"auto"})
	if err != nil {
		t.Fatalf("Invoke on auto-exported object failed: %v", err)
	}
	if v != "hi auto" {
		t.Errorf("Invoke = %v, want %q", v, "hi auto")
	}
}

// TestProxyInvalidAfterIntrospectFailure drives the cold -> invalid
// transition: no peer owns the bus name :1.999, so introspection fails
// and the proxy latches terminal.
func TestProxyInvalidAfterIntrospectFailure(t *testing.T) {
	bus := dbustest.New(t)
	cli := bus.MustConn(t)

	p := dbus.NewProxy(cli, ":1.999", "/nowhere")
	_, err := p.Invoke(testCtx(t), "ping", nil)
	var de *dbus.Error
	if !errors.As(err, &de) || de.Kind != dbus.RemoteUnreachable {
		t.Fatalf("expected RemoteUnreachable, got %v", err)
	}
	if p.State() != dbus.StateInvalid {
		t.Errorf("proxy state = %v, want invalid", p.State())
	}
	// Once invalid, the proxy is terminal.
	if _, err := p.Invoke(testCtx(t), "ping", nil); err == nil {
		t.Error("an invalid proxy should refuse further calls")
	}
}
