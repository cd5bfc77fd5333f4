package dbus

import (
	"context"
	"time"

	"github.com/gnustep/dbuskit/internal/future"
)

// callState is a MethodCall's lifecycle stage.
type callState int

const (
	callBuilding callState = iota
	callSent
	callCompleted
	callFailed
)

// MethodCall is one outstanding invocation of a remote method: the
// resolved target, the marshalled request, and the eventual reply or
// error. It is the unit newMethodCall/run move through building ->
// sent -> completed|failed.
type MethodCall struct {
	target *Proxy
	iface  *RemoteInterface
	method *Method
	inv    *Invocation

	state callState
}

// newMethodCall builds a MethodCall ready to run: selector resolution
// has already happened, marshalling and the wire round-trip have not.
func newMethodCall(target *Proxy, iface *RemoteInterface, method *Method, inv *Invocation) *MethodCall {
	return &MethodCall{target: target, iface: iface, method: method, inv: inv, state: callBuilding}
}

// run marshals the call's arguments, performs the wire round-trip
// through the owning Proxy's connection, and unmarshals the reply.
// One-way methods (NoReply="true") return immediately after the
// request is dispatched, with a nil value and nil error.
func (c *MethodCall) run(ctx context.Context) (Value, error) {
	wireArgs, err := c.method.MarshalArguments(c.inv, c.target)
	if err != nil {
		c.state = callFailed
		return nil, err
	}

	req := Request{
		Destination: c.target.service,
		Path:        c.target.path,
		Interface:   c.iface.name,
		Method:      c.method.name,
		Args:        wireArgs,
		NoReply:     c.method.IsOneway(),
	}
	c.state = callSent

	reply, err := c.target.endpoint.call(ctx, req)
	if err != nil {
		c.state = callFailed
		return nil, mapRemoteException(err)
	}
	if req.NoReply {
		c.state = callCompleted
		return nil, nil
	}

	v, err := c.method.UnmarshalReturn(reply, c.target)
	if err != nil {
		c.state = callFailed
		return nil, err
	}
	c.state = callCompleted
	return v, nil
}

// PendingCall is an asynchronous invocation's future placeholder: the
// caller gets it back immediately, and the boxed result (or the
// preserved error) is deferred until the future is dereferenced via
// Wait. Async calls carry no inter-call ordering guarantee; a caller
// that needs ordering chains on the previous PendingCall's Wait.
type PendingCall struct {
	fut    *future.Future[Value]
	cancel context.CancelFunc
}

// InvokeAsync issues sel without blocking, returning a PendingCall
// that resolves when the reply arrives.
func (p *Proxy) InvokeAsync(ctx context.Context, sel Selector, args []Value) *PendingCall {
	ctx, cancel := context.WithCancel(ctx)
	pc := &PendingCall{fut: future.New[Value](), cancel: cancel}
	go func() {
		defer cancel()
		v, err := p.Invoke(ctx, sel, args)
		if err != nil {
			pc.fut.Fail(err)
			return
		}
		pc.fut.Resolve(v)
	}()
	return pc
}

// Wait dereferences the future, blocking until the call resolves or
// ctx is done.
func (c *PendingCall) Wait(ctx context.Context) (Value, error) {
	v, err := c.fut.Wait(ctx)
	if err != nil {
		return nil, wrapWaitError(err)
	}
	return v, nil
}

// Done reports whether the call has resolved, without blocking.
func (c *PendingCall) Done() bool { return c.fut.Done() }

// Cancel aborts the in-flight call. A Wait after Cancel observes a
// Cancelled error once the abort takes effect.
func (c *PendingCall) Cancel() { c.cancel() }

// CallTimeout converts a timeout expressed in floating-point seconds
// into the context deadline a call should carry. A zero or negative
// value means the transport's default, reported as (0, false);
// positive values truncate to whole milliseconds.
func CallTimeout(seconds float64) (time.Duration, bool) {
	if seconds <= 0 {
		return 0, false
	}
	ms := int64(seconds * 1000)
	return time.Duration(ms) * time.Millisecond, true
}

// mapRemoteException translates a RemoteError whose symbolic Name is
// one of the bridge's own system exception names (the ones
// exceptionName derives from a Kind) back into that local Kind, so a
// caller can match with errors.Is regardless of which side of the
// bridge originated the failure. A custom host exception name has no
// local Kind counterpart and passes through unchanged, keeping
// Name/Msg as the peer set them.
func mapRemoteException(err error) error {
	de, ok := err.(*Error)
	if !ok || de.Kind != RemoteError {
		return err
	}
	switch de.Name {
	case "InvalidArgument":
		de.Kind = TypeMismatch
	case "OutOfMemory":
		de.Kind = OutOfMemory
	case "Unreachable":
		de.Kind = RemoteUnreachable
	case "Timeout":
		de.Kind = Timeout
	case "Cancelled":
		de.Kind = Cancelled
	}
	return de
}
