package dbus

import (
	"context"
	"sync"
)

// ProxyState is a Proxy's lifecycle stage.
type ProxyState int

const (
	StateCold ProxyState = iota
	StateWarming
	StateReady
	StateInvalid
)

func (s ProxyState) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateWarming:
		return "warming"
	case StateReady:
		return "ready"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Proxy is an opaque local stand-in for a remote object. Any host
// message it does not natively understand is treated as a call to
// forward to the remote peer; see Invoke.
type Proxy struct {
	endpoint *Conn
	service  string
	path     ObjectPath

	mu         sync.Mutex
	state      ProxyState
	woken      chan struct{} // closed and replaced on every state transition
	interfaces map[string]*RemoteInterface

	lastUsed string // interface name most recently resolved, for tie-breaking
}

// NewProxy creates a cold Proxy for (service, path) on conn. No
// network activity happens until the first Invoke.
func NewProxy(conn *Conn, service string, path ObjectPath) *Proxy {
	return &Proxy{
		endpoint:   conn,
		service:    service,
		path:       path,
		woken:      make(chan struct{}),
		interfaces: map[string]*RemoteInterface{},
	}
}

// State returns the Proxy's current lifecycle stage.
func (p *Proxy) State() ProxyState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Service returns the bus name this proxy addresses.
func (p *Proxy) Service() string { return p.service }

// Path returns the object path this proxy addresses.
func (p *Proxy) Path() ObjectPath { return p.path }

// sameScope reports whether p and other share an endpoint and
// service, the condition under which an object-path argument may be
// forwarded by reference rather than requiring auto-export.
func (p *Proxy) sameScope(other *Proxy) bool {
	return p.endpoint == other.endpoint && p.service == other.service
}

func (p *Proxy) transition(to ProxyState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = to
	close(p.woken)
	p.woken = make(chan struct{})
}

// Invoke implements RemoteObject: it is the single entry point every
// proxied host message passes through.
func (p *Proxy) Invoke(ctx context.Context, sel Selector, args []Value) (Value, error) {
	if err := p.ensureReady(ctx); err != nil {
		return nil, err
	}

	iface, method, err := p.resolve(sel)
	if err != nil {
		return nil, err
	}

	// A property accessor selector forwards through the standard
	// Properties interface, not a direct member call.
	if prop := iface.iface.PropertyForAccessor(method); prop != nil {
		if method == prop.Setter() {
			if len(args) != 1 {
				return nil, &Error{Kind: TypeMismatch, Op: "Invoke", Msg: "property setter takes exactly one argument"}
			}
			return nil, iface.SetProperty(ctx, prop.Name(), args[0])
		}
		return iface.GetProperty(ctx, prop.Name())
	}

	inv := &Invocation{Selector: sel, Args: args}
	call := newMethodCall(p, iface, method, inv)
	return call.run(ctx)
}

// ensureReady drives the cold -> warming -> ready transition by
// issuing Introspect, per step 1 of the interception sequence.
func (p *Proxy) ensureReady(ctx context.Context) error {
	p.mu.Lock()
	state := p.state
	p.mu.Unlock()

	switch state {
	case StateReady:
		return nil
	case StateInvalid:
		return &Error{Kind: RemoteUnreachable, Op: "Invoke", Msg: "proxy is invalid"}
	case StateWarming:
		return p.waitWarm(ctx)
	}

	p.mu.Lock()
	if p.state != StateCold {
		p.mu.Unlock()
		return p.ensureReady(ctx)
	}
	p.state = StateWarming
	p.mu.Unlock()

	obj := p.endpoint.Peer(p.service).Object(p.path)
	xml, err := obj.Introspect(ctx)
	if err != nil {
		p.transition(StateInvalid)
		return &Error{Kind: RemoteUnreachable, Op: "Invoke", Err: err}
	}
	doc, err := ParseIntrospection(xml, obj)
	if err != nil {
		p.transition(StateInvalid)
		return err
	}
	p.mu.Lock()
	for _, ri := range doc.Interfaces {
		p.interfaces[ri.Name()] = ri
	}
	p.mu.Unlock()
	p.transition(StateReady)
	return nil
}

func (p *Proxy) waitWarm(ctx context.Context) error {
	for {
		p.mu.Lock()
		state := p.state
		wake := p.woken
		p.mu.Unlock()
		switch state {
		case StateReady:
			return nil
		case StateInvalid:
			return &Error{Kind: RemoteUnreachable, Op: "Invoke", Msg: "proxy is invalid"}
		}
		select {
		case <-wake:
		case <-ctx.Done():
			return &Error{Kind: Cancelled, Op: "Invoke", Err: ctx.Err()}
		}
	}
}

// resolve searches every cached interface's dispatch table for sel,
// per step 2 of the interception sequence: exactly one match
// resolves outright, multiple matches in distinct interfaces are
// broken by most-recently-used, and a tie is ambiguous.
func (p *Proxy) resolve(sel Selector) (*RemoteInterface, *Method, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var matches []*RemoteInterface
	var methods []*Method
	for _, ri := range p.interfaces {
		if m, ok := ri.iface.dispatch[sel]; ok {
			matches = append(matches, ri)
			methods = append(methods, m)
		}
	}
	switch len(matches) {
	case 0:
		return nil, nil, &Error{Kind: TypeMismatch, Op: "Invoke", Msg: "selector " + string(sel) + " not found on any cached interface"}
	case 1:
		p.lastUsed = matches[0].name
		return matches[0], methods[0], nil
	}
	for i, ri := range matches {
		if ri.name == p.lastUsed {
			return ri, methods[i], nil
		}
	}
	return nil, nil, &Error{Kind: TypeMismatch, Op: "Invoke", Msg: "selector " + string(sel) + " is ambiguous across interfaces"}
}
