package dbus

import (
	"context"
	"fmt"
	"strings"
	"sync"

	godbus "github.com/godbus/dbus/v5"

	"github.com/creachadair/mds/mapset"

	"github.com/gnustep/dbuskit/internal/future"
)

// ObjectPath names a location in an object tree, either local (for
// exported objects) or remote (for proxies).
type ObjectPath = godbus.ObjectPath

// A Conn is a connection to a message bus. It wraps a transport
// binding rather than speaking SASL and framing itself; the bridge's
// job starts above the wire protocol.
type Conn struct {
	raw *godbus.Conn

	exports *exportRegistry

	mu       sync.Mutex
	closed   bool
	watchers mapset.Set[*Watcher]
	sigCh    chan *godbus.Signal
	sigOnce  sync.Once
}

// Session connects to the caller's session bus.
func Session(ctx context.Context) (*Conn, error) {
	raw, err := godbus.SessionBusPrivate()
	if err != nil {
		return nil, wrapDial(err)
	}
	return dial(raw)
}

// System connects to the system bus.
func System(ctx context.Context) (*Conn, error) {
	raw, err := godbus.SystemBusPrivate()
	if err != nil {
		return nil, wrapDial(err)
	}
	return dial(raw)
}

// Dial connects to the bus listening at addr, such as a unix socket
// path used by an isolated test instance.
func Dial(ctx context.Context, addr string) (*Conn, error) {
	raw, err := godbus.Dial(addr)
	if err != nil {
		return nil, wrapDial(err)
	}
	return dial(raw)
}

func dial(raw *godbus.Conn) (*Conn, error) {
	if err := raw.Auth(nil); err != nil {
		raw.Close()
		return nil, wrapDial(err)
	}
	if err := raw.Hello(); err != nil {
		raw.Close()
		return nil, wrapDial(err)
	}
	c := &Conn{raw: raw, exports: newExportRegistry(raw), watchers: mapset.New[*Watcher]()}
	return c, nil
}

// Raw returns the underlying transport connection, for the export
// registry and protocol generator to attach handlers to.
func (c *Conn) Raw() *godbus.Conn { return c.raw }

// UniqueName returns the connection's unique bus name (":1.N"),
// assigned by the bus at Hello time.
func (c *Conn) UniqueName() string {
	if names := c.raw.Names(); len(names) > 0 {
		return names[0]
	}
	return ""
}

func wrapDial(err error) error {
	return &Error{Kind: Disconnected, Op: "dial", Err: err}
}

// Close tears down the connection. Pending calls fail with
// [Disconnected].
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return c.raw.Close()
}

func (c *Conn) addWatcher(w *Watcher) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return &Error{Kind: Disconnected, Op: "Watch"}
	}
	c.watchers.Add(w)
	c.sigOnce.Do(func() {
		c.sigCh = make(chan *godbus.Signal, 64)
		c.raw.Signal(c.sigCh)
		go c.dispatchSignals()
	})
	return nil
}

func (c *Conn) removeWatcher(w *Watcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers.Remove(w)
}

func (c *Conn) dispatchSignals() {
	for sig := range c.sigCh {
		n := notificationFromSignal(sig)
		if n == nil {
			continue
		}
		c.mu.Lock()
		watchers := make([]*Watcher, 0, len(c.watchers))
		for w := range c.watchers {
			watchers = append(watchers, w)
		}
		c.mu.Unlock()
		for _, w := range watchers {
			w.deliver(n)
		}
	}
}

// addMatchRule installs a raw org.freedesktop.DBus.AddMatch rule.
func (c *Conn) addMatchRule(ctx context.Context, rule string) error {
	req := Request{
		Destination: "org.freedesktop.DBus",
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Method:      "AddMatch",
		Args:        []any{rule},
	}
	_, err := c.call(ctx, req)
	return err
}

// removeMatchRule undoes a prior addMatchRule.
func (c *Conn) removeMatchRule(ctx context.Context, rule string) error {
	req := Request{
		Destination: "org.freedesktop.DBus",
		Path:        "/org/freedesktop/DBus",
		Interface:   "org.freedesktop.DBus",
		Method:      "RemoveMatch",
		Args:        []any{rule},
	}
	_, err := c.call(ctx, req)
	return err
}

// Peer names a remote participant on the bus, addressed by a unique
// or well-known bus name.
func (c *Conn) Peer(name string) Peer {
	return Peer{c: c, name: name}
}

// Bus returns the well-known peer for the bus driver itself.
func (c *Conn) Bus() Peer {
	return c.Peer("org.freedesktop.DBus")
}

type Peer struct {
	c    *Conn
	name string
}

// Name returns the bus name this peer addresses.
func (p Peer) Name() string { return p.name }

// Conn returns the connection this peer was obtained from.
func (p Peer) Conn() *Conn { return p.c }

// Object returns the object at path, exported by this peer.
func (p Peer) Object(path ObjectPath) Object {
	return Object{p: p, path: path, raw: p.c.raw.Object(p.name, path)}
}

// Ping calls org.freedesktop.DBus.Peer.Ping.
func (p Peer) Ping(ctx context.Context) error {
	req := Request{
		Destination: p.name,
		Path:        "/",
		Interface:   "org.freedesktop.DBus.Peer",
		Method:      "Ping",
	}
	_, err := p.c.call(ctx, req)
	return err
}

// An Object is a single object path exported by a peer.
type Object struct {
	p   Peer
	path ObjectPath
	raw  godbus.BusObject
}

func (o Object) Conn() *Conn     { return o.p.c }
func (o Object) Peer() Peer      { return o.p }
func (o Object) Path() ObjectPath { return o.path }

// Interface addresses one interface exposed on this object.
func (o Object) Interface(name string) RemoteInterface {
	return RemoteInterface{o: o, name: name}
}

// Introspect fetches and returns the raw introspection XML document
// for this object.
func (o Object) Introspect(ctx context.Context) (string, error) {
	req := Request{
		Destination: o.p.name,
		Path:        o.path,
		Interface:   "org.freedesktop.DBus.Introspectable",
		Method:      "Introspect",
	}
	body, err := o.p.c.call(ctx, req)
	if err != nil {
		return "", err
	}
	if len(body) != 1 {
		return "", &Error{Kind: RemoteError, Op: "Introspect", Msg: "unexpected reply shape"}
	}
	s, ok := body[0].(string)
	if !ok {
		return "", &Error{Kind: TypeMismatch, Op: "Introspect", Msg: "expected string reply"}
	}
	return s, nil
}

// A Request describes one outgoing method call at the wire level:
// destination, object path, interface and member names, and the
// already-boxed argument values the Argument layer produced.
type Request struct {
	Destination string
	Path        ObjectPath
	Interface   string
	Method      string
	Args        []any
	NoReply     bool
}

func (r Request) member() string {
	return r.Interface + "." + r.Method
}

// call issues a blocking request and returns the reply body, honoring
// ctx cancellation by racing the blocking call in a goroutine, since
// the underlying binding does not expose a context-aware call.
func (c *Conn) call(ctx context.Context, req Request) ([]any, error) {
	obj := c.raw.Object(req.Destination, req.Path)

	if req.NoReply {
		// A fire-and-forget call still goes out on the wire but the
		// caller never blocks waiting on a reply; MethodCall treats
		// this as already resolved.
		go obj.Call(req.member(), godbus.Flags(0), req.Args...)
		return nil, nil
	}

	fut := future.New[[]any]()
	go func() {
		call := obj.Call(req.member(), godbus.Flags(0), req.Args...)
		if call.Err != nil {
			fut.Fail(translateRemoteError(call.Err))
			return
		}
		fut.Resolve(call.Body)
	}()

	v, err := fut.Wait(ctx)
	if err != nil {
		return nil, wrapWaitError(err)
	}
	return v, nil
}

// wrapWaitError folds a future.Wait failure into the error taxonomy:
// a context deadline becomes Timeout, any other context cancellation
// becomes Cancelled, and anything else (already a *Error from the
// reply goroutine) passes through unchanged.
func wrapWaitError(err error) error {
	switch err {
	case context.DeadlineExceeded:
		return &Error{Kind: Timeout, Op: "call", Err: err}
	case context.Canceled:
		return &Error{Kind: Cancelled, Op: "call", Err: err}
	default:
		return err
	}
}

const exceptionPrefix = "org.gnustep.objc.exception."

// translateRemoteError maps an error surfaced by the transport
// binding into the bridge's error taxonomy. When the D-Bus error name
// carries the org.gnustep.objc.exception. prefix, the remainder
// becomes the Error's symbolic Name, and the first body element (the
// peer's message string) becomes Msg so a caller observes the same
// description the exporter raised.
func translateRemoteError(err error) error {
	if dbusErr, ok := err.(godbus.Error); ok {
		msg := dbusErr.Name
		if len(dbusErr.Body) > 0 {
			if s, ok := dbusErr.Body[0].(string); ok {
				msg = s
			}
		}
		var name string
		if strings.HasPrefix(dbusErr.Name, exceptionPrefix) {
			name = strings.TrimPrefix(dbusErr.Name, exceptionPrefix)
		}
		return &Error{
			Kind: RemoteError,
			Op:   "call",
			Name: name,
			Msg:  msg,
			Err:  fmt.Errorf("%s: %v", dbusErr.Name, dbusErr.Body),
		}
	}
	if err == godbus.ErrClosed {
		return &Error{Kind: Disconnected, Op: "call", Err: err}
	}
	return &Error{Kind: RemoteUnreachable, Op: "call", Err: err}
}

// AddMatch subscribes the connection to broadcast signals matching
// iface/member on path, delivering them to the given channel. It
// mirrors the one-call-per-signal-name convention used elsewhere in
// this binding rather than a generic match-rule string.
func (c *Conn) AddMatch(iface, member string, path ObjectPath) (chan *godbus.Signal, error) {
	ch := make(chan *godbus.Signal, 16)
	c.raw.Signal(ch)
	opt := godbus.WithMatchOption("path", string(path))
	call := c.raw.BusObject().AddMatchSignal(iface, member, opt)
	if call.Err != nil {
		c.raw.RemoveSignal(ch)
		return nil, translateRemoteError(call.Err)
	}
	return ch, nil
}

// RemoveMatch undoes a prior AddMatch subscription.
func (c *Conn) RemoveMatch(iface, member string, path ObjectPath, ch chan *godbus.Signal) {
	opt := godbus.WithMatchOption("path", string(path))
	c.raw.BusObject().RemoveMatchSignal(iface, member, opt)
	c.raw.RemoveSignal(ch)
}
