// Package dbus bridges a dynamically-typed, message-passing host
// object system onto the D-Bus IPC protocol, in both directions.
//
// Outbound, a [Proxy] stands in for a remote (service, object path)
// pair. Its first use introspects the peer, parses the returned XML
// into [Interface] descriptions, and builds a selector dispatch
// table; after that, any host message sent through [Proxy.Invoke] is
// resolved to an interface member, its arguments marshalled
// positionally, and the reply unmarshalled back into host values.
// [Proxy.InvokeAsync] does the same without blocking, handing back a
// [PendingCall] future.
//
// Inbound, [Conn.Export] and [Conn.AutoExport] publish a local host
// object on the bus: its methods are reflected into an Interface,
// each incoming call's body is unboxed into host values, dispatched
// through the object's Invoke, and the result marshalled back.
// Exported objects also answer org.freedesktop.DBus.Introspectable
// and org.freedesktop.DBus.Peer.
//
// The type system's seam is the signature tree: [ParseSignature]
// turns a D-Bus type signature into [Argument] nodes, and each node
// knows how to box a host [Value] into its wire shape and unbox the
// reverse. Values with no fixed wire type travel as variants, whose
// concrete type is inferred from the value on the way out and read
// from the wire on the way in.
//
// Signals and property-change notifications are delivered through a
// [Watcher], filtered by [Match] restrictions.
//
// Every failure surfaces as a single *[Error] carrying a [Kind] from
// a closed taxonomy, so callers branch on Kind (or errors.Is) rather
// than matching message strings. Exceptions raised by exported host
// objects cross the bus under the org.gnustep.objc.exception.* error
// namespace and are reassembled with their symbolic name intact on
// the other side.
package dbus
