package dbus

import "context"

// Value is a boxed host-side value exchanged across the bridge. The
// concrete Go types the marshaller recognises are: int64, uint64,
// float64, bool, string, ObjectPath, Signature, FileHandle, Blob,
// []Value, Struct, map[string]Value, *Variant, and *Proxy. A nil
// Value represents the
// host's explicit null.
type Value any

// Blob is the host's byte-string class. An ay value that arrives as a
// byte slice unboxes as Blob rather than as []Value of individual
// bytes, whatever host-class annotation the argument carries; the
// annotation is recorded on the Argument but does not change this.
type Blob []byte

// Struct marks an ordered sequence as a wire struct rather than an
// array: variant type inference emits a per-element (…) signature for
// it where a plain []Value would infer a homogeneous array or av. A
// struct-typed wire value also unboxes as Struct, so the marking
// survives a round trip.
type Struct []Value

// Variant wraps a Value together with the signature it should be
// boxed under, letting a caller force "is variant" (point 1 of the
// variant type inference order) instead of letting the inference
// pick a container type for the payload.
type Variant struct {
	Sig   Signature
	Value Value
}

// FileHandle is an opaque file-descriptor handle. The bridge only
// ever exchanges the integer handle; it never duplicates or closes
// the underlying descriptor on the caller's behalf.
type FileHandle int32

// Selector names a host message send, in the host's own colon-joined
// idiom (e.g. "setFooWithBar:"). A Selector with no colons names a
// zero-argument message.
type Selector string

// Invocation captures one host message send: the selector and its
// positional arguments. Proxy.Invoke fills Return (or Err) once the
// call completes.
type Invocation struct {
	Selector Selector
	Args     []Value

	Return Value
	Err    error
}

// RemoteObject is the single dynamic-dispatch entry point a generated
// facade calls through; every proxied host message funnels here
// regardless of how many typed wrapper methods sit on top of it.
type RemoteObject interface {
	Invoke(ctx context.Context, sel Selector, args []Value) (Value, error)
}

// HostAccessor is implemented by host objects that do not box down to
// one of the marshaller's built-in Value shapes but instead expose a
// named accessor method, resolved through the unbox-accessor registry
// (see Registry in registry.go).
type HostAccessor interface {
	HostAccessor(method string) (Value, bool)
}

// Exporter is implemented by a local host object that wants to be
// reachable from the bus. Interface reflects it via
// build_from_host_class/build_from_host_protocol (see interface.go).
type Exporter interface {
	// ClassName names the host class, used to derive the interface
	// name org.gnustep.objc.class.<ClassName>.
	ClassName() string
	// Invoke dispatches a resolved selector to the underlying host
	// object, the same entry point a RemoteObject exposes for
	// outbound calls.
	RemoteObject
}
