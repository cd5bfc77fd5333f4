package dbus

import "sync"

// Registry is the process-wide, read-mostly table mapping a host
// accessor method name to the D-Bus type code it produces, consulted
// by Argument.Box when a value has no builtin accessor for the
// argument's basic type (see HostAccessor in host.go). Readers
// acquire the mutex, copy out the binding, and release; nothing holds
// the lock across a marshalling step.
type Registry struct {
	mu       sync.Mutex
	accessor map[byte]string
}

// globalRegistry is the process-scoped singleton every Argument
// consults. It is explicit state with a Reset hook (ResetRegistry) rather than an
// implicitly-initialized map, so tests can reset it between cases
// instead of relying on first-use initialization.
var globalRegistry = NewRegistry()

// NewRegistry returns an empty registry. Most callers want
// globalRegistry; NewRegistry exists so tests can build an isolated
// instance instead of mutating process-wide state.
func NewRegistry() *Registry {
	return &Registry{accessor: map[byte]string{}}
}

// Register binds the host accessor method name used to extract a
// value of D-Bus type code from an arbitrary HostAccessor-implementing
// object. A later call for the same code overwrites the binding.
func (r *Registry) Register(code byte, accessorMethod string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessor[code] = accessorMethod
}

// Lookup returns the accessor method name registered for code, if
// any.
func (r *Registry) Lookup(code byte) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name, ok := r.accessor[code]
	return name, ok
}

// Reset clears every registered binding, used by tests that don't
// want to inherit state from an earlier test's Register calls.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accessor = map[byte]string{}
}

// Register is a convenience wrapper around globalRegistry.Register.
func Register(code byte, accessorMethod string) { globalRegistry.Register(code, accessorMethod) }

// ResetRegistry clears the process-wide registry; tests call this in
// TestMain or per-case setup to avoid inter-test leakage.
func ResetRegistry() { globalRegistry.Reset() }

// boxViaRegistry is Argument.boxBasic's fallback path: when v is
// neither nil nor one of the builtin boxed shapes boxBasic already
// understands, and v implements HostAccessor, consult the registry
// for the accessor name bound to this argument's type code and ask v
// for the underlying value through it.
func boxViaRegistry(a *Argument, v Value) (Value, bool) {
	accessor, ok := v.(HostAccessor)
	if !ok {
		return nil, false
	}
	name, ok := globalRegistry.Lookup(a.dbusType)
	if !ok {
		return nil, false
	}
	return accessor.HostAccessor(name)
}
