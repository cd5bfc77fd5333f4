package dbus

import (
	"reflect"
	"strings"
)

// Interface is a named bag of methods, signals and properties,
// together with the host-selector dispatch table install_method
// builds from them.
type Interface struct {
	name       string
	methods    map[string]*Method
	signals    map[string]*Signal
	properties map[string]*Property
	dispatch   map[Selector]*Method

	// protocolHint carries the "org.gnustep.objc.protocol" annotation
	// when introspection supplied one, naming the host protocol this
	// interface corresponds to.
	protocolHint string
}

// NewInterface creates an empty, named Interface ready for
// AddMethod/AddSignal/AddProperty.
func NewInterface(name string) *Interface {
	return &Interface{
		name:       name,
		methods:    map[string]*Method{},
		signals:    map[string]*Signal{},
		properties: map[string]*Property{},
		dispatch:   map[Selector]*Method{},
	}
}

func (f *Interface) Name() string                    { return f.name }
func (f *Interface) Methods() map[string]*Method      { return f.methods }
func (f *Interface) Signals() map[string]*Signal      { return f.signals }
func (f *Interface) Properties() map[string]*Property { return f.properties }

// AddMethod inserts or replaces the method of the given name; the
// introspection loader supplies canonical data, so a duplicate add is
// last-writer-wins.
func (f *Interface) AddMethod(m *Method) { f.methods[m.name] = m }

// AddSignal inserts or replaces a signal.
func (f *Interface) AddSignal(s *Signal) { f.signals[s.name] = s }

// AddProperty inserts or replaces a property, also registering its
// synthesized getter/setter methods.
func (f *Interface) AddProperty(p *Property) {
	f.properties[p.name] = p
	f.AddMethod(p.getter)
	if p.setter != nil {
		f.AddMethod(p.setter)
	}
}

// PropertyForAccessor returns the property whose synthesized getter
// or setter is m, or nil if m is an ordinary method. Callers use this
// to reroute an accessor selector through the standard
// org.freedesktop.DBus.Properties interface instead of invoking the
// synthesized method directly on the wire.
func (f *Interface) PropertyForAccessor(m *Method) *Property {
	for _, p := range f.properties {
		if p.getter == m || (p.setter != nil && p.setter == m) {
			return p
		}
	}
	return nil
}

// InstallMethod inserts method into dispatch under selector. The
// operation is idempotent; distinct selectors may map to the same
// method.
func (f *Interface) InstallMethod(selector Selector, method *Method) {
	f.dispatch[selector] = method
}

// InstallMethods bulk-installs every declared method under its
// canonical selector (or its "org.gnustep.objc.selector" override).
func (f *Interface) InstallMethods() {
	for _, m := range f.methods {
		f.InstallMethod(CanonicalSelector(m), m)
	}
}

// InstallProperties bulk-installs every declared property's
// getter/setter under the property accessor selector convention.
func (f *Interface) InstallProperties() {
	for _, p := range f.properties {
		f.InstallMethod(Selector(lowerFirst(p.name)), p.getter)
		if p.setter != nil {
			f.InstallMethod(Selector("set"+upperFirst(p.name)+":"), p.setter)
		}
	}
}

// CanonicalSelector derives the host selector for m: the member name
// with its first character lower-cased, followed by a trailing colon
// when the method takes at least one argument. An
// "org.gnustep.objc.selector" annotation overrides the derivation
// outright.
func CanonicalSelector(m *Method) Selector {
	if override, ok := m.annotations[annoSelector]; ok && override != "" {
		return Selector(override)
	}
	sel := lowerFirst(m.name)
	if len(m.inArgs) > 0 {
		sel += ":"
	}
	return Selector(sel)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// BuildFromHostClass reflects over a Go type implementing Exporter
// and synthesizes an Interface named
// org.gnustep.objc.class.<ClassName>, one Method per exported
// instance method.
func BuildFromHostClass(class string, t reflect.Type) *Interface {
	f := NewInterface("org.gnustep.objc.class." + class)
	buildFromReflectedMethods(f, t)
	f.InstallMethods()
	return f
}

// BuildFromHostProtocol is BuildFromHostClass's counterpart for a Go
// interface type standing in for a host protocol, named
// org.gnustep.objc.protocol.<ProtocolName>.
func BuildFromHostProtocol(protocol string, t reflect.Type) *Interface {
	f := NewInterface("org.gnustep.objc.protocol." + protocol)
	buildFromReflectedMethods(f, t)
	f.InstallMethods()
	return f
}

// buildFromReflectedMethods walks t's exported method set and
// synthesizes a Method whose in/out Arguments come from TypeBridge's
// default code for each Go parameter/result kind. Parameters or
// results of a kind TypeBridge cannot map are skipped, mirroring
// Argument's host-type-descriptor construction rule of rejecting
// unsupported native kinds rather than aborting the whole class.
func buildFromReflectedMethods(f *Interface, t reflect.Type) {
	// An interface type's Method.Type carries no receiver; a concrete
	// type's does, as the first In().
	argStart := 1
	if t.Kind() == reflect.Interface {
		argStart = 0
	}
	for i := 0; i < t.NumMethod(); i++ {
		rm := t.Method(i)
		if !rm.IsExported() || isBridgePlumbingMethod(rm.Name) {
			continue
		}
		in := reflectedArgs(rm.Type, rm.Type.NumIn(), rm.Type.In, argStart)
		out := reflectedArgs(rm.Type, rm.Type.NumOut(), rm.Type.Out, 0)
		f.AddMethod(NewMethod(rm.Name, f.name, in, out))
	}
}

func reflectedArgs(mt reflect.Type, count int, at func(int) reflect.Type, start int) []*Argument {
	var out []*Argument
	for i := start; i < count; i++ {
		k := reflectKindToNative(at(i).Kind())
		code, ok := CodeForHostKind(k)
		if !ok {
			continue
		}
		out = append(out, &Argument{dbusType: code, hostClassHint: defaultHostClassHint(code)})
	}
	return out
}

// isBridgePlumbingMethod reports whether name belongs to the
// Exporter/RemoteObject contract itself (ClassName, Invoke) rather
// than to the host class's own business methods. A concrete exported
// host object necessarily implements both to satisfy Exporter, but
// neither is meant to become a D-Bus member in its own right — doing
// so would put a spurious "invoke:"/"className" selector on the bus
// alongside the real ones.
func isBridgePlumbingMethod(name string) bool {
	switch name {
	case "ClassName", "Invoke":
		return true
	default:
		return false
	}
}

func reflectKindToNative(k reflect.Kind) NativeKind {
	switch k {
	case reflect.Uint8:
		return KindU8
	case reflect.Bool:
		return KindBool
	case reflect.Int16:
		return KindI16
	case reflect.Uint16:
		return KindU16
	case reflect.Int32, reflect.Int:
		return KindI32
	case reflect.Uint32, reflect.Uint:
		return KindU32
	case reflect.Int64:
		return KindI64
	case reflect.Uint64:
		return KindU64
	case reflect.Float32, reflect.Float64:
		return KindF64
	case reflect.String:
		return KindString
	default:
		return KindInvalid
	}
}
