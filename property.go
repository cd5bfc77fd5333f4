package dbus

// PropertyAccess is a Property's read/write capability, per the
// access attribute of a <property> introspection element.
type PropertyAccess int

const (
	AccessRead PropertyAccess = iota
	AccessWrite
	AccessReadWrite
)

func (a PropertyAccess) String() string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	case AccessReadWrite:
		return "readwrite"
	default:
		return "unknown"
	}
}

// Property is a named, typed attribute that exposes two synthesized
// Methods (a getter and, when writable, a setter) which forward to
// the standard org.freedesktop.DBus.Properties interface rather than
// being invoked directly on the wire.
type Property struct {
	name          string
	interfaceName string
	typ           *Argument
	access        PropertyAccess
	getter        *Method
	setter        *Method
}

// NewProperty builds a Property and its synthesized getter (and, when
// writable, setter) Methods.
func NewProperty(name, ifaceName string, typ *Argument, access PropertyAccess) *Property {
	p := &Property{name: name, interfaceName: ifaceName, typ: typ, access: access}
	p.getter = NewMethod(name, ifaceName, nil, []*Argument{typ})
	if access == AccessWrite || access == AccessReadWrite {
		p.setter = NewMethod("set"+upperFirst(name), ifaceName, []*Argument{typ}, nil)
	}
	return p
}

func (p *Property) Name() string           { return p.name }
func (p *Property) InterfaceName() string  { return p.interfaceName }
func (p *Property) Type() *Argument        { return p.typ }
func (p *Property) Access() PropertyAccess { return p.access }
func (p *Property) Getter() *Method        { return p.getter }
func (p *Property) Setter() *Method        { return p.setter }

// Readable reports whether the property's access permits
// org.freedesktop.DBus.Properties.Get.
func (p *Property) Readable() bool { return p.access == AccessRead || p.access == AccessReadWrite }

// Writable reports whether the property's access permits
// org.freedesktop.DBus.Properties.Set.
func (p *Property) Writable() bool { return p.access == AccessWrite || p.access == AccessReadWrite }
