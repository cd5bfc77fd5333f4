package dbus

import (
	"encoding/xml"
	"fmt"
	"sort"
	"strings"
)

// IntrospectionDoc is the parsed form of one
// org.freedesktop.DBus.Introspectable.Introspect reply: every
// interface block, already converted into Interface/Method/Signal/
// Property nodes and bound to the Object the document was fetched
// from, plus the relative paths of any child objects advertised by
// the peer.
type IntrospectionDoc struct {
	Interfaces []*RemoteInterface
	Children   []string
}

// ParseIntrospection parses an introspection XML document fetched
// from obj, producing one RemoteInterface per <interface> block, each
// with its dispatch table already installed via InstallMethods/
// InstallProperties. Malformed XML, an unparseable argument
// signature, or an unknown property access value is reported as a
// MalformedSignature error.
func ParseIntrospection(doc string, obj Object) (*IntrospectionDoc, error) {
	ifaces, children, err := ParseInterfaces(doc)
	if err != nil {
		return nil, err
	}
	out := &IntrospectionDoc{Children: children}
	for _, iface := range ifaces {
		out.Interfaces = append(out.Interfaces, NewRemoteInterface(obj, iface))
	}
	return out, nil
}

// ParseInterfaces parses an introspection XML document into its
// Interface nodes and child object-path names, without binding them
// to a live wire Object. This is the entry point the protocol
// generator CLI uses: it never has a bus connection to bind a
// RemoteInterface to, only a standalone XML document.
func ParseInterfaces(doc string) ([]*Interface, []string, error) {
	var raw rawNode
	if err := xml.Unmarshal([]byte(doc), &raw); err != nil {
		return nil, nil, &Error{Kind: MalformedSignature, Op: "ParseIntrospection", Err: err}
	}
	var children []string
	for _, child := range raw.Children {
		children = append(children, child.Name)
	}
	var ifaces []*Interface
	for _, rawIface := range raw.Interfaces {
		iface, err := rawIface.build()
		if err != nil {
			return nil, nil, err
		}
		ifaces = append(ifaces, iface)
	}
	return ifaces, children, nil
}

// rawNode mirrors the <node> element of the introspection DTD: zero
// or more <interface> children plus zero or more <node> children
// naming child objects.
type rawNode struct {
	XMLName    xml.Name       `xml:"node"`
	Interfaces []*rawIface    `xml:"interface"`
	Children   []rawNodeChild `xml:"node"`
}

type rawNodeChild struct {
	Name string `xml:"name,attr"`
}

type rawIface struct {
	Name       string          `xml:"name,attr"`
	Methods    []*rawMethod    `xml:"method"`
	Signals    []*rawSignal    `xml:"signal"`
	Properties []*rawProperty  `xml:"property"`
	Annotation []rawAnnotation `xml:"annotation"`
}

type rawAnnotation struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

type rawArg struct {
	Name       string          `xml:"name,attr"`
	Type       string          `xml:"type,attr"`
	Direction  string          `xml:"direction,attr"`
	Annotation []rawAnnotation `xml:"annotation"`
}

type rawMethod struct {
	Name       string          `xml:"name,attr"`
	Args       []rawArg        `xml:"arg"`
	Annotation []rawAnnotation `xml:"annotation"`
}

type rawSignal struct {
	Name       string          `xml:"name,attr"`
	Args       []rawArg        `xml:"arg"`
	Annotation []rawAnnotation `xml:"annotation"`
}

type rawProperty struct {
	Name       string          `xml:"name,attr"`
	Type       string          `xml:"type,attr"`
	Access     string          `xml:"access,attr"`
	Annotation []rawAnnotation `xml:"annotation"`
}

func (ri *rawIface) build() (*Interface, error) {
	iface := NewInterface(ri.Name)
	for _, a := range ri.Annotation {
		if a.Name == annoHostProto {
			iface.protocolHint = a.Value
		}
	}
	for _, rm := range ri.Methods {
		m, err := rm.build(ri.Name)
		if err != nil {
			return nil, err
		}
		iface.AddMethod(m)
	}
	for _, rs := range ri.Signals {
		s, err := rs.build(ri.Name)
		if err != nil {
			return nil, err
		}
		iface.AddSignal(s)
	}
	for _, rp := range ri.Properties {
		p, err := rp.build(ri.Name)
		if err != nil {
			return nil, err
		}
		iface.AddProperty(p)
	}
	iface.InstallMethods()
	iface.InstallProperties()
	return iface, nil
}

func (rm *rawMethod) build(ifaceName string) (*Method, error) {
	var in, out []*Argument
	for _, ra := range rm.Args {
		arg, err := buildArg(ra)
		if err != nil {
			return nil, fmt.Errorf("method %s arg %s: %w", rm.Name, ra.Name, err)
		}
		if ra.Direction == "out" {
			out = append(out, arg)
		} else {
			in = append(in, arg)
		}
	}
	m := NewMethod(rm.Name, ifaceName, in, out)
	for _, a := range rm.Annotation {
		m.SetAnnotation(a.Name, a.Value)
	}
	return m, nil
}

func (rs *rawSignal) build(ifaceName string) (*Signal, error) {
	var args []*Argument
	for _, ra := range rs.Args {
		arg, err := buildArg(ra)
		if err != nil {
			return nil, fmt.Errorf("signal %s arg %s: %w", rs.Name, ra.Name, err)
		}
		args = append(args, arg)
	}
	return NewSignal(rs.Name, ifaceName, args), nil
}

func (rp *rawProperty) build(ifaceName string) (*Property, error) {
	typ, err := ParseSingleSignature(rp.Type)
	if err != nil {
		return nil, fmt.Errorf("property %s: %w", rp.Name, err)
	}
	for _, a := range rp.Annotation {
		if a.Name == annoHostClass {
			typ.SetAnnotation(annoHostClass, a.Value)
		}
	}
	var access PropertyAccess
	switch rp.Access {
	case "read":
		access = AccessRead
	case "write":
		access = AccessWrite
	case "readwrite":
		access = AccessReadWrite
	default:
		return nil, &Error{Kind: MalformedSignature, Op: "ParseIntrospection", Msg: fmt.Sprintf("property %s has unknown access %q", rp.Name, rp.Access)}
	}
	return NewProperty(rp.Name, ifaceName, typ, access), nil
}

func buildArg(ra rawArg) (*Argument, error) {
	arg, err := ParseSingleSignature(ra.Type)
	if err != nil {
		return nil, err
	}
	arg.name = ra.Name
	for _, a := range ra.Annotation {
		arg.SetAnnotation(a.Name, a.Value)
	}
	return arg, nil
}

// IntrospectionXML renders iface as the <interface> block a
// org.freedesktop.DBus.Introspectable.Introspect reply would contain
// for it, the inverse of ParseIntrospection, used by the export
// registry to answer Introspect calls against locally-exported
// objects.
func (f *Interface) IntrospectionXML() string {
	var b strings.Builder
	fmt.Fprintf(&b, "  <interface name=%q>\n", f.name)
	for _, m := range sortedMethods(f.methods) {
		if f.PropertyForAccessor(m) != nil {
			// Synthesized accessors forward through the Properties
			// interface; the <property> element below is their whole
			// wire-visible surface.
			continue
		}
		fmt.Fprintf(&b, "    <method name=%q>\n", m.name)
		for _, a := range m.inArgs {
			writeArgXML(&b, a, "in")
		}
		for _, a := range m.outArgs {
			writeArgXML(&b, a, "out")
		}
		if m.IsOneway() {
			b.WriteString("      <annotation name=\"org.freedesktop.DBus.Method.NoReply\" value=\"true\"/>\n")
		}
		if m.IsDeprecated() {
			b.WriteString("      <annotation name=\"org.freedesktop.DBus.Deprecated\" value=\"true\"/>\n")
		}
		b.WriteString("    </method>\n")
	}
	for _, s := range sortedSignals(f.signals) {
		fmt.Fprintf(&b, "    <signal name=%q>\n", s.name)
		for _, a := range s.args {
			writeArgXML(&b, a, "")
		}
		b.WriteString("    </signal>\n")
	}
	for _, p := range sortedProperties(f.properties) {
		fmt.Fprintf(&b, "    <property name=%q type=%q access=%q/>\n", p.name, p.typ.String(), propertyAccessString(p.access))
	}
	b.WriteString("  </interface>\n")
	return b.String()
}

func writeArgXML(b *strings.Builder, a *Argument, direction string) {
	if direction == "" {
		fmt.Fprintf(b, "      <arg name=%q type=%q/>\n", a.name, a.String())
		return
	}
	fmt.Fprintf(b, "      <arg name=%q type=%q direction=%q/>\n", a.name, a.String(), direction)
}

func propertyAccessString(a PropertyAccess) string {
	switch a {
	case AccessRead:
		return "read"
	case AccessWrite:
		return "write"
	default:
		return "readwrite"
	}
}

func sortedMethods(m map[string]*Method) []*Method {
	out := make([]*Method, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sortByName(out, func(v *Method) string { return v.name })
	return out
}

func sortedSignals(m map[string]*Signal) []*Signal {
	out := make([]*Signal, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sortByName(out, func(v *Signal) string { return v.name })
	return out
}

func sortedProperties(m map[string]*Property) []*Property {
	out := make([]*Property, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	sortByName(out, func(v *Property) string { return v.name })
	return out
}

func sortByName[T any](s []T, key func(T) string) {
	sort.Slice(s, func(i, j int) bool { return key(s[i]) < key(s[j]) })
}
