// Package protogen renders a Go source file declaring a typed facade
// for a dbus.Interface: one wrapper method per declared Method, each
// forwarding through dbus.RemoteObject.Invoke, so callers that would
// rather write iface.Frobnicate(ctx, 3) than hand-assemble a Selector
// and an argument slice can do so.
package protogen

import (
	"bytes"
	"fmt"
	"go/format"
	"sort"
	"strings"
	"unicode"

	dbus "github.com/gnustep/dbuskit"
)

type generator struct {
	out   bytes.Buffer
	iface *dbus.Interface
	pkg   string
}

// Interface renders a complete Go source file for iface, named pkg.
// The generated facade's exported type name is derived from the
// interface's last dotted segment (e.g. "org.gnustep.objc.class.Foo"
// becomes "Foo").
func Interface(pkg string, iface *dbus.Interface) (string, error) {
	if iface == nil {
		return "", fmt.Errorf("protogen: no interface provided")
	}
	g := &generator{iface: iface, pkg: pkg}
	g.header()
	g.facade()

	for _, name := range sortedKeys(iface.Methods()) {
		m := iface.Methods()[name]
		if iface.PropertyForAccessor(m) != nil {
			// Property accessors are emitted by g.property below.
			continue
		}
		g.method(m)
	}
	for _, name := range sortedKeys(iface.Properties()) {
		g.property(iface.Properties()[name])
	}
	for _, name := range sortedKeys(iface.Signals()) {
		g.signal(iface.Signals()[name])
	}

	formatted, err := format.Source(g.out.Bytes())
	if err != nil {
		return g.out.String(), fmt.Errorf("protogen: formatting generated source: %w", err)
	}
	return string(formatted), nil
}

func (g *generator) s(s string)                       { g.out.WriteString(s) }
func (g *generator) f(format string, args ...any)      { fmt.Fprintf(&g.out, format, args...) }
func (g *generator) typeName() string                 { return publicIdentifier(lastSegment(g.iface.Name())) }

func (g *generator) header() {
	g.f(`package %s

import (
	"context"

	dbus "github.com/gnustep/dbuskit"
)
`, g.pkg)
}

func (g *generator) facade() {
	name := g.typeName()
	g.f(`
// %[1]s is a generated facade over the %[2]q interface: every method
// forwards through a *dbus.Proxy's dynamic dispatch, so it carries no
// behavior of its own beyond selector/argument bookkeeping.
type %[1]s struct {
	proxy *dbus.Proxy
}

// New%[1]s wraps proxy in a %[1]s facade.
func New%[1]s(proxy *dbus.Proxy) %[1]s {
	return %[1]s{proxy: proxy}
}
`, name, g.iface.Name())
}

func (g *generator) method(m *dbus.Method) {
	name := publicIdentifier(m.Name())
	sel := dbus.CanonicalSelector(m)
	g.f("\n// %s invokes the %q selector (%s).\n", name, sel, m.Signature(false))
	g.f("func (x %s) %s(ctx context.Context", g.typeName(), name)
	for i, a := range m.InArgs() {
		g.f(", %s %s", argName(i, a), goType(a))
	}
	g.s(")")
	g.writeOutSig(m.OutArgs())
	g.s(" {\n")
	g.f("args := []dbus.Value{")
	for i, a := range m.InArgs() {
		if i > 0 {
			g.s(", ")
		}
		g.s(argName(i, a))
	}
	g.s("}\n")
	if len(m.OutArgs()) == 0 {
		// No result to bind; a dangling ret would not compile.
		g.f("_, err := x.proxy.Invoke(ctx, %q, args)\n", sel)
	} else {
		g.f("ret, err := x.proxy.Invoke(ctx, %q, args)\n", sel)
	}
	g.writeOutReturn(m.OutArgs())
	g.s("}\n")
}

func (g *generator) writeOutSig(out []*dbus.Argument) {
	switch len(out) {
	case 0:
		g.s(" error")
	case 1:
		g.f(" (%s, error)", goType(out[0]))
	default:
		g.s(" ([]dbus.Value, error)")
	}
}

func (g *generator) writeOutReturn(out []*dbus.Argument) {
	switch len(out) {
	case 0:
		g.s("return err\n")
	case 1:
		t := goType(out[0])
		g.f(`if err != nil {
	var zero %s
	return zero, err
}
v, ok := ret.(%s)
if !ok {
	var zero %s
	return zero, &dbus.Error{Kind: dbus.TypeMismatch, Op: %q}
}
return v, nil
`, t, t, t, "Invoke:"+string(publicIdentifier(t)))
	default:
		g.s(`if err != nil {
	return nil, err
}
seq, ok := ret.([]dbus.Value)
if !ok {
	return nil, &dbus.Error{Kind: dbus.TypeMismatch, Op: "Invoke"}
}
return seq, nil
`)
	}
}

func (g *generator) property(p *dbus.Property) {
	name := publicIdentifier(p.Name())
	t := goType(p.Type())
	if p.Readable() {
		g.f(`
// %[1]s reads the %[3]q property.
func (x %[2]s) %[1]s(ctx context.Context) (%[4]s, error) {
	v, err := x.proxy.Invoke(ctx, %[5]q, nil)
	if err != nil {
		var zero %[4]s
		return zero, err
	}
	got, ok := v.(%[4]s)
	if !ok {
		var zero %[4]s
		return zero, &dbus.Error{Kind: dbus.TypeMismatch, Op: "Invoke"}
	}
	return got, nil
}
`, name, g.typeName(), p.Name(), t, dbus.CanonicalSelector(p.Getter()))
	}
	if p.Writable() {
		g.f(`
// Set%[1]s writes the %[3]q property.
func (x %[2]s) Set%[1]s(ctx context.Context, v %[4]s) error {
	_, err := x.proxy.Invoke(ctx, %[5]q, []dbus.Value{v})
	return err
}
`, name, g.typeName(), p.Name(), t, dbus.CanonicalSelector(p.Setter()))
	}
}

func (g *generator) signal(s *dbus.Signal) {
	g.f(`
// %[1]sSelector names the %[2]q signal of %[3]q, for use with a
// Match restricted to this interface.
const %[1]sSelector = %[2]q
`, publicIdentifier(s.Name()), s.Name(), g.iface.Name())
}

func goType(a *dbus.Argument) string {
	switch a.Type() {
	case 'y':
		return "byte"
	case 'b':
		return "bool"
	case 'n':
		return "int16"
	case 'q':
		return "uint16"
	case 'i':
		return "int32"
	case 'u':
		return "uint32"
	case 'x':
		return "int64"
	case 't':
		return "uint64"
	case 'd':
		return "float64"
	case 's':
		return "string"
	case 'o':
		return "dbus.ObjectPath"
	case 'g':
		return "dbus.Signature"
	case 'h':
		return "dbus.FileHandle"
	default:
		return "dbus.Value"
	}
}

func argName(i int, a *dbus.Argument) string {
	if n := a.Name(); n != "" {
		return identifier(n)
	}
	return fmt.Sprintf("arg%d", i)
}

func lastSegment(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func identifier(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	for i, p := range parts {
		if p == "" {
			continue
		}
		if i == 0 {
			parts[i] = strings.ToLower(p[:1]) + p[1:]
		} else {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "")
}

func publicIdentifier(s string) string {
	id := identifier(s)
	if id == "" {
		return id
	}
	r := []rune(id)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
