package dbus

import (
	"context"
	"os"
	"reflect"
	"strings"
	"sync"
	"sync/atomic"

	godbus "github.com/godbus/dbus/v5"
)

// exportRoot is the path prefix auto-exported objects are minted
// under; each gets "/auto/<monotonic-id>" appended.
const exportRoot = "/org/gnustep/objc"

// exportRegistry maps exported host objects to the object paths they
// are reachable at. Each Conn owns one, guarded by mu; it is reached
// through Conn.Export/Conn.AutoExport and, for a cross-scope *Proxy
// argument, through autoExportPath.
type exportRegistry struct {
	raw *godbus.Conn

	mu       sync.Mutex
	nextAuto atomic.Uint64
	exported map[ObjectPath]*exportedObject
	forwards map[ObjectPath]forwardTarget
}

// exportedObject is one host object reachable on the bus: its
// reflected Interface plus the concrete object Invoke is dispatched
// to.
type exportedObject struct {
	path  ObjectPath
	obj   Exporter
	iface *Interface
}

// forwardTarget records that a locally-minted path stands in for an
// object living on a different (service, path) pair, the case where
// Argument.Box auto-exports a cross-scope *Proxy argument instead of
// refusing it.
type forwardTarget struct {
	service string
	path    ObjectPath
}

func newExportRegistry(raw *godbus.Conn) *exportRegistry {
	return &exportRegistry{
		raw:      raw,
		exported: map[ObjectPath]*exportedObject{},
		forwards: map[ObjectPath]forwardTarget{},
	}
}

// Export publishes obj at the explicit, user-supplied path, which
// must begin with "/". The object's interface is derived by
// reflecting over its Go type via BuildFromHostClass.
func (c *Conn) Export(path ObjectPath, obj Exporter) error {
	if len(path) == 0 || path[0] != '/' {
		return &Error{Kind: TypeMismatch, Op: "Export", Msg: "explicit export path must begin with \"/\""}
	}
	return c.exports.export(c.raw, path, obj)
}

// AutoExport mints a fresh path under /<root>/auto/<id> and publishes
// obj there, returning the minted path.
func (c *Conn) AutoExport(obj Exporter) (ObjectPath, error) {
	path := c.exports.mintPath()
	if err := c.exports.export(c.raw, path, obj); err != nil {
		return "", err
	}
	return path, nil
}

func (r *exportRegistry) mintPath() ObjectPath {
	id := r.nextAuto.Add(1)
	return ObjectPath(exportRoot + "/auto/" + uitoa(id))
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

func (r *exportRegistry) export(raw *godbus.Conn, path ObjectPath, obj Exporter) error {
	iface := BuildFromHostClass(obj.ClassName(), reflect.TypeOf(obj))
	ifaceName := iface.name

	r.mu.Lock()
	r.exported[path] = &exportedObject{path: path, obj: obj, iface: iface}
	r.mu.Unlock()

	table := methodTable(iface, obj)
	if err := raw.ExportMethodTable(table, path, ifaceName); err != nil {
		return &Error{Kind: Disconnected, Op: "Export", Err: err}
	}
	if err := raw.ExportMethodTable(introspectTable(r, path), path, "org.freedesktop.DBus.Introspectable"); err != nil {
		return &Error{Kind: Disconnected, Op: "Export", Err: err}
	}
	if err := raw.ExportMethodTable(peerTable(), path, "org.freedesktop.DBus.Peer"); err != nil {
		return &Error{Kind: Disconnected, Op: "Export", Err: err}
	}
	return nil
}

// autoExportPath records that proxy p (addressing (service, path)
// on a different scope) is reachable through a local path on scope's
// connection, and returns that path. The path is minted the first
// time a given (service, path) is forwarded and reused after that.
// This lets Argument.Box hand out an "o" value for a cross-scope
// *Proxy argument instead of refusing to marshal it outright; it
// fails only when scope is nil or has no connection.
func autoExportPath(p *Proxy, scope *Proxy) (string, bool) {
	if scope == nil || scope.endpoint == nil {
		return "", false
	}
	r := scope.endpoint.exports
	r.mu.Lock()
	defer r.mu.Unlock()
	for path, fwd := range r.forwards {
		if fwd.service == p.service && fwd.path == p.path {
			return string(path), true
		}
	}
	path := r.mintPath()
	r.forwards[path] = forwardTarget{service: p.service, path: p.path}
	return string(path), true
}

// methodTable builds the godbus method table for iface, one
// reflect.MakeFunc-generated handler per Method, each converting its
// wire args to boxed host Values, dispatching through obj.Invoke, and
// marshalling the result back — the inbound mirror of MethodCall's
// outbound path.
func methodTable(iface *Interface, obj Exporter) map[string]any {
	table := make(map[string]any, len(iface.methods))
	for name, m := range iface.methods {
		table[name] = methodHandler(m, obj)
	}
	return table
}

func methodHandler(m *Method, obj Exporter) any {
	inTypes := make([]reflect.Type, len(m.inArgs))
	for i, a := range m.inArgs {
		inTypes[i] = reflectGoType(a)
	}
	outTypes := make([]reflect.Type, len(m.outArgs)+1)
	for i, a := range m.outArgs {
		outTypes[i] = reflectGoType(a)
	}
	errIdx := len(outTypes) - 1
	outTypes[errIdx] = reflect.TypeOf((*godbus.Error)(nil))

	fnType := reflect.FuncOf(inTypes, outTypes, false)
	fn := reflect.MakeFunc(fnType, func(args []reflect.Value) []reflect.Value {
		hostArgs := make([]Value, len(m.inArgs))
		for i, a := range m.inArgs {
			v, err := a.Unbox(args[i].Interface(), nil)
			if err != nil {
				return errorResults(outTypes, err)
			}
			hostArgs[i] = v
		}
		ret, err := obj.Invoke(context.Background(), CanonicalSelector(m), hostArgs)
		if err != nil {
			return errorResults(outTypes, err)
		}
		inv := &Invocation{Return: ret}
		wire, err := m.MarshalReturn(inv, nil)
		if err != nil {
			return errorResults(outTypes, err)
		}
		results := make([]reflect.Value, len(outTypes))
		for i := range m.outArgs {
			results[i] = reflectWrap(outTypes[i], wire[i])
		}
		results[errIdx] = reflect.Zero(outTypes[errIdx])
		return results
	})
	return fn.Interface()
}

func errorResults(outTypes []reflect.Type, err error) []reflect.Value {
	results := make([]reflect.Value, len(outTypes))
	for i := 0; i < len(outTypes)-1; i++ {
		results[i] = reflect.Zero(outTypes[i])
	}
	results[len(outTypes)-1] = reflect.ValueOf(wireError(err))
	return results
}

// wireError maps the bridge's error taxonomy onto a D-Bus error name
// a remote caller can observe, using the org.gnustep.objc.exception.*
// namespace so exceptions round-trip symbolically.
func wireError(err error) *godbus.Error {
	de, ok := err.(*Error)
	if !ok {
		return godbus.MakeFailedError(err)
	}
	msg := de.Msg
	if msg == "" {
		msg = de.Error()
	}
	return godbus.NewError(de.ExceptionName(), []any{msg})
}

// reflectGoType returns the concrete Go type godbus should decode/
// encode a value of a's type code as. Basic types get their natural
// fixed-width Go type so the wire decoder can unmarshal directly;
// every container and variant type is left as interface{}, the same
// shape Argument.Unbox/Box already expect to receive from/hand to the
// transport binding for composite values.
func reflectGoType(a *Argument) reflect.Type {
	switch a.dbusType {
	case 'y':
		return reflect.TypeOf(byte(0))
	case 'b':
		return reflect.TypeOf(false)
	case 'n':
		return reflect.TypeOf(int16(0))
	case 'q':
		return reflect.TypeOf(uint16(0))
	case 'i':
		return reflect.TypeOf(int32(0))
	case 'u':
		return reflect.TypeOf(uint32(0))
	case 'x':
		return reflect.TypeOf(int64(0))
	case 't':
		return reflect.TypeOf(uint64(0))
	case 'd':
		return reflect.TypeOf(float64(0))
	case 's':
		return reflect.TypeOf("")
	case 'o':
		return reflect.TypeOf(godbus.ObjectPath(""))
	case 'g':
		return reflect.TypeOf(godbus.Signature{})
	case 'h':
		return reflect.TypeOf(uint32(0))
	default:
		return anyType
	}
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// reflectWrap adapts a Box result (a plain any) into the reflect.Value
// shape matching t, the out-parameter type methodHandler declared for
// this position.
func reflectWrap(t reflect.Type, v any) reflect.Value {
	if v == nil {
		return reflect.Zero(t)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(t) {
		return rv
	}
	if t.Kind() == reflect.Interface {
		out := reflect.New(t).Elem()
		out.Set(rv)
		return out
	}
	return rv.Convert(t)
}

// introspectTable implements org.freedesktop.DBus.Introspectable for
// a single exported path: it reports exactly the interface this
// object was exported under, wrapped in the standard DTD envelope.
func introspectTable(r *exportRegistry, path ObjectPath) map[string]any {
	return map[string]any{
		"Introspect": func() (string, *godbus.Error) {
			r.mu.Lock()
			eo := r.exported[path]
			r.mu.Unlock()
			if eo == nil {
				return "", godbus.MakeFailedError(&Error{Kind: RemoteUnreachable, Op: "Introspect", Msg: "no object at this path"})
			}
			var b []byte
			b = append(b, []byte(`<?xml version="1.0" encoding="UTF-8"?>`+"\n")...)
			b = append(b, []byte(`<!DOCTYPE node PUBLIC "-//freedesktop//DTD D-BUS Object Introspection 1.0//EN" "http://www.freedesktop.org/standards/dbus/1.0/introspect.dtd">`+"\n")...)
			b = append(b, []byte("<node>\n")...)
			b = append(b, []byte(eo.iface.IntrospectionXML())...)
			b = append(b, []byte("</node>\n")...)
			return string(b), nil
		},
	}
}

// peerTable implements org.freedesktop.DBus.Peer (Ping and
// GetMachineId) on every exported object, the same way the bus daemon
// answers them for itself.
func peerTable() map[string]any {
	return map[string]any{
		"Ping": func() *godbus.Error { return nil },
		"GetMachineId": func() (string, *godbus.Error) {
			return machineID(), nil
		},
	}
}

// machineID reads the local /etc/machine-id (falling back to the
// legacy /var/lib/dbus/machine-id location), the same file the bus
// daemon itself hands out for org.freedesktop.DBus.Peer.GetMachineId.
func machineID() string {
	for _, path := range []string{"/etc/machine-id", "/var/lib/dbus/machine-id"} {
		if b, err := os.ReadFile(path); err == nil {
			return strings.TrimSpace(string(b))
		}
	}
	return ""
}
