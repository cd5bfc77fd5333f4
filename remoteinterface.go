package dbus

import "context"

const propertiesInterface = "org.freedesktop.DBus.Properties"

// RemoteInterface is one interface block of a remote object's
// introspected shape: the wire Object it resolves calls against,
// paired with the parsed Interface carrying its dispatch table.
type RemoteInterface struct {
	o    Object
	name string
	iface *Interface
}

// NewRemoteInterface pairs a wire Object with its parsed Interface.
func NewRemoteInterface(o Object, iface *Interface) *RemoteInterface {
	return &RemoteInterface{o: o, name: iface.name, iface: iface}
}

func (ri *RemoteInterface) Name() string     { return ri.name }
func (ri *RemoteInterface) Interface() *Interface { return ri.iface }

// Call issues a two-way invocation of method with args, bypassing
// Proxy.Invoke's selector resolution. Proxy.Invoke is the ordinary
// entry point; Call exists for callers that already hold a resolved
// RemoteInterface, such as the property accessors below.
func (ri *RemoteInterface) Call(ctx context.Context, method string, args ...any) ([]any, error) {
	req := Request{
		Destination: ri.o.Peer().Name(),
		Path:        ri.o.Path(),
		Interface:   ri.name,
		Method:      method,
		Args:        args,
	}
	return ri.o.Conn().call(ctx, req)
}

// OneWay issues a fire-and-forget invocation, per the NoReply
// annotation's contract.
func (ri *RemoteInterface) OneWay(ctx context.Context, method string, args ...any) error {
	req := Request{
		Destination: ri.o.Peer().Name(),
		Path:        ri.o.Path(),
		Interface:   ri.name,
		Method:      method,
		Args:        args,
		NoReply:     true,
	}
	_, err := ri.o.Conn().call(ctx, req)
	return err
}

var variantArgument = &Argument{dbusType: 'v'}

// stringVariantDictArgument describes a{sv}, the signature every
// GetAll reply body's sole element carries.
var stringVariantDictArgument = &Argument{
	dbusType: 'a',
	isDict:   true,
	children: []*Argument{
		{dbusType: '{', children: []*Argument{{dbusType: 's'}, {dbusType: 'v'}}},
	},
}

// GetProperty reads a single property via org.freedesktop.DBus.Properties.Get.
// The reply body is always a single variant, regardless of the
// property's declared type, so it is unboxed through variantArgument
// rather than the property's own Argument; the caller gets the
// variant's payload, not the wrapper.
func (ri *RemoteInterface) GetProperty(ctx context.Context, name string) (Value, error) {
	reply, err := ri.propertiesCall(ctx, "Get", ri.name, name)
	if err != nil {
		return nil, err
	}
	if _, ok := ri.iface.properties[name]; !ok || len(reply) == 0 {
		return nil, &Error{Kind: TypeMismatch, Op: "GetProperty", Msg: "unknown property " + name}
	}
	v, err := variantArgument.Unbox(reply[0], nil)
	if err != nil {
		return nil, err
	}
	if bv, ok := v.(*Variant); ok {
		return bv.Value, nil
	}
	return v, nil
}

// SetProperty writes a single property via org.freedesktop.DBus.Properties.Set.
func (ri *RemoteInterface) SetProperty(ctx context.Context, name string, v Value) error {
	prop, ok := ri.iface.properties[name]
	if !ok {
		return &Error{Kind: TypeMismatch, Op: "SetProperty", Msg: "unknown property " + name}
	}
	wire, err := prop.typ.Box(v, nil)
	if err != nil {
		return err
	}
	_, err = ri.propertiesCall(ctx, "Set", ri.name, name, wire)
	return err
}

// GetAllProperties reads every property in one round-trip via
// org.freedesktop.DBus.Properties.GetAll.
func (ri *RemoteInterface) GetAllProperties(ctx context.Context) (map[string]Value, error) {
	reply, err := ri.propertiesCall(ctx, "GetAll", ri.name)
	if err != nil {
		return nil, err
	}
	if len(reply) == 0 {
		return map[string]Value{}, nil
	}
	boxed, err := stringVariantDictArgument.Unbox(reply[0], nil)
	if err != nil {
		return nil, err
	}
	raw, ok := boxed.(map[string]Value)
	if !ok {
		return nil, &Error{Kind: TypeMismatch, Op: "GetAllProperties", Msg: "GetAll did not return a{sv}"}
	}
	return raw, nil
}

func (ri *RemoteInterface) propertiesCall(ctx context.Context, method string, args ...any) ([]any, error) {
	req := Request{
		Destination: ri.o.Peer().Name(),
		Path:        ri.o.Path(),
		Interface:   propertiesInterface,
		Method:      method,
		Args:        args,
	}
	return ri.o.Conn().call(ctx, req)
}
