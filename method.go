package dbus

import (
	"fmt"
	"strings"
)

// Method is one interface member: an ordered in-argument vector, an
// ordered out-argument vector, and the annotations introspection
// attached to it.
type Method struct {
	name          string
	interfaceName string
	inArgs        []*Argument
	outArgs       []*Argument
	annotations   map[string]string
}

// NewMethod builds a Method from its argument vectors, as the
// introspection loader and build_from_host_class both do.
func NewMethod(name, ifaceName string, in, out []*Argument) *Method {
	return &Method{name: name, interfaceName: ifaceName, inArgs: in, outArgs: out}
}

func (m *Method) Name() string          { return m.name }
func (m *Method) InterfaceName() string { return m.interfaceName }
func (m *Method) InArgs() []*Argument   { return m.inArgs }
func (m *Method) OutArgs() []*Argument  { return m.outArgs }

// IsOneway reports whether the method carries the NoReply="true"
// annotation.
func (m *Method) IsOneway() bool {
	return m.annotations[annoNoReply] == "true"
}

// IsDeprecated reports whether the method carries the
// Deprecated="true" annotation.
func (m *Method) IsDeprecated() bool {
	return m.annotations[annoDeprecated] == "true"
}

func (m *Method) SetAnnotation(key, value string) {
	if m.annotations == nil {
		m.annotations = map[string]string{}
	}
	m.annotations[key] = value
}

// Signature builds a host method signature string. An empty out-arg
// vector returns "void"; exactly one returns that argument's type
// name; more than one returns the host sequence-of-boxed class name.
func (m *Method) Signature(boxed bool) string {
	switch len(m.outArgs) {
	case 0:
		return "void"
	case 1:
		return m.outArgs[0].hostTypeName(boxed)
	default:
		return "NSArray"
	}
}

func (a *Argument) hostTypeName(boxed bool) string {
	if boxed {
		if a.hostClassHint != "" {
			return a.hostClassHint
		}
		return "id"
	}
	switch a.dbusType {
	case 'y':
		return "unsigned char"
	case 'b':
		return "BOOL"
	case 'n':
		return "short"
	case 'q':
		return "unsigned short"
	case 'i':
		return "int"
	case 'u':
		return "unsigned int"
	case 'x':
		return "long long"
	case 't':
		return "unsigned long long"
	case 'd':
		return "double"
	case 's':
		return "NSString *"
	default:
		return "id"
	}
}

// MarshalArguments positionally marshals in_args from the captured
// host invocation, asserting arg-count equality.
func (m *Method) MarshalArguments(inv *Invocation, scope *Proxy) ([]any, error) {
	if len(inv.Args) != len(m.inArgs) {
		return nil, &Error{Kind: TypeMismatch, Op: "MarshalArguments", Msg: fmt.Sprintf("method %s expects %d args, got %d", m.name, len(m.inArgs), len(inv.Args))}
	}
	out := make([]any, len(m.inArgs))
	for i, arg := range m.inArgs {
		wire, err := arg.Box(inv.Args[i], scope)
		if err != nil {
			return nil, err
		}
		out[i] = wire
	}
	return out, nil
}

// MarshalReturn marshals the invocation's return value: directly if
// there is one out-arg, or positionally from an ordered sequence if
// there are several.
func (m *Method) MarshalReturn(inv *Invocation, scope *Proxy) ([]any, error) {
	switch len(m.outArgs) {
	case 0:
		return nil, nil
	case 1:
		wire, err := m.outArgs[0].Box(inv.Return, scope)
		if err != nil {
			return nil, err
		}
		return []any{wire}, nil
	default:
		var seq []Value
		switch s := inv.Return.(type) {
		case []Value:
			seq = s
		case Struct:
			seq = s
		}
		if len(seq) != len(m.outArgs) {
			return nil, &Error{Kind: TypeMismatch, Op: "MarshalReturn", Msg: "multi-valued return must be an ordered sequence matching out_args"}
		}
		out := make([]any, len(m.outArgs))
		for i, arg := range m.outArgs {
			wire, err := arg.Box(seq[i], scope)
			if err != nil {
				return nil, err
			}
			out[i] = wire
		}
		return out, nil
	}
}

// UnmarshalArguments iterates in_args over wire, advancing between
// each; a short wire payload raises a message-truncated TypeMismatch.
func (m *Method) UnmarshalArguments(wire []any, scope *Proxy) (*Invocation, error) {
	if len(wire) < len(m.inArgs) {
		return nil, &Error{Kind: TypeMismatch, Op: "UnmarshalArguments", Msg: "message body shorter than in_args"}
	}
	args := make([]Value, len(m.inArgs))
	for i, arg := range m.inArgs {
		v, err := arg.Unbox(wire[i], scope)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return &Invocation{Selector: CanonicalSelector(m), Args: args}, nil
}

// UnmarshalReturn is symmetric with MarshalReturn: a multi-valued
// reply becomes an ordered sequence of boxed values, and an absent
// reply becomes the host's explicit null.
func (m *Method) UnmarshalReturn(wire []any, scope *Proxy) (Value, error) {
	switch len(m.outArgs) {
	case 0:
		return nil, nil
	case 1:
		if len(wire) == 0 {
			return nil, nil
		}
		return m.outArgs[0].Unbox(wire[0], scope)
	default:
		if len(wire) != len(m.outArgs) {
			return nil, &Error{Kind: TypeMismatch, Op: "UnmarshalReturn", Msg: "reply arity does not match out_args"}
		}
		out := make([]Value, len(wire))
		for i, arg := range m.outArgs {
			v, err := arg.Unbox(wire[i], scope)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}
}

// HostDeclaration renders a human-readable protocol declaration
// string for the method, in host selector syntax.
func (m *Method) HostDeclaration() string {
	var b strings.Builder
	b.WriteString("- (")
	b.WriteString(m.Signature(true))
	b.WriteString(")")
	sel := CanonicalSelector(m)
	parts := strings.Split(strings.TrimSuffix(string(sel), ":"), ":")
	for i, arg := range m.inArgs {
		if i < len(parts) {
			b.WriteString(parts[i])
		}
		b.WriteString(":(")
		b.WriteString(arg.hostTypeName(true))
		b.WriteString(")")
		b.WriteString(argLocalName(arg, i))
		if i != len(m.inArgs)-1 {
			b.WriteString(" ")
		}
	}
	if len(m.inArgs) == 0 {
		b.WriteString(m.name)
	}
	b.WriteString(";")
	return b.String()
}

func argLocalName(a *Argument, i int) string {
	if a.name != "" {
		return a.name
	}
	return fmt.Sprintf("arg%d", i)
}
