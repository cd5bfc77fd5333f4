package dbus

import (
	"fmt"
	"sort"
	"strings"

	godbus "github.com/godbus/dbus/v5"

	"github.com/gnustep/dbuskit/internal/slot"
)

// Argument is one node of a parsed D-Bus signature tree. A leaf node
// describes a basic type; a container node additionally carries
// children (exactly one for an array, exactly two for a dict-entry,
// any number for a struct, none for a variant since its element type
// is discovered from the wire).
type Argument struct {
	dbusType      byte
	name          string
	parent        *Argument // weak back-reference, never owning
	annotations   map[string]string
	hostClassHint string
	children      []*Argument
	isDict        bool // true when this array's sole child is a dict-entry
}

// NewLeafArgument builds a basic-type Argument for code directly,
// without parsing a signature string. Container codes are rejected.
func NewLeafArgument(code byte, name string) (*Argument, error) {
	if !basicTypeCodes.Has(code) {
		if containerTypeCodes.Has(code) {
			return nil, &Error{Kind: MalformedSignature, Op: "NewLeafArgument", Msg: fmt.Sprintf("code %q opens a container, parse it from a signature", code)}
		}
		return nil, &Error{Kind: MalformedSignature, Op: "NewLeafArgument", Msg: fmt.Sprintf("unknown type code %q", code)}
	}
	return &Argument{dbusType: code, name: name, hostClassHint: defaultHostClassHint(code)}, nil
}

// Type returns the argument's D-Bus type code.
func (a *Argument) Type() byte { return a.dbusType }

// Name returns the argument's declared name, if any.
func (a *Argument) Name() string { return a.name }

// Parent returns the owning container argument, or nil for a
// top-level argument.
func (a *Argument) Parent() *Argument { return a.parent }

// Children returns the argument's child nodes, or nil for a leaf.
func (a *Argument) Children() []*Argument { return a.children }

// IsDictionary reports whether this array argument's sole child is a
// dict-entry, i.e. it should box/unbox as a map rather than a slice.
func (a *Argument) IsDictionary() bool { return a.dbusType == 'a' && a.isDict }

// Annotation returns the value of annotation key, if present.
func (a *Argument) Annotation(key string) (string, bool) {
	v, ok := a.annotations[key]
	return v, ok
}

// SetAnnotation records an introspection annotation against the
// argument, adopting host_class_hint from "org.gnustep.objc.class"
// when present.
func (a *Argument) SetAnnotation(key, value string) {
	if a.annotations == nil {
		a.annotations = map[string]string{}
	}
	a.annotations[key] = value
	if key == annoHostClass {
		a.hostClassHint = value
	}
}

const (
	annoDeprecated  = "org.freedesktop.DBus.Deprecated"
	annoNoReply     = "org.freedesktop.DBus.Method.NoReply"
	annoHostClass   = "org.gnustep.objc.class"
	annoSelector    = "org.gnustep.objc.selector"
	annoHostProto   = "org.gnustep.objc.protocol"
)

// attachChildren assigns a as the parent of each of its children,
// establishing the weak back-reference invariant from the data
// model. Called once after children are fully built.
func (a *Argument) attachChildren() {
	for _, c := range a.children {
		c.parent = a
	}
}

// String renders the argument's signature, recursively. For any valid
// parse tree, ParseSingleSignature(a.String()) produces an equivalent
// tree — the signature round-trip invariant.
func (a *Argument) String() string {
	switch a.dbusType {
	case 'a':
		return "a" + a.children[0].String()
	case '(':
		var b strings.Builder
		b.WriteByte('(')
		for _, c := range a.children {
			b.WriteString(c.String())
		}
		b.WriteByte(')')
		return b.String()
	case '{':
		return "{" + a.children[0].String() + a.children[1].String() + "}"
	default:
		return string(a.dbusType)
	}
}

// Unbox converts a wire-level value, as delivered by the transport
// binding's reflect-based decoder, into a boxed host Value according
// to this argument's shape. scope, when non-nil, is the Proxy the
// enclosing call was issued through: an object-path value then unboxes
// as a new Proxy sharing that scope's endpoint and service rather than
// as a bare path.
func (a *Argument) Unbox(wire any, scope *Proxy) (Value, error) {
	if wire == nil {
		return nil, nil
	}
	switch a.dbusType {
	case 'v':
		return a.unboxVariant(wire, scope)
	case 'a':
		return a.unboxArray(wire, scope)
	case '(':
		return a.unboxStruct(wire, scope)
	case '{':
		return nil, &Error{Kind: TypeMismatch, Op: "Unbox", Msg: "dict-entry cannot be unboxed outside its array"}
	default:
		return a.unboxBasic(wire, scope)
	}
}

func (a *Argument) unboxBasic(wire any, scope *Proxy) (Value, error) {
	switch a.dbusType {
	case 'y':
		return slotReinterpretInt(wire, 1, false), nil
	case 'b':
		switch v := wire.(type) {
		case bool:
			return v, nil
		case uint32, int32:
			// A boolean that arrives still in its 32-bit wire slot:
			// any non-zero value is host true.
			var s slot.Slot
			s.PutInt64(toInt64(v), 4)
			return s.Bool(), nil
		default:
			return nil, typeMismatch("Unbox", a, wire)
		}
	case 'n':
		return slotReinterpretInt(wire, 2, true), nil
	case 'q':
		return slotReinterpretInt(wire, 2, false), nil
	case 'i':
		return slotReinterpretInt(wire, 4, true), nil
	case 'u':
		return slotReinterpretInt(wire, 4, false), nil
	case 'x':
		return slotReinterpretInt(wire, 8, true), nil
	case 't':
		return slotReinterpretInt(wire, 8, false), nil
	case 'd':
		f, ok := wire.(float64)
		if !ok {
			return nil, typeMismatch("Unbox", a, wire)
		}
		// Bit-identical 64-bit reinterpret, so NaN payloads survive.
		var s slot.Slot
		s.PutFloat64(f)
		return s.Float64(), nil
	case 's':
		s, ok := wire.(string)
		if !ok {
			return nil, typeMismatch("Unbox", a, wire)
		}
		return s, nil
	case 'o':
		var path ObjectPath
		switch v := wire.(type) {
		case godbus.ObjectPath:
			path = ObjectPath(v)
		case string:
			path = ObjectPath(v)
		default:
			return nil, typeMismatch("Unbox", a, wire)
		}
		if scope != nil && scope.endpoint != nil {
			return NewProxy(scope.endpoint, scope.service, path), nil
		}
		return path, nil
	case 'g':
		switch v := wire.(type) {
		case godbus.Signature:
			return Signature(v.String()), nil
		case string:
			return Signature(v), nil
		default:
			return nil, typeMismatch("Unbox", a, wire)
		}
	case 'h':
		switch v := wire.(type) {
		case uint32:
			return FileHandle(v), nil
		case int32:
			return FileHandle(v), nil
		default:
			return nil, typeMismatch("Unbox", a, wire)
		}
	default:
		return nil, typeMismatch("Unbox", a, wire)
	}
}

// slotReinterpretInt widens/narrows a decoded wire integer through
// the scratch buffer so that a host value with a different natural
// register width than the wire type always goes through an explicit
// reinterpret step, per the buffer-fixup rule.
func slotReinterpretInt(wire any, width int, signed bool) int64 {
	var s slot.Slot
	var srcWidth int
	var srcSigned bool
	switch v := wire.(type) {
	case byte:
		s.PutUint64(uint64(v), 1)
		srcWidth = 1
	case int16:
		s.PutInt64(int64(v), 2)
		srcWidth, srcSigned = 2, true
	case uint16:
		s.PutUint64(uint64(v), 2)
		srcWidth = 2
	case int32:
		s.PutInt64(int64(v), 4)
		srcWidth, srcSigned = 4, true
	case uint32:
		s.PutUint64(uint64(v), 4)
		srcWidth = 4
	case int64:
		s.PutInt64(v, 8)
		srcWidth, srcSigned = 8, true
	case uint64:
		s.PutUint64(v, 8)
		srcWidth = 8
	default:
		return 0
	}
	out := slot.Reinterpret(s, srcWidth, srcSigned, width)
	if signed {
		return out.Int64(width)
	}
	return int64(out.Uint64(width))
}

func (a *Argument) unboxArray(wire any, scope *Proxy) (Value, error) {
	elem := a.children[0]
	if elem.dbusType == 'y' {
		if bs, ok := wire.([]byte); ok {
			return Blob(bs), nil
		}
	}
	if a.IsDictionary() {
		return a.unboxDict(wire, elem, scope)
	}

	vals, err := sliceOf(wire)
	if err != nil {
		return nil, err
	}
	out := make([]Value, 0, len(vals))
	for _, v := range vals {
		bv, err := unboxElem(elem, v, scope)
		if err != nil {
			return nil, err
		}
		out = append(out, bv)
	}
	return out, nil
}

// unboxElem unboxes one container element. When the element type is
// variant, the wrapper is unwrapped: it is a wire artifact of a
// heterogeneous host container, not part of the values themselves. A
// top-level variant argument keeps its wrapper.
func unboxElem(elem *Argument, v any, scope *Proxy) (Value, error) {
	if elem.dbusType == 'v' {
		if gv, ok := v.(godbus.Variant); ok {
			sig, err := ParseSingleSignature(gv.Signature().String())
			if err != nil {
				return nil, err
			}
			return sig.Unbox(gv.Value(), scope)
		}
	}
	return elem.Unbox(v, scope)
}

// sliceOf normalizes the several concrete slice shapes the transport
// binding hands back (it decodes into []interface{} for container
// values, but a homogeneous basic-typed array may arrive as a typed
// Go slice like []int32) into a plain []any for element-wise unbox.
func sliceOf(wire any) ([]any, error) {
	switch v := wire.(type) {
	case []any:
		return v, nil
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out, nil
	case []godbus.ObjectPath:
		out := make([]any, len(v))
		for i, p := range v {
			out[i] = p
		}
		return out, nil
	default:
		return nil, &Error{Kind: TypeMismatch, Op: "Unbox", Msg: fmt.Sprintf("unexpected array representation %T", wire)}
	}
}

func (a *Argument) unboxDict(wire any, elem *Argument, scope *Proxy) (Value, error) {
	key, val := elem.children[0], elem.children[1]
	out := map[string]Value{}

	unboxVal := func(v any) (Value, error) {
		return unboxElem(val, v, scope)
	}

	switch m := wire.(type) {
	case map[string]godbus.Variant:
		for k, v := range m {
			bv, err := unboxVal(v)
			if err != nil {
				return nil, err
			}
			out[k] = bv
		}
	case map[string]any:
		for k, v := range m {
			bv, err := unboxVal(v)
			if err != nil {
				return nil, err
			}
			out[k] = bv
		}
	case map[any]any:
		seen := map[string]bool{}
		for k, v := range m {
			bk, err := key.Unbox(k, scope)
			if err != nil {
				return nil, err
			}
			ks := fmt.Sprint(bk)
			if seen[ks] {
				// first wins; later duplicates are dropped, a
				// DuplicateKey condition, not an error.
				continue
			}
			seen[ks] = true
			bv, err := unboxVal(v)
			if err != nil {
				return nil, err
			}
			out[ks] = bv
		}
	default:
		return nil, &Error{Kind: TypeMismatch, Op: "Unbox", Msg: fmt.Sprintf("unexpected dict representation %T", wire)}
	}
	return out, nil
}

func (a *Argument) unboxStruct(wire any, scope *Proxy) (Value, error) {
	vals, err := sliceOf(wire)
	if err != nil {
		return nil, err
	}
	if len(vals) != len(a.children) {
		return nil, &Error{Kind: TypeMismatch, Op: "Unbox", Msg: "struct arity mismatch"}
	}
	out := make(Struct, len(vals))
	for i, c := range a.children {
		bv, err := c.Unbox(vals[i], scope)
		if err != nil {
			return nil, err
		}
		out[i] = bv
	}
	return out, nil
}

func (a *Argument) unboxVariant(wire any, scope *Proxy) (Value, error) {
	v, ok := wire.(godbus.Variant)
	if !ok {
		return nil, typeMismatch("Unbox", a, wire)
	}
	sig, err := ParseSingleSignature(v.Signature().String())
	if err != nil {
		return nil, err
	}
	inner, err := sig.Unbox(v.Value(), scope)
	if err != nil {
		return nil, err
	}
	return &Variant{Sig: Signature(v.Signature().String()), Value: inner}, nil
}

func typeMismatch(op string, a *Argument, wire any) error {
	return &Error{Kind: TypeMismatch, Op: op, Msg: fmt.Sprintf("argument %q (%T) does not accept wire value of type %T", a.String(), a, wire)}
}

// Box converts a boxed host Value into the Go value shape the
// transport binding expects to marshal onto the wire, following this
// argument's declared shape. scope, when non-nil, is the Proxy (or
// export) the enclosing Method call is scoped to, used to resolve
// object-path forwarding.
func (a *Argument) Box(v Value, scope *Proxy) (any, error) {
	if v == nil {
		return a.zeroWireValue(), nil
	}
	switch a.dbusType {
	case 'v':
		return a.boxVariant(v, scope)
	case 'a':
		return a.boxArray(v, scope)
	case '(':
		return a.boxStruct(v, scope)
	case '{':
		return nil, &Error{Kind: TypeMismatch, Op: "Box", Msg: "dict-entry cannot be boxed outside its array"}
	default:
		return a.boxBasic(v, scope)
	}
}

func (a *Argument) zeroWireValue() any {
	switch a.dbusType {
	case 's':
		return ""
	case 'o':
		return godbus.ObjectPath("/")
	case 'g':
		return godbus.ParseSignatureMust("")
	case 'a':
		return []any{}
	default:
		return int64(0)
	}
}

func (a *Argument) boxBasic(v Value, scope *Proxy) (any, error) {
	if wire, err := a.boxBasicBuiltin(v, scope); err == nil {
		return wire, nil
	} else if resolved, ok := boxViaRegistry(a, v); ok {
		return a.boxBasicBuiltin(resolved, scope)
	} else {
		return nil, err
	}
}

// boxBasicBuiltin implements the builtin accessor side of the unbox
// contract: the canonical Go representation for each basic type code.
// Called first by boxBasic, and again with the registry's resolved
// value when v has no builtin accessor of its own.
func (a *Argument) boxBasicBuiltin(v Value, scope *Proxy) (any, error) {
	switch a.dbusType {
	case 'y':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return byte(n), nil
	case 'b':
		b, ok := v.(bool)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return b, nil
	case 'n':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return int16(n), nil
	case 'q':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return uint16(n), nil
	case 'i':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return int32(n), nil
	case 'u':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return uint32(n), nil
	case 'x':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return n, nil
	case 't':
		n, ok := integerValue(v)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return uint64(n), nil
	case 'd':
		f, ok := v.(float64)
		if !ok {
			if i, ok := integerValue(v); ok {
				return nil, &Error{Kind: TypeMismatch, Op: "Box", Msg: fmt.Sprintf("integer %d cannot implicitly box as double", i)}
			}
			return nil, boxMismatch(a, v)
		}
		return f, nil
	case 's':
		s, ok := v.(string)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return s, nil
	case 'o':
		return a.boxObjectPath(v, scope)
	case 'g':
		s, ok := v.(Signature)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return godbus.ParseSignatureMust(string(s)), nil
	case 'h':
		h, ok := v.(FileHandle)
		if !ok {
			return nil, boxMismatch(a, v)
		}
		return uint32(h), nil
	default:
		return nil, boxMismatch(a, v)
	}
}

func (a *Argument) boxObjectPath(v Value, scope *Proxy) (any, error) {
	switch p := v.(type) {
	case ObjectPath:
		return godbus.ObjectPath(p), nil
	case *Proxy:
		if scope == nil || !p.sameScope(scope) {
			path, ok := autoExportPath(p, scope)
			if !ok {
				return nil, &Error{Kind: TypeMismatch, Op: "Box", Msg: "cross-scope object reference cannot be transmitted"}
			}
			return godbus.ObjectPath(path), nil
		}
		return godbus.ObjectPath(p.path), nil
	default:
		return nil, boxMismatch(a, v)
	}
}

func toInt64(v Value) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case uint64:
		return int64(n)
	case uint32:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func integerValue(v Value) (int64, bool) {
	switch v.(type) {
	case int64, int, uint64, uint32, int32:
		return toInt64(v), true
	default:
		return 0, false
	}
}

func boxMismatch(a *Argument, v Value) error {
	return &Error{Kind: TypeMismatch, Op: "Box", Msg: fmt.Sprintf("value %#v cannot box as %q", v, a.String())}
}

func (a *Argument) boxArray(v Value, scope *Proxy) (any, error) {
	elem := a.children[0]
	if elem.dbusType == 'y' {
		if b, ok := v.(Blob); ok {
			return []byte(b), nil
		}
	}
	if a.IsDictionary() {
		return a.boxDict(v, elem, scope)
	}
	seq, ok := v.([]Value)
	if !ok {
		return nil, boxMismatch(a, v)
	}
	out := make([]any, len(seq))
	for i, item := range seq {
		bv, err := elem.Box(item, scope)
		if err != nil {
			return nil, err
		}
		out[i] = bv
	}
	return out, nil
}

func (a *Argument) boxDict(v Value, elem *Argument, scope *Proxy) (any, error) {
	key, val := elem.children[0], elem.children[1]
	m, ok := v.(map[string]Value)
	if !ok {
		return nil, boxMismatch(a, v)
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic marshalling order
	out := map[string]any{}
	for _, k := range keys {
		bk, err := key.Box(k, scope)
		if err != nil {
			return nil, err
		}
		bv, err := val.Box(m[k], scope)
		if err != nil {
			return nil, err
		}
		out[fmt.Sprint(bk)] = bv
	}
	return out, nil
}

func (a *Argument) boxStruct(v Value, scope *Proxy) (any, error) {
	var seq []Value
	switch s := v.(type) {
	case Struct:
		seq = s
	case []Value:
		seq = s
	default:
		return nil, boxMismatch(a, v)
	}
	if len(seq) != len(a.children) {
		return nil, boxMismatch(a, v)
	}
	out := make([]any, len(seq))
	for i, c := range a.children {
		bv, err := c.Box(seq[i], scope)
		if err != nil {
			return nil, err
		}
		out[i] = bv
	}
	return out, nil
}

func (a *Argument) boxVariant(v Value, scope *Proxy) (any, error) {
	inner, sig, err := inferVariant(v, scope)
	if err != nil {
		return nil, err
	}
	wire, err := sig.Box(inner, scope)
	if err != nil {
		return nil, err
	}
	// MakeVariant would re-derive the signature from the Go value by
	// reflection, which collapses []any to av; the inferred signature
	// is the authoritative one.
	return godbus.MakeVariantWithSignature(wire, godbus.ParseSignatureMust(sig.String())), nil
}

// inferVariant picks the most specific representable wire type for a
// host value: an explicit Variant sentinel wins outright, then maps,
// then sequences, then byte blobs, then in-scope proxies, then
// numeric wrappers, with booleans checked first so they are never
// promoted to a byte.
func inferVariant(v Value, scope *Proxy) (Value, *Argument, error) {
	if boxed, ok := v.(*Variant); ok {
		sig, err := ParseSingleSignature(string(boxed.Sig))
		if err != nil {
			return nil, nil, err
		}
		return boxed.Value, sig, nil
	}
	switch val := v.(type) {
	case map[string]Value:
		return inferDict(val)
	case Struct:
		return inferStruct(val, scope)
	case []Value:
		return inferSequence(val, scope)
	case Blob:
		return val, &Argument{dbusType: 'a', children: []*Argument{{dbusType: 'y'}}}, nil
	case bool:
		return val, &Argument{dbusType: 'b'}, nil
	case *Proxy:
		if scope != nil && val.sameScope(scope) {
			return val, &Argument{dbusType: 'o'}, nil
		}
		if path, ok := autoExportPath(val, scope); ok {
			return ObjectPath(path), &Argument{dbusType: 'o'}, nil
		}
		return nil, nil, &Error{Kind: UnsupportedValue, Op: "inferVariant", Msg: "cross-scope proxy cannot be represented"}
	case int64, int, uint64, uint32, int32:
		return val, &Argument{dbusType: 'x'}, nil
	case float64:
		return val, &Argument{dbusType: 'd'}, nil
	case string:
		return val, &Argument{dbusType: 's'}, nil
	case ObjectPath:
		return val, &Argument{dbusType: 'o'}, nil
	case Signature:
		return val, &Argument{dbusType: 'g'}, nil
	default:
		return nil, nil, &Error{Kind: UnsupportedValue, Op: "inferVariant", Msg: fmt.Sprintf("no wire representation for %T", v)}
	}
}

func inferDict(m map[string]Value) (Value, *Argument, error) {
	// String-keyed host maps are always basic-keyed; heterogeneous
	// values force the variant-valued dictionary shape a{sv}.
	homogeneous := true
	var first *Argument
	for _, v := range m {
		_, sig, err := inferVariant(v, nil)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = sig
		} else if first.String() != sig.String() {
			homogeneous = false
		}
	}
	valArg := &Argument{dbusType: 'v'}
	if homogeneous && first != nil {
		valArg = first
	}
	entry := &Argument{dbusType: '{', children: []*Argument{{dbusType: 's'}, valArg}}
	arr := &Argument{dbusType: 'a', children: []*Argument{entry}, isDict: true}
	boxed := map[string]Value{}
	for k, v := range m {
		boxed[k] = v
	}
	return boxed, arr, nil
}

// inferStruct emits a per-element (…) signature for a host sequence
// marked as a struct, rather than the homogeneous-array/av shapes a
// plain sequence infers.
func inferStruct(s Struct, scope *Proxy) (Value, *Argument, error) {
	if len(s) == 0 {
		return nil, nil, &Error{Kind: UnsupportedValue, Op: "inferVariant", Msg: "empty struct has no wire representation"}
	}
	children := make([]*Argument, len(s))
	for i, v := range s {
		_, sig, err := inferVariant(v, scope)
		if err != nil {
			return nil, nil, err
		}
		children[i] = sig
	}
	return s, &Argument{dbusType: '(', children: children}, nil
}

func inferSequence(seq []Value, scope *Proxy) (Value, *Argument, error) {
	if len(seq) == 0 {
		return seq, &Argument{dbusType: 'a', children: []*Argument{{dbusType: 'v'}}}, nil
	}
	var first *Argument
	homogeneous := true
	for _, v := range seq {
		_, sig, err := inferVariant(v, scope)
		if err != nil {
			return nil, nil, err
		}
		if first == nil {
			first = sig
		} else if first.String() != sig.String() {
			homogeneous = false
		}
	}
	if homogeneous {
		return seq, &Argument{dbusType: 'a', children: []*Argument{first}}, nil
	}
	return seq, &Argument{dbusType: 'a', children: []*Argument{{dbusType: 'v'}}}, nil
}
