package dbus

import "github.com/creachadair/mds/mapset"

// NativeKind is the host-side primitive kind a D-Bus basic type code
// bridges to. Container and object-path types always bridge to
// Boxed: their representation is a Go composite, never a fixed-width
// slot.
type NativeKind int

const (
	KindInvalid NativeKind = iota
	KindU8
	KindBool
	KindI16
	KindU16
	KindI32
	KindU32
	KindI64
	KindU64
	KindF64
	KindString
	KindOpaqueHandle
	KindBoxed
)

func (k NativeKind) String() string {
	switch k {
	case KindU8:
		return "u8"
	case KindBool:
		return "bool"
	case KindI16:
		return "i16"
	case KindU16:
		return "u16"
	case KindI32:
		return "i32"
	case KindU32:
		return "u32"
	case KindI64:
		return "i64"
	case KindU64:
		return "u64"
	case KindF64:
		return "f64"
	case KindString:
		return "string"
	case KindOpaqueHandle:
		return "opaque-handle"
	case KindBoxed:
		return "boxed"
	default:
		return "invalid"
	}
}

func (k NativeKind) signed() bool {
	switch k {
	case KindI16, KindI32, KindI64:
		return true
	default:
		return false
	}
}

func (k NativeKind) integer() bool {
	switch k {
	case KindU8, KindI16, KindU16, KindI32, KindU32, KindI64, KindU64:
		return true
	default:
		return false
	}
}

func (k NativeKind) float() bool {
	return k == KindF64
}

// typeCodeKind maps every basic D-Bus type code, plus the closed set
// of container/path codes, to its native kind. Container codes
// bridge to KindBoxed since their representation is never a fixed
// slot.
var typeCodeKind = map[byte]NativeKind{
	'y': KindU8,
	'b': KindBool,
	'n': KindI16,
	'q': KindU16,
	'i': KindI32,
	'u': KindU32,
	'x': KindI64,
	't': KindU64,
	'd': KindF64,
	's': KindString,
	'o': KindBoxed,
	'g': KindBoxed,
	'h': KindOpaqueHandle,
	'a': KindBoxed,
	'(': KindBoxed,
	'{': KindBoxed,
	'v': KindBoxed,
}

// typeCodeSize is the byte width of the unboxed representation for
// each type code. Boxed codes (strings, object paths, signatures and
// the container codes) report the machine pointer width; the
// opaque-handle code 'h' reports the width of its 32-bit integer.
var typeCodeSize = map[byte]int{
	'y': 1,
	'b': 4, // DBus wire booleans occupy a full 32-bit slot
	'n': 2,
	'q': 2,
	'i': 4,
	'u': 4,
	'x': 8,
	't': 8,
	'd': 8,
	's': 8, // pointer-sized (string header), not the string bytes
	'o': 8,
	'g': 8,
	'h': 4,
	'a': 8,
	'(': 8,
	'{': 8,
	'v': 8,
}

// kindDefaultCode is the default type code native_kind_for's inverse,
// dbus_code_for_host_kind, produces when generating a signature from
// a bare host value of the given kind.
var kindDefaultCode = map[NativeKind]byte{
	KindU8:     'y',
	KindBool:   'b',
	KindI16:    'n',
	KindU16:    'q',
	KindI32:    'i',
	KindU32:    'u',
	KindI64:    'x',
	KindU64:    't',
	KindF64:    'd',
	KindString: 's',
}

// basicTypeCodes is every single-character code that is a basic
// (non-container) type, used by the signature parser to recognise a
// leaf without consulting the container grammar.
var basicTypeCodes = mapset.New[byte]('y', 'b', 'n', 'q', 'i', 'u', 'x', 't', 'd', 's', 'o', 'g', 'h')

// containerTypeCodes opens a container production in the signature
// grammar.
var containerTypeCodes = mapset.New[byte]('a', '(', '{', 'v')

// NativeKindFor returns the native kind a D-Bus type code bridges to.
func NativeKindFor(code byte) NativeKind {
	if k, ok := typeCodeKind[code]; ok {
		return k
	}
	return KindInvalid
}

// NativeSizeFor returns the unboxed representation's byte size for
// code, or 0 if code is not a D-Bus type code.
func NativeSizeFor(code byte) int {
	return typeCodeSize[code]
}

// CodeForHostKind returns the default wire type code used when a
// bare host value of kind k needs a signature synthesized for it.
func CodeForHostKind(k NativeKind) (byte, bool) {
	c, ok := kindDefaultCode[k]
	return c, ok
}

// Fits reports whether a value native to source can be widened into
// target without silent truncation, per the TypeBridge widening
// rules: identical kinds always fit; among integers, widening
// preserves value only when the target is strictly wider in bytes
// and either the sign class matches, or source is unsigned and
// target is signed (an unsigned value always fits in a wider signed
// slot); equal-width integer conversions require identical
// signedness; among floats, target must be at least as wide as
// source; there is no implicit int/float fit in either direction.
func Fits(source, target NativeKind) bool {
	if source == target {
		return true
	}
	switch {
	case source.integer() && target.integer():
		sw, tw := nativeSizeForKind(source), nativeSizeForKind(target)
		if tw <= sw {
			return false
		}
		if source.signed() == target.signed() {
			return true
		}
		return !source.signed() && target.signed()
	case source.float() && target.float():
		return nativeSizeForKind(target) >= nativeSizeForKind(source)
	default:
		return false
	}
}

// nativeSizeForKind is NativeSizeFor's inverse lookup, keyed by kind
// instead of wire code, used by Fits to compare widths without
// picking an arbitrary representative type code per kind.
func nativeSizeForKind(k NativeKind) int {
	switch k {
	case KindU8:
		return 1
	case KindI16, KindU16:
		return 2
	case KindI32, KindU32:
		return 4
	case KindI64, KindU64, KindF64:
		return 8
	default:
		return 0
	}
}
