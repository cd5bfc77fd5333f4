package slot

import "math"

// A Slot is an 8-byte scratch buffer holding one basic D-Bus value in
// host-native byte order. It is the in-memory analogue of the wire
// buffer fixup described for argument marshalling: every read/write
// pair below sign-extends on the way in and masks on the way out, so
// that narrowing or widening a value is always an explicit, visible
// step rather than an implicit Go numeric conversion.
type Slot [8]byte

// PutInt64 stores a signed integer of the given byte width. Values
// that don't fit in width are truncated to it, matching the "writes
// mask to the wire width" rule.
func (s *Slot) PutInt64(v int64, width int) {
	u := uint64(v)
	s.PutUint64(u, width)
}

// PutUint64 stores an unsigned integer of the given byte width.
func (s *Slot) PutUint64(v uint64, width int) {
	*s = Slot{}
	switch width {
	case 1:
		s[0] = byte(v)
	case 2:
		ByteOrder.PutUint16(s[:2], uint16(v))
	case 4:
		ByteOrder.PutUint32(s[:4], uint32(v))
	case 8:
		ByteOrder.PutUint64(s[:8], v)
	default:
		panic("slot: unsupported integer width")
	}
}

// Int64 sign-extends the low width bytes of the slot into a 64-bit
// buffer, per the "all integer slots are sign-extended into a 64-bit
// buffer on read" rule.
func (s Slot) Int64(width int) int64 {
	switch width {
	case 1:
		return int64(int8(s[0]))
	case 2:
		return int64(int16(ByteOrder.Uint16(s[:2])))
	case 4:
		return int64(int32(ByteOrder.Uint32(s[:4])))
	case 8:
		return int64(ByteOrder.Uint64(s[:8]))
	default:
		panic("slot: unsupported integer width")
	}
}

// Uint64 zero-extends the low width bytes of the slot into a 64-bit
// buffer.
func (s Slot) Uint64(width int) uint64 {
	switch width {
	case 1:
		return uint64(s[0])
	case 2:
		return uint64(ByteOrder.Uint16(s[:2]))
	case 4:
		return uint64(ByteOrder.Uint32(s[:4]))
	case 8:
		return ByteOrder.Uint64(s[:8])
	default:
		panic("slot: unsupported integer width")
	}
}

// PutFloat64 stores d as a bit-identical 64-bit double.
func (s *Slot) PutFloat64(d float64) {
	*s = Slot{}
	ByteOrder.PutUint64(s[:8], math.Float64bits(d))
}

// Float64 reads the slot as a bit-identical 64-bit double.
func (s Slot) Float64() float64 {
	return math.Float64frombits(ByteOrder.Uint64(s[:8]))
}

// PutBool stores a boolean, normalized to 0 or 1 as D-Bus requires.
func (s *Slot) PutBool(b bool) {
	*s = Slot{}
	if b {
		s[0] = 1
	}
}

// Bool reports whether the slot holds a non-zero value. Any non-zero
// wire value becomes host true.
func (s Slot) Bool() bool {
	for _, b := range s {
		if b != 0 {
			return true
		}
	}
	return false
}

// Reinterpret copies src's low srcWidth bytes into a slot of
// dstWidth, sign- or zero-extending according to srcSigned, then
// masking to dstWidth. This is the "buffer fixup" operation: the
// source slot's natural type is cast to the target's and the slot is
// rewritten.
func Reinterpret(src Slot, srcWidth int, srcSigned bool, dstWidth int) Slot {
	var wide int64
	if srcSigned {
		wide = src.Int64(srcWidth)
	} else {
		wide = int64(src.Uint64(srcWidth))
	}
	var out Slot
	out.PutInt64(wide, dstWidth)
	return out
}
