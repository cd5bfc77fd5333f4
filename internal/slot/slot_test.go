package slot

import "testing"

func TestIntRoundTrip(t *testing.T) {
	cases := []struct {
		v     int64
		width int
	}{
		{0, 1}, {-1, 1}, {127, 1}, {-128, 1},
		{32767, 2}, {-32768, 2},
		{1<<31 - 1, 4}, {-1 << 31, 4},
		{1<<63 - 1, 8}, {-1 << 63, 8},
	}
	for _, c := range cases {
		var s Slot
		s.PutInt64(c.v, c.width)
		if got := s.Int64(c.width); got != c.v {
			t.Errorf("PutInt64(%d, %d) round trip got %d", c.v, c.width, got)
		}
	}
}

func TestFloatRoundTrip(t *testing.T) {
	for _, v := range []float64{0, -0, 1.5, -1.5} {
		var s Slot
		s.PutFloat64(v)
		if got := s.Float64(); got != v {
			t.Errorf("PutFloat64(%v) round trip got %v", v, got)
		}
	}
}

func TestBoolNormalization(t *testing.T) {
	var s Slot
	s.PutUint64(0xff, 1)
	if !s.Bool() {
		t.Error("non-zero byte should be true")
	}
	s.PutUint64(0, 1)
	if s.Bool() {
		t.Error("zero byte should be false")
	}
}

func TestReinterpretWidensSigned(t *testing.T) {
	var src Slot
	src.PutInt64(-5, 1)
	dst := Reinterpret(src, 1, true, 4)
	if got := dst.Int64(4); got != -5 {
		t.Errorf("widen -5 (1 byte) to 4 bytes = %d, want -5", got)
	}
}

func TestReinterpretUnsignedToWiderSigned(t *testing.T) {
	var src Slot
	src.PutUint64(200, 1)
	dst := Reinterpret(src, 1, false, 2)
	if got := dst.Int64(2); got != 200 {
		t.Errorf("widen unsigned 200 (1 byte) to signed 2 bytes = %d, want 200", got)
	}
}
