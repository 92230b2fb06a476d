package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-bindgen/wasm"
)

func TestLEB128UnsignedRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 300, 16384, 0xFFFFFFFF}
	for _, v := range values {
		var buf bytes.Buffer
		wasm.WriteLEB128u(&buf, v)
		got, err := wasm.ReadLEB128u(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadLEB128u(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestLEB128SignedRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, 64, -64, -65, 8191, -8192, 2147483647, -2147483648}
	for _, v := range values {
		var buf bytes.Buffer
		wasm.WriteLEB128s(&buf, v)
		got, err := wasm.ReadLEB128s(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadLEB128s(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestLEB128Signed64RoundTrip(t *testing.T) {
	values := []int64{0, -1, 1 << 40, -(1 << 40), 9223372036854775807, -9223372036854775808}
	for _, v := range values {
		var buf bytes.Buffer
		wasm.WriteLEB128s64(&buf, v)
		got, err := wasm.ReadLEB128s64(bytes.NewReader(buf.Bytes()))
		if err != nil {
			t.Fatalf("ReadLEB128s64(%d): %v", v, err)
		}
		if got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestLEB128Overflow(t *testing.T) {
	// 6 continuation bytes exceed a u32
	data := []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F}
	_, err := wasm.ReadLEB128u(bytes.NewReader(data))
	if err == nil {
		t.Error("expected overflow error")
	}
}

func TestLEB128Truncated(t *testing.T) {
	data := []byte{0x80} // continuation bit with no next byte
	_, err := wasm.ReadLEB128u(bytes.NewReader(data))
	if err == nil {
		t.Error("expected error for truncated input")
	}
}

func TestFloatRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	wasm.WriteFloat32(&buf, 3.5)
	wasm.WriteFloat64(&buf, -0.125)

	r := bytes.NewReader(buf.Bytes())
	f32, err := wasm.ReadFloat32(r)
	if err != nil || f32 != 3.5 {
		t.Errorf("float32 round trip: %v %v", f32, err)
	}
	f64, err := wasm.ReadFloat64(r)
	if err != nil || f64 != -0.125 {
		t.Errorf("float64 round trip: %v %v", f64, err)
	}
}
