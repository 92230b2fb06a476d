package descriptor_test

import (
	"testing"

	"github.com/wippyai/wasm-bindgen/descriptor"
)

func u32Type() descriptor.Type    { return descriptor.Type{Op: descriptor.OpU32} }
func stringType() descriptor.Type { return descriptor.Type{Op: descriptor.OpString} }
func unitType() descriptor.Type   { return descriptor.Type{Op: descriptor.OpUnit} }

func TestDecodeSimpleFunction(t *testing.T) {
	// fn(u32, string) -> f64
	words := []uint32{
		uint32(descriptor.OpFunc), 2,
		uint32(descriptor.OpU32),
		uint32(descriptor.OpString),
		uint32(descriptor.OpF64),
	}

	fn, err := descriptor.Decode(words)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(fn.Params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(fn.Params))
	}
	if fn.Params[0].Op != descriptor.OpU32 || fn.Params[1].Op != descriptor.OpString {
		t.Errorf("unexpected params: %v", fn.Params)
	}
	if fn.Ret.Op != descriptor.OpF64 {
		t.Errorf("unexpected return: %v", fn.Ret)
	}
}

func TestDecodeRejectsNonFuncTop(t *testing.T) {
	_, err := descriptor.Decode([]uint32{uint32(descriptor.OpU32)})
	if err == nil {
		t.Error("expected error for stream not starting with func op")
	}
}

func TestDecodeRejectsTrailingWords(t *testing.T) {
	words := []uint32{
		uint32(descriptor.OpFunc), 0,
		uint32(descriptor.OpUnit),
		99, // trailing garbage
	}
	_, err := descriptor.Decode(words)
	if err == nil {
		t.Error("expected error for trailing words")
	}
}

func TestDecodeRejectsTruncated(t *testing.T) {
	words := []uint32{uint32(descriptor.OpFunc), 2, uint32(descriptor.OpU32)}
	_, err := descriptor.Decode(words)
	if err == nil {
		t.Error("expected error for truncated stream")
	}
}

func TestDecodeRejectsOversizedCounts(t *testing.T) {
	cases := map[string][]uint32{
		"params": {uint32(descriptor.OpFunc), 0x7FFFFFFF},
		"fields": {
			uint32(descriptor.OpFunc), 0,
			uint32(descriptor.OpStruct), 1, 'S', 0x7FFFFFFF,
		},
		"variants": {
			uint32(descriptor.OpFunc), 0,
			uint32(descriptor.OpEnum), 1, 'E', 0x7FFFFFFF,
		},
		"closure params": {
			uint32(descriptor.OpFunc), 0,
			uint32(descriptor.OpClosure), 0, 0x7FFFFFFF,
		},
	}
	for name, words := range cases {
		if _, err := descriptor.Decode(words); err == nil {
			t.Errorf("%s: count past the end of the stream must not allocate", name)
		}
	}
}

func TestDecodeRejectsUnknownOp(t *testing.T) {
	words := []uint32{uint32(descriptor.OpFunc), 1, 200, uint32(descriptor.OpUnit)}
	_, err := descriptor.Decode(words)
	if err == nil {
		t.Error("expected error for unknown op")
	}
}

func TestRoundTripStruct(t *testing.T) {
	point := descriptor.Type{
		Op:   descriptor.OpStruct,
		Name: "Point",
		Fields: []descriptor.Field{
			{Name: "x", Type: descriptor.Type{Op: descriptor.OpF64}},
			{Name: "y", Type: descriptor.Type{Op: descriptor.OpF64}},
			{Name: "label", Type: stringType()},
		},
	}
	fn := &descriptor.Function{
		Params: []descriptor.Type{point},
		Ret:    unitType(),
	}

	decoded, err := descriptor.Decode(descriptor.EncodeFunction(fn))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := decoded.Params[0]
	if got.Op != descriptor.OpStruct || got.Name != "Point" {
		t.Fatalf("unexpected type: %+v", got)
	}
	if len(got.Fields) != 3 || got.Fields[2].Name != "label" {
		t.Errorf("fields lost in round trip: %+v", got.Fields)
	}
	if got.Fields[2].Type.Op != descriptor.OpString {
		t.Errorf("field type lost: %+v", got.Fields[2])
	}
}

func TestRoundTripEnum(t *testing.T) {
	shape := descriptor.Type{
		Op:   descriptor.OpEnum,
		Name: "Shape",
		Variants: []descriptor.Variant{
			{Name: "Empty"},
			{Name: "Circle", Payload: &descriptor.Type{Op: descriptor.OpF64}},
			{Name: "Label", Payload: ptrType(stringType())},
		},
	}
	fn := &descriptor.Function{Params: nil, Ret: shape}

	decoded, err := descriptor.Decode(descriptor.EncodeFunction(fn))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := decoded.Ret
	if len(got.Variants) != 3 {
		t.Fatalf("expected 3 variants, got %d", len(got.Variants))
	}
	if got.Variants[0].Payload != nil {
		t.Error("unit variant should have nil payload")
	}
	if got.Variants[1].Payload == nil || got.Variants[1].Payload.Op != descriptor.OpF64 {
		t.Errorf("payload lost: %+v", got.Variants[1])
	}
}

func TestRoundTripClosure(t *testing.T) {
	cb := descriptor.Type{
		Op: descriptor.OpClosure,
		Closure: &descriptor.Closure{
			Params: []descriptor.Type{u32Type(), stringType()},
			Ret:    unitType(),
			Once:   true,
		},
	}
	fn := &descriptor.Function{Params: []descriptor.Type{cb}, Ret: unitType()}

	decoded, err := descriptor.Decode(descriptor.EncodeFunction(fn))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := decoded.Params[0].Closure
	if got == nil {
		t.Fatal("closure lost in round trip")
	}
	if !got.Once || got.Mutable {
		t.Errorf("flags lost: %+v", got)
	}
	if len(got.Params) != 2 {
		t.Errorf("closure params lost: %+v", got.Params)
	}
}

func TestRoundTripNested(t *testing.T) {
	// fn() -> result<vec<option<string>>, Error>
	ret := descriptor.Type{
		Op: descriptor.OpResult,
		Ok: ptrType(descriptor.Type{
			Op:   descriptor.OpVector,
			Elem: ptrType(descriptor.Type{Op: descriptor.OpOption, Elem: ptrType(stringType())}),
		}),
		Err: ptrType(descriptor.Type{Op: descriptor.OpExtern, Name: "Error"}),
	}
	fn := &descriptor.Function{Ret: ret}

	decoded, err := descriptor.Decode(descriptor.EncodeFunction(fn))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := decoded.Ret
	if got.Op != descriptor.OpResult {
		t.Fatalf("unexpected return op: %v", got.Op)
	}
	if got.Err.Op != descriptor.OpExtern || got.Err.Name != "Error" {
		t.Errorf("extern class lost: %+v", got.Err)
	}
	if got.Ok.Elem.Elem.Op != descriptor.OpString {
		t.Errorf("nested element lost: %+v", got.Ok)
	}
}

func TestTypeString(t *testing.T) {
	tests := []struct {
		typ  descriptor.Type
		want string
	}{
		{stringType(), "string"},
		{descriptor.Type{Op: descriptor.OpSlice, Elem: ptrType(u32Type())}, "[]u32"},
		{descriptor.Type{Op: descriptor.OpExtern, Name: "HTMLElement"}, "HTMLElement"},
		{
			descriptor.Type{Op: descriptor.OpResult, Ok: ptrType(stringType()), Err: ptrType(u32Type())},
			"result<string, u32>",
		},
	}

	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestHasExternRef(t *testing.T) {
	plain := descriptor.Function{Params: []descriptor.Type{u32Type()}, Ret: stringType()}
	if plain.HasExternRef() {
		t.Error("scalar binding should not need reference handling")
	}

	nested := descriptor.Function{
		Params: []descriptor.Type{{
			Op: descriptor.OpStruct,
			Fields: []descriptor.Field{
				{Name: "el", Type: descriptor.Type{Op: descriptor.OpExtern, Name: "Node"}},
			},
		}},
		Ret: unitType(),
	}
	if !nested.HasExternRef() {
		t.Error("extern nested in struct should be detected")
	}
}

func ptrType(t descriptor.Type) *descriptor.Type { return &t }
