package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-bindgen/wasm"
)

func TestEncodeRoundTrip(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{Params: nil, Results: []wasm.ValType{wasm.ValI32, wasm.ValI32}},
		},
		Funcs: []uint32{0, 1},
		Code: []wasm.FuncBody{
			{
				Locals: []wasm.LocalEntry{{Count: 2, ValType: wasm.ValI64}},
				Code: []byte{
					wasm.OpLocalGet, 0x00,
					wasm.OpLocalGet, 0x01,
					wasm.OpI32Add,
					wasm.OpEnd,
				},
			},
			{
				Code: []byte{
					wasm.OpI32Const, 0x01,
					wasm.OpI32Const, 0x02,
					wasm.OpEnd,
				},
			},
		},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Globals: []wasm.Global{
			{
				Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
				Init: []byte{wasm.OpI32Const, 0x00, wasm.OpEnd},
			},
		},
		Exports: []wasm.Export{
			{Name: "add", Kind: wasm.KindFunc, Idx: 0},
			{Name: "pair", Kind: wasm.KindFunc, Idx: 1},
			{Name: "memory", Kind: wasm.KindMemory, Idx: 0},
		},
	}

	data := m.MustEncode()
	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(parsed.Types) != 2 {
		t.Errorf("expected 2 types, got %d", len(parsed.Types))
	}
	if len(parsed.Types[1].Results) != 2 {
		t.Errorf("multi-value results lost: %v", parsed.Types[1].Results)
	}
	if len(parsed.Code) != 2 {
		t.Fatalf("expected 2 bodies, got %d", len(parsed.Code))
	}
	if len(parsed.Code[0].Locals) != 1 || parsed.Code[0].Locals[0].Count != 2 {
		t.Errorf("locals lost in round trip: %+v", parsed.Code[0].Locals)
	}
	if !bytes.Equal(parsed.Code[0].Code, m.Code[0].Code) {
		t.Errorf("code bytes changed: %v vs %v", parsed.Code[0].Code, m.Code[0].Code)
	}
	if len(parsed.Exports) != 3 {
		t.Errorf("expected 3 exports, got %d", len(parsed.Exports))
	}
	if len(parsed.Globals) != 1 || !parsed.Globals[0].Type.Mutable {
		t.Errorf("global lost in round trip: %+v", parsed.Globals)
	}

	// Encoding is deterministic.
	if !bytes.Equal(data, m.MustEncode()) {
		t.Error("re-encoding produced different bytes")
	}
}

func TestEncodeEmptySectionsOmitted(t *testing.T) {
	m := &wasm.Module{}
	data := m.MustEncode()
	if len(data) != 8 {
		t.Errorf("empty module should be header only, got %d bytes", len(data))
	}
}

func TestEncodeCustomSectionLast(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		CustomSections: []wasm.CustomSection{
			{Name: "bindgen", Data: []byte{0x01}},
		},
	}
	data := m.MustEncode()

	parsed, err := wasm.ParseModule(data)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(parsed.CustomSections) != 1 || parsed.CustomSections[0].Name != "bindgen" {
		t.Errorf("custom section lost: %+v", parsed.CustomSections)
	}
}

func TestAddTypeDeduplicates(t *testing.T) {
	m := &wasm.Module{}
	ft := wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}

	a := m.AddType(ft)
	b := m.AddType(ft)
	if a != b {
		t.Errorf("expected deduplicated type index, got %d and %d", a, b)
	}

	c := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValF64}})
	if c == a {
		t.Error("distinct type should get a fresh index")
	}
}

func TestAddFuncReturnsSpaceIndex(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
		Imports: []wasm.Import{
			{Module: "env", Name: "f", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
	}

	idx := m.AddFunc(0, wasm.FuncBody{Code: []byte{wasm.OpEnd}})
	if idx != 1 {
		t.Errorf("expected func index 1 after one import, got %d", idx)
	}
	if m.NumFuncs() != 2 {
		t.Errorf("expected 2 funcs in index space, got %d", m.NumFuncs())
	}
}
