package wasm_test

import (
	"testing"

	"github.com/wippyai/wasm-bindgen/wasm"
)

func validModule() *wasm.Module {
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
		},
		Funcs: []uint32{0},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpLocalGet, 0x00, wasm.OpEnd}},
		},
		Exports: []wasm.Export{
			{Name: "id", Kind: wasm.KindFunc, Idx: 0},
		},
	}
}

func TestValidateOK(t *testing.T) {
	if err := wasm.Validate(validModule()); err != nil {
		t.Errorf("valid module rejected: %v", err)
	}
}

func TestValidateFuncCodeMismatch(t *testing.T) {
	m := validModule()
	m.Code = nil
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for func/code count mismatch")
	}
}

func TestValidateBadTypeIndex(t *testing.T) {
	m := validModule()
	m.Funcs[0] = 9
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for out-of-range type index")
	}
}

func TestValidateBadExportIndex(t *testing.T) {
	m := validModule()
	m.Exports[0].Idx = 5
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for out-of-range export index")
	}
}

func TestValidateDuplicateExport(t *testing.T) {
	m := validModule()
	m.Exports = append(m.Exports, wasm.Export{Name: "id", Kind: wasm.KindFunc, Idx: 0})
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for duplicate export name")
	}
}

func TestValidateStartSignature(t *testing.T) {
	m := validModule()
	m.Start = ptrTo(uint32(0)) // func 0 takes a parameter
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for start function with parameters")
	}
}

func TestValidateDataCountMismatch(t *testing.T) {
	m := validModule()
	m.DataCount = ptrTo(uint32(3))
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for data count mismatch")
	}
}

func TestValidateMultipleMemories(t *testing.T) {
	m := validModule()
	m.Memories = []wasm.MemoryType{
		{Limits: wasm.Limits{Min: 1}},
		{Limits: wasm.Limits{Min: 1}},
	}
	if err := wasm.Validate(m); err == nil {
		t.Error("expected error for multiple memories")
	}
}
