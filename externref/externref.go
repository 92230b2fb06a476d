// Package externref moves JS value handling into the module for targets
// with the reference types proposal.
//
// Without this pass, every JS value crossing the boundary lives in a
// glue-side heap table and travels as an i32 slot index. With reference
// types available, the table can live inside the module as an externref
// table: the pass appends the table, helper functions to store, load,
// and drop entries, and retypes host imports so top-level JS values
// arrive as externref instead of slot indices. Existing call sites are
// redirected through compatibility wrappers that translate between the
// two representations.
package externref

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Exported helper names the generated glue calls.
const (
	ExportStore = "__bindgen_externref_store"
	ExportLoad  = "__bindgen_externref_load"
	ExportDrop  = "__bindgen_externref_drop"
)

// externref heap type as an s33 immediate.
const heapTypeExtern = -17

// Config controls the pass.
type Config struct {
	// TableMin is the externref table's initial size. Zero means 32.
	TableMin uint32
}

// Required reports whether any binding moves JS values across the
// boundary.
func Required(reg *metadata.Registry) bool {
	for _, b := range reg.All() {
		if b.Descriptor != nil && b.Descriptor.HasExternRef() {
			return true
		}
	}
	return false
}

// Transform appends the externref table and helpers, retypes import
// bindings whose top-level parameters or return are JS values, and
// redirects their call sites through compatibility wrappers.
func (cfg Config) Transform(m *wasm.Module, reg *metadata.Registry) (wasm.Remap, error) {
	remap := wasm.IdentityRemap()

	if cfg.TableMin == 0 {
		cfg.TableMin = 32
	}

	tableIdx := uint32(m.NumImportedTables() + len(m.Tables))
	m.Tables = append(m.Tables, wasm.TableType{
		ElemType: wasm.ValExtern,
		Limits:   wasm.Limits{Min: cfg.TableMin},
	})

	store := addStoreFunc(m, tableIdx)
	load := addLoadFunc(m, tableIdx)
	drop := addDropFunc(m, tableIdx)

	m.Exports = append(m.Exports,
		wasm.Export{Name: ExportStore, Kind: wasm.KindFunc, Idx: store},
		wasm.Export{Name: ExportLoad, Kind: wasm.KindFunc, Idx: load},
		wasm.Export{Name: ExportDrop, Kind: wasm.KindFunc, Idx: drop},
	)

	for _, b := range reg.Imports() {
		if b.Descriptor == nil || !topLevelExtern(b.Descriptor) {
			continue
		}
		if err := retypeImport(m, &b, store, load); err != nil {
			return remap, err
		}
	}

	return remap, nil
}

// topLevelExtern reports whether any parameter or the return is a bare
// JS value. Values nested inside aggregates keep their slot encoding and
// are handled by the glue.
func topLevelExtern(fn *descriptor.Function) bool {
	for _, p := range fn.Params {
		if p.Op == descriptor.OpExtern {
			return true
		}
	}
	return fn.Ret.Op == descriptor.OpExtern
}

func addStoreFunc(m *wasm.Module, tableIdx uint32) uint32 {
	typeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValExtern},
		Results: []wasm.ValType{wasm.ValI32},
	})
	// table.grow returns the previous size, which becomes the slot.
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscTableGrow, Operands: []uint32{tableIdx}}},
		{Opcode: wasm.OpEnd},
	})
	return m.AddFunc(typeIdx, wasm.FuncBody{Code: code})
}

func addLoadFunc(m *wasm.Module, tableIdx uint32) uint32 {
	typeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32},
		Results: []wasm.ValType{wasm.ValExtern},
	})
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpTableGet, Imm: wasm.TableImm{TableIdx: tableIdx}},
		{Opcode: wasm.OpEnd},
	})
	return m.AddFunc(typeIdx, wasm.FuncBody{Code: code})
}

func addDropFunc(m *wasm.Module, tableIdx uint32) uint32 {
	typeIdx := m.AddType(wasm.FuncType{
		Params: []wasm.ValType{wasm.ValI32},
	})
	code := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: heapTypeExtern}},
		{Opcode: wasm.OpTableSet, Imm: wasm.TableImm{TableIdx: tableIdx}},
		{Opcode: wasm.OpEnd},
	})
	return m.AddFunc(typeIdx, wasm.FuncBody{Code: code})
}

// retypeImport changes the host import's signature so JS values travel
// as externref, then builds a wrapper with the original i32-slot
// signature and redirects every call site to it.
func retypeImport(m *wasm.Module, b *metadata.Binding, store, load uint32) error {
	importIdx, imp := findFuncImport(m, b.HostModule, b.HostName)
	if imp == nil {
		return errors.NotFound(errors.PhaseAdapt, "import", b.HostModule+"."+b.HostName)
	}

	oldType := m.TypeAt(imp.Desc.TypeIdx)
	if oldType == nil {
		return errors.NotFound(errors.PhaseAdapt, "import type", b.HostModule+"."+b.HostName)
	}
	oldSig := *oldType // copy before AddType may grow m.Types

	newParams, err := retypedParams(b.Descriptor, oldSig.Params, b.Name)
	if err != nil {
		return err
	}
	newResults := append([]wasm.ValType(nil), oldSig.Results...)
	if b.Descriptor.Ret.Op == descriptor.OpExtern {
		if len(newResults) != 1 {
			return errors.TypeMismatch(errors.PhaseAdapt, b.Name,
				fmt.Sprintf("extern return needs exactly one result, type has %d", len(newResults)))
		}
		newResults[0] = wasm.ValExtern
	}
	imp.Desc.TypeIdx = m.AddType(wasm.FuncType{Params: newParams, Results: newResults})

	wrapperIdx := uint32(m.NumFuncs())
	if err := redirectCalls(m, importIdx, wrapperIdx); err != nil {
		return err
	}

	// Wrapper keeps the original slot-based signature.
	wrapperType := m.AddType(oldSig)
	var instrs []wasm.Instruction
	local := uint32(0)
	for _, p := range b.Descriptor.Params {
		w := descriptor.FlatCount(p)
		if p.Op == descriptor.OpExtern {
			instrs = append(instrs,
				wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: local}},
				wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: load}},
			)
		} else {
			for j := 0; j < w; j++ {
				instrs = append(instrs, wasm.Instruction{
					Opcode: wasm.OpLocalGet,
					Imm:    wasm.LocalImm{LocalIdx: local + uint32(j)},
				})
			}
		}
		local += uint32(w)
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: importIdx}})
	if b.Descriptor.Ret.Op == descriptor.OpExtern {
		instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: store}})
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})

	m.AddFunc(wrapperType, wasm.FuncBody{Code: wasm.EncodeInstructions(instrs)})
	return nil
}

// retypedParams maps each top-level extern parameter's flat slot to
// externref, leaving every other flat position unchanged.
func retypedParams(fn *descriptor.Function, oldParams []wasm.ValType, name string) ([]wasm.ValType, error) {
	newParams := make([]wasm.ValType, 0, len(oldParams))
	pos := 0
	for _, p := range fn.Params {
		w := descriptor.FlatCount(p)
		if pos+w > len(oldParams) {
			return nil, errors.TypeMismatch(errors.PhaseAdapt, name,
				fmt.Sprintf("descriptor flattens past the import's %d parameters", len(oldParams)))
		}
		if p.Op == descriptor.OpExtern {
			newParams = append(newParams, wasm.ValExtern)
		} else {
			newParams = append(newParams, oldParams[pos:pos+w]...)
		}
		pos += w
	}
	if pos != len(oldParams) {
		return nil, errors.TypeMismatch(errors.PhaseAdapt, name,
			fmt.Sprintf("descriptor flattens to %d parameters, import has %d", pos, len(oldParams)))
	}
	return newParams, nil
}

// redirectCalls rewrites every direct call, ref.func, and element entry
// targeting oldIdx to newIdx.
func redirectCalls(m *wasm.Module, oldIdx, newIdx uint32) error {
	for i := range m.Code {
		body := &m.Code[i]
		instrs, err := wasm.DecodeInstructions(body.Code)
		if err != nil {
			return errors.Wrap(errors.PhaseAdapt, errors.KindInvalidData, err,
				fmt.Sprintf("decode function body %d", i))
		}
		changed := false
		for j := range instrs {
			switch imm := instrs[j].Imm.(type) {
			case wasm.CallImm:
				if imm.FuncIdx == oldIdx {
					instrs[j].Imm = wasm.CallImm{FuncIdx: newIdx}
					changed = true
				}
			case wasm.RefFuncImm:
				if imm.FuncIdx == oldIdx {
					instrs[j].Imm = wasm.RefFuncImm{FuncIdx: newIdx}
					changed = true
				}
			}
		}
		if changed {
			body.Code = wasm.EncodeInstructions(instrs)
		}
	}

	for i := range m.Elements {
		for j, idx := range m.Elements[i].FuncIdxs {
			if idx == oldIdx {
				m.Elements[i].FuncIdxs[j] = newIdx
			}
		}
	}
	return nil
}

func findFuncImport(m *wasm.Module, module, name string) (uint32, *wasm.Import) {
	idx := uint32(0)
	for i := range m.Imports {
		imp := &m.Imports[i]
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if imp.Module == module && imp.Name == name {
			return idx, imp
		}
		idx++
	}
	return 0, nil
}
