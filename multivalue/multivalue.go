// Package multivalue lowers multi-value returns for targets without the
// multi-value proposal.
//
// Compilers emit bindings with true multi-value signatures when a return
// type flattens to more than one core value. Engines without multi-value
// support cannot call those exports, so this pass wraps each one in a
// return-pointer shim: the wrapper takes the original parameters plus a
// scratch address, calls the original function, and spills every result
// to memory at a fixed stride. The glue allocates the scratch space with
// the module's exported allocator and reads results back from it.
package multivalue

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Stride is the byte distance between spilled results. Every slot is
// 8 bytes wide so i64 and f64 results never overlap their neighbors.
const Stride = 8

// Default allocator export names.
const (
	DefaultMalloc = "__bindgen_malloc"
	DefaultFree   = "__bindgen_free"
)

// Config controls the lowering.
type Config struct {
	// MallocExport and FreeExport name the allocator the glue will use
	// for scratch space. Empty means the defaults.
	MallocExport string
	FreeExport   string
}

// Required reports whether the pass has work to do: at least one export
// binding whose return flattens to more than one value.
func Required(reg *metadata.Registry) bool {
	for _, b := range reg.Exports() {
		if b.Descriptor != nil && b.Descriptor.FlatResults() > 1 {
			return true
		}
	}
	return false
}

// Transform rewrites every multi-value export into return-pointer style.
// Import bindings that need multi-value returns cannot be lowered from
// the wasm side and are rejected.
func (cfg Config) Transform(m *wasm.Module, reg *metadata.Registry) (wasm.Remap, error) {
	remap := wasm.IdentityRemap()

	if cfg.MallocExport == "" {
		cfg.MallocExport = DefaultMalloc
	}
	if cfg.FreeExport == "" {
		cfg.FreeExport = DefaultFree
	}

	for _, b := range reg.Imports() {
		if b.Descriptor != nil && b.Descriptor.FlatResults() > 1 {
			return remap, errors.New(errors.PhaseAdapt, errors.KindUnsupported).
				WasmName(b.HostModule + "." + b.HostName).
				Detail("import returns %d flat values; host imports cannot be lowered without multi-value support",
					b.Descriptor.FlatResults()).
				Build()
		}
	}

	var targets []*wasm.Export
	for i := range m.Exports {
		exp := &m.Exports[i]
		if exp.Kind != wasm.KindFunc {
			continue
		}
		ft := m.GetFuncType(exp.Idx)
		if ft != nil && len(ft.Results) > 1 {
			targets = append(targets, exp)
		}
	}
	if len(targets) == 0 {
		return remap, nil
	}

	if m.NumImportedMemories()+len(m.Memories) == 0 {
		return remap, errors.New(errors.PhaseAdapt, errors.KindUnsupported).
			Detail("return-pointer lowering needs a linear memory").
			Build()
	}

	var missing []errors.MissingExport
	for _, name := range []string{cfg.MallocExport, cfg.FreeExport} {
		if m.FindExport(name, wasm.KindFunc) == nil {
			missing = append(missing, errors.MissingExport{
				Name: name,
				Why:  "return pointer scratch space",
			})
		}
	}
	if len(missing) > 0 {
		return remap, &errors.MissingExportsError{Exports: missing}
	}

	for _, exp := range targets {
		wrapperIdx, err := wrapExport(m, exp.Idx)
		if err != nil {
			return remap, errors.Wrap(errors.PhaseAdapt, errors.KindInvalidData, err,
				fmt.Sprintf("wrap export %q", exp.Name))
		}
		remap.Set(exp.Idx, wrapperIdx)
		exp.Idx = wrapperIdx
	}

	return remap, nil
}

// wrapExport builds (params..., retptr i32) -> () around funcIdx and
// returns the wrapper's index.
func wrapExport(m *wasm.Module, funcIdx uint32) (uint32, error) {
	ft := m.GetFuncType(funcIdx)

	params := make([]wasm.ValType, 0, len(ft.Params)+1)
	params = append(params, ft.Params...)
	params = append(params, wasm.ValI32) // retptr
	typeIdx := m.AddType(wasm.FuncType{Params: params})

	retptrLocal := uint32(len(ft.Params))
	firstTemp := retptrLocal + 1

	var instrs []wasm.Instruction
	for i := range ft.Params {
		instrs = append(instrs, wasm.Instruction{
			Opcode: wasm.OpLocalGet,
			Imm:    wasm.LocalImm{LocalIdx: uint32(i)},
		})
	}
	instrs = append(instrs, wasm.Instruction{
		Opcode: wasm.OpCall,
		Imm:    wasm.CallImm{FuncIdx: funcIdx},
	})

	// Results come back with the last on top; spill them to temps.
	locals := make([]wasm.LocalEntry, len(ft.Results))
	for i, rt := range ft.Results {
		locals[i] = wasm.LocalEntry{Count: 1, ValType: rt}
	}
	for i := len(ft.Results) - 1; i >= 0; i-- {
		instrs = append(instrs, wasm.Instruction{
			Opcode: wasm.OpLocalSet,
			Imm:    wasm.LocalImm{LocalIdx: firstTemp + uint32(i)},
		})
	}

	for i, rt := range ft.Results {
		storeOp, align, err := storeFor(rt)
		if err != nil {
			return 0, err
		}
		instrs = append(instrs,
			wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: retptrLocal}},
			wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: firstTemp + uint32(i)}},
			wasm.Instruction{Opcode: storeOp, Imm: wasm.MemoryImm{Align: align, Offset: uint64(i) * Stride}},
		)
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})

	body := wasm.FuncBody{
		Locals: locals,
		Code:   wasm.EncodeInstructions(instrs),
	}
	return m.AddFunc(typeIdx, body), nil
}

func storeFor(vt wasm.ValType) (byte, uint32, error) {
	switch vt {
	case wasm.ValI32:
		return wasm.OpI32Store, 2, nil
	case wasm.ValI64:
		return wasm.OpI64Store, 3, nil
	case wasm.ValF32:
		return wasm.OpF32Store, 2, nil
	case wasm.ValF64:
		return wasm.OpF64Store, 3, nil
	}
	return 0, 0, fmt.Errorf("cannot spill %s result to memory", vt)
}
