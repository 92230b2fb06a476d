// Package threads prepares a module for instantiation on multiple
// threads sharing one memory.
//
// The memory moves to a shared import so every worker instantiates the
// same module against the same buffer. Active data segments would
// reinitialize that shared memory on every instantiation, so they become
// passive and an init function applies them instead; the glue calls it
// exactly once from the first thread. A thread init export gives each
// worker a hook the glue calls after instantiation.
package threads

import (
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Export names the generated glue calls.
const (
	ExportInitMemory = "__bindgen_init_memory"
	ExportThreadInit = "__bindgen_thread_init"
)

// Default import location for the shared memory.
const (
	DefaultMemoryModule = "env"
	DefaultMemoryName   = "memory"
)

// Config controls the transformation.
type Config struct {
	// MemoryModule and MemoryName locate the shared memory import.
	// Empty means env.memory.
	MemoryModule string
	MemoryName   string
}

// Transform converts the module's memory into a shared import and makes
// data initialization explicit. A defined memory without a maximum is an
// error: shared memories require bounded growth.
func (cfg Config) Transform(m *wasm.Module) (wasm.Remap, error) {
	remap := wasm.IdentityRemap()

	if cfg.MemoryModule == "" {
		cfg.MemoryModule = DefaultMemoryModule
	}
	if cfg.MemoryName == "" {
		cfg.MemoryName = DefaultMemoryName
	}

	limits, err := takeMemory(m)
	if err != nil {
		return remap, err
	}
	if limits.Max == nil {
		return remap, errors.New(errors.PhaseAdapt, errors.KindUnsupported).
			Detail("shared memory requires a maximum size").
			Build()
	}
	limits.Shared = true

	// Memory imports do not disturb the function index space.
	m.Imports = append(m.Imports, wasm.Import{
		Module: cfg.MemoryModule,
		Name:   cfg.MemoryName,
		Desc: wasm.ImportDesc{
			Kind:   wasm.KindMemory,
			Memory: &wasm.MemoryType{Limits: limits},
		},
	})

	initIdx, err := makePassive(m)
	if err != nil {
		return remap, err
	}

	threadInit := addNoopFunc(m)

	m.Exports = append(m.Exports,
		wasm.Export{Name: ExportInitMemory, Kind: wasm.KindFunc, Idx: initIdx},
		wasm.Export{Name: ExportThreadInit, Kind: wasm.KindFunc, Idx: threadInit},
	)

	return remap, nil
}

// takeMemory removes the module's memory definition, or adopts the
// limits of an existing memory import.
func takeMemory(m *wasm.Module) (wasm.Limits, error) {
	if len(m.Memories) > 0 {
		limits := m.Memories[0].Limits
		m.Memories = nil
		return limits, nil
	}
	for i := range m.Imports {
		imp := &m.Imports[i]
		if imp.Desc.Kind == wasm.KindMemory {
			limits := imp.Desc.Memory.Limits
			// Drop the old import; the shared one replaces it.
			m.Imports = append(m.Imports[:i], m.Imports[i+1:]...)
			return limits, nil
		}
	}
	return wasm.Limits{}, errors.New(errors.PhaseAdapt, errors.KindUnsupported).
		Detail("module has no memory to share").
		Build()
}

// makePassive converts every active data segment to passive and builds
// the init function that applies them at their original offsets.
func makePassive(m *wasm.Module) (uint32, error) {
	var instrs []wasm.Instruction

	for i := range m.Data {
		seg := &m.Data[i]
		if seg.Flags == 1 {
			continue // already passive
		}

		offset, err := constOffset(seg.Offset)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseAdapt, errors.KindUnsupported, err,
				"data segment offset must be a constant")
		}

		instrs = append(instrs,
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: offset}},
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 0}},
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(len(seg.Init))}},
			wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{
				SubOpcode: wasm.MiscMemoryInit,
				Operands:  []uint32{uint32(i), 0},
			}},
			wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{
				SubOpcode: wasm.MiscDataDrop,
				Operands:  []uint32{uint32(i)},
			}},
		)

		seg.Flags = 1
		seg.Offset = nil
		seg.MemIdx = 0
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})

	count := uint32(len(m.Data))
	m.DataCount = &count

	typeIdx := m.AddType(wasm.FuncType{})
	return m.AddFunc(typeIdx, wasm.FuncBody{Code: wasm.EncodeInstructions(instrs)}), nil
}

func addNoopFunc(m *wasm.Module) uint32 {
	typeIdx := m.AddType(wasm.FuncType{})
	return m.AddFunc(typeIdx, wasm.FuncBody{
		Code: wasm.EncodeInstructions([]wasm.Instruction{{Opcode: wasm.OpEnd}}),
	})
}

// constOffset extracts the i32 constant from an init expression.
func constOffset(expr []byte) (int32, error) {
	instrs, err := wasm.DecodeInstructions(expr)
	if err != nil {
		return 0, err
	}
	if len(instrs) != 2 || instrs[0].Opcode != wasm.OpI32Const {
		return 0, errors.InvalidData(errors.PhaseAdapt, nil, "offset is not a single i32.const")
	}
	return instrs[0].Imm.(wasm.I32Imm).Value, nil
}
