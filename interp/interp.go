// Package interp evaluates descriptor functions without a full runtime.
//
// Descriptor functions are compiler-emitted, zero-argument, straight-line
// code: constants, locals, a small integer arithmetic subset, and calls.
// Each call to the describe import appends one word to the output stream.
// Anything outside that subset is rejected rather than emulated, and a
// step budget plus a call depth limit bound every evaluation.
package interp

import (
	"fmt"
	"math"

	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Evaluation bounds. Real descriptor functions finish in well under a
// thousand steps; the budget only exists to stop pathological input.
const (
	DefaultStepBudget = 100_000
	DefaultDepthLimit = 64
)

// DescribeModule and DescribeName identify the describe intrinsic import.
const (
	DescribeModule = "__bindgen"
	DescribeName   = "describe"
)

// Config bounds an evaluation.
type Config struct {
	// Names maps function indices to symbol names for diagnostics.
	Names map[uint32]string

	// StepBudget caps total instructions across all nested calls.
	// Zero means DefaultStepBudget.
	StepBudget int

	// DepthLimit caps descriptor call nesting. Zero means DefaultDepthLimit.
	DepthLimit int
}

// Interpreter evaluates descriptor functions of one module.
type Interpreter struct {
	module      *wasm.Module
	cfg         Config
	bodies      map[uint32][]wasm.Instruction
	describeIdx uint32
}

// FindDescribeImport locates the describe intrinsic in the module's
// function import space.
func FindDescribeImport(m *wasm.Module) (uint32, bool) {
	idx := uint32(0)
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if imp.Module == DescribeModule && imp.Name == DescribeName {
			return idx, true
		}
		idx++
	}
	return 0, false
}

// New builds an interpreter for the module. describeIdx is the function
// index of the describe import.
func New(m *wasm.Module, describeIdx uint32, cfg Config) *Interpreter {
	if cfg.StepBudget == 0 {
		cfg.StepBudget = DefaultStepBudget
	}
	if cfg.DepthLimit == 0 {
		cfg.DepthLimit = DefaultDepthLimit
	}
	return &Interpreter{
		module:      m,
		cfg:         cfg,
		bodies:      make(map[uint32][]wasm.Instruction),
		describeIdx: describeIdx,
	}
}

// Run evaluates the descriptor function at funcIdx and returns the words
// it passed to the describe import, in call order.
func (it *Interpreter) Run(funcIdx uint32) ([]uint32, error) {
	st := &state{
		interp: it,
		budget: it.cfg.StepBudget,
		active: make(map[uint32]bool),
	}
	if err := st.call(funcIdx, nil, 0); err != nil {
		return nil, err
	}
	return st.out, nil
}

func (it *Interpreter) funcName(funcIdx uint32) string {
	if name, ok := it.cfg.Names[funcIdx]; ok {
		return name
	}
	return fmt.Sprintf("func[%d]", funcIdx)
}

func (it *Interpreter) instructions(funcIdx uint32) ([]wasm.Instruction, error) {
	if instrs, ok := it.bodies[funcIdx]; ok {
		return instrs, nil
	}
	body := it.module.BodyOf(funcIdx)
	if body == nil {
		return nil, errors.NotFound(errors.PhaseInterpret, "function body", it.funcName(funcIdx))
	}
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInterpret, errors.KindInvalidData, err,
			"decode "+it.funcName(funcIdx))
	}
	it.bodies[funcIdx] = instrs
	return instrs, nil
}

// state is one evaluation: the output stream, the shared step budget,
// and the set of functions on the call stack for cycle detection.
type state struct {
	interp *Interpreter
	out    []uint32
	active map[uint32]bool
	budget int
}

func (st *state) call(funcIdx uint32, args []uint64, depth int) error {
	it := st.interp

	if depth > it.cfg.DepthLimit {
		return errors.DepthExceeded(it.funcName(funcIdx), it.cfg.DepthLimit)
	}
	if st.active[funcIdx] {
		return errors.Cycle(it.funcName(funcIdx))
	}
	st.active[funcIdx] = true
	defer delete(st.active, funcIdx)

	instrs, err := it.instructions(funcIdx)
	if err != nil {
		return err
	}

	body := it.module.BodyOf(funcIdx)
	numLocals := len(args)
	for _, l := range body.Locals {
		numLocals += int(l.Count)
	}
	locals := make([]uint64, numLocals)
	copy(locals, args)

	var stack []uint64
	push := func(v uint64) { stack = append(stack, v) }
	pop := func() (uint64, error) {
		if len(stack) == 0 {
			return 0, errors.New(errors.PhaseInterpret, errors.KindInvalidData).
				WasmName(it.funcName(funcIdx)).
				Detail("value stack underflow").
				Build()
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v, nil
	}

	for _, instr := range instrs {
		st.budget--
		if st.budget < 0 {
			return errors.BudgetExceeded(it.funcName(funcIdx), it.cfg.StepBudget)
		}

		switch instr.Opcode {
		case wasm.OpNop:

		case wasm.OpEnd, wasm.OpReturn:
			// Straight-line code: any end or return finishes the function.
			return nil

		case wasm.OpDrop:
			if _, err := pop(); err != nil {
				return err
			}

		case wasm.OpI32Const:
			push(uint64(uint32(instr.Imm.(wasm.I32Imm).Value)))
		case wasm.OpI64Const:
			push(uint64(instr.Imm.(wasm.I64Imm).Value))
		case wasm.OpF32Const:
			push(uint64(math.Float32bits(instr.Imm.(wasm.F32Imm).Value)))
		case wasm.OpF64Const:
			push(math.Float64bits(instr.Imm.(wasm.F64Imm).Value))

		case wasm.OpLocalGet:
			idx := instr.Imm.(wasm.LocalImm).LocalIdx
			if int(idx) >= len(locals) {
				return errors.OutOfBounds(errors.PhaseInterpret, []string{it.funcName(funcIdx)}, int(idx), len(locals))
			}
			push(locals[idx])
		case wasm.OpLocalSet:
			idx := instr.Imm.(wasm.LocalImm).LocalIdx
			if int(idx) >= len(locals) {
				return errors.OutOfBounds(errors.PhaseInterpret, []string{it.funcName(funcIdx)}, int(idx), len(locals))
			}
			v, err := pop()
			if err != nil {
				return err
			}
			locals[idx] = v
		case wasm.OpLocalTee:
			idx := instr.Imm.(wasm.LocalImm).LocalIdx
			if int(idx) >= len(locals) {
				return errors.OutOfBounds(errors.PhaseInterpret, []string{it.funcName(funcIdx)}, int(idx), len(locals))
			}
			if len(stack) == 0 {
				return errors.New(errors.PhaseInterpret, errors.KindInvalidData).
					WasmName(it.funcName(funcIdx)).
					Detail("value stack underflow").
					Build()
			}
			locals[idx] = stack[len(stack)-1]

		case wasm.OpI32Add, wasm.OpI32Sub, wasm.OpI32Mul,
			wasm.OpI32And, wasm.OpI32Or, wasm.OpI32Xor,
			wasm.OpI32Shl, wasm.OpI32ShrU:
			b, err := pop()
			if err != nil {
				return err
			}
			a, err := pop()
			if err != nil {
				return err
			}
			push(uint64(i32BinOp(instr.Opcode, uint32(a), uint32(b))))

		case wasm.OpI64Add, wasm.OpI64Sub, wasm.OpI64Mul,
			wasm.OpI64And, wasm.OpI64Or, wasm.OpI64Xor,
			wasm.OpI64Shl, wasm.OpI64ShrU:
			b, err := pop()
			if err != nil {
				return err
			}
			a, err := pop()
			if err != nil {
				return err
			}
			push(i64BinOp(instr.Opcode, a, b))

		case wasm.OpCall:
			target := instr.Imm.(wasm.CallImm).FuncIdx

			if target == st.interp.describeIdx {
				v, err := pop()
				if err != nil {
					return err
				}
				st.out = append(st.out, uint32(v))
				continue
			}

			if imp := it.module.FuncImport(target); imp != nil {
				return errors.New(errors.PhaseInterpret, errors.KindUnsupported).
					WasmName(it.funcName(funcIdx)).
					Detail("call to import %s.%s not allowed in descriptor functions", imp.Module, imp.Name).
					Build()
			}

			ft := it.module.GetFuncType(target)
			if ft == nil {
				return errors.NotFound(errors.PhaseInterpret, "function type", it.funcName(target))
			}
			if len(ft.Results) != 0 {
				return errors.New(errors.PhaseInterpret, errors.KindUnsupported).
					WasmName(it.funcName(target)).
					Detail("descriptor helpers must not return values").
					Build()
			}

			args := make([]uint64, len(ft.Params))
			for i := len(args) - 1; i >= 0; i-- {
				args[i], err = pop()
				if err != nil {
					return err
				}
			}
			if err := st.call(target, args, depth+1); err != nil {
				return err
			}

		default:
			return errors.UnsupportedOpcode(it.funcName(funcIdx), instr.Opcode)
		}
	}

	return nil
}

func i32BinOp(op byte, a, b uint32) uint32 {
	switch op {
	case wasm.OpI32Add:
		return a + b
	case wasm.OpI32Sub:
		return a - b
	case wasm.OpI32Mul:
		return a * b
	case wasm.OpI32And:
		return a & b
	case wasm.OpI32Or:
		return a | b
	case wasm.OpI32Xor:
		return a ^ b
	case wasm.OpI32Shl:
		return a << (b & 31)
	case wasm.OpI32ShrU:
		return a >> (b & 31)
	}
	panic("unreachable")
}

func i64BinOp(op byte, a, b uint64) uint64 {
	switch op {
	case wasm.OpI64Add:
		return a + b
	case wasm.OpI64Sub:
		return a - b
	case wasm.OpI64Mul:
		return a * b
	case wasm.OpI64And:
		return a & b
	case wasm.OpI64Or:
		return a | b
	case wasm.OpI64Xor:
		return a ^ b
	case wasm.OpI64Shl:
		return a << (b & 63)
	case wasm.OpI64ShrU:
		return a >> (b & 63)
	}
	panic("unreachable")
}
