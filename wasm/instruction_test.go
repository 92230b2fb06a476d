package wasm_test

import (
	"bytes"
	"testing"

	"github.com/wippyai/wasm-bindgen/wasm"
)

func TestDecodeInstructionsBasic(t *testing.T) {
	code := []byte{
		wasm.OpLocalGet, 0x00,
		wasm.OpI32Const, 0x2A,
		wasm.OpI32Add,
		wasm.OpEnd,
	}

	instrs, err := wasm.DecodeInstructions(code)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}
	if len(instrs) != 4 {
		t.Fatalf("expected 4 instructions, got %d", len(instrs))
	}

	if imm, ok := instrs[0].Imm.(wasm.LocalImm); !ok || imm.LocalIdx != 0 {
		t.Errorf("unexpected local.get immediate: %+v", instrs[0].Imm)
	}
	if imm, ok := instrs[1].Imm.(wasm.I32Imm); !ok || imm.Value != 42 {
		t.Errorf("unexpected i32.const immediate: %+v", instrs[1].Imm)
	}
	if instrs[2].Opcode != wasm.OpI32Add {
		t.Errorf("expected i32.add, got 0x%02x", instrs[2].Opcode)
	}
}

func TestInstructionRoundTrip(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: -64}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -1}},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 7}},
		{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 2, TableIdx: 0}},
		{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 1 << 40}},
		{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: 1.5}},
		{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: -2.25}},
		{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2, Offset: 8}},
		{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: 1}},
		{Opcode: wasm.OpTableGet, Imm: wasm.TableImm{TableIdx: 1}},
		{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: -17}},
		{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 3}},
		{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1}, Default: 2}},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}

	if len(decoded) != len(instrs) {
		t.Fatalf("expected %d instructions, got %d", len(instrs), len(decoded))
	}

	reencoded := wasm.EncodeInstructions(decoded)
	if !bytes.Equal(encoded, reencoded) {
		t.Errorf("re-encoding differs:\n%v\n%v", encoded, reencoded)
	}
}

func TestDecodeMiscInstructions(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscTableGrow, Operands: []uint32{0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}

	imm := decoded[1].Imm.(wasm.MiscImm)
	if imm.SubOpcode != wasm.MiscTableGrow {
		t.Errorf("expected table.grow sub-opcode, got %d", imm.SubOpcode)
	}
}

func TestDecodeAtomicInstructions(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpPrefixAtomic, Imm: wasm.AtomicImm{
			SubOpcode: wasm.AtomicNotify,
			MemArg:    &wasm.MemoryImm{Align: 2, Offset: 0},
		}},
		{Opcode: wasm.OpPrefixAtomic, Imm: wasm.AtomicImm{SubOpcode: wasm.AtomicFence}},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}

	first := decoded[0].Imm.(wasm.AtomicImm)
	if first.MemArg == nil || first.MemArg.Align != 2 {
		t.Errorf("atomic memarg lost: %+v", first)
	}
	second := decoded[1].Imm.(wasm.AtomicImm)
	if second.SubOpcode != wasm.AtomicFence || second.MemArg != nil {
		t.Errorf("unexpected fence immediate: %+v", second)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	_, err := wasm.DecodeInstructions([]byte{0xFD, 0x00}) // SIMD prefix
	if err == nil {
		t.Error("expected error for SIMD opcode")
	}
}

func TestGetCallTarget(t *testing.T) {
	call := wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 5}}
	if idx, ok := call.GetCallTarget(); !ok || idx != 5 {
		t.Errorf("expected call target 5, got %d %v", idx, ok)
	}

	add := wasm.Instruction{Opcode: wasm.OpI32Add}
	if _, ok := add.GetCallTarget(); ok {
		t.Error("i32.add should not report a call target")
	}
}

func TestMultiMemoryMemArg(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2, Offset: 4, MemIdx: 1}},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("DecodeInstructions: %v", err)
	}

	imm := decoded[0].Imm.(wasm.MemoryImm)
	if imm.MemIdx != 1 || imm.Align != 2 || imm.Offset != 4 {
		t.Errorf("multi-memory memarg lost: %+v", imm)
	}
}
