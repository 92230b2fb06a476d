package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/wippyai/wasm-bindgen/descriptor"
	bgerrors "github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/multivalue"
	"github.com/wippyai/wasm-bindgen/pipeline"
	"github.com/wippyai/wasm-bindgen/transform"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// descBody emits a descriptor function body that reports the given
// shape one describe call per word.
func descBody(fn *descriptor.Function) []byte {
	var instrs []wasm.Instruction
	for _, w := range descriptor.EncodeFunction(fn) {
		instrs = append(instrs,
			wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: int32(w)}},
			wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		)
	}
	instrs = append(instrs, wasm.Instruction{Opcode: wasm.OpEnd})
	return wasm.EncodeInstructions(instrs)
}

// annotatedInput builds a complete compiler-style input: two exported
// functions, their descriptor functions, the allocator pair, and the
// bindgen section. make_pair returns a struct, so a default-feature
// build has to run the multivalue pass.
func annotatedInput(t *testing.T) []byte {
	t.Helper()

	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}},                                           // describe
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}, // add, also malloc-free shapes below
			{},                                          // descriptors
			{Results: []wasm.ValType{wasm.ValI32, wasm.ValI32}}, // make_pair
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}, // malloc
			{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}},                          // free
		},
		Imports: []wasm.Import{
			{
				Module: interp.DescribeModule,
				Name:   interp.DescribeName,
				Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0},
			},
		},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
	}

	add := m.AddFunc(1, wasm.FuncBody{Code: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 1,
		wasm.OpI32Add,
		wasm.OpEnd,
	}})
	pair := m.AddFunc(3, wasm.FuncBody{Code: []byte{
		wasm.OpI32Const, 1,
		wasm.OpI32Const, 2,
		wasm.OpEnd,
	}})
	malloc := m.AddFunc(4, wasm.FuncBody{Code: []byte{wasm.OpLocalGet, 0, wasm.OpEnd}})
	free := m.AddFunc(5, wasm.FuncBody{Code: []byte{wasm.OpEnd}})

	u32 := descriptor.Type{Op: descriptor.OpU32}
	descAdd := m.AddFunc(2, wasm.FuncBody{Code: descBody(&descriptor.Function{
		Params: []descriptor.Type{u32, u32},
		Ret:    u32,
	})})
	descPair := m.AddFunc(2, wasm.FuncBody{Code: descBody(&descriptor.Function{
		Ret: descriptor.Type{
			Op:   descriptor.OpStruct,
			Name: "Pair",
			Fields: []descriptor.Field{
				{Name: "a", Type: u32},
				{Name: "b", Type: u32},
			},
		},
	})})

	m.Exports = append(m.Exports,
		wasm.Export{Name: "add", Kind: wasm.KindFunc, Idx: add},
		wasm.Export{Name: "make_pair", Kind: wasm.KindFunc, Idx: pair},
		wasm.Export{Name: multivalue.DefaultMalloc, Kind: wasm.KindFunc, Idx: malloc},
		wasm.Export{Name: multivalue.DefaultFree, Kind: wasm.KindFunc, Idx: free},
	)

	metadata.AttachToModule(m, &metadata.Metadata{
		Bindings: []metadata.Binding{
			{Kind: metadata.KindExport, Name: "add", DescriptorFunc: descAdd},
			{Kind: metadata.KindExport, Name: "make_pair", DescriptorFunc: descPair},
		},
	})
	return m.MustEncode()
}

func TestBuildEndToEnd(t *testing.T) {
	res, err := pipeline.Build(context.Background(), annotatedInput(t), pipeline.Config{
		Name:      "demo",
		EmitTypes: true,
		Verify:    true,
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if res.Bindings != 2 {
		t.Errorf("bindings = %d, want 2", res.Bindings)
	}
	if len(res.Passes) != 1 || res.Passes[0] != transform.PassMultiValue {
		t.Errorf("passes = %v, want [multivalue]", res.Passes)
	}
	if !res.Manifest.RetPtr || !res.Manifest.MemoryViews {
		t.Errorf("manifest = %+v, want retptr + memory views", res.Manifest)
	}
	if res.Manifest.StringCodec || res.Manifest.HeapTable {
		t.Errorf("manifest = %+v, unexpected runtime support", res.Manifest)
	}

	js := res.Artifacts.JS
	for _, want := range []string{"export function add", "export function make_pair", "export async function init"} {
		if !strings.Contains(js, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}
	if !strings.Contains(res.Artifacts.DTS, "make_pair") {
		t.Error("declarations missing make_pair")
	}

	final, err := wasm.ParseModule(res.Artifacts.Wasm)
	if err != nil {
		t.Fatalf("final module does not parse: %v", err)
	}
	if _, ok := final.CustomSectionData(metadata.SectionName); ok {
		t.Error("bindgen section survived the build")
	}
	for _, imp := range final.Imports {
		if imp.Module == interp.DescribeModule {
			t.Error("describe import survived the build")
		}
	}

	// make_pair now takes a return pointer and returns nothing.
	exp := final.FindExport("make_pair", wasm.KindFunc)
	if exp == nil {
		t.Fatal("make_pair export lost")
	}
	ft := final.GetFuncType(exp.Idx)
	if ft == nil {
		t.Fatal("make_pair has no type")
	}
	if len(ft.Params) != 1 || len(ft.Results) != 0 {
		t.Errorf("make_pair type = %v, want (i32) -> ()", ft)
	}
}

func TestBuildMultiValueTarget(t *testing.T) {
	res, err := pipeline.Build(context.Background(), annotatedInput(t), pipeline.Config{
		Name:     "demo",
		Features: transform.Features{MultiValue: true},
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	// The lowering pass is skipped and the glue must follow suit.
	if len(res.Passes) != 0 {
		t.Errorf("passes = %v, want none", res.Passes)
	}
	if res.Manifest.RetPtr {
		t.Errorf("manifest = %+v, multi-value target must not use the return pointer", res.Manifest)
	}
	if strings.Contains(res.Artifacts.JS, "retptr") {
		t.Error("glue still reads results through a scratch pointer")
	}
	if !strings.Contains(res.Artifacts.JS, `wasm["make_pair"]()`) {
		t.Error("glue should call make_pair with no arguments")
	}

	// make_pair keeps its two direct results.
	final, err := wasm.ParseModule(res.Artifacts.Wasm)
	if err != nil {
		t.Fatalf("final module does not parse: %v", err)
	}
	exp := final.FindExport("make_pair", wasm.KindFunc)
	if exp == nil {
		t.Fatal("make_pair export lost")
	}
	ft := final.GetFuncType(exp.Idx)
	if ft == nil {
		t.Fatal("make_pair has no type")
	}
	if len(ft.Params) != 0 || len(ft.Results) != 2 {
		t.Errorf("make_pair type = %v, want () -> (i32, i32)", ft)
	}
}

func TestBuildEmitWIT(t *testing.T) {
	res, err := pipeline.Build(context.Background(), annotatedInput(t), pipeline.Config{
		Name:       "demo",
		EmitWIT:    true,
		WITPackage: "bindgen:demo",
		WITWorld:   "demo",
	})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wit := res.Artifacts.WIT
	for _, want := range []string{"package bindgen:demo;", "world demo {", "record pair {", "export make-pair:"} {
		if !strings.Contains(wit, want) {
			t.Errorf("WIT missing %q in:\n%s", want, wit)
		}
	}
}

func TestBuildToWritesArtifacts(t *testing.T) {
	dir := t.TempDir()
	if _, err := pipeline.BuildTo(context.Background(), annotatedInput(t), dir, pipeline.Config{
		Name:      "demo",
		EmitTypes: true,
	}); err != nil {
		t.Fatalf("BuildTo: %v", err)
	}

	for _, rel := range []string{"demo_bg.wasm", "demo.js", "demo.d.ts"} {
		if _, err := os.Stat(filepath.Join(dir, rel)); err != nil {
			t.Errorf("missing %s: %v", rel, err)
		}
	}
}

func TestBuildRejectsUnannotatedModule(t *testing.T) {
	m := &wasm.Module{
		Types: []wasm.FuncType{{}},
	}
	m.AddFunc(0, wasm.FuncBody{Code: []byte{wasm.OpEnd}})

	_, err := pipeline.Build(context.Background(), m.MustEncode(), pipeline.Config{})
	if err == nil {
		t.Fatal("expected error for module without binding metadata")
	}
	if !bgerrors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseParse, Kind: bgerrors.KindNotFound}) {
		t.Errorf("expected parse/not_found, got %v", err)
	}
}
