package jsglue_test

import (
	"strings"
	"testing"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/jsglue"
	"github.com/wippyai/wasm-bindgen/metadata"
)

func u32() descriptor.Type    { return descriptor.Type{Op: descriptor.OpU32} }
func str() descriptor.Type    { return descriptor.Type{Op: descriptor.OpString} }
func unit() descriptor.Type   { return descriptor.Type{Op: descriptor.OpUnit} }
func ptrTo(t descriptor.Type) *descriptor.Type { return &t }

func register(t *testing.T, reg *metadata.Registry, b metadata.Binding) {
	t.Helper()
	if err := reg.Register(b); err != nil {
		t.Fatalf("Register(%s): %v", b.Name, err)
	}
}

func sampleRegistry(t *testing.T) *metadata.Registry {
	t.Helper()
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "add",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{u32(), u32()},
			Ret:    u32(),
		},
	})
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "greet",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{str()},
			Ret: descriptor.Type{
				Op:   descriptor.OpStruct,
				Name: "Greeting",
				Fields: []descriptor.Field{
					{Name: "text", Type: str()},
					{Name: "count", Type: u32()},
				},
			},
		},
	})
	register(t, reg, metadata.Binding{
		Kind:       metadata.KindImport,
		Name:       "log",
		HostModule: "env",
		HostName:   "log",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{str()},
			Ret:    unit(),
		},
	})
	return reg
}

func TestGenerateExportTrampolines(t *testing.T) {
	out, err := jsglue.Generate(sampleRegistry(t), jsglue.Config{ModuleName: "demo"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"export function add(arg0, arg1)",
		"export function greet(arg0)",
		"passString(arg0)",
		// greet returns three flat values, so the call goes through a
		// scratch return pointer.
		`wasm["__bindgen_malloc"](24)`,
		`wasm["__bindgen_free"](retptr, 24)`,
		"export async function init(source, host)",
		"if (wasm.__bindgen_start)",
	} {
		if !strings.Contains(out.JS, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}

	if !out.Manifest.StringCodec || !out.Manifest.MemoryViews || !out.Manifest.RetPtr {
		t.Errorf("manifest missing expected features: %+v", out.Manifest)
	}
	if out.Manifest.HeapTable || out.Manifest.ClosureTable {
		t.Errorf("manifest has features no binding uses: %+v", out.Manifest)
	}
}

func TestGenerateImportShims(t *testing.T) {
	out, err := jsglue.Generate(sampleRegistry(t), jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		`imports["env"] = {};`,
		`imports["env"]["log"] = function(a0_0, a0_1)`,
		"liftString(a0_0, a0_1)",
		`host["env"]["log"](`,
	} {
		if !strings.Contains(out.JS, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}
}

func TestGenerateOmitsUnusedRuntime(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "add",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{u32(), u32()},
			Ret:    u32(),
		},
	})

	out, err := jsglue.Generate(reg, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, absent := range []string{"TextEncoder", "const heap", "const closures", "getDataView"} {
		if strings.Contains(out.JS, absent) {
			t.Errorf("unused runtime support %q reached the output", absent)
		}
	}
}

func TestGenerateClosureSupport(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "on_tick",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{{
				Op: descriptor.OpClosure,
				Closure: &descriptor.Closure{
					Params: []descriptor.Type{u32()},
					Ret:    descriptor.Type{Op: descriptor.OpBool},
				},
			}},
			Ret: unit(),
		},
	})
	register(t, reg, metadata.Binding{
		Kind:       metadata.KindImport,
		Name:       "subscribe",
		HostModule: "env",
		HostName:   "subscribe",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{{
				Op: descriptor.OpClosure,
				Closure: &descriptor.Closure{
					Params: []descriptor.Type{u32()},
					Ret:    descriptor.Type{Op: descriptor.OpBool},
				},
			}},
			Ret: unit(),
		},
	})

	out, err := jsglue.Generate(reg, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		// Host closures handed to the guest live in the closure table.
		"closureAdd(arg0, false)",
		"imports['__bindgen'].closure_drop",
		"imports['__bindgen'].closure_invoke_1_r1",
		// Guest closures handed to the host call back through the
		// function table.
		"guestClosure(a0_0, a0_1, false)",
		"closure can only be called once",
	} {
		if !strings.Contains(out.JS, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}
	if !out.Manifest.ClosureTable || !out.Manifest.FunctionTable {
		t.Errorf("manifest missing closure features: %+v", out.Manifest)
	}
}

func TestGenerateExternHeapModes(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind:       metadata.KindImport,
		Name:       "show",
		HostModule: "env",
		HostName:   "show",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{{Op: descriptor.OpExtern, Name: "Node"}},
			Ret:    unit(),
		},
	})

	slots, err := jsglue.Generate(reg, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !slots.Manifest.HeapTable {
		t.Error("slot mode should use the heap table")
	}
	if !strings.Contains(slots.JS, "heapGet(a0_0)") {
		t.Error("slot mode should lift externs out of the heap")
	}

	refs, err := jsglue.Generate(reg, jsglue.Config{ReferenceTypes: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if refs.Manifest.HeapTable {
		t.Error("reference types should keep top-level import externs off the heap")
	}
	if strings.Contains(refs.JS, "heapGet") {
		t.Error("reference types should pass externs through directly")
	}
}

func TestGenerateOptionAndResult(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "find",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{{Op: descriptor.OpOption, Elem: ptrTo(str())}},
			Ret: descriptor.Type{
				Op:  descriptor.OpResult,
				Ok:  ptrTo(str()),
				Err: ptrTo(u32()),
			},
		},
	})

	out, err := jsglue.Generate(reg, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"isLikeNone(arg0) ? 0 : passString(arg0)",
		"=== 0 ? ",
		"throw",
	} {
		if !strings.Contains(out.JS, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}
}

func TestGenerateRejectsUnsupportedShape(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind: metadata.KindExport,
		Name: "weird",
		Descriptor: &descriptor.Function{
			Params: []descriptor.Type{{
				Op: descriptor.OpSlice,
				Elem: ptrTo(descriptor.Type{
					Op:   descriptor.OpStruct,
					Name: "Inner",
					Fields: []descriptor.Field{
						{Name: "x", Type: u32()},
					},
				}),
			}},
			Ret: unit(),
		},
	})

	_, err := jsglue.Generate(reg, jsglue.Config{})
	if err == nil {
		t.Fatal("slice of struct has no marshalling rule and must fail")
	}
	if !strings.Contains(err.Error(), "no marshalling rule") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestGenerateMultiValueTarget(t *testing.T) {
	out, err := jsglue.Generate(sampleRegistry(t), jsglue.Config{MultiValue: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// greet's three flat results come back as an array, not through a
	// scratch return pointer.
	if out.Manifest.RetPtr {
		t.Errorf("multi-value target must not use the return pointer: %+v", out.Manifest)
	}
	for _, absent := range []string{"retptr", `wasm["__bindgen_malloc"](24)`} {
		if strings.Contains(out.JS, absent) {
			t.Errorf("multi-value glue should not contain %q", absent)
		}
	}
	for _, want := range []string{
		`wasm["greet"](`,
		"[2] >>> 0",
	} {
		if !strings.Contains(out.JS, want) {
			t.Errorf("generated JS missing %q", want)
		}
	}
}

func TestGenerateMultiValueImportReturn(t *testing.T) {
	reg := metadata.NewRegistry()
	register(t, reg, metadata.Binding{
		Kind:       metadata.KindImport,
		Name:       "fetch_name",
		HostModule: "env",
		HostName:   "fetch_name",
		Descriptor: &descriptor.Function{Ret: str()},
	})

	if _, err := jsglue.Generate(reg, jsglue.Config{}); err == nil {
		t.Fatal("two-flat import return needs a multi-value target")
	}

	out, err := jsglue.Generate(reg, jsglue.Config{MultiValue: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out.JS, "return [") {
		t.Error("import shim should return the flat values as an array")
	}
}

func TestGenerateClosureTablesByDirection(t *testing.T) {
	tick := descriptor.Type{
		Op: descriptor.OpClosure,
		Closure: &descriptor.Closure{
			Params: []descriptor.Type{u32()},
			Ret:    unit(),
		},
	}

	hostSide := metadata.NewRegistry()
	register(t, hostSide, metadata.Binding{
		Kind:       metadata.KindImport,
		Name:       "subscribe",
		HostModule: "env",
		HostName:   "subscribe",
		Descriptor: &descriptor.Function{Params: []descriptor.Type{tick}, Ret: unit()},
	})
	out, err := jsglue.Generate(hostSide, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if out.Manifest.ClosureTable || !out.Manifest.FunctionTable {
		t.Errorf("guest closures only need the function table: %+v", out.Manifest)
	}
	for _, absent := range []string{"closureAdd", "closure_drop"} {
		if strings.Contains(out.JS, absent) {
			t.Errorf("import-only closures should not emit %q", absent)
		}
	}

	guestSide := metadata.NewRegistry()
	register(t, guestSide, metadata.Binding{
		Kind:       metadata.KindExport,
		Name:       "on_tick",
		Descriptor: &descriptor.Function{Params: []descriptor.Type{tick}, Ret: unit()},
	})
	out, err = jsglue.Generate(guestSide, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !out.Manifest.ClosureTable || out.Manifest.FunctionTable {
		t.Errorf("host closures only need the closure table: %+v", out.Manifest)
	}
	if strings.Contains(out.JS, "guestClosure") {
		t.Error("export-only closures should not emit guestClosure")
	}
}

func TestGenerateDTS(t *testing.T) {
	out, err := jsglue.Generate(sampleRegistry(t), jsglue.Config{ModuleName: "demo"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	for _, want := range []string{
		"export interface Greeting {",
		"text: string;",
		"count: number;",
		"export function add(arg0: number, arg1: number): number;",
		"export function greet(arg0: string): Greeting;",
		"export function init(",
	} {
		if !strings.Contains(out.DTS, want) {
			t.Errorf("generated d.ts missing %q", want)
		}
	}
}

func TestGenerateSnippetImports(t *testing.T) {
	reg := sampleRegistry(t)
	reg.SetSnippets([]metadata.Snippet{{Path: "helpers.js", Source: "export const x = 1;\n"}})

	out, err := jsglue.Generate(reg, jsglue.Config{})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.Contains(out.JS, "import './snippets/helpers.js';") {
		t.Error("snippet import missing from the glue header")
	}
}
