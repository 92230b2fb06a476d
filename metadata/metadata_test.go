package metadata_test

import (
	"errors"
	"testing"

	"github.com/wippyai/wasm-bindgen/descriptor"
	bgerrors "github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/wasm"
)

func sampleMetadata() *metadata.Metadata {
	return &metadata.Metadata{
		Bindings: []metadata.Binding{
			{Kind: metadata.KindExport, Name: "greet", DescriptorFunc: 3},
			{
				Kind:           metadata.KindImport,
				Name:           "alert",
				DescriptorFunc: 4,
				HostModule:     "env",
				HostName:       "alert",
			},
		},
		Snippets: []metadata.Snippet{
			{Path: "helpers/log.js", Source: "export function log(x) { console.log(x); }"},
		},
	}
}

func TestCodecRoundTrip(t *testing.T) {
	md := sampleMetadata()

	parsed, err := metadata.Parse(metadata.Encode(md))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if len(parsed.Bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(parsed.Bindings))
	}
	if parsed.Bindings[0].Kind != metadata.KindExport || parsed.Bindings[0].Name != "greet" {
		t.Errorf("export binding lost: %+v", parsed.Bindings[0])
	}
	imp := parsed.Bindings[1]
	if imp.HostModule != "env" || imp.HostName != "alert" || imp.DescriptorFunc != 4 {
		t.Errorf("import binding lost: %+v", imp)
	}
	if len(parsed.Snippets) != 1 || parsed.Snippets[0].Path != "helpers/log.js" {
		t.Errorf("snippet lost: %+v", parsed.Snippets)
	}
}

func TestParseRejectsNewerVersion(t *testing.T) {
	data := metadata.Encode(sampleMetadata())
	data[0] = 9 // bump schema version

	_, err := metadata.Parse(data)
	if err == nil {
		t.Fatal("expected version mismatch")
	}
	if !errors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseParse, Kind: bgerrors.KindVersionMismatch}) {
		t.Errorf("expected version_mismatch kind, got %v", err)
	}
}

func TestParseRejectsOversizedCounts(t *testing.T) {
	// version 1 followed by a binding count no input could satisfy.
	data := []byte{1, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F}
	_, err := metadata.Parse(data)
	if err == nil {
		t.Fatal("expected error for oversized binding count")
	}
	if !errors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseParse, Kind: bgerrors.KindOutOfBounds}) {
		t.Errorf("expected out_of_bounds kind, got %v", err)
	}

	// A valid empty binding list followed by a hostile snippet count.
	data = []byte{1, 0, 0xFF, 0xFF, 0xFF, 0xFF, 0x0F}
	_, err = metadata.Parse(data)
	if err == nil {
		t.Fatal("expected error for oversized snippet count")
	}
	if !errors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseParse, Kind: bgerrors.KindOutOfBounds}) {
		t.Errorf("expected out_of_bounds kind, got %v", err)
	}
}

func TestParseRejectsTrailingBytes(t *testing.T) {
	data := append(metadata.Encode(sampleMetadata()), 0xFF)
	if _, err := metadata.Parse(data); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestFromModule(t *testing.T) {
	m := &wasm.Module{}
	metadata.AttachToModule(m, sampleMetadata())

	md, err := metadata.FromModule(m)
	if err != nil {
		t.Fatalf("FromModule: %v", err)
	}
	if len(md.Bindings) != 2 {
		t.Errorf("expected 2 bindings, got %d", len(md.Bindings))
	}

	// Attaching twice replaces instead of duplicating.
	metadata.AttachToModule(m, md)
	count := 0
	for _, cs := range m.CustomSections {
		if cs.Name == metadata.SectionName {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected 1 bindgen section, got %d", count)
	}
}

func TestFromModuleMissing(t *testing.T) {
	if _, err := metadata.FromModule(&wasm.Module{}); err == nil {
		t.Error("expected error for missing section")
	}
}

func TestRegistryCollision(t *testing.T) {
	reg := metadata.NewRegistry()

	if err := reg.Register(metadata.Binding{Kind: metadata.KindExport, Name: "greet"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	// Same name, different side of the boundary: allowed.
	if err := reg.Register(metadata.Binding{
		Kind: metadata.KindImport, Name: "greet", HostModule: "env", HostName: "greet",
	}); err != nil {
		t.Fatalf("import with same name should not collide: %v", err)
	}

	err := reg.Register(metadata.Binding{Kind: metadata.KindExport, Name: "greet"})
	if err == nil {
		t.Fatal("expected collision error")
	}
	if !errors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseResolve, Kind: bgerrors.KindNameCollision}) {
		t.Errorf("expected name_collision kind, got %v", err)
	}
}

func TestRegistryRenumber(t *testing.T) {
	reg := metadata.NewRegistry()
	reg.Register(metadata.Binding{Kind: metadata.KindExport, Name: "a", DescriptorFunc: 2})
	reg.Register(metadata.Binding{Kind: metadata.KindExport, Name: "b", DescriptorFunc: 3})

	remap := wasm.IdentityRemap()
	remap.Set(2, 7)
	reg.Renumber(remap)

	all := reg.All()
	if all[0].DescriptorFunc != 7 {
		t.Errorf("expected renumbered index 7, got %d", all[0].DescriptorFunc)
	}
	if all[1].DescriptorFunc != 3 {
		t.Errorf("unmapped index should stay 3, got %d", all[1].DescriptorFunc)
	}
}

// resolveModule builds a module with one exported function and its
// descriptor: greet(u32) -> unit.
func resolveModule(t *testing.T) (*wasm.Module, *metadata.Registry) {
	t.Helper()

	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}}, // describe and greet share shape
			{},                                    // descriptor func
		},
		Imports: []wasm.Import{
			{
				Module: interp.DescribeModule,
				Name:   interp.DescribeName,
				Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0},
			},
		},
	}

	// func 1: the real export greet(i32)
	m.AddFunc(0, wasm.FuncBody{Code: []byte{wasm.OpEnd}})
	m.Exports = append(m.Exports, wasm.Export{Name: "greet", Kind: wasm.KindFunc, Idx: 1})

	// func 2: descriptor for fn(u32) -> unit
	words := descriptor.EncodeFunction(&descriptor.Function{
		Params: []descriptor.Type{{Op: descriptor.OpU32}},
		Ret:    descriptor.Type{Op: descriptor.OpUnit},
	})
	var code []byte
	for _, w := range words {
		code = append(code, wasm.OpI32Const, byte(w), wasm.OpCall, 0)
	}
	code = append(code, wasm.OpEnd)
	m.AddFunc(1, wasm.FuncBody{Code: code})

	reg := metadata.NewRegistry()
	if err := reg.Register(metadata.Binding{
		Kind: metadata.KindExport, Name: "greet", DescriptorFunc: 2,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return m, reg
}

func TestResolve(t *testing.T) {
	m, reg := resolveModule(t)

	if err := metadata.Resolve(m, reg, interp.Config{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	b := reg.All()[0]
	if b.Descriptor == nil {
		t.Fatal("descriptor not attached")
	}
	if len(b.Descriptor.Params) != 1 || b.Descriptor.Params[0].Op != descriptor.OpU32 {
		t.Errorf("unexpected descriptor: %v", b.Descriptor)
	}
}

func TestResolveShapeMismatch(t *testing.T) {
	m, reg := resolveModule(t)
	// Break the export's wasm type: greet now takes no params.
	m.Funcs[0] = 1

	err := metadata.Resolve(m, reg, interp.Config{})
	if err == nil {
		t.Fatal("expected shape mismatch")
	}
	if !errors.Is(err, &bgerrors.Error{Phase: bgerrors.PhaseResolve, Kind: bgerrors.KindTypeMismatch}) {
		t.Errorf("expected type_mismatch kind, got %v", err)
	}
}

func TestResolveMissingDescribe(t *testing.T) {
	m, reg := resolveModule(t)
	m.Imports = nil

	if err := metadata.Resolve(m, reg, interp.Config{}); err == nil {
		t.Error("expected error for missing describe import")
	}
}
