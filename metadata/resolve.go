package metadata

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/wasm"
)

// Resolve evaluates every binding's descriptor function and attaches the
// decoded shape. Export bindings are also checked against the wasm
// function type of the export they describe.
func Resolve(m *wasm.Module, reg *Registry, cfg interp.Config) error {
	describeIdx, ok := interp.FindDescribeImport(m)
	if !ok {
		return errors.NotFound(errors.PhaseResolve, "import",
			interp.DescribeModule+"."+interp.DescribeName)
	}

	if cfg.Names == nil {
		cfg.Names = make(map[uint32]string, reg.Len())
		for _, b := range reg.All() {
			cfg.Names[b.DescriptorFunc] = b.Name
		}
	}

	it := interp.New(m, describeIdx, cfg)

	items := reg.All()
	for i := range items {
		b := &items[i]

		words, err := it.Run(b.DescriptorFunc)
		if err != nil {
			return err
		}

		fn, err := descriptor.Decode(words)
		if err != nil {
			return errors.New(errors.PhaseResolve, errors.KindInvalidData).
				WasmName(b.Name).
				Detail("decode descriptor").
				Cause(err).
				Build()
		}
		b.Descriptor = fn

		if b.Kind == KindExport {
			if err := checkExportShape(m, b); err != nil {
				return err
			}
		}
	}

	return nil
}

// checkExportShape verifies the descriptor's flattened arity matches the
// wasm type of the exported function. A mismatch means the metadata and
// the module disagree and any generated glue would corrupt the stack.
func checkExportShape(m *wasm.Module, b *Binding) error {
	exp := m.FindExport(b.Name, wasm.KindFunc)
	if exp == nil {
		return errors.NotFound(errors.PhaseResolve, "exported function", b.Name)
	}
	ft := m.GetFuncType(exp.Idx)
	if ft == nil {
		return errors.NotFound(errors.PhaseResolve, "function type", b.Name)
	}

	wantParams := b.Descriptor.FlatParams()
	wantResults := b.Descriptor.FlatResults()

	if len(ft.Params) != wantParams {
		return errors.TypeMismatch(errors.PhaseResolve, b.Name, fmt.Sprintf(
			"descriptor flattens to %d params, wasm type has %d", wantParams, len(ft.Params)))
	}
	if len(ft.Results) != wantResults {
		return errors.TypeMismatch(errors.PhaseResolve, b.Name, fmt.Sprintf(
			"descriptor flattens to %d results, wasm type has %d", wantResults, len(ft.Results)))
	}
	return nil
}
