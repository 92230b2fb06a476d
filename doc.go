// Package wasmbindgen turns compiler-annotated WebAssembly modules into
// deployable bundles: an adapted wasm binary, JavaScript glue, TypeScript
// declarations, and optionally a WIT interface document.
//
// Input modules carry a "bindgen" custom section describing every
// exported and imported function, plus one descriptor function per
// binding. The pipeline evaluates those descriptors, rewrites the module
// for the target's feature set, generates the host-side marshalling
// code, and strips the descriptor machinery from the final binary.
//
// # Architecture Overview
//
// The library is organized into packages with distinct responsibilities:
//
//	wasmbindgen/     Root package re-exporting the build entry points
//	├── pipeline/    Whole-build orchestration and verification
//	├── wasm/        Core wasm binary decoding, encoding, and rewriting
//	├── descriptor/  Binding type model and descriptor word codec
//	├── interp/      Restricted evaluator for descriptor functions
//	├── metadata/    Custom section codec and binding registry
//	├── externref/   Reference-table adaptation pass
//	├── multivalue/  Multi-value return lowering pass
//	├── threads/     Shared-memory adaptation pass
//	├── transform/   Pass requirement computation and sequencing
//	├── jsglue/      JavaScript and TypeScript glue generation
//	├── witexport/   WIT interface document rendering
//	├── assemble/    Descriptor stripping and artifact output
//	└── errors/      Structured error types for diagnostics
//
// # Quick Start
//
// Build a bundle from an annotated module:
//
//	data, err := os.ReadFile("app.wasm")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	res, err := wasmbindgen.BuildTo(ctx, data, "dist", wasmbindgen.Config{
//	    Name:      "app",
//	    EmitTypes: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("built %d bindings\n", res.Bindings)
//
// The cmd/bindgen tool wraps the same pipeline behind flags and an
// interactive binding inspector.
package wasmbindgen
