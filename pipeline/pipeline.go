// Package pipeline runs the whole build: parse the annotated module,
// resolve its bindings, adapt the ABI, generate glue, and assemble the
// output set.
package pipeline

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/wippyai/wasm-bindgen/assemble"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/interp"
	"github.com/wippyai/wasm-bindgen/jsglue"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/threads"
	"github.com/wippyai/wasm-bindgen/transform"
	"github.com/wippyai/wasm-bindgen/wasm"
	"github.com/wippyai/wasm-bindgen/witexport"
	"go.uber.org/zap"
)

// Config controls one build.
type Config struct {
	// Name is the artifact base name. Empty means "module".
	Name string

	// Features describes what the target runtime supports natively.
	Features transform.Features

	// Threads carries the shared-memory import location when the
	// threads pass runs.
	Threads threads.Config

	// Interp overrides descriptor evaluation bounds. Usually zero.
	Interp interp.Config

	// EmitTypes includes a .d.ts declaration file in the output.
	EmitTypes bool

	// EmitWIT includes a .wit interface document in the output.
	EmitWIT bool

	// WITPackage and WITWorld name the exported interface document.
	// Empty means the witexport defaults.
	WITPackage string
	WITWorld   string

	// Verify compiles the final module under wazero so a broken
	// rewrite fails the build instead of the consumer's runtime.
	Verify bool
}

// Result is everything a build produces beyond the artifact files.
type Result struct {
	Artifacts *assemble.Artifacts
	Manifest  jsglue.Manifest
	Passes    []transform.Pass
	Bindings  int
}

// Build runs the full pipeline over an annotated module binary.
func Build(ctx context.Context, input []byte, cfg Config) (*Result, error) {
	if cfg.Name == "" {
		cfg.Name = "module"
	}

	m, err := wasm.ParseModule(input)
	if err != nil {
		return nil, err
	}

	md, err := metadata.FromModule(m)
	if err != nil {
		return nil, err
	}
	reg, err := metadata.FromMetadata(md)
	if err != nil {
		return nil, err
	}
	if err := metadata.Resolve(m, reg, cfg.Interp); err != nil {
		return nil, err
	}
	Logger().Info("bindings resolved",
		zap.String("name", cfg.Name),
		zap.Int("exports", len(reg.Exports())),
		zap.Int("imports", len(reg.Imports())),
		zap.Int("snippets", len(reg.Snippets())))

	passes := transform.Requirements(reg, cfg.Features)
	tc := transform.Config{Features: cfg.Features, Threads: cfg.Threads}
	if _, err := tc.Apply(m, reg); err != nil {
		return nil, err
	}

	glue, err := jsglue.Generate(reg, jsglue.Config{
		ModuleName:     cfg.Name,
		ReferenceTypes: cfg.Features.ReferenceTypes,
		MultiValue:     cfg.Features.MultiValue,
		Multithreading: cfg.Features.Multithreading,
	})
	if err != nil {
		return nil, err
	}

	dts := ""
	if cfg.EmitTypes {
		dts = glue.DTS
	}

	wit := ""
	if cfg.EmitWIT {
		wit, err = witexport.Export(reg, witexport.Config{
			Package: cfg.WITPackage,
			World:   cfg.WITWorld,
		})
		if err != nil {
			return nil, err
		}
	}

	arts, err := assemble.Finalize(m, cfg.Name, glue.JS, dts, wit, reg.Snippets())
	if err != nil {
		return nil, err
	}

	if cfg.Verify {
		if err := verify(ctx, arts.Wasm, cfg.Features); err != nil {
			return nil, err
		}
	}

	return &Result{
		Artifacts: arts,
		Manifest:  glue.Manifest,
		Passes:    passes,
		Bindings:  reg.Len(),
	}, nil
}

// BuildTo runs Build and writes the artifact set into dir.
func BuildTo(ctx context.Context, input []byte, dir string, cfg Config) (*Result, error) {
	res, err := Build(ctx, input, cfg)
	if err != nil {
		return nil, err
	}
	if err := res.Artifacts.Write(dir); err != nil {
		return nil, err
	}
	return res, nil
}

// verify compiles the final module under a real engine. Transform bugs
// that produce structurally valid but uncompilable code surface here.
func verify(ctx context.Context, encoded []byte, f transform.Features) error {
	features := api.CoreFeaturesV2
	if f.Multithreading {
		features |= experimental.CoreFeaturesThreads
	}
	rt := wazero.NewRuntimeWithConfig(ctx,
		wazero.NewRuntimeConfig().WithCoreFeatures(features))
	defer rt.Close(ctx)

	compiled, err := rt.CompileModule(ctx, encoded)
	if err != nil {
		return errors.New(errors.PhaseVerify, errors.KindInvalidData).
			Detail("final module rejected by engine").
			Cause(err).
			Build()
	}
	return compiled.Close(ctx)
}
