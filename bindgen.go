package wasmbindgen

import (
	"context"

	"github.com/wippyai/wasm-bindgen/assemble"
	"github.com/wippyai/wasm-bindgen/jsglue"
	"github.com/wippyai/wasm-bindgen/pipeline"
	"github.com/wippyai/wasm-bindgen/transform"
	"go.uber.org/zap"
)

// Config controls one build. See pipeline.Config for field semantics.
type Config = pipeline.Config

// Result is what a build produces beyond the artifact files.
type Result = pipeline.Result

// Features describes what the target runtime supports natively.
type Features = transform.Features

// Artifacts is the in-memory output set of a build.
type Artifacts = assemble.Artifacts

// Manifest records which runtime support the generated glue uses.
type Manifest = jsglue.Manifest

// Build runs the full pipeline over an annotated module binary.
func Build(ctx context.Context, input []byte, cfg Config) (*Result, error) {
	return pipeline.Build(ctx, input, cfg)
}

// BuildTo runs Build and writes the artifact set into dir.
func BuildTo(ctx context.Context, input []byte, dir string, cfg Config) (*Result, error) {
	return pipeline.BuildTo(ctx, input, dir, cfg)
}

// SetLogger configures logging for every pipeline stage.
func SetLogger(l *zap.Logger) {
	pipeline.SetAllLoggers(l)
}
