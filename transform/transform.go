// Package transform sequences the ABI adapter passes over a module.
//
// Which passes run depends on what the bindings need and what the target
// runtime supports. Reference handling moves into the module only when
// the target has reference types; multi-value returns are lowered to
// return pointers only when the target lacks multi-value; threading
// support is opt-in. Passes run in a fixed order and each one reports an
// index remap that is applied to the binding registry before the next
// pass sees it.
package transform

import (
	"fmt"

	"github.com/wippyai/wasm-bindgen/externref"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/multivalue"
	"github.com/wippyai/wasm-bindgen/threads"
	"github.com/wippyai/wasm-bindgen/wasm"
	"go.uber.org/zap"
)

// Pass identifies one adapter pass.
type Pass string

const (
	PassExternRef  Pass = "externref"
	PassMultiValue Pass = "multivalue"
	PassThreads    Pass = "threads"
)

// Features describes what the target runtime supports natively.
type Features struct {
	// ReferenceTypes enables the in-module externref table. Without it
	// the generated glue keeps JS values in its own heap table.
	ReferenceTypes bool

	// MultiValue means the target can return multiple values directly,
	// so no return-pointer lowering is needed.
	MultiValue bool

	// Multithreading requests shared memory and per-thread init hooks.
	Multithreading bool
}

// Config carries the target features and per-pass settings.
type Config struct {
	Features   Features
	ExternRef  externref.Config
	MultiValue multivalue.Config
	Threads    threads.Config
}

// Requirements computes which passes the bindings and target demand, in
// execution order.
func Requirements(reg *metadata.Registry, f Features) []Pass {
	var passes []Pass
	if f.ReferenceTypes && externref.Required(reg) {
		passes = append(passes, PassExternRef)
	}
	if !f.MultiValue && multivalue.Required(reg) {
		passes = append(passes, PassMultiValue)
	}
	if f.Multithreading {
		passes = append(passes, PassThreads)
	}
	return passes
}

// Apply runs the required passes over the module in order, renumbering
// the registry's descriptor references after each one. The returned
// remap is the composition of every pass's remap.
func (cfg Config) Apply(m *wasm.Module, reg *metadata.Registry) (wasm.Remap, error) {
	total := wasm.IdentityRemap()
	passes := Requirements(reg, cfg.Features)

	Logger().Debug("computed adapter requirements",
		zap.Int("bindings", reg.Len()),
		zap.Any("passes", passes))

	for _, pass := range passes {
		var (
			remap wasm.Remap
			err   error
		)
		switch pass {
		case PassExternRef:
			remap, err = cfg.ExternRef.Transform(m, reg)
		case PassMultiValue:
			remap, err = cfg.MultiValue.Transform(m, reg)
		case PassThreads:
			remap, err = cfg.Threads.Transform(m)
		}
		if err != nil {
			return total, fmt.Errorf("%s pass: %w", pass, err)
		}

		reg.Renumber(remap)
		total = total.Compose(remap)

		Logger().Debug("applied adapter pass",
			zap.String("pass", string(pass)),
			zap.Int("funcs", m.NumFuncs()))
	}

	return total, nil
}
