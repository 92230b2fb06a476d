package jsglue

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/metadata"
)

// dtsGen collects named descriptor types while rendering signatures so
// each struct or enum is declared once.
type dtsGen struct {
	b       strings.Builder
	decls   strings.Builder
	emitted map[string]bool
}

// generateDTS renders the .d.ts companion for the generated glue.
func generateDTS(reg *metadata.Registry, cfg Config) (string, error) {
	d := &dtsGen{emitted: map[string]bool{}}
	fmt.Fprintf(&d.b, "// Type declarations for %s. Do not edit.\n\n", cfg.ModuleName)

	var fns strings.Builder
	for _, b := range reg.Exports() {
		fn := b.Descriptor
		params := make([]string, len(fn.Params))
		for i, p := range fn.Params {
			params[i] = fmt.Sprintf("arg%d: %s", i, d.tsType(p))
		}
		fmt.Fprintf(&fns, "export function %s(%s): %s;\n",
			jsIdent(b.Name), strings.Join(params, ", "), d.tsType(fn.Ret))
	}

	if d.decls.Len() > 0 {
		d.b.WriteString(d.decls.String())
		d.b.WriteString("\n")
	}
	d.b.WriteString(fns.String())
	d.b.WriteString(`
export type WasmSource = string | URL | Response | BufferSource | WebAssembly.Module;

export function init(source: WasmSource, host?: Record<string, Record<string, Function>>): Promise<WebAssembly.Exports>;
`)
	return d.b.String(), nil
}

func (d *dtsGen) tsType(t descriptor.Type) string {
	switch t.Op {
	case descriptor.OpUnit:
		return "void"
	case descriptor.OpI8, descriptor.OpU8, descriptor.OpI16, descriptor.OpU16,
		descriptor.OpI32, descriptor.OpU32, descriptor.OpF32, descriptor.OpF64:
		return "number"
	case descriptor.OpI64, descriptor.OpU64:
		return "bigint"
	case descriptor.OpBool:
		return "boolean"
	case descriptor.OpChar, descriptor.OpString:
		return "string"
	case descriptor.OpSlice, descriptor.OpVector:
		if ctor := typedArrayCtor(t.Elem.Op); ctor != "" {
			return ctor
		}
		return d.tsType(*t.Elem) + "[]"
	case descriptor.OpOption:
		return d.tsType(*t.Elem) + " | undefined"
	case descriptor.OpResult:
		// The err arm is thrown, not returned.
		return d.tsType(*t.Ok)
	case descriptor.OpStruct:
		d.declareStruct(t)
		return tsIdent(t.Name)
	case descriptor.OpEnum:
		d.declareEnum(t)
		return tsIdent(t.Name)
	case descriptor.OpExtern:
		return "any"
	case descriptor.OpClosure:
		cl := t.Closure
		params := make([]string, len(cl.Params))
		for i, p := range cl.Params {
			params[i] = fmt.Sprintf("arg%d: %s", i, d.tsType(p))
		}
		return fmt.Sprintf("(%s) => %s", strings.Join(params, ", "), d.tsType(cl.Ret))
	}
	return "unknown"
}

func (d *dtsGen) declareStruct(t descriptor.Type) {
	name := tsIdent(t.Name)
	if d.emitted[name] {
		return
	}
	d.emitted[name] = true

	var fields []string
	for _, f := range t.Fields {
		fields = append(fields, fmt.Sprintf("  %s: %s;", jsIdent(f.Name), d.tsType(f.Type)))
	}
	fmt.Fprintf(&d.decls, "export interface %s {\n%s\n}\n", name, strings.Join(fields, "\n"))
}

func (d *dtsGen) declareEnum(t descriptor.Type) {
	name := tsIdent(t.Name)
	if d.emitted[name] {
		return
	}
	d.emitted[name] = true

	var arms []string
	for _, v := range t.Variants {
		if v.Payload == nil {
			arms = append(arms, fmt.Sprintf("{ tag: %q }", v.Name))
		} else {
			arms = append(arms, fmt.Sprintf("{ tag: %q; value: %s }", v.Name, d.tsType(*v.Payload)))
		}
	}
	fmt.Fprintf(&d.decls, "export type %s =\n  | %s;\n", name, strings.Join(arms, "\n  | "))
}

// tsIdent keeps declared type names usable as TS identifiers.
func tsIdent(name string) string {
	id := jsIdent(name)
	if id == "" {
		return "Anonymous"
	}
	return id
}
