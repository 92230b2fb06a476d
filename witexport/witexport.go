// Package witexport renders the resolved bindings as a WIT world so
// component tooling can consume the module's interface.
//
// Descriptors map onto go.bytecodealliance.org/wit types first; the
// text renderer then walks those. Closures have no WIT equivalent, so
// bindings carrying one are left out of the world.
package witexport

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"go.bytecodealliance.org/wit"
)

// Config names the emitted package and world.
type Config struct {
	// Package is the WIT package directive, e.g. "bindgen:demo".
	// Empty means "bindgen:module".
	Package string

	// World is the world name. Empty means "module".
	World string
}

type exporter struct {
	// declOrder keeps named type declarations in first-use order.
	declOrder []string
	decls     map[string]*wit.TypeDef
}

// Export renders the registry as WIT text.
func Export(reg *metadata.Registry, cfg Config) (string, error) {
	if cfg.Package == "" {
		cfg.Package = "bindgen:module"
	}
	if cfg.World == "" {
		cfg.World = "module"
	}

	e := &exporter{decls: map[string]*wit.TypeDef{}}

	type fn struct {
		name   string
		params []wit.Type
		result wit.Type
	}
	var exports []fn
	byModule := map[string][]fn{}

	for _, b := range reg.All() {
		if b.Descriptor == nil || hasClosure(b.Descriptor) {
			continue
		}
		var f fn
		f.name = kebab(b.Name)
		for _, p := range b.Descriptor.Params {
			t, err := e.mapType(p, false)
			if err != nil {
				return "", err
			}
			f.params = append(f.params, t)
		}
		if b.Descriptor.Ret.Op != descriptor.OpUnit {
			t, err := e.mapType(b.Descriptor.Ret, true)
			if err != nil {
				return "", err
			}
			f.result = t
		}
		if b.Kind == metadata.KindImport {
			byModule[b.HostModule] = append(byModule[b.HostModule], f)
		} else {
			exports = append(exports, f)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "package %s;\n\nworld %s {\n", cfg.Package, cfg.World)

	for _, name := range e.declOrder {
		e.renderDecl(&b, name)
	}
	if len(e.declOrder) > 0 {
		b.WriteString("\n")
	}

	modules := make([]string, 0, len(byModule))
	for name := range byModule {
		modules = append(modules, name)
	}
	sort.Strings(modules)
	for _, mod := range modules {
		fmt.Fprintf(&b, "  import %s: interface {\n", kebab(mod))
		for _, f := range byModule[mod] {
			fmt.Fprintf(&b, "    %s;\n", e.renderFunc(f.name, f.params, f.result))
		}
		b.WriteString("  }\n")
	}

	for _, f := range exports {
		fmt.Fprintf(&b, "  export %s;\n", e.renderFunc(f.name, f.params, f.result))
	}

	b.WriteString("}\n")
	return b.String(), nil
}

func hasClosure(fn *descriptor.Function) bool {
	for _, p := range fn.Params {
		if containsClosure(p) {
			return true
		}
	}
	return containsClosure(fn.Ret)
}

func containsClosure(t descriptor.Type) bool {
	switch t.Op {
	case descriptor.OpClosure:
		return true
	case descriptor.OpSlice, descriptor.OpVector, descriptor.OpOption:
		return containsClosure(*t.Elem)
	case descriptor.OpResult:
		return containsClosure(*t.Ok) || containsClosure(*t.Err)
	case descriptor.OpStruct:
		for _, f := range t.Fields {
			if containsClosure(f.Type) {
				return true
			}
		}
	case descriptor.OpEnum:
		for _, v := range t.Variants {
			if v.Payload != nil && containsClosure(*v.Payload) {
				return true
			}
		}
	}
	return false
}

// mapType builds the wit representation for a descriptor. Externs map
// to resources, borrowed in parameter position and owned in results.
func (e *exporter) mapType(t descriptor.Type, owned bool) (wit.Type, error) {
	switch t.Op {
	case descriptor.OpI8:
		return wit.S8{}, nil
	case descriptor.OpU8:
		return wit.U8{}, nil
	case descriptor.OpI16:
		return wit.S16{}, nil
	case descriptor.OpU16:
		return wit.U16{}, nil
	case descriptor.OpI32:
		return wit.S32{}, nil
	case descriptor.OpU32:
		return wit.U32{}, nil
	case descriptor.OpI64:
		return wit.S64{}, nil
	case descriptor.OpU64:
		return wit.U64{}, nil
	case descriptor.OpF32:
		return wit.F32{}, nil
	case descriptor.OpF64:
		return wit.F64{}, nil
	case descriptor.OpBool:
		return wit.Bool{}, nil
	case descriptor.OpChar:
		return wit.Char{}, nil
	case descriptor.OpString:
		return wit.String{}, nil

	case descriptor.OpSlice, descriptor.OpVector:
		elem, err := e.mapType(*t.Elem, owned)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.List{Type: elem}}, nil

	case descriptor.OpOption:
		elem, err := e.mapType(*t.Elem, owned)
		if err != nil {
			return nil, err
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: elem}}, nil

	case descriptor.OpResult:
		var ok, errT wit.Type
		var err error
		if t.Ok.Op != descriptor.OpUnit {
			if ok, err = e.mapType(*t.Ok, owned); err != nil {
				return nil, err
			}
		}
		if t.Err.Op != descriptor.OpUnit {
			if errT, err = e.mapType(*t.Err, owned); err != nil {
				return nil, err
			}
		}
		return &wit.TypeDef{Kind: &wit.Result{OK: ok, Err: errT}}, nil

	case descriptor.OpStruct:
		return e.declare(t.Name, func() (wit.TypeDefKind, error) {
			var fields []wit.Field
			for _, f := range t.Fields {
				ft, err := e.mapType(f.Type, owned)
				if err != nil {
					return nil, err
				}
				fields = append(fields, wit.Field{Name: kebab(f.Name), Type: ft})
			}
			return &wit.Record{Fields: fields}, nil
		})

	case descriptor.OpEnum:
		return e.declare(t.Name, func() (wit.TypeDefKind, error) {
			plain := true
			for _, v := range t.Variants {
				if v.Payload != nil {
					plain = false
					break
				}
			}
			if plain {
				var cases []wit.EnumCase
				for _, v := range t.Variants {
					cases = append(cases, wit.EnumCase{Name: kebab(v.Name)})
				}
				return &wit.Enum{Cases: cases}, nil
			}
			var cases []wit.Case
			for _, v := range t.Variants {
				c := wit.Case{Name: kebab(v.Name)}
				if v.Payload != nil {
					pt, err := e.mapType(*v.Payload, owned)
					if err != nil {
						return nil, err
					}
					c.Type = pt
				}
				cases = append(cases, c)
			}
			return &wit.Variant{Cases: cases}, nil
		})

	case descriptor.OpExtern:
		res, err := e.declare(t.Name, func() (wit.TypeDefKind, error) {
			return &wit.Resource{}, nil
		})
		if err != nil {
			return nil, err
		}
		def := res.(*wit.TypeDef)
		if owned {
			return &wit.TypeDef{Kind: &wit.Own{Type: def}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Borrow{Type: def}}, nil
	}

	return nil, errors.New(errors.PhaseEmit, errors.KindUnsupported).
		Detail("no WIT mapping for %s", t.String()).
		Build()
}

// declare registers a named typedef once and returns it.
func (e *exporter) declare(name string, build func() (wit.TypeDefKind, error)) (wit.Type, error) {
	id := kebab(name)
	if id == "" {
		id = "anonymous"
	}
	if def, ok := e.decls[id]; ok {
		return def, nil
	}
	// Reserve the slot first so self-references terminate.
	def := &wit.TypeDef{Name: &id}
	e.decls[id] = def
	kind, err := build()
	if err != nil {
		delete(e.decls, id)
		return nil, err
	}
	def.Kind = kind
	e.declOrder = append(e.declOrder, id)
	return def, nil
}

func (e *exporter) renderDecl(b *strings.Builder, name string) {
	def := e.decls[name]
	switch k := def.Kind.(type) {
	case *wit.Record:
		fmt.Fprintf(b, "  record %s {\n", name)
		for _, f := range k.Fields {
			fmt.Fprintf(b, "    %s: %s,\n", f.Name, e.renderType(f.Type))
		}
		b.WriteString("  }\n")
	case *wit.Enum:
		fmt.Fprintf(b, "  enum %s {\n", name)
		for _, c := range k.Cases {
			fmt.Fprintf(b, "    %s,\n", c.Name)
		}
		b.WriteString("  }\n")
	case *wit.Variant:
		fmt.Fprintf(b, "  variant %s {\n", name)
		for _, c := range k.Cases {
			if c.Type == nil {
				fmt.Fprintf(b, "    %s,\n", c.Name)
			} else {
				fmt.Fprintf(b, "    %s(%s),\n", c.Name, e.renderType(c.Type))
			}
		}
		b.WriteString("  }\n")
	case *wit.Resource:
		fmt.Fprintf(b, "  resource %s;\n", name)
	}
}

func (e *exporter) renderFunc(name string, params []wit.Type, result wit.Type) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: func(", name)
	for i, p := range params {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "a%d: %s", i, e.renderType(p))
	}
	b.WriteString(")")
	if result != nil {
		fmt.Fprintf(&b, " -> %s", e.renderType(result))
	}
	return b.String()
}

func (e *exporter) renderType(t wit.Type) string {
	switch v := t.(type) {
	case wit.Bool:
		return "bool"
	case wit.S8:
		return "s8"
	case wit.U8:
		return "u8"
	case wit.S16:
		return "s16"
	case wit.U16:
		return "u16"
	case wit.S32:
		return "s32"
	case wit.U32:
		return "u32"
	case wit.S64:
		return "s64"
	case wit.U64:
		return "u64"
	case wit.F32:
		return "f32"
	case wit.F64:
		return "f64"
	case wit.Char:
		return "char"
	case wit.String:
		return "string"
	case *wit.TypeDef:
		if v.Name != nil {
			return *v.Name
		}
		switch k := v.Kind.(type) {
		case *wit.List:
			return fmt.Sprintf("list<%s>", e.renderType(k.Type))
		case *wit.Option:
			return fmt.Sprintf("option<%s>", e.renderType(k.Type))
		case *wit.Result:
			switch {
			case k.OK == nil && k.Err == nil:
				return "result"
			case k.Err == nil:
				return fmt.Sprintf("result<%s>", e.renderType(k.OK))
			case k.OK == nil:
				return fmt.Sprintf("result<_, %s>", e.renderType(k.Err))
			default:
				return fmt.Sprintf("result<%s, %s>", e.renderType(k.OK), e.renderType(k.Err))
			}
		case *wit.Own:
			return fmt.Sprintf("own<%s>", e.renderType(k.Type))
		case *wit.Borrow:
			return fmt.Sprintf("borrow<%s>", e.renderType(k.Type))
		}
	}
	return "unknown"
}

// kebab converts binding and field names to WIT identifier style.
func kebab(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(unicode.ToLower(r))
		case r == '_':
			b.WriteByte('-')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
