// Package jsglue emits the JavaScript module that marshals values
// between a host environment and the adapted wasm module, plus a
// TypeScript declaration file describing the generated surface.
//
// Generation is read-only over the module: the output is text plus a
// manifest of which runtime support features the bindings actually use,
// so unused support code never reaches the output.
package jsglue

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
	"github.com/wippyai/wasm-bindgen/metadata"
	"github.com/wippyai/wasm-bindgen/multivalue"
	"go.uber.org/zap"
)

// Config controls code generation.
type Config struct {
	// ModuleName appears in the generated header and defaults the
	// output file names. Empty means "module".
	ModuleName string

	// ReferenceTypes means top-level JS values cross import boundaries
	// as externref and need no heap slots there.
	ReferenceTypes bool

	// MultiValue means the target returns multiple values directly, so
	// trampolines destructure the result array instead of reading a
	// scratch return pointer.
	MultiValue bool

	// Multithreading adds the shared-memory init calls to the loader.
	Multithreading bool

	// Malloc and Free name the guest allocator exports. Empty means
	// the defaults the multivalue pass also uses.
	Malloc string
	Free   string
}

// Manifest records which runtime support features the generated code
// depends on.
type Manifest struct {
	StringCodec   bool
	MemoryViews   bool
	HeapTable     bool
	ClosureTable  bool
	RetPtr        bool
	FunctionTable bool
}

// Output is the generated artifact pair plus its feature manifest.
type Output struct {
	JS       string
	DTS      string
	Manifest Manifest
}

// retPtrStride is the byte distance between scratch return slots,
// matching the multivalue pass layout.
const retPtrStride = multivalue.Stride

type generator struct {
	cfg Config
	reg *metadata.Registry
	man Manifest
	b   strings.Builder
	tmp int
}

// Generate produces the glue module for the registry's bindings. Every
// binding must be resolved; a descriptor shape with no marshalling rule
// is a hard error.
func Generate(reg *metadata.Registry, cfg Config) (*Output, error) {
	if cfg.ModuleName == "" {
		cfg.ModuleName = "module"
	}
	if cfg.Malloc == "" {
		cfg.Malloc = multivalue.DefaultMalloc
	}
	if cfg.Free == "" {
		cfg.Free = multivalue.DefaultFree
	}

	g := &generator{cfg: cfg, reg: reg}
	if err := g.computeManifest(); err != nil {
		return nil, err
	}

	Logger().Debug("computed runtime manifest",
		zap.String("module", cfg.ModuleName),
		zap.Bool("strings", g.man.StringCodec),
		zap.Bool("heap", g.man.HeapTable),
		zap.Bool("closures", g.man.ClosureTable),
		zap.Bool("retptr", g.man.RetPtr))

	g.writeHeader()
	g.writeRuntime()
	if err := g.writeImports(); err != nil {
		return nil, err
	}
	if err := g.writeExports(); err != nil {
		return nil, err
	}
	g.writeLoader()

	dts, err := generateDTS(reg, cfg)
	if err != nil {
		return nil, err
	}

	return &Output{JS: g.b.String(), DTS: dts, Manifest: g.man}, nil
}

// computeManifest walks every binding's descriptors and records which
// support features the marshalling code will reach for.
func (g *generator) computeManifest() error {
	for _, b := range g.reg.All() {
		if b.Descriptor == nil {
			return errors.New(errors.PhaseCodegen, errors.KindNotFound).
				JSName(b.Name).
				Detail("binding has no resolved descriptor").
				Build()
		}
		// Params are lowered on exports and lifted on imports; returns
		// go the other way. Closures only need the table matching the
		// direction they cross in.
		for i, p := range b.Descriptor.Params {
			g.scanType(p, b.Kind == metadata.KindImport && topLevel(b.Descriptor, i),
				b.Kind == metadata.KindExport)
		}
		g.scanType(b.Descriptor.Ret, b.Kind == metadata.KindImport,
			b.Kind == metadata.KindImport)
		if b.Kind == metadata.KindExport && b.Descriptor.FlatResults() > 1 && !g.cfg.MultiValue {
			g.man.RetPtr = true
			g.man.MemoryViews = true
		}
	}
	return nil
}

// topLevel reports whether parameter i is a bare extern, the case the
// externref pass retypes on imports.
func topLevel(fn *descriptor.Function, i int) bool {
	return fn.Params[i].Op == descriptor.OpExtern
}

func (g *generator) scanType(t descriptor.Type, importTop, lowered bool) {
	switch t.Op {
	case descriptor.OpString:
		g.man.StringCodec = true
		g.man.MemoryViews = true
	case descriptor.OpSlice, descriptor.OpVector:
		g.man.MemoryViews = true
		g.scanType(*t.Elem, false, lowered)
	case descriptor.OpOption:
		g.scanType(*t.Elem, importTop && t.Elem.Op == descriptor.OpExtern, lowered)
	case descriptor.OpResult:
		g.scanType(*t.Ok, false, lowered)
		g.scanType(*t.Err, false, lowered)
	case descriptor.OpStruct:
		for _, f := range t.Fields {
			g.scanType(f.Type, false, lowered)
		}
	case descriptor.OpEnum:
		for _, v := range t.Variants {
			if v.Payload != nil {
				g.scanType(*v.Payload, false, lowered)
			}
		}
	case descriptor.OpExtern:
		// With reference types the value crosses an import boundary
		// directly; everywhere else it needs a heap slot.
		if !(g.cfg.ReferenceTypes && importTop) {
			g.man.HeapTable = true
		}
	case descriptor.OpClosure:
		// Host closures crossing into the guest live in the closure
		// table; guest closures crossing out wrap a function-table
		// entry.
		if lowered {
			g.man.ClosureTable = true
		} else {
			g.man.FunctionTable = true
		}
	}
}

func (g *generator) nextTmp(prefix string) string {
	g.tmp++
	return fmt.Sprintf("%s%d", prefix, g.tmp)
}

func (g *generator) writeHeader() {
	fmt.Fprintf(&g.b, "// Generated bindings for %s. Do not edit.\n\n", g.cfg.ModuleName)

	// Snippets are side-effect imports; the assembler writes the files
	// next to the glue.
	snippets := g.reg.Snippets()
	for _, s := range snippets {
		fmt.Fprintf(&g.b, "import './snippets/%s';\n", s.Path)
	}
	if len(snippets) > 0 {
		g.b.WriteString("\n")
	}

	g.b.WriteString("let wasm;\n\n")
}

// writeImports emits getImports(host), the object handed to
// WebAssembly.instantiate. Host-facing shims are grouped per import
// module; closure and object trampolines live under __bindgen.
func (g *generator) writeImports() error {
	g.b.WriteString("function getImports(host) {\n  const imports = {};\n")

	byModule := map[string][]metadata.Binding{}
	for _, b := range g.reg.Imports() {
		byModule[b.HostModule] = append(byModule[b.HostModule], b)
	}
	modules := make([]string, 0, len(byModule))
	for name := range byModule {
		modules = append(modules, name)
	}
	sort.Strings(modules)

	for _, mod := range modules {
		fmt.Fprintf(&g.b, "  imports[%q] = {};\n", mod)
		for _, b := range byModule[mod] {
			if err := g.writeImportShim(b); err != nil {
				return err
			}
		}
	}

	if err := g.writeTrampolines(); err != nil {
		return err
	}

	g.b.WriteString("  return imports;\n}\n\n")
	return nil
}

// writeImportShim emits one shim: guest flat values in, host call,
// guest flat return out.
func (g *generator) writeImportShim(b metadata.Binding) error {
	fn := b.Descriptor
	var flatParams []string
	for i, p := range fn.Params {
		w := descriptor.FlatCount(p)
		for j := 0; j < w; j++ {
			flatParams = append(flatParams, fmt.Sprintf("a%d_%d", i, j))
		}
	}

	fmt.Fprintf(&g.b, "  imports[%q][%q] = function(%s) {\n",
		b.HostModule, b.HostName, strings.Join(flatParams, ", "))

	var args []string
	slot := 0
	for i, p := range fn.Params {
		w := descriptor.FlatCount(p)
		flats := flatParams[slot : slot+w]
		slot += w
		expr, err := g.lift(p, newSlotReader(flats), liftCtx{
			importTop: topLevel(fn, i),
			indent:    "    ",
		})
		if err != nil {
			return codegenErr(b.Name, err)
		}
		args = append(args, expr)
	}

	call := fmt.Sprintf("host[%q][%q](%s)", b.HostModule, b.HostName, strings.Join(args, ", "))
	if fn.Ret.Op == descriptor.OpUnit {
		fmt.Fprintf(&g.b, "    %s;\n  };\n", call)
		return nil
	}

	ret := g.nextTmp("r")
	fmt.Fprintf(&g.b, "    const %s = %s;\n", ret, call)
	flat, err := g.lower(fn.Ret, ret, lowerCtx{importTop: true, indent: "    "})
	if err != nil {
		return codegenErr(b.Name, err)
	}
	switch {
	case len(flat) == 1:
		fmt.Fprintf(&g.b, "    return %s;\n  };\n", flat[0])
	case g.cfg.MultiValue:
		fmt.Fprintf(&g.b, "    return [%s];\n  };\n", strings.Join(flat, ", "))
	default:
		return codegenErr(b.Name, errors.New(errors.PhaseCodegen, errors.KindUnsupported).
			Detail("import return must flatten to one value").
			Build())
	}
	return nil
}

// writeTrampolines emits the __bindgen import module: object
// retain/release when the heap table is live, closure invocation and
// drop when closures cross into the guest.
func (g *generator) writeTrampolines() error {
	if !g.man.HeapTable && !g.man.ClosureTable {
		return nil
	}
	g.b.WriteString("  imports['__bindgen'] = {};\n")

	if g.man.HeapTable {
		g.b.WriteString(`  imports['__bindgen'].object_clone = (slot) => heapAdd(heapGet(slot));
  imports['__bindgen'].object_drop = (slot) => { heapDrop(slot); };
`)
	}
	if g.man.ClosureTable {
		g.b.WriteString(`  imports['__bindgen'].closure_drop = (id) => { closureDrop(id); };
`)
		if err := g.writeClosureInvokers(); err != nil {
			return err
		}
	}
	return nil
}

// writeClosureInvokers emits one invoke shim per distinct closure shape
// found in export parameters. The guest calls them with the closure id
// followed by the closure's flat arguments.
func (g *generator) writeClosureInvokers() error {
	seen := map[string]bool{}
	for _, b := range g.reg.Exports() {
		for _, p := range b.Descriptor.Params {
			cl := closureIn(p)
			if cl == nil {
				continue
			}
			name := invokerName(cl)
			if seen[name] {
				continue
			}
			seen[name] = true
			if err := g.writeClosureInvoker(name, cl); err != nil {
				return codegenErr(b.Name, err)
			}
		}
	}
	return nil
}

// closureIn digs a closure out of a parameter, looking through option.
func closureIn(t descriptor.Type) *descriptor.Closure {
	switch t.Op {
	case descriptor.OpClosure:
		return t.Closure
	case descriptor.OpOption:
		return closureIn(*t.Elem)
	}
	return nil
}

// invokerName derives a stable shim name from the closure's flat shape.
func invokerName(cl *descriptor.Closure) string {
	var b strings.Builder
	b.WriteString("closure_invoke")
	for _, p := range cl.Params {
		fmt.Fprintf(&b, "_%d", descriptor.FlatCount(p))
	}
	fmt.Fprintf(&b, "_r%d", descriptor.FlatCount(cl.Ret))
	return b.String()
}

func (g *generator) writeClosureInvoker(name string, cl *descriptor.Closure) error {
	var flatParams []string
	for i, p := range cl.Params {
		w := descriptor.FlatCount(p)
		for j := 0; j < w; j++ {
			flatParams = append(flatParams, fmt.Sprintf("a%d_%d", i, j))
		}
	}
	sig := "id"
	if len(flatParams) > 0 {
		sig += ", " + strings.Join(flatParams, ", ")
	}
	fmt.Fprintf(&g.b, "  imports['__bindgen'].%s = function(%s) {\n", name, sig)

	var args []string
	slot := 0
	for _, p := range cl.Params {
		w := descriptor.FlatCount(p)
		expr, err := g.lift(p, newSlotReader(flatParams[slot:slot+w]), liftCtx{indent: "    "})
		if err != nil {
			return err
		}
		slot += w
		args = append(args, expr)
	}

	call := fmt.Sprintf("closureInvoke(id)(%s)", strings.Join(args, ", "))
	if cl.Ret.Op == descriptor.OpUnit {
		fmt.Fprintf(&g.b, "    %s;\n  };\n", call)
		return nil
	}
	ret := g.nextTmp("r")
	fmt.Fprintf(&g.b, "    const %s = %s;\n", ret, call)
	flat, err := g.lower(cl.Ret, ret, lowerCtx{indent: "    "})
	if err != nil {
		return err
	}
	if len(flat) != 1 {
		return errors.New(errors.PhaseCodegen, errors.KindUnsupported).
			Detail("closure return must flatten to one value").
			Build()
	}
	fmt.Fprintf(&g.b, "    return %s;\n  };\n", flat[0])
	return nil
}

// writeExports emits one trampoline per export binding.
func (g *generator) writeExports() error {
	for _, b := range g.reg.Exports() {
		if err := g.writeExportTrampoline(b); err != nil {
			return err
		}
	}
	return nil
}

func (g *generator) writeExportTrampoline(b metadata.Binding) error {
	fn := b.Descriptor
	params := make([]string, len(fn.Params))
	for i := range fn.Params {
		params[i] = fmt.Sprintf("arg%d", i)
	}
	if demangled := errors.DemangleRust(b.Name); demangled != b.Name {
		fmt.Fprintf(&g.b, "/** %s */\n", demangled)
	}
	fmt.Fprintf(&g.b, "export function %s(%s) {\n", jsIdent(b.Name), strings.Join(params, ", "))

	var flat []string
	for i, p := range fn.Params {
		exprs, err := g.lower(p, params[i], lowerCtx{indent: "  "})
		if err != nil {
			return codegenErr(b.Name, err)
		}
		flat = append(flat, exprs...)
	}

	results := fn.FlatResults()
	callee := fmt.Sprintf("wasm[%q]", b.Name)
	switch {
	case results == 0:
		fmt.Fprintf(&g.b, "  %s(%s);\n}\n\n", callee, strings.Join(flat, ", "))
		return nil

	case results == 1:
		ret := g.nextTmp("r")
		fmt.Fprintf(&g.b, "  const %s = %s(%s);\n", ret, callee, strings.Join(flat, ", "))
		expr, err := g.lift(fn.Ret, newSlotReader([]string{ret}), liftCtx{owned: true, indent: "  "})
		if err != nil {
			return codegenErr(b.Name, err)
		}
		fmt.Fprintf(&g.b, "  return %s;\n}\n\n", expr)
		return nil

	default:
		if g.cfg.MultiValue {
			// The target returns the flat values directly as an array.
			ret := g.nextTmp("r")
			fmt.Fprintf(&g.b, "  const %s = %s(%s);\n", ret, callee, strings.Join(flat, ", "))
			slots := make([]string, results)
			for i := range slots {
				slots[i] = fmt.Sprintf("%s[%d]", ret, i)
			}
			expr, err := g.lift(fn.Ret, newSlotReader(slots), liftCtx{owned: true, indent: "  "})
			if err != nil {
				return codegenErr(b.Name, err)
			}
			fmt.Fprintf(&g.b, "  return %s;\n}\n\n", expr)
			return nil
		}

		// Lowered by the multivalue pass: the wrapper takes a scratch
		// pointer and spills one value per 8-byte slot.
		size := results * retPtrStride
		flat = append(flat, "retptr")
		fmt.Fprintf(&g.b, "  const retptr = wasm[%q](%d);\n", g.cfg.Malloc, size)
		fmt.Fprintf(&g.b, "  try {\n    %s(%s);\n", callee, strings.Join(flat, ", "))
		expr, err := g.lift(fn.Ret, newRetPtrReader("retptr"), liftCtx{owned: true, indent: "    "})
		if err != nil {
			return codegenErr(b.Name, err)
		}
		fmt.Fprintf(&g.b, "    return %s;\n", expr)
		fmt.Fprintf(&g.b, "  } finally {\n    wasm[%q](retptr, %d);\n  }\n}\n\n", g.cfg.Free, size)
		return nil
	}
}

// writeLoader emits the async init entry point.
func (g *generator) writeLoader() {
	g.b.WriteString(`export async function init(source, host) {
  const imports = getImports(host);
  let instance;
  if (source instanceof WebAssembly.Module) {
    instance = await WebAssembly.instantiate(source, imports);
  } else if (source instanceof Response || typeof source === 'string') {
    const response = typeof source === 'string' ? fetch(source) : source;
    const result = await WebAssembly.instantiateStreaming(response, imports);
    instance = result.instance;
  } else {
    const module = await WebAssembly.compile(source);
    instance = await WebAssembly.instantiate(module, imports);
  }
  wasm = instance.exports;
`)
	if g.man.MemoryViews {
		g.b.WriteString("  invalidateViews();\n")
	}
	if g.cfg.Multithreading {
		g.b.WriteString(`  if (wasm.__bindgen_init_memory && !host.__worker) {
    wasm.__bindgen_init_memory();
  }
  if (wasm.__bindgen_thread_init && host.__worker) {
    wasm.__bindgen_thread_init();
  }
`)
	}
	g.b.WriteString(`  if (wasm.__bindgen_start) {
    wasm.__bindgen_start();
  }
  return wasm;
}
`)
}

// jsIdent makes a binding name safe as a JS identifier.
func jsIdent(name string) string {
	var b strings.Builder
	for i, r := range name {
		ok := r == '_' || r == '$' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(i > 0 && r >= '0' && r <= '9')
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func codegenErr(binding string, err error) error {
	var e *errors.Error
	if errors.As(err, &e) && e.JSName == "" {
		e.JSName = binding
		return e
	}
	return err
}
