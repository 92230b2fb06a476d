package jsglue

import (
	"fmt"
	"strings"

	"github.com/wippyai/wasm-bindgen/descriptor"
	"github.com/wippyai/wasm-bindgen/errors"
)

// flatKind tells a reader how to interpret the next core value.
type flatKind int

const (
	flatI32 flatKind = iota
	flatU32
	flatI64
	flatF32
	flatF64
)

// flatReader yields JS expressions for consecutive flat values. The
// expressions are pure, so lifted code may duplicate or skip them.
type flatReader interface {
	next(k flatKind) string
	fork() flatReader
	skip(n int)
}

// slotReader reads from named variables: shim parameters or a call
// result already bound to a temporary.
type slotReader struct {
	vars []string
	pos  int
}

func newSlotReader(vars []string) *slotReader { return &slotReader{vars: vars} }

func (r *slotReader) next(flatKind) string {
	v := r.vars[r.pos]
	r.pos++
	return v
}

func (r *slotReader) fork() flatReader { return &slotReader{vars: r.vars, pos: r.pos} }
func (r *slotReader) skip(n int)       { r.pos += n }

// retPtrReader reads spilled return values from scratch memory, one
// 8-byte slot per flat value.
type retPtrReader struct {
	base string
	slot int
}

func newRetPtrReader(base string) *retPtrReader { return &retPtrReader{base: base} }

func (r *retPtrReader) next(k flatKind) string {
	offset := r.slot * retPtrStride
	r.slot++
	switch k {
	case flatU32:
		return fmt.Sprintf("getDataView().getUint32(%s + %d, true)", r.base, offset)
	case flatI64:
		return fmt.Sprintf("getDataView().getBigInt64(%s + %d, true)", r.base, offset)
	case flatF32:
		return fmt.Sprintf("getDataView().getFloat32(%s + %d, true)", r.base, offset)
	case flatF64:
		return fmt.Sprintf("getDataView().getFloat64(%s + %d, true)", r.base, offset)
	default:
		return fmt.Sprintf("getDataView().getInt32(%s + %d, true)", r.base, offset)
	}
}

func (r *retPtrReader) fork() flatReader { return &retPtrReader{base: r.base, slot: r.slot} }
func (r *retPtrReader) skip(n int)       { r.slot += n }

type liftCtx struct {
	// importTop marks a bare extern in an import position, which
	// arrives as a real externref when reference types are on.
	importTop bool
	// owned means the guest transferred ownership: strings and buffers
	// are freed after reading, extern slots are taken out of the heap.
	owned bool
	// indent for any statements the surrounding writer emits.
	indent string
}

// lift builds a pure JS expression producing the host value for t,
// consuming FlatCount(t) values from the reader.
func (g *generator) lift(t descriptor.Type, r flatReader, ctx liftCtx) (string, error) {
	switch t.Op {
	case descriptor.OpUnit:
		return "undefined", nil

	case descriptor.OpI8:
		return fmt.Sprintf("(%s << 24 >> 24)", r.next(flatI32)), nil
	case descriptor.OpU8:
		return fmt.Sprintf("(%s & 0xff)", r.next(flatI32)), nil
	case descriptor.OpI16:
		return fmt.Sprintf("(%s << 16 >> 16)", r.next(flatI32)), nil
	case descriptor.OpU16:
		return fmt.Sprintf("(%s & 0xffff)", r.next(flatI32)), nil
	case descriptor.OpI32:
		return r.next(flatI32), nil
	case descriptor.OpU32:
		return fmt.Sprintf("(%s >>> 0)", r.next(flatU32)), nil
	case descriptor.OpI64:
		return r.next(flatI64), nil
	case descriptor.OpU64:
		return fmt.Sprintf("BigInt.asUintN(64, %s)", r.next(flatI64)), nil
	case descriptor.OpF32:
		return r.next(flatF32), nil
	case descriptor.OpF64:
		return r.next(flatF64), nil
	case descriptor.OpBool:
		return fmt.Sprintf("(%s !== 0)", r.next(flatI32)), nil
	case descriptor.OpChar:
		return fmt.Sprintf("String.fromCodePoint(%s)", r.next(flatU32)), nil

	case descriptor.OpString:
		ptr, length := r.next(flatU32), r.next(flatU32)
		if ctx.owned {
			return fmt.Sprintf("takeString(%s, %s)", ptr, length), nil
		}
		return fmt.Sprintf("liftString(%s, %s)", ptr, length), nil

	case descriptor.OpSlice:
		return g.liftArray(*t.Elem, r, false)
	case descriptor.OpVector:
		return g.liftArray(*t.Elem, r, true)

	case descriptor.OpOption:
		return g.liftOption(t, r, ctx)

	case descriptor.OpResult:
		return g.liftResult(t, r, ctx)

	case descriptor.OpStruct:
		var fields []string
		for _, f := range t.Fields {
			expr, err := g.lift(f.Type, r, liftCtx{owned: ctx.owned, indent: ctx.indent})
			if err != nil {
				return "", err
			}
			fields = append(fields, fmt.Sprintf("%s: %s", jsIdent(f.Name), expr))
		}
		return "{ " + strings.Join(fields, ", ") + " }", nil

	case descriptor.OpEnum:
		return g.liftEnum(t, r, ctx)

	case descriptor.OpExtern:
		if ctx.importTop && g.cfg.ReferenceTypes {
			return r.next(flatI32), nil
		}
		if ctx.owned {
			return fmt.Sprintf("heapTake(%s)", r.next(flatU32)), nil
		}
		return fmt.Sprintf("heapGet(%s)", r.next(flatU32)), nil

	case descriptor.OpClosure:
		return g.liftClosure(t.Closure, r)

	default:
		return "", noRule("lift", t)
	}
}

func (g *generator) liftArray(elem descriptor.Type, r flatReader, take bool) (string, error) {
	ptr, length := r.next(flatU32), r.next(flatU32)
	takeArg := "false"
	if take {
		takeArg = "true"
	}
	if ctor := typedArrayCtor(elem.Op); ctor != "" {
		return fmt.Sprintf("liftArray(%s, %s, %s, %s)", ctor, ptr, length, takeArg), nil
	}
	switch elem.Op {
	case descriptor.OpString:
		return fmt.Sprintf("liftStringArray(%s, %s, %s)", ptr, length, takeArg), nil
	case descriptor.OpExtern:
		return fmt.Sprintf("liftSlotArray(%s, %s, %s)", ptr, length, takeArg), nil
	}
	return "", noRule("lift sequence of", elem)
}

func (g *generator) liftOption(t descriptor.Type, r flatReader, ctx liftCtx) (string, error) {
	elem := *t.Elem
	if descriptor.HasSentinel(elem) {
		// Zero in the first flat slot means none. The payload reads are
		// pure, so guarding with a ternary is enough.
		probe := r.fork()
		first := probe.next(flatU32)
		expr, err := g.lift(elem, r, ctx)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("(%s === 0 ? undefined : %s)", first, expr), nil
	}

	tag := r.next(flatI32)
	expr, err := g.lift(elem, r, liftCtx{owned: ctx.owned, indent: ctx.indent})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s === 0 ? undefined : %s)", tag, expr), nil
}

// liftResult reads the tag and overlays both arms on the same payload
// slots; the err arm throws.
func (g *generator) liftResult(t descriptor.Type, r flatReader, ctx liftCtx) (string, error) {
	tag := r.next(flatI32)
	armCtx := liftCtx{owned: ctx.owned, indent: ctx.indent}

	okExpr, err := g.lift(*t.Ok, r.fork(), armCtx)
	if err != nil {
		return "", err
	}
	errExpr, err := g.lift(*t.Err, r.fork(), armCtx)
	if err != nil {
		return "", err
	}

	ok := descriptor.FlatCount(*t.Ok)
	ng := descriptor.FlatCount(*t.Err)
	if ng > ok {
		ok = ng
	}
	r.skip(ok)

	return fmt.Sprintf("(%s === 0 ? %s : (() => { throw %s; })())", tag, okExpr, errExpr), nil
}

// liftEnum reads the tag and builds a { tag, value } object via a
// ternary chain; payload arms overlay the same slots.
func (g *generator) liftEnum(t descriptor.Type, r flatReader, ctx liftCtx) (string, error) {
	tag := r.next(flatU32)
	armCtx := liftCtx{owned: ctx.owned, indent: ctx.indent}

	widest := 0
	var b strings.Builder
	b.WriteString("(")
	for i, v := range t.Variants {
		fmt.Fprintf(&b, "%s === %d ? ", tag, i)
		if v.Payload == nil {
			fmt.Fprintf(&b, "{ tag: %q }", v.Name)
		} else {
			expr, err := g.lift(*v.Payload, r.fork(), armCtx)
			if err != nil {
				return "", err
			}
			fmt.Fprintf(&b, "{ tag: %q, value: %s }", v.Name, expr)
			if w := descriptor.FlatCount(*v.Payload); w > widest {
				widest = w
			}
		}
		b.WriteString(" : ")
	}
	fmt.Fprintf(&b, "(() => { throw new TypeError('invalid %s tag: ' + %s); })())", t.Name, tag)
	r.skip(widest)
	return b.String(), nil
}

// liftClosure turns a guest function pointer and environment word into
// a callable host function. Parameters and return must lower and lift
// without statements, which limits them to single-flat pure shapes.
func (g *generator) liftClosure(cl *descriptor.Closure, r flatReader) (string, error) {
	idx, data := r.next(flatU32), r.next(flatU32)
	once := "false"
	if cl.Once {
		once = "true"
	}

	needsWrap := cl.Ret.Op != descriptor.OpUnit
	var params, lowered []string
	for i, p := range cl.Params {
		name := fmt.Sprintf("c%d", i)
		params = append(params, name)
		expr, ok := lowerPure(p, name)
		if !ok {
			return "", noRule("pass into closure", p)
		}
		if expr != name {
			needsWrap = true
		}
		lowered = append(lowered, expr)
	}

	base := fmt.Sprintf("guestClosure(%s, %s, %s)", idx, data, once)
	if !needsWrap {
		return base, nil
	}

	call := fmt.Sprintf("f(%s)", strings.Join(lowered, ", "))
	retExpr, err := g.lift(cl.Ret, newSlotReader([]string{call}), liftCtx{})
	if err != nil {
		return "", err
	}
	if descriptor.FlatCount(cl.Ret) > 1 {
		return "", noRule("return from closure", cl.Ret)
	}
	if cl.Ret.Op == descriptor.OpUnit {
		retExpr = "void " + call
	}
	return fmt.Sprintf("((f) => (%s) => %s)(%s)",
		strings.Join(params, ", "), retExpr, base), nil
}

type lowerCtx struct {
	importTop bool
	indent    string
}

// lower emits any allocation statements for a host value and returns
// the flat JS expressions handed to the guest.
func (g *generator) lower(t descriptor.Type, src string, ctx lowerCtx) ([]string, error) {
	switch t.Op {
	case descriptor.OpUnit:
		return nil, nil

	case descriptor.OpString:
		ptr := g.nextTmp("ptr")
		length := g.nextTmp("len")
		fmt.Fprintf(&g.b, "%sconst %s = passString(%s);\n", ctx.indent, ptr, src)
		fmt.Fprintf(&g.b, "%sconst %s = WASM_VECTOR_LEN;\n", ctx.indent, length)
		return []string{ptr, length}, nil

	case descriptor.OpSlice, descriptor.OpVector:
		ctor := typedArrayCtor(t.Elem.Op)
		if ctor == "" {
			return nil, noRule("lower sequence of", *t.Elem)
		}
		ptr := g.nextTmp("ptr")
		length := g.nextTmp("len")
		fmt.Fprintf(&g.b, "%sconst %s = passArray(%s, %s);\n", ctx.indent, ptr, ctor, src)
		fmt.Fprintf(&g.b, "%sconst %s = WASM_VECTOR_LEN;\n", ctx.indent, length)
		return []string{ptr, length}, nil

	case descriptor.OpOption:
		return g.lowerOption(t, src, ctx)

	case descriptor.OpStruct:
		var flat []string
		for _, f := range t.Fields {
			exprs, err := g.lower(f.Type, fmt.Sprintf("%s.%s", src, jsIdent(f.Name)), ctx)
			if err != nil {
				return nil, err
			}
			flat = append(flat, exprs...)
		}
		return flat, nil

	case descriptor.OpExtern:
		if ctx.importTop && g.cfg.ReferenceTypes {
			return []string{src}, nil
		}
		return []string{fmt.Sprintf("heapAdd(%s)", src)}, nil

	case descriptor.OpClosure:
		once := "false"
		if t.Closure.Once {
			once = "true"
		}
		id := g.nextTmp("cid")
		fmt.Fprintf(&g.b, "%sconst %s = closureAdd(%s, %s);\n", ctx.indent, id, src, once)
		return []string{id, "0"}, nil

	default:
		if expr, ok := lowerPure(t, src); ok {
			return []string{expr}, nil
		}
		return nil, noRule("lower", t)
	}
}

func (g *generator) lowerOption(t descriptor.Type, src string, ctx lowerCtx) ([]string, error) {
	elem := *t.Elem
	none := fmt.Sprintf("isLikeNone(%s)", src)

	switch elem.Op {
	case descriptor.OpString:
		ptr := g.nextTmp("ptr")
		length := g.nextTmp("len")
		fmt.Fprintf(&g.b, "%sconst %s = %s ? 0 : passString(%s);\n", ctx.indent, ptr, none, src)
		fmt.Fprintf(&g.b, "%sconst %s = %s === 0 ? 0 : WASM_VECTOR_LEN;\n", ctx.indent, length, ptr)
		return []string{ptr, length}, nil

	case descriptor.OpSlice, descriptor.OpVector:
		ctor := typedArrayCtor(elem.Elem.Op)
		if ctor == "" {
			return nil, noRule("lower sequence of", *elem.Elem)
		}
		ptr := g.nextTmp("ptr")
		length := g.nextTmp("len")
		fmt.Fprintf(&g.b, "%sconst %s = %s ? 0 : passArray(%s, %s);\n", ctx.indent, ptr, none, ctor, src)
		fmt.Fprintf(&g.b, "%sconst %s = %s === 0 ? 0 : WASM_VECTOR_LEN;\n", ctx.indent, length, ptr)
		return []string{ptr, length}, nil

	case descriptor.OpExtern:
		if ctx.importTop && g.cfg.ReferenceTypes {
			return []string{src}, nil
		}
		return []string{fmt.Sprintf("(%s ? 0 : heapAdd(%s))", none, src)}, nil

	case descriptor.OpClosure:
		once := "false"
		if elem.Closure.Once {
			once = "true"
		}
		id := g.nextTmp("cid")
		fmt.Fprintf(&g.b, "%sconst %s = %s ? 0 : closureAdd(%s, %s);\n", ctx.indent, id, none, src, once)
		return []string{id, "0"}, nil
	}

	// Tagged form: the payload must lower without statements so the
	// none arm stays side-effect free.
	expr, ok := lowerPure(elem, src)
	if !ok {
		return nil, noRule("lower optional", elem)
	}
	flat := []string{fmt.Sprintf("(%s ? 0 : 1)", none)}
	for i := 0; i < descriptor.FlatCount(elem); i++ {
		flat = append(flat, fmt.Sprintf("(%s ? 0 : %s)", none, expr))
	}
	return flat, nil
}

// lowerPure handles the single-flat shapes that lower to one
// side-effect-free expression.
func lowerPure(t descriptor.Type, src string) (string, bool) {
	switch t.Op {
	case descriptor.OpI8, descriptor.OpU8, descriptor.OpI16, descriptor.OpU16,
		descriptor.OpI32, descriptor.OpU32, descriptor.OpF32, descriptor.OpF64:
		return src, true
	case descriptor.OpI64, descriptor.OpU64:
		return fmt.Sprintf("BigInt(%s)", src), true
	case descriptor.OpBool:
		return fmt.Sprintf("(%s ? 1 : 0)", src), true
	case descriptor.OpChar:
		return fmt.Sprintf("%s.codePointAt(0)", src), true
	}
	return "", false
}

// typedArrayCtor returns the JS typed array constructor for fixed-width
// element types, or empty when none applies.
func typedArrayCtor(op descriptor.Op) string {
	switch op {
	case descriptor.OpI8:
		return "Int8Array"
	case descriptor.OpU8:
		return "Uint8Array"
	case descriptor.OpI16:
		return "Int16Array"
	case descriptor.OpU16:
		return "Uint16Array"
	case descriptor.OpI32:
		return "Int32Array"
	case descriptor.OpU32:
		return "Uint32Array"
	case descriptor.OpI64:
		return "BigInt64Array"
	case descriptor.OpU64:
		return "BigUint64Array"
	case descriptor.OpF32:
		return "Float32Array"
	case descriptor.OpF64:
		return "Float64Array"
	}
	return ""
}

func noRule(what string, t descriptor.Type) error {
	return errors.New(errors.PhaseCodegen, errors.KindUnsupported).
		Detail("no marshalling rule to %s %s", what, t.String()).
		Build()
}
