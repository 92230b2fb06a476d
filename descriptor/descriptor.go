// Package descriptor models the type descriptions emitted by compiled
// modules through their describe intrinsic.
//
// A descriptor function is a zero-argument wasm function that reports the
// shape of one binding by calling the imported describe function once per
// word. The interp package evaluates those functions into word streams;
// this package decodes the streams into a Type tree and computes how each
// type flattens onto the core wasm ABI.
package descriptor

import (
	"fmt"
	"strings"
)

// Op identifies a descriptor word.
type Op uint32

const (
	OpI8 Op = iota
	OpU8
	OpI16
	OpU16
	OpI32
	OpU32
	OpI64
	OpU64
	OpF32
	OpF64
	OpBool
	OpChar
	OpUnit
	OpString
	OpSlice
	OpVector
	OpOption
	OpResult
	OpStruct
	OpEnum
	OpExtern
	OpClosure
	OpFunc

	opMax
)

// Closure flag bits following OpClosure.
const (
	ClosureMutable uint32 = 1 << 0
	ClosureOnce    uint32 = 1 << 1
)

func (o Op) String() string {
	names := [...]string{
		"i8", "u8", "i16", "u16", "i32", "u32", "i64", "u64",
		"f32", "f64", "bool", "char", "unit", "string",
		"slice", "vector", "option", "result", "struct", "enum",
		"extern", "closure", "func",
	}
	if int(o) < len(names) {
		return names[o]
	}
	return fmt.Sprintf("op(%d)", uint32(o))
}

// IsPrimitive reports whether the op describes a single-word scalar.
func (o Op) IsPrimitive() bool {
	return o <= OpChar
}

// Type is one node of a descriptor tree.
type Type struct {
	Op       Op
	Name     string    // struct name, enum name, or extern class name
	Fields   []Field   // OpStruct
	Variants []Variant // OpEnum
	Elem     *Type     // OpSlice, OpVector, OpOption
	Ok       *Type     // OpResult
	Err      *Type     // OpResult
	Closure  *Closure  // OpClosure
}

// Field is a named struct member.
type Field struct {
	Name string
	Type Type
}

// Variant is one enum alternative. A nil Payload marks a unit variant.
type Variant struct {
	Name    string
	Payload *Type
}

// Closure describes a callable value passed across the boundary.
type Closure struct {
	Params  []Type
	Ret     Type
	Mutable bool
	Once    bool
}

// Function is the top-level shape of one binding.
type Function struct {
	Params []Type
	Ret    Type
}

// String renders a type the way it would read in a source signature.
func (t Type) String() string {
	switch t.Op {
	case OpString:
		return "string"
	case OpSlice:
		return "[]" + t.Elem.String()
	case OpVector:
		return "vec<" + t.Elem.String() + ">"
	case OpOption:
		return "option<" + t.Elem.String() + ">"
	case OpResult:
		return "result<" + t.Ok.String() + ", " + t.Err.String() + ">"
	case OpStruct, OpEnum, OpExtern:
		if t.Name != "" {
			return t.Name
		}
		return t.Op.String()
	case OpClosure:
		var b strings.Builder
		b.WriteString("fn(")
		for i, p := range t.Closure.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.String())
		}
		b.WriteString(")")
		if t.Closure.Ret.Op != OpUnit {
			b.WriteString(" -> ")
			b.WriteString(t.Closure.Ret.String())
		}
		return b.String()
	default:
		return t.Op.String()
	}
}

// String renders the binding signature for diagnostics.
func (f Function) String() string {
	var b strings.Builder
	b.WriteString("fn(")
	for i, p := range f.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.String())
	}
	b.WriteString(")")
	if f.Ret.Op != OpUnit {
		b.WriteString(" -> ")
		b.WriteString(f.Ret.String())
	}
	return b.String()
}

// HasExternRef reports whether the type contains an extern or closure
// anywhere in its tree. Bindings with such types need reference handling,
// either the JS heap table or an in-module externref table.
func (t Type) HasExternRef() bool {
	switch t.Op {
	case OpExtern, OpClosure:
		return true
	case OpSlice, OpVector, OpOption:
		return t.Elem.HasExternRef()
	case OpResult:
		return t.Ok.HasExternRef() || t.Err.HasExternRef()
	case OpStruct:
		for _, f := range t.Fields {
			if f.Type.HasExternRef() {
				return true
			}
		}
	case OpEnum:
		for _, v := range t.Variants {
			if v.Payload != nil && v.Payload.HasExternRef() {
				return true
			}
		}
	}
	return false
}

// HasExternRef reports whether any parameter or the return type needs
// reference handling.
func (f Function) HasExternRef() bool {
	for _, p := range f.Params {
		if p.HasExternRef() {
			return true
		}
	}
	return f.Ret.HasExternRef()
}
