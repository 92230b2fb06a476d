package descriptor

// FlatCount returns how many core wasm values the type occupies when
// flattened onto the ABI:
//
//   - scalars, bool, char: 1
//   - string, slice, vector: 2 (pointer, length)
//   - extern: 1 (heap slot index or externref)
//   - closure: 2 (function table index, environment pointer)
//   - struct: sum of field widths
//   - option: discriminant word plus the payload, unless the payload has
//     a spare representation that can carry the none case
//   - result: discriminant word plus the wider arm
//   - enum: discriminant word plus the widest payload
//   - unit: 0
func FlatCount(t Type) int {
	switch t.Op {
	case OpUnit:
		return 0
	case OpString, OpSlice, OpVector:
		return 2
	case OpExtern:
		return 1
	case OpClosure:
		return 2
	case OpStruct:
		total := 0
		for _, f := range t.Fields {
			total += FlatCount(f.Type)
		}
		return total
	case OpOption:
		if HasSentinel(*t.Elem) {
			return FlatCount(*t.Elem)
		}
		return 1 + FlatCount(*t.Elem)
	case OpResult:
		return 1 + max(FlatCount(*t.Ok), FlatCount(*t.Err))
	case OpEnum:
		widest := 0
		for _, v := range t.Variants {
			if v.Payload != nil {
				if w := FlatCount(*v.Payload); w > widest {
					widest = w
				}
			}
		}
		return 1 + widest
	default:
		// Primitives
		return 1
	}
}

// HasSentinel reports whether a type has an unused bit pattern that an
// enclosing option can use for none, avoiding a separate discriminant
// word. Pointer-carrying types reserve pointer zero; extern slots reserve
// index zero.
func HasSentinel(t Type) bool {
	switch t.Op {
	case OpString, OpSlice, OpVector, OpExtern, OpClosure:
		return true
	}
	return false
}

// FlatParams returns the total flattened width of all parameters.
func (f Function) FlatParams() int {
	total := 0
	for _, p := range f.Params {
		total += FlatCount(p)
	}
	return total
}

// FlatResults returns the flattened width of the return type.
func (f Function) FlatResults() int {
	return FlatCount(f.Ret)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
