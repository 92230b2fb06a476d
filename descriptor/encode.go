package descriptor

// EncodeFunction renders a binding shape back into descriptor words.
// Tooling and tests use this to build descriptor streams without a
// compiled module.
func EncodeFunction(fn *Function) []uint32 {
	words := []uint32{uint32(OpFunc), uint32(len(fn.Params))}
	for _, p := range fn.Params {
		words = appendType(words, p)
	}
	return appendType(words, fn.Ret)
}

// EncodeType renders a single type into descriptor words.
func EncodeType(t Type) []uint32 {
	return appendType(nil, t)
}

func appendType(words []uint32, t Type) []uint32 {
	words = append(words, uint32(t.Op))

	switch t.Op {
	case OpSlice, OpVector, OpOption:
		words = appendType(words, *t.Elem)

	case OpResult:
		words = appendType(words, *t.Ok)
		words = appendType(words, *t.Err)

	case OpStruct:
		words = appendName(words, t.Name)
		words = append(words, uint32(len(t.Fields)))
		for _, f := range t.Fields {
			words = appendName(words, f.Name)
			words = appendType(words, f.Type)
		}

	case OpEnum:
		words = appendName(words, t.Name)
		words = append(words, uint32(len(t.Variants)))
		for _, v := range t.Variants {
			words = appendName(words, v.Name)
			if v.Payload != nil {
				words = appendType(words, *v.Payload)
			} else {
				words = append(words, uint32(OpUnit))
			}
		}

	case OpExtern:
		words = appendName(words, t.Name)

	case OpClosure:
		var flags uint32
		if t.Closure.Mutable {
			flags |= ClosureMutable
		}
		if t.Closure.Once {
			flags |= ClosureOnce
		}
		words = append(words, flags, uint32(len(t.Closure.Params)))
		for _, p := range t.Closure.Params {
			words = appendType(words, p)
		}
		words = appendType(words, t.Closure.Ret)
	}

	return words
}

func appendName(words []uint32, name string) []uint32 {
	words = append(words, uint32(len(name)))
	for i := 0; i < len(name); i++ {
		words = append(words, uint32(name[i]))
	}
	return words
}
