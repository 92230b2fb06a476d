package descriptor

import (
	"unicode/utf8"

	"github.com/wippyai/wasm-bindgen/errors"
)

// wordReader walks a descriptor word stream with position tracking for
// error reporting.
type wordReader struct {
	words []uint32
	pos   int
}

func (r *wordReader) next() (uint32, error) {
	if r.pos >= len(r.words) {
		return 0, errors.OutOfBounds(errors.PhaseResolve, nil, r.pos, len(r.words))
	}
	w := r.words[r.pos]
	r.pos++
	return w, nil
}

// count reads an element count and rejects one the remaining stream
// cannot possibly satisfy, since every element is at least one word.
func (r *wordReader) count() (uint32, error) {
	n, err := r.next()
	if err != nil {
		return 0, err
	}
	if int(n) > len(r.words)-r.pos {
		return 0, errors.OutOfBounds(errors.PhaseResolve, nil, r.pos+int(n), len(r.words))
	}
	return n, nil
}

func (r *wordReader) name() (string, error) {
	count, err := r.count()
	if err != nil {
		return "", err
	}
	buf := make([]byte, count)
	for i := range buf {
		w, err := r.next()
		if err != nil {
			return "", err
		}
		if w > 0xFF {
			return "", errors.InvalidData(errors.PhaseResolve, nil, "name byte word exceeds 0xFF")
		}
		buf[i] = byte(w)
	}
	if !utf8.Valid(buf) {
		return "", errors.InvalidUTF8(errors.PhaseResolve, nil, buf)
	}
	return string(buf), nil
}

// Decode consumes a complete word stream describing one binding. The
// stream must start with the func op and use every word exactly.
func Decode(words []uint32) (*Function, error) {
	r := &wordReader{words: words}

	op, err := r.next()
	if err != nil {
		return nil, err
	}
	if Op(op) != OpFunc {
		return nil, errors.InvalidData(errors.PhaseResolve, nil,
			"descriptor stream must start with the func op, got "+Op(op).String())
	}

	fn, err := decodeFunc(r)
	if err != nil {
		return nil, err
	}

	if r.pos != len(r.words) {
		return nil, errors.New(errors.PhaseResolve, errors.KindInvalidData).
			Detail("%d trailing words after descriptor", len(r.words)-r.pos).
			Build()
	}
	return fn, nil
}

// DecodeType consumes a single type from the head of a word stream.
// Used by tests and tooling that inspect sub-descriptors.
func DecodeType(words []uint32) (Type, int, error) {
	r := &wordReader{words: words}
	t, err := decodeType(r)
	if err != nil {
		return Type{}, 0, err
	}
	return t, r.pos, nil
}

func decodeFunc(r *wordReader) (*Function, error) {
	paramCount, err := r.count()
	if err != nil {
		return nil, err
	}

	fn := &Function{Params: make([]Type, paramCount)}
	for i := range fn.Params {
		fn.Params[i], err = decodeType(r)
		if err != nil {
			return nil, err
		}
	}
	fn.Ret, err = decodeType(r)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

func decodeType(r *wordReader) (Type, error) {
	w, err := r.next()
	if err != nil {
		return Type{}, err
	}
	op := Op(w)
	if op >= opMax {
		return Type{}, errors.New(errors.PhaseResolve, errors.KindInvalidData).
			Detail("unknown descriptor op %d at word %d", w, r.pos-1).
			Value(w).
			Build()
	}

	t := Type{Op: op}

	switch op {
	case OpSlice, OpVector, OpOption:
		elem, err := decodeType(r)
		if err != nil {
			return Type{}, err
		}
		t.Elem = &elem

	case OpResult:
		ok, err := decodeType(r)
		if err != nil {
			return Type{}, err
		}
		errT, err := decodeType(r)
		if err != nil {
			return Type{}, err
		}
		t.Ok, t.Err = &ok, &errT

	case OpStruct:
		t.Name, err = r.name()
		if err != nil {
			return Type{}, err
		}
		fieldCount, err := r.count()
		if err != nil {
			return Type{}, err
		}
		t.Fields = make([]Field, fieldCount)
		for i := range t.Fields {
			t.Fields[i].Name, err = r.name()
			if err != nil {
				return Type{}, err
			}
			t.Fields[i].Type, err = decodeType(r)
			if err != nil {
				return Type{}, err
			}
		}

	case OpEnum:
		t.Name, err = r.name()
		if err != nil {
			return Type{}, err
		}
		variantCount, err := r.count()
		if err != nil {
			return Type{}, err
		}
		t.Variants = make([]Variant, variantCount)
		for i := range t.Variants {
			t.Variants[i].Name, err = r.name()
			if err != nil {
				return Type{}, err
			}
			payload, err := decodeType(r)
			if err != nil {
				return Type{}, err
			}
			if payload.Op != OpUnit {
				t.Variants[i].Payload = &payload
			}
		}

	case OpExtern:
		t.Name, err = r.name()
		if err != nil {
			return Type{}, err
		}

	case OpClosure:
		flags, err := r.next()
		if err != nil {
			return Type{}, err
		}
		if flags&^(ClosureMutable|ClosureOnce) != 0 {
			return Type{}, errors.New(errors.PhaseResolve, errors.KindInvalidData).
				Detail("unknown closure flag bits 0x%x", flags).
				Build()
		}
		c := &Closure{
			Mutable: flags&ClosureMutable != 0,
			Once:    flags&ClosureOnce != 0,
		}
		paramCount, err := r.count()
		if err != nil {
			return Type{}, err
		}
		c.Params = make([]Type, paramCount)
		for i := range c.Params {
			c.Params[i], err = decodeType(r)
			if err != nil {
				return Type{}, err
			}
		}
		c.Ret, err = decodeType(r)
		if err != nil {
			return Type{}, err
		}
		t.Closure = c

	case OpFunc:
		return Type{}, errors.InvalidData(errors.PhaseResolve, nil,
			"func op is only valid at the top of a descriptor")
	}

	return t, nil
}
