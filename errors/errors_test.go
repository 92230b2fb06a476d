package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseResolve,
				Kind:     KindTypeMismatch,
				Path:     []string{"greet", "arg0"},
				WasmName: "greet",
				JSName:   "greet",
				Detail:   "descriptor arity disagrees with wasm type",
			},
			contains: []string{"[resolve]", "type_mismatch", "greet.arg0", "descriptor arity"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseParse,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[parse]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseEmit,
				Kind:   KindInvalidData,
				Detail: "write wasm artifact",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[emit]", "invalid_data", "write wasm artifact", "caused by", "underlying error"},
		},
		{
			name: "mangled symbol is demangled",
			err: &Error{
				Phase:    PhaseInterpret,
				Kind:     KindUnsupported,
				WasmName: "_ZN4core3fmt5write17h1234567890abcdefE",
			},
			contains: []string{"core::fmt::write"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{Phase: PhaseParse, Kind: KindInvalidData, Cause: cause}

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
	if errors.Unwrap(err) != cause {
		t.Error("Unwrap should return the cause")
	}
}

func TestError_Is(t *testing.T) {
	a := &Error{Phase: PhaseInterpret, Kind: KindBudgetExceeded}
	b := &Error{Phase: PhaseInterpret, Kind: KindBudgetExceeded, Detail: "extra"}
	c := &Error{Phase: PhaseInterpret, Kind: KindCycle}

	if !errors.Is(a, b) {
		t.Error("same phase and kind should match")
	}
	if errors.Is(a, c) {
		t.Error("different kind should not match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("boom")
	err := New(PhaseAdapt, KindUnsupported).
		Path("externref", "table").
		WasmName("__bindgen_describe").
		Detail("reference types disabled, got %d extern descriptors", 3).
		Cause(cause).
		Build()

	if err.Phase != PhaseAdapt || err.Kind != KindUnsupported {
		t.Errorf("unexpected phase/kind: %s %s", err.Phase, err.Kind)
	}
	if err.Detail != "reference types disabled, got 3 extern descriptors" {
		t.Errorf("unexpected detail: %q", err.Detail)
	}
	if errors.Unwrap(err) != cause {
		t.Error("cause not preserved")
	}
}

func TestConvenienceConstructors(t *testing.T) {
	if err := VersionMismatch(PhaseParse, 1, 9); err.Kind != KindVersionMismatch {
		t.Errorf("unexpected kind: %s", err.Kind)
	} else if !strings.Contains(err.Error(), "schema version 9") {
		t.Errorf("missing found version: %q", err.Error())
	}

	if err := BudgetExceeded("desc", 100000); err.Kind != KindBudgetExceeded {
		t.Errorf("unexpected kind: %s", err.Kind)
	}

	if err := UnsupportedOpcode("desc", 0x0E); !strings.Contains(err.Error(), "0x0e") {
		t.Errorf("missing opcode in message: %q", err.Error())
	}

	if err := NameCollision("greet", "greet_a", "greet_b"); err.JSName != "greet" {
		t.Errorf("unexpected JS name: %q", err.JSName)
	}
}

func TestMissingExportsError(t *testing.T) {
	err := &MissingExportsError{
		Exports: []MissingExport{
			{Name: "__bindgen_malloc", Why: "return pointer scratch space"},
			{Name: "__bindgen_free"},
		},
	}

	msg := err.Error()
	for _, want := range []string{"2 required export(s)", "__bindgen_malloc", "return pointer scratch space", "__bindgen_free"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}

	if !errors.Is(err, &MissingExportsError{}) {
		t.Error("Is should match any MissingExportsError")
	}
}

func TestDemangleRust(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"_ZN4core3fmt5write17h1234567890abcdefE", "core::fmt::write"},
		{"_ZN5alloc7raw_vec11finish_grow17habcdefabcdef0123E", "alloc::raw_vec::finish_grow"},
		{"plain_name", "plain_name"},
		{"", ""},
		{"_ZN", "_ZN"},
	}

	for _, tt := range tests {
		if got := DemangleRust(tt.in); got != tt.want {
			t.Errorf("DemangleRust(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
