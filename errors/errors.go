package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Is and As delegate to the standard library so callers never need a
// second errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Phase indicates where in the pipeline the error occurred
type Phase string

const (
	PhaseParse     Phase = "parse"     // binary decoding
	PhaseInterpret Phase = "interpret" // descriptor evaluation
	PhaseResolve   Phase = "resolve"   // binding metadata resolution
	PhaseAdapt     Phase = "adapt"     // ABI adapter passes
	PhaseCodegen   Phase = "codegen"   // JS/TS glue generation
	PhaseEmit      Phase = "emit"      // final assembly and output
	PhaseVerify    Phase = "verify"    // post-transform verification
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidData     Kind = "invalid_data"
	KindUnsupported     Kind = "unsupported"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindInvalidUTF8     Kind = "invalid_utf8"
	KindOverflow        Kind = "overflow"
	KindNotFound        Kind = "not_found"
	KindTypeMismatch    Kind = "type_mismatch"
	KindVersionMismatch Kind = "version_mismatch"
	KindBudgetExceeded  Kind = "budget_exceeded"
	KindDepthExceeded   Kind = "depth_exceeded"
	KindCycle           Kind = "cycle"
	KindNameCollision   Kind = "name_collision"
	KindMissingExport   Kind = "missing_export"
	KindInvalidVariant  Kind = "invalid_variant"
)

// Error is the structured error type used throughout the pipeline
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	WasmName string // mangled symbol or export name involved
	JSName   string // generated identifier involved
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.WasmName != "" || e.JSName != "" {
		b.WriteString(": ")
		if e.WasmName != "" && e.JSName != "" {
			b.WriteString("wasm symbol ")
			b.WriteString(DemangleRust(e.WasmName))
			b.WriteString(", JS name ")
			b.WriteString(e.JSName)
		} else if e.WasmName != "" {
			b.WriteString("wasm symbol ")
			b.WriteString(DemangleRust(e.WasmName))
		} else {
			b.WriteString("JS name ")
			b.WriteString(e.JSName)
		}
	}

	if e.Detail != "" {
		if e.WasmName != "" || e.JSName != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// WasmName sets the wasm symbol or export name
func (b *Builder) WasmName(name string) *Builder {
	b.err.WasmName = name
	return b
}

// JSName sets the generated JS identifier
func (b *Builder) JSName(name string) *Builder {
	b.err.JSName = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}

// VersionMismatch reports a metadata schema version the tool does not speak
func VersionMismatch(phase Phase, expected, found uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("schema version %d, tool supports %d", found, expected),
		Value:  found,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// BudgetExceeded reports a descriptor interpretation that ran too long
func BudgetExceeded(funcName string, steps int) *Error {
	return &Error{
		Phase:    PhaseInterpret,
		Kind:     KindBudgetExceeded,
		WasmName: funcName,
		Detail:   fmt.Sprintf("exceeded %d interpretation steps", steps),
	}
}

// DepthExceeded reports descriptor call nesting past the limit
func DepthExceeded(funcName string, depth int) *Error {
	return &Error{
		Phase:    PhaseInterpret,
		Kind:     KindDepthExceeded,
		WasmName: funcName,
		Detail:   fmt.Sprintf("call depth exceeded %d", depth),
	}
}

// Cycle reports mutually recursive descriptor functions
func Cycle(funcName string) *Error {
	return &Error{
		Phase:    PhaseInterpret,
		Kind:     KindCycle,
		WasmName: funcName,
		Detail:   "recursive descriptor call",
	}
}

// UnsupportedOpcode reports an instruction the descriptor interpreter rejects
func UnsupportedOpcode(funcName string, opcode byte) *Error {
	return &Error{
		Phase:    PhaseInterpret,
		Kind:     KindUnsupported,
		WasmName: funcName,
		Detail:   fmt.Sprintf("opcode 0x%02x not allowed in descriptor functions", opcode),
		Value:    opcode,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// NameCollision reports two bindings mapping to the same JS identifier
func NameCollision(jsName string, first, second string) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindNameCollision,
		JSName: jsName,
		Detail: fmt.Sprintf("both %s and %s map to this identifier", DemangleRust(first), DemangleRust(second)),
	}
}

// TypeMismatch reports a binding signature that disagrees with the wasm function type
func TypeMismatch(phase Phase, wasmName string, detail string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		WasmName: wasmName,
		Detail:   detail,
	}
}

// InvalidDiscriminant creates an invalid discriminant error for enum descriptors
func InvalidDiscriminant(phase Phase, path []string, disc uint32, maxValid uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range (max %d)", disc, maxValid),
		Value:  disc,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// MissingExport identifies a single export a transform needed but did not find
type MissingExport struct {
	Name string // e.g., "__bindgen_malloc"
	Why  string // what needed it
}

// MissingExportsError is returned when adaptation requires runtime exports
// the module does not provide
type MissingExportsError struct {
	Exports []MissingExport
}

func (e *MissingExportsError) Error() string {
	if len(e.Exports) == 0 {
		return "[adapt] missing_export: no exports specified"
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("missing %d required export(s):\n", len(e.Exports)))
	for _, exp := range e.Exports {
		b.WriteString("  - ")
		b.WriteString(exp.Name)
		if exp.Why != "" {
			b.WriteString(" (needed for ")
			b.WriteString(exp.Why)
			b.WriteByte(')')
		}
		b.WriteByte('\n')
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingExportsError) Is(target error) bool {
	_, ok := target.(*MissingExportsError)
	return ok
}

// DemangleRust attempts to extract a readable function name from a mangled
// Rust symbol. Non-mangled names pass through unchanged.
func DemangleRust(name string) string {
	// Rust mangled names start with _ZN
	if !strings.HasPrefix(name, "_ZN") {
		return name
	}

	// Extract path segments from mangled name
	// Format: _ZN<len><name><len><name>...E
	s := name[3:] // skip "_ZN"
	var parts []string

	for len(s) > 0 && s[0] != 'E' {
		// Read length (can be multiple digits)
		lenEnd := 0
		for lenEnd < len(s) && s[lenEnd] >= '0' && s[lenEnd] <= '9' {
			lenEnd++
		}
		if lenEnd == 0 {
			break
		}

		length := 0
		for i := 0; i < lenEnd; i++ {
			length = length*10 + int(s[i]-'0')
		}
		s = s[lenEnd:]

		if length > len(s) {
			break
		}

		part := s[:length]
		s = s[length:]

		// Skip hash suffixes (17 char hashes starting with 'h')
		if len(part) == 17 && part[0] == 'h' {
			allHex := true
			for i := 1; i < 17; i++ {
				c := part[i]
				if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
					allHex = false
					break
				}
			}
			if allHex {
				continue
			}
		}
		parts = append(parts, part)
	}

	if len(parts) == 0 {
		return name
	}

	return strings.Join(parts, "::")
}
