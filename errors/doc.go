// Package errors provides structured error types for the binding pipeline.
//
// Every error carries a Phase (which pipeline stage failed) and a Kind
// (what went wrong), so callers can match on error categories with
// errors.Is without string comparison. Mangled Rust symbol names appearing
// in messages are demangled for readability.
package errors
