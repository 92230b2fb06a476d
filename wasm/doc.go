// Package wasm provides parsing, inspection, and encoding of WebAssembly
// binary modules for binding-generation transforms.
//
// The package targets the core MVP feature set plus the extensions the
// binding pipeline relies on: reference types, multi-value, bulk memory,
// tail calls, sign extension, and the threads proposal's shared memories
// and atomics. Modules using SIMD, garbage collection, exception handling,
// or 64-bit memories are rejected at parse time.
//
// A parsed Module keeps function bodies as raw bytes. DecodeInstructions
// and EncodeInstructions convert between raw bytes and a typed instruction
// stream when a transform needs to rewrite code.
package wasm
