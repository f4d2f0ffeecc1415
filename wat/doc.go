// Package wat compiles WebAssembly Text into binary modules and reports
// problems as positioned diagnostics instead of a single error.
//
// Basic usage:
//
//	image, diags := wat.Compile(`(module $calc
//		(func (export "add") (param i32 i32) (result i32)
//			(i32.add (local.get 0) (local.get 1)))
//	)`)
//	if diag.HasErrors(diags) {
//		...
//	}
//
// Each module field is parsed on its own, so one malformed function does not
// hide errors in the next. The module's $name is written to the binary's
// name section, together with the names of named functions.
//
// Supported:
//   - type, import (func, memory), func, memory, global, export, start, data
//   - inline exports and imports, inline memory data
//   - named params, locals, labels and module-level names
//   - folded and flat instructions, multi-value blocks and results
//   - control flow, variables, i32/i64/f32/f64 numeric instructions
//   - loads and stores with offset= and align=
//   - memory.size, memory.grow, memory.copy, memory.fill
//   - saturating truncation and sign extension
//
// Not supported: tables, elem segments, passive data, SIMD, threads,
// exception handling, GC types.
package wat
