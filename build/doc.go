// Package build accumulates script fragments and compiles them.
//
// A Pipeline is parented on one isolation unit. Fragments are appended in
// order and wrapped in a header and footer, by default
//
//	(module $<name>
//	...fragments...
//	)
//
// so every fragment is a list of WAT module fields and the compiled module
// is named after the pipeline.
//
// Fragments may carry reference directives, each running to the end of its
// line:
//
//	;; #Local:mathlib.wasm,strings.wasm
//	;; #System:runtime.wasm
//
// Local names are joined onto the application directory and system names
// onto the runtime-library directory. The directive text is removed before
// the fragment is appended.
//
// Build never caches: every call recompiles the current buffer. A failed
// build returns only error diagnostics and drops any image from a previous
// success.
package build
