// Package errors provides structured error types for the script host.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the member path, Go/WIT type names and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseProxy, errors.KindTypeMismatch).
//		Path("DoStuff", "arg0").
//		GoType("bool").
//		WitType("string").
//		Detail("cannot lower argument").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Disposed(errors.PhaseIsolation, "isolation unit")
//	err := errors.NotFound(errors.PhaseIsolation, "module", "mathlib")
//
// Disposed and not-found errors can be detected regardless of phase:
//
//	if errors.IsDisposed(err) { ... }
//	if errors.IsNotFound(err) { ... }
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
