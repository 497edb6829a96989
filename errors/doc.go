// Package errors provides structured error types for nativebind.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: member path, Go/native type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
//		Path("Label", "set_text", "text").
//		GoType("int").
//		NativeType("String").
//		Detail("cannot convert integer to string").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.ArityMismatch(errors.PhaseSignal, "pressed", 2, 1)
//	err := errors.FreedHandle(ptr, "Node")
//
// All errors implement the standard error interface and support errors.Is/As.
// Class loads that cannot resolve every member return *MissingBindsError.
package errors
