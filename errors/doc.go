// Package errors provides the structured error type used throughout clrvm.
//
// Errors are categorized by Phase (which subsystem raised them) and Kind
// (the spec.md §7 taxonomy: BadImage, UnsupportedImage, StackOverflow, ...).
// The Error type carries the offending token or byte offset so a host can
// print a precise diagnostic without re-deriving it.
//
// Use the Builder for ad-hoc construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindBadImage).
//		Detail("DOS signature mismatch at offset %#x", off).
//		Build()
//
// Or use the convenience constructors that mirror spec.md §7 directly:
//
//	err := errors.MissingRow(errors.PhaseMetadata, tok)
//	err := errors.TypeMismatch(want, got)
package errors
