// Package errors provides the structured error type shared by the starctx
// packages.
//
// Errors are categorized by Phase (where the failure happened) and Kind
// (what went wrong). Conversion failures carry the variable name and the
// Go and Starlark types involved; execution failures carry the interpreter
// backtrace.
//
//	err := errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
//		Name("foo").
//		GoType("int").
//		StarType("string").
//		Build()
//
// All errors implement the standard error interface and support errors.Is/As.
// Two errors match under errors.Is when their Phase and Kind are equal.
package errors
