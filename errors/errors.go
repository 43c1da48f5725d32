package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where the error occurred.
type Phase string

const (
	PhaseBootstrap Phase = "bootstrap" // context creation
	PhaseEncode    Phase = "encode"    // Go to Starlark
	PhaseDecode    Phase = "decode"    // Starlark to Go
	PhaseLookup    Phase = "lookup"    // namespace lookup
	PhaseCompile   Phase = "compile"   // parsing and resolving blocks
	PhaseExecute   Phase = "execute"   // running blocks
	PhaseLock      Phase = "lock"      // interpreter lock discipline
	PhaseHost      Phase = "host"      // host function calls
)

// Kind categorizes the error.
type Kind string

const (
	KindTypeMismatch Kind = "type_mismatch"
	KindOverflow     Kind = "overflow"
	KindUnsupported  Kind = "unsupported"
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindInvalidName  Kind = "invalid_name"
	KindSyntax       Kind = "syntax"
	KindInterpreter  Kind = "interpreter"
	KindUnavailable  Kind = "unavailable"
	KindLockNotHeld  Kind = "lock_not_held"
	KindConsumed     Kind = "consumed"
	KindLimit        Kind = "limit"
)

// Error is the structured error type used throughout starctx.
type Error struct {
	Cause     error
	Phase     Phase
	Kind      Kind
	Name      string
	GoType    string
	StarType  string
	Detail    string
	Backtrace string
	Path      []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" `")
		b.WriteString(e.Name)
		b.WriteByte('`')
	}

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.StarType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.StarType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", Starlark type ")
			b.WriteString(e.StarType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("Starlark type ")
			b.WriteString(e.StarType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.StarType != "" {
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

	if e.Backtrace != "" {
		b.WriteByte('\n')
		b.WriteString(e.Backtrace)
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction.
type Builder struct {
	err Error
}

// New creates a new error builder.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Name sets the namespace variable the error is about.
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
	return b
}

// Path sets the nested element path.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name.
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// StarType sets the Starlark type name.
func (b *Builder) StarType(t string) *Builder {
	b.err.StarType = t
	return b
}

// Cause sets the underlying error.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Backtrace sets the interpreter backtrace.
func (b *Builder) Backtrace(bt string) *Builder {
	b.err.Backtrace = bt
	return b
}

// Detail sets the human-readable detail message.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors

// Bootstrap reports that a context could not be created.
func Bootstrap(detail string, cause error) *Error {
	return New(PhaseBootstrap, KindUnavailable).Detail(detail).Cause(cause).Build()
}

// TypeMismatch reports a value that cannot be converted.
func TypeMismatch(phase Phase, path []string, goType, starType string) *Error {
	return New(phase, KindTypeMismatch).
		Path(path...).
		GoType(goType).
		StarType(starType).
		Build()
}

// Overflow reports a number that does not fit the requested Go type.
func Overflow(path []string, goType, value string) *Error {
	return New(PhaseDecode, KindOverflow).
		Path(path...).
		GoType(goType).
		StarType("int").
		Detail("value %s out of range", value).
		Build()
}

// Unsupported reports a Go type the marshaling layer cannot represent.
func Unsupported(phase Phase, path []string, goType string) *Error {
	return New(phase, KindUnsupported).Path(path...).GoType(goType).Build()
}

// NotFound reports a name missing from a namespace.
func NotFound(name string) *Error {
	return New(PhaseLookup, KindNotFound).
		Name(name).
		Detail("context does not contain a variable named `%s`", name).
		Build()
}

// LockNotHeld reports an operation attempted without a valid lock.
func LockNotHeld(detail string) *Error {
	return New(PhaseLock, KindLockNotHeld).Detail(detail).Build()
}

// Named attaches a variable name and Go type to err. Structured errors are
// copied so the original stays untouched; other errors are wrapped.
func Named(err error, phase Phase, name, goType string) *Error {
	var se *Error
	if stderrors.As(err, &se) {
		cp := *se
		cp.Name = name
		switch {
		case goType == "":
		case cp.GoType == "" || len(cp.Path) == 0:
			cp.GoType = goType
		case cp.Detail == "":
			cp.Detail = "requested " + goType
		default:
			cp.Detail += "; requested " + goType
		}
		return &cp
	}
	return New(phase, KindInvalidInput).Name(name).GoType(goType).Cause(err).Build()
}

// HasPhase reports whether err is a structured error from the given phase.
func HasPhase(err error, phase Phase) bool {
	var se *Error
	return stderrors.As(err, &se) && se.Phase == phase
}

// HasKind reports whether err is a structured error of the given kind.
func HasKind(err error, kind Kind) bool {
	var se *Error
	return stderrors.As(err, &se) && se.Kind == kind
}
