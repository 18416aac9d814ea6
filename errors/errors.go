package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which subsystem raised the error.
type Phase string

const (
	PhaseDecode   Phase = "decode"   // header/stream/table-row parsing
	PhaseMetadata Phase = "metadata" // token/table/heap lookups
	PhaseDispatch Phase = "dispatch" // instruction execution
	PhaseLoad     Phase = "load"     // assembly registration/resolution
)

// Kind categorizes the error per spec.md §7.
type Kind string

const (
	KindBadImage         Kind = "bad_image"
	KindUnsupportedImage Kind = "unsupported_image"
	KindStackOverflow    Kind = "stack_overflow"
	KindStackUnderflow   Kind = "stack_underflow"
	KindTypeMismatch     Kind = "type_mismatch"
	KindMissingRow       Kind = "missing_row"
	KindAssemblyNotFound Kind = "assembly_not_found"
	KindMethodNotFound   Kind = "method_not_found"
	KindFieldNotFound    Kind = "field_not_found"
	KindBadCall          Kind = "bad_call"
	KindUnimplemented    Kind = "unimplemented"
)

// Error is the structured error type used throughout clrvm.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Token  uint32 // offending metadata token, 0 if not applicable
	Offset int64  // offending byte/instruction offset, -1 if not applicable
}

func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Token != 0 {
		fmt.Fprintf(&b, " token=0x%08x", e.Token)
	}
	if e.Offset >= 0 {
		fmt.Fprintf(&b, " offset=0x%x", e.Offset)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

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

// New creates a new error builder for the given phase and kind.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{err: Error{Phase: phase, Kind: kind, Offset: -1}}
}

func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

func (b *Builder) Token(tok uint32) *Builder {
	b.err.Token = tok
	return b
}

func (b *Builder) Offset(off int64) *Builder {
	b.err.Offset = off
	return b
}

func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors mirroring spec.md §7 directly.

// BadImage reports a PE/CLI header or structural validation failure.
func BadImage(detail string, off int64) *Error {
	return New(PhaseDecode, KindBadImage).Detail("%s", detail).Offset(off).Build()
}

// UnsupportedImage reports a large-heap or large-table-index image that
// this implementation's small-heap assumption (spec.md §6.3) does not cover.
func UnsupportedImage(detail string) *Error {
	return New(PhaseDecode, KindUnsupportedImage).Detail("%s", detail).Build()
}

// StackOverflow reports that pushing a value would exceed stack capacity.
func StackOverflow(capacity, used, want int) *Error {
	return New(PhaseDispatch, KindStackOverflow).
		Detail("capacity=%d used=%d want=%d", capacity, used, want).Build()
}

// StackUnderflow reports a pop against an empty stack.
func StackUnderflow() *Error {
	return New(PhaseDispatch, KindStackUnderflow).Build()
}

// TypeMismatch reports that the top-of-stack (or local slot) tag did not
// match the tag required by the operation.
func TypeMismatch(want, got fmt.Stringer) *Error {
	return New(PhaseDispatch, KindTypeMismatch).
		Detail("want %s, got %s", want, got).Build()
}

// MissingRow reports a token whose index is out of range for its table,
// or a table ID with no rows at all.
func MissingRow(phase Phase, tok uint32) *Error {
	return New(phase, KindMissingRow).Token(tok).Build()
}

// AssemblyNotFound reports that no registered loader could resolve a name.
func AssemblyNotFound(name string) *Error {
	return New(PhaseLoad, KindAssemblyNotFound).Detail("assembly %q", name).Build()
}

// MethodNotFound reports that a qualified name resolved to an assembly
// but no matching method was found in it.
func MethodNotFound(namespace, typeName, method string) *Error {
	return New(PhaseLoad, KindMethodNotFound).
		Detail("%s.%s::%s", namespace, typeName, method).Build()
}

// FieldNotFound reports a field token that does not resolve to a row.
func FieldNotFound(tok uint32) *Error {
	return New(PhaseMetadata, KindFieldNotFound).Token(tok).Build()
}

// BadCall reports a call/newobj token whose table ID is neither MethodDef
// nor MemberRef.
func BadCall(tok uint32) *Error {
	return New(PhaseDispatch, KindBadCall).Token(tok).
		Detail("call token targets an unsupported table").Build()
}

// Unimplemented reports an opcode outside the normative subset (spec.md §6.4).
func Unimplemented(opcode byte, offset int64) *Error {
	return New(PhaseDispatch, KindUnimplemented).
		Detail("opcode 0x%02x", opcode).Offset(offset).Build()
}

// Wrap attaches phase/kind/cause without the full builder for call sites
// that just need to propagate an underlying error with context.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return New(phase, kind).Cause(cause).Detail("%s", detail).Build()
}
