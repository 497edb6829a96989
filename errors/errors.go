package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseResolve  Phase = "resolve"  // method bind resolution
	PhaseEncode   Phase = "encode"   // Go to native
	PhaseDecode   Phase = "decode"   // native to Go
	PhaseDispatch Phase = "dispatch" // virtual dispatch
	PhaseSignal   Phase = "signal"   // signal proxy
	PhaseHandle   Phase = "handle"   // handle resolution
	PhaseLoad     Phase = "load"     // API description / engine loading
	PhaseConfig   Phase = "config"   // configuration
	PhaseRuntime  Phase = "runtime"  // runtime operations
	PhaseHost     Phase = "host"     // host callbacks
	PhaseGenerate Phase = "generate" // wrapper generation
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch    Kind = "type_mismatch"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindInvalidData     Kind = "invalid_data"
	KindUnsupported     Kind = "unsupported"
	KindAllocation      Kind = "allocation"
	KindOverflow        Kind = "overflow"
	KindNilPointer      Kind = "nil_pointer"
	KindInvalidUTF8     Kind = "invalid_utf8"
	KindNotFound        Kind = "not_found"
	KindNotInitialized  Kind = "not_initialized"
	KindInvalidInput    Kind = "invalid_input"
	KindRegistration    Kind = "registration"
	KindArityMismatch   Kind = "arity_mismatch"
	KindFreedHandle     Kind = "freed_handle"
	KindVersionMismatch Kind = "version_mismatch"
	KindDuplicate       Kind = "duplicate"
	KindNativeCall      Kind = "native_call"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.GoType != "" || e.NativeType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.NativeType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.NativeType != "" {
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

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native (engine-side) type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// InvalidUTF8 creates an invalid UTF-8 error
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// AllocationFailed creates an allocation failure error
func AllocationFailed(phase Phase, size, align uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes (align %d)", size, align),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		GoType: targetType,
		Detail: fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:  value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, component string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", component),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Registration creates a registration error
func Registration(phase Phase, class, member string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindRegistration,
		Detail: fmt.Sprintf("register %s.%s", class, member),
		Cause:  cause,
	}
}

// ArityMismatch reports a call whose argument count differs from the
// declared parameter count. No call is made when this is returned.
func ArityMismatch(phase Phase, member string, want, got int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindArityMismatch,
		Path:   []string{member},
		Detail: fmt.Sprintf("expected %d argument(s), got %d", want, got),
		Value:  got,
	}
}

// FreedHandle reports use of a wrapper whose native object is gone
func FreedHandle(ptr uint64, class string) *Error {
	return &Error{
		Phase:      PhaseHandle,
		Kind:       KindFreedHandle,
		NativeType: class,
		Detail:     fmt.Sprintf("native object 0x%x was freed or released", ptr),
		Value:      ptr,
	}
}

// VersionMismatch reports an engine build incompatible with the API description
func VersionMismatch(want, got string) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindVersionMismatch,
		Detail: fmt.Sprintf("API description %s is not compatible with engine %s", want, got),
	}
}

// Duplicate reports a second registration of the same name
func Duplicate(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicate,
		Detail: fmt.Sprintf("%s %q already registered", what, name),
	}
}

// NativeCall reports a non-zero status returned by a native call
func NativeCall(member string, status int32) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindNativeCall,
		Path:   []string{member},
		Detail: fmt.Sprintf("native call returned status %d", status),
		Value:  status,
	}
}

// MissingBind is a single member the engine could not resolve
type MissingBind struct {
	Class  string
	Member string
	Hash   uint64
}

// MissingBindsError is returned when a class load fails because the
// engine does not expose some of the members the bindings expect.
type MissingBindsError struct {
	Binds []MissingBind
}

func (e *MissingBindsError) Error() string {
	if len(e.Binds) == 0 {
		return "[resolve] not_found: no binds specified"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "missing %d method bind(s):\n", len(e.Binds))

	// Group by class for cleaner output
	byClass := make(map[string][]MissingBind)
	var order []string
	for _, mb := range e.Binds {
		if _, exists := byClass[mb.Class]; !exists {
			order = append(order, mb.Class)
		}
		byClass[mb.Class] = append(byClass[mb.Class], mb)
	}

	for _, class := range order {
		b.WriteString("\n  ")
		b.WriteString(class)
		b.WriteString(":\n")
		for _, mb := range byClass[class] {
			fmt.Fprintf(&b, "    - %s (hash %d)\n", mb.Member, mb.Hash)
		}
	}

	return strings.TrimSuffix(b.String(), "\n")
}

// Is reports whether target matches this error type
func (e *MissingBindsError) Is(target error) bool {
	_, ok := target.(*MissingBindsError)
	return ok
}
