package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Phase indicates where in an engine's lifecycle the error occurred
type Phase string

const (
	PhaseInit        Phase = "init"        // runtime or arena bring-up
	PhaseLoad        Phase = "load"        // image decode/validate/compile
	PhaseInstantiate Phase = "instantiate" // module instantiation
	PhaseResolve     Phase = "resolve"     // export lookup and signature check
	PhaseCall        Phase = "call"        // guest invocation
	PhaseBench       Phase = "bench"       // benchmark harness
	PhaseConfig      Phase = "config"      // configuration loading
)

// Kind categorizes the error
type Kind string

const (
	KindInit              Kind = "init"
	KindInvalidImage      Kind = "invalid_image"
	KindInstantiation     Kind = "instantiation"
	KindExportNotFound    Kind = "export_not_found"
	KindSignatureMismatch Kind = "signature_mismatch"
	KindTrap              Kind = "trap"
	KindBusy              Kind = "busy"
	KindUnavailable       Kind = "unavailable"
	KindInvalidInput      Kind = "invalid_input"
	KindNotFound          Kind = "not_found"
	KindNotInitialized    Kind = "not_initialized"
	KindOutOfBounds       Kind = "out_of_bounds"
)

// Error is the structured error type used by every backend
type Error struct {
	Value   any
	Cause   error
	Phase   Phase
	Kind    Kind
	Backend string
	Export  string
	Detail  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Backend != "" {
		b.WriteString(" (")
		b.WriteString(e.Backend)
		b.WriteByte(')')
	}

	if e.Export != "" {
		b.WriteString(" export ")
		b.WriteString(e.Export)
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

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// A target with an empty Phase matches on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase != "" && t.Phase != e.Phase {
		return false
	}
	return e.Kind == t.Kind
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

// Backend sets the backend name
func (b *Builder) Backend(name string) *Builder {
	b.err.Backend = name
	return b
}

// Export sets the export name
func (b *Builder) Export(name string) *Builder {
	b.err.Export = name
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

// Targets for errors.Is. They match on Kind regardless of phase.
var (
	ErrInit           = &Error{Kind: KindInit}
	ErrInvalidImage   = &Error{Kind: KindInvalidImage}
	ErrInstantiation  = &Error{Kind: KindInstantiation}
	ErrExportNotFound = &Error{Kind: KindExportNotFound}
	ErrSignature      = &Error{Kind: KindSignatureMismatch}
	ErrTrap           = &Error{Kind: KindTrap}
	ErrBusy           = &Error{Kind: KindBusy}
	ErrUnavailable    = &Error{Kind: KindUnavailable}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
)

// Convenience constructors for the engine error taxonomy

// InitFailed creates an error for a runtime or arena that could not be brought up
func InitFailed(backend, detail string, cause error) *Error {
	return &Error{
		Phase:   PhaseInit,
		Kind:    KindInit,
		Backend: backend,
		Detail:  detail,
		Cause:   cause,
	}
}

// Unavailable creates an error for a backend that is not compiled into this binary
func Unavailable(backend, reason string) *Error {
	return &Error{
		Phase:   PhaseInit,
		Kind:    KindUnavailable,
		Backend: backend,
		Detail:  reason,
	}
}

// Load creates an error for a malformed or unusable module image
func Load(backend, detail string, cause error) *Error {
	return &Error{
		Phase:   PhaseLoad,
		Kind:    KindInvalidImage,
		Backend: backend,
		Detail:  detail,
		Cause:   cause,
	}
}

// Instantiation creates an instantiation error
func Instantiation(backend string, cause error) *Error {
	return &Error{
		Phase:   PhaseInstantiate,
		Kind:    KindInstantiation,
		Backend: backend,
		Detail:  "instantiate module",
		Cause:   cause,
	}
}

// ExportNotFound creates an error for an export absent from the instance
func ExportNotFound(backend, name string) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindExportNotFound,
		Backend: backend,
		Export:  name,
		Detail:  fmt.Sprintf("function %q not exported", name),
	}
}

// SignatureMismatch creates an error for an export whose core signature differs
func SignatureMismatch(backend, name, want, got string) *Error {
	return &Error{
		Phase:   PhaseResolve,
		Kind:    KindSignatureMismatch,
		Backend: backend,
		Export:  name,
		Detail:  fmt.Sprintf("want %s, got %s", want, got),
	}
}

// Trap creates an error for a guest fault during a call
func Trap(backend, name string, cause error) *Error {
	return &Error{
		Phase:   PhaseCall,
		Kind:    KindTrap,
		Backend: backend,
		Export:  name,
		Cause:   cause,
	}
}

// Latch records cause on e if it has none yet and returns e. A caller on a
// real-time path builds e once and reports every later failure through it
// without allocating; the first cause is the one kept.
func (e *Error) Latch(cause error) *Error {
	if e.Cause == nil {
		e.Cause = cause
	}
	return e
}

// Busy creates an error for a slot that is already held
func Busy(phase Phase, backend, detail string) *Error {
	return &Error{
		Phase:   phase,
		Kind:    KindBusy,
		Backend: backend,
		Detail:  detail,
	}
}

// NotInitialized creates a not-initialized error for a missing runtime or instance
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

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, offset, length, size uint32) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("range [%d, %d) exceeds memory size %d", offset, uint64(offset)+uint64(length), size),
		Value:  offset,
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

// KindOf returns the Kind of the first *Error in err's chain, or "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// PhaseOf returns the Phase of the first *Error in err's chain, or "".
func PhaseOf(err error) Phase {
	var e *Error
	if errors.As(err, &e) {
		return e.Phase
	}
	return ""
}

// IsTrap reports whether err is a guest trap
func IsTrap(err error) bool {
	return errors.Is(err, ErrTrap)
}

// IsInit reports whether err prevented a backend from coming up at all
func IsInit(err error) bool {
	return errors.Is(err, ErrInit) || errors.Is(err, ErrUnavailable)
}

// IsLoad reports whether err marks the supplied image unusable by a backend
func IsLoad(err error) bool {
	switch KindOf(err) {
	case KindInvalidImage, KindInstantiation, KindExportNotFound, KindSignatureMismatch:
		return true
	}
	return false
}
