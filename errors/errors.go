// Package errors provides typed error handling for the kernel core.
//
// It defines the error taxonomy from the syscall gateway and exception
// layer: each error carries a Kind that says whether it collapses to a
// user-visible -1 or must reach kernel_panic. All errors support the
// standard errors.Is() and errors.As() functions for inspection.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error for accounting and propagation purposes.
type Kind int

const (
	// KindInvalidArg: bad user pointer, zero length where required,
	// geometry out of bounds.
	KindInvalidArg Kind = iota
	// KindNotOwned: fd or pending record not owned by the caller's
	// process/task.
	KindNotOwned
	// KindNotFound: path or handle absent.
	KindNotFound
	// KindUnsupported: framebuffer absent, etc.
	KindUnsupported
	// KindExhausted: a bounded table (tasks, handles, IOAPICs) is full.
	KindExhausted
	// KindFatalFault: unexpected CPU exception that cannot be resumed.
	KindFatalFault
	// KindFatalInvariant: a core invariant was violated (frame corruption,
	// IOAPIC programming failure, ledger depletion).
	KindFatalInvariant
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case KindInvalidArg:
		return "invalid argument"
	case KindNotOwned:
		return "not owned"
	case KindNotFound:
		return "not found"
	case KindUnsupported:
		return "unsupported"
	case KindExhausted:
		return "exhausted"
	case KindFatalFault:
		return "fatal fault"
	case KindFatalInvariant:
		return "fatal invariant violation"
	default:
		return "unknown error"
	}
}

// Fatal reports whether errors of this kind must propagate to
// kernel_panic rather than collapse to a syscall -1.
func (k Kind) Fatal() bool {
	return k == KindFatalFault || k == KindFatalInvariant
}

// KernelError is the concrete error type produced throughout the kernel
// core. Op names the failing operation (e.g. "roulette_result", "dispatch");
// Detail carries a human-readable explanation; Err wraps an underlying
// cause when one exists.
type KernelError struct {
	Op     string
	Kind   Kind
	Detail string
	Err    error
}

// Error returns the error message.
func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := ""
	if e.Op != "" {
		msg += fmt.Sprintf("%s: ", e.Op)
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether the error matches the target, comparing by Kind when
// the target is also a *KernelError.
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	if t, ok := target.(*KernelError); ok {
		return e.Kind == t.Kind
	}
	return false
}

// New creates a new KernelError of the given kind.
func New(kind Kind, op string, detail string) *KernelError {
	return &KernelError{Op: op, Kind: kind, Detail: detail}
}

// Wrap wraps an underlying error with a kind and operation name.
func Wrap(err error, kind Kind, op string) *KernelError {
	return &KernelError{Op: op, Err: err, Kind: kind}
}

// WrapWithDetail wraps an underlying error with a kind, operation, and
// human-readable detail.
func WrapWithDetail(err error, kind Kind, op string, detail string) *KernelError {
	return &KernelError{Op: op, Err: err, Kind: kind, Detail: detail}
}

// IsKind reports whether err is a *KernelError of the given kind.
func IsKind(err error, kind Kind) bool {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind == kind
	}
	return false
}

// GetKind returns the error kind if err is a *KernelError.
func GetKind(err error) (Kind, bool) {
	var kerr *KernelError
	if errors.As(err, &kerr) {
		return kerr.Kind, true
	}
	return 0, false
}

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
)
