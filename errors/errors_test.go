package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKind_String(t *testing.T) {
	tests := []struct {
		kind     Kind
		expected string
	}{
		{KindInvalidArg, "invalid argument"},
		{KindNotOwned, "not owned"},
		{KindNotFound, "not found"},
		{KindUnsupported, "unsupported"},
		{KindExhausted, "exhausted"},
		{KindFatalFault, "fatal fault"},
		{KindFatalInvariant, "fatal invariant violation"},
		{Kind(999), "unknown error"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.expected {
				t.Errorf("Kind.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKind_Fatal(t *testing.T) {
	fatal := []Kind{KindFatalFault, KindFatalInvariant}
	for _, k := range fatal {
		if !k.Fatal() {
			t.Errorf("%v.Fatal() = false, want true", k)
		}
	}
	recoverable := []Kind{KindInvalidArg, KindNotOwned, KindNotFound, KindUnsupported, KindExhausted}
	for _, k := range recoverable {
		if k.Fatal() {
			t.Errorf("%v.Fatal() = true, want false", k)
		}
	}
}

func TestKernelError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *KernelError
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "<nil>",
		},
		{
			name: "full error",
			err: &KernelError{
				Op:     "roulette_result",
				Kind:   KindNotFound,
				Detail: "no pending spin",
				Err:    fmt.Errorf("slot empty"),
			},
			expected: "roulette_result: no pending spin: slot empty",
		},
		{
			name: "kind only",
			err: &KernelError{
				Kind: KindUnsupported,
			},
			expected: "unsupported",
		},
		{
			name: "with underlying error, no detail",
			err: &KernelError{
				Op:   "dispatch",
				Kind: KindFatalInvariant,
				Err:  fmt.Errorf("frame mismatch"),
			},
			expected: "dispatch: fatal invariant violation: frame mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("KernelError.Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestKernelError_Unwrap(t *testing.T) {
	underlying := fmt.Errorf("underlying error")
	err := &KernelError{Op: "test", Kind: KindInvalidArg, Err: underlying}

	if got := err.Unwrap(); got != underlying {
		t.Errorf("Unwrap() = %v, want %v", got, underlying)
	}

	var nilErr *KernelError
	if got := nilErr.Unwrap(); got != nil {
		t.Errorf("nil.Unwrap() = %v, want nil", got)
	}
}

func TestKernelError_Is(t *testing.T) {
	err1 := &KernelError{Kind: KindNotFound, Op: "test1"}
	err2 := &KernelError{Kind: KindNotFound, Op: "test2"}
	err3 := &KernelError{Kind: KindUnsupported, Op: "test3"}

	if !err1.Is(err2) {
		t.Error("err1.Is(err2) should be true (same kind)")
	}
	if err1.Is(err3) {
		t.Error("err1.Is(err3) should be false (different kind)")
	}
	if err1.Is(fmt.Errorf("some error")) {
		t.Error("err1.Is(fmt.Errorf(...)) should be false")
	}

	var nilErr *KernelError
	if !nilErr.Is(nil) {
		t.Error("nil.Is(nil) should be true")
	}
}

func TestNew(t *testing.T) {
	err := New(KindInvalidArg, "validate", "rectangle dims out of bounds")

	if err.Kind != KindInvalidArg {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidArg)
	}
	if err.Op != "validate" {
		t.Errorf("Op = %q, want %q", err.Op, "validate")
	}
	if err.Detail != "rectangle dims out of bounds" {
		t.Errorf("Detail = %q, want %q", err.Detail, "rectangle dims out of bounds")
	}
}

func TestWrap(t *testing.T) {
	underlying := fmt.Errorf("range crosses kernel space")
	err := Wrap(underlying, KindInvalidArg, "copy_from_user")

	if err.Err != underlying {
		t.Error("Wrapped error should preserve underlying error")
	}
	if err.Kind != KindInvalidArg {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidArg)
	}
	if err.Op != "copy_from_user" {
		t.Errorf("Op = %q, want %q", err.Op, "copy_from_user")
	}
}

func TestWrapWithDetail(t *testing.T) {
	underlying := fmt.Errorf("write failed")
	err := WrapWithDetail(underlying, KindInvalidArg, "write", "buffer null")

	if err.Detail != "buffer null" {
		t.Errorf("Detail = %q, want %q", err.Detail, "buffer null")
	}
}

func TestIsKind(t *testing.T) {
	err := &KernelError{Kind: KindNotFound}
	wrapped := fmt.Errorf("wrapped: %w", err)

	if !IsKind(err, KindNotFound) {
		t.Error("IsKind(err, KindNotFound) should be true")
	}
	if !IsKind(wrapped, KindNotFound) {
		t.Error("IsKind(wrapped, KindNotFound) should be true")
	}
	if IsKind(err, KindUnsupported) {
		t.Error("IsKind(err, KindUnsupported) should be false")
	}
	if IsKind(fmt.Errorf("plain error"), KindNotFound) {
		t.Error("IsKind(plain error, KindNotFound) should be false")
	}
}

func TestGetKind(t *testing.T) {
	err := &KernelError{Kind: KindExhausted}
	wrapped := fmt.Errorf("wrapped: %w", err)

	kind, ok := GetKind(err)
	if !ok || kind != KindExhausted {
		t.Errorf("GetKind(err) = (%v, %v), want (%v, true)", kind, ok, KindExhausted)
	}

	kind, ok = GetKind(wrapped)
	if !ok || kind != KindExhausted {
		t.Errorf("GetKind(wrapped) = (%v, %v), want (%v, true)", kind, ok, KindExhausted)
	}

	_, ok = GetKind(fmt.Errorf("plain error"))
	if ok {
		t.Error("GetKind(plain error) should return false")
	}
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  *KernelError
		kind Kind
	}{
		{"ErrTaskNotFound", ErrTaskNotFound, KindNotFound},
		{"ErrTaskNotBlocked", ErrTaskNotBlocked, KindInvalidArg},
		{"ErrTasksExhausted", ErrTasksExhausted, KindExhausted},
		{"ErrBadUserPointer", ErrBadUserPointer, KindInvalidArg},
		{"ErrUnknownSyscall", ErrUnknownSyscall, KindInvalidArg},
		{"ErrNotOwnedHandle", ErrNotOwnedHandle, KindNotOwned},
		{"ErrSpinAlreadyPending", ErrSpinAlreadyPending, KindInvalidArg},
		{"ErrTokenMismatch", ErrTokenMismatch, KindInvalidArg},
		{"ErrIOAPICRouteFailed", ErrIOAPICRouteFailed, KindFatalInvariant},
		{"ErrFrameCorrupted", ErrFrameCorrupted, KindFatalInvariant},
		{"ErrLedgerInsolvent", ErrLedgerInsolvent, KindFatalInvariant},
		{"ErrFramebufferAbsent", ErrFramebufferAbsent, KindUnsupported},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Kind != tt.kind {
				t.Errorf("%s.Kind = %v, want %v", tt.name, tt.err.Kind, tt.kind)
			}
			wrapped := Wrap(fmt.Errorf("underlying"), tt.kind, "test")
			if !errors.Is(wrapped, tt.err) {
				t.Errorf("errors.Is(wrapped, %s) should be true", tt.name)
			}
		})
	}
}

func TestErrorChain(t *testing.T) {
	underlying := fmt.Errorf("slot empty")
	err1 := Wrap(underlying, KindNotFound, "roulette_result")
	err2 := fmt.Errorf("syscall failed: %w", err1)

	if !errors.Is(err2, ErrNoSpinPending) {
		t.Error("errors.Is should find ErrNoSpinPending in chain")
	}

	var kerr *KernelError
	if !errors.As(err2, &kerr) {
		t.Error("errors.As should find KernelError in chain")
	}
	if kerr.Op != "roulette_result" {
		t.Errorf("kerr.Op = %q, want %q", kerr.Op, "roulette_result")
	}

	if errors.Unwrap(err1) != underlying {
		t.Error("Unwrap should return underlying error")
	}
}
