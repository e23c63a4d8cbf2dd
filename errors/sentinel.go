// Package errors provides predefined sentinel errors for common failure
// cases in the kernel core.
package errors

// Task lifecycle errors.
var (
	// ErrTaskNotFound indicates the task_id does not name a live TCB.
	ErrTaskNotFound = &KernelError{Kind: KindNotFound, Detail: "task not found"}

	// ErrTaskNotBlocked indicates a wake was attempted on a task that is
	// not currently Blocked.
	ErrTaskNotBlocked = &KernelError{Kind: KindInvalidArg, Detail: "task is not blocked"}

	// ErrTasksExhausted indicates the TCB table has no free slot.
	ErrTasksExhausted = &KernelError{Kind: KindExhausted, Detail: "no free task slots"}

	// ErrInvalidTaskID indicates INVALID_TASK_ID (0) was used as a handle.
	ErrInvalidTaskID = &KernelError{Kind: KindInvalidArg, Detail: "invalid task id"}
)

// User-copy / pointer validation errors.
var (
	// ErrBadUserPointer indicates a user pointer/range is not
	// user-accessible under the active page directory.
	ErrBadUserPointer = &KernelError{Kind: KindInvalidArg, Detail: "bad user pointer"}

	// ErrStringNotTerminated indicates copy_user_str ran out of capacity
	// before finding a NUL.
	ErrStringNotTerminated = &KernelError{Kind: KindInvalidArg, Detail: "user string not NUL-terminated within capacity"}

	// ErrGeometryOutOfBounds indicates a rectangle/circle/text geometry
	// argument failed its bound check.
	ErrGeometryOutOfBounds = &KernelError{Kind: KindInvalidArg, Detail: "geometry argument out of bounds"}
)

// Syscall gateway errors.
var (
	// ErrUnknownSyscall indicates rax did not name a table entry.
	ErrUnknownSyscall = &KernelError{Kind: KindInvalidArg, Detail: "unknown syscall number"}

	// ErrNotOwnedHandle indicates the fd or pending record belongs to a
	// different process/task than the caller.
	ErrNotOwnedHandle = &KernelError{Kind: KindNotOwned, Detail: "handle not owned by caller"}

	// ErrHandlesExhausted indicates the per-process handle table is full.
	ErrHandlesExhausted = &KernelError{Kind: KindExhausted, Detail: "handle table full"}
)

// Fate / roulette errors.
var (
	// ErrSpinAlreadyPending indicates a second spin was attempted before
	// the first was consumed by roulette_result.
	ErrSpinAlreadyPending = &KernelError{Kind: KindInvalidArg, Detail: "spin already pending for this task"}

	// ErrNoSpinPending indicates roulette_result was called with no
	// outstanding spin for the caller.
	ErrNoSpinPending = &KernelError{Kind: KindNotFound, Detail: "no pending spin for this task"}

	// ErrTokenMismatch indicates the high 32 bits of the packed result did
	// not match the stored token.
	ErrTokenMismatch = &KernelError{Kind: KindInvalidArg, Detail: "fate token mismatch"}
)

// APIC/IOAPIC/IRQ errors.
var (
	// ErrAPICNotDetected indicates CPUID(1) reported no local APIC.
	ErrAPICNotDetected = &KernelError{Kind: KindFatalInvariant, Detail: "local APIC not detected"}

	// ErrRSDPInvalid indicates the RSDP checksum failed.
	ErrRSDPInvalid = &KernelError{Kind: KindFatalInvariant, Detail: "RSDP checksum invalid"}

	// ErrMADTNotFound indicates no "APIC" table was found via XSDT/RSDT.
	ErrMADTNotFound = &KernelError{Kind: KindFatalInvariant, Detail: "MADT not found"}

	// ErrIOAPICRouteFailed indicates programming a redirection entry
	// failed during init — fatal by design (§4.C).
	ErrIOAPICRouteFailed = &KernelError{Kind: KindFatalInvariant, Detail: "IOAPIC route programming failed"}

	// ErrIOAPICsExhausted indicates more than eight IOAPIC controllers
	// were reported by the MADT.
	ErrIOAPICsExhausted = &KernelError{Kind: KindExhausted, Detail: "too many IOAPIC controllers"}

	// ErrOverridesExhausted indicates more than thirty-two interrupt
	// source overrides were reported by the MADT.
	ErrOverridesExhausted = &KernelError{Kind: KindExhausted, Detail: "too many interrupt source overrides"}

	// ErrInvalidIRQLine indicates a legacy IRQ number outside [0, 16).
	ErrInvalidIRQLine = &KernelError{Kind: KindInvalidArg, Detail: "invalid IRQ line"}

	// ErrFrameCorrupted indicates a handler mutated the saved cs:rip —
	// fatal (§4.C step 7).
	ErrFrameCorrupted = &KernelError{Kind: KindFatalInvariant, Detail: "IRQ: frame corrupted"}
)

// Currency ledger errors.
var (
	// ErrLedgerInsolvent indicates the balance crossed to <= 0 — the
	// scheduler's solvency check must panic.
	ErrLedgerInsolvent = &KernelError{Kind: KindFatalInvariant, Detail: "W/L ledger insolvent"}
)

// Filesystem / handle errors.
var (
	// ErrPathNotFound indicates a RAMFS lookup found no entry.
	ErrPathNotFound = &KernelError{Kind: KindNotFound, Detail: "path not found"}

	// ErrFramebufferAbsent indicates fb_info/graphics primitives were
	// called with no framebuffer handed off by the boot protocol.
	ErrFramebufferAbsent = &KernelError{Kind: KindUnsupported, Detail: "framebuffer not available"}
)

// Boot configuration errors.
var (
	// ErrCommandLineTooLong indicates the kernel command line exceeded
	// bootinfo.MaxCommandLineBytes.
	ErrCommandLineTooLong = &KernelError{Kind: KindInvalidArg, Detail: "kernel command line too long"}
)
