// Package idt builds the 256-entry interrupt descriptor table model and
// the exception-naming table consulted by panic output and the IRQ
// dispatcher's frame-integrity failure logs (§4.A).
//
// There is no real assembly here — no freestanding Go program can install a
// literal IDT without hand-written stubs — so this package models the
// *decisions* a stub-installer must make (which vector gets which IST,
// what its human name is) as plain data, which is what a generator for the
// real stubs would consume. Grounded on biscuit's vector constants
// (INT_KBD, INT_COM1, INT_DISK, INT_MSI0..7 in
// justanotherdot-biscuit/.../main.go) for the IRQ-vector naming convention.
package idt

import "slopos/internal/trapframe"

// Entry models one IDT slot: the vector it serves, its IST index, and
// whether the CPU pushes an error code for it (informs whether the stub
// must synthesize one, per §4.A).
type Entry struct {
	Vector       uint8
	Name         string
	ISTIndex     int
	HasErrorCode bool
}

var exceptionNames = [32]string{
	0:  "Divide Error",
	1:  "Debug",
	2:  "NMI",
	3:  "Breakpoint",
	4:  "Overflow",
	5:  "BOUND Range Exceeded",
	6:  "Invalid Opcode",
	7:  "Device Not Available",
	8:  "Double Fault",
	9:  "Coprocessor Segment Overrun",
	10: "Invalid TSS",
	11: "Segment Not Present",
	12: "Stack-Segment Fault",
	13: "General Protection Fault",
	14: "Page Fault",
	15: "Reserved",
	16: "x87 Floating-Point Exception",
	17: "Alignment Check",
	18: "Machine Check",
	19: "SIMD Floating-Point Exception",
	20: "Virtualization Exception",
	21: "Control Protection Exception",
}

// exceptionsWithErrorCode lists vectors for which the CPU itself pushes an
// error code; all others need the stub to push a synthetic zero so the
// frame layout stays uniform (§4.A).
var exceptionsWithErrorCode = map[uint8]bool{
	8:  true, // double fault
	10: true, // invalid TSS
	11: true, // segment not present
	12: true, // stack-segment fault
	13: true, // general protection fault
	14: true, // page fault
	17: true, // alignment check
	21: true, // control protection
}

// ExceptionName returns the human name for vector v, or "Reserved" if v is
// outside the exception window or otherwise unnamed.
func ExceptionName(v uint8) string {
	if v > trapframe.ExceptionLast {
		return "Reserved"
	}
	if name := exceptionNames[v]; name != "" {
		return name
	}
	return "Reserved"
}

// HasErrorCode reports whether the CPU pushes an error code for vector v.
func HasErrorCode(v uint8) bool {
	return exceptionsWithErrorCode[v]
}

// Build constructs the full 256-entry table description: vectors 0-31 as
// named exceptions with their IST assignment, 32-47 as the generic IRQ
// window sharing one stub, 128 as the syscall gate, and everything else
// reserved/unused.
func Build() [256]Entry {
	var table [256]Entry
	for v := 0; v < 256; v++ {
		vec := uint8(v)
		switch trapframe.Classify(vec) {
		case trapframe.ClassException:
			table[v] = Entry{
				Vector:       vec,
				Name:         ExceptionName(vec),
				ISTIndex:     trapframe.ISTForVector(vec),
				HasErrorCode: HasErrorCode(vec),
			}
		case trapframe.ClassIRQ:
			table[v] = Entry{Vector: vec, Name: "IRQ", ISTIndex: trapframe.ISTNone}
		case trapframe.ClassSyscall:
			table[v] = Entry{Vector: vec, Name: "Syscall Gate", ISTIndex: trapframe.ISTNone}
		default:
			table[v] = Entry{Vector: vec, Name: "Reserved"}
		}
	}
	return table
}
