// Package cpu isolates the unsafe hardware-register surface the kernel
// core needs: TSC reads, CR2/CR3, MSRs, CPUID, and the interrupt-enable
// flag. Per the design notes (§9), "keep the unsafe surface in one module";
// every other package receives plain values through the Backend interface
// and never touches a register directly.
package cpu

// Backend is the hardware-register surface the core depends on. A real
// boot path wires a backend that executes the corresponding instructions;
// tests and cmd/slopctl use SimBackend.
type Backend interface {
	// ReadTSC returns the timestamp counter.
	ReadTSC() uint64
	// ReadCR2 returns the faulting address recorded by the last page
	// fault.
	ReadCR2() uint64
	// ReadCR3 returns the physical address of the active page directory.
	ReadCR3() uint64
	// WriteCR3 installs a new page directory.
	WriteCR3(phys uint64)
	// ReadMSR reads a model-specific register.
	ReadMSR(n uint32) uint64
	// WriteMSR writes a model-specific register.
	WriteMSR(n uint32, v uint64)
	// CPUID returns eax/ebx/ecx/edx for the given leaf.
	CPUID(leaf uint32) (eax, ebx, ecx, edx uint32)
	// InterruptsEnabled reports the current interrupt-enable (IF) flag.
	InterruptsEnabled() bool
	// DisableInterrupts executes cli.
	DisableInterrupts()
	// EnableInterrupts executes sti.
	EnableInterrupts()
	// ReadPhys32/WritePhys32 model 32-bit MMIO access to a physical address
	// already mapped through the HHDM, used by the APIC/IOAPIC layer.
	ReadPhys32(hhdmVA uint64) uint32
	WritePhys32(hhdmVA uint64, v uint32)
}

// MSR numbers the APIC layer cares about.
const (
	MSRAPICBase = 0x1B
)

// APIC base MSR bit layout.
const (
	APICBaseEnableBit = 1 << 11
	APICBaseX2Bit     = 1 << 10
	APICBaseAddrMask  = 0xFFFFF000
)

// CPUID(1) feature bits relevant to APIC detection, in edx/ecx.
const (
	CPUIDEDXAPIC = 1 << 9  // edx bit 9: local APIC present
	CPUIDECXX2APIC = 1 << 21 // ecx bit 21: x2APIC supported
)
