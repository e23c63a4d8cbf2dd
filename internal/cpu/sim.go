package cpu

import "sync"

// SimBackend is an in-memory Backend used by tests, cmd/slopctl, and any
// caller that does not have real hardware underneath it. It models MMIO as
// a flat map keyed by the HHDM-mapped virtual address, and MSRs as a plain
// map, so the APIC/IOAPIC layer can be driven and observed without asm.
//
// Grounded on IreliaTable-gvisor's split between an abstract platform and a
// concrete subprocess backend (pkg/sentry/platform/systrap/subprocess.go):
// the rest of the kernel core only ever sees the Backend interface, never
// SimBackend's internals.
type SimBackend struct {
	mu sync.Mutex

	tsc uint64
	cr2 uint64
	cr3 uint64

	msrs map[uint32]uint64
	mmio map[uint64]uint32

	ifFlag bool

	cpuidEDX uint32
	cpuidECX uint32
}

// NewSimBackend returns a SimBackend with a local APIC and no x2APIC
// support reported by CPUID(1), interrupts initially enabled.
func NewSimBackend() *SimBackend {
	return &SimBackend{
		msrs:     map[uint32]uint64{},
		mmio:     map[uint64]uint32{},
		ifFlag:   true,
		cpuidEDX: CPUIDEDXAPIC,
	}
}

// SetTSC pins the simulated TSC, used to make random_next and last_tsc
// deterministic in tests.
func (s *SimBackend) SetTSC(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tsc = v
}

// SetCPUID configures the edx/ecx bits CPUID(1) reports, so APIC-detection
// tests can exercise both the x2APIC-capable and legacy-xAPIC-only paths.
func (s *SimBackend) SetCPUID(edx, ecx uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cpuidEDX = edx
	s.cpuidECX = ecx
}

func (s *SimBackend) ReadTSC() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tsc++
	return s.tsc
}

func (s *SimBackend) ReadCR2() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cr2
}

// SetCR2 is a test hook simulating a page-fault CPU writing CR2.
func (s *SimBackend) SetCR2(v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cr2 = v
}

func (s *SimBackend) ReadCR3() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cr3
}

func (s *SimBackend) WriteCR3(phys uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cr3 = phys
}

func (s *SimBackend) ReadMSR(n uint32) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.msrs[n]
}

func (s *SimBackend) WriteMSR(n uint32, v uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msrs[n] = v
}

func (s *SimBackend) CPUID(leaf uint32) (eax, ebx, ecx, edx uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if leaf == 1 {
		return 0, 0, s.cpuidECX, s.cpuidEDX
	}
	return 0, 0, 0, 0
}

func (s *SimBackend) InterruptsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ifFlag
}

func (s *SimBackend) DisableInterrupts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ifFlag = false
}

func (s *SimBackend) EnableInterrupts() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ifFlag = true
}

func (s *SimBackend) ReadPhys32(hhdmVA uint64) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mmio[hhdmVA]
}

func (s *SimBackend) WritePhys32(hhdmVA uint64, v uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mmio[hhdmVA] = v
}
