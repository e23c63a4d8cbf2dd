package cpu

import "testing"

func TestSimBackend_TSCMonotonic(t *testing.T) {
	b := NewSimBackend()
	a := b.ReadTSC()
	c := b.ReadTSC()
	if c <= a {
		t.Fatalf("ReadTSC should be monotonically increasing, got %d then %d", a, c)
	}
}

func TestSimBackend_CR3RoundTrip(t *testing.T) {
	b := NewSimBackend()
	b.WriteCR3(0x1000)
	if got := b.ReadCR3(); got != 0x1000 {
		t.Fatalf("ReadCR3() = %#x, want %#x", got, 0x1000)
	}
}

func TestSimBackend_MSRRoundTrip(t *testing.T) {
	b := NewSimBackend()
	b.WriteMSR(MSRAPICBase, 0xFEE00000|APICBaseEnableBit)
	got := b.ReadMSR(MSRAPICBase)
	if got&APICBaseAddrMask != 0xFEE00000 {
		t.Fatalf("MSR address bits = %#x, want %#x", got&APICBaseAddrMask, 0xFEE00000)
	}
	if got&APICBaseEnableBit == 0 {
		t.Fatal("MSR enable bit should be set")
	}
}

func TestSimBackend_CPUIDReportsAPIC(t *testing.T) {
	b := NewSimBackend()
	_, _, _, edx := b.CPUID(1)
	if edx&CPUIDEDXAPIC == 0 {
		t.Fatal("default SimBackend should report a local APIC present")
	}
}

func TestSimBackend_InterruptFlag(t *testing.T) {
	b := NewSimBackend()
	if !b.InterruptsEnabled() {
		t.Fatal("interrupts should start enabled")
	}
	b.DisableInterrupts()
	if b.InterruptsEnabled() {
		t.Fatal("DisableInterrupts should clear the flag")
	}
	b.EnableInterrupts()
	if !b.InterruptsEnabled() {
		t.Fatal("EnableInterrupts should set the flag")
	}
}

func TestSimBackend_MMIORoundTrip(t *testing.T) {
	b := NewSimBackend()
	b.WritePhys32(0xFEE00020, 0x01000000)
	if got := b.ReadPhys32(0xFEE00020); got != 0x01000000 {
		t.Fatalf("ReadPhys32() = %#x, want %#x", got, 0x01000000)
	}
}
