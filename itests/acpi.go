package itests

import "slopos/internal/cpu"

func sum8(b []byte) byte {
	var s byte
	for _, c := range b {
		s += c
	}
	return s
}

func pokeBytes(backend *cpu.SimBackend, addr uint64, raw []byte) {
	for i := 0; i+4 <= len(raw); i += 4 {
		v := uint32(raw[i]) | uint32(raw[i+1])<<8 | uint32(raw[i+2])<<16 | uint32(raw[i+3])<<24
		backend.WritePhys32(addr+uint64(i), v)
	}
}

// stageACPI writes a minimal revision-0 RSDP, a one-entry RSDT, and a
// single-IOAPIC MADT into backend's MMIO space, the same fixture
// internal/kernel's own tests use, so every scenario boots against a
// working ACPI/IOAPIC path — walked via the real XSDT/RSDT lookup
// (apic.FindMADT), not a shortcut straight to the MADT.
func stageACPI(backend *cpu.SimBackend) {
	rsdp := make([]byte, 20)
	copy(rsdp[0:8], "RSD PTR ")
	rsdp[15] = 0 // revision 0
	rsdp[16] = byte(rsdtAddr & 0xFF)
	rsdp[17] = byte(rsdtAddr >> 8)
	rsdp[18] = byte(rsdtAddr >> 16)
	rsdp[19] = byte(rsdtAddr >> 24)
	rsdp[8] = 0
	rsdp[8] = byte(256 - int(sum8(rsdp)))
	pokeBytes(backend, rsdpAddr, rsdp)

	madt := make([]byte, 44+12)
	copy(madt[0:4], "APIC")
	length := uint32(len(madt))
	madt[4] = byte(length)
	madt[5] = byte(length >> 8)
	madt[6] = byte(length >> 16)
	madt[7] = byte(length >> 24)
	off := 44
	madt[off+0] = 1
	madt[off+1] = 12
	madt[off+2] = 2
	madt[off+4] = 0x00
	madt[off+5] = 0x00
	madt[off+6] = 0xEC
	madt[off+7] = 0xFE
	madt[9] = 0
	madt[9] = byte(256 - int(sum8(madt)))
	pokeBytes(backend, madtAddr, madt)

	rsdt := make([]byte, 36+4)
	copy(rsdt[0:4], "RSDT")
	rsdtLen := uint32(len(rsdt))
	rsdt[4] = byte(rsdtLen)
	rsdt[5] = byte(rsdtLen >> 8)
	rsdt[6] = byte(rsdtLen >> 16)
	rsdt[7] = byte(rsdtLen >> 24)
	rsdt[36] = byte(madtAddr & 0xFF)
	rsdt[37] = byte(madtAddr >> 8)
	rsdt[38] = byte(madtAddr >> 16)
	rsdt[39] = byte(madtAddr >> 24)
	rsdt[9] = 0
	rsdt[9] = byte(256 - int(sum8(rsdt)))
	pokeBytes(backend, rsdtAddr, rsdt)
}
