package apic

// Legacy 8259 PIC I/O ports and the quiesce sequence from §4.B: once the
// local APIC and IOAPIC take over interrupt delivery, the PIC must be
// fully masked so its spurious vectors never fire, but left wired enough
// that a stray in-service bit can still be acknowledged.
const (
	picMasterCommand = 0x20
	picMasterData    = 0x21
	picSlaveCommand  = 0xA0
	picSlaveData     = 0xA1

	picEOI = 0x20
)

// PortIO is the minimal port-I/O surface the PIC quiesce needs. A real
// boot sequence backs this with inb/outb; tests back it with a fake.
type PortIO interface {
	Out8(port uint16, v uint8)
}

// QuiescePIC masks every line on both the master and slave 8259s, then
// sends an EOI to each command port to clear any interrupt left
// in-service from before the APIC took over. Masking both data ports
// with 0xFF first (before any EOI) matches §4.B's ordering: a masked
// line cannot re-latch while the stale in-service bit is being cleared.
func QuiescePIC(io PortIO) {
	io.Out8(picMasterData, 0xFF)
	io.Out8(picSlaveData, 0xFF)
	io.Out8(picMasterCommand, picEOI)
	io.Out8(picSlaveCommand, picEOI)
}
