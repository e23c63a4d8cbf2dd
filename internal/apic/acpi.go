package apic

import (
	"encoding/binary"

	kerrors "slopos/errors"
	"slopos/internal/cpu"
)

// RSDP (Root System Description Pointer) as consumed from the boot
// protocol's RSDP address (§6). Two layouts exist: the ACPI 1.0 (20-byte)
// and 2.0+ (36-byte) revisions; §4.B requires checking both checksums.
type RSDP struct {
	Signature      [8]byte
	Checksum       byte
	OEMID          [6]byte
	Revision       byte
	RSDTAddress    uint32
	Length         uint32 // rev2+ only
	XSDTAddress    uint64 // rev2+ only
	ExtendedCheck  byte   // rev2+ only
}

// ValidateRSDP checksums the RSDP per its revision: revision 0 checksums
// the first 20 bytes, revision 2+ additionally checksums the full
// extended structure, per §4.B "two lengths for rev0 vs rev2+."
func ValidateRSDP(raw []byte) (*RSDP, error) {
	if len(raw) < 20 {
		return nil, kerrors.ErrRSDPInvalid
	}
	if string(raw[0:8]) != "RSD PTR " {
		return nil, kerrors.ErrRSDPInvalid
	}
	if checksum8(raw[:20]) != 0 {
		return nil, kerrors.ErrRSDPInvalid
	}

	r := &RSDP{}
	copy(r.Signature[:], raw[0:8])
	r.Checksum = raw[8]
	copy(r.OEMID[:], raw[9:15])
	r.Revision = raw[15]
	r.RSDTAddress = binary.LittleEndian.Uint32(raw[16:20])

	if r.Revision >= 2 {
		if len(raw) < 36 {
			return nil, kerrors.ErrRSDPInvalid
		}
		if checksum8(raw[:36]) != 0 {
			return nil, kerrors.ErrRSDPInvalid
		}
		r.Length = binary.LittleEndian.Uint32(raw[20:24])
		r.XSDTAddress = binary.LittleEndian.Uint64(raw[24:32])
		r.ExtendedCheck = raw[32]
	}

	return r, nil
}

func checksum8(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// sdtHeaderSize is the common 36-byte ACPI system-description-table
// header every RSDT/XSDT/MADT starts with (signature, length, revision,
// checksum, OEM fields, creator fields), immediately followed by the
// RSDT/XSDT's payload: an array of pointers to other tables.
const sdtHeaderSize = 36

// FindMADT walks the XSDT (revision 2+) or RSDT pointer array rooted at
// rsdp, checksumming each pointed-to table until it finds the one
// signed "APIC" (§4.B: "finds the MADT via XSDT then RSDT"). Returns
// ErrMADTNotFound if neither table yields a valid MADT.
func FindMADT(backend cpu.Backend, rsdp *RSDP) ([]byte, error) {
	if rsdp.Revision >= 2 && rsdp.XSDTAddress != 0 {
		if raw, err := findMADTIn(backend, rsdp.XSDTAddress, 8); err == nil {
			return raw, nil
		}
	}
	return findMADTIn(backend, uint64(rsdp.RSDTAddress), 4)
}

// findMADTIn reads the SDT at sdtAddr (an RSDT or XSDT), validates its
// checksum, then walks its array of pointerWidth-byte table pointers
// (4 bytes for the RSDT, 8 for the XSDT) looking for one whose target
// checksums out with signature "APIC".
func findMADTIn(backend cpu.Backend, sdtAddr uint64, pointerWidth int) ([]byte, error) {
	if sdtAddr == 0 {
		return nil, kerrors.ErrMADTNotFound
	}
	head := readPhysBytes(backend, sdtAddr, sdtHeaderSize)
	length := binary.LittleEndian.Uint32(head[4:8])
	if length < sdtHeaderSize {
		return nil, kerrors.ErrMADTNotFound
	}

	sdt := readPhysBytes(backend, sdtAddr, int(length))
	if checksum8(sdt) != 0 {
		return nil, kerrors.ErrMADTNotFound
	}

	entries := (int(length) - sdtHeaderSize) / pointerWidth
	for i := 0; i < entries; i++ {
		off := sdtHeaderSize + i*pointerWidth
		var tableAddr uint64
		if pointerWidth == 8 {
			tableAddr = binary.LittleEndian.Uint64(sdt[off : off+8])
		} else {
			tableAddr = uint64(binary.LittleEndian.Uint32(sdt[off : off+4]))
		}

		tableHead := readPhysBytes(backend, tableAddr, 8)
		tableLength := binary.LittleEndian.Uint32(tableHead[4:8])
		if tableLength < 44 || tableLength > 4096 {
			continue
		}
		candidate := readPhysBytes(backend, tableAddr, int(tableLength))
		if string(candidate[0:4]) == "APIC" && checksum8(candidate) == 0 {
			return candidate, nil
		}
	}
	return nil, kerrors.ErrMADTNotFound
}

// readPhysBytes reads n bytes through backend's 32-bit-aligned MMIO
// surface, the same abstraction kernel.rsdpBytes uses for the RSDP
// itself. The result is n bytes long, but only whole 32-bit words are
// read: when n is not a multiple of 4, the trailing n%4 bytes stay zero.
func readPhysBytes(backend cpu.Backend, addr uint64, n int) []byte {
	out := make([]byte, n)
	for i := 0; i+4 <= n; i += 4 {
		v := backend.ReadPhys32(addr + uint64(i))
		out[i] = byte(v)
		out[i+1] = byte(v >> 8)
		out[i+2] = byte(v >> 16)
		out[i+3] = byte(v >> 24)
	}
	return out
}

// SDTHeader is the common ACPI system-description-table header.
type SDTHeader struct {
	Signature [4]byte
	Length    uint32
	Checksum  byte
}

// MADTEntryKind discriminates MADT (Multiple APIC Description Table)
// interrupt-controller-structure entries relevant to this core.
type MADTEntryKind byte

const (
	MADTIOAPIC            MADTEntryKind = 1
	MADTInterruptOverride MADTEntryKind = 2
)

// MADTIOAPICEntry mirrors an ACPI MADT type-1 entry.
type MADTIOAPICEntry struct {
	ID       uint8
	PhysAddr uint32
	GSIBase  uint32
}

// MADTOverrideEntry mirrors an ACPI MADT type-2 entry.
type MADTOverrideEntry struct {
	Bus       uint8
	LegacyIRQ uint8
	GSI       uint32
	Flags     uint16
}

// ParsedMADT is the product of walking a validated MADT: the IOAPIC
// controllers and interrupt-source overrides it described.
type ParsedMADT struct {
	IOAPICs   []MADTIOAPICEntry
	Overrides []MADTOverrideEntry
}

// MaxIOAPICs and MaxOverrides bound the APIC/IOAPIC descriptor table per
// §3: "Up to eight IOAPIC controllers... Up to thirty-two interrupt
// source overrides."
const (
	MaxIOAPICs   = 8
	MaxOverrides = 32
)

// ParseMADT validates the MADT's own checksum, then walks its
// variable-length entry list (immediately following the 44-byte fixed
// MADT header: SDTHeader plus local-APIC-address and flags fields),
// recording IOAPIC and interrupt-source-override entries.
func ParseMADT(raw []byte) (*ParsedMADT, error) {
	if len(raw) < 44 || string(raw[0:4]) != "APIC" {
		return nil, kerrors.ErrMADTNotFound
	}
	length := binary.LittleEndian.Uint32(raw[4:8])
	if int(length) > len(raw) {
		return nil, kerrors.ErrMADTNotFound
	}
	if checksum8(raw[:length]) != 0 {
		return nil, kerrors.ErrMADTNotFound
	}

	out := &ParsedMADT{}
	off := 44
	for off+2 <= int(length) {
		kind := MADTEntryKind(raw[off])
		entryLen := int(raw[off+1])
		if entryLen < 2 || off+entryLen > int(length) {
			break
		}
		body := raw[off : off+entryLen]
		switch kind {
		case MADTIOAPIC:
			if len(body) >= 12 && len(out.IOAPICs) < MaxIOAPICs {
				out.IOAPICs = append(out.IOAPICs, MADTIOAPICEntry{
					ID:       body[2],
					PhysAddr: binary.LittleEndian.Uint32(body[4:8]),
					GSIBase:  binary.LittleEndian.Uint32(body[8:12]),
				})
			}
		case MADTInterruptOverride:
			if len(body) >= 10 && len(out.Overrides) < MaxOverrides {
				out.Overrides = append(out.Overrides, MADTOverrideEntry{
					Bus:       body[2],
					LegacyIRQ: body[3],
					GSI:       binary.LittleEndian.Uint32(body[4:8]),
					Flags:     binary.LittleEndian.Uint16(body[8:10]),
				})
			}
		}
		off += entryLen
	}
	return out, nil
}
