package apic

import (
	"slopos/internal/cpu"

	kerrors "slopos/errors"
)

// IOAPIC register offsets (index/window pair at the MMIO base).
const (
	RegSelect = 0x00
	RegWindow = 0x10
)

// IOAPIC indirect register indices.
const (
	IOAPICID  = 0x00
	IOAPICVer = 0x01
	IOAPICArb = 0x02
	IOREDTBL0 = 0x10 // redirection entry k occupies IOREDTBL0 + 2*k (low) and +1 (high)
)

// Redirection-entry bit fields.
const (
	RedirMasked       = 1 << 16
	RedirActiveLow    = 1 << 13
	RedirLevelTrigger = 1 << 15
)

// Controller models one IOAPIC per §3: MMIO base, GSI base, redirection
// entry count. Grounded on linux/devices.go's bounded device-node table
// (teacher), generalized from device major/minor pairs to GSI ranges.
type Controller struct {
	backend  cpu.Backend
	mmioBase uint64
	id       uint8
	gsiBase  uint32
	entries  int
}

// NewController returns a Controller bound to backend at the given
// HHDM-mapped MMIO base, with GSI base as reported by the MADT.
func NewController(backend cpu.Backend, mmioBase uint64, id uint8, gsiBase uint32) *Controller {
	return &Controller{backend: backend, mmioBase: mmioBase, id: id, gsiBase: gsiBase}
}

func (c *Controller) selectReg(index uint32) {
	c.backend.WritePhys32(c.mmioBase+RegSelect, index)
}

func (c *Controller) readWindow() uint32 {
	return c.backend.ReadPhys32(c.mmioBase + RegWindow)
}

func (c *Controller) writeWindow(v uint32) {
	c.backend.WritePhys32(c.mmioBase+RegWindow, v)
}

// Probe reads IOAPICVER to learn the controller's redirection-entry
// count, caching it for GSI-range membership checks.
func (c *Controller) Probe() {
	c.selectReg(IOAPICVer)
	ver := c.readWindow()
	c.entries = int((ver>>16)&0xFF) + 1
}

// Handles reports whether GSI g falls within this controller's range.
func (c *Controller) Handles(gsi uint32) bool {
	return gsi >= c.gsiBase && gsi < c.gsiBase+uint32(c.entries)
}

// Route programs GSI g's redirection entry to deliver vector on the
// given polarity/trigger mode, masked or not. Per §4.B, the high dword
// (destination) is written before the low dword (vector/flags), so a
// concurrent interrupt never observes a vector with no destination set.
func (c *Controller) Route(gsi uint32, vector uint8, activeLow, levelTrigger, masked bool, apicID uint8) error {
	if !c.Handles(gsi) {
		return kerrors.ErrInvalidIRQLine
	}
	index := gsi - c.gsiBase
	low := IOREDTBL0 + 2*index
	high := low + 1

	c.selectReg(high)
	c.writeWindow(uint32(apicID) << 24)

	flags := uint32(vector)
	if activeLow {
		flags |= RedirActiveLow
	}
	if levelTrigger {
		flags |= RedirLevelTrigger
	}
	if masked {
		flags |= RedirMasked
	}
	c.selectReg(low)
	c.writeWindow(flags)
	return nil
}

// Mask and Unmask toggle only the mask bit of GSI g's low redirection
// dword, leaving vector/polarity/trigger untouched. Both are idempotent:
// masking an already-masked line (or unmasking an already-unmasked one)
// is a no-op read-modify-write.
func (c *Controller) Mask(gsi uint32) error {
	return c.setMaskBit(gsi, true)
}

func (c *Controller) Unmask(gsi uint32) error {
	return c.setMaskBit(gsi, false)
}

func (c *Controller) setMaskBit(gsi uint32, masked bool) error {
	if !c.Handles(gsi) {
		return kerrors.ErrInvalidIRQLine
	}
	index := gsi - c.gsiBase
	low := IOREDTBL0 + 2*index
	c.selectReg(low)
	v := c.readWindow()
	if masked {
		v |= RedirMasked
	} else {
		v &^= RedirMasked
	}
	c.selectReg(low)
	c.writeWindow(v)
	return nil
}

// Table holds up to MaxIOAPICs controllers and MaxOverrides legacy-IRQ
// overrides, and resolves a legacy ISA IRQ line to a (controller, GSI,
// polarity, trigger) routing decision.
type Table struct {
	controllers []*Controller
	overrides   []MADTOverrideEntry
}

// NewTable builds a Table from a ParsedMADT's IOAPIC and override
// entries, bounded to MaxIOAPICs/MaxOverrides (ParseMADT already
// enforces the bound; this guards direct construction too).
func NewTable(backend cpu.Backend, hhdmBase uint64, madt *ParsedMADT) (*Table, error) {
	if len(madt.IOAPICs) == 0 {
		return nil, kerrors.ErrIOAPICsExhausted
	}
	if len(madt.IOAPICs) > MaxIOAPICs {
		return nil, kerrors.ErrIOAPICsExhausted
	}
	if len(madt.Overrides) > MaxOverrides {
		return nil, kerrors.ErrOverridesExhausted
	}

	t := &Table{overrides: madt.Overrides}
	for _, e := range madt.IOAPICs {
		ctrl := NewController(backend, hhdmBase+uint64(e.PhysAddr), e.ID, e.GSIBase)
		ctrl.Probe()
		t.controllers = append(t.controllers, ctrl)
	}
	return t, nil
}

// LegacyRoute is the resolved routing decision for an ISA IRQ line.
type LegacyRoute struct {
	GSI          uint32
	ActiveLow    bool
	LevelTrigger bool
}

// ResolveLegacyIRQ translates legacy ISA IRQ line irq to a GSI and
// polarity/trigger pair per §4.B: absent a matching override, the
// mapping is identity (gsi=irq) with active-high, edge-triggered
// semantics; an override whose MPS INTI flags read "00" (bus-conform)
// for polarity/trigger also resolves to active-high/edge, matching the
// ISA bus default the override is conforming to.
func (t *Table) ResolveLegacyIRQ(irq uint8) LegacyRoute {
	for _, ov := range t.overrides {
		if ov.LegacyIRQ != irq {
			continue
		}
		polarity := ov.Flags & 0x3
		trigger := (ov.Flags >> 2) & 0x3
		route := LegacyRoute{GSI: ov.GSI}
		switch polarity {
		case 0b11:
			route.ActiveLow = true
		case 0b01, 0b00:
			route.ActiveLow = false
		}
		switch trigger {
		case 0b11:
			route.LevelTrigger = true
		case 0b01, 0b00:
			route.LevelTrigger = false
		}
		return route
	}
	return LegacyRoute{GSI: uint32(irq), ActiveLow: false, LevelTrigger: false}
}

// ControllerFor returns the controller owning GSI g, or
// ErrIOAPICRouteFailed if none of the table's controllers claim it.
func (t *Table) ControllerFor(gsi uint32) (*Controller, error) {
	for _, c := range t.controllers {
		if c.Handles(gsi) {
			return c, nil
		}
	}
	return nil, kerrors.ErrIOAPICRouteFailed
}

// RouteLegacyIRQ resolves irq to a GSI and programs it on the owning
// controller to deliver vector, masked initially per §4.B (the IRQ
// dispatcher's register step unmasks it once a handler is installed).
func (t *Table) RouteLegacyIRQ(irq uint8, vector uint8, apicID uint8) (LegacyRoute, error) {
	route := t.ResolveLegacyIRQ(irq)
	ctrl, err := t.ControllerFor(route.GSI)
	if err != nil {
		return route, err
	}
	if err := ctrl.Route(route.GSI, vector, route.ActiveLow, route.LevelTrigger, true, apicID); err != nil {
		return route, err
	}
	return route, nil
}
