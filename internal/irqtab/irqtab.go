// Package irqtab implements component C: the 16-line IRQ table and the
// dispatch algorithm invoked from the common IRQ stub (§4.C).
//
// Grounded on linux/devices.go's (teacher) fixed device-node table with
// per-device stats, re-purposed from device nodes to IRQ lines, and on
// biscuit's trapstub switch/mask ordering for the dispatch sequence
// itself (justanotherdot-biscuit/.../main.go).
package irqtab

import (
	"fmt"
	"log/slog"

	kerrors "slopos/errors"
	"slopos/internal/trapframe"
	"slopos/utils"
)

// Lines is the size of the legacy-IRQ window (§3: "a fixed array indexed
// by legacy-IRQ number [0..16)").
const Lines = 16

// Handler processes one IRQ. context is the opaque value passed to
// Register; the frame is mutable so a handler may, in principle, alter
// register state for the task it interrupted (it must not alter cs/rip,
// checked by the frame-integrity step).
type Handler func(irq int, frame *trapframe.Frame, context any)

// Route records whether a line has an IOAPIC routing and, if so, its GSI.
type Route struct {
	ViaIOAPIC bool
	GSI       uint32
}

// Line is one IRQ table entry (§3).
type Line struct {
	Handler           Handler
	Context           any
	Name              string
	Count             uint64
	LastTSC           uint64
	Masked            bool
	ReportedUnhandled bool
	Route             Route
}

// IOAPICMasker is the subset of the apic.Table surface the dispatcher
// needs to mask/unmask a routed line. Scoped narrowly so irqtab does not
// import apic's full MADT-parsing surface.
type IOAPICMasker interface {
	ControllerFor(gsi uint32) (Masker, error)
}

// Masker is the minimal per-controller mask/unmask surface.
type Masker interface {
	Mask(gsi uint32) error
	Unmask(gsi uint32) error
}

// EOISender abstracts the LAPIC EOI call so irqtab does not import apic
// directly (apic already depends on cpu; irqtab must not gain that
// dependency merely to send an EOI).
type EOISender interface {
	EOI()
}

// PostIRQHook is invoked at the tail of every dispatch (§4.E's
// handle_post_irq, driven from here per §4.C step 9).
type PostIRQHook func()

// Table holds the 16 legacy IRQ lines plus the collaborators dispatch
// needs: a LAPIC for EOI, a scheduler post-IRQ hook, and a backend
// reading the TSC for last_tsc bookkeeping. mu guards the lines array
// itself (§5 "Shared-resource policy" names the IRQ table explicitly);
// it is never held across a handler invocation or an ioapic call, both
// of which can re-enter Table's own methods.
type Table struct {
	mu *utils.SpinLock

	lines [Lines]Line

	lapic    EOISender
	ioapic   IOAPICMasker
	postIRQ  PostIRQHook
	readTSC  func() uint64
	logger   *slog.Logger
	initDone bool
}

// New returns an empty Table bound to its collaborators. postIRQ may be
// nil until the scheduler exists; dispatch treats a nil hook as a no-op.
// ic is the interrupt controller mu disables against (§5).
func New(lapic EOISender, ioapic IOAPICMasker, readTSC func() uint64, logger *slog.Logger, ic utils.InterruptController) *Table {
	return &Table{lapic: lapic, ioapic: ioapic, readTSC: readTSC, logger: logger, mu: utils.NewSpinLock(ic)}
}

// SetPostIRQHook installs the scheduler's post-IRQ callback once the
// scheduler is constructed, breaking the irqtab/sched init-order cycle.
func (t *Table) SetPostIRQHook(hook PostIRQHook) {
	t.postIRQ = hook
}

// MarkInitialized records that the dispatcher is now live; Dispatch
// before this point acknowledges and returns per §4.C step 1.
func (t *Table) MarkInitialized() {
	t.initDone = true
}

// Register attaches handler to irq and unmasks the line (§4.C). Returns
// ErrInvalidIRQLine if irq is out of [0, Lines).
func (t *Table) Register(irq int, handler Handler, context any, name string, route Route) error {
	if irq < 0 || irq >= Lines {
		return kerrors.ErrInvalidIRQLine
	}
	st := t.mu.Lock()
	line := &t.lines[irq]
	line.Handler = handler
	line.Context = context
	line.Name = name
	line.Route = route
	line.Masked = false
	line.ReportedUnhandled = false
	t.mu.Unlock(st)

	if route.ViaIOAPIC && t.ioapic != nil {
		ctrl, err := t.ioapic.ControllerFor(route.GSI)
		if err != nil {
			return err
		}
		return ctrl.Unmask(route.GSI)
	}
	return nil
}

// Unregister detaches the line's handler and masks it.
func (t *Table) Unregister(irq int) error {
	if irq < 0 || irq >= Lines {
		return kerrors.ErrInvalidIRQLine
	}
	st := t.mu.Lock()
	line := &t.lines[irq]
	line.Handler = nil
	line.Context = nil
	line.Masked = true
	route := line.Route
	t.mu.Unlock(st)

	if route.ViaIOAPIC && t.ioapic != nil {
		ctrl, err := t.ioapic.ControllerFor(route.GSI)
		if err != nil {
			return err
		}
		return ctrl.Mask(route.GSI)
	}
	return nil
}

// Mask and Unmask toggle a line's mask bit idempotently, logging when no
// IOAPIC route exists (legacy-PIC masking is not used post-quiesce).
func (t *Table) Mask(irq int) error {
	return t.setMasked(irq, true)
}

func (t *Table) Unmask(irq int) error {
	return t.setMasked(irq, false)
}

func (t *Table) setMasked(irq int, masked bool) error {
	if irq < 0 || irq >= Lines {
		return kerrors.ErrInvalidIRQLine
	}
	st := t.mu.Lock()
	line := &t.lines[irq]
	line.Masked = masked
	route := line.Route
	t.mu.Unlock(st)

	if !route.ViaIOAPIC {
		if t.logger != nil {
			t.logger.Warn("irq mask is a no-op: no IOAPIC route", "irq", irq)
		}
		return nil
	}
	if t.ioapic == nil {
		return nil
	}
	ctrl, err := t.ioapic.ControllerFor(route.GSI)
	if err != nil {
		return err
	}
	if masked {
		return ctrl.Mask(route.GSI)
	}
	return ctrl.Unmask(route.GSI)
}

// Line returns a copy of the line's current state, for sys_info and tests.
func (t *Table) Line(irq int) (Line, error) {
	if irq < 0 || irq >= Lines {
		return Line{}, kerrors.ErrInvalidIRQLine
	}
	st := t.mu.Lock()
	defer t.mu.Unlock(st)
	return t.lines[irq], nil
}

// Dispatch is the single entry point from the common IRQ stub,
// implementing §4.C's nine-step algorithm. The table lock is held only
// to snapshot/update a line's bookkeeping fields, never across the
// handler invocation, Mask, or ackAPIC, any of which may call back into
// Table's own locked methods.
func (t *Table) Dispatch(frame *trapframe.Frame) {
	// Step 1: frame non-null; before init, acknowledge and return.
	if frame == nil {
		return
	}
	if !t.initDone {
		t.ackAPIC()
		return
	}

	// Step 2: below the IRQ base is not this dispatcher's concern.
	if int(frame.Vector) < trapframe.IRQBase {
		if t.logger != nil {
			t.logger.Warn("dispatch called for non-IRQ vector", "vector", frame.Vector)
		}
		return
	}

	// Step 3: compute the line index, acknowledging spurious out-of-range.
	irq := int(frame.Vector) - trapframe.IRQBase
	if irq < 0 || irq >= Lines {
		t.ackAPIC()
		return
	}

	// Step 4: remember the expected return point.
	expected := frame.Snapshot()

	st := t.mu.Lock()
	line := &t.lines[irq]
	handler := line.Handler
	context := line.Context
	name := line.Name
	firstUnhandled := false
	if handler == nil && !line.ReportedUnhandled {
		line.ReportedUnhandled = true
		firstUnhandled = true
	}
	if handler != nil {
		line.Count++
		if t.readTSC != nil {
			line.LastTSC = t.readTSC()
		}
	}
	t.mu.Unlock(st)

	// Step 5: no handler -> log once, mask, acknowledge, return.
	if handler == nil {
		if firstUnhandled && t.logger != nil {
			t.logger.Warn("unhandled IRQ", "irq", irq)
		}
		_ = t.Mask(irq)
		t.ackAPIC()
		return
	}

	// Step 6: invoke (bookkeeping already done above, under lock).
	handler(irq, frame, context)

	// Step 7: frame-integrity check.
	if !frame.Unchanged(expected) {
		panic(fmt.Sprintf("IRQ: frame corrupted on line %d (%s): cs/rip changed during handler", irq, name))
	}

	// Step 8: acknowledge via LAPIC (PIC path only used pre-quiesce).
	t.ackAPIC()

	// Step 9: scheduler post-IRQ hook.
	if t.postIRQ != nil {
		t.postIRQ()
	}
}

func (t *Table) ackAPIC() {
	if t.lapic != nil {
		t.lapic.EOI()
	}
}
