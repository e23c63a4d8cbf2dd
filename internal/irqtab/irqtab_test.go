package irqtab

import (
	"testing"

	"slopos/internal/trapframe"
	"slopos/logging"
)

type fakeIC struct{ enabled bool }

func (f *fakeIC) InterruptsEnabled() bool { return f.enabled }
func (f *fakeIC) DisableInterrupts()      { f.enabled = false }
func (f *fakeIC) EnableInterrupts()       { f.enabled = true }

type fakeEOI struct{ count int }

func (f *fakeEOI) EOI() { f.count++ }

type fakeMasker struct {
	masked bool
}

func (f *fakeMasker) Mask(gsi uint32) error   { f.masked = true; return nil }
func (f *fakeMasker) Unmask(gsi uint32) error { f.masked = false; return nil }

type fakeIOAPIC struct {
	masker *fakeMasker
}

func (f *fakeIOAPIC) ControllerFor(gsi uint32) (Masker, error) {
	return f.masker, nil
}

func newTestTable() (*Table, *fakeEOI, *fakeIOAPIC) {
	eoi := &fakeEOI{}
	ioapic := &fakeIOAPIC{masker: &fakeMasker{masked: true}}
	tbl := New(eoi, ioapic, func() uint64 { return 42 }, logging.Default(), &fakeIC{enabled: true})
	tbl.MarkInitialized()
	return tbl, eoi, ioapic
}

func irqFrame(irq int) *trapframe.Frame {
	return &trapframe.Frame{
		Vector: uint8(trapframe.IRQBase + irq),
		CPU:    trapframe.CPUBlock{CS: trapframe.UserCodeSelector, RIP: 0x1000, SS: trapframe.UserDataSelector, RSP: 0x2000},
	}
}

func TestDispatch_BeforeInit(t *testing.T) {
	eoi := &fakeEOI{}
	tbl := New(eoi, nil, nil, nil, &fakeIC{enabled: true})
	tbl.Dispatch(irqFrame(1))
	if eoi.count != 1 {
		t.Errorf("EOI count = %d, want 1: dispatch before init acknowledges and returns", eoi.count)
	}
}

func TestDispatch_UnhandledLineMasksAndAcks(t *testing.T) {
	tbl, eoi, ioapic := newTestTable()
	tbl.Dispatch(irqFrame(3))
	if eoi.count != 1 {
		t.Errorf("EOI count = %d, want 1", eoi.count)
	}
	line, _ := tbl.Line(3)
	if !line.ReportedUnhandled {
		t.Error("expected ReportedUnhandled after first unhandled dispatch")
	}
	if !line.Masked {
		t.Error("expected line masked after unhandled dispatch")
	}
	_ = ioapic
}

func TestDispatch_InvokesHandlerAndIncrementsCount(t *testing.T) {
	tbl, eoi, _ := newTestTable()
	var gotIRQ int
	var gotCtx any
	err := tbl.Register(5, func(irq int, frame *trapframe.Frame, context any) {
		gotIRQ = irq
		gotCtx = context
	}, "hello", "kbd", Route{ViaIOAPIC: true, GSI: 5})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	tbl.Dispatch(irqFrame(5))

	if gotIRQ != 5 {
		t.Errorf("handler saw irq = %d, want 5", gotIRQ)
	}
	if gotCtx != "hello" {
		t.Errorf("handler saw context = %v, want %q", gotCtx, "hello")
	}
	line, _ := tbl.Line(5)
	if line.Count != 1 {
		t.Errorf("Count = %d, want 1", line.Count)
	}
	if line.LastTSC != 42 {
		t.Errorf("LastTSC = %d, want 42", line.LastTSC)
	}
	if eoi.count != 1 {
		t.Errorf("EOI count = %d, want 1", eoi.count)
	}
}

func TestDispatch_FrameCorruptedPanics(t *testing.T) {
	tbl, _, _ := newTestTable()
	err := tbl.Register(2, func(irq int, frame *trapframe.Frame, context any) {
		frame.CPU.RIP = 0xDEAD // handler corrupts the return point
	}, nil, "corruptor", Route{})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected panic on frame corruption")
		}
	}()
	tbl.Dispatch(irqFrame(2))
}

func TestDispatch_CallsPostIRQHook(t *testing.T) {
	tbl, _, _ := newTestTable()
	called := false
	tbl.SetPostIRQHook(func() { called = true })
	if err := tbl.Register(1, func(int, *trapframe.Frame, any) {}, nil, "timer", Route{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	tbl.Dispatch(irqFrame(1))
	if !called {
		t.Error("post-IRQ hook not invoked")
	}
}

func TestRegister_InvalidLine(t *testing.T) {
	tbl, _, _ := newTestTable()
	if err := tbl.Register(99, func(int, *trapframe.Frame, any) {}, nil, "x", Route{}); err == nil {
		t.Error("expected error for out-of-range irq")
	}
}

func TestMaskUnmask_NoRouteIsNoOpNotError(t *testing.T) {
	tbl, _, _ := newTestTable()
	if err := tbl.Register(7, func(int, *trapframe.Frame, any) {}, nil, "x", Route{}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := tbl.Mask(7); err != nil {
		t.Errorf("Mask with no route should not error: %v", err)
	}
	if err := tbl.Unmask(7); err != nil {
		t.Errorf("Unmask with no route should not error: %v", err)
	}
}
